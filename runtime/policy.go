package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// rolePolicy is what differs between a visitor and a moderator session:
// how it is admitted, which rooms it discovers, where its commands land and
// how fanout payloads are rendered for it.
type rolePolicy interface {
	role() domain.Role
	admit(ctx context.Context, s *Session) error
	enter(ctx context.Context, s *Session) error
	release(ctx context.Context, s *Session)
	target(ctx context.Context, s *Session, cmd domain.Command) (domain.RoomID, error)
	render(payload []byte) ([]byte, error)
}

type visitorPolicy struct {
	rooms RoomStrategy
}

func (visitorPolicy) role() domain.Role { return domain.RoleVisitor }

func (visitorPolicy) admit(context.Context, *Session) error { return nil }

// enter joins the visitor's room, then pulls every online moderator into it.
func (p visitorPolicy) enter(ctx context.Context, s *Session) error {
	hub := s.hub
	room, err := p.rooms.RoomFor(ctx, s.conn)
	if err != nil {
		return unavailable(err)
	}
	s.room = room
	s.log = s.log.With("room", room)

	if err = hub.fanout.Join(ctx, room, s.handle); err != nil {
		return unavailable(err)
	}
	moderators, err := hub.presence.ListModerators(ctx)
	if err != nil {
		return unavailable(err)
	}
	s.moderators = moderators
	for _, moderator := range moderators {
		if err = hub.fanout.Join(ctx, room, moderator); err != nil {
			return unavailable(err)
		}
	}
	s.activate()

	if len(moderators) > 0 {
		return s.reply(ctx, domain.GreetingFrame{Message: domain.GreetingText})
	}
	return s.reply(ctx, domain.StatusFrame{
		Status:  domain.StatusNoModerators,
		Message: domain.NoModeratorsText,
	})
}

// release takes the room away from the snapshotted moderators and from
// those who joined it after the visitor connected, then leaves it.
func (visitorPolicy) release(ctx context.Context, s *Session) {
	hub := s.hub
	if s.room == "" {
		return
	}
	moderators := s.moderators
	if online, err := hub.presence.ListModerators(ctx); err == nil {
		moderators = lo.Union(moderators, online)
	} else {
		s.log.Warn("Listing moderators on disconnect failed", "error", err)
	}
	// The room's own subscriber set also covers moderators that joined after
	// connect when the presence registry cannot be listed.
	if members, err := hub.fanout.Members(ctx, s.room); err == nil {
		moderators = lo.Union(moderators, members)
	} else {
		s.log.Warn("Listing room members on disconnect failed", "error", err)
	}
	moderators = lo.Without(moderators, s.handle)
	for _, moderator := range moderators {
		if err := hub.fanout.Leave(ctx, s.room, moderator); err != nil {
			s.log.Warn("Leave on behalf of moderator failed", "moderator", moderator, "error", err)
		}
	}
	if err := hub.fanout.Leave(ctx, s.room, s.handle); err != nil {
		s.log.Warn("Leave failed", "error", err)
	}
}

// target ignores any room sent by the client.
func (visitorPolicy) target(_ context.Context, s *Session, _ domain.Command) (domain.RoomID, error) {
	return s.room, nil
}

func (visitorPolicy) render(payload []byte) ([]byte, error) {
	var frame domain.DeliveryFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, err
	}
	frame.RoomName = ""
	return json.Marshal(frame)
}

type moderatorPolicy struct{}

func (moderatorPolicy) role() domain.Role { return domain.RoleModerator }

func (moderatorPolicy) admit(ctx context.Context, s *Session) error {
	ok, err := s.hub.authorizer.IsModerator(ctx, s.principal)
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return errors.ErrForbidden
	}
	return nil
}

// enter joins every room already in progress and only then shows up as online.
func (moderatorPolicy) enter(ctx context.Context, s *Session) error {
	hub := s.hub
	rooms, err := hub.presence.ListActiveRooms(ctx)
	if err != nil {
		return unavailable(err)
	}
	for _, room := range rooms {
		if err = hub.fanout.Join(ctx, room, s.handle); err != nil {
			return unavailable(err)
		}
	}
	s.activate()
	if err = hub.presence.RegisterModerator(ctx, s.handle); err != nil {
		return unavailable(err)
	}
	return nil
}

// release leaves every room first and unregisters last, even when some
// leave failed.
func (moderatorPolicy) release(ctx context.Context, s *Session) {
	hub := s.hub
	rooms, err := hub.fanout.Memberships(ctx, s.handle)
	if err != nil {
		s.log.Warn("Listing memberships on disconnect failed", "error", err)
	}
	for _, room := range rooms {
		if err = hub.fanout.Leave(ctx, room, s.handle); err != nil {
			s.log.Warn("Leave failed", "room", room, "error", err)
		}
	}
	if err = hub.presence.UnregisterModerator(ctx, s.handle); err != nil {
		s.log.Error("Unregister moderator failed", "error", err)
	}
}

// target only accepts a room the moderator is currently subscribed to.
func (moderatorPolicy) target(ctx context.Context, s *Session, cmd domain.Command) (domain.RoomID, error) {
	if cmd.RoomName == "" {
		return "", errors.ErrNotMember
	}
	rooms, err := s.hub.fanout.Memberships(ctx, s.handle)
	if err != nil {
		return "", unavailable(err)
	}
	if !slices.Contains(rooms, cmd.RoomName) {
		return "", fmt.Errorf("%w: %s", errors.ErrNotMember, cmd.RoomName)
	}
	return cmd.RoomName, nil
}

func (moderatorPolicy) render(payload []byte) ([]byte, error) { return payload, nil }

func unavailable(err error) error {
	if errors.Is(err, errors.ErrRegistryUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", errors.ErrRegistryUnavailable, err)
}
