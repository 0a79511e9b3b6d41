package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// NewMessage is a new_message command resolved against its session.
type NewMessage struct {
	Room      domain.RoomID
	Principal *domain.Principal
	Text      string
	Email     string
}

// MessagePipeline turns new messages into either a live chat message or a
// fallback email, depending on moderator presence at the time of the message.
type MessagePipeline struct {
	log      *slog.Logger
	presence contract.IPresence
	fanout   contract.IFanout
	store    contract.IMessageStore
	censor   contract.ICensor
	validate *validator.Validate
}

func NewMessagePipeline(
	log *slog.Logger,
	presence contract.IPresence,
	fanout contract.IFanout,
	store contract.IMessageStore,
	censor contract.ICensor,
) *MessagePipeline {
	return &MessagePipeline{
		log:      log,
		presence: presence,
		fanout:   fanout,
		store:    store,
		censor:   censor,
		validate: validator.New(),
	}
}

// HandleNewMessage returns the frame to send back to the author, or nil when
// the message went live and the author gets it through the fanout like
// everyone else in the room.
// Presence is read on every call so a conversation upgrades to live as soon
// as a moderator comes online.
func (p *MessagePipeline) HandleNewMessage(ctx context.Context, msg NewMessage) (any, error) {
	moderators, err := p.presence.ListModerators(ctx)
	if err != nil {
		if !errors.Is(err, errors.ErrRegistryUnavailable) {
			err = fmt.Errorf("%w: %w", errors.ErrRegistryUnavailable, err)
		}
		return errorFrame(err), err
	}
	if len(moderators) == 0 {
		return p.fallback(ctx, msg)
	}
	return p.live(ctx, msg)
}

func (p *MessagePipeline) live(ctx context.Context, msg NewMessage) (any, error) {
	content := msg.Text
	if p.censor != nil {
		content = p.censor.Censor(content)
	}

	room, err := p.store.GetOrCreateRoom(ctx, msg.Room)
	if err != nil {
		err = fmt.Errorf("%w: %w", errors.ErrPersistFailed, err)
		return errorFrame(err), err
	}
	stored, err := p.store.AppendMessage(ctx, room, content, msg.Principal.SenderName())
	if err != nil {
		err = fmt.Errorf("%w: %w", errors.ErrPersistFailed, err)
		return errorFrame(err), err
	}

	payload, err := json.Marshal(domain.DeliveryFrame{
		RoomName: msg.Room,
		Message:  domain.ToChatMessage(stored),
	})
	if err != nil {
		return nil, err
	}
	// The message is already stored: a failed publish is logged, not reported.
	if err = p.fanout.Publish(ctx, msg.Room, payload); err != nil {
		p.log.Warn("Publish failed", "room", msg.Room, "error", err)
	}
	return nil, nil
}

func (p *MessagePipeline) fallback(ctx context.Context, msg NewMessage) (any, error) {
	if msg.Email == "" {
		return errorFrame(errors.ErrNoEmail), errors.ErrNoEmail
	}
	if err := p.validate.Var(msg.Email, "email"); err != nil {
		return errorFrame(errors.ErrInvalidEmail), errors.ErrInvalidEmail
	}

	entry, err := p.store.AppendFallbackEmail(ctx, msg.Email, msg.Text)
	if err != nil {
		err = fmt.Errorf("%w: %w", errors.ErrPersistFailed, err)
		return errorFrame(err), err
	}
	p.log.Info("Fallback email captured", "room", msg.Room, "entry", entry.ID)
	return domain.StatusFrame{
		Status:  domain.StatusEmailReceived,
		Message: domain.EmailReceivedText,
	}, nil
}

// FetchMessages returns the history of room, newest first.
func (p *MessagePipeline) FetchMessages(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	messages, err := p.store.ListMessages(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrFetchFailed, err)
	}
	return lo.Map(messages, func(m domain.Message, _ int) domain.ChatMessage {
		return domain.ToChatMessage(m)
	}), nil
}

func errorFrame(err error) domain.ErrorFrame {
	return domain.ErrorFrame{Error: errors.Code(err)}
}
