package registry

import (
	"chat-relay/domain"
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Presence keeps online moderators in a redis set, so registering twice
// never yields two entries and removing a missing handle is a no-op.
// Active rooms are the non-empty fanout groups: redis drops empty sets.
type Presence struct {
	client *redis.Client
}

func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client}
}

func (p *Presence) RegisterModerator(ctx context.Context, handle string) error {
	if err := p.client.SAdd(ctx, moderatorsKey, handle).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (p *Presence) UnregisterModerator(ctx context.Context, handle string) error {
	if err := p.client.SRem(ctx, moderatorsKey, handle).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (p *Presence) ListModerators(ctx context.Context) ([]string, error) {
	moderators, err := p.client.SMembers(ctx, moderatorsKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return moderators, nil
}

func (p *Presence) ListActiveRooms(ctx context.Context) ([]domain.RoomID, error) {
	var rooms []domain.RoomID
	iter := p.client.Scan(ctx, 0, groupPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rooms = append(rooms, domain.RoomID(strings.TrimPrefix(iter.Val(), groupPrefix)))
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable(err)
	}
	return rooms, nil
}

// NextBroadcastRoomID relies on INCR being atomic across every relay process.
func (p *Presence) NextBroadcastRoomID(ctx context.Context) (int64, error) {
	n, err := p.client.Incr(ctx, roomCounterKey).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (p *Presence) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
