package registry

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// Fanout stores room subscribers in redis sets and publishes on one redis
// channel per connection handle. Endpoints attached here are fed by Pump.
//
//	chat:group:<room>    handles subscribed to room
//	chat:member:<handle> rooms handle is subscribed to
//	chat:conn:<handle>   pub/sub channel of handle
type Fanout struct {
	client *redis.Client
	local  *runtime.Registry
	log    *slog.Logger
}

func NewFanout(client *redis.Client, local *runtime.Registry, log *slog.Logger) *Fanout {
	return &Fanout{client: client, local: local, log: log}
}

func (f *Fanout) Attach(endpoint contract.Endpoint) { f.local.Attach(endpoint) }

func (f *Fanout) Detach(handle string) { f.local.Detach(handle) }

func (f *Fanout) Join(ctx context.Context, room domain.RoomID, handle string) error {
	_, err := f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, groupKey(string(room)), handle)
		pipe.SAdd(ctx, memberKey(handle), string(room))
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (f *Fanout) Leave(ctx context.Context, room domain.RoomID, handle string) error {
	_, err := f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, groupKey(string(room)), handle)
		pipe.SRem(ctx, memberKey(handle), string(room))
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (f *Fanout) Memberships(ctx context.Context, handle string) ([]domain.RoomID, error) {
	rooms, err := f.client.SMembers(ctx, memberKey(handle)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return lo.Map(rooms, func(room string, _ int) domain.RoomID {
		return domain.RoomID(room)
	}), nil
}

func (f *Fanout) Members(ctx context.Context, room domain.RoomID) ([]string, error) {
	handles, err := f.client.SMembers(ctx, groupKey(string(room))).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return handles, nil
}

// Publish sends payload once on the channel of every subscriber of room.
// A handle nobody listens to anymore simply has no receiver.
func (f *Fanout) Publish(ctx context.Context, room domain.RoomID, payload []byte) error {
	handles, err := f.client.SMembers(ctx, groupKey(string(room))).Result()
	if err != nil {
		return unavailable(err)
	}
	if len(handles) == 0 {
		return nil
	}
	_, err = f.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, handle := range handles {
			pipe.Publish(ctx, connChannel(handle), payload)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Pump forwards the messages published for handles attached to this process.
type Pump struct {
	client *redis.Client
	local  *runtime.Registry
	log    *slog.Logger
}

func NewPump(client *redis.Client, local *runtime.Registry, log *slog.Logger) *Pump {
	return &Pump{client: client, local: local, log: log}
}

func (p *Pump) Run(ctx context.Context) error {
	pubsub := p.client.PSubscribe(ctx, connPrefix+"*")
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return unavailable(err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("Context done, stopping fanout pump")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("fanout subscription closed")
			}
			handle := strings.TrimPrefix(msg.Channel, connPrefix)
			p.local.Deliver(ctx, handle, []byte(msg.Payload))
		}
	}
}
