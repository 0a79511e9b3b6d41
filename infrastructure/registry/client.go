// Package registry holds the redis backed presence registry and fanout layer,
// shared by every relay process pointing at the same redis.
package registry

import (
	"chat-relay/errors"
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	moderatorsKey  = "chat:moderators"
	roomCounterKey = "chat:room_counter"
	groupPrefix    = "chat:group:"
	memberPrefix   = "chat:member:"
	connPrefix     = "chat:conn:"
)

func groupKey(room string) string    { return groupPrefix + room }
func memberKey(handle string) string { return memberPrefix + handle }
func connChannel(handle string) string {
	return connPrefix + handle
}

// NewClient parses a redis URL and checks the server answers.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(err)
	}
	return client, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", errors.ErrRegistryUnavailable, err)
}
