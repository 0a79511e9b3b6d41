package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
)

// RoomStrategy decides which room a visitor connection talks in.
// It is called exactly once per visitor session.
type RoomStrategy interface {
	RoomFor(ctx context.Context, conn contract.Conn) (domain.RoomID, error)
}

const (
	StrategyAddress = "address"
	StrategyCounter = "counter"
)

// AddressRooms keys the room on the remote ip:port of the connection.
type AddressRooms struct{}

func (AddressRooms) RoomFor(_ context.Context, conn contract.Conn) (domain.RoomID, error) {
	return domain.AddressRoom(conn.RemoteAddr()), nil
}

// CounterRooms draws a fresh number from the shared broadcast counter.
type CounterRooms struct {
	presence contract.IPresence
}

func NewCounterRooms(presence contract.IPresence) CounterRooms {
	return CounterRooms{presence: presence}
}

func (c CounterRooms) RoomFor(ctx context.Context, _ contract.Conn) (domain.RoomID, error) {
	n, err := c.presence.NextBroadcastRoomID(ctx)
	if err != nil {
		return "", err
	}
	return domain.CounterRoom(n), nil
}

func NewRoomStrategy(name string, presence contract.IPresence) (RoomStrategy, error) {
	switch name {
	case "", StrategyAddress:
		return AddressRooms{}, nil
	case StrategyCounter:
		return NewCounterRooms(presence), nil
	default:
		return nil, fmt.Errorf("%w: unknown room strategy %q", errors.ErrInvalidConfig, name)
	}
}
