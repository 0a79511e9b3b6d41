package runtime

import (
	"chat-relay/domain"
	"context"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

// RoomLister reports the rooms that currently have subscribers.
type RoomLister interface {
	Rooms() []domain.RoomID
}

// Presence is the single-process presence registry.
// Active rooms are read from the fanout registry so both never disagree.
type Presence struct {
	mu         sync.RWMutex
	moderators Set
	rooms      RoomLister
	counter    atomic.Int64
}

func NewPresence(rooms RoomLister) *Presence {
	return &Presence{moderators: make(Set), rooms: rooms}
}

func (p *Presence) RegisterModerator(_ context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moderators[handle] = struct{}{}
	return nil
}

func (p *Presence) UnregisterModerator(_ context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.moderators, handle)
	return nil
}

func (p *Presence) ListModerators(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Keys(p.moderators), nil
}

func (p *Presence) ListActiveRooms(_ context.Context) ([]domain.RoomID, error) {
	return p.rooms.Rooms(), nil
}

func (p *Presence) NextBroadcastRoomID(_ context.Context) (int64, error) {
	return p.counter.Add(1), nil
}

func (p *Presence) Ping(_ context.Context) error { return nil }
