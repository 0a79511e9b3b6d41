package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

type Set map[string]struct{}

// Registry is the in-process fanout layer.
// It keeps the subscriber handles of every room and the endpoints attached
// to this process, and satisfies contract.IFanout.
type Registry struct {
	mu          sync.RWMutex
	log         *slog.Logger
	endpoints   map[string]contract.Endpoint // map handle -> Endpoint
	roomMembers map[domain.RoomID]Set        // map room to handles
	memberships map[string]map[domain.RoomID]struct{}
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:         log,
		endpoints:   make(map[string]contract.Endpoint),
		roomMembers: make(map[domain.RoomID]Set),
		memberships: make(map[string]map[domain.RoomID]struct{}),
	}
}

func (r *Registry) Attach(endpoint contract.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[endpoint.Handle()] = endpoint
}

func (r *Registry) Detach(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, handle)
}

// Join adds handle to the subscribers of room.
// The handle does not need to be attached yet: a visitor joins the room on
// behalf of moderators that may live elsewhere.
func (r *Registry) Join(_ context.Context, room domain.RoomID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	r.roomMembers[room][handle] = struct{}{}

	if _, ok := r.memberships[handle]; !ok {
		r.memberships[handle] = make(map[domain.RoomID]struct{})
	}
	r.memberships[handle][room] = struct{}{}
	return nil
}

// Leave removes handle from room. Empty rooms are dropped so that they stop
// being reported as active.
func (r *Registry) Leave(_ context.Context, room domain.RoomID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.roomMembers[room]; ok {
		delete(members, handle)
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
	if rooms, ok := r.memberships[handle]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.memberships, handle)
		}
	}
	return nil
}

func (r *Registry) Memberships(_ context.Context, handle string) ([]domain.RoomID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.memberships[handle]), nil
}

// Members lists the handles subscribed to room.
func (r *Registry) Members(_ context.Context, room domain.RoomID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.roomMembers[room]), nil
}

// Rooms lists the rooms with at least one subscriber.
func (r *Registry) Rooms() []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.roomMembers)
}

// Publish delivers payload once to every subscriber of room attached to this process.
// The subscriber set is snapshotted first, so joins and leaves racing with
// the delivery are either fully included or fully excluded.
// A failing endpoint is skipped and never fails the whole publish.
func (r *Registry) Publish(ctx context.Context, room domain.RoomID, payload []byte) error {
	for _, endpoint := range r.endpointsForRoom(room) {
		if err := endpoint.Deliver(ctx, payload); err != nil {
			r.log.Debug("Delivery skipped", "room", room, "handle", endpoint.Handle(), "error", err)
		}
	}
	return nil
}

// Deliver sends payload to a single attached endpoint.
// It returns false when the handle does not live in this process.
func (r *Registry) Deliver(ctx context.Context, handle string, payload []byte) bool {
	r.mu.RLock()
	endpoint, ok := r.endpoints[handle]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := endpoint.Deliver(ctx, payload); err != nil {
		r.log.Debug("Delivery skipped", "handle", handle, "error", err)
	}
	return true
}

// Count returns the number of endpoints attached to this process.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

func (r *Registry) endpointsForRoom(room domain.RoomID) []contract.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	var active []contract.Endpoint
	for handle := range members {
		if endpoint, exists := r.endpoints[handle]; exists {
			active = append(active, endpoint)
		}
	}
	return active
}
