package runtime

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

// fakeConn is an in-memory transport. Frames pushed on inbound are received
// in order; everything sent is recorded.
type fakeConn struct {
	addr    string
	inbound chan []byte
	dead    bool

	mu         sync.Mutex
	sent       [][]byte
	closeCode  int
	closeCalls int
	closed     chan struct{}
	closeOnce  sync.Once
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{addr: addr, inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead || c.closeCalls > 0 {
		return errors.ErrConnectionClosed
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, errors.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	c.closeCalls++
	if c.closeCalls == 1 {
		c.closeCode = code
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.closed }

// hangUp simulates the peer going away.
func (c *fakeConn) hangUp() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *fakeConn) push(frame string) { c.inbound <- []byte(frame) }

func (c *fakeConn) frames() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.sent))
	for _, raw := range c.sent {
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err == nil {
			out = append(out, frame)
		}
	}
	return out
}

func (c *fakeConn) raw() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, raw := range c.sent {
		out = append(out, string(raw))
	}
	return out
}

func (c *fakeConn) code() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeCalls
}

// testRelay wires a hub on the in-memory registry and a badger store.
type testRelay struct {
	log      *slog.Logger
	registry *Registry
	presence *Presence
	store    *storage.MessageRepository
	hub      *Hub
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := NewRegistry(log)
	presence := NewPresence(registry)
	store := storage.NewMessageRepository(db, log, nil)
	return &testRelay{
		log:      log,
		registry: registry,
		presence: presence,
		store:    store,
		hub:      newTestHub(log, presence, registry, store),
	}
}

func newTestHub(log *slog.Logger, presence contract.IPresence, fanout contract.IFanout, store contract.IMessageStore) *Hub {
	pipeline := services.NewMessagePipeline(log, presence, fanout, store, nil)
	dispatcher := NewDispatcher(log, pipeline, 500, time.Second)
	return NewHub(log, presence, fanout, auth.NewRoleAuthorizer(auth.ModeratorRole),
		AddressRooms{}, dispatcher, time.Second, time.Second)
}

func moderatorPrincipal(name string) *domain.Principal {
	return &domain.Principal{UserID: name, Username: name, Roles: []string{auth.ModeratorRole}}
}

// run starts s in the background and returns a channel with its result.
func run(ctx context.Context, s *Session) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func (r *testRelay) moderators(t *testing.T) []string {
	t.Helper()
	moderators, err := r.presence.ListModerators(context.Background())
	require.NoError(t, err)
	return moderators
}
