package ws

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fasthttp/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server   *Server
	tokens   auth.TokenService
	registry *runtime.Registry
	presence *runtime.Presence
	store    *storage.MessageRepository
	addr     string
}

type storePinger struct{ err error }

func (p storePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, storeErr error, options ...func(*ServerConfig)) *testServer {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := runtime.NewRegistry(log)
	presence := runtime.NewPresence(registry)
	store := storage.NewMessageRepository(db, log, nil)
	pipeline := services.NewMessagePipeline(log, presence, registry, store, nil)
	dispatcher := runtime.NewDispatcher(log, pipeline, 500, time.Second)
	hub := runtime.NewHub(log, presence, registry, auth.NewRoleAuthorizer(auth.ModeratorRole),
		runtime.AddressRooms{}, dispatcher, time.Second, time.Second)
	tokens := auth.NewTokenService("secret", "chat-relay", time.Hour)
	probe := services.NewHealthProbe(presence, storePinger{err: storeErr}, registry.Count, time.Second)

	config := ServerConfig{
		BufferSize:      16,
		ReadTimeout:     time.Minute,
		ShutdownTimeout: time.Second,
	}
	for _, option := range options {
		option(&config)
	}
	server := NewServer(log, hub, tokens, probe, config)
	return &testServer{server: server, tokens: tokens, registry: registry, presence: presence, store: store}
}

// listen serves the app on a random local port until the test ends.
func (ts *testServer) listen(t *testing.T) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ts.addr = ln.Addr().String()
	go func() { _ = ts.server.App().Listener(ln) }()
	t.Cleanup(func() {
		ts.server.stopSessions()
		_ = ts.server.App().ShutdownWithTimeout(time.Second)
	})
}

func (ts *testServer) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws://" + ts.addr + path
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		code     int
		status   string
	}{
		{name: "up", code: 200, status: services.StatusUp},
		{name: "store down", storeErr: errors.ErrPersistFailed, code: 503, status: services.StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ts := newTestServer(t, tt.storeErr)

			resp, err := ts.server.App().Test(httptest.NewRequest("GET", HealthPath, nil))
			req.NoError(err)
			defer resp.Body.Close()

			var report services.HealthReport
			req.NoError(json.NewDecoder(resp.Body).Decode(&report))
			req.Equal(tt.code, resp.StatusCode)
			req.Equal(tt.status, report.Status)
		})
	}
}

func TestServer_Rejects_Plain_HTTP(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil)

	resp, err := ts.server.App().Test(httptest.NewRequest("GET", VisitorPath, nil))

	req.NoError(err)
	req.Equal(426, resp.StatusCode)
}

func TestServer_Moderator_Endpoint_Requires_Token(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil)

	request := httptest.NewRequest("GET", ModeratorPath, nil)
	request.Header.Set("Connection", "Upgrade")
	request.Header.Set("Upgrade", "websocket")
	request.Header.Set("Sec-WebSocket-Version", "13")
	request.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := ts.server.App().Test(request)

	req.NoError(err)
	req.Equal(403, resp.StatusCode)
}

func TestServer_Visitor_Without_Moderators_Gets_Notice(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil)
	ts.listen(t)

	visitor := ts.dial(t, VisitorPath, "")

	frame := readFrame(t, visitor)
	req.Equal(domain.StatusNoModerators, frame["status"])

	// When the visitor writes without an email
	req.NoError(visitor.WriteMessage(websocket.TextMessage, []byte(`{"command":"new_message","message":"hello"}`)))

	// Then it is asked for one
	req.Equal(map[string]any{"error": "no_email"}, readFrame(t, visitor))
}

func TestServer_Live_Conversation(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil)
	ts.listen(t)

	token, err := ts.tokens.GenerateToken("1", "alice", []string{auth.ModeratorRole})
	req.NoError(err)
	moderator := ts.dial(t, ModeratorPath, token)
	req.Eventually(func() bool {
		moderators, _ := ts.presence.ListModerators(context.Background())
		return len(moderators) == 1
	}, time.Second, 5*time.Millisecond)

	visitor := ts.dial(t, VisitorPath, "")
	req.Equal(domain.GreetingText, readFrame(t, visitor)["message"])

	req.NoError(visitor.WriteMessage(websocket.TextMessage, []byte(`{"command":"new_message","message":"hello"}`)))

	// Then both ends get the message, only the moderator sees the room
	own := readFrame(t, visitor)
	req.NotContains(own, "room_name")
	delivered := readFrame(t, moderator)
	req.NotEmpty(delivered["room_name"])
	req.Equal("hello", delivered["message"].(map[string]any)["content"])
}

func TestServer_Non_Moderator_Token_Is_Closed_With_Forbidden(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil)
	ts.listen(t)

	token, err := ts.tokens.GenerateToken("2", "bob", []string{"visitor"})
	req.NoError(err)
	conn := ts.dial(t, ModeratorPath, token)

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = conn.ReadMessage()

	req.True(websocket.IsCloseError(err, domain.CloseForbidden))
	req.Zero(ts.registry.Count())
}

// readAll drains conn in the background, which also answers server pings.
func readAll(conn *websocket.Conn) (<-chan []byte, <-chan error) {
	frames, failed := make(chan []byte, 16), make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				failed <- err
				return
			}
			frames <- data
		}
	}()
	return frames, failed
}

func TestServer_Quiet_Visitor_Is_Kept_Alive_By_Pings(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil, func(c *ServerConfig) {
		c.ReadTimeout = 300 * time.Millisecond
		c.PingInterval = 50 * time.Millisecond
	})
	ts.listen(t)

	visitor := ts.dial(t, VisitorPath, "")
	frames, failed := readAll(visitor)
	<-frames

	// Given the visitor stays silent well past the read timeout
	select {
	case err := <-failed:
		req.FailNow("connection dropped", err)
	case <-time.After(time.Second):
	}

	// Then the session still answers
	req.NoError(visitor.WriteMessage(websocket.TextMessage, []byte(`{"command":"new_message","message":"hello"}`)))
	select {
	case data := <-frames:
		req.JSONEq(`{"error":"no_email"}`, string(data))
	case err := <-failed:
		req.FailNow("connection dropped", err)
	}
}

func TestServer_Silent_Peer_Is_Dropped_Without_Pings(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil, func(c *ServerConfig) {
		c.ReadTimeout = 200 * time.Millisecond
	})
	ts.listen(t)

	visitor := ts.dial(t, VisitorPath, "")
	_, failed := readAll(visitor)

	// When nothing comes back from the peer, the read deadline ends the session
	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		req.FailNow("silent peer was never dropped")
	}
	req.Eventually(func() bool { return ts.registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}
