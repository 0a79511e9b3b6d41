package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// Hub builds sessions and holds what they share: the presence registry,
// the fanout layer and the command dispatcher.
type Hub struct {
	log              *slog.Logger
	presence         contract.IPresence
	fanout           contract.IFanout
	authorizer       contract.IAuthorizer
	rooms            RoomStrategy
	dispatcher       *Dispatcher
	operationTimeout time.Duration
	cleanupTimeout   time.Duration
}

func NewHub(
	log *slog.Logger,
	presence contract.IPresence,
	fanout contract.IFanout,
	authorizer contract.IAuthorizer,
	rooms RoomStrategy,
	dispatcher *Dispatcher,
	operationTimeout, cleanupTimeout time.Duration,
) *Hub {
	return &Hub{
		log:              log,
		presence:         presence,
		fanout:           fanout,
		authorizer:       authorizer,
		rooms:            rooms,
		dispatcher:       dispatcher,
		operationTimeout: operationTimeout,
		cleanupTimeout:   cleanupTimeout,
	}
}

func (h *Hub) NewVisitor(conn contract.Conn, principal *domain.Principal) *Session {
	return h.newSession(conn, principal, visitorPolicy{rooms: h.rooms})
}

func (h *Hub) NewModerator(conn contract.Conn, principal *domain.Principal) *Session {
	return h.newSession(conn, principal, moderatorPolicy{})
}

func (h *Hub) newSession(conn contract.Conn, principal *domain.Principal, policy rolePolicy) *Session {
	handle := uuid.NewString()
	return &Session{
		hub:       h,
		handle:    handle,
		conn:      conn,
		principal: principal,
		policy:    policy,
		log:       h.log.With("handle", handle, "role", policy.role()),
	}
}

// Session is bound to one live connection for its whole life:
// connecting -> active -> closed, never back.
// Only its own goroutine mutates it; other sessions reach it through the fanout.
type Session struct {
	hub       *Hub
	handle    string
	conn      contract.Conn
	principal *domain.Principal
	policy    rolePolicy
	log       *slog.Logger

	// lifecycle serializes opening and closing so cleanup never races a half-done connect.
	lifecycle sync.Mutex
	closeOnce sync.Once

	mu      sync.Mutex
	state   sessionState
	entered bool
	cancel  context.CancelFunc

	// Visitor only: its room and the moderators snapshotted at connect time.
	room       domain.RoomID
	moderators []string
}

func (s *Session) Handle() string               { return s.handle }
func (s *Session) Role() domain.Role            { return s.policy.role() }
func (s *Session) Principal() *domain.Principal { return s.principal }

func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// Run opens the session, then processes inbound frames one at a time in
// arrival order until the transport goes away or ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	ctx, err := s.start(ctx)
	if err != nil {
		return err
	}
	if code, err := s.open(ctx); err != nil {
		s.log.Info("Connection refused", "error", err, "code", code)
		s.Close(code, errors.Code(err))
		return err
	}
	defer s.Close(domain.CloseNormal, "")

	for {
		data, err := s.conn.Receive(ctx)
		if err != nil {
			s.log.Debug("Transport closed", "error", err)
			return nil
		}
		if err = s.hub.dispatcher.Dispatch(ctx, s, data); errors.Is(err, errors.ErrSessionClosed) {
			return err
		}
	}
}

func (s *Session) start(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed || s.cancel != nil {
		return nil, errors.ErrSessionClosed
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.watchTransport(ctx, s.cancel)
	return ctx, nil
}

// watchTransport cancels whatever the session is doing once the peer is gone,
// so a handler stuck on the store or the registry does not outlive it.
func (s *Session) watchTransport(ctx context.Context, cancel context.CancelFunc) {
	select {
	case <-s.conn.Done():
		s.log.Debug("Transport gone, canceling in-flight work")
		cancel()
	case <-ctx.Done():
	}
}

func (s *Session) open(ctx context.Context) (int, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed() {
		return domain.CloseNormal, errors.ErrSessionClosed
	}
	if err := s.policy.admit(ctx, s); err != nil {
		if errors.Is(err, errors.ErrForbidden) {
			return domain.CloseForbidden, err
		}
		return domain.CloseUnavailable, err
	}

	s.mu.Lock()
	s.entered = true
	s.mu.Unlock()
	s.hub.fanout.Attach(s)

	opCtx, cancel := context.WithTimeout(ctx, s.hub.operationTimeout)
	defer cancel()
	if err := s.policy.enter(opCtx, s); err != nil {
		return domain.CloseUnavailable, err
	}
	s.log.Info("Session active", "room", s.room)
	return 0, nil
}

// Close ends the session and unwinds every room membership and presence
// entry it created. Only the first call does anything, whoever makes it:
// the transport, the server shutdown or a refused connect.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		s.lifecycle.Lock()
		defer s.lifecycle.Unlock()

		s.mu.Lock()
		entered := s.entered
		s.state = stateClosed
		s.mu.Unlock()

		if entered {
			ctx, cancel := context.WithTimeout(context.Background(), s.hub.cleanupTimeout)
			s.policy.release(ctx, s)
			cancel()
			s.hub.fanout.Detach(s.handle)
		}
		if err := s.conn.Close(code, reason); err != nil {
			s.log.Debug("Transport close failed", "error", err)
		}
		s.log.Info("Session closed", "code", code)
	})
}

// Deliver implements contract.Endpoint: it renders a fanout payload for this
// session's role and writes it to the transport.
func (s *Session) Deliver(ctx context.Context, payload []byte) error {
	if s.closed() {
		return errors.ErrSessionClosed
	}
	frame, err := s.policy.render(payload)
	if err != nil {
		return err
	}
	return s.conn.Send(ctx, frame)
}

func (s *Session) reply(ctx context.Context, frame any) error {
	if s.closed() {
		return errors.ErrSessionClosed
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.conn.Send(ctx, payload)
}

func (s *Session) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateConnecting {
		s.state = stateActive
	}
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}
