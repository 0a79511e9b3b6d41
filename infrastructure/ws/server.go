package ws

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	VisitorPath   = "/ws/chat"
	ModeratorPath = "/ws/moderator"
	HealthPath    = "/health"
)

type ServerConfig struct {
	Host            string
	Port            int
	BufferSize      int
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Server exposes the visitor and moderator websocket endpoints.
// It is run by the supervisor and stops when its context is canceled.
type Server struct {
	log    *slog.Logger
	probe  *services.HealthProbe
	config ServerConfig
	app    *fiber.App

	// sessions is canceled on shutdown to end every live session.
	sessions     context.Context
	stopSessions context.CancelFunc
}

func NewServer(log *slog.Logger, hub *runtime.Hub, tokens auth.TokenService, probe *services.HealthProbe, config ServerConfig) *Server {
	s := &Server{log: log, probe: probe, config: config}
	s.sessions, s.stopSessions = context.WithCancel(context.Background())

	app := fiber.New(fiber.Config{
		AppName:               "chat-relay",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Get(HealthPath, s.health)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	wsConfig := websocket.Config{Origins: config.AllowedOrigins}
	app.Get(VisitorPath, auth.Middleware(tokens, false), websocket.New(s.serve(hub.NewVisitor), wsConfig))
	app.Get(ModeratorPath, auth.Middleware(tokens, true), websocket.New(s.serve(hub.NewModerator), wsConfig))

	s.app = app
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Relay listening", "addr", addr)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("Relay shutting down")
		s.stopSessions()
		if err := s.app.ShutdownWithTimeout(s.config.ShutdownTimeout); err != nil {
			s.log.Warn("Shutdown incomplete", "error", err)
		}
		return nil
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	report := s.probe.Check(c.UserContext())
	if !report.Healthy() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

type sessionFactory func(conn contract.Conn, principal *domain.Principal) *runtime.Session

func (s *Server) serve(newSession sessionFactory) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		principal, _ := c.Locals(auth.PrincipalKey).(*domain.Principal)
		conn := NewConn(s.log, c, s.config.BufferSize, s.config.ReadTimeout, s.config.PingInterval)
		session := newSession(conn, principal)

		if err := session.Run(s.sessions); err != nil {
			s.log.Debug("Session ended", "handle", session.Handle(), "error", err)
		}
		session.Close(domain.CloseNormal, "")
		_ = conn.Close(domain.CloseNormal, "")
	}
}
