package healthcheck

import (
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported next to the overall ("") status.
const ServiceName = "chat.relay"

// HealthServer publishes the probe result through the standard gRPC health
// protocol so orchestrators can check the relay without a websocket client.
type HealthServer struct {
	log      *slog.Logger
	probe    *services.HealthProbe
	health   *health.Server
	address  string
	interval time.Duration
}

func NewHealthServer(log *slog.Logger, probe *services.HealthProbe, host string, port int, interval time.Duration) *HealthServer {
	return &HealthServer{
		log:      log,
		probe:    probe,
		health:   health.NewServer(),
		address:  fmt.Sprintf("%s:%d", host, port),
		interval: interval,
	}
}

func (h *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.address, err)
	}
	return h.Serve(ctx, listener)
}

// Serve blocks until ctx is canceled or the gRPC server fails.
func (h *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, h.health)

	errChan := make(chan error, 1)
	go func() {
		h.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC health server error: %w", err)
		}
	}()

	h.refresh(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			s.GracefulStop()
			return nil
		case err := <-errChan:
			s.Stop()
			return err
		case <-ticker.C:
			h.refresh(ctx)
		}
	}
}

func (h *HealthServer) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	report := h.probe.Check(ctx)
	if !report.Healthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.log.Warn("Relay unhealthy", "presence", report.Presence, "store", report.Store)
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
