package healthcheck

import (
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/services"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type storePinger struct{ err error }

func (p storePinger) Ping(context.Context) error { return p.err }

func TestHealthServer_Reports_Probe(t *testing.T) {
	tests := []struct {
		name        string
		presenceErr error
		want        healthpb.HealthCheckResponse_ServingStatus
	}{
		{name: "serving", want: healthpb.HealthCheckResponse_SERVING},
		{name: "registry down", presenceErr: errors.ErrRegistryUnavailable, want: healthpb.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			presence := mocks.NewMockIPresence(gomock.NewController(t))
			presence.EXPECT().Ping(gomock.Any()).Return(tt.presenceErr).AnyTimes()
			probe := services.NewHealthProbe(presence, storePinger{}, nil, time.Second)

			listener, err := net.Listen("tcp", "127.0.0.1:0")
			req.NoError(err)
			server := NewHealthServer(logs.GetLoggerFromLevel(slog.LevelDebug), probe, "", 0, 10*time.Millisecond)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- server.Serve(ctx, listener) }()

			conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
			req.NoError(err)
			defer conn.Close()
			client := healthpb.NewHealthClient(conn)

			req.Eventually(func() bool {
				resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
				return err == nil && resp.Status == tt.want
			}, 2*time.Second, 20*time.Millisecond)

			cancel()
			req.NoError(<-done)
		})
	}
}
