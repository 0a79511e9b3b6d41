package services

import (
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthProbe_Check(t *testing.T) {
	up := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.ErrRegistryUnavailable })

	tests := []struct {
		name        string
		presenceErr error
		store       Pinger
		want        HealthReport
	}{
		{
			name:  "everything up",
			store: up,
			want:  HealthReport{Status: StatusUp, Presence: StatusUp, Store: StatusUp, Sessions: 3},
		},
		{
			name:        "registry down",
			presenceErr: errors.ErrRegistryUnavailable,
			store:       up,
			want:        HealthReport{Status: StatusDown, Presence: StatusDown, Store: StatusUp, Sessions: 3},
		},
		{
			name:  "store down",
			store: down,
			want:  HealthReport{Status: StatusDown, Presence: StatusUp, Store: StatusDown, Sessions: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			presence := mocks.NewMockIPresence(gomock.NewController(t))
			presence.EXPECT().Ping(gomock.Any()).Return(tt.presenceErr)

			probe := NewHealthProbe(presence, tt.store, func() int { return 3 }, time.Second)
			report := probe.Check(context.Background())

			req.Equal(tt.want, report)
			req.Equal(tt.want.Status == StatusUp, report.Healthy())
		})
	}
}
