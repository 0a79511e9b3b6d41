package services

import (
	"chat-relay/contract"
	"context"
	"time"
)

const (
	StatusUp   = "up"
	StatusDown = "down"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is served as is by the HTTP health route.
type HealthReport struct {
	Status   string `json:"status"`
	Presence string `json:"presence"`
	Store    string `json:"store"`
	Sessions int    `json:"sessions"`
}

func (r HealthReport) Healthy() bool { return r.Status == StatusUp }

// HealthProbe checks the dependencies a session cannot open without.
type HealthProbe struct {
	presence contract.IPresence
	store    Pinger
	sessions func() int
	timeout  time.Duration
}

func NewHealthProbe(presence contract.IPresence, store Pinger, sessions func() int, timeout time.Duration) *HealthProbe {
	return &HealthProbe{presence: presence, store: store, sessions: sessions, timeout: timeout}
}

func (h *HealthProbe) Check(ctx context.Context) HealthReport {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	report := HealthReport{
		Status:   StatusUp,
		Presence: status(h.presence.Ping(ctx)),
		Store:    status(h.store.Ping(ctx)),
	}
	if h.sessions != nil {
		report.Sessions = h.sessions()
	}
	if report.Presence == StatusDown || report.Store == StatusDown {
		report.Status = StatusDown
	}
	return report
}

func status(err error) string {
	if err != nil {
		return StatusDown
	}
	return StatusUp
}
