package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultRestartInterval = 200 * time.Millisecond
	// maxBackoffFactor caps the restart delay at that many restart intervals.
	maxBackoffFactor = 32
)

// Supervisor runs every long-lived part of the relay (transport listeners,
// health server, registry pump) in its own goroutine.
// A worker that panics or returns an error is restarted, first after
// restartInterval, then after a delay doubling on every consecutive failure.
// A run that lasted longer than the largest delay resets the backoff.
// A worker returning nil is considered done and never restarted.
// Run returns once every worker has stopped.
type Supervisor struct {
	log             *slog.Logger
	wg              sync.WaitGroup
	workers         []contract.Worker
	restartInterval time.Duration
	maxInterval     time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	restarts map[string]int
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{
		log:             log,
		restartInterval: restartInterval,
		maxInterval:     restartInterval * maxBackoffFactor,
		restarts:        make(map[string]int),
	}
}

// Run blocks until all workers are finished.
// Cancelling ctx or calling Stop stops every worker.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for _, worker := range s.workers {
		s.Start(ctx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(ctx, worker)
	}()
}

// Stop cancels every supervised worker, Run returns when they are all gone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Restarts reports how many times the named worker was restarted.
func (s *Supervisor) Restarts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts[name]
}

func (s *Supervisor) supervise(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	log := s.log.With("worker", name)
	failures := 0

	for ctx.Err() == nil {
		startedAt := time.Now()
		err := runGuarded(ctx, worker, log)
		switch {
		case ctx.Err() != nil:
			log.Info("Worker stopped")
			return
		case err == nil:
			log.Info("Worker finished")
			return
		}

		if time.Since(startedAt) > s.maxInterval {
			failures = 0
		}
		failures++
		delay := backoff(s.restartInterval, s.maxInterval, failures)
		log.Warn("Worker failed, restarting", "error", err, "failures", failures, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("Worker stopped")
			return
		case <-timer.C:
		}
		s.mu.Lock()
		s.restarts[name]++
		s.mu.Unlock()
	}
}

// runGuarded turns a panic into ErrWorkerPanic so one faulty worker never
// takes the process down.
func runGuarded(ctx context.Context, worker contract.Worker, log *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panicked", "panic", r)
			err = errors.ErrWorkerPanic
		}
	}()
	return worker.Run(ctx)
}

// backoff is base doubled for every failure after the first, capped at limit.
func backoff(base, limit time.Duration, failures int) time.Duration {
	delay := base
	for i := 1; i < failures && delay < limit; i++ {
		delay *= 2
	}
	return min(delay, limit)
}
