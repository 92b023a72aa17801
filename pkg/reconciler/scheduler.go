package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/rs/zerolog"
)

// OwnerLister enumerates owners that have tracked nodes
type OwnerLister interface {
	ListOwners() ([]string, error)
}

// Scheduler refreshes every owner on a fixed interval
type Scheduler struct {
	engine   *Engine
	owners   OwnerLister
	interval time.Duration
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewScheduler creates a scheduler. interval defaults to 30s.
func NewScheduler(engine *Engine, owners OwnerLister, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine:   engine,
		owners:   owners,
		interval: interval,
		logger:   log.WithComponent("scheduler"),
		ctx:      ctx,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop. The first pass runs immediately.
// Starting twice, or after Stop, does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.run()
}

// Stop cancels any in-flight batch and waits for the loop to exit. It
// returns at once if the loop never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if started {
		<-s.doneCh
	}
}

// run is the main scheduling loop
func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.ctx.Done():
			return
		}
	}
}

// tick refreshes each owner in turn
func (s *Scheduler) tick() {
	owners, err := s.owners.ListOwners()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list owners")
		return
	}

	for _, owner := range owners {
		if s.ctx.Err() != nil {
			return
		}
		report := s.engine.Refresh(s.ctx, owner)
		if report.Failed() {
			s.logger.Warn().Err(report.Err).Str("owner", owner).Msg("Scheduled batch failed")
		}
	}
}
