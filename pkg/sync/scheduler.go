package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdejongh/davsync/pkg/logging"
	"github.com/sdejongh/davsync/pkg/models"
)

// Passer runs one synchronisation pass
type Passer interface {
	Synchronize(ctx context.Context) (*models.SyncPassResult, error)
}

// Scheduler starts passes on a fixed interval and on demand. Requests that
// arrive while a pass is running are dropped, not queued.
type Scheduler struct {
	passer Passer
	logger logging.Logger

	trigger  chan struct{}
	reconfig chan struct{}

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	onResult func(*models.SyncPassResult, error)

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with periodic passes disabled
func NewScheduler(passer Passer, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Scheduler{
		passer:   passer,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		reconfig: make(chan struct{}, 1),
	}
}

// OnResult registers a callback run after every pass the scheduler starts
func (s *Scheduler) OnResult(fn func(*models.SyncPassResult, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Reconfigure enables or disables periodic passes and sets their interval.
// The timer restarts; a pass in flight is not affected.
func (s *Scheduler) Reconfigure(enabled bool, interval time.Duration) {
	s.mu.Lock()
	s.enabled = enabled
	s.interval = interval
	s.mu.Unlock()

	select {
	case s.reconfig <- struct{}{}:
	default:
	}
}

// Schedule returns the current periodic settings
func (s *Scheduler) Schedule() (enabled bool, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, s.interval
}

// Trigger requests a pass as soon as possible. It never blocks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Running reports whether a pass started by the scheduler is in flight
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wait blocks until the pass in flight, if any, has finished
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Run drives the scheduler until ctx is cancelled, then waits for the
// pass in flight
func (s *Scheduler) Run(ctx context.Context) error {
	var ticker *time.Ticker
	var tick <-chan time.Time

	reset := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		enabled, interval := s.Schedule()
		if enabled && interval > 0 {
			ticker = time.NewTicker(interval)
			tick = ticker.C
		}
		s.logger.Debug(ctx, "schedule updated", logging.Fields{"enabled": enabled, "interval": interval.String()})
	}
	reset()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-s.reconfig:
			reset()
		case <-tick:
			s.start(ctx, "timer")
		case <-s.trigger:
			s.start(ctx, "trigger")
		}
	}
}

// start launches a pass unless one is already running
func (s *Scheduler) start(ctx context.Context, reason string) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug(ctx, "sync already running, request dropped", logging.Fields{"source": reason})
		return
	}

	s.mu.Lock()
	onResult := s.onResult
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		result, err := s.passer.Synchronize(ctx)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			s.logger.Debug(ctx, "sync already running, request dropped", logging.Fields{"source": reason})
			return
		case err != nil:
			s.logger.Warn(ctx, "scheduled sync failed", logging.Fields{"source": reason, "error": err.Error()})
		}
		if onResult != nil {
			onResult(result, err)
		}
	}()
}
