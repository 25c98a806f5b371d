package ttl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"json-store/internal/logs"
	"json-store/internal/metrics"
)

// DefaultInterval is the sweep period used when Config.Interval is not set.
const DefaultInterval = time.Hour

// Repository defines the minimal contract required by the sweeper.
// This keeps the sweeper decoupled from the concrete storage implementation.
type Repository interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Config controls the sweep schedule.
type Config struct {
	// Interval between scheduled passes. Non-positive means DefaultInterval.
	Interval time.Duration
	// RunOnInit performs one pass synchronously inside Start, before the timer is armed.
	RunOnInit bool
}

func DefaultConfig() Config {
	return Config{
		Interval:  DefaultInterval,
		RunOnInit: true,
	}
}

// Sweeper periodically removes entries whose expiry has passed,
// independent of whether they are ever read.
type Sweeper struct {
	repo    Repository
	cfg     Config
	logger  *logs.Logger
	metrics *metrics.Registry
	now     func() time.Time

	mu   sync.Mutex
	loop *loopHandle
}

// loopHandle identifies one armed timer so an exiting loop only clears its own
// registration.
type loopHandle struct {
	cancel context.CancelFunc
}

// NewSweeper creates a new, idle Sweeper.
func NewSweeper(
	repo Repository,
	cfg Config,
	logger *logs.Logger,
	metricsRegistry *metrics.Registry,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Sweeper{
		repo:    repo,
		cfg:     cfg,
		logger:  logger.With("component", "sweeper"),
		metrics: metricsRegistry,
		now:     time.Now,
	}
}

// Start runs the initial pass (if configured) and arms the recurring timer.
//
// The timer is armed even when the initial pass fails; that failure is returned
// so the host can decide whether to keep running. Calling Start on a running
// Sweeper does not arm a second timer. The timer also stops when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	var initErr error
	if s.cfg.RunOnInit {
		_, initErr = s.Cleanup(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop != nil {
		return initErr
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &loopHandle{cancel: cancel}
	s.loop = h
	go s.run(loopCtx, h)

	s.logger.Info(
		fmt.Sprintf("sweeper scheduled every %s", s.cfg.Interval),
		"interval", s.cfg.Interval.String(),
		"run_on_init", s.cfg.RunOnInit,
	)
	return initErr
}

// Stop cancels the recurring timer. It is safe to call more than once and
// before Start. A pass already in flight is not waited for.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop == nil {
		return
	}
	s.loop.cancel()
	s.loop = nil
}

// Running reports whether the recurring timer is armed. It turns false once
// the loop exits, whether through Stop or the Start context ending.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}

func (s *Sweeper) run(ctx context.Context, h *loopHandle) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.release(h)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			s.logger.Debug("sweeper stopped")
			return
		}
	}
}

// release clears h if it is still the armed loop, so a later Start can arm
// a new timer.
func (s *Sweeper) release(h *loopHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop == h {
		s.loop = nil
	}
	h.cancel()
}

// runOnce is the scheduling boundary: failures are logged and swallowed so
// the next tick still fires.
func (s *Sweeper) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Inc(metrics.SweepFailuresTotal)
			s.logger.Error(fmt.Sprintf("panic in scheduled cleanup: %v", r))
		}
	}()

	if _, err := s.Cleanup(ctx); err != nil {
		s.logger.Warn("scheduled cleanup failed, next run stays scheduled",
			"next_run_in", s.cfg.Interval.String())
	}
}

// Cleanup deletes, in one bulk operation, every entry whose expiry is before
// the current time and returns how many were removed. Entries without an
// expiry are never touched. Storage failures are logged and returned.
func (s *Sweeper) Cleanup(ctx context.Context) (int64, error) {
	runID := uuid.NewString()
	s.metrics.Inc(metrics.SweepRunsTotal)

	removed, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		s.metrics.Inc(metrics.SweepFailuresTotal)
		s.logger.Error("cleanup failed", "run_id", runID, "error", err)
		return 0, errors.Wrap(err, "cleanup expired entries")
	}

	if removed > 0 {
		s.metrics.Add(metrics.SweepRemovedTotal, removed)
		s.logger.Info(
			fmt.Sprintf("cleanup removed %d expired entries", removed),
			"run_id", runID,
			"removed", removed,
		)
	}
	return removed, nil
}
