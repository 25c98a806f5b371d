package ttl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"json-store/internal/logs"
	"json-store/internal/metrics"
	"json-store/internal/repository"
	"json-store/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ---------------- Mock Repository ---------------- */

type mockRepo struct {
	calls int32
	// result decides the outcome of the nth call (1-based).
	result func(n int32) (int64, error)

	mu      sync.Mutex
	befores []time.Time
}

func (m *mockRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n := atomic.AddInt32(&m.calls, 1)

	m.mu.Lock()
	m.befores = append(m.befores, before)
	m.mu.Unlock()

	if m.result == nil {
		return 0, nil
	}
	return m.result(n)
}

func (m *mockRepo) callCount() int32 {
	return atomic.LoadInt32(&m.calls)
}

func newTestSweeper(repo Repository, cfg Config) (*Sweeper, *logs.Logger, *metrics.Registry) {
	logger := logs.NewLogger(100, logs.DEBUG)
	reg := metrics.NewRegistry()
	return NewSweeper(repo, cfg, logger, reg), logger, reg
}

func messages(logger *logs.Logger, level logs.Level) []string {
	var out []string
	for _, e := range logger.GetLast(100) {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

/* ---------------- Tests ---------------- */

func TestNewSweeper_DefaultsInterval(t *testing.T) {
	s, _, _ := newTestSweeper(&mockRepo{}, Config{})
	assert.Equal(t, DefaultInterval, s.cfg.Interval)

	cfg := DefaultConfig()
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.True(t, cfg.RunOnInit)
}

func TestSweeper_Cleanup_NoExpiredRowsIsQuiet(t *testing.T) {
	repo := &mockRepo{}
	s, logger, reg := newTestSweeper(repo, DefaultConfig())

	removed, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	assert.Empty(t, logger.GetLast(10), "no-op sweeps must not log")
	assert.Equal(t, int64(1), reg.Get(metrics.SweepRunsTotal))
	assert.Equal(t, int64(0), reg.Get(metrics.SweepRemovedTotal))
}

func TestSweeper_Cleanup_LogsSummaryWhenRowsRemoved(t *testing.T) {
	repo := &mockRepo{result: func(int32) (int64, error) { return 4, nil }}
	s, logger, reg := newTestSweeper(repo, DefaultConfig())

	before := time.Now()
	removed, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	infos := messages(logger, logs.INFO)
	require.Len(t, infos, 1)
	assert.Equal(t, "cleanup removed 4 expired entries", infos[0])
	assert.Equal(t, int64(4), reg.Get(metrics.SweepRemovedTotal))

	// The cutoff is the clock at invocation.
	require.Len(t, repo.befores, 1)
	assert.WithinDuration(t, before, repo.befores[0], time.Second)
}

func TestSweeper_Cleanup_ErrorIsLoggedAndReturned(t *testing.T) {
	storageErr := errors.New("database is locked")
	repo := &mockRepo{result: func(int32) (int64, error) { return 0, storageErr }}
	s, logger, reg := newTestSweeper(repo, DefaultConfig())

	removed, err := s.Cleanup(context.Background())
	assert.Equal(t, int64(0), removed)
	assert.ErrorIs(t, err, storageErr)

	assert.Equal(t, []string{"cleanup failed"}, messages(logger, logs.ERROR))
	assert.Equal(t, int64(1), reg.Get(metrics.SweepFailuresTotal))
}

func TestSweeper_Cleanup_DeletesOnlyPastExpiries(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.OpenSQL(ctx, ":memory:")
	require.NoError(t, err)
	defer repo.Close()

	now := time.Now().UTC()
	rows := []store.Entry{
		{Key: "past", Payload: `1`, ExpiresAt: now.Add(-time.Hour), CreatedAt: now, UpdatedAt: now},
		{Key: "future", Payload: `2`, ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now},
		{Key: "never", Payload: `3`, CreatedAt: now, UpdatedAt: now},
	}
	for _, row := range rows {
		_, err := repo.Upsert(ctx, row)
		require.NoError(t, err)
	}

	s, _, _ := newTestSweeper(repo, DefaultConfig())

	removed, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	gone, err := repo.FindByKey(ctx, "past")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSweeper_Start_RunsOnInitSynchronously(t *testing.T) {
	repo := &mockRepo{}
	s, logger, _ := newTestSweeper(repo, Config{Interval: time.Hour, RunOnInit: true})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, int32(1), repo.callCount())
	assert.True(t, s.Running())

	infos := messages(logger, logs.INFO)
	require.NotEmpty(t, infos)
	assert.True(t, strings.Contains(infos[len(infos)-1], "1h0m0s"), "start logs the configured interval")
}

func TestSweeper_Start_WithoutRunOnInit(t *testing.T) {
	repo := &mockRepo{}
	s, _, _ := newTestSweeper(repo, Config{Interval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, int32(0), repo.callCount())
	assert.True(t, s.Running())
}

func TestSweeper_Start_InitialFailureStillArmsTimer(t *testing.T) {
	storageErr := errors.New("no such table")
	repo := &mockRepo{result: func(n int32) (int64, error) {
		if n == 1 {
			return 0, storageErr
		}
		return 0, nil
	}}
	s, _, _ := newTestSweeper(repo, Config{Interval: 5 * time.Millisecond, RunOnInit: true})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, storageErr)
	defer s.Stop()

	assert.True(t, s.Running())
	assert.Eventually(t, func() bool {
		return repo.callCount() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestSweeper_Start_RunsPeriodically(t *testing.T) {
	repo := &mockRepo{}
	s, _, reg := newTestSweeper(repo, Config{Interval: 5 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return reg.Get(metrics.SweepRunsTotal) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSweeper_ScheduledFailureKeepsSchedule(t *testing.T) {
	storageErr := errors.New("connection refused")
	repo := &mockRepo{result: func(n int32) (int64, error) {
		if n <= 2 {
			return 0, storageErr
		}
		return 1, nil
	}}
	s, logger, reg := newTestSweeper(repo, Config{Interval: 5 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return reg.Get(metrics.SweepRemovedTotal) >= 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, s.Running())
	assert.Equal(t, int64(2), reg.Get(metrics.SweepFailuresTotal))
	assert.Len(t, messages(logger, logs.ERROR), 2)
}

func TestSweeper_ScheduledPanicKeepsSchedule(t *testing.T) {
	repo := &mockRepo{result: func(n int32) (int64, error) {
		if n == 1 {
			panic("driver bug")
		}
		return 0, nil
	}}
	s, _, reg := newTestSweeper(repo, Config{Interval: 5 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return repo.callCount() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), reg.Get(metrics.SweepFailuresTotal))
}

func TestSweeper_Stop_IsIdempotent(t *testing.T) {
	s, _, _ := newTestSweeper(&mockRepo{}, Config{Interval: time.Hour})

	assert.NotPanics(t, func() {
		s.Stop()
	}, "stop before start is a no-op")

	require.NoError(t, s.Start(context.Background()))

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
	assert.False(t, s.Running())
}

func TestSweeper_Stop_HaltsScheduledRuns(t *testing.T) {
	repo := &mockRepo{}
	s, _, _ := newTestSweeper(repo, Config{Interval: 5 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	callsAtStop := repo.callCount()
	time.Sleep(30 * time.Millisecond)

	// Allow at most one extra pass due to a race with the ticker
	assert.LessOrEqual(t, repo.callCount(), callsAtStop+1)
}

func TestSweeper_Start_TwiceArmsOneTimer(t *testing.T) {
	repo := &mockRepo{}
	s, _, _ := newTestSweeper(repo, Config{Interval: time.Hour, RunOnInit: true})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
}

func TestSweeper_Start_StopsOnContextCancel(t *testing.T) {
	repo := &mockRepo{}
	s, _, _ := newTestSweeper(repo, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	cancel()

	callsAtCancel := repo.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, repo.callCount(), callsAtCancel+1)
}

func TestSweeper_Start_RearmsAfterContextCancel(t *testing.T) {
	repo := &mockRepo{}
	s, _, _ := newTestSweeper(repo, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	require.True(t, s.Running())

	cancel()
	assert.Eventually(t, func() bool { return !s.Running() },
		time.Second, 5*time.Millisecond, "loop exit must disarm the sweeper")

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.True(t, s.Running())

	callsAtRestart := repo.callCount()
	assert.Eventually(t, func() bool { return repo.callCount() >= callsAtRestart+2 },
		time.Second, 5*time.Millisecond, "restarted timer must keep ticking")
}

func TestSweeper_StaleLoopDoesNotClearNewTimer(t *testing.T) {
	s, _, _ := newTestSweeper(&mockRepo{}, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// The first loop exits after the second was armed.
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.Running())
}
