package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domainintel/internal/analysis/metrics"
	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/store"
)

const staleAfter = 30 * 24 * time.Hour

func ptr(t time.Time) *time.Time { return &t }

func TestNeedsRescan(t *testing.T) {
	tests := []struct {
		name string
		rec  models.DomainRecord
		want bool
	}{
		{name: "never scanned", rec: models.DomainRecord{Status: models.StatusCompleted}, want: true},
		{name: "exactly stale", rec: models.DomainRecord{Status: models.StatusCompleted, LastScanAt: ptr(fixedNow.Add(-staleAfter))}, want: true},
		{name: "one millisecond younger", rec: models.DomainRecord{Status: models.StatusCompleted, LastScanAt: ptr(fixedNow.Add(-staleAfter + time.Millisecond))}, want: false},
		{name: "stale error", rec: models.DomainRecord{Status: models.StatusError, LastScanAt: ptr(fixedNow.Add(-40 * 24 * time.Hour))}, want: true},
		{name: "fresh error", rec: models.DomainRecord{Status: models.StatusError, LastScanAt: ptr(fixedNow.Add(-time.Hour))}, want: false},
		{name: "pending", rec: models.DomainRecord{Status: models.StatusPending}, want: false},
		{name: "unrecognized", rec: models.DomainRecord{Status: "analyzing"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsRescan(&tt.rec, fixedNow, staleAfter))
		})
	}
}

func newTestScheduler(t *testing.T, st *store.InMemory, runner Runner, opts ...Option) *Scheduler {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	s, err := NewScheduler(st, runner, SchedulerConfig{Tick: time.Hour, TicksPerPass: 30, StaleAfter: staleAfter}, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSchedulerValidatesConfig(t *testing.T) {
	st := store.NewInMemory()
	_, err := NewScheduler(st, &fakeRunner{}, SchedulerConfig{Tick: time.Hour, TicksPerPass: 0, StaleAfter: staleAfter})
	assert.Error(t, err)
	_, err = NewScheduler(nil, &fakeRunner{}, SchedulerConfig{Tick: time.Hour, TicksPerPass: 1, StaleAfter: staleAfter})
	assert.Error(t, err)
}

func TestRunPassRescansOnlyStaleFinishedRecords(t *testing.T) {
	st := store.NewInMemory()
	st.Put(models.DomainRecord{Domain: "stale.com", Status: models.StatusCompleted, LastScanAt: ptr(fixedNow.Add(-staleAfter))})
	st.Put(models.DomainRecord{Domain: "fresh.com", Status: models.StatusCompleted, LastScanAt: ptr(fixedNow.Add(-time.Hour))})
	st.Put(models.DomainRecord{Domain: "pending.com", Status: models.StatusPending})
	st.Put(models.DomainRecord{Domain: "never.com", Status: models.StatusError})

	runner := &fakeRunner{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newTestScheduler(t, st, runner, WithMetrics(m))

	stats := s.RunPass(context.Background())

	assert.ElementsMatch(t, []string{"stale.com", "never.com"}, runner.domains())
	for _, src := range runner.sources {
		assert.Equal(t, models.SourceScheduler, src)
	}
	assert.Equal(t, PassStats{Examined: 4, Rescanned: 2}, stats)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SchedulerRescans))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerPasses))
}

func TestRunPassContinuesAfterFailure(t *testing.T) {
	st := store.NewInMemory()
	st.Put(models.DomainRecord{Domain: "a.com", Status: models.StatusCompleted})
	st.Put(models.DomainRecord{Domain: "b.com", Status: models.StatusCompleted})

	runner := &fakeRunner{fn: func(domain string) (models.Status, error) {
		if domain == "b.com" {
			return "", errors.New("store down")
		}
		return models.StatusCompleted, nil
	}}
	s := newTestScheduler(t, st, runner)

	stats := s.RunPass(context.Background())

	assert.Len(t, runner.domains(), 2)
	assert.Equal(t, PassStats{Examined: 2, Rescanned: 1, Failed: 1}, stats)
}

func TestRunPassStopsWhenCancelled(t *testing.T) {
	st := store.NewInMemory()
	st.Put(models.DomainRecord{Domain: "a.com", Status: models.StatusCompleted})
	st.Put(models.DomainRecord{Domain: "b.com", Status: models.StatusCompleted})

	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{fn: func(string) (models.Status, error) {
		cancel()
		return models.StatusCompleted, nil
	}}
	s := newTestScheduler(t, st, runner)

	stats := s.RunPass(ctx)

	assert.Len(t, runner.domains(), 1)
	assert.Equal(t, 1, stats.Rescanned)
}

func TestTickRunsPassEveryThirtyTicks(t *testing.T) {
	st := store.NewInMemory()
	st.Put(models.DomainRecord{Domain: "acme.com", Status: models.StatusCompleted})
	runner := &fakeRunner{}
	s := newTestScheduler(t, st, runner)
	ctx := context.Background()

	for i := 1; i < 30; i++ {
		assert.False(t, s.Tick(ctx), "tick %d", i)
		assert.Equal(t, i, s.Ticks())
	}
	assert.Empty(t, runner.domains())

	assert.True(t, s.Tick(ctx))
	assert.Equal(t, 0, s.Ticks())
	assert.Equal(t, []string{"acme.com"}, runner.domains())

	assert.False(t, s.Tick(ctx))
	assert.Equal(t, 1, s.Ticks())
}

func TestRunPassesImmediatelyAndStopsOnCancel(t *testing.T) {
	st := store.NewInMemory()
	st.Put(models.DomainRecord{Domain: "acme.com", Status: models.StatusCompleted})
	runner := &fakeRunner{}
	s := newTestScheduler(t, st, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(runner.domains()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
