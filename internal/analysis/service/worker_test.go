package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domainintel/internal/analysis/models"
	"domainintel/internal/platform/queue"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	sources []models.Source
	fn      func(domain string) (models.Status, error)
}

func (r *fakeRunner) Analyze(_ context.Context, domain string, source models.Source) (models.Status, error) {
	r.mu.Lock()
	r.calls = append(r.calls, domain)
	r.sources = append(r.sources, source)
	fn := r.fn
	r.mu.Unlock()
	if fn != nil {
		return fn(domain)
	}
	return models.StatusCompleted, nil
}

func (r *fakeRunner) domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestNewWorkerRequiresDependencies(t *testing.T) {
	_, err := NewWorker(nil, queue.NewMemory("jobs", 1, nil))
	assert.Error(t, err)
	_, err = NewWorker(&fakeRunner{}, nil)
	assert.Error(t, err)
}

func TestWorkerHandle(t *testing.T) {
	t.Run("analyzes the message domain", func(t *testing.T) {
		runner := &fakeRunner{}
		w, err := NewWorker(runner, queue.NewMemory("jobs", 1, nil))
		require.NoError(t, err)

		err = w.Handle(context.Background(), &queue.Message{Value: []byte(" Acme.COM\n")})

		require.NoError(t, err)
		assert.Equal(t, []string{"acme.com"}, runner.domains())
		assert.Equal(t, []models.Source{models.SourceQueue}, runner.sources)
	})

	t.Run("skips empty messages", func(t *testing.T) {
		runner := &fakeRunner{}
		w, err := NewWorker(runner, queue.NewMemory("jobs", 1, nil))
		require.NoError(t, err)

		require.NoError(t, w.Handle(context.Background(), &queue.Message{}))
		assert.Empty(t, runner.domains())
	})

	t.Run("returns analyzer errors", func(t *testing.T) {
		runner := &fakeRunner{fn: func(string) (models.Status, error) { return "", errors.New("store down") }}
		w, err := NewWorker(runner, queue.NewMemory("jobs", 1, nil))
		require.NoError(t, err)

		assert.EqualError(t, w.Handle(context.Background(), &queue.Message{Value: []byte("acme.com")}), "store down")
	})

	t.Run("recovers panics", func(t *testing.T) {
		runner := &fakeRunner{fn: func(string) (models.Status, error) { panic("boom") }}
		w, err := NewWorker(runner, queue.NewMemory("jobs", 1, nil))
		require.NoError(t, err)

		err = w.Handle(context.Background(), &queue.Message{Value: []byte("acme.com")})
		assert.ErrorContains(t, err, "panicked")
	})
}

func TestWorkerRunKeepsConsumingAfterFailures(t *testing.T) {
	q := queue.NewMemory("jobs", 8, nil)
	runner := &fakeRunner{fn: func(domain string) (models.Status, error) {
		if domain == "bad.com" {
			panic("boom")
		}
		return models.StatusCompleted, nil
	}}
	w, err := NewWorker(runner, q)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, d := range []string{"bad.com", "acme.com", "globex.com"} {
		require.NoError(t, q.Publish(ctx, d))
	}

	assert.Eventually(t, func() bool { return len(runner.domains()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"bad.com", "acme.com", "globex.com"}, runner.domains())

	cancel()
	assert.NoError(t, <-done)
}

// flakyConsumer fails its first Consume calls, then delivers one message and
// blocks until cancelled.
type flakyConsumer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *flakyConsumer) Consume(ctx context.Context, handler queue.Handler) error {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.failures
	c.mu.Unlock()
	if fail {
		return errors.New("commit offset 7: REBALANCE_IN_PROGRESS")
	}
	_ = handler(ctx, &queue.Message{Topic: "jobs", Value: []byte("acme.com")})
	<-ctx.Done()
	return nil
}

func (c *flakyConsumer) Close() error { return nil }

func (c *flakyConsumer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestWorkerRunRestartsAfterConsumerError(t *testing.T) {
	consumer := &flakyConsumer{failures: 2}
	runner := &fakeRunner{}
	w, err := NewWorker(runner, consumer)
	require.NoError(t, err)
	w.restartBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(runner.domains()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, consumer.callCount())

	select {
	case err := <-done:
		t.Fatalf("worker stopped after a transient consumer error: %v", err)
	default:
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWorkerRunStopsWhenConsumerCloses(t *testing.T) {
	q := queue.NewMemory("jobs", 1, nil)
	w, err := NewWorker(&fakeRunner{}, q)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	assert.NoError(t, w.Run(context.Background()))
}
