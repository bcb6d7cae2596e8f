package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	queue.Start(context.Background())
	defer queue.Stop()

	id, err := queue.Enqueue(Job{Type: "classify"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried to success")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueRecoversFromPanics(t *testing.T) {
	calls := make(chan int, 4)
	var n int32
	queue := NewQueue("panicky", func(ctx context.Context, job Job) error {
		calls <- int(atomic.AddInt32(&n, 1))
		if job.Attempt == 0 {
			panic("boom")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 1, RetryDelay: time.Millisecond})
	queue.Start(context.Background())
	defer queue.Stop()

	_, err := queue.Enqueue(Job{Type: "mail"})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		select {
		case got := <-calls:
			assert.Equal(t, i, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("call %d missing", i)
		}
	}
}

func TestQueueEnqueueRequiresStart(t *testing.T) {
	queue := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	_, err := queue.Enqueue(Job{Type: "x"})
	require.Error(t, err)
}

func TestQueueEnqueueDoesNotBlockWhenFull(t *testing.T) {
	release := make(chan struct{})
	queue := NewQueue("full", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	queue.Start(context.Background())
	defer func() {
		close(release)
		queue.Stop()
	}()

	var full bool
	for i := 0; i < 5; i++ {
		if _, err := queue.Enqueue(Job{Type: "x"}); err != nil {
			require.ErrorIs(t, err, ErrQueueFull)
			full = true
			break
		}
	}
	assert.True(t, full)
}
