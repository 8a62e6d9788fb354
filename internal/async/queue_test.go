package async

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/pipeline"
)

type fakeRunner struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) <-chan pipeline.Event {
	out := make(chan pipeline.Event, 2)
	go func() {
		defer close(out)
		if f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
			}
		}
		f.mu.Lock()
		f.seen = append(f.seen, req.RunID)
		f.mu.Unlock()
		out <- pipeline.Event{Type: pipeline.EventStatus, Step: constants.StepInit, RunID: req.RunID}
		out <- pipeline.Event{Type: pipeline.EventResult, Step: constants.StepDone, RunID: req.RunID}
	}()
	return out
}

func (f *fakeRunner) runs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProcessorQueue_RunsEveryJob(t *testing.T) {
	r := &fakeRunner{}
	q := NewProcessorQueue(r, quiet(), WithWorkers(2), WithQueueSize(4))

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(context.Background(), Job{Request: pipeline.Request{TenantID: "t1"}})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.ElementsMatch(t, ids, r.runs())
}

func TestProcessorQueue_KeepsCallerRunID(t *testing.T) {
	r := &fakeRunner{}
	q := NewProcessorQueue(r, quiet(), WithWorkers(1))

	id, err := q.Enqueue(context.Background(), Job{Request: pipeline.Request{RunID: "run-1"}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	q.Shutdown(context.Background())
	assert.Equal(t, []string{"run-1"}, r.runs())
}

func TestProcessorQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&fakeRunner{}, quiet(), WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	_, err := q.Enqueue(context.Background(), Job{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProcessorQueue_FullQueueHonoursContext(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	q := NewProcessorQueue(r, quiet(), WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(r.block)
		q.Shutdown(context.Background())
	}()

	// one job held by the worker, one filling the buffer
	_, err := q.Enqueue(context.Background(), Job{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, 5*time.Millisecond)
	_, err = q.Enqueue(context.Background(), Job{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Enqueue(ctx, Job{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
