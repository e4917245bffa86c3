package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/courtfile/media-ingest/constants"
)

type countingProcessor struct {
	mu    sync.Mutex
	paths []string
}

func (p *countingProcessor) ProcessMedia(_ context.Context, sourcePath string) *Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, sourcePath)
	return &Outcome{SourcePath: sourcePath, Status: OutcomeSucceeded, Stage: constants.StageDone}
}

// TestQueueProcessesAllJobsBeforeShutdown enqueued work survives Shutdown.
func TestQueueProcessesAllJobsBeforeShutdown(t *testing.T) {
	proc := &countingProcessor{}
	q := NewQueue(proc, nil, WithWorkers(2), WithQueueSize(16), WithProcessTimeout(time.Second))

	want := []string{"/a/one.mp4", "/a/two.wav", "/a/three.mp3"}
	for _, p := range want {
		if err := q.Enqueue(context.Background(), Job{SourcePath: p}); err != nil {
			t.Fatalf("enqueue %s: %v", p, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.paths) != len(want) {
		t.Fatalf("processed %d jobs, want %d", len(proc.paths), len(want))
	}
}

// TestQueueEnqueueAfterShutdownIsDropped double shutdown is also a no-op.
func TestQueueEnqueueAfterShutdownIsDropped(t *testing.T) {
	proc := &countingProcessor{}
	q := NewQueue(proc, nil, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)
	q.Shutdown(ctx)

	if err := q.Enqueue(context.Background(), Job{SourcePath: "/late.mp4"}); err != nil {
		t.Fatalf("enqueue after shutdown: %v", err)
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.paths) != 0 {
		t.Fatalf("processed %v, want none", proc.paths)
	}
}
