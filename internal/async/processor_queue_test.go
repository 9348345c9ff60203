package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/entity"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, image []byte) entity.VerificationVerdict {
	if string(image) == "good" {
		return entity.VerificationVerdict{IsAuthentic: true, Status: constants.StatusAuthentic}
	}
	return entity.VerificationVerdict{Status: constants.StatusFake}
}

func TestProcessorQueueProcessesAllJobs(t *testing.T) {
	var (
		mu      sync.Mutex
		results = map[string]constants.VerdictStatus{}
	)
	q := NewProcessorQueue(stubVerifier{}, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithWorkers(3),
		WithQueueSize(2),
		WithResultHandler(func(job Job, v entity.VerificationVerdict) {
			mu.Lock()
			defer mu.Unlock()
			results[job.Name] = v.Status
		}),
	)

	ctx := context.Background()
	inputs := map[string]string{"a.png": "good", "b.png": "bad", "c.png": "good", "d.png": "bad", "e.png": "bad"}
	for name, body := range inputs {
		if err := q.Enqueue(ctx, NewJob(name, []byte(body))); err != nil {
			t.Fatalf("Enqueue(%s): %v", name, err)
		}
	}
	q.Shutdown(ctx)

	if len(results) != len(inputs) {
		t.Fatalf("got %d results, want %d", len(results), len(inputs))
	}
	for name, body := range inputs {
		want := constants.StatusFake
		if body == "good" {
			want = constants.StatusAuthentic
		}
		if results[name] != want {
			t.Errorf("%s: status %s, want %s", name, results[name], want)
		}
	}
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(stubVerifier{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background()) // idempotent

	err := q.Enqueue(context.Background(), NewJob("late.png", nil))
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("err = %v, want ErrQueueClosed", err)
	}
}
