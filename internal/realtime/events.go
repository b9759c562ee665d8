package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/domain/jobs"
)

type JobEventKind = jobs.JobEventKind

// JobEvent is published on every job status transition.
type JobEvent struct {
	Kind      JobEventKind `json:"kind"`
	JobID     uuid.UUID    `json:"job_id"`
	ProjectID uuid.UUID    `json:"project_id"`
	JobType   string       `json:"job_type"`
	Status    string       `json:"status"`
	Stage     string       `json:"stage,omitempty"`
	Progress  int          `json:"progress"`
	Message   string       `json:"message,omitempty"`
	At        time.Time    `json:"at"`
}

// JobNotifier fans job events out to whoever listens.
type JobNotifier interface {
	Notify(ctx context.Context, ev JobEvent) error
}

// Waker nudges idle workers of a device so they claim without waiting for
// their next poll tick.
type Waker interface {
	Wake(ctx context.Context, device jobs.Device) error
	Subscribe(ctx context.Context, device jobs.Device) (<-chan struct{}, error)
}

type noopNotifier struct{}

func NoopNotifier() JobNotifier { return noopNotifier{} }

func (noopNotifier) Notify(context.Context, JobEvent) error { return nil }

// LocalWaker serves the in-process worker.
type LocalWaker struct {
	mu   sync.Mutex
	subs map[jobs.Device][]chan struct{}
}

func NewLocalWaker() *LocalWaker {
	return &LocalWaker{subs: map[jobs.Device][]chan struct{}{}}
}

func (w *LocalWaker) Wake(ctx context.Context, device jobs.Device) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs[device] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (w *LocalWaker) Subscribe(ctx context.Context, device jobs.Device) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.subs[device] = append(w.subs[device], ch)
	w.mu.Unlock()
	go func() {
		<-ctx.Done()
		w.mu.Lock()
		defer w.mu.Unlock()
		list := w.subs[device]
		for i, c := range list {
			if c == ch {
				w.subs[device] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}()
	return ch, nil
}
