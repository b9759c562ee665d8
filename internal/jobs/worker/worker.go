package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	domainjobs "github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/realtime"
)

type Config struct {
	Device       types.Device
	Concurrency  int
	PollInterval time.Duration
	StaleAfter   time.Duration
	ReapInterval time.Duration
}

func ConfigFromEnv(device types.Device) Config {
	return Config{
		Device:       device,
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval: envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		StaleAfter:   envutil.Duration("WORKER_STALE_AFTER", 30*time.Minute),
		ReapInterval: envutil.Duration("WORKER_REAP_INTERVAL", time.Minute),
	}
}

func (c Config) normalized() Config {
	if c.Device == "" {
		c.Device = types.DeviceCPU
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	return c
}

type Worker struct {
	log      *logger.Logger
	cfg      Config
	registry *runtime.Registry
	runs     repos.JobRunRepo
	events   repos.JobRunEventRepo
	notify   realtime.JobNotifier
	waker    realtime.Waker
	wg       sync.WaitGroup
}

func New(baseLog *logger.Logger, cfg Config, registry *runtime.Registry, runs repos.JobRunRepo, events repos.JobRunEventRepo, notify realtime.JobNotifier, waker realtime.Waker) *Worker {
	cfg = cfg.normalized()
	if notify == nil {
		notify = realtime.NoopNotifier()
	}
	return &Worker{
		log:      baseLog.With("component", "JobWorker", "device", cfg.Device),
		cfg:      cfg,
		registry: registry,
		runs:     runs,
		events:   events,
		notify:   notify,
		waker:    waker,
	}
}

// Start launches the claim loops and the stale-job reaper. It returns
// immediately; Wait blocks until ctx is done and every loop has exited.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"job_types", w.registry.Types(w.cfg.Device),
	)
	var wake <-chan struct{}
	if w.waker != nil {
		ch, err := w.waker.Subscribe(ctx, w.cfg.Device)
		if err != nil {
			w.log.Warn("Subscribe to wake channel failed; polling only", "error", err)
		} else {
			wake = ch
		}
	}
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func(workerID int) {
			defer w.wg.Done()
			w.runLoop(ctx, workerID, wake)
		}(i + 1)
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reapLoop(ctx)
	}()
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int, wake <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-wake:
		}
		// Drain the queue before going back to sleep.
		for ctx.Err() == nil {
			ran, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Warn("Claim job failed", "worker_id", workerID, "error", err)
				break
			}
			if !ran {
				break
			}
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Reap(ctx)
		}
	}
}

// Reap moves RUNNING jobs with a stale heartbeat to ERROR. They are never
// retried automatically.
func (w *Worker) Reap(ctx context.Context) int64 {
	n, err := w.runs.ReapStale(dbctx.Of(ctx), w.cfg.StaleAfter, "worker lost")
	if err != nil {
		w.log.Warn("Reap stale jobs failed", "error", err)
		return 0
	}
	if n > 0 {
		w.log.Warn("Reaped stale jobs", "count", n, "stale_after", w.cfg.StaleAfter)
	}
	return n
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.runs.ClaimNextRunnable(dbctx.Of(ctx), w.cfg.Device, nil)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, job)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *types.JobRun) {
	start := time.Now()
	jc := runtime.NewContext(ctx, job, w.runs, w.events, w.notify, w.log)
	jc.Progress("running", 0, "")

	spec, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		observability.Current().ObserveJobRun(job.JobType, jc.Job.Status, time.Since(start))
		return
	}

	spanCtx, span := observability.StartSpan(jc.Ctx, "job."+job.JobType,
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.project_id", job.ProjectID.String()),
	)
	jc.Ctx = spanCtx

	stopBeat := w.heartbeat(jc)
	result, runErr := w.run(spec, jc)
	stopBeat()

	if runErr != nil {
		jc.Fail(jc.Job.Stage, runErr)
		w.log.Warn("Job failed", "job_id", job.ID, "job_type", job.JobType, "error", runErr)
	} else {
		jc.Succeed(result)
	}
	observability.EndSpan(span, runErr)

	// A terminal status set elsewhere (abort) wins over our in-memory view.
	status := jc.Job.Status
	if !domainjobs.IsTerminal(status) {
		if s, err := w.runs.GetStatus(dbctx.Of(ctx), job.ID); err == nil && s != "" {
			status = s
		}
	}
	observability.Current().ObserveJobRun(job.JobType, status, time.Since(start))
}

func (w *Worker) run(spec runtime.Spec, jc *runtime.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic", "job_id", jc.Job.ID, "job_type", jc.Job.JobType, "panic", r)
			result = nil
			err = &panicError{Val: r}
		}
	}()
	return spec.Handler.Run(jc)
}

func (w *Worker) heartbeat(jc *runtime.Context) func() {
	interval := w.cfg.StaleAfter / 3
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-jc.Ctx.Done():
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
