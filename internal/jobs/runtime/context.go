package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/pkg/ctxutil"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/realtime"
)

/*
Context is the execution handle for one claimed job run.

Handlers never touch the job_run row directly. Status, progress and terminal
writes go through this object so that:
  - no write leaves a terminal status (every update is guarded by
    UpdateFieldsUnlessStatus(TerminalStatuses)),
  - every transition lands in the job_run_event ledger,
  - listeners are notified.
*/
type Context struct {
	Ctx    context.Context
	Job    *types.JobRun
	Repo   repos.JobRunRepo
	Events repos.JobRunEventRepo
	Notify realtime.JobNotifier
	Log    *logger.Logger
}

func NewContext(ctx context.Context, job *types.JobRun, repo repos.JobRunRepo, events repos.JobRunEventRepo, notify realtime.JobNotifier, log *logger.Logger) *Context {
	ctx = ctxutil.Default(ctx)
	if job != nil {
		ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
			JobID:     job.ID.String(),
			ProjectID: job.ProjectID.String(),
		})
	}
	if notify == nil {
		notify = realtime.NoopNotifier()
	}
	if log == nil {
		log = logger.Nop()
	}
	if job != nil {
		log = log.With("job_id", job.ID, "job_type", job.JobType)
	}
	return &Context{Ctx: ctx, Job: job, Repo: repo, Events: events, Notify: notify, Log: log}
}

func (c *Context) ProjectID() uuid.UUID {
	if c == nil || c.Job == nil {
		return uuid.Nil
	}
	return c.Job.ProjectID
}

// Update records a human-readable status message without changing status.
// Multi-batch handlers call it once per batch.
func (c *Context) Update(statusMessage string) error {
	if c == nil || c.Job == nil {
		return nil
	}
	now := time.Now().UTC()
	ok, err := c.guardedUpdate(map[string]interface{}{
		"status_message": statusMessage,
		"heartbeat_at":   now,
	})
	if err != nil || !ok {
		return err
	}
	c.Job.StatusMessage = statusMessage
	c.Job.HeartbeatAt = &now
	c.emit(jobs.JobEventProgress, statusMessage)
	return nil
}

// Progress publishes a non-terminal stage/percentage update.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil || c.Job == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	now := time.Now().UTC()
	ok, err := c.guardedUpdate(map[string]interface{}{
		"stage":          stage,
		"progress":       pct,
		"status_message": msg,
		"heartbeat_at":   now,
	})
	if err != nil {
		c.Log.Warn("Persist job progress failed", "error", err)
		return
	}
	if !ok {
		return
	}
	c.Job.Stage = stage
	c.Job.Progress = pct
	c.Job.StatusMessage = msg
	c.Job.HeartbeatAt = &now
	c.emit(jobs.JobEventProgress, msg)
}

// Aborted re-reads the persisted status; abort is cooperative and only
// observed at stage boundaries.
func (c *Context) Aborted() bool {
	if c == nil || c.Job == nil || c.Repo == nil {
		return false
	}
	status, err := c.Repo.GetStatus(dbctx.Of(c.Ctx), c.Job.ID)
	if err != nil {
		c.Log.Warn("Read job status failed", "error", err)
		return false
	}
	return status == jobs.StatusAborted
}

// CheckAbort returns an aborted error when the job was aborted.
func (c *Context) CheckAbort() error {
	if c.Aborted() {
		return apperrors.New(apperrors.KindAborted, "job", "aborted by request")
	}
	return nil
}

// Heartbeat keeps the job from being reaped during long stages.
func (c *Context) Heartbeat() {
	if c == nil || c.Job == nil || c.Repo == nil {
		return
	}
	if err := c.Repo.Heartbeat(dbctx.Of(c.Ctx), c.Job.ID); err != nil {
		c.Log.Warn("Job heartbeat failed", "error", err)
	}
}

// Fail moves the job to ERROR. Aborted errors are recorded as ABORTED.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Job == nil {
		return
	}
	if errors.Is(err, apperrors.ErrAborted) {
		c.finish(jobs.StatusAborted, stage, "", nil, jobs.JobEventAborted)
		return
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.finish(jobs.StatusError, stage, msg, nil, jobs.JobEventFailed)
}

// Succeed moves the job to FINISHED and stores result as JSON.
func (c *Context) Succeed(result any) {
	if c == nil || c.Job == nil {
		return
	}
	var res datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			c.Fail("encode_result", err)
			return
		}
		res = datatypes.JSON(b)
	}
	c.finish(jobs.StatusFinished, "finished", "", res, jobs.JobEventFinished)
}

func (c *Context) finish(status, stage, errMsg string, result datatypes.JSON, kind jobs.JobEventKind) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      status,
		"stage":       stage,
		"error":       errMsg,
		"locked_at":   nil,
		"finished_at": now,
	}
	if status == jobs.StatusFinished {
		updates["progress"] = 100
		updates["result"] = result
	}
	ok, err := c.guardedUpdate(updates)
	if err != nil {
		c.Log.Error("Persist terminal job status failed", "status", status, "error", err)
		return
	}
	if !ok {
		return
	}
	c.Job.Status = status
	c.Job.Stage = stage
	c.Job.Error = errMsg
	c.Job.LockedAt = nil
	c.Job.FinishedAt = &now
	if status == jobs.StatusFinished {
		c.Job.Progress = 100
		c.Job.Result = result
	}
	msg := errMsg
	if msg == "" {
		msg = c.Job.StatusMessage
	}
	c.emit(kind, msg)
}

func (c *Context) guardedUpdate(updates map[string]interface{}) (bool, error) {
	if c.Repo == nil {
		return true, nil
	}
	return c.Repo.UpdateFieldsUnlessStatus(dbctx.Of(c.Ctx), c.Job.ID, jobs.TerminalStatuses, updates)
}

func (c *Context) emit(kind jobs.JobEventKind, msg string) {
	ev := realtime.JobEvent{
		Kind:      kind,
		JobID:     c.Job.ID,
		ProjectID: c.Job.ProjectID,
		JobType:   c.Job.JobType,
		Status:    c.Job.Status,
		Stage:     c.Job.Stage,
		Progress:  c.Job.Progress,
		Message:   msg,
		At:        time.Now().UTC(),
	}
	if c.Events != nil {
		if err := c.Events.Create(dbctx.Of(c.Ctx), []*types.JobRunEvent{{
			JobID:     ev.JobID,
			ProjectID: ev.ProjectID,
			JobType:   ev.JobType,
			Kind:      string(kind),
			Status:    ev.Status,
			Stage:     ev.Stage,
			Progress:  ev.Progress,
			Message:   msg,
		}}); err != nil {
			c.Log.Warn("Append job event failed", "kind", kind, "error", err)
		}
	}
	if err := c.Notify.Notify(c.Ctx, ev); err != nil {
		c.Log.Debug("Job notify failed", "kind", kind, "error", err)
	}
}
