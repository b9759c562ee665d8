package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	domainjobs "github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/pkg/ctxutil"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/realtime"
)

// Service is the job registry's public face: it validates and enqueues jobs,
// aborts them, and answers status queries.
type Service interface {
	StartJob(ctx context.Context, jobType string, projectID uuid.UUID, payload any) (*types.JobRun, error)
	// Enqueue creates the job inside dbc's transaction. Call Dispatch after commit.
	Enqueue(dbc dbctx.Context, jobType string, projectID uuid.UUID, payload any) (*types.JobRun, error)
	Dispatch(ctx context.Context, runs ...*types.JobRun)
	Abort(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
	Get(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
	ListByProjectAndType(ctx context.Context, projectID uuid.UUID, jobType string) ([]*types.JobRun, error)
	Events(ctx context.Context, id uuid.UUID, limit int) ([]*types.JobRunEvent, error)
}

type service struct {
	log      *logger.Logger
	registry *runtime.Registry
	runs     repos.JobRunRepo
	events   repos.JobRunEventRepo
	notify   realtime.JobNotifier
	waker    realtime.Waker
}

func NewService(baseLog *logger.Logger, registry *runtime.Registry, runs repos.JobRunRepo, events repos.JobRunEventRepo, notify realtime.JobNotifier, waker realtime.Waker) Service {
	if notify == nil {
		notify = realtime.NoopNotifier()
	}
	return &service{
		log:      baseLog.With("service", "JobService"),
		registry: registry,
		runs:     runs,
		events:   events,
		notify:   notify,
		waker:    waker,
	}
}

func (s *service) StartJob(ctx context.Context, jobType string, projectID uuid.UUID, payload any) (*types.JobRun, error) {
	run, err := s.Enqueue(dbctx.Of(ctx), jobType, projectID, payload)
	if err != nil {
		return nil, err
	}
	s.Dispatch(ctx, run)
	return run, nil
}

func (s *service) Enqueue(dbc dbctx.Context, jobType string, projectID uuid.UUID, payload any) (*types.JobRun, error) {
	const op = "start job"
	spec, ok := s.registry.Get(jobType)
	if !ok {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, fmt.Sprintf("unknown job_type=%s", jobType))
	}
	if projectID == uuid.Nil {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, "project_id required")
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, op, err)
	}
	if err := spec.Handler.Validate(raw); err != nil {
		return nil, err
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil && td.RequestID != "" {
		s.log.Debug("Enqueue job", "job_type", jobType, "request_id", td.RequestID)
	}
	run := &types.JobRun{
		ID:        uuid.New(),
		ProjectID: projectID,
		JobType:   jobType,
		Device:    spec.Device,
		Priority:  spec.Priority,
		Status:    domainjobs.StatusWaiting,
		Stage:     "queued",
		Payload:   datatypes.JSON(raw),
	}
	if _, err := s.runs.Create(dbc, []*types.JobRun{run}); err != nil {
		return nil, fmt.Errorf("create job run: %w", err)
	}
	if err := s.events.Create(dbc, []*types.JobRunEvent{{
		JobID:     run.ID,
		ProjectID: projectID,
		JobType:   jobType,
		Kind:      string(domainjobs.JobEventCreated),
		Status:    run.Status,
		Stage:     run.Stage,
	}}); err != nil {
		return nil, fmt.Errorf("append job event: %w", err)
	}
	return run, nil
}

// Dispatch publishes creation events and wakes idle workers of each device.
func (s *service) Dispatch(ctx context.Context, runs ...*types.JobRun) {
	woken := map[types.Device]bool{}
	for _, run := range runs {
		if run == nil {
			continue
		}
		_ = s.notify.Notify(ctx, realtime.JobEvent{
			Kind:      domainjobs.JobEventCreated,
			JobID:     run.ID,
			ProjectID: run.ProjectID,
			JobType:   run.JobType,
			Status:    run.Status,
			Stage:     run.Stage,
			At:        time.Now().UTC(),
		})
		if s.waker == nil || woken[run.Device] {
			continue
		}
		woken[run.Device] = true
		if err := s.waker.Wake(ctx, run.Device); err != nil {
			s.log.Warn("Wake workers failed", "device", run.Device, "error", err)
		}
	}
}

func (s *service) Abort(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	const op = "abort job"
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if domainjobs.IsTerminal(run.Status) {
		return run, apperrors.New(apperrors.KindConflict, op, fmt.Sprintf("job already %s", run.Status))
	}
	now := time.Now().UTC()
	ok, err := s.runs.UpdateFieldsUnlessStatus(dbctx.Of(ctx), id, domainjobs.TerminalStatuses, map[string]interface{}{
		"status":      domainjobs.StatusAborted,
		"stage":       "aborted",
		"locked_at":   nil,
		"finished_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("abort job: %w", err)
	}
	if !ok {
		// Lost a race with the worker finishing it.
		current, gerr := s.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return current, apperrors.New(apperrors.KindConflict, op, fmt.Sprintf("job already %s", current.Status))
	}
	run.Status = domainjobs.StatusAborted
	run.Stage = "aborted"
	run.FinishedAt = &now
	if err := s.events.Create(dbctx.Of(ctx), []*types.JobRunEvent{{
		JobID:     run.ID,
		ProjectID: run.ProjectID,
		JobType:   run.JobType,
		Kind:      string(domainjobs.JobEventAborted),
		Status:    run.Status,
		Stage:     run.Stage,
		Progress:  run.Progress,
		Message:   "aborted by request",
	}}); err != nil {
		s.log.Warn("Append abort event failed", "job_id", id, "error", err)
	}
	_ = s.notify.Notify(ctx, realtime.JobEvent{
		Kind:      domainjobs.JobEventAborted,
		JobID:     run.ID,
		ProjectID: run.ProjectID,
		JobType:   run.JobType,
		Status:    run.Status,
		Stage:     run.Stage,
		Progress:  run.Progress,
		Message:   "aborted by request",
		At:        now,
	})
	s.log.Info("Job aborted", "job_id", id, "job_type", run.JobType)
	return run, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	run, err := s.runs.GetByID(dbctx.Of(ctx), id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "get job", "job not found")
	}
	return run, nil
}

func (s *service) ListByProjectAndType(ctx context.Context, projectID uuid.UUID, jobType string) ([]*types.JobRun, error) {
	return s.runs.ListByProjectAndType(dbctx.Of(ctx), projectID, jobType)
}

func (s *service) Events(ctx context.Context, id uuid.UUID, limit int) ([]*types.JobRunEvent, error) {
	return s.events.ListByJob(dbctx.Of(ctx), id, limit)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}
