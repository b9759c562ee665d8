package status

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

// ProjectStatus is the polling view of a project's preprocessing state.
type ProjectStatus struct {
	ProjectID         uuid.UUID                 `json:"project_id"`
	ActivePreproJobs  []uuid.UUID               `json:"active_prepro_jobs"`
	ActivePayloads    int64                     `json:"active_payloads"`
	ErroredPayloadIDs []uuid.UUID               `json:"errored_payload_ids"`
	FinishedDocuments int64                     `json:"finished_documents"`
	TotalDocuments    int64                     `json:"total_documents"`
	DocumentsByStatus map[types.DocStatus]int64 `json:"documents_by_status"`
	InProgress        bool                      `json:"in_progress"`
}

type Service interface {
	ProjectStatus(ctx context.Context, projectID uuid.UUID) (*ProjectStatus, error)
}

type service struct {
	log *logger.Logger
	set *repos.Set
}

func NewService(baseLog *logger.Logger, set *repos.Set) Service {
	return &service{log: baseLog.With("service", "StatusService"), set: set}
}

func (s *service) ProjectStatus(ctx context.Context, projectID uuid.UUID) (*ProjectStatus, error) {
	const op = "status.ProjectStatus"
	dbc := dbctx.Context{Ctx: ctx}

	project, err := s.set.Projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, apperrors.New(apperrors.KindNotFound, op, "project not found")
	}

	active, err := s.set.PreproJobs.ListActiveByProject(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("list active prepro jobs: %w", err)
	}
	payloads, err := s.set.PreproJobs.CountActivePayloads(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("count active payloads: %w", err)
	}
	errored, err := s.set.PreproJobs.ListErroredPayloadIDs(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("list errored payloads: %w", err)
	}
	counts, err := s.set.Documents.CountByStatus(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	out := &ProjectStatus{
		ProjectID:         projectID,
		ActivePreproJobs:  make([]uuid.UUID, 0, len(active)),
		ActivePayloads:    payloads,
		ErroredPayloadIDs: errored,
		DocumentsByStatus: counts,
		FinishedDocuments: counts[types.DocStatusFinished],
	}
	if out.ErroredPayloadIDs == nil {
		out.ErroredPayloadIDs = []uuid.UUID{}
	}
	for _, j := range active {
		out.ActivePreproJobs = append(out.ActivePreproJobs, j.ID)
	}
	for _, n := range counts {
		out.TotalDocuments += n
	}
	out.InProgress = len(out.ActivePreproJobs) > 0 || out.ActivePayloads > 0
	return out, nil
}
