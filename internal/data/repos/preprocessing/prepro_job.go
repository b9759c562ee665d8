package preprocessing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/domain/preprocessing"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

var activeStatuses = []preprocessing.Status{preprocessing.StatusWaiting, preprocessing.StatusRunning}

type PreproJobRepo interface {
	Create(dbc dbctx.Context, job *types.PreprocessingJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID, withPayloads bool) (*types.PreprocessingJob, error)
	AddPayloads(dbc dbctx.Context, payloads []*types.PreprocessingJobPayload) error
	GetPayload(dbc dbctx.Context, id uuid.UUID) (*types.PreprocessingJobPayload, error)
	ListPayloads(dbc dbctx.Context, jobID uuid.UUID) ([]*types.PreprocessingJobPayload, error)
	UpdatePayload(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// TransitionPayload moves a non-terminal payload to status. It reports false
	// when the payload was already terminal.
	TransitionPayload(dbc dbctx.Context, id uuid.UUID, status types.PreproStatus, message string) (bool, error)
	RecomputeStatus(dbc dbctx.Context, jobID uuid.UUID) (types.PreproStatus, error)
	MarkAborted(dbc dbctx.Context, jobID uuid.UUID) error
	// SetStatus overrides the aggregate for a job that will never get payloads.
	SetStatus(dbc dbctx.Context, jobID uuid.UUID, status types.PreproStatus) error
	ResetFailedPayloads(dbc dbctx.Context, jobID uuid.UUID) ([]*types.PreprocessingJobPayload, error)
	ListActiveByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.PreprocessingJob, error)
	CountActivePayloads(dbc dbctx.Context, projectID uuid.UUID) (int64, error)
	// ActiveFilenames returns the subset of filenames held by WAITING or
	// RUNNING payloads of the project.
	ActiveFilenames(dbc dbctx.Context, projectID uuid.UUID, filenames []string) ([]string, error)
	ListErroredPayloadIDs(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error)
}

type preproJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPreproJobRepo(db *gorm.DB, baseLog *logger.Logger) PreproJobRepo {
	return &preproJobRepo{db: db, log: baseLog.With("repo", "PreproJobRepo")}
}

func (r *preproJobRepo) Create(dbc dbctx.Context, job *types.PreprocessingJob) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(job).Error
}

func (r *preproJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID, withPayloads bool) (*types.PreprocessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx)
	if withPayloads {
		q = q.Preload("Payloads", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") })
	}
	var job types.PreprocessingJob
	err := q.Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *preproJobRepo) AddPayloads(dbc dbctx.Context, payloads []*types.PreprocessingJobPayload) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(payloads) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&payloads).Error
}

func (r *preproJobRepo) GetPayload(dbc dbctx.Context, id uuid.UUID) (*types.PreprocessingJobPayload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var p types.PreprocessingJobPayload
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *preproJobRepo) ListPayloads(dbc dbctx.Context, jobID uuid.UUID) ([]*types.PreprocessingJobPayload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PreprocessingJobPayload
	if err := transaction.WithContext(dbc.Ctx).
		Where("prepro_job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *preproJobRepo) UpdatePayload(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PreprocessingJobPayload{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *preproJobRepo) TransitionPayload(dbc dbctx.Context, id uuid.UUID, status types.PreproStatus, message string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PreprocessingJobPayload{}).
		Where("id = ? AND status IN ?", id, activeStatuses).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *preproJobRepo) RecomputeStatus(dbc dbctx.Context, jobID uuid.UUID) (types.PreproStatus, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.PreprocessingJob
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", jobID).Take(&job).Error; err != nil {
		return "", err
	}
	var statuses []types.PreproStatus
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.PreprocessingJobPayload{}).
		Where("prepro_job_id = ?", jobID).
		Pluck("status", &statuses).Error; err != nil {
		return "", err
	}
	next := preprocessing.AggregateStatus(job.Aborted, statuses)
	if next != job.Status {
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.PreprocessingJob{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{"status": next, "updated_at": time.Now().UTC()}).Error; err != nil {
			return "", err
		}
	}
	return next, nil
}

func (r *preproJobRepo) MarkAborted(dbc dbctx.Context, jobID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&types.PreprocessingJob{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{"aborted": true, "updated_at": now}).Error; err != nil {
			return err
		}
		if err := txx.Model(&types.PreprocessingJobPayload{}).
			Where("prepro_job_id = ? AND status IN ?", jobID, activeStatuses).
			Updates(map[string]interface{}{"status": preprocessing.StatusAborted, "updated_at": now}).Error; err != nil {
			return err
		}
		_, err := r.RecomputeStatus(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, jobID)
		return err
	})
}

func (r *preproJobRepo) SetStatus(dbc dbctx.Context, jobID uuid.UUID, status types.PreproStatus) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PreprocessingJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *preproJobRepo) ResetFailedPayloads(dbc dbctx.Context, jobID uuid.UUID) ([]*types.PreprocessingJobPayload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PreprocessingJobPayload
	now := time.Now().UTC()
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		failed := []preprocessing.Status{preprocessing.StatusError, preprocessing.StatusAborted}
		if err := txx.Where("prepro_job_id = ? AND status IN ?", jobID, failed).
			Order("created_at ASC").
			Find(&out).Error; err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(out))
		for _, p := range out {
			ids = append(ids, p.ID)
			p.Status = preprocessing.StatusWaiting
			p.ErrorMessage = ""
		}
		if err := txx.Model(&types.PreprocessingJobPayload{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{"status": preprocessing.StatusWaiting, "error_message": "", "updated_at": now}).Error; err != nil {
			return err
		}
		if err := txx.Model(&types.PreprocessingJob{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{"aborted": false, "updated_at": now}).Error; err != nil {
			return err
		}
		_, err := r.RecomputeStatus(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *preproJobRepo) ListActiveByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.PreprocessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PreprocessingJob
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND status IN ?", projectID, activeStatuses).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *preproJobRepo) CountActivePayloads(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PreprocessingJobPayload{}).
		Where("project_id = ? AND status IN ?", projectID, activeStatuses).
		Count(&n).Error
	return n, err
}

func (r *preproJobRepo) ListErroredPayloadIDs(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PreprocessingJobPayload{}).
		Where("project_id = ? AND status = ?", projectID, preprocessing.StatusError).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *preproJobRepo) ActiveFilenames(dbc dbctx.Context, projectID uuid.UUID, filenames []string) ([]string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []string
	if len(filenames) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PreprocessingJobPayload{}).
		Where("project_id = ? AND status IN ? AND filename IN ?", projectID, activeStatuses, filenames).
		Distinct().
		Pluck("filename", &out).Error
	return out, err
}
