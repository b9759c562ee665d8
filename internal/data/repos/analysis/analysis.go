package analysis

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type TagRecommendationRepo interface {
	// Upsert replaces unreviewed recommendations for the same (document, tag).
	Upsert(dbc dbctx.Context, links []*types.TagRecommendationLink) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.TagRecommendationLink, error)
	ListPending(dbc dbctx.Context, projectID uuid.UUID) ([]*types.TagRecommendationLink, error)
	MarkReviewed(dbc dbctx.Context, id uuid.UUID, accepted bool) (bool, error)
}

type tagRecommendationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagRecommendationRepo(db *gorm.DB, baseLog *logger.Logger) TagRecommendationRepo {
	return &tagRecommendationRepo{db: db, log: baseLog.With("repo", "TagRecommendationRepo")}
}

func (r *tagRecommendationRepo) Upsert(dbc dbctx.Context, links []*types.TagRecommendationLink) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(links) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_document_id"}, {Name: "predicted_tag_id"}},
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "tag_recommendation_link", Name: "is_reviewed"}, Value: false},
			}},
			DoUpdates: clause.AssignmentColumns([]string{"job_id", "prediction_score", "updated_at"}),
		}).
		Create(&links).Error
}

func (r *tagRecommendationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.TagRecommendationLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TagRecommendationLink
	if len(ids) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (r *tagRecommendationRepo) ListPending(dbc dbctx.Context, projectID uuid.UUID) ([]*types.TagRecommendationLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TagRecommendationLink
	err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND is_reviewed = ?", projectID, false).
		Order("prediction_score DESC").
		Find(&out).Error
	return out, err
}

// MarkReviewed reports false when the link was already reviewed.
func (r *tagRecommendationRepo) MarkReviewed(dbc dbctx.Context, id uuid.UUID, accepted bool) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.TagRecommendationLink{}).
		Where("id = ? AND is_reviewed = ?", id, false).
		Updates(map[string]interface{}{"is_reviewed": true, "accepted": accepted, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

type DuplicateClusterRepo interface {
	ReplaceForProject(dbc dbctx.Context, projectID uuid.UUID, clusters []*types.DuplicateCluster) error
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.DuplicateCluster, error)
}

type duplicateClusterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDuplicateClusterRepo(db *gorm.DB, baseLog *logger.Logger) DuplicateClusterRepo {
	return &duplicateClusterRepo{db: db, log: baseLog.With("repo", "DuplicateClusterRepo")}
}

func (r *duplicateClusterRepo) ReplaceForProject(dbc dbctx.Context, projectID uuid.UUID, clusters []*types.DuplicateCluster) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("project_id = ?", projectID).Delete(&types.DuplicateCluster{}).Error; err != nil {
			return err
		}
		if len(clusters) == 0 {
			return nil
		}
		return txx.Create(&clusters).Error
	})
}

func (r *duplicateClusterRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.DuplicateCluster, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DuplicateCluster
	err := transaction.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Find(&out).Error
	return out, err
}

type COTARepo interface {
	Create(dbc dbctx.Context, c *types.COTA) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.COTA, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
	ReplaceSearchSpace(dbc dbctx.Context, cotaID uuid.UUID, rows []*types.COTASentence) error
	ListSearchSpace(dbc dbctx.Context, cotaID uuid.UUID) ([]*types.COTASentence, error)
}

type cotaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCOTARepo(db *gorm.DB, baseLog *logger.Logger) COTARepo {
	return &cotaRepo{db: db, log: baseLog.With("repo", "COTARepo")}
}

func (r *cotaRepo) Create(dbc dbctx.Context, c *types.COTA) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(c).Error
}

func (r *cotaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.COTA, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var c types.COTA
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cotaRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.COTA{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *cotaRepo) ReplaceSearchSpace(dbc dbctx.Context, cotaID uuid.UUID, rows []*types.COTASentence) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("cota_id = ?", cotaID).Delete(&types.COTASentence{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return txx.CreateInBatches(rows, 500).Error
	})
}

func (r *cotaRepo) ListSearchSpace(dbc dbctx.Context, cotaID uuid.UUID) ([]*types.COTASentence, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.COTASentence
	err := transaction.WithContext(dbc.Ctx).
		Where("cota_id = ?", cotaID).
		Order("source_document_id ASC").Order("sentence_id ASC").
		Find(&out).Error
	return out, err
}
