package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type TagRepo interface {
	Create(dbc dbctx.Context, tag *types.DocumentTag) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DocumentTag, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.DocumentTag, error)
	// Link is idempotent.
	Link(dbc dbctx.Context, documentID uuid.UUID, tagIDs []uuid.UUID) error
	LinksByDocuments(dbc dbctx.Context, documentIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
}

type tagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagRepo(db *gorm.DB, baseLog *logger.Logger) TagRepo {
	return &tagRepo{db: db, log: baseLog.With("repo", "TagRepo")}
}

func (r *tagRepo) Create(dbc dbctx.Context, tag *types.DocumentTag) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(tag).Error
}

func (r *tagRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DocumentTag, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentTag
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *tagRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.DocumentTag, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentTag
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *tagRepo) Link(dbc dbctx.Context, documentID uuid.UUID, tagIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tagIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	links := make([]*types.SourceDocumentTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		links = append(links, &types.SourceDocumentTag{SourceDocumentID: documentID, DocumentTagID: id, CreatedAt: now})
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&links).Error
}

func (r *tagRepo) LinksByDocuments(dbc dbctx.Context, documentIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[uuid.UUID][]uuid.UUID{}
	if len(documentIDs) == 0 {
		return out, nil
	}
	var links []*types.SourceDocumentTag
	if err := transaction.WithContext(dbc.Ctx).
		Where("source_document_id IN ?", documentIDs).
		Find(&links).Error; err != nil {
		return nil, err
	}
	for _, l := range links {
		out[l.SourceDocumentID] = append(out[l.SourceDocumentID], l.DocumentTagID)
	}
	return out, nil
}
