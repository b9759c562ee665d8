package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type SourceDocumentDataRepo interface {
	Create(dbc dbctx.Context, data *types.SourceDocumentData) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDocumentData, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SourceDocumentData, error)
	// UpdateHTML rewrites only the html column; text and offsets are immutable.
	UpdateHTML(dbc dbctx.Context, id uuid.UUID, html string) error
}

type sourceDocumentDataRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceDocumentDataRepo(db *gorm.DB, baseLog *logger.Logger) SourceDocumentDataRepo {
	return &sourceDocumentDataRepo{db: db, log: baseLog.With("repo", "SourceDocumentDataRepo")}
}

func (r *sourceDocumentDataRepo) Create(dbc dbctx.Context, data *types.SourceDocumentData) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := data.Validate(); err != nil {
		return err
	}
	return transaction.WithContext(dbc.Ctx).Create(data).Error
}

func (r *sourceDocumentDataRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDocumentData, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var data types.SourceDocumentData
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (r *sourceDocumentDataRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SourceDocumentData, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SourceDocumentData
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceDocumentDataRepo) UpdateHTML(dbc dbctx.Context, id uuid.UUID, html string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.SourceDocumentData{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"html": html, "updated_at": time.Now().UTC()}).Error
}
