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

type SourceDocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.SourceDocument) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDocument, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SourceDocument, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID, doctype types.DocType, status types.DocStatus) ([]*types.SourceDocument, error)
	FilenamesTaken(dbc dbctx.Context, projectID uuid.UUID, filenames []string) ([]string, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.DocStatus) error
	CountByStatus(dbc dbctx.Context, projectID uuid.UUID) (map[types.DocStatus]int64, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type sourceDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceDocumentRepo(db *gorm.DB, baseLog *logger.Logger) SourceDocumentRepo {
	return &sourceDocumentRepo{db: db, log: baseLog.With("repo", "SourceDocumentRepo")}
}

func (r *sourceDocumentRepo) Create(dbc dbctx.Context, doc *types.SourceDocument) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(doc).Error
}

func (r *sourceDocumentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var doc types.SourceDocument
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *sourceDocumentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SourceDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SourceDocument
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByProject filters by doctype and status when they are non-empty.
func (r *sourceDocumentRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID, doctype types.DocType, status types.DocStatus) ([]*types.SourceDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("project_id = ?", projectID)
	if doctype != "" {
		q = q.Where("doctype = ?", doctype)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*types.SourceDocument
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FilenamesTaken returns the subset of filenames already used in the project.
func (r *sourceDocumentRepo) FilenamesTaken(dbc dbctx.Context, projectID uuid.UUID, filenames []string) ([]string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []string
	if len(filenames) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("project_id = ? AND filename IN ?", projectID, filenames).
		Pluck("filename", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceDocumentRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.DocStatus) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *sourceDocumentRepo) CountByStatus(dbc dbctx.Context, projectID uuid.UUID) (map[types.DocStatus]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		Status types.DocStatus
		N      int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Select("status, COUNT(*) AS n").
		Where("project_id = ?", projectID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[types.DocStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

// Delete removes the document and everything derived from it.
func (r *sourceDocumentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		for _, m := range []any{
			&types.SourceDocumentMetadata{},
			&types.SourceDocumentTag{},
			&types.WordFrequency{},
			&types.AutoSpan{},
			&types.AutoBBox{},
		} {
			if err := txx.Where("source_document_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := txx.Where("id = ?", id).Delete(&types.SourceDocumentData{}).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).Delete(&types.SourceDocument{}).Error
	})
}
