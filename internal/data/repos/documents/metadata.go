package documents

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type MetadataRepo interface {
	CreateDefinition(dbc dbctx.Context, def *types.ProjectMetadata) error
	GetDefinition(dbc dbctx.Context, projectID uuid.UUID, doctype types.DocType, key string) (*types.ProjectMetadata, error)
	ListDefinitions(dbc dbctx.Context, projectID uuid.UUID, doctype types.DocType) ([]*types.ProjectMetadata, error)
	// CreateValues inserts values, ignoring (document, definition) pairs that already exist.
	CreateValues(dbc dbctx.Context, values []*types.SourceDocumentMetadata) error
	ListValues(dbc dbctx.Context, documentID uuid.UUID) ([]*types.SourceDocumentMetadata, error)
	CountValues(dbc dbctx.Context, definitionID uuid.UUID) (int64, error)
}

type metadataRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetadataRepo(db *gorm.DB, baseLog *logger.Logger) MetadataRepo {
	return &metadataRepo{db: db, log: baseLog.With("repo", "MetadataRepo")}
}

func (r *metadataRepo) CreateDefinition(dbc dbctx.Context, def *types.ProjectMetadata) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(def).Error
}

func (r *metadataRepo) GetDefinition(dbc dbctx.Context, projectID uuid.UUID, doctype types.DocType, key string) (*types.ProjectMetadata, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var def types.ProjectMetadata
	err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND doctype = ? AND meta_key = ?", projectID, doctype, key).
		Take(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *metadataRepo) ListDefinitions(dbc dbctx.Context, projectID uuid.UUID, doctype types.DocType) ([]*types.ProjectMetadata, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("project_id = ?", projectID)
	if doctype != "" {
		q = q.Where("doctype = ?", doctype)
	}
	var out []*types.ProjectMetadata
	if err := q.Order("meta_key ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *metadataRepo) CreateValues(dbc dbctx.Context, values []*types.SourceDocumentMetadata) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(values) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_document_id"}, {Name: "project_metadata_id"}},
			DoNothing: true,
		}).
		CreateInBatches(values, 500).Error
}

func (r *metadataRepo) ListValues(dbc dbctx.Context, documentID uuid.UUID) ([]*types.SourceDocumentMetadata, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SourceDocumentMetadata
	if err := transaction.WithContext(dbc.Ctx).
		Where("source_document_id = ?", documentID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *metadataRepo) CountValues(dbc dbctx.Context, definitionID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.SourceDocumentMetadata{}).
		Where("project_metadata_id = ?", definitionID).
		Count(&n).Error
	return n, err
}
