package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type AnnotationRepo interface {
	CreateSpans(dbc dbctx.Context, spans []*types.AutoSpan) error
	CreateBBoxes(dbc dbctx.Context, boxes []*types.AutoBBox) error
	ListSpans(dbc dbctx.Context, documentID uuid.UUID) ([]*types.AutoSpan, error)
	ListBBoxes(dbc dbctx.Context, documentID uuid.UUID) ([]*types.AutoBBox, error)
}

type annotationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnnotationRepo(db *gorm.DB, baseLog *logger.Logger) AnnotationRepo {
	return &annotationRepo{db: db, log: baseLog.With("repo", "AnnotationRepo")}
}

func (r *annotationRepo) CreateSpans(dbc dbctx.Context, spans []*types.AutoSpan) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(spans) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).CreateInBatches(spans, 500).Error
}

func (r *annotationRepo) CreateBBoxes(dbc dbctx.Context, boxes []*types.AutoBBox) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(boxes) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).CreateInBatches(boxes, 500).Error
}

func (r *annotationRepo) ListSpans(dbc dbctx.Context, documentID uuid.UUID) ([]*types.AutoSpan, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AutoSpan
	err := transaction.WithContext(dbc.Ctx).Where("source_document_id = ?", documentID).Order("begin_offset ASC").Find(&out).Error
	return out, err
}

func (r *annotationRepo) ListBBoxes(dbc dbctx.Context, documentID uuid.UUID) ([]*types.AutoBBox, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AutoBBox
	err := transaction.WithContext(dbc.Ctx).Where("source_document_id = ?", documentID).Find(&out).Error
	return out, err
}
