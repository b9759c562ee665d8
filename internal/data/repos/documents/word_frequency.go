package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type WordFrequencyRepo interface {
	Create(dbc dbctx.Context, rows []*types.WordFrequency) error
	ListByDocuments(dbc dbctx.Context, documentIDs []uuid.UUID) (map[uuid.UUID]map[string]int, error)
}

type wordFrequencyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWordFrequencyRepo(db *gorm.DB, baseLog *logger.Logger) WordFrequencyRepo {
	return &wordFrequencyRepo{db: db, log: baseLog.With("repo", "WordFrequencyRepo")}
}

func (r *wordFrequencyRepo) Create(dbc dbctx.Context, rows []*types.WordFrequency) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).CreateInBatches(rows, 1000).Error
}

func (r *wordFrequencyRepo) ListByDocuments(dbc dbctx.Context, documentIDs []uuid.UUID) (map[uuid.UUID]map[string]int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]map[string]int, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}
	var rows []*types.WordFrequency
	if err := transaction.WithContext(dbc.Ctx).
		Where("source_document_id IN ?", documentIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		m := out[row.SourceDocumentID]
		if m == nil {
			m = map[string]int{}
			out[row.SourceDocumentID] = m
		}
		m[row.Word] = row.Count
	}
	return out, nil
}
