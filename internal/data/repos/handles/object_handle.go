package handles

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/repos/dberr"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type ObjectHandleRepo interface {
	// GetOrCreate returns the single handle for (kind, target). A concurrent
	// insert of the same handle is absorbed by re-reading the winner's row.
	GetOrCreate(dbc dbctx.Context, kind types.ObjectKind, targetID uuid.UUID) (*types.ObjectHandle, error)
	Get(dbc dbctx.Context, kind types.ObjectKind, targetID uuid.UUID) (*types.ObjectHandle, error)
}

type objectHandleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObjectHandleRepo(db *gorm.DB, baseLog *logger.Logger) ObjectHandleRepo {
	return &objectHandleRepo{db: db, log: baseLog.With("repo", "ObjectHandleRepo")}
}

func (r *objectHandleRepo) Get(dbc dbctx.Context, kind types.ObjectKind, targetID uuid.UUID) (*types.ObjectHandle, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var h types.ObjectHandle
	err := transaction.WithContext(dbc.Ctx).
		Where("kind = ? AND target_id = ?", kind, targetID).
		Take(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *objectHandleRepo) GetOrCreate(dbc dbctx.Context, kind types.ObjectKind, targetID uuid.UUID) (*types.ObjectHandle, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if h, err := r.Get(dbc, kind, targetID); err != nil || h != nil {
		return h, err
	}
	h := &types.ObjectHandle{Kind: kind, TargetID: targetID}
	// The savepoint keeps a postgres transaction usable after a failed insert.
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		return txx.Create(h).Error
	})
	if err == nil {
		return h, nil
	}
	if !dberr.IsUniqueViolation(err) {
		return nil, err
	}
	r.log.Debug("object handle insert raced; re-reading", "kind", kind, "target_id", targetID)
	existing, gerr := r.Get(dbc, kind, targetID)
	if gerr != nil {
		return nil, gerr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

type MemoRepo interface {
	Create(dbc dbctx.Context, memo *types.Memo) error
	ListByHandle(dbc dbctx.Context, handleID uuid.UUID) ([]*types.Memo, error)
}

type memoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoRepo(db *gorm.DB, baseLog *logger.Logger) MemoRepo {
	return &memoRepo{db: db, log: baseLog.With("repo", "MemoRepo")}
}

func (r *memoRepo) Create(dbc dbctx.Context, memo *types.Memo) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(memo).Error
}

func (r *memoRepo) ListByHandle(dbc dbctx.Context, handleID uuid.UUID) ([]*types.Memo, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Memo
	err := transaction.WithContext(dbc.Ctx).
		Where("attached_handle_id = ?", handleID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
