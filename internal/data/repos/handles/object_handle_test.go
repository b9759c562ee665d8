package handles

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/repos/dberr"
	"github.com/yungbote/dats-backend/internal/data/repos/testutil"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/domain/handles"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewObjectHandleRepo(db, testutil.Logger(t))

	target := uuid.New()
	first, err := repo.GetOrCreate(dbc, handles.KindSourceDocument, target)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := repo.GetOrCreate(dbc, handles.KindSourceDocument, target)
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same handle, got %s and %s", first.ID, second.ID)
	}

	other, err := repo.GetOrCreate(dbc, handles.KindTag, target)
	if err != nil {
		t.Fatalf("GetOrCreate other kind: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("kinds must not share handles")
	}
}

func TestDuplicateInsertIsClassifiedAndRecovered(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := &objectHandleRepo{db: db, log: testutil.Logger(t)}

	target := uuid.New()
	winner := &types.ObjectHandle{Kind: handles.KindMemo, TargetID: target}
	if err := tx.Create(winner).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	// A second raw insert is what a losing racer sees.
	loser := &types.ObjectHandle{Kind: handles.KindMemo, TargetID: target}
	err := tx.Transaction(func(txx *gorm.DB) error { return txx.Create(loser).Error })
	if !dberr.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	got, err := repo.GetOrCreate(dbc, handles.KindMemo, target)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("expected winner %s, got %s", winner.ID, got.ID)
	}
}

func TestInvalidKindRejected(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewObjectHandleRepo(db, testutil.Logger(t))
	if _, err := repo.GetOrCreate(dbc, handles.ObjectKind("user"), uuid.New()); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
