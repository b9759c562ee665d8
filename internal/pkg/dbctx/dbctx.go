package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos use Tx when set and fall back to their own handle otherwise.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func Of(ctx context.Context) Context { return Context{Ctx: ctx} }

func InTx(ctx context.Context, tx *gorm.DB) Context { return Context{Ctx: ctx, Tx: tx} }

// InTransaction reports whether repo calls made with c share a transaction.
func (c Context) InTransaction() bool { return c.Tx != nil }

// Transaction runs fn inside one database transaction. When ctx already
// carries a transaction the caller owns the commit and fn joins it as a
// savepoint.
func Transaction(ctx context.Context, db *gorm.DB, fn func(Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(InTx(ctx, tx))
	})
}
