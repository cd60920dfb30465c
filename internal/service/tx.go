package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor is whoever triggered an operation. Both fields are optional: the
// ledger accepts anonymous postings (system jobs, seeds).
type Actor struct {
	UserID   *uuid.UUID
	Username string
}

// runTx executes fn inside a single GORM transaction bound to ctx.
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}
