// Package repo holds the connection plumbing shared by the registry repositories.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base binds a repository to a connection or to an open transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx rebinds the base to tx. A nil tx keeps the current connection.
func (b Base) Tx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// FindByID loads the row with id into dest, preloading the named associations.
// A missing row yields notFound.
func (b Base) FindByID(ctx context.Context, dest any, id uuid.UUID, notFound error, preload ...string) error {
	query := b.DB(ctx)
	for _, assoc := range preload {
		query = query.Preload(assoc)
	}
	err := query.First(dest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

// DeleteByID removes the row of model with id, or returns notFound when
// nothing matched.
func (b Base) DeleteByID(ctx context.Context, model any, id uuid.UUID, notFound error) error {
	res := b.DB(ctx).Delete(model, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound
	}
	return nil
}

// Exists returns notFound unless a row of model matches id.
func (b Base) Exists(ctx context.Context, model any, id uuid.UUID, notFound error) error {
	var count int64
	if err := b.DB(ctx).Model(model).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
