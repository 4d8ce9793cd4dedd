package collaborators

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/repo"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

var (
	// ErrNotFound is returned when the collaborator does not exist.
	ErrNotFound = errors.New("collaborator not found")
	// ErrSectorNotFound is returned when a collaborator references an unknown sector.
	ErrSectorNotFound = errors.New("sector not found")
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{Base: r.Base.Tx(tx)}
}

func (r *Repository) Create(ctx context.Context, c *models.Collaborator) error {
	return r.DB(ctx).Omit("Sector").Create(c).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Collaborator, error) {
	var c models.Collaborator
	if err := r.Base.FindByID(ctx, &c, id, ErrNotFound, "Sector"); err != nil {
		return nil, err
	}
	return &c, nil
}

type listQuery struct {
	SectorID *uuid.UUID
	Active   *bool
	Search   string
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, q listQuery) ([]models.Collaborator, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.Collaborator{}).Preload("Sector")
	if q.SectorID != nil {
		query = query.Where("sector_id = ?", *q.SectorID)
	}
	if q.Active != nil {
		query = query.Where("is_active = ?", *q.Active)
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(registration) LIKE ?", like, like)
	}
	query = query.Scopes(pagination.Before("created_at", "id", q.Cursor))

	var rows []models.Collaborator
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(q.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(m models.Collaborator) pagination.Cursor {
		return pagination.Cursor{At: m.CreatedAt, ID: m.ID}
	})
	return page, next, nil
}

func (r *Repository) Save(ctx context.Context, c *models.Collaborator) error {
	return r.DB(ctx).
		Model(c).
		Select("name", "registration", "job_title", "phone", "email", "is_active", "sector_id", "updated_at").
		Updates(c).Error
}

func (r *Repository) HasIssuances(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.Issuance{}).Where("collaborator_id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Model(&models.Collaborator{}).Where("id = ?", id).Update("is_active", false).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DeleteByID(ctx, &models.Collaborator{}, id, ErrNotFound)
}

func (r *Repository) SectorExists(ctx context.Context, id uuid.UUID) error {
	return r.Exists(ctx, &models.Sector{}, id, ErrSectorNotFound)
}
