package risks

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/repo"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

var (
	// ErrNotFound is returned when the risk does not exist.
	ErrNotFound = errors.New("risk not found")
	// ErrSectorNotFound is returned when a risk references an unknown sector.
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

func (r *Repository) Create(ctx context.Context, risk *models.Risk) error {
	return r.DB(ctx).Omit("Sector").Create(risk).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Risk, error) {
	var risk models.Risk
	if err := r.Base.FindByID(ctx, &risk, id, ErrNotFound, "Sector"); err != nil {
		return nil, err
	}
	return &risk, nil
}

type listQuery struct {
	SectorID       *uuid.UUID
	Category       *enums.RiskCategory
	Classification *enums.RiskClassification
	Status         *enums.RiskStatus
	Search         string
}

// List orders the most severe risks first.
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.Risk, error) {
	query := r.DB(ctx).Model(&models.Risk{}).Preload("Sector")
	if q.SectorID != nil {
		query = query.Where("sector_id = ?", *q.SectorID)
	}
	if q.Category != nil {
		query = query.Where("category = ?", *q.Category)
	}
	if q.Classification != nil {
		query = query.Where("classification = ?", *q.Classification)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	var rows []models.Risk
	err := query.Order("level DESC, name ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) Save(ctx context.Context, risk *models.Risk) error {
	return r.DB(ctx).
		Model(risk).
		Select("name", "category", "sector_id", "description", "probability", "severity",
			"level", "classification", "mitigation", "owner", "status", "updated_at").
		Updates(risk).Error
}

// Delete removes the risk and its equipment links.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.DB(ctx).Exec("DELETE FROM equipment_risks WHERE risk_id = ?", id).Error; err != nil {
		return err
	}
	return r.DeleteByID(ctx, &models.Risk{}, id, ErrNotFound)
}

func (r *Repository) SectorExists(ctx context.Context, id uuid.UUID) error {
	return r.Exists(ctx, &models.Sector{}, id, ErrSectorNotFound)
}
