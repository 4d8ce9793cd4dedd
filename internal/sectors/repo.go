package sectors

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/repo"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
)

// ErrNotFound is returned when the sector does not exist.
var ErrNotFound = errors.New("sector not found")

// Repository persists sectors.
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

func (r *Repository) Create(ctx context.Context, sector *models.Sector) error {
	return r.DB(ctx).Create(sector).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sector, error) {
	var sector models.Sector
	if err := r.Base.FindByID(ctx, &sector, id, ErrNotFound); err != nil {
		return nil, err
	}
	return &sector, nil
}

// List returns sectors ordered by name, optionally filtered by a name fragment.
func (r *Repository) List(ctx context.Context, search string) ([]models.Sector, error) {
	query := r.DB(ctx).Model(&models.Sector{})
	if term := strings.TrimSpace(search); term != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	var rows []models.Sector
	err := query.Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) Save(ctx context.Context, sector *models.Sector) error {
	return r.DB(ctx).
		Model(sector).
		Select("name", "description", "updated_at").
		Updates(sector).Error
}

// Detach clears the sector reference from collaborators and risks.
func (r *Repository) Detach(ctx context.Context, id uuid.UUID) error {
	if err := r.DB(ctx).Model(&models.Collaborator{}).Where("sector_id = ?", id).Update("sector_id", nil).Error; err != nil {
		return err
	}
	return r.DB(ctx).Model(&models.Risk{}).Where("sector_id = ?", id).Update("sector_id", nil).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DeleteByID(ctx, &models.Sector{}, id, ErrNotFound)
}

// Counts reports how many collaborators and risks reference each sector.
func (r *Repository) Counts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Usage, error) {
	out := make(map[uuid.UUID]Usage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	type row struct {
		SectorID uuid.UUID
		Total    int
	}
	var collaborators []row
	if err := r.DB(ctx).Model(&models.Collaborator{}).
		Select("sector_id, COUNT(*) AS total").
		Where("sector_id IN ?", ids).
		Group("sector_id").
		Scan(&collaborators).Error; err != nil {
		return nil, err
	}
	var risks []row
	if err := r.DB(ctx).Model(&models.Risk{}).
		Select("sector_id, COUNT(*) AS total").
		Where("sector_id IN ?", ids).
		Group("sector_id").
		Scan(&risks).Error; err != nil {
		return nil, err
	}

	for _, c := range collaborators {
		usage := out[c.SectorID]
		usage.Collaborators = c.Total
		out[c.SectorID] = usage
	}
	for _, rk := range risks {
		usage := out[rk.SectorID]
		usage.Risks = rk.Total
		out[rk.SectorID] = usage
	}
	return out, nil
}
