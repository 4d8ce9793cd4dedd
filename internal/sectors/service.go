// Package sectors manages the work areas collaborators and risks belong to.
package sectors

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Usage counts the records attached to a sector.
type Usage struct {
	Collaborators int `json:"collaborators"`
	Risks         int `json:"risks"`
}

// Sector is the API view of a sector.
type Sector struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Usage       Usage     `json:"usage"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input creates a sector or, with nil fields left alone, updates one.
type Input struct {
	Name        *string
	Description *string
}

type Service interface {
	Create(ctx context.Context, input Input) (*Sector, error)
	Get(ctx context.Context, id uuid.UUID) (*Sector, error)
	List(ctx context.Context, search string) ([]Sector, error)
	Update(ctx context.Context, id uuid.UUID, input Input) (*Sector, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo *Repository
	tx   txRunner
}

func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sector repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tx runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, input Input) (*Sector, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	sector := &models.Sector{
		Name:        strings.TrimSpace(*input.Name),
		Description: trimmed(input.Description),
	}
	if err := s.repo.Create(ctx, sector); err != nil {
		return nil, mapError(err, "create sector")
	}
	out := toSector(*sector, Usage{})
	return &out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Sector, error) {
	sector, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapError(err, "load sector")
	}
	counts, err := s.repo.Counts(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count sector usage")
	}
	out := toSector(*sector, counts[id])
	return &out, nil
}

func (s *service) List(ctx context.Context, search string) ([]Sector, error) {
	rows, err := s.repo.List(ctx, search)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sectors")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, err := s.repo.Counts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count sector usage")
	}
	out := make([]Sector, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSector(row, counts[row.ID]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input Input) (*Sector, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	}

	var updated *models.Sector
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if input.Name != nil {
			current.Name = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			current.Description = trimmed(input.Description)
		}
		current.UpdatedAt = time.Now().UTC()
		if err := repo.Save(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, mapError(err, "update sector")
	}
	return s.Get(ctx, updated.ID)
}

// Delete removes the sector and leaves its collaborators and risks unassigned.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByID(ctx, id); err != nil {
			return err
		}
		if err := repo.Detach(ctx, id); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	return mapError(err, "delete sector")
}

func toSector(m models.Sector, usage Usage) Sector {
	return Sector{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Usage:       usage,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	t := strings.TrimSpace(*value)
	if t == "" {
		return nil
	}
	return &t
}

func mapError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "sector not found")
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sector name already in use")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
	}
}
