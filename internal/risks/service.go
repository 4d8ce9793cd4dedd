// Package risks keeps the occupational hazard register. Level and
// classification are always derived from probability and severity.
package risks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries a new risk.
type CreateInput struct {
	Name        string
	Category    enums.RiskCategory
	SectorID    *uuid.UUID
	Description *string
	Probability int
	Severity    int
	Mitigation  *string
	Owner       *string
	Status      enums.RiskStatus
}

// UpdateInput is a partial update. ClearSector detaches the risk from its sector.
type UpdateInput struct {
	Name        *string
	Category    *enums.RiskCategory
	SectorID    *uuid.UUID
	ClearSector bool
	Description *string
	Probability *int
	Severity    *int
	Mitigation  *string
	Owner       *string
	Status      *enums.RiskStatus
}

// ListParams filters the register.
type ListParams struct {
	SectorID       *uuid.UUID
	Category       *enums.RiskCategory
	Classification *enums.RiskClassification
	Status         *enums.RiskStatus
	Search         string
}

// Risk is the API view of a risk.
type Risk struct {
	ID             uuid.UUID                `json:"id"`
	Name           string                   `json:"name"`
	Category       enums.RiskCategory       `json:"category"`
	SectorID       *uuid.UUID               `json:"sector_id,omitempty"`
	SectorName     *string                  `json:"sector_name,omitempty"`
	Description    *string                  `json:"description,omitempty"`
	Probability    int                      `json:"probability"`
	Severity       int                      `json:"severity"`
	Level          int                      `json:"level"`
	Classification enums.RiskClassification `json:"classification"`
	Mitigation     *string                  `json:"mitigation,omitempty"`
	Owner          *string                  `json:"owner,omitempty"`
	Status         enums.RiskStatus         `json:"status"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

func FromModel(m models.Risk) Risk {
	out := Risk{
		ID:             m.ID,
		Name:           m.Name,
		Category:       m.Category,
		SectorID:       m.SectorID,
		Description:    m.Description,
		Probability:    m.Probability,
		Severity:       m.Severity,
		Level:          m.Level,
		Classification: m.Classification,
		Mitigation:     m.Mitigation,
		Owner:          m.Owner,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Sector != nil {
		name := m.Sector.Name
		out.SectorName = &name
	}
	return out
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Risk, error)
	Get(ctx context.Context, id uuid.UUID) (*Risk, error)
	List(ctx context.Context, params ListParams) ([]Risk, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Risk, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo *Repository
	tx   txRunner
}

func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "risk repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tx runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Risk, error) {
	if input.Status == "" {
		input.Status = enums.RiskStatusActive
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	level, class := Classify(input.Probability, input.Severity)
	risk := &models.Risk{
		Name:           strings.TrimSpace(input.Name),
		Category:       input.Category,
		SectorID:       input.SectorID,
		Description:    input.Description,
		Probability:    input.Probability,
		Severity:       input.Severity,
		Level:          level,
		Classification: class,
		Mitigation:     input.Mitigation,
		Owner:          input.Owner,
		Status:         input.Status,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if risk.SectorID != nil {
			if err := repo.SectorExists(ctx, *risk.SectorID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, risk)
	})
	if err != nil {
		return nil, mapError(err, "create risk")
	}
	return s.Get(ctx, risk.ID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Risk, error) {
	risk, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapError(err, "load risk")
	}
	out := FromModel(*risk)
	return &out, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]Risk, error) {
	switch {
	case params.Category != nil && !params.Category.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	case params.Status != nil && !params.Status.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	rows, err := s.repo.List(ctx, listQuery(params))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list risks")
	}
	out := make([]Risk, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Risk, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		next := ResolveUpdate(*current, input)
		if next.SectorID != nil && (current.SectorID == nil || *current.SectorID != *next.SectorID) {
			if err := repo.SectorExists(ctx, *next.SectorID); err != nil {
				return err
			}
		}
		next.UpdatedAt = time.Now().UTC()
		return repo.Save(ctx, &next)
	})
	if err != nil {
		return nil, mapError(err, "update risk")
	}
	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Delete(ctx, id)
	})
	return mapError(err, "delete risk")
}

// ResolveUpdate applies the patch over current and re-derives level and
// classification from the effective probability and severity.
func ResolveUpdate(current models.Risk, patch UpdateInput) models.Risk {
	next := current
	next.Sector = nil
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Category != nil {
		next.Category = *patch.Category
	}
	switch {
	case patch.ClearSector:
		next.SectorID = nil
	case patch.SectorID != nil:
		id := *patch.SectorID
		next.SectorID = &id
	}
	if patch.Description != nil {
		next.Description = patch.Description
	}
	if patch.Probability != nil {
		next.Probability = *patch.Probability
	}
	if patch.Severity != nil {
		next.Severity = *patch.Severity
	}
	if patch.Mitigation != nil {
		next.Mitigation = patch.Mitigation
	}
	if patch.Owner != nil {
		next.Owner = patch.Owner
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	next.Level, next.Classification = Classify(next.Probability, next.Severity)
	return next
}

func validateCreate(input CreateInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case !input.Category.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	case !inScale(input.Probability):
		return pkgerrors.New(pkgerrors.CodeValidation, "probability must be between 1 and 5")
	case !inScale(input.Severity):
		return pkgerrors.New(pkgerrors.CodeValidation, "severity must be between 1 and 5")
	case !input.Status.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	return nil
}

func validateUpdate(input UpdateInput) error {
	switch {
	case input.Name != nil && strings.TrimSpace(*input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	case input.Category != nil && !input.Category.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	case input.Probability != nil && !inScale(*input.Probability):
		return pkgerrors.New(pkgerrors.CodeValidation, "probability must be between 1 and 5")
	case input.Severity != nil && !inScale(*input.Severity):
		return pkgerrors.New(pkgerrors.CodeValidation, "severity must be between 1 and 5")
	case input.Status != nil && !input.Status.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	return nil
}

func mapError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "risk not found")
	case errors.Is(err, ErrSectorNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown sector").
			WithReason("unknown_sector")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
	}
}
