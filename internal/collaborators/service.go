// Package collaborators manages the workers PPE is issued to.
package collaborators

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type CreateInput struct {
	Name         string
	Registration string
	JobTitle     string
	Phone        *string
	Email        *string
	SectorID     *uuid.UUID
}

// UpdateInput is a partial update. ClearSector detaches the collaborator from its sector.
type UpdateInput struct {
	Name         *string
	Registration *string
	JobTitle     *string
	Phone        *string
	Email        *string
	IsActive     *bool
	SectorID     *uuid.UUID
	ClearSector  bool
}

type ListParams struct {
	SectorID *uuid.UUID
	Active   *bool
	Search   string
	Limit    int
	Cursor   string
}

type ListResult struct {
	Items  []Collaborator `json:"items"`
	Cursor string         `json:"cursor"`
}

// Collaborator is the API view of a collaborator.
type Collaborator struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Registration string     `json:"registration"`
	JobTitle     string     `json:"job_title"`
	Phone        *string    `json:"phone,omitempty"`
	Email        *string    `json:"email,omitempty"`
	IsActive     bool       `json:"is_active"`
	SectorID     *uuid.UUID `json:"sector_id,omitempty"`
	SectorName   *string    `json:"sector_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DeleteResult reports whether the collaborator was removed or only deactivated
// because issuance history references it.
type DeleteResult struct {
	ID          uuid.UUID `json:"id"`
	Deactivated bool      `json:"deactivated"`
}

func FromModel(m models.Collaborator) Collaborator {
	out := Collaborator{
		ID:           m.ID,
		Name:         m.Name,
		Registration: m.Registration,
		JobTitle:     m.JobTitle,
		Phone:        m.Phone,
		Email:        m.Email,
		IsActive:     m.IsActive,
		SectorID:     m.SectorID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.Sector != nil {
		name := m.Sector.Name
		out.SectorName = &name
	}
	return out
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Collaborator, error)
	Get(ctx context.Context, id uuid.UUID) (*Collaborator, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Collaborator, error)
	Delete(ctx context.Context, id uuid.UUID) (*DeleteResult, error)
}

type service struct {
	repo *Repository
	tx   txRunner
}

func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "collaborator repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tx runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Collaborator, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	c := &models.Collaborator{
		Name:         strings.TrimSpace(input.Name),
		Registration: strings.TrimSpace(input.Registration),
		JobTitle:     strings.TrimSpace(input.JobTitle),
		Phone:        optional(input.Phone),
		Email:        optional(input.Email),
		IsActive:     true,
		SectorID:     input.SectorID,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if c.SectorID != nil {
			if err := repo.SectorExists(ctx, *c.SectorID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, c)
	})
	if err != nil {
		return nil, mapError(err, "create collaborator")
	}
	return s.Get(ctx, c.ID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Collaborator, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapError(err, "load collaborator")
	}
	out := FromModel(*c)
	return &out, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, listQuery{
		SectorID: params.SectorID,
		Active:   params.Active,
		Search:   params.Search,
		Limit:    params.Limit,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list collaborators")
	}
	items := make([]Collaborator, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return &ListResult{Items: items, Cursor: pagination.EncodeNext(next)}, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Collaborator, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		next := resolveUpdate(*current, input)
		if next.SectorID != nil && (current.SectorID == nil || *current.SectorID != *next.SectorID) {
			if err := repo.SectorExists(ctx, *next.SectorID); err != nil {
				return err
			}
		}
		next.UpdatedAt = time.Now().UTC()
		return repo.Save(ctx, &next)
	})
	if err != nil {
		return nil, mapError(err, "update collaborator")
	}
	return s.Get(ctx, id)
}

// Delete removes collaborators without issuance history and deactivates the rest.
func (s *service) Delete(ctx context.Context, id uuid.UUID) (*DeleteResult, error) {
	result := &DeleteResult{ID: id}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByID(ctx, id); err != nil {
			return err
		}
		referenced, err := repo.HasIssuances(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			result.Deactivated = true
			return repo.Deactivate(ctx, id)
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return nil, mapError(err, "delete collaborator")
	}
	return result, nil
}

func resolveUpdate(current models.Collaborator, patch UpdateInput) models.Collaborator {
	next := current
	next.Sector = nil
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Registration != nil {
		next.Registration = strings.TrimSpace(*patch.Registration)
	}
	if patch.JobTitle != nil {
		next.JobTitle = strings.TrimSpace(*patch.JobTitle)
	}
	if patch.Phone != nil {
		next.Phone = optional(patch.Phone)
	}
	if patch.Email != nil {
		next.Email = optional(patch.Email)
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	switch {
	case patch.ClearSector:
		next.SectorID = nil
	case patch.SectorID != nil:
		id := *patch.SectorID
		next.SectorID = &id
	}
	return next
}

func validateCreate(input CreateInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case strings.TrimSpace(input.Registration) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "registration is required")
	case strings.TrimSpace(input.JobTitle) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "job title is required")
	}
	return validateEmail(input.Email)
}

func validateUpdate(input UpdateInput) error {
	switch {
	case input.Name != nil && strings.TrimSpace(*input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	case input.Registration != nil && strings.TrimSpace(*input.Registration) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "registration cannot be empty")
	case input.JobTitle != nil && strings.TrimSpace(*input.JobTitle) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "job title cannot be empty")
	}
	return validateEmail(input.Email)
}

func validateEmail(email *string) error {
	if email == nil || strings.TrimSpace(*email) == "" {
		return nil
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(*email)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid email")
	}
	return nil
}

func optional(value *string) *string {
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
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "collaborator not found")
	case errors.Is(err, ErrSectorNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown sector").
			WithReason("unknown_sector")
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "registration already in use")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
	}
}
