package equipment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ActivityRecorder receives best-effort audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, action enums.ActivityAction, details map[string]any)
}

// Service manages the PPE inventory outside the issuance path.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*Item, error)
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*Item, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) (*DeleteResult, error)
	Suggest(ctx context.Context, input SuggestInput) ([]Suggestion, error)
}

// ServiceParams wires the equipment service.
type ServiceParams struct {
	Repo     *Repository
	Tx       txRunner
	Activity ActivityRecorder
	Location *time.Location
	Now      func() time.Time
}

type service struct {
	repo     *Repository
	tx       txRunner
	activity ActivityRecorder
	loc      *time.Location
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("equipment repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo.WithClock(now),
		tx:       params.Tx,
		activity: params.Activity,
		loc:      loc,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*Item, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	expiry := NormalizeExpiry(input.CertificateExpiry, s.loc)
	item := &models.Equipment{
		Name:              strings.TrimSpace(input.Name),
		Category:          input.Category,
		CertificateNumber: strings.TrimSpace(input.CertificateNumber),
		CertificateExpiry: expiry,
		Stock:             input.Stock,
		ProtectionLevel:   strings.TrimSpace(input.ProtectionLevel),
		Description:       input.Description,
		ImageURL:          input.ImageURL,
		Status:            ComputeStatus(expiry, input.Stock, s.now()),
	}

	var created *models.Equipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.Tx(tx)
		if err := s.checkRisks(ctx, repo, input.RiskIDs); err != nil {
			return err
		}
		if err := repo.Create(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create equipment")
		}
		if err := repo.ReplaceRisks(ctx, item.ID, input.RiskIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link equipment risks")
		}
		loaded, err := repo.FindByID(ctx, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload equipment")
		}
		created = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, enums.ActivityEquipmentCreated, map[string]any{"equipment_id": created.ID, "name": created.Name, "stock": created.Stock})
	out := FromModel(*created, s.now())
	return &out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRegistryError(err, "load equipment")
	}
	out := FromModel(*item, s.now())
	return &out, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Category != nil && !params.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.List(ctx, listQuery{
		Category: params.Category,
		Status:   params.Status,
		Search:   params.Search,
		Limit:    params.Limit,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list equipment")
	}

	now := s.now()
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row, now))
	}
	return &ListResult{Items: items, Cursor: pagination.EncodeNext(next)}, nil
}

func (s *service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*Item, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	var updated *models.Equipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.Tx(tx)
		current, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			return mapRegistryError(err, "load equipment")
		}

		next := ResolveUpdate(*current, input, s.loc, s.now())
		if err := repo.Save(ctx, &next, current.Stock); err != nil {
			return mapRegistryError(err, "update equipment")
		}
		if input.RiskIDs != nil {
			if err := s.checkRisks(ctx, repo, *input.RiskIDs); err != nil {
				return err
			}
			if err := repo.ReplaceRisks(ctx, id, *input.RiskIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link equipment risks")
			}
		}
		loaded, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapRegistryError(err, "reload equipment")
		}
		updated = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{"equipment_id": id, "stock": updated.Stock, "status": updated.Status}
	if input.touchesStatus() {
		details["status_recomputed"] = true
	}
	s.record(ctx, actorID, enums.ActivityEquipmentUpdated, details)
	out := FromModel(*updated, s.now())
	return &out, nil
}

// Delete retires items that issuance history references and removes the rest.
func (s *service) Delete(ctx context.Context, actorID, id uuid.UUID) (*DeleteResult, error) {
	result := &DeleteResult{ID: id}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.Tx(tx)
		if _, err := repo.FindByID(ctx, id); err != nil {
			return mapRegistryError(err, "load equipment")
		}
		referenced, err := repo.HasIssuances(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check issuance references")
		}
		if referenced {
			result.Retired = true
			return mapRegistryError(repo.Retire(ctx, id), "retire equipment")
		}
		return mapRegistryError(repo.Purge(ctx, id), "delete equipment")
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, enums.ActivityEquipmentDeleted, map[string]any{"equipment_id": id, "retired": result.Retired})
	return result, nil
}

// Suggest ranks in-stock items by how many of the relevant risks they cover.
func (s *service) Suggest(ctx context.Context, input SuggestInput) ([]Suggestion, error) {
	riskIDs := append([]uuid.UUID(nil), input.RiskIDs...)
	if input.CollaboratorID != nil {
		sectorRisks, err := s.repo.SectorRiskIDs(ctx, *input.CollaboratorID)
		if err != nil {
			if errors.Is(err, ErrCollaboratorNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "collaborator not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sector risks")
		}
		riskIDs = append(riskIDs, sectorRisks...)
	}
	if len(riskIDs) == 0 {
		return []Suggestion{}, nil
	}

	matches, err := s.repo.RankByRisks(ctx, riskIDs, input.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rank equipment")
	}
	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.EquipmentID)
	}
	rows, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load suggested equipment")
	}
	byID := make(map[uuid.UUID]models.Equipment, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	now := s.now()
	out := make([]Suggestion, 0, len(matches))
	for _, m := range matches {
		row, ok := byID[m.EquipmentID]
		if !ok {
			continue
		}
		out = append(out, Suggestion{Item: FromModel(row, now), MatchedRisks: m.Matches})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MatchedRisks != out[j].MatchedRisks {
			return out[i].MatchedRisks > out[j].MatchedRisks
		}
		return out[i].Item.Name < out[j].Item.Name
	})
	return out, nil
}

func (s *service) checkRisks(ctx context.Context, repo *Repository, ids []uuid.UUID) error {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil
	}
	count, err := repo.CountRisks(ctx, unique)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check risks")
	}
	if int(count) != len(unique) {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown risk reference").
			WithReason("unknown_risk")
	}
	return nil
}

func (s *service) record(ctx context.Context, actorID uuid.UUID, action enums.ActivityAction, details map[string]any) {
	if s.activity == nil || actorID == uuid.Nil {
		return
	}
	s.activity.Record(ctx, actorID, action, details)
}

func validateCreate(input CreateInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case !input.Category.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	case strings.TrimSpace(input.CertificateNumber) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "certificate number is required")
	case input.CertificateExpiry.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "certificate expiry is required")
	case input.Stock < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	return nil
}

func validateUpdate(input UpdateInput) error {
	switch {
	case input.Name != nil && strings.TrimSpace(*input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	case input.Category != nil && !input.Category.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	case input.CertificateNumber != nil && strings.TrimSpace(*input.CertificateNumber) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "certificate number cannot be empty")
	case input.CertificateExpiry != nil && input.CertificateExpiry.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "certificate expiry cannot be empty")
	case input.Stock != nil && *input.Stock < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	return nil
}

func mapRegistryError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "equipment not found")
	case errors.Is(err, ErrStockChanged):
		return pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, "stock changed while updating, try again")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
	}
}
