package issuance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

// LedgerStore is the issuance persistence surface used inside coordinator transactions.
type LedgerStore interface {
	WithTx(tx *gorm.DB) LedgerStore
	CollaboratorExists(ctx context.Context, id uuid.UUID) (bool, error)
	Create(ctx context.Context, rec *models.Issuance) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Issuance, error)
	FindDetailed(ctx context.Context, id uuid.UUID) (*models.Issuance, error)
	MarkReturned(ctx context.Context, id uuid.UUID, mark ReturnMark) error
	DeleteOpen(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReturnMark carries the columns written when a record is returned.
type ReturnMark struct {
	At        time.Time
	By        uuid.UUID
	Notes     *string
	Signature *string
}

// Ledger persists issuance rows with gorm.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) WithTx(tx *gorm.DB) LedgerStore {
	if tx == nil {
		return l
	}
	return &Ledger{db: tx}
}

// CollaboratorExists reports whether id names an active collaborator.
func (l *Ledger) CollaboratorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.Collaborator{}).Where("id = ? AND is_active = ?", id, true).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts the record. The snapshot columns are only ever written here.
func (l *Ledger) Create(ctx context.Context, rec *models.Issuance) error {
	return l.db.WithContext(ctx).Omit("Collaborator", "Equipment", "Issuer", "Returner").Create(rec).Error
}

func (l *Ledger) FindByID(ctx context.Context, id uuid.UUID) (*models.Issuance, error) {
	return l.first(l.db.WithContext(ctx), id)
}

// FindDetailed loads the record with collaborator, sector and users resolved.
func (l *Ledger) FindDetailed(ctx context.Context, id uuid.UUID) (*models.Issuance, error) {
	return l.first(l.detailed(ctx), id)
}

func (l *Ledger) first(db *gorm.DB, id uuid.UUID) (*models.Issuance, error) {
	var rec models.Issuance
	if err := db.First(&rec, "issuances.id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (l *Ledger) detailed(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).
		Preload("Collaborator").
		Preload("Collaborator.Sector").
		Preload("Issuer").
		Preload("Returner")
}

// MarkReturned flips returned from false to true. It writes nothing and
// returns ErrAlreadyReturned when another caller got there first.
func (l *Ledger) MarkReturned(ctx context.Context, id uuid.UUID, mark ReturnMark) error {
	res := l.db.WithContext(ctx).
		Model(&models.Issuance{}).
		Where("id = ? AND returned = ?", id, false).
		UpdateColumns(map[string]any{
			"returned":         true,
			"returned_at":      mark.At.UTC(),
			"returned_by":      mark.By,
			"return_notes":     mark.Notes,
			"return_signature": mark.Signature,
			"updated_at":       mark.At.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := l.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyReturned
	}
	return nil
}

// DeleteOpen removes the record only while it is not returned and reports
// whether a row was removed.
func (l *Ledger) DeleteOpen(ctx context.Context, id uuid.UUID) (bool, error) {
	res := l.db.WithContext(ctx).Where("id = ? AND returned = ?", id, false).Delete(&models.Issuance{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *Ledger) Delete(ctx context.Context, id uuid.UUID) error {
	res := l.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Issuance{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type listQuery struct {
	EquipmentID    *uuid.UUID
	CollaboratorID *uuid.UUID
	SectorID       *uuid.UUID
	From           *time.Time
	Until          *time.Time
	Returned       *bool
	Limit          int
	Cursor         *pagination.Cursor
}

// List returns records newest first with keyset pagination on (issued_at, id).
func (l *Ledger) List(ctx context.Context, q listQuery) ([]models.Issuance, *pagination.Cursor, error) {
	query := l.filtered(l.detailed(ctx).Model(&models.Issuance{}), q.EquipmentID, q.CollaboratorID, q.SectorID, q.From, q.Until)
	if q.Returned != nil {
		query = query.Where("issuances.returned = ?", *q.Returned)
	}
	query = query.Scopes(pagination.Before("issuances.issued_at", "issuances.id", q.Cursor))

	var rows []models.Issuance
	if err := query.Order("issuances.issued_at DESC, issuances.id DESC").Limit(pagination.LimitWithBuffer(q.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(m models.Issuance) pagination.Cursor {
		return pagination.Cursor{At: m.IssuedAt, ID: m.ID}
	})
	return page, next, nil
}

func (l *Ledger) filtered(query *gorm.DB, equipmentID, collaboratorID, sectorID *uuid.UUID, from, until *time.Time) *gorm.DB {
	if equipmentID != nil {
		query = query.Where("issuances.equipment_id = ?", *equipmentID)
	}
	if collaboratorID != nil {
		query = query.Where("issuances.collaborator_id = ?", *collaboratorID)
	}
	if sectorID != nil {
		query = query.Where("issuances.collaborator_id IN (?)",
			l.db.Model(&models.Collaborator{}).Select("id").Where("sector_id = ?", *sectorID))
	}
	if from != nil {
		query = query.Where("issuances.issued_at >= ?", from.UTC())
	}
	if until != nil {
		query = query.Where("issuances.issued_at < ?", until.UTC())
	}
	return query
}

// Totals groups issued and returned units by equipment and by collaborator.
// Equipment totals carry the registry's current stock; it is nil once the
// item row is gone.
func (l *Ledger) Totals(ctx context.Context, from, until *time.Time) ([]EquipmentTotal, []CollaboratorTotal, error) {
	var byEquipment []EquipmentTotal
	err := l.filtered(l.db.WithContext(ctx).Table("issuances"), nil, nil, nil, from, until).
		Select("issuances.equipment_id AS equipment_id, " +
			"MAX(issuances.snapshot_name) AS name, " +
			"COUNT(*) AS records, " +
			"SUM(issuances.quantity) AS units, " +
			"SUM(CASE WHEN issuances.returned THEN issuances.quantity ELSE 0 END) AS returned_units, " +
			"MAX(equipment.stock) AS current_stock").
		Joins("LEFT JOIN equipment ON equipment.id = issuances.equipment_id").
		Group("issuances.equipment_id").
		Order("units DESC, name ASC").
		Scan(&byEquipment).Error
	if err != nil {
		return nil, nil, err
	}

	var byCollaborator []CollaboratorTotal
	err = l.filtered(l.db.WithContext(ctx).Table("issuances"), nil, nil, nil, from, until).
		Select("issuances.collaborator_id AS collaborator_id, " +
			"collaborators.name AS name, " +
			"COUNT(*) AS records, " +
			"SUM(issuances.quantity) AS units").
		Joins("JOIN collaborators ON collaborators.id = issuances.collaborator_id").
		Group("issuances.collaborator_id, collaborators.name").
		Order("units DESC, name ASC").
		Scan(&byCollaborator).Error
	if err != nil {
		return nil, nil, err
	}
	return byEquipment, byCollaborator, nil
}
