package equipment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

// Store is the registry surface the issuance core runs inside its transactions.
type Store interface {
	WithTx(tx *gorm.DB) Store
	FindByID(ctx context.Context, id uuid.UUID) (*models.Equipment, error)
	FindAny(ctx context.Context, id uuid.UUID) (*models.Equipment, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (*models.Equipment, error)
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) (*models.Equipment, error)
}

// Repository persists equipment rows. Stock only moves through the conditional
// updates in DecrementStock, IncrementStock and SetStock.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository binds a repository to the provided database handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock overrides the clock used to recompute status.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	if now == nil {
		return r
	}
	return &Repository{db: r.db, now: now}
}

func (r *Repository) WithTx(tx *gorm.DB) Store {
	return r.Tx(tx)
}

// Tx is WithTx returning the concrete repository.
func (r *Repository) Tx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, now: r.now}
}

func (r *Repository) Create(ctx context.Context, item *models.Equipment) error {
	return r.db.WithContext(ctx).Omit("Risks").Create(item).Error
}

// FindByID loads a live item; retired items are reported as ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Equipment, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

// FindAny loads an item even when it was retired.
func (r *Repository) FindAny(ctx context.Context, id uuid.UUID) (*models.Equipment, error) {
	return r.find(ctx, r.db.WithContext(ctx).Unscoped(), id)
}

// FindForUpdate loads a live item and holds its row lock until the transaction ends.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Equipment, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *Repository) find(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.Equipment, error) {
	var item models.Equipment
	if err := db.Preload("Risks").First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// DecrementStock removes qty units when at least qty are available. The check
// and the write are one conditional UPDATE, so concurrent callers serialize on
// the row and stock never goes negative.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (*models.Equipment, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("decrement quantity must be positive, got %d", qty)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Equipment{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": r.now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &StockError{Available: current.Stock, Requested: qty}
	}
	return r.refreshStatus(ctx, id)
}

// IncrementStock adds qty units back. Retired items still receive returned units.
func (r *Repository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) (*models.Equipment, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("increment quantity must be positive, got %d", qty)
	}
	res := r.db.WithContext(ctx).
		Unscoped().
		Model(&models.Equipment{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": r.now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.refreshStatus(ctx, id)
}

// statusFor renders the status column for a write. Expiry is decided by the
// caller; the stock half is evaluated by the database against stock, which is
// either a literal or the live column, so a concurrent stock movement can never
// leave a status computed from a stale read.
func statusFor(expiry, now time.Time, stock any) any {
	if expiry.Before(now) {
		return enums.EquipmentStatusExpired
	}
	return gorm.Expr("CASE WHEN ? <= 0 THEN ? ELSE ? END", stock, enums.EquipmentStatusOutOfStock, enums.EquipmentStatusActive)
}

func (r *Repository) refreshStatus(ctx context.Context, id uuid.UUID) (*models.Equipment, error) {
	item, err := r.FindAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if ComputeStatus(item.CertificateExpiry, item.Stock, r.now()) == item.Status {
		return item, nil
	}
	if err := r.db.WithContext(ctx).
		Unscoped().
		Model(&models.Equipment{}).
		Where("id = ?", id).
		UpdateColumn("status", statusFor(item.CertificateExpiry, r.now(), clause.Column{Name: "stock"})).Error; err != nil {
		return nil, err
	}
	return r.FindAny(ctx, id)
}

// Save writes the descriptive fields of next and recomputes status in the same
// statement. Stock is written only when it differs from expectedStock, and only
// if the row still holds expectedStock; otherwise ErrStockChanged is returned.
func (r *Repository) Save(ctx context.Context, next *models.Equipment, expectedStock int) error {
	now := r.now()
	fields := map[string]any{
		"name":               next.Name,
		"category":           next.Category,
		"certificate_number": next.CertificateNumber,
		"certificate_expiry": next.CertificateExpiry,
		"protection_level":   next.ProtectionLevel,
		"description":        next.Description,
		"image_url":          next.ImageURL,
		"status":             statusFor(next.CertificateExpiry, now, clause.Column{Name: "stock"}),
		"updated_at":         now.UTC(),
	}
	query := r.db.WithContext(ctx).Model(&models.Equipment{}).Where("id = ?", next.ID)
	if next.Stock != expectedStock {
		fields["stock"] = next.Stock
		fields["status"] = statusFor(next.CertificateExpiry, now, next.Stock)
		query = query.Where("stock = ?", expectedStock)
	}
	res := query.UpdateColumns(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, next.ID); err != nil {
			return err
		}
		return ErrStockChanged
	}
	return nil
}

// ReplaceRisks rewrites the risk links of an item.
func (r *Repository) ReplaceRisks(ctx context.Context, equipmentID uuid.UUID, riskIDs []uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Exec("DELETE FROM equipment_risks WHERE equipment_id = ?", equipmentID).Error; err != nil {
		return err
	}
	if len(riskIDs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(riskIDs))
	for _, id := range dedupe(riskIDs) {
		rows = append(rows, map[string]any{"equipment_id": equipmentID, "risk_id": id})
	}
	return db.Table("equipment_risks").Create(rows).Error
}

// CountRisks returns how many of ids exist.
func (r *Repository) CountRisks(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Risk{}).Where("id IN ?", dedupe(ids)).Count(&count).Error
	return count, err
}

// HasIssuances reports whether any issuance references the item.
func (r *Repository) HasIssuances(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Issuance{}).Where("equipment_id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Retire soft-deletes an item that issuance history still points at.
func (r *Repository) Retire(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Equipment{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge removes an unreferenced item and its risk links.
func (r *Repository) Purge(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Exec("DELETE FROM equipment_risks WHERE equipment_id = ?", id).Error; err != nil {
		return err
	}
	res := db.Unscoped().Delete(&models.Equipment{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type listQuery struct {
	Category *enums.EquipmentCategory
	Status   *enums.EquipmentStatus
	Search   string
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, params listQuery) ([]models.Equipment, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Equipment{}).Preload("Risks")
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if term := strings.TrimSpace(params.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(certificate_number) LIKE ?", like, like)
	}
	query = query.Scopes(pagination.Before("created_at", "id", params.Cursor))

	var rows []models.Equipment
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(m models.Equipment) pagination.Cursor {
		return pagination.Cursor{At: m.CreatedAt, ID: m.ID}
	})
	return page, next, nil
}

// ListByIDs loads live items in no particular order.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Equipment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Equipment
	err := r.db.WithContext(ctx).Preload("Risks").Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

type riskMatch struct {
	EquipmentID uuid.UUID
	Matches     int
}

// RankByRisks counts, for each live in-stock item, how many of riskIDs it covers.
func (r *Repository) RankByRisks(ctx context.Context, riskIDs []uuid.UUID, limit int) ([]riskMatch, error) {
	if len(riskIDs) == 0 {
		return nil, nil
	}
	var rows []riskMatch
	err := r.db.WithContext(ctx).
		Table("equipment_risks").
		Select("equipment_risks.equipment_id AS equipment_id, COUNT(*) AS matches").
		Joins("JOIN equipment ON equipment.id = equipment_risks.equipment_id").
		Where("equipment_risks.risk_id IN ? AND equipment.stock > 0 AND equipment.deleted_at IS NULL", dedupe(riskIDs)).
		Group("equipment_risks.equipment_id").
		Order("matches DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Scan(&rows).Error
	return rows, err
}

// SectorRiskIDs returns the risks mapped to the collaborator's sector.
func (r *Repository) SectorRiskIDs(ctx context.Context, collaboratorID uuid.UUID) ([]uuid.UUID, error) {
	var collaborator models.Collaborator
	if err := r.db.WithContext(ctx).Select("id", "sector_id").First(&collaborator, "id = ?", collaboratorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCollaboratorNotFound
		}
		return nil, err
	}
	if collaborator.SectorID == nil {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Risk{}).Where("sector_id = ?", *collaborator.SectorID).Pluck("id", &ids).Error
	return ids, err
}

// ListExpiringBetween returns live items whose certificate expires in [from, to).
func (r *Repository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Equipment, error) {
	var rows []models.Equipment
	err := r.db.WithContext(ctx).
		Where("certificate_expiry >= ? AND certificate_expiry < ?", from.UTC(), to.UTC()).
		Order("certificate_expiry ASC").
		Find(&rows).Error
	return rows, err
}

// MarkExpired flips every live item whose certificate lapsed before now to
// expired and returns the rows it flipped. The UPDATE re-checks the expiry so
// an item renewed after the candidate scan keeps its status.
func (r *Repository) MarkExpired(ctx context.Context, now time.Time) ([]models.Equipment, error) {
	cutoff := now.UTC()
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Equipment{}).
		Where("certificate_expiry < ? AND status <> ?", cutoff, enums.EquipmentStatusExpired).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Equipment{}).
		Where("id IN ? AND certificate_expiry < ? AND status <> ?", ids, cutoff, enums.EquipmentStatusExpired).
		UpdateColumn("status", enums.EquipmentStatusExpired)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var rows []models.Equipment
	err := r.db.WithContext(ctx).
		Where("id IN ? AND certificate_expiry < ? AND status = ?", ids, cutoff, enums.EquipmentStatusExpired).
		Order("certificate_expiry ASC").
		Find(&rows).Error
	return rows, err
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
