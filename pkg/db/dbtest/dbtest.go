// Package dbtest opens throwaway SQLite databases carrying the full schema for
// repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// Open returns an isolated in-memory database. The pool is pinned to one
// connection so concurrent transactions queue instead of failing on SQLite locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:test_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

func MustUser(t testing.TB, db *gorm.DB, role enums.MemberRole) *models.User {
	t.Helper()
	user := &models.User{
		Name:         "Tester",
		Email:        fmt.Sprintf("epi_test_%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func MustSector(t testing.TB, db *gorm.DB, name string) *models.Sector {
	t.Helper()
	sector := &models.Sector{Name: name}
	if err := db.Create(sector).Error; err != nil {
		t.Fatalf("create sector: %v", err)
	}
	return sector
}

func MustCollaborator(t testing.TB, db *gorm.DB, sectorID *uuid.UUID) *models.Collaborator {
	t.Helper()
	collaborator := &models.Collaborator{
		Name:         "Worker",
		Registration: "REG-" + uuid.NewString()[:8],
		JobTitle:     "Welder",
		IsActive:     true,
		SectorID:     sectorID,
	}
	if err := db.Create(collaborator).Error; err != nil {
		t.Fatalf("create collaborator: %v", err)
	}
	return collaborator
}

// MustEquipment seeds an item with the given stock and a certificate valid for a year.
func MustEquipment(t testing.TB, db *gorm.DB, stock int) *models.Equipment {
	t.Helper()
	return MustEquipmentExpiring(t, db, stock, time.Now().UTC().AddDate(1, 0, 0))
}

func MustEquipmentExpiring(t testing.TB, db *gorm.DB, stock int, expiry time.Time) *models.Equipment {
	t.Helper()
	status := enums.EquipmentStatusActive
	if stock <= 0 {
		status = enums.EquipmentStatusOutOfStock
	}
	if expiry.Before(time.Now()) {
		status = enums.EquipmentStatusExpired
	}
	item := &models.Equipment{
		Name:              "Safety Helmet",
		Category:          enums.EquipmentCategoryHead,
		CertificateNumber: "CA-12345",
		CertificateExpiry: expiry,
		Stock:             stock,
		ProtectionLevel:   "Class B",
		Status:            status,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	return item
}

func MustRisk(t testing.TB, db *gorm.DB, sectorID *uuid.UUID, name string) *models.Risk {
	t.Helper()
	risk := &models.Risk{
		Name:           name,
		Category:       enums.RiskCategoryPhysical,
		SectorID:       sectorID,
		Probability:    2,
		Severity:       3,
		Level:          6,
		Classification: enums.RiskClassificationModerate,
		Status:         enums.RiskStatusActive,
	}
	if err := db.Create(risk).Error; err != nil {
		t.Fatalf("create risk: %v", err)
	}
	return risk
}

// Reload fetches the current equipment row including soft-deleted ones.
func Reload(t testing.TB, db *gorm.DB, id uuid.UUID) models.Equipment {
	t.Helper()
	var item models.Equipment
	if err := db.Unscoped().First(&item, "id = ?", id).Error; err != nil {
		t.Fatalf("reload equipment: %v", err)
	}
	return item
}

// MustIssuance seeds an open issuance row without touching stock.
func MustIssuance(t testing.TB, db *gorm.DB, collaborator *models.Collaborator, item *models.Equipment, issuer *models.User, qty int) *models.Issuance {
	t.Helper()
	rec := &models.Issuance{
		CollaboratorID: collaborator.ID,
		EquipmentID:    item.ID,
		Snapshot: models.EquipmentSnapshot{
			Name:              item.Name,
			CertificateNumber: item.CertificateNumber,
			CertificateExpiry: item.CertificateExpiry,
			ProtectionLevel:   item.ProtectionLevel,
		},
		Quantity: qty,
		IssuedAt: time.Now().UTC(),
		IssuedBy: issuer.ID,
		Validity: enums.IssuanceValidityValid,
	}
	if err := db.Omit("Collaborator", "Equipment", "Issuer", "Returner").Create(rec).Error; err != nil {
		t.Fatalf("create issuance: %v", err)
	}
	return rec
}
