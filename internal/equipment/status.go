package equipment

import (
	"time"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// expiryHour pins certificate expiry dates to midday so a date-only value
// never shifts across a day boundary when converted between UTC and local time.
const expiryHour = 12

// ComputeStatus derives the item status: expired when the certificate expired
// before now, out of stock when stock <= 0, active otherwise.
func ComputeStatus(expiry time.Time, stock int, now time.Time) enums.EquipmentStatus {
	if expiry.Before(now) {
		return enums.EquipmentStatusExpired
	}
	if stock <= 0 {
		return enums.EquipmentStatusOutOfStock
	}
	return enums.EquipmentStatusActive
}

// NormalizeExpiry keeps the calendar date of date and sets the time to 12:00 in loc.
// The result is returned in UTC for storage.
func NormalizeExpiry(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, expiryHour, 0, 0, 0, loc).UTC()
}

// ResolveUpdate merges patch onto current: every field present in the patch
// wins, every absent field keeps its persisted value. Status is recomputed
// from the effective expiry and stock.
func ResolveUpdate(current models.Equipment, patch UpdateInput, loc *time.Location, now time.Time) models.Equipment {
	next := current
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Category != nil {
		next.Category = *patch.Category
	}
	if patch.CertificateNumber != nil {
		next.CertificateNumber = *patch.CertificateNumber
	}
	if patch.CertificateExpiry != nil {
		next.CertificateExpiry = NormalizeExpiry(*patch.CertificateExpiry, loc)
	}
	if patch.Stock != nil {
		next.Stock = *patch.Stock
	}
	if patch.ProtectionLevel != nil {
		next.ProtectionLevel = *patch.ProtectionLevel
	}
	if patch.Description != nil {
		next.Description = patch.Description
	}
	if patch.ImageURL != nil {
		next.ImageURL = patch.ImageURL
	}
	next.Status = ComputeStatus(next.CertificateExpiry, next.Stock, now)
	return next
}
