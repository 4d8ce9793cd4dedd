package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// Risk is an occupational hazard mapped to a sector. Level and Classification
// are derived from Probability and Severity by the risks service.
type Risk struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Name           string                   `gorm:"column:name;not null"`
	Category       enums.RiskCategory       `gorm:"column:category;not null"`
	SectorID       *uuid.UUID               `gorm:"column:sector_id;type:uuid;index"`
	Sector         *Sector                  `gorm:"foreignKey:SectorID"`
	Description    *string                  `gorm:"column:description"`
	Probability    int                      `gorm:"column:probability;not null"`
	Severity       int                      `gorm:"column:severity;not null"`
	Level          int                      `gorm:"column:level;not null"`
	Classification enums.RiskClassification `gorm:"column:classification;not null"`
	Mitigation     *string                  `gorm:"column:mitigation"`
	Owner          *string                  `gorm:"column:owner"`
	Status         enums.RiskStatus         `gorm:"column:status;not null;default:active"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Risk) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
