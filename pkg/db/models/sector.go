package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sector is a work area collaborators and risks belong to.
type Sector struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name        string    `gorm:"column:name;not null;uniqueIndex"`
	Description *string   `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Sector) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
