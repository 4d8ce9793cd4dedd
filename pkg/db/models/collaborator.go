package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Collaborator is a worker who receives PPE.
type Collaborator struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name         string     `gorm:"column:name;not null"`
	Registration string     `gorm:"column:registration;not null;uniqueIndex"`
	JobTitle     string     `gorm:"column:job_title;not null"`
	Phone        *string    `gorm:"column:phone"`
	Email        *string    `gorm:"column:email"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	SectorID     *uuid.UUID `gorm:"column:sector_id;type:uuid;index"`
	Sector       *Sector    `gorm:"foreignKey:SectorID"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Collaborator) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
