package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// SecurityEvent records an authentication outcome. UserID is empty when the
// caller could not be identified, such as a login for an unknown email.
type SecurityEvent struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID    *uuid.UUID          `gorm:"column:user_id;type:uuid;index"`
	Email     *string             `gorm:"column:email"`
	Event     enums.SecurityEvent `gorm:"column:event;not null;index"`
	IP        string              `gorm:"column:ip;not null"`
	UserAgent string              `gorm:"column:user_agent;not null"`
	Details   *string             `gorm:"column:details;type:text"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime;index"`
}

func (e *SecurityEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
