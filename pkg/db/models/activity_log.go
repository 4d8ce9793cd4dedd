package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// ActivityLog is an append-only audit trail entry.
type ActivityLog struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	Action    enums.ActivityAction `gorm:"column:action;not null"`
	Details   json.RawMessage      `gorm:"column:details;type:jsonb"`
	IP        *string              `gorm:"column:ip"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (a *ActivityLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
