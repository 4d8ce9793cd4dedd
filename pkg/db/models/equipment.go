package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// Equipment is a PPE stock-keeping unit. Stock is only moved through the
// registry's conditional increment/decrement; Status is derived.
type Equipment struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Name              string                  `gorm:"column:name;not null"`
	Category          enums.EquipmentCategory `gorm:"column:category;not null"`
	CertificateNumber string                  `gorm:"column:certificate_number;not null"`
	CertificateExpiry time.Time               `gorm:"column:certificate_expiry;not null"`
	Stock             int                     `gorm:"column:stock;not null;default:0;check:stock >= 0"`
	ProtectionLevel   string                  `gorm:"column:protection_level;not null;default:''"`
	Description       *string                 `gorm:"column:description"`
	ImageURL          *string                 `gorm:"column:image_url"`
	Status            enums.EquipmentStatus   `gorm:"column:status;not null"`
	Risks             []Risk                  `gorm:"many2many:equipment_risks;joinForeignKey:EquipmentID;joinReferences:RiskID"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         gorm.DeletedAt          `gorm:"column:deleted_at;index"`
}

func (Equipment) TableName() string { return "equipment" }

func (e *Equipment) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
