package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// EquipmentSnapshot freezes the equipment fields that matter for audit at the
// moment of issuance. It is written once by the insert and never updated.
type EquipmentSnapshot struct {
	Name              string    `gorm:"column:name;not null"`
	CertificateNumber string    `gorm:"column:certificate_number;not null"`
	CertificateExpiry time.Time `gorm:"column:certificate_expiry;not null"`
	ProtectionLevel   string    `gorm:"column:protection_level;not null;default:''"`
	ImageURL          *string   `gorm:"column:image_url"`
}

// Issuance records units of equipment handed to a collaborator.
type Issuance struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CollaboratorID  uuid.UUID              `gorm:"column:collaborator_id;type:uuid;not null;index"`
	Collaborator    *Collaborator          `gorm:"foreignKey:CollaboratorID"`
	EquipmentID     uuid.UUID              `gorm:"column:equipment_id;type:uuid;not null;index"`
	Equipment       *Equipment             `gorm:"foreignKey:EquipmentID"`
	Snapshot        EquipmentSnapshot      `gorm:"embedded;embeddedPrefix:snapshot_"`
	Quantity        int                    `gorm:"column:quantity;not null;check:quantity >= 1"`
	IssuedAt        time.Time              `gorm:"column:issued_at;not null;index"`
	IssuedBy        uuid.UUID              `gorm:"column:issued_by;type:uuid;not null"`
	Issuer          *User                  `gorm:"foreignKey:IssuedBy"`
	Notes           *string                `gorm:"column:notes"`
	Signature       *string                `gorm:"column:signature"`
	Validity        enums.IssuanceValidity `gorm:"column:validity_status;not null"`
	Returned        bool                   `gorm:"column:returned;not null;default:false"`
	ReturnedAt      *time.Time             `gorm:"column:returned_at"`
	ReturnedBy      *uuid.UUID             `gorm:"column:returned_by;type:uuid"`
	Returner        *User                  `gorm:"foreignKey:ReturnedBy"`
	ReturnNotes     *string                `gorm:"column:return_notes"`
	ReturnSignature *string                `gorm:"column:return_signature"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Issuance) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
