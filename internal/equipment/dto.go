package equipment

import (
	"time"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateInput carries a new item. Status is derived, never supplied.
type CreateInput struct {
	Name              string
	Category          enums.EquipmentCategory
	CertificateNumber string
	CertificateExpiry time.Time
	Stock             int
	ProtectionLevel   string
	Description       *string
	ImageURL          *string
	RiskIDs           []uuid.UUID
}

// UpdateInput is a partial update; nil fields keep their persisted value.
type UpdateInput struct {
	Name              *string
	Category          *enums.EquipmentCategory
	CertificateNumber *string
	CertificateExpiry *time.Time
	Stock             *int
	ProtectionLevel   *string
	Description       *string
	ImageURL          *string
	RiskIDs           *[]uuid.UUID
}

func (u UpdateInput) touchesStatus() bool {
	return u.Stock != nil || u.CertificateExpiry != nil
}

// ListParams filters the inventory listing.
type ListParams struct {
	Category *enums.EquipmentCategory
	Status   *enums.EquipmentStatus
	Search   string
	Limit    int
	Cursor   string
}

// ListResult wraps a page of items and the cursor for the next page.
type ListResult struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor"`
}

// Item is the API view of an equipment record.
type Item struct {
	ID                uuid.UUID               `json:"id"`
	Name              string                  `json:"name"`
	Category          enums.EquipmentCategory `json:"category"`
	CertificateNumber string                  `json:"certificate_number"`
	CertificateExpiry time.Time               `json:"certificate_expiry"`
	Stock             int                     `json:"stock"`
	ProtectionLevel   string                  `json:"protection_level"`
	Description       *string                 `json:"description,omitempty"`
	ImageURL          *string                 `json:"image_url,omitempty"`
	Status            enums.EquipmentStatus   `json:"status"`
	RiskIDs           []uuid.UUID             `json:"risk_ids"`
	Retired           bool                    `json:"retired,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// Suggestion ranks an in-stock item by how many of the requested risks it covers.
type Suggestion struct {
	Item         Item `json:"item"`
	MatchedRisks int  `json:"matched_risks"`
}

// SuggestInput selects the risks to match: a collaborator's sector risks, explicit ids, or both.
type SuggestInput struct {
	CollaboratorID *uuid.UUID
	RiskIDs        []uuid.UUID
	Limit          int
}

// DeleteResult reports whether the item was retired (soft) or removed.
type DeleteResult struct {
	ID      uuid.UUID `json:"id"`
	Retired bool      `json:"retired"`
}

// FromModel maps a row to its API view. The status is recomputed against now so
// a certificate that lapsed since the last write is reported as expired.
func FromModel(m models.Equipment, now time.Time) Item {
	riskIDs := make([]uuid.UUID, 0, len(m.Risks))
	for _, r := range m.Risks {
		riskIDs = append(riskIDs, r.ID)
	}
	return Item{
		ID:                m.ID,
		Name:              m.Name,
		Category:          m.Category,
		CertificateNumber: m.CertificateNumber,
		CertificateExpiry: m.CertificateExpiry,
		Stock:             m.Stock,
		ProtectionLevel:   m.ProtectionLevel,
		Description:       m.Description,
		ImageURL:          m.ImageURL,
		Status:            ComputeStatus(m.CertificateExpiry, m.Stock, now),
		RiskIDs:           riskIDs,
		Retired:           m.DeletedAt.Valid,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
