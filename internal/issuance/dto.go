package issuance

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

// Actor is the authenticated user on whose behalf the core acts.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
	Active bool
}

func (a Actor) valid() bool {
	return a.Active && a.UserID != uuid.Nil && a.Role.IsValid()
}

// IssueInput hands quantity units of an item to a collaborator.
type IssueInput struct {
	CollaboratorID uuid.UUID
	EquipmentID    uuid.UUID
	Quantity       int
	Notes          *string
	Signature      *string
}

type ReturnInput struct {
	Notes     *string
	Signature *string
}

// ListFilter narrows the ledger listing. From and To are calendar dates in the
// reference timezone; To includes its whole day.
type ListFilter struct {
	EquipmentID    *uuid.UUID
	CollaboratorID *uuid.UUID
	SectorID       *uuid.UUID
	From           *time.Time
	To             *time.Time
	Returned       *bool
	Limit          int
	Cursor         string
}

type ListResult struct {
	Items  []Record `json:"items"`
	Cursor string   `json:"cursor,omitempty"`
}

// Snapshot is the frozen view of the item at issuance time.
type Snapshot struct {
	Name              string    `json:"name"`
	CertificateNumber string    `json:"certificate_number"`
	CertificateExpiry time.Time `json:"certificate_expiry"`
	ProtectionLevel   string    `json:"protection_level"`
	ImageURL          *string   `json:"image_url,omitempty"`
}

type SectorRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type CollaboratorRef struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Registration string     `json:"registration"`
	JobTitle     string     `json:"job_title"`
	Sector       *SectorRef `json:"sector,omitempty"`
}

type UserRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Record is the API view of an issuance.
type Record struct {
	ID              uuid.UUID              `json:"id"`
	CollaboratorID  uuid.UUID              `json:"collaborator_id"`
	Collaborator    *CollaboratorRef       `json:"collaborator,omitempty"`
	EquipmentID     uuid.UUID              `json:"equipment_id"`
	Snapshot        Snapshot               `json:"equipment_snapshot"`
	Quantity        int                    `json:"quantity"`
	IssuedAt        time.Time              `json:"issued_at"`
	IssuedBy        UserRef                `json:"issued_by"`
	Notes           *string                `json:"notes,omitempty"`
	Signature       *string                `json:"signature,omitempty"`
	Validity        enums.IssuanceValidity `json:"validity_status"`
	Returned        bool                   `json:"returned"`
	ReturnedAt      *time.Time             `json:"returned_at,omitempty"`
	ReturnedBy      *UserRef               `json:"returned_by,omitempty"`
	ReturnNotes     *string                `json:"return_notes,omitempty"`
	ReturnSignature *string                `json:"return_signature,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// FromModel maps a ledger row, with whatever relations were preloaded, to its API view.
func FromModel(m models.Issuance) Record {
	rec := Record{
		ID:             m.ID,
		CollaboratorID: m.CollaboratorID,
		EquipmentID:    m.EquipmentID,
		Snapshot: Snapshot{
			Name:              m.Snapshot.Name,
			CertificateNumber: m.Snapshot.CertificateNumber,
			CertificateExpiry: m.Snapshot.CertificateExpiry,
			ProtectionLevel:   m.Snapshot.ProtectionLevel,
			ImageURL:          m.Snapshot.ImageURL,
		},
		Quantity:        m.Quantity,
		IssuedAt:        m.IssuedAt,
		IssuedBy:        UserRef{ID: m.IssuedBy},
		Notes:           m.Notes,
		Signature:       m.Signature,
		Validity:        m.Validity,
		Returned:        m.Returned,
		ReturnedAt:      m.ReturnedAt,
		ReturnNotes:     m.ReturnNotes,
		ReturnSignature: m.ReturnSignature,
		CreatedAt:       m.CreatedAt,
	}
	if m.Issuer != nil {
		rec.IssuedBy.Name = m.Issuer.Name
	}
	if m.ReturnedBy != nil {
		rec.ReturnedBy = &UserRef{ID: *m.ReturnedBy}
		if m.Returner != nil {
			rec.ReturnedBy.Name = m.Returner.Name
		}
	}
	if c := m.Collaborator; c != nil {
		rec.Collaborator = &CollaboratorRef{
			ID:           c.ID,
			Name:         c.Name,
			Registration: c.Registration,
			JobTitle:     c.JobTitle,
		}
		if c.Sector != nil {
			rec.Collaborator.Sector = &SectorRef{ID: c.Sector.ID, Name: c.Sector.Name}
		}
	}
	return rec
}

// Report aggregates issued units over a period.
type Report struct {
	From           *time.Time          `json:"from,omitempty"`
	To             *time.Time          `json:"to,omitempty"`
	TotalRecords   int                 `json:"total_records"`
	TotalUnits     int                 `json:"total_units"`
	ReturnedUnits  int                 `json:"returned_units"`
	ByEquipment    []EquipmentTotal    `json:"by_equipment"`
	ByCollaborator []CollaboratorTotal `json:"by_collaborator"`
}

type EquipmentTotal struct {
	EquipmentID   uuid.UUID `json:"equipment_id"`
	Name          string    `json:"name"`
	Records       int       `json:"records"`
	Units         int       `json:"units"`
	ReturnedUnits int       `json:"returned_units"`
	CurrentStock  *int      `json:"current_stock"`
}

type CollaboratorTotal struct {
	CollaboratorID uuid.UUID `json:"collaborator_id"`
	Name           string    `json:"name"`
	Records        int       `json:"records"`
	Units          int       `json:"units"`
}
