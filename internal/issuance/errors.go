package issuance

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

var (
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrUnknownEquipment    = errors.New("unknown equipment")
	ErrUnknownCollaborator = errors.New("unknown collaborator")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNotFound            = errors.New("issuance not found")
	ErrAlreadyReturned     = errors.New("issuance already returned")
	ErrEquipmentMissing    = errors.New("issued equipment no longer exists")
	ErrForbidden           = errors.New("actor may not delete issuances")
	ErrUnauthenticated     = errors.New("actor missing or inactive")
)

// Reasons surfaced in error details so clients can branch without parsing messages.
const (
	ReasonInvalidQuantity     = "invalid_quantity"
	ReasonUnknownEquipment    = "unknown_equipment"
	ReasonUnknownCollaborator = "unknown_collaborator"
	ReasonInsufficientStock   = "insufficient_stock"
	ReasonAlreadyReturned     = "already_returned"
	ReasonEquipmentMissing    = "equipment_missing"
)

func invalidQuantity(qty int) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidQuantity, "quantity must be at least 1").
		WithReason(ReasonInvalidQuantity, "quantity", qty)
}

func missingField(field string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, field+" is required").
		WithDetails(map[string]any{"field": field})
}

func unknownEquipment(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrUnknownEquipment, "equipment does not exist").
		WithReason(ReasonUnknownEquipment, "equipment_id", id)
}

func unknownCollaborator(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrUnknownCollaborator, "collaborator does not exist").
		WithReason(ReasonUnknownCollaborator, "collaborator_id", id)
}

func insufficientStock(available, requested int) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"reason":    ReasonInsufficientStock,
			"available": available,
			"requested": requested,
		})
}

func alreadyReturned(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAlreadyReturned, "issuance already returned").
		WithReason(ReasonAlreadyReturned, "issuance_id", id)
}

func equipmentMissing(equipmentID uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeIntegrity, ErrEquipmentMissing, "issued equipment no longer exists").
		WithReason(ReasonEquipmentMissing, "equipment_id", equipmentID)
}

func notFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrNotFound, "issuance not found")
}

func forbidden() error {
	return pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrForbidden, "only admins and managers may delete issuances")
}

func unauthenticated() error {
	return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, ErrUnauthenticated, "active user required")
}

// outcomeOf labels an operation result for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "internal_error"
	}
	if details, ok := typed.Details().(map[string]any); ok {
		if reason, ok := details["reason"].(string); ok && reason != "" {
			return reason
		}
	}
	return strings.ToLower(string(typed.Code()))
}
