package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

type createEquipmentRequest struct {
	Name              string                  `json:"name" validate:"required,max=200"`
	Category          enums.EquipmentCategory `json:"category" validate:"required"`
	CertificateNumber string                  `json:"certificate_number" validate:"required,max=100"`
	CertificateExpiry calendarDate            `json:"certificate_expiry"`
	Stock             int                     `json:"stock" validate:"min=0"`
	ProtectionLevel   string                  `json:"protection_level" validate:"max=100"`
	Description       *string                 `json:"description"`
	ImageURL          *string                 `json:"image_url" validate:"omitempty,url"`
	RiskIDs           []uuid.UUID             `json:"risk_ids"`
}

type updateEquipmentRequest struct {
	Name              *string                  `json:"name" validate:"omitempty,max=200"`
	Category          *enums.EquipmentCategory `json:"category"`
	CertificateNumber *string                  `json:"certificate_number" validate:"omitempty,max=100"`
	CertificateExpiry *calendarDate            `json:"certificate_expiry"`
	Stock             *int                     `json:"stock" validate:"omitempty,min=0"`
	ProtectionLevel   *string                  `json:"protection_level" validate:"omitempty,max=100"`
	Description       *string                  `json:"description"`
	ImageURL          *string                  `json:"image_url" validate:"omitempty,url"`
	RiskIDs           *[]uuid.UUID             `json:"risk_ids"`
}

type suggestEquipmentRequest struct {
	CollaboratorID *uuid.UUID  `json:"collaborator_id"`
	RiskIDs        []uuid.UUID `json:"risk_ids"`
	Limit          int         `json:"limit" validate:"min=0,max=50"`
}

func CreateEquipment(svc equipment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "equipment service unavailable"))
			return
		}
		p, err := currentPrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createEquipmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Create(r.Context(), p.UserID, equipment.CreateInput{
			Name:              body.Name,
			Category:          body.Category,
			CertificateNumber: body.CertificateNumber,
			CertificateExpiry: body.CertificateExpiry.Time,
			Stock:             body.Stock,
			ProtectionLevel:   body.ProtectionLevel,
			Description:       body.Description,
			ImageURL:          body.ImageURL,
			RiskIDs:           body.RiskIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, item)
	}
}

func GetEquipment(svc equipment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "equipment service unavailable"))
			return
		}
		id, err := validators.ParseURLUUID(r, "equipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ListEquipment filters by category, status and a name/certificate search.
func ListEquipment(svc equipment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "equipment service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		params := equipment.ListParams{
			Search: validators.SanitizeString(q.Get("search"), 100),
			Limit:  limit,
			Cursor: validators.SanitizeString(q.Get("cursor"), 512),
		}
		if raw := validators.SanitizeString(q.Get("category"), 50); raw != "" {
			category := enums.EquipmentCategory(raw)
			params.Category = &category
		}
		if raw := validators.SanitizeString(q.Get("status"), 50); raw != "" {
			status := enums.EquipmentStatus(raw)
			params.Status = &status
		}
		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func UpdateEquipment(svc equipment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "equipment service unavailable"))
			return
		}
		p, err := currentPrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLUUID(r, "equipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateEquipmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := equipment.UpdateInput{
			Name:              body.Name,
			Category:          body.Category,
			CertificateNumber: body.CertificateNumber,
			Stock:             body.Stock,
			ProtectionLevel:   body.ProtectionLevel,
			Description:       body.Description,
			ImageURL:          body.ImageURL,
			RiskIDs:           body.RiskIDs,
		}
		if body.CertificateExpiry != nil {
			expiry := body.CertificateExpiry.Time
			input.CertificateExpiry = &expiry
		}
		item, err := svc.Update(r.Context(), p.UserID, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func DeleteEquipment(svc equipment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "equipment service unavailable"))
			return
		}
		p, err := currentPrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLUUID(r, "equipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Delete(r.Context(), p.UserID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SuggestEquipment ranks in-stock items against a collaborator's sector risks
// and any explicit risk ids.
func SuggestEquipment(svc equipment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "equipment service unavailable"))
			return
		}
		var body suggestEquipmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		suggestions, err := svc.Suggest(r.Context(), equipment.SuggestInput{
			CollaboratorID: body.CollaboratorID,
			RiskIDs:        body.RiskIDs,
			Limit:          body.Limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, suggestions)
	}
}
