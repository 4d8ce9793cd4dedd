package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	"github.com/angelmondragon/epiguard-backend/internal/risks"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

type createRiskRequest struct {
	Name        string             `json:"name" validate:"required,max=200"`
	Category    enums.RiskCategory `json:"category" validate:"required"`
	SectorID    *uuid.UUID         `json:"sector_id"`
	Description *string            `json:"description"`
	Probability int                `json:"probability" validate:"min=1,max=5"`
	Severity    int                `json:"severity" validate:"min=1,max=5"`
	Mitigation  *string            `json:"mitigation"`
	Owner       *string            `json:"owner" validate:"omitempty,max=120"`
	Status      enums.RiskStatus   `json:"status"`
}

type updateRiskRequest struct {
	Name        *string             `json:"name" validate:"omitempty,max=200"`
	Category    *enums.RiskCategory `json:"category"`
	SectorID    *uuid.UUID          `json:"sector_id"`
	ClearSector bool                `json:"clear_sector"`
	Description *string             `json:"description"`
	Probability *int                `json:"probability" validate:"omitempty,min=1,max=5"`
	Severity    *int                `json:"severity" validate:"omitempty,min=1,max=5"`
	Mitigation  *string             `json:"mitigation"`
	Owner       *string             `json:"owner" validate:"omitempty,max=120"`
	Status      *enums.RiskStatus   `json:"status"`
}

func risksUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "risks service unavailable")
}

func CreateRisk(svc risks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, risksUnavailable())
			return
		}
		var body createRiskRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Create(r.Context(), risks.CreateInput{
			Name:        body.Name,
			Category:    body.Category,
			SectorID:    body.SectorID,
			Description: body.Description,
			Probability: body.Probability,
			Severity:    body.Severity,
			Mitigation:  body.Mitigation,
			Owner:       body.Owner,
			Status:      body.Status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, out)
	}
}

func GetRisk(svc risks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, risksUnavailable())
			return
		}
		id, err := validators.ParseURLUUID(r, "riskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// ListRisks filters by sector, category, classification and status.
func ListRisks(svc risks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, risksUnavailable())
			return
		}
		sectorID, err := validators.ParseQueryUUID(r, "sector_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		params := risks.ListParams{
			SectorID: sectorID,
			Search:   validators.SanitizeString(q.Get("search"), 100),
		}
		if raw := validators.SanitizeString(q.Get("category"), 50); raw != "" {
			category := enums.RiskCategory(raw)
			params.Category = &category
		}
		if raw := validators.SanitizeString(q.Get("classification"), 50); raw != "" {
			classification := enums.RiskClassification(raw)
			params.Classification = &classification
		}
		if raw := validators.SanitizeString(q.Get("status"), 50); raw != "" {
			status := enums.RiskStatus(raw)
			params.Status = &status
		}
		out, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func UpdateRisk(svc risks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, risksUnavailable())
			return
		}
		id, err := validators.ParseURLUUID(r, "riskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateRiskRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Update(r.Context(), id, risks.UpdateInput{
			Name:        body.Name,
			Category:    body.Category,
			SectorID:    body.SectorID,
			ClearSector: body.ClearSector,
			Description: body.Description,
			Probability: body.Probability,
			Severity:    body.Severity,
			Mitigation:  body.Mitigation,
			Owner:       body.Owner,
			Status:      body.Status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func DeleteRisk(svc risks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, risksUnavailable())
			return
		}
		id, err := validators.ParseURLUUID(r, "riskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}
