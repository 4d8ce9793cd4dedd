package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	"github.com/angelmondragon/epiguard-backend/internal/collaborators"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

type createCollaboratorRequest struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Registration string     `json:"registration" validate:"required,max=50"`
	JobTitle     string     `json:"job_title" validate:"max=120"`
	Phone        *string    `json:"phone" validate:"omitempty,max=40"`
	Email        *string    `json:"email" validate:"omitempty,email"`
	SectorID     *uuid.UUID `json:"sector_id"`
}

type updateCollaboratorRequest struct {
	Name         *string    `json:"name" validate:"omitempty,max=200"`
	Registration *string    `json:"registration" validate:"omitempty,max=50"`
	JobTitle     *string    `json:"job_title" validate:"omitempty,max=120"`
	Phone        *string    `json:"phone" validate:"omitempty,max=40"`
	Email        *string    `json:"email" validate:"omitempty,email"`
	IsActive     *bool      `json:"is_active"`
	SectorID     *uuid.UUID `json:"sector_id"`
	ClearSector  bool       `json:"clear_sector"`
}

func collaboratorsUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "collaborators service unavailable")
}

func CreateCollaborator(svc collaborators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, collaboratorsUnavailable())
			return
		}
		var body createCollaboratorRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Create(r.Context(), collaborators.CreateInput{
			Name:         body.Name,
			Registration: body.Registration,
			JobTitle:     body.JobTitle,
			Phone:        body.Phone,
			Email:        body.Email,
			SectorID:     body.SectorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, out)
	}
}

func GetCollaborator(svc collaborators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, collaboratorsUnavailable())
			return
		}
		id, err := validators.ParseURLUUID(r, "collaboratorId")
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

func ListCollaborators(svc collaborators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, collaboratorsUnavailable())
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sectorID, err := validators.ParseQueryUUID(r, "sector_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		active, err := validators.ParseQueryBool(r, "active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		out, err := svc.List(r.Context(), collaborators.ListParams{
			SectorID: sectorID,
			Active:   active,
			Search:   validators.SanitizeString(q.Get("search"), 100),
			Limit:    limit,
			Cursor:   validators.SanitizeString(q.Get("cursor"), 512),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func UpdateCollaborator(svc collaborators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, collaboratorsUnavailable())
			return
		}
		id, err := validators.ParseURLUUID(r, "collaboratorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateCollaboratorRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Update(r.Context(), id, collaborators.UpdateInput{
			Name:         body.Name,
			Registration: body.Registration,
			JobTitle:     body.JobTitle,
			Phone:        body.Phone,
			Email:        body.Email,
			IsActive:     body.IsActive,
			SectorID:     body.SectorID,
			ClearSector:  body.ClearSector,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// DeleteCollaborator removes the collaborator, or deactivates it when
// issuances still reference it.
func DeleteCollaborator(svc collaborators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, collaboratorsUnavailable())
			return
		}
		id, err := validators.ParseURLUUID(r, "collaboratorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Delete(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
