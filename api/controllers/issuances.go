package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	"github.com/angelmondragon/epiguard-backend/internal/issuance"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

type issueRequest struct {
	CollaboratorID uuid.UUID `json:"collaborator_id"`
	EquipmentID    uuid.UUID `json:"equipment_id"`
	Quantity       int       `json:"quantity"`
	Notes          *string   `json:"notes" validate:"omitempty,max=2000"`
	Signature      *string   `json:"signature"`
}

type returnRequest struct {
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
	Signature *string `json:"signature"`
}

// CreateIssuance hands units of an item to a collaborator.
func CreateIssuance(svc issuance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}
		p, err := currentPrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body issueRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Issue(r.Context(), issuanceActor(p), issuance.IssueInput{
			CollaboratorID: body.CollaboratorID,
			EquipmentID:    body.EquipmentID,
			Quantity:       body.Quantity,
			Notes:          body.Notes,
			Signature:      body.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, record)
	}
}

// ReturnIssuance closes an open issuance and restores its stock.
func ReturnIssuance(svc issuance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}
		p, err := currentPrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLUUID(r, "issuanceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body returnRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		record, err := svc.Return(r.Context(), issuanceActor(p), id, issuance.ReturnInput{
			Notes:     body.Notes,
			Signature: body.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

func DeleteIssuance(svc issuance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}
		p, err := currentPrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLUUID(r, "issuanceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), issuanceActor(p), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}

func GetIssuance(svc issuance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}
		id, err := validators.ParseURLUUID(r, "issuanceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// ListIssuances pages the ledger. from/to are YYYY-MM-DD in loc.
func ListIssuances(svc issuance.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}

		filter, err := parseIssuanceFilter(r, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func IssuanceReport(svc issuance.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}
		from, err := validators.ParseQueryDate(r, "from", loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to", loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Report(r.Context(), from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func parseIssuanceFilter(r *http.Request, loc *time.Location) (issuance.ListFilter, error) {
	var (
		filter issuance.ListFilter
		err    error
	)
	if filter.EquipmentID, err = validators.ParseQueryUUID(r, "equipment_id"); err != nil {
		return filter, err
	}
	if filter.CollaboratorID, err = validators.ParseQueryUUID(r, "collaborator_id"); err != nil {
		return filter, err
	}
	if filter.SectorID, err = validators.ParseQueryUUID(r, "sector_id"); err != nil {
		return filter, err
	}
	if filter.From, err = validators.ParseQueryDate(r, "from", loc); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryDate(r, "to", loc); err != nil {
		return filter, err
	}
	if filter.Returned, err = validators.ParseQueryBool(r, "returned"); err != nil {
		return filter, err
	}
	if filter.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return filter, err
	}
	filter.Cursor = validators.SanitizeString(r.URL.Query().Get("cursor"), 512)
	return filter, nil
}

// EquipmentForecast serves GET /equipment/{equipmentId}/forecast.
func EquipmentForecast(svc issuance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}
		id, err := validators.ParseURLUUID(r, "equipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		months, err := validators.ParseQueryInt(r, "months", issuance.DefaultForecastMonths, 1, issuance.MaxForecastMonths)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ahead, err := validators.ParseQueryInt(r, "future", issuance.DefaultForecastAhead, 1, issuance.MaxForecastAhead)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		forecast, err := svc.Forecast(r.Context(), id, issuance.ForecastParams{Months: months, Ahead: ahead})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, forecast)
	}
}
