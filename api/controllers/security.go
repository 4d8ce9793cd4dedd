package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	"github.com/angelmondragon/epiguard-backend/internal/activity"
	"github.com/angelmondragon/epiguard-backend/internal/users"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

// SecurityEventLister reads the security log.
type SecurityEventLister interface {
	List(ctx context.Context, filter activity.SecurityFilter) (*activity.SecurityPage, error)
}

// ListSecurityEvents serves GET /security/logs. The to date is inclusive.
func ListSecurityEvents(log SecurityEventLister, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if log == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "security log unavailable"))
			return
		}
		filter, err := parseSecurityFilter(r, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := log.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func parseSecurityFilter(r *http.Request, loc *time.Location) (activity.SecurityFilter, error) {
	var (
		filter activity.SecurityFilter
		err    error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("event")); raw != "" {
		event, perr := enums.ParseSecurityEvent(strings.ToLower(raw))
		if perr != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "unknown security event").WithDetails(map[string]any{"field": "event"})
		}
		filter.Event = &event
	}
	if filter.UserID, err = validators.ParseQueryUUID(r, "user_id"); err != nil {
		return filter, err
	}
	filter.Email = validators.SanitizeString(r.URL.Query().Get("email"), 254)
	if filter.From, err = validators.ParseQueryDate(r, "from", loc); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryDate(r, "to", loc); err != nil {
		return filter, err
	}
	if filter.To != nil {
		end := filter.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &end
	}
	if filter.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return filter, err
	}
	filter.Cursor = validators.SanitizeString(r.URL.Query().Get("cursor"), 512)
	return filter, nil
}

// TerminateUserSessions ends every session of another account without
// deactivating it.
func TerminateUserSessions(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}
		p, err := currentPrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ended, err := svc.TerminateSessions(r.Context(), p.UserID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"user_id": id, "sessions_ended": ended})
	}
}
