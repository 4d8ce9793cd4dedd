package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/internal/activity"
	pkgAuth "github.com/angelmondragon/epiguard-backend/pkg/auth"
	"github.com/angelmondragon/epiguard-backend/pkg/auth/session"
	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// AccountChecker reports whether a user may still act. A deactivated account
// keeps a valid token until it expires, so every request is re-checked.
type AccountChecker interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// SecurityRecorder receives rejected tokens and denied requests. Nil skips it.
type SecurityRecorder interface {
	RecordSecurity(ctx context.Context, in activity.SecurityInput)
}

// Auth validates a bearer token and seeds the request context with the caller.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, accounts AccountChecker, audit SecurityRecorder, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				if !errors.Is(err, pkgAuth.ErrTokenExpired) {
					recordSecurity(r.Context(), audit, enums.SecurityTokenInvalid, nil, "token rejected")
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					recordSecurity(r.Context(), audit, enums.SecurityTokenInvalid, &claims.UserID, "session ended")
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			active := true
			if accounts != nil {
				active, err = accounts.IsActive(r.Context(), claims.UserID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check account"))
					return
				}
				if !active {
					recordSecurity(r.Context(), audit, enums.SecurityTokenInvalid, &claims.UserID, "account inactive")
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account disabled"))
					return
				}
			}

			ctx := WithPrincipal(r.Context(), Principal{UserID: claims.UserID, Role: claims.Role, Active: active})
			ctx = WithAccessID(ctx, claims.ID)

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	token := raw
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return token, nil
}

func recordSecurity(ctx context.Context, audit SecurityRecorder, event enums.SecurityEvent, userID *uuid.UUID, details string) {
	if audit == nil {
		return
	}
	audit.RecordSecurity(ctx, activity.SecurityInput{Event: event, UserID: userID, Details: details})
}
