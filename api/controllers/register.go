package controllers

import (
	"net/http"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	"github.com/angelmondragon/epiguard-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// AuthRegister creates an account and signs it in. The account exists once
// Register succeeds, so a failed sign-in still answers 201 with the user and
// no tokens; the client then logs in normally instead of retrying into a
// duplicate-email conflict.
func AuthRegister(reg auth.RegisterService, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reg == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		user, err := reg.Register(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/users/"+user.ID.String())

		session, err := svc.Login(ctx, auth.LoginRequest{Email: body.Email, Password: body.Password})
		if err != nil {
			if logg != nil {
				logg.WarnErr(logg.WithUserID(ctx, user.ID.String()), "sign-in after registration failed", err)
			}
			responses.WriteCreated(w, auth.LoginResponse{User: user})
			return
		}
		responses.WriteCreated(w, session)
	}
}
