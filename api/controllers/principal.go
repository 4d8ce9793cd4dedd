package controllers

import (
	"net/http"

	"github.com/angelmondragon/epiguard-backend/api/middleware"
	"github.com/angelmondragon/epiguard-backend/internal/issuance"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

func currentPrincipal(r *http.Request) (middleware.Principal, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return middleware.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return p, nil
}

func issuanceActor(p middleware.Principal) issuance.Actor {
	return issuance.Actor{UserID: p.UserID, Role: p.Role, Active: p.Active}
}
