package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxActive contextKey = "actor_active"
	ctxJTI    contextKey = "access_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// AccessIDFromContext returns the session id (jti) of the presented access token.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxJTI).(string); ok {
		return v
	}
	return ""
}

// Principal is the authenticated caller as seen by the route layer.
type Principal struct {
	UserID uuid.UUID
	Role   enums.MemberRole
	Active bool
}

// PrincipalFromContext assembles the caller. ok is false when the request
// never passed through Auth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return Principal{}, false
	}
	active, _ := ctx.Value(ctxActive).(bool)
	return Principal{
		UserID: id,
		Role:   enums.MemberRole(RoleFromContext(ctx)),
		Active: active,
	}, true
}

// WithPrincipal injects an authenticated caller into the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, p.UserID.String())
	ctx = context.WithValue(ctx, ctxRole, string(p.Role))
	return context.WithValue(ctx, ctxActive, p.Active)
}

// WithAccessID injects the access token's session id.
func WithAccessID(ctx context.Context, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxJTI, accessID)
}
