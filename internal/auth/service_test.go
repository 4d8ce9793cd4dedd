package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/activity"
	pkgAuth "github.com/angelmondragon/epiguard-backend/pkg/auth"
	"github.com/angelmondragon/epiguard-backend/pkg/auth/session"
	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "epiguard",
	ExpirationMinutes: 30,
}

func TestServiceLoginMintsRoleClaim(t *testing.T) {
	password := "manager-secret"
	user := &models.User{
		ID:           uuid.New(),
		Name:         "Marta",
		Email:        "marta@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.MemberRoleManager,
		IsActive:     true,
	}

	svc, sessions, log := buildTestService(t, user)
	resp, err := svc.Login(context.Background(), LoginRequest{Email: "  MARTA@example.com ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.MemberRoleManager {
		t.Fatalf("expected manager role claim, got %s", claims.Role)
	}
	if claims.ID == "" || sessions.generated != claims.ID {
		t.Fatalf("refresh session not bound to jti: %q vs %q", sessions.generated, claims.ID)
	}
	if resp.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected refresh token %q", resp.RefreshToken)
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
	if len(log.actions) != 1 || log.actions[0] != enums.ActivityLogin {
		t.Fatalf("expected login activity, got %v", log.actions)
	}
	if sessions.owner != user.ID {
		t.Fatalf("session not indexed under the user, got %s", sessions.owner)
	}
	if got := log.events(); len(got) != 1 || got[0] != enums.SecurityLoginSuccess {
		t.Fatalf("expected login_success security event, got %v", got)
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "tech@example.com",
		PasswordHash: mustHashPassword(t, "right-password"),
		Role:         enums.MemberRoleTechnician,
		IsActive:     true,
	}
	svc, _, log := buildTestService(t, user)

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "wrong-password"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	user.IsActive = false
	_, err = svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "right-password"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for inactive user, got %v", err)
	}
	if len(log.actions) != 0 {
		t.Fatalf("failed logins must not be recorded as activity")
	}
	if len(log.security) != 2 {
		t.Fatalf("expected two login_failed events, got %v", log.events())
	}
	for i, reason := range []string{"bad_password", "account_inactive"} {
		got := log.security[i]
		if got.Event != enums.SecurityLoginFailed || got.Details != reason || got.UserID == nil || *got.UserID != user.ID {
			t.Fatalf("event %d: unexpected %+v", i, got)
		}
	}
}

func TestServiceLoginUnknownEmail(t *testing.T) {
	svc, _, log := buildTestService(t, nil)
	_, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "x"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(log.security) != 1 {
		t.Fatalf("expected one security event, got %v", log.events())
	}
	got := log.security[0]
	if got.Event != enums.SecurityLoginFailed || got.UserID != nil || got.Email != "ghost@example.com" || got.Details != "unknown_email" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestServiceRefreshUsesCurrentRole(t *testing.T) {
	user := &models.User{ID: uuid.New(), Role: enums.MemberRoleAdmin, IsActive: true}
	svc, sessions, _ := buildTestService(t, user)

	resp, err := svc.Refresh(context.Background(), "old-access", "refresh-token", user.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != "rotated-access" || claims.Role != enums.MemberRoleAdmin {
		t.Fatalf("unexpected claims: id=%s role=%s", claims.ID, claims.Role)
	}
	if resp.RefreshToken != "rotated-refresh" {
		t.Fatalf("unexpected refresh token %q", resp.RefreshToken)
	}

	sessions.rotateErr = session.ErrInvalidRefreshToken
	_, err = svc.Refresh(context.Background(), "old-access", "stale", user.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestServiceRefreshRevokesDeactivatedAccount(t *testing.T) {
	user := &models.User{ID: uuid.New(), Role: enums.MemberRoleTechnician, IsActive: false}
	svc, sessions, _ := buildTestService(t, user)

	_, err := svc.Refresh(context.Background(), "access-1", "refresh-token", user.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if sessions.revoked != "access-1" {
		t.Fatalf("expected session revoked, got %q", sessions.revoked)
	}
}

func TestServiceLogout(t *testing.T) {
	svc, sessions, log := buildTestService(t, nil)
	userID := uuid.New()
	if err := svc.Logout(context.Background(), userID, "access-9"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sessions.revoked != "access-9" {
		t.Fatalf("expected revoke, got %q", sessions.revoked)
	}
	if len(log.security) != 1 || log.security[0].Event != enums.SecurityLogout || *log.security[0].UserID != userID {
		t.Fatalf("expected logout security event, got %+v", log.security)
	}
	if err := svc.Logout(context.Background(), userID, " "); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for blank session, got %v", err)
	}
}

func TestServiceMeIncludesRecentActivity(t *testing.T) {
	user := &models.User{ID: uuid.New(), Name: "Ivo", Role: enums.MemberRoleTechnician, IsActive: true}
	svc, _, log := buildTestService(t, user)
	log.entries = []activity.Entry{{ID: uuid.New(), UserID: user.ID, Action: enums.ActivityLogin}}

	me, err := svc.Me(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.User.Name != "Ivo" || len(me.RecentActivity) != 1 {
		t.Fatalf("unexpected profile %+v", me)
	}
	if log.limit != recentActivityLimit {
		t.Fatalf("expected limit %d, got %d", recentActivityLimit, log.limit)
	}

	if _, err := svc.Me(context.Background(), uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoginUpgradesOutdatedHash(t *testing.T) {
	password := "storekeeper-secret"
	original := mustHashPassword(t, password)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "stock@example.com",
		Name:         "Rita",
		Role:         enums.MemberRoleManager,
		PasswordHash: original,
		IsActive:     true,
	}
	current := config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 2, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	svc, err := NewService(ServiceParams{
		UserRepo:       stubUserRepo{user: user},
		SessionManager: &stubSessionManager{refreshToken: "refresh-token"},
		JWTConfig:      testJWT,
		Password:       &current,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: password}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.PasswordHash == original {
		t.Fatalf("expected hash to be upgraded")
	}
	if security.NeedsRehash(user.PasswordHash, current) {
		t.Fatalf("upgraded hash still uses old costs")
	}
	if ok, err := security.VerifyPassword(password, user.PasswordHash); err != nil || !ok {
		t.Fatalf("upgraded hash does not verify: %v", err)
	}

	upgraded := user.PasswordHash
	if _, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: password}); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if user.PasswordHash != upgraded {
		t.Fatalf("hash rewritten although costs match")
	}
}

func buildTestService(t *testing.T, user *models.User) (Service, *stubSessionManager, *stubActivity) {
	t.Helper()
	sessionMgr := &stubSessionManager{refreshToken: "refresh-token"}
	log := &stubActivity{}
	svc, err := NewService(ServiceParams{
		UserRepo:       stubUserRepo{user: user},
		SessionManager: sessionMgr,
		Activity:       log,
		Security:       log,
		JWTConfig:      testJWT,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, sessionMgr, log
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	user *models.User
	err  error
}

func (s stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s stubUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	if s.user != nil && s.user.ID == id {
		s.user.PasswordHash = hash
	}
	return nil
}

func (s stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.user != nil && s.user.ID == id {
		s.user.LastLoginAt = &at
	}
	return nil
}

type stubSessionManager struct {
	refreshToken string
	generated    string
	owner        uuid.UUID
	revoked      string
	rotateErr    error
}

func (s *stubSessionManager) Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	s.generated = accessID
	s.owner = userID
	return s.refreshToken, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	if s.rotateErr != nil {
		return "", "", s.rotateErr
	}
	return "rotated-access", "rotated-refresh", nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = accessID
	return nil
}

type stubActivity struct {
	security []activity.SecurityInput
	actions  []enums.ActivityAction
	entries []activity.Entry
	limit   int
}

func (s *stubActivity) Record(ctx context.Context, userID uuid.UUID, action enums.ActivityAction, details map[string]any) {
	s.actions = append(s.actions, action)
}

func (s *stubActivity) RecordSecurity(ctx context.Context, in activity.SecurityInput) {
	s.security = append(s.security, in)
}

func (s *stubActivity) events() []enums.SecurityEvent {
	out := make([]enums.SecurityEvent, 0, len(s.security))
	for _, in := range s.security {
		out = append(out, in.Event)
	}
	return out
}

func (s *stubActivity) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]activity.Entry, error) {
	s.limit = limit
	return s.entries, nil
}
