package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/activity"
	"github.com/angelmondragon/epiguard-backend/internal/users"
	pkgAuth "github.com/angelmondragon/epiguard-backend/pkg/auth"
	"github.com/angelmondragon/epiguard-backend/pkg/auth/session"
	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/security"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	recentActivityLimit       = 10
)

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, accessID, refreshToken string, userID uuid.UUID) (*RefreshResponse, error)
	Logout(ctx context.Context, userID uuid.UUID, accessID string) error
	Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error)
}

type service struct {
	users    userRepository
	session  sessionManager
	activity activityLog
	security securityLog
	jwtCfg   config.JWTConfig
	password *config.PasswordConfig
	now      func() time.Time
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

type activityLog interface {
	Record(ctx context.Context, userID uuid.UUID, action enums.ActivityAction, details map[string]any)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]activity.Entry, error)
}

type securityLog interface {
	RecordSecurity(ctx context.Context, in activity.SecurityInput)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	Activity       activityLog
	Security       securityLog
	JWTConfig      config.JWTConfig
	// Password, when set, re-hashes stored passwords made with other costs
	// on the next successful login.
	Password       *config.PasswordConfig
	Now            func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		users:    params.UserRepo,
		session:  params.SessionManager,
		activity: params.Activity,
		security: params.Security,
		jwtCfg:   params.JWTConfig,
		password: params.Password,
		now:      now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, reason, err := s.authenticate(ctx, req.Email, req.Password)
	if err == nil && !user.Role.IsValid() {
		reason, err = "invalid_role", pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if err != nil {
		if reason != "" {
			s.recordSecurity(ctx, enums.SecurityLoginFailed, user, req.Email, reason)
		}
		return nil, err
	}

	now, err := s.recordLogin(ctx, user)
	if err != nil {
		return nil, err
	}
	s.upgradeHash(ctx, user, req.Password)

	accessToken, refreshToken, err := s.issue(ctx, user, now)
	if err != nil {
		return nil, err
	}
	if s.activity != nil {
		s.activity.Record(ctx, user.ID, enums.ActivityLogin, nil)
	}
	s.recordSecurity(ctx, enums.SecurityLoginSuccess, user, user.Email, "")

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}, nil
}

// Refresh rotates the refresh token bound to accessID and mints a new access
// token from the account's current role. Deactivated accounts cannot refresh.
func (s *service) Refresh(ctx context.Context, accessID, refreshToken string, userID uuid.UUID) (*RefreshResponse, error) {
	if strings.TrimSpace(accessID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if !user.IsActive {
		_ = s.session.Revoke(ctx, accessID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	newAccessID, newRefreshToken, err := s.session.Rotate(ctx, accessID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rotate session")
	}

	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now().UTC(), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &RefreshResponse{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

func (s *service) Logout(ctx context.Context, userID uuid.UUID, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	if userID != uuid.Nil {
		s.recordSecurity(ctx, enums.SecurityLogout, &models.User{ID: userID}, "", "")
	}
	return nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	resp := &MeResponse{User: users.FromModel(user), RecentActivity: []activity.Entry{}}
	if s.activity != nil {
		entries, err := s.activity.ListRecent(ctx, userID, recentActivityLimit)
		if err != nil {
			return nil, err
		}
		resp.RecentActivity = entries
	}
	return resp, nil
}

func (s *service) issue(ctx context.Context, user *models.User, now time.Time) (string, string, error) {
	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, user.ID, accessID)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}
	return accessToken, refreshToken, nil
}

// authenticate returns a short reason alongside credential failures so the
// security log can tell them apart; the caller only ever sees one message.
func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, strings.ToLower(input))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "unknown_email", pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return user, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	switch {
	case !valid:
		return user, "bad_password", pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	case !user.IsActive:
		return user, "account_inactive", pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, "", nil
}

// upgradeHash is best-effort; a failed write is retried at the next login.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	if s.password == nil || !security.NeedsRehash(user.PasswordHash, *s.password) {
		return
	}
	hash, err := security.HashPassword(password, *s.password)
	if err != nil {
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err == nil {
		user.PasswordHash = hash
	}
}

func (s *service) recordSecurity(ctx context.Context, event enums.SecurityEvent, user *models.User, email, reason string) {
	if s.security == nil {
		return
	}
	in := activity.SecurityInput{Event: event, Email: email, Details: reason}
	if user != nil {
		in.UserID = &user.ID
	}
	s.security.RecordSecurity(ctx, in)
}

func (s *service) recordLogin(ctx context.Context, user *models.User) (time.Time, error) {
	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now
	return now, nil
}
