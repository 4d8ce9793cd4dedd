package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/activity"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

// AccessUpdate changes an account's role or active flag.
type AccessUpdate struct {
	Role     *enums.MemberRole `json:"role,omitempty"`
	IsActive *bool             `json:"is_active,omitempty"`
}

// Service is the admin view over accounts.
type Service interface {
	List(ctx context.Context) ([]UserDTO, error)
	UpdateAccess(ctx context.Context, actorID, id uuid.UUID, update AccessUpdate) (*UserDTO, error)
	TerminateSessions(ctx context.Context, actorID, id uuid.UUID) (int, error)
}

// SessionRevoker ends every refresh session an account holds.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type SecurityRecorder interface {
	RecordSecurity(ctx context.Context, in activity.SecurityInput)
}

// ServiceParams wires the users service. Sessions and Security are optional;
// without Sessions a blocked account keeps its refresh session until it
// next tries to refresh.
type ServiceParams struct {
	Repo     *Repository
	Sessions SessionRevoker
	Security SecurityRecorder
}

type service struct {
	repo     *Repository
	sessions SessionRevoker
	security SecurityRecorder
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	return &service{repo: params.Repo, sessions: params.Sessions, security: params.Security}, nil
}

func (s *service) List(ctx context.Context) ([]UserDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

// UpdateAccess refuses changes an admin makes to their own account so the
// last admin cannot lock everyone out.
func (s *service) UpdateAccess(ctx context.Context, actorID, id uuid.UUID, update AccessUpdate) (*UserDTO, error) {
	if update.Role == nil && update.IsActive == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	if update.Role != nil && !update.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if actorID == id {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own access")
	}

	before, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	found, err := s.repo.UpdateAccess(ctx, id, update.Role, update.IsActive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user access")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	if update.IsActive != nil && *update.IsActive != before.IsActive {
		if *update.IsActive {
			s.recordSecurity(ctx, enums.SecurityUserUnblocked, before, fmt.Sprintf("reactivated by %s", actorID))
		} else {
			ended := s.endSessions(ctx, id)
			s.recordSecurity(ctx, enums.SecurityUserBlocked, before, fmt.Sprintf("deactivated by %s, %d sessions ended", actorID, ended))
		}
	}

	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

// TerminateSessions signs id out everywhere without touching the account
// itself; the user can log in again right away.
func (s *service) TerminateSessions(ctx context.Context, actorID, id uuid.UUID) (int, error) {
	if s.sessions == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "session store unavailable")
	}
	user, err := s.find(ctx, id)
	if err != nil {
		return 0, err
	}
	ended, err := s.sessions.RevokeUser(ctx, id)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	s.recordSecurity(ctx, enums.SecuritySessionTerminated, user, fmt.Sprintf("%d sessions ended by %s", ended, actorID))
	return ended, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

// endSessions is best effort: the auth middleware rejects inactive accounts
// even when the revoke fails.
func (s *service) endSessions(ctx context.Context, id uuid.UUID) int {
	if s.sessions == nil {
		return 0
	}
	ended, err := s.sessions.RevokeUser(ctx, id)
	if err != nil {
		return 0
	}
	return ended
}

func (s *service) recordSecurity(ctx context.Context, event enums.SecurityEvent, user *models.User, details string) {
	if s.security == nil {
		return
	}
	s.security.RecordSecurity(ctx, activity.SecurityInput{
		Event:   event,
		UserID:  &user.ID,
		Email:   user.Email,
		Details: details,
	})
}
