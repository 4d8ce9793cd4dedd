package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/users"
	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/db"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/security"
)

const tempPasswordLength = 14

// ProvisionRequest contains the account an admin creates on someone's behalf.
type ProvisionRequest struct {
	Name  string           `json:"name" validate:"required"`
	Email string           `json:"email" validate:"required,email"`
	Role  enums.MemberRole `json:"role" validate:"required"`
}

// ProvisionResult returns the new account and its one-time password.
type ProvisionResult struct {
	User              *users.UserDTO `json:"user"`
	TemporaryPassword string         `json:"temporary_password"`
}

// ProvisionService creates accounts with a generated temporary password.
type ProvisionService interface {
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error)
}

// ProvisionServiceParams names the dependencies for the provisioning flow.
type ProvisionServiceParams struct {
	TxRunner        txRunner
	UserRepoFactory func(tx *gorm.DB) RegisterUserRepository
	PasswordConfig  config.PasswordConfig
}

type provisionService struct {
	tx          txRunner
	userRepo    func(tx *gorm.DB) RegisterUserRepository
	passwordCfg config.PasswordConfig
}

// NewProvisionService builds the admin provisioning service.
func NewProvisionService(params ProvisionServiceParams) (ProvisionService, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	factory := params.UserRepoFactory
	if factory == nil {
		factory = func(tx *gorm.DB) RegisterUserRepository { return users.NewRepository(tx) }
	}
	return &provisionService{
		tx:          params.TxRunner,
		userRepo:    factory,
		passwordCfg: params.PasswordConfig,
	}, nil
}

func (s *provisionService) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !req.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}

	tempPassword, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temporary password")
	}
	passwordHash, err := security.HashPassword(tempPassword, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *users.UserDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.userRepo(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Name:         name,
			Email:        email,
			PasswordHash: passwordHash,
			Role:         req.Role,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ProvisionResult{User: created, TemporaryPassword: tempPassword}, nil
}
