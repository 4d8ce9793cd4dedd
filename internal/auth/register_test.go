package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/users"
	"github.com/angelmondragon/epiguard-backend/pkg/config"
	pkgmodels "github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/security"
)

type stubTxRunner struct{}

func (s stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubUserRepository struct {
	data      map[string]*pkgmodels.User
	created   *pkgmodels.User
	createErr error
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{data: map[string]*pkgmodels.User{}}
}

func (s *stubUserRepository) FindByEmail(ctx context.Context, email string) (*pkgmodels.User, error) {
	if user, ok := s.data[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepository) Create(ctx context.Context, dto users.CreateUserDTO) (*pkgmodels.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	user := dto.ToModel()
	user.ID = uuid.New()
	s.data[user.Email] = user
	s.created = user
	return user, nil
}

func (s *stubUserRepository) Count(ctx context.Context) (int64, error) {
	return int64(len(s.data)), nil
}

func newRegisterService(t *testing.T, repo *stubUserRepository, open bool) RegisterService {
	t.Helper()
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner:         stubTxRunner{},
		UserRepoFactory:  func(tx *gorm.DB) RegisterUserRepository { return repo },
		PasswordConfig:   config.PasswordConfig{},
		OpenRegistration: open,
	})
	if err != nil {
		t.Fatalf("build register service: %v", err)
	}
	return svc
}

func TestRegisterFirstAccountBecomesAdmin(t *testing.T) {
	repo := newStubUserRepository()
	svc := newRegisterService(t, repo, false)

	user, err := svc.Register(context.Background(), RegisterRequest{
		Name:     " Ana Souza ",
		Email:    "Ana@Example.com",
		Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != enums.MemberRoleAdmin {
		t.Fatalf("expected admin, got %s", user.Role)
	}
	if user.Email != "ana@example.com" || user.Name != "Ana Souza" {
		t.Fatalf("expected normalized identity, got %q %q", user.Email, user.Name)
	}
	if !user.IsActive {
		t.Fatalf("expected active account")
	}
	ok, err := security.VerifyPassword("supersecret", repo.created.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestRegisterLaterAccountsAreTechnicians(t *testing.T) {
	repo := newStubUserRepository()
	repo.data["root@example.com"] = &pkgmodels.User{ID: uuid.New(), Email: "root@example.com", Role: enums.MemberRoleAdmin}
	svc := newRegisterService(t, repo, true)

	user, err := svc.Register(context.Background(), RegisterRequest{
		Name:     "Bruno",
		Email:    "bruno@example.com",
		Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != enums.MemberRoleTechnician {
		t.Fatalf("expected technician, got %s", user.Role)
	}
}

func TestRegisterClosedAfterBootstrap(t *testing.T) {
	repo := newStubUserRepository()
	repo.data["root@example.com"] = &pkgmodels.User{ID: uuid.New(), Email: "root@example.com"}
	svc := newRegisterService(t, repo, false)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Name:     "Carla",
		Email:    "carla@example.com",
		Password: "supersecret",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if repo.created != nil {
		t.Fatalf("no user should be created")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newStubUserRepository()
	repo.data["dup@example.com"] = &pkgmodels.User{ID: uuid.New(), Email: "dup@example.com"}
	svc := newRegisterService(t, repo, true)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Name:     "Dup",
		Email:    "DUP@example.com",
		Password: "supersecret",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := newRegisterService(t, newStubUserRepository(), true)
	cases := []RegisterRequest{
		{Name: "x", Email: "", Password: "supersecret"},
		{Name: " ", Email: "a@example.com", Password: "supersecret"},
		{Name: "x", Email: "a@example.com", Password: "short"},
	}
	for _, req := range cases {
		if _, err := svc.Register(context.Background(), req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestProvisionReturnsTemporaryPassword(t *testing.T) {
	repo := newStubUserRepository()
	svc, err := NewProvisionService(ProvisionServiceParams{
		TxRunner:        stubTxRunner{},
		UserRepoFactory: func(tx *gorm.DB) RegisterUserRepository { return repo },
	})
	if err != nil {
		t.Fatalf("build provision service: %v", err)
	}

	result, err := svc.Provision(context.Background(), ProvisionRequest{
		Name:  "Dora",
		Email: "dora@example.com",
		Role:  enums.MemberRoleManager,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if result.User.Role != enums.MemberRoleManager {
		t.Fatalf("expected manager, got %s", result.User.Role)
	}
	if len(result.TemporaryPassword) != tempPasswordLength {
		t.Fatalf("unexpected temp password length %d", len(result.TemporaryPassword))
	}
	ok, err := security.VerifyPassword(result.TemporaryPassword, repo.created.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("temporary password does not verify: ok=%v err=%v", ok, err)
	}

	_, err = svc.Provision(context.Background(), ProvisionRequest{Name: "Eve", Email: "eve@example.com", Role: "owner"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for role, got %v", err)
	}
	_, err = svc.Provision(context.Background(), ProvisionRequest{Name: "Dora", Email: "dora@example.com", Role: enums.MemberRoleTechnician})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
