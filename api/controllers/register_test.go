package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/epiguard-backend/internal/auth"
	"github.com/angelmondragon/epiguard-backend/internal/users"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

type stubRegisterService struct {
	registerFn func(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error)
}

func (s *stubRegisterService) Register(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	return s.registerFn(ctx, req)
}

type stubAuthService struct {
	auth.Service
	loginFn func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error)
}

func (s *stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return s.loginFn(ctx, req)
}

func registerRequest() *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"name":"Ana Souza","email":"ana@plant.example","password":"hard-hat-9"}`))
}

func newRegistered() *users.UserDTO {
	return &users.UserDTO{ID: uuid.New(), Name: "Ana Souza", Email: "ana@plant.example", Role: enums.MemberRoleTechnician}
}

func TestAuthRegisterSignsInNewAccount(t *testing.T) {
	created := newRegistered()
	reg := &stubRegisterService{registerFn: func(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
		assert.Equal(t, "ana@plant.example", req.Email)
		return created, nil
	}}
	svc := &stubAuthService{loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
		assert.Equal(t, "hard-hat-9", req.Password)
		return &auth.LoginResponse{AccessToken: "access", RefreshToken: "refresh", User: created}, nil
	}}

	resp := httptest.NewRecorder()
	AuthRegister(reg, svc, testLogger())(resp, registerRequest())

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "/api/v1/users/"+created.ID.String(), resp.Header().Get("Location"))
	var body struct {
		Data auth.LoginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "access", body.Data.AccessToken)
	assert.Equal(t, created.ID, body.Data.User.ID)
}

func TestAuthRegisterKeepsAccountWhenSignInFails(t *testing.T) {
	created := newRegistered()
	reg := &stubRegisterService{registerFn: func(context.Context, auth.RegisterRequest) (*users.UserDTO, error) {
		return created, nil
	}}
	svc := &stubAuthService{loginFn: func(context.Context, auth.LoginRequest) (*auth.LoginResponse, error) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("redis down"), "open session")
	}}

	resp := httptest.NewRecorder()
	AuthRegister(reg, svc, testLogger())(resp, registerRequest())

	require.Equal(t, http.StatusCreated, resp.Code)
	var body struct {
		Data auth.LoginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Data.AccessToken)
	require.NotNil(t, body.Data.User)
	assert.Equal(t, created.ID, body.Data.User.ID)
}

func TestAuthRegisterSurfacesRegistrationErrors(t *testing.T) {
	reg := &stubRegisterService{registerFn: func(context.Context, auth.RegisterRequest) (*users.UserDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "self registration is disabled")
	}}
	svc := &stubAuthService{loginFn: func(context.Context, auth.LoginRequest) (*auth.LoginResponse, error) {
		t.Fatal("login must not run when registration fails")
		return nil, nil
	}}

	resp := httptest.NewRecorder()
	AuthRegister(reg, svc, testLogger())(resp, registerRequest())
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Empty(t, resp.Header().Get("Location"))

	resp = httptest.NewRecorder()
	AuthRegister(nil, svc, testLogger())(resp, registerRequest())
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
