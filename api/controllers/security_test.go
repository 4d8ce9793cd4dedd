package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/epiguard-backend/internal/activity"
	"github.com/angelmondragon/epiguard-backend/internal/users"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

type stubSecurityLog struct {
	listFn func(ctx context.Context, filter activity.SecurityFilter) (*activity.SecurityPage, error)
}

func (s *stubSecurityLog) List(ctx context.Context, filter activity.SecurityFilter) (*activity.SecurityPage, error) {
	return s.listFn(ctx, filter)
}

type stubUsersService struct {
	users.Service
	terminateFn func(ctx context.Context, actorID, id uuid.UUID) (int, error)
}

func (s *stubUsersService) TerminateSessions(ctx context.Context, actorID, id uuid.UUID) (int, error) {
	return s.terminateFn(ctx, actorID, id)
}

func TestListSecurityEventsParsesFilter(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	target := uuid.New()

	var got activity.SecurityFilter
	log := &stubSecurityLog{listFn: func(ctx context.Context, filter activity.SecurityFilter) (*activity.SecurityPage, error) {
		got = filter
		return &activity.SecurityPage{Items: []activity.SecurityEntry{}}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/security/logs?event=LOGIN_FAILED&user_id="+target.String()+"&email=Ana@Example.com&from=2026-10-01&to=2026-10-01&limit=10", nil)
	resp := httptest.NewRecorder()
	ListSecurityEvents(log, loc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, got.Event)
	assert.Equal(t, enums.SecurityLoginFailed, *got.Event)
	require.NotNil(t, got.UserID)
	assert.Equal(t, target, *got.UserID)
	assert.Equal(t, "Ana@Example.com", got.Email)
	assert.Equal(t, 10, got.Limit)
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)
	assert.True(t, got.From.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, loc)))
	assert.True(t, got.To.Equal(time.Date(2026, 10, 1, 23, 59, 59, 999999999, loc)), "to should cover the whole day")
}

func TestListSecurityEventsRejectsUnknownEvent(t *testing.T) {
	log := &stubSecurityLog{listFn: func(ctx context.Context, filter activity.SecurityFilter) (*activity.SecurityPage, error) {
		t.Fatalf("list should not be called")
		return nil, nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/security/logs?event=password_reset", nil)
	resp := httptest.NewRecorder()
	ListSecurityEvents(log, time.UTC, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListSecurityEventsWithoutLog(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/security/logs", nil)
	resp := httptest.NewRecorder()
	ListSecurityEvents(nil, time.UTC, testLogger())(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestTerminateUserSessionsReportsCount(t *testing.T) {
	admin, target := uuid.New(), uuid.New()
	svc := &stubUsersService{terminateFn: func(ctx context.Context, actorID, id uuid.UUID) (int, error) {
		assert.Equal(t, admin, actorID)
		assert.Equal(t, target, id)
		return 3, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/"+target.String()+"/logout", nil)
	req = withPrincipal(req, admin, enums.MemberRoleAdmin)
	req = addRouteParam(req, "userId", target.String())
	resp := httptest.NewRecorder()
	TerminateUserSessions(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data struct {
			UserID        uuid.UUID `json:"user_id"`
			SessionsEnded int       `json:"sessions_ended"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, target, envelope.Data.UserID)
	assert.Equal(t, 3, envelope.Data.SessionsEnded)
}

func TestTerminateUserSessionsUnknownUser(t *testing.T) {
	svc := &stubUsersService{terminateFn: func(ctx context.Context, actorID, id uuid.UUID) (int, error) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}}
	target := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/"+target+"/logout", nil)
	req = withPrincipal(req, uuid.New(), enums.MemberRoleAdmin)
	req = addRouteParam(req, "userId", target)
	resp := httptest.NewRecorder()
	TerminateUserSessions(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
