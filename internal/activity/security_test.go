package activity

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/epiguard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

func newSecurityLog(t *testing.T) (*SecurityLog, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := NewSecurityLog(dbtest.Open(t), logger.New(logger.Options{ServiceName: "test", Output: &buf}))
	require.NoError(t, err)
	return log, &buf
}

func TestSecurityLogCapturesClient(t *testing.T) {
	log, buf := newSecurityLog(t)
	ctx := WithUserAgent(WithIP(context.Background(), "192.168.0.4"), "Mozilla/5.0")

	log.RecordSecurity(ctx, SecurityInput{Event: enums.SecurityLoginFailed, Email: " Storekeeper@Plant.example "})

	var rows []models.SecurityEvent
	require.NoError(t, log.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.SecurityLoginFailed, rows[0].Event)
	assert.Equal(t, "192.168.0.4", rows[0].IP)
	assert.Equal(t, "Mozilla/5.0", rows[0].UserAgent)
	require.NotNil(t, rows[0].Email)
	assert.Equal(t, "storekeeper@plant.example", *rows[0].Email)
	assert.Nil(t, rows[0].UserID)
	assert.Contains(t, buf.String(), "security event recorded")
}

func TestSecurityLogDefaultsUnknownClient(t *testing.T) {
	log, _ := newSecurityLog(t)
	user := dbtest.MustUser(t, log.db, enums.MemberRoleTechnician)

	log.RecordSecurity(context.Background(), SecurityInput{Event: enums.SecurityLogout, UserID: &user.ID})

	var row models.SecurityEvent
	require.NoError(t, log.db.First(&row).Error)
	assert.Equal(t, "unknown", row.IP)
	assert.Equal(t, "unknown", row.UserAgent)
	require.NotNil(t, row.UserID)
	assert.Equal(t, user.ID, *row.UserID)
}

func TestSecurityLogDropsUnknownEvents(t *testing.T) {
	log, buf := newSecurityLog(t)
	log.RecordSecurity(context.Background(), SecurityInput{Event: "password_sprayed"})

	var count int64
	require.NoError(t, log.db.Model(&models.SecurityEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Contains(t, buf.String(), "unknown security event dropped")
}

func TestSecurityLogListFiltersAndPages(t *testing.T) {
	log, _ := newSecurityLog(t)
	admin := dbtest.MustUser(t, log.db, enums.MemberRoleAdmin)
	tech := dbtest.MustUser(t, log.db, enums.MemberRoleTechnician)
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	seed := func(event enums.SecurityEvent, user uuid.UUID, at time.Time) {
		row := &models.SecurityEvent{UserID: &user, Event: event, IP: "10.0.0.1", UserAgent: "curl", CreatedAt: at}
		require.NoError(t, log.db.Create(row).Error)
	}
	seed(enums.SecurityLoginSuccess, admin.ID, base)
	seed(enums.SecurityLoginFailed, tech.ID, base.Add(time.Hour))
	seed(enums.SecurityLoginFailed, tech.ID, base.Add(2*time.Hour))
	seed(enums.SecurityAccessDenied, tech.ID, base.Add(3*time.Hour))

	ctx := context.Background()
	failed := enums.SecurityLoginFailed
	page, err := log.List(ctx, SecurityFilter{Event: &failed})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt), "newest first")

	first, err := log.List(ctx, SecurityFilter{UserID: &tech.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, enums.SecurityAccessDenied, first.Items[0].Event)
	require.NotEmpty(t, first.Cursor)

	second, err := log.List(ctx, SecurityFilter{UserID: &tech.ID, Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	from, to := base.Add(30*time.Minute), base.Add(90*time.Minute)
	window, err := log.List(ctx, SecurityFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window.Items, 1)
	assert.Equal(t, enums.SecurityLoginFailed, window.Items[0].Event)

	_, err = log.List(ctx, SecurityFilter{From: &to, To: &from})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	_, err = log.List(ctx, SecurityFilter{Cursor: "%%%"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestNewSecurityLogRequiresDependencies(t *testing.T) {
	_, err := NewSecurityLog(nil, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}
