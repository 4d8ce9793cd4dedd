package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/epiguard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

func TestRecorderStoresDetailsAndIP(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.MustUser(t, db, enums.MemberRoleTechnician)
	rec, err := NewRecorder(db, logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))
	require.NoError(t, err)

	ctx := WithIP(context.Background(), "10.0.0.7")
	rec.Record(ctx, user.ID, enums.ActivityIssuanceCreated, map[string]any{"quantity": 3})

	var rows []models.ActivityLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.ActivityIssuanceCreated, rows[0].Action)
	require.NotNil(t, rows[0].IP)
	assert.Equal(t, "10.0.0.7", *rows[0].IP)

	var details map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Details, &details))
	assert.EqualValues(t, 3, details["quantity"])
}

func TestRecorderDropsAnonymousEntries(t *testing.T) {
	db := dbtest.Open(t)
	var buf bytes.Buffer
	rec, err := NewRecorder(db, logger.New(logger.Options{ServiceName: "test", Output: &buf}))
	require.NoError(t, err)

	rec.Record(context.Background(), uuid.Nil, enums.ActivityLogin, nil)

	var count int64
	require.NoError(t, db.Model(&models.ActivityLog{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Contains(t, buf.String(), "activity without user dropped")
}

func TestRecorderListRecentNewestFirst(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.MustUser(t, db, enums.MemberRoleManager)
	other := dbtest.MustUser(t, db, enums.MemberRoleManager)
	rec, err := NewRecorder(db, logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, db.Create(&models.ActivityLog{
			UserID:    user.ID,
			Action:    enums.ActivityLogin,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}
	require.NoError(t, db.Create(&models.ActivityLog{UserID: other.ID, Action: enums.ActivityLogin}).Error)

	rows, err := rec.ListRecent(context.Background(), user.ID, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))
	for _, row := range rows {
		assert.Equal(t, user.ID, row.UserID)
	}
}
