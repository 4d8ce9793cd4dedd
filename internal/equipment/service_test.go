package equipment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db"
	"github.com/angelmondragon/epiguard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

type recordedActivity struct {
	userID uuid.UUID
	action enums.ActivityAction
}

type stubRecorder struct {
	mu      sync.Mutex
	entries []recordedActivity
}

func (s *stubRecorder) Record(_ context.Context, userID uuid.UUID, action enums.ActivityAction, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, recordedActivity{userID: userID, action: action})
}

func newTestService(t *testing.T, conn *gorm.DB, now time.Time) (Service, *stubRecorder) {
	t.Helper()
	recorder := &stubRecorder{}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       db.NewFromConn(conn),
		Activity: recorder,
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc, recorder
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(nil)})
	assert.Error(t, err)
}

func TestCreateDerivesStatusAndNormalizesExpiry(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	svc, recorder := newTestService(t, conn, now)
	actor := uuid.New()
	risk := dbtest.MustRisk(t, conn, nil, "Noise")

	item, err := svc.Create(context.Background(), actor, CreateInput{
		Name:              "Ear muffs",
		Category:          enums.EquipmentCategoryHearing,
		CertificateNumber: "CA-100",
		CertificateExpiry: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
		Stock:             0,
		RiskIDs:           []uuid.UUID{risk.ID, risk.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EquipmentStatusOutOfStock, item.Status)
	assert.Equal(t, 12, item.CertificateExpiry.UTC().Hour())
	assert.Equal(t, []uuid.UUID{risk.ID}, item.RiskIDs)

	stored := dbtest.Reload(t, conn, item.ID)
	assert.Equal(t, enums.EquipmentStatusOutOfStock, stored.Status)
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, enums.ActivityEquipmentCreated, recorder.entries[0].action)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn, time.Now())

	cases := []CreateInput{
		{Category: enums.EquipmentCategoryHand, CertificateNumber: "CA", CertificateExpiry: time.Now()},
		{Name: "x", Category: "knee", CertificateNumber: "CA", CertificateExpiry: time.Now()},
		{Name: "x", Category: enums.EquipmentCategoryHand, CertificateExpiry: time.Now()},
		{Name: "x", Category: enums.EquipmentCategoryHand, CertificateNumber: "CA"},
		{Name: "x", Category: enums.EquipmentCategoryHand, CertificateNumber: "CA", CertificateExpiry: time.Now(), Stock: -1},
		{Name: "x", Category: enums.EquipmentCategoryHand, CertificateNumber: "CA", CertificateExpiry: time.Now(), RiskIDs: []uuid.UUID{uuid.New()}},
	}
	for i, input := range cases {
		_, err := svc.Create(context.Background(), uuid.New(), input)
		require.Error(t, err, "case %d", i)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code(), "case %d", i)
	}
}

func TestPartialUpdateRecomputesStatusFromStoredValues(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	svc, _ := newTestService(t, conn, now)
	item := dbtest.MustEquipmentExpiring(t, conn, 5, now.AddDate(0, 0, -2))

	stock := 0
	updated, err := svc.Update(context.Background(), uuid.New(), item.ID, UpdateInput{Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, enums.EquipmentStatusExpired, updated.Status)

	renewed := now.AddDate(1, 0, 0)
	updated, err = svc.Update(context.Background(), uuid.New(), item.ID, UpdateInput{CertificateExpiry: &renewed})
	require.NoError(t, err)
	assert.Equal(t, enums.EquipmentStatusOutOfStock, updated.Status)
	assert.Equal(t, enums.EquipmentStatusOutOfStock, dbtest.Reload(t, conn, item.ID).Status)

	name := "Renamed"
	updated, err = svc.Update(context.Background(), uuid.New(), item.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 0, updated.Stock)
}

func TestUpdateUnknownItem(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn, time.Now())
	stock := 1
	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), UpdateInput{Stock: &stock})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestDeleteRetiresReferencedItems(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn, time.Now())
	ctx := context.Background()

	unreferenced := dbtest.MustEquipment(t, conn, 2)
	res, err := svc.Delete(ctx, uuid.New(), unreferenced.ID)
	require.NoError(t, err)
	assert.False(t, res.Retired)
	var count int64
	require.NoError(t, conn.Unscoped().Model(&models.Equipment{}).Where("id = ?", unreferenced.ID).Count(&count).Error)
	assert.Zero(t, count)

	referenced := dbtest.MustEquipment(t, conn, 2)
	user := dbtest.MustUser(t, conn, enums.MemberRoleAdmin)
	collaborator := dbtest.MustCollaborator(t, conn, nil)
	require.NoError(t, conn.Create(&models.Issuance{
		CollaboratorID: collaborator.ID,
		EquipmentID:    referenced.ID,
		Snapshot:       models.EquipmentSnapshot{Name: referenced.Name, CertificateNumber: referenced.CertificateNumber, CertificateExpiry: referenced.CertificateExpiry},
		Quantity:       1,
		IssuedAt:       time.Now().UTC(),
		IssuedBy:       user.ID,
		Validity:       enums.IssuanceValidityValid,
	}).Error)

	res, err = svc.Delete(ctx, uuid.New(), referenced.ID)
	require.NoError(t, err)
	assert.True(t, res.Retired)
	assert.True(t, dbtest.Reload(t, conn, referenced.ID).DeletedAt.Valid)

	_, err = svc.Get(ctx, referenced.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestSuggestRanksByMatchingRisks(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn, time.Now())
	ctx := context.Background()
	repo := NewRepository(conn)

	sector := dbtest.MustSector(t, conn, "Welding")
	noise := dbtest.MustRisk(t, conn, &sector.ID, "Noise")
	sparks := dbtest.MustRisk(t, conn, &sector.ID, "Sparks")
	dbtest.MustRisk(t, conn, nil, "Unrelated")
	collaborator := dbtest.MustCollaborator(t, conn, &sector.ID)

	both := dbtest.MustEquipment(t, conn, 3)
	one := dbtest.MustEquipment(t, conn, 3)
	empty := dbtest.MustEquipment(t, conn, 0)
	require.NoError(t, repo.ReplaceRisks(ctx, both.ID, []uuid.UUID{noise.ID, sparks.ID}))
	require.NoError(t, repo.ReplaceRisks(ctx, one.ID, []uuid.UUID{sparks.ID}))
	require.NoError(t, repo.ReplaceRisks(ctx, empty.ID, []uuid.UUID{noise.ID, sparks.ID}))

	suggestions, err := svc.Suggest(ctx, SuggestInput{CollaboratorID: &collaborator.ID})
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, both.ID, suggestions[0].Item.ID)
	assert.Equal(t, 2, suggestions[0].MatchedRisks)
	assert.Equal(t, one.ID, suggestions[1].Item.ID)

	none, err := svc.Suggest(ctx, SuggestInput{})
	require.NoError(t, err)
	assert.Empty(t, none)

	missing := uuid.New()
	_, err = svc.Suggest(ctx, SuggestInput{CollaboratorID: &missing})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestListFiltersAndPaginates(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn, time.Now())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		dbtest.MustEquipment(t, conn, i+1)
	}
	dbtest.MustEquipment(t, conn, 0)

	status := enums.EquipmentStatusActive
	first, err := svc.List(ctx, ListParams{Status: &status, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)

	second, err := svc.List(ctx, ListParams{Status: &status, Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	seen := map[uuid.UUID]bool{}
	for _, item := range append(first.Items, second.Items...) {
		assert.False(t, seen[item.ID], "item listed twice")
		seen[item.ID] = true
	}

	_, err = svc.List(ctx, ListParams{Cursor: "%%%"})
	require.Error(t, err)
}

func TestUpdateStatusFollowsStockMovedBeforeWrite(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	svc, _ := newTestService(t, conn, now)
	item := dbtest.MustEquipment(t, conn, 4)

	// an issuance drains the item between the service's read and its write
	drained := false
	require.NoError(t, conn.Callback().Update().Before("gorm:update").Register("test:drain_stock", func(tx *gorm.DB) {
		if drained || tx.Statement.Table != "equipment" {
			return
		}
		drained = true
		_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context, "UPDATE equipment SET stock = 0 WHERE id = ?", item.ID)
		require.NoError(t, err)
	}))

	name := "Helmet v2"
	updated, err := svc.Update(context.Background(), uuid.New(), item.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	require.True(t, drained)

	stored := dbtest.Reload(t, conn, item.ID)
	assert.Equal(t, 0, stored.Stock)
	assert.Equal(t, enums.EquipmentStatusOutOfStock, stored.Status)
	assert.Equal(t, enums.EquipmentStatusOutOfStock, updated.Status)

	active, err := svc.List(context.Background(), ListParams{Status: ptr(enums.EquipmentStatusOutOfStock)})
	require.NoError(t, err)
	require.Len(t, active.Items, 1)
	assert.Equal(t, item.ID, active.Items[0].ID)
}

func ptr[T any](v T) *T { return &v }
