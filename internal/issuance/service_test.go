package issuance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/internal/live"
	"github.com/angelmondragon/epiguard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

func detailsOf(t *testing.T, err error) map[string]any {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok, "expected map details, got %T", typed.Details())
	return details
}

func TestIssueDecrementsStockAndFreezesSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 10)

	rec, err := h.svc.Issue(ctx, actor, IssueInput{
		CollaboratorID: collaborator.ID,
		EquipmentID:    item.ID,
		Quantity:       3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Quantity)
	assert.Equal(t, 7, h.stock(t, item.ID))
	assert.Equal(t, item.Name, rec.Snapshot.Name)
	assert.Equal(t, item.CertificateNumber, rec.Snapshot.CertificateNumber)
	assert.True(t, rec.Snapshot.CertificateExpiry.Equal(item.CertificateExpiry))
	assert.Equal(t, enums.IssuanceValidityValid, rec.Validity)
	assert.False(t, rec.Returned)
	require.NotNil(t, rec.Collaborator)
	assert.Equal(t, collaborator.Name, rec.Collaborator.Name)
	assert.Equal(t, actor.UserID, rec.IssuedBy.ID)

	assert.Empty(t, h.notifier.calls(), "stock 7 is above the threshold")
	assert.Equal(t, []live.EventType{live.EventNewIssuance}, h.broadcaster.types())
	assert.Equal(t, []enums.ActivityAction{enums.ActivityIssuanceCreated}, h.activity.recorded())
}

func TestIssueRejectsQuantityAboveStock(t *testing.T) {
	h := newHarness(t)
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 2)

	_, err := h.svc.Issue(context.Background(), actor, IssueInput{
		CollaboratorID: collaborator.ID,
		EquipmentID:    item.ID,
		Quantity:       5,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	details := detailsOf(t, err)
	assert.Equal(t, ReasonInsufficientStock, details["reason"])
	assert.Equal(t, 2, details["available"])
	assert.Equal(t, 5, details["requested"])

	assert.Equal(t, 2, h.stock(t, item.ID))
	assert.Zero(t, h.countRecords(t))
}

func TestIssueRejectsWhenStockDrainedAfterRead(t *testing.T) {
	h := newHarness(t, withEquipment(func(inner equipment.Store) equipment.Store {
		return staleEquipment{Store: inner, reported: 50}
	}))
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 3)

	_, err := h.svc.Issue(context.Background(), actor, IssueInput{
		CollaboratorID: collaborator.ID,
		EquipmentID:    item.ID,
		Quantity:       5,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	details := detailsOf(t, err)
	assert.Equal(t, ReasonInsufficientStock, details["reason"])
	assert.Equal(t, 3, details["available"])
	assert.Equal(t, 5, details["requested"])

	assert.Equal(t, 3, h.stock(t, item.ID))
	assert.Zero(t, h.countRecords(t))
	assert.Empty(t, h.broadcaster.types())
}

func TestReturnRestoresStockOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 10)

	rec, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 7, h.stock(t, item.ID))

	notes := "returned in good condition"
	returned, err := h.svc.Return(ctx, actor, rec.ID, ReturnInput{Notes: &notes})
	require.NoError(t, err)
	assert.True(t, returned.Returned)
	require.NotNil(t, returned.ReturnedAt)
	require.NotNil(t, returned.ReturnedBy)
	assert.Equal(t, actor.UserID, returned.ReturnedBy.ID)
	require.NotNil(t, returned.ReturnNotes)
	assert.Equal(t, notes, *returned.ReturnNotes)
	assert.Equal(t, 10, h.stock(t, item.ID))

	_, err = h.svc.Return(ctx, actor, rec.ID, ReturnInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyReturned))
	assert.Equal(t, ReasonAlreadyReturned, detailsOf(t, err)["reason"])
	assert.Equal(t, 10, h.stock(t, item.ID))

	assert.Contains(t, h.broadcaster.types(), live.EventReturned)
}

func TestIssueMarksExpiredCertificate(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, loc)
	h := newHarness(t, withNow(issuedAt), withLocation(loc))

	actor := h.actor(t, enums.MemberRoleManager)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	expiry := time.Date(2024, 1, 1, 12, 0, 0, 0, loc).UTC()
	item := dbtest.MustEquipmentExpiring(t, h.conn, 4, expiry)

	rec, err := h.svc.Issue(context.Background(), actor, IssueInput{
		CollaboratorID: collaborator.ID,
		EquipmentID:    item.ID,
		Quantity:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.IssuanceValidityExpired, rec.Validity)
	assert.True(t, rec.Snapshot.CertificateExpiry.Equal(expiry))
}

func TestDeleteOpenIssuanceRestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	manager := h.actor(t, enums.MemberRoleManager)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 5)

	rec, err := h.svc.Issue(ctx, manager, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 1, h.stock(t, item.ID))

	require.NoError(t, h.svc.Delete(ctx, manager, rec.ID))
	assert.Equal(t, 5, h.stock(t, item.ID))
	assert.Zero(t, h.countRecords(t))

	_, err = h.svc.Get(ctx, rec.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.Contains(t, h.activity.recorded(), enums.ActivityIssuanceDeleted)
}

func TestConcurrentIssuesNeverOversell(t *testing.T) {
	h := newHarness(t)
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 10)

	const callers = 20
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
		other        []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.Issue(context.Background(), actor, IssueInput{
				CollaboratorID: collaborator.ID,
				EquipmentID:    item.ID,
				Quantity:       1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				insufficient++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, insufficient)
	assert.Equal(t, 0, h.stock(t, item.ID))
	assert.Equal(t, 10, h.openQuantity(t, item.ID), "issued units plus stock must equal the initial stock")
}

func TestIssueValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 3)

	_, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, ReasonInvalidQuantity, detailsOf(t, err)["reason"])

	_, err = h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: uuid.New(), Quantity: 1})
	assert.True(t, errors.Is(err, ErrUnknownEquipment))
	assert.Equal(t, ReasonUnknownEquipment, detailsOf(t, err)["reason"])

	_, err = h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: uuid.New(), EquipmentID: item.ID, Quantity: 1})
	assert.True(t, errors.Is(err, ErrUnknownCollaborator))
	assert.Equal(t, ReasonUnknownCollaborator, detailsOf(t, err)["reason"])

	_, err = h.svc.Issue(ctx, actor, IssueInput{EquipmentID: item.ID, Quantity: 1})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, 3, h.stock(t, item.ID))
	assert.Zero(t, h.countRecords(t))
}

func TestIssueTreatsRetiredEquipmentAsUnknown(t *testing.T) {
	h := newHarness(t)
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 3)
	require.NoError(t, h.conn.Delete(&models.Equipment{}, "id = ?", item.ID).Error)

	_, err := h.svc.Issue(context.Background(), actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 1})
	assert.True(t, errors.Is(err, ErrUnknownEquipment))
	assert.Equal(t, 3, h.stock(t, item.ID))
}

func TestIssueTreatsDeactivatedCollaboratorAsUnknown(t *testing.T) {
	h := newHarness(t)
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	require.NoError(t, h.conn.Model(collaborator).Update("is_active", false).Error)
	item := dbtest.MustEquipment(t, h.conn, 3)

	_, err := h.svc.Issue(context.Background(), actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 1})
	assert.True(t, errors.Is(err, ErrUnknownCollaborator))
	assert.Equal(t, 3, h.stock(t, item.ID))
}

func TestInactiveActorIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleAdmin)
	actor.Active = false

	_, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: uuid.New(), EquipmentID: uuid.New(), Quantity: 1})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))

	_, err = h.svc.Return(ctx, Actor{}, uuid.New(), ReturnInput{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestDeleteRequiresPrivilegedRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	technician := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 5)

	rec, err := h.svc.Issue(ctx, technician, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 2})
	require.NoError(t, err)

	err = h.svc.Delete(ctx, technician, rec.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, int64(1), h.countRecords(t))
	assert.Equal(t, 3, h.stock(t, item.ID))

	admin := h.actor(t, enums.MemberRoleAdmin)
	err = h.svc.Delete(ctx, admin, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteReturnedIssuanceLeavesStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.actor(t, enums.MemberRoleAdmin)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 6)

	rec, err := h.svc.Issue(ctx, admin, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = h.svc.Return(ctx, admin, rec.ID, ReturnInput{})
	require.NoError(t, err)
	require.Equal(t, 6, h.stock(t, item.ID))

	require.NoError(t, h.svc.Delete(ctx, admin, rec.ID))
	assert.Equal(t, 6, h.stock(t, item.ID))
	assert.Zero(t, h.countRecords(t))
}

func TestDeleteSkipsCompensationWhenEquipmentGone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.actor(t, enums.MemberRoleAdmin)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 6)

	rec, err := h.svc.Issue(ctx, admin, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, h.conn.Exec("DELETE FROM equipment WHERE id = ?", item.ID).Error)

	require.NoError(t, h.svc.Delete(ctx, admin, rec.ID))
	assert.Zero(t, h.countRecords(t))
}

func TestReturnReportsMissingEquipment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 6)

	rec, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, h.conn.Exec("DELETE FROM equipment WHERE id = ?", item.ID).Error)

	_, err = h.svc.Return(ctx, actor, rec.ID, ReturnInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEquipmentMissing))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeIntegrity))
	assert.Equal(t, ReasonEquipmentMissing, detailsOf(t, err)["reason"])

	got, err := h.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.Returned)
}

func TestReturnToRetiredEquipmentRestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 4)

	rec, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 4})
	require.NoError(t, err)
	require.NoError(t, h.conn.Delete(&models.Equipment{}, "id = ?", item.ID).Error)

	_, err = h.svc.Return(ctx, actor, rec.ID, ReturnInput{})
	require.NoError(t, err)
	assert.Equal(t, 4, h.stock(t, item.ID))
}

func TestReturnUnknownIssuance(t *testing.T) {
	h := newHarness(t)
	actor := h.actor(t, enums.MemberRoleTechnician)
	_, err := h.svc.Return(context.Background(), actor, uuid.New(), ReturnInput{})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestLedgerFailureRollsBackDecrement(t *testing.T) {
	h := newHarness(t, withLedger(func(inner LedgerStore) LedgerStore {
		return failingLedger{LedgerStore: inner}
	}))
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 8)

	_, err := h.svc.Issue(context.Background(), actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 3})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
	assert.Equal(t, 8, h.stock(t, item.ID))
	assert.Zero(t, h.countRecords(t))
	assert.Empty(t, h.broadcaster.types())
}

func TestSnapshotSurvivesEquipmentEdits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 8)

	rec, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, h.conn.Model(&models.Equipment{}).Where("id = ?", item.ID).UpdateColumns(map[string]any{
		"name":               "Renamed Helmet",
		"certificate_number": "CA-99999",
		"certificate_expiry": time.Now().UTC().AddDate(3, 0, 0),
	}).Error)

	got, err := h.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Snapshot.Name, got.Snapshot.Name)
	assert.Equal(t, "CA-12345", got.Snapshot.CertificateNumber)
	assert.True(t, got.Snapshot.CertificateExpiry.Equal(rec.Snapshot.CertificateExpiry))
}

func TestLowStockNotificationFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t, withThreshold(5))
	h.notifier.err = errors.New("webhook down")
	h.broadcaster.err = errors.New("redis down")
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 6)

	rec, err := h.svc.Issue(context.Background(), actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 2})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, 4, h.stock(t, item.ID))
	calls := h.notifier.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, item.ID, calls[0].ID)
	assert.Equal(t, 4, calls[0].Stock)
	assert.Equal(t, int64(1), h.countRecords(t))
}

func TestIssueNotifiesPrivilegedUsers(t *testing.T) {
	h := newHarness(t)
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 10)

	rec, err := h.svc.Issue(context.Background(), actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 2})
	require.NoError(t, err)

	h.dispatcher.Wait()
	calls := h.issued.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, rec.ID, calls[0].ID)
	assert.Equal(t, 2, calls[0].Quantity)
	require.NotNil(t, calls[0].Collaborator)
	assert.Equal(t, collaborator.Name, calls[0].Collaborator.Name)
}

func TestRejectedIssueSendsNoNotice(t *testing.T) {
	h := newHarness(t)
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 1)

	_, err := h.svc.Issue(context.Background(), actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 2})
	require.Error(t, err)
	h.dispatcher.Wait()
	assert.Empty(t, h.issued.calls())
}

func TestUnsetThresholdFallsBackToDefault(t *testing.T) {
	h := newHarness(t, withThreshold(0))
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 9)

	_, err := h.svc.Issue(context.Background(), actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 4})
	require.NoError(t, err)

	h.dispatcher.Wait()
	calls := h.notifier.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 5, calls[0].Stock)
}

func TestListFiltersAndPaginates(t *testing.T) {
	base := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	h := newHarness(t, withNow(base))
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	sector := dbtest.MustSector(t, h.conn, "Welding")
	welder := dbtest.MustCollaborator(t, h.conn, &sector.ID)
	other := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 20)

	var ids []uuid.UUID
	for _, c := range []*models.Collaborator{welder, welder, other} {
		rec, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: c.ID, EquipmentID: item.ID, Quantity: 1})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		h.clock.Advance(24 * time.Hour)
	}
	_, err := h.svc.Return(ctx, actor, ids[0], ReturnInput{})
	require.NoError(t, err)

	first, err := h.svc.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, ids[2], first.Items[0].ID, "newest first")
	assert.Equal(t, ids[1], first.Items[1].ID)
	require.NotEmpty(t, first.Cursor)

	second, err := h.svc.List(ctx, ListFilter{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, ids[0], second.Items[0].ID)
	assert.Empty(t, second.Cursor)

	bySector, err := h.svc.List(ctx, ListFilter{SectorID: &sector.ID})
	require.NoError(t, err)
	assert.Len(t, bySector.Items, 2)

	open := false
	notReturned, err := h.svc.List(ctx, ListFilter{Returned: &open})
	require.NoError(t, err)
	assert.Len(t, notReturned.Items, 2)

	day := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	oneDay, err := h.svc.List(ctx, ListFilter{From: &day, To: &day})
	require.NoError(t, err)
	require.Len(t, oneDay.Items, 1)
	assert.Equal(t, ids[1], oneDay.Items[0].ID)

	_, err = h.svc.List(ctx, ListFilter{Cursor: "%%%"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestReportGroupsTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleManager)
	alice := dbtest.MustCollaborator(t, h.conn, nil)
	bob := dbtest.MustCollaborator(t, h.conn, nil)
	helmets := dbtest.MustEquipment(t, h.conn, 20)
	gloves := dbtest.MustEquipment(t, h.conn, 20)

	issue := func(c *models.Collaborator, e *models.Equipment, qty int) uuid.UUID {
		rec, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: c.ID, EquipmentID: e.ID, Quantity: qty})
		require.NoError(t, err)
		return rec.ID
	}
	first := issue(alice, helmets, 3)
	issue(alice, gloves, 1)
	issue(bob, helmets, 2)
	_, err := h.svc.Return(ctx, actor, first, ReturnInput{})
	require.NoError(t, err)

	report, err := h.svc.Report(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 6, report.TotalUnits)
	assert.Equal(t, 3, report.ReturnedUnits)

	require.Len(t, report.ByEquipment, 2)
	assert.Equal(t, helmets.ID, report.ByEquipment[0].EquipmentID)
	assert.Equal(t, 5, report.ByEquipment[0].Units)
	assert.Equal(t, 3, report.ByEquipment[0].ReturnedUnits)
	require.NotNil(t, report.ByEquipment[0].CurrentStock)
	assert.Equal(t, 18, *report.ByEquipment[0].CurrentStock)
	require.NotNil(t, report.ByEquipment[1].CurrentStock)
	assert.Equal(t, 19, *report.ByEquipment[1].CurrentStock)

	require.Len(t, report.ByCollaborator, 2)
	assert.Equal(t, alice.ID, report.ByCollaborator[0].CollaboratorID)
	assert.Equal(t, 4, report.ByCollaborator[0].Units)

	from := time.Now().AddDate(0, 0, 2)
	to := time.Now().AddDate(0, 0, 1)
	_, err = h.svc.Report(ctx, &from, &to)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestReportLeavesStockEmptyForPurgedEquipment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := h.actor(t, enums.MemberRoleTechnician)
	collaborator := dbtest.MustCollaborator(t, h.conn, nil)
	item := dbtest.MustEquipment(t, h.conn, 4)

	_, err := h.svc.Issue(ctx, actor, IssueInput{CollaboratorID: collaborator.ID, EquipmentID: item.ID, Quantity: 1})
	require.NoError(t, err)
	h.dispatcher.Wait()
	require.NoError(t, h.conn.Exec("DELETE FROM equipment WHERE id = ?", item.ID).Error)

	report, err := h.svc.Report(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, report.ByEquipment, 1)
	assert.Nil(t, report.ByEquipment[0].CurrentStock)
	assert.Equal(t, 1, report.ByEquipment[0].Units)
}

func TestValidityFor(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, enums.IssuanceValidityExpired, ValidityFor(at.Add(-time.Second), at))
	assert.Equal(t, enums.IssuanceValidityValid, ValidityFor(at, at))
	assert.Equal(t, enums.IssuanceValidityValid, ValidityFor(at.AddDate(1, 0, 0), at))
}
