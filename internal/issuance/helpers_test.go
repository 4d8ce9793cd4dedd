package issuance

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/internal/live"
	"github.com/angelmondragon/epiguard-backend/pkg/db"
	"github.com/angelmondragon/epiguard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

type recordingNotifier struct {
	mu    sync.Mutex
	items []models.Equipment
	err   error
}

func (n *recordingNotifier) NotifyLowStock(_ context.Context, item models.Equipment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
	return n.err
}

func (n *recordingNotifier) calls() []models.Equipment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Equipment(nil), n.items...)
}

type recordingIssueNotifier struct {
	mu   sync.Mutex
	recs []models.Issuance
}

func (n *recordingIssueNotifier) NotifyIssued(_ context.Context, rec models.Issuance) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recs = append(n.recs, rec)
	return nil
}

func (n *recordingIssueNotifier) calls() []models.Issuance {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Issuance(nil), n.recs...)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []live.Event
	err    error
}

func (b *recordingBroadcaster) Publish(_ context.Context, evt live.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return b.err
}

func (b *recordingBroadcaster) types() []live.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]live.EventType, 0, len(b.events))
	for _, evt := range b.events {
		out = append(out, evt.Type)
	}
	return out
}

type recordingActivity struct {
	mu      sync.Mutex
	actions []enums.ActivityAction
}

func (a *recordingActivity) Record(_ context.Context, _ uuid.UUID, action enums.ActivityAction, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *recordingActivity) recorded() []enums.ActivityAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]enums.ActivityAction(nil), a.actions...)
}

// failingLedger fails inserts after delegating everything else.
type failingLedger struct {
	LedgerStore
}

func (f failingLedger) WithTx(tx *gorm.DB) LedgerStore {
	return failingLedger{LedgerStore: f.LedgerStore.WithTx(tx)}
}

func (f failingLedger) Create(context.Context, *models.Issuance) error {
	return errors.New("ledger write failed")
}

// staleEquipment reports a stock level read before a concurrent drain.
type staleEquipment struct {
	equipment.Store
	reported int
}

func (s staleEquipment) WithTx(tx *gorm.DB) equipment.Store {
	return staleEquipment{Store: s.Store.WithTx(tx), reported: s.reported}
}

func (s staleEquipment) FindByID(ctx context.Context, id uuid.UUID) (*models.Equipment, error) {
	item, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Stock = s.reported
	return item, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	conn        *gorm.DB
	svc         Service
	dispatcher  *Dispatcher
	notifier    *recordingNotifier
	issued      *recordingIssueNotifier
	broadcaster *recordingBroadcaster
	activity    *recordingActivity
	clock       *clock
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	wrapLedger    func(LedgerStore) LedgerStore
	wrapEquipment func(equipment.Store) equipment.Store
	threshold     int
	now           time.Time
	loc           *time.Location
}

func withLedger(wrap func(LedgerStore) LedgerStore) harnessOption {
	return func(c *harnessConfig) { c.wrapLedger = wrap }
}

func withEquipment(wrap func(equipment.Store) equipment.Store) harnessOption {
	return func(c *harnessConfig) { c.wrapEquipment = wrap }
}

func withThreshold(threshold int) harnessOption {
	return func(c *harnessConfig) { c.threshold = threshold }
}

func withNow(now time.Time) harnessOption {
	return func(c *harnessConfig) { c.now = now }
}

func withLocation(loc *time.Location) harnessOption {
	return func(c *harnessConfig) { c.loc = loc }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{threshold: 5, now: time.Now().UTC(), loc: time.UTC}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "issuance-test", Output: io.Discard})
	ledger := NewLedger(conn)
	var store LedgerStore = ledger
	if cfg.wrapLedger != nil {
		store = cfg.wrapLedger(ledger)
	}
	var items equipment.Store = equipment.NewRepository(conn)
	if cfg.wrapEquipment != nil {
		items = cfg.wrapEquipment(items)
	}

	coord, err := NewCoordinator(CoordinatorParams{
		Tx:        db.NewFromConn(conn),
		Equipment: items,
		Ledger:    store,
		Logger:    logg,
	})
	require.NoError(t, err)

	h := &harness{
		conn:        conn,
		dispatcher:  NewDispatcher(time.Second, logg, nil),
		notifier:    &recordingNotifier{},
		issued:      &recordingIssueNotifier{},
		broadcaster: &recordingBroadcaster{},
		activity:    &recordingActivity{},
		clock:       &clock{now: cfg.now},
	}
	svc, err := NewService(ServiceParams{
		Coordinator:       coord,
		Ledger:            ledger,
		Dispatcher:        h.dispatcher,
		Notifier:          h.notifier,
		IssueNotifier:     h.issued,
		Broadcaster:       h.broadcaster,
		Activity:          h.activity,
		Logger:            logg,
		LowStockThreshold: cfg.threshold,
		Location:          cfg.loc,
		Now:               h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) actor(t *testing.T, role enums.MemberRole) Actor {
	t.Helper()
	user := dbtest.MustUser(t, h.conn, role)
	return Actor{UserID: user.ID, Role: role, Active: true}
}

func (h *harness) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	h.dispatcher.Wait()
	return dbtest.Reload(t, h.conn, id).Stock
}

func (h *harness) openQuantity(t *testing.T, equipmentID uuid.UUID) int {
	t.Helper()
	var total int64
	require.NoError(t, h.conn.Model(&models.Issuance{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("equipment_id = ? AND returned = ?", equipmentID, false).
		Scan(&total).Error)
	return int(total)
}

func (h *harness) countRecords(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.Issuance{}).Count(&count).Error)
	return count
}
