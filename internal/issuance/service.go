package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/internal/live"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/metrics"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

const defaultLowStockThreshold = 5

// LowStockNotifier is told about items whose stock fell to the threshold.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, item models.Equipment) error
}

// IssueNotifier tells privileged users about a committed issuance.
type IssueNotifier interface {
	NotifyIssued(ctx context.Context, rec models.Issuance) error
}

// ActivityRecorder receives best-effort audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, action enums.ActivityAction, details map[string]any)
}

// Service is the issuance core: issue, return and delete move stock through
// the coordinator; the rest are reads.
type Service interface {
	Issue(ctx context.Context, actor Actor, input IssueInput) (*Record, error)
	Return(ctx context.Context, actor Actor, id uuid.UUID, input ReturnInput) (*Record, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Report(ctx context.Context, from, to *time.Time) (*Report, error)
	Forecast(ctx context.Context, equipmentID uuid.UUID, params ForecastParams) (*Forecast, error)
}

// ServiceParams wires the issuance service. Notifier, IssueNotifier, Broadcaster and Activity are optional.
type ServiceParams struct {
	Coordinator       *Coordinator
	Ledger            *Ledger
	Dispatcher        *Dispatcher
	Notifier          LowStockNotifier
	IssueNotifier     IssueNotifier
	Broadcaster       live.Broadcaster
	Activity          ActivityRecorder
	Metrics           *metrics.IssuanceMetrics
	Logger            *logger.Logger
	LowStockThreshold int
	Location          *time.Location
	Now               func() time.Time
}

type service struct {
	coord       *Coordinator
	ledger      *Ledger
	dispatcher  *Dispatcher
	notifier    LowStockNotifier
	issued      IssueNotifier
	broadcaster live.Broadcaster
	activity    ActivityRecorder
	metrics     *metrics.IssuanceMetrics
	logg        *logger.Logger
	threshold   int
	loc         *time.Location
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Coordinator == nil {
		return nil, fmt.Errorf("coordinator required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	dispatcher := params.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(0, params.Logger, params.Metrics)
	}
	threshold := params.LowStockThreshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		coord:       params.Coordinator,
		ledger:      params.Ledger,
		dispatcher:  dispatcher,
		notifier:    params.Notifier,
		issued:      params.IssueNotifier,
		broadcaster: params.Broadcaster,
		activity:    params.Activity,
		metrics:     params.Metrics,
		logg:        params.Logger,
		threshold:   threshold,
		loc:         loc,
		now:         now,
	}, nil
}

// ValidityFor reports whether a certificate expiring at expiry was still valid at issuedAt.
func ValidityFor(expiry, issuedAt time.Time) enums.IssuanceValidity {
	if expiry.Before(issuedAt) {
		return enums.IssuanceValidityExpired
	}
	return enums.IssuanceValidityValid
}

func snapshotOf(item models.Equipment) models.EquipmentSnapshot {
	return models.EquipmentSnapshot{
		Name:              item.Name,
		CertificateNumber: item.CertificateNumber,
		CertificateExpiry: item.CertificateExpiry,
		ProtectionLevel:   item.ProtectionLevel,
		ImageURL:          item.ImageURL,
	}
}

func (s *service) Issue(ctx context.Context, actor Actor, input IssueInput) (rec *Record, err error) {
	defer func() { s.metrics.ObserveOutcome("issue", outcomeOf(err)) }()

	if !actor.valid() {
		return nil, unauthenticated()
	}
	if err := validateIssue(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithEquipmentID(ctx, input.EquipmentID.String())

	var (
		created   *models.Issuance
		remaining *models.Equipment
	)
	err = s.coord.Run(ctx, "issue", func(ctx context.Context, uow UnitOfWork) error {
		exists, err := uow.Ledger.CollaboratorExists(ctx, input.CollaboratorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check collaborator")
		}
		if !exists {
			return unknownCollaborator(input.CollaboratorID)
		}

		item, err := uow.Equipment.FindByID(ctx, input.EquipmentID)
		if err != nil {
			if errors.Is(err, equipment.ErrNotFound) {
				return unknownEquipment(input.EquipmentID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load equipment")
		}
		if item.Stock < input.Quantity {
			return insufficientStock(item.Stock, input.Quantity)
		}

		updated, err := uow.Equipment.DecrementStock(ctx, input.EquipmentID, input.Quantity)
		if err != nil {
			var stockErr *equipment.StockError
			switch {
			case errors.As(err, &stockErr):
				return insufficientStock(stockErr.Available, input.Quantity)
			case errors.Is(err, equipment.ErrNotFound):
				return unknownEquipment(input.EquipmentID)
			default:
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
			}
		}

		issuedAt := s.now().UTC()
		snapshot := snapshotOf(*updated)
		row := &models.Issuance{
			CollaboratorID: input.CollaboratorID,
			EquipmentID:    input.EquipmentID,
			Snapshot:       snapshot,
			Quantity:       input.Quantity,
			IssuedAt:       issuedAt,
			IssuedBy:       actor.UserID,
			Notes:          input.Notes,
			Signature:      input.Signature,
			Validity:       ValidityFor(snapshot.CertificateExpiry, issuedAt),
		}
		if err := uow.Ledger.Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create issuance")
		}

		detailed, err := uow.Ledger.FindDetailed(ctx, row.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload issuance")
		}
		created = detailed
		remaining = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := FromModel(*created)
	ctx = s.logg.WithIssuanceID(ctx, created.ID.String())
	s.logg.Info(ctx, "equipment issued")

	if remaining.Stock <= s.threshold && s.notifier != nil {
		item := *remaining
		s.dispatcher.Go(ctx, "low_stock", func(ctx context.Context) error {
			return s.notifier.NotifyLowStock(ctx, item)
		})
	}
	if s.issued != nil {
		rec := *created
		s.dispatcher.Go(ctx, "issue_notice", func(ctx context.Context) error {
			return s.issued.NotifyIssued(ctx, rec)
		})
	}
	s.broadcast(ctx, live.EventNewIssuance, out)
	s.record(ctx, actor.UserID, enums.ActivityIssuanceCreated, map[string]any{
		"issuance_id":     created.ID,
		"equipment_id":    created.EquipmentID,
		"collaborator_id": created.CollaboratorID,
		"quantity":        created.Quantity,
	})
	return &out, nil
}

// Delete removes a record. A record that was never returned gives its units
// back to the registry in the same transaction.
func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) (err error) {
	defer func() { s.metrics.ObserveOutcome("delete", outcomeOf(err)) }()

	if !actor.valid() {
		return unauthenticated()
	}
	if !actor.Role.IsPrivileged() {
		return forbidden()
	}
	ctx = s.logg.WithIssuanceID(ctx, id.String())

	var (
		restored    int
		skipped     bool
		equipmentID uuid.UUID
	)
	err = s.coord.Run(ctx, "delete", func(ctx context.Context, uow UnitOfWork) error {
		restored, skipped = 0, false
		rec, err := uow.Ledger.FindByID(ctx, id)
		if err != nil {
			return mapLedgerError(err, "load issuance")
		}
		equipmentID = rec.EquipmentID

		if !rec.Returned {
			removed, err := uow.Ledger.DeleteOpen(ctx, id)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete issuance")
			}
			if removed {
				if _, err := uow.Equipment.IncrementStock(ctx, rec.EquipmentID, rec.Quantity); err != nil {
					if !errors.Is(err, equipment.ErrNotFound) {
						return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
					}
					skipped = true
					return nil
				}
				restored = rec.Quantity
				return nil
			}
		}
		return mapLedgerError(uow.Ledger.Delete(ctx, id), "delete issuance")
	})
	if err != nil {
		return err
	}

	ctx = s.logg.WithEquipmentID(ctx, equipmentID.String())
	if skipped {
		s.logg.Warn(ctx, "issued equipment no longer exists; stock compensation skipped")
	}
	s.logg.Info(ctx, "issuance deleted")
	s.record(ctx, actor.UserID, enums.ActivityIssuanceDeleted, map[string]any{
		"issuance_id":       id,
		"equipment_id":      equipmentID,
		"restored_quantity": restored,
	})
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.ledger.FindDetailed(ctx, id)
	if err != nil {
		return nil, mapLedgerError(err, "load issuance")
	}
	out := FromModel(*rec)
	return &out, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	from, until, err := s.window(filter.From, filter.To)
	if err != nil {
		return nil, err
	}

	rows, next, err := s.ledger.List(ctx, listQuery{
		EquipmentID:    filter.EquipmentID,
		CollaboratorID: filter.CollaboratorID,
		SectorID:       filter.SectorID,
		From:           from,
		Until:          until,
		Returned:       filter.Returned,
		Limit:          filter.Limit,
		Cursor:         cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list issuances")
	}
	items := make([]Record, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return &ListResult{Items: items, Cursor: pagination.EncodeNext(next)}, nil
}

func (s *service) Report(ctx context.Context, from, to *time.Time) (*Report, error) {
	start, until, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	byEquipment, byCollaborator, err := s.ledger.Totals(ctx, start, until)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate issuances")
	}
	report := &Report{
		From:           from,
		To:             to,
		ByEquipment:    byEquipment,
		ByCollaborator: byCollaborator,
	}
	if report.ByEquipment == nil {
		report.ByEquipment = []EquipmentTotal{}
	}
	if report.ByCollaborator == nil {
		report.ByCollaborator = []CollaboratorTotal{}
	}
	for _, row := range byEquipment {
		report.TotalRecords += row.Records
		report.TotalUnits += row.Units
		report.ReturnedUnits += row.ReturnedUnits
	}
	return report, nil
}

// window turns calendar dates into the half-open instant range
// [start of from, start of the day after to) in the reference timezone.
func (s *service) window(from, to *time.Time) (*time.Time, *time.Time, error) {
	var start, until *time.Time
	if from != nil {
		v := startOfDay(*from, s.loc)
		start = &v
	}
	if to != nil {
		v := startOfDay(*to, s.loc).AddDate(0, 0, 1)
		until = &v
	}
	if start != nil && until != nil && !start.Before(*until) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	return start, until, nil
}

func startOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func (s *service) broadcast(ctx context.Context, eventType live.EventType, rec Record) {
	if s.broadcaster == nil {
		return
	}
	evt, err := live.NewEvent(eventType, rec, s.now())
	if err != nil {
		s.logg.Error(ctx, "failed to build live event", err)
		return
	}
	s.dispatcher.Go(ctx, "broadcast", func(ctx context.Context) error {
		return s.broadcaster.Publish(ctx, evt)
	})
}

func (s *service) record(ctx context.Context, userID uuid.UUID, action enums.ActivityAction, details map[string]any) {
	if s.activity == nil {
		return
	}
	s.dispatcher.Go(ctx, "activity", func(ctx context.Context) error {
		s.activity.Record(ctx, userID, action, details)
		return nil
	})
}

func validateIssue(input IssueInput) error {
	switch {
	case input.CollaboratorID == uuid.Nil:
		return missingField("collaborator_id")
	case input.EquipmentID == uuid.Nil:
		return missingField("equipment_id")
	case input.Quantity < 1:
		return invalidQuantity(input.Quantity)
	}
	return nil
}

func mapLedgerError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, ErrNotFound):
		return notFound()
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
	}
}
