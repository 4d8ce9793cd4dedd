package issuance

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

const (
	ForecastMethodMovingAverage = "moving_average"

	DefaultForecastMonths = 6
	MaxForecastMonths     = 24
	DefaultForecastAhead  = 3
	MaxForecastAhead      = 12
)

// ForecastParams sizes the history window and the projection.
type ForecastParams struct {
	Months int
	Ahead  int
}

// MonthlyUsage is the units issued in one calendar month, keyed "2006-01".
type MonthlyUsage struct {
	Month string `json:"month"`
	Units int    `json:"units"`
}

// Forecast projects monthly consumption of one item as the plain average of
// the last complete months. Months without issuances count as zero.
type Forecast struct {
	EquipmentID uuid.UUID      `json:"equipment_id"`
	Name        string         `json:"name"`
	Method      string         `json:"method"`
	Average     float64        `json:"average"`
	History     []MonthlyUsage `json:"history"`
	Forecast    []MonthlyUsage `json:"forecast"`
}

type usagePoint struct {
	IssuedAt time.Time
	Quantity int
}

// EquipmentName returns the item's name, soft-deleted items included.
func (l *Ledger) EquipmentName(ctx context.Context, id uuid.UUID) (string, error) {
	var item models.Equipment
	err := l.db.WithContext(ctx).Unscoped().Select("id", "name").First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrUnknownEquipment
	}
	return item.Name, err
}

// Usage lists what was issued of one item in [since, until).
func (l *Ledger) Usage(ctx context.Context, equipmentID uuid.UUID, since, until time.Time) ([]usagePoint, error) {
	var rows []usagePoint
	err := l.db.WithContext(ctx).Model(&models.Issuance{}).
		Select("issued_at, quantity").
		Where("equipment_id = ? AND issued_at >= ? AND issued_at < ?", equipmentID, since.UTC(), until.UTC()).
		Order("issued_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (s *service) Forecast(ctx context.Context, equipmentID uuid.UUID, params ForecastParams) (*Forecast, error) {
	if equipmentID == uuid.Nil {
		return nil, missingField("equipment_id")
	}
	months, ahead := params.Months, params.Ahead
	if months <= 0 {
		months = DefaultForecastMonths
	}
	if ahead <= 0 {
		ahead = DefaultForecastAhead
	}
	if months > MaxForecastMonths || ahead > MaxForecastAhead {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "forecast window too large").
			WithDetails(map[string]any{"max_months": MaxForecastMonths, "max_future": MaxForecastAhead})
	}

	name, err := s.ledger.EquipmentName(ctx, equipmentID)
	if errors.Is(err, ErrUnknownEquipment) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "equipment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load equipment")
	}

	current := monthStart(s.now(), s.loc)
	since := current.AddDate(0, -months, 0)
	points, err := s.ledger.Usage(ctx, equipmentID, since, current)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load usage")
	}

	history := make([]MonthlyUsage, months)
	index := make(map[string]int, months)
	for i := range history {
		key := since.AddDate(0, i, 0).Format("2006-01")
		history[i] = MonthlyUsage{Month: key}
		index[key] = i
	}
	total := 0
	for _, p := range points {
		if i, ok := index[p.IssuedAt.In(s.loc).Format("2006-01")]; ok {
			history[i].Units += p.Quantity
			total += p.Quantity
		}
	}

	out := &Forecast{
		EquipmentID: equipmentID,
		Name:        name,
		Method:      ForecastMethodMovingAverage,
		History:     history,
		Forecast:    []MonthlyUsage{},
	}
	if total == 0 {
		return out, nil
	}
	out.Average = float64(total) / float64(months)
	projected := int(math.Round(out.Average))
	for i := range ahead {
		out.Forecast = append(out.Forecast, MonthlyUsage{
			Month: current.AddDate(0, i, 0).Format("2006-01"),
			Units: projected,
		})
	}
	return out, nil
}

func monthStart(at time.Time, loc *time.Location) time.Time {
	y, m, _ := at.In(loc).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc)
}
