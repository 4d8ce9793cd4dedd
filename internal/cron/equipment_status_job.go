package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/epiguard-backend/internal/notifications"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

const (
	defaultExpiryWarningDays = 30
	maxListedItems           = 5
)

type equipmentStatusRepo interface {
	MarkExpired(ctx context.Context, now time.Time) ([]models.Equipment, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Equipment, error)
}

type privilegedNotifier interface {
	NotifyPrivileged(ctx context.Context, msg notifications.Message) (int, error)
}

// EquipmentStatusJobParams configure the certificate expiry sweep.
type EquipmentStatusJobParams struct {
	Logger        *logger.Logger
	Repository    equipmentStatusRepo
	Notifications privilegedNotifier
	WarningDays   int
	Interval      time.Duration
}

// NewEquipmentStatusJob builds the job that flips lapsed certificates to
// expired and warns privileged users about items entering the warning window.
func NewEquipmentStatusJob(params EquipmentStatusJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("equipment repository required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	days := params.WarningDays
	if days <= 0 {
		days = defaultExpiryWarningDays
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &equipmentStatusJob{
		logg:          params.Logger,
		repo:          params.Repository,
		notifications: params.Notifications,
		warning:       time.Duration(days) * 24 * time.Hour,
		interval:      interval,
		now:           time.Now,
	}, nil
}

type equipmentStatusJob struct {
	logg          *logger.Logger
	repo          equipmentStatusRepo
	notifications privilegedNotifier
	warning       time.Duration
	interval      time.Duration
	now           func() time.Time
}

func (j *equipmentStatusJob) Name() string { return "equipment-status" }

func (j *equipmentStatusJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	expired, err := j.repo.MarkExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}

	// Only items that crossed into the warning window since the previous
	// cycle are announced, so each certificate is warned about once.
	from := now.Add(j.warning - j.interval)
	to := now.Add(j.warning)
	expiring, err := j.repo.ListExpiringBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list expiring: %w", err)
	}

	var errs error
	if len(expired) > 0 {
		_, err := j.notifications.NotifyPrivileged(ctx, notifications.Message{
			Type:    enums.NotificationTypeExpiry,
			Title:   "Certificates expired",
			Message: summarize(expired, "now expired"),
			Link:    "/equipment?status=expired",
		})
		errs = multierr.Append(errs, err)
	}
	if len(expiring) > 0 {
		_, err := j.notifications.NotifyPrivileged(ctx, notifications.Message{
			Type:    enums.NotificationTypeExpiry,
			Title:   "Certificates expiring soon",
			Message: summarize(expiring, fmt.Sprintf("expiring within %d days", int(j.warning.Hours()/24))),
			Link:    "/equipment",
		})
		errs = multierr.Append(errs, err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"expired":  len(expired),
		"expiring": len(expiring),
	}), "equipment status sweep complete")
	return errs
}

func summarize(items []models.Equipment, suffix string) string {
	names := make([]string, 0, maxListedItems)
	for i, item := range items {
		if i == maxListedItems {
			break
		}
		names = append(names, item.Name)
	}
	list := strings.Join(names, ", ")
	if extra := len(items) - len(names); extra > 0 {
		list = fmt.Sprintf("%s and %d more", list, extra)
	}
	noun := "certificates"
	if len(items) == 1 {
		noun = "certificate"
	}
	return fmt.Sprintf("%d %s %s: %s.", len(items), noun, suffix, list)
}
