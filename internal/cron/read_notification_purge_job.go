package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

const defaultReadRetentionDays = 30

type readNotificationPurger interface {
	PurgeRead(ctx context.Context, tx *gorm.DB, readBefore time.Time) (map[enums.NotificationType]int64, error)
}

type ReadNotificationPurgeJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository readNotificationPurger
	Cron       config.CronConfig
}

// NewReadNotificationPurgeJob drops notifications a user read more than
// Cron.NotificationRetention days ago. Unread stock and expiry alerts stay
// until someone acknowledges them.
func NewReadNotificationPurgeJob(params ReadNotificationPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	days := params.Cron.NotificationRetention
	if days <= 0 {
		days = defaultReadRetentionDays
	}
	return &readNotificationPurgeJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: time.Duration(days) * 24 * time.Hour,
		now:       time.Now,
	}, nil
}

type readNotificationPurgeJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      readNotificationPurger
	retention time.Duration
	now       func() time.Time
}

func (j *readNotificationPurgeJob) Name() string { return "read-notification-purge" }

func (j *readNotificationPurgeJob) Run(ctx context.Context) error {
	readBefore := j.now().UTC().Add(-j.retention)
	var purged map[enums.NotificationType]int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		purged, err = j.repo.PurgeRead(ctx, tx, readBefore)
		return err
	})
	if err != nil {
		return fmt.Errorf("purge read notifications: %w", err)
	}

	var total int64
	fields := map[string]any{
		"read_before":    readBefore,
		"retention_days": int(j.retention / (24 * time.Hour)),
	}
	for kind, count := range purged {
		fields["purged_"+string(kind)] = count
		total += count
	}
	fields["purged_total"] = total
	j.logg.Info(j.logg.WithFields(ctx, fields), "read notifications purged")
	return nil
}
