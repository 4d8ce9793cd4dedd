package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// LowStockPayload is the JSON body posted to the low-stock webhook.
type LowStockPayload struct {
	Event       string                `json:"event"`
	EquipmentID uuid.UUID             `json:"equipment_id"`
	Name        string                `json:"name"`
	Stock       int                   `json:"stock"`
	Status      enums.EquipmentStatus `json:"status"`
	OccurredAt  time.Time             `json:"occurred_at"`
}

// LowStockNotifier alerts privileged users in-app and, when configured, posts
// the item to an external webhook.
type LowStockNotifier struct {
	notifications Service
	webhook       *WebhookClient
	logg          *logger.Logger
	now           func() time.Time
}

// NewLowStockNotifier wires the notifier. webhook may be nil.
func NewLowStockNotifier(notifications Service, webhook *WebhookClient, logg *logger.Logger) (*LowStockNotifier, error) {
	if notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &LowStockNotifier{
		notifications: notifications,
		webhook:       webhook,
		logg:          logg,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// NotifyLowStock runs both channels and returns their combined failure.
func (n *LowStockNotifier) NotifyLowStock(ctx context.Context, item models.Equipment) error {
	ctx = n.logg.WithEquipmentID(ctx, item.ID.String())

	var errs error
	sent, err := n.notifications.NotifyPrivileged(ctx, Message{
		Type:    enums.NotificationTypeStock,
		Title:   "Low stock",
		Message: lowStockMessage(item),
		Link:    "/equipment/" + item.ID.String(),
	})
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	if n.webhook != nil {
		payload := LowStockPayload{
			Event:       "low_stock",
			EquipmentID: item.ID,
			Name:        item.Name,
			Stock:       item.Stock,
			Status:      item.Status,
			OccurredAt:  n.now(),
		}
		if err := n.webhook.Post(ctx, payload); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if errs == nil {
		n.logg.Info(n.logg.WithFields(ctx, map[string]any{
			"stock":      item.Stock,
			"recipients": sent,
		}), "low stock notified")
	}
	return errs
}

func lowStockMessage(item models.Equipment) string {
	if item.Stock <= 0 {
		return fmt.Sprintf("%s is out of stock.", item.Name)
	}
	unit := "units"
	if item.Stock == 1 {
		unit = "unit"
	}
	return fmt.Sprintf("%s has only %d %s left in stock.", item.Name, item.Stock, unit)
}
