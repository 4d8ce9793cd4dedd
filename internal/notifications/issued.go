package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// IssuanceNotifier leaves an in-app notice for admins and managers whenever
// equipment is handed out.
type IssuanceNotifier struct {
	notifications Service
	logg          *logger.Logger
}

func NewIssuanceNotifier(notifications Service, logg *logger.Logger) (*IssuanceNotifier, error) {
	if notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &IssuanceNotifier{notifications: notifications, logg: logg}, nil
}

func (n *IssuanceNotifier) NotifyIssued(ctx context.Context, rec models.Issuance) error {
	ctx = n.logg.WithIssuanceID(ctx, rec.ID.String())
	sent, err := n.notifications.NotifyPrivileged(ctx, Message{
		Type:    enums.NotificationTypeIssuance,
		Title:   "Equipment issued",
		Message: issuedMessage(rec),
		Link:    "/issuances/" + rec.ID.String(),
	})
	if err != nil {
		return err
	}
	n.logg.Info(n.logg.WithField(ctx, "recipients", sent), "issuance notified")
	return nil
}

func issuedMessage(rec models.Issuance) string {
	who := "A collaborator"
	if rec.Collaborator != nil && rec.Collaborator.Name != "" {
		who = rec.Collaborator.Name
	}
	return fmt.Sprintf("%s received %d x %s.", who, rec.Quantity, rec.Snapshot.Name)
}
