package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

// Service defines notification list/read operations plus fan-out to
// privileged users.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	NotifyPrivileged(ctx context.Context, msg Message) (int, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// Message is the content of a notification before it is addressed.
type Message struct {
	Type    enums.NotificationType
	Title   string
	Message string
	Link    string
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:  rows,
		Cursor: pagination.EncodeNext(next),
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

// NotifyPrivileged stores one copy of msg for every active admin and manager
// and returns how many were written.
func (s *service) NotifyPrivileged(ctx context.Context, msg Message) (int, error) {
	if !msg.Type.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	if strings.TrimSpace(msg.Title) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "notification title required")
	}

	recipients, err := s.repo.PrivilegedRecipientIDs(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification recipients")
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	var link *string
	if trimmed := strings.TrimSpace(msg.Link); trimmed != "" {
		link = &trimmed
	}
	rows := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, models.Notification{
			UserID:  userID,
			Type:    msg.Type,
			Title:   msg.Title,
			Message: msg.Message,
			Link:    link,
		})
	}
	if err := s.repo.CreateMany(ctx, rows); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notifications")
	}
	return len(rows), nil
}
