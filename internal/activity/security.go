package activity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/pagination"
)

const unknownClient = "unknown"

// SecurityInput describes one security event. IP and user agent come from the
// request context.
type SecurityInput struct {
	Event   enums.SecurityEvent
	UserID  *uuid.UUID
	Email   string
	Details string
}

// SecurityEntry is the API view of a security event.
type SecurityEntry struct {
	ID        uuid.UUID           `json:"id"`
	Event     enums.SecurityEvent `json:"event"`
	UserID    *uuid.UUID          `json:"user_id,omitempty"`
	Email     *string             `json:"email,omitempty"`
	IP        string              `json:"ip"`
	UserAgent string              `json:"user_agent"`
	Details   *string             `json:"details,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// SecurityFilter narrows the security log. Zero fields match everything.
type SecurityFilter struct {
	Event  *enums.SecurityEvent
	UserID *uuid.UUID
	Email  string
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor string
}

type SecurityPage struct {
	Items  []SecurityEntry `json:"items"`
	Cursor string          `json:"cursor"`
}

// SecurityLog stores authentication outcomes. Like Recorder, writes never
// fail the request that caused them.
type SecurityLog struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewSecurityLog(db *gorm.DB, logg *logger.Logger) (*SecurityLog, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &SecurityLog{db: db, logg: logg}, nil
}

func (l *SecurityLog) RecordSecurity(ctx context.Context, in SecurityInput) {
	logCtx := l.logg.WithField(ctx, "security_event", string(in.Event))
	if !in.Event.IsValid() {
		l.logg.Warn(logCtx, "unknown security event dropped")
		return
	}

	row := &models.SecurityEvent{
		UserID:    in.UserID,
		Event:     in.Event,
		IP:        unknownClient,
		UserAgent: unknownClient,
	}
	if ip := ipFromContext(ctx); ip != nil {
		row.IP = *ip
	}
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok && ua != "" {
		row.UserAgent = ua
	}
	if email := strings.ToLower(strings.TrimSpace(in.Email)); email != "" {
		row.Email = &email
	}
	if details := strings.TrimSpace(in.Details); details != "" {
		row.Details = &details
	}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		l.logg.Error(logCtx, "record security event", err)
		return
	}
	if in.Event == enums.SecurityLoginFailed || in.Event == enums.SecurityAccessDenied {
		l.logg.Warn(l.logg.WithField(logCtx, "ip", row.IP), "security event recorded")
	}
}

// List pages through the log newest first.
func (l *SecurityLog) List(ctx context.Context, filter SecurityFilter) (*SecurityPage, error) {
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}

	query := l.db.WithContext(ctx).Model(&models.SecurityEvent{})
	if filter.Event != nil {
		query = query.Where("event = ?", *filter.Event)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if email := strings.ToLower(strings.TrimSpace(filter.Email)); email != "" {
		query = query.Where("email = ?", email)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}
	query = query.Scopes(pagination.Before("created_at", "id", cursor))

	var rows []models.SecurityEvent
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(filter.Limit)).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list security events")
	}
	page, next := pagination.Trim(rows, filter.Limit, func(e models.SecurityEvent) pagination.Cursor {
		return pagination.Cursor{At: e.CreatedAt, ID: e.ID}
	})

	out := &SecurityPage{Items: make([]SecurityEntry, 0, len(page)), Cursor: pagination.EncodeNext(next)}
	for _, row := range page {
		out.Items = append(out.Items, SecurityEntry{
			ID:        row.ID,
			Event:     row.Event,
			UserID:    row.UserID,
			Email:     row.Email,
			IP:        row.IP,
			UserAgent: row.UserAgent,
			Details:   row.Details,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
