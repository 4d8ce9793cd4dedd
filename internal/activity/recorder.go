// Package activity keeps the per-user audit trail: logins and every issuance
// or equipment mutation, written after the owning transaction commits.
package activity

import (
	"context"
	"encoding/json"
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

const defaultRecentLimit = 10

type (
	ipKey        struct{}
	userAgentKey struct{}
)

// WithIP stores the caller address so later Record calls can attach it.
func WithIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ipKey{}, ip)
}

// WithUserAgent stores the caller's User-Agent header for security events.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func ipFromContext(ctx context.Context) *string {
	if ip, ok := ctx.Value(ipKey{}).(string); ok && ip != "" {
		return &ip
	}
	return nil
}

// Entry is the API view of an activity row.
type Entry struct {
	ID        uuid.UUID            `json:"id"`
	UserID    uuid.UUID            `json:"user_id"`
	Action    enums.ActivityAction `json:"action"`
	Details   json.RawMessage      `json:"details,omitempty"`
	IP        *string              `json:"ip,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

func fromModel(m models.ActivityLog) Entry {
	return Entry{
		ID:        m.ID,
		UserID:    m.UserID,
		Action:    m.Action,
		Details:   m.Details,
		IP:        m.IP,
		CreatedAt: m.CreatedAt,
	}
}

// Recorder persists audit entries. Record never fails the caller: storage
// errors are logged and dropped.
type Recorder struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewRecorder(db *gorm.DB, logg *logger.Logger) (*Recorder, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Recorder{db: db, logg: logg}, nil
}

func (r *Recorder) Record(ctx context.Context, userID uuid.UUID, action enums.ActivityAction, details map[string]any) {
	if userID == uuid.Nil {
		r.logg.Warn(r.logg.WithField(ctx, "action", string(action)), "activity without user dropped")
		return
	}

	var raw json.RawMessage
	if len(details) > 0 {
		encoded, err := json.Marshal(details)
		if err != nil {
			r.logg.Error(ctx, "encode activity details", err)
		} else {
			raw = encoded
		}
	}

	entry := &models.ActivityLog{
		UserID:  userID,
		Action:  action,
		Details: raw,
		IP:      ipFromContext(ctx),
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logg.Error(r.logg.WithField(ctx, "action", string(action)), "record activity", err)
	}
}

// ListRecent returns the newest entries for userID, newest first.
func (r *Recorder) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = pagination.NormalizeLimit(limit)

	var rows []models.ActivityLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity")
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}
