package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	"github.com/angelmondragon/epiguard-backend/internal/activity"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// RateLimiterStore counts hits per key inside a TTL window. RateLimitKey
// namespaces a counter scope.
type RateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// AuthRateLimitPolicy throttles one public auth surface per client IP and per
// submitted email. A zero limit disables that counter.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
	auditEvent enums.SecurityEvent
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

// Audited makes blocked attempts show up in the security log as event.
func (p AuthRateLimitPolicy) Audited(event enums.SecurityEvent) AuthRateLimitPolicy {
	p.auditEvent = event
	return p
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

func (p AuthRateLimitPolicy) scope(kind, value string) string {
	return p.name + ":" + kind + ":" + value
}

type rateLimitHit struct {
	kind  string
	ip    string
	email string
	count int64
	limit int
}

// AuthRateLimit rejects requests over either counter with 429 and a
// Retry-After of the policy window. The body is buffered and restored so the
// handler can decode it again.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimiterStore, audit SecurityRecorder, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r)

			if policy.ipLimit > 0 && ip != "" {
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.scope("ip", ip)), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(policy.ipLimit) {
					rejectRateLimited(ctx, w, policy, audit, logg, rateLimitHit{kind: "ip", ip: ip, count: count, limit: policy.ipLimit})
					return
				}
			}

			if policy.emailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, validators.MaxBodyBytes))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if email := submittedEmail(body); email != "" {
					count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.scope("email", hashValue(email))), policy.window)
					if err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					}
					if count > int64(policy.emailLimit) {
						rejectRateLimited(ctx, w, policy, audit, logg, rateLimitHit{kind: "email", ip: ip, email: email, count: count, limit: policy.emailLimit})
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, w http.ResponseWriter, policy AuthRateLimitPolicy, audit SecurityRecorder, logg *logger.Logger, hit rateLimitHit) {
	if logg != nil {
		fields := map[string]any{
			"policy":         policy.name,
			"scope":          hit.kind,
			"attempts":       hit.count,
			"limit":          hit.limit,
			"window_seconds": int(policy.window.Seconds()),
			"ip":             hit.ip,
		}
		if hit.email != "" {
			fields["email_hash"] = hashValue(hit.email)
		}
		logg.Warn(logg.WithFields(ctx, fields), "auth attempt throttled")
	}
	// Only the first rejection in a window is audited so a flood does not
	// flood the log too.
	if audit != nil && policy.auditEvent != "" && hit.count == int64(hit.limit)+1 {
		audit.RecordSecurity(ctx, activity.SecurityInput{
			Event:   policy.auditEvent,
			Email:   hit.email,
			Details: "rate_limited:" + hit.kind,
		})
	}
	w.Header().Set("Retry-After", strconv.Itoa(max(int(policy.window.Seconds()), 1)))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
		WithDetails(map[string]any{"scope": hit.kind}))
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		first, _, _ := strings.Cut(header, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func submittedEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
