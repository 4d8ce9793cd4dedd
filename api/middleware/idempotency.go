package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/api/validators"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/epiguard-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader    = "Idempotency-Key"
	IdempotentReplayHeader  = "Idempotent-Replayed"
	maxIdempotencyKeyLength = 128

	registryKeyTTL  = 24 * time.Hour
	stockMoveKeyTTL = 7 * 24 * time.Hour

	// claimTTL bounds how long a crashed request can block its key.
	claimTTL = 2 * time.Minute
)

// idempotencyRoute names the POST endpoints that honour Idempotency-Key.
// Stock moves require the header.
type idempotencyRoute struct {
	prefix   string
	suffix   string
	exact    bool
	ttl      time.Duration
	required bool
}

func (r idempotencyRoute) matches(path string) bool {
	if r.exact {
		return path == r.prefix
	}
	return strings.HasPrefix(path, r.prefix) && strings.HasSuffix(path, r.suffix) && len(path) > len(r.prefix)+len(r.suffix)
}

var idempotentRoutes = []idempotencyRoute{
	{prefix: "/api/v1/auth/register", exact: true, ttl: registryKeyTTL},
	{prefix: "/api/v1/users", exact: true, ttl: registryKeyTTL},
	{prefix: "/api/v1/equipment", exact: true, ttl: registryKeyTTL},
	{prefix: "/api/v1/collaborators", exact: true, ttl: registryKeyTTL},
	{prefix: "/api/v1/notifications/read-all", exact: true, ttl: registryKeyTTL},
	{prefix: "/api/v1/notifications/", suffix: "/read", ttl: registryKeyTTL},
	{prefix: "/api/v1/issuances", exact: true, ttl: stockMoveKeyTTL, required: true},
	{prefix: "/api/v1/issuances/", suffix: "/return", ttl: stockMoveKeyTTL, required: true},
}

// storedResponse is what a key resolves to. Pending marks a claim whose
// handler has not finished yet.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the routes above. The key is claimed before the handler runs so a
// concurrent duplicate is refused rather than executed twice; server errors
// release the claim so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupIdempotentRoute(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			switch {
			case clientKey == "" && !route.required:
				next.ServeHTTP(w, r)
				return
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyKeyHeader+" header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLength:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyKeyHeader+" header too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, validators.MaxBodyBytes+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := requestFingerprint(body)
			key := store.IdempotencyKey(requestScope(r), clientKey)

			claim, _ := json.Marshal(storedResponse{Pending: true, RequestHash: fingerprint})
			claimed, err := store.SetNX(ctx, key, string(claim), claimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if !claimed {
				replayStored(ctx, store, key, fingerprint, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			completed := false
			defer func() {
				if !completed {
					releaseClaim(ctx, store, key, logg)
				}
			}()
			next.ServeHTTP(capture, r)
			completed = true

			status := capture.statusOrDefault()
			if status >= http.StatusInternalServerError {
				releaseClaim(ctx, store, key, logg)
				return
			}
			record, _ := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				RequestHash: fingerprint,
			})
			if err := store.Set(context.WithoutCancel(ctx), key, string(record), route.ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func replayStored(ctx context.Context, store pkgredis.IdempotencyStore, key, fingerprint string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// The claim expired between SetNX and Get; let the client retry.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.RequestHash != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if stored.Pending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this key is still in progress"))
		return
	}
	body, err := base64.StdEncoding.DecodeString(stored.Body)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(body)
}

func releaseClaim(ctx context.Context, store pkgredis.IdempotencyStore, key string, logg *logger.Logger) {
	if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
		logError(ctx, logg, "release idempotency claim", err)
	}
}

// requestScope keeps keys from colliding across callers and endpoints.
func requestScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func requestFingerprint(payload []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(payload))
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		// A parent router only knows a wildcard pattern; fall back to the path.
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	if trimmed := strings.TrimSuffix(r.URL.Path, "/"); trimmed != "" {
		return trimmed
	}
	return r.URL.Path
}

func lookupIdempotentRoute(method, pattern string) (idempotencyRoute, bool) {
	if method != http.MethodPost || pattern == "" {
		return idempotencyRoute{}, false
	}
	for _, route := range idempotentRoutes {
		if route.matches(pattern) {
			return route, true
		}
	}
	return idempotencyRoute{}, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrDefault() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
