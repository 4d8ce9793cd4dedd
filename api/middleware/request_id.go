package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/internal/activity"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

const (
	requestIDHeader = responses.RequestIDHeader
	maxRequestIDLen = 64
)

// RequestID tags each request with an ID, echoing a well-formed inbound one so
// a kiosk retry can be traced end to end. It also seeds the client address
// and user agent read by the activity and security logs.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := activity.WithIP(r.Context(), clientIP(r))
			ctx = activity.WithUserAgent(ctx, r.UserAgent())
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validRequestID accepts short IDs made of letters, digits and "-_.:".
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
