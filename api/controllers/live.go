package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/internal/live"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// LiveSubscriber opens a stream of live events that ends with ctx.
type LiveSubscriber interface {
	Subscribe(ctx context.Context) (<-chan live.Event, error)
}

// LiveStream pushes issuance events to the dashboard as server-sent events,
// with a heartbeat to keep proxies from closing idle connections.
func LiveStream(sub LiveSubscriber, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if sub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "live updates unavailable"))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		ctx := r.Context()
		events, err := sub.Subscribe(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to live updates"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case evt, open := <-events:
				if !open {
					return
				}
				if err := live.WriteSSE(w, evt); err != nil {
					if logg != nil {
						logg.Warn(ctx, "live stream write failed")
					}
					return
				}
				flusher.Flush()
			case now := <-ticker.C:
				if err := live.WriteSSE(w, live.Event{Type: live.EventHeartbeat, OccurredAt: now.UTC()}); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
