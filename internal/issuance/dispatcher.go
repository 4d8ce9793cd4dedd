package issuance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/metrics"
)

const defaultSideEffectTimeout = 10 * time.Second

// Dispatcher runs post-commit side effects in the background. Failures are
// logged and counted, never returned to the caller.
type Dispatcher struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.IssuanceMetrics
}

func NewDispatcher(timeout time.Duration, logg *logger.Logger, m *metrics.IssuanceMetrics) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	return &Dispatcher{timeout: timeout, logg: logg, metrics: m}
}

// Go schedules fn. It keeps the request's log fields but not its cancellation.
func (d *Dispatcher) Go(ctx context.Context, effect string, fn func(ctx context.Context) error) {
	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		err := d.run(ctx, fn)
		d.metrics.ObserveSideEffect(effect, err)
		if err != nil && d.logg != nil {
			d.logg.Error(d.logg.WithField(ctx, "effect", effect), "post-commit side effect failed", err)
		}
	}()
}

func (d *Dispatcher) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("side effect panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled side effect finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
