package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/metrics"
)

const (
	defaultTxAttempts   = 3
	defaultTxTimeout    = 10 * time.Second
	defaultRetryBackoff = 20 * time.Millisecond
	defaultMaxBackoff   = 250 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// UnitOfWork carries the registry and ledger stores bound to one transaction.
type UnitOfWork struct {
	Equipment equipment.Store
	Ledger    LedgerStore
}

// CoordinatorParams wires a Coordinator.
type CoordinatorParams struct {
	Tx          txRunner
	Equipment   equipment.Store
	Ledger      LedgerStore
	MaxAttempts int
	Timeout     time.Duration
	// Backoff is the first pause between conflicting attempts; it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	Metrics    *metrics.IssuanceMetrics
	Logger     *logger.Logger
}

// Coordinator runs every stock-moving mutation as one transaction across the
// registry and the ledger.
type Coordinator struct {
	tx          txRunner
	equipment   equipment.Store
	ledger      LedgerStore
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
	maxBackoff  time.Duration
	pause       func(ctx context.Context, d time.Duration) error
	metrics     *metrics.IssuanceMetrics
	logg        *logger.Logger
}

func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Equipment == nil {
		return nil, fmt.Errorf("equipment store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultTxAttempts
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	backoff := params.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	maxBackoff := params.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	maxBackoff = max(maxBackoff, backoff)
	return &Coordinator{
		tx:          params.Tx,
		equipment:   params.Equipment,
		ledger:      params.Ledger,
		maxAttempts: attempts,
		timeout:     timeout,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		pause:       sleepCtx,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// Run executes fn inside a transaction. The transaction is detached from the
// caller's cancellation and bounded by the configured timeout, so it always
// resolves to commit or rollback. Errors from fn roll back and are returned
// unchanged; write conflicts re-run fn after a capped exponential pause until
// the attempts are exhausted.
func (c *Coordinator) Run(ctx context.Context, op string, fn func(ctx context.Context, uow UnitOfWork) error) error {
	base := context.WithoutCancel(ctx)
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.attempt(base, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transaction timed out")
		}
		if !db.IsRetryable(err) {
			return err
		}
		if attempt >= c.maxAttempts {
			return pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, fmt.Sprintf("%s conflicted with concurrent updates", op))
		}
		c.metrics.IncTxRetry(op)
		if c.logg != nil {
			retryCtx := c.logg.WithFields(base, map[string]any{"operation": op, "attempt": attempt})
			c.logg.Warn(c.logg.WithField(retryCtx, "backoff", backoff.String()), "transaction conflict, retrying")
		}
		if err := c.pause(base, backoff); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transaction retry interrupted")
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) attempt(base context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	ctx, cancel := context.WithTimeout(base, c.timeout)
	defer cancel()
	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(ctx, UnitOfWork{
			Equipment: c.equipment.WithTx(tx),
			Ledger:    c.ledger.WithTx(tx),
		})
	})
}
