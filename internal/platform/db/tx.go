package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// TxRunner runs fn inside a single store transaction. Every repository call
// made with the context passed to fn joins that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Transactor is the pgx-backed TxRunner. Transactions are SERIALIZABLE and
// are re-run on serialization failures and deadlocks.
type Transactor struct {
	pool       *pgxpool.Pool
	maxRetries int
	logger     zerolog.Logger
}

func NewTransactor(pool *pgxpool.Pool, maxRetries int, logger zerolog.Logger) *Transactor {
	return &Transactor{pool: pool, maxRetries: maxRetries, logger: logger}
}

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt >= t.maxRetries {
			break
		}
		t.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("retrying transaction")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return apperr.TxFailure("transaction retries exhausted", err)
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	var b beginner = t.pool
	if c := ConnFromContext(ctx); c != nil {
		b = c
	}

	tx, err := b.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return apperr.TxFailure("begin transaction", err)
	}

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			t.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return classifyTxError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		if IsRetryable(err) {
			return err
		}
		return apperr.TxFailure("commit transaction", err)
	}
	return nil
}

// classifyTxError leaves domain, retryable and deadline errors as they are and
// reports anything else from the store as a transaction failure.
func classifyTxError(err error) error {
	if apperr.IsDomain(err) || IsRetryable(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.TxFailure("transaction aborted", err)
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 25 * time.Millisecond
}
