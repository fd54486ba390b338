// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package pool provides a bounded pool of durable PostgreSQL
// connections with retrying acquisition and transparent retry of
// transient query failures, per spec.md §4.1. It is the only component
// permitted to hold a *pgxpool.Pool; every other package reaches
// PostgreSQL exclusively through the db facade built on top of this
// package (modeled on the teacher's RelayStore/BroadcastStore pattern
// of one owning type per shared resource, and on the pgx wrapper shown
// in the retrieved StricklySoft postgres client).
package pool

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool wraps a *pgxpool.Pool with spec-mandated retry/backoff and
// transient/permanent error classification.
type Pool struct {
	cfg Config
	pgx *pgxpool.Pool
	log *zap.Logger
}

// Connect brings the pool up, retrying with exponential backoff from
// InitialDelay to MaxDelay. Fails with ConnectionPoolError after
// MaxAttempts.
func Connect(ctx context.Context, cfg Config, log *zap.Logger) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	poolCfg.MinConns = cfg.MinSize
	poolCfg.MaxConns = cfg.MaxSize
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = cfg.HealthCheckTimeout

	p := &Pool{cfg: cfg, log: log}

	attempt := 0
	op := func() error {
		attempt++
		pgxPool, connErr := pgxpool.NewWithConfig(ctx, poolCfg)
		if connErr != nil {
			return connErr
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.HealthCheckTimeout)
		defer cancel()
		if connErr = pgxPool.Ping(pingCtx); connErr != nil {
			pgxPool.Close()
			return connErr
		}
		p.pgx = pgxPool
		return nil
	}

	bo := p.backoffPolicy(ctx)
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))); err != nil {
		return nil, &ConnectionPoolError{Op: "connect", Attempt: attempt, Err: err}
	}
	return p, nil
}

func (p *Pool) backoffPolicy(ctx context.Context) backoff.BackOff {
	var bo backoff.BackOff
	if p.cfg.ExponentialBackoff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.cfg.InitialDelay
		eb.MaxInterval = p.cfg.MaxDelay
		eb.MaxElapsedTime = 0
		bo = eb
	} else {
		bo = backoff.NewConstantBackOff(p.cfg.InitialDelay)
	}
	return backoff.WithContext(bo, ctx)
}

// Close idempotently tears the pool down.
func (p *Pool) Close() {
	if p.pgx != nil {
		p.pgx.Close()
		p.pgx = nil
	}
}

func (p *Pool) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := 0
	retryable := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := p.backoffPolicy(ctx)
	err := backoff.Retry(retryable, backoff.WithMaxRetries(bo, uint64(p.cfg.MaxAttempts-1)))
	if err == nil {
		return nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return &QueryError{Query: op, Err: errors.Unwrap(permanent)}
	}
	return &ConnectionPoolError{Op: op, Attempt: attempt, Err: err}
}

func isPermanent(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return errors.Is(err, pgx.ErrNoRows)
}

// Fetch runs a parameterized query and returns all rows.
func (p *Pool) Fetch(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := p.withRetry(ctx, query, func(ctx context.Context) error {
		r, err := p.pgx.Query(ctx, query, args...)
		rows = r
		return err
	})
	return rows, err
}

// FetchRow runs a parameterized query expected to return at most one row.
func (p *Pool) FetchRow(ctx context.Context, query string, args ...any) pgx.Row {
	return p.pgx.QueryRow(ctx, query, args...)
}

// FetchVal runs query and scans the single resulting scalar into dest.
func (p *Pool) FetchVal(ctx context.Context, dest any, query string, args ...any) error {
	return p.withRetry(ctx, query, func(ctx context.Context) error {
		return p.pgx.QueryRow(ctx, query, args...).Scan(dest)
	})
}

// Execute runs a parameterized mutation and returns the driver status tag.
func (p *Pool) Execute(ctx context.Context, query string, args ...any) (string, error) {
	var tag pgconn.CommandTag
	err := p.withRetry(ctx, query, func(ctx context.Context) error {
		t, err := p.pgx.Exec(ctx, query, args...)
		tag = t
		return err
	})
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// Tx is a scoped transaction boundary: Rollback is a no-op once Commit
// has succeeded, matching pgx's own contract, so callers can always
// `defer tx.Rollback(ctx)` right after Transaction returns.
type Tx struct {
	tx pgx.Tx
}

// Transaction acquires a single connection and opens a transaction on
// it. The caller must Commit or the deferred Rollback unwinds it.
func (p *Pool) Transaction(ctx context.Context) (*Tx, error) {
	tx, err := p.pgx.Begin(ctx)
	if err != nil {
		return nil, &ConnectionPoolError{Op: "begin", Attempt: 1, Err: err}
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Execute(ctx context.Context, query string, args ...any) (string, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return "", &QueryError{Query: query, Err: err}
	}
	return tag.String(), nil
}

func (t *Tx) FetchRow(ctx context.Context, query string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, query, args...)
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// AcquireHealthy checks out a connection and issues a lightweight health
// query, discarding and retrying up to MaxAttempts on failure.
func (p *Pool) AcquireHealthy(ctx context.Context) (*pgxpool.Conn, error) {
	var conn *pgxpool.Conn
	err := p.withRetry(ctx, "acquire_healthy", func(ctx context.Context) error {
		c, err := p.pgx.Acquire(ctx)
		if err != nil {
			return err
		}
		hctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
		defer cancel()
		if err := c.Ping(hctx); err != nil {
			c.Release()
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}
