// Package pgstore is the Postgres-backed Store for multi-process
// deployments. Records live in a single jsonb table; per-key atomicity
// comes from row locks taken in the global key order.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zlin234/DxBux/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    kind       text        NOT NULL,
    id         text        NOT NULL,
    data       jsonb       NOT NULL DEFAULT 'null',
    updated_at timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (kind, id)
)`

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL and ensures the records table
// exists.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Update locks the listed keys with SELECT ... FOR UPDATE in the global key
// order, runs fn, and commits. Lock rows for absent records are materialized
// first so a key can be locked before it exists ('null' data marks absence).
// Deadlock and serialization failures are retried with capped backoff.
func (s *Store) Update(ctx context.Context, keys []store.Key, fn func(tx store.Tx) error) error {
	keys = store.NormalizeKeys(keys)

	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("%w: begin: %w", store.ErrUnavailable, err)
		}
		err = func() error {
			defer tx.Rollback(ctx)

			locked := make(map[store.Key]struct{}, len(keys))
			for _, k := range keys {
				if _, err := tx.Exec(ctx, `
					INSERT INTO records (kind, id) VALUES ($1, $2)
					ON CONFLICT (kind, id) DO NOTHING
				`, k.Kind, k.ID); err != nil {
					return fmt.Errorf("%w: lock row: %w", store.ErrUnavailable, err)
				}
				if _, err := tx.Exec(ctx, `
					SELECT 1 FROM records WHERE kind = $1 AND id = $2 FOR UPDATE
				`, k.Kind, k.ID); err != nil {
					return fmt.Errorf("%w: lock: %w", store.ErrUnavailable, err)
				}
				locked[k] = struct{}{}
			}

			if err := fn(&pgTx{ctx: ctx, tx: tx, locked: locked}); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("%w: commit: %w", store.ErrUnavailable, err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return fmt.Errorf("%w: retries exhausted: %w", store.ErrUnavailable, err)
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return store.ErrUnavailable
}

func (s *Store) Get(ctx context.Context, kind, id string, out any) (bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM records WHERE kind = $1 AND id = $2
	`, kind, id).Scan(&raw)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get: %w", store.ErrUnavailable, err)
	}
	if isAbsent(raw) {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (s *Store) List(ctx context.Context, kind string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, data FROM records WHERE kind = $1 AND data <> 'null'::jsonb
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", store.ErrUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("%w: list scan: %w", store.ErrUnavailable, err)
		}
		out[id] = json.RawMessage(raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list rows: %w", store.ErrUnavailable, err)
	}
	return out, nil
}

type pgTx struct {
	ctx    context.Context
	tx     pgx.Tx
	locked map[store.Key]struct{}
}

func (t *pgTx) check(kind, id string) error {
	if _, ok := t.locked[store.Key{Kind: kind, ID: id}]; !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrKeyNotLocked, kind, id)
	}
	return nil
}

func (t *pgTx) Get(kind, id string, out any) (bool, error) {
	if err := t.check(kind, id); err != nil {
		return false, err
	}
	var raw []byte
	err := t.tx.QueryRow(t.ctx, `
		SELECT data FROM records WHERE kind = $1 AND id = $2
	`, kind, id).Scan(&raw)
	if err != nil {
		return false, fmt.Errorf("%w: tx get: %w", store.ErrUnavailable, err)
	}
	if isAbsent(raw) {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (t *pgTx) Put(kind, id string, v any) error {
	if err := t.check(kind, id); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(t.ctx, `
		UPDATE records SET data = $3, updated_at = now()
		WHERE kind = $1 AND id = $2
	`, kind, id, raw); err != nil {
		return fmt.Errorf("%w: tx put: %w", store.ErrUnavailable, err)
	}
	return nil
}

func (t *pgTx) Delete(kind, id string) error {
	if err := t.check(kind, id); err != nil {
		return err
	}
	if _, err := t.tx.Exec(t.ctx, `
		UPDATE records SET data = 'null', updated_at = now()
		WHERE kind = $1 AND id = $2
	`, kind, id); err != nil {
		return fmt.Errorf("%w: tx delete: %w", store.ErrUnavailable, err)
	}
	return nil
}

func isAbsent(raw []byte) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// 40001 serialization_failure, 40P01 deadlock_detected.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
