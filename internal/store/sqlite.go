/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bitcoin-tipjar-go/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SqliteStore is the durable ReplayStore backend, so idempotency replay
// survives forwarding server restarts.
type SqliteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ ReplayStore = (*SqliteStore)(nil)

func NewSqliteStore(ctx context.Context, cfg models.StoreConfig) (*SqliteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.Ttl <= 0 {
		return nil, fmt.Errorf("idempotency TTL must be positive, got %v", cfg.Ttl)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite idempotency store", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &SqliteStore{db: db, ttl: cfg.Ttl, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SqliteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_entries (
			key           TEXT PRIMARY KEY,
			body_hash     TEXT NOT NULL,
			status_code   INTEGER NOT NULL,
			response_body BLOB,
			created_at    TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_idempotency_created_at
			ON idempotency_entries(created_at);
	`)
	return err
}

func (s *SqliteStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, body_hash, status_code, response_body, created_at
		FROM idempotency_entries WHERE key = ?`, key)

	var entry Entry
	err := row.Scan(&entry.Key, &entry.BodyHash, &entry.StatusCode, &entry.ResponseBody, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency entry: %w", err)
	}

	if s.now().Sub(entry.CreatedAt) >= s.ttl {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (s *SqliteStore) Put(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_entries (key, body_hash, status_code, response_body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body_hash = excluded.body_hash,
			status_code = excluded.status_code,
			response_body = excluded.response_body,
			created_at = excluded.created_at`,
		entry.Key, entry.BodyHash, entry.StatusCode, entry.ResponseBody, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store idempotency entry: %w", err)
	}
	return nil
}

func (s *SqliteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete idempotency entry: %w", err)
	}
	return nil
}

func (s *SqliteStore) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	result, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_entries WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		zap.L().Debug("Purged expired idempotency entries", zap.Int64("purged", purged))
	}
	return int(purged), nil
}

func (s *SqliteStore) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close idempotency store", zap.Error(err))
	}
}
