// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS omnisearch_performance (
	id               BIGSERIAL PRIMARY KEY,
	provider         TEXT        NOT NULL,
	query            TEXT        NOT NULL,
	query_type       TEXT        NOT NULL,
	success          BOOLEAN     NOT NULL,
	response_time_ms BIGINT      NOT NULL,
	result_count     INTEGER     NOT NULL,
	error_kind       TEXT,
	characteristics  JSONB       NOT NULL,
	recorded_at      TIMESTAMPTZ NOT NULL
)`

const archiveInsert = `
INSERT INTO omnisearch_performance
	(provider, query, query_type, success, response_time_ms, result_count, error_kind, characteristics, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`

// archiveBuffer is the queue depth before records are dropped.
const archiveBuffer = 256

// PerformanceArchive is an optional Postgres sink that keeps every
// performance record for offline analysis beyond the in-memory history
// cap. Writes are best-effort: failures are logged, never surfaced.
type PerformanceArchive struct {
	db     *sql.DB
	queue  chan PerformanceRecord
	done   chan struct{}
	logger *log.Logger
}

// NewPerformanceArchive wraps an existing database handle.
func NewPerformanceArchive(db *sql.DB) *PerformanceArchive {
	return &PerformanceArchive{
		db:     db,
		queue:  make(chan PerformanceRecord, archiveBuffer),
		done:   make(chan struct{}),
		logger: log.New(os.Stdout, "[ARCHIVE] ", log.LstdFlags),
	}
}

// OpenPerformanceArchive connects to Postgres and ensures the schema.
func OpenPerformanceArchive(ctx context.Context, dsn string) (*PerformanceArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	a := NewPerformanceArchive(db)
	if err := a.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// EnsureSchema creates the archive table if needed.
func (a *PerformanceArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Start launches the single writer goroutine. It drains until the
// context is cancelled.
func (a *PerformanceArchive) Start(ctx context.Context) {
	go func() {
		defer close(a.done)
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-a.queue:
				if err := a.insert(ctx, rec); err != nil {
					a.logger.Printf("archive insert failed: %v", err)
				}
			}
		}
	}()
}

// Record enqueues one record without blocking the search path. When
// the queue is full the record is dropped and counted against the log.
func (a *PerformanceArchive) Record(rec PerformanceRecord) {
	select {
	case a.queue <- rec:
	default:
		a.logger.Printf("archive queue full, dropping record for %s", rec.Provider)
	}
}

func (a *PerformanceArchive) insert(ctx context.Context, rec PerformanceRecord) error {
	characteristics, err := json.Marshal(rec.Characteristics)
	if err != nil {
		return fmt.Errorf("marshal characteristics: %w", err)
	}

	_, err = a.db.ExecContext(ctx, archiveInsert,
		rec.Provider,
		rec.Query,
		string(rec.Characteristics.QueryType),
		rec.Success,
		rec.ResponseTimeMS,
		rec.ResultCount,
		string(rec.ErrorKind),
		characteristics,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Close stops accepting records and closes the database handle.
func (a *PerformanceArchive) Close() error {
	return a.db.Close()
}
