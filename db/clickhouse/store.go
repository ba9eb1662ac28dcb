// Package clickhouse stores verification run history in ClickHouse.
// Runs are append-only; one row per run plus one row per entity type.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"inventory-verify/decision/reconcile"
	"inventory-verify/decision/verify"
	"inventory-verify/pkg/entity"
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one stored verification run.
type RunRecord struct {
	ID         uuid.UUID `ch:"id" json:"id"`
	Source     string    `ch:"source" json:"source"`
	StartedAt  time.Time `ch:"started_at" json:"started_at"`
	FinishedAt time.Time `ch:"finished_at" json:"finished_at"`
	Outcome    string    `ch:"outcome" json:"outcome"`
	Mismatches uint32    `ch:"mismatches" json:"mismatches"`
	Error      string    `ch:"error" json:"error,omitempty"`
}

// CountRecord is the stored comparison of one entity type within a run.
// Persisted, Related and Drift are absent when the run failed before
// comparing.
type CountRecord struct {
	EntityType string           `ch:"entity_type" json:"entity_type"`
	Expected   int64            `ch:"expected" json:"expected"`
	Persisted  *int64           `ch:"persisted" json:"persisted,omitempty"`
	Related    *int64           `ch:"related" json:"related,omitempty"`
	Match      bool             `json:"match"`
	Drift      *decimal.Decimal `ch:"drift_pct" json:"drift_pct,omitempty"`
}

// RunDetail is a run with its per-entity rows.
type RunDetail struct {
	RunRecord
	Counts []CountRecord `json:"counts"`
}

// Conn is the subset of clickhouse.Conn the store uses.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "invcheck",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store implements verify.Recorder on ClickHouse.
type Store struct {
	conn Conn
}

var _ verify.Recorder = (*Store)(nil)

// NewStore opens a native connection.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return &Store{conn: conn}, nil
}

// NewStoreWithConn wraps an existing connection.
func NewStoreWithConn(conn Conn) *Store {
	return &Store{conn: conn}
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS verification_runs (
		id          UUID,
		source      LowCardinality(String),
		started_at  DateTime64(3),
		finished_at DateTime64(3),
		outcome     LowCardinality(String),
		mismatches  UInt32,
		error       String
	) ENGINE = MergeTree
	ORDER BY (started_at, id)`,
	`CREATE TABLE IF NOT EXISTS verification_counts (
		run_id      UUID,
		entity_type LowCardinality(String),
		expected    Int64,
		persisted   Nullable(Int64),
		related     Nullable(Int64),
		match       UInt8,
		drift_pct   Nullable(Decimal(18, 2))
	) ENGINE = MergeTree
	ORDER BY (run_id, entity_type)`,
}

// EnsureSchema creates the history tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// RUN OPERATIONS
// =============================================================================

// RecordRun stores a finished run and its per-entity counts. The run row is
// written first; if the count batch fails afterwards the run row remains
// without counts.
func (s *Store) RecordRun(ctx context.Context, run *verify.Run) error {
	mismatches := 0
	if run.Report != nil {
		mismatches = len(run.Report.Mismatches()) + len(run.Report.AttributeMismatches())
	}

	query := `
		INSERT INTO verification_runs (
			id, source, started_at, finished_at, outcome, mismatches, error
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if err := s.conn.Exec(ctx, query,
		run.ID,
		run.Source,
		run.StartedAt,
		run.FinishedAt,
		string(run.Outcome),
		uint32(mismatches),
		run.Error,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	records := countRecords(run)
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO verification_counts (
			run_id, entity_type, expected, persisted, related, match, drift_pct
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, rec := range records {
		if err := batch.Append(
			run.ID,
			rec.EntityType,
			rec.Expected,
			rec.Persisted,
			rec.Related,
			boolToUInt8(rec.Match),
			rec.Drift,
		); err != nil {
			if abortErr := batch.Abort(); abortErr != nil {
				return fmt.Errorf("failed to append count: %w (abort: %v)", err, abortErr)
			}
			return fmt.Errorf("failed to append count: %w", err)
		}
	}
	return batch.Send()
}

// countRecords merges the expected counts with the comparison rows.
func countRecords(run *verify.Run) []CountRecord {
	rows := map[entity.Type]reconcile.Row{}
	if run.Report != nil {
		for _, row := range run.Report.Rows {
			rows[row.Type] = row
		}
	}

	records := make([]CountRecord, 0, len(run.Expected))
	for _, typ := range run.Expected.Types() {
		rec := CountRecord{EntityType: string(typ), Expected: int64(run.Expected[typ])}
		if row, ok := rows[typ]; ok {
			persisted := int64(row.Persisted)
			drift := row.Drift
			rec.Persisted = &persisted
			rec.Drift = &drift
			rec.Match = row.Match
			if row.Related != nil {
				related := int64(*row.Related)
				rec.Related = &related
			}
		}
		records = append(records, rec)
	}
	return records
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, source, started_at, finished_at, outcome, mismatches, error
		FROM verification_runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(
			&run.ID, &run.Source, &run.StartedAt, &run.FinishedAt,
			&run.Outcome, &run.Mismatches, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its counts.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunDetail, error) {
	query := `
		SELECT id, source, started_at, finished_at, outcome, mismatches, error
		FROM verification_runs
		WHERE id = ?
		LIMIT 1
	`
	var detail RunDetail
	err := s.conn.QueryRow(ctx, query, id).Scan(
		&detail.ID, &detail.Source, &detail.StartedAt, &detail.FinishedAt,
		&detail.Outcome, &detail.Mismatches, &detail.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT entity_type, expected, persisted, related, match, drift_pct
		FROM verification_counts
		WHERE run_id = ?
		ORDER BY entity_type
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec CountRecord
		var match uint8
		if err := rows.Scan(&rec.EntityType, &rec.Expected, &rec.Persisted, &rec.Related, &match, &rec.Drift); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		rec.Match = match == 1
		detail.Counts = append(detail.Counts, rec)
	}
	return &detail, rows.Err()
}

// CountRuns returns the number of stored runs with the given outcome, or
// all runs when outcome is empty.
func (s *Store) CountRuns(ctx context.Context, outcome string) (int, error) {
	query := `SELECT count() FROM verification_runs`
	var args []any
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	var count uint64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return int(count), nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
