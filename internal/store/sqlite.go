package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/gosched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Exit accounting ---

func (s *SQLiteStore) RecordExit(ctx context.Context, rec *model.ExitRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "exit_records", "pid", rec.PID)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO exit_records (pid, name, priority, exit_status, cpu_time, thread_count, created_at, terminated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uint32(rec.PID), rec.Name, int(rec.Priority), rec.ExitStatus, rec.CPUTime, rec.ThreadCount,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.TerminatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetExit(ctx context.Context, pid model.PID) (*model.ExitRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "exit_records", "pid", pid)

	row := s.db.QueryRowContext(ctx,
		`SELECT pid, name, priority, exit_status, cpu_time, thread_count, created_at, terminated_at
		 FROM exit_records WHERE pid = ?`, uint32(pid))
	rec, err := scanExit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListExits(ctx context.Context, opts model.ListOptions) ([]*model.ExitRecord, int, error) {
	opts.Clamp()
	s.logger.Debug("sql", "op", "select", "table", "exit_records", "limit", opts.Limit, "offset", opts.Offset)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exit_records`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, name, priority, exit_status, cpu_time, thread_count, created_at, terminated_at
		 FROM exit_records ORDER BY terminated_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []*model.ExitRecord
	for rows.Next() {
		rec, err := scanExit(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExit(sc scanner) (*model.ExitRecord, error) {
	var rec model.ExitRecord
	var pid uint32
	var priority int
	var createdAt, terminatedAt string
	if err := sc.Scan(&pid, &rec.Name, &priority, &rec.ExitStatus, &rec.CPUTime, &rec.ThreadCount, &createdAt, &terminatedAt); err != nil {
		return nil, err
	}
	rec.PID = model.PID(pid)
	rec.Priority = model.Priority(priority)
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.TerminatedAt, err = time.Parse(time.RFC3339Nano, terminatedAt); err != nil {
		return nil, fmt.Errorf("parse terminated_at: %w", err)
	}
	return &rec, nil
}

// --- Scheduler counter history ---

func (s *SQLiteStore) RecordSample(ctx context.Context, sample *model.StatSample) error {
	s.logger.Debug("sql", "op", "insert", "table", "stat_samples", "tick", sample.Tick)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stat_samples (tick, context_switches, threads_scheduled, load_balances, deadlines_missed, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sample.Tick, sample.ContextSwitches, sample.ThreadsScheduled, sample.LoadBalances,
		sample.DeadlinesMissed, sample.RecordedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListSamples(ctx context.Context, opts model.ListOptions) ([]*model.StatSample, int, error) {
	opts.Clamp()
	s.logger.Debug("sql", "op", "select", "table", "stat_samples", "limit", opts.Limit, "offset", opts.Offset)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stat_samples`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, context_switches, threads_scheduled, load_balances, deadlines_missed, recorded_at
		 FROM stat_samples ORDER BY tick DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var samples []*model.StatSample
	for rows.Next() {
		var sample model.StatSample
		var recordedAt string
		if err := rows.Scan(&sample.Tick, &sample.ContextSwitches, &sample.ThreadsScheduled,
			&sample.LoadBalances, &sample.DeadlinesMissed, &recordedAt); err != nil {
			return nil, 0, err
		}
		if sample.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, 0, fmt.Errorf("parse recorded_at: %w", err)
		}
		samples = append(samples, &sample)
	}
	return samples, total, rows.Err()
}
