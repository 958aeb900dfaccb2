package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is the subset of pgxpool.Pool the store uses; pgx.Tx satisfies it too.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists run history in PostgreSQL
type Store struct {
	db DBTX
}

// NewStore wraps a pool or transaction
func NewStore(db DBTX) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	return &Store{db: db}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)
	for _, name := range files {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

const upsertRun = `
INSERT INTO repricer_runs (
    id, mode, trigger, run_date, source_file, source_encoding, output_encoding,
    total_rows, updated_rows, excluded_rows, seasonal_switched_rows, date_unknown_rows, failed_rows,
    config_problems, updated_path, report_path, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
    mode = EXCLUDED.mode,
    trigger = EXCLUDED.trigger,
    run_date = EXCLUDED.run_date,
    source_file = EXCLUDED.source_file,
    source_encoding = EXCLUDED.source_encoding,
    output_encoding = EXCLUDED.output_encoding,
    total_rows = EXCLUDED.total_rows,
    updated_rows = EXCLUDED.updated_rows,
    excluded_rows = EXCLUDED.excluded_rows,
    seasonal_switched_rows = EXCLUDED.seasonal_switched_rows,
    date_unknown_rows = EXCLUDED.date_unknown_rows,
    failed_rows = EXCLUDED.failed_rows,
    config_problems = EXCLUDED.config_problems,
    updated_path = EXCLUDED.updated_path,
    report_path = EXCLUDED.report_path`

const selectRun = `
SELECT id, mode, trigger, run_date, source_file, source_encoding, output_encoding,
       total_rows, updated_rows, excluded_rows, seasonal_switched_rows, date_unknown_rows, failed_rows,
       config_problems, updated_path, report_path, created_at
FROM repricer_runs`

// Save inserts or replaces a run
func (s *Store) Save(ctx context.Context, run *repository.Run) error {
	problems, err := json.Marshal(nonNil(run.ConfigProblems))
	if err != nil {
		return fmt.Errorf("failed to encode config problems: %w", err)
	}
	_, err = s.db.Exec(ctx, upsertRun,
		run.ID, string(run.Mode), run.Trigger, run.RunDate, run.SourceFile, run.SourceEncoding, run.OutputEncoding,
		run.Summary.TotalRows, run.Summary.UpdatedRows, run.Summary.ExcludedRows,
		run.Summary.SeasonalSwitchedRows, run.Summary.DateUnknownRows, run.Summary.FailedRows,
		problems, run.UpdatedPath, run.ReportPath, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*repository.Run, error) {
	run, err := scanRun(s.db.QueryRow(ctx, selectRun+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns runs newest first
func (s *Store) List(ctx context.Context, limit, offset int) ([]*repository.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, selectRun+" ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*repository.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*repository.Run, error) {
	var (
		run      repository.Run
		mode     string
		problems []byte
	)
	err := row.Scan(
		&run.ID, &mode, &run.Trigger, &run.RunDate, &run.SourceFile, &run.SourceEncoding, &run.OutputEncoding,
		&run.Summary.TotalRows, &run.Summary.UpdatedRows, &run.Summary.ExcludedRows,
		&run.Summary.SeasonalSwitchedRows, &run.Summary.DateUnknownRows, &run.Summary.FailedRows,
		&problems, &run.UpdatedPath, &run.ReportPath, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Mode = repricer.Mode(mode)
	if len(problems) > 0 {
		if err := json.Unmarshal(problems, &run.ConfigProblems); err != nil {
			return nil, fmt.Errorf("failed to decode config problems: %w", err)
		}
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
