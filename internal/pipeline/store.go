package pipeline

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists runs, stage/job statuses and artifact metadata to SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// RunRecord is one pipeline execution.
type RunRecord struct {
	ID          string
	Pipeline    string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StageRecord is the persisted status of one stage within a run.
type StageRecord struct {
	RunID       string
	Name        string
	Status      Status
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
}

// JobRecord is the persisted status of one job within a stage.
type JobRecord struct {
	RunID       string
	Stage       string
	Name        string
	Status      Status
	Attempts    int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
}

// ArtifactRecord is the metadata of one collected artifact; the content
// lives on disk at Path. A nil ExpiresAt means the artifact never expires.
type ArtifactRecord struct {
	ID        string
	RunID     string
	Stage     string
	Job       string
	Name      string
	Path      string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// OpenStore opens (creating if necessary) the run database at path and
// brings the schema up to date.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	// connection-level setting, the DSN parameter alone is not enough
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run *RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, status, started_at, completed_at, error) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, run.Status, run.StartedAt, run.CompletedAt, run.Error)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, run *RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		run.Status, run.CompletedAt, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run := &RunRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline, status, started_at, completed_at, error FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Pipeline, &run.Status, &run.StartedAt, &run.CompletedAt, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, capped at limit (0 means no cap).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `SELECT id, pipeline, status, started_at, completed_at, error FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run := &RunRecord{}
		if err := rows.Scan(&run.ID, &run.Pipeline, &run.Status, &run.StartedAt, &run.CompletedAt, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) UpsertStage(ctx context.Context, st *StageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stages (run_id, name, status, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, name) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error`,
		st.RunID, st.Name, st.Status, st.StartedAt, st.CompletedAt, st.Error)
	if err != nil {
		return fmt.Errorf("upserting stage: %w", err)
	}
	return nil
}

func (s *Store) ListStages(ctx context.Context, runID string) ([]*StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, status, started_at, completed_at, error FROM stages WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	defer rows.Close()

	var stages []*StageRecord
	for rows.Next() {
		st := &StageRecord{}
		if err := rows.Scan(&st.RunID, &st.Name, &st.Status, &st.StartedAt, &st.CompletedAt, &st.Error); err != nil {
			return nil, fmt.Errorf("scanning stage: %w", err)
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

func (s *Store) UpsertJob(ctx context.Context, j *JobRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (run_id, stage, name, status, attempts, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, stage, name) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error`,
		j.RunID, j.Stage, j.Name, j.Status, j.Attempts, j.StartedAt, j.CompletedAt, j.Error)
	if err != nil {
		return fmt.Errorf("upserting job: %w", err)
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context, runID string) ([]*JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, name, status, attempts, started_at, completed_at, error FROM jobs WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*JobRecord
	for rows.Next() {
		j := &JobRecord{}
		if err := rows.Scan(&j.RunID, &j.Stage, &j.Name, &j.Status, &j.Attempts, &j.StartedAt, &j.CompletedAt, &j.Error); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) InsertArtifact(ctx context.Context, a *ArtifactRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, run_id, stage, job, name, path, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.Stage, a.Job, a.Name, a.Path, a.CreatedAt, a.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting artifact: %w", err)
	}
	return nil
}

// GetArtifact returns the newest artifact with the given name in the run,
// or nil when none was recorded. Expiry is the caller's concern.
func (s *Store) GetArtifact(ctx context.Context, runID, name string) (*ArtifactRecord, error) {
	a := &ArtifactRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, stage, job, name, path, created_at, expires_at
		FROM artifacts WHERE run_id = ? AND name = ?
		ORDER BY created_at DESC LIMIT 1`, runID, name).
		Scan(&a.ID, &a.RunID, &a.Stage, &a.Job, &a.Name, &a.Path, &a.CreatedAt, &a.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting artifact: %w", err)
	}
	return a, nil
}

func (s *Store) ListArtifacts(ctx context.Context, runID string) ([]*ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, job, name, path, created_at, expires_at FROM artifacts WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*ArtifactRecord
	for rows.Next() {
		a := &ArtifactRecord{}
		if err := rows.Scan(&a.ID, &a.RunID, &a.Stage, &a.Job, &a.Name, &a.Path, &a.CreatedAt, &a.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// DeleteExpiredArtifacts removes metadata for artifacts past their retention
// window and returns the on-disk paths the caller should remove.
func (s *Store) DeleteExpiredArtifacts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM artifacts WHERE expires_at IS NOT NULL AND datetime(expires_at) <= datetime('now')`)
	if err != nil {
		return nil, fmt.Errorf("listing expired artifacts: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning expired artifact: %w", err)
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE expires_at IS NOT NULL AND datetime(expires_at) <= datetime('now')`); err != nil {
		return nil, fmt.Errorf("deleting expired artifacts: %w", err)
	}
	return paths, nil
}

// PruneRuns deletes terminal runs older than the cutoff, cascading to their
// stage, job and artifact records.
func (s *Store) PruneRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE status IN (?, ?) AND datetime(started_at) < datetime(?)`,
		StatusSucceeded, StatusFailed, olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
