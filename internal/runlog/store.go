package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages the run ledger backed by SQLite.
type Store struct {
	db    *sql.DB
	path  string
	clock func() time.Time
}

// Open initializes or connects to the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, clock: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// SetClock overrides the timestamp source.
func (s *Store) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Begin records a new running run.
func (s *Store) Begin(ctx context.Context, runID, episodeID string) (*Run, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	now := formatTime(s.clock())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, episode_id, status, started_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, nullableString(episodeID), StatusRunning, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.Get(ctx, runID)
}

// RecordStage updates the run's current stage and appends an event.
func (s *Store) RecordStage(ctx context.Context, runID, stage, outcome, detail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(s.clock())
	res, err := tx.ExecContext(ctx, `UPDATE runs SET stage = ?, updated_at = ? WHERE id = ?`, stage, now, runID)
	if err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stage_events (run_id, stage, outcome, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, stage, outcome, nullableString(detail), now,
	); err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return tx.Commit()
}

// Finish stores the terminal state of a run.
func (s *Store) Finish(ctx context.Context, runID string, status Status, issueCount int, errMessage, reportPath string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	now := formatTime(s.clock())
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs
         SET status = ?, issue_count = ?, error_message = ?, report_path = ?, updated_at = ?, finished_at = ?
         WHERE id = ?`,
		status, issueCount, nullableString(errMessage), nullableString(reportPath), now, now, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// SetEpisode attaches the episode ID once it is known.
func (s *Store) SetEpisode(ctx context.Context, runID, episodeID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET episode_id = ?, updated_at = ? WHERE id = ?`,
		nullableString(episodeID), formatTime(s.clock()), runID,
	)
	if err != nil {
		return fmt.Errorf("set episode: %w", err)
	}
	return nil
}

// Get fetches a run by ID. A missing run returns nil without error.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns the stage events of a run in insertion order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, outcome, detail, created_at FROM stage_events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			detail     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Stage, &ev.Outcome, &detail, &createdRaw); err != nil {
			return nil, err
		}
		ev.Detail = detail.String
		if created, err := parseTimeString(createdRaw); err == nil {
			ev.CreatedAt = created
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ReclaimInterrupted marks runs still in the running state as failed. It must
// only be called while holding the pipeline lock.
func (s *Store) ReclaimInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(s.clock())
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ?, finished_at = ? WHERE status = ?`,
		StatusFailed, InterruptedReason, now, now, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes all but the newest keep runs and their events.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
