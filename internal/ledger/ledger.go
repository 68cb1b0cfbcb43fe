package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
	"github.com/nerrad567/gray-logic-provisioner/migrations"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// DefaultListLimit is used by ListRuns when limit is not positive.
const DefaultListLimit = 20

// Store reads and writes the run ledger.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// Open opens the ledger database and applies pending migrations.
func Open(ctx context.Context, cfg database.Config) (*Store, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// HealthCheck verifies the database answers queries.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// SchemaStatus lists the applied schema versions and those still pending.
func (s *Store) SchemaStatus(ctx context.Context) (applied []database.MigrationRecord, pending []database.Migration, err error) {
	return s.db.MigrationStatus(ctx, migrations.FS)
}

// RollbackSchema reverts the most recently applied schema migration and
// returns its version. It returns "" when nothing is applied.
func (s *Store) RollbackSchema(ctx context.Context) (string, error) {
	applied, _, err := s.SchemaStatus(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}
	if err := s.db.MigrateDown(ctx, migrations.FS); err != nil {
		return "", fmt.Errorf("rolling back ledger schema: %w", err)
	}
	return applied[len(applied)-1].Version, nil
}

// RunInfo describes one recorded run.
type RunInfo struct {
	ID          string
	Phase       report.Phase
	ReportPath  string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running or if the process died
	Interrupted bool
	Summary     report.Summary
}

// Finished reports whether the run was closed.
func (r RunInfo) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Run is an open ledger entry. It implements report.Sink.
//
// Thread Safety: Append may be called from several goroutines.
type Run struct {
	store *Store
	id    string
	phase report.Phase

	mu       sync.Mutex
	seq      int
	finished bool
}

// StartRun records the start of a run and returns it.
func (s *Store) StartRun(ctx context.Context, phase report.Phase, reportPath string) (*Run, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO batch_runs (id, phase, report_path, started_at) VALUES (?, ?, ?, ?)",
		id, string(phase), reportPath, s.stamp(),
	); err != nil {
		return nil, fmt.Errorf("starting %s run: %w", phase, err)
	}
	return &Run{store: s, id: id, phase: phase}, nil
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Phase returns the workflow phase the run belongs to.
func (r *Run) Phase() report.Phase {
	return r.phase
}

// Append records one outcome at the next sequence number.
func (r *Run) Append(ctx context.Context, o report.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, `
		INSERT INTO run_outcomes
			(run_id, seq, device_name, status, token, error_msg, activated, latency_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, r.seq, o.DeviceName, string(o.Status), o.Token, o.ErrorMsg,
		string(o.Activated), o.Latency.Milliseconds(), r.store.stamp(),
	); err != nil {
		return fmt.Errorf("recording %s for run %s: %w", o.DeviceName, r.id, err)
	}
	r.seq++
	return nil
}

// Flush closes the run as completed. Called by the Recorder on Close.
func (r *Run) Flush(ctx context.Context) error {
	return r.Finish(ctx, false)
}

// Finish stamps the run's end time. Only the first call has an effect,
// so an interrupted run marked by Finish(ctx, true) is not overwritten
// by a later Flush.
func (r *Run) Finish(ctx context.Context, interrupted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return nil
	}
	if _, err := r.store.db.ExecContext(ctx,
		"UPDATE batch_runs SET finished_at = ?, interrupted = ? WHERE id = ?",
		r.store.stamp(), boolToInt(interrupted), r.id,
	); err != nil {
		return fmt.Errorf("finishing run %s: %w", r.id, err)
	}
	r.finished = true
	return nil
}

// ListRuns returns the most recent runs first with their outcome counts.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.phase, r.report_path, r.started_at, COALESCE(r.finished_at, ''), r.interrupted,
			COUNT(o.seq),
			COALESCE(SUM(o.status = 'SUCCESS'), 0),
			COALESCE(SUM(o.status = 'ERROR'), 0),
			COALESCE(SUM(o.status = 'TIMEOUT'), 0),
			COALESCE(SUM(o.status = 'SKIPPED'), 0),
			COALESCE(SUM(o.activated = 'True'), 0),
			COALESCE(SUM(o.activated = 'False'), 0)
		FROM batch_runs r
		LEFT JOIN run_outcomes o ON o.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			info              RunInfo
			phase             string
			started, finished string
			interrupted       int
		)
		if err := rows.Scan(&info.ID, &phase, &info.ReportPath, &started, &finished, &interrupted,
			&info.Summary.Total, &info.Summary.Success, &info.Summary.Error, &info.Summary.Timeout,
			&info.Summary.Skipped, &info.Summary.Activated, &info.Summary.NotActivated,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		info.Phase = report.Phase(phase)
		info.Interrupted = interrupted != 0
		info.StartedAt = parseStamp(started)
		info.FinishedAt = parseStamp(finished)
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Outcomes returns the outcomes of a run in recording order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]report.Outcome, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM batch_runs WHERE id = ?", runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up run %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_name, status, token, error_msg, activated, latency_ms
		FROM run_outcomes
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes for run %s: %w", runID, err)
	}
	defer rows.Close()

	var outcomes []report.Outcome
	for rows.Next() {
		var (
			o                 report.Outcome
			status, activated string
			latencyMS         int64
		)
		if err := rows.Scan(&o.DeviceName, &status, &o.Token, &o.ErrorMsg, &activated, &latencyMS); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Status = report.Status(status)
		o.Activated = report.Activation(activated)
		o.Latency = time.Duration(latencyMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}
	return outcomes, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseStamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
