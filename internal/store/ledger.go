package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/sarsweep/internal/timeutil"
)

// SweepRecord is one persisted sweep.
type SweepRecord struct {
	SweepID      string     `json:"sweep_id"`
	ModelName    string     `json:"model_name"`
	Variant      string     `json:"variant"`
	Mode         string     `json:"mode"`
	AngleStep    float64    `json:"angle_step"`
	Theta        float64    `json:"theta"`
	Polarization string     `json:"polarization"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	RunsTotal    int        `json:"runs_total"`
	RunsFailed   int        `json:"runs_failed"`
	Records      int        `json:"records"`
}

// RunRow is one run of a sweep. Metric is nil until a value was extracted.
type RunRow struct {
	SweepID      string    `json:"sweep_id"`
	RunName      string    `json:"run_name"`
	Theta        float64   `json:"theta"`
	Phi          float64   `json:"phi"`
	Psi          float64   `json:"psi"`
	Polarization string    `json:"polarization"`
	Status       string    `json:"status"`
	Kernel       string    `json:"kernel,omitempty"`
	Metric       *float64  `json:"metric,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SweepTotals are the counters written when a sweep finishes.
type SweepTotals struct {
	Runs    int
	Failed  int
	Records int
}

// Ledger records sweeps and run transitions in sqlite.
type Ledger struct {
	db    *sql.DB
	clock timeutil.Clock
}

// OpenLedger opens (creating if needed) the ledger at path and migrates it to
// the latest schema.
func OpenLedger(path string, clock timeutil.Clock) (*Ledger, error) {
	l, err := OpenLedgerNoMigrate(path, clock)
	if err != nil {
		return nil, err
	}
	if err := l.MigrateUp(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// OpenLedgerNoMigrate opens the ledger without touching its schema. The
// migrate command uses it.
func OpenLedgerNoMigrate(path string, clock timeutil.Clock) (*Ledger, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	// One connection keeps per-connection pragmas and in-memory databases
	// consistent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring ledger %s: %w", path, err)
	}
	return &Ledger{db: db, clock: clock}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) now() string {
	return l.clock.Now().UTC().Format(time.RFC3339)
}

// StartSweep inserts a running sweep and returns its ID, generating one when
// rec.SweepID is empty.
func (l *Ledger) StartSweep(ctx context.Context, rec SweepRecord) (string, error) {
	if rec.SweepID == "" {
		rec.SweepID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = "running"
	}
	query := `
		INSERT INTO sweeps (
			sweep_id, model_name, variant, mode, angle_step, theta, polarization,
			status, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := l.db.ExecContext(ctx, query,
			rec.SweepID, rec.ModelName, rec.Variant, rec.Mode, rec.AngleStep, rec.Theta,
			nullStr(rec.Polarization), rec.Status, l.now(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("inserting sweep %s: %w", rec.SweepID, err)
	}
	return rec.SweepID, nil
}

// FinishSweep records the final status and counters of a sweep.
func (l *Ledger) FinishSweep(ctx context.Context, sweepID, status, errMsg string, totals SweepTotals) error {
	query := `
		UPDATE sweeps
		SET status = ?, error = ?, finished_at = ?, runs_total = ?, runs_failed = ?, records = ?
		WHERE sweep_id = ?
	`
	err := retryOnBusy(func() error {
		_, err := l.db.ExecContext(ctx, query,
			status, nullStr(errMsg), l.now(), totals.Runs, totals.Failed, totals.Records, sweepID)
		return err
	})
	if err != nil {
		return fmt.Errorf("finishing sweep %s: %w", sweepID, err)
	}
	return nil
}

// RecordRun inserts or updates a run row.
func (l *Ledger) RecordRun(ctx context.Context, run RunRow) error {
	query := `
		INSERT INTO sweep_runs (
			sweep_id, run_name, theta, phi, psi, polarization, status, kernel,
			metric, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sweep_id, run_name) DO UPDATE SET
			status = excluded.status,
			kernel = COALESCE(excluded.kernel, sweep_runs.kernel),
			metric = COALESCE(excluded.metric, sweep_runs.metric),
			error = excluded.error,
			updated_at = excluded.updated_at
	`
	now := l.now()
	err := retryOnBusy(func() error {
		_, err := l.db.ExecContext(ctx, query,
			run.SweepID, run.RunName, run.Theta, run.Phi, run.Psi, nullStr(run.Polarization),
			run.Status, nullStr(run.Kernel), run.Metric, nullStr(run.Error), now, now,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording run %q of sweep %s: %w", run.RunName, run.SweepID, err)
	}
	return nil
}

// GetSweep returns a sweep by ID, or nil when it does not exist.
func (l *Ledger) GetSweep(ctx context.Context, sweepID string) (*SweepRecord, error) {
	query := `
		SELECT sweep_id, model_name, variant, mode, angle_step, theta, polarization,
		       status, error, started_at, finished_at, runs_total, runs_failed, records
		FROM sweeps
		WHERE sweep_id = ?
	`
	var rec SweepRecord
	var theta sql.NullFloat64
	var polarization, errMsg, startedAt, finishedAt sql.NullString
	err := l.db.QueryRowContext(ctx, query, sweepID).Scan(
		&rec.SweepID, &rec.ModelName, &rec.Variant, &rec.Mode, &rec.AngleStep, &theta, &polarization,
		&rec.Status, &errMsg, &startedAt, &finishedAt, &rec.RunsTotal, &rec.RunsFailed, &rec.Records,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying sweep %s: %w", sweepID, err)
	}
	rec.Theta = theta.Float64
	rec.Polarization = polarization.String
	rec.Error = errMsg.String
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at for sweep %s: %w", sweepID, err)
		}
		rec.StartedAt = t
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at for sweep %s: %w", sweepID, err)
		}
		rec.FinishedAt = &t
	}
	return &rec, nil
}

// ListSweeps returns recent sweeps, newest first.
func (l *Ledger) ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT sweep_id FROM sweeps ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweeps: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning sweep row: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SweepRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := l.GetSweep(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// ListRuns returns the runs of a sweep in insertion order.
func (l *Ledger) ListRuns(ctx context.Context, sweepID string) ([]RunRow, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT sweep_id, run_name, theta, phi, psi, polarization, status, kernel,
		       metric, error, created_at, updated_at
		FROM sweep_runs
		WHERE sweep_id = ?
		ORDER BY rowid
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("listing runs of sweep %s: %w", sweepID, err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var polarization, kernel, errMsg sql.NullString
		var metric sql.NullFloat64
		var createdAt, updatedAt string
		if err := rows.Scan(&r.SweepID, &r.RunName, &r.Theta, &r.Phi, &r.Psi, &polarization,
			&r.Status, &kernel, &metric, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Polarization = polarization.String
		r.Kernel = kernel.String
		r.Error = errMsg.String
		if metric.Valid {
			v := metric.Float64
			r.Metric = &v
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for run %q: %w", r.RunName, err)
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at for run %q: %w", r.RunName, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
