// Package recorder keeps a SQLite history of runs and their telemetry frames.
package recorder

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/golang/glog"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/robotalks/romi.go/pkg/telemetry"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNoRun is returned when frames arrive before StartRun.
var ErrNoRun = errors.New("no active run")

// Run is one recorded session.
type Run struct {
	ID      string
	RobotID string
	Backend string
	Mission string
	Started time.Time
	// Stopped is zero while the run is active.
	Stopped time.Time
}

// Recorder stores frames of the active run.
type Recorder struct {
	db    *sql.DB
	codec telemetry.ProtoCodec

	lock   sync.Mutex
	active *Run
}

// Open opens (or creates) the database at path and applies pending migrations.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	r := &Recorder{db: db}
	if err := r.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrate.Migrate is not closed: closing it closes r.db.
func (r *Recorder) migrateUp() error {
	m, err := r.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the schema version.
func (r *Recorder) Version() (uint, bool, error) {
	m, err := r.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	glog.Infof("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return bool(glog.V(4))
}

// StartRun begins a new run. An active run is stopped first.
func (r *Recorder) StartRun(ctx context.Context, robotID, backend, mission string) (Run, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.stopLocked(ctx); err != nil {
		return Run{}, err
	}
	run := Run{
		ID:      uuid.New().String(),
		RobotID: robotID,
		Backend: backend,
		Mission: mission,
		Started: time.Now(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, robot_id, backend, mission, started_ns) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.RobotID, run.Backend, run.Mission, run.Started.UnixNano())
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	r.active = &run
	glog.Infof("recorder: run %s started", run.ID)
	return run, nil
}

// StopRun marks the active run stopped.
func (r *Recorder) StopRun(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.stopLocked(ctx)
}

func (r *Recorder) stopLocked(ctx context.Context) error {
	if r.active == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET stopped_ns = ? WHERE id = ?`,
		time.Now().UnixNano(), r.active.ID)
	if err != nil {
		return fmt.Errorf("stop run %s: %w", r.active.ID, err)
	}
	glog.Infof("recorder: run %s stopped", r.active.ID)
	r.active = nil
	return nil
}

// Active returns the active run.
func (r *Recorder) Active() (Run, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.active == nil {
		return Run{}, false
	}
	return *r.active, true
}

// Publish implements telemetry.Sink.
func (r *Recorder) Publish(ctx context.Context, f telemetry.Frame) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.active == nil {
		return ErrNoRun
	}
	payload, err := r.codec.Encode(f)
	if err != nil {
		return err
	}
	st := f.Status
	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO frames (run_id, seq, time_ns, state, x, y, phi, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.active.ID, int64(f.Seq), st.Time.UnixNano(), st.State,
		st.Pose.X, st.Pose.Y, st.Pose.Phi, payload)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", f.Seq, err)
	}
	return nil
}

// Runs lists runs, most recent first.
func (r *Recorder) Runs(ctx context.Context) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, robot_id, backend, mission, started_ns, stopped_ns FROM runs ORDER BY started_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var (
			run     Run
			started int64
			stopped sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &run.RobotID, &run.Backend, &run.Mission, &started, &stopped); err != nil {
			return nil, err
		}
		run.Started = time.Unix(0, started)
		if stopped.Valid {
			run.Stopped = time.Unix(0, stopped.Int64)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Frames returns the frames of a run in sequence order.
func (r *Recorder) Frames(ctx context.Context, runID string) ([]telemetry.Frame, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM frames WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var frames []telemetry.Frame
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		f, err := r.codec.Decode(payload)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// DeleteRun removes a run and its frames.
func (r *Recorder) DeleteRun(ctx context.Context, runID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.active != nil && r.active.ID == runID {
		r.active = nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// Close stops the active run and closes the database.
func (r *Recorder) Close() error {
	err := r.StopRun(context.Background())
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	return err
}
