// Package journal records driver state transitions in a sqlite database.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/range.report/internal/fsutil"
	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/tof"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Event is one recorded transition.
type Event struct {
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Journal is an open transition journal.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path and applies pending migrations.
// Missing parent directories are created.
func Open(path string) (*Journal, error) {
	return OpenFS(fsutil.OSFileSystem{}, path)
}

// OpenFS is Open creating the parent directory through fsys.
func OpenFS(fsys fsutil.FileSystem, path string) (*Journal, error) {
	if path != ":memory:" {
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}

	j := &Journal{db: db}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("journal: migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("journal: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("journal: migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateUp applies pending migrations. The migrate instance is not closed
// because that would close j.db.
func (j *Journal) migrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("journal: migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (j *Journal) SchemaVersion() (uint, bool, error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Debugf("journal: migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Record stores t.
func (j *Journal) Record(t tof.Transition) error {
	var reason, msg string
	if t.Failed() {
		reason = t.Reason.String()
	}
	if t.Err != nil {
		msg = t.Err.Error()
	}
	_, err := j.db.Exec(`
		INSERT INTO driver_transitions (at_unix_nano, from_state, to_state, reason, error)
		VALUES (?, ?, ?, ?, ?)`,
		t.At.UnixNano(), t.From.String(), t.To.String(), reason, msg)
	if err != nil {
		return fmt.Errorf("journal: record transition: %w", err)
	}
	return nil
}

// Observe records t and logs any failure. It has the shape of a driver
// observer.
func (j *Journal) Observe(t tof.Transition) {
	if err := j.Record(t); err != nil {
		monitoring.Warnf("%v", err)
	}
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.Query(`
		SELECT transition_id, at_unix_nano, from_state, to_state, reason, error
		FROM driver_transitions
		ORDER BY transition_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var at int64
		if err := rows.Scan(&e.ID, &at, &e.From, &e.To, &e.Reason, &e.Error); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.Unix(0, at).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
