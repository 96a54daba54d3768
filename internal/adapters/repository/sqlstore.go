package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/pkg/errkind"
	"github.com/okian/see1right/pkg/metrics"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultBusyTimeout = 5 * time.Second
	dirPermission      = 0o750
	memoryPath         = ":memory:"
)

func init() { //nolint:gochecknoinits // sqlx does not know the modernc driver name
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// dialect holds the statements that differ between engines.
type dialect struct {
	sqlDriver string
	schema    []string
	// orderBy sorts newest first; the second key is the insertion sequence.
	orderBy string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		sqlDriver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id         TEXT PRIMARY KEY,
				category   TEXT,
				headline   TEXT,
				created_at TEXT,
				source     TEXT,
				permalink  TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
		},
		orderBy: "created_at DESC, rowid DESC",
	},
	DriverPostgres: {
		sqlDriver: "pgx",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id         TEXT PRIMARY KEY,
				category   TEXT,
				headline   TEXT,
				created_at TEXT,
				source     TEXT,
				permalink  TEXT,
				seq        BIGSERIAL NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
		},
		orderBy: "created_at DESC, seq DESC",
	},
}

const insertEventSQL = `
	INSERT INTO events (id, category, headline, created_at, source, permalink)
	VALUES (:id, :category, :headline, :created_at, :source, :permalink)
	ON CONFLICT (id) DO NOTHING`

// Columns may be NULL in databases created by older writers.
const selectEventsSQL = `
	SELECT id,
	       COALESCE(category, 'unknown') AS category,
	       COALESCE(headline, '')        AS headline,
	       COALESCE(created_at, '')      AS created_at,
	       COALESCE(source, '')          AS source,
	       COALESCE(permalink, '')       AS permalink
	FROM events
	ORDER BY %s
	LIMIT ?`

// SQLStore implements Store on database/sql through sqlx.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	driver  string

	busyTimeout  time.Duration
	maxOpenConns int
}

var _ Store = (*SQLStore)(nil)

// Open connects to the store. For DriverSQLite dsn is a file path (its
// directory is created if needed) or ":memory:"; for DriverPostgres it is a
// connection URL. The schema is not created until Init is called.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	const op = "repository.open"

	d, ok := dialects[driver]
	if !ok {
		return nil, errkind.Wrap(op, ErrUnknownDriver, fmt.Errorf("%q", driver))
	}

	s := &SQLStore{
		dialect:     d,
		driver:      driver,
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if driver == DriverSQLite {
		var err error
		dsn, err = s.sqliteDSN(dsn)
		if err != nil {
			return nil, errkind.Wrap(op, ErrStorage, err)
		}
	}

	db, err := sqlx.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, errkind.Wrap(op, ErrStorage, err)
	}
	if s.maxOpenConns > 0 {
		db.SetMaxOpenConns(s.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errkind.Wrap(op, ErrStorage, err)
	}

	s.db = db
	return s, nil
}

// sqliteDSN prepares the data directory and appends connection pragmas.
// WAL lets readers proceed during writes; busy_timeout makes concurrent
// writers wait for the lock instead of failing.
func (s *SQLStore) sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty sqlite path")
	}
	if strings.Contains(path, "?") {
		return path, nil
	}
	if path == memoryPath {
		// Every connection would get its own private memory database.
		s.maxOpenConns = 1
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPermission); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, s.busyTimeout.Milliseconds()), nil
}

// Driver reports which dialect the store speaks.
func (s *SQLStore) Driver() string { return s.driver }

// Init creates the events table and its ordering index if absent.
func (s *SQLStore) Init(ctx context.Context) error {
	const op = "repository.init"
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			metrics.RecordStoreError("init")
			return errkind.Wrap(op, ErrStorage, err)
		}
	}
	return nil
}

// InsertIfAbsent writes e unless its id is already stored.
func (s *SQLStore) InsertIfAbsent(ctx context.Context, e model.Event) (bool, error) {
	const op = "repository.insert_if_absent"
	start := time.Now()
	defer func() {
		metrics.RecordStoreInsertLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	res, err := s.db.NamedExecContext(ctx, insertEventSQL, e)
	if err != nil {
		metrics.RecordStoreError("insert")
		return false, errkind.Wrap(op, ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		metrics.RecordStoreError("insert")
		return false, errkind.Wrap(op, ErrStorage, err)
	}
	return n > 0, nil
}

// ListRecent returns up to limit events, newest first.
func (s *SQLStore) ListRecent(ctx context.Context, limit int) ([]model.Event, error) {
	const op = "repository.list_recent"
	if limit < 1 {
		return nil, errkind.Wrap(op, ErrInvalidLimit, fmt.Errorf("limit %d", limit))
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	query := s.db.Rebind(fmt.Sprintf(selectEventsSQL, s.dialect.orderBy))
	events := make([]model.Event, 0, limit)
	if err := s.db.SelectContext(ctx, &events, query, limit); err != nil {
		metrics.RecordStoreError("list")
		return nil, errkind.Wrap(op, ErrStorage, err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	const op = "repository.count"
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM events"); err != nil {
		metrics.RecordStoreError("count")
		return 0, errkind.Wrap(op, ErrStorage, err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
