package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// timestampLayout is fixed-width so TEXT columns sort chronologically in both
// backends.
const timestampLayout = "2006-01-02 15:04:05.000000"

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DB wraps the event log and work queue connection.
type DB struct {
	conn    *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open opens the database named by url. postgres:// and postgresql:// URLs
// use pgx; sqlite://path, :memory: and bare paths use SQLite.
func Open(url string) (*DB, error) {
	driver, dsn, d := "sqlite3", strings.TrimPrefix(url, "sqlite://"), dialectSQLite
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver, dsn, d = "pgx", url, dialectPostgres
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d == dialectSQLite {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if d == dialectSQLite {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}
	return &DB{conn: conn, dialect: d, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Postgres reports whether the backend is PostgreSQL.
func (d *DB) Postgres() bool { return d.dialect == dialectPostgres }

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d *DB) rebind(q string) string {
	if d.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Rebind rewrites ? placeholders for the active dialect.
func (d *DB) Rebind(q string) string { return d.rebind(q) }

func (d *DB) exec(q string, args ...any) (sql.Result, error) {
	return d.conn.Exec(d.rebind(q), args...)
}

func (d *DB) query(q string, args ...any) (*sql.Rows, error) {
	return d.conn.Query(d.rebind(q), args...)
}

func (d *DB) queryRow(q string, args ...any) *sql.Row {
	return d.conn.QueryRow(d.rebind(q), args...)
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(timestampLayout)
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_events (
    id          {{serial}},
    session_id  TEXT NOT NULL,
    repo        TEXT NOT NULL,
    event       TEXT NOT NULL,
    detail      TEXT,
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_session_events_time ON session_events(timestamp);

CREATE TABLE IF NOT EXISTS dispatch_attempts (
    id          {{serial}},
    model       TEXT NOT NULL,
    provider    TEXT NOT NULL,
    json_mode   BOOLEAN NOT NULL,
    success     BOOLEAN NOT NULL,
    error       TEXT,
    tokens      INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_model ON dispatch_attempts(model, timestamp);

CREATE TABLE IF NOT EXISTS work_queue (
    id              TEXT PRIMARY KEY,
    repo            TEXT NOT NULL,
    source          TEXT,
    title           TEXT,
    prompt          TEXT NOT NULL,
    priority        INTEGER NOT NULL,
    starting_branch TEXT,
    status          TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','active','completed','failed','dropped')),
    session_id      TEXT,
    enqueued_at     TEXT NOT NULL,
    started_at      TEXT,
    finished_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_work_queue_status ON work_queue(status, priority, enqueued_at);
`

func (d *DB) schema() string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.dialect == dialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(schemaV1, "{{serial}}", serial)
}

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.queryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(d.schema(), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}
	if _, err := tx.Exec(d.rebind("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)"), d.timestamp()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"work_queue", "dispatch_attempts", "session_events", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
