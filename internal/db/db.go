package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps a sql.DB with glados-specific helpers.
type DB struct {
	*sql.DB
	dialect Dialect
	path    string
}

// Open creates or opens a SQLite database at the given path. Transactions
// begin IMMEDIATE so a session that reads before writing holds the write
// lock from the start; concurrent sessions wait on busy_timeout instead of
// failing with a stale snapshot on their first write.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, dialect: DialectSQLite, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenPostgres connects to a PostgreSQL server through the pgx driver.
func OpenPostgres(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	d := &DB{DB: sqlDB, dialect: DialectPostgres, path: dsn}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
// Every connection to ":memory:" is a separate database, so the pool is
// pinned to a single connection.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, dialect: DialectSQLite, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Dialect returns the SQL flavour of the connection.
func (d *DB) Dialect() Dialect { return d.dialect }

// Rebind rewrites '?' placeholders into the form the dialect expects.
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// schema is shared by both dialects. Timestamps are fixed-width UTC text so
// that lexical comparison matches chronological order.
const schema = `
CREATE TABLE IF NOT EXISTS interactions (
    interaction_id TEXT PRIMARY KEY,
    ts TEXT NOT NULL,
    bot TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}',
    message_channel TEXT,
    message_ts TEXT,
    ttl INTEGER,
    followup_ts TEXT,
    followup_action TEXT,
    followed_up_ts TEXT
);

CREATE INDEX IF NOT EXISTS idx_interactions_message ON interactions(message_channel, message_ts);
CREATE INDEX IF NOT EXISTS idx_interactions_followup ON interactions(followup_ts);
CREATE INDEX IF NOT EXISTS idx_interactions_bot ON interactions(bot);
`
