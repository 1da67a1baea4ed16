// Package sqlite implements the storage.Driver contract on an embedded
// relational backend (SQLite via zombiezen.com/go/sqlite).
//
// The schema mirrors the logical data model one table per entity:
// agent_cards, chat_sessions, messages. Message parts and agent
// capabilities are stored as CBOR blobs through the shared record codec.
// Timestamps are stored as UnixNano integers so ordering queries and
// round-trips keep full precision.
//
// Referential integrity is managed explicitly inside transactions rather
// than through SQLite foreign-key cascades, so both backends enforce the
// identical rules along the identical code paths.
package sqlite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_cards (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	color        TEXT NOT NULL DEFAULT '',
	icon_path    TEXT NOT NULL DEFAULT '',
	capabilities BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	agent_id      TEXT NOT NULL DEFAULT '',
	created_at_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_created
	ON chat_sessions(created_at_ns);

CREATE TABLE IF NOT EXISTS messages (
	message_uuid  TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	type          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	created_at_ns INTEGER NOT NULL,
	parts         BLOB
);

CREATE INDEX IF NOT EXISTS idx_messages_session
	ON messages(session_id, created_at_ns);
`

// pragmas applied to every pooled connection: WAL for concurrent readers
// with a single writer, NORMAL synchronous for process-crash durability,
// and a busy timeout instead of immediate SQLITE_BUSY under write
// contention.
var pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
	"PRAGMA temp_store=MEMORY;",
}

// Options configures New.
type Options struct {
	// Path is the storage environment directory.
	Path string
	// PoolSize is the connection pool size. Zero means max(NumCPU, 4).
	PoolSize int
	// Order controls ListSessions ordering. Defaults to OrderRecent.
	Order storage.SessionOrder
	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Driver is the relational backend.
type Driver struct {
	pool   *sqlitex.Pool
	path   string
	order  storage.SessionOrder
	logger *slog.Logger
}

var _ storage.Driver = (*Driver)(nil)

// New opens the connection pool and creates the schema. The schema runs on
// every connection prepare and is idempotent. An unusable environment
// fails with storage.ErrUnavailable.
func New(opts Options) (*Driver, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlite: %w: Path is required", storage.ErrUnavailable)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	order := opts.Order
	if order == "" {
		order = storage.OrderRecent
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: %w: create environment dir: %v", storage.ErrUnavailable, err)
	}

	file := filepath.Join(opts.Path, "chats.sqlite")
	pool, err := sqlitex.NewPool(file, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w: open %s: %v", storage.ErrUnavailable, file, err)
	}

	logger.Info("sqlite pool opened", "path", file, "pool_size", poolSize)
	return &Driver{pool: pool, path: file, order: order, logger: logger}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// conn borrows a pooled connection; the returned release func must be
// called when done.
func (d *Driver) conn(ctx context.Context) (*sqlite.Conn, func(), error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: take connection: %w", err)
	}
	return conn, func() { d.pool.Put(conn) }, nil
}

// Init verifies the database is reachable. Schema setup already runs on
// connection prepare, so the first Take exercises it.
func (d *Driver) Init(ctx context.Context) error {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: %w: %v", storage.ErrUnavailable, err)
	}
	defer release()

	if err := sqlitex.ExecuteTransient(conn, "SELECT 1;", nil); err != nil {
		return fmt.Errorf("sqlite: %w: ping: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Info reports the backend kind, database location, and SQLite version.
func (d *Driver) Info(ctx context.Context) (storage.Info, error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return storage.Info{}, err
	}
	defer release()

	var version string
	err = sqlitex.ExecuteTransient(conn, "SELECT sqlite_version();", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return storage.Info{}, fmt.Errorf("sqlite: query version: %w", err)
	}

	return storage.Info{
		Backend:  storage.BackendSQLite,
		Location: d.path,
		Version:  version,
	}, nil
}

// Close shuts down the connection pool.
func (d *Driver) Close() error {
	if err := d.pool.Close(); err != nil {
		return fmt.Errorf("sqlite: close pool: %w", err)
	}
	d.logger.Info("sqlite pool closed", "path", d.path)
	return nil
}

// columnBlob returns a copy of a blob column.
func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	n := stmt.ColumnLen(col)
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	stmt.ColumnBytes(col, buf)
	return buf
}
