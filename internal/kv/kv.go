// Package kv wraps an embedded ordered key-value engine (bbolt) behind a
// small table-oriented API.
//
// The engine provides copy-on-write B-tree pages with single-writer /
// multi-reader transactions: at most one writable transaction is in flight
// per environment, while read-only transactions proceed concurrently
// against a consistent snapshot taken at transaction start. A reader never
// observes a partially committed write.
//
// An Env is the process-wide handle: open it once at startup, pass it to
// the repositories, close it at shutdown. Tables are declared at open time
// and created up front; table handles are resolved per transaction from the
// declared set, never reopened per operation.
package kv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrKeyNotFound is returned by Get and Delete for a missing key.
var ErrKeyNotFound = errors.New("kv: key not found")

// ErrUnknownTable is returned when an operation names a table that was not
// declared at open time.
var ErrUnknownTable = errors.New("kv: unknown table")

// ErrStopScan stops a Scan early. Scan returns nil when fn returns it.
var ErrStopScan = errors.New("kv: stop scan")

// Options configures Open.
type Options struct {
	// Path is the storage environment directory. Created if absent.
	Path string

	// MaxSize is the memory-map size hint in bytes. It must be set
	// generously at open time: the mapping is sized once and growing it
	// requires reopening the environment.
	MaxSize int

	// Tables are the named sub-databases to create at open time.
	Tables []string

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Env is an open storage environment.
type Env struct {
	db     *bolt.DB
	path   string
	tables map[string]bool
	logger *slog.Logger
}

// Open creates or opens the storage environment at opts.Path and ensures
// every declared table exists. The returned Env is safe for concurrent use.
func Open(opts Options) (*Env, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("kv: Path is required")
	}
	if len(opts.Tables) == 0 {
		return nil, fmt.Errorf("kv: at least one table is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create environment dir: %w", err)
	}

	file := filepath.Join(opts.Path, "chats.db")
	db, err := bolt.Open(file, 0o600, &bolt.Options{
		Timeout:         time.Second,
		InitialMmapSize: opts.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", file, err)
	}

	tables := make(map[string]bool, len(opts.Tables))
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range opts.Tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create table %s: %w", name, err)
			}
			tables[name] = true
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv: %w", err)
	}

	logger.Info("kv environment opened",
		"path", file,
		"max_size", opts.MaxSize,
		"tables", len(tables),
	)

	return &Env{db: db, path: file, tables: tables, logger: logger}, nil
}

// Path returns the database file path.
func (e *Env) Path() string {
	return e.path
}

// Close releases the environment. In-flight transactions complete first.
func (e *Env) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("kv: close: %w", err)
	}
	e.logger.Info("kv environment closed", "path", e.path)
	return nil
}

// Txn is a scoped transaction. It is only valid inside the View or Update
// callback that produced it.
type Txn struct {
	tx     *bolt.Tx
	tables map[string]bool
}

// View runs fn in a read-only transaction against a snapshot of the
// environment taken at transaction start.
func (e *Env) View(fn func(*Txn) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx, tables: e.tables})
	})
}

// Update runs fn in the environment's single writable transaction. The
// transaction commits when fn returns nil and rolls back on error or panic;
// the transaction resource is released on every exit path. Writes become
// visible to reads within the same transaction immediately, and to other
// transactions only after commit.
func (e *Env) Update(fn func(*Txn) error) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx, tables: e.tables})
	})
}

func (t *Txn) bucket(table string) (*bolt.Bucket, error) {
	if !t.tables[table] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return t.tx.Bucket([]byte(table)), nil
}

// Get returns a copy of the value stored under key, or ErrKeyNotFound.
func (t *Txn) Get(table string, key []byte) ([]byte, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrKeyNotFound, table, key)
	}
	return bytes.Clone(v), nil
}

// Put stores value under key, overwriting any existing value.
func (t *Txn) Put(table string, key, value []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	if err := b.Put(key, value); err != nil {
		return fmt.Errorf("kv: put %s/%s: %w", table, key, err)
	}
	return nil
}

// Delete removes key. Returns ErrKeyNotFound if the key does not exist.
func (t *Txn) Delete(table string, key []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	if b.Get(key) == nil {
		return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, table, key)
	}
	if err := b.Delete(key); err != nil {
		return fmt.Errorf("kv: delete %s/%s: %w", table, key, err)
	}
	return nil
}

// Scan visits every key with the given prefix in ascending byte order. An
// empty prefix scans the whole table. The key and value slices passed to fn
// are only valid for the duration of the call. fn may return ErrStopScan to
// end the scan early without error.
func (t *Txn) Scan(table string, prefix []byte, fn func(key, value []byte) error) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// ScanReverse visits every key with the given prefix in descending byte
// order. Same contract as Scan otherwise.
func (t *Txn) ScanReverse(table string, prefix []byte, fn func(key, value []byte) error) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	c := b.Cursor()

	// Position on the last key inside the prefix range: seek to the first
	// key past the range, then step back.
	var k, v []byte
	if len(prefix) == 0 {
		k, v = c.Last()
	} else if after := prefixSuccessor(prefix); after == nil {
		k, v = c.Last()
	} else {
		k, v = c.Seek(after)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
	}

	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
		if err := fn(k, v); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// prefixSuccessor returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists (all bytes are 0xff).
func prefixSuccessor(prefix []byte) []byte {
	out := bytes.Clone(prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
