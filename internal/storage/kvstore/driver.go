// Package kvstore implements the storage.Driver contract on the embedded
// ordered key-value backend.
//
// Each repository maps its operations onto point reads and prefix scans
// using a deterministic key scheme, so lookups never degrade into
// full-table scans:
//
//	agents    table: agent:{id}
//	sessions  table: session:{id}
//	                 session_index:{created_at}:{id}
//	messages  table: message:{message_uuid}
//	                 session_messages:{session_id}:{created_at}:{message_uuid}
//
// Timestamps inside index keys are zero-padded UnixNano, so byte order of
// the keys is chronological order of the records.
package kvstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/TuckerTucker/tkr-agent-chat/internal/kv"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

// formatVersion is bumped when the key scheme or record encoding changes.
const formatVersion = "1"

const (
	tableAgents   = "agents"
	tableSessions = "sessions"
	tableMessages = "messages"
)

// Options configures New.
type Options struct {
	// Path is the storage environment directory.
	Path string
	// MaxSize is the environment's memory-map size in bytes. Set it
	// generously; it cannot grow without reopening.
	MaxSize int
	// Order controls ListSessions ordering. Defaults to OrderRecent.
	Order storage.SessionOrder
	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Driver is the embedded key-value backend.
type Driver struct {
	env    *kv.Env
	order  storage.SessionOrder
	logger *slog.Logger
}

var _ storage.Driver = (*Driver)(nil)

// New opens the key-value environment and creates its tables. An
// inaccessible or corrupt environment fails with storage.ErrUnavailable.
func New(opts Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	order := opts.Order
	if order == "" {
		order = storage.OrderRecent
	}

	env, err := kv.Open(kv.Options{
		Path:    opts.Path,
		MaxSize: opts.MaxSize,
		Tables:  []string{tableAgents, tableSessions, tableMessages},
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: %w: %v", storage.ErrUnavailable, err)
	}

	return &Driver{env: env, order: order, logger: logger}, nil
}

// Init is part of the storage.Driver contract. Directory and table setup
// already happened in New; Init re-verifies the environment is readable so
// a broken mount surfaces at startup rather than on first use.
func (d *Driver) Init(ctx context.Context) error {
	err := d.env.View(func(txn *kv.Txn) error {
		return txn.Scan(tableAgents, nil, func(_, _ []byte) error {
			return kv.ErrStopScan
		})
	})
	if err != nil {
		return fmt.Errorf("kvstore: %w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Info reports the backend kind, database location, and format version.
func (d *Driver) Info(ctx context.Context) (storage.Info, error) {
	return storage.Info{
		Backend:  storage.BackendKV,
		Location: d.env.Path(),
		Version:  formatVersion,
	}, nil
}

// Close releases the environment.
func (d *Driver) Close() error {
	return d.env.Close()
}
