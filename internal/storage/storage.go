// Package storage exposes the uniform persistence interface for agent
// cards, chat sessions, and messages.
//
// A Store wraps whichever Driver is active — the embedded key-value backend
// or the relational backend — and is the only surface the rest of the
// application talks to. Callers stay backend-agnostic: the same operation
// set behaves identically regardless of which driver the factory selected.
//
// Errors from a driver propagate unchanged; the Store never masks a
// backend-specific failure behind a generic one, since callers distinguish
// retryable conditions (ErrUnavailable) from terminal ones (ErrDuplicateID).
package storage

import (
	"context"
	"io"
	"log/slog"

	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
)

// Backend identifies a storage backend implementation.
type Backend string

const (
	// BackendKV is the embedded ordered key-value backend.
	BackendKV Backend = "kv"
	// BackendSQLite is the relational backend.
	BackendSQLite Backend = "sqlite"
)

// SessionOrder controls how ListSessions orders its results.
type SessionOrder string

const (
	// OrderRecent returns the most recently created sessions first.
	OrderRecent SessionOrder = "recent"
	// OrderInsertion returns sessions in creation order.
	OrderInsertion SessionOrder = "insertion"
)

// Info describes the active backend for diagnostics.
type Info struct {
	Backend  Backend `json:"backend"`
	Location string  `json:"location"`
	Version  string  `json:"version"`
}

// CreateMessage carries the fields accepted when persisting a new message.
// UUID and CreatedAt are generated when absent.
type CreateMessage struct {
	UUID      string
	SessionID string
	Type      model.MessageType
	Content   string
	Parts     []model.MessagePart
}

// Driver is the uniform operation set every backend implements. All methods
// are safe for concurrent use.
type Driver interface {
	// Init performs idempotent setup: directories, tables or schema.
	// Safe to call on every process start.
	Init(ctx context.Context) error

	// CreateAgentCard upserts a card. An existing card with identical
	// content is a no-op returning the stored record.
	CreateAgentCard(ctx context.Context, card model.AgentCard) (model.AgentCard, error)
	ListAgentCards(ctx context.Context) ([]model.AgentCard, error)

	// CreateSession stores a new session. An empty id means generate one.
	// An existing id fails with ErrDuplicateID.
	CreateSession(ctx context.Context, title, id, agentID string) (model.ChatSession, error)
	GetSession(ctx context.Context, id string) (model.ChatSession, error)
	ListSessions(ctx context.Context, limit int) ([]model.ChatSession, error)
	UpdateSessionTitle(ctx context.Context, id, title string) (model.ChatSession, error)

	// DeleteSession removes the session and every owned message atomically.
	// Returns false for a session that does not exist.
	DeleteSession(ctx context.Context, id string) (bool, error)

	// CreateMessage validates the session reference (ErrOrphanMessage) and
	// writes the record and its index entry atomically.
	CreateMessage(ctx context.Context, params CreateMessage) (model.Message, error)
	GetMessage(ctx context.Context, uuid string) (model.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]model.Message, error)

	Info(ctx context.Context) (Info, error)
	Close() error
}

// Store is the backend-agnostic persistence facade.
type Store struct {
	driver Driver
	logger *slog.Logger
}

// New wraps driver in a Store. A nil logger discards log output.
func New(driver Driver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{driver: driver, logger: logger}
}

// Init performs idempotent one-time setup and seeds the default agent
// cards. Safe to call on every process start.
func (s *Store) Init(ctx context.Context) error {
	if err := s.driver.Init(ctx); err != nil {
		return err
	}
	return s.seedAgentCards(ctx)
}

// CreateAgentCard registers an agent card (upsert-or-skip).
func (s *Store) CreateAgentCard(ctx context.Context, card model.AgentCard) (model.AgentCard, error) {
	stored, err := s.driver.CreateAgentCard(ctx, card)
	if err != nil {
		s.logger.Error("create agent card failed", "agent_id", card.ID, "error", err)
		return model.AgentCard{}, err
	}
	s.logger.Debug("agent card stored", "agent_id", stored.ID)
	return stored, nil
}

// ListAgentCards returns every registered agent card.
func (s *Store) ListAgentCards(ctx context.Context) ([]model.AgentCard, error) {
	return s.driver.ListAgentCards(ctx)
}

// CreateSession creates a conversation thread. An empty id generates a
// fresh UUID; a supplied id that already exists fails with ErrDuplicateID.
func (s *Store) CreateSession(ctx context.Context, title, id string) (model.ChatSession, error) {
	return s.CreateSessionForAgent(ctx, title, id, "")
}

// CreateSessionForAgent creates a session bound to an agent card.
func (s *Store) CreateSessionForAgent(ctx context.Context, title, id, agentID string) (model.ChatSession, error) {
	sess, err := s.driver.CreateSession(ctx, title, id, agentID)
	if err != nil {
		s.logger.Error("create session failed", "session_id", id, "error", err)
		return model.ChatSession{}, err
	}
	s.logger.Info("session created", "session_id", sess.ID, "title", sess.Title)
	return sess, nil
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (model.ChatSession, error) {
	return s.driver.GetSession(ctx, id)
}

// ListSessions returns at most limit sessions in the configured order.
// limit <= 0 means no limit.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]model.ChatSession, error) {
	return s.driver.ListSessions(ctx, limit)
}

// UpdateSessionTitle renames a session.
func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) (model.ChatSession, error) {
	sess, err := s.driver.UpdateSessionTitle(ctx, id, title)
	if err != nil {
		s.logger.Error("update session title failed", "session_id", id, "error", err)
		return model.ChatSession{}, err
	}
	return sess, nil
}

// DeleteSession removes a session together with all its messages and index
// entries as one atomic unit. Returns false, nil when the session did not
// exist; a missing session is never an error.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	deleted, err := s.driver.DeleteSession(ctx, id)
	if err != nil {
		s.logger.Error("delete session failed", "session_id", id, "error", err)
		return false, err
	}
	if deleted {
		s.logger.Info("session deleted", "session_id", id)
	} else {
		s.logger.Debug("delete of missing session ignored", "session_id", id)
	}
	return deleted, nil
}

// CreateMessage persists one turn of a session.
func (s *Store) CreateMessage(ctx context.Context, params CreateMessage) (model.Message, error) {
	msg, err := s.driver.CreateMessage(ctx, params)
	if err != nil {
		s.logger.Error("create message failed",
			"session_id", params.SessionID, "message_uuid", params.UUID, "error", err)
		return model.Message{}, err
	}
	s.logger.Debug("message stored",
		"session_id", msg.SessionID, "message_uuid", msg.UUID, "type", msg.Type)
	return msg, nil
}

// GetMessage fetches one message by its canonical id.
func (s *Store) GetMessage(ctx context.Context, id string) (model.Message, error) {
	return s.driver.GetMessage(ctx, id)
}

// GetMessageByUUID fetches one message by uuid. The uuid IS the canonical
// id, so this resolves through the exact same path as GetMessage and can
// never return a different record for the same logical message.
func (s *Store) GetMessageByUUID(ctx context.Context, uuid string) (model.Message, error) {
	return s.driver.GetMessage(ctx, uuid)
}

// ListMessages returns every message of a session, oldest first.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	return s.driver.ListMessages(ctx, sessionID)
}

// Info reports which backend is active, where it lives, and its version.
func (s *Store) Info(ctx context.Context) (Info, error) {
	return s.driver.Info(ctx)
}

// Close releases the active backend.
func (s *Store) Close() error {
	return s.driver.Close()
}
