package sqlite

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

// CreateSession stores a new session. An empty id generates a UUID; a
// supplied id that already exists fails with storage.ErrDuplicateID.
func (d *Driver) CreateSession(ctx context.Context, title, id, agentID string) (_ model.ChatSession, err error) {
	if id == "" {
		id = model.NewSessionID()
	} else if err := model.ValidateID("session", id); err != nil {
		return model.ChatSession{}, err
	}

	sess := model.ChatSession{
		ID:        id,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		AgentID:   agentID,
	}

	conn, release, err := d.conn(ctx)
	if err != nil {
		return model.ChatSession{}, err
	}
	defer release()
	defer sqlitex.Save(conn)(&err)

	exists, err := rowExists(conn, `SELECT 1 FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return model.ChatSession{}, err
	}
	if exists {
		return model.ChatSession{}, fmt.Errorf("%w: session %s", storage.ErrDuplicateID, id)
	}

	if agentID != "" {
		exists, err := rowExists(conn, `SELECT 1 FROM agent_cards WHERE id = ?`, agentID)
		if err != nil {
			return model.ChatSession{}, err
		}
		if !exists {
			return model.ChatSession{}, fmt.Errorf("%w: agent card %s", storage.ErrNotFound, agentID)
		}
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO chat_sessions (id, title, agent_id, created_at_ns)
		VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{sess.ID, sess.Title, sess.AgentID, sess.CreatedAt.UnixNano()},
		})
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("sqlite: insert session %s: %w", id, err)
	}
	return sess, nil
}

// GetSession fetches one session by id.
func (d *Driver) GetSession(ctx context.Context, id string) (model.ChatSession, error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return model.ChatSession{}, err
	}
	defer release()
	return selectSession(conn, id)
}

// ListSessions returns at most limit sessions ordered by creation time.
// limit <= 0 means no limit.
func (d *Driver) ListSessions(ctx context.Context, limit int) ([]model.ChatSession, error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	direction := "DESC"
	if d.order == storage.OrderInsertion {
		direction = "ASC"
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	var sessions []model.ChatSession
	err = sqlitex.Execute(conn, fmt.Sprintf(`
		SELECT id, title, agent_id, created_at_ns
		FROM chat_sessions ORDER BY created_at_ns %s, id %s LIMIT ?`, direction, direction),
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sessions = append(sessions, scanSession(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionTitle renames a session.
func (d *Driver) UpdateSessionTitle(ctx context.Context, id, title string) (model.ChatSession, error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return model.ChatSession{}, err
	}
	defer release()

	err = sqlitex.Execute(conn, `UPDATE chat_sessions SET title = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{title, id}})
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("sqlite: update session %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return model.ChatSession{}, fmt.Errorf("%w: session %s", storage.ErrNotFound, id)
	}
	return selectSession(conn, id)
}

// DeleteSession removes the session row and every owned message row in one
// transaction. A missing session returns false without error.
func (d *Driver) DeleteSession(ctx context.Context, id string) (_ bool, err error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	defer sqlitex.Save(conn)(&err)

	exists, err := rowExists(conn, `SELECT 1 FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	err = sqlitex.Execute(conn, `DELETE FROM messages WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return false, fmt.Errorf("sqlite: cascade delete messages of %s: %w", id, err)
	}
	removed := conn.Changes()

	err = sqlitex.Execute(conn, `DELETE FROM chat_sessions WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return false, fmt.Errorf("sqlite: delete session %s: %w", id, err)
	}

	d.logger.Info("session cascade deleted", "session_id", id, "messages", removed)
	return true, nil
}

func selectSession(conn *sqlite.Conn, id string) (model.ChatSession, error) {
	var sess model.ChatSession
	found := false
	err := sqlitex.Execute(conn, `
		SELECT id, title, agent_id, created_at_ns
		FROM chat_sessions WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sess = scanSession(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("sqlite: select session %s: %w", id, err)
	}
	if !found {
		return model.ChatSession{}, fmt.Errorf("%w: session %s", storage.ErrNotFound, id)
	}
	return sess, nil
}

func scanSession(stmt *sqlite.Stmt) model.ChatSession {
	return model.ChatSession{
		ID:        stmt.ColumnText(0),
		Title:     stmt.ColumnText(1),
		AgentID:   stmt.ColumnText(2),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
	}
}

func rowExists(conn *sqlite.Conn, query string, args ...any) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("sqlite: existence check: %w", err)
	}
	return exists, nil
}
