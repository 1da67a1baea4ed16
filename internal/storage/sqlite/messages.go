package sqlite

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/TuckerTucker/tkr-agent-chat/internal/codec"
	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

// CreateMessage validates the session reference and inserts the message
// row. A message naming a session that does not exist fails with
// storage.ErrOrphanMessage and inserts nothing.
func (d *Driver) CreateMessage(ctx context.Context, params storage.CreateMessage) (_ model.Message, err error) {
	if !params.Type.Valid() {
		return model.Message{}, fmt.Errorf("sqlite: invalid message type %q", params.Type)
	}
	uuid := params.UUID
	if uuid == "" {
		uuid = model.NewMessageUUID()
	} else if err := model.ValidateID("message", uuid); err != nil {
		return model.Message{}, err
	}
	if err := model.ValidateID("session", params.SessionID); err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		UUID:      uuid,
		SessionID: params.SessionID,
		Type:      params.Type,
		Content:   params.Content,
		CreatedAt: time.Now().UTC(),
		Parts:     params.Parts,
	}

	conn, release, err := d.conn(ctx)
	if err != nil {
		return model.Message{}, err
	}
	defer release()
	defer sqlitex.Save(conn)(&err)

	exists, err := rowExists(conn, `SELECT 1 FROM chat_sessions WHERE id = ?`, params.SessionID)
	if err != nil {
		return model.Message{}, err
	}
	if !exists {
		return model.Message{}, fmt.Errorf("%w: session %s", storage.ErrOrphanMessage, params.SessionID)
	}

	exists, err = rowExists(conn, `SELECT 1 FROM messages WHERE message_uuid = ?`, uuid)
	if err != nil {
		return model.Message{}, err
	}
	if exists {
		return model.Message{}, fmt.Errorf("%w: message %s", storage.ErrDuplicateID, uuid)
	}

	var parts []byte
	if len(msg.Parts) > 0 {
		parts, err = codec.Marshal(msg.Parts)
		if err != nil {
			return model.Message{}, err
		}
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO messages (message_uuid, session_id, type, content, created_at_ns, parts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{msg.UUID, msg.SessionID, string(msg.Type), msg.Content,
				msg.CreatedAt.UnixNano(), parts},
		})
	if err != nil {
		return model.Message{}, fmt.Errorf("sqlite: insert message %s: %w", uuid, err)
	}
	return msg, nil
}

// GetMessage fetches one message by its canonical uuid.
func (d *Driver) GetMessage(ctx context.Context, uuid string) (model.Message, error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return model.Message{}, err
	}
	defer release()

	var msg model.Message
	found := false
	err = sqlitex.Execute(conn, `
		SELECT message_uuid, session_id, type, content, created_at_ns, parts
		FROM messages WHERE message_uuid = ?`,
		&sqlitex.ExecOptions{
			Args: []any{uuid},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				m, err := scanMessage(stmt)
				if err != nil {
					return err
				}
				msg = m
				found = true
				return nil
			},
		})
	if err != nil {
		return model.Message{}, fmt.Errorf("sqlite: select message %s: %w", uuid, err)
	}
	if !found {
		return model.Message{}, fmt.Errorf("%w: message %s", storage.ErrNotFound, uuid)
	}
	return msg, nil
}

// ListMessages returns every message of one session, oldest first.
func (d *Driver) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var messages []model.Message
	err = sqlitex.Execute(conn, `
		SELECT message_uuid, session_id, type, content, created_at_ns, parts
		FROM messages WHERE session_id = ?
		ORDER BY created_at_ns, message_uuid`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				m, err := scanMessage(stmt)
				if err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages of %s: %w", sessionID, err)
	}
	return messages, nil
}

func scanMessage(stmt *sqlite.Stmt) (model.Message, error) {
	msg := model.Message{
		UUID:      stmt.ColumnText(0),
		SessionID: stmt.ColumnText(1),
		Type:      model.MessageType(stmt.ColumnText(2)),
		Content:   stmt.ColumnText(3),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
	}
	if blob := columnBlob(stmt, 5); blob != nil {
		if err := codec.Unmarshal(blob, &msg.Parts); err != nil {
			return model.Message{}, fmt.Errorf("%w: message %s parts: %v",
				storage.ErrCorruptRecord, msg.UUID, err)
		}
	}
	return msg, nil
}
