package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TuckerTucker/tkr-agent-chat/internal/codec"
	"github.com/TuckerTucker/tkr-agent-chat/internal/kv"
	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

// CreateMessage validates the session reference and writes the message
// record plus its per-session index entry in one transaction. A message
// naming a session that does not exist fails with storage.ErrOrphanMessage
// and leaves nothing behind.
func (d *Driver) CreateMessage(ctx context.Context, params storage.CreateMessage) (model.Message, error) {
	if !params.Type.Valid() {
		return model.Message{}, fmt.Errorf("kvstore: invalid message type %q", params.Type)
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

	err := d.env.Update(func(txn *kv.Txn) error {
		if _, err := txn.Get(tableSessions, sessionKey(params.SessionID)); err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				return fmt.Errorf("%w: session %s", storage.ErrOrphanMessage, params.SessionID)
			}
			return fmt.Errorf("kvstore: read session %s: %w", params.SessionID, err)
		}
		if _, err := txn.Get(tableMessages, messageKey(uuid)); err == nil {
			return fmt.Errorf("%w: message %s", storage.ErrDuplicateID, uuid)
		} else if !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf("kvstore: read message %s: %w", uuid, err)
		}

		data, err := codec.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Put(tableMessages, messageKey(uuid), data); err != nil {
			return err
		}
		return txn.Put(tableMessages,
			messageIndexKey(msg.SessionID, msg.CreatedAt, uuid), []byte(uuid))
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// GetMessage fetches one message. The uuid is the canonical and only store
// key for a message, so every lookup path resolves through here.
func (d *Driver) GetMessage(ctx context.Context, uuid string) (model.Message, error) {
	var msg model.Message
	err := d.env.View(func(txn *kv.Txn) error {
		data, err := txn.Get(tableMessages, messageKey(uuid))
		if err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				return fmt.Errorf("%w: message %s", storage.ErrNotFound, uuid)
			}
			return fmt.Errorf("kvstore: read message %s: %w", uuid, err)
		}
		if err := codec.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("%w: message %s: %v", storage.ErrCorruptRecord, uuid, err)
		}
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// ListMessages returns every message of one session oldest first, walking
// the per-session index so unrelated sessions are never touched.
func (d *Driver) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	var messages []model.Message
	err := d.env.View(func(txn *kv.Txn) error {
		return txn.Scan(tableMessages, messageIndexPrefix(sessionID), func(_, v []byte) error {
			uuid := string(v)
			data, err := txn.Get(tableMessages, messageKey(uuid))
			if err != nil {
				return fmt.Errorf("kvstore: index entry for missing message %s: %w", uuid, err)
			}
			var msg model.Message
			if err := codec.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("%w: message %s: %v", storage.ErrCorruptRecord, uuid, err)
			}
			messages = append(messages, msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
