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

// CreateSession stores a new session together with its ordering index
// entry in one transaction. An empty id generates a UUID; a supplied id
// that already exists fails with storage.ErrDuplicateID.
func (d *Driver) CreateSession(ctx context.Context, title, id, agentID string) (model.ChatSession, error) {
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

	err := d.env.Update(func(txn *kv.Txn) error {
		if _, err := txn.Get(tableSessions, sessionKey(id)); err == nil {
			return fmt.Errorf("%w: session %s", storage.ErrDuplicateID, id)
		} else if !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf("kvstore: read session %s: %w", id, err)
		}

		if agentID != "" {
			if _, err := txn.Get(tableAgents, agentKey(agentID)); err != nil {
				if errors.Is(err, kv.ErrKeyNotFound) {
					return fmt.Errorf("%w: agent card %s", storage.ErrNotFound, agentID)
				}
				return fmt.Errorf("kvstore: read agent card %s: %w", agentID, err)
			}
		}

		data, err := codec.Marshal(sess)
		if err != nil {
			return err
		}
		if err := txn.Put(tableSessions, sessionKey(id), data); err != nil {
			return err
		}
		return txn.Put(tableSessions, sessionIndexKey(sess.CreatedAt, id), []byte(id))
	})
	if err != nil {
		return model.ChatSession{}, err
	}
	return sess, nil
}

// GetSession fetches one session by id.
func (d *Driver) GetSession(ctx context.Context, id string) (model.ChatSession, error) {
	var sess model.ChatSession
	err := d.env.View(func(txn *kv.Txn) error {
		return d.getSession(txn, id, &sess)
	})
	if err != nil {
		return model.ChatSession{}, err
	}
	return sess, nil
}

func (d *Driver) getSession(txn *kv.Txn, id string, out *model.ChatSession) error {
	data, err := txn.Get(tableSessions, sessionKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf("%w: session %s", storage.ErrNotFound, id)
		}
		return fmt.Errorf("kvstore: read session %s: %w", id, err)
	}
	if err := codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: session %s: %v", storage.ErrCorruptRecord, id, err)
	}
	return nil
}

// ListSessions returns at most limit sessions ordered by the secondary
// index: most recent first by default, creation order when the driver was
// opened with OrderInsertion. limit <= 0 means no limit.
func (d *Driver) ListSessions(ctx context.Context, limit int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := d.env.View(func(txn *kv.Txn) error {
		scan := txn.Scan
		if d.order == storage.OrderRecent {
			scan = txn.ScanReverse
		}
		return scan(tableSessions, []byte(sessionIndexPrefix), func(_, v []byte) error {
			var sess model.ChatSession
			if err := d.getSession(txn, string(v), &sess); err != nil {
				return err
			}
			sessions = append(sessions, sess)
			if limit > 0 && len(sessions) >= limit {
				return kv.ErrStopScan
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateSessionTitle renames a session. The index entry is keyed by
// creation time and is unaffected.
func (d *Driver) UpdateSessionTitle(ctx context.Context, id, title string) (model.ChatSession, error) {
	var sess model.ChatSession
	err := d.env.Update(func(txn *kv.Txn) error {
		if err := d.getSession(txn, id, &sess); err != nil {
			return err
		}
		sess.Title = title
		data, err := codec.Marshal(sess)
		if err != nil {
			return err
		}
		return txn.Put(tableSessions, sessionKey(id), data)
	})
	if err != nil {
		return model.ChatSession{}, err
	}
	return sess, nil
}

// DeleteSession removes the session record, its index entry, every owned
// message, and every message index entry in a single transaction. Any
// failure midway rolls the whole cascade back. A missing session returns
// false without error.
func (d *Driver) DeleteSession(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := d.env.Update(func(txn *kv.Txn) error {
		var sess model.ChatSession
		if err := d.getSession(txn, id, &sess); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}

		// Collect the owned messages first; mutating a table while a scan
		// cursor walks it is undefined.
		var indexKeys [][]byte
		var messageUUIDs []string
		err := txn.Scan(tableMessages, messageIndexPrefix(id), func(k, v []byte) error {
			indexKeys = append(indexKeys, append([]byte(nil), k...))
			messageUUIDs = append(messageUUIDs, string(v))
			return nil
		})
		if err != nil {
			return err
		}

		for _, uuid := range messageUUIDs {
			if err := txn.Delete(tableMessages, messageKey(uuid)); err != nil {
				return fmt.Errorf("kvstore: cascade delete message %s: %w", uuid, err)
			}
		}
		for _, k := range indexKeys {
			if err := txn.Delete(tableMessages, k); err != nil {
				return fmt.Errorf("kvstore: cascade delete message index: %w", err)
			}
		}
		if err := txn.Delete(tableSessions, sessionIndexKey(sess.CreatedAt, id)); err != nil {
			return fmt.Errorf("kvstore: delete session index %s: %w", id, err)
		}
		if err := txn.Delete(tableSessions, sessionKey(id)); err != nil {
			return fmt.Errorf("kvstore: delete session %s: %w", id, err)
		}

		d.logger.Info("session cascade deleted",
			"session_id", id, "messages", len(messageUUIDs))
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
