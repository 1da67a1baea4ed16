package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TuckerTucker/tkr-agent-chat/internal/kv"
	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

func newTestDriver(t *testing.T, order storage.SessionOrder) *Driver {
	t.Helper()
	d, err := New(Options{
		Path:    t.TempDir(),
		MaxSize: 1 << 20,
		Order:   order,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })
	require.NoError(t, d.Init(context.Background()))
	return d
}

// countKeys returns the number of keys under prefix in table.
func countKeys(t *testing.T, d *Driver, table string, prefix []byte) int {
	t.Helper()
	n := 0
	err := d.env.View(func(txn *kv.Txn) error {
		return txn.Scan(table, prefix, func(_, _ []byte) error {
			n++
			return nil
		})
	})
	require.NoError(t, err)
	return n
}

func TestAgentCardUpsertOrSkip(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	card := model.AgentCard{
		ID:           "chloe",
		Name:         "Chloe",
		Description:  "Git operations assistant",
		Color:        "rgb(34, 144, 144)",
		Capabilities: []string{"git"},
	}

	stored, err := d.CreateAgentCard(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, card, stored)

	// Identical content: no duplicate, list length unchanged.
	stored, err = d.CreateAgentCard(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, card, stored)

	cards, err := d.ListAgentCards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	// Changed content: updated in place, still one card.
	card.Description = "Git and repository assistant"
	_, err = d.CreateAgentCard(ctx, card)
	require.NoError(t, err)

	cards, err = d.ListAgentCards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Git and repository assistant", cards[0].Description)
}

func TestCreateSessionGeneratesID(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	sess, err := d.CreateSession(ctx, "untitled", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "untitled", sess.Title)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := d.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestCreateSessionDuplicateID(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	_, err := d.CreateSession(ctx, "first", "S1", "")
	require.NoError(t, err)

	_, err = d.CreateSession(ctx, "second", "S1", "")
	assert.ErrorIs(t, err, storage.ErrDuplicateID)

	// The failed create left no trace: record and index entry count from
	// the first create only.
	assert.Equal(t, 1, countKeys(t, d, tableSessions, []byte("session:")))
	assert.Equal(t, 1, countKeys(t, d, tableSessions, []byte(sessionIndexPrefix)))

	sess, err := d.GetSession(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "first", sess.Title)
}

func TestCreateSessionUnknownAgent(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)

	_, err := d.CreateSession(context.Background(), "t", "S1", "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetSessionNotFound(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)

	_, err := d.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListSessionsOrderAndLimit(t *testing.T) {
	ctx := context.Background()

	create := func(d *Driver, ids ...string) {
		for _, id := range ids {
			_, err := d.CreateSession(ctx, "session "+id, id, "")
			require.NoError(t, err)
			// Index keys carry UnixNano timestamps; keep creations from
			// landing on the same tick.
			time.Sleep(time.Millisecond)
		}
	}

	t.Run("most recent first", func(t *testing.T) {
		d := newTestDriver(t, storage.OrderRecent)
		create(d, "S1", "S2", "S3")

		sessions, err := d.ListSessions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		assert.Equal(t, "S3", sessions[0].ID)
		assert.Equal(t, "S2", sessions[1].ID)
		assert.Equal(t, "S1", sessions[2].ID)

		sessions, err = d.ListSessions(ctx, 2)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "S3", sessions[0].ID)
	})

	t.Run("insertion order", func(t *testing.T) {
		d := newTestDriver(t, storage.OrderInsertion)
		create(d, "S1", "S2", "S3")

		sessions, err := d.ListSessions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		assert.Equal(t, "S1", sessions[0].ID)
		assert.Equal(t, "S3", sessions[2].ID)
	})
}

func TestUpdateSessionTitle(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	_, err := d.CreateSession(ctx, "old title", "S1", "")
	require.NoError(t, err)

	sess, err := d.UpdateSessionTitle(ctx, "S1", "new title")
	require.NoError(t, err)
	assert.Equal(t, "new title", sess.Title)

	got, err := d.GetSession(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)

	_, err = d.UpdateSessionTitle(ctx, "missing", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateMessage(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	_, err := d.CreateSession(ctx, "t", "S1", "")
	require.NoError(t, err)

	msg, err := d.CreateMessage(ctx, storage.CreateMessage{
		UUID:      "M1",
		SessionID: "S1",
		Type:      model.MessageTypeUser,
		Content:   "hi",
		Parts:     []model.MessagePart{{Type: "text", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "M1", msg.UUID)
	assert.False(t, msg.CreatedAt.IsZero())

	got, err := d.GetMessage(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	t.Run("generated uuid", func(t *testing.T) {
		msg, err := d.CreateMessage(ctx, storage.CreateMessage{
			SessionID: "S1",
			Type:      model.MessageTypeAgent,
			Content:   "hello",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.UUID)
	})

	t.Run("duplicate uuid", func(t *testing.T) {
		_, err := d.CreateMessage(ctx, storage.CreateMessage{
			UUID: "M1", SessionID: "S1", Type: model.MessageTypeUser, Content: "again",
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateID)
	})

	t.Run("invalid type", func(t *testing.T) {
		_, err := d.CreateMessage(ctx, storage.CreateMessage{
			SessionID: "S1", Type: "assistant", Content: "x",
		})
		require.Error(t, err)
	})
}

func TestCreateMessageOrphan(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	_, err := d.CreateMessage(ctx, storage.CreateMessage{
		UUID:      "M1",
		SessionID: "no-such-session",
		Type:      model.MessageTypeUser,
		Content:   "hi",
	})
	assert.ErrorIs(t, err, storage.ErrOrphanMessage)

	// No partial write: neither record nor index entry exists.
	assert.Equal(t, 0, countKeys(t, d, tableMessages, nil))
}

func TestListMessagesOrderedPerSession(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	for _, id := range []string{"S1", "S2"} {
		_, err := d.CreateSession(ctx, "t", id, "")
		require.NoError(t, err)
	}

	for _, content := range []string{"first", "second", "third"} {
		_, err := d.CreateMessage(ctx, storage.CreateMessage{
			SessionID: "S1",
			Type:      model.MessageTypeUser,
			Content:   content,
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	_, err := d.CreateMessage(ctx, storage.CreateMessage{
		SessionID: "S2", Type: model.MessageTypeAgent, Content: "other thread",
	})
	require.NoError(t, err)

	messages, err := d.ListMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)

	messages, err = d.ListMessages(ctx, "S2")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "other thread", messages[0].Content)
}

func TestDeleteSessionCascade(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	_, err := d.CreateSession(ctx, "doomed", "S1", "")
	require.NoError(t, err)
	_, err = d.CreateSession(ctx, "survivor", "S2", "")
	require.NoError(t, err)

	const n = 5
	for i := 0; i < n; i++ {
		_, err := d.CreateMessage(ctx, storage.CreateMessage{
			SessionID: "S1", Type: model.MessageTypeUser, Content: "msg",
		})
		require.NoError(t, err)
	}
	_, err = d.CreateMessage(ctx, storage.CreateMessage{
		SessionID: "S2", Type: model.MessageTypeUser, Content: "keep me",
	})
	require.NoError(t, err)

	// Two session records with their two index entries, n+1 message
	// records with their n+1 index entries.
	require.Equal(t, 1, countKeys(t, d, tableSessions, []byte("session:S1")))
	require.Equal(t, 2, countKeys(t, d, tableSessions, []byte(sessionIndexPrefix)))
	require.Equal(t, 2*(n+1), countKeys(t, d, tableMessages, nil))

	deleted, err := d.DeleteSession(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// Exactly the session's record, its index entry, its n messages, and
	// their n index entries are gone; the other session is untouched.
	assert.Equal(t, 0, countKeys(t, d, tableSessions, []byte("session:S1")))
	assert.Equal(t, 1, countKeys(t, d, tableSessions, []byte(sessionIndexPrefix)))
	assert.Equal(t, 2, countKeys(t, d, tableMessages, nil))

	sessions, err := d.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "S2", sessions[0].ID)

	messages, err := d.ListMessages(ctx, "S2")
	require.NoError(t, err)
	require.Len(t, messages, 1)

	t.Run("second delete returns false", func(t *testing.T) {
		deleted, err := d.DeleteSession(ctx, "S1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestInfo(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)

	info, err := d.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.BackendKV, info.Backend)
	assert.NotEmpty(t, info.Location)
	assert.Equal(t, formatVersion, info.Version)
}

func TestCorruptRecordSurfaces(t *testing.T) {
	d := newTestDriver(t, storage.OrderRecent)
	ctx := context.Background()

	_, err := d.CreateSession(ctx, "t", "S1", "")
	require.NoError(t, err)

	// Stomp the stored bytes behind the repository's back.
	err = d.env.Update(func(txn *kv.Txn) error {
		return txn.Put(tableSessions, sessionKey("S1"), []byte{0xff, 0x13, 0x37})
	})
	require.NoError(t, err)

	_, err = d.GetSession(ctx, "S1")
	assert.ErrorIs(t, err, storage.ErrCorruptRecord)
}
