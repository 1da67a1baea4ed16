package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
)

// fakeDriver records calls so facade behavior can be tested without a real
// backend.
type fakeDriver struct {
	cards       map[string]model.AgentCard
	getMessage  []string // uuids passed to GetMessage, in order
	initCalled  int
	closeCalled int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{cards: make(map[string]model.AgentCard)}
}

func (f *fakeDriver) Init(ctx context.Context) error {
	f.initCalled++
	return nil
}

func (f *fakeDriver) CreateAgentCard(ctx context.Context, card model.AgentCard) (model.AgentCard, error) {
	f.cards[card.ID] = card
	return card, nil
}

func (f *fakeDriver) ListAgentCards(ctx context.Context) ([]model.AgentCard, error) {
	cards := make([]model.AgentCard, 0, len(f.cards))
	for _, c := range f.cards {
		cards = append(cards, c)
	}
	return cards, nil
}

func (f *fakeDriver) CreateSession(ctx context.Context, title, id, agentID string) (model.ChatSession, error) {
	return model.ChatSession{ID: id, Title: title, AgentID: agentID}, nil
}

func (f *fakeDriver) GetSession(ctx context.Context, id string) (model.ChatSession, error) {
	return model.ChatSession{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
}

func (f *fakeDriver) ListSessions(ctx context.Context, limit int) ([]model.ChatSession, error) {
	return nil, nil
}

func (f *fakeDriver) UpdateSessionTitle(ctx context.Context, id, title string) (model.ChatSession, error) {
	return model.ChatSession{ID: id, Title: title}, nil
}

func (f *fakeDriver) DeleteSession(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (f *fakeDriver) CreateMessage(ctx context.Context, params CreateMessage) (model.Message, error) {
	return model.Message{UUID: params.UUID, SessionID: params.SessionID}, nil
}

func (f *fakeDriver) GetMessage(ctx context.Context, uuid string) (model.Message, error) {
	f.getMessage = append(f.getMessage, uuid)
	return model.Message{UUID: uuid}, nil
}

func (f *fakeDriver) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	return nil, nil
}

func (f *fakeDriver) Info(ctx context.Context) (Info, error) {
	return Info{Backend: BackendKV, Location: "fake", Version: "0"}, nil
}

func (f *fakeDriver) Close() error {
	f.closeCalled++
	return nil
}

func TestInitSeedsOnlyMissingCards(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()

	// One default card already present with operator edits.
	edited := defaultAgentCards[0]
	edited.Description = "locally customized"
	driver.cards[edited.ID] = edited

	store := New(driver, nil)
	require.NoError(t, store.Init(ctx))
	assert.Equal(t, 1, driver.initCalled)

	cards, err := store.ListAgentCards(ctx)
	require.NoError(t, err)
	assert.Len(t, cards, len(defaultAgentCards))

	// The existing card was skipped, not clobbered.
	assert.Equal(t, "locally customized", driver.cards[edited.ID].Description)
}

func TestGetMessageByUUIDSharesCanonicalPath(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	store := New(driver, nil)

	_, err := store.GetMessage(ctx, "M1")
	require.NoError(t, err)
	_, err = store.GetMessageByUUID(ctx, "M1")
	require.NoError(t, err)

	// Both lookups resolve through the driver's single GetMessage path
	// with the identical key.
	assert.Equal(t, []string{"M1", "M1"}, driver.getMessage)
}

func TestStoreClosePropagates(t *testing.T) {
	driver := newFakeDriver()
	store := New(driver, nil)
	require.NoError(t, store.Close())
	assert.Equal(t, 1, driver.closeCalled)
}
