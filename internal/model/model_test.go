package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypeValid(t *testing.T) {
	assert.True(t, MessageTypeUser.Valid())
	assert.True(t, MessageTypeAgent.Valid())
	assert.True(t, MessageTypeSystem.Valid())
	assert.False(t, MessageType("assistant").Valid())
	assert.False(t, MessageType("").Valid())
}

func TestAgentCardEqual(t *testing.T) {
	card := AgentCard{
		ID:           "chloe",
		Name:         "Chloe",
		Description:  "Git operations assistant",
		Color:        "rgb(34, 144, 144)",
		IconPath:     "agents/chloe/icon.svg",
		Capabilities: []string{"git", "search"},
	}

	t.Run("identical content", func(t *testing.T) {
		other := card
		other.Capabilities = []string{"git", "search"}
		assert.True(t, card.Equal(other))
	})

	t.Run("different field", func(t *testing.T) {
		other := card
		other.Color = "rgb(0, 0, 0)"
		assert.False(t, card.Equal(other))
	})

	t.Run("different capabilities", func(t *testing.T) {
		other := card
		other.Capabilities = []string{"git"}
		assert.False(t, card.Equal(other))

		other.Capabilities = []string{"search", "git"}
		assert.False(t, card.Equal(other), "capability order is significant")
	})
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("session", "S1"))
	require.NoError(t, ValidateID("session", NewSessionID()))

	err := ValidateID("session", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")

	err = ValidateID("message", "a:b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not contain")
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMessageUUID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
