package storage

import (
	"context"
	"fmt"

	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
)

// defaultAgentCards are seeded on every Init. Seeding is idempotent: a card
// whose id already exists is skipped, so re-initialization never duplicates
// cards or clobbers operator edits.
var defaultAgentCards = []model.AgentCard{
	{
		ID:           "chloe",
		Name:         "Chloe",
		Description:  "Git operations and repository management assistant",
		Color:        "rgb(34, 144, 144)",
		IconPath:     "agents/chloe/src/assets/chloe.svg",
		Capabilities: []string{"git", "file_system", "search"},
	},
	{
		ID:           "phil_connors",
		Name:         "Phil Connors",
		Description:  "Task planning and scheduling assistant",
		Color:        "rgb(219, 112, 147)",
		IconPath:     "agents/phil_connors/src/assets/phil.svg",
		Capabilities: []string{"planning", "scheduling"},
	},
}

func (s *Store) seedAgentCards(ctx context.Context) error {
	existing, err := s.driver.ListAgentCards(ctx)
	if err != nil {
		return fmt.Errorf("storage: list cards before seeding: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, card := range existing {
		present[card.ID] = true
	}

	for _, card := range defaultAgentCards {
		if present[card.ID] {
			s.logger.Debug("seed card already present, skipping", "agent_id", card.ID)
			continue
		}
		if _, err := s.driver.CreateAgentCard(ctx, card); err != nil {
			return fmt.Errorf("storage: seed card %s: %w", card.ID, err)
		}
		s.logger.Info("seeded default agent card", "agent_id", card.ID)
	}
	return nil
}
