package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/TuckerTucker/tkr-agent-chat/internal/codec"
	"github.com/TuckerTucker/tkr-agent-chat/internal/kv"
	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

// CreateAgentCard upserts an agent card. An existing card with identical
// content is a logged no-op returning the stored record; changed content is
// overwritten in place. The id never changes once created.
func (d *Driver) CreateAgentCard(ctx context.Context, card model.AgentCard) (model.AgentCard, error) {
	if err := model.ValidateID("agent", card.ID); err != nil {
		return model.AgentCard{}, err
	}

	stored := card
	err := d.env.Update(func(txn *kv.Txn) error {
		existing, err := txn.Get(tableAgents, agentKey(card.ID))
		switch {
		case err == nil:
			var current model.AgentCard
			if err := codec.Unmarshal(existing, &current); err != nil {
				return fmt.Errorf("%w: agent card %s: %v", storage.ErrCorruptRecord, card.ID, err)
			}
			if current.Equal(card) {
				d.logger.Debug("agent card unchanged, skipping write", "agent_id", card.ID)
				stored = current
				return nil
			}
		case !errors.Is(err, kv.ErrKeyNotFound):
			return fmt.Errorf("kvstore: read agent card %s: %w", card.ID, err)
		}

		data, err := codec.Marshal(card)
		if err != nil {
			return err
		}
		return txn.Put(tableAgents, agentKey(card.ID), data)
	})
	if err != nil {
		return model.AgentCard{}, err
	}
	return stored, nil
}

// ListAgentCards returns every registered card in id order.
func (d *Driver) ListAgentCards(ctx context.Context) ([]model.AgentCard, error) {
	var cards []model.AgentCard
	err := d.env.View(func(txn *kv.Txn) error {
		return txn.Scan(tableAgents, []byte(agentPrefix), func(k, v []byte) error {
			var card model.AgentCard
			if err := codec.Unmarshal(v, &card); err != nil {
				return fmt.Errorf("%w: agent card key %s: %v", storage.ErrCorruptRecord, k, err)
			}
			cards = append(cards, card)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}
