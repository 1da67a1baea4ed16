package sqlite

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/TuckerTucker/tkr-agent-chat/internal/codec"
	"github.com/TuckerTucker/tkr-agent-chat/internal/model"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

// CreateAgentCard upserts an agent card. Identical existing content is a
// logged no-op returning the stored record.
func (d *Driver) CreateAgentCard(ctx context.Context, card model.AgentCard) (_ model.AgentCard, err error) {
	if err := model.ValidateID("agent", card.ID); err != nil {
		return model.AgentCard{}, err
	}

	conn, release, err := d.conn(ctx)
	if err != nil {
		return model.AgentCard{}, err
	}
	defer release()
	defer sqlitex.Save(conn)(&err)

	current, found, err := selectAgentCard(conn, card.ID)
	if err != nil {
		return model.AgentCard{}, err
	}
	if found && current.Equal(card) {
		d.logger.Debug("agent card unchanged, skipping write", "agent_id", card.ID)
		return current, nil
	}

	capabilities, err := codec.Marshal(card.Capabilities)
	if err != nil {
		return model.AgentCard{}, err
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO agent_cards (id, name, description, color, icon_path, capabilities)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			color = excluded.color,
			icon_path = excluded.icon_path,
			capabilities = excluded.capabilities`,
		&sqlitex.ExecOptions{
			Args: []any{card.ID, card.Name, card.Description, card.Color, card.IconPath, capabilities},
		})
	if err != nil {
		return model.AgentCard{}, fmt.Errorf("sqlite: upsert agent card %s: %w", card.ID, err)
	}
	return card, nil
}

// ListAgentCards returns every registered card in id order.
func (d *Driver) ListAgentCards(ctx context.Context) ([]model.AgentCard, error) {
	conn, release, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var cards []model.AgentCard
	var scanErr error
	err = sqlitex.Execute(conn, `
		SELECT id, name, description, color, icon_path, capabilities
		FROM agent_cards ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				card, err := scanAgentCard(stmt)
				if err != nil {
					scanErr = err
					return err
				}
				cards = append(cards, card)
				return nil
			},
		})
	if scanErr != nil {
		return nil, scanErr
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: list agent cards: %w", err)
	}
	return cards, nil
}

func selectAgentCard(conn *sqlite.Conn, id string) (model.AgentCard, bool, error) {
	var card model.AgentCard
	found := false
	var scanErr error
	err := sqlitex.Execute(conn, `
		SELECT id, name, description, color, icon_path, capabilities
		FROM agent_cards WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				c, err := scanAgentCard(stmt)
				if err != nil {
					scanErr = err
					return err
				}
				card = c
				found = true
				return nil
			},
		})
	if scanErr != nil {
		return model.AgentCard{}, false, scanErr
	}
	if err != nil {
		return model.AgentCard{}, false, fmt.Errorf("sqlite: select agent card %s: %w", id, err)
	}
	return card, found, nil
}

func scanAgentCard(stmt *sqlite.Stmt) (model.AgentCard, error) {
	card := model.AgentCard{
		ID:          stmt.ColumnText(0),
		Name:        stmt.ColumnText(1),
		Description: stmt.ColumnText(2),
		Color:       stmt.ColumnText(3),
		IconPath:    stmt.ColumnText(4),
	}
	if blob := columnBlob(stmt, 5); blob != nil {
		if err := codec.Unmarshal(blob, &card.Capabilities); err != nil {
			return model.AgentCard{}, fmt.Errorf("%w: agent card %s capabilities: %v",
				storage.ErrCorruptRecord, card.ID, err)
		}
	}
	return card, nil
}
