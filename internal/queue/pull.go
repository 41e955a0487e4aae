package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tomascarey/cardbox/internal/config"
	"github.com/tomascarey/cardbox/internal/domain"
	"github.com/tomascarey/cardbox/internal/remote"
	"github.com/tomascarey/cardbox/internal/store"
)

// pull is the pull phase: list remote records modified since the last
// successful pull (or everything not archived on first sync), merge them
// into the local store, and on a full pull run the mark-and-sweep deletion
// pass. A stale-but-present last-pull timestamp is treated as incremental;
// only a genuinely absent one triggers the sweep.
func (m *Manager) pull(ctx context.Context) error {
	lastPull, err := m.store.MetaTime(ctx, store.MetaLastPullAt)
	if err != nil {
		return err
	}
	full := lastPull.IsZero()
	started := time.Now()

	filter := remote.Filter{}
	if full {
		filter.IncludeArchived = false
	} else {
		filter.ModifiedSince = lastPull
		filter.IncludeArchived = true
	}

	seenDecks, err := m.pullDecks(ctx, filter)
	if err != nil {
		return err
	}
	seenCards, err := m.pullCards(ctx, filter)
	if err != nil {
		return err
	}

	if full {
		m.sweep(ctx, seenDecks, seenCards)
	}

	return m.store.SetMetaTime(ctx, store.MetaLastPullAt, started)
}

func (m *Manager) pullDecks(ctx context.Context, filter remote.Filter) (map[string]bool, error) {
	seen := make(map[string]bool)
	cursor := ""
	for {
		page, err := m.client.List(ctx, remote.KindDeck, filter, cursor)
		if err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			seen[rec.ID] = true
			if rec.Archived || rec.Hidden {
				if err := m.removeDeckLocal(ctx, rec.ID); err != nil {
					return nil, err
				}
				continue
			}

			var d domain.Deck
			if err := json.Unmarshal(rec.Payload, &d); err != nil {
				m.log.Warn("skipping undecodable remote deck", "id", rec.ID, "error", err)
				continue
			}
			d.ID = rec.ID
			d.ModifiedAt = rec.ModifiedAt
			if config.NormalizeDeck(&d) {
				m.log.Warn("remote deck config invalid, defaults substituted", "deck", d.ID)
				m.notify("deck \"" + d.Name + "\" had invalid settings; defaults applied")
			}

			m.cols.Decks[d.ID] = &d
			if err := m.store.PutDeck(ctx, &d); err != nil {
				return nil, err
			}
		}
		if !page.HasMore {
			return seen, nil
		}
		cursor = page.NextCursor
	}
}

func (m *Manager) pullCards(ctx context.Context, filter remote.Filter) (map[string]bool, error) {
	seen := make(map[string]bool)
	var batch []*domain.Card
	cursor := ""
	for {
		page, err := m.client.List(ctx, remote.KindCard, filter, cursor)
		if err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			seen[rec.ID] = true
			if rec.Archived || rec.Hidden {
				if err := m.removeCardLocal(ctx, rec.ID); err != nil {
					return nil, err
				}
				continue
			}

			var c domain.Card
			if err := json.Unmarshal(rec.Payload, &c); err != nil {
				m.log.Warn("skipping undecodable remote card", "id", rec.ID, "error", err)
				continue
			}
			c.ID = rec.ID
			c.ModifiedAt = rec.ModifiedAt

			// A just-created remote record can be read back before its
			// history round-trips; never let that wipe local history.
			if local, ok := m.cols.Cards[c.ID]; ok && len(c.History) == 0 && len(local.History) > 0 {
				c.History = local.History
			}

			card := c
			m.cols.Cards[card.ID] = &card
			batch = append(batch, &card)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	if err := m.store.PutCards(ctx, batch); err != nil {
		return nil, err
	}
	return seen, nil
}

// sweep removes local records with a remote id, belonging to an
// actively-synced deck, that a full listing did not include. They were
// deleted remotely.
func (m *Manager) sweep(ctx context.Context, seenDecks, seenCards map[string]bool) {
	for id, deck := range m.cols.Decks {
		if domain.IsTempID(id) || deck.Archived || seenDecks[id] {
			continue
		}
		m.log.Info("sweeping remotely deleted deck", "id", id)
		if err := m.removeDeckLocal(ctx, id); err != nil {
			m.log.Warn("failed to sweep deck", "id", id, "error", err)
		}
	}
	for id, card := range m.cols.Cards {
		if domain.IsTempID(id) || seenCards[id] {
			continue
		}
		deck, ok := m.cols.Decks[card.DeckID]
		if !ok || deck.Archived {
			continue
		}
		m.log.Info("sweeping remotely deleted card", "id", id)
		if err := m.removeCardLocal(ctx, id); err != nil {
			m.log.Warn("failed to sweep card", "id", id, "error", err)
		}
	}
}

// removeDeckLocal purges a deck and cascades to its cards.
func (m *Manager) removeDeckLocal(ctx context.Context, id string) error {
	for cardID, card := range m.cols.Cards {
		if card.DeckID == id {
			if err := m.removeCardLocal(ctx, cardID); err != nil {
				return err
			}
		}
	}
	delete(m.cols.Decks, id)
	return m.store.DeleteDeck(ctx, id)
}

// removeCardLocal purges a card and cascades to its sub-cards.
func (m *Manager) removeCardLocal(ctx context.Context, id string) error {
	for childID, child := range m.cols.Cards {
		if child.ParentCard == id {
			delete(m.cols.Cards, childID)
			if err := m.store.DeleteCard(ctx, childID); err != nil {
				return err
			}
		}
	}
	delete(m.cols.Cards, id)
	return m.store.DeleteCard(ctx, id)
}
