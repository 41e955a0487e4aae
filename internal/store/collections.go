package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomascarey/cardbox/internal/domain"
)

// Collections is the in-memory cache of persisted state, rebuilt from the
// store at startup. Callers may mutate returned records but must persist any
// mutation back through the Store to avoid divergence from durable state.
type Collections struct {
	Decks   map[string]*domain.Deck
	Cards   map[string]*domain.Card
	Session *domain.Session
}

// Load rebuilds the in-memory collections from durable state.
func (s *Store) Load(ctx context.Context) (*Collections, error) {
	decks, err := s.GetAllDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load decks: %w", err)
	}
	cards, err := s.GetAllCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	sessions, err := s.GetSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	cols := &Collections{
		Decks: make(map[string]*domain.Deck, len(decks)),
		Cards: make(map[string]*domain.Card, len(cards)),
	}
	for _, d := range decks {
		cols.Decks[d.ID] = d
	}
	for _, c := range cards {
		cols.Cards[c.ID] = c
	}
	if len(sessions) > 0 {
		// A reload resumes the most recently updated session.
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		})
		cols.Session = sessions[0]
	}
	return cols, nil
}

// CardsByDeck returns the deck's cards in stable id order.
func (c *Collections) CardsByDeck(deckID string) []*domain.Card {
	var out []*domain.Card
	for _, card := range c.Cards {
		if card.DeckID == deckID {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Children returns the live (non-suspended) sub-cards of a cloze parent,
// keyed by blank index.
func (c *Collections) Children(parentID string) map[int]*domain.Card {
	out := make(map[int]*domain.Card)
	for _, card := range c.Cards {
		if card.ParentCard == parentID && !card.Suspended {
			out[card.ClozeIndex] = card
		}
	}
	return out
}

// ChainSiblings returns every card sharing the given dynamic-context root.
func (c *Collections) ChainSiblings(rootID string) []*domain.Card {
	var out []*domain.Card
	for _, card := range c.Cards {
		if card.DyRootCard == rootID {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
