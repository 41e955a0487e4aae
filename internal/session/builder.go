// Package session builds and runs study sessions: selecting, ordering and
// interleaving due and new cards, and applying rating outcomes.
package session

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tomascarey/cardbox/internal/domain"
	"github.com/tomascarey/cardbox/internal/store"
)

// Builder selects and orders cards for a study session.
type Builder struct {
	store *store.Store
	cols  *store.Collections
	rng   *rand.Rand
}

// NewBuilder creates a Builder. seed of 0 uses the current time.
func NewBuilder(st *store.Store, cols *store.Collections, seed int64) *Builder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Builder{store: st, cols: cols, rng: rand.New(rand.NewSource(seed))}
}

// deckBucket holds one deck's ordered, capped sequence.
type deckBucket struct {
	items []domain.QueueItem
}

// GenerateQueue bucket-sorts eligible cards per deck, applies the deck's
// order mode and daily caps, then randomly interleaves the decks' sequences
// preserving each deck's internal relative order. Reverse-prompt decisions
// are precomputed here so they stay stable for the whole session.
func (b *Builder) GenerateQueue(deckIDs []string, includeNonDue bool, now time.Time) []domain.QueueItem {
	var buckets []deckBucket

	for _, deckID := range deckIDs {
		deck, ok := b.cols.Decks[deckID]
		if !ok {
			continue
		}

		var newCards, reviewCards []*domain.Card
		for _, card := range b.cols.CardsByDeck(deckID) {
			if !card.Schedulable() || card.Leech {
				continue
			}
			if card.Learning.Phase == domain.PhaseNew {
				newCards = append(newCards, card)
				continue
			}
			if includeNonDue || !card.DueAt(deck.Algorithm).After(now) {
				reviewCards = append(reviewCards, card)
			}
		}

		b.order(deck, newCards)
		b.order(deck, reviewCards)

		// New and review cards are capped independently.
		if deck.NewPerDay > 0 && len(newCards) > deck.NewPerDay {
			newCards = newCards[:deck.NewPerDay]
		}
		if deck.ReviewsPerDay > 0 && len(reviewCards) > deck.ReviewsPerDay {
			reviewCards = reviewCards[:deck.ReviewsPerDay]
		}

		var items []domain.QueueItem
		for _, card := range append(reviewCards, newCards...) {
			items = append(items, domain.QueueItem{
				CardID:  card.ID,
				Reverse: b.reverseDecision(deck, card),
			})
		}
		if len(items) > 0 {
			buckets = append(buckets, deckBucket{items: items})
		}
	}

	return b.interleave(buckets)
}

// order sorts one bucket in place per the deck's order mode.
func (b *Builder) order(deck *domain.Deck, cards []*domain.Card) {
	switch deck.Order {
	case domain.OrderShuffle:
		b.rng.Shuffle(len(cards), func(i, j int) {
			cards[i], cards[j] = cards[j], cards[i]
		})
	case domain.OrderExplicit:
		sort.SliceStable(cards, func(i, j int) bool {
			if cards[i].Order != cards[j].Order {
				return cards[i].Order < cards[j].Order
			}
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		})
	default: // OrderCreated
		sort.SliceStable(cards, func(i, j int) bool {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		})
	}
}

// reverseDecision gates the front/back swap on per-deck and per-card-type
// eligibility; cloze cards are never reversed.
func (b *Builder) reverseDecision(deck *domain.Deck, card *domain.Card) bool {
	if !deck.ReversePrompt || card.Type == domain.TypeCloze {
		return false
	}
	return b.rng.Intn(2) == 1
}

// interleave merges deck sequences with weighted random draws proportional
// to each deck's remaining items, so no deck dominates the front of the
// queue while every deck's internal order is preserved.
func (b *Builder) interleave(buckets []deckBucket) []domain.QueueItem {
	total := 0
	for _, bk := range buckets {
		total += len(bk.items)
	}
	out := make([]domain.QueueItem, 0, total)

	for total > 0 {
		n := b.rng.Intn(total)
		for i := range buckets {
			if n >= len(buckets[i].items) {
				n -= len(buckets[i].items)
				continue
			}
			out = append(out, buckets[i].items[0])
			buckets[i].items = buckets[i].items[1:]
			total--
			break
		}
	}
	return out
}

// Start builds a queue and persists a fresh session. A preview session
// never mutates scheduling state when rated.
func (b *Builder) Start(ctx context.Context, deckIDs []string, includeNonDue, preview bool, now time.Time) (*domain.Session, error) {
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Queue:     b.GenerateQueue(deckIDs, includeNonDue, now),
		Preview:   preview,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := b.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	b.cols.Session = sess
	return sess, nil
}

// Discard abandons the session, removing it from durable state.
func (b *Builder) Discard(ctx context.Context, sess *domain.Session) error {
	if b.cols.Session != nil && b.cols.Session.ID == sess.ID {
		b.cols.Session = nil
	}
	return b.store.DeleteSession(ctx, sess.ID)
}
