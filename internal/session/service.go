package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
	"github.com/tomascarey/cardbox/internal/queue"
	"github.com/tomascarey/cardbox/internal/reconcile"
	"github.com/tomascarey/cardbox/internal/scheduler"
	"github.com/tomascarey/cardbox/internal/store"
)

// ErrSessionDone is returned when rating is attempted on an exhausted
// session.
var ErrSessionDone = errors.New("session: no card at cursor")

// Service applies rating outcomes: scheduling update, durable persistence,
// sync enqueue and derived-record reconciliation, in that order.
type Service struct {
	store *store.Store
	cols  *store.Collections
	queue *queue.Manager
	rec   *reconcile.Reconciler
	log   *slog.Logger
}

// NewService creates a rating service.
func NewService(st *store.Store, cols *store.Collections, q *queue.Manager, rec *reconcile.Reconciler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, cols: cols, queue: q, rec: rec, log: log}
}

// Rate applies a rating to the session's current card and advances the
// session. The scheduling state is persisted before the sync intent is
// queued, so a crash in between loses at most the intent, never the rating.
// If persistence fails the in-memory card is rolled back to its pre-update
// snapshot and the caller should ask the user to retry.
func (s *Service) Rate(ctx context.Context, sess *domain.Session, rating domain.Rating, duration time.Duration) error {
	item, ok := sess.Current()
	if !ok {
		return ErrSessionDone
	}
	card, ok := s.cols.Cards[item.CardID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCard, item.CardID)
	}

	now := time.Now()

	if sess.Preview {
		// Preview sessions advance without touching scheduling.
		sess.Record(card.ID, rating, now)
		return s.store.PutSession(ctx, sess)
	}

	deck, ok := s.cols.Decks[card.DeckID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDeck, card.DeckID)
	}

	snapshot := card.Clone()

	updated, err := scheduler.ComputeNext(*card, rating, deck, now)
	if err != nil {
		return err
	}
	updated.History = append(updated.History, domain.Review{
		Rating:    rating,
		Timestamp: now,
		Duration:  int(duration.Milliseconds()),
	})

	*card = updated
	if err := s.store.PutCard(ctx, card); err != nil {
		// Roll back so memory never diverges from durable state.
		*card = snapshot
		return fmt.Errorf("session: rating not saved, please retry: %w", err)
	}

	sess.Record(card.ID, rating, now)
	if err := s.store.PutSession(ctx, sess); err != nil {
		return err
	}

	if err := s.queue.EnqueueCardUpsert(ctx, card, true); err != nil {
		return err
	}

	if err := s.rec.OnRated(ctx, card, rating); err != nil {
		s.log.Warn("chain reconciliation failed", "card", card.ID, "error", err)
	}
	return nil
}

// Skip advances past the current card without rating it.
func (s *Service) Skip(ctx context.Context, sess *domain.Session) error {
	item, ok := sess.Current()
	if !ok {
		return ErrSessionDone
	}
	sess.Skip(item.CardID, time.Now())
	return s.store.PutSession(ctx, sess)
}
