package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
)

// maxJobAttempts caps generation-job retries, same cap as remote pushes.
const maxJobAttempts = 5

// OnRated reacts to a review outcome. When the deck enables chained-context
// generation and the rating (and the previous link's rating, if any) was a
// success, a durable generation job is queued so the intent survives going
// offline mid-chain.
func (r *Reconciler) OnRated(ctx context.Context, card *domain.Card, rating domain.Rating) error {
	if !rating.Success() {
		return nil
	}

	anchor := card
	if card.ParentCard != "" {
		parent, ok := r.cols.Cards[card.ParentCard]
		if !ok {
			return nil
		}
		// A cloze parent advances its chain only once all live children
		// have passed.
		if !r.allChildrenPassed(parent) {
			return nil
		}
		anchor = parent
	}

	deck, ok := r.cols.Decks[anchor.DeckID]
	if !ok || !deck.ChainedCards {
		return nil
	}
	if anchor.DyNextCard != "" {
		return nil // chain already extended
	}
	if prevID := anchor.DyPrevCard; prevID != "" {
		prev, ok := r.cols.Cards[prevID]
		if !ok || !lastRating(prev).Success() {
			return nil
		}
	}

	root := anchor.DyRootCard
	if root == "" {
		root = anchor.ID
	}
	payload, err := json.Marshal(domain.GenerationJob{
		PrevCardID: anchor.ID,
		DeckID:     anchor.DeckID,
		RootCardID: root,
	})
	if err != nil {
		return fmt.Errorf("reconcile: encode generation job: %w", err)
	}
	// Keyed by the previous card's id so a duplicate trigger supersedes
	// rather than stacking.
	if err := r.store.RemoveMutationsFor(ctx, anchor.ID, domain.MutGenerationJob); err != nil {
		return err
	}
	if _, err := r.store.AppendMutation(ctx, domain.Mutation{
		Type:      domain.MutGenerationJob,
		EntityID:  anchor.ID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}
	r.log.Info("queued chain generation", "prev", anchor.ID, "root", root)
	return nil
}

// allChildrenPassed reports whether every live sub-card's latest rating was
// a success.
func (r *Reconciler) allChildrenPassed(parent *domain.Card) bool {
	children := r.cols.Children(parent.ID)
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		if !lastRating(child).Success() {
			return false
		}
	}
	return true
}

func lastRating(c *domain.Card) domain.Rating {
	if len(c.History) == 0 {
		return 0
	}
	return c.History[len(c.History)-1].Rating
}

// RunGenerationJobs drains queued generation jobs against the generation
// collaborator. A job is dropped once a next link already exists or once
// the chain context became invalid.
func (r *Reconciler) RunGenerationJobs(ctx context.Context) error {
	muts, err := r.store.ListMutations(ctx)
	if err != nil {
		return err
	}
	for _, mut := range muts {
		if mut.Type != domain.MutGenerationJob {
			continue
		}
		if err := r.runJob(ctx, mut); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) runJob(ctx context.Context, mut domain.Mutation) error {
	var job domain.GenerationJob
	if err := json.Unmarshal(mut.Payload, &job); err != nil {
		r.log.Warn("dropping undecodable generation job", "id", mut.ID, "error", err)
		return r.store.RemoveMutation(ctx, mut.ID)
	}

	prev, ok := r.cols.Cards[job.PrevCardID]
	deck, deckOK := r.cols.Decks[job.DeckID]
	if !ok || !deckOK || !deck.ChainedCards || prev.DyNextCard != "" {
		// Chain context no longer valid, or already extended.
		return r.store.RemoveMutation(ctx, mut.ID)
	}

	prompt := fmt.Sprintf(
		"The learner has mastered this card.\nFront: %s\nBack: %s\nWrite the next, slightly harder variant that builds on it.",
		prev.Front, prev.Back)

	gen, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		attempts := mut.Retries + 1
		if attempts >= maxJobAttempts {
			r.log.Warn("dropping generation job after repeated failures",
				"prev", job.PrevCardID, "attempts", attempts, "error", err)
			return r.store.RemoveMutation(ctx, mut.ID)
		}
		r.log.Info("generation failed, will retry", "prev", job.PrevCardID, "attempts", attempts, "error", err)
		return r.store.UpdateMutationRetries(ctx, mut.ID, attempts)
	}

	now := time.Now()
	next := &domain.Card{
		ID:         domain.NewTempID(),
		DeckID:     job.DeckID,
		Type:       domain.TypeFrontBack,
		Front:      gen.Front,
		Back:       gen.Back,
		Tags:       append([]domain.Tag(nil), prev.Tags...),
		DyRootCard: job.RootCardID,
		DyPrevCard: prev.ID,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	prev.DyNextCard = next.ID
	if prev.DyRootCard == "" && prev.ID == job.RootCardID {
		prev.DyRootCard = prev.ID
	}

	r.cols.Cards[next.ID] = next
	if err := r.store.PutCard(ctx, next); err != nil {
		return err
	}
	if err := r.store.PutCard(ctx, prev); err != nil {
		return err
	}
	if err := r.queue.EnqueueCardUpsert(ctx, next, false); err != nil {
		return err
	}
	if err := r.queue.EnqueueCardUpsert(ctx, prev, false); err != nil {
		return err
	}

	// Retire every other variant sharing the root; only the newest link
	// stays live.
	for _, sibling := range r.cols.ChainSiblings(job.RootCardID) {
		if sibling.ID == next.ID || sibling.Suspended {
			continue
		}
		sibling.Suspended = true
		sibling.ModifiedAt = now
		if err := r.store.PutCard(ctx, sibling); err != nil {
			return err
		}
		if err := r.queue.EnqueueCardUpsert(ctx, sibling, false); err != nil {
			return err
		}
	}

	r.log.Info("chain extended", "prev", prev.ID, "next", next.ID, "root", job.RootCardID)
	return r.store.RemoveMutation(ctx, mut.ID)
}
