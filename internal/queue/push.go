package queue

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
	"github.com/tomascarey/cardbox/internal/remote"
	"github.com/tomascarey/cardbox/internal/store"
)

// Squash collapses a queue snapshot before a push: last write wins per
// (type, entity), a delete cancels a pending upsert for the same entity, and
// deck operations are ordered before card operations (a card cannot
// reference a deck that does not exist remotely yet). Order is otherwise
// stable by creation.
func Squash(muts []domain.Mutation) []domain.Mutation {
	type key struct {
		t      domain.MutationType
		entity string
	}
	kept := make(map[key]domain.Mutation)
	order := make(map[key]int)
	pos := 0

	for _, m := range muts {
		k := key{m.Type, m.EntityID}
		if m.Type.Delete() {
			cancel := domain.MutCardUpsert
			if m.Type == domain.MutDeckDelete {
				cancel = domain.MutDeckUpsert
			}
			delete(kept, key{cancel, m.EntityID})
		}
		if _, seen := kept[k]; !seen {
			order[k] = pos
			pos++
		}
		kept[k] = m // later payload supersedes earlier
	}

	out := make([]domain.Mutation, 0, len(kept))
	for _, m := range kept {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := isDeckOp(out[i].Type), isDeckOp(out[j].Type)
		if di != dj {
			return di
		}
		ki := key{out[i].Type, out[i].EntityID}
		kj := key{out[j].Type, out[j].EntityID}
		return order[ki] < order[kj]
	})
	return out
}

func isDeckOp(t domain.MutationType) bool {
	return t == domain.MutDeckUpsert || t == domain.MutDeckDelete
}

// drain is the push phase: squash the queue, execute survivors sequentially
// with fixed pacing, remap temporary ids after creates, and classify
// failures against the retry policy. Returns the number of operations
// applied remotely.
func (m *Manager) drain(ctx context.Context) (int, error) {
	all, err := m.store.ListMutations(ctx)
	if err != nil {
		return 0, err
	}

	var pending []domain.Mutation
	for _, mut := range all {
		if mut.Type.Remote() {
			pending = append(pending, mut)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	squashed := Squash(pending)

	// Superseded entries are gone for good; drop their rows.
	live := make(map[int64]bool, len(squashed))
	for _, mut := range squashed {
		live[mut.ID] = true
	}
	for _, mut := range pending {
		if !live[mut.ID] {
			if err := m.store.RemoveMutation(ctx, mut.ID); err != nil {
				return 0, err
			}
		}
	}

	applied := 0
	failed := false
	for i := range squashed {
		if i > 0 {
			select {
			case <-time.After(m.pacing):
			case <-ctx.Done():
				return applied, ctx.Err()
			}
		}

		mut := squashed[i]
		execErr := m.execute(ctx, &mut, squashed[i+1:])
		if execErr == nil {
			if err := m.store.RemoveMutation(ctx, mut.ID); err != nil {
				return applied, err
			}
			applied++
			continue
		}

		failed = true
		m.recordError(ctx, execErr)

		attempts := mut.Retries + 1
		if m.policy.Exhausted(attempts) {
			// Drop the single operation, not the whole queue.
			m.log.Warn("dropping mutation after repeated failures",
				"type", mut.Type, "entity", mut.EntityID, "attempts", attempts, "error", execErr)
			if err := m.store.RemoveMutation(ctx, mut.ID); err != nil {
				return applied, err
			}
			m.notify(fmt.Sprintf("a change to %s could not be synced and was discarded", mut.EntityID))
			continue
		}

		if err := m.store.UpdateMutationRetries(ctx, mut.ID, attempts); err != nil {
			return applied, err
		}
		if remote.IsRetryable(execErr) {
			m.log.Info("transient sync failure, will retry",
				"type", mut.Type, "entity", mut.EntityID, "attempts", attempts)
			m.SyncSoon(m.policy.Delay(attempts))
		} else {
			m.log.Warn("permanent sync failure",
				"type", mut.Type, "entity", mut.EntityID, "error", execErr)
			m.notify(fmt.Sprintf("syncing %s failed: %v", mut.EntityID, execErr))
		}
	}

	if !failed {
		m.clearError(ctx)
		if err := m.store.DeleteMeta(ctx, store.MetaQueueChanged); err != nil {
			m.log.Warn("failed to clear queue marker", "error", err)
		}
	}
	return applied, nil
}

// execute applies one mutation against the remote store. rest is the tail of
// the current drain, rewritten in place when a create assigns a new id.
func (m *Manager) execute(ctx context.Context, mut *domain.Mutation, rest []domain.Mutation) error {
	switch mut.Type {
	case domain.MutDeckUpsert, domain.MutCardUpsert:
		kind := remote.KindDeck
		if mut.Type == domain.MutCardUpsert {
			kind = remote.KindCard
		}
		if domain.IsTempID(mut.EntityID) {
			newID, err := m.client.Create(ctx, kind, mut.Payload)
			if err != nil {
				return err
			}
			return m.remapID(ctx, mut.EntityID, newID, rest)
		}
		return m.client.Update(ctx, kind, mut.EntityID, mut.Payload)

	case domain.MutDeckDelete, domain.MutCardDelete:
		if domain.IsTempID(mut.EntityID) {
			// Never existed remotely; nothing to archive.
			return nil
		}
		kind := remote.KindDeck
		if mut.Type == domain.MutCardDelete {
			kind = remote.KindCard
		}
		return m.client.Archive(ctx, kind, mut.EntityID)

	case domain.MutBlockAppend:
		return m.client.Update(ctx, remote.KindCard, mut.EntityID, mut.Payload)

	default:
		return fmt.Errorf("queue: unexpected remote mutation type %q", mut.Type)
	}
}

// remapID rewrites every reference to a temporary id after the remote store
// assigned a real one: decks, cards (including parent/child and chain
// edges), the persisted session, and still-queued payloads. Temporary ids
// are minted optimistically at creation time, so this pass is mandatory.
func (m *Manager) remapID(ctx context.Context, old, newID string, rest []domain.Mutation) error {
	if deck, ok := m.cols.Decks[old]; ok {
		delete(m.cols.Decks, old)
		deck.ID = newID
		m.cols.Decks[newID] = deck
		if err := m.store.DeleteDeck(ctx, old); err != nil {
			return err
		}
		if err := m.store.PutDeck(ctx, deck); err != nil {
			return err
		}
	}

	for _, card := range m.cols.Cards {
		changed := false
		if card.ID == old {
			delete(m.cols.Cards, old)
			card.ID = newID
			m.cols.Cards[newID] = card
			if err := m.store.DeleteCard(ctx, old); err != nil {
				return err
			}
			changed = true
		}
		if card.DeckID == old {
			card.DeckID = newID
			changed = true
		}
		if card.ParentCard == old {
			card.ParentCard = newID
			changed = true
		}
		for i, sub := range card.SubCards {
			if sub == old {
				card.SubCards[i] = newID
				changed = true
			}
		}
		if card.DyRootCard == old {
			card.DyRootCard = newID
			changed = true
		}
		if card.DyPrevCard == old {
			card.DyPrevCard = newID
			changed = true
		}
		if card.DyNextCard == old {
			card.DyNextCard = newID
			changed = true
		}
		if changed {
			if err := m.store.PutCard(ctx, card); err != nil {
				return err
			}
		}
	}

	if sess := m.cols.Session; sess != nil {
		changed := false
		for i := range sess.Queue {
			if sess.Queue[i].CardID == old {
				sess.Queue[i].CardID = newID
				changed = true
			}
		}
		for i, id := range sess.Completed {
			if id == old {
				sess.Completed[i] = newID
				changed = true
			}
		}
		for i, id := range sess.Skipped {
			if id == old {
				sess.Skipped[i] = newID
				changed = true
			}
		}
		if changed {
			if err := m.store.PutSession(ctx, sess); err != nil {
				return err
			}
		}
	}

	// Queued payloads reference the old id as a JSON string.
	oldRef := []byte(`"` + old + `"`)
	newRef := []byte(`"` + newID + `"`)
	rewrite := func(mut *domain.Mutation) bool {
		changed := false
		if mut.EntityID == old {
			mut.EntityID = newID
			changed = true
		}
		if bytes.Contains(mut.Payload, oldRef) {
			mut.Payload = bytes.ReplaceAll(mut.Payload, oldRef, newRef)
			changed = true
		}
		return changed
	}

	for i := range rest {
		if rewrite(&rest[i]) {
			if err := m.store.UpdateMutationEntity(ctx, rest[i].ID, rest[i].EntityID, rest[i].Payload); err != nil {
				return err
			}
		}
	}

	// Jobs outside the current drain (generation jobs included) may also
	// hold the old id.
	all, err := m.store.ListMutations(ctx)
	if err != nil {
		return err
	}
	inDrain := make(map[int64]bool, len(rest))
	for _, r := range rest {
		inDrain[r.ID] = true
	}
	for i := range all {
		if inDrain[all[i].ID] {
			continue
		}
		if rewrite(&all[i]) {
			if err := m.store.UpdateMutationEntity(ctx, all[i].ID, all[i].EntityID, all[i].Payload); err != nil {
				return err
			}
		}
	}

	m.log.Info("remapped temporary id", "old", old, "new", newID)
	return nil
}
