// Package reconcile keeps derived records consistent with their mutable
// parents: cloze sub-cards tracking the blanks present in the parent text,
// and dynamic-context chains of generated variant cards.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
	"github.com/tomascarey/cardbox/internal/queue"
	"github.com/tomascarey/cardbox/internal/remote"
	"github.com/tomascarey/cardbox/internal/store"
)

// clozeRe matches numbered blank markers of the form {{c1::answer}}.
var clozeRe = regexp.MustCompile(`\{\{c(\d+)::([^{}]*)\}\}`)

// orphanFlag marks a sub-card whose blank disappeared from the parent.
const orphanFlag = "orphaned"

// BlankIndices returns the sorted distinct blank indices present in a cloze
// text.
func BlankIndices(text string) []int {
	seen := make(map[int]bool)
	for _, m := range clozeRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[n] = true
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// RenderCloze renders the parent text for one blank index: the matching
// blanks become an ellipsis and every other blank shows its answer.
// The second return value is the concatenated hidden answer text.
func RenderCloze(text string, index int) (front, back string) {
	front = clozeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := clozeRe.FindStringSubmatch(m)
		n, _ := strconv.Atoi(sub[1])
		if n == index {
			return "[...]"
		}
		return sub[2]
	})
	var answers []string
	for _, m := range clozeRe.FindAllStringSubmatch(text, -1) {
		n, _ := strconv.Atoi(m[1])
		if n == index {
			answers = append(answers, m[2])
		}
	}
	for i, a := range answers {
		if i > 0 {
			back += ", "
		}
		back += a
	}
	return front, back
}

// Reconciler derives and retires child records without manual bookkeeping.
type Reconciler struct {
	store *store.Store
	cols  *store.Collections
	queue *queue.Manager
	gen   remote.Generator
	log   *slog.Logger
}

// New creates a Reconciler.
func New(st *store.Store, cols *store.Collections, q *queue.Manager, gen remote.Generator, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: st, cols: cols, queue: q, gen: gen, log: log}
}

// ReconcileCloze brings a cloze parent's sub-cards in line with the blanks
// currently present in its text: missing indices gain a child, removed
// indices have their child suspended (never deleted, history is preserved),
// and children whose rendered text changed are regenerated. Returns the
// number of card writes performed; a repeat run with no intervening parent
// edit performs zero.
func (r *Reconciler) ReconcileCloze(ctx context.Context, parent *domain.Card) (int, error) {
	if !parent.IsClozeParent() {
		return 0, nil
	}
	// Short-circuit when the parent has not changed since the last pass.
	if !parent.LastReconciled.IsZero() && !parent.ModifiedAt.After(parent.LastReconciled) {
		return 0, nil
	}

	now := time.Now()
	indices := BlankIndices(parent.Front)
	present := make(map[int]bool, len(indices))
	for _, n := range indices {
		present[n] = true
	}

	writes := 0
	persist := func(c *domain.Card) error {
		c.ModifiedAt = now
		if err := r.store.PutCard(ctx, c); err != nil {
			return err
		}
		if err := r.queue.EnqueueCardUpsert(ctx, c, false); err != nil {
			return err
		}
		writes++
		return nil
	}

	children := r.cols.Children(parent.ID)

	// Impossible indices on existing children are never raised to the
	// user; reset to a safe default and re-queue.
	for idx, child := range children {
		if idx < 1 {
			r.log.Warn("sub-card with impossible cloze index, self-healing",
				"card", child.ID, "index", idx)
			delete(children, idx)
			child.ClozeIndex = 1
			children[1] = child
			if err := persist(child); err != nil {
				return writes, err
			}
		}
	}

	// Missing indices get a new child, inheriting tags and order and
	// pointing at the parent's stable id.
	for _, idx := range indices {
		if _, ok := children[idx]; ok {
			continue
		}
		front, back := RenderCloze(parent.Front, idx)
		child := &domain.Card{
			ID:         domain.NewTempID(),
			DeckID:     parent.DeckID,
			Type:       domain.TypeCloze,
			Front:      front,
			Back:       back,
			Tags:       append([]domain.Tag(nil), parent.Tags...),
			Order:      parent.Order,
			ParentCard: parent.ID,
			ClozeIndex: idx,
			CreatedAt:  now,
		}
		r.cols.Cards[child.ID] = child
		parent.SubCards = append(parent.SubCards, child.ID)
		if err := persist(child); err != nil {
			return writes, err
		}
	}

	// Indices no longer present: suspend and flag, preserving history.
	for idx, child := range children {
		if present[idx] {
			continue
		}
		child.Suspended = true
		child.Flag = orphanFlag
		if err := persist(child); err != nil {
			return writes, err
		}
	}

	// Children whose rendered text would differ after a parent edit are
	// regenerated and re-queued.
	for idx, child := range children {
		if !present[idx] {
			continue
		}
		front, back := RenderCloze(parent.Front, idx)
		if child.Front != front || child.Back != back {
			child.Front = front
			child.Back = back
			if err := persist(child); err != nil {
				return writes, err
			}
		}
	}

	parent.LastReconciled = now
	parent.ModifiedAt = now
	if err := r.store.PutCard(ctx, parent); err != nil {
		return writes, fmt.Errorf("reconcile: persist parent %s: %w", parent.ID, err)
	}
	if writes > 0 {
		// The parent's sub-card links changed; the remote copy needs them.
		if err := r.queue.EnqueueCardUpsert(ctx, parent, false); err != nil {
			return writes, err
		}
	}
	return writes, nil
}

// ReconcileAll runs the cloze pass over every parent, used after a full
// pull.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	for _, card := range r.cols.Cards {
		if !card.IsClozeParent() {
			continue
		}
		if _, err := r.ReconcileCloze(ctx, card); err != nil {
			return err
		}
	}
	return nil
}
