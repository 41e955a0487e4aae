// Package queue turns local edits into eventually-applied remote mutations
// without losing or duplicating user data. Push always precedes pull within
// a sync cycle, and only one cycle runs at a time.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
	"github.com/tomascarey/cardbox/internal/remote"
	"github.com/tomascarey/cardbox/internal/store"
)

// Debounce delays for the "sync soon" trigger. Rating-derived operations
// wait longer so rapid reviews batch into one push.
const (
	soonDelay   = 2 * time.Second
	ratingDelay = 30 * time.Second
)

// Options configures a Manager. Zero values get defaults.
type Options struct {
	Policy   RetryPolicy
	Pacing   time.Duration // fixed inter-request delay during a drain
	Cooldown time.Duration // minimum interval between sync cycles
	Notify   func(msg string)
}

// Manager owns the durable mutation queue and drives push/pull against the
// remote collaborator.
type Manager struct {
	store  *store.Store
	cols   *store.Collections
	client remote.Client
	log    *slog.Logger

	policy   RetryPolicy
	pacing   time.Duration
	cooldown time.Duration
	notify   func(string)

	busy atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
}

// NewManager creates a queue manager over the given store and collections.
func NewManager(st *store.Store, cols *store.Collections, client remote.Client, log *slog.Logger, opts Options) *Manager {
	if opts.Policy == (RetryPolicy{}) {
		opts.Policy = DefaultRetryPolicy()
	}
	if opts.Pacing == 0 {
		opts.Pacing = 100 * time.Millisecond
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Notify == nil {
		opts.Notify = func(string) {}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:    st,
		cols:     cols,
		client:   client,
		log:      log,
		policy:   opts.Policy,
		pacing:   opts.Pacing,
		cooldown: opts.Cooldown,
		notify:   opts.Notify,
	}
}

// Enqueue appends a mutation to the durable queue. A pending upsert for the
// same (entity, type) is superseded; a delete cancels a pending upsert for
// the same entity. ratingDerived selects the longer debounce delay.
func (m *Manager) Enqueue(ctx context.Context, t domain.MutationType, entityID string, payload json.RawMessage, ratingDerived bool) error {
	if t.Upsert() {
		if err := m.store.RemoveMutationsFor(ctx, entityID, t); err != nil {
			return err
		}
	}
	if t.Delete() {
		cancel := domain.MutCardUpsert
		if t == domain.MutDeckDelete {
			cancel = domain.MutDeckUpsert
		}
		if err := m.store.RemoveMutationsFor(ctx, entityID, cancel); err != nil {
			return err
		}
	}

	if _, err := m.store.AppendMutation(ctx, domain.Mutation{
		Type:      t,
		EntityID:  entityID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}
	if err := m.store.SetMeta(ctx, store.MetaQueueChanged, "1"); err != nil {
		return err
	}

	delay := soonDelay
	if ratingDerived {
		delay = ratingDelay
	}
	m.SyncSoon(delay)
	return nil
}

// EnqueueCardUpsert marshals and queues a card upsert.
func (m *Manager) EnqueueCardUpsert(ctx context.Context, card *domain.Card, ratingDerived bool) error {
	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("queue: encode card %s: %w", card.ID, err)
	}
	return m.Enqueue(ctx, domain.MutCardUpsert, card.ID, payload, ratingDerived)
}

// EnqueueDeckUpsert marshals and queues a deck upsert.
func (m *Manager) EnqueueDeckUpsert(ctx context.Context, deck *domain.Deck) error {
	payload, err := json.Marshal(deck)
	if err != nil {
		return fmt.Errorf("queue: encode deck %s: %w", deck.ID, err)
	}
	return m.Enqueue(ctx, domain.MutDeckUpsert, deck.ID, payload, false)
}

// ResumeIfDirty schedules a sync when a previous run left mutations queued,
// so edits made just before a crash are not stranded until the next local
// change. The marker is set on enqueue and cleared after a clean drain.
func (m *Manager) ResumeIfDirty(ctx context.Context) error {
	v, err := m.store.GetMeta(ctx, store.MetaQueueChanged)
	if err != nil {
		return err
	}
	if v == "" {
		return nil
	}
	m.log.Info("pending mutations from a previous run, scheduling sync")
	m.SyncSoon(soonDelay)
	return nil
}

// SyncSoon schedules a sync after the given delay, collapsing with any
// already-pending trigger.
func (m *Manager) SyncSoon(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(delay, func() {
		if err := m.Sync(context.Background()); err != nil {
			m.log.Warn("scheduled sync failed", "error", err)
		}
	})
}

// Sync runs one push-then-pull cycle. Overlapping invocations are no-ops:
// the later trigger reschedules itself for after the cooldown instead of
// running concurrently.
func (m *Manager) Sync(ctx context.Context) error {
	if !m.busy.CompareAndSwap(false, true) {
		m.SyncSoon(m.cooldown)
		return nil
	}
	defer m.busy.Store(false)

	pushed, err := m.drain(ctx)
	if err != nil {
		return fmt.Errorf("queue: push: %w", err)
	}

	// Pulling is skipped entirely while local edits remain queued, so
	// possibly-stale remote data never overwrites them.
	remaining, err := m.pendingRemote(ctx)
	if err != nil {
		return err
	}
	if remaining > 0 {
		m.log.Info("skipping pull, queue non-empty", "pending", remaining)
		return nil
	}

	if err := m.pull(ctx); err != nil {
		return fmt.Errorf("queue: pull: %w", err)
	}

	if pushed > 0 {
		m.log.Info("sync cycle complete", "pushed", pushed)
	}
	return nil
}

// pendingRemote counts queued mutations destined for the remote channel.
func (m *Manager) pendingRemote(ctx context.Context) (int, error) {
	muts, err := m.store.ListMutations(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, mut := range muts {
		if mut.Type.Remote() {
			n++
		}
	}
	return n, nil
}

// recordError persists a last-error timestamp and message for diagnostics.
func (m *Manager) recordError(ctx context.Context, err error) {
	msg := fmt.Sprintf("%s %s", time.Now().Format(time.RFC3339), err)
	if serr := m.store.SetMeta(ctx, store.MetaLastError, msg); serr != nil {
		m.log.Warn("failed to record sync error", "error", serr)
	}
}

// clearError removes the diagnostic error record after a clean drain.
func (m *Manager) clearError(ctx context.Context) {
	if err := m.store.DeleteMeta(ctx, store.MetaLastError); err != nil {
		m.log.Warn("failed to clear sync error", "error", err)
	}
}
