package domain

import (
	"encoding/json"
	"time"
)

// MutationType identifies a queued operation.
type MutationType string

const (
	MutDeckUpsert    MutationType = "deck-upsert"
	MutCardUpsert    MutationType = "card-upsert"
	MutDeckDelete    MutationType = "deck-delete"
	MutCardDelete    MutationType = "card-delete"
	MutBlockAppend   MutationType = "block-append"
	MutGenerationJob MutationType = "derived-generation-job"
)

// Upsert reports whether the mutation type is an upsert. At most one queued
// upsert may exist per (entity, type); later ones supersede earlier ones.
func (t MutationType) Upsert() bool {
	return t == MutDeckUpsert || t == MutCardUpsert
}

// Delete reports whether the mutation type is a delete. A delete cancels a
// pending upsert for the same entity.
func (t MutationType) Delete() bool {
	return t == MutDeckDelete || t == MutCardDelete
}

// Remote reports whether the mutation is meant for the remote channel.
// Generation jobs are drained by the reconciler, not pushed.
func (t MutationType) Remote() bool {
	return t != MutGenerationJob
}

// Mutation is one entry in the durable queue. ID is a local autoincrement
// that doubles as creation order.
type Mutation struct {
	ID        int64           `json:"id"`
	Type      MutationType    `json:"type"`
	EntityID  string          `json:"entityId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"createdAt"`
}

// GenerationJob is the durable payload of a MutGenerationJob mutation. It is
// keyed by the previous card in a dynamic-context chain so the intent
// survives a restart while offline.
type GenerationJob struct {
	PrevCardID string `json:"prevCardId"`
	DeckID     string `json:"deckId"`
	RootCardID string `json:"rootCardId"`
}
