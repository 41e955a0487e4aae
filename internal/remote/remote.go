// Package remote defines the contract with the hosted document-database
// service and the dynamic-context generation collaborator, plus an HTTP
// implementation of each.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind names a logical record type on the remote store.
type Kind string

const (
	KindDeck Kind = "decks"
	KindCard Kind = "cards"
)

// Record is one remote document.
type Record struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	ModifiedAt time.Time       `json:"modifiedAt"`
	Archived   bool            `json:"archived,omitempty"`
	Hidden     bool            `json:"hidden,omitempty"`
}

// Filter restricts a List call.
type Filter struct {
	ModifiedSince   time.Time // zero means no lower bound
	IncludeArchived bool
}

// Page is one page of a List response.
type Page struct {
	Records    []Record
	NextCursor string
	HasMore    bool
}

// Client is the remote store collaborator. Implementations surface *Error
// values so callers can distinguish retryable failures.
type Client interface {
	List(ctx context.Context, kind Kind, filter Filter, cursor string) (Page, error)
	Create(ctx context.Context, kind Kind, payload json.RawMessage) (string, error)
	Update(ctx context.Context, kind Kind, id string, payload json.RawMessage) error
	Archive(ctx context.Context, kind Kind, id string) error
}

// Error is a structured remote failure with an HTTP-like status.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the failure is transient: 429 or any 5xx.
func (e *Error) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// IsRetryable reports whether err is a transient remote failure. Non-remote
// errors (timeouts, connection resets) are treated as transient too.
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return err != nil
}

// Generated is the generation collaborator's product: one variant card.
type Generated struct {
	Front string `json:"front"`
	Back  string `json:"back"`
	Notes string `json:"notes,omitempty"`
}

// ErrEmptyGeneration marks a generation result with a missing front, a hard
// failure for that job.
var ErrEmptyGeneration = errors.New("remote: generation returned empty front")

// Generator is the dynamic-context generation collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Generated, error)
}
