package domain

import (
	"fmt"
	"time"
)

// Algorithm selects which scheduler owns a deck's due-date math.
type Algorithm string

const (
	AlgorithmLeveled Algorithm = "leveled"
	AlgorithmMemory  Algorithm = "memory-model"
)

// IsValid reports whether a is a known algorithm.
func (a Algorithm) IsValid() bool {
	return a == AlgorithmLeveled || a == AlgorithmMemory
}

// OrderMode controls how a deck's cards are ordered within a study queue.
type OrderMode string

const (
	OrderShuffle  OrderMode = "shuffle"
	OrderCreated  OrderMode = "created"
	OrderExplicit OrderMode = "explicit"
)

// SchedulingConfig is the per-deck scheduling configuration. Validation tags
// are enforced when a deck arrives from the remote store; a config that fails
// validation is replaced with Defaults and the deck is flagged.
type SchedulingConfig struct {
	LearningSteps      []time.Duration `json:"learningSteps" validate:"dive,min=1s,max=168h"`
	RelearningSteps    []time.Duration `json:"relearningSteps" validate:"dive,min=1s,max=168h"`
	GraduatingInterval int             `json:"graduatingInterval" validate:"min=1,max=365"` // days
	EasyInterval       int             `json:"easyInterval" validate:"min=1,max=365"`       // days
	EasyDays           []time.Weekday  `json:"easyDays" validate:"max=6,dive,min=0,max=6"`  // days of week to avoid
	Weights            [21]float64     `json:"weights"`
	DesiredRetention   float64         `json:"desiredRetention" validate:"gt=0,lte=1"`
	MaximumInterval    int             `json:"maximumInterval" validate:"min=1,max=36500"` // days
	IntervalMultiplier float64         `json:"intervalMultiplier" validate:"gt=0,lte=10"`
}

// Deck groups cards and carries their scheduling policy.
type Deck struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Algorithm     Algorithm        `json:"algorithm"`
	Config        SchedulingConfig `json:"config"`
	ConfigFlagged bool             `json:"configFlagged,omitempty"` // remote config failed validation, defaults substituted
	Order         OrderMode        `json:"order"`
	NewPerDay     int              `json:"newPerDay"`
	ReviewsPerDay int              `json:"reviewsPerDay"`
	ReversePrompt bool             `json:"reversePrompt"`
	ChainedCards  bool             `json:"chainedCards"` // dynamic-context chain generation enabled
	Archived      bool             `json:"archived,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	ModifiedAt    time.Time        `json:"modifiedAt"`
}

// Validate checks deck-level invariants that are independent of the
// scheduling config (which the config package validates separately).
func (d *Deck) Validate() error {
	if !d.Algorithm.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlgorithm, d.Algorithm)
	}
	return nil
}

// Clone returns a deep copy of the deck.
func (d Deck) Clone() Deck {
	out := d
	out.Config.LearningSteps = append([]time.Duration(nil), d.Config.LearningSteps...)
	out.Config.RelearningSteps = append([]time.Duration(nil), d.Config.RelearningSteps...)
	out.Config.EasyDays = append([]time.Weekday(nil), d.Config.EasyDays...)
	return out
}
