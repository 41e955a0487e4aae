package domain

import "time"

// CardType distinguishes plain front/back cards from cloze cards. A cloze
// card with a non-empty ParentCard is a derived sub-card for one blank.
type CardType string

const (
	TypeFrontBack CardType = "front-back"
	TypeCloze     CardType = "cloze"
)

// Tag is a user label with a display color.
type Tag struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Review records a single review event for a card. History is append-only.
type Review struct {
	Rating    Rating    `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
	Duration  int       `json:"duration,omitempty"` // milliseconds
}

// LeveledState is the step-based algorithm's per-card state.
type LeveledState struct {
	EaseFactor  float64   `json:"easeFactor"`
	Interval    int       `json:"interval"` // days
	Repetitions int       `json:"repetitions"`
	Due         time.Time `json:"due"`
}

// MemoryState is the memory-model algorithm's per-card state.
type MemoryState struct {
	Difficulty     float64   `json:"difficulty"`
	Stability      float64   `json:"stability"`
	Retrievability float64   `json:"retrievability"`
	Due            time.Time `json:"due"`
	LastReview     time.Time `json:"lastReview"`
}

// LearningState is the shared step-machine sub-state. Due is meaningful only
// while Phase is learning or relearning; otherwise the active algorithm's
// state block carries the due date.
type LearningState struct {
	Phase  Phase     `json:"phase"`
	Step   int       `json:"step"`
	Due    time.Time `json:"due,omitzero"`
	Lapses int       `json:"lapses"`
}

// Card is a single study item. Both algorithm state blocks are always
// present; the deck's Algorithm selects which one governs.
type Card struct {
	ID     string   `json:"id"`
	DeckID string   `json:"deckId"`
	Type   CardType `json:"type"`
	Front  string   `json:"front"`
	Back   string   `json:"back"`
	Tags   []Tag    `json:"tags,omitempty"`

	Marked    bool   `json:"marked,omitempty"`
	Suspended bool   `json:"suspended,omitempty"`
	Leech     bool   `json:"leech,omitempty"`
	Flag      string `json:"flag,omitempty"` // color flag

	Leveled  LeveledState  `json:"leveled"`
	Memory   MemoryState   `json:"memory"`
	Learning LearningState `json:"learning"`

	// Structural links, stored as id edges so persistence and remapping
	// stay flat.
	ParentCard string   `json:"parentCard,omitempty"`
	SubCards   []string `json:"subCards,omitempty"`
	ClozeIndex int      `json:"clozeIndex,omitempty"`

	// Dynamic-context chain.
	DyRootCard string `json:"dyRootCard,omitempty"`
	DyPrevCard string `json:"dyPrevCard,omitempty"`
	DyNextCard string `json:"dyNextCard,omitempty"`

	Order          float64   `json:"order,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt"`
	LastReconciled time.Time `json:"lastReconciled,omitzero"`

	History []Review `json:"history,omitempty"`
}

// DueAt returns the governing due timestamp for the given algorithm. While
// the card is in learning or relearning steps the learning-state due wins.
func (c *Card) DueAt(algo Algorithm) time.Time {
	if c.Learning.Phase.InSteps() {
		return c.Learning.Due
	}
	if algo == AlgorithmMemory {
		return c.Memory.Due
	}
	return c.Leveled.Due
}

// IsClozeParent reports whether the card is a cloze parent. Parents are never
// scheduled directly; their sub-cards are.
func (c *Card) IsClozeParent() bool {
	return c.Type == TypeCloze && c.ParentCard == ""
}

// Schedulable reports whether the card can appear in a study queue.
func (c *Card) Schedulable() bool {
	return !c.Suspended && !c.IsClozeParent()
}

// SetLeech flags the card as a leech. Leeches are always suspended.
func (c *Card) SetLeech() {
	c.Leech = true
	c.Suspended = true
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	out := c
	out.Tags = append([]Tag(nil), c.Tags...)
	out.SubCards = append([]string(nil), c.SubCards...)
	out.History = append([]Review(nil), c.History...)
	return out
}
