package domain

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Phase is the learning stage of a card. It is shared by both scheduling
// algorithms; which algorithm owns the due-date math is a deck-level choice.
type Phase int

const (
	PhaseNew        Phase = iota // Never reviewed.
	PhaseLearning                // In initial learning steps.
	PhaseReview                  // Graduated to the long-term review cycle.
	PhaseRelearning              // Forgotten, back in relearning steps.
)

var (
	phaseNames  = [...]string{PhaseNew: "new", PhaseLearning: "learning", PhaseReview: "review", PhaseRelearning: "relearning"}
	phaseByName = map[string]Phase{
		"new":        PhaseNew,
		"learning":   PhaseLearning,
		"review":     PhaseReview,
		"relearning": PhaseRelearning,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Phase(0)
	_ encoding.TextMarshaler   = Phase(0)
	_ encoding.TextUnmarshaler = (*Phase)(nil)
)

func (p Phase) isValid() bool {
	return p >= PhaseNew && p <= PhaseRelearning
}

// InSteps reports whether the card is working through learning or
// relearning steps, i.e. the learning-state due timestamp governs.
func (p Phase) InSteps() bool {
	return p == PhaseLearning || p == PhaseRelearning
}

// String returns the name of the phase.
func (p Phase) String() string {
	if p.isValid() {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.isValid() {
		return nil, fmt.Errorf("domain: invalid phase: %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	v, ok := phaseByName[string(text)]
	if !ok {
		return fmt.Errorf("domain: invalid phase: %q", text)
	}
	*p = v
	return nil
}

// MarshalJSON implements json.Marshaler. Phase serializes as a JSON string.
func (p Phase) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("domain: invalid phase: %s", data)
	}
	return p.UnmarshalText([]byte(s))
}
