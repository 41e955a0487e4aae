// Package scheduler implements the two interchangeable spaced-repetition
// algorithms: a step-based leveled scheduler and a memory-model scheduler
// with continuous difficulty/stability state. All entry points are pure:
// the input card is never mutated.
package scheduler

import (
	"fmt"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
)

// LeechThreshold is the lapse count at which a card is auto-flagged as a
// leech and suspended. Fixed, not deck-configurable.
const LeechThreshold = 8

// ComputeNext applies a rating to a card under the deck's configuration and
// returns the updated card with its new algorithm state and due timestamp.
func ComputeNext(card domain.Card, rating domain.Rating, deck *domain.Deck, now time.Time) (domain.Card, error) {
	if !rating.IsValid() {
		return domain.Card{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}
	c := card.Clone()

	switch deck.Algorithm {
	case domain.AlgorithmMemory:
		memoryNext(&c, rating, &deck.Config, now)
	default:
		leveledNext(&c, rating, &deck.Config, now)
	}

	// Post-condition of every rating, independent of algorithm.
	if c.Learning.Lapses >= LeechThreshold {
		c.SetLeech()
	}
	c.ModifiedAt = now
	return c, nil
}

// Preview returns the result of reviewing the card with each possible
// rating, without committing any of them.
func Preview(card domain.Card, deck *domain.Deck, now time.Time) map[domain.Rating]domain.Card {
	out := make(map[domain.Rating]domain.Card, 4)
	for _, r := range []domain.Rating{domain.Again, domain.Hard, domain.Good, domain.Easy} {
		c, err := ComputeNext(card, r, deck, now)
		if err != nil {
			continue
		}
		out[r] = c
	}
	return out
}

// stepAdvance runs the shared learning-state machine. graduate is invoked
// when the card leaves the steps; it must set the per-algorithm interval and
// due date. Returns false when the card is not governed by steps and the
// caller's review-phase scheduling applies instead.
func stepAdvance(c *domain.Card, r domain.Rating, cfg *domain.SchedulingConfig, now time.Time, graduate func(easy bool)) bool {
	ls := &c.Learning

	leave := func(easy bool) {
		ls.Phase = domain.PhaseReview
		ls.Step = 0
		ls.Due = time.Time{}
		graduate(easy)
	}

	switch ls.Phase {
	case domain.PhaseNew:
		steps := cfg.LearningSteps
		if len(steps) == 0 {
			return false
		}
		ls.Phase = domain.PhaseLearning
		switch r {
		case domain.Again, domain.Hard:
			ls.Step = 0
			ls.Due = now.Add(steps[0])
		case domain.Good:
			// Good consumes the first step on entry.
			if len(steps) >= 2 {
				ls.Step = 1
				ls.Due = now.Add(steps[1])
			} else {
				leave(false)
			}
		case domain.Easy:
			leave(true)
		}
		return true

	case domain.PhaseLearning, domain.PhaseRelearning:
		steps := cfg.LearningSteps
		if ls.Phase == domain.PhaseRelearning {
			steps = cfg.RelearningSteps
		}
		if len(steps) == 0 {
			// Steps were removed while the card was mid-flight.
			leave(false)
			return true
		}
		switch r {
		case domain.Again:
			ls.Step = 0
			ls.Lapses++
			ls.Due = now.Add(steps[0])
		case domain.Hard:
			if ls.Step >= len(steps) {
				ls.Step = len(steps) - 1
			}
			ls.Due = now.Add(steps[ls.Step])
		case domain.Good:
			next := ls.Step + 1
			if next >= len(steps) {
				leave(false)
			} else {
				ls.Step = next
				ls.Due = now.Add(steps[next])
			}
		case domain.Easy:
			leave(true)
		}
		return true

	case domain.PhaseReview:
		if r != domain.Again {
			return false
		}
		if len(cfg.RelearningSteps) == 0 {
			return false
		}
		ls.Phase = domain.PhaseRelearning
		ls.Step = 0
		ls.Lapses++
		ls.Due = now.Add(cfg.RelearningSteps[0])
		return true
	}
	return false
}

// adjustForEasyDays walks a due date forward one day at a time until it no
// longer lands on a configured easy day. Bounded to 14 iterations so a
// config listing every weekday cannot loop forever.
func adjustForEasyDays(due time.Time, easyDays []time.Weekday) time.Time {
	if len(easyDays) == 0 {
		return due
	}
	skip := make(map[time.Weekday]bool, len(easyDays))
	for _, d := range easyDays {
		skip[d] = true
	}
	for i := 0; i < 14 && skip[due.Weekday()]; i++ {
		due = due.AddDate(0, 0, 1)
	}
	return due
}
