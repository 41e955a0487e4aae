package scheduler

import (
	"math"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
)

// Ease-factor transition constants, standard to the SM-2 family.
const (
	initialEase  = 2.5
	minimumEase  = 1.3
	againPenalty = 0.2
	hardPenalty  = 0.15
	easyReward   = 0.15
	hardGrowth   = 1.2
	easyBonus    = 1.3
)

// leveledNext applies the step-based algorithm: the shared step machine
// while learning, a classic ease-factor update once graduated or when no
// steps are configured.
func leveledNext(c *domain.Card, r domain.Rating, cfg *domain.SchedulingConfig, now time.Time) {
	if c.Leveled.EaseFactor == 0 {
		c.Leveled.EaseFactor = initialEase
	}

	graduate := func(easy bool) {
		days := cfg.GraduatingInterval
		if easy {
			days = cfg.EasyInterval
		}
		if days < 1 {
			days = 1
		}
		c.Leveled.Interval = days
		c.Leveled.Repetitions++
		c.Leveled.Due = adjustForEasyDays(now.AddDate(0, 0, days), cfg.EasyDays)
	}

	if stepAdvance(c, r, cfg, now, graduate) {
		return
	}

	// No steps govern the card: classic ease-factor scheduling. A new card
	// with zero configured learning steps lands here and goes straight to
	// review, never an undefined learning-state.
	c.Learning.Phase = domain.PhaseReview
	c.Learning.Due = time.Time{}

	ivl := c.Leveled.Interval
	ease := c.Leveled.EaseFactor
	mult := cfg.IntervalMultiplier
	if mult <= 0 {
		mult = 1
	}

	switch r {
	case domain.Again:
		ease -= againPenalty
		ivl = 1
		c.Learning.Lapses++
	case domain.Hard:
		ease -= hardPenalty
		ivl = scale(ivl, hardGrowth*mult)
	case domain.Good:
		ivl = scale(ivl, ease*mult)
		c.Leveled.Repetitions++
	case domain.Easy:
		ease += easyReward
		ivl = scale(ivl, ease*easyBonus*mult)
		c.Leveled.Repetitions++
	}

	if ease < minimumEase {
		ease = minimumEase
	}
	if max := cfg.MaximumInterval; max > 0 && ivl > max {
		ivl = max
	}

	c.Leveled.EaseFactor = ease
	c.Leveled.Interval = ivl
	c.Leveled.Due = adjustForEasyDays(now.AddDate(0, 0, ivl), cfg.EasyDays)
}

// scale multiplies an interval, flooring the result at one day more than a
// plain round would allow so repeated Hard ratings still move forward.
func scale(days int, factor float64) int {
	if days < 1 {
		days = 1
	}
	next := int(math.Round(float64(days) * factor))
	if next <= days {
		next = days + 1
	}
	return next
}
