package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomascarey/cardbox/internal/domain"
	"github.com/tomascarey/cardbox/internal/scheduler"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultScheduling returns the per-deck scheduling defaults substituted
// when a remote config fails validation.
func DefaultScheduling() domain.SchedulingConfig {
	return domain.SchedulingConfig{
		LearningSteps:      []time.Duration{time.Minute, 10 * time.Minute},
		RelearningSteps:    []time.Duration{10 * time.Minute},
		GraduatingInterval: 1,
		EasyInterval:       4,
		Weights:            scheduler.DefaultWeights,
		DesiredRetention:   0.9,
		MaximumInterval:    36500,
		IntervalMultiplier: 1,
	}
}

// ValidateScheduling checks a deck scheduling config, including the
// memory-model weight bounds.
func ValidateScheduling(cfg *domain.SchedulingConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Weights != ([21]float64{}) {
		if err := scheduler.ValidateWeights(cfg.Weights); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeDeck validates a deck arriving from the remote store. An invalid
// algorithm or scheduling config is never fatal: defaults are substituted
// and the deck is flagged so the UI can surface a non-blocking notice.
// Reports whether a fallback happened.
func NormalizeDeck(d *domain.Deck) bool {
	fell := false
	if !d.Algorithm.IsValid() {
		d.Algorithm = domain.AlgorithmLeveled
		fell = true
	}
	if err := ValidateScheduling(&d.Config); err != nil {
		d.Config = DefaultScheduling()
		fell = true
	}
	if d.Order != domain.OrderShuffle && d.Order != domain.OrderCreated && d.Order != domain.OrderExplicit {
		d.Order = domain.OrderCreated
	}
	if fell {
		d.ConfigFlagged = true
	}
	return fell
}
