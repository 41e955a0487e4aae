package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
)

// DefaultWeights are the memory-model default parameter values. They can be
// refitted per user from review logs by the Optimizer.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956, // w[0..3]  initial stability per rating
	6.4133, 0.8334, 3.0194, 0.001, // w[4..7]  difficulty
	1.8722, 0.1666, 0.796, 1.4835, // w[8..11] recall stability
	0.0614, 0.2629, 1.6483, 0.6014, // w[12..15] forget stability
	1.8729, 0.5425, 0.0912, 0.0658, // w[16..19] easy bonus / short-term
	0.1542, // w[20] decay exponent
}

// WeightLowerBounds defines the minimum allowed value for each weight.
var WeightLowerBounds = [21]float64{
	0.001, 0.001, 0.001, 0.001,
	1.0, 0.001, 0.001, 0.001,
	0.0, 0.0, 0.001, 0.001,
	0.001, 0.001, 0.0, 0.0,
	1.0, 0.0, 0.0, 0.0,
	0.1,
}

// WeightUpperBounds defines the maximum allowed value for each weight.
var WeightUpperBounds = [21]float64{
	100.0, 100.0, 100.0, 100.0,
	10.0, 4.0, 4.0, 0.75,
	4.5, 0.8, 3.5, 5.0,
	0.25, 0.9, 4.0, 1.0,
	6.0, 2.0, 2.0, 0.8,
	0.8,
}

// ValidateWeights checks that all 21 weights are within bounds.
func ValidateWeights(w [21]float64) error {
	for i := 0; i < 21; i++ {
		if w[i] < WeightLowerBounds[i] || w[i] > WeightUpperBounds[i] {
			return fmt.Errorf("%w: w[%d] = %f, bounds [%f, %f]",
				domain.ErrInvalidWeights, i, w[i], WeightLowerBounds[i], WeightUpperBounds[i])
		}
	}
	return nil
}

// memAlgo holds precomputed constants derived from the 21 weights.
type memAlgo struct {
	w      [21]float64
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
}

func newMemAlgo(w [21]float64) memAlgo {
	if w == ([21]float64{}) || ValidateWeights(w) != nil {
		w = DefaultWeights
	}
	decay := -w[20]
	return memAlgo{w: w, decay: decay, factor: math.Pow(0.9, 1.0/decay) - 1.0}
}

// retrievability computes R(t, S) = (1 + factor * t / S) ^ decay.
func (a *memAlgo) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+a.factor*elapsedDays/stability, a.decay)
}

// initStability returns the initial stability for the first rating.
func (a *memAlgo) initStability(r domain.Rating) float64 {
	return clampS(a.w[r-1])
}

// initDifficulty returns the initial difficulty for the first rating,
// optionally clamped to [1, 10].
func (a *memAlgo) initDifficulty(r domain.Rating, clamp bool) float64 {
	d := a.w[4] - math.Exp(a.w[5]*float64(r-1)) + 1
	if clamp {
		return clampD(d)
	}
	return d
}

// nextInterval inverts the forgetting curve to hit the desired retention,
// clamped to [1, maxDays].
func (a *memAlgo) nextInterval(stability, desiredRetention float64, maxDays int) int {
	ivl := stability / a.factor * (math.Pow(desiredRetention, 1.0/a.decay) - 1)
	days := int(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	if days > maxDays {
		days = maxDays
	}
	return days
}

// shortTermStability handles a same-day review.
func (a *memAlgo) shortTermStability(stability float64, r domain.Rating) float64 {
	sInc := math.Exp(a.w[17]*(float64(r)-3+a.w[18])) * math.Pow(stability, -a.w[19])
	if r == domain.Good || r == domain.Easy {
		sInc = math.Max(sInc, 1.0)
	}
	return clampS(stability * sInc)
}

// nextDifficulty applies linear damping plus mean reversion toward the
// initial Easy difficulty.
func (a *memAlgo) nextDifficulty(difficulty float64, r domain.Rating) float64 {
	deltaD := -a.w[6] * (float64(r) - 3)
	dPrime := difficulty + (10-difficulty)*deltaD/9
	d0Easy := a.initDifficulty(domain.Easy, false)
	return clampD(a.w[7]*d0Easy + (1-a.w[7])*dPrime)
}

// nextStability dispatches on recall success.
func (a *memAlgo) nextStability(d, s, r float64, rating domain.Rating) float64 {
	if rating == domain.Again {
		return a.nextForgetStability(d, s, r)
	}
	return a.nextRecallStability(d, s, r, rating)
}

func (a *memAlgo) nextRecallStability(d, s, r float64, rating domain.Rating) float64 {
	hardPenalty := 1.0
	if rating == domain.Hard {
		hardPenalty = a.w[15]
	}
	bonus := 1.0
	if rating == domain.Easy {
		bonus = a.w[16]
	}
	return s * (1 + math.Exp(a.w[8])*
		(11-d)*
		math.Pow(s, -a.w[9])*
		(math.Exp((1-r)*a.w[10])-1)*
		hardPenalty*bonus)
}

func (a *memAlgo) nextForgetStability(d, s, r float64) float64 {
	long := a.w[11] *
		math.Pow(d, -a.w[12]) *
		(math.Pow(s+1, a.w[13]) - 1) *
		math.Exp((1-r)*a.w[14])
	short := s / math.Exp(a.w[17]*a.w[18])
	return math.Min(long, short)
}

func clampS(s float64) float64 { return math.Max(s, 0.001) }

func clampD(d float64) float64 { return math.Min(math.Max(d, 1), 10) }

// memoryNext applies the memory-model algorithm: update difficulty and
// stability from the forgetting curve, then run the shared step machine.
// Graduated intervals come from inverting the curve at the deck's target
// retention.
func memoryNext(c *domain.Card, r domain.Rating, cfg *domain.SchedulingConfig, now time.Time) {
	algo := newMemAlgo(cfg.Weights)

	retention := cfg.DesiredRetention
	if retention <= 0 || retention > 1 {
		retention = 0.9
	}
	maxDays := cfg.MaximumInterval
	if maxDays <= 0 {
		maxDays = 36500
	}

	ms := &c.Memory
	if ms.LastReview.IsZero() || ms.Stability == 0 {
		ms.Stability = algo.initStability(r)
		ms.Difficulty = algo.initDifficulty(r, true)
		ms.Retrievability = 1
	} else {
		elapsed := now.Sub(ms.LastReview).Hours() / 24.0
		if elapsed < 1 {
			ms.Retrievability = algo.retrievability(math.Max(elapsed, 0), ms.Stability)
			ms.Stability = algo.shortTermStability(ms.Stability, r)
		} else {
			ret := algo.retrievability(elapsed, ms.Stability)
			ms.Retrievability = ret
			ms.Stability = algo.nextStability(ms.Difficulty, ms.Stability, ret, r)
		}
		ms.Difficulty = algo.nextDifficulty(ms.Difficulty, r)
	}
	ms.LastReview = now

	schedule := func(bool) {
		days := algo.nextInterval(ms.Stability, retention, maxDays)
		ms.Due = now.AddDate(0, 0, days)
	}

	if stepAdvance(c, r, cfg, now, schedule) {
		return
	}

	// Review phase (or steps not configured): the curve owns the interval.
	c.Learning.Phase = domain.PhaseReview
	c.Learning.Due = time.Time{}
	if r == domain.Again {
		c.Learning.Lapses++
	}
	schedule(false)
}

// Retrievability returns the probability of recall for the card at the given
// time, or 0 before the first review.
func Retrievability(c *domain.Card, cfg *domain.SchedulingConfig, now time.Time) float64 {
	if c.Memory.LastReview.IsZero() || c.Memory.Stability == 0 {
		return 0
	}
	algo := newMemAlgo(cfg.Weights)
	elapsed := now.Sub(c.Memory.LastReview).Hours() / 24.0
	if elapsed < 0 {
		elapsed = 0
	}
	return algo.retrievability(elapsed, c.Memory.Stability)
}
