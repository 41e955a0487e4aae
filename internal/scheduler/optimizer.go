package scheduler

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
)

var (
	// ErrEmptyLogs is returned when no review records are provided.
	ErrEmptyLogs = errors.New("scheduler: no review logs provided")

	// ErrInsufficientData is returned when there are too few cross-day
	// reviews to fit the weights.
	ErrInsufficientData = errors.New("scheduler: insufficient cross-day reviews for optimization")
)

// ReviewRecord is one historical review event, the optimizer's input unit.
type ReviewRecord struct {
	CardID    string
	Rating    domain.Rating
	Timestamp time.Time
}

// OptimizerConfig configures the weight search. Zero values are replaced
// with defaults.
type OptimizerConfig struct {
	Iterations   int     // default 400
	MinReviews   int     // default 100 cross-day reviews
	StepSize     float64 // default 0.05
	Perturbation float64 // default 0.02
	Seed         int64   // default time-based
}

// Optimizer fits the 21 memory-model weights to historical review logs by a
// stochastic approximation search (simultaneous perturbation) minimizing
// log-loss between predicted and observed recall.
type Optimizer struct {
	iterations   int
	minReviews   int
	stepSize     float64
	perturbation float64
	rng          *rand.Rand
}

// NewOptimizer creates an Optimizer with the given config.
func NewOptimizer(cfg OptimizerConfig) *Optimizer {
	o := &Optimizer{
		iterations:   cfg.Iterations,
		minReviews:   cfg.MinReviews,
		stepSize:     cfg.StepSize,
		perturbation: cfg.Perturbation,
	}
	if o.iterations == 0 {
		o.iterations = 400
	}
	if o.minReviews == 0 {
		o.minReviews = 100
	}
	if o.stepSize == 0 {
		o.stepSize = 0.05
	}
	if o.perturbation == 0 {
		o.perturbation = 0.02
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	o.rng = rand.New(rand.NewSource(seed))
	return o
}

// sequence is one card's reviews in chronological order.
type sequence []ReviewRecord

// Fit searches for weights minimizing log-loss over the given logs. It
// starts from DefaultWeights and returns the best weights found. The
// context is checked every iteration; cancelling returns the best-so-far
// along with the context's error so the caller can decide whether to apply.
func (o *Optimizer) Fit(ctx context.Context, logs []ReviewRecord) ([21]float64, error) {
	if len(logs) == 0 {
		return [21]float64{}, ErrEmptyLogs
	}

	seqs, crossDay := buildSequences(logs)
	if crossDay < o.minReviews {
		return DefaultWeights, ErrInsufficientData
	}

	best := DefaultWeights
	bestLoss := logLoss(best, seqs)
	w := best

	for k := 1; k <= o.iterations; k++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}

		// Decaying gain sequences, standard SPSA schedule.
		ak := o.stepSize / math.Pow(float64(k), 0.602)
		ck := o.perturbation / math.Pow(float64(k), 0.101)

		var delta [21]float64
		for i := range delta {
			if o.rng.Intn(2) == 0 {
				delta[i] = 1
			} else {
				delta[i] = -1
			}
		}

		plus, minus := w, w
		for i := range w {
			span := WeightUpperBounds[i] - WeightLowerBounds[i]
			plus[i] = clampWeight(i, w[i]+ck*span*delta[i])
			minus[i] = clampWeight(i, w[i]-ck*span*delta[i])
		}

		gPlus := logLoss(plus, seqs)
		gMinus := logLoss(minus, seqs)

		for i := range w {
			span := WeightUpperBounds[i] - WeightLowerBounds[i]
			grad := (gPlus - gMinus) / (2 * ck * span * delta[i])
			w[i] = clampWeight(i, w[i]-ak*span*grad)
		}

		if loss := logLoss(w, seqs); loss < bestLoss {
			bestLoss = loss
			best = w
		}
	}

	return best, nil
}

// buildSequences groups logs per card in chronological order and counts the
// cross-day reviews usable for fitting.
func buildSequences(logs []ReviewRecord) ([]sequence, int) {
	byCard := make(map[string]sequence)
	for _, l := range logs {
		byCard[l.CardID] = append(byCard[l.CardID], l)
	}

	var seqs []sequence
	crossDay := 0
	for _, seq := range byCard {
		sort.Slice(seq, func(i, j int) bool { return seq[i].Timestamp.Before(seq[j].Timestamp) })
		for i := 1; i < len(seq); i++ {
			if seq[i].Timestamp.Sub(seq[i-1].Timestamp).Hours() >= 24 {
				crossDay++
			}
		}
		seqs = append(seqs, seq)
	}
	return seqs, crossDay
}

// logLoss replays every card's history under the candidate weights and sums
// the binary cross-entropy between predicted retrievability and the observed
// recall outcome at each cross-day review.
func logLoss(w [21]float64, seqs []sequence) float64 {
	algo := newMemAlgo(w)

	const eps = 1e-9
	total := 0.0
	n := 0

	for _, seq := range seqs {
		var stability, difficulty float64
		var last time.Time
		for i, rec := range seq {
			if i == 0 {
				stability = algo.initStability(rec.Rating)
				difficulty = algo.initDifficulty(rec.Rating, true)
				last = rec.Timestamp
				continue
			}
			elapsed := rec.Timestamp.Sub(last).Hours() / 24.0
			if elapsed >= 1 {
				predicted := algo.retrievability(elapsed, stability)
				predicted = math.Min(math.Max(predicted, eps), 1-eps)
				observed := 0.0
				if rec.Rating != domain.Again {
					observed = 1.0
				}
				total += -(observed*math.Log(predicted) + (1-observed)*math.Log(1-predicted))
				n++
				stability = algo.nextStability(difficulty, stability, predicted, rec.Rating)
			} else {
				stability = algo.shortTermStability(stability, rec.Rating)
			}
			difficulty = algo.nextDifficulty(difficulty, rec.Rating)
			last = rec.Timestamp
		}
	}

	if n == 0 {
		return math.Inf(1)
	}
	return total / float64(n)
}

func clampWeight(i int, v float64) float64 {
	return math.Min(math.Max(v, WeightLowerBounds[i]), WeightUpperBounds[i])
}
