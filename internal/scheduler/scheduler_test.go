package scheduler

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
)

var t0 = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC) // a Monday

func leveledDeck() *domain.Deck {
	return &domain.Deck{
		ID:        "deck-1",
		Name:      "Biology",
		Algorithm: domain.AlgorithmLeveled,
		Config: domain.SchedulingConfig{
			LearningSteps:      []time.Duration{time.Minute, 10 * time.Minute},
			RelearningSteps:    []time.Duration{10 * time.Minute},
			GraduatingInterval: 1,
			EasyInterval:       4,
			DesiredRetention:   0.9,
			MaximumInterval:    36500,
			IntervalMultiplier: 1,
		},
	}
}

func memoryDeck() *domain.Deck {
	d := leveledDeck()
	d.Algorithm = domain.AlgorithmMemory
	d.Config.Weights = DefaultWeights
	return d
}

func newCard() domain.Card {
	return domain.Card{
		ID:     "card-1",
		DeckID: "deck-1",
		Type:   domain.TypeFrontBack,
		Front:  "mitochondria",
		Back:   "powerhouse of the cell",
	}
}

func rate(t *testing.T, c domain.Card, r domain.Rating, deck *domain.Deck, now time.Time) domain.Card {
	t.Helper()
	out, err := ComputeNext(c, r, deck, now)
	if err != nil {
		t.Fatalf("ComputeNext(%v): %v", r, err)
	}
	return out
}

func TestInvalidRating(t *testing.T) {
	_, err := ComputeNext(newCard(), domain.Rating(0), leveledDeck(), t0)
	if !errors.Is(err, domain.ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	_, err = ComputeNext(newCard(), domain.Rating(5), leveledDeck(), t0)
	if !errors.Is(err, domain.ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
}

func TestComputeNextDoesNotMutateInput(t *testing.T) {
	in := newCard()
	_ = rate(t, in, domain.Good, leveledDeck(), t0)
	if in.Learning.Phase != domain.PhaseNew || !in.ModifiedAt.IsZero() {
		t.Fatalf("input card was mutated: %+v", in.Learning)
	}
}

func TestNewCardAgainEntersLearning(t *testing.T) {
	c := rate(t, newCard(), domain.Again, leveledDeck(), t0)
	if c.Learning.Phase != domain.PhaseLearning {
		t.Fatalf("phase = %v, want learning", c.Learning.Phase)
	}
	if c.Learning.Step != 0 {
		t.Fatalf("step = %d, want 0", c.Learning.Step)
	}
	if c.Learning.Lapses != 0 {
		t.Fatalf("first rating is not a lapse, got %d", c.Learning.Lapses)
	}
	if got, want := c.Learning.Due, t0.Add(time.Minute); !got.Equal(want) {
		t.Fatalf("due = %v, want %v", got, want)
	}
}

func TestNewCardHardHoldsFirstStep(t *testing.T) {
	c := rate(t, newCard(), domain.Hard, leveledDeck(), t0)
	if c.Learning.Phase != domain.PhaseLearning || c.Learning.Step != 0 {
		t.Fatalf("state = %+v, want learning step 0", c.Learning)
	}
	if got, want := c.Learning.Due, t0.Add(time.Minute); !got.Equal(want) {
		t.Fatalf("due = %v, want %v", got, want)
	}
}

func TestNewCardGoodConsumesFirstStep(t *testing.T) {
	c := rate(t, newCard(), domain.Good, leveledDeck(), t0)
	if c.Learning.Phase != domain.PhaseLearning {
		t.Fatalf("phase = %v, want learning", c.Learning.Phase)
	}
	if c.Learning.Step != 1 {
		t.Fatalf("step = %d, want 1", c.Learning.Step)
	}
	if got, want := c.Learning.Due, t0.Add(10*time.Minute); !got.Equal(want) {
		t.Fatalf("due = %v, want %v", got, want)
	}
}

// New card, learning steps [1m, 10m], graduating interval 1 day: good, good
// lands the card in review due one day out.
func TestGraduationScenario(t *testing.T) {
	deck := leveledDeck()
	c := rate(t, newCard(), domain.Good, deck, t0)
	c = rate(t, c, domain.Good, deck, t0.Add(10*time.Minute))

	if c.Learning.Phase != domain.PhaseReview {
		t.Fatalf("phase = %v, want review", c.Learning.Phase)
	}
	if c.Leveled.Interval != 1 {
		t.Fatalf("interval = %d, want 1", c.Leveled.Interval)
	}
	want := t0.Add(10 * time.Minute).AddDate(0, 0, 1)
	if !c.Leveled.Due.Equal(want) {
		t.Fatalf("due = %v, want %v", c.Leveled.Due, want)
	}
	if !c.Learning.Due.IsZero() {
		t.Fatalf("learning due should clear on graduation, got %v", c.Learning.Due)
	}
}

func TestNewCardEasyGraduatesImmediately(t *testing.T) {
	c := rate(t, newCard(), domain.Easy, leveledDeck(), t0)
	if c.Learning.Phase != domain.PhaseReview {
		t.Fatalf("phase = %v, want review", c.Learning.Phase)
	}
	if c.Leveled.Interval != 4 {
		t.Fatalf("interval = %d, want easy interval 4", c.Leveled.Interval)
	}
}

func TestLearningAgainResetsToFirstStep(t *testing.T) {
	deck := leveledDeck()
	c := rate(t, newCard(), domain.Good, deck, t0) // step 1
	c = rate(t, c, domain.Again, deck, t0.Add(10*time.Minute))

	if c.Learning.Step != 0 {
		t.Fatalf("step = %d, want 0", c.Learning.Step)
	}
	if c.Learning.Lapses != 1 {
		t.Fatalf("lapses = %d, want 1", c.Learning.Lapses)
	}
	if c.Learning.Phase != domain.PhaseLearning {
		t.Fatalf("phase = %v, want learning", c.Learning.Phase)
	}
}

func TestReviewAgainEntersRelearning(t *testing.T) {
	deck := leveledDeck()
	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Leveled = domain.LeveledState{EaseFactor: 2.5, Interval: 10, Repetitions: 3, Due: t0}

	c = rate(t, c, domain.Again, deck, t0)
	if c.Learning.Phase != domain.PhaseRelearning {
		t.Fatalf("phase = %v, want relearning", c.Learning.Phase)
	}
	if c.Learning.Step != 0 || c.Learning.Lapses != 1 {
		t.Fatalf("state = %+v, want step 0 lapses 1", c.Learning)
	}
	if got, want := c.Learning.Due, t0.Add(10*time.Minute); !got.Equal(want) {
		t.Fatalf("due = %v, want %v", got, want)
	}
}

func TestReviewAgainNoRelearningStepsStaysReview(t *testing.T) {
	deck := leveledDeck()
	deck.Config.RelearningSteps = nil
	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Leveled = domain.LeveledState{EaseFactor: 2.5, Interval: 10, Due: t0}

	c = rate(t, c, domain.Again, deck, t0)
	if c.Learning.Phase != domain.PhaseReview {
		t.Fatalf("phase = %v, want review", c.Learning.Phase)
	}
	if c.Leveled.Interval != 1 {
		t.Fatalf("interval = %d, want reset to 1", c.Leveled.Interval)
	}
	if c.Learning.Lapses != 1 {
		t.Fatalf("lapses = %d, want 1", c.Learning.Lapses)
	}
}

// A new card in a deck with no learning steps goes straight to the review
// phase rather than an undefined learning-state.
func TestZeroLearningStepsBoundary(t *testing.T) {
	deck := leveledDeck()
	deck.Config.LearningSteps = nil

	c := rate(t, newCard(), domain.Again, deck, t0)
	if c.Learning.Phase != domain.PhaseReview {
		t.Fatalf("phase = %v, want review", c.Learning.Phase)
	}
	if c.Leveled.Interval != 1 {
		t.Fatalf("interval = %d, want 1", c.Leveled.Interval)
	}
}

func TestStepsRemovedMidFlightGraduates(t *testing.T) {
	deck := leveledDeck()
	c := rate(t, newCard(), domain.Again, deck, t0) // learning step 0
	deck.Config.LearningSteps = nil

	c = rate(t, c, domain.Good, deck, t0.Add(time.Minute))
	if c.Learning.Phase != domain.PhaseReview {
		t.Fatalf("phase = %v, want review", c.Learning.Phase)
	}
	if c.Leveled.Interval != 1 {
		t.Fatalf("interval = %d, want graduating interval 1", c.Leveled.Interval)
	}
}

func TestEaseFactorFloor(t *testing.T) {
	deck := leveledDeck()
	deck.Config.RelearningSteps = nil
	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Leveled = domain.LeveledState{EaseFactor: 1.35, Interval: 5}

	c = rate(t, c, domain.Again, deck, t0)
	if c.Leveled.EaseFactor != minimumEase {
		t.Fatalf("ease = %v, want floor %v", c.Leveled.EaseFactor, minimumEase)
	}
}

func TestHardAlwaysGrowsInterval(t *testing.T) {
	deck := leveledDeck()
	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Leveled = domain.LeveledState{EaseFactor: 2.5, Interval: 1}

	c = rate(t, c, domain.Hard, deck, t0)
	if c.Leveled.Interval <= 1 {
		t.Fatalf("interval = %d, want > 1", c.Leveled.Interval)
	}
}

func TestMaximumIntervalCap(t *testing.T) {
	deck := leveledDeck()
	deck.Config.MaximumInterval = 30
	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Leveled = domain.LeveledState{EaseFactor: 2.5, Interval: 20}

	c = rate(t, c, domain.Easy, deck, t0)
	if c.Leveled.Interval != 30 {
		t.Fatalf("interval = %d, want capped at 30", c.Leveled.Interval)
	}
}

// After any rating, a card whose lapse count reaches the threshold is both
// flagged as a leech and suspended, regardless of algorithm.
func TestLeechPostCondition(t *testing.T) {
	for _, deck := range []*domain.Deck{leveledDeck(), memoryDeck()} {
		c := newCard()
		c.Learning.Phase = domain.PhaseLearning
		c.Learning.Lapses = LeechThreshold - 1
		c.Memory = domain.MemoryState{Difficulty: 5, Stability: 2, LastReview: t0.AddDate(0, 0, -3)}

		c = rate(t, c, domain.Again, deck, t0)
		if c.Learning.Lapses != LeechThreshold {
			t.Fatalf("%s: lapses = %d, want %d", deck.Algorithm, c.Learning.Lapses, LeechThreshold)
		}
		if !c.Leech || !c.Suspended {
			t.Fatalf("%s: leech=%v suspended=%v, want both true", deck.Algorithm, c.Leech, c.Suspended)
		}
	}
}

func TestEasyDaysPushDueForward(t *testing.T) {
	deck := leveledDeck()
	deck.Config.LearningSteps = nil
	deck.Config.RelearningSteps = nil
	deck.Config.GraduatingInterval = 1
	deck.Config.EasyDays = []time.Weekday{time.Tuesday, time.Wednesday}

	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Leveled = domain.LeveledState{EaseFactor: 2.5, Interval: 1}

	// t0 is a Monday; again reschedules one day out, landing on Tuesday,
	// which must be skipped past Wednesday too.
	c = rate(t, c, domain.Again, deck, t0)
	if got := c.Leveled.Due.Weekday(); got != time.Thursday {
		t.Fatalf("due weekday = %v, want Thursday", got)
	}
}

func TestEasyDaysEveryDayBounded(t *testing.T) {
	all := []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
	due := adjustForEasyDays(t0, all)
	if due.Before(t0) {
		t.Fatalf("due moved backwards: %v", due)
	}
	if due.Sub(t0) > 15*24*time.Hour {
		t.Fatalf("walk not bounded: %v", due.Sub(t0))
	}
}

func TestPreviewCoversAllRatingsWithoutCommitting(t *testing.T) {
	in := newCard()
	out := Preview(in, leveledDeck(), t0)
	if len(out) != 4 {
		t.Fatalf("preview entries = %d, want 4", len(out))
	}
	if in.Learning.Phase != domain.PhaseNew {
		t.Fatal("preview mutated the input card")
	}
	if out[domain.Easy].Learning.Phase != domain.PhaseReview {
		t.Fatalf("easy preview phase = %v, want review", out[domain.Easy].Learning.Phase)
	}
}

func TestMemoryFirstRatingInitialisesState(t *testing.T) {
	deck := memoryDeck()
	deck.Config.LearningSteps = nil

	c := rate(t, newCard(), domain.Good, deck, t0)
	if got, want := c.Memory.Stability, DefaultWeights[2]; math.Abs(got-want) > 1e-9 {
		t.Fatalf("stability = %v, want w[2] = %v", got, want)
	}
	if c.Memory.Difficulty < 1 || c.Memory.Difficulty > 10 {
		t.Fatalf("difficulty = %v, want within [1, 10]", c.Memory.Difficulty)
	}
	if c.Learning.Phase != domain.PhaseReview {
		t.Fatalf("phase = %v, want review", c.Learning.Phase)
	}
	// At 90% desired retention the interval equals the stability.
	want := t0.AddDate(0, 0, int(math.Round(DefaultWeights[2])))
	if !c.Memory.Due.Equal(want) {
		t.Fatalf("due = %v, want %v", c.Memory.Due, want)
	}
}

func TestMemorySuccessIncreasesStability(t *testing.T) {
	deck := memoryDeck()
	deck.Config.LearningSteps = nil

	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Memory = domain.MemoryState{Difficulty: 5, Stability: 3, LastReview: t0.AddDate(0, 0, -3)}

	out := rate(t, c, domain.Good, deck, t0)
	if out.Memory.Stability <= 3 {
		t.Fatalf("stability = %v, want growth past 3", out.Memory.Stability)
	}
}

func TestMemoryLapseShrinksStability(t *testing.T) {
	deck := memoryDeck()
	deck.Config.LearningSteps = nil

	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Memory = domain.MemoryState{Difficulty: 5, Stability: 20, LastReview: t0.AddDate(0, 0, -20)}

	out := rate(t, c, domain.Again, deck, t0)
	if out.Memory.Stability >= 20 {
		t.Fatalf("stability = %v, want shrink below 20", out.Memory.Stability)
	}
	if out.Learning.Phase != domain.PhaseRelearning {
		t.Fatalf("phase = %v, want relearning", out.Learning.Phase)
	}
	if out.Learning.Lapses != 1 {
		t.Fatalf("lapses = %d, want 1", out.Learning.Lapses)
	}
}

func TestMemorySameDayReviewUsesShortTermStability(t *testing.T) {
	deck := memoryDeck()
	deck.Config.LearningSteps = nil

	c := newCard()
	c.Learning.Phase = domain.PhaseReview
	c.Memory = domain.MemoryState{Difficulty: 5, Stability: 3, LastReview: t0}

	out := rate(t, c, domain.Good, deck, t0.Add(2*time.Hour))
	if out.Memory.Stability < 3 {
		t.Fatalf("same-day good shrank stability: %v", out.Memory.Stability)
	}
}

func TestRetrievabilityDecays(t *testing.T) {
	cfg := &memoryDeck().Config
	c := newCard()
	c.Memory = domain.MemoryState{Difficulty: 5, Stability: 5, LastReview: t0}

	r0 := Retrievability(&c, cfg, t0)
	r7 := Retrievability(&c, cfg, t0.AddDate(0, 0, 7))
	if math.Abs(r0-1) > 1e-9 {
		t.Fatalf("retrievability at review time = %v, want 1", r0)
	}
	if r7 >= r0 {
		t.Fatalf("retrievability did not decay: %v >= %v", r7, r0)
	}
	if got := Retrievability(&domain.Card{}, cfg, t0); got != 0 {
		t.Fatalf("unreviewed card retrievability = %v, want 0", got)
	}
}

func TestValidateWeights(t *testing.T) {
	if err := ValidateWeights(DefaultWeights); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	bad := DefaultWeights
	bad[4] = 0.5 // below lower bound of 1.0
	if !errors.Is(ValidateWeights(bad), domain.ErrInvalidWeights) {
		t.Fatal("expected ErrInvalidWeights for out-of-bounds w[4]")
	}
}

func TestInvalidWeightsFallBackToDefaults(t *testing.T) {
	bad := DefaultWeights
	bad[0] = -1
	algo := newMemAlgo(bad)
	if algo.w != DefaultWeights {
		t.Fatal("invalid weights should fall back to defaults")
	}
}
