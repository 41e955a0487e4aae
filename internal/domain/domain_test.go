package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func TestRatingRoundTrip(t *testing.T) {
	for _, r := range []Rating{Again, Hard, Good, Easy} {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal %v: %v", r, err)
		}
		var back Rating
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != r {
			t.Fatalf("round trip %v -> %s -> %v", r, data, back)
		}
	}
}

func TestRatingRejectsInvalid(t *testing.T) {
	if _, err := json.Marshal(Rating(9)); err == nil {
		t.Fatal("marshal of invalid rating should fail")
	}
	var r Rating
	if err := json.Unmarshal([]byte(`"perfect"`), &r); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("error = %v, want ErrInvalidRating", err)
	}
	if err := json.Unmarshal([]byte(`3`), &r); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("numeric rating error = %v, want ErrInvalidRating", err)
	}
}

func TestRatingSuccess(t *testing.T) {
	if Again.Success() || Hard.Success() {
		t.Fatal("again and hard are failures")
	}
	if !Good.Success() || !Easy.Success() {
		t.Fatal("good and easy are successes")
	}
}

func TestPhaseNames(t *testing.T) {
	if PhaseNew.String() != "new" || PhaseRelearning.String() != "relearning" {
		t.Fatalf("names = %s, %s", PhaseNew, PhaseRelearning)
	}
	if !PhaseLearning.InSteps() || !PhaseRelearning.InSteps() {
		t.Fatal("learning phases must report InSteps")
	}
	if PhaseNew.InSteps() || PhaseReview.InSteps() {
		t.Fatal("new and review are not step-governed")
	}
}

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	if !IsTempID(id) {
		t.Fatalf("minted id %s not recognized as temporary", id)
	}
	if IsTempID("srv-123") || IsTempID("") {
		t.Fatal("remote ids misclassified as temporary")
	}
	if id == NewTempID() {
		t.Fatal("temp ids must be unique")
	}
}

func TestMutationTypeChannels(t *testing.T) {
	if !MutDeckUpsert.Upsert() || !MutCardUpsert.Upsert() {
		t.Fatal("upsert types misclassified")
	}
	if !MutDeckDelete.Delete() || !MutCardDelete.Delete() {
		t.Fatal("delete types misclassified")
	}
	if MutGenerationJob.Remote() {
		t.Fatal("generation jobs are not remote mutations")
	}
	if !MutBlockAppend.Remote() {
		t.Fatal("block appends go to the remote channel")
	}
}

func TestCardDueAt(t *testing.T) {
	c := Card{
		Leveled:  LeveledState{Due: t0.AddDate(0, 0, 3)},
		Memory:   MemoryState{Due: t0.AddDate(0, 0, 5)},
		Learning: LearningState{Phase: PhaseLearning, Due: t0.Add(10 * time.Minute)},
	}
	if got := c.DueAt(AlgorithmLeveled); !got.Equal(t0.Add(10 * time.Minute)) {
		t.Fatalf("in-steps due = %v, want the learning due", got)
	}

	c.Learning.Phase = PhaseReview
	if got := c.DueAt(AlgorithmLeveled); !got.Equal(t0.AddDate(0, 0, 3)) {
		t.Fatalf("leveled due = %v", got)
	}
	if got := c.DueAt(AlgorithmMemory); !got.Equal(t0.AddDate(0, 0, 5)) {
		t.Fatalf("memory due = %v", got)
	}
}

func TestCardSchedulable(t *testing.T) {
	parent := Card{Type: TypeCloze}
	if parent.Schedulable() {
		t.Fatal("cloze parents are never scheduled directly")
	}
	sub := Card{Type: TypeCloze, ParentCard: "p1"}
	if !sub.Schedulable() {
		t.Fatal("cloze sub-cards are schedulable")
	}
	suspended := Card{Type: TypeFrontBack, Suspended: true}
	if suspended.Schedulable() {
		t.Fatal("suspended cards are not schedulable")
	}
}

func TestCardCloneIsDeep(t *testing.T) {
	orig := Card{
		ID:       "c1",
		Tags:     []Tag{{Name: "a"}},
		SubCards: []string{"s1"},
		History:  []Review{{Rating: Good, Timestamp: t0}},
	}
	clone := orig.Clone()
	clone.Tags[0].Name = "b"
	clone.SubCards[0] = "s2"
	clone.History[0].Rating = Again

	if orig.Tags[0].Name != "a" || orig.SubCards[0] != "s1" || orig.History[0].Rating != Good {
		t.Fatalf("clone shares backing arrays: %+v", orig)
	}
}

func TestSetLeechSuspends(t *testing.T) {
	var c Card
	c.SetLeech()
	if !c.Leech || !c.Suspended {
		t.Fatalf("leech = %v suspended = %v, want both", c.Leech, c.Suspended)
	}
}

func TestSessionCursor(t *testing.T) {
	s := Session{Queue: []QueueItem{{CardID: "a"}, {CardID: "b"}}}

	item, ok := s.Current()
	if !ok || item.CardID != "a" {
		t.Fatalf("current = %+v, %v", item, ok)
	}

	s.Record("a", Good, t0)
	if s.Counts[Good] != 1 || len(s.Completed) != 1 {
		t.Fatalf("record bookkeeping wrong: %+v", s)
	}

	s.Skip("b", t0)
	if len(s.Skipped) != 1 {
		t.Fatalf("skip bookkeeping wrong: %+v", s)
	}

	if _, ok := s.Current(); ok {
		t.Fatal("exhausted session still yields a card")
	}
	if !s.Done() {
		t.Fatal("session should be done")
	}
}

func TestLearningStateOmittedWhenIdle(t *testing.T) {
	data, err := json.Marshal(Card{ID: "c1", Learning: LearningState{Phase: PhaseReview}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Card
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Learning.Phase != PhaseReview || !back.Learning.Due.IsZero() {
		t.Fatalf("learning state = %+v", back.Learning)
	}
}

func TestDeckValidate(t *testing.T) {
	d := Deck{Algorithm: "sm17"}
	if err := d.Validate(); !errors.Is(err, ErrInvalidAlgorithm) {
		t.Fatalf("error = %v, want ErrInvalidAlgorithm", err)
	}
	d.Algorithm = AlgorithmMemory
	if err := d.Validate(); err != nil {
		t.Fatalf("valid deck rejected: %v", err)
	}
}

func TestDeckCloneIsDeep(t *testing.T) {
	orig := Deck{Config: SchedulingConfig{LearningSteps: []time.Duration{time.Minute}}}
	clone := orig.Clone()
	clone.Config.LearningSteps[0] = time.Hour
	if orig.Config.LearningSteps[0] != time.Minute {
		t.Fatal("clone shares the steps slice")
	}
}
