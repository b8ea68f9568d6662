package achievement

import "testing"

func TestEvaluateStoriesCompleted(t *testing.T) {
	a := Achievement{
		ID:        "bookworm",
		Condition: Condition{Kind: KindStoriesCompleted, Target: 5},
	}

	eval := Evaluate(Stats{StoriesCompleted: 3}, a)
	if eval.Completed {
		t.Fatal("expected not completed at 3/5")
	}
	if !eval.Supported {
		t.Fatal("expected supported condition")
	}
	if eval.Progress != 60 {
		t.Fatalf("expected 60%% progress, got %v", eval.Progress)
	}

	eval = Evaluate(Stats{StoriesCompleted: 5}, a)
	if !eval.Completed {
		t.Fatal("expected completed at 5/5")
	}
}

func TestEvaluateStoriesInGenre(t *testing.T) {
	a := Achievement{
		ID:        "sleuth",
		Condition: Condition{Kind: KindStoriesInGenre, Genre: "mystery", Target: 2},
	}

	stats := Stats{CompletedByGenre: map[string]int{"mystery": 2, "romance": 9}}
	if eval := Evaluate(stats, a); !eval.Completed {
		t.Fatal("expected completed from genre count")
	}

	if eval := Evaluate(Stats{}, a); eval.Completed || eval.Current != 0 {
		t.Fatalf("expected zero progress with nil genre map, got %+v", eval)
	}
}

func TestEvaluateSpecificStory(t *testing.T) {
	a := Achievement{
		ID:        "lighthouse-keeper",
		Condition: Condition{Kind: KindSpecificStory, StoryID: "lighthouse"},
	}

	eval := Evaluate(Stats{CompletedStories: map[string]bool{"lighthouse": true}}, a)
	if !eval.Completed || eval.Target != 1 {
		t.Fatalf("expected 1/1 completion, got %+v", eval)
	}

	if eval := Evaluate(Stats{}, a); eval.Completed {
		t.Fatal("expected not completed without the story")
	}
}

func TestEvaluateCounterKinds(t *testing.T) {
	cases := []struct {
		kind  ConditionKind
		stats Stats
	}{
		{KindReviewsWritten, Stats{ReviewsWritten: 10}},
		{KindTotalPlaytime, Stats{TotalPlaytimeMin: 10}},
		{KindCreditsSpent, Stats{CreditsSpent: 10}},
		{KindLoginStreak, Stats{LoginStreak: 10}},
	}
	for _, tc := range cases {
		a := Achievement{Condition: Condition{Kind: tc.kind, Target: 10}}
		if eval := Evaluate(tc.stats, a); !eval.Completed {
			t.Fatalf("kind %s: expected completed, got %+v", tc.kind, eval)
		}
	}
}

func TestEvaluateUnsupportedKind(t *testing.T) {
	a := Achievement{Condition: Condition{Kind: "all_endings", Target: 3}}

	eval := Evaluate(Stats{StoriesCompleted: 100}, a)
	if eval.Supported {
		t.Fatal("expected unsupported condition kind")
	}
	if eval.Completed {
		t.Fatal("unsupported kinds must never complete")
	}
}

func TestEvaluateProgressClamped(t *testing.T) {
	a := Achievement{Condition: Condition{Kind: KindReviewsWritten, Target: 2}}
	eval := Evaluate(Stats{ReviewsWritten: 9}, a)
	if eval.Progress != 100 {
		t.Fatalf("expected clamped 100%%, got %v", eval.Progress)
	}
}

func TestTotalCapIncrease(t *testing.T) {
	catalog := map[string]Achievement{
		"a": {Rewards: Rewards{MaxCreditIncrease: 2}},
		"b": {Rewards: Rewards{MaxCreditIncrease: 3}},
	}

	if got := TotalCapIncrease(catalog, []string{"a", "b", "missing"}); got != 5 {
		t.Fatalf("expected increase 5, got %d", got)
	}
}
