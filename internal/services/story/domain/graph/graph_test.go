package graph

import "testing"

func testStory(t *testing.T) Story {
	t.Helper()
	s, err := NewStory("lighthouse", "The Lighthouse", "mystery", "n1", []Node{
		{
			ID: "n1",
			Segments: []Segment{
				{Text: "The lamp went dark at midnight.", DurationMs: 4000},
				{Text: "Someone has to climb the stairs."},
			},
			Choices: []Choice{
				{ID: "c1", Text: "Climb", Next: "n2", Cost: 1},
				{ID: "c2", Text: "Wait for dawn", Next: "n3", Cost: 2},
			},
		},
		{
			ID:       "n2",
			Segments: []Segment{{Text: "The stairs creak underfoot."}},
			Choices:  []Choice{{ID: "c1", Text: "Open the hatch", Next: "n3", Cost: 1}},
		},
		{
			ID:       "n3",
			Segments: []Segment{{Text: "The light returns."}},
		},
	})
	if err != nil {
		t.Fatalf("new story: %v", err)
	}
	return s
}

func TestNewStoryRejectsDuplicates(t *testing.T) {
	_, err := NewStory("s", "S", "g", "a", []Node{{ID: "a"}, {ID: "a"}})
	if err == nil {
		t.Fatal("expected duplicate node error")
	}
}

func TestIsEndingAndNarrativeText(t *testing.T) {
	s := testStory(t)

	n1, _ := s.Node("n1")
	if n1.IsEnding() {
		t.Fatal("n1 has choices, not an ending")
	}
	if got := n1.NarrativeText(); got != "The lamp went dark at midnight.\nSomeone has to climb the stairs." {
		t.Fatalf("unexpected narrative text %q", got)
	}

	n3, _ := s.Node("n3")
	if !n3.IsEnding() {
		t.Fatal("n3 has no choices, should be an ending")
	}
}

func TestValidateCleanStory(t *testing.T) {
	if issues := testStory(t).Validate(); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestValidateDanglingEdge(t *testing.T) {
	s, err := NewStory("s", "S", "g", "a", []Node{
		{ID: "a", Segments: []Segment{{Text: "x"}}, Choices: []Choice{{ID: "c", Text: "go", Next: "ghost"}}},
	})
	if err != nil {
		t.Fatalf("new story: %v", err)
	}

	issues := s.Validate()
	if !hasIssue(issues, IssueDanglingEdge) {
		t.Fatalf("expected dangling-edge issue, got %v", issues)
	}
	if !hasIssue(issues, IssueNoEnding) {
		t.Fatalf("expected no-ending issue, got %v", issues)
	}
}

func TestValidateUnreachableNode(t *testing.T) {
	s, err := NewStory("s", "S", "g", "a", []Node{
		{ID: "a", Segments: []Segment{{Text: "x"}}},
		{ID: "island", Segments: []Segment{{Text: "y"}}},
	})
	if err != nil {
		t.Fatalf("new story: %v", err)
	}

	issues := s.Validate()
	if !hasIssue(issues, IssueUnreachable) {
		t.Fatalf("expected unreachable-node issue, got %v", issues)
	}
}

func TestValidateMissingStart(t *testing.T) {
	s, err := NewStory("s", "S", "g", "nowhere", []Node{
		{ID: "a", Segments: []Segment{{Text: "x"}}},
	})
	if err != nil {
		t.Fatalf("new story: %v", err)
	}

	if !hasIssue(s.Validate(), IssueMissingStart) {
		t.Fatal("expected missing-start issue")
	}
}

func TestValidateDuplicateChoiceAndNegativeCost(t *testing.T) {
	s, err := NewStory("s", "S", "g", "a", []Node{
		{ID: "a", Segments: []Segment{{Text: "x"}}, Choices: []Choice{
			{ID: "c", Text: "one", Next: "b"},
			{ID: "c", Text: "two", Next: "b", Cost: -1},
		}},
		{ID: "b", Segments: []Segment{{Text: "y"}}},
	})
	if err != nil {
		t.Fatalf("new story: %v", err)
	}

	issues := s.Validate()
	if !hasIssue(issues, IssueDuplicateChoice) {
		t.Fatalf("expected duplicate-choice issue, got %v", issues)
	}
	if !hasIssue(issues, IssueNegativeCost) {
		t.Fatalf("expected negative-cost issue, got %v", issues)
	}
}

func hasIssue(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}
