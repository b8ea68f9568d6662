// Package playback implements the per-user story traversal state machine.
//
// The machine is pure: transitions take a state and a story and return the
// next state. Credit spends and achievement gates are enforced by the
// engine before CommitChoice is called, so a failed gate or spend leaves
// the state untouched with no partial mutation.
package playback

import (
	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/graph"
)

// Phase is the playthrough's current state tag.
type Phase string

const (
	PhasePlaying Phase = "PLAYING"
	PhaseChoice  Phase = "CHOICE"
	PhaseEnded   Phase = "ENDED"
)

// EntryKind tags one history log entry.
type EntryKind string

const (
	EntryNarrative EntryKind = "narrative"
	EntryChoice    EntryKind = "choice"
)

// HistoryEntry is one append-only history log record.
type HistoryEntry struct {
	Kind   EntryKind `json:"kind"`
	Text   string    `json:"text"`
	NodeID string    `json:"node_id,omitempty"`
}

// State is one user's position in a story.
type State struct {
	StoryID      string         `json:"story_id"`
	NodeID       string         `json:"node_id"`
	SegmentIndex int            `json:"segment_index"`
	Phase        Phase          `json:"phase"`
	History      []HistoryEntry `json:"history"`
	// EndingSeen guards the exactly-once completion event.
	EndingSeen bool `json:"ending_seen"`
}

func integrityErr(storyID, nodeID string) error {
	return apperrors.WithMetadata(apperrors.CodeGraphIntegrity, "choice target node does not exist", map[string]string{
		"StoryID": storyID,
		"NodeID":  nodeID,
	})
}

// Begin starts a playthrough at the story's start node.
func Begin(story graph.Story) (State, error) {
	start, ok := story.StartNode()
	if !ok {
		return State{}, integrityErr(story.ID, story.Start)
	}
	state := State{
		StoryID: story.ID,
		NodeID:  start.ID,
		Phase:   PhasePlaying,
		History: []HistoryEntry{},
	}
	state, _ = settle(state, start)
	return state, nil
}

// settle resolves the phase after a segment-index change: segments left to
// play keep PLAYING; an exhausted ending node moves straight to ENDED; an
// exhausted branching node waits in CHOICE. The bool reports whether the
// ending was reached by this transition for the first time.
func settle(state State, node graph.Node) (State, bool) {
	if state.Phase != PhasePlaying || state.SegmentIndex < len(node.Segments) {
		return state, false
	}
	if node.IsEnding() {
		state.Phase = PhaseEnded
		endedNow := !state.EndingSeen
		state.EndingSeen = true
		return state, endedNow
	}
	state.Phase = PhaseChoice
	return state, false
}

// AdvanceSegment moves past the current segment, either because its display
// duration elapsed or because the user skipped it. Skipping affects only
// the segment position, never the data model. Returns the new state and
// whether an ending was reached by this call.
func AdvanceSegment(state State, story graph.Story) (State, bool, error) {
	if state.Phase != PhasePlaying {
		return state, false, nil
	}
	node, ok := story.Node(state.NodeID)
	if !ok {
		return State{}, false, integrityErr(state.StoryID, state.NodeID)
	}
	state.SegmentIndex++
	state, endedNow := settle(state, node)
	return state, endedNow, nil
}

// ChoiceAvailable reports whether the achievement gate admits the choice.
func ChoiceAvailable(choice graph.Choice, hasAchievement func(string) bool) bool {
	if choice.RequiredAchievement == "" {
		return true
	}
	return hasAchievement != nil && hasAchievement(choice.RequiredAchievement)
}

// CommitChoice applies a gated-and-paid choice selection: it appends the
// current node's narrative and the chosen text to the history log, moves to
// the target node, and resolves the next phase. A choice that targets the
// start node restarts the playthrough with a cleared history log.
func CommitChoice(state State, story graph.Story, choice graph.Choice) (State, bool, error) {
	if state.Phase != PhaseChoice {
		return State{}, false, apperrors.New(apperrors.CodePlaybackNoChoice, "playthrough is not waiting on a choice")
	}
	current, ok := story.Node(state.NodeID)
	if !ok {
		return State{}, false, integrityErr(state.StoryID, state.NodeID)
	}
	target, ok := story.Node(choice.Next)
	if !ok {
		return State{}, false, integrityErr(state.StoryID, choice.Next)
	}

	if choice.Next == story.Start {
		restarted, err := Begin(story)
		if err != nil {
			return State{}, false, err
		}
		return restarted, false, nil
	}

	history := make([]HistoryEntry, 0, len(state.History)+2)
	history = append(history, state.History...)
	history = append(history,
		HistoryEntry{Kind: EntryNarrative, Text: current.NarrativeText(), NodeID: current.ID},
		HistoryEntry{Kind: EntryChoice, Text: choice.Text},
	)
	state.History = history
	state.NodeID = target.ID
	state.SegmentIndex = 0
	state.Phase = PhasePlaying

	state, endedNow := settle(state, target)
	return state, endedNow, nil
}

// Replay restarts the current node's segments without touching the history
// log or the ledger. Replaying an ended playthrough is a no-op.
func Replay(state State, story graph.Story) (State, error) {
	if state.Phase == PhaseEnded {
		return state, nil
	}
	node, ok := story.Node(state.NodeID)
	if !ok {
		return State{}, integrityErr(state.StoryID, state.NodeID)
	}
	state.SegmentIndex = 0
	state.Phase = PhasePlaying
	state, _ = settle(state, node)
	return state, nil
}

// Restart resets the playthrough to the start node and clears the history
// log. Unlike Replay it also works from ENDED.
func Restart(story graph.Story) (State, error) {
	return Begin(story)
}
