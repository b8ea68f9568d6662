package engine

import (
	"context"
	"errors"
	"log"

	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/graph"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/playback"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/audit"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/metrics"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

// PlaybackResult is the post-command snapshot returned to clients.
type PlaybackResult struct {
	State      playback.State
	Node       graph.Node
	Credits    int
	MaxCredits int
	// EndedNow is true when this command reached the ending for the
	// first time in the playthrough.
	EndedNow bool
}

func (e *Engine) playbackResult(state playback.State, story graph.Story, acct account.Account, endedNow bool) (PlaybackResult, error) {
	node, ok := story.Node(state.NodeID)
	if !ok {
		return PlaybackResult{}, apperrors.WithMetadata(apperrors.CodeGraphIntegrity, "current node does not exist", map[string]string{
			"StoryID": story.ID,
			"NodeID":  state.NodeID,
		})
	}
	return PlaybackResult{
		State:      state,
		Node:       node,
		Credits:    acct.Credits,
		MaxCredits: acct.MaxCredits,
		EndedNow:   endedNow,
	}, nil
}

// StartStory resumes the user's saved playthrough for the story, or begins
// a new one at the start node.
func (e *Engine) StartStory(ctx context.Context, userID, storyID string) (PlaybackResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.StartStory")
	defer span.End()

	story, err := e.catalog.Story(storyID)
	if err != nil {
		return PlaybackResult{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return PlaybackResult{}, err
	}

	state, err := e.store.GetPlaythrough(ctx, userID, storyID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return PlaybackResult{}, err
		}
		state, err = playback.Begin(story)
		if err != nil {
			return PlaybackResult{}, err
		}
		if err := e.store.PutPlaythrough(ctx, userID, state); err != nil {
			return PlaybackResult{}, err
		}
	}
	return e.playbackResult(state, story, acct, false)
}

// GetPlaythrough returns the saved playback state without mutating it.
func (e *Engine) GetPlaythrough(ctx context.Context, userID, storyID string) (PlaybackResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GetPlaythrough")
	defer span.End()

	story, err := e.catalog.Story(storyID)
	if err != nil {
		return PlaybackResult{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return PlaybackResult{}, err
	}
	state, err := e.store.GetPlaythrough(ctx, userID, storyID)
	if err != nil {
		return PlaybackResult{}, err
	}
	return e.playbackResult(state, story, acct, false)
}

// rejectChoice records a refused selection and returns the coded error.
func (e *Engine) rejectChoice(ctx context.Context, userID, storyID, choiceID string, err error) error {
	code := apperrors.GetCode(err)
	metrics.ChoicesRejected.WithLabelValues(string(code)).Inc()
	if auditErr := e.audit.Emit(ctx, storage.AuditEvent{
		EventName: audit.EventChoiceRejected,
		Severity:  string(audit.SeverityWarn),
		UserID:    userID,
		StoryID:   storyID,
		Detail:    map[string]string{"choice": choiceID, "reason": string(code)},
	}); auditErr != nil {
		log.Printf("audit choice rejection: %v", auditErr)
	}
	e.emit(Event{
		Kind:     EventChoiceRejected,
		UserID:   userID,
		StoryID:  storyID,
		ChoiceID: choiceID,
		Reason:   string(code),
		At:       e.clock().UTC(),
	})
	return err
}

// SelectChoice validates the gate and the cost, spends, and commits the
// node transition. A failed validation mutates nothing: the balance, the
// history log, and the position stay exactly as they were.
func (e *Engine) SelectChoice(ctx context.Context, userID, storyID, choiceID string) (PlaybackResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.SelectChoice")
	defer span.End()

	story, err := e.catalog.Story(storyID)
	if err != nil {
		return PlaybackResult{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return PlaybackResult{}, err
	}
	state, err := e.store.GetPlaythrough(ctx, userID, storyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return PlaybackResult{}, apperrors.New(apperrors.CodeNotFound, "no active playthrough for this story")
		}
		return PlaybackResult{}, err
	}
	if state.Phase != playback.PhaseChoice {
		code := apperrors.CodePlaybackNoChoice
		if state.Phase == playback.PhaseEnded {
			code = apperrors.CodePlaybackEnded
		}
		return PlaybackResult{}, e.rejectChoice(ctx, userID, storyID, choiceID,
			apperrors.New(code, "playthrough is not waiting on a choice"))
	}

	node, ok := story.Node(state.NodeID)
	if !ok {
		return PlaybackResult{}, e.resetOnIntegrity(ctx, userID, story, state.NodeID)
	}
	choice, ok := node.Choice(choiceID)
	if !ok {
		return PlaybackResult{}, e.rejectChoice(ctx, userID, storyID, choiceID,
			apperrors.WithMetadata(apperrors.CodeChoiceUnknown, "choice does not exist on this node", map[string]string{
				"ChoiceID": choiceID,
				"NodeID":   node.ID,
			}))
	}
	if !playback.ChoiceAvailable(choice, acct.Achievements.Has) {
		return PlaybackResult{}, e.rejectChoice(ctx, userID, storyID, choiceID,
			apperrors.WithMetadata(apperrors.CodeChoiceLocked, "choice requires a locked achievement", map[string]string{
				"Achievement": choice.RequiredAchievement,
			}))
	}

	spent := false
	var txn credit.Transaction
	updated := acct
	if choice.Cost > 0 {
		updated, txn, err = credit.ApplySpend(acct, choice.Cost, credit.SourceChoice, e.clock(), e.limits)
		if err != nil {
			return PlaybackResult{}, e.rejectChoice(ctx, userID, storyID, choiceID, err)
		}
		txn.Metadata = map[string]string{"story": storyID, "choice": choiceID}
		spent = true
	}

	next, endedNow, err := playback.CommitChoice(state, story, choice)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeGraphIntegrity) {
			return PlaybackResult{}, e.resetOnIntegrity(ctx, userID, story, choice.Next)
		}
		return PlaybackResult{}, err
	}

	e.preload(ctx, story, next.NodeID)

	if spent {
		if _, err := e.commit(ctx, updated, txn); err != nil {
			return PlaybackResult{}, err
		}
		acct = updated
	}
	if err := e.store.PutPlaythrough(ctx, userID, next); err != nil {
		return PlaybackResult{}, err
	}
	if endedNow {
		acct, err = e.completeStory(ctx, acct, story, next)
		if err != nil {
			return PlaybackResult{}, err
		}
	}
	return e.playbackResult(next, story, acct, endedNow)
}

// SkipSegment advances past the current segment, either on duration expiry
// or an explicit skip. It never touches the ledger.
func (e *Engine) SkipSegment(ctx context.Context, userID, storyID string) (PlaybackResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.SkipSegment")
	defer span.End()
	return e.mutatePlayback(ctx, userID, storyID, func(state playback.State, story graph.Story) (playback.State, bool, error) {
		return playback.AdvanceSegment(state, story)
	})
}

// ReplayNode restarts the current node's segments without touching the
// history log or the ledger.
func (e *Engine) ReplayNode(ctx context.Context, userID, storyID string) (PlaybackResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ReplayNode")
	defer span.End()
	return e.mutatePlayback(ctx, userID, storyID, func(state playback.State, story graph.Story) (playback.State, bool, error) {
		next, err := playback.Replay(state, story)
		return next, false, err
	})
}

// RestartPlaythrough resets to the start node with a cleared history log.
// Unlike ReplayNode it also works from an ended playthrough.
func (e *Engine) RestartPlaythrough(ctx context.Context, userID, storyID string) (PlaybackResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.RestartPlaythrough")
	defer span.End()
	return e.mutatePlayback(ctx, userID, storyID, func(state playback.State, story graph.Story) (playback.State, bool, error) {
		next, err := playback.Restart(story)
		return next, false, err
	})
}

func (e *Engine) mutatePlayback(ctx context.Context, userID, storyID string, mutate func(playback.State, graph.Story) (playback.State, bool, error)) (PlaybackResult, error) {
	story, err := e.catalog.Story(storyID)
	if err != nil {
		return PlaybackResult{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return PlaybackResult{}, err
	}
	state, err := e.store.GetPlaythrough(ctx, userID, storyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return PlaybackResult{}, apperrors.New(apperrors.CodeNotFound, "no active playthrough for this story")
		}
		return PlaybackResult{}, err
	}

	next, endedNow, err := mutate(state, story)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeGraphIntegrity) {
			return PlaybackResult{}, e.resetOnIntegrity(ctx, userID, story, state.NodeID)
		}
		return PlaybackResult{}, err
	}
	if err := e.store.PutPlaythrough(ctx, userID, next); err != nil {
		return PlaybackResult{}, err
	}
	if endedNow {
		acct, err = e.completeStory(ctx, acct, story, next)
		if err != nil {
			return PlaybackResult{}, err
		}
	}
	return e.playbackResult(next, story, acct, endedNow)
}

// preload warms the next node's assets, bounded by the preload timeout.
// The transition proceeds on timeout or error; only the wait is mandatory.
func (e *Engine) preload(ctx context.Context, story graph.Story, nodeID string) {
	node, ok := story.Node(nodeID)
	if !ok {
		return
	}
	var assets []string
	for _, segment := range node.Segments {
		if segment.Media != "" {
			assets = append(assets, segment.Media)
		}
	}
	if len(assets) == 0 {
		return
	}
	preloadCtx, cancel := context.WithTimeout(ctx, e.preloadTimeout)
	defer cancel()
	if err := e.preloader.Preload(preloadCtx, assets); err != nil {
		log.Printf("preload %s/%s: %v", story.ID, nodeID, err)
	}
}

// resetOnIntegrity audits a dangling-node failure and resets the
// playthrough to the start node so the user is never stranded.
func (e *Engine) resetOnIntegrity(ctx context.Context, userID string, story graph.Story, nodeID string) error {
	if auditErr := e.audit.Emit(ctx, storage.AuditEvent{
		EventName: audit.EventChoiceRejected,
		Severity:  string(audit.SeverityError),
		UserID:    userID,
		StoryID:   story.ID,
		Detail:    map[string]string{"reason": string(apperrors.CodeGraphIntegrity), "node": nodeID},
	}); auditErr != nil {
		log.Printf("audit graph integrity: %v", auditErr)
	}
	if safe, beginErr := playback.Begin(story); beginErr == nil {
		if putErr := e.store.PutPlaythrough(ctx, userID, safe); putErr != nil {
			log.Printf("reset playthrough %s/%s: %v", userID, story.ID, putErr)
		}
	}
	return apperrors.WithMetadata(apperrors.CodeGraphIntegrity, "story graph references a missing node", map[string]string{
		"StoryID": story.ID,
		"NodeID":  nodeID,
	})
}

// completeStory runs the exactly-once ending path: completion stats,
// playtime accrual, the ending event, and the achievement sweep.
func (e *Engine) completeStory(ctx context.Context, acct account.Account, story graph.Story, state playback.State) (account.Account, error) {
	now := e.clock()
	acct = acct.RecordCompletion(story.ID, story.Genre)
	acct.TotalPlaytimeMin += playtimeMinutes(story, state)
	acct.UpdatedAt = now.UTC()
	if err := e.store.PutAccount(ctx, acct); err != nil {
		return account.Account{}, err
	}

	metrics.EndingsReached.WithLabelValues(story.ID).Inc()
	if err := e.audit.Emit(ctx, storage.AuditEvent{
		EventName: audit.EventEndingReached,
		UserID:    acct.ID,
		StoryID:   story.ID,
		Detail:    map[string]string{"node": state.NodeID},
	}); err != nil {
		log.Printf("audit ending: %v", err)
	}
	e.emit(Event{Kind: EventEndingReached, UserID: acct.ID, StoryID: story.ID, At: now.UTC()})

	return e.sweepAchievements(ctx, acct)
}

// playtimeMinutes estimates the playthrough duration from the authored
// segment durations of the visited nodes, rounded up to a whole minute.
func playtimeMinutes(story graph.Story, state playback.State) int {
	totalMs := 0
	addNode := func(nodeID string) {
		node, ok := story.Node(nodeID)
		if !ok {
			return
		}
		for _, segment := range node.Segments {
			totalMs += segment.DurationMs
		}
	}
	for _, entry := range state.History {
		if entry.Kind == playback.EntryNarrative {
			addNode(entry.NodeID)
		}
	}
	addNode(state.NodeID)
	if totalMs <= 0 {
		return 0
	}
	return (totalMs + 59999) / 60000
}
