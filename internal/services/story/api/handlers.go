package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/graph"
	"github.com/emberleaf/emberleaf/internal/services/story/engine"
)

type accountView struct {
	UserID           string         `json:"user_id"`
	Guest            bool           `json:"guest"`
	Credits          int            `json:"credits"`
	MaxCredits       int            `json:"max_credits"`
	Achievements     []string       `json:"achievements"`
	Avatars          []string       `json:"avatars"`
	Favorites        []string       `json:"favorites"`
	StoriesCompleted int            `json:"stories_completed"`
	CompletedByGenre map[string]int `json:"completed_by_genre"`
	ReviewsWritten   int            `json:"reviews_written"`
	LoginStreak      int            `json:"login_streak"`
}

func viewAccount(acct account.Account) accountView {
	return accountView{
		UserID:           acct.ID,
		Guest:            acct.Guest,
		Credits:          acct.Credits,
		MaxCredits:       acct.MaxCredits,
		Achievements:     acct.Achievements.Sorted(),
		Avatars:          acct.Avatars.Sorted(),
		Favorites:        acct.Favorites.Sorted(),
		StoriesCompleted: acct.StoriesCompleted(),
		CompletedByGenre: acct.CompletedByGenre,
		ReviewsWritten:   acct.ReviewsWritten,
		LoginStreak:      acct.LoginStreak,
	}
}

type segmentView struct {
	Text       string `json:"text"`
	Media      string `json:"media,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
}

type choiceView struct {
	ID                  string `json:"id"`
	Text                string `json:"text"`
	Cost                int    `json:"cost"`
	RequiredAchievement string `json:"required_achievement,omitempty"`
}

type nodeView struct {
	ID       string        `json:"id"`
	Ending   bool          `json:"ending"`
	Segments []segmentView `json:"segments"`
	Choices  []choiceView  `json:"choices"`
}

func viewNode(node graph.Node) nodeView {
	view := nodeView{
		ID:       node.ID,
		Ending:   node.IsEnding(),
		Segments: make([]segmentView, 0, len(node.Segments)),
		Choices:  make([]choiceView, 0, len(node.Choices)),
	}
	for _, segment := range node.Segments {
		view.Segments = append(view.Segments, segmentView{
			Text:       segment.Text,
			Media:      segment.Media,
			DurationMs: segment.DurationMs,
		})
	}
	for _, choice := range node.Choices {
		view.Choices = append(view.Choices, choiceView{
			ID:                  choice.ID,
			Text:                choice.Text,
			Cost:                choice.Cost,
			RequiredAchievement: choice.RequiredAchievement,
		})
	}
	return view
}

type playbackView struct {
	StoryID      string                `json:"story_id"`
	Phase        string                `json:"phase"`
	SegmentIndex int                   `json:"segment_index"`
	Node         nodeView              `json:"node"`
	History      []playbackHistoryView `json:"history"`
	Credits      int                   `json:"credits"`
	MaxCredits   int                   `json:"max_credits"`
	EndedNow     bool                  `json:"ended_now"`
}

type playbackHistoryView struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func viewPlayback(result engine.PlaybackResult) playbackView {
	view := playbackView{
		StoryID:      result.State.StoryID,
		Phase:        string(result.State.Phase),
		SegmentIndex: result.State.SegmentIndex,
		Node:         viewNode(result.Node),
		History:      make([]playbackHistoryView, 0, len(result.State.History)),
		Credits:      result.Credits,
		MaxCredits:   result.MaxCredits,
		EndedNow:     result.EndedNow,
	}
	for _, entry := range result.State.History {
		view.History = append(view.History, playbackHistoryView{
			Kind: string(entry.Kind),
			Text: entry.Text,
		})
	}
	return view
}

func (s *Server) handleGuestSession(w http.ResponseWriter, r *http.Request) {
	token, userID, err := s.sessions.MintGuest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "mint guest session")
		return
	}
	if _, err := s.engine.EnsureAccount(r.Context(), userID, true); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"token":   token,
		"user_id": userID,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	acct, err := s.engine.EnsureAccount(r.Context(), session.UserID, session.Guest)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(acct))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	if _, err := s.engine.EnsureAccount(r.Context(), session.UserID, session.Guest); err != nil {
		writeDomainError(w, r, err)
		return
	}
	acct, err := s.engine.RecordLogin(r.Context(), session.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(acct))
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	wallet, err := s.engine.GetWallet(r.Context(), session.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"credits":             wallet.Credits,
		"max_credits":         wallet.MaxCredits,
		"next_refill_seconds": int(wallet.NextRefillETA.Seconds()),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	pageSize := 20
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "page_size must be between 1 and 100")
			return
		}
		pageSize = parsed
	}
	page, err := s.engine.ListTransactions(r.Context(), session.UserID, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	type txnView struct {
		ID            string `json:"id"`
		Type          string `json:"type"`
		Source        string `json:"source"`
		Amount        int    `json:"amount"`
		BalanceBefore int    `json:"balance_before"`
		BalanceAfter  int    `json:"balance_after"`
		CreatedAt     int64  `json:"created_at"`
	}
	views := make([]txnView, 0, len(page.Transactions))
	for _, txn := range page.Transactions {
		views = append(views, txnView{
			ID:            txn.ID,
			Type:          string(txn.Type),
			Source:        txn.Source,
			Amount:        txn.Amount,
			BalanceBefore: txn.BalanceBefore,
			BalanceAfter:  txn.BalanceAfter,
			CreatedAt:     txn.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions":    views,
		"next_page_token": page.NextPageToken,
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	statuses, err := s.engine.ListAchievements(r.Context(), session.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	type achievementStatusView struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Rarity      string  `json:"rarity"`
		Unlocked    bool    `json:"unlocked"`
		Supported   bool    `json:"supported"`
		Progress    float64 `json:"progress"`
		Current     int     `json:"current"`
		Target      int     `json:"target"`
	}
	views := make([]achievementStatusView, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, achievementStatusView{
			ID:          status.Achievement.ID,
			Name:        status.Achievement.Name,
			Description: status.Achievement.Description,
			Rarity:      string(status.Achievement.Rarity),
			Unlocked:    status.Unlocked,
			Supported:   status.Evaluation.Supported,
			Progress:    status.Evaluation.Progress,
			Current:     status.Evaluation.Current,
			Target:      status.Evaluation.Target,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": views})
}

func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	achievementID := chi.URLParam(r, "achievementID")
	acct, err := s.engine.UnlockAchievement(r.Context(), session.UserID, achievementID, "claim")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(acct))
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	type storyView struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Genre string `json:"genre"`
		Nodes int    `json:"nodes"`
	}
	stories := s.engine.Catalog().Stories()
	views := make([]storyView, 0, len(stories))
	for _, story := range stories {
		views = append(views, storyView{
			ID:    story.ID,
			Title: story.Title,
			Genre: story.Genre,
			Nodes: story.Len(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": views})
}

func (s *Server) playbackOp(w http.ResponseWriter, r *http.Request, op func(userID, storyID string) (engine.PlaybackResult, error)) {
	session, _ := sessionFrom(r.Context())
	storyID := chi.URLParam(r, "storyID")
	result, err := op(session.UserID, storyID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPlayback(result))
}

func (s *Server) handleStartStory(w http.ResponseWriter, r *http.Request) {
	s.playbackOp(w, r, func(userID, storyID string) (engine.PlaybackResult, error) {
		return s.engine.StartStory(r.Context(), userID, storyID)
	})
}

func (s *Server) handleGetPlaythrough(w http.ResponseWriter, r *http.Request) {
	s.playbackOp(w, r, func(userID, storyID string) (engine.PlaybackResult, error) {
		return s.engine.GetPlaythrough(r.Context(), userID, storyID)
	})
}

func (s *Server) handleSelectChoice(w http.ResponseWriter, r *http.Request) {
	choiceID := chi.URLParam(r, "choiceID")
	s.playbackOp(w, r, func(userID, storyID string) (engine.PlaybackResult, error) {
		return s.engine.SelectChoice(r.Context(), userID, storyID, choiceID)
	})
}

func (s *Server) handleSkipSegment(w http.ResponseWriter, r *http.Request) {
	s.playbackOp(w, r, func(userID, storyID string) (engine.PlaybackResult, error) {
		return s.engine.SkipSegment(r.Context(), userID, storyID)
	})
}

func (s *Server) handleReplayNode(w http.ResponseWriter, r *http.Request) {
	s.playbackOp(w, r, func(userID, storyID string) (engine.PlaybackResult, error) {
		return s.engine.ReplayNode(r.Context(), userID, storyID)
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.playbackOp(w, r, func(userID, storyID string) (engine.PlaybackResult, error) {
		return s.engine.RestartPlaythrough(r.Context(), userID, storyID)
	})
}

func (s *Server) handleRateStory(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	storyID := chi.URLParam(r, "storyID")
	var body struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	acct, err := s.engine.RateStory(r.Context(), session.UserID, storyID, body.Rating)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(acct))
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	storyID := chi.URLParam(r, "storyID")
	acct, err := s.engine.ToggleFavorite(r.Context(), session.UserID, storyID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(acct))
}
