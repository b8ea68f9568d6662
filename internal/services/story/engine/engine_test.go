package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/services/story/catalog"
	"github.com/emberleaf/emberleaf/internal/services/story/catalog/content"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/account"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/playback"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/audit"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

type memStore struct {
	mu           sync.Mutex
	accounts     map[string]account.Account
	txns         map[string][]credit.Transaction
	playthroughs map[string]playback.State
	unlocks      map[string][]storage.Unlock
	audits       []storage.AuditEvent
}

func newMemStore() *memStore {
	return &memStore{
		accounts:     make(map[string]account.Account),
		txns:         make(map[string][]credit.Transaction),
		playthroughs: make(map[string]playback.State),
		unlocks:      make(map[string][]storage.Unlock),
	}
}

func (s *memStore) PutAccount(ctx context.Context, acct account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct
	return nil
}

func (s *memStore) GetAccount(ctx context.Context, userID string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return account.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *memStore) DeleteAccount(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, userID)
	return nil
}

func (s *memStore) CommitTransaction(ctx context.Context, acct account.Account, txn credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct
	s.txns[txn.UserID] = append(s.txns[txn.UserID], txn)
	return nil
}

func (s *memStore) ListTransactions(ctx context.Context, userID string, pageSize int, pageToken string) (storage.TransactionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.txns[userID]
	out := make([]credit.Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0 && len(out) < pageSize; i-- {
		out = append(out, all[i])
	}
	return storage.TransactionPage{Transactions: out}, nil
}

func (s *memStore) PutPlaythrough(ctx context.Context, userID string, state playback.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playthroughs[userID+"|"+state.StoryID] = state
	return nil
}

func (s *memStore) GetPlaythrough(ctx context.Context, userID string, storyID string) (playback.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.playthroughs[userID+"|"+storyID]
	if !ok {
		return playback.State{}, storage.ErrNotFound
	}
	return state, nil
}

func (s *memStore) DeletePlaythrough(ctx context.Context, userID string, storyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.playthroughs, userID+"|"+storyID)
	return nil
}

func (s *memStore) PutUnlock(ctx context.Context, unlock storage.Unlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.unlocks[unlock.UserID] {
		if existing.AchievementID == unlock.AchievementID {
			return nil
		}
	}
	s.unlocks[unlock.UserID] = append(s.unlocks[unlock.UserID], unlock)
	return nil
}

func (s *memStore) ListUnlocks(ctx context.Context, userID string) ([]storage.Unlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Unlock(nil), s.unlocks[userID]...), nil
}

func (s *memStore) AppendAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, event)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) transactionCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns[userID])
}

func (s *memStore) auditCount(eventName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evt := range s.audits {
		if evt.EventName == eventName {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *testClock) {
	t.Helper()
	cat, err := catalog.Load(content.FS)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	store := newMemStore()
	clock := &testClock{now: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
	seq := 0
	eng, err := New(Config{
		Catalog: cat,
		Store:   store,
		Audit:   audit.NewEmitter(store),
		Clock:   clock.Now,
		NewID: func() string {
			seq++
			return "id-" + string(rune('a'+seq-1))
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, store, clock
}

// playToChoice skips through the start node's segments until a choice is
// pending.
func playToChoice(t *testing.T, eng *Engine, userID, storyID string) PlaybackResult {
	t.Helper()
	result, err := eng.StartStory(context.Background(), userID, storyID)
	if err != nil {
		t.Fatalf("start story: %v", err)
	}
	for result.State.Phase == playback.PhasePlaying {
		result, err = eng.SkipSegment(context.Background(), userID, storyID)
		if err != nil {
			t.Fatalf("skip segment: %v", err)
		}
	}
	return result
}

func TestEnsureAccountCreatesAtCap(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	acct, err := eng.EnsureAccount(context.Background(), "user-1", false)
	if err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if acct.Credits != 20 || acct.MaxCredits != 20 {
		t.Fatalf("registered account = %d/%d, want 20/20", acct.Credits, acct.MaxCredits)
	}

	guest, err := eng.EnsureAccount(context.Background(), "guest-1", true)
	if err != nil {
		t.Fatalf("ensure guest: %v", err)
	}
	if guest.Credits != 10 || guest.MaxCredits != 10 {
		t.Fatalf("guest account = %d/%d, want 10/10", guest.Credits, guest.MaxCredits)
	}

	again, err := eng.EnsureAccount(context.Background(), "user-1", false)
	if err != nil {
		t.Fatalf("ensure existing: %v", err)
	}
	if !again.CreatedAt.Equal(acct.CreatedAt) {
		t.Fatal("ensure recreated an existing account")
	}
}

func TestWalletAppliesLazyRefill(t *testing.T) {
	eng, store, clock := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if _, err := eng.Spend(context.Background(), "user-1", 5, credit.SourceChoice); err != nil {
		t.Fatalf("spend: %v", err)
	}

	// 12.5 minutes = two whole ticks plus a 150s remainder.
	clock.Advance(12*time.Minute + 30*time.Second)
	wallet, err := eng.GetWallet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Credits != 17 {
		t.Fatalf("credits = %d, want 17", wallet.Credits)
	}
	// Remainder preserved: next tick is 150s away.
	if wallet.NextRefillETA != 2*time.Minute+30*time.Second {
		t.Fatalf("next refill eta = %v, want 2m30s", wallet.NextRefillETA)
	}
	// Spend txn plus one refill txn.
	if n := store.transactionCount("user-1"); n != 2 {
		t.Fatalf("transactions = %d, want 2", n)
	}
}

func TestSelectChoiceSpendsAndAdvances(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	result := playToChoice(t, eng, "user-1", "midnight-garden")
	if result.State.Phase != playback.PhaseChoice {
		t.Fatalf("phase = %q, want CHOICE", result.State.Phase)
	}

	result, err := eng.SelectChoice(context.Background(), "user-1", "midnight-garden", "enter")
	if err != nil {
		t.Fatalf("select choice: %v", err)
	}
	if result.State.NodeID != "fountain" {
		t.Fatalf("node = %q, want fountain", result.State.NodeID)
	}
	if result.Credits != 19 {
		t.Fatalf("credits = %d, want 19", result.Credits)
	}
	// History: gate narrative, then the chosen text.
	if len(result.State.History) != 2 {
		t.Fatalf("history len = %d, want 2", len(result.State.History))
	}
	if result.State.History[0].Kind != playback.EntryNarrative || result.State.History[1].Kind != playback.EntryChoice {
		t.Fatalf("history order = %q, %q", result.State.History[0].Kind, result.State.History[1].Kind)
	}

	saved, err := store.GetPlaythrough(context.Background(), "user-1", "midnight-garden")
	if err != nil {
		t.Fatalf("get saved playthrough: %v", err)
	}
	if saved.NodeID != "fountain" {
		t.Fatalf("saved node = %q, want fountain", saved.NodeID)
	}
}

func TestSelectChoiceInsufficientMutatesNothing(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "guest-poor", true); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	// Drain to below the lantern choice's cost of 2.
	if _, err := eng.Spend(context.Background(), "guest-poor", 9, credit.SourceChoice); err != nil {
		t.Fatalf("drain: %v", err)
	}
	before := playToChoice(t, eng, "guest-poor", "midnight-garden")

	var rejected []Event
	eng.Subscribe(func(evt Event) {
		if evt.Kind == EventChoiceRejected {
			rejected = append(rejected, evt)
		}
	})

	_, err := eng.SelectChoice(context.Background(), "guest-poor", "midnight-garden", "lantern")
	if !apperrors.IsCode(err, apperrors.CodeCreditInsufficient) {
		t.Fatalf("err = %v, want CREDIT_INSUFFICIENT", err)
	}
	if len(rejected) != 1 {
		t.Fatalf("rejection events = %d, want 1", len(rejected))
	}

	wallet, err := eng.GetWallet(context.Background(), "guest-poor")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Credits != 1 {
		t.Fatalf("credits = %d, want 1", wallet.Credits)
	}
	after, err := store.GetPlaythrough(context.Background(), "guest-poor", "midnight-garden")
	if err != nil {
		t.Fatalf("get playthrough: %v", err)
	}
	if after.NodeID != before.State.NodeID || len(after.History) != len(before.State.History) {
		t.Fatal("failed selection mutated the playthrough")
	}
}

func TestSelectChoiceAchievementGate(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	playToChoice(t, eng, "user-1", "midnight-garden")
	if _, err := eng.SelectChoice(context.Background(), "user-1", "midnight-garden", "lantern"); err != nil {
		t.Fatalf("select lantern: %v", err)
	}
	// lantern-path's keeper choice requires the night-owl achievement.
	result, err := eng.SkipSegment(context.Background(), "user-1", "midnight-garden")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if result.State.Phase != playback.PhaseChoice {
		t.Fatalf("phase = %q, want CHOICE", result.State.Phase)
	}
	_, err = eng.SelectChoice(context.Background(), "user-1", "midnight-garden", "keeper")
	if !apperrors.IsCode(err, apperrors.CodeChoiceLocked) {
		t.Fatalf("err = %v, want CHOICE_LOCKED", err)
	}
}

func finishMidnightGarden(t *testing.T, eng *Engine, userID string) PlaybackResult {
	t.Helper()
	playToChoice(t, eng, userID, "midnight-garden")
	if _, err := eng.SelectChoice(context.Background(), userID, "midnight-garden", "enter"); err != nil {
		t.Fatalf("select enter: %v", err)
	}
	if _, err := eng.SkipSegment(context.Background(), userID, "midnight-garden"); err != nil {
		t.Fatalf("skip fountain: %v", err)
	}
	if _, err := eng.SelectChoice(context.Background(), userID, "midnight-garden", "door"); err != nil {
		t.Fatalf("select door: %v", err)
	}
	if _, err := eng.SkipSegment(context.Background(), userID, "midnight-garden"); err != nil {
		t.Fatalf("skip door: %v", err)
	}
	if _, err := eng.SelectChoice(context.Background(), userID, "midnight-garden", "leave"); err != nil {
		t.Fatalf("select leave: %v", err)
	}
	// The ending node's segment still plays before ENDED.
	result, err := eng.SkipSegment(context.Background(), userID, "midnight-garden")
	if err != nil {
		t.Fatalf("skip ending segment: %v", err)
	}
	return result
}

func TestEndingExactlyOnceAndSweep(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}

	var endings, unlocks []Event
	eng.Subscribe(func(evt Event) {
		switch evt.Kind {
		case EventEndingReached:
			endings = append(endings, evt)
		case EventAchievementUnlocked:
			unlocks = append(unlocks, evt)
		}
	})

	result := finishMidnightGarden(t, eng, "user-1")
	if result.State.Phase != playback.PhaseEnded || !result.EndedNow {
		t.Fatalf("phase = %q, endedNow = %v", result.State.Phase, result.EndedNow)
	}
	if len(endings) != 1 {
		t.Fatalf("ending events = %d, want 1", len(endings))
	}
	// first-steps (1 story) and night-owl (midnight-garden) both unlock.
	if len(unlocks) != 2 {
		t.Fatalf("unlock events = %d, want 2", len(unlocks))
	}

	acct, err := eng.GetAccount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !acct.Achievements.Has("first-steps") || !acct.Achievements.Has("night-owl") {
		t.Fatalf("achievements = %v", acct.Achievements.Sorted())
	}
	if !acct.Avatars.Has("owl") {
		t.Fatalf("avatars = %v", acct.Avatars.Sorted())
	}
	if acct.StoriesCompleted() != 1 || acct.CompletedByGenre["mystery"] != 1 {
		t.Fatalf("completions = %d, genres = %v", acct.StoriesCompleted(), acct.CompletedByGenre)
	}

	recorded, err := store.ListUnlocks(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list unlocks: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("unlock rows = %d, want 2", len(recorded))
	}

	// A replayed ending must not complete again.
	if _, err := eng.RestartPlaythrough(context.Background(), "user-1", "midnight-garden"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	second := finishMidnightGarden(t, eng, "user-1")
	if !second.EndedNow {
		t.Fatal("restarted playthrough should reach its own ending")
	}
	if len(endings) != 2 {
		t.Fatalf("ending events after restart = %d, want 2", len(endings))
	}
	acct, err = eng.GetAccount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct.StoriesCompleted() != 1 || acct.CompletedByGenre["mystery"] != 1 {
		t.Fatal("repeat completion inflated the stats")
	}
}

func TestGuestsNeverUnlock(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "guest-1", true); err != nil {
		t.Fatalf("ensure guest: %v", err)
	}
	result := finishMidnightGarden(t, eng, "guest-1")
	if result.State.Phase != playback.PhaseEnded {
		t.Fatalf("phase = %q, want ENDED", result.State.Phase)
	}
	unlocks, err := store.ListUnlocks(context.Background(), "guest-1")
	if err != nil {
		t.Fatalf("list unlocks: %v", err)
	}
	if len(unlocks) != 0 {
		t.Fatalf("guest unlocks = %d, want 0", len(unlocks))
	}
	_, err = eng.UnlockAchievement(context.Background(), "guest-1", "first-steps", "manual")
	if !apperrors.IsCode(err, apperrors.CodeAchievementGuestLocked) {
		t.Fatalf("err = %v, want ACHIEVEMENT_GUEST_LOCKED", err)
	}
}

func TestGrantRatingBonusOnce(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if _, err := eng.Spend(context.Background(), "user-1", 10, credit.SourceChoice); err != nil {
		t.Fatalf("spend: %v", err)
	}

	txn, granted, err := eng.GrantRatingBonusOnce(context.Background(), "user-1", "midnight-garden")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !granted || txn.Amount != 2 {
		t.Fatalf("granted = %v, amount = %d", granted, txn.Amount)
	}

	_, granted, err = eng.GrantRatingBonusOnce(context.Background(), "user-1", "midnight-garden")
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if granted {
		t.Fatal("rating bonus granted twice for the same story")
	}

	wallet, err := eng.GetWallet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Credits != 12 {
		t.Fatalf("credits = %d, want 12", wallet.Credits)
	}
}

func TestRateStoryValidatesAndSweeps(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if _, err := eng.RateStory(context.Background(), "user-1", "midnight-garden", 0); !apperrors.IsCode(err, apperrors.CodeRatingOutOfRange) {
		t.Fatalf("err = %v, want RATING_OUT_OF_RANGE", err)
	}
	if _, err := eng.RateStory(context.Background(), "user-1", "missing", 4); !apperrors.IsCode(err, apperrors.CodeStoryUnknown) {
		t.Fatalf("err = %v, want STORY_UNKNOWN", err)
	}

	acct, err := eng.RateStory(context.Background(), "user-1", "midnight-garden", 4)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if acct.ReviewsWritten != 1 {
		t.Fatalf("reviews = %d, want 1", acct.ReviewsWritten)
	}
	// Stats sweep: rating alone unlocks nothing from the catalog.
	if acct.Achievements.Len() != 0 {
		t.Fatalf("achievements = %v", acct.Achievements.Sorted())
	}
}

func TestSelectChoiceOutsideChoicePhase(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if _, err := eng.StartStory(context.Background(), "user-1", "midnight-garden"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := eng.SelectChoice(context.Background(), "user-1", "midnight-garden", "enter")
	if !apperrors.IsCode(err, apperrors.CodePlaybackNoChoice) {
		t.Fatalf("err = %v, want PLAYBACK_NOT_AT_CHOICE", err)
	}
}

func TestUnlockRecalculatesCap(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	// mystery-buff raises the cap by 5 with no credit bonus.
	acct, err := eng.UnlockAchievement(context.Background(), "user-1", "mystery-buff", "manual")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if acct.MaxCredits != 25 {
		t.Fatalf("max credits = %d, want 25", acct.MaxCredits)
	}
	// Unlocking again is a no-op.
	again, err := eng.UnlockAchievement(context.Background(), "user-1", "mystery-buff", "manual")
	if err != nil {
		t.Fatalf("unlock again: %v", err)
	}
	if again.MaxCredits != 25 {
		t.Fatalf("max credits after repeat = %d, want 25", again.MaxCredits)
	}
}

func TestRecordLoginStreak(t *testing.T) {
	eng, _, clock := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	acct, err := eng.RecordLogin(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if acct.LoginStreak != 1 {
		t.Fatalf("streak = %d, want 1", acct.LoginStreak)
	}
	clock.Advance(24 * time.Hour)
	acct, err = eng.RecordLogin(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("login day 2: %v", err)
	}
	if acct.LoginStreak != 2 {
		t.Fatalf("streak = %d, want 2", acct.LoginStreak)
	}
	clock.Advance(72 * time.Hour)
	acct, err = eng.RecordLogin(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("login after gap: %v", err)
	}
	if acct.LoginStreak != 1 {
		t.Fatalf("streak after gap = %d, want 1", acct.LoginStreak)
	}
}

func TestConcurrentSpendsNeverOverdraw(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	// Drain to 5 so half the contenders must lose.
	if _, err := eng.Spend(context.Background(), "user-1", 15, credit.SourceChoice); err != nil {
		t.Fatalf("drain: %v", err)
	}

	const spenders = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Spend(context.Background(), "user-1", 1, credit.SourceChoice)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.IsCode(err, apperrors.CodeCreditInsufficient):
				rejected++
			default:
				t.Errorf("spend: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 || rejected != 5 {
		t.Fatalf("succeeded = %d, rejected = %d, want 5 and 5", succeeded, rejected)
	}
	wallet, err := eng.GetWallet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Credits != 0 {
		t.Fatalf("credits = %d, want 0", wallet.Credits)
	}
	// Drain row plus one row per winning spend.
	if n := store.transactionCount("user-1"); n != 6 {
		t.Fatalf("transactions = %d, want 6", n)
	}
}

func TestEarnCommitsLedgerAndAudit(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if _, err := eng.Spend(context.Background(), "user-1", 5, credit.SourceChoice); err != nil {
		t.Fatalf("spend: %v", err)
	}

	var events []Event
	eng.Subscribe(func(evt Event) { events = append(events, evt) })

	txn, err := eng.Earn(context.Background(), "user-1", 3, credit.SourceAchievement)
	if err != nil {
		t.Fatalf("earn: %v", err)
	}
	if txn.Type != credit.TypeEarn || txn.Amount != 3 || txn.ID == "" {
		t.Fatalf("earn txn = %q/%d/%q", txn.Type, txn.Amount, txn.ID)
	}
	wallet, err := eng.GetWallet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Credits != 18 {
		t.Fatalf("credits = %d, want 18", wallet.Credits)
	}

	// An earn past the validated ceiling mutates nothing.
	if _, err := eng.Earn(context.Background(), "user-1", 10, credit.SourceAchievement); !apperrors.IsCode(err, apperrors.CodeCreditExceedsCap) {
		t.Fatalf("over-ceiling earn err = %v, want CREDIT_EXCEEDS_CAP", err)
	}

	// Spend and earn each committed one ledger row and one audit event.
	if n := store.transactionCount("user-1"); n != 2 {
		t.Fatalf("transactions = %d, want 2", n)
	}
	if n := store.auditCount(audit.EventTransactionCommitted); n != 2 {
		t.Fatalf("audit events = %d, want 2", n)
	}
	if len(events) != 1 || events[0].Kind != EventTransactionCommitted {
		t.Fatalf("events = %d, want one transaction.committed", len(events))
	}
}

func TestRefundSaturatesAtCap(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	if _, err := eng.EnsureAccount(context.Background(), "user-1", false); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if _, err := eng.Spend(context.Background(), "user-1", 5, credit.SourceChoice); err != nil {
		t.Fatalf("spend: %v", err)
	}

	txn, err := eng.Refund(context.Background(), "user-1", 10, credit.SourceChoice)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if txn.Type != credit.TypeRefund || txn.Amount != 5 {
		t.Fatalf("refund txn = %q/%d, want refund/5", txn.Type, txn.Amount)
	}
	wallet, err := eng.GetWallet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Credits != 20 {
		t.Fatalf("credits = %d, want 20", wallet.Credits)
	}

	// A refund at a full balance credits nothing and writes no ledger row.
	again, err := eng.Refund(context.Background(), "user-1", 5, credit.SourceChoice)
	if err != nil {
		t.Fatalf("refund at cap: %v", err)
	}
	if again.Amount != 0 || again.ID != "" {
		t.Fatalf("saturated refund = %d/%q, want 0 with no ID", again.Amount, again.ID)
	}
	if n := store.transactionCount("user-1"); n != 2 {
		t.Fatalf("transactions = %d, want 2", n)
	}
	if n := store.auditCount(audit.EventTransactionCommitted); n != 2 {
		t.Fatalf("audit events = %d, want 2", n)
	}
}
