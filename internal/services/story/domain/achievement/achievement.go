// Package achievement defines the achievement catalog types and pure
// condition evaluation against a user's aggregate stats.
package achievement

// ConditionKind names one evaluable condition.
type ConditionKind string

const (
	KindStoriesCompleted ConditionKind = "stories_completed"
	KindStoriesInGenre   ConditionKind = "stories_in_genre"
	KindSpecificStory    ConditionKind = "specific_story"
	KindReviewsWritten   ConditionKind = "reviews_written"
	KindTotalPlaytime    ConditionKind = "total_playtime"
	KindCreditsSpent     ConditionKind = "credits_spent"
	KindLoginStreak      ConditionKind = "login_streak"
)

// Rarity labels how hard an achievement is to earn.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Condition is one threshold against the user's stats. Genre applies to
// stories_in_genre; StoryID applies to specific_story.
type Condition struct {
	Kind    ConditionKind
	Target  int
	Genre   string
	StoryID string
}

// Rewards applied when the achievement unlocks. CreditBonus is a one-time
// saturating credit grant; MaxCreditIncrease permanently raises the cap.
type Rewards struct {
	CreditBonus       int
	MaxCreditIncrease int
	AvatarUnlocks     []string
}

// Achievement is one static catalog entry.
type Achievement struct {
	ID          string
	Name        string
	Description string
	Rarity      Rarity
	Condition   Condition
	Rewards     Rewards
}

// Stats is the aggregate snapshot evaluation runs against.
type Stats struct {
	StoriesCompleted int
	CompletedByGenre map[string]int
	CompletedStories map[string]bool
	ReviewsWritten   int
	TotalPlaytimeMin int
	CreditsSpent     int
	LoginStreak      int
}

// Evaluation reports progress toward one achievement. Unsupported condition
// kinds report Supported=false and never complete; the gap is visible to
// callers instead of silently wrong.
type Evaluation struct {
	Completed bool
	Supported bool
	Progress  float64
	Current   int
	Target    int
}

// Evaluate maps the achievement's condition to a current-vs-target reading.
func Evaluate(stats Stats, a Achievement) Evaluation {
	var current, target int

	switch a.Condition.Kind {
	case KindStoriesCompleted:
		current, target = stats.StoriesCompleted, a.Condition.Target
	case KindStoriesInGenre:
		current, target = stats.CompletedByGenre[a.Condition.Genre], a.Condition.Target
	case KindSpecificStory:
		target = 1
		if stats.CompletedStories[a.Condition.StoryID] {
			current = 1
		}
	case KindReviewsWritten:
		current, target = stats.ReviewsWritten, a.Condition.Target
	case KindTotalPlaytime:
		current, target = stats.TotalPlaytimeMin, a.Condition.Target
	case KindCreditsSpent:
		current, target = stats.CreditsSpent, a.Condition.Target
	case KindLoginStreak:
		current, target = stats.LoginStreak, a.Condition.Target
	default:
		return Evaluation{Supported: false}
	}

	if target <= 0 {
		target = 1
	}
	progress := float64(current) / float64(target) * 100
	if progress > 100 {
		progress = 100
	}
	return Evaluation{
		Completed: current >= target,
		Supported: true,
		Progress:  progress,
		Current:   current,
		Target:    target,
	}
}

// TotalCapIncrease sums the MaxCreditIncrease rewards of the unlocked
// achievement ids that exist in the catalog.
func TotalCapIncrease(catalog map[string]Achievement, unlocked []string) int {
	var total int
	for _, achievementID := range unlocked {
		if a, ok := catalog[achievementID]; ok {
			total += a.Rewards.MaxCreditIncrease
		}
	}
	return total
}
