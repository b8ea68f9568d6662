// Package catalog loads authored story graphs and achievement definitions
// from TOML content files.
package catalog

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/achievement"
	"github.com/emberleaf/emberleaf/internal/services/story/domain/graph"
)

// Catalog holds the loaded static content the engine serves from memory.
type Catalog struct {
	stories      map[string]graph.Story
	storyOrder   []string
	achievements map[string]achievement.Achievement
	achOrder     []string
}

type segmentFile struct {
	Text       string `toml:"text"`
	Media      string `toml:"media"`
	DurationMs int    `toml:"duration_ms"`
}

type choiceFile struct {
	ID                  string `toml:"id"`
	Text                string `toml:"text"`
	Next                string `toml:"next"`
	RequiredAchievement string `toml:"required_achievement"`
	// Cost is a pointer so an omitted cost can default to 1 while an
	// explicit zero stays free.
	Cost *int `toml:"cost"`
}

type nodeFile struct {
	ID       string        `toml:"id"`
	Segments []segmentFile `toml:"segments"`
	Choices  []choiceFile  `toml:"choices"`
}

type storyFile struct {
	ID    string     `toml:"id"`
	Title string     `toml:"title"`
	Genre string     `toml:"genre"`
	Start string     `toml:"start"`
	Nodes []nodeFile `toml:"nodes"`
}

type conditionFile struct {
	Kind    string `toml:"kind"`
	Target  int    `toml:"target"`
	Genre   string `toml:"genre"`
	StoryID string `toml:"story_id"`
}

type rewardsFile struct {
	CreditBonus       int      `toml:"credit_bonus"`
	MaxCreditIncrease int      `toml:"max_credit_increase"`
	AvatarUnlocks     []string `toml:"avatar_unlocks"`
}

type achievementFile struct {
	ID          string        `toml:"id"`
	Name        string        `toml:"name"`
	Description string        `toml:"description"`
	Rarity      string        `toml:"rarity"`
	Condition   conditionFile `toml:"condition"`
	Rewards     rewardsFile   `toml:"rewards"`
}

type achievementsFile struct {
	Achievements []achievementFile `toml:"achievements"`
}

func (f storyFile) toDomain() (graph.Story, error) {
	nodes := make([]graph.Node, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		segments := make([]graph.Segment, 0, len(n.Segments))
		for _, s := range n.Segments {
			segments = append(segments, graph.Segment{
				Text:       s.Text,
				Media:      s.Media,
				DurationMs: s.DurationMs,
			})
		}
		choices := make([]graph.Choice, 0, len(n.Choices))
		for _, c := range n.Choices {
			cost := 1
			if c.Cost != nil {
				cost = *c.Cost
			}
			choices = append(choices, graph.Choice{
				ID:                  c.ID,
				Text:                c.Text,
				Next:                c.Next,
				RequiredAchievement: c.RequiredAchievement,
				Cost:                cost,
			})
		}
		nodes = append(nodes, graph.Node{ID: n.ID, Segments: segments, Choices: choices})
	}
	return graph.NewStory(f.ID, f.Title, f.Genre, f.Start, nodes)
}

func (f achievementFile) toDomain() (achievement.Achievement, error) {
	if strings.TrimSpace(f.ID) == "" {
		return achievement.Achievement{}, fmt.Errorf("achievement id is required")
	}
	if strings.TrimSpace(f.Condition.Kind) == "" {
		return achievement.Achievement{}, fmt.Errorf("achievement %s: condition kind is required", f.ID)
	}
	rarity := achievement.Rarity(f.Rarity)
	if f.Rarity == "" {
		rarity = achievement.RarityCommon
	}
	return achievement.Achievement{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Rarity:      rarity,
		Condition: achievement.Condition{
			Kind:    achievement.ConditionKind(f.Condition.Kind),
			Target:  f.Condition.Target,
			Genre:   f.Condition.Genre,
			StoryID: f.Condition.StoryID,
		},
		Rewards: achievement.Rewards{
			CreditBonus:       f.Rewards.CreditBonus,
			MaxCreditIncrease: f.Rewards.MaxCreditIncrease,
			AvatarUnlocks:     f.Rewards.AvatarUnlocks,
		},
	}, nil
}

func decodeStory(contentFS fs.FS, name string) (graph.Story, error) {
	var file storyFile
	if _, err := toml.DecodeFS(contentFS, name, &file); err != nil {
		return graph.Story{}, fmt.Errorf("decode %s: %w", name, err)
	}
	story, err := file.toDomain()
	if err != nil {
		return graph.Story{}, fmt.Errorf("load %s: %w", name, err)
	}
	return story, nil
}

// Load reads every stories/*.toml and the achievements.toml from contentFS.
// Each story graph is validated; a graph with blocking issues fails the load.
func Load(contentFS fs.FS) (*Catalog, error) {
	c := &Catalog{
		stories:      make(map[string]graph.Story),
		achievements: make(map[string]achievement.Achievement),
	}

	entries, err := fs.ReadDir(contentFS, "stories")
	if err != nil {
		return nil, fmt.Errorf("read stories dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		name := path.Join("stories", entry.Name())
		story, err := decodeStory(contentFS, name)
		if err != nil {
			return nil, err
		}
		if issues := story.Validate(); len(issues) > 0 {
			return nil, fmt.Errorf("load %s: %s", name, issues[0])
		}
		if _, exists := c.stories[story.ID]; exists {
			return nil, fmt.Errorf("load %s: duplicate story id %q", name, story.ID)
		}
		c.stories[story.ID] = story
		c.storyOrder = append(c.storyOrder, story.ID)
	}
	sort.Strings(c.storyOrder)

	var achFile achievementsFile
	if _, err := toml.DecodeFS(contentFS, "achievements.toml", &achFile); err != nil {
		return nil, fmt.Errorf("decode achievements.toml: %w", err)
	}
	for _, file := range achFile.Achievements {
		ach, err := file.toDomain()
		if err != nil {
			return nil, fmt.Errorf("load achievements.toml: %w", err)
		}
		if _, exists := c.achievements[ach.ID]; exists {
			return nil, fmt.Errorf("load achievements.toml: duplicate achievement id %q", ach.ID)
		}
		c.achievements[ach.ID] = ach
		c.achOrder = append(c.achOrder, ach.ID)
	}
	sort.Strings(c.achOrder)

	return c, nil
}

// Story returns one story by id.
func (c *Catalog) Story(id string) (graph.Story, error) {
	story, ok := c.stories[id]
	if !ok {
		return graph.Story{}, apperrors.WithMetadata(apperrors.CodeStoryUnknown, "story does not exist", map[string]string{
			"StoryID": id,
		})
	}
	return story, nil
}

// Stories returns every story in id order.
func (c *Catalog) Stories() []graph.Story {
	out := make([]graph.Story, 0, len(c.storyOrder))
	for _, id := range c.storyOrder {
		out = append(out, c.stories[id])
	}
	return out
}

// Achievement returns one achievement by id.
func (c *Catalog) Achievement(id string) (achievement.Achievement, error) {
	ach, ok := c.achievements[id]
	if !ok {
		return achievement.Achievement{}, apperrors.WithMetadata(apperrors.CodeAchievementUnknown, "achievement does not exist", map[string]string{
			"AchievementID": id,
		})
	}
	return ach, nil
}

// Achievements returns every achievement in id order.
func (c *Catalog) Achievements() []achievement.Achievement {
	out := make([]achievement.Achievement, 0, len(c.achOrder))
	for _, id := range c.achOrder {
		out = append(out, c.achievements[id])
	}
	return out
}

// TotalCapIncrease sums the cap increases for the given unlocked set.
func (c *Catalog) TotalCapIncrease(unlocked map[string]struct{}) int {
	total := 0
	for id := range unlocked {
		if ach, ok := c.achievements[id]; ok {
			total += ach.Rewards.MaxCreditIncrease
		}
	}
	return total
}
