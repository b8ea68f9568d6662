package catalog

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/emberleaf/emberleaf/internal/services/story/domain/graph"
)

// Finding is one authoring problem reported against a content file.
type Finding struct {
	File    string
	StoryID string
	Issue   graph.Issue
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: story %q: %s", f.File, f.StoryID, f.Issue)
}

// Lint checks every story file in contentFS and reports all graph issues
// instead of stopping at the first. Files that fail to decode are errors;
// authoring problems in decodable files become findings.
func Lint(contentFS fs.FS) ([]Finding, error) {
	entries, err := fs.ReadDir(contentFS, "stories")
	if err != nil {
		return nil, fmt.Errorf("read stories dir: %w", err)
	}

	var findings []Finding
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		name := path.Join("stories", entry.Name())
		story, err := decodeStory(contentFS, name)
		if err != nil {
			return nil, err
		}
		for _, issue := range story.Validate() {
			findings = append(findings, Finding{File: name, StoryID: story.ID, Issue: issue})
		}
	}
	return findings, nil
}
