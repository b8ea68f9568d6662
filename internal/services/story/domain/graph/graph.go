// Package graph models the static, authored story graph.
//
// Stories are directed graphs of nodes; each node holds an ordered list of
// narrative segments and a set of outgoing choices. The graph never mutates
// at runtime: content is loaded once from authored files and validated by
// the lint command before deploy.
package graph

import (
	"fmt"
	"strings"
)

// Segment is one displayed narrative beat.
type Segment struct {
	Text string
	// Media is an opaque asset URI; the engine never fetches or validates it.
	Media string
	// DurationMs auto-advances the segment after this many milliseconds.
	// Zero means the segment waits for an explicit skip.
	DurationMs int
}

// Choice is one outgoing edge from a node.
type Choice struct {
	ID   string
	Text string
	Next string
	// RequiredAchievement hard-blocks the choice until unlocked.
	RequiredAchievement string
	// Cost in credits. Loaders default omitted costs to 1; zero is free.
	Cost int
}

// Node is one story-graph vertex.
type Node struct {
	ID       string
	Segments []Segment
	Choices  []Choice
}

// IsEnding reports whether the node terminates a playthrough.
func (n Node) IsEnding() bool {
	return len(n.Choices) == 0
}

// NarrativeText joins segment texts into the single history-log entry.
func (n Node) NarrativeText() string {
	parts := make([]string, 0, len(n.Segments))
	for _, s := range n.Segments {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Choice finds an outgoing choice by id.
func (n Node) Choice(choiceID string) (Choice, bool) {
	for _, c := range n.Choices {
		if c.ID == choiceID {
			return c, true
		}
	}
	return Choice{}, false
}

// Story is one authored story graph.
type Story struct {
	ID    string
	Title string
	Genre string
	Start string
	nodes map[string]Node
	order []string
}

// NewStory builds a story from authored nodes, rejecting duplicates.
func NewStory(id, title, genre, start string, nodes []Node) (Story, error) {
	if id == "" {
		return Story{}, fmt.Errorf("story id is required")
	}
	if start == "" {
		return Story{}, fmt.Errorf("story %s: start node is required", id)
	}
	index := make(map[string]Node, len(nodes))
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return Story{}, fmt.Errorf("story %s: node id is required", id)
		}
		if _, exists := index[n.ID]; exists {
			return Story{}, fmt.Errorf("story %s: duplicate node id %q", id, n.ID)
		}
		index[n.ID] = n
		order = append(order, n.ID)
	}
	return Story{ID: id, Title: title, Genre: genre, Start: start, nodes: index, order: order}, nil
}

// Node looks up a node by id.
func (s Story) Node(nodeID string) (Node, bool) {
	n, ok := s.nodes[nodeID]
	return n, ok
}

// StartNode returns the designated start node.
func (s Story) StartNode() (Node, bool) {
	return s.Node(s.Start)
}

// NodeIDs returns node ids in authored order.
func (s Story) NodeIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the node count.
func (s Story) Len() int {
	return len(s.nodes)
}
