package graph

import "fmt"

// Issue is one content problem found by validation.
type Issue struct {
	Code     string
	NodeID   string
	ChoiceID string
	Detail   string
}

func (i Issue) String() string {
	where := i.NodeID
	if i.ChoiceID != "" {
		where = where + "/" + i.ChoiceID
	}
	return fmt.Sprintf("%s [%s]: %s", i.Code, where, i.Detail)
}

// Validation issue codes.
const (
	IssueMissingStart    = "missing-start"
	IssueDanglingEdge    = "dangling-edge"
	IssueUnreachable     = "unreachable-node"
	IssueDuplicateChoice = "duplicate-choice"
	IssueNegativeCost    = "negative-cost"
	IssueEmptyNode       = "empty-node"
	IssueNoEnding        = "no-ending"
)

// Validate checks the authored graph ahead of deploy: the start node must
// exist, every choice edge must resolve, every node must be reachable, and
// at least one ending must exist. It returns all issues, not just the first.
func (s Story) Validate() []Issue {
	var issues []Issue

	if _, ok := s.nodes[s.Start]; !ok {
		issues = append(issues, Issue{
			Code:   IssueMissingStart,
			NodeID: s.Start,
			Detail: "start node does not exist",
		})
	}

	hasEnding := false
	for _, nodeID := range s.order {
		n := s.nodes[nodeID]
		if n.IsEnding() {
			hasEnding = true
		}
		if len(n.Segments) == 0 && len(n.Choices) == 0 {
			issues = append(issues, Issue{
				Code:   IssueEmptyNode,
				NodeID: nodeID,
				Detail: "node has no segments and no choices",
			})
		}
		seen := map[string]bool{}
		for _, c := range n.Choices {
			if seen[c.ID] {
				issues = append(issues, Issue{
					Code:     IssueDuplicateChoice,
					NodeID:   nodeID,
					ChoiceID: c.ID,
					Detail:   "duplicate choice id within node",
				})
			}
			seen[c.ID] = true
			if _, ok := s.nodes[c.Next]; !ok {
				issues = append(issues, Issue{
					Code:     IssueDanglingEdge,
					NodeID:   nodeID,
					ChoiceID: c.ID,
					Detail:   fmt.Sprintf("next node %q does not exist", c.Next),
				})
			}
			if c.Cost < 0 {
				issues = append(issues, Issue{
					Code:     IssueNegativeCost,
					NodeID:   nodeID,
					ChoiceID: c.ID,
					Detail:   fmt.Sprintf("cost %d is negative", c.Cost),
				})
			}
		}
	}

	if !hasEnding && len(s.nodes) > 0 {
		issues = append(issues, Issue{
			Code:   IssueNoEnding,
			Detail: "story has no ending node",
		})
	}

	for _, nodeID := range s.unreachable() {
		issues = append(issues, Issue{
			Code:   IssueUnreachable,
			NodeID: nodeID,
			Detail: "node cannot be reached from the start node",
		})
	}

	return issues
}

// unreachable returns node ids not reachable from the start node, in
// authored order.
func (s Story) unreachable() []string {
	if _, ok := s.nodes[s.Start]; !ok {
		return nil
	}
	visited := map[string]bool{s.Start: true}
	queue := []string{s.Start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, c := range s.nodes[current].Choices {
			if _, ok := s.nodes[c.Next]; ok && !visited[c.Next] {
				visited[c.Next] = true
				queue = append(queue, c.Next)
			}
		}
	}
	var out []string
	for _, nodeID := range s.order {
		if !visited[nodeID] {
			out = append(out, nodeID)
		}
	}
	return out
}
