package models

import (
	"encoding/json"
	"time"
)

// GraphNode is a job placed in a run's dependency graph
type GraphNode struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status,omitempty"`
	Conclusion   string     `json:"conclusion,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Dependencies []string   `json:"dependencies"`
	Steps        []Step     `json:"steps"`
}

// WorkflowGraph is the dependency graph of one workflow run.
// Dependencies may name jobs that are absent from Jobs.
type WorkflowGraph struct {
	RunID          int64                 `json:"runId"`
	WorkflowName   string                `json:"workflowName,omitempty"`
	Branch         string                `json:"branch,omitempty"`
	Status         string                `json:"status,omitempty"`
	Conclusion     string                `json:"conclusion,omitempty"`
	Jobs           map[string]*GraphNode `json:"jobs"`
	ExecutionOrder []string              `json:"executionOrder"`
	TotalDuration  *time.Duration        `json:"-"`
	Cycles         []string              `json:"cycles,omitempty"`
}

// MarshalJSON renders TotalDuration as integer milliseconds, or null when unknown
func (g WorkflowGraph) MarshalJSON() ([]byte, error) {
	type alias WorkflowGraph
	out := struct {
		alias
		TotalDuration *int64 `json:"totalDuration"`
	}{alias: alias(g)}
	if g.TotalDuration != nil {
		ms := g.TotalDuration.Milliseconds()
		out.TotalDuration = &ms
	}
	return json.Marshal(out)
}

// Node returns the node for the given job name
func (g *WorkflowGraph) Node(name string) (*GraphNode, bool) {
	n, ok := g.Jobs[name]
	return n, ok
}
