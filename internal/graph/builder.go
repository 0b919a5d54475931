// Package graph derives the job dependency graph of a workflow run.
package graph

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// Option configures Build
type Option func(*options)

type options struct {
	rejectCycles bool
	logger       *slog.Logger
}

// RejectCycles makes Build fail with a malformed graph error when dependencies form a cycle
func RejectCycles() Option {
	return func(o *options) {
		o.rejectCycles = true
	}
}

// WithLogger sets the logger used to report cycles
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Build assembles the dependency graph for the executed jobs of a run.
// definition is the workflow YAML; when it cannot be parsed every job is treated
// as having no dependencies. Dependencies on jobs that did not execute are kept.
func Build(jobs []models.Job, definition []byte, opts ...Option) (*models.WorkflowGraph, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	def := parseDefinition(definition)

	// executed job names per job key, in provider order
	byKey := make(map[string][]string)
	keyOf := make(map[string]string, len(jobs))
	for _, job := range jobs {
		if key, ok := def.keyFor(job.Name); ok {
			byKey[key] = append(byKey[key], job.Name)
			keyOf[job.Name] = key
		}
	}

	g := &models.WorkflowGraph{
		Jobs:           make(map[string]*models.GraphNode, len(jobs)),
		ExecutionOrder: make([]string, 0, len(jobs)),
	}

	for _, job := range jobs {
		if _, dup := g.Jobs[job.Name]; dup {
			return nil, models.NewError(models.KindMalformedGraph, fmt.Sprintf("duplicate job name %q", job.Name), nil)
		}

		node := &models.GraphNode{
			ID:           job.ID,
			Name:         job.Name,
			Status:       job.Status,
			Conclusion:   job.Conclusion,
			StartedAt:    job.StartedAt,
			CompletedAt:  job.CompletedAt,
			Dependencies: []string{},
			Steps:        job.Steps,
		}
		if node.Steps == nil {
			node.Steps = []models.Step{}
		}
		if key, ok := keyOf[job.Name]; ok {
			node.Dependencies = resolveNeeds(def.specs[key].Needs, byKey)
		}
		g.Jobs[job.Name] = node
	}

	order, cycles := executionOrder(jobs, g.Jobs)
	g.ExecutionOrder = order
	g.Cycles = cycles
	if len(cycles) > 0 {
		if o.rejectCycles {
			return nil, models.NewError(models.KindMalformedGraph, fmt.Sprintf("dependency cycle among jobs %v", cycles), nil)
		}
		o.logger.Warn("job dependency cycle detected, execution order is best effort", "jobs", cycles)
	}

	g.TotalDuration = totalDuration(jobs)
	return g, nil
}

// resolveNeeds maps needs entries to executed job names; unmatched entries are kept as written
func resolveNeeds(needs []string, byKey map[string][]string) []string {
	deps := []string{}
	seen := make(map[string]bool)
	for _, need := range needs {
		names, ok := byKey[need]
		if !ok {
			names = []string{need}
		}
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				deps = append(deps, name)
			}
		}
	}
	return deps
}

// executionOrder lists jobs dependencies-first using a depth-first walk in
// provider order. Names absent from nodes are skipped. Jobs on a cycle are
// returned in the second slice in the order they were found.
func executionOrder(jobs []models.Job, nodes map[string]*models.GraphNode) ([]string, []string) {
	order := make([]string, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))
	onStack := make(map[string]bool)
	var stack []string

	var cycles []string
	inCycle := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			if onStack[name] {
				for i := len(stack) - 1; i >= 0; i-- {
					if !inCycle[stack[i]] {
						inCycle[stack[i]] = true
						cycles = append(cycles, stack[i])
					}
					if stack[i] == name {
						break
					}
				}
			}
			return
		}
		node, ok := nodes[name]
		if !ok {
			return
		}

		visited[name] = true
		onStack[name] = true
		stack = append(stack, name)

		for _, dep := range node.Dependencies {
			visit(dep)
		}

		stack = stack[:len(stack)-1]
		onStack[name] = false
		order = append(order, name)
	}

	for _, job := range jobs {
		visit(job.Name)
	}

	return order, cycles
}

// totalDuration is the span from the earliest start to the latest completion
// over jobs that have both timestamps
func totalDuration(jobs []models.Job) *time.Duration {
	var earliest, latest time.Time
	found := false
	for _, job := range jobs {
		if job.StartedAt == nil || job.CompletedAt == nil {
			continue
		}
		if !found || job.StartedAt.Before(earliest) {
			earliest = *job.StartedAt
		}
		if !found || job.CompletedAt.After(latest) {
			latest = *job.CompletedAt
		}
		found = true
	}
	if !found {
		return nil
	}
	d := latest.Sub(earliest)
	return &d
}
