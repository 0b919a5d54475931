package models

import "time"

// ProviderGitHub tags snapshots built from the GitHub Actions API
const ProviderGitHub = "github"

// Repository identifies the repository a snapshot was taken from
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Provider string `json:"provider"`
}

// Workflow is a workflow definition together with its most recent runs.
// RecentRuns is ordered most-recent-first, as returned by the provider.
type Workflow struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	State      string        `json:"state"`
	Content    string        `json:"content"`
	RecentRuns []WorkflowRun `json:"recentRuns"`
}

// WorkflowRun is one execution of a workflow.
// Empty Status or Conclusion means the provider did not report one.
type WorkflowRun struct {
	ID            int64      `json:"id"`
	Status        string     `json:"status,omitempty"`
	Conclusion    string     `json:"conclusion,omitempty"`
	Branch        string     `json:"branch"`
	CommitSHA     string     `json:"commitSha"`
	CommitMessage string     `json:"commitMessage"`
	TriggeredAt   time.Time  `json:"triggeredAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	RunNumber     int        `json:"runNumber"`
	Event         string     `json:"event"`
	Jobs          []Job      `json:"jobs"`
}

// Job is a unit of execution inside a run
type Job struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status,omitempty"`
	Conclusion  string     `json:"conclusion,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Steps       []Step     `json:"steps,omitempty"`
	Logs        string     `json:"logs"`
}

// Duration returns the wall-clock time of the job, or zero if it has not finished
func (j Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Step is a single step of a job
type Step struct {
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
	Number     int    `json:"number"`
}

// PipelineSummary holds aggregate counters over a snapshot
type PipelineSummary struct {
	TotalWorkflows  int    `json:"totalWorkflows"`
	TotalRuns       int    `json:"totalRuns"`
	LatestRunStatus string `json:"latestRunStatus,omitempty"`
}

// PipelineSnapshot is the normalized view of a repository's CI/CD state
type PipelineSnapshot struct {
	Repository Repository      `json:"repository"`
	Workflows  []Workflow      `json:"workflows"`
	Summary    PipelineSummary `json:"summary"`
	FetchedAt  time.Time       `json:"fetchedAt"`
}

// Summarize computes the summary counters for the given workflows.
// The latest run is the one with the greatest TriggeredAt; the first seen wins ties.
func Summarize(workflows []Workflow) PipelineSummary {
	summary := PipelineSummary{TotalWorkflows: len(workflows)}

	var latest *WorkflowRun
	for i := range workflows {
		runs := workflows[i].RecentRuns
		summary.TotalRuns += len(runs)
		for j := range runs {
			if latest == nil || runs[j].TriggeredAt.After(latest.TriggeredAt) {
				latest = &runs[j]
			}
		}
	}
	if latest != nil {
		summary.LatestRunStatus = latest.Status
	}

	return summary
}

// FirstWorkflowWithRuns returns the first workflow that has at least one run
func (s *PipelineSnapshot) FirstWorkflowWithRuns() (*Workflow, bool) {
	for i := range s.Workflows {
		if len(s.Workflows[i].RecentRuns) > 0 {
			return &s.Workflows[i], true
		}
	}
	return nil, false
}

// RunDetail is a single run together with the workflow it belongs to
type RunDetail struct {
	Run          WorkflowRun
	WorkflowID   int64
	WorkflowName string
	WorkflowPath string
}
