package github

import (
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// repositoryPayload is the subset of GET /repos/{owner}/{repo} we consume
type repositoryPayload struct {
	ID       int64  `json:"id" validate:"required,gt=0"`
	Name     string `json:"name" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Private  bool   `json:"private"`
}

// workflowPayload represents a GitHub Actions workflow
type workflowPayload struct {
	ID        int64     `json:"id" validate:"required,gt=0"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Path      string    `json:"path" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// runPayload represents a GitHub Actions workflow run
type runPayload struct {
	ID         int64          `json:"id" validate:"required,gt=0"`
	Name       string         `json:"name"`
	HeadBranch string         `json:"head_branch"`
	HeadSha    string         `json:"head_sha"`
	Path       string         `json:"path"`
	RunNumber  int            `json:"run_number"`
	Event      string         `json:"event"`
	Status     string         `json:"status"`
	Conclusion string         `json:"conclusion"`
	WorkflowID int64          `json:"workflow_id"`
	CreatedAt  time.Time      `json:"created_at" validate:"required"`
	UpdatedAt  time.Time      `json:"updated_at"`
	HeadCommit *commitPayload `json:"head_commit"`
}

// jobPayload represents a job in a workflow run
type jobPayload struct {
	ID          int64         `json:"id" validate:"required,gt=0"`
	RunID       int64         `json:"run_id"`
	Name        string        `json:"name" validate:"required"`
	Status      string        `json:"status"`
	Conclusion  string        `json:"conclusion"`
	StartedAt   *time.Time    `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at"`
	Steps       []stepPayload `json:"steps"`
}

// stepPayload represents a step in a job
type stepPayload struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	Number     int    `json:"number"`
}

// commitPayload represents the head commit of a run
type commitPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// contentPayload is the response of GET /repos/{owner}/{repo}/contents/{path}
type contentPayload struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	Path     string `json:"path"`
}

func (p repositoryPayload) toModel() *models.Repository {
	return &models.Repository{
		ID:       p.ID,
		Name:     p.Name,
		FullName: p.FullName,
		Provider: models.ProviderGitHub,
	}
}

func (p workflowPayload) toModel() models.Workflow {
	return models.Workflow{
		ID:    p.ID,
		Name:  p.Name,
		Path:  p.Path,
		State: p.State,
	}
}

// toModel maps a run. The provider has no completion time, so updated_at stands in for it
// once the run has completed.
func (p runPayload) toModel() models.WorkflowRun {
	run := models.WorkflowRun{
		ID:          p.ID,
		Status:      p.Status,
		Conclusion:  p.Conclusion,
		Branch:      p.HeadBranch,
		CommitSHA:   p.HeadSha,
		TriggeredAt: p.CreatedAt,
		RunNumber:   p.RunNumber,
		Event:       p.Event,
	}
	if p.Status == "completed" && !p.UpdatedAt.IsZero() {
		completed := p.UpdatedAt
		run.CompletedAt = &completed
	}
	if p.HeadCommit != nil {
		run.CommitMessage = p.HeadCommit.Message
	}
	return run
}

func (p jobPayload) toModel() models.Job {
	job := models.Job{
		ID:          p.ID,
		Name:        p.Name,
		Status:      p.Status,
		Conclusion:  p.Conclusion,
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
	}
	for _, s := range p.Steps {
		job.Steps = append(job.Steps, models.Step{
			Name:       s.Name,
			Status:     s.Status,
			Conclusion: s.Conclusion,
			Number:     s.Number,
		})
	}
	return job
}
