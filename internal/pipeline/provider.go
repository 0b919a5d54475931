package pipeline

import (
	"context"

	"github.com/cli/go-gh/v2/pkg/repository"
	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// Provider is a CI/CD API client scoped to one repository
type Provider interface {
	GetRepository(ctx context.Context) (*models.Repository, error)
	ListWorkflows(ctx context.Context) ([]models.Workflow, error)
	ListWorkflowRuns(ctx context.Context, workflowID int64, limit int) ([]models.WorkflowRun, error)
	GetWorkflowRun(ctx context.Context, runID int64) (*models.RunDetail, error)
	ListRunJobs(ctx context.Context, runID int64) ([]models.Job, error)
	GetJobLogs(ctx context.Context, jobID int64) (string, error)
	GetFileContent(ctx context.Context, path, ref string) (string, error)
}

// ClientResolver returns a Provider authenticated for repo on behalf of userID
type ClientResolver interface {
	ClientFor(ctx context.Context, userID string, repo repository.Repository) (Provider, error)
}

// ResolverFunc adapts a function to ClientResolver
type ResolverFunc func(ctx context.Context, userID string, repo repository.Repository) (Provider, error)

func (f ResolverFunc) ClientFor(ctx context.Context, userID string, repo repository.Repository) (Provider, error) {
	return f(ctx, userID, repo)
}

// ParseRepository parses "owner/repo", "host/owner/repo" or a repository URL
func ParseRepository(identifier string) (repository.Repository, error) {
	repo, err := repository.Parse(identifier)
	if err != nil {
		return repository.Repository{}, &models.Error{
			Kind:       models.KindInvalidInput,
			Message:    "malformed repository identifier, expected owner/repo",
			Repository: identifier,
			Err:        err,
		}
	}
	return repo, nil
}

// FullName returns "owner/repo"
func FullName(repo repository.Repository) string {
	return repo.Owner + "/" + repo.Name
}
