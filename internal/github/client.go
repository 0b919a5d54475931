package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/cli/go-gh/v2/pkg/repository"
	"github.com/go-playground/validator/v10"
	"github.com/ryo246912/gh-actions-scan/internal/metrics"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"golang.org/x/time/rate"
)

// ErrorType represents different types of GitHub API errors
type ErrorType string

const (
	ErrorTypeAuth       ErrorType = "authentication"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeInvalid    ErrorType = "invalid_response"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// GitHubError represents a detailed GitHub API error
type GitHubError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Details    string
	Err        error
}

func (e *GitHubError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GitHubError) Unwrap() error {
	return e.Err
}

// Is lets callers match provider failures against the classified sentinels in models
func (e *GitHubError) Is(target error) bool {
	t, ok := target.(*models.Error)
	if !ok {
		return false
	}
	switch t.Kind {
	case models.KindAuthentication:
		return e.Type == ErrorTypeAuth || e.Type == ErrorTypePermission
	case models.KindNotFound:
		return e.Type == ErrorTypeNotFound
	}
	return false
}

// categorizeError categorizes the error based on HTTP status code and error message
func categorizeError(err error) *GitHubError {
	if err == nil {
		return nil
	}

	var ghErr *GitHubError
	if errors.As(err, &ghErr) {
		return ghErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &GitHubError{
			Type:    ErrorTypeNetwork,
			Message: "request cancelled",
			Err:     err,
		}
	}

	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		ge := &GitHubError{StatusCode: httpErr.StatusCode, Err: err}
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized:
			ge.Type = ErrorTypeAuth
			ge.Message = "authentication failed: the GitHub token is invalid or expired"
			ge.Details = "run `gh auth login` or set GH_TOKEN"
		case httpErr.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(httpErr.Message), "rate limit"):
			ge.Type = ErrorTypeRateLimit
			ge.Message = "GitHub API rate limit exceeded"
			ge.Details = "wait for the limit to reset and try again"
		case httpErr.StatusCode == http.StatusForbidden:
			ge.Type = ErrorTypePermission
			ge.Message = "permission denied: the token cannot access this repository"
			ge.Details = "check that the repository exists and the token has the actions:read scope"
		case httpErr.StatusCode == http.StatusNotFound:
			ge.Type = ErrorTypeNotFound
			ge.Message = "repository or resource not found"
			ge.Details = "check the owner and repository name"
		case httpErr.StatusCode == http.StatusTooManyRequests:
			ge.Type = ErrorTypeRateLimit
			ge.Message = "GitHub API rate limit exceeded"
			ge.Details = "wait for the limit to reset and try again"
		case httpErr.StatusCode >= 500:
			ge.Type = ErrorTypeServer
			ge.Message = "GitHub API server error"
		default:
			ge.Type = ErrorTypeUnknown
			ge.Message = "unexpected GitHub API response"
		}
		return ge
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &GitHubError{
			Type:    ErrorTypeNetwork,
			Message: "network error: cannot reach GitHub",
			Details: "check your internet connection",
			Err:     err,
		}
	}

	return &GitHubError{
		Type:    ErrorTypeUnknown,
		Message: "unexpected error",
		Details: err.Error(),
		Err:     err,
	}
}

// RetryConfig defines retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// isRetryableError reports whether the failure is transient.
// Authentication, permission and not-found failures are never retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	ge := categorizeError(err)
	return ge.Type == ErrorTypeNetwork || ge.Type == ErrorTypeServer
}

// retryWithBackoff executes a function with exponential backoff retry
func retryWithBackoff(ctx context.Context, config RetryConfig, onRetry func(), operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == config.MaxRetries || !isRetryableError(err) {
			break
		}

		delay := config.InitialDelay * time.Duration(1<<attempt)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		if onRetry != nil {
			onRetry()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Options configures a Client
type Options struct {
	Host              string
	Token             string
	Transport         http.RoundTripper
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryConfig
	MaxLogBytes       int64
	Logger            *slog.Logger
}

// DefaultMaxLogBytes caps the size of a single job log read into memory
const DefaultMaxLogBytes = 1 << 20

// Client is a GitHub Actions API client scoped to one repository
type Client struct {
	restClient  *api.RESTClient
	owner       string
	repo        string
	retryConfig RetryConfig
	limiter     *rate.Limiter
	validate    *validator.Validate
	maxLogBytes int64
	logger      *slog.Logger
}

// NewClient creates a GitHub API client for the given repository
func NewClient(repo repository.Repository, opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, &GitHubError{
			Type:    ErrorTypeAuth,
			Message: "no GitHub token available",
			Details: "run `gh auth login` or set GH_TOKEN",
		}
	}

	host := repo.Host
	if host == "" {
		host = opts.Host
	}

	restClient, err := api.NewRESTClient(api.ClientOptions{
		AuthToken: opts.Token,
		Host:      host,
		Transport: opts.Transport,
		Timeout:   opts.Timeout,
		Headers:   map[string]string{"X-GitHub-Api-Version": "2022-11-28"},
	})
	if err != nil {
		return nil, categorizeError(err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(opts.RequestsPerSecond)+1)
	}

	retry := opts.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}

	maxLogBytes := opts.MaxLogBytes
	if maxLogBytes <= 0 {
		maxLogBytes = DefaultMaxLogBytes
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		restClient:  restClient,
		owner:       repo.Owner,
		repo:        repo.Name,
		retryConfig: retry,
		limiter:     limiter,
		validate:    validator.New(),
		maxLogBytes: maxLogBytes,
		logger:      logger.With("repository", repo.Owner+"/"+repo.Name),
	}, nil
}

func (c *Client) repoPath(format string, args ...any) string {
	return fmt.Sprintf("repos/%s/%s/", c.owner, c.repo) + fmt.Sprintf(format, args...)
}

// get performs a rate limited, retried GET and decodes the JSON body into response
func (c *Client) get(ctx context.Context, endpoint, path string, response any) error {
	err := retryWithBackoff(ctx, c.retryConfig, func() {
		metrics.ProviderRetries.WithLabelValues(endpoint).Inc()
	}, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.restClient.DoWithContext(ctx, http.MethodGet, path, nil, response)
	})
	return c.observe(endpoint, err)
}

func (c *Client) observe(endpoint string, err error) error {
	if err == nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "ok").Inc()
		return nil
	}
	ge := categorizeError(err)
	metrics.ProviderRequests.WithLabelValues(endpoint, string(ge.Type)).Inc()
	return ge
}

// GetRepository returns repository information
func (c *Client) GetRepository(ctx context.Context) (*models.Repository, error) {
	var payload repositoryPayload
	if err := c.get(ctx, "repository", fmt.Sprintf("repos/%s/%s", c.owner, c.repo), &payload); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(payload); err != nil {
		return nil, &GitHubError{Type: ErrorTypeInvalid, Message: "invalid repository response", Err: err}
	}
	return payload.toModel(), nil
}

// ListWorkflows returns all workflows for the repository
func (c *Client) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	response := struct {
		Workflows  []workflowPayload `json:"workflows"`
		TotalCount int               `json:"total_count"`
	}{}

	if err := c.get(ctx, "workflows", c.repoPath("actions/workflows?per_page=100"), &response); err != nil {
		return nil, err
	}

	workflows := make([]models.Workflow, 0, len(response.Workflows))
	for _, w := range response.Workflows {
		if err := c.validate.Struct(w); err != nil {
			c.logger.Warn("skipping malformed workflow", "workflow_id", w.ID, "error", err)
			continue
		}
		workflows = append(workflows, w.toModel())
	}
	return workflows, nil
}

// ListWorkflowRuns returns up to limit runs of a workflow, most recent first
func (c *Client) ListWorkflowRuns(ctx context.Context, workflowID int64, limit int) ([]models.WorkflowRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	response := struct {
		WorkflowRuns []runPayload `json:"workflow_runs"`
	}{}

	path := c.repoPath("actions/workflows/%d/runs?per_page=%d", workflowID, limit)
	if err := c.get(ctx, "runs", path, &response); err != nil {
		return nil, err
	}

	runs := make([]models.WorkflowRun, 0, len(response.WorkflowRuns))
	for _, r := range response.WorkflowRuns {
		if err := c.validate.Struct(r); err != nil {
			c.logger.Warn("skipping malformed run", "run_id", r.ID, "error", err)
			continue
		}
		runs = append(runs, r.toModel())
		if len(runs) == limit {
			break
		}
	}
	return runs, nil
}

// GetWorkflowRun returns a single run and the workflow it belongs to
func (c *Client) GetWorkflowRun(ctx context.Context, runID int64) (*models.RunDetail, error) {
	var payload runPayload
	if err := c.get(ctx, "run", c.repoPath("actions/runs/%d", runID), &payload); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(payload); err != nil {
		return nil, &GitHubError{Type: ErrorTypeInvalid, Message: "invalid run response", Err: err}
	}
	return &models.RunDetail{
		Run:          payload.toModel(),
		WorkflowID:   payload.WorkflowID,
		WorkflowName: payload.Name,
		WorkflowPath: payload.Path,
	}, nil
}

// ListRunJobs returns the jobs of a run, including their steps
func (c *Client) ListRunJobs(ctx context.Context, runID int64) ([]models.Job, error) {
	response := struct {
		Jobs []jobPayload `json:"jobs"`
	}{}

	if err := c.get(ctx, "jobs", c.repoPath("actions/runs/%d/jobs?per_page=100", runID), &response); err != nil {
		return nil, err
	}

	jobs := make([]models.Job, 0, len(response.Jobs))
	for _, j := range response.Jobs {
		if err := c.validate.Struct(j); err != nil {
			c.logger.Warn("skipping malformed job", "run_id", runID, "job_id", j.ID, "error", err)
			continue
		}
		jobs = append(jobs, j.toModel())
	}
	return jobs, nil
}

// TruncatedLogMarker prefixes job logs that were cut to their last MaxLogBytes
const TruncatedLogMarker = "[... earlier log output truncated ...]\n"

// GetJobLogs returns the plain-text log of a job. Logs over the configured size keep
// their end, where failures are reported.
func (c *Client) GetJobLogs(ctx context.Context, jobID int64) (string, error) {
	var logs string
	err := retryWithBackoff(ctx, c.retryConfig, func() {
		metrics.ProviderRetries.WithLabelValues("logs").Inc()
	}, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.restClient.RequestWithContext(ctx, http.MethodGet, c.repoPath("actions/jobs/%d/logs", jobID), nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		data, truncated, err := readTail(resp.Body, c.maxLogBytes)
		if err != nil {
			return fmt.Errorf("failed to read job logs: %w", err)
		}
		logs = string(data)
		if truncated {
			logs = TruncatedLogMarker + logs
		}
		return nil
	})
	if err := c.observe("logs", err); err != nil {
		return "", err
	}
	return logs, nil
}

// readTail reads r to the end and keeps at most the last limit bytes, starting on a rune
// boundary. Memory stays under twice the limit.
func readTail(r io.Reader, limit int64) ([]byte, bool, error) {
	buf := make([]byte, 0, min(limit, 64*1024))
	chunk := make([]byte, 32*1024)
	truncated := false
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if int64(len(buf)) > 2*limit {
			buf = append(buf[:0], buf[int64(len(buf))-limit:]...)
			truncated = true
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
	}

	if int64(len(buf)) > limit {
		buf = buf[int64(len(buf))-limit:]
		truncated = true
	}
	if truncated {
		start := 0
		for start < len(buf) && !utf8.RuneStart(buf[start]) {
			start++
		}
		buf = buf[start:]
	}
	return buf, truncated, nil
}

// GetFileContent returns the decoded content of a file at ref (default branch when empty)
func (c *Client) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	endpoint := c.repoPath("contents/%s", strings.TrimPrefix(path, "/"))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	var payload contentPayload
	if err := c.get(ctx, "contents", endpoint, &payload); err != nil {
		return "", err
	}

	if payload.Encoding != "base64" {
		return payload.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return "", &GitHubError{Type: ErrorTypeInvalid, Message: "invalid file content encoding", Err: err}
	}
	return string(decoded), nil
}
