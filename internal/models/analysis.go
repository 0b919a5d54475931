package models

import "time"

// RiskLevel grades the overall or per-issue severity of an analysis
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// Rank orders risk levels, higher is worse. Unknown levels rank lowest.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// SecurityIssue is a single finding reported by the analyzer
type SecurityIssue struct {
	Severity       RiskLevel `json:"severity" validate:"required,oneof=critical high medium low"`
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description" validate:"required"`
	Location       string    `json:"location,omitempty"`
	Recommendation string    `json:"recommendation" validate:"required"`
	SuggestedFix   string    `json:"suggestedFix,omitempty"`
	Category       string    `json:"category" validate:"required"`
}

// AnalysisResult is the analyzer verdict for one workflow content and log pair.
// Cached and CacheHitAt are set only when the result is served from the cache.
type AnalysisResult struct {
	AnalysisID  string          `json:"analysisId"`
	Timestamp   time.Time       `json:"timestamp"`
	OverallRisk RiskLevel       `json:"overallRisk"`
	Summary     string          `json:"summary"`
	Issues      []SecurityIssue `json:"issues"`
	Cached      bool            `json:"cached"`
	CacheHitAt  *time.Time      `json:"cacheHitAt,omitempty"`
}

// IssueCounts returns the number of issues per severity
func (a *AnalysisResult) IssueCounts() map[RiskLevel]int {
	counts := make(map[RiskLevel]int, 4)
	for _, issue := range a.Issues {
		counts[issue.Severity]++
	}
	return counts
}

// AnalysisResponse pairs an analysis with the snapshot it was computed from
type AnalysisResponse struct {
	Snapshot *PipelineSnapshot `json:"pipelineData"`
	Analysis *AnalysisResult   `json:"analysis"`
}

// CacheEntry is a stored analysis keyed by repository and content fingerprint
type CacheEntry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	RepositoryID string         `json:"repositoryId"`
	ContentHash  string         `json:"contentHash"`
	WorkflowPath string         `json:"workflowPath"`
	WorkflowName string         `json:"workflowName"`
	Provider     string         `json:"provider"`
	Analysis     AnalysisResult `json:"analysis"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	ExpiresAt    time.Time      `json:"expiresAt"`
}

// ExpiredAt reports whether the entry is no longer valid at now
func (e *CacheEntry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
