package components

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

func TestDisplayStatus(t *testing.T) {
	assert.Equal(t, "failure", DisplayStatus("completed", "failure"))
	assert.Equal(t, "in_progress", DisplayStatus("in_progress", ""))
	assert.Equal(t, "unknown", DisplayStatus("", ""))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{42 * time.Second, "42s"},
		{7 * time.Minute, "7m"},
		{90 * time.Minute, "1.5h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	assert.Equal(t, 10*time.Minute, RunDuration(models.WorkflowRun{TriggeredAt: start, CompletedAt: &end}))
	assert.Zero(t, RunDuration(models.WorkflowRun{TriggeredAt: start}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "日本語...", truncate("日本語のワークフロー", 6))
	assert.Equal(t, "", truncate("anything", 0))
}
