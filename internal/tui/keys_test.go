package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/assert"
)

func helpDescs(bindings []key.Binding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Help().Desc
	}
	return out
}

func TestKeyMapForView(t *testing.T) {
	keys := DefaultKeyMap()

	list := helpDescs(keys.ForView(WorkflowListView).ShortHelp())
	assert.Contains(t, list, "runs")
	assert.Contains(t, list, "security scan")
	assert.NotContains(t, list, "back")

	graph := helpDescs(keys.ForView(RunGraphView).ShortHelp())
	assert.Contains(t, graph, "job logs")
	assert.Contains(t, graph, "back")

	logs := helpDescs(keys.ForView(JobLogsView).ShortHelp())
	assert.Contains(t, logs, "page down")
	assert.NotContains(t, logs, "security scan")

	var full []string
	for _, group := range keys.ForView(AnalysisView).FullHelp() {
		full = append(full, helpDescs(group)...)
	}
	assert.Contains(t, full, "go to start")
	assert.NotContains(t, full, "toggle watch")

	assert.Equal(t, "select", keys.Enter.Help().Desc, "per-view labels do not leak into the shared map")
}
