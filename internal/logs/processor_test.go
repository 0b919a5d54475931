package logs

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

const sample = "\ufeff2024-05-01T10:00:00.1234567Z ##[group]Run actions/checkout@v4\r\n" +
	"2024-05-01T10:00:00.2000000Z with:\r\n" +
	"2024-05-01T10:00:01.0000000Z ##[endgroup]\r\n" +
	"2024-05-01T10:00:02.0000000Z \x1b[32mok\x1b[0m tests passed\r\n" +
	"2024-05-01T10:00:03.0000000Z ##[error]Process completed with exit code 1.\r\n"

func TestParse(t *testing.T) {
	lines := Parse(sample)

	assert.Equal(t, []Line{
		{Text: "Run actions/checkout@v4", Marker: MarkerGroup},
		{Text: "with:"},
		{Text: "", Marker: MarkerEndGroup},
		{Text: "\x1b[32mok\x1b[0m tests passed"},
		{Text: "Process completed with exit code 1.", Marker: MarkerError},
	}, lines)
}

func TestParse_Empty(t *testing.T) {
	assert.Nil(t, Parse(""))
}

func TestClean(t *testing.T) {
	assert.Equal(t,
		"Run actions/checkout@v4\nwith:\nok tests passed\nProcess completed with exit code 1.",
		Clean(sample))
}

func TestErrors(t *testing.T) {
	assert.Equal(t, []string{"Process completed with exit code 1."}, Errors(sample))
	assert.Empty(t, Errors("plain line\nanother"))
}

func TestStripTimestamp_OnlyLeadingPrefix(t *testing.T) {
	assert.Equal(t, "echo 2024-05-01T10:00:00Z done", StripTimestamp("2024-05-01T10:00:00Z echo 2024-05-01T10:00:00Z done"))
	assert.Equal(t, "no timestamp", StripTimestamp("no timestamp"))
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "bold red", StripANSI("\x1b[1;31mbold red\x1b[0m"))
}

func TestProcessor_Render(t *testing.T) {
	p := NewProcessor(lipgloss.NewStyle())
	out := StripANSI(p.Render(sample))

	assert.Contains(t, out, "▸ Run actions/checkout@v4")
	assert.Contains(t, out, "  with:")
	assert.Contains(t, out, "ok tests passed")
	assert.Contains(t, out, "Error: Process completed with exit code 1.")
	assert.NotContains(t, out, "endgroup")
	assert.Len(t, strings.Split(out, "\n"), 4)
}
