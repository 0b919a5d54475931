package logs

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ansiPattern      = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z `)
)

// Marker classifies a runner log line by its workflow command prefix.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerGroup
	MarkerEndGroup
	MarkerError
	MarkerWarning
	MarkerCommand
	MarkerDebug
)

var markerPrefixes = []struct {
	prefix string
	marker Marker
}{
	{"##[group]", MarkerGroup},
	{"##[endgroup]", MarkerEndGroup},
	{"##[error]", MarkerError},
	{"##[warning]", MarkerWarning},
	{"##[command]", MarkerCommand},
	{"##[debug]", MarkerDebug},
}

// Line is a single runner log line with its timestamp and marker removed.
type Line struct {
	Text   string
	Marker Marker
}

// Parse splits raw job logs into lines.
func Parse(raw string) []Line {
	if raw == "" {
		return nil
	}
	raw = strings.TrimPrefix(raw, "\ufeff")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimSuffix(raw, "\n")

	parts := strings.Split(raw, "\n")
	lines := make([]Line, len(parts))
	for i, part := range parts {
		lines[i] = parseLine(part)
	}
	return lines
}

func parseLine(s string) Line {
	s = StripTimestamp(s)
	for _, mp := range markerPrefixes {
		if strings.HasPrefix(s, mp.prefix) {
			return Line{Text: strings.TrimPrefix(s, mp.prefix), Marker: mp.marker}
		}
	}
	return Line{Text: s}
}

// StripANSI removes ANSI color sequences from a string
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// StripTimestamp removes the RFC 3339 prefix the runner writes on each line.
func StripTimestamp(s string) string {
	return timestampPattern.ReplaceAllString(s, "")
}

// Clean returns plain text logs without timestamps, markers or colors.
func Clean(raw string) string {
	lines := Parse(raw)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Marker == MarkerEndGroup {
			continue
		}
		out = append(out, StripANSI(l.Text))
	}
	return strings.Join(out, "\n")
}

// Errors returns the text of every ##[error] line.
func Errors(raw string) []string {
	var errs []string
	for _, l := range Parse(raw) {
		if l.Marker == MarkerError {
			errs = append(errs, StripANSI(l.Text))
		}
	}
	return errs
}

// Processor renders job logs for the terminal.
type Processor struct {
	baseStyle    lipgloss.Style
	groupStyle   lipgloss.Style
	errorStyle   lipgloss.Style
	warningStyle lipgloss.Style
	commandStyle lipgloss.Style
}

// NewProcessor creates a log renderer on top of baseStyle
func NewProcessor(baseStyle lipgloss.Style) *Processor {
	return &Processor{
		baseStyle:    baseStyle,
		groupStyle:   baseStyle.Bold(true).Foreground(lipgloss.Color("#00ffff")),
		errorStyle:   baseStyle.Bold(true).Foreground(lipgloss.Color("#ff0000")),
		warningStyle: baseStyle.Foreground(lipgloss.Color("#ffff00")),
		commandStyle: baseStyle.Foreground(lipgloss.Color("#808080")),
	}
}

// Render returns the logs with markers highlighted and ANSI colors mapped to styles.
// Group bodies are indented; ##[endgroup] lines are dropped.
func (p *Processor) Render(raw string) string {
	lines := Parse(raw)
	out := make([]string, 0, len(lines))
	inGroup := false
	for _, l := range lines {
		switch l.Marker {
		case MarkerGroup:
			inGroup = true
			out = append(out, p.groupStyle.Render("▸ "+StripANSI(l.Text)))
		case MarkerEndGroup:
			inGroup = false
		case MarkerError:
			out = append(out, p.errorStyle.Render("Error: "+StripANSI(l.Text)))
		case MarkerWarning:
			out = append(out, p.warningStyle.Render("Warning: "+StripANSI(l.Text)))
		case MarkerCommand:
			out = append(out, p.commandStyle.Render("$ "+StripANSI(l.Text)))
		default:
			text := p.renderANSI(l.Text)
			if inGroup {
				text = "  " + text
			}
			out = append(out, text)
		}
	}
	return strings.Join(out, "\n")
}

func (p *Processor) renderANSI(line string) string {
	if !strings.Contains(line, "\x1b[") {
		return line
	}

	var b strings.Builder
	style := p.baseStyle
	pos := 0
	for _, m := range ansiPattern.FindAllStringIndex(line, -1) {
		if m[0] > pos {
			b.WriteString(style.Render(line[pos:m[0]]))
		}
		style = p.applySGR(style, line[m[0]:m[1]])
		pos = m[1]
	}
	if pos < len(line) {
		b.WriteString(style.Render(line[pos:]))
	}
	return b.String()
}

var sgrColors = map[string]string{
	"30": "#000000", "31": "#ff0000", "32": "#00ff00", "33": "#ffff00",
	"34": "#0000ff", "35": "#ff00ff", "36": "#00ffff", "37": "#ffffff",
	"90": "#808080", "91": "#ff8080", "92": "#80ff80", "93": "#ffff80",
	"94": "#8080ff", "95": "#ff80ff", "96": "#80ffff", "97": "#ffffff",
}

func (p *Processor) applySGR(style lipgloss.Style, seq string) lipgloss.Style {
	codes := strings.TrimSuffix(strings.TrimPrefix(seq, "\x1b["), "m")
	if codes == "" {
		codes = "0"
	}
	for _, code := range strings.Split(codes, ";") {
		switch code {
		case "0":
			style = p.baseStyle
		case "1":
			style = style.Bold(true)
		case "2":
			style = style.Faint(true)
		case "3":
			style = style.Italic(true)
		case "4":
			style = style.Underline(true)
		default:
			if c, ok := sgrColors[code]; ok {
				style = style.Foreground(lipgloss.Color(c))
			}
		}
	}
	return style
}
