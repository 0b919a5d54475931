package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the dashboard
type KeyMap struct {
	// Navigation
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	// Actions
	Enter   key.Binding
	Refresh key.Binding
	Back    key.Binding
	Analyze key.Binding
	Watch   key.Binding

	// Application
	Quit key.Binding
	Help key.Binding
}

// DefaultKeyMap returns the vim-style key map
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "move down"),
		),
		Left: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "back"),
		),
		Right: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "open"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("ctrl+u", "pgup"),
			key.WithHelp("ctrl+u/pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("ctrl+d", "pgdown"),
			key.WithHelp("ctrl+d/pgdown", "page down"),
		),
		Home: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g/home", "go to start"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G/end", "go to end"),
		),

		Enter: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter/space", "select"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Analyze: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "security scan"),
		),
		Watch: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle watch"),
		),

		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Back, k.Analyze, k.Refresh, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.PageUp, k.PageDown, k.Home, k.End},
		{k.Enter, k.Back, k.Refresh},
		{k.Analyze, k.Watch},
		{k.Help, k.Quit},
	}
}

// ForView narrows the help to the bindings that act in view
func (k KeyMap) ForView(view ViewState) ViewKeys {
	return ViewKeys{keys: k, view: view}
}

// ViewKeys is the help key map of a single view
type ViewKeys struct {
	keys KeyMap
	view ViewState
}

func (v ViewKeys) open(desc string) key.Binding {
	b := v.keys.Enter
	b.SetHelp("enter", desc)
	return b
}

// ShortHelp implements help.KeyMap
func (v ViewKeys) ShortHelp() []key.Binding {
	k := v.keys
	switch v.view {
	case WorkflowListView:
		return []key.Binding{v.open("runs"), k.Analyze, k.Watch, k.Help, k.Quit}
	case WorkflowRunsView:
		return []key.Binding{v.open("job graph"), k.Back, k.Analyze, k.Watch, k.Help, k.Quit}
	case RunGraphView:
		return []key.Binding{v.open("job logs"), k.Back, k.Refresh, k.Help, k.Quit}
	case JobLogsView, AnalysisView:
		return []key.Binding{k.Down, k.PageDown, k.End, k.Back, k.Help, k.Quit}
	default:
		return k.ShortHelp()
	}
}

// FullHelp implements help.KeyMap
func (v ViewKeys) FullHelp() [][]key.Binding {
	k := v.keys
	switch v.view {
	case RunGraphView:
		return [][]key.Binding{
			{k.Up, k.Down, v.open("job logs"), k.Back},
			{k.Refresh, k.Analyze},
			{k.Help, k.Quit},
		}
	case JobLogsView, AnalysisView:
		return [][]key.Binding{
			{k.Up, k.Down, k.PageUp, k.PageDown},
			{k.Home, k.End, k.Back},
			{k.Help, k.Quit},
		}
	default:
		return k.FullHelp()
	}
}
