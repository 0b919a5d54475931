package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryo246912/gh-actions-scan/internal/github"
	"github.com/ryo246912/gh-actions-scan/internal/logs"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/ryo246912/gh-actions-scan/internal/tui/components"
)

// Loader fetches dashboard data for a single repository
type Loader interface {
	Snapshot(ctx context.Context) (*models.PipelineSnapshot, error)
	RunGraph(ctx context.Context, runID int64) (*models.WorkflowGraph, error)
	Analyze(ctx context.Context) (*models.AnalysisResponse, error)
}

// ViewState represents the current view state
type ViewState int

const (
	WorkflowListView ViewState = iota
	WorkflowRunsView
	RunGraphView
	JobLogsView
	AnalysisView
)

// App is the bubbletea model of the dashboard
type App struct {
	loader  Loader
	repo    string
	timeout time.Duration

	viewState ViewState
	prevView  ViewState
	keyMap    KeyMap
	styles    Styles
	help      help.Model

	snapshot        *models.PipelineSnapshot
	currentWorkflow *models.Workflow
	currentRun      *models.WorkflowRun
	graph           *models.WorkflowGraph
	currentJob      *models.Job
	analysis        *models.AnalysisResponse

	workflowList list.Model
	runsList     list.Model
	nodeList     list.Model

	previewPanel *components.PreviewPanel
	logProcessor *logs.Processor

	// pager holds the rendered lines of the logs and analysis views
	pager      []string
	pageOffset int

	width  int
	height int

	loading     bool
	loadingText string
	err         error

	watchMode     bool
	watchGen      int
	watchInterval time.Duration
	lastUpdated   time.Time
}

func newList(delegate list.ItemDelegate, title string, styles Styles) list.Model {
	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = styles.GetTitle()
	return l
}

// NewApp creates the dashboard for repo. timeout bounds each load; zero means no limit.
func NewApp(loader Loader, repo string, timeout time.Duration) *App {
	styles := DefaultStyles()

	return &App{
		loader:        loader,
		repo:          repo,
		timeout:       timeout,
		viewState:     WorkflowListView,
		keyMap:        DefaultKeyMap(),
		styles:        styles,
		help:          help.New(),
		workflowList:  newList(components.NewWorkflowItemDelegate(styles), "Workflows", styles),
		runsList:      newList(components.NewRunItemDelegate(styles), "Runs", styles),
		nodeList:      newList(components.NewNodeItemDelegate(styles), "Jobs", styles),
		previewPanel:  components.NewPreviewPanel(styles),
		logProcessor:  logs.NewProcessor(lipgloss.NewStyle()),
		loading:       true,
		loadingText:   "Loading pipeline snapshot...",
		watchInterval: 15 * time.Second,
	}
}

// Init starts loading the snapshot
func (a *App) Init() tea.Cmd {
	return a.loadSnapshot()
}

// Update handles messages and updates the application state
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.updateListSizes()
		return a, nil

	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case snapshotLoadedMsg:
		a.snapshot = msg.snapshot
		a.loading = false
		a.lastUpdated = time.Now()
		a.updateWorkflowList()
		a.reselect()

		if !a.watchMode && a.hasRunningRuns() {
			a.watchMode = true
			a.watchGen++
			return a, a.watchTick()
		}
		return a, nil

	case graphLoadedMsg:
		if a.currentRun == nil || a.currentRun.ID != msg.runID {
			return a, nil
		}
		a.graph = msg.graph
		a.loading = false
		a.updateNodeList()
		return a, nil

	case analysisLoadedMsg:
		a.analysis = msg.response
		a.loading = false
		a.openPager(components.RenderAnalysis(a.styles, msg.response))
		a.viewState = AnalysisView
		return a, nil

	case errorMsg:
		a.err = msg.err
		a.loading = false
		return a, nil

	case watchTickMsg:
		if a.watchMode && msg.gen == a.watchGen {
			return a, tea.Batch(a.reloadSnapshot(), a.watchTick())
		}
		return a, nil
	}

	return a.updateLists(msg)
}

// View renders the application
func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Loading..."
	}
	if a.err != nil {
		return a.renderError(a.err)
	}
	if a.loading {
		return a.styles.GetStatusInProgress().Render(a.loadingText)
	}

	switch a.viewState {
	case WorkflowListView:
		return a.renderWorkflowListView()
	case WorkflowRunsView:
		return a.renderWorkflowRunsView()
	case RunGraphView:
		return a.renderRunGraphView()
	case JobLogsView, AnalysisView:
		return a.renderPagerView()
	default:
		return "Unknown view state"
	}
}

func (a *App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keyMap.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keyMap.Help):
		a.help.ShowAll = !a.help.ShowAll
		return a, nil

	case key.Matches(msg, a.keyMap.Back), key.Matches(msg, a.keyMap.Left):
		if a.err != nil {
			a.err = nil
			return a, nil
		}
		return a.goBack()

	case key.Matches(msg, a.keyMap.Refresh):
		return a.refresh()
	}

	if a.err != nil || a.loading {
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keyMap.Enter), key.Matches(msg, a.keyMap.Right):
		return a.handleEnter()

	case key.Matches(msg, a.keyMap.Analyze):
		return a.startAnalysis()

	case key.Matches(msg, a.keyMap.Watch):
		return a.toggleWatchMode()
	}

	if a.viewState == JobLogsView || a.viewState == AnalysisView {
		return a.handlePagerNavigation(msg)
	}

	return a.updateLists(msg)
}

func (a *App) handleEnter() (tea.Model, tea.Cmd) {
	switch a.viewState {
	case WorkflowListView:
		if a.snapshot == nil {
			return a, nil
		}
		idx := a.workflowList.Index()
		if idx < 0 || idx >= len(a.snapshot.Workflows) {
			return a, nil
		}
		a.currentWorkflow = &a.snapshot.Workflows[idx]
		a.updateRunsList()
		a.viewState = WorkflowRunsView
		return a, nil

	case WorkflowRunsView:
		if a.currentWorkflow == nil {
			return a, nil
		}
		idx := a.runsList.Index()
		if idx < 0 || idx >= len(a.currentWorkflow.RecentRuns) {
			return a, nil
		}
		a.currentRun = &a.currentWorkflow.RecentRuns[idx]
		a.graph = nil
		a.viewState = RunGraphView
		a.loading = true
		a.loadingText = fmt.Sprintf("Building job graph for run #%d...", a.currentRun.RunNumber)
		return a, a.loadGraph(a.currentRun.ID)

	case RunGraphView:
		item, ok := a.nodeList.SelectedItem().(components.NodeItem)
		if !ok {
			return a, nil
		}
		job := findJob(a.currentRun, item.Node)
		if job == nil {
			return a, nil
		}
		a.currentJob = job
		if job.Logs == "" {
			a.openPager(a.styles.GetHelp().Render("No logs captured for this job"))
		} else {
			a.openPager(a.logProcessor.Render(job.Logs))
		}
		a.viewState = JobLogsView
		return a, nil
	}

	return a, nil
}

func (a *App) goBack() (tea.Model, tea.Cmd) {
	switch a.viewState {
	case WorkflowRunsView:
		a.viewState = WorkflowListView
	case RunGraphView:
		a.viewState = WorkflowRunsView
	case JobLogsView:
		a.viewState = RunGraphView
	case AnalysisView:
		a.viewState = a.prevView
	}
	return a, nil
}

func (a *App) refresh() (tea.Model, tea.Cmd) {
	a.err = nil

	switch a.viewState {
	case RunGraphView:
		if a.currentRun != nil {
			a.loading = true
			a.loadingText = fmt.Sprintf("Building job graph for run #%d...", a.currentRun.RunNumber)
			return a, a.loadGraph(a.currentRun.ID)
		}
	case AnalysisView:
		a.loading = true
		a.loadingText = "Running security analysis..."
		return a, a.loadAnalysis()
	}

	a.loading = true
	a.loadingText = "Loading pipeline snapshot..."
	return a, a.loadSnapshot()
}

func (a *App) startAnalysis() (tea.Model, tea.Cmd) {
	if a.viewState == AnalysisView {
		return a, nil
	}
	a.prevView = a.viewState
	a.loading = true
	a.loadingText = "Running security analysis..."
	return a, a.loadAnalysis()
}

// reselect points the current workflow and run at the freshly loaded snapshot
func (a *App) reselect() {
	if a.currentWorkflow == nil || a.snapshot == nil {
		return
	}

	var wf *models.Workflow
	for i := range a.snapshot.Workflows {
		if a.snapshot.Workflows[i].ID == a.currentWorkflow.ID {
			wf = &a.snapshot.Workflows[i]
			break
		}
	}
	if wf == nil {
		a.currentWorkflow, a.currentRun = nil, nil
		if a.viewState != AnalysisView {
			a.viewState = WorkflowListView
		}
		return
	}
	a.currentWorkflow = wf
	a.updateRunsList()

	if a.currentRun == nil {
		return
	}
	for i := range wf.RecentRuns {
		if wf.RecentRuns[i].ID == a.currentRun.ID {
			a.currentRun = &wf.RecentRuns[i]
			return
		}
	}
	a.currentRun = nil
	if a.viewState == RunGraphView || a.viewState == JobLogsView {
		a.viewState = WorkflowRunsView
	}
}

func findJob(run *models.WorkflowRun, node *models.GraphNode) *models.Job {
	if run == nil || node == nil {
		return nil
	}
	for i := range run.Jobs {
		if node.ID != 0 && run.Jobs[i].ID == node.ID {
			return &run.Jobs[i]
		}
	}
	for i := range run.Jobs {
		if run.Jobs[i].Name == node.Name {
			return &run.Jobs[i]
		}
	}
	return nil
}

func (a *App) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.viewState {
	case WorkflowListView:
		a.workflowList, cmd = a.workflowList.Update(msg)
	case WorkflowRunsView:
		a.runsList, cmd = a.runsList.Update(msg)
	case RunGraphView:
		a.nodeList, cmd = a.nodeList.Update(msg)
	}
	return a, cmd
}

func (a *App) updateListSizes() {
	listWidth := (a.width*3)/5 - 2
	listHeight := a.height - 6
	previewWidth := (a.width*2)/5 - 1
	previewHeight := a.height - 4

	if listWidth < 20 {
		listWidth = 20
	}
	if listHeight < 5 {
		listHeight = 5
	}
	if previewWidth < 15 {
		previewWidth = 15
	}
	if previewHeight < 5 {
		previewHeight = 5
	}

	a.workflowList.SetSize(listWidth, listHeight)
	a.runsList.SetSize(listWidth, listHeight)
	a.nodeList.SetSize(listWidth, listHeight)
	a.previewPanel.SetSize(previewWidth, previewHeight)
}

func (a *App) updateWorkflowList() {
	if a.snapshot == nil {
		return
	}
	items := make([]list.Item, len(a.snapshot.Workflows))
	for i, wf := range a.snapshot.Workflows {
		items[i] = components.WorkflowItem{Workflow: wf}
	}
	a.workflowList.SetItems(items)

	if len(items) == 0 {
		a.workflowList.Title = "Workflows (none found)"
	} else {
		a.workflowList.Title = fmt.Sprintf("Workflows (%d)", len(items))
	}
}

func (a *App) updateRunsList() {
	if a.currentWorkflow == nil {
		return
	}
	runs := a.currentWorkflow.RecentRuns
	items := make([]list.Item, len(runs))
	for i, run := range runs {
		items[i] = components.RunItem{Run: run}
	}
	a.runsList.SetItems(items)

	if len(items) == 0 {
		a.runsList.Title = "Runs (none found)"
	} else {
		a.runsList.Title = fmt.Sprintf("Runs (%d)", len(items))
	}
}

func (a *App) updateNodeList() {
	if a.graph == nil {
		return
	}
	items := make([]list.Item, 0, len(a.graph.ExecutionOrder))
	for i, name := range a.graph.ExecutionOrder {
		if node, ok := a.graph.Node(name); ok {
			items = append(items, components.NodeItem{Position: i, Node: node})
		}
	}
	a.nodeList.SetItems(items)
	a.nodeList.Title = fmt.Sprintf("Execution order (%d jobs)", len(items))
}

func (a *App) openPager(content string) {
	a.pager = strings.Split(content, "\n")
	a.pageOffset = 0
}

func (a *App) pagerHeight() int {
	h := a.height - 6
	if h < 1 {
		h = 1
	}
	return h
}

func (a *App) handlePagerNavigation(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	viewHeight := a.pagerHeight()
	maxOffset := len(a.pager) - viewHeight
	if maxOffset < 0 {
		maxOffset = 0
	}

	switch {
	case key.Matches(msg, a.keyMap.Up):
		if a.pageOffset > 0 {
			a.pageOffset--
		}
	case key.Matches(msg, a.keyMap.Down):
		if a.pageOffset < maxOffset {
			a.pageOffset++
		}
	case key.Matches(msg, a.keyMap.PageUp):
		a.pageOffset -= viewHeight
		if a.pageOffset < 0 {
			a.pageOffset = 0
		}
	case key.Matches(msg, a.keyMap.PageDown):
		a.pageOffset += viewHeight
		if a.pageOffset > maxOffset {
			a.pageOffset = maxOffset
		}
	case key.Matches(msg, a.keyMap.Home):
		a.pageOffset = 0
	case key.Matches(msg, a.keyMap.End):
		a.pageOffset = maxOffset
	}
	return a, nil
}

func (a *App) header() string {
	text := fmt.Sprintf("GitHub Actions - %s", a.repo)
	if a.watchMode {
		text += " [WATCH]"
	}
	if !a.lastUpdated.IsZero() {
		text += fmt.Sprintf(" (updated %s)", a.lastUpdated.Format("15:04:05"))
	}
	return a.styles.GetTitle().Render(text)
}

// splitView lays out a list on the left and the preview panel on the right edge
func (a *App) splitView(left, preview string) string {
	previewWidth := (a.width * 2) / 5
	leftWidth := a.width - previewWidth

	leftContainer := lipgloss.NewStyle().Width(leftWidth).Render(left)
	rightContainer := lipgloss.NewStyle().Width(previewWidth).AlignHorizontal(lipgloss.Right).Render(preview)

	return a.styles.Base.Render(lipgloss.JoinHorizontal(lipgloss.Top, leftContainer, rightContainer))
}

func (a *App) renderWorkflowListView() string {
	var main string
	if a.snapshot == nil || len(a.snapshot.Workflows) == 0 {
		main = lipgloss.JoinVertical(lipgloss.Left,
			"",
			a.styles.GetHelp().Render("This repository has no GitHub Actions workflows"),
			a.styles.GetHelp().Render("Add a workflow file under .github/workflows/"),
			"",
		)
	} else {
		s := a.snapshot.Summary
		summary := fmt.Sprintf("%d workflows • %d runs", s.TotalWorkflows, s.TotalRuns)
		if s.LatestRunStatus != "" {
			summary += " • latest run " + a.styles.StatusStyle(s.LatestRunStatus).Render(s.LatestRunStatus)
		}
		main = lipgloss.JoinVertical(lipgloss.Left,
			a.styles.GetSubtitle().Render(summary),
			a.workflowList.View(),
		)
	}

	left := lipgloss.JoinVertical(lipgloss.Left, a.header(), main, a.help.View(a.keyMap.ForView(a.viewState)))

	var selected *models.Workflow
	if a.snapshot != nil {
		if idx := a.workflowList.Index(); idx >= 0 && idx < len(a.snapshot.Workflows) {
			selected = &a.snapshot.Workflows[idx]
		}
	}
	return a.splitView(left, a.previewPanel.RenderWorkflowPreview(selected))
}

func (a *App) renderWorkflowRunsView() string {
	if a.currentWorkflow == nil {
		return "No workflow selected"
	}
	title := a.styles.GetTitle().Render(fmt.Sprintf("%s - %s", a.repo, a.currentWorkflow.Name))

	var main string
	if len(a.currentWorkflow.RecentRuns) == 0 {
		main = lipgloss.JoinVertical(lipgloss.Left,
			"",
			a.styles.GetHelp().Render("This workflow has not run yet"),
			"",
		)
	} else {
		tableHeader := a.styles.GetHelp().Render("Run     Status       Branch             SHA     Event          Time   Triggered")
		main = lipgloss.JoinVertical(lipgloss.Left, tableHeader, a.runsList.View())
	}

	left := lipgloss.JoinVertical(lipgloss.Left, title, main, a.help.View(a.keyMap.ForView(a.viewState)))

	var selected *models.WorkflowRun
	if idx := a.runsList.Index(); idx >= 0 && idx < len(a.currentWorkflow.RecentRuns) {
		selected = &a.currentWorkflow.RecentRuns[idx]
	}
	return a.splitView(left, a.previewPanel.RenderRunPreview(selected))
}

func (a *App) renderRunGraphView() string {
	if a.currentRun == nil || a.graph == nil {
		return "No run selected"
	}

	status := components.DisplayStatus(a.graph.Status, a.graph.Conclusion)
	titleText := fmt.Sprintf("%s #%d on %s", a.graph.WorkflowName, a.currentRun.RunNumber, a.graph.Branch)
	title := lipgloss.JoinHorizontal(lipgloss.Top,
		a.styles.GetTitle().Render(titleText),
		a.styles.StatusStyle(status).Render(components.StatusIcon(status)+" "+status),
	)

	info := "total time unknown"
	if a.graph.TotalDuration != nil {
		info = "total " + components.FormatDuration(*a.graph.TotalDuration)
	}
	lines := []string{title, a.styles.GetSubtitle().Render(info)}
	if len(a.graph.Cycles) > 0 {
		lines = append(lines, a.styles.StatusStyle("failure").Render("dependency cycle: "+strings.Join(a.graph.Cycles, ", ")))
	}
	lines = append(lines, a.nodeList.View(), a.help.View(a.keyMap.ForView(a.viewState)))
	left := lipgloss.JoinVertical(lipgloss.Left, lines...)

	var node *models.GraphNode
	if item, ok := a.nodeList.SelectedItem().(components.NodeItem); ok {
		node = item.Node
	}
	return a.splitView(left, a.previewPanel.RenderNodePreview(node, findJob(a.currentRun, node)))
}

func (a *App) renderPagerView() string {
	var title string
	if a.viewState == AnalysisView {
		title = fmt.Sprintf("Security Analysis - %s", a.repo)
	} else if a.currentJob != nil && a.currentRun != nil {
		title = fmt.Sprintf("Logs - %s (run #%d)", a.currentJob.Name, a.currentRun.RunNumber)
	}
	header := a.styles.GetTitle().Render(title)

	start := a.pageOffset
	if start > len(a.pager) {
		start = len(a.pager)
	}
	end := start + a.pagerHeight()
	if end > len(a.pager) {
		end = len(a.pager)
	}
	content := strings.Join(a.pager[start:end], "\n")

	position := a.styles.GetHelp().Render(fmt.Sprintf("lines %d-%d of %d", start+1, end, len(a.pager)))
	return lipgloss.JoinVertical(lipgloss.Left, header, content, position, a.help.View(a.keyMap.ForView(a.viewState)))
}

// renderError renders an error with hints for its kind
func (a *App) renderError(err error) string {
	var b strings.Builder

	message := err.Error()
	var ghErr *github.GitHubError
	if errors.As(err, &ghErr) {
		message = ghErr.Message
	}
	b.WriteString(a.styles.StatusFailure.Render("✗ " + message))
	b.WriteString("\n\n")
	if ghErr != nil && ghErr.Details != "" {
		b.WriteString(a.styles.GetHelp().Render(ghErr.Details))
		b.WriteString("\n\n")
	}

	kind, _ := models.KindOf(err)
	var hints []string
	switch kind {
	case models.KindAuthentication:
		hints = []string{"Run gh auth login", "Check gh auth status", "Make sure the token can read Actions for this repository"}
	case models.KindNotFound:
		hints = []string{"Check the owner/repo name", "Make sure the repository has workflow runs"}
	case models.KindAnalysis:
		hints = []string{"Check OPENAI_API_KEY and the analyzer model", "Retry; the analysis is not cached until it succeeds"}
	case models.KindMalformedGraph:
		hints = []string{"Check the needs: entries of the workflow definition"}
	case models.KindInvalidInput:
		hints = []string{"Check the workflow definition and the arguments"}
	default:
		hints = []string{"Check your network connection", "Wait a moment and retry"}
	}
	b.WriteString(a.styles.GetHelp().Render("Try:"))
	b.WriteString("\n")
	for i, h := range hints {
		b.WriteString(a.styles.GetHelp().Render(fmt.Sprintf("  %d. %s", i+1, h)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(a.styles.GetHelp().Render("r: retry • esc: dismiss • q: quit"))

	return a.styles.GetContent().Render(b.String())
}

func (a *App) hasRunningRuns() bool {
	if a.snapshot == nil {
		return false
	}
	for _, wf := range a.snapshot.Workflows {
		for _, run := range wf.RecentRuns {
			if run.Status == "in_progress" || run.Status == "queued" {
				return true
			}
		}
	}
	return false
}

func (a *App) toggleWatchMode() (tea.Model, tea.Cmd) {
	a.watchMode = !a.watchMode
	a.watchGen++
	if a.watchMode {
		return a, a.watchTick()
	}
	return a, nil
}

func (a *App) watchTick() tea.Cmd {
	interval := a.watchInterval
	if a.hasRunningRuns() {
		interval = interval / 3
	}
	gen := a.watchGen
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return watchTickMsg{gen: gen}
	})
}

type snapshotLoadedMsg struct {
	snapshot *models.PipelineSnapshot
}

type graphLoadedMsg struct {
	runID int64
	graph *models.WorkflowGraph
}

type analysisLoadedMsg struct {
	response *models.AnalysisResponse
}

type errorMsg struct {
	err error
}

type watchTickMsg struct {
	gen int
}

func (a *App) loadContext() (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(context.Background(), a.timeout)
	}
	return context.WithCancel(context.Background())
}

func (a *App) loadSnapshot() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := a.loadContext()
		defer cancel()
		snapshot, err := a.loader.Snapshot(ctx)
		if err != nil {
			return errorMsg{err: err}
		}
		return snapshotLoadedMsg{snapshot: snapshot}
	}
}

// reloadSnapshot refreshes in the background; failures keep the current data
func (a *App) reloadSnapshot() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := a.loadContext()
		defer cancel()
		snapshot, err := a.loader.Snapshot(ctx)
		if err != nil {
			return nil
		}
		return snapshotLoadedMsg{snapshot: snapshot}
	}
}

func (a *App) loadGraph(runID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := a.loadContext()
		defer cancel()
		graph, err := a.loader.RunGraph(ctx, runID)
		if err != nil {
			return errorMsg{err: err}
		}
		return graphLoadedMsg{runID: runID, graph: graph}
	}
}

func (a *App) loadAnalysis() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := a.loadContext()
		defer cancel()
		resp, err := a.loader.Analyze(ctx)
		if err != nil {
			return errorMsg{err: err}
		}
		return analysisLoadedMsg{response: resp}
	}
}
