// Package tui provides the Bubble Tea daily plan interface.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/dayplan/internal/model"
	"github.com/verte-zerg/dayplan/internal/planner"
	"github.com/verte-zerg/dayplan/internal/stats"
)

const (
	tabToday = iota
	tabLessons
	tabHistory
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	promptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Italic(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Planner is the subset of the planning session the screen drives.
type Planner interface {
	PlanToday(ctx context.Context, req planner.Request) planner.Result
	RecordStart(plan model.TodayPlan, lessonID string)
	RecordComplete(ctx context.Context, plan model.TodayPlan, lessonID string, durationSeconds int) planner.Completion
}

// HistoryFunc loads the history report shown on the History tab.
type HistoryFunc func(ctx context.Context) (stats.Report, error)

// Model implements the Bubble Tea daily plan UI.
type Model struct {
	planner Planner
	request planner.Request
	history HistoryFunc
	now     func() time.Time

	result  planner.Result
	report  stats.Report
	status  string
	errMsg  string
	started map[string]time.Time
	done    map[string]bool

	tabs      []string
	activeTab int
	viewports []viewport.Model
	lessons   table.Model

	width  int
	height int
}

// NewModel builds the screen and computes today's plan.
func NewModel(p Planner, req planner.Request, history HistoryFunc) *Model {
	m := &Model{
		planner: p,
		request: req,
		history: history,
		now:     time.Now,
		started: map[string]time.Time{},
		done:    map[string]bool{},
		tabs:    []string{"Today", "Lessons", "History"},
	}
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.lessons = buildLessonTable(nil, nil, 0, 1)
	m.replan()
	return m
}

// Result returns the plan currently displayed.
func (m *Model) Result() planner.Result {
	return m.result
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, nil
		case "right", "l", "tab":
			m.moveTab(1)
			return m, nil
		case "r":
			m.replan()
			return m, nil
		case "s":
			m.startSelected()
			return m, nil
		case "c":
			m.completeSelected()
			return m, nil
		}
		if m.activeTab == tabLessons {
			var cmd tea.Cmd
			m.lessons, cmd = m.lessons.Update(msg)
			return m, cmd
		}
		vp := m.viewports[m.activeTab]
		var cmd tea.Cmd
		vp, cmd = vp.Update(msg)
		m.viewports[m.activeTab] = vp
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return renderPlan(m.result, m.done)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) replan() {
	m.result = m.planner.PlanToday(context.Background(), m.request)
	m.errMsg = ""
	if n := len(m.result.Diagnostics); n > 0 {
		m.errMsg = fmt.Sprintf("%d issue(s): %s", n, m.result.Diagnostics[0])
	}
	if m.result.Reused {
		m.status = "Plan reused (run " + shortID(m.result.Plan.RunID) + ")"
	} else {
		m.status = "Plan built (run " + shortID(m.result.Plan.RunID) + ")"
	}
	m.refreshHistory()
	m.applyLessonTable()
	m.renderTabContents()
}

func (m *Model) refreshHistory() {
	if m.history == nil {
		return
	}
	report, err := m.history(context.Background())
	if err != nil {
		m.errMsg = "history: " + err.Error()
		return
	}
	m.report = report
	for _, d := range report.Series.Days {
		if d.Key == m.result.Plan.DayKey && d.Record.Completed && d.Record.LessonID != "" {
			m.done[d.Record.LessonID] = true
		}
	}
}

func (m *Model) selectedLesson() (model.LessonMeta, bool) {
	lessons := m.result.Lessons
	if len(lessons) == 0 {
		return model.LessonMeta{}, false
	}
	idx := 0
	if m.activeTab == tabLessons {
		idx = m.lessons.Cursor()
	}
	if idx < 0 || idx >= len(lessons) {
		return model.LessonMeta{}, false
	}
	return lessons[idx], true
}

func (m *Model) startSelected() {
	lesson, ok := m.selectedLesson()
	if !ok {
		m.status = "No lesson to start."
		return
	}
	m.started[lesson.ID] = m.now()
	m.planner.RecordStart(m.result.Plan, lesson.ID)
	m.status = "Started " + lesson.Title
}

func (m *Model) completeSelected() {
	lesson, ok := m.selectedLesson()
	if !ok {
		m.status = "No lesson to complete."
		return
	}
	seconds := 0
	if at, ok := m.started[lesson.ID]; ok {
		seconds = int(m.now().Sub(at).Seconds())
	}
	out := m.planner.RecordComplete(context.Background(), m.result.Plan, lesson.ID, seconds)
	m.done[lesson.ID] = true
	m.status = "Completed " + lesson.Title
	if out.Earned {
		m.status += fmt.Sprintf("  +1 round (%d available)", out.Rounds.Credits)
	}
	m.applyLessonTable()
	m.renderTabContents()
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.lessons.SetWidth(m.width)
	m.lessons.SetHeight(maxInt(1, vpHeight-1))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabLessons {
		m.lessons.Focus()
	} else {
		m.lessons.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	plan := m.result.Plan
	summary := fmt.Sprintf("Day %s  world=%s  cluster=%s  mode=%s", plan.DayKey, plan.WorldID, plan.Cluster, plan.Mode)
	return tabs + "\n" + headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Start: s  Complete: c  Replan: r  Quit: q"
	if m.status != "" {
		help = m.status + "  |  " + help
	}
	line := headerStyle.Render(truncateLine(help, m.width))
	if m.errMsg != "" {
		return line + "\n" + errorStyle.Render(truncateLine(m.errMsg, m.width))
	}
	return line
}

func (m *Model) renderBody(height int) string {
	if m.activeTab == tabLessons {
		if len(m.result.Lessons) == 0 {
			return fitLines("No lessons planned.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.lessons.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) renderTabContents() {
	m.viewports[tabToday].SetContent(renderPlan(m.result, m.done))
	m.viewports[tabHistory].SetContent(renderHistory(m.report))
}

func (m *Model) applyLessonTable() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	_, bodyHeight, _ := m.layoutHeights()
	cursor := m.lessons.Cursor()
	m.lessons = buildLessonTable(m.result.Lessons, m.done, width, bodyHeight)
	if cursor > 0 && cursor < len(m.result.Lessons) {
		m.lessons.SetCursor(cursor)
	}
	if m.activeTab == tabLessons {
		m.lessons.Focus()
	}
}

func renderPlan(res planner.Result, done map[string]bool) string {
	plan := res.Plan
	cards := []string{
		metricCard("Cluster", string(plan.Cluster)),
		metricCard("Mode", modeLabel(plan)),
		metricCard("Difficulty", plan.Difficulty),
		metricCard("Lessons", fmt.Sprintf("%d/%d", countDone(plan.LessonIDs, done), len(plan.LessonIDs))),
	}
	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top, cards...), ""}
	for i, lesson := range res.Lessons {
		mark := "[ ]"
		if done[lesson.ID] {
			mark = "[x]"
		}
		lines = append(lines, fmt.Sprintf("%s %d. %s (%s, %d min)", mark, i+1, lesson.Title, lesson.Difficulty, lesson.Minutes))
	}
	if len(res.Lessons) == 0 {
		lines = append(lines, "No lessons planned today.")
	}
	if res.Prompts.Primary != nil {
		lines = append(lines, "", promptStyle.Render(res.Prompts.Primary.Text))
	}
	if res.Prompts.Secondary != nil {
		lines = append(lines, promptStyle.Render(res.Prompts.Secondary.Text))
	}
	lines = append(lines, "", headerStyle.Render("Why: "+plan.Reason))
	if plan.FallbackReason != "" {
		lines = append(lines, headerStyle.Render("Fallback: "+plan.FallbackReason))
	}
	return strings.Join(lines, "\n")
}

func renderHistory(report stats.Report) string {
	var buf bytes.Buffer
	if err := stats.RenderSummary(&buf, report); err != nil {
		return "Failed to render history."
	}
	if err := stats.RenderHistory(&buf, report); err != nil {
		return "Failed to render history."
	}
	return strings.TrimRight(buf.String(), "\n")
}

func buildLessonTable(lessons []model.LessonMeta, done map[string]bool, width, height int) table.Model {
	columns := []table.Column{
		{Title: "#", Width: 2},
		{Title: "Lesson", Width: 28},
		{Title: "Difficulty", Width: 10},
		{Title: "Min", Width: 4},
		{Title: "Done", Width: 4},
	}
	rows := make([]table.Row, 0, len(lessons))
	for i, lesson := range lessons {
		mark := ""
		if done[lesson.ID] {
			mark = "yes"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i+1),
			lesson.Title,
			string(lesson.Difficulty),
			fmt.Sprintf("%d", lesson.Minutes),
			mark,
		})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(maxInt(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(lessonTableStyles())
	return t
}

func lessonTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#F0F0F0")).
		Background(lipgloss.Color("#3A3A3A")).
		Bold(false)
	return styles
}

func metricCard(label, value string) string {
	content := cardTitleStyle.Render(label) + "\n" + cardValueStyle.Render(value)
	return cardStyle.Render(content)
}

func modeLabel(plan model.TodayPlan) string {
	if plan.Variant == model.VariantNone {
		return string(plan.Mode)
	}
	return string(plan.Mode) + "/" + string(plan.Variant)
}

func countDone(ids []string, done map[string]bool) int {
	n := 0
	for _, id := range ids {
		if done[id] {
			n++
		}
	}
	return n
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
