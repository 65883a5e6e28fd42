// Package tui renders live run progress from the event hub.
package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/refitlab/refit/internal/events"
)

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusPending = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// fileRow tracks one file's progress through its plan.
type fileRow struct {
	Path    string
	Tier    string
	Status  string // pending, running, done, failed
	Workers int
	Failed  int
	Cost    float64
	Paced   float64 // accumulated governor delay, seconds
}

type Model struct {
	task   string
	target string

	width  int
	height int

	files    map[string]*fileRow
	eventLog []events.Event

	hubCh  <-chan events.Event
	cancel func()

	totalCost float64
	done      bool

	fileTable table.Model
	viewport  viewport.Model
}

type eventMsg events.Event

// NewMonitor builds a monitor subscribed to the hub.
func NewMonitor(hub *events.Hub, task, target string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "File", Width: 40},
			{Title: "Tier", Width: 10},
			{Title: "Workers", Width: 8},
			{Title: "Cost", Width: 8},
			{Title: "Paced", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	ch, cancel := hub.Subscribe()
	return &Model{
		task:      task,
		target:    target,
		files:     make(map[string]*fileRow),
		hubCh:     ch,
		cancel:    cancel,
		fileTable: t,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.receiveNextEvent(), tea.EnterAltScreen)
}

func (m *Model) receiveNextEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.hubCh
		if !ok {
			return tea.Quit()
		}
		return eventMsg(ev)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.fileTable.SetWidth(m.width - 6)
		m.viewport.Width = m.width - 6
		m.viewport.Height = m.height / 3

	case eventMsg:
		m.handleEvent(events.Event(msg))
		m.updateTable()
		if m.done {
			// Leave the final state on screen briefly before exiting.
			return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return tea.Quit() })
		}
		return m, m.receiveNextEvent()
	}

	m.fileTable, cmd = m.fileTable.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > 50 {
		m.eventLog = m.eventLog[:50]
	}

	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)
	path, _ := data["path"].(string)

	row := func() *fileRow {
		r, ok := m.files[path]
		if !ok {
			r = &fileRow{Path: path, Status: "pending"}
			m.files[path] = r
		}
		return r
	}

	switch e.Type {
	case events.FileStarted:
		row().Status = "running"

	case events.FileClassified:
		r := row()
		if tier, ok := data["tier"].(string); ok {
			r.Tier = tier
		}

	case events.WorkerCompleted:
		r := row()
		r.Workers++
		if cost, ok := data["cost"].(float64); ok {
			r.Cost += cost
			m.totalCost += cost
		}

	case events.WorkerFailed:
		r := row()
		r.Workers++
		r.Failed++
		if cost, ok := data["cost"].(float64); ok {
			r.Cost += cost
			m.totalCost += cost
		}

	case events.GovernorPaced:
		if d, ok := data["delay_seconds"].(float64); ok {
			row().Paced += d
		}

	case events.FileCompleted:
		r := row()
		if r.Failed > 0 {
			r.Status = "failed"
		} else {
			r.Status = "done"
		}

	case events.RunCompleted:
		m.done = true
	}
}

func (m *Model) updateTable() {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	rows := make([]table.Row, 0, len(paths))
	for _, p := range paths {
		r := m.files[p]
		sym := statusPending.Render("○")
		switch r.Status {
		case "running":
			sym = statusRunning.Render("◉")
		case "done":
			sym = statusOK.Render("●")
		case "failed":
			sym = statusFailed.Render("✗")
		}
		rows = append(rows, table.Row{
			sym,
			truncate(r.Path, 40),
			r.Tier,
			fmt.Sprintf("%d", r.Workers),
			fmt.Sprintf("%.1f", r.Cost),
			fmt.Sprintf("%.1fs", r.Paced),
		})
	}
	m.fileTable.SetRows(rows)
}

func (m *Model) View() string {
	header := titleStyle.Render(fmt.Sprintf("refit run  task=%s  target=%s", m.task, m.target))
	totals := fmt.Sprintf("files: %d  total cost: %.1f", len(m.files), m.totalCost)
	if m.done {
		totals += "  " + statusOK.Render("run complete")
	}

	var logLines []string
	max := 8
	if len(m.eventLog) < max {
		max = len(m.eventLog)
	}
	for _, e := range m.eventLog[:max] {
		logLines = append(logLines, fmt.Sprintf("%s  %s", e.At.Format("15:04:05"), e.Type))
	}

	return docStyle.Render(strings.Join([]string{
		header,
		borderStyle.Render(m.fileTable.View()),
		totals,
		borderStyle.Render(strings.Join(logLines, "\n")),
	}, "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n+1:]
}

// Run blocks until the monitor exits.
func Run(hub *events.Hub, task, target string) error {
	p := tea.NewProgram(NewMonitor(hub, task, target))
	_, err := p.Run()
	return err
}
