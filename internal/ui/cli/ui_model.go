package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nbcollab/internal/core/ports"
	"nbcollab/internal/ui/report"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type panelMode int

const (
	panelNotebooks panelMode = iota
	panelDetail
)

type model struct {
	notebookList list.Model
	mode         panelMode
	showSweep    bool
	updates      map[string]ports.WatchUpdate
	paths        []string
	lastUpdate   time.Time
}

// updateMsg carries one watch update into the program.
type updateMsg struct {
	update ports.WatchUpdate
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		height := msg.Height - v - 6
		if height < 5 {
			height = 5
		}
		m.notebookList.SetSize(msg.Width-h, height)
	case updateMsg:
		m = m.apply(msg.update)
	}

	var cmd tea.Cmd
	m.notebookList, cmd = m.notebookList.Update(msg)
	return m, cmd
}

// apply records u and rebuilds the list.
func (m model) apply(u ports.WatchUpdate) model {
	next := make(map[string]ports.WatchUpdate, len(m.updates)+1)
	for k, v := range m.updates {
		next[k] = v
	}
	if u.Removed {
		delete(next, u.Path)
	} else {
		next[u.Path] = u
	}
	m.updates = next
	m.lastUpdate = u.At

	m.paths = m.paths[:0:0]
	for p := range m.updates {
		m.paths = append(m.paths, p)
	}
	sort.Strings(m.paths)

	items := make([]list.Item, 0, len(m.paths))
	for _, p := range m.paths {
		items = append(items, notebookItem(m.updates[p]))
	}
	m.notebookList.SetItems(items)
	return m
}

func notebookItem(u ports.WatchUpdate) item {
	if u.Err != nil {
		return item{title: u.Path, desc: errorStyle.Render(u.Err.Error())}
	}
	desc := fmt.Sprintf("%s | %d sections | %d levels", u.NotebookID, u.Sections, u.Levels)
	if u.Report != nil && u.Report.Result.Observed {
		desc += fmt.Sprintf(" | score %.4f @ %s", u.Report.Result.Best.Score, u.Report.Result.Best.Width)
	} else {
		desc += " | no executions"
	}
	return item{title: u.Path, desc: desc}
}

func (m model) selected() (ports.WatchUpdate, bool) {
	idx := m.notebookList.Index()
	if idx < 0 || idx >= len(m.paths) {
		return ports.WatchUpdate{}, false
	}
	u, ok := m.updates[m.paths[idx]]
	return u, ok
}

func (m model) View() string {
	stamp := "never"
	if !m.lastUpdate.IsZero() {
		stamp = m.lastUpdate.Format("15:04:05")
	}
	status := statusStyle.Render(fmt.Sprintf("Last update: %s | %d notebooks", stamp, len(m.paths)))
	header := fmt.Sprintf("%s\n%s\n", titleStyle("Notebook Collaboration Monitor"), status)

	body := m.notebookList.View()
	if m.mode == panelDetail {
		body = renderDetail(m)
	}
	return docStyle.Render(header + "\n" + renderHelp(m) + "\n\n" + body)
}

func renderDetail(m model) string {
	u, ok := m.selected()
	if !ok {
		return statusStyle.Render("No notebook selected.")
	}
	if u.Err != nil {
		return errorStyle.Render(u.Err.Error())
	}
	if u.Analysis == nil {
		return statusStyle.Render("Not analyzed yet.")
	}
	out := report.RenderSchedule(u.Analysis)
	if m.showSweep {
		if u.Report == nil {
			return out + "\n" + statusStyle.Render("Scoring needs the history store.")
		}
		out += "\n" + report.RenderScore(*u.Report)
	}
	return out
}

func renderHelp(m model) string {
	sweep := "show"
	if m.showSweep {
		sweep = "hide"
	}
	return statusStyle.Render(fmt.Sprintf("tab: notebooks/detail | t: %s sweep | q: quit", sweep))
}

func initialModel() model {
	notebookList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	notebookList.Title = "Watched Notebooks"
	notebookList.SetShowStatusBar(false)
	notebookList.SetFilteringEnabled(true)

	return model{
		notebookList: notebookList,
		mode:         panelNotebooks,
		updates:      map[string]ports.WatchUpdate{},
	}
}
