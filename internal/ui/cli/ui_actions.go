package cli

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	if m.notebookList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.notebookList, cmd = m.notebookList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.mode == panelNotebooks {
			m.mode = panelDetail
		} else {
			m.mode = panelNotebooks
		}
		return m, nil
	case "t":
		m.showSweep = !m.showSweep
		return m, nil
	case "esc":
		if m.mode == panelDetail {
			m.mode = panelNotebooks
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.notebookList, cmd = m.notebookList.Update(msg)
	return m, cmd
}
