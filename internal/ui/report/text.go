package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"nbcollab/internal/core/ports"
	"nbcollab/internal/data/history"
	"nbcollab/internal/engine/graph"
)

var (
	headingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)

	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	fairStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true)
	poorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true)
)

// ScoreStyle colors a similarity score by how closely work followed the
// schedule.
func ScoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 0.75:
		return goodStyle
	case score >= 0.4:
		return fairStyle
	default:
		return poorStyle
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...)
}

// SectionNames resolves section ids to titles in the given graph.
func SectionNames(g *graph.Graph, ids []graph.NodeID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok && n.Section != "" {
			out = append(out, n.Section)
			continue
		}
		out = append(out, id.String())
	}
	return out
}

// RenderAnalysis lists the sections of a notebook and their dependencies.
func RenderAnalysis(an *ports.Analysis) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(fmt.Sprintf("Notebook %s", an.NotebookID)) + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%s | %d code cells | %d cell dependencies",
		an.Path, len(an.Graph.CellNodes()), len(an.Graph.CellEdges()))) + "\n\n")

	rows := make([][]string, 0)
	for _, n := range an.Graph.SectionNodes() {
		deps := make([]graph.NodeID, 0)
		for _, pred := range an.Graph.Predecessors(n.ID) {
			if pred.IsSection() {
				deps = append(deps, pred)
			}
		}
		rows = append(rows, []string{
			n.Section,
			fmt.Sprintf("%d", n.Level),
			strings.Join(SectionNames(an.Graph, deps), ", "),
		})
	}
	if len(rows) == 0 {
		b.WriteString(mutedStyle.Render("No sections with cross-section dependencies.") + "\n")
		return b.String()
	}
	b.WriteString(newTable("Section", "Heading", "Depends on").Rows(rows...).String() + "\n")
	return b.String()
}

// RenderSchedule lists the ideal schedule, one level per line.
func RenderSchedule(an *ports.Analysis) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(fmt.Sprintf("Ideal schedule for %s", an.NotebookID)) + "\n")
	if len(an.Schedule) == 0 {
		b.WriteString(mutedStyle.Render("No sections to schedule.") + "\n")
		return b.String()
	}
	for i, level := range an.Schedule {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, strings.Join(SectionNames(an.Graph, level), ", ")))
	}
	return b.String()
}

// RenderScore shows the width sweep of one report with the best width marked.
func RenderScore(report ports.ScoreReport) string {
	var b strings.Builder
	title := "all users"
	if report.Group != "" {
		title = "group " + report.Group
	}
	b.WriteString(headingStyle.Render(fmt.Sprintf("Collaboration score for %s (%s)", report.Analysis.NotebookID, title)) + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("mapped %d executions, dropped %d unknown-cell and %d pruned-section",
		report.Stats.Mapped, report.Stats.UnknownCell, report.Stats.PrunedSection)) + "\n")

	res := report.Result
	if !res.Observed {
		b.WriteString(poorStyle.Render("No executions could be attributed to a section; no score.") + "\n")
		return b.String()
	}

	best := res.Best
	b.WriteString(fmt.Sprintf("Best: %s at %s windows\n", ScoreStyle(best.Score).Render(fmt.Sprintf("%.4f", best.Score)), best.Width))
	if report.RunID != "" {
		b.WriteString(mutedStyle.Render("run "+report.RunID) + "\n")
	}

	rows := make([][]string, 0, len(res.Sweep))
	for _, ws := range res.Sweep {
		marker := ""
		if ws.Width == best.Width {
			marker = "*"
		}
		rows = append(rows, []string{ws.Width.String(), fmt.Sprintf("%.4f", ws.Score), fmt.Sprintf("%d", len(ws.Windows)), marker})
	}
	b.WriteString(newTable("Width", "Score", "Windows", "Best").Rows(rows...).String() + "\n")
	return b.String()
}

// RenderGroupScores compares the best score of each group side by side.
func RenderGroupScores(reports []ports.ScoreReport) string {
	if len(reports) == 0 {
		return mutedStyle.Render("No groups scored.") + "\n"
	}
	var b strings.Builder
	b.WriteString(headingStyle.Render(fmt.Sprintf("Group scores for %s", reports[0].Analysis.NotebookID)) + "\n")

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		score, width := "-", "-"
		if r.Result.Observed {
			score = fmt.Sprintf("%.4f", r.Result.Best.Score)
			width = r.Result.Best.Width.String()
		}
		rows = append(rows, []string{r.Group, score, width, fmt.Sprintf("%d", r.Stats.Mapped)})
	}
	b.WriteString(newTable("Group", "Score", "Width", "Executions").Rows(rows...).String() + "\n")
	return b.String()
}

// RenderTrend lists stored runs with their change and moving average.
func RenderTrend(report history.TrendReport) string {
	var b strings.Builder
	title := report.NotebookID
	if report.Group != "" {
		title += " / " + report.Group
	}
	b.WriteString(headingStyle.Render("Score trend for "+title) + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d runs, window %s", report.RunCount, report.Window)) + "\n")

	rows := make([][]string, 0, len(report.Points))
	for _, p := range report.Points {
		rows = append(rows, []string{
			p.ComputedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.4f", p.Score),
			p.Width.String(),
			fmt.Sprintf("%+.4f", p.Delta),
			fmt.Sprintf("%.4f", p.MovingAvg),
		})
	}
	b.WriteString(newTable("Computed", "Score", "Width", "Delta", "Moving avg").Rows(rows...).String() + "\n")
	return b.String()
}
