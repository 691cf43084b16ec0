package formats

import (
	"fmt"
	"strings"
	"time"

	"nbcollab/internal/engine/activity"
	"nbcollab/internal/engine/graph"
)

// GroupScore is one scored sweep, for a named group or for all users.
type GroupScore struct {
	Group  string
	Result activity.Result
	Stats  activity.MapStats
	RunID  string
}

type MarkdownReportData struct {
	NotebookID   string
	NotebookName string
	Graph        *graph.Graph
	Schedule     []graph.Level
	Scores       []GroupScore
}

type MarkdownReportOptions struct {
	Version        string
	GeneratedAt    time.Time
	IncludeWindows bool
	IncludeMermaid bool
	MermaidDiagram string
}

type MarkdownGenerator struct{}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

func (m *MarkdownGenerator) Generate(data MarkdownReportData, opts MarkdownReportOptions) (string, error) {
	if data.Graph == nil {
		return "", fmt.Errorf("markdown: graph is required")
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now().UTC()
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: Notebook Collaboration Report\n")
	b.WriteString("notebook: " + nonEmpty(data.NotebookID, "unknown") + "\n")
	b.WriteString("generated_at: " + opts.GeneratedAt.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("version: " + nonEmpty(opts.Version, "unknown") + "\n")
	b.WriteString("---\n\n")

	b.WriteString("# " + nonEmpty(data.NotebookName, data.NotebookID) + "\n\n")

	b.WriteString("## Summary\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	b.WriteString(fmt.Sprintf("| Code Cells | %d |\n", len(data.Graph.CellNodes())))
	b.WriteString(fmt.Sprintf("| Cell Dependencies | %d |\n", len(data.Graph.CellEdges())))
	b.WriteString(fmt.Sprintf("| Sections | %d |\n", len(data.Graph.SectionNodes())))
	b.WriteString(fmt.Sprintf("| Section Dependencies | %d |\n", len(data.Graph.SectionEdges())))
	b.WriteString(fmt.Sprintf("| Schedule Levels | %d |\n\n", len(data.Schedule)))

	b.WriteString("## Ideal Schedule\n")
	if len(data.Schedule) == 0 {
		b.WriteString("No sections with dependencies were found.\n\n")
	} else {
		for i, level := range data.Schedule {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, strings.Join(sectionNames(data.Graph, level), ", ")))
		}
		b.WriteString("\n")
	}

	if len(data.Scores) > 0 {
		b.WriteString("## Collaboration Scores\n")
		for _, score := range data.Scores {
			writeScoreSection(&b, data.Graph, score, opts.IncludeWindows)
		}
	}

	if opts.IncludeMermaid && strings.TrimSpace(opts.MermaidDiagram) != "" {
		b.WriteString("## Section Graph\n")
		b.WriteString("```mermaid\n")
		b.WriteString(strings.TrimRight(opts.MermaidDiagram, "\n"))
		b.WriteString("\n```\n")
	}
	return b.String(), nil
}

func writeScoreSection(b *strings.Builder, g *graph.Graph, score GroupScore, includeWindows bool) {
	b.WriteString("### " + nonEmpty(score.Group, "All users") + "\n")
	if !score.Result.Observed {
		b.WriteString("No executions could be attributed to a section.\n\n")
		return
	}
	b.WriteString(fmt.Sprintf("Best score **%.4f** at %s windows", score.Result.Best.Score, score.Result.Best.Width))
	if score.RunID != "" {
		b.WriteString(fmt.Sprintf(" (run `%s`)", score.RunID))
	}
	b.WriteString(".\n\n")
	b.WriteString(fmt.Sprintf("Mapped %d executions, dropped %d (%d unknown cell, %d pruned section).\n\n",
		score.Stats.Mapped, score.Stats.Dropped(), score.Stats.UnknownCell, score.Stats.PrunedSection))

	b.WriteString("| Width | Score | Windows |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, ws := range score.Result.Sweep {
		b.WriteString(fmt.Sprintf("| %s | %.4f | %d |\n", ws.Width, ws.Score, len(ws.Windows)))
	}
	b.WriteString("\n")

	if !includeWindows {
		return
	}
	b.WriteString("<details>\n<summary>Observed windows at best width</summary>\n\n")
	for i, w := range score.Result.Best.Windows {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, strings.Join(sectionNames(g, w), ", ")))
	}
	b.WriteString("\n</details>\n\n")
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
