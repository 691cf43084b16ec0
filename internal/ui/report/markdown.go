package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nbcollab/internal/core/ports"
	"nbcollab/internal/ui/report/formats"
)

// MarkerPrefix namespaces the comment markers that delimit injected blocks.
const MarkerPrefix = "nbcollab"

// RenderMarkdown builds the full notebook report: schedule, the scores of each
// report and the section graph.
func RenderMarkdown(an *ports.Analysis, reports []ports.ScoreReport, version string, includeWindows bool) (string, error) {
	diagram, err := RenderMermaid(an)
	if err != nil {
		return "", err
	}
	scores := make([]formats.GroupScore, 0, len(reports))
	for _, r := range reports {
		scores = append(scores, formats.GroupScore{Group: r.Group, Result: r.Result, Stats: r.Stats, RunID: r.RunID})
	}
	name := an.NotebookID
	if an.Notebook != nil && an.Notebook.Name != "" {
		name = an.Notebook.Name
	}
	return formats.NewMarkdownGenerator().Generate(formats.MarkdownReportData{
		NotebookID:   an.NotebookID,
		NotebookName: name,
		Graph:        an.Graph,
		Schedule:     an.Schedule,
		Scores:       scores,
	}, formats.MarkdownReportOptions{
		Version:        version,
		IncludeWindows: includeWindows,
		IncludeMermaid: true,
		MermaidDiagram: diagram,
	})
}

func RenderMermaid(an *ports.Analysis) (string, error) {
	return formats.NewMermaidGenerator(an.Graph, an.Schedule).Generate()
}

// InjectBlock replaces the content between the start and end markers named
// marker in filePath. The file is replaced atomically.
func InjectBlock(filePath, marker, block string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read markdown file %q: %w", filePath, err)
	}

	next, err := ReplaceBetweenMarkers(string(content), marker, block)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".nbcollab-inject-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", filePath, err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.WriteString(next)
	if err := tmp.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp markdown file %q: %w", tmpName, writeErr)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace markdown file %q: %w", filePath, err)
	}
	return nil
}

// ReplaceBetweenMarkers swaps the text between
// <!-- nbcollab:<marker>:start --> and <!-- nbcollab:<marker>:end -->.
// Each marker must appear exactly once.
func ReplaceBetweenMarkers(content, marker, replacement string) (string, error) {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return "", fmt.Errorf("markdown marker must not be empty")
	}

	newline := "\n"
	if strings.Contains(content, "\r\n") {
		newline = "\r\n"
	}

	start := fmt.Sprintf("<!-- %s:%s:start -->", MarkerPrefix, marker)
	end := fmt.Sprintf("<!-- %s:%s:end -->", MarkerPrefix, marker)
	if strings.Count(content, start) != 1 || strings.Count(content, end) != 1 {
		return "", fmt.Errorf("markdown marker %q must appear exactly once for start and end", marker)
	}

	startIdx := strings.Index(content, start)
	endIdx := strings.Index(content, end)
	if endIdx < startIdx {
		return "", fmt.Errorf("invalid marker order for %q", marker)
	}

	prefix := content[:startIdx+len(start)]
	suffix := content[endIdx:]
	return prefix + newline + strings.TrimRight(replacement, "\r\n") + newline + suffix, nil
}
