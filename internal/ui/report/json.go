package report

import (
	"github.com/bytedance/sonic"

	"nbcollab/internal/core/ports"
)

type WidthDocument struct {
	Width   string     `json:"width"`
	Score   float64    `json:"score"`
	Windows [][]string `json:"windows"`
}

// ScoreDocument is the machine-readable form of a ScoreReport, with section
// ids replaced by titles.
type ScoreDocument struct {
	NotebookID    string          `json:"notebook_id"`
	Group         string          `json:"group,omitempty"`
	RunID         string          `json:"run_id,omitempty"`
	Observed      bool            `json:"observed"`
	BestWidth     string          `json:"best_width,omitempty"`
	BestScore     float64         `json:"best_score"`
	Ideal         [][]string      `json:"ideal"`
	Sweep         []WidthDocument `json:"sweep"`
	Mapped        int             `json:"mapped"`
	UnknownCell   int             `json:"unknown_cell"`
	PrunedSection int             `json:"pruned_section"`
}

type ScheduleDocument struct {
	NotebookID string     `json:"notebook_id"`
	Levels     [][]string `json:"levels"`
}

func NewScoreDocument(r ports.ScoreReport) ScoreDocument {
	g := r.Analysis.Graph
	doc := ScoreDocument{
		NotebookID:    r.Analysis.NotebookID,
		Group:         r.Group,
		RunID:         r.RunID,
		Observed:      r.Result.Observed,
		Ideal:         make([][]string, 0, len(r.Result.Ideal)),
		Sweep:         make([]WidthDocument, 0, len(r.Result.Sweep)),
		Mapped:        r.Stats.Mapped,
		UnknownCell:   r.Stats.UnknownCell,
		PrunedSection: r.Stats.PrunedSection,
	}
	if r.Result.Observed {
		doc.BestWidth = r.Result.Best.Width.String()
		doc.BestScore = r.Result.Best.Score
	}
	for _, level := range r.Result.Ideal {
		doc.Ideal = append(doc.Ideal, SectionNames(g, level))
	}
	for _, ws := range r.Result.Sweep {
		windows := make([][]string, 0, len(ws.Windows))
		for _, w := range ws.Windows {
			windows = append(windows, SectionNames(g, w))
		}
		doc.Sweep = append(doc.Sweep, WidthDocument{Width: ws.Width.String(), Score: ws.Score, Windows: windows})
	}
	return doc
}

func RenderScoresJSON(reports []ports.ScoreReport) ([]byte, error) {
	docs := make([]ScoreDocument, 0, len(reports))
	for _, r := range reports {
		docs = append(docs, NewScoreDocument(r))
	}
	return sonic.ConfigStd.MarshalIndent(docs, "", "  ")
}

func RenderScheduleJSON(an *ports.Analysis) ([]byte, error) {
	doc := ScheduleDocument{NotebookID: an.NotebookID, Levels: make([][]string, 0, len(an.Schedule))}
	for _, level := range an.Schedule {
		doc.Levels = append(doc.Levels, SectionNames(an.Graph, level))
	}
	return sonic.ConfigStd.MarshalIndent(doc, "", "  ")
}
