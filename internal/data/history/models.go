package history

import "time"

// SchemaVersion is the latest migration this build knows how to apply.
const SchemaVersion = 2

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// GraphSnapshot is the serialized dependency graph of one notebook.
type GraphSnapshot struct {
	NotebookID string
	Name       string
	SavedAt    time.Time
	Document   []byte
}

// Group is a named set of users collaborating on a notebook.
type Group struct {
	NotebookID string
	Name       string
	Members    []string
}

// WidthScore is the similarity recorded for one slice width of a run.
type WidthScore struct {
	Width time.Duration
	Score float64
}

// ScoreRun is one persisted scoring pass. Group is empty for runs over all
// users of the notebook.
type ScoreRun struct {
	RunID      string
	NotebookID string
	Group      string
	ComputedAt time.Time
	BestWidth  time.Duration
	BestScore  float64
	Widths     []WidthScore
}

type TrendPoint struct {
	RunID      string        `json:"run_id"`
	ComputedAt time.Time     `json:"computed_at"`
	Score      float64       `json:"score"`
	Width      time.Duration `json:"width_ns"`
	Delta      float64       `json:"delta"`
	MovingAvg  float64       `json:"moving_avg"`
}

type TrendReport struct {
	NotebookID string       `json:"notebook_id"`
	Group      string       `json:"group,omitempty"`
	Since      time.Time    `json:"since"`
	Until      time.Time    `json:"until"`
	Window     string       `json:"window"`
	RunCount   int          `json:"run_count"`
	Points     []TrendPoint `json:"points"`
}
