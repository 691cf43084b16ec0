package activity

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"nbcollab/internal/core/errors"
	"nbcollab/internal/engine/graph"
	"nbcollab/internal/shared/observability"
)

// DefaultSliceWidths is the window sweep used when none is configured.
var DefaultSliceWidths = []time.Duration{
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// WidthScore is the similarity obtained for one slice width.
type WidthScore struct {
	Width   time.Duration
	Score   float64
	Windows [][]graph.NodeID
}

// Result is the outcome of a sweep. Observed is false when no execution could
// be attributed to a section, in which case no score exists.
type Result struct {
	Observed bool
	Best     WidthScore
	Sweep    []WidthScore
	// Ideal is the schedule restricted to sections that were ever observed.
	Ideal []graph.Level
}

type ScorerConfig struct {
	Widths    []time.Duration
	Threshold float64
	// Parallel bounds concurrent aggregations; zero means GOMAXPROCS.
	Parallel int
}

type Scorer struct {
	widths    []time.Duration
	threshold float64
	parallel  int
}

func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	widths := cfg.Widths
	if len(widths) == 0 {
		widths = DefaultSliceWidths
	}
	for _, w := range widths {
		if w <= 0 {
			return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("slice width must be positive, got %s", w))
		}
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("threshold must be in (0, 1], got %g", threshold))
	}
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	return &Scorer{widths: append([]time.Duration(nil), widths...), threshold: threshold, parallel: parallel}, nil
}

// Score aggregates records at every configured width and compares each
// sequence of windows with the ideal schedule. The best width is the one with
// the highest score; ties go to the narrower width.
func (s *Scorer) Score(ctx context.Context, schedule []graph.Level, records []Record) (Result, error) {
	ctx, span := observability.Tracer.Start(ctx, "activity.Score")
	defer span.End()
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("score").Observe(time.Since(start).Seconds())
	}()

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("widths", len(s.widths)),
	)
	if len(records) == 0 {
		return Result{}, nil
	}

	windows := make([][][]graph.NodeID, len(s.widths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, width := range s.widths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := Aggregate(records, width, s.threshold)
			if err != nil {
				return err
			}
			windows[i] = GroupRows(rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	observed := make(SectionSet)
	for _, ws := range windows {
		for _, w := range ws {
			for _, id := range w {
				observed[id] = struct{}{}
			}
		}
	}
	ideal := restrict(schedule, observed)

	res := Result{Observed: true, Ideal: ideal, Sweep: make([]WidthScore, len(s.widths))}
	for i, width := range s.widths {
		res.Sweep[i] = WidthScore{
			Width:   width,
			Score:   ListSimilarity(windows[i], levelsAsLists(ideal)),
			Windows: windows[i],
		}
	}
	res.Best = res.Sweep[0]
	for _, ws := range res.Sweep[1:] {
		if ws.Score > res.Best.Score || (ws.Score == res.Best.Score && ws.Width < res.Best.Width) {
			res.Best = ws
		}
	}

	span.SetAttributes(
		attribute.Float64("best.score", res.Best.Score),
		attribute.String("best.width", res.Best.Width.String()),
	)
	return res, nil
}

// restrict drops unobserved sections from each level. A level left empty
// stays in place as an empty set so later levels keep their positions.
func restrict(schedule []graph.Level, observed SectionSet) []graph.Level {
	out := make([]graph.Level, 0, len(schedule))
	for _, level := range schedule {
		kept := graph.Level{}
		for _, id := range level {
			if _, ok := observed[id]; ok {
				kept = append(kept, id)
			}
		}
		out = append(out, kept)
	}
	return out
}

func levelsAsLists(levels []graph.Level) [][]graph.NodeID {
	out := make([][]graph.NodeID, len(levels))
	for i, l := range levels {
		out[i] = l
	}
	return out
}
