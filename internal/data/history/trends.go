package history

import (
	"math"
	"time"

	"nbcollab/internal/core/errors"
)

// BuildTrendReport turns a run series into per-run deltas and a trailing
// moving average of the best score over window.
func BuildTrendReport(runs []ScoreRun, window time.Duration) (TrendReport, error) {
	if len(runs) == 0 {
		return TrendReport{}, errors.New(errors.CodeNotFound, "no score runs available")
	}

	points := make([]TrendPoint, 0, len(runs))
	for i, current := range runs {
		point := TrendPoint{
			RunID:      current.RunID,
			ComputedAt: current.ComputedAt,
			Score:      round4(current.BestScore),
			Width:      current.BestWidth,
		}
		if i > 0 {
			point.Delta = round4(current.BestScore - runs[i-1].BestScore)
		}
		point.MovingAvg = round4(movingAverage(runs, i, window))
		points = append(points, point)
	}

	return TrendReport{
		NotebookID: runs[0].NotebookID,
		Group:      runs[0].Group,
		Since:      runs[0].ComputedAt,
		Until:      runs[len(runs)-1].ComputedAt,
		Window:     window.String(),
		RunCount:   len(points),
		Points:     points,
	}, nil
}

func movingAverage(runs []ScoreRun, index int, window time.Duration) float64 {
	if window <= 0 {
		return runs[index].BestScore
	}

	cutoff := runs[index].ComputedAt.Add(-window)
	total := 0.0
	count := 0
	for i := index; i >= 0; i-- {
		if runs[i].ComputedAt.Before(cutoff) {
			break
		}
		total += runs[i].BestScore
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
