package report

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"nbcollab/internal/data/history"
)

func RenderTrendTSV(report history.TrendReport) ([]byte, error) {
	var buf strings.Builder

	buf.WriteString("ComputedAt\tRunID\tScore\tWidthSeconds\tDelta\tMovingAvg\n")
	for _, point := range report.Points {
		buf.WriteString(fmt.Sprintf(
			"%s\t%s\t%.4f\t%.0f\t%.4f\t%.4f\n",
			point.ComputedAt.Format("2006-01-02T15:04:05Z07:00"),
			point.RunID,
			point.Score,
			point.Width.Seconds(),
			point.Delta,
			point.MovingAvg,
		))
	}

	return []byte(buf.String()), nil
}

func RenderTrendJSON(report history.TrendReport) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(report, "", "  ")
}
