package history

import (
	"fmt"
	"math"
	"time"
)

// BuildTrendReport turns a package's runs, oldest first, into per-run deltas
// and a moving average of the total score over window.
func BuildTrendReport(pkg string, runs []Run, window time.Duration) (TrendReport, error) {
	if len(runs) == 0 {
		return TrendReport{}, fmt.Errorf("no runs recorded for %s", pkg)
	}

	points := make([]TrendPoint, 0, len(runs))
	for i, current := range runs {
		point := TrendPoint{
			Timestamp:  current.Timestamp,
			CommitHash: current.CommitHash,
			Target:     current.Target,
			Total:      current.Total,
			Severity:   current.Severity,
			UsageCount: current.UsageCount,
		}
		if i > 0 {
			prev := runs[i-1]
			point.DeltaTotal = round2(current.Total - prev.Total)
			point.DeltaUsage = current.UsageCount - prev.UsageCount
		}
		point.AvgTotal = round2(movingAverage(runs, i, window))
		point.WindowHours = round2(window.Hours())
		points = append(points, point)
	}

	return TrendReport{
		SchemaVersion: SchemaVersion,
		Package:       pkg,
		Since:         runs[0].Timestamp,
		Until:         runs[len(runs)-1].Timestamp,
		Window:        window.String(),
		RunCount:      len(points),
		Points:        points,
	}, nil
}

func movingAverage(runs []Run, index int, window time.Duration) float64 {
	if window <= 0 {
		return runs[index].Total
	}

	cutoff := runs[index].Timestamp.Add(-window)
	total := 0.0
	count := 0
	for i := index; i >= 0; i-- {
		if runs[i].Timestamp.Before(cutoff) {
			break
		}
		total += runs[i].Total
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
