package stats

import (
	"context"

	"github.com/verte-zerg/dayplan/internal/history"
)

// HistorySource reads raw practice history.
type HistorySource interface {
	PracticeHistory(ctx context.Context, userID string, limit int) ([]history.RawRecord, error)
}

// Report contains precomputed data for history rendering.
type Report struct {
	Series history.Series
	// Window smooths the minutes sparkline.
	Window int
}

// BuildReport loads and normalizes a user's history.
func BuildReport(ctx context.Context, src HistorySource, userID string, limit, window int) (Report, error) {
	raws, err := src.PracticeHistory(ctx, userID, limit)
	if err != nil {
		return Report{}, err
	}
	records, dropped := history.Canonicalize(raws)
	series := history.Normalize(records)
	series.Dropped += dropped
	return Report{Series: series, Window: window}, nil
}

// Minutes returns minutes practiced per day, oldest first.
func (r Report) Minutes() []float64 {
	days := r.Series.Days
	out := make([]float64, len(days))
	for i, d := range days {
		out[len(days)-1-i] = float64(d.Record.DurationSeconds) / 60
	}
	return out
}
