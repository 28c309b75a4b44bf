// Package stats contains history statistics and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/dayplan/internal/history"
	"github.com/verte-zerg/dayplan/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// BestStreak returns the longest run of consecutive completed days.
// days must be ordered most recent first.
func BestStreak(days []history.Day) int {
	best, run := 0, 0
	prev := ""
	for _, d := range days {
		if !d.Record.Completed {
			run = 0
			prev = ""
			continue
		}
		if prev != "" {
			if gap, ok := history.DaysBetween(d.Key, prev); ok && gap == 1 {
				run++
			} else {
				run = 1
			}
		} else {
			run = 1
		}
		prev = d.Key
		if run > best {
			best = run
		}
	}
	return best
}

// CompletionRate is the share of recorded days that were completed.
func CompletionRate(days []history.Day) float64 {
	if len(days) == 0 {
		return 0
	}
	done := 0
	for _, d := range days {
		if d.Record.Completed {
			done++
		}
	}
	return float64(done) / float64(len(days))
}

// AbandonRates returns the share of unfinished deep sessions and of all
// unfinished sessions. A rate is nil when there is nothing to measure.
func AbandonRates(days []history.Day) (deep, overall *float64) {
	var deepTotal, deepOpen, open int
	for _, d := range days {
		if !d.Record.Completed {
			open++
		}
		if d.Record.Mode == model.ModeDeep {
			deepTotal++
			if !d.Record.Completed {
				deepOpen++
			}
		}
	}
	if len(days) > 0 {
		v := float64(open) / float64(len(days))
		overall = &v
	}
	if deepTotal > 0 {
		v := float64(deepOpen) / float64(deepTotal)
		deep = &v
	}
	return deep, overall
}

// RenderSummary prints the streak summary for a report.
func RenderSummary(w io.Writer, r Report) error {
	days := r.Series.Days
	if len(days) == 0 {
		_, err := fmt.Fprintln(w, "No practice recorded.")
		return err
	}
	minutes := r.Minutes()
	var total float64
	for _, m := range minutes {
		total += m
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Days: %d", len(days)),
		fmt.Sprintf("Current streak: %d", r.Series.Streak),
		fmt.Sprintf("Best streak: %d", BestStreak(days)),
		fmt.Sprintf("Completion: %.0f%%", CompletionRate(days)*100),
		fmt.Sprintf("Avg minutes: %.1f", total/float64(len(minutes))),
		fmt.Sprintf("Minutes: %s", Sparkline(MovingAverage(minutes, r.Window))),
	}
	if r.Series.Dropped > 0 {
		lines = append(lines, fmt.Sprintf("Skipped records: %d", r.Series.Dropped))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderHistory prints one row per day, most recent first.
func RenderHistory(w io.Writer, r Report) error {
	if len(r.Series.Days) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "History"); err != nil {
		return err
	}
	headers := []string{"Day", "Cluster", "Mode", "Lesson", "Done", "Min"}
	rows := make([][]string, 0, len(r.Series.Days))
	for _, d := range r.Series.Days {
		done := "no"
		if d.Record.Completed {
			done = "yes"
		}
		lesson := d.Record.LessonID
		if lesson == "" {
			lesson = "-"
		}
		rows = append(rows, []string{
			d.Key,
			string(d.Record.Cluster),
			string(d.Record.Mode),
			lesson,
			done,
			fmt.Sprintf("%.1f", float64(d.Record.DurationSeconds)/60),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{5: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderClusters prints per-cluster totals.
func RenderClusters(w io.Writer, r Report) error {
	clusters := RankClusters(r.Series.Days)
	if len(clusters) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Clusters"); err != nil {
		return err
	}
	headers := []string{"Cluster", "Days", "Done", "Rate"}
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			string(c.Cluster),
			fmt.Sprintf("%d", c.Days),
			fmt.Sprintf("%d", c.Completed),
			fmt.Sprintf("%.0f%%", c.Rate()*100),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true, 2: true, 3: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
