package history

import (
	"sort"
	"time"

	"github.com/verte-zerg/dayplan/internal/model"
)

// RawRecord is a practice record whose day is still in its source representation.
type RawRecord struct {
	Day any
	model.PracticeRecord
}

// Day is one deduplicated day in a series.
type Day struct {
	Key    string
	Record model.PracticeRecord
}

// Series is a deduplicated history, most recent day first.
type Series struct {
	Days    []Day
	Streak  int
	Dropped int
}

// Canonicalize derives day keys for raw records and drops unparsable ones.
// It returns the canonical records and the number dropped.
func Canonicalize(raws []RawRecord) ([]model.PracticeRecord, int) {
	out := make([]model.PracticeRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		key, ok := DayKey(raw.Day)
		if !ok {
			dropped++
			continue
		}
		rec := raw.PracticeRecord
		rec.DayKey = key
		out = append(out, rec)
	}
	return out, dropped
}

// Normalize deduplicates records per day and computes the completed-day streak.
// Records whose DayKey is not a canonical key are dropped.
func Normalize(records []model.PracticeRecord) Series {
	byDay := make(map[string]model.PracticeRecord, len(records))
	dropped := 0
	for _, rec := range records {
		key, ok := DayKey(rec.DayKey)
		if !ok {
			dropped++
			continue
		}
		rec.DayKey = key
		current, exists := byDay[key]
		if !exists || Prefer(rec, current) {
			byDay[key] = rec
		}
	}

	days := make([]Day, 0, len(byDay))
	for key, rec := range byDay {
		days = append(days, Day{Key: key, Record: rec})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Key > days[j].Key
	})
	return Series{Days: days, Streak: Streak(days), Dropped: dropped}
}

// Prefer reports whether a should replace b as the record for their shared day.
func Prefer(a, b model.PracticeRecord) bool {
	if a.Completed != b.Completed {
		return a.Completed
	}
	if a.Completed {
		return completionTime(a).After(completionTime(b))
	}
	return a.StartedAt.After(b.StartedAt)
}

func completionTime(rec model.PracticeRecord) time.Time {
	if !rec.CompletedAt.IsZero() {
		return rec.CompletedAt
	}
	return rec.StartedAt
}

// Streak counts consecutive completed days walking back from the most recent.
// Incomplete days before the first completed day are skipped.
func Streak(days []Day) int {
	streak := 0
	prev := ""
	for _, d := range days {
		if !d.Record.Completed {
			if streak > 0 {
				break
			}
			continue
		}
		if streak == 0 {
			streak = 1
			prev = d.Key
			continue
		}
		gap, ok := DaysBetween(d.Key, prev)
		if !ok || gap != 1 {
			break
		}
		streak++
		prev = d.Key
	}
	return streak
}

// Filter returns the records for one cluster.
func Filter(records []model.PracticeRecord, cluster model.Cluster) []model.PracticeRecord {
	out := make([]model.PracticeRecord, 0, len(records))
	for _, rec := range records {
		if rec.Cluster == cluster {
			out = append(out, rec)
		}
	}
	return out
}

// Before returns the days strictly earlier than key.
func (s Series) Before(key string) []Day {
	for i, d := range s.Days {
		if d.Key < key {
			return s.Days[i:]
		}
	}
	return nil
}
