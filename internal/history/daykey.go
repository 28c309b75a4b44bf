// Package history canonicalizes per-day practice records.
package history

import (
	"math"
	"strings"
	"time"
)

// DayLayout is the canonical day-key layout.
const DayLayout = "2006-01-02"

// Timestamp is a structured date wrapper as produced by document stores.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanoseconds"`
}

// AsTime converts the wrapper to a UTC time.
func (t Timestamp) AsTime() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

type timeWrapper interface {
	AsTime() time.Time
}

var stringLayouts = []string{
	DayLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// DayKey derives the canonical UTC day key from a string, a millisecond epoch,
// a time.Time or a structured wrapper.
func DayKey(v any) (string, bool) {
	t, ok := toTime(v)
	if !ok {
		return "", false
	}
	return t.UTC().Format(DayLayout), true
}

// DayKeyOf formats t as a canonical UTC day key.
func DayKeyOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range stringLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case int64:
		return time.UnixMilli(val), true
	case int:
		return time.UnixMilli(int64(val)), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(val)), true
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val, true
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case timeWrapper:
		return val.AsTime(), true
	}
	return time.Time{}, false
}

// DaysBetween returns the calendar day difference later minus earlier.
func DaysBetween(earlier, later string) (int, bool) {
	a, err := time.Parse(DayLayout, earlier)
	if err != nil {
		return 0, false
	}
	b, err := time.Parse(DayLayout, later)
	if err != nil {
		return 0, false
	}
	return int(b.Sub(a).Hours() / 24), true
}

// AddDays shifts a canonical key by n days.
func AddDays(key string, n int) string {
	t, err := time.Parse(DayLayout, key)
	if err != nil {
		return key
	}
	return t.AddDate(0, 0, n).Format(DayLayout)
}
