// Package selector chooses today's training cluster and base mode.
package selector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/verte-zerg/dayplan/internal/history"
	"github.com/verte-zerg/dayplan/internal/model"
)

// StreakLimit is the number of consecutive completed days after which the
// selector rotates away from a cluster.
const StreakLimit = 3

const deepWindow = 3

// AxisClusters maps each axis to the cluster that trains it.
var AxisClusters = map[model.Axis]model.Cluster{
	model.AxisClarity:            model.ClusterClarity,
	model.AxisEnergy:             model.ClusterEnergy,
	model.AxisEmotionalStability: model.ClusterCalm,
	model.AxisFocus:              model.ClusterFocus,
}

// Baseline is the selector output.
type Baseline struct {
	Cluster      model.Cluster
	Mode         model.Mode
	Lang         string
	Reason       string
	HistoryCount int
	Fallback     bool
}

// Rotation is the round-robin cluster order used when no alternate axis qualifies.
type Rotation struct {
	order []model.Cluster
}

// NewRotation returns a rotation over order, or the default cluster list when empty.
func NewRotation(order []model.Cluster) *Rotation {
	if len(order) == 0 {
		order = model.Clusters
	}
	return &Rotation{order: append([]model.Cluster(nil), order...)}
}

// Next returns the cluster after current. Unknown clusters start the rotation.
func (r *Rotation) Next(current model.Cluster) model.Cluster {
	for i, c := range r.order {
		if c == current {
			return r.order[(i+1)%len(r.order)]
		}
	}
	return r.order[0]
}

// Order returns the clusters starting after current, excluding current.
func (r *Rotation) Order(current model.Cluster) []model.Cluster {
	out := make([]model.Cluster, 0, len(r.order))
	c := current
	for range r.order {
		c = r.Next(c)
		if c == current {
			break
		}
		out = append(out, c)
	}
	return out
}

// Selector holds the tables used for selection.
type Selector struct {
	rotation *Rotation
	lang     string
}

// New creates a selector. rotation may be nil.
func New(rotation *Rotation, lang string) *Selector {
	if rotation == nil {
		rotation = NewRotation(nil)
	}
	if lang == "" {
		lang = "en"
	}
	return &Selector{rotation: rotation, lang: lang}
}

// Lang returns the content language.
func (s *Selector) Lang() string {
	return s.lang
}

// Select derives today's baseline. records may span clusters and days; only
// days strictly before today inform the decision.
func (s *Selector) Select(profile model.AxisProfile, records []model.PracticeRecord, today string) Baseline {
	var reasons []string
	ranked := rankAxes(profile)
	if len(ranked) == 0 {
		return Baseline{
			Cluster:      model.DefaultCluster,
			Mode:         model.ModeShort,
			Lang:         s.lang,
			Reason:       "fallback:no_profile|cluster=" + string(model.DefaultCluster) + "|mode=short",
			HistoryCount: len(records),
			Fallback:     true,
		}
	}

	weakest := ranked[0]
	cluster := AxisClusters[weakest]
	reasons = append(reasons, fmt.Sprintf("weakest=%s(%s)", weakest, formatScore(profile[weakest])))
	reasons = append(reasons, "cluster="+string(cluster))

	days := history.Normalize(history.Filter(records, cluster)).Before(today)
	streak := history.Streak(days)
	if streak >= StreakLimit {
		next, how := s.alternate(ranked, cluster)
		reasons = append(reasons, fmt.Sprintf("streak=%d>=%d switch:%s->%s(%s)", streak, StreakLimit, cluster, next, how))
		cluster = next
		days = history.Normalize(history.Filter(records, cluster)).Before(today)
	} else {
		reasons = append(reasons, fmt.Sprintf("streak=%d", streak))
	}

	mode, why := baseMode(days, today)
	reasons = append(reasons, fmt.Sprintf("mode=%s(%s)", mode, why))

	return Baseline{
		Cluster:      cluster,
		Mode:         mode,
		Lang:         s.lang,
		Reason:       strings.Join(reasons, "|"),
		HistoryCount: len(records),
	}
}

func (s *Selector) alternate(ranked []model.Axis, current model.Cluster) (model.Cluster, string) {
	for _, axis := range ranked[1:] {
		if c := AxisClusters[axis]; c != current {
			return c, "next_weakest=" + string(axis)
		}
	}
	return s.rotation.Next(current), "rotation"
}

func baseMode(days []history.Day, today string) (model.Mode, string) {
	if len(days) == 0 {
		return model.ModeShort, "no_history"
	}
	last := days[0]
	if last.Key != history.AddDays(today, -1) {
		return model.ModeShort, "no_record_yesterday"
	}
	if !last.Record.Completed {
		return model.ModeShort, "yesterday_incomplete"
	}
	if len(days) < deepWindow {
		return model.ModeShort, fmt.Sprintf("only_%d_records", len(days))
	}
	for _, d := range days[:deepWindow] {
		if !d.Record.Completed {
			return model.ModeShort, "last_3_mixed"
		}
	}
	return model.ModeDeep, "last_3_complete"
}

// rankAxes orders known axes from weakest to strongest. Ties keep canonical order.
func rankAxes(profile model.AxisProfile) []model.Axis {
	ranked := make([]model.Axis, 0, len(profile))
	for _, axis := range model.Axes {
		if _, ok := profile[axis]; ok {
			ranked = append(ranked, axis)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return profile[ranked[i]] < profile[ranked[j]]
	})
	return ranked
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
