package stats

import (
	"sort"

	"github.com/verte-zerg/dayplan/internal/history"
	"github.com/verte-zerg/dayplan/internal/model"
)

// ClusterTotal aggregates days per cluster.
type ClusterTotal struct {
	Cluster   model.Cluster
	Days      int
	Completed int
}

// Rate is the completed share of the cluster's days.
func (c ClusterTotal) Rate() float64 {
	if c.Days == 0 {
		return 0
	}
	return float64(c.Completed) / float64(c.Days)
}

// RankClusters totals days per cluster, most practiced first.
func RankClusters(days []history.Day) []ClusterTotal {
	byCluster := map[model.Cluster]*ClusterTotal{}
	for _, d := range days {
		c := d.Record.Cluster
		if c == "" {
			continue
		}
		total, ok := byCluster[c]
		if !ok {
			total = &ClusterTotal{Cluster: c}
			byCluster[c] = total
		}
		total.Days++
		if d.Record.Completed {
			total.Completed++
		}
	}
	items := make([]ClusterTotal, 0, len(byCluster))
	for _, t := range byCluster {
		items = append(items, *t)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Days == items[j].Days {
			return items[i].Cluster < items[j].Cluster
		}
		return items[i].Days > items[j].Days
	})
	return items
}
