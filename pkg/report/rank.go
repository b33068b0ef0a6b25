package report

import (
	"fmt"
	"sort"

	"github.com/maxgio92/ktally/pkg/counter"
)

// Metric is the value entries are ranked by.
type Metric int

const (
	ByCount Metric = iota
	ByLatency
)

func (m Metric) String() string {
	switch m {
	case ByCount:
		return "count"
	case ByLatency:
		return "latency"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

func (m Metric) value(r counter.Record) uint64 {
	if m == ByLatency {
		return r.TotalNs
	}
	return r.Count
}

// Rank sorts entries by metric, descending, with ties broken by ascending
// key, and keeps the first topK (all when topK <= 0). The sentinel key is
// removed; the number of sentinel entries found is returned.
func Rank(entries []counter.Entry, metric Metric, topK int) ([]counter.Entry, int) {
	ranked := make([]counter.Entry, 0, len(entries))
	sentinels := 0
	for _, e := range entries {
		if e.Key == counter.SentinelKey {
			sentinels++
			continue
		}
		ranked = append(ranked, e)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := metric.value(ranked[i].Record), metric.value(ranked[j].Record)
		if vi != vj {
			return vi > vj
		}
		return ranked[i].Key < ranked[j].Key
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	return ranked, sentinels
}
