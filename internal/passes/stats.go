package passes

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Statistic names recorded by the passes in this package.
const (
	StatMergesCreated   = "merges-created"
	StatMergesCollapsed = "merges-collapsed"
	StatPlaceholders    = "placeholders"
	StatFeedbackMoves   = "feedback-moves"
	StatUnresolvedEdges = "unresolved-edges"
	StatBlocksFlattened = "blocks-flattened"
	StatDataMovs        = "data-movs"
)

// Statistics counts pass events for one pipeline run in a private
// prometheus registry.
type Statistics struct {
	registry *prometheus.Registry
	counters *prometheus.CounterVec
}

// Stat is one gathered counter.
type Stat struct {
	Pass  string
	Name  string
	Value float64
}

// NewStatistics returns an empty statistics collector.
func NewStatistics() *Statistics {
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neuraflow",
		Subsystem: "pass",
		Name:      "statistic_total",
		Help:      "Events recorded by compiler passes.",
	}, []string{"pass", "statistic"})
	registry := prometheus.NewRegistry()
	registry.MustRegister(counters)
	return &Statistics{registry: registry, counters: counters}
}

// Add increments a statistic. A nil receiver discards the event.
func (s *Statistics) Add(pass, name string, n int) {
	if s == nil || n <= 0 {
		return
	}
	s.counters.WithLabelValues(pass, name).Add(float64(n))
}

// Get returns the current value of one statistic.
func (s *Statistics) Get(pass, name string) float64 {
	stats, err := s.Snapshot()
	if err != nil {
		return 0
	}
	for _, st := range stats {
		if st.Pass == pass && st.Name == name {
			return st.Value
		}
	}
	return 0
}

// Snapshot gathers every statistic, sorted by pass then name.
func (s *Statistics) Snapshot() ([]Stat, error) {
	if s == nil {
		return nil, nil
	}
	families, err := s.registry.Gather()
	if err != nil {
		return nil, err
	}
	var out []Stat
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			st := Stat{Value: m.GetCounter().GetValue()}
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "pass":
					st.Pass = lp.GetValue()
				case "statistic":
					st.Name = lp.GetValue()
				}
			}
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pass != out[j].Pass {
			return out[i].Pass < out[j].Pass
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
