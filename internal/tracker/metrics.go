package tracker

import "github.com/prometheus/client_golang/prometheus"

// Collectors holds the prometheus counters for the ingest path.
type Collectors struct {
	Exposures   *prometheus.CounterVec
	Conversions *prometheus.CounterVec
	Feedback    *prometheus.CounterVec
}

// NewCollectors builds and registers the ingest counters.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Exposures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitkit",
			Name:      "exposures_total",
			Help:      "Variant exposures served, by test and variant.",
		}, []string{"test", "variant"}),
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitkit",
			Name:      "conversions_total",
			Help:      "Conversions recorded, by test, variant and conversion type.",
		}, []string{"test", "variant", "type"}),
		Feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitkit",
			Name:      "feedback_total",
			Help:      "Feedback events recorded, by test, variant and kind.",
		}, []string{"test", "variant", "kind"}),
	}
	reg.MustRegister(c.Exposures, c.Conversions, c.Feedback)
	return c
}
