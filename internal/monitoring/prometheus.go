// Package monitoring provides optimization.Sink implementations that export
// run progress records.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Prometheus exports progress records as gauges labelled by algorithm and
// group.
type Prometheus struct {
	fitness  *prometheus.GaugeVec
	pressure *prometheus.GaugeVec
	records  *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	labels := []string{"algorithm", "group"}

	p := &Prometheus{
		fitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best fitness found so far by a run.",
		}, labels),
		pressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selection_pressure",
			Help:      "Selection pressure of the last generation of a run.",
		}, labels),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Progress records received, by label.",
		}, []string{"algorithm", "label"}),
	}

	for _, c := range []prometheus.Collector{p.fitness, p.pressure, p.records} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Publish implements optimization.Sink.
func (p *Prometheus) Publish(rec optimization.Record) {
	p.records.WithLabelValues(rec.Algorithm, rec.Label).Inc()

	switch rec.Rank {
	case optimization.RankFitness:
		p.fitness.WithLabelValues(rec.Algorithm, rec.Group).Set(rec.Value)
	case optimization.RankSelectionPressure:
		p.pressure.WithLabelValues(rec.Algorithm, rec.Group).Set(rec.Value)
	}
}
