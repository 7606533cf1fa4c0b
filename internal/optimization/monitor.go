package optimization

import (
	"time"
)

// Record ranks
const (
	RankFitness           = 1
	RankSelectionPressure = 2
)

// Record is a progress notification emitted once per generation.
type Record struct {
	Algorithm string
	Group     string
	Rank      int
	Label     string
	Value     float64
	Timestamp time.Time
}

// Sink receives progress records. Publish must not block the caller and must
// not fail the run.
type Sink interface {
	Publish(rec Record)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec Record)

// Publish calls f(rec).
func (f SinkFunc) Publish(rec Record) {
	f(rec)
}

// NopSink discards every record.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(Record) {}

// FitnessRecord builds the best fitness record of a run.
func FitnessRecord(algorithm, group string, value float64) Record {
	return Record{
		Algorithm: algorithm,
		Group:     group,
		Rank:      RankFitness,
		Label:     algorithm + ": fit",
		Value:     value,
		Timestamp: time.Now(),
	}
}

// PressureRecord builds the selection pressure record of a run.
func PressureRecord(algorithm, group string, value float64) Record {
	return Record{
		Algorithm: algorithm,
		Group:     group,
		Rank:      RankSelectionPressure,
		Label:     algorithm + ": spres",
		Value:     value,
		Timestamp: time.Now(),
	}
}
