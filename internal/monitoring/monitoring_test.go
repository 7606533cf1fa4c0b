package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// gauge returns the value of the series with the given labels, if present.
func gauge(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue(), true
			}
			return m.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func TestPrometheus_Publish(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, "evogen")
	require.NoError(t, err)

	p.Publish(optimization.FitnessRecord("ga-1", "exp", 12.5))
	p.Publish(optimization.FitnessRecord("ga-1", "exp", 3.25))
	p.Publish(optimization.PressureRecord("ga-1", "exp", 1.75))

	labels := map[string]string{"algorithm": "ga-1", "group": "exp"}

	v, ok := gauge(t, reg, "evogen_best_fitness", labels)
	require.True(t, ok)
	assert.Equal(t, 3.25, v)

	v, ok = gauge(t, reg, "evogen_selection_pressure", labels)
	require.True(t, ok)
	assert.Equal(t, 1.75, v)

	v, ok = gauge(t, reg, "evogen_records_total", map[string]string{"algorithm": "ga-1", "label": "ga-1: fit"})
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg, "evogen")
	require.NoError(t, err)

	_, err = NewPrometheus(reg, "evogen")
	assert.Error(t, err)
}

type collector struct {
	mu      sync.Mutex
	records []optimization.Record
	block   chan struct{}
}

func (c *collector) Publish(rec optimization.Record) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestAsync_DeliversInOrder(t *testing.T) {
	c := &collector{}
	a := NewAsync(c, 16)

	for i := range 10 {
		a.Publish(optimization.FitnessRecord("ga", "", float64(i)))
	}
	a.Close()

	require.Equal(t, 10, c.len())
	for i, rec := range c.records {
		assert.Equal(t, float64(i), rec.Value)
	}
	assert.Zero(t, a.Dropped())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	c := &collector{block: make(chan struct{})}
	a := NewAsync(c, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 50 {
			a.Publish(optimization.FitnessRecord("ga", "", 1))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow sink")
	}

	// the consumer holds at most one record and the buffer one more
	assert.GreaterOrEqual(t, a.Dropped(), uint64(48))

	close(c.block)
	a.Close()
	assert.Equal(t, uint64(50), a.Dropped()+uint64(c.len()))
}

func TestAsync_PublishAfterClose(t *testing.T) {
	a := NewAsync(&collector{}, 0)
	a.Close()
	a.Close()

	a.Publish(optimization.FitnessRecord("ga", "", 1))
	assert.Equal(t, uint64(1), a.Dropped())
}

func TestLog_Publish(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLog(zap.New(core))

	l.Publish(optimization.PressureRecord("osga", "g", 2))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "osga: spres", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "osga", fields["algorithm"])
	assert.Equal(t, int64(optimization.RankSelectionPressure), fields["rank"])
	assert.Equal(t, 2.0, fields["value"])
}

func TestMulti(t *testing.T) {
	a, b := &collector{}, &collector{}
	Multi{a, b}.Publish(optimization.FitnessRecord("ga", "", 1))
	assert.Equal(t, 1, a.len())
	assert.Equal(t, 1, b.len())
}
