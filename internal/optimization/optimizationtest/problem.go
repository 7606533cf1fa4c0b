// Package optimizationtest provides scripted problems for engine tests.
package optimizationtest

import (
	"sync"
)

// Scalar is a one-gene candidate whose fitness is its value.
type Scalar struct {
	Value float64
}

// Clone returns a copy of the scalar.
func (s *Scalar) Clone() *Scalar {
	c := *s
	return &c
}

// Problem is a fully scriptable problem over *Scalar. Zero-valued hooks fall
// back to: create values from Initial in order, identity evaluation, select
// index 0, copy parent one, no mutation, never terminate.
type Problem struct {
	Initial       []float64
	SelectFunc    func(fitness []float64) int
	CrossoverFunc func(p1, p2, out *Scalar)
	MutateFunc    func(c *Scalar)
	TerminateFunc func(best *Scalar, fitness float64) bool

	mu          sync.Mutex
	created     int
	evaluations int
}

// Create returns the next scripted initial value.
func (p *Problem) Create() *Scalar {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := 0.0
	if len(p.Initial) > 0 {
		v = p.Initial[p.created%len(p.Initial)]
	}
	p.created++
	return &Scalar{Value: v}
}

// Evaluate returns the value of the candidate.
func (p *Problem) Evaluate(c *Scalar) float64 {
	p.mu.Lock()
	p.evaluations++
	p.mu.Unlock()
	return c.Value
}

func (p *Problem) Select(fitness []float64) int {
	if p.SelectFunc != nil {
		return p.SelectFunc(fitness)
	}
	return 0
}

func (p *Problem) Crossover(p1, p2, out *Scalar) {
	if p.CrossoverFunc != nil {
		p.CrossoverFunc(p1, p2, out)
		return
	}
	out.Value = p1.Value
}

func (p *Problem) Mutate(c *Scalar) {
	if p.MutateFunc != nil {
		p.MutateFunc(c)
	}
}

func (p *Problem) Terminate(best *Scalar, fitness float64) bool {
	if p.TerminateFunc != nil {
		return p.TerminateFunc(best, fitness)
	}
	return false
}

// Evaluations returns how often Evaluate was called.
func (p *Problem) Evaluations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evaluations
}

// Sequence returns a function yielding values in order, repeating the last
// one once exhausted.
func Sequence(values ...float64) func() float64 {
	var mu sync.Mutex
	i := 0
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := values[min(i, len(values)-1)]
		i++
		return v
	}
}

// Alternate returns a selector cycling through the given indices.
func Alternate(indices ...int) func([]float64) int {
	var mu sync.Mutex
	i := 0
	return func([]float64) int {
		mu.Lock()
		defer mu.Unlock()
		idx := indices[i%len(indices)]
		i++
		return idx
	}
}
