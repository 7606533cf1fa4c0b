package optimization

import (
	"context"
)

// Cloner is implemented by every candidate type. Clone must return a deep copy
// that shares no mutable state with its source.
type Cloner[T any] interface {
	Clone() T
}

// Sizer is optionally implemented by candidates with a fixed length. Engines
// use it to detect crossover operators that resize their output slot.
type Sizer interface {
	Len() int
}

// Problem defines the capability contract an optimization target must
// implement. Lower fitness is better throughout.
type Problem[T Cloner[T]] interface {
	// Create produces one independently sampled candidate.
	Create() T

	// Evaluate returns the fitness of a candidate. It must be deterministic
	// for a fixed candidate.
	Evaluate(candidate T) float64

	// Select returns an index into the current population.
	Select(fitness []float64) int

	// Crossover writes a child of p1 and p2 into out. Parents must not be
	// modified.
	Crossover(p1, p2, out T)

	// Mutate perturbs a candidate in place.
	Mutate(candidate T)

	// Terminate reports whether the run should stop.
	Terminate(best T, fitness float64) bool
}

// LocalSearch improves a single candidate and returns the improved candidate
// together with its fitness.
type LocalSearch[T any] func(ctx context.Context, candidate T) (T, float64)

// Algorithm is implemented by every optimization engine.
type Algorithm[T any] interface {
	// ID returns the identifier the algorithm reports itself under.
	ID() string

	// Optimize runs the optimization until termination or until ctx is
	// cancelled. Cancellation is not an error: the best known solution is
	// returned with Result.Cancelled set.
	Optimize(ctx context.Context) (Result[T], error)
}

// Result contains the outcome of an optimization run
type Result[T any] struct {
	Best        T
	Fitness     float64
	Generations int
	Evaluations int
	Cancelled   bool
}

// Vector is a real-valued candidate.
type Vector []float64

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

// Len returns the number of dimensions.
func (v Vector) Len() int {
	return len(v)
}
