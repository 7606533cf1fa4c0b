package optimization

import (
	"context"
)

// Immigrator is the pull hook of the island model. Immigrate is called
// synchronously from the generation loop and should return exactly count
// candidates with their fitness.
type Immigrator[T any] interface {
	Immigrate(ctx context.Context, runID string, count int) ([]T, []float64, error)
}

// Migrator is the push hook of the island model. Engines call Migrate once in
// its own goroutine with a snapshot the migrator may keep. Implementations
// must return when ctx is cancelled.
type Migrator[T any] interface {
	Migrate(ctx context.Context, runID string, population []T, fitness []float64) error
}

// MigrationPort combines both hooks.
type MigrationPort[T any] interface {
	Immigrator[T]
	Migrator[T]
}

// Snapshot returns a point-in-time copy of a population and its fitness that
// shares no memory with the engine buffers.
func Snapshot[T Cloner[T]](population []T, fitness []float64) ([]T, []float64) {
	pop := make([]T, len(population))
	for i, c := range population {
		pop[i] = c.Clone()
	}
	return pop, append([]float64(nil), fitness...)
}
