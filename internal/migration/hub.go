// Package migration connects engines running as islands. A Hub stores the
// populations islands publish and serves them to the other islands as
// immigrants; Archipelago runs a set of islands concurrently.
package migration

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// ErrNoPeers is returned by Immigrate when no other island has published a
// population yet.
var ErrNoPeers = errors.New("no peer population available")

type population[T any] struct {
	candidates []T
	fitness    []float64
}

// Hub is an in-process optimization.MigrationPort shared by islands.
// It is safe for concurrent use.
type Hub[T optimization.Cloner[T]] struct {
	mu      sync.Mutex
	islands map[string]population[T]
	rng     *rand.Rand
}

// NewHub returns an empty hub. A zero seed draws a random one.
func NewHub[T optimization.Cloner[T]](seed uint64) *Hub[T] {
	return &Hub[T]{
		islands: make(map[string]population[T]),
		rng:     optimization.NewRand(seed),
	}
}

// Migrate stores the population of runID, replacing an earlier one.
func (h *Hub[T]) Migrate(ctx context.Context, runID string, candidates []T, fitness []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(candidates) != len(fitness) {
		return optimization.ContractErrorf("%d candidates with %d fitness values", len(candidates), len(fitness)).
			WithComponent("migration").WithOperation("migrate")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.islands[runID] = population[T]{candidates: candidates, fitness: fitness}
	return nil
}

// Immigrate draws count candidates with replacement from the populations of
// all islands other than runID. Every draw picks a peer first, so small
// islands are not drowned out by large ones.
func (h *Hub[T]) Immigrate(ctx context.Context, runID string, count int) ([]T, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	peers := h.peers(runID)
	if len(peers) == 0 {
		return nil, nil, fmt.Errorf("immigrate to %s: %w", runID, ErrNoPeers)
	}

	candidates := make([]T, count)
	fitness := make([]float64, count)
	for k := range candidates {
		p := h.islands[peers[h.rng.IntN(len(peers))]]
		i := h.rng.IntN(len(p.candidates))
		candidates[k] = p.candidates[i].Clone()
		fitness[k] = p.fitness[i]
	}
	return candidates, fitness, nil
}

// Leave forgets the population of runID.
func (h *Hub[T]) Leave(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.islands, runID)
}

// Islands returns the IDs of the islands that published a population.
func (h *Hub[T]) Islands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.islands))
	for id := range h.islands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// peers returns the sorted IDs of non-empty islands other than runID. The
// order keeps draws reproducible for a fixed seed.
func (h *Hub[T]) peers(runID string) []string {
	peers := make([]string, 0, len(h.islands))
	for id, p := range h.islands {
		if id != runID && len(p.candidates) > 0 {
			peers = append(peers, id)
		}
	}
	sort.Strings(peers)
	return peers
}
