// Package store keeps the summaries of finished runs.
package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Summary is the outcome of a finished run.
type Summary struct {
	ID          string              `json:"id"`
	Algorithm   string              `json:"algorithm"`
	Problem     string              `json:"problem"`
	Group       string              `json:"group"`
	Status      string              `json:"status"`
	Fitness     *float64            `json:"fitness,omitempty"`
	Best        optimization.Vector `json:"best,omitempty"`
	Generations int                 `json:"generations"`
	Evaluations int                 `json:"evaluations"`
	Cancelled   bool                `json:"cancelled"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	FinishedAt  time.Time           `json:"finished_at"`
}

// Filter restricts List. Zero fields match everything.
type Filter struct {
	Algorithm string
	Problem   string

	// Limit caps the number of summaries returned, most recent first
	Limit int
}

func (f Filter) match(s Summary) bool {
	return (f.Algorithm == "" || strings.EqualFold(f.Algorithm, s.Algorithm)) &&
		(f.Problem == "" || strings.EqualFold(f.Problem, s.Problem))
}

// Store persists run summaries. Implementations are safe for concurrent use.
type Store interface {
	Save(ctx context.Context, s Summary) error
	Get(ctx context.Context, id string) (Summary, bool, error)
	List(ctx context.Context, f Filter) ([]Summary, error)
	Close() error
}

// New opens the named backend: memory (the default) or sqlite at path.
func New(ctx context.Context, backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, optimization.ConfigErrorf("unsupported store backend %q", backend).WithComponent("store")
	}
}

// recent orders summaries by finish time, most recent first, and applies the
// limit.
func recent(out []Summary, limit int) []Summary {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
