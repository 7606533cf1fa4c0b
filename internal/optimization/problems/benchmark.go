// Package problems provides real-valued benchmark problems for the engines.
package problems

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Selection is the parent selection scheme of a benchmark.
type Selection int

const (
	// Uniform picks any index with equal probability.
	Uniform Selection = iota
	// Tournament picks the best of TournamentSize uniform draws.
	Tournament
)

// Benchmark is a box-bounded real-valued minimization problem. Candidates are
// created uniformly in the box, crossed over at a single cut point and
// mutated by resetting one gene uniformly in the box.
//
// A Benchmark owns a random source and is not safe for concurrent use; give
// every run its own instance.
type Benchmark struct {
	Name       string
	Dimensions int
	Lower      float64
	Upper      float64

	// Objective computes the fitness of a point
	Objective func(x []float64) float64

	// Target is the fitness at or below which a run terminates
	Target float64

	Selection      Selection
	TournamentSize int

	rng *rand.Rand
}

// Sphere is sum(x_i^2).
func Sphere(x []float64) float64 {
	return floats.Dot(x, x)
}

// Rastrigin is 10n + sum(x_i^2 - 10cos(2 pi x_i)).
func Rastrigin(x []float64) float64 {
	sum := 10.0 * float64(len(x))
	for _, xi := range x {
		sum += xi*xi - 10.0*math.Cos(2.0*math.Pi*xi)
	}
	return sum
}

// Ackley is the Ackley function with a=20, b=0.2, c=2pi.
func Ackley(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	cos := make([]float64, len(x))
	for i, xi := range x {
		cos[i] = math.Cos(2.0 * math.Pi * xi)
	}
	return -20.0*math.Exp(-0.2*math.Sqrt(floats.Dot(x, x)/n)) -
		math.Exp(floats.Sum(cos)/n) + 20.0 + math.E
}

type definition struct {
	objective    func([]float64) float64
	lower, upper float64
}

var definitions = map[string]definition{
	"sphere":    {Sphere, -5.12, 5.12},
	"rastrigin": {Rastrigin, -5.12, 5.12},
	"ackley":    {Ackley, -32.768, 32.768},
}

// Names returns the names of the known benchmarks.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the named benchmark with the given dimensionality. A zero seed
// draws a random one.
func New(name string, dimensions int, seed uint64) (*Benchmark, error) {
	def, ok := definitions[strings.ToLower(name)]
	if !ok {
		return nil, optimization.ConfigErrorf("unknown problem %q", name).WithComponent("problems")
	}
	if dimensions < 1 {
		return nil, optimization.ConfigErrorf("dimensions must be positive, got %d", dimensions).WithComponent("problems")
	}

	return &Benchmark{
		Name:           strings.ToLower(name),
		Dimensions:     dimensions,
		Lower:          def.lower,
		Upper:          def.upper,
		Objective:      def.objective,
		TournamentSize: 2,
		rng:            optimization.NewRand(seed),
	}, nil
}

// Create samples x ~ U(Lower, Upper)^n.
func (b *Benchmark) Create() optimization.Vector {
	x := make(optimization.Vector, b.Dimensions)
	for i := range x {
		x[i] = b.uniform()
	}
	return x
}

// Evaluate computes the objective.
func (b *Benchmark) Evaluate(x optimization.Vector) float64 {
	return b.Objective(x)
}

// Select picks a parent index according to the selection scheme.
func (b *Benchmark) Select(fitness []float64) int {
	if b.Selection != Tournament {
		return b.rng.IntN(len(fitness))
	}

	best := b.rng.IntN(len(fitness))
	for i := 1; i < b.TournamentSize; i++ {
		if c := b.rng.IntN(len(fitness)); fitness[c] < fitness[best] {
			best = c
		}
	}
	return best
}

// Crossover copies p1 up to a random cut and p2 from there on.
func (b *Benchmark) Crossover(p1, p2, out optimization.Vector) {
	cut := b.rng.IntN(len(out))
	copy(out[:cut], p1[:cut])
	copy(out[cut:], p2[cut:])
}

// Mutate resets one random gene uniformly in the box.
func (b *Benchmark) Mutate(x optimization.Vector) {
	x[b.rng.IntN(len(x))] = b.uniform()
}

// Terminate reports whether the target fitness is reached.
func (b *Benchmark) Terminate(_ optimization.Vector, fitness float64) bool {
	return fitness <= b.Target
}

func (b *Benchmark) uniform() float64 {
	return b.rng.Float64()*(b.Upper-b.Lower) + b.Lower
}
