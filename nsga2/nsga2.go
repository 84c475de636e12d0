// Package nsga2 implements the NSGA-II multi-objective genetic algorithm over
// fixed-length binary chromosomes.
//
// The algorithm is driven one generation at a time through Step so callers
// can observe every generation. The first Step builds and evaluates a random
// population; each later Step breeds an offspring population with binary
// tournament selection, half-uniform crossover and bit-flip mutation, then
// keeps the best PopulationSize solutions of parents plus offspring by
// non-domination rank and crowding distance.
package nsga2

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

const Name = "NSGA-II"

// Direction tells whether an objective is minimised or maximised.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	if d == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Problem is a binary-encoded multi-objective problem.
type Problem interface {
	// NumVariables is the chromosome length.
	NumVariables() int
	// Directions has one entry per objective.
	Directions() []Direction
	// Evaluate returns one value per objective. An error aborts the run.
	Evaluate(mask []bool) ([]float64, error)
}

// Solution is one chromosome with its objective vector and NSGA-II ranking.
type Solution struct {
	Mask       []bool
	Objectives []float64

	Rank     int
	Distance float64
}

// Clone returns a deep copy of s.
func (s *Solution) Clone() *Solution {
	c := &Solution{
		Mask:       append([]bool(nil), s.Mask...),
		Objectives: append([]float64(nil), s.Objectives...),
		Rank:       s.Rank,
		Distance:   s.Distance,
	}
	return c
}

// Selected counts the set bits of the mask.
func (s *Solution) Selected() int {
	n := 0
	for _, b := range s.Mask {
		if b {
			n++
		}
	}
	return n
}

// Config holds the NSGA-II parameters.
type Config struct {
	PopulationSize int
	TournamentSize int
	// CrossoverRate is the probability that a parent pair is recombined.
	CrossoverRate float64
	// MutationRate is the per-bit flip probability; zero means 1/NumVariables.
	MutationRate float64
	// MinSelected is the minimum number of set bits in a chromosome. Random
	// bits are switched on to repair chromosomes below it.
	MinSelected int
	Seed        uint64
}

// DefaultConfig returns the parameters used for feature selection runs.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 10,
		TournamentSize: 2,
		CrossoverRate:  1.0,
		MinSelected:    1,
		Seed:           1,
	}
}

// Snapshot is an immutable copy of the population after a generation.
type Snapshot struct {
	Generation int
	Population []Solution
}

// Solutions returns pointers into the snapshot's own population.
func (s Snapshot) Solutions() []*Solution {
	out := make([]*Solution, len(s.Population))
	for i := range s.Population {
		out[i] = &s.Population[i]
	}
	return out
}

// Algorithm is a running NSGA-II search. It is not safe for concurrent use.
type Algorithm struct {
	problem Problem
	dirs    []Direction
	nvars   int

	popSize        int
	tournamentSize int
	crossoverRate  float64
	mutationRate   float64
	minSelected    int

	rng         *rand.Rand
	population  []*Solution
	generation  int
	evaluations int
}

// New validates cfg and returns an algorithm ready for its first Step.
func New(problem Problem, cfg Config) (*Algorithm, error) {
	nvars := problem.NumVariables()
	dirs := problem.Directions()
	switch {
	case nvars < 1:
		return nil, errors.New("nsga2: problem has no variables")
	case len(dirs) < 1:
		return nil, errors.New("nsga2: problem has no objectives")
	case cfg.PopulationSize < 2:
		return nil, fmt.Errorf("nsga2: population size must be at least 2, got %d", cfg.PopulationSize)
	case cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1:
		return nil, fmt.Errorf("nsga2: crossover rate %v outside [0,1]", cfg.CrossoverRate)
	case cfg.MutationRate < 0 || cfg.MutationRate > 1:
		return nil, fmt.Errorf("nsga2: mutation rate %v outside [0,1]", cfg.MutationRate)
	case cfg.MinSelected > nvars:
		return nil, fmt.Errorf("nsga2: min selected %d exceeds %d variables", cfg.MinSelected, nvars)
	}

	a := &Algorithm{
		problem:        problem,
		dirs:           append([]Direction(nil), dirs...),
		nvars:          nvars,
		popSize:        cfg.PopulationSize,
		tournamentSize: cfg.TournamentSize,
		crossoverRate:  cfg.CrossoverRate,
		mutationRate:   cfg.MutationRate,
		minSelected:    cfg.MinSelected,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
	}
	if a.tournamentSize < 2 {
		a.tournamentSize = 2
	}
	if a.mutationRate == 0 {
		a.mutationRate = 1 / float64(nvars)
	}
	return a, nil
}

// Step advances the search by one generation.
func (a *Algorithm) Step() error {
	var err error
	if a.population == nil {
		err = a.initialize()
	} else {
		err = a.iterate()
	}
	if err != nil {
		return err
	}
	a.generation++
	return nil
}

// Generation is the number of completed steps.
func (a *Algorithm) Generation() int { return a.generation }

// Evaluations is the number of objective evaluations so far.
func (a *Algorithm) Evaluations() int { return a.evaluations }

// Directions returns the objective directions of the problem.
func (a *Algorithm) Directions() []Direction { return append([]Direction(nil), a.dirs...) }

// Result returns a copy of the current population.
func (a *Algorithm) Result() []*Solution {
	out := make([]*Solution, len(a.population))
	for i, s := range a.population {
		out[i] = s.Clone()
	}
	return out
}

// Snapshot copies the current population together with its generation number.
func (a *Algorithm) Snapshot() Snapshot {
	pop := make([]Solution, len(a.population))
	for i, s := range a.population {
		pop[i] = *s.Clone()
	}
	return Snapshot{Generation: a.generation, Population: pop}
}

func (a *Algorithm) initialize() error {
	pop := make([]*Solution, a.popSize)
	for i := range pop {
		mask := make([]bool, a.nvars)
		for j := range mask {
			mask[j] = a.rng.Intn(2) == 1
		}
		a.repair(mask)
		pop[i] = &Solution{Mask: mask}
	}
	if err := a.evaluate(pop); err != nil {
		return err
	}
	for _, front := range NonDominatedSort(pop, a.dirs) {
		CrowdingDistance(front)
	}
	a.population = pop
	return nil
}

func (a *Algorithm) iterate() error {
	offspring := make([]*Solution, 0, a.popSize+1)
	for len(offspring) < a.popSize {
		p1 := a.tournament()
		p2 := a.tournament()
		c1, c2 := a.crossover(p1.Mask, p2.Mask)
		a.mutate(c1)
		a.mutate(c2)
		a.repair(c1)
		a.repair(c2)
		offspring = append(offspring, &Solution{Mask: c1}, &Solution{Mask: c2})
	}
	offspring = offspring[:a.popSize]
	if err := a.evaluate(offspring); err != nil {
		return err
	}

	combined := make([]*Solution, 0, 2*a.popSize)
	combined = append(combined, a.population...)
	combined = append(combined, offspring...)
	a.population = truncate(combined, a.dirs, a.popSize)
	return nil
}

func (a *Algorithm) evaluate(pop []*Solution) error {
	for _, s := range pop {
		obj, err := a.problem.Evaluate(s.Mask)
		if err != nil {
			return fmt.Errorf("nsga2: evaluate generation %d: %w", a.generation, err)
		}
		if len(obj) != len(a.dirs) {
			return fmt.Errorf("nsga2: problem returned %d objectives, want %d", len(obj), len(a.dirs))
		}
		s.Objectives = obj
		a.evaluations++
	}
	return nil
}

// tournament picks the best of tournamentSize random members by rank, then
// by crowding distance.
func (a *Algorithm) tournament() *Solution {
	best := a.population[a.rng.Intn(len(a.population))]
	for i := 1; i < a.tournamentSize; i++ {
		c := a.population[a.rng.Intn(len(a.population))]
		if c.Rank < best.Rank || (c.Rank == best.Rank && c.Distance > best.Distance) {
			best = c
		}
	}
	return best
}

// crossover is half-uniform crossover: exactly half of the differing bits are
// exchanged between the children.
func (a *Algorithm) crossover(p1, p2 []bool) ([]bool, []bool) {
	c1 := append([]bool(nil), p1...)
	c2 := append([]bool(nil), p2...)
	if a.rng.Float64() >= a.crossoverRate {
		return c1, c2
	}
	var diff []int
	for i := range c1 {
		if c1[i] != c2[i] {
			diff = append(diff, i)
		}
	}
	a.rng.Shuffle(len(diff), func(i, j int) { diff[i], diff[j] = diff[j], diff[i] })
	for _, i := range diff[:len(diff)/2] {
		c1[i], c2[i] = c2[i], c1[i]
	}
	return c1, c2
}

func (a *Algorithm) mutate(mask []bool) {
	for i := range mask {
		if a.rng.Float64() < a.mutationRate {
			mask[i] = !mask[i]
		}
	}
}

func (a *Algorithm) repair(mask []bool) {
	on := 0
	for _, b := range mask {
		if b {
			on++
		}
	}
	for on < a.minSelected {
		i := a.rng.Intn(len(mask))
		if !mask[i] {
			mask[i] = true
			on++
		}
	}
}

// truncate keeps n solutions, whole fronts first, and fills the remainder
// from the next front by descending crowding distance.
func truncate(pop []*Solution, dirs []Direction, n int) []*Solution {
	fronts := NonDominatedSort(pop, dirs)
	out := make([]*Solution, 0, n)
	for _, front := range fronts {
		CrowdingDistance(front)
		if len(out)+len(front) <= n {
			out = append(out, front...)
			continue
		}
		rest := append([]*Solution(nil), front...)
		sort.SliceStable(rest, func(i, j int) bool { return rest[i].Distance > rest[j].Distance })
		out = append(out, rest[:n-len(out)]...)
		break
	}
	return out
}

// Dominates reports whether objective vector a Pareto-dominates b.
func Dominates(a, b []float64, dirs []Direction) bool {
	better := false
	for i := range a {
		av, bv := a[i], b[i]
		if dirs[i] == Maximize {
			av, bv = -av, -bv
		}
		if av > bv {
			return false
		}
		if av < bv {
			better = true
		}
	}
	return better
}

// NonDominatedSort splits pop into fronts and sets each solution's Rank.
// Solutions keep their relative input order inside a front.
func NonDominatedSort(pop []*Solution, dirs []Direction) [][]*Solution {
	n := len(pop)
	if n == 0 {
		return nil
	}
	dominated := make([][]int, n)
	domCount := make([]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case Dominates(pop[i].Objectives, pop[j].Objectives, dirs):
				dominated[i] = append(dominated[i], j)
				domCount[j]++
			case Dominates(pop[j].Objectives, pop[i].Objectives, dirs):
				dominated[j] = append(dominated[j], i)
				domCount[i]++
			}
		}
	}

	var fronts [][]*Solution
	var current []int
	for i := 0; i < n; i++ {
		if domCount[i] == 0 {
			current = append(current, i)
		}
	}
	for rank := 0; len(current) > 0; rank++ {
		front := make([]*Solution, len(current))
		var next []int
		for k, i := range current {
			pop[i].Rank = rank
			front[k] = pop[i]
			for _, j := range dominated[i] {
				domCount[j]--
				if domCount[j] == 0 {
					next = append(next, j)
				}
			}
		}
		sort.Ints(next)
		fronts = append(fronts, front)
		current = next
	}
	return fronts
}

// CrowdingDistance sets Distance on every member of front. Boundary
// solutions of each objective get +Inf. The order of front is not changed.
func CrowdingDistance(front []*Solution) {
	if len(front) == 0 {
		return
	}
	if len(front) <= 2 {
		for _, s := range front {
			s.Distance = math.Inf(1)
		}
		return
	}
	for _, s := range front {
		s.Distance = 0
	}

	order := make([]*Solution, len(front))
	for m := range front[0].Objectives {
		copy(order, front)
		sort.SliceStable(order, func(i, j int) bool {
			return order[i].Objectives[m] < order[j].Objectives[m]
		})
		last := len(order) - 1
		order[0].Distance = math.Inf(1)
		order[last].Distance = math.Inf(1)

		span := order[last].Objectives[m] - order[0].Objectives[m]
		if span == 0 {
			continue
		}
		for i := 1; i < last; i++ {
			order[i].Distance += (order[i+1].Objectives[m] - order[i-1].Objectives[m]) / span
		}
	}
}

// Nondominated returns the members of solutions that no other member
// dominates, in input order.
func Nondominated(solutions []*Solution, dirs []Direction) []*Solution {
	var out []*Solution
	for i, s := range solutions {
		dominated := false
		for j, o := range solutions {
			if i != j && Dominates(o.Objectives, s.Objectives, dirs) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, s)
		}
	}
	return out
}
