package evo

import (
	"math"
	"sort"
)

// rankDescending orders scored best first without changing the relative order
// of equal scores. A NaN score compares equal to everything, so its pair keeps
// the slot it had before ranking and the comparable pairs are ordered around it.
func rankDescending[P any](scored []Scored[P]) {
	slots := make([]int, 0, len(scored))
	for i := range scored {
		if !isNaN(scored[i].Fitness) {
			slots = append(slots, i)
		}
	}

	if len(slots) == len(scored) {
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Fitness > scored[j].Fitness
		})
		return
	}

	ordered := make([]Scored[P], len(slots))
	for k, idx := range slots {
		ordered[k] = scored[idx]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Fitness > ordered[j].Fitness
	})
	for k, idx := range slots {
		scored[idx] = ordered[k]
	}
}

// Rank scores population and orders it the same way Step does.
func Rank[P Organism[P]](population []P) []Scored[P] {
	scored := make([]Scored[P], len(population))
	for i, organism := range population {
		scored[i] = Scored[P]{Organism: organism, Fitness: organism.Evaluate()}
	}
	rankDescending(scored)
	return scored
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f Fitness) bool {
	return isFinite(f)
}

func isNaN(f Fitness) bool {
	return f != f
}

func isFinite(f Fitness) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Best returns the highest scoring organism of population. NaN scores never
// win. ok is false when the population is empty.
func Best[P Organism[P]](population []P) (best P, fitness Fitness, ok bool) {
	for _, organism := range population {
		score := organism.Evaluate()
		if !ok {
			best, fitness, ok = organism, score, true
			continue
		}
		if isNaN(fitness) || (!isNaN(score) && score > fitness) {
			best, fitness = organism, score
		}
	}
	return best, fitness, ok
}
