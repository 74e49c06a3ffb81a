package evo

import (
	"github.com/sourcegraph/conc/pool"
)

// evaluatePopulation pairs a clone of every organism with its fitness. Results
// are stored by index, so the output order matches population order for any
// worker count.
func evaluatePopulation[P Organism[P]](population []P, workers int) []Scored[P] {
	scored := make([]Scored[P], len(population))
	if workers <= 1 || len(population) <= 1 {
		for i, organism := range population {
			scored[i] = Scored[P]{Organism: organism.Clone(), Fitness: organism.Evaluate()}
		}
		return scored
	}

	if workers > len(population) {
		workers = len(population)
	}
	p := pool.New().WithMaxGoroutines(workers)
	for i := range population {
		i := i
		p.Go(func() {
			organism := population[i]
			scored[i] = Scored[P]{Organism: organism.Clone(), Fitness: organism.Evaluate()}
		})
	}
	p.Wait()
	return scored
}
