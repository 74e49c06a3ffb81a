package evo

// Predicate reports whether organism satisfies the success condition at the
// given generation. EvolveUntil ORs it across the population.
type Predicate[P any] func(generation int, organism P) bool

// AtGeneration is satisfied once the generation counter reaches n.
func AtGeneration[P any](n int) Predicate[P] {
	return func(generation int, _ P) bool {
		return generation >= n
	}
}

// FitnessAbove is satisfied by any organism scoring strictly above target.
func FitnessAbove[P Organism[P]](target Fitness) Predicate[P] {
	return func(_ int, organism P) bool {
		return organism.Evaluate() > target
	}
}

// Any combines predicates with logical OR. Nil entries are ignored.
func Any[P any](predicates ...Predicate[P]) Predicate[P] {
	return func(generation int, organism P) bool {
		for _, predicate := range predicates {
			if predicate != nil && predicate(generation, organism) {
				return true
			}
		}
		return false
	}
}
