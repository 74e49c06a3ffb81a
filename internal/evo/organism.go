package evo

import "math/rand"

// Fitness is the scalar score of an organism. Higher is better.
type Fitness = float32

// Organism is the capability set the engine needs from a candidate solution.
// P is the concrete organism type itself, usually a pointer, so that Clone
// can return a value of the same type.
type Organism[P any] interface {
	Evaluate() Fitness
	Mutate(rng *rand.Rand)
	Clone() P
	String() string
}

// Factory builds a randomized default organism.
type Factory[P any] func(rng *rand.Rand) P

// Reproducer is implemented by organisms that can be combined with a partner.
// The engine only calls it when crossover is enabled.
type Reproducer[P any] interface {
	Reproduce(partner P, rng *rand.Rand) P
}

// Shuffler permutes n elements through swap. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Scored pairs an organism with the fitness it had when it was ranked.
type Scored[P any] struct {
	Organism P
	Fitness  Fitness
}
