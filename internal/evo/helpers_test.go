package evo

import (
	"fmt"
	"math/rand"
)

type stubOrganism struct {
	id        string
	value     float32
	delta     float32
	jitter    bool
	mutations int
}

func (s *stubOrganism) Evaluate() Fitness {
	return s.value
}

func (s *stubOrganism) Mutate(rng *rand.Rand) {
	s.value += s.delta
	if s.jitter {
		s.value += float32(rng.Intn(5) - 2)
	}
	s.mutations++
}

func (s *stubOrganism) Clone() *stubOrganism {
	clone := *s
	return &clone
}

func (s *stubOrganism) String() string {
	if s.id != "" {
		return s.id
	}
	return FormatFitness(s.value)
}

type breedingStub struct {
	value   float32
	crossed bool
}

func (b *breedingStub) Evaluate() Fitness { return b.value }

func (b *breedingStub) Mutate(_ *rand.Rand) {}

func (b *breedingStub) Clone() *breedingStub {
	clone := *b
	return &clone
}

func (b *breedingStub) String() string { return fmt.Sprintf("b%.1f", b.value) }

func (b *breedingStub) Reproduce(partner *breedingStub, _ *rand.Rand) *breedingStub {
	return &breedingStub{value: (b.value + partner.value) / 2, crossed: true}
}

type noShuffle struct{}

func (noShuffle) Shuffle(int, func(i, j int)) {}

func stubPopulation(delta float32, values ...float32) []*stubOrganism {
	out := make([]*stubOrganism, len(values))
	for i, v := range values {
		out[i] = &stubOrganism{value: v, delta: delta}
	}
	return out
}

func populationValues[P Organism[P]](population []P) []float32 {
	out := make([]float32, len(population))
	for i, organism := range population {
		out[i] = organism.Evaluate()
	}
	return out
}
