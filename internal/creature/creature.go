// Package creature implements a three-gene stat organism: power, toughness and
// speed.
package creature

import (
	"fmt"
	"math"
	"math/rand"

	"mulambda/internal/evo"
)

const (
	minInitialGene = 1
	maxInitialGene = 9

	minMutationDelta = -2
	maxMutationDelta = 1
)

// Creature is a stat triple. Genes saturate at the int8 bounds.
type Creature struct {
	Power     int8 `json:"power"`
	Toughness int8 `json:"toughness"`
	Speed     int8 `json:"speed"`
}

// New returns a creature with every gene drawn uniformly from [1, 9].
func New(rng *rand.Rand) *Creature {
	return &Creature{
		Power:     randomGene(rng),
		Toughness: randomGene(rng),
		Speed:     randomGene(rng),
	}
}

func (c *Creature) Evaluate() evo.Fitness {
	return evo.Fitness(c.Power)*evo.Fitness(c.Toughness) + evo.Fitness(c.Speed)*evo.Fitness(c.Toughness)
}

// Mutate nudges each gene by an independent delta in [-2, 1].
func (c *Creature) Mutate(rng *rand.Rand) {
	c.Power = nudge(c.Power, rng)
	c.Toughness = nudge(c.Toughness, rng)
	c.Speed = nudge(c.Speed, rng)
}

func (c *Creature) Clone() *Creature {
	clone := *c
	return &clone
}

func (c *Creature) String() string {
	return fmt.Sprintf("P:%d T:%d S:%d", c.Power, c.Toughness, c.Speed)
}

func randomGene(rng *rand.Rand) int8 {
	return int8(minInitialGene + rng.Intn(maxInitialGene-minInitialGene+1))
}

func nudge(gene int8, rng *rand.Rand) int8 {
	delta := minMutationDelta + rng.Intn(maxMutationDelta-minMutationDelta+1)
	v := int(gene) + delta
	switch {
	case v > math.MaxInt8:
		return math.MaxInt8
	case v < math.MinInt8:
		return math.MinInt8
	}
	return int8(v)
}
