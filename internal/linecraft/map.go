// Package linecraft implements a one-dimensional strategy map organism. A map
// scores well when both bases exist once, sit apart, have a balanced share of
// nearby resources and leave a moderate amount of open ground.
package linecraft

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"mulambda/internal/evo"
)

// DefaultLength is the number of tiles New generates.
const DefaultLength = 9

// Map is an ordered row of tiles.
type Map struct {
	tiles []Tile
}

// New returns a map of DefaultLength random tiles.
func New(rng *rand.Rand) *Map {
	tiles := make([]Tile, DefaultLength)
	for i := range tiles {
		tiles[i] = RandomTile(rng)
	}
	return &Map{tiles: tiles}
}

// FromTiles wraps a copy of tiles.
func FromTiles(tiles []Tile) *Map {
	return &Map{tiles: append([]Tile(nil), tiles...)}
}

// Parse reads a map from its display form, e.g. "1_*$_2_x_".
func Parse(s string) (*Map, error) {
	tiles := make([]Tile, 0, len(s))
	for i, r := range s {
		tile, err := ParseTile(r)
		if err != nil {
			return nil, fmt.Errorf("parse map at %d: %w", i, err)
		}
		tiles = append(tiles, tile)
	}
	return &Map{tiles: tiles}, nil
}

func (m *Map) Len() int {
	return len(m.tiles)
}

// Tiles returns a copy of the map's cells.
func (m *Map) Tiles() []Tile {
	return append([]Tile(nil), m.tiles...)
}

func (m *Map) count(tile Tile) int {
	n := 0
	for _, t := range m.tiles {
		if t == tile {
			n++
		}
	}
	return n
}

func (m *Map) first(tile Tile) (int, bool) {
	for i, t := range m.tiles {
		if t == tile {
			return i, true
		}
	}
	return 0, false
}

// ResourceTotal sums the resource value of every tile.
func (m *Map) ResourceTotal() float32 {
	var total float32
	for _, t := range m.tiles {
		total += t.ResourceValue()
	}
	return total
}

// BaseDistance is the distance between the first friendly and the first enemy
// base. It is zero unless both exist.
func (m *Map) BaseDistance() int {
	friendly, okF := m.first(FriendlyBase)
	enemy, okE := m.first(EnemyBase)
	if !okF || !okE {
		return 0
	}
	if friendly > enemy {
		return friendly - enemy
	}
	return enemy - friendly
}

// ValueAroundBase weighs every other tile's resources by the inverse of its
// distance to the first base of the given kind.
func (m *Map) ValueAroundBase(base Tile) float32 {
	at, ok := m.first(base)
	if !ok {
		return 0
	}
	var value float32
	for i, t := range m.tiles {
		if i == at {
			continue
		}
		dist := i - at
		if dist < 0 {
			dist = -dist
		}
		value += t.ResourceValue() / float32(dist)
	}
	return value
}

func (m *Map) emptySpaceValue() float32 {
	empty := m.count(Empty)
	if empty > len(m.tiles)/4 && empty < len(m.tiles)*3/4 {
		return 2
	}
	return 0.25
}

// Evaluate scores the map. Without both bases the score is the negated
// resource total. Every extra base halves the score exponentially. A map whose
// bases see no resources at all scores NaN.
func (m *Map) Evaluate() evo.Fitness {
	resources := m.ResourceTotal()
	baseFactor := m.count(FriendlyBase) * m.count(EnemyBase)
	if baseFactor == 0 {
		return -resources
	}

	friendly := m.ValueAroundBase(FriendlyBase)
	enemy := m.ValueAroundBase(EnemyBase)
	fairness := min(friendly, enemy) / max(friendly, enemy)
	distance := float32(m.BaseDistance())
	penalty := float32(math.Pow(2, float64(baseFactor)))

	return fairness * distance * m.emptySpaceValue() * resources / penalty
}

// Mutate re-rolls k distinct cells, with k drawn from [2, len/2). Maps too
// short for that range re-roll min(2, len) cells.
func (m *Map) Mutate(rng *rand.Rand) {
	n := len(m.tiles)
	k := min(2, n)
	if upper := n / 2; upper > 2 {
		k = 2 + rng.Intn(upper-2)
	}
	for _, i := range rng.Perm(n)[:k] {
		m.tiles[i] = RandomTile(rng)
	}
}

func (m *Map) Clone() *Map {
	return FromTiles(m.tiles)
}

func (m *Map) String() string {
	var b strings.Builder
	b.Grow(len(m.tiles))
	for _, t := range m.tiles {
		b.WriteString(t.String())
	}
	return b.String()
}
