package linecraft

import (
	"fmt"
	"math/rand"
)

// Tile is a single cell of a map.
type Tile uint8

const (
	FriendlyBase Tile = iota
	EnemyBase
	Empty
	Minerals
	Gas
	Obstacle
)

// tileRolls is the number of equally likely outcomes RandomTile draws from.
const tileRolls = 20

// RandomTile draws a tile with weights 1:1:7:5:4:2 for
// friendly base, enemy base, empty, minerals, gas and obstacle.
func RandomTile(rng *rand.Rand) Tile {
	return tileFromRoll(rng.Intn(tileRolls))
}

func tileFromRoll(roll int) Tile {
	switch {
	case roll == 0:
		return FriendlyBase
	case roll == 1:
		return EnemyBase
	case roll <= 8:
		return Empty
	case roll <= 13:
		return Minerals
	case roll <= 17:
		return Gas
	default:
		return Obstacle
	}
}

// ResourceValue is the tile's contribution to a map's resource total.
func (t Tile) ResourceValue() float32 {
	switch t {
	case Empty:
		return 1
	case Minerals, Gas:
		return 3
	case Obstacle:
		return -1
	default:
		return 0
	}
}

// IsBase reports whether t is either player's base.
func (t Tile) IsBase() bool {
	return t == FriendlyBase || t == EnemyBase
}

func (t Tile) String() string {
	switch t {
	case FriendlyBase:
		return "1"
	case EnemyBase:
		return "2"
	case Empty:
		return "_"
	case Minerals:
		return "*"
	case Gas:
		return "$"
	case Obstacle:
		return "x"
	default:
		return "?"
	}
}

// ParseTile is the inverse of Tile.String.
func ParseTile(r rune) (Tile, error) {
	switch r {
	case '1':
		return FriendlyBase, nil
	case '2':
		return EnemyBase, nil
	case '_':
		return Empty, nil
	case '*':
		return Minerals, nil
	case '$':
		return Gas, nil
	case 'x':
		return Obstacle, nil
	default:
		return 0, fmt.Errorf("unknown tile %q", r)
	}
}
