package linecraft

import "math/rand"

// inheritProbability is the chance a child cell copies a parent instead of
// rolling a fresh tile.
const inheritProbability = 0.92

// Reproduce combines two maps cell by cell over the shorter length. A base
// facing open ground keeps the base; otherwise the child inherits either
// parent's cell or, rarely, a random tile.
func (m *Map) Reproduce(partner *Map, rng *rand.Rand) *Map {
	n := min(len(m.tiles), len(partner.tiles))
	tiles := make([]Tile, n)
	for i := 0; i < n; i++ {
		a, b := m.tiles[i], partner.tiles[i]
		switch {
		case a.IsBase() && b == Empty:
			tiles[i] = a
		case b.IsBase() && a == Empty:
			tiles[i] = b
		case rng.Float64() < inheritProbability:
			if rng.Intn(2) == 0 {
				tiles[i] = a
			} else {
				tiles[i] = b
			}
		default:
			tiles[i] = RandomTile(rng)
		}
	}
	return &Map{tiles: tiles}
}
