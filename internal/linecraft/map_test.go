package linecraft

import (
	"math"
	"math/rand"
	"testing"
)

func mustParse(t *testing.T, s string) *Map {
	t.Helper()
	m, err := Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return m
}

func TestTileFromRollWeights(t *testing.T) {
	counts := map[Tile]int{}
	for roll := 0; roll < tileRolls; roll++ {
		counts[tileFromRoll(roll)]++
	}
	want := map[Tile]int{FriendlyBase: 1, EnemyBase: 1, Empty: 7, Minerals: 5, Gas: 4, Obstacle: 2}
	for tile, n := range want {
		if counts[tile] != n {
			t.Fatalf("tile %s rolls got=%d want=%d", tile, counts[tile], n)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	const layout = "1_*$_2_x_"
	m := mustParse(t, layout)
	if m.Len() != 9 {
		t.Fatalf("length got=%d want=9", m.Len())
	}
	if got := m.String(); got != layout {
		t.Fatalf("round trip got=%q want=%q", got, layout)
	}
	if _, err := Parse("1_?"); err == nil {
		t.Fatal("expected unknown tile error")
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name   string
		layout string
		want   float64
	}{
		// vF = 3.89881, vE = 4.58333, distance 5, four empties.
		{name: "balanced", layout: "1_*$_2_x_", want: 38.27922},
		{name: "no bases", layout: "__*$x____", want: -11},
		{name: "missing enemy", layout: "1_*_", want: -5},
		// A second friendly base raises the penalty to 2^2.
		{name: "extra base", layout: "1_*$_2_x1", want: 17.75910},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := float64(mustParse(t, tc.layout).Evaluate())
			if math.Abs(got-tc.want) > 1e-3 {
				t.Fatalf("evaluate %q got=%v want=%v", tc.layout, got, tc.want)
			}
		})
	}
}

func TestEvaluateWithoutResourcesIsNaN(t *testing.T) {
	if got := mustParse(t, "12").Evaluate(); !math.IsNaN(float64(got)) {
		t.Fatalf("expected NaN for bases without resources, got %v", got)
	}
}

func TestEmptySpaceBanding(t *testing.T) {
	if got := mustParse(t, "1___2****").emptySpaceValue(); got != 2 {
		t.Fatalf("three empties of nine should be rewarded, got %v", got)
	}
	if got := mustParse(t, "1_**2****").emptySpaceValue(); got != 0.25 {
		t.Fatalf("one empty of nine should be penalized, got %v", got)
	}
	if got := mustParse(t, "1______2_").emptySpaceValue(); got != 0.25 {
		t.Fatalf("seven empties of nine should be penalized, got %v", got)
	}
}

func TestBaseDistanceUsesFirstBases(t *testing.T) {
	if got := mustParse(t, "_2__1_2_1").BaseDistance(); got != 3 {
		t.Fatalf("distance got=%d want=3", got)
	}
	if got := mustParse(t, "__1__").BaseDistance(); got != 0 {
		t.Fatalf("distance without enemy got=%d want=0", got)
	}
}

func TestMutateRerollsBoundedCells(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		m := New(rng)
		before := m.Tiles()
		m.Mutate(rng)
		if m.Len() != DefaultLength {
			t.Fatalf("length changed to %d", m.Len())
		}
		changed := 0
		for j, tile := range m.Tiles() {
			if tile != before[j] {
				changed++
			}
		}
		// k is drawn from [2, 4) for nine tiles.
		if changed > 3 {
			t.Fatalf("mutation changed %d cells", changed)
		}
	}
}

func TestMutateShortMap(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	for _, layout := range []string{"1", "12", "1_2", "1_2*"} {
		m := mustParse(t, layout)
		m.Mutate(rng)
		if m.Len() != len(layout) {
			t.Fatalf("mutating %q changed length to %d", layout, m.Len())
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := mustParse(t, "1_*$_2_x_")
	clone := m.Clone()
	clone.Mutate(rand.New(rand.NewSource(1)))
	clone.tiles[0] = Obstacle
	if m.String() != "1_*$_2_x_" {
		t.Fatalf("clone shares tiles with source: %s", m)
	}
}
