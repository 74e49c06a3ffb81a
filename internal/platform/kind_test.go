package platform

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"mulambda/internal/creature"
	"mulambda/internal/evo"
	"mulambda/internal/model"
)

// counter gains one point per mutation, which makes stop generations exact.
type counter struct {
	value float32
}

func (c *counter) Evaluate() evo.Fitness {
	return c.value
}

func (c *counter) Mutate(*rand.Rand) {
	c.value++
}

func (c *counter) Clone() *counter {
	clone := *c
	return &clone
}

func (c *counter) String() string {
	return evo.FormatFitness(c.value)
}

func counterKind() Kind {
	return NewKind("counter", "counts mutations", func(*rand.Rand) *counter { return &counter{} })
}

func TestKindEvolveStopsAtMaxGenerations(t *testing.T) {
	kind := counterKind()
	outcome, err := kind.Evolve(context.Background(), EvolveRequest{
		Engine:         evo.Config{Mu: 2, Lambda: 3, Seed: 1},
		MaxGenerations: 6,
		TopCount:       3,
	})
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if outcome.Generation != 6 || outcome.StopReason != model.StopMaxGenerations {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.BestFitness != 5 || outcome.Best != "5" {
		t.Fatalf("unexpected best: %q %v", outcome.Best, outcome.BestFitness)
	}
	if len(outcome.Top) != 3 || outcome.Top[0].Rank != 1 || outcome.Top[0].Fitness != 5 {
		t.Fatalf("unexpected top organisms: %+v", outcome.Top)
	}
	for i := 1; i < len(outcome.Top); i++ {
		if outcome.Top[i].Fitness > outcome.Top[i-1].Fitness {
			t.Fatalf("top organisms not ranked: %+v", outcome.Top)
		}
	}
}

func TestKindEvolveFitnessTarget(t *testing.T) {
	outcome, err := counterKind().Evolve(context.Background(), EvolveRequest{
		Engine:         evo.Config{Mu: 1, Lambda: 2, Seed: 1},
		MaxGenerations: 100,
		FitnessTarget:  3,
	})
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if outcome.StopReason != model.StopFitnessTarget || outcome.BestFitness != 4 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Generation != 5 {
		t.Fatalf("generation got=%d want=5", outcome.Generation)
	}
}

func TestKindEvolveVerbosePrintsFinalPopulation(t *testing.T) {
	var out bytes.Buffer
	_, err := counterKind().Evolve(context.Background(), EvolveRequest{
		Engine:         evo.Config{Mu: 1, Lambda: 1, Seed: 1, Output: &out},
		MaxGenerations: 3,
		Verbose:        true,
	})
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("output lines got=%d want=3:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[2], "3: ") {
		t.Fatalf("expected final population line, got %q", lines[2])
	}
}

func TestKindEvolveValidation(t *testing.T) {
	kind := counterKind()
	if _, err := kind.Evolve(context.Background(), EvolveRequest{Engine: evo.Config{Mu: 1, Lambda: 1}}); err == nil {
		t.Fatal("expected max generations error")
	}
	_, err := kind.Evolve(context.Background(), EvolveRequest{Engine: evo.Config{Mu: 0, Lambda: 1}, MaxGenerations: 1})
	if !errors.Is(err, evo.ErrInvalidRates) {
		t.Fatalf("expected ErrInvalidRates, got %v", err)
	}
}

func TestKindEvolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := counterKind().Evolve(ctx, EvolveRequest{
		Engine:         evo.Config{Mu: 1, Lambda: 1},
		MaxGenerations: 10,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if outcome.StopReason != model.StopCancelled || outcome.Generation != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestKindEvolveSameSeedIsDeterministic(t *testing.T) {
	kind := NewKind("creature", "stat triple", creature.New)
	run := func() EvolveOutcome {
		outcome, err := kind.Evolve(context.Background(), EvolveRequest{
			Engine:         evo.Config{Mu: 5, Lambda: 5, Seed: 17, Workers: 4},
			MaxGenerations: 30,
			TopCount:       5,
		})
		if err != nil {
			t.Fatalf("evolve: %v", err)
		}
		return outcome
	}
	first, second := run(), run()
	if first.Best != second.Best || first.BestFitness != second.BestFitness {
		t.Fatalf("same seed diverged: %+v vs %+v", first, second)
	}
	for i := range first.Top {
		if first.Top[i] != second.Top[i] {
			t.Fatalf("top organisms diverged at %d: %+v vs %+v", i, first.Top, second.Top)
		}
	}
}
