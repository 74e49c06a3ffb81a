package platform

import (
	"context"
	"errors"
	"fmt"
	"math"

	"mulambda/internal/evo"
	"mulambda/internal/model"
)

// Kind is an organism family the polis can evolve. It hides the concrete
// organism type behind the generic engine.
type Kind interface {
	Name() string
	Description() string
	Evolve(ctx context.Context, req EvolveRequest) (EvolveOutcome, error)
}

// EvolveRequest configures one run of a Kind.
type EvolveRequest struct {
	Engine evo.Config
	// MaxGenerations stops the run once the generation counter reaches it.
	MaxGenerations int
	// FitnessTarget stops the run once any organism scores strictly above it.
	// Zero disables the target.
	FitnessTarget float64
	Verbose       bool
	TopCount      int
}

// EvolveOutcome is the type-erased result of a run.
type EvolveOutcome struct {
	Generation int
	StopReason string
	// Best is empty and BestFitness NaN when the final population is empty.
	Best        string
	BestFitness evo.Fitness
	Top         []model.TopOrganismRecord
}

type organismKind[P evo.Organism[P]] struct {
	name        string
	description string
	factory     evo.Factory[P]
}

// NewKind adapts an organism factory to the Kind interface.
func NewKind[P evo.Organism[P]](name, description string, factory evo.Factory[P]) Kind {
	return &organismKind[P]{name: name, description: description, factory: factory}
}

func (k *organismKind[P]) Name() string {
	return k.name
}

func (k *organismKind[P]) Description() string {
	return k.description
}

func (k *organismKind[P]) Evolve(ctx context.Context, req EvolveRequest) (EvolveOutcome, error) {
	if req.MaxGenerations <= 0 {
		return EvolveOutcome{}, fmt.Errorf("max generations must be > 0")
	}
	engine, err := evo.WithPopulation(req.Engine, k.factory)
	if err != nil {
		return EvolveOutcome{}, fmt.Errorf("%s: %w", k.name, err)
	}

	success := evo.AtGeneration[P](req.MaxGenerations)
	var target evo.Predicate[P]
	if req.FitnessTarget != 0 {
		target = evo.FitnessAbove[P](evo.Fitness(req.FitnessTarget))
		success = evo.Any(success, target)
	}

	runErr := engine.EvolveUntil(ctx, success, req.Verbose)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return EvolveOutcome{}, fmt.Errorf("%s: %w", k.name, runErr)
	}
	if req.Verbose {
		engine.Print()
	}

	population := engine.Population()
	outcome := EvolveOutcome{
		Generation:  engine.Generation(),
		StopReason:  model.StopMaxGenerations,
		BestFitness: evo.Fitness(math.NaN()),
		Top:         topOrganisms(population, req.TopCount),
	}
	if best, fitness, ok := evo.Best(population); ok {
		outcome.Best = best.String()
		outcome.BestFitness = fitness
	}
	switch {
	case runErr != nil:
		outcome.StopReason = model.StopCancelled
	case target != nil && outcome.Best != "" && outcome.BestFitness > evo.Fitness(req.FitnessTarget):
		outcome.StopReason = model.StopFitnessTarget
	}
	return outcome, runErr
}

// topOrganisms ranks population and keeps up to count finitely scored
// entries.
func topOrganisms[P evo.Organism[P]](population []P, count int) []model.TopOrganismRecord {
	top := make([]model.TopOrganismRecord, 0, max(count, 0))
	for _, item := range evo.Rank(population) {
		if len(top) >= count {
			break
		}
		if !evo.IsFinite(item.Fitness) {
			continue
		}
		top = append(top, model.TopOrganismRecord{
			Rank:     len(top) + 1,
			Fitness:  float64(item.Fitness),
			Organism: item.Organism.String(),
		})
	}
	return top
}
