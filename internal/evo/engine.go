package evo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidRates is returned when mu or lambda is below one.
var ErrInvalidRates = errors.New("invalid mu/lambda rates")

// Config parameterizes an Engine.
type Config struct {
	// Mu is the elite rate: how many of the best survivors are cloned and
	// mutated each generation.
	Mu int
	// Lambda is the reproduction rate: how many ranked organisms survive
	// truncation.
	Lambda int
	// Workers bounds parallel fitness evaluation. Values <= 1 evaluate
	// sequentially.
	Workers int
	// Seed initializes the random source when Rand is nil.
	Seed int64
	Rand *rand.Rand
	// Shuffler permutes the population before ranking. Defaults to the
	// engine's random source.
	Shuffler Shuffler
	// Crossover replaces each elite clone with elite.Reproduce(partner) before
	// mutation when the organism type implements Reproducer.
	Crossover bool
	Output    io.Writer
	Logger    *slog.Logger
	Observer  func(GenerationDiagnostics)
}

// Engine runs (mu+lambda) selection over a population of P.
//
// The population size drifts the same way the reference algorithm does: an
// engine built by WithPopulation starts with mu+lambda-1 organisms and holds
// lambda+min(mu, lambda) after every generation.
type Engine[P Organism[P]] struct {
	cfg        Config
	rng        *rand.Rand
	generation int
	population []P
}

// WithPopulation builds an engine whose initial population holds mu+lambda-1
// default organisms produced by newOrganism.
func WithPopulation[P Organism[P]](cfg Config, newOrganism Factory[P]) (*Engine[P], error) {
	if newOrganism == nil {
		return nil, fmt.Errorf("organism factory is required")
	}
	cfg, rng, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	population := make([]P, cfg.Mu+cfg.Lambda-1)
	for i := range population {
		population[i] = newOrganism(rng)
	}
	return &Engine[P]{cfg: cfg, rng: rng, generation: 1, population: population}, nil
}

// FromPopulation builds an engine around an explicit initial population.
func FromPopulation[P Organism[P]](cfg Config, initial []P) (*Engine[P], error) {
	if len(initial) == 0 {
		return nil, fmt.Errorf("initial population is empty")
	}
	cfg, rng, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	population := make([]P, len(initial))
	copy(population, initial)
	return &Engine[P]{cfg: cfg, rng: rng, generation: 1, population: population}, nil
}

func normalizeConfig(cfg Config) (Config, *rand.Rand, error) {
	if cfg.Mu < 1 || cfg.Lambda < 1 {
		return Config{}, nil, fmt.Errorf("%w: mu=%d lambda=%d", ErrInvalidRates, cfg.Mu, cfg.Lambda)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	if cfg.Shuffler == nil {
		cfg.Shuffler = rng
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg, rng, nil
}

func (e *Engine[P]) Generation() int {
	return e.generation
}

func (e *Engine[P]) Size() int {
	return len(e.population)
}

// Population returns a copy of the current population slice.
func (e *Engine[P]) Population() []P {
	out := make([]P, len(e.population))
	copy(out, e.population)
	return out
}

// Step performs one generation transition: shuffle, evaluate, rank, truncate
// to lambda survivors, clone and mutate the mu best survivors, and replace the
// population with survivors followed by the mutated clones.
func (e *Engine[P]) Step() {
	e.generation++

	e.cfg.Shuffler.Shuffle(len(e.population), func(i, j int) {
		e.population[i], e.population[j] = e.population[j], e.population[i]
	})

	scored := evaluatePopulation(e.population, e.cfg.Workers)
	rankDescending(scored)

	survivors := scored[:min(e.cfg.Lambda, len(scored))]
	eliteCount := min(e.cfg.Mu, len(survivors))
	diag := summarizeGeneration(scored, e.generation, len(survivors), eliteCount)

	// Elite scores are carried over unevaluated; the next Step re-scores them.
	offspring := make([]Scored[P], 0, eliteCount)
	for _, elite := range survivors[:eliteCount] {
		child := e.offspring(elite.Organism, survivors)
		child.Mutate(e.rng)
		offspring = append(offspring, Scored[P]{Organism: child, Fitness: elite.Fitness})
	}

	next := make([]P, 0, len(survivors)+len(offspring))
	for _, item := range survivors {
		next = append(next, item.Organism)
	}
	for _, item := range offspring {
		next = append(next, item.Organism)
	}
	e.population = next

	e.cfg.Logger.Debug("generation complete",
		"generation", e.generation,
		"population", len(e.population),
		"best_fitness", diag.BestFitness,
		"invalid_fitness", diag.InvalidFitness,
	)
	if e.cfg.Observer != nil {
		e.cfg.Observer(diag)
	}
}

func (e *Engine[P]) offspring(elite P, survivors []Scored[P]) P {
	if e.cfg.Crossover {
		if reproducer, ok := any(elite).(Reproducer[P]); ok {
			partner := survivors[e.rng.Intn(len(survivors))].Organism
			return reproducer.Reproduce(partner, e.rng)
		}
	}
	return elite.Clone()
}

// EvolveUntil steps until at least one organism of the new population
// satisfies success. There is no internal generation cap; bound the run through
// the predicate or by cancelling ctx.
func (e *Engine[P]) EvolveUntil(ctx context.Context, success Predicate[P], verbose bool) error {
	if success == nil {
		return fmt.Errorf("success predicate is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if verbose {
			e.Print()
		}
		e.Step()

		done := false
		for _, organism := range e.population {
			done = success(e.generation, organism) || done
		}
		if done {
			return nil
		}
	}
}

// Print writes the current generation to the configured output.
func (e *Engine[P]) Print() {
	_ = e.Fprint(e.cfg.Output)
}

// Fprint writes "<generation>: " followed by "[<organism>](<fitness>)  " for
// every organism and a trailing newline.
func (e *Engine[P]) Fprint(w io.Writer) error {
	var b strings.Builder
	b.WriteString(strconv.Itoa(e.generation))
	b.WriteString(": ")
	for _, organism := range e.population {
		b.WriteByte('[')
		b.WriteString(organism.String())
		b.WriteString("](")
		b.WriteString(FormatFitness(organism.Evaluate()))
		b.WriteString(")  ")
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatFitness renders f with the fewest digits that round-trip as float32.
// Infinities print as inf and -inf.
func FormatFitness(f Fitness) string {
	switch {
	case math.IsInf(float64(f), 1):
		return "inf"
	case math.IsInf(float64(f), -1):
		return "-inf"
	}
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}
