package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mulambda/internal/evo"
	"mulambda/internal/model"
	"mulambda/internal/storage"
)

const defaultTopCount = 5

type Config struct {
	Store  storage.Store
	Kinds  []Kind
	Logger *slog.Logger
	// Now stamps run records. Defaults to time.Now.
	Now func() time.Time
}

type EvolutionConfig struct {
	RunID          string
	Kind           string
	Mu             int
	Lambda         int
	Workers        int
	Seed           int64
	Crossover      bool
	MaxGenerations int
	FitnessTarget  float64
	TopCount       int
	Verbose        bool
	// Output receives verbose generation lines. Defaults to stdout.
	Output io.Writer
}

type EvolutionResult struct {
	Run                   model.RunRecord
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	TopFinal              []model.TopOrganismRecord
}

// Polis owns the kind registry and persists every run it executes.
type Polis struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	kinds   map[string]Kind
	started bool
	runs    map[string]context.CancelFunc

	config Config
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Polis{
		store:  cfg.Store,
		logger: logger,
		now:    now,
		kinds:  make(map[string]Kind),
		runs:   make(map[string]context.CancelFunc),
		config: cfg,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	kinds := make(map[string]Kind, len(p.config.Kinds))
	for i, kind := range p.config.Kinds {
		if kind == nil {
			return fmt.Errorf("kind is nil at index %d", i)
		}
		name := kind.Name()
		if name == "" {
			return fmt.Errorf("kind name is required at index %d", i)
		}
		if _, exists := kinds[name]; exists {
			return fmt.Errorf("duplicate kind: %s", name)
		}
		kinds[name] = kind
	}

	p.kinds = kinds
	p.started = true
	return nil
}

// Reset stops active runs, drops persisted records when the store supports it
// and initializes again.
func (p *Polis) Reset(ctx context.Context) error {
	p.Stop()
	if resetter, ok := p.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return p.Init(ctx)
}

func (p *Polis) RegisterKind(kind Kind) error {
	if kind == nil {
		return fmt.Errorf("kind is nil")
	}

	name := kind.Name()
	if name == "" {
		return fmt.Errorf("kind name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	p.kinds[name] = kind
	return nil
}

func (p *Polis) GetKind(name string) (Kind, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	kind, ok := p.kinds[name]
	return kind, ok
}

func (p *Polis) RegisteredKinds() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.kinds))
	for name := range p.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels every active run and marks the polis uninitialized.
func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cancel := range p.runs {
		cancel()
	}
	p.started = false
	p.kinds = make(map[string]Kind)
	p.runs = make(map[string]context.CancelFunc)
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// RunEvolution evolves the named kind and persists the run record, fitness
// history, diagnostics, top organisms and kind summary. A cancelled run is
// persisted with StopCancelled before its context error is returned.
func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if cfg.Kind == "" {
		return EvolutionResult{}, fmt.Errorf("kind name is required")
	}
	if cfg.MaxGenerations <= 0 {
		return EvolutionResult{}, fmt.Errorf("max generations must be > 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TopCount <= 0 {
		cfg.TopCount = defaultTopCount
	}

	p.mu.RLock()
	kind, ok := p.kinds[cfg.Kind]
	started := p.started
	p.mu.RUnlock()

	if !started {
		return EvolutionResult{}, fmt.Errorf("polis is not initialized")
	}
	if !ok {
		return EvolutionResult{}, fmt.Errorf("kind not registered: %s", cfg.Kind)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("evo:%s:%d", cfg.Kind, cfg.Seed)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.registerRun(runID, cancel); err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRun(runID)

	logger := p.logger.With("run_id", runID, "kind", cfg.Kind)
	startedAt := p.now().UTC()
	logger.Info("run started", "mu", cfg.Mu, "lambda", cfg.Lambda, "seed", cfg.Seed, "workers", cfg.Workers)

	var diagnostics []model.GenerationDiagnostics
	outcome, runErr := kind.Evolve(runCtx, EvolveRequest{
		Engine: evo.Config{
			Mu:        cfg.Mu,
			Lambda:    cfg.Lambda,
			Workers:   cfg.Workers,
			Seed:      cfg.Seed,
			Crossover: cfg.Crossover,
			Output:    cfg.Output,
			Logger:    logger,
			Observer: func(diag evo.GenerationDiagnostics) {
				diagnostics = append(diagnostics, toModelDiagnostics(diag))
			},
		},
		MaxGenerations: cfg.MaxGenerations,
		FitnessTarget:  cfg.FitnessTarget,
		Verbose:        cfg.Verbose,
		TopCount:       cfg.TopCount,
	})
	if runErr != nil && outcome.StopReason != model.StopCancelled {
		return EvolutionResult{}, runErr
	}

	history := make([]float64, len(diagnostics))
	for i, diag := range diagnostics {
		history[i] = diag.BestFitness
	}

	record := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		Kind:            cfg.Kind,
		Mu:              cfg.Mu,
		Lambda:          cfg.Lambda,
		Workers:         cfg.Workers,
		Seed:            cfg.Seed,
		Crossover:       cfg.Crossover,
		MaxGenerations:  cfg.MaxGenerations,
		FitnessTarget:   cfg.FitnessTarget,
		Generations:     outcome.Generation,
		BestFitness:     finiteOrZero(outcome.BestFitness),
		Best:            outcome.Best,
		StopReason:      outcome.StopReason,
		StartedAt:       startedAt,
		FinishedAt:      p.now().UTC(),
	}

	// A cancelled run is still recorded.
	ctx = context.WithoutCancel(ctx)
	if err := p.store.SaveRun(ctx, record); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.store.SaveFitnessHistory(ctx, runID, history); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, runID, diagnostics); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.store.SaveTopOrganisms(ctx, runID, outcome.Top); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.updateKindSummary(ctx, kind, record, outcome.BestFitness); err != nil {
		return EvolutionResult{}, err
	}

	logger.Info("run finished",
		"generations", record.Generations,
		"stop_reason", record.StopReason,
		"best_fitness", record.BestFitness,
		"best", record.Best,
	)

	result := EvolutionResult{
		Run:                   record,
		BestByGeneration:      history,
		GenerationDiagnostics: diagnostics,
		TopFinal:              outcome.Top,
	}
	if runErr != nil {
		return result, fmt.Errorf("run %s cancelled: %w", runID, runErr)
	}
	return result, nil
}

// StopRun cancels an active run. The run is still persisted.
func (p *Polis) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	cancel, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	cancel()
	return nil
}

// ActiveRuns lists the ids of runs in progress.
func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) registerRun(runID string, cancel context.CancelFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = cancel
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

// updateKindSummary records the kind on its first run and replaces the best
// organism whenever a run beats it with a finite score.
func (p *Polis) updateKindSummary(ctx context.Context, kind Kind, run model.RunRecord, best evo.Fitness) error {
	summary, ok, err := p.store.GetKindSummary(ctx, kind.Name())
	if err != nil {
		return err
	}
	improved := run.Best != "" && evo.IsFinite(best) && (!ok || summary.RunID == "" || float64(best) > summary.BestFitness)
	if ok && !improved {
		return nil
	}
	if !ok {
		summary = model.KindSummary{
			VersionedRecord: storage.Versioned(),
			Kind:            kind.Name(),
			Description:     kind.Description(),
		}
	}
	if improved {
		summary.BestFitness = float64(best)
		summary.Best = run.Best
		summary.RunID = run.ID
	}
	return p.store.SaveKindSummary(ctx, summary)
}

func toModelDiagnostics(diag evo.GenerationDiagnostics) model.GenerationDiagnostics {
	return model.GenerationDiagnostics{
		Generation:     diag.Generation,
		PopulationSize: diag.PopulationSize,
		Survivors:      diag.Survivors,
		Elites:         diag.Elites,
		BestFitness:    diag.BestFitness,
		MeanFitness:    diag.MeanFitness,
		MinFitness:     diag.MinFitness,
		StdDevFitness:  diag.StdDevFitness,
		InvalidFitness: diag.InvalidFitness,
		Best:           diag.Best,
	}
}

func finiteOrZero(f evo.Fitness) float64 {
	if !evo.IsFinite(f) {
		return 0
	}
	return float64(f)
}
