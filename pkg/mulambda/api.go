// Package mulambda is the client API for running and inspecting (mu+lambda)
// evolution runs.
package mulambda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"mulambda/internal/config"
	"mulambda/internal/creature"
	"mulambda/internal/kindid"
	"mulambda/internal/linecraft"
	"mulambda/internal/model"
	"mulambda/internal/platform"
	"mulambda/internal/stats"
	"mulambda/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "mulambda.db"
	defaultRunsLimit     = 20
	defaultTopCount      = 5
)

// Kind names registered by every client.
const (
	KindCreature  = "creature"
	KindLinecraft = "linecraft"
)

// ErrNoRuns is returned when --latest is requested on an empty run index.
var ErrNoRuns = errors.New("no runs available")

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	// Profiles supplies per-kind run defaults. Nil uses the embedded defaults.
	Profiles map[string]config.ProfileConfig
	Logger   *slog.Logger
}

type Client struct {
	store    storage.Store
	mu       sync.Mutex
	polis    *platform.Polis
	profiles map[string]config.ProfileConfig
	logger   *slog.Logger

	benchmarksDir string
	exportsDir    string
}

// RunRequest describes one run. Zero-valued Mu, Lambda and MaxGenerations
// take the kind's profile; FitnessTarget does too unless NoFitnessTarget is
// set.
type RunRequest struct {
	RunID           string
	Kind            string
	Mu              int
	Lambda          int
	MaxGenerations  int
	FitnessTarget   float64
	NoFitnessTarget bool
	Seed            int64
	Workers         int
	Crossover       bool
	TopCount        int
	Verbose         bool
	// Output receives verbose generation lines.
	Output io.Writer
}

type RunSummary struct {
	RunID            string                    `json:"run_id"`
	Kind             string                    `json:"kind"`
	ArtifactsDir     string                    `json:"artifacts_dir"`
	Generations      int                       `json:"generations"`
	StopReason       string                    `json:"stop_reason"`
	Best             string                    `json:"best"`
	BestFitness      float64                   `json:"best_fitness"`
	BestByGeneration []float64                 `json:"best_by_generation"`
	TopOrganisms     []model.TopOrganismRecord `json:"top_organisms"`
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Kind             string
	Mu               int
	Lambda           int
	Seed             int64
	Generations      int
	StopReason       string
	FinalBestFitness float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopOrganismsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type RunDetailRequest struct {
	RunID  string
	Latest bool
}

// RunDetail is one run's configuration, outcome and fitness summary.
type RunDetail struct {
	Config      stats.RunConfig  `json:"config"`
	Generations int              `json:"generations"`
	StopReason  string           `json:"stop_reason"`
	Best        string           `json:"best,omitempty"`
	BestFitness float64          `json:"best_fitness"`
	Summary     stats.RunSummary `json:"summary"`
}

type KindItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// HasBest is false until a run of the kind records a finite best.
	HasBest     bool    `json:"has_best"`
	Best        string  `json:"best,omitempty"`
	BestFitness float64 `json:"best_fitness"`
	BestRunID   string  `json:"best_run_id,omitempty"`
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	profiles := opts.Profiles
	if profiles == nil {
		defaults, err := config.Default()
		if err != nil {
			return nil, err
		}
		profiles = defaults.Profiles
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		profiles:      profiles,
		logger:        logger,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Reset drops every run held by the store. Artifacts on disk are kept.
func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.Reset(ctx)
}

// Run evolves req.Kind, persists the result to the store and writes the run's
// artifacts. The summary is returned together with the error when the run is
// cancelled after it started.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req.Kind = kindid.Normalize(req.Kind)
	if req.Kind == "" {
		req.Kind = KindCreature
	}
	profile, ok := c.profiles[req.Kind]
	if ok {
		if req.Mu == 0 {
			req.Mu = profile.Mu
		}
		if req.Lambda == 0 {
			req.Lambda = profile.Lambda
		}
		if req.MaxGenerations == 0 {
			req.MaxGenerations = profile.MaxGenerations
		}
		if req.FitnessTarget == 0 && !req.NoFitnessTarget {
			req.FitnessTarget = profile.FitnessTarget
		}
	}
	if req.NoFitnessTarget {
		req.FitnessTarget = 0
	}
	if req.Mu < 1 || req.Lambda < 1 {
		return RunSummary{}, fmt.Errorf("mu and lambda must be >= 1, got mu=%d lambda=%d", req.Mu, req.Lambda)
	}
	if req.MaxGenerations <= 0 {
		return RunSummary{}, errors.New("max generations must be > 0")
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}
	if req.TopCount <= 0 {
		req.TopCount = defaultTopCount
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	result, runErr := p.RunEvolution(ctx, platform.EvolutionConfig{
		RunID:          req.RunID,
		Kind:           req.Kind,
		Mu:             req.Mu,
		Lambda:         req.Lambda,
		Workers:        req.Workers,
		Seed:           req.Seed,
		Crossover:      req.Crossover,
		MaxGenerations: req.MaxGenerations,
		FitnessTarget:  req.FitnessTarget,
		TopCount:       req.TopCount,
		Verbose:        req.Verbose,
		Output:         req.Output,
	})
	if runErr != nil && result.Run.ID == "" {
		return RunSummary{}, runErr
	}

	run := result.Run
	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          run.ID,
			Kind:           run.Kind,
			Mu:             run.Mu,
			Lambda:         run.Lambda,
			Workers:        run.Workers,
			Seed:           run.Seed,
			Crossover:      run.Crossover,
			MaxGenerations: run.MaxGenerations,
			FitnessTarget:  run.FitnessTarget,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      run.BestFitness,
		TopOrganisms:          result.TopFinal,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:            run.ID,
		Kind:             run.Kind,
		Mu:               run.Mu,
		Lambda:           run.Lambda,
		Generations:      run.Generations,
		Seed:             run.Seed,
		Workers:          run.Workers,
		StopReason:       run.StopReason,
		FinalBestFitness: run.BestFitness,
		CreatedAtUTC:     run.FinishedAt.UTC().Format(stats.CreatedAtLayout),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            run.ID,
		Kind:             run.Kind,
		ArtifactsDir:     filepath.Clean(runDir),
		Generations:      run.Generations,
		StopReason:       run.StopReason,
		Best:             run.Best,
		BestFitness:      run.BestFitness,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		TopOrganisms:     append([]model.TopOrganismRecord(nil), result.TopFinal...),
	}, runErr
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Kind:             e.Kind,
			Mu:               e.Mu,
			Lambda:           e.Lambda,
			Seed:             e.Seed,
			Generations:      e.Generations,
			StopReason:       e.StopReason,
			FinalBestFitness: e.FinalBestFitness,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// FitnessHistory returns the best fitness per generation step, from the store
// when it holds the run and from the run's artifacts otherwise.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if err := validateLookup(req.RunID, req.Latest, req.Limit); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}

	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessHistory(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if err := validateLookup(req.RunID, req.Latest, req.Limit); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}

	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) TopOrganisms(ctx context.Context, req TopOrganismsRequest) ([]model.TopOrganismRecord, error) {
	if err := validateLookup(req.RunID, req.Latest, req.Limit); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "top organisms")
	if err != nil {
		return nil, err
	}

	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	top, ok, err := c.store.GetTopOrganisms(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		top, ok, err = stats.ReadTopOrganisms(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("top organisms not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	out := make([]model.TopOrganismRecord, len(top))
	copy(out, top)
	return out, nil
}

// Kinds lists the registered organism kinds with their best recorded
// organism, if any.
func (c *Client) Kinds(ctx context.Context) ([]KindItem, error) {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return nil, err
	}

	names := p.RegisteredKinds()
	out := make([]KindItem, 0, len(names))
	for _, name := range names {
		kind, ok := p.GetKind(name)
		if !ok {
			continue
		}
		item := KindItem{Name: name, Description: kind.Description()}
		summary, ok, err := c.store.GetKindSummary(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok && summary.RunID != "" {
			item.HasBest = true
			item.Best = summary.Best
			item.BestFitness = summary.BestFitness
			item.BestRunID = summary.RunID
		}
		out = append(out, item)
	}
	return out, nil
}

// RunDetail describes a run from the store when it holds the run and from
// the run's artifacts otherwise.
func (c *Client) RunDetail(ctx context.Context, req RunDetailRequest) (RunDetail, error) {
	if err := validateLookup(req.RunID, req.Latest, 0); err != nil {
		return RunDetail{}, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "run detail")
	if err != nil {
		return RunDetail{}, err
	}

	if _, err := c.ensurePolis(ctx); err != nil {
		return RunDetail{}, err
	}
	var detail RunDetail
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if ok {
		detail = RunDetail{
			Config: stats.RunConfig{
				RunID:          run.ID,
				Kind:           run.Kind,
				Mu:             run.Mu,
				Lambda:         run.Lambda,
				Workers:        run.Workers,
				Seed:           run.Seed,
				Crossover:      run.Crossover,
				MaxGenerations: run.MaxGenerations,
				FitnessTarget:  run.FitnessTarget,
			},
			Generations: run.Generations,
			StopReason:  run.StopReason,
			Best:        run.Best,
			BestFitness: run.BestFitness,
		}
	} else {
		cfg, found, err := stats.ReadRunConfig(c.benchmarksDir, runID)
		if err != nil {
			return RunDetail{}, err
		}
		if !found {
			return RunDetail{}, fmt.Errorf("run not found: %s", runID)
		}
		detail.Config = cfg
		entries, err := stats.ListRunIndex(c.benchmarksDir)
		if err != nil {
			return RunDetail{}, err
		}
		for _, e := range entries {
			if e.RunID == runID {
				detail.Generations = e.Generations
				detail.StopReason = e.StopReason
				detail.BestFitness = e.FinalBestFitness
				break
			}
		}
	}

	summary, found, err := stats.ReadRunSummary(c.benchmarksDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !found {
		history, _, err := c.store.GetFitnessHistory(ctx, runID)
		if err != nil {
			return RunDetail{}, err
		}
		summary = stats.Summarize(runID, history)
	}
	detail.Summary = summary
	return detail, nil
}

// StopRun cancels an active run started by this client.
func (c *Client) StopRun(runID string) error {
	c.mu.Lock()
	p := c.polis
	c.mu.Unlock()
	if p == nil {
		return fmt.Errorf("run not active: %s", runID)
	}
	return p.StopRun(runID)
}

// ActiveRuns lists the ids of runs in progress on this client.
func (c *Client) ActiveRuns() []string {
	c.mu.Lock()
	p := c.polis
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.ActiveRuns()
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{
		Store:  c.store,
		Kinds:  defaultKinds(),
		Logger: c.logger,
	})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if latest {
		entries, err := stats.ListRunIndex(c.benchmarksDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", ErrNoRuns
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", fmt.Errorf("%s requires run id or latest", what)
	}
	return runID, nil
}

func validateLookup(runID string, latest bool, limit int) error {
	if runID != "" && latest {
		return errors.New("use either run id or latest")
	}
	if limit < 0 {
		return errors.New("limit must be >= 0")
	}
	return nil
}

func defaultKinds() []platform.Kind {
	return []platform.Kind{
		platform.NewKind(KindCreature, "power/toughness/speed stat triple", creature.New),
		platform.NewKind(KindLinecraft, "one-dimensional base and resource map", linecraft.New),
	}
}
