package platform

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"mulambda/internal/model"
	"mulambda/internal/storage"
)

func newTestPolis(t *testing.T, kinds ...Kind) (*Polis, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewPolis(Config{
		Store: store,
		Kinds: kinds,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return p, store
}

func TestPolisInitAndRegisterKind(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	if err := p.RegisterKind(counterKind()); err == nil {
		t.Fatal("expected register kind to fail before init")
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("second init should be idempotent: %v", err)
	}
	if !p.Started() {
		t.Fatal("polis should be started after init")
	}
	if err := p.RegisterKind(counterKind()); err != nil {
		t.Fatalf("register kind failed: %v", err)
	}
	if _, ok := p.GetKind("counter"); !ok {
		t.Fatal("expected get kind to resolve registered kind")
	}
	if err := p.RegisterKind(nil); err == nil {
		t.Fatal("expected nil kind error")
	}
}

func TestPolisInitRejectsInvalidKinds(t *testing.T) {
	cases := []struct {
		name  string
		kinds []Kind
	}{
		{name: "nil", kinds: []Kind{nil}},
		{name: "unnamed", kinds: []Kind{NewKind[*counter]("", "", nil)}},
		{name: "duplicate", kinds: []Kind{counterKind(), counterKind()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPolis(Config{Store: storage.NewMemoryStore(), Kinds: tc.kinds})
			if err := p.Init(context.Background()); err == nil {
				t.Fatal("expected init error")
			}
			if p.Started() {
				t.Fatal("polis should not start with invalid kinds")
			}
		})
	}
}

func TestPolisRequiresStore(t *testing.T) {
	if err := NewPolis(Config{}).Init(context.Background()); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestPolisRegisteredKindsSorted(t *testing.T) {
	p, _ := newTestPolis(t,
		NewKind("zeta", "", func(*rand.Rand) *counter { return &counter{} }),
		counterKind(),
	)
	got := strings.Join(p.RegisteredKinds(), ",")
	if got != "counter,zeta" {
		t.Fatalf("registered kinds got=%s", got)
	}
}

func TestPolisStopClearsKinds(t *testing.T) {
	p, _ := newTestPolis(t, counterKind())
	p.Stop()
	if p.Started() {
		t.Fatal("expected polis stopped after stop call")
	}
	if len(p.RegisteredKinds()) != 0 {
		t.Fatalf("expected kinds cleared after stop, got %v", p.RegisteredKinds())
	}
	if _, err := p.RunEvolution(context.Background(), EvolutionConfig{Kind: "counter", Mu: 1, Lambda: 1, MaxGenerations: 2}); err == nil {
		t.Fatal("expected run on stopped polis to fail")
	}

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
	if _, ok := p.GetKind("counter"); !ok {
		t.Fatal("expected configured kinds after re-init")
	}
}

func TestPolisRunEvolutionPersistsResults(t *testing.T) {
	p, store := newTestPolis(t, counterKind())
	ctx := context.Background()

	result, err := p.RunEvolution(ctx, EvolutionConfig{
		RunID:          "run-1",
		Kind:           "counter",
		Mu:             2,
		Lambda:         3,
		Seed:           9,
		MaxGenerations: 5,
		TopCount:       2,
		Output:         io.Discard,
	})
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}

	if result.Run.ID != "run-1" || result.Run.Generations != 5 || result.Run.StopReason != model.StopMaxGenerations {
		t.Fatalf("unexpected run record: %+v", result.Run)
	}
	if result.Run.BestFitness != 4 || result.Run.Best != "4" {
		t.Fatalf("unexpected best: %+v", result.Run)
	}
	if !result.Run.FinishedAt.After(result.Run.StartedAt) {
		t.Fatalf("expected finish after start: %+v", result.Run)
	}
	if len(result.BestByGeneration) != 4 || len(result.GenerationDiagnostics) != 4 {
		t.Fatalf("expected one entry per step, got history=%d diagnostics=%d", len(result.BestByGeneration), len(result.GenerationDiagnostics))
	}
	for i, best := range result.BestByGeneration {
		if best != float64(i) {
			t.Fatalf("history got=%v", result.BestByGeneration)
		}
		if result.GenerationDiagnostics[i].Generation != i+2 {
			t.Fatalf("diagnostics generation got=%d want=%d", result.GenerationDiagnostics[i].Generation, i+2)
		}
	}
	if len(result.TopFinal) != 2 {
		t.Fatalf("top organisms got=%d want=2", len(result.TopFinal))
	}

	run, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if run.SchemaVersion != storage.CurrentSchemaVersion || run.Kind != "counter" {
		t.Fatalf("unexpected stored run: %+v", run)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok || len(history) != 4 {
		t.Fatalf("get fitness history: ok=%t err=%v len=%d", ok, err, len(history))
	}
	diagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil || !ok || len(diagnostics) != 4 {
		t.Fatalf("get diagnostics: ok=%t err=%v len=%d", ok, err, len(diagnostics))
	}
	top, ok, err := store.GetTopOrganisms(ctx, "run-1")
	if err != nil || !ok || len(top) != 2 {
		t.Fatalf("get top organisms: ok=%t err=%v len=%d", ok, err, len(top))
	}
	summary, ok, err := store.GetKindSummary(ctx, "counter")
	if err != nil || !ok {
		t.Fatalf("get kind summary: ok=%t err=%v", ok, err)
	}
	if summary.RunID != "run-1" || summary.BestFitness != 4 || summary.Description != "counts mutations" {
		t.Fatalf("unexpected kind summary: %+v", summary)
	}
}

func TestPolisKindSummaryKeepsBestRun(t *testing.T) {
	p, store := newTestPolis(t, counterKind())
	ctx := context.Background()

	for _, run := range []struct {
		id          string
		generations int
	}{
		{id: "long", generations: 8},
		{id: "short", generations: 3},
	} {
		_, err := p.RunEvolution(ctx, EvolutionConfig{RunID: run.id, Kind: "counter", Mu: 1, Lambda: 1, MaxGenerations: run.generations})
		if err != nil {
			t.Fatalf("run %s: %v", run.id, err)
		}
	}

	summary, ok, err := store.GetKindSummary(ctx, "counter")
	if err != nil || !ok {
		t.Fatalf("get kind summary: ok=%t err=%v", ok, err)
	}
	if summary.RunID != "long" || summary.BestFitness != 7 {
		t.Fatalf("expected best run to be kept, got %+v", summary)
	}
}

func TestPolisRunEvolutionDefaultRunID(t *testing.T) {
	p, _ := newTestPolis(t, counterKind())
	result, err := p.RunEvolution(context.Background(), EvolutionConfig{Kind: "counter", Mu: 1, Lambda: 1, Seed: 3, MaxGenerations: 2})
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if result.Run.ID != "evo:counter:3" {
		t.Fatalf("default run id got=%s", result.Run.ID)
	}
	if result.Run.Workers != 1 {
		t.Fatalf("default workers got=%d", result.Run.Workers)
	}
}

func TestPolisRunEvolutionValidation(t *testing.T) {
	p, _ := newTestPolis(t, counterKind())
	cases := []struct {
		name string
		cfg  EvolutionConfig
	}{
		{name: "missing kind", cfg: EvolutionConfig{Mu: 1, Lambda: 1, MaxGenerations: 1}},
		{name: "unknown kind", cfg: EvolutionConfig{Kind: "missing", Mu: 1, Lambda: 1, MaxGenerations: 1}},
		{name: "no generations", cfg: EvolutionConfig{Kind: "counter", Mu: 1, Lambda: 1}},
		{name: "bad rates", cfg: EvolutionConfig{Kind: "counter", Mu: 0, Lambda: 1, MaxGenerations: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.RunEvolution(context.Background(), tc.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if len(p.ActiveRuns()) != 0 {
		t.Fatalf("expected no active runs, got %v", p.ActiveRuns())
	}
}

func TestPolisCancelledRunIsPersisted(t *testing.T) {
	p, store := newTestPolis(t, counterKind())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.RunEvolution(ctx, EvolutionConfig{RunID: "stopped", Kind: "counter", Mu: 1, Lambda: 1, MaxGenerations: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Run.StopReason != model.StopCancelled {
		t.Fatalf("stop reason got=%s", result.Run.StopReason)
	}
	run, ok, getErr := store.GetRun(context.Background(), "stopped")
	if getErr != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, getErr)
	}
	if run.StopReason != model.StopCancelled {
		t.Fatalf("stored stop reason got=%s", run.StopReason)
	}
}

func TestPolisVerboseOutput(t *testing.T) {
	p, _ := newTestPolis(t, counterKind())
	var out bytes.Buffer
	_, err := p.RunEvolution(context.Background(), EvolutionConfig{
		Kind:           "counter",
		Mu:             1,
		Lambda:         1,
		MaxGenerations: 2,
		Verbose:        true,
		Output:         &out,
	})
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if got := out.String(); got != "1: [0](0)  \n2: [0](0)  [1](1)  \n" {
		t.Fatalf("unexpected verbose output: %q", got)
	}
}

func TestPolisStopRunUnknown(t *testing.T) {
	p, _ := newTestPolis(t, counterKind())
	if err := p.StopRun(""); err == nil {
		t.Fatal("expected run id error")
	}
	if err := p.StopRun("missing"); err == nil {
		t.Fatal("expected inactive run error")
	}
}

// selfStoppingKind stops its own run through the polis and waits for the
// cancellation to arrive.
type selfStoppingKind struct {
	polis  *Polis
	active []string
}

func (k *selfStoppingKind) Name() string {
	return "stopper"
}

func (k *selfStoppingKind) Description() string {
	return "stops its own run"
}

func (k *selfStoppingKind) Evolve(ctx context.Context, req EvolveRequest) (EvolveOutcome, error) {
	k.active = k.polis.ActiveRuns()
	if len(k.active) != 1 {
		return EvolveOutcome{}, errors.New("expected one active run")
	}
	if err := k.polis.StopRun(k.active[0]); err != nil {
		return EvolveOutcome{}, err
	}
	<-ctx.Done()
	return EvolveOutcome{Generation: 1, StopReason: model.StopCancelled}, ctx.Err()
}

func TestPolisStopRunCancelsActiveRun(t *testing.T) {
	kind := &selfStoppingKind{}
	p, store := newTestPolis(t, kind)
	kind.polis = p

	result, err := p.RunEvolution(context.Background(), EvolutionConfig{RunID: "self-stop", Kind: "stopper", Mu: 1, Lambda: 1, MaxGenerations: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(kind.active) != 1 || kind.active[0] != "self-stop" {
		t.Fatalf("active runs during evolve got=%v", kind.active)
	}
	if result.Run.StopReason != model.StopCancelled {
		t.Fatalf("stop reason got=%s", result.Run.StopReason)
	}
	if active := p.ActiveRuns(); len(active) != 0 {
		t.Fatalf("expected no active runs after finish, got %v", active)
	}
	if _, ok, getErr := store.GetRun(context.Background(), "self-stop"); getErr != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, getErr)
	}
}

func TestPolisResetDropsRecords(t *testing.T) {
	p, store := newTestPolis(t, counterKind())
	ctx := context.Background()
	if _, err := p.RunEvolution(ctx, EvolutionConfig{RunID: "r", Kind: "counter", Mu: 1, Lambda: 1, MaxGenerations: 2}); err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if err := p.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, err := store.GetRun(ctx, "r"); err != nil || ok {
		t.Fatalf("expected run dropped after reset: ok=%t err=%v", ok, err)
	}
	if !p.Started() {
		t.Fatal("expected polis started after reset")
	}
	if _, ok := p.GetKind("counter"); !ok {
		t.Fatal("expected configured kinds after reset")
	}
}
