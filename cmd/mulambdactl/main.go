package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"

	"mulambda/internal/evo"
	"mulambda/internal/kindid"
	"mulambda/pkg/mulambda"
)

var stdout io.Writer = os.Stdout

// kindLabels holds the report header and best-organism noun per kind.
var kindLabels = map[string]struct {
	header string
	noun   string
}{
	mulambda.KindCreature:  {header: "Creatures example: ", noun: "creature"},
	mulambda.KindLinecraft: {header: "Linecraft example: ", noun: "map"},
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "summary":
		return runSummary(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "kinds":
		return runKinds(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	kind := fs.String("kind", mulambda.KindCreature, "organism kind: creature|linecraft")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	mu := fs.Int("mu", 0, "elite rate (0 uses the kind profile)")
	lambda := fs.Int("lambda", 0, "reproduction rate (0 uses the kind profile)")
	generations := fs.Int("gens", 0, "stop at this generation (0 uses the kind profile)")
	target := fs.Float64("target", 0, "stop once an organism scores above this (0 uses the kind profile)")
	noTarget := fs.Bool("no-target", false, "disable the fitness target")
	seed := fs.Int64("seed", 0, "rng seed (0 seeds from the clock)")
	workers := fs.Int("workers", 0, "parallel fitness evaluators (0 uses config)")
	crossover := fs.Bool("crossover", false, "breed elite offspring with a random survivor before mutation")
	top := fs.Int("top", 0, "top organisms to keep (0 uses config)")
	quiet := fs.Bool("quiet", false, "suppress the per-generation population lines")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	set := visitedFlags(fs)

	req := mulambda.RunRequest{
		RunID:           *runID,
		Kind:            kindid.Normalize(*kind),
		Mu:              *mu,
		Lambda:          *lambda,
		MaxGenerations:  *generations,
		FitnessTarget:   *target,
		NoFitnessTarget: *noTarget,
		Seed:            cfg.Run.Seed,
		Workers:         cfg.Run.Workers,
		Crossover:       cfg.Run.Crossover,
		TopCount:        cfg.Artifacts.TopCount,
		Verbose:         cfg.Run.Verbose && !*jsonOut,
		Output:          stdout,
	}
	if set["seed"] {
		req.Seed = *seed
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	if set["workers"] {
		req.Workers = *workers
	}
	if set["crossover"] {
		req.Crossover = *crossover
	}
	if set["top"] {
		req.TopCount = *top
	}
	if set["quiet"] {
		req.Verbose = !*quiet && !*jsonOut
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	// An interrupt stops the run; it is still recorded as cancelled.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer func() {
		signal.Stop(interrupts)
		close(interrupts)
	}()
	go stopOnInterrupt(interrupts, client)

	label, ok := kindLabels[req.Kind]
	if !ok {
		label.header = req.Kind + " example: "
		label.noun = req.Kind
	}
	if !*jsonOut {
		fmt.Fprintln(stdout, label.header)
	}

	summary, err := client.Run(ctx, req)
	if err != nil && summary.RunID == "" {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			return encErr
		}
		return err
	}

	if summary.Best != "" {
		fmt.Fprintf(stdout, "Best %s: %s (value = %s)\n", label.noun, summary.Best, evo.FormatFitness(evo.Fitness(summary.BestFitness)))
	}
	fmt.Fprintf(stdout, "run_id=%s generations=%d stop_reason=%s artifacts=%s\n",
		summary.RunID,
		summary.Generations,
		summary.StopReason,
		summary.ArtifactsDir,
	)
	return err
}

// runStopper is the part of the client an interrupt needs.
type runStopper interface {
	ActiveRuns() []string
	StopRun(runID string) error
}

// stopOnInterrupt stops every active run each time a signal arrives, until
// signals is closed.
func stopOnInterrupt(signals <-chan os.Signal, runs runStopper) {
	for range signals {
		for _, id := range runs.ActiveRuns() {
			if err := runs.StopRun(id); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, mulambda.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	if *jsonOut {
		type runsItem struct {
			RunID            string  `json:"run_id"`
			CreatedAtUTC     string  `json:"created_at_utc"`
			Kind             string  `json:"kind"`
			Mu               int     `json:"mu"`
			Lambda           int     `json:"lambda"`
			Seed             int64   `json:"seed"`
			Generations      int     `json:"generations"`
			StopReason       string  `json:"stop_reason"`
			FinalBestFitness float64 `json:"final_best_fitness"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem(r))
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, r := range runs {
		created := r.CreatedAtUTC
		if t, err := time.Parse(time.RFC3339Nano, r.CreatedAtUTC); err == nil {
			created = humanize.Time(t)
		}
		fmt.Fprintf(stdout, "run_id=%s created=%q kind=%s mu=%d lambda=%d seed=%d gens=%s stop_reason=%s final_best_fitness=%s\n",
			r.RunID,
			created,
			r.Kind,
			r.Mu,
			r.Lambda,
			r.Seed,
			humanize.Comma(int64(r.Generations)),
			r.StopReason,
			humanize.Commaf(r.FinalBestFitness),
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector("fitness", *runID, *latest); err != nil {
		return err
	}
	if *limit < 0 {
		*limit = 0
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, mulambda.FitnessHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(stdout, "no fitness history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for i, best := range history {
		fmt.Fprintf(stdout, "step=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show diagnostics for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector("diagnostics", *runID, *latest); err != nil {
		return err
	}
	if *limit < 0 {
		*limit = 0
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, mulambda.DiagnosticsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Fprintln(stdout, "no diagnostics")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}

	for _, d := range diagnostics {
		fmt.Fprintf(stdout, "generation=%d population=%d survivors=%d elites=%d best=%.6f mean=%.6f min=%.6f stddev=%.6f invalid=%d best_organism=%s\n",
			d.Generation,
			d.PopulationSize,
			d.Survivors,
			d.Elites,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.StdDevFitness,
			d.InvalidFitness,
			d.Best,
		)
	}
	return nil
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show top organisms for the most recent run from run index")
	limit := fs.Int("limit", 5, "max top organisms to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit top organisms as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector("top", *runID, *latest); err != nil {
		return err
	}
	if *limit < 0 {
		*limit = 0
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopOrganisms(ctx, mulambda.TopOrganismsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Fprintln(stdout, "no top organisms")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(top)
	}

	for _, item := range top {
		fmt.Fprintf(stdout, "rank=%d fitness=%s organism=%s\n",
			item.Rank,
			evo.FormatFitness(evo.Fitness(item.Fitness)),
			item.Organism,
		)
	}
	return nil
}

func runSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "summarize the most recent run from run index")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector("summary", *runID, *latest); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.RunDetail(ctx, mulambda.RunDetailRequest{
		RunID:  *runID,
		Latest: *latest,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	fmt.Fprintf(stdout, "run_id=%s kind=%s mu=%d lambda=%d seed=%d crossover=%t generations=%d stop_reason=%s best_fitness=%s\n",
		detail.Config.RunID,
		detail.Config.Kind,
		detail.Config.Mu,
		detail.Config.Lambda,
		detail.Config.Seed,
		detail.Config.Crossover,
		detail.Generations,
		detail.StopReason,
		evo.FormatFitness(evo.Fitness(detail.BestFitness)),
	)
	sum := detail.Summary
	fmt.Fprintf(stdout, "steps=%d initial_best=%.6f final_best=%.6f improvement=%.6f mean=%.6f stddev=%.6f min=%.6f max=%.6f\n",
		sum.Steps,
		sum.InitialBest,
		sum.FinalBest,
		sum.Improvement,
		sum.BestMean,
		sum.BestStd,
		sum.BestMin,
		sum.BestMax,
	)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", "", "export output directory (defaults to artifacts.exports_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector("export", *runID, *latest); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, mulambda.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runKinds(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("kinds", flag.ContinueOnError)
	common := addCommonFlags(fs)
	jsonOut := fs.Bool("json", false, "emit kinds as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	kinds, err := client.Kinds(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(kinds)
	}

	for _, k := range kinds {
		if !k.HasBest {
			fmt.Fprintf(stdout, "kind=%s description=%q best=none\n", k.Name, k.Description)
			continue
		}
		fmt.Fprintf(stdout, "kind=%s description=%q best=%s best_fitness=%s run_id=%s\n",
			k.Name,
			k.Description,
			k.Best,
			evo.FormatFitness(evo.Fitness(k.BestFitness)),
			k.BestRunID,
		)
	}
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "reset store=%s\n", cfg.Storage.Kind)
	return nil
}

func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	common := addCommonFlags(fs)
	out := fs.String("out", "", "write the effective config to this YAML path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("config requires --out")
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	if err := cfg.WriteYAML(*out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote config to=%s\n", *out)
	return nil
}

func requireRunSelector(command, runID string, latest bool) error {
	if runID != "" && latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if runID == "" && !latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: mulambdactl <run|runs|fitness|diagnostics|top|summary|export|kinds|reset|config> [flags]", msg)
}
