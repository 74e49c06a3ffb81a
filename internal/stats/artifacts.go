package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"mulambda/internal/model"
)

const (
	runIndexFile              = "run_index.json"
	configFile                = "config.json"
	fitnessHistoryFile        = "fitness_history.csv"
	generationDiagnosticsFile = "generation_diagnostics.csv"
	topOrganismsFile          = "top_organisms.json"
	runSummaryFile            = "summary.json"
)

// CreatedAtLayout is the fixed-width UTC timestamp written to the run index.
const CreatedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunConfig is the resolved configuration of one run.
type RunConfig struct {
	RunID          string  `json:"run_id"`
	Kind           string  `json:"kind"`
	Mu             int     `json:"mu"`
	Lambda         int     `json:"lambda"`
	Workers        int     `json:"workers"`
	Seed           int64   `json:"seed"`
	Crossover      bool    `json:"crossover"`
	MaxGenerations int     `json:"max_generations"`
	FitnessTarget  float64 `json:"fitness_target"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	FinalBestFitness      float64                       `json:"final_best_fitness"`
	TopOrganisms          []model.TopOrganismRecord     `json:"top_organisms"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Kind             string  `json:"kind"`
	Mu               int     `json:"mu"`
	Lambda           int     `json:"lambda"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	StopReason       string  `json:"stop_reason"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

type fitnessHistoryRow struct {
	Step        int     `csv:"step"`
	BestFitness float64 `csv:"best_fitness"`
}

// WriteRunArtifacts writes the run directory <baseDir>/<run id> and returns its
// path.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := WriteRunConfig(baseDir, artifacts.Config.RunID, artifacts.Config); err != nil {
		return "", err
	}

	history := make([]fitnessHistoryRow, len(artifacts.BestByGeneration))
	for i, best := range artifacts.BestByGeneration {
		history[i] = fitnessHistoryRow{Step: i + 1, BestFitness: best}
	}
	if err := writeCSV(filepath.Join(runDir, fitnessHistoryFile), &history); err != nil {
		return "", err
	}

	diagnostics := artifacts.GenerationDiagnostics
	if diagnostics == nil {
		diagnostics = []model.GenerationDiagnostics{}
	}
	if err := writeCSV(filepath.Join(runDir, generationDiagnosticsFile), &diagnostics); err != nil {
		return "", err
	}

	top := artifacts.TopOrganisms
	if top == nil {
		top = []model.TopOrganismRecord{}
	}
	if err := writeJSON(filepath.Join(runDir, topOrganismsFile), top); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, runSummaryFile), Summarize(artifacts.Config.RunID, artifacts.BestByGeneration)); err != nil {
		return "", err
	}
	return runDir, nil
}

// AppendRunIndex records entry in the run index. The file keeps append order;
// re-indexing an existing run id replaces it in place.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}
	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry   RunIndexEntry
		created time.Time
		idx     int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		// Unparseable timestamps sort as the zero time.
		created, _ := time.Parse(time.RFC3339Nano, entries[i].CreatedAtUTC)
		indexed[i] = indexedEntry{entry: entries[i], created: created, idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].created.Equal(indexed[j].created) {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].created.After(indexed[j].created)
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}
	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ExportRunArtifacts copies a run directory into outDir/<run id>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, fitnessHistoryFile, generationDiagnosticsFile, topOrganismsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	summaryPath := filepath.Join(src, runSummaryFile)
	if _, err := os.Stat(summaryPath); err == nil {
		if err := copyFile(summaryPath, filepath.Join(dst, runSummaryFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func ReadFitnessHistory(baseDir, runID string) ([]float64, bool, error) {
	var rows []fitnessHistoryRow
	ok, err := readCSV(filepath.Join(baseDir, runID, fitnessHistoryFile), &rows)
	if err != nil || !ok {
		return nil, ok, err
	}
	history := make([]float64, len(rows))
	for i, row := range rows {
		history[i] = row.BestFitness
	}
	return history, true, nil
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readCSV(filepath.Join(baseDir, runID, generationDiagnosticsFile), &diagnostics)
	if err != nil || !ok {
		return nil, ok, err
	}
	return diagnostics, true, nil
}

func ReadTopOrganisms(baseDir, runID string) ([]model.TopOrganismRecord, bool, error) {
	var top []model.TopOrganismRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, topOrganismsFile), &top)
	if err != nil || !ok {
		return nil, ok, err
	}
	return top, true, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, runSummaryFile), &summary)
	if err != nil || !ok {
		return RunSummary{}, ok, err
	}
	return summary, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeCSV(path string, records any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.Marshal(records, file); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return file.Sync()
}

func readCSV(path string, out any) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer file.Close()

	if err := gocsv.UnmarshalFile(file, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
