package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Stop reasons recorded on a finished run.
const (
	StopMaxGenerations = "max_generations"
	StopFitnessTarget  = "fitness_target"
	StopCancelled      = "cancelled"
)

// RunRecord describes one evolution run and its outcome.
type RunRecord struct {
	VersionedRecord
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Mu             int       `json:"mu"`
	Lambda         int       `json:"lambda"`
	Workers        int       `json:"workers"`
	Seed           int64     `json:"seed"`
	Crossover      bool      `json:"crossover"`
	MaxGenerations int       `json:"max_generations"`
	FitnessTarget  float64   `json:"fitness_target"`
	Generations    int       `json:"generations"`
	BestFitness    float64   `json:"best_fitness"`
	Best           string    `json:"best"`
	StopReason     string    `json:"stop_reason"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// GenerationDiagnostics is the persisted form of one generation summary.
// Non-finite scores are never stored; they are only counted.
type GenerationDiagnostics struct {
	Generation     int     `json:"generation" csv:"generation"`
	PopulationSize int     `json:"population_size" csv:"population_size"`
	Survivors      int     `json:"survivors" csv:"survivors"`
	Elites         int     `json:"elites" csv:"elites"`
	BestFitness    float64 `json:"best_fitness" csv:"best_fitness"`
	MeanFitness    float64 `json:"mean_fitness" csv:"mean_fitness"`
	MinFitness     float64 `json:"min_fitness" csv:"min_fitness"`
	StdDevFitness  float64 `json:"stddev_fitness" csv:"stddev_fitness"`
	InvalidFitness int     `json:"invalid_fitness" csv:"invalid_fitness"`
	Best           string  `json:"best" csv:"best"`
}

// TopOrganismRecord is one ranked organism from a run's final population.
type TopOrganismRecord struct {
	Rank     int     `json:"rank"`
	Fitness  float64 `json:"fitness"`
	Organism string  `json:"organism"`
}

// KindSummary tracks the best result seen for an organism kind across runs.
type KindSummary struct {
	VersionedRecord
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	BestFitness float64 `json:"best_fitness"`
	Best        string  `json:"best"`
	RunID       string  `json:"run_id"`
}
