package storage

import (
	"context"

	"mulambda/internal/model"
)

// Store defines persistence operations for run results.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveTopOrganisms(ctx context.Context, runID string, top []model.TopOrganismRecord) error
	GetTopOrganisms(ctx context.Context, runID string) ([]model.TopOrganismRecord, bool, error)
	SaveKindSummary(ctx context.Context, summary model.KindSummary) error
	GetKindSummary(ctx context.Context, kind string) (model.KindSummary, bool, error)
}

// Resetter is implemented by stores that can drop every persisted record.
type Resetter interface {
	Reset(ctx context.Context) error
}
