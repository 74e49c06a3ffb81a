package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RunSummary condenses a run's best-fitness series.
type RunSummary struct {
	RunID       string  `json:"run_id"`
	Steps       int     `json:"steps"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	BestMax     float64 `json:"best_max"`
	BestMin     float64 `json:"best_min"`
	Improvement float64 `json:"improvement"`
}

// Summarize computes a RunSummary over bestByGeneration. An empty series
// yields a zero summary.
func Summarize(runID string, bestByGeneration []float64) RunSummary {
	summary := RunSummary{RunID: runID, Steps: len(bestByGeneration)}
	if len(bestByGeneration) == 0 {
		return summary
	}

	summary.InitialBest = bestByGeneration[0]
	summary.FinalBest = bestByGeneration[len(bestByGeneration)-1]
	summary.BestMax = floats.Max(bestByGeneration)
	summary.BestMin = floats.Min(bestByGeneration)
	summary.Improvement = summary.FinalBest - summary.InitialBest
	if len(bestByGeneration) > 1 {
		summary.BestMean, summary.BestStd = stat.MeanStdDev(bestByGeneration, nil)
	} else {
		summary.BestMean = bestByGeneration[0]
	}
	return summary
}
