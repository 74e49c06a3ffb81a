package evo

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GenerationDiagnostics summarizes the ranking step of one generation. Scores
// that are NaN or infinite are counted in InvalidFitness and left out of the
// statistics.
type GenerationDiagnostics struct {
	Generation     int
	PopulationSize int
	Survivors      int
	Elites         int
	BestFitness    float64
	MeanFitness    float64
	MinFitness     float64
	StdDevFitness  float64
	InvalidFitness int
	Best           string
}

func summarizeGeneration[P Organism[P]](ranked []Scored[P], generation, survivors, elites int) GenerationDiagnostics {
	diag := GenerationDiagnostics{
		Generation:     generation,
		PopulationSize: len(ranked),
		Survivors:      survivors,
		Elites:         elites,
	}

	values := make([]float64, 0, len(ranked))
	bestIdx := -1
	for i, item := range ranked {
		if !isFinite(item.Fitness) {
			diag.InvalidFitness++
			continue
		}
		if bestIdx < 0 || item.Fitness > ranked[bestIdx].Fitness {
			bestIdx = i
		}
		values = append(values, float64(item.Fitness))
	}
	if len(values) == 0 {
		if len(ranked) > 0 {
			diag.Best = ranked[0].Organism.String()
		}
		return diag
	}

	diag.Best = ranked[bestIdx].Organism.String()
	diag.BestFitness = floats.Max(values)
	diag.MinFitness = floats.Min(values)
	if len(values) > 1 {
		diag.MeanFitness, diag.StdDevFitness = stat.MeanStdDev(values, nil)
	} else {
		diag.MeanFitness = values[0]
	}
	return diag
}
