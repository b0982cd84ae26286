package radio

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FeatureScaleAnalysis describes the raw range of every feature across a
// training set, before standardization.
type FeatureScaleAnalysis struct {
	FeatureNames []string  `json:"featureNames"`
	MinValues    []float64 `json:"min"`
	MaxValues    []float64 `json:"max"`
	MeanValues   []float64 `json:"mean"`
	StdValues    []float64 `json:"std"`
}

// AnalyzeFeatureScales examines the examples' raw feature vectors.
func AnalyzeFeatureScales(examples []Example) FeatureScaleAnalysis {
	if len(examples) == 0 {
		return FeatureScaleAnalysis{}
	}

	analysis := FeatureScaleAnalysis{
		FeatureNames: FeatureNames(),
		MinValues:    make([]float64, FeatureCount),
		MaxValues:    make([]float64, FeatureCount),
		MeanValues:   make([]float64, FeatureCount),
		StdValues:    make([]float64, FeatureCount),
	}

	column := make([]float64, 0, len(examples))
	for j := 0; j < FeatureCount; j++ {
		column = column[:0]
		for _, ex := range examples {
			if j < len(ex.Features) {
				column = append(column, ex.Features[j])
			}
		}
		if len(column) == 0 {
			continue
		}
		analysis.MinValues[j] = floats.Min(column)
		analysis.MaxValues[j] = floats.Max(column)
		analysis.MeanValues[j], analysis.StdValues[j] = stat.PopMeanStdDev(column, nil)
	}

	return analysis
}

// Print writes a table of feature scales.
func (f FeatureScaleAnalysis) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Feature Scale Analysis ===")
	fmt.Fprintf(w, "%-20s %14s %14s %14s %14s\n", "Feature", "Min", "Max", "Mean", "Std")
	for i, name := range f.FeatureNames {
		fmt.Fprintf(w, "%-20s %14.6g %14.6g %14.6g %14.6g\n",
			name, f.MinValues[i], f.MaxValues[i], f.MeanValues[i], f.StdValues[i])
	}
	fmt.Fprintln(w)
}

// CheckScaleIssues flags constant features and features whose spread dwarfs
// the others, both of which usually point at a capture problem.
func (f FeatureScaleAnalysis) CheckScaleIssues() []string {
	issues := []string{}

	var maxStd float64
	for _, s := range f.StdValues {
		maxStd = math.Max(maxStd, s)
	}

	for i, name := range f.FeatureNames {
		if i >= len(f.StdValues) {
			break
		}
		if f.StdValues[i] < minScale {
			issues = append(issues, fmt.Sprintf("Feature '%s' is constant across the training set", name))
			continue
		}
		if math.Abs(f.MeanValues[i]) > 1e-9 {
			if coeffVar := f.StdValues[i] / math.Abs(f.MeanValues[i]); coeffVar > 2.0 {
				issues = append(issues, fmt.Sprintf(
					"Feature '%s' has high coefficient of variation (%.2f)", name, coeffVar))
			}
		}
		if maxStd > 0 && f.StdValues[i] == maxStd && len(f.StdValues) > 1 {
			issues = append(issues, fmt.Sprintf(
				"Feature '%s' has the widest raw spread (std %.3g) and relies on scaling", name, maxStd))
		}
	}

	return issues
}
