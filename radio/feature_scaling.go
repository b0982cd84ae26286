package radio

// Feature Scaling
//
// Raw features span many orders of magnitude: spectral power of a strong FM
// carrier is in the thousands while phase statistics stay within [-pi, pi].
// Distance- and kernel-based decision functions would be dominated by the
// largest features, so every dimension is standardised to zero mean and unit
// variance first. The scaler is fit once on the training split and stored
// with the model; it is never refit at prediction time.

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// minScale replaces the deviation of constant features.
const minScale = 1e-10

// FeatureScaler standardizes features using z-score normalization.
type FeatureScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitFeatureScaler computes per-dimension mean and population standard
// deviation over rows. Constant dimensions get a scale of 1.
func FitFeatureScaler(rows [][]float64) (*FeatureScaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("no feature vectors provided")
	}

	featureCount := len(rows[0])
	if featureCount == 0 {
		return nil, errors.New("feature vectors are empty")
	}

	column := make([]float64, len(rows))
	mean := make([]float64, featureCount)
	scale := make([]float64, featureCount)
	for j := 0; j < featureCount; j++ {
		for i, row := range rows {
			if len(row) != featureCount {
				return nil, fmt.Errorf("%w: row %d has %d features, expected %d",
					ErrFeatureDimensionMismatch, i, len(row), featureCount)
			}
			column[i] = row[j]
		}
		mean[j], scale[j] = stat.PopMeanStdDev(column, nil)
		// Prevent division by zero for constant features
		if scale[j] < minScale {
			scale[j] = 1.0
		}
	}

	return &FeatureScaler{Mean: mean, Scale: scale}, nil
}

// Dim returns the number of features the scaler was fit on.
func (fs *FeatureScaler) Dim() int {
	return len(fs.Mean)
}

// Transform applies the stored standardization to a single vector.
func (fs *FeatureScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(fs.Mean) {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrFeatureDimensionMismatch, len(features), len(fs.Mean))
	}

	scaled := make([]float64, len(features))
	for i, val := range features {
		scaled[i] = (val - fs.Mean[i]) / fs.Scale[i]
	}
	return scaled, nil
}

// TransformAll standardizes every row.
func (fs *FeatureScaler) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := fs.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

func (fs *FeatureScaler) validate() error {
	if len(fs.Mean) == 0 {
		return errors.New("scaler has no dimensions")
	}
	if len(fs.Scale) != len(fs.Mean) {
		return fmt.Errorf("scaler mean has %d entries but scale has %d", len(fs.Mean), len(fs.Scale))
	}
	for i, s := range fs.Scale {
		if !(s > 0) {
			return fmt.Errorf("scaler dimension %d has non-positive scale %v", i, s)
		}
	}
	return nil
}
