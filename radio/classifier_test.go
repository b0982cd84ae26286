package radio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierPredictPrefersMajorityLabel(t *testing.T) {
	t.Parallel()

	classifier := newTestKNNClassifier(t, 3, WeightUniform,
		synthetic("alpha", map[int]float64{0: 1.0}),
		synthetic("alpha", map[int]float64{0: 0.8, 1: 0.2}),
		synthetic("beta", map[int]float64{8: 1.0}),
	)

	prediction, err := classifier.Predict(featureVector(map[int]float64{0: 1.0}))
	require.NoError(t, err)
	assert.Equal(t, "alpha", prediction.Label)
	assert.Equal(t, FamilyKNN, prediction.Family)
	require.NotNil(t, prediction.Confidence)
	assert.InDelta(t, 2.0/3.0, *prediction.Confidence, 1e-12)
	require.Len(t, prediction.Probabilities, 2)
	assert.Equal(t, "alpha", prediction.Probabilities[0].Label)
}

func TestClassifierPredictRespondsToFeatureShift(t *testing.T) {
	t.Parallel()

	classifier := newTestKNNClassifier(t, 3, WeightDistance,
		synthetic("alpha", map[int]float64{0: 1.0}),
		synthetic("alpha", map[int]float64{0: 0.8, 1: 0.2}),
		synthetic("beta", map[int]float64{10: 1.0}),
	)

	prediction, err := classifier.Predict(featureVector(map[int]float64{10: 1.0}))
	require.NoError(t, err)
	assert.Equal(t, "beta", prediction.Label)
	require.NotNil(t, prediction.Confidence)
	assert.GreaterOrEqual(t, *prediction.Confidence, 0.9)
}

func TestClassifierRejectsWrongDimension(t *testing.T) {
	t.Parallel()

	classifier := newTestKNNClassifier(t, 1, WeightUniform,
		synthetic("alpha", map[int]float64{0: 1.0}),
		synthetic("beta", map[int]float64{1: 1.0}),
	)

	_, err := classifier.Predict(make([]float64, FeatureCount-1))
	assert.ErrorIs(t, err, ErrFeatureDimensionMismatch)
}

func TestClassifierWithoutModel(t *testing.T) {
	t.Parallel()

	var classifier Classifier
	_, err := classifier.Predict(make([]float64, FeatureCount))
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	var nilClassifier *Classifier
	_, err = nilClassifier.Predict(make([]float64, FeatureCount))
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	assert.False(t, nilClassifier.Stats().Loaded)
}

func TestClassifierWithoutProbabilitiesLeavesConfidenceEmpty(t *testing.T) {
	t.Parallel()

	x := [][]float64{featureVector(map[int]float64{0: 1}), featureVector(map[int]float64{0: 0.9}),
		featureVector(map[int]float64{5: 1}), featureVector(map[int]float64{5: 0.9})}
	svm, err := FitKernelSVM(x, []int{0, 0, 1, 1}, 2, DefaultSVMOptions())
	require.NoError(t, err)
	model, err := NewModel([]string{"alpha", "beta"}, identityScaler(), svm)
	require.NoError(t, err)

	prediction, err := NewClassifier(model).Predict(featureVector(map[int]float64{5: 1}))
	require.NoError(t, err)
	assert.Equal(t, "beta", prediction.Label)
	assert.Nil(t, prediction.Confidence)
	assert.Nil(t, prediction.Probabilities)
}

type labelledVector struct {
	label    string
	features []float64
}

func synthetic(label string, peaks map[int]float64) labelledVector {
	return labelledVector{label: label, features: featureVector(peaks)}
}

func featureVector(peaks map[int]float64) []float64 {
	vec := make([]float64, FeatureCount)
	for idx, value := range peaks {
		if idx < len(vec) {
			vec[idx] = value
		}
	}
	return vec
}

func identityScaler() *FeatureScaler {
	scaler := &FeatureScaler{Mean: make([]float64, FeatureCount), Scale: make([]float64, FeatureCount)}
	for i := range scaler.Scale {
		scaler.Scale[i] = 1
	}
	return scaler
}

func newTestKNNClassifier(t *testing.T, k int, weighting string, vectors ...labelledVector) *Classifier {
	t.Helper()

	var labels []string
	index := map[string]int{}
	x := make([][]float64, len(vectors))
	y := make([]int, len(vectors))
	for i, v := range vectors {
		if _, ok := index[v.label]; !ok {
			index[v.label] = len(labels)
			labels = append(labels, v.label)
		}
		x[i] = v.features
		y[i] = index[v.label]
	}

	knn, err := FitKNN(x, y, len(labels), k, weighting)
	require.NoError(t, err)
	model, err := NewModel(labels, identityScaler(), knn)
	require.NoError(t, err)
	return NewClassifier(model)
}
