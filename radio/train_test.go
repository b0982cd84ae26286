package radio

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtl-ml/synth"
)

const testRate = 1.024e6

func TestTrainSelectsAccurateModel(t *testing.T) {
	t.Parallel()

	examples := syntheticExamples(t, []string{"ADS_B", "FM_broadcast", "noise"}, 10, 4096)
	model, summary, err := Train(examples, DefaultTrainOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"ADS_B", "FM_broadcast", "noise"}, model.Labels)
	assert.Equal(t, 24, summary.TrainSize)
	assert.Equal(t, 6, summary.TestSize)
	assert.Equal(t, 5, summary.Folds)
	require.Len(t, summary.Candidates, 3)
	assert.Equal(t, FamilyRandomForest, summary.Candidates[0].Family)
	assert.Equal(t, FamilySVM, summary.Candidates[1].Family)
	assert.Equal(t, FamilyKNN, summary.Candidates[2].Family)
	for _, c := range summary.Candidates {
		assert.Len(t, c.CVScores, 5, c.Family)
	}

	assert.Greater(t, summary.TestAccuracy, 0.5)
	assert.Equal(t, model.Family(), summary.Selected)
	require.NotNil(t, summary.TestReport)
	assert.Equal(t, summary.TestSize, summary.TestReport.Total)

	holdout := syntheticExamplesFrom(t, []string{"ADS_B", "FM_broadcast", "noise"}, 3, 4096, 5000)
	report, err := Evaluate(NewClassifier(model), holdout)
	require.NoError(t, err)
	assert.Greater(t, report.Accuracy, 0.5)
}

func TestTrainIsDeterministic(t *testing.T) {
	t.Parallel()

	examples := syntheticExamples(t, []string{"ADS_B", "noise"}, 6, 2048)
	first, _, err := Train(examples, DefaultTrainOptions())
	require.NoError(t, err)
	second, _, err := Train(examples, DefaultTrainOptions())
	require.NoError(t, err)

	require.Equal(t, first.Family(), second.Family())
	for _, ex := range examples {
		a, err := NewClassifier(first).Predict(ex.Features)
		require.NoError(t, err)
		b, err := NewClassifier(second).Predict(ex.Features)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestTrainTieKeepsFirstCandidate(t *testing.T) {
	t.Parallel()

	examples := syntheticExamples(t, []string{"ADS_B", "noise"}, 6, 2048)
	opts := DefaultTrainOptions()
	opts.Candidates = []Candidate{
		{Family: "knn-uniform", Fit: func(x [][]float64, y []int, n int) (Decision, error) {
			return FitKNN(x, y, n, 1, WeightUniform)
		}},
		{Family: "knn-distance", Fit: func(x [][]float64, y []int, n int) (Decision, error) {
			return FitKNN(x, y, n, 1, WeightDistance)
		}},
	}

	model, summary, err := Train(examples, opts)
	require.NoError(t, err)
	require.Len(t, summary.Candidates, 2)
	require.Equal(t, summary.Candidates[0].TestAccuracy, summary.Candidates[1].TestAccuracy)

	knn, ok := model.Decision.(*KNN)
	require.True(t, ok)
	assert.Equal(t, WeightUniform, knn.Weighting)
}

func TestTrainRequiresTwoExamplesPerClass(t *testing.T) {
	t.Parallel()

	examples := syntheticExamples(t, []string{"ADS_B", "noise"}, 3, 1024)
	examples = append(examples, Example{Label: "pager", Features: examples[0].Features})

	_, _, err := Train(examples, DefaultTrainOptions())
	assert.ErrorIs(t, err, ErrInsufficientTrainingData)

	_, _, err = Train(examples[:3], DefaultTrainOptions())
	assert.ErrorIs(t, err, ErrInsufficientTrainingData, "a single class cannot be trained")
}

func TestTrainRejectsWrongFeatureCount(t *testing.T) {
	t.Parallel()

	examples := []Example{
		{Label: "a", Features: make([]float64, FeatureCount-1)},
		{Label: "a", Features: make([]float64, FeatureCount-1)},
	}
	_, _, err := Train(examples, DefaultTrainOptions())
	assert.ErrorIs(t, err, ErrFeatureDimensionMismatch)
}

func TestStratifiedSplitKeepsEveryClassOnBothSides(t *testing.T) {
	t.Parallel()

	y := []int{0, 0, 1, 1, 1, 1, 1, 2, 2, 2}
	rng := newTestRand()
	train, test := stratifiedSplit(y, 3, 0.2, rng)
	assert.Len(t, append(train, test...), len(y))

	seenTrain := map[int]bool{}
	seenTest := map[int]bool{}
	for _, i := range train {
		seenTrain[y[i]] = true
	}
	for _, i := range test {
		seenTest[y[i]] = true
	}
	assert.Len(t, seenTrain, 3)
	assert.Len(t, seenTest, 3)
}

func syntheticExamples(t *testing.T, labels []string, perClass, n int) []Example {
	return syntheticExamplesFrom(t, labels, perClass, n, 1)
}

func syntheticExamplesFrom(t *testing.T, labels []string, perClass, n int, seed uint64) []Example {
	t.Helper()

	var examples []Example
	for li, label := range labels {
		gen := synth.ForLabel(label)
		for i := 0; i < perClass; i++ {
			s := seed + uint64(li*1000+i)
			buf := mustBuffer(t, gen(n, testRate, s), testRate)
			features, err := ExtractFeatureVector(buf)
			require.NoError(t, err)
			examples = append(examples, Example{
				Label:    label,
				Features: features,
				Source:   fmt.Sprintf("%s_%d", label, s),
			})
		}
	}
	return examples
}
