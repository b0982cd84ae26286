package radio

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTripPreservesPredictions(t *testing.T) {
	t.Parallel()

	examples := syntheticExamples(t, []string{"FM_broadcast", "noise", "NOAA_APT"}, 6, 2048)
	for _, candidate := range DefaultCandidates() {
		t.Run(candidate.Family, func(t *testing.T) {
			opts := DefaultTrainOptions()
			opts.Candidates = []Candidate{candidate}
			model, _, err := Train(examples, opts)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "models", "classifier.json")
			require.NoError(t, SaveModel(path, model))
			assert.NoFileExists(t, path+".tmp")

			loaded, err := NewClassifierFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, candidate.Family, loaded.Model().Family())
			assert.Equal(t, model.Labels, loaded.Model().Labels)

			original := NewClassifier(model)
			for _, ex := range examples {
				want, err := original.Predict(ex.Features)
				require.NoError(t, err)
				got, err := loaded.Predict(ex.Features)
				require.NoError(t, err)
				assert.Equal(t, want, got)
				if candidate.Family == FamilySVM {
					assert.Nil(t, got.Confidence)
				} else {
					assert.NotNil(t, got.Confidence)
				}
			}
		})
	}
}

func TestLoadModelFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadModel(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrModelLoad)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0644))
	_, err = LoadModel(garbage)
	assert.ErrorIs(t, err, ErrModelLoad)

	classifier := newTestKNNClassifier(t, 1, WeightUniform,
		synthetic("alpha", map[int]float64{0: 1.0}),
		synthetic("beta", map[int]float64{1: 1.0}),
	)
	data, err := json.Marshal(classifier.Model())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	names := doc["feature_names"].([]any)
	names[0], names[1] = names[1], names[0]
	swapped, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = DecodeModel(swapped)
	assert.ErrorIs(t, err, ErrModelLoad, "a reordered feature layout must be rejected")

	require.NoError(t, json.Unmarshal(data, &doc))
	doc["family"] = "svm"
	wrongFamily, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = DecodeModel(wrongFamily)
	assert.ErrorIs(t, err, ErrModelLoad)

	require.NoError(t, json.Unmarshal(data, &doc))
	doc["format_version"] = 99
	future, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = DecodeModel(future)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestNewModelRejectsMismatchedScaler(t *testing.T) {
	t.Parallel()

	knn, err := FitKNN([][]float64{make([]float64, FeatureCount)}, []int{0}, 1, 1, WeightUniform)
	require.NoError(t, err)

	_, err = NewModel([]string{"alpha"}, &FeatureScaler{Mean: []float64{0}, Scale: []float64{1}}, knn)
	assert.Error(t, err)

	_, err = NewModel([]string{"alpha", "alpha"}, identityScaler(), knn)
	assert.Error(t, err)
}

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 42))
}
