package radio

// Classifier
//
// The classifier wraps a trained Model and turns a raw feature vector into a
// label:
//
//  1. The vector length is checked against the model's feature layout.
//  2. Features are standardized with the scaler stored in the model.
//  3. The decision function yields a class index and, for the random forest
//     and KNN families, per-class probabilities.
//  4. The index is mapped through the label table.
//
// The model is read-only after load, so a Classifier may be shared between
// goroutines without locking.

import (
	"fmt"
	"sort"

	"rtl-ml/utils"
)

// Classifier maps feature vectors to class labels. The zero value holds no
// model and every Predict fails with ErrModelNotLoaded.
type Classifier struct {
	model *Model
}

// NewClassifier wraps an already validated model.
func NewClassifier(model *Model) *Classifier {
	return &Classifier{model: model}
}

// NewClassifierFromFile loads the model at path.
func NewClassifierFromFile(path string) (*Classifier, error) {
	model, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	utils.GetLogger().Info("model loaded",
		"path", path,
		"family", model.Family(),
		"labels", len(model.Labels),
		"features", model.FeatureCount())
	return &Classifier{model: model}, nil
}

// Model returns the wrapped model, or nil.
func (c *Classifier) Model() *Model {
	if c == nil {
		return nil
	}
	return c.model
}

// Stats returns summary metadata about the loaded model.
func (c *Classifier) Stats() ModelStats {
	m := c.Model()
	if m == nil {
		return ModelStats{Labels: []string{}}
	}
	stats := ModelStats{
		Loaded:       true,
		Family:       m.Family(),
		FeatureCount: m.FeatureCount(),
		LabelCount:   len(m.Labels),
		Labels:       append([]string(nil), m.Labels...),
		TrainedAt:    m.TrainedAt,
	}
	if m.Summary != nil {
		acc := m.Summary.TestAccuracy
		stats.TestAccuracy = &acc
	}
	return stats
}

// Predict classifies one feature vector.
func (c *Classifier) Predict(features []float64) (Prediction, error) {
	m := c.Model()
	if m == nil {
		return Prediction{}, ErrModelNotLoaded
	}
	if len(features) != m.FeatureCount() {
		return Prediction{}, fmt.Errorf("%w: got %d features, model expects %d",
			ErrFeatureDimensionMismatch, len(features), m.FeatureCount())
	}

	scaled, err := m.Scaler.Transform(features)
	if err != nil {
		return Prediction{}, err
	}

	index, probs := m.Decision.Predict(scaled)
	prediction := Prediction{
		Label:  m.Labels[index],
		Index:  index,
		Family: m.Family(),
	}
	if probs != nil {
		confidence := probs[index]
		prediction.Confidence = &confidence
		prediction.Probabilities = make([]ClassProbability, len(probs))
		for i, p := range probs {
			prediction.Probabilities[i] = ClassProbability{Label: m.Labels[i], Probability: p}
		}
		// highest first, label order breaks ties for deterministic responses
		sort.SliceStable(prediction.Probabilities, func(i, j int) bool {
			return prediction.Probabilities[i].Probability > prediction.Probabilities[j].Probability
		})
	}
	return prediction, nil
}
