package radio

import "time"

// ClassProbability is the probability the model assigns to one class.
type ClassProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Prediction is the classifier's answer for one feature vector. Confidence is
// nil when the model family has no probability estimates.
type Prediction struct {
	Label         string             `json:"label"`
	Index         int                `json:"index"`
	Family        string             `json:"family"`
	Confidence    *float64           `json:"confidence,omitempty"`
	Probabilities []ClassProbability `json:"probabilities,omitempty"`
}

// ModelStats exposes metadata about the loaded model.
type ModelStats struct {
	Loaded       bool      `json:"loaded"`
	Family       string    `json:"family,omitempty"`
	FeatureCount int       `json:"featureCount"`
	LabelCount   int       `json:"labelCount"`
	Labels       []string  `json:"labels"`
	TrainedAt    time.Time `json:"trainedAt,omitempty"`
	TestAccuracy *float64  `json:"testAccuracy,omitempty"`
}
