package models

import (
	"time"

	"rtl-ml/radio"
)

// Target is one frequency the session tunes to and classifies.
type Target struct {
	Name      string  `json:"name" yaml:"name"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	// Expected is the label an operator expects here, used for batch summaries only.
	Expected string `json:"expected,omitempty" yaml:"expected"`
}

// Label is the class a capture plan entry records under: Expected when set,
// otherwise Name.
func (t Target) Label() string {
	if t.Expected != "" {
		return t.Expected
	}
	return t.Name
}

// Detection is one classification result as it is stored and published.
type Detection struct {
	ID          string                   `json:"id" bson:"_id"`
	Timestamp   time.Time                `json:"timestamp" bson:"timestamp"`
	Target      string                   `json:"target" bson:"target"`
	Frequency   float64                  `json:"frequency" bson:"frequency"`
	Label       string                   `json:"label" bson:"label"`
	Family      string                   `json:"family" bson:"family"`
	Confidence  *float64                 `json:"confidence,omitempty" bson:"confidence,omitempty"`
	LatencyMs   float64                  `json:"latencyMs" bson:"latency_ms"`
	Features    map[string]float64       `json:"features,omitempty" bson:"features,omitempty"`
	Validation  *radio.ValidationRecord  `json:"validation,omitempty" bson:"-"`
	Expected    string                   `json:"expected,omitempty" bson:"expected,omitempty"`
	Predictions []radio.ClassProbability `json:"predictions,omitempty" bson:"predictions,omitempty"`
}

// ClassifyRequest is the socket payload asking for a one-shot classification.
type ClassifyRequest struct {
	Name      string  `json:"name"`
	Frequency float64 `json:"frequency"`
}
