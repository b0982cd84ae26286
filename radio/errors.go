package radio

import "errors"

var (
	// ErrInsufficientSamples is returned when a buffer is too short to describe.
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrFeatureDimensionMismatch is returned when a feature vector does not
	// match the layout the model was trained on.
	ErrFeatureDimensionMismatch = errors.New("feature dimension mismatch")
	// ErrModelNotLoaded is returned by a Classifier that holds no model.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrModelLoad wraps every failure to read, decode or validate a model file.
	ErrModelLoad = errors.New("model load error")
	// ErrUnknownCheck is returned for a validation check name that does not exist.
	ErrUnknownCheck = errors.New("unknown validation check")
	// ErrInsufficientTrainingData is returned when a training set cannot be split.
	ErrInsufficientTrainingData = errors.New("insufficient training data")
)
