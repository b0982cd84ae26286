package radio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// ModelFormatVersion is written into every persisted model.
const ModelFormatVersion = 1

// Model is an immutable trained bundle: the label table, the scaler fit on
// the training split and the decision function. It is validated as a whole
// when built or loaded and never mutated afterwards.
type Model struct {
	FeatureNames []string
	Labels       []string
	Scaler       *FeatureScaler
	Decision     Decision
	TrainedAt    time.Time
	Summary      *TrainingSummary
}

// NewModel assembles and validates a bundle using the canonical feature layout.
func NewModel(labels []string, scaler *FeatureScaler, decision Decision) (*Model, error) {
	m := &Model{
		FeatureNames: FeatureNames(),
		Labels:       append([]string(nil), labels...),
		Scaler:       scaler,
		Decision:     decision,
		TrainedAt:    time.Now().UTC(),
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Family names the decision function of the bundle.
func (m *Model) Family() string {
	if m.Decision == nil {
		return ""
	}
	return m.Decision.Family()
}

// FeatureCount is the vector length the model accepts.
func (m *Model) FeatureCount() int {
	return len(m.FeatureNames)
}

func (m *Model) validate() error {
	if !slices.Equal(m.FeatureNames, featureNames[:]) {
		return fmt.Errorf("feature layout %v does not match extractor layout %v", m.FeatureNames, featureNames)
	}
	if len(m.Labels) == 0 {
		return errors.New("label table is empty")
	}
	seen := make(map[string]bool, len(m.Labels))
	for _, label := range m.Labels {
		if label == "" {
			return errors.New("label table contains an empty label")
		}
		if seen[label] {
			return fmt.Errorf("label %q appears more than once", label)
		}
		seen[label] = true
	}
	if m.Scaler == nil {
		return errors.New("model has no scaler")
	}
	if err := m.Scaler.validate(); err != nil {
		return err
	}
	if m.Scaler.Dim() != m.FeatureCount() {
		return fmt.Errorf("scaler has %d dimensions, expected %d", m.Scaler.Dim(), m.FeatureCount())
	}
	if m.Decision == nil {
		return errors.New("model has no decision function")
	}
	return m.Decision.validate(m.FeatureCount(), len(m.Labels))
}

type modelFile struct {
	FormatVersion int              `json:"format_version"`
	Family        string           `json:"family"`
	FeatureNames  []string         `json:"feature_names"`
	Labels        []string         `json:"labels"`
	Scaler        *FeatureScaler   `json:"scaler"`
	RandomForest  *RandomForest    `json:"random_forest,omitempty"`
	SVM           *KernelSVM       `json:"svm,omitempty"`
	KNN           *KNN             `json:"knn,omitempty"`
	TrainedAt     time.Time        `json:"trained_at"`
	Summary       *TrainingSummary `json:"summary,omitempty"`
}

// MarshalJSON encodes the bundle with the decision function under its family key.
func (m *Model) MarshalJSON() ([]byte, error) {
	file := modelFile{
		FormatVersion: ModelFormatVersion,
		Family:        m.Family(),
		FeatureNames:  m.FeatureNames,
		Labels:        m.Labels,
		Scaler:        m.Scaler,
		TrainedAt:     m.TrainedAt,
		Summary:       m.Summary,
	}
	switch d := m.Decision.(type) {
	case *RandomForest:
		file.RandomForest = d
	case *KernelSVM:
		file.SVM = d
	case *KNN:
		file.KNN = d
	default:
		return nil, fmt.Errorf("unsupported decision function %T", m.Decision)
	}
	return json.Marshal(file)
}

// DecodeModel parses and validates a persisted bundle. Every failure wraps ErrModelLoad.
func DecodeModel(data []byte) (*Model, error) {
	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: unable to parse model: %v", ErrModelLoad, err)
	}
	if file.FormatVersion != ModelFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrModelLoad, file.FormatVersion)
	}

	var decision Decision
	switch file.Family {
	case FamilyRandomForest:
		if file.RandomForest != nil {
			decision = file.RandomForest
		}
	case FamilySVM:
		if file.SVM != nil {
			decision = file.SVM
		}
	case FamilyKNN:
		if file.KNN != nil {
			decision = file.KNN
		}
	default:
		return nil, fmt.Errorf("%w: unknown model family %q", ErrModelLoad, file.Family)
	}
	if decision == nil {
		return nil, fmt.Errorf("%w: family %q has no parameters", ErrModelLoad, file.Family)
	}

	m := &Model{
		FeatureNames: file.FeatureNames,
		Labels:       file.Labels,
		Scaler:       file.Scaler,
		Decision:     decision,
		TrainedAt:    file.TrainedAt,
		Summary:      file.Summary,
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return m, nil
}

// LoadModel reads a bundle from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return DecodeModel(data)
}

// SaveModel writes the bundle to path. The file is written next to its final
// location and renamed into place so readers never observe a partial model.
func SaveModel(path string, m *Model) error {
	if err := m.validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
