package dataset

import (
	"context"
	"fmt"

	"rtl-ml/radio"
	"rtl-ml/utils"
)

// IngestStats tracks how many records became training examples.
type IngestStats struct {
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	LabelCounts map[string]int `json:"labelCounts"`
}

// ProgressFunc is called once per readable record; err is the extraction
// error, if any.
type ProgressFunc func(path string, rec Record, err error)

// LoadExamples extracts a feature vector from every record in the store.
// Records that fail extraction are logged and counted, not fatal.
func LoadExamples(ctx context.Context, store *FileStore) ([]radio.Example, IngestStats, error) {
	return LoadExamplesWithProgress(ctx, store, nil)
}

// LoadExamplesWithProgress is LoadExamples with a per-record callback.
func LoadExamplesWithProgress(ctx context.Context, store *FileStore, progress ProgressFunc) ([]radio.Example, IngestStats, error) {
	logger := utils.GetLogger()
	stats := IngestStats{LabelCounts: map[string]int{}}
	var examples []radio.Example

	err := store.Walk(ctx, func(path string, rec Record) error {
		stats.Total++
		example, err := BuildExample(rec, path)
		if progress != nil {
			progress(path, rec, err)
		}
		if err != nil {
			stats.Failed++
			logger.WarnContext(ctx, "failed to extract features", "path", path, "error", err)
			return nil
		}
		stats.Succeeded++
		stats.LabelCounts[rec.Label]++
		examples = append(examples, example)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return examples, stats, nil
}

// BuildExample turns one record into a labelled feature vector.
func BuildExample(rec Record, source string) (radio.Example, error) {
	buf, err := rec.Buffer()
	if err != nil {
		return radio.Example{}, fmt.Errorf("invalid capture: %w", err)
	}
	features, err := radio.ExtractFeatureVector(buf)
	if err != nil {
		return radio.Example{}, fmt.Errorf("failed to extract features: %w", err)
	}
	return radio.Example{Features: features, Label: rec.Label, Source: source}, nil
}
