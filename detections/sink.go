package detections

import (
	"context"
	"log/slog"

	"github.com/mdobak/go-xerrors"

	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

// Sink receives classification results.
type Sink interface {
	Save(ctx context.Context, detection models.Detection) error
	Close() error
}

// ReportSink is implemented by sinks that also keep validation reports.
type ReportSink interface {
	SaveReport(ctx context.Context, report radio.ValidationReport) error
}

// Lister is implemented by sinks that can return what they stored.
type Lister interface {
	List(ctx context.Context) ([]models.Detection, error)
}

// Fanout forwards to every sink. A failing sink is logged and never stops
// the others or the caller.
type Fanout []Sink

func (f Fanout) Save(ctx context.Context, detection models.Detection) error {
	logger := utils.GetLogger()
	for _, sink := range f {
		if err := sink.Save(ctx, detection); err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to save detection",
				slog.String("sink", sinkName(sink)),
				slog.String("target", detection.Target),
				slog.Any("error", err))
		}
	}
	return nil
}

// SaveReport forwards the report to every sink that keeps reports.
func (f Fanout) SaveReport(ctx context.Context, report radio.ValidationReport) error {
	logger := utils.GetLogger()
	for _, sink := range f {
		rs, ok := sink.(ReportSink)
		if !ok {
			continue
		}
		if err := rs.SaveReport(ctx, report); err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to save validation report",
				slog.String("sink", sinkName(sink)),
				slog.Any("error", err))
		}
	}
	return nil
}

// List returns detections from the first sink able to list them.
func (f Fanout) List(ctx context.Context) ([]models.Detection, error) {
	for _, sink := range f {
		if l, ok := sink.(Lister); ok {
			return l.List(ctx)
		}
	}
	return []models.Detection{}, nil
}

func (f Fanout) Close() error {
	var first error
	for _, sink := range f {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func sinkName(s Sink) string {
	if named, ok := s.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}

func (s *FileStore) Name() string {
	return "file"
}
