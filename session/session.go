// Package session sequences the tuner, the feature extractor and the
// classifier. Captures are strictly sequential since there is one tuner.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mdobak/go-xerrors"

	"rtl-ml/capture"
	"rtl-ml/dataset"
	"rtl-ml/detections"
	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

// Pipeline stages used in failures and metrics.
const (
	StageTune     = "tune"
	StageRead     = "read"
	StageExtract  = "extract"
	StagePredict  = "predict"
	StageTimeout  = "timeout"
	StageValidate = "validate"
	StageSave     = "save"
)

// Options controls capture lengths and pacing.
type Options struct {
	Duration           time.Duration `yaml:"duration"`
	ValidationDuration time.Duration `yaml:"validation_duration"`
	Pause              time.Duration `yaml:"pause"`
	Timeout            time.Duration `yaml:"timeout"`
	SamplesPerClass    int           `yaml:"samples_per_class"`
	Corroborate        bool          `yaml:"corroborate"`
}

func DefaultOptions() Options {
	return Options{
		Duration:           500 * time.Millisecond,
		ValidationDuration: time.Second,
		Pause:              200 * time.Millisecond,
		Timeout:            10 * time.Second,
		SamplesPerClass:    30,
	}
}

// Session owns the tuner for its lifetime. It is not safe for concurrent use.
type Session struct {
	Source     capture.Source
	Classifier *radio.Classifier
	Sink       detections.Sink
	Metrics    *Metrics
	Options    Options

	extractor radio.FeatureExtractor
}

func New(source capture.Source, classifier *radio.Classifier, opts Options) *Session {
	return &Session{Source: source, Classifier: classifier, Options: opts}
}

// Result is one completed classification.
type Result struct {
	Target     models.Target           `json:"target"`
	Prediction radio.Prediction        `json:"prediction"`
	Features   radio.FeatureVector     `json:"features"`
	Validation *radio.ValidationRecord `json:"validation,omitempty"`
	Latency    time.Duration           `json:"latency"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Detection converts the result to its stored form.
func (r Result) Detection() models.Detection {
	return models.Detection{
		ID:          utils.NewRecordID(),
		Timestamp:   r.Timestamp,
		Target:      r.Target.Name,
		Frequency:   r.Target.Frequency,
		Label:       r.Prediction.Label,
		Family:      r.Prediction.Family,
		Confidence:  r.Prediction.Confidence,
		LatencyMs:   float64(r.Latency.Microseconds()) / 1000,
		Features:    r.Features.Named(),
		Validation:  r.Validation,
		Expected:    r.Target.Expected,
		Predictions: r.Prediction.Probabilities,
	}
}

// Failure records a target that could not be processed.
type Failure struct {
	Target models.Target `json:"target"`
	Stage  string        `json:"stage"`
	Err    error         `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s (%.0f Hz) failed at %s: %v", f.Target.Name, f.Target.Frequency, f.Stage, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Classify tunes to target, captures, extracts and predicts. Any error
// aborts this target and is returned as a *Failure.
func (s *Session) Classify(ctx context.Context, target models.Target) (Result, error) {
	if s.Classifier.Model() == nil {
		return Result{}, radio.ErrModelNotLoaded
	}
	started := time.Now()

	if err := s.Source.SetFrequency(ctx, target.Frequency); err != nil {
		return Result{}, s.fail(ctx, target, StageTune, err)
	}
	buf, err := s.Source.Read(ctx, s.Options.Duration)
	if err != nil {
		return Result{}, s.fail(ctx, target, StageRead, err)
	}
	features, err := s.extractor.Extract(buf)
	if err != nil {
		return Result{}, s.fail(ctx, target, StageExtract, err)
	}
	prediction, err := s.Classifier.Predict(features)
	if err != nil {
		return Result{}, s.fail(ctx, target, StagePredict, err)
	}

	result := Result{
		Target:     target,
		Prediction: prediction,
		Features:   features,
		Latency:    time.Since(started),
		Timestamp:  time.Now().UTC(),
	}
	if s.Options.Corroborate {
		record := radio.Validate(prediction.Label, buf)
		result.Validation = &record
	}

	s.Metrics.observeClassification(prediction.Label, result.Latency)
	s.save(ctx, result)
	return result, nil
}

// Batch collects the outcome of ClassifyAll.
type Batch struct {
	Results  []Result  `json:"results"`
	Failures []Failure `json:"failures"`
}

// ClassifyAll classifies every target in order. Each target gets its own
// Options.Timeout; a failing target is recorded and the scan continues.
// Only a missing model or cancellation of ctx stops the batch early.
func (s *Session) ClassifyAll(ctx context.Context, targets []models.Target) (Batch, error) {
	var batch Batch
	if s.Classifier.Model() == nil {
		return batch, radio.ErrModelNotLoaded
	}

	for i, target := range targets {
		if i > 0 {
			if err := pause(ctx, s.Options.Pause); err != nil {
				return batch, err
			}
		}

		result, err := s.classifyWithTimeout(ctx, target)
		if err == nil {
			batch.Results = append(batch.Results, result)
			continue
		}

		var failure *Failure
		if !errors.As(err, &failure) {
			failure = &Failure{Target: target, Stage: StagePredict, Err: err}
		}
		batch.Failures = append(batch.Failures, *failure)
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}
	}
	return batch, nil
}

func (s *Session) classifyWithTimeout(ctx context.Context, target models.Target) (Result, error) {
	if s.Options.Timeout <= 0 {
		return s.Classify(ctx, target)
	}
	tctx, cancel := context.WithTimeout(ctx, s.Options.Timeout)
	defer cancel()

	result, err := s.Classify(tctx, target)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return Result{}, &Failure{
			Target: target,
			Stage:  StageTimeout,
			Err:    fmt.Errorf("no result within %s: %w", s.Options.Timeout, context.DeadlineExceeded),
		}
	}
	return result, err
}

// DatasetStore receives captured records and the validation report.
type DatasetStore interface {
	Save(ctx context.Context, rec *dataset.Record) (string, error)
	SaveReport(ctx context.Context, report radio.ValidationReport) error
}

// DatasetSummary describes a finished capture run.
type DatasetSummary struct {
	Saved    map[string]int         `json:"saved"`
	Report   radio.ValidationReport `json:"report"`
	Failures []Failure              `json:"failures"`
}

// CaptureDataset records Options.SamplesPerClass captures of every plan
// entry, then one longer capture per entry for the validation report.
// Individual capture failures are logged and skipped.
func (s *Session) CaptureDataset(ctx context.Context, plan []models.Target, store DatasetStore) (DatasetSummary, error) {
	logger := utils.GetLogger()
	summary := DatasetSummary{Saved: map[string]int{}, Report: radio.ValidationReport{}}

	for _, signal := range plan {
		label := signal.Label()
		logger.InfoContext(ctx, "capturing class",
			slog.String("label", label),
			slog.Float64("frequency", signal.Frequency),
			slog.Int("samples", s.Options.SamplesPerClass))

		if err := s.Source.SetFrequency(ctx, signal.Frequency); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failures = append(summary.Failures, *s.fail(ctx, signal, StageTune, err))
			continue
		}

		for i := 0; i < s.Options.SamplesPerClass; i++ {
			if i > 0 {
				if err := pause(ctx, s.Options.Pause); err != nil {
					return summary, err
				}
			}
			if failure := s.captureRecord(ctx, signal, store); failure != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				summary.Failures = append(summary.Failures, *failure)
				continue
			}
			summary.Saved[label]++
		}

		buf, err := s.Source.Read(ctx, s.Options.ValidationDuration)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failures = append(summary.Failures, *s.fail(ctx, signal, StageValidate, err))
			continue
		}
		record := radio.Validate(label, buf)
		summary.Report[label] = record
		s.Metrics.observeValidation(label, record.Passed())
		logger.InfoContext(ctx, "validated class",
			slog.String("label", label),
			slog.String("check", record.Check),
			slog.Bool("passed", record.Passed()))
	}

	if err := store.SaveReport(ctx, summary.Report); err != nil {
		return summary, fmt.Errorf("failed to save validation report: %w", err)
	}
	if rs, ok := s.Sink.(detections.ReportSink); ok {
		if err := rs.SaveReport(ctx, summary.Report); err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to forward validation report", slog.Any("error", err))
		}
	}
	return summary, nil
}

func (s *Session) captureRecord(ctx context.Context, signal models.Target, store DatasetStore) *Failure {
	buf, err := s.Source.Read(ctx, s.Options.Duration)
	if err != nil {
		return s.fail(ctx, signal, StageRead, err)
	}
	rec := &dataset.Record{
		Label:      signal.Label(),
		CenterFreq: signal.Frequency,
		SampleRate: buf.SampleRate,
		Timestamp:  time.Now().UTC(),
		Duration:   buf.Duration(),
		Samples:    buf.Samples,
	}
	if _, err := store.Save(ctx, rec); err != nil {
		return s.fail(ctx, signal, StageSave, err)
	}
	s.Metrics.observeRecord(rec.Label)
	return nil
}

func (s *Session) save(ctx context.Context, result Result) {
	if s.Sink == nil {
		return
	}
	if err := s.Sink.Save(ctx, result.Detection()); err != nil {
		err := xerrors.New(err)
		utils.GetLogger().ErrorContext(ctx, "failed to save detection",
			slog.String("target", result.Target.Name),
			slog.Any("error", err))
	}
}

func (s *Session) fail(ctx context.Context, target models.Target, stage string, err error) *Failure {
	// an expired deadline is the cause whatever stage it interrupted
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.Metrics.observeFailure(StageTimeout)
	} else {
		s.Metrics.observeFailure(stage)
	}
	failure := &Failure{Target: target, Stage: stage, Err: err}
	logErr := xerrors.New(err)
	utils.GetLogger().WarnContext(ctx, "target failed",
		slog.String("target", target.Name),
		slog.Float64("frequency", target.Frequency),
		slog.String("stage", stage),
		slog.Any("error", logErr))
	return failure
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PrintBatch writes a per-target summary with expected-label match marks.
func PrintBatch(w io.Writer, batch Batch) {
	fmt.Fprintf(w, "%-20s %12s  %-16s %-10s %s\n", "Target", "Freq (MHz)", "Predicted", "Conf", "Match")
	for _, r := range batch.Results {
		conf := "-"
		if r.Prediction.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *r.Prediction.Confidence)
		}
		match := ""
		if r.Target.Expected != "" {
			match = "✗"
			if r.Target.Expected == r.Prediction.Label {
				match = "✓"
			}
		}
		fmt.Fprintf(w, "%-20s %12.3f  %-16s %-10s %s\n",
			r.Target.Name, r.Target.Frequency/1e6, r.Prediction.Label, conf, match)
	}
	for _, f := range batch.Failures {
		fmt.Fprintf(w, "%-20s %12.3f  FAILED (%s): %v\n", f.Target.Name, f.Target.Frequency/1e6, f.Stage, f.Err)
	}
}
