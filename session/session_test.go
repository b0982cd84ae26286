package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtl-ml/capture"
	"rtl-ml/dataset"
	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/synth"
)

const (
	testRate   = 1.024e6
	freqADSB   = 1090e6
	freqFM     = 98.7e6
	freqBroken = 1e6
	freqHang   = 2e6
)

// fakeSource synthesises a signal per frequency. freqBroken fails to tune and
// freqHang blocks until the context ends.
type fakeSource struct {
	freq  float64
	reads int
	seed  uint64
}

func (f *fakeSource) SetFrequency(ctx context.Context, hz float64) error {
	if hz == freqBroken {
		return capture.ErrCapture
	}
	f.freq = hz
	return ctx.Err()
}

func (f *fakeSource) Read(ctx context.Context, d time.Duration) (radio.Buffer, error) {
	if f.freq == freqHang {
		<-ctx.Done()
		return radio.Buffer{}, ctx.Err()
	}
	f.reads++
	f.seed++
	label := "noise"
	switch f.freq {
	case freqADSB:
		label = "ADS_B"
	case freqFM:
		label = "FM_broadcast"
	}
	return radio.NewBuffer(synth.ForLabel(label)(4096, testRate, f.seed), testRate)
}

func (f *fakeSource) SampleRate() float64 { return testRate }
func (f *fakeSource) Close() error        { return nil }

func testClassifier(t *testing.T) *radio.Classifier {
	t.Helper()
	labels := []string{"ADS_B", "FM_broadcast"}
	var rows [][]float64
	var y []int
	for class, label := range labels {
		for i := 0; i < 4; i++ {
			buf, err := radio.NewBuffer(synth.ForLabel(label)(4096, testRate, uint64(100+10*class+i)), testRate)
			require.NoError(t, err)
			features, err := radio.ExtractFeatureVector(buf)
			require.NoError(t, err)
			rows = append(rows, features)
			y = append(y, class)
		}
	}
	scaler, err := radio.FitFeatureScaler(rows)
	require.NoError(t, err)
	scaled, err := scaler.TransformAll(rows)
	require.NoError(t, err)
	knn, err := radio.FitKNN(scaled, y, len(labels), 3, radio.WeightUniform)
	require.NoError(t, err)
	model, err := radio.NewModel(labels, scaler, knn)
	require.NoError(t, err)
	return radio.NewClassifier(model)
}

type memorySink struct {
	saved   []models.Detection
	reports []radio.ValidationReport
}

func (m *memorySink) Save(_ context.Context, d models.Detection) error {
	m.saved = append(m.saved, d)
	return nil
}

func (m *memorySink) SaveReport(_ context.Context, r radio.ValidationReport) error {
	m.reports = append(m.reports, r)
	return nil
}

func (m *memorySink) Close() error { return nil }

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Pause = 0
	opts.Timeout = 200 * time.Millisecond
	opts.SamplesPerClass = 2
	return opts
}

func TestClassify(t *testing.T) {
	sink := &memorySink{}
	s := New(&fakeSource{}, testClassifier(t), fastOptions())
	s.Sink = sink
	s.Options.Corroborate = true

	result, err := s.Classify(context.Background(), models.Target{Name: "adsb", Frequency: freqADSB, Expected: "ADS_B"})
	require.NoError(t, err)

	assert.Equal(t, "ADS_B", result.Prediction.Label)
	assert.Len(t, result.Features, radio.FeatureCount)
	require.NotNil(t, result.Validation)
	assert.Equal(t, radio.CheckBurst, result.Validation.Check)

	require.Len(t, sink.saved, 1)
	assert.Equal(t, "adsb", sink.saved[0].Target)
	assert.Equal(t, "ADS_B", sink.saved[0].Label)
	assert.Contains(t, sink.saved[0].Features, "power_mean")
}

func TestClassifyWithoutModel(t *testing.T) {
	src := &fakeSource{}
	s := New(src, &radio.Classifier{}, fastOptions())

	_, err := s.Classify(context.Background(), models.Target{Frequency: freqADSB})
	assert.ErrorIs(t, err, radio.ErrModelNotLoaded)
	assert.Zero(t, src.reads)

	_, err = s.ClassifyAll(context.Background(), []models.Target{{Frequency: freqADSB}})
	assert.ErrorIs(t, err, radio.ErrModelNotLoaded)
}

func TestClassifyAllSkipsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(&fakeSource{}, testClassifier(t), fastOptions())
	s.Metrics = NewMetrics(reg)

	targets := []models.Target{
		{Name: "broken", Frequency: freqBroken},
		{Name: "adsb", Frequency: freqADSB, Expected: "ADS_B"},
		{Name: "hang", Frequency: freqHang},
		{Name: "fm", Frequency: freqFM, Expected: "FM_broadcast"},
	}
	batch, err := s.ClassifyAll(context.Background(), targets)
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, "adsb", batch.Results[0].Target.Name)
	assert.Equal(t, "fm", batch.Results[1].Target.Name)

	require.Len(t, batch.Failures, 2)
	assert.Equal(t, StageTune, batch.Failures[0].Stage)
	assert.ErrorIs(t, batch.Failures[0].Err, capture.ErrCapture)
	assert.Equal(t, StageTimeout, batch.Failures[1].Stage)
	assert.ErrorIs(t, batch.Failures[1].Err, context.DeadlineExceeded)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.failures.WithLabelValues(StageTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.failures.WithLabelValues(StageTune)))
	// the timed out read is counted once, as a timeout
	assert.Equal(t, 0.0, testutil.ToFloat64(s.Metrics.failures.WithLabelValues(StageRead)))

	var out bytes.Buffer
	PrintBatch(&out, batch)
	assert.Contains(t, out.String(), "FAILED (timeout)")
	assert.Contains(t, out.String(), "adsb")
}

func TestClassifyAllStopsOnCancel(t *testing.T) {
	s := New(&fakeSource{}, testClassifier(t), fastOptions())
	s.Options.Timeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch, err := s.ClassifyAll(ctx, []models.Target{{Frequency: freqADSB}, {Frequency: freqFM}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, batch.Failures, 1)
	assert.Empty(t, batch.Results)
}

func TestCaptureDataset(t *testing.T) {
	store, err := dataset.NewFileStore(t.TempDir())
	require.NoError(t, err)
	sink := &memorySink{}

	s := New(&fakeSource{}, nil, fastOptions())
	s.Sink = sink

	plan := []models.Target{
		{Name: "ADS_B", Frequency: freqADSB},
		{Name: "broken", Frequency: freqBroken},
		{Name: "FM_broadcast", Frequency: freqFM},
	}
	summary, err := s.CaptureDataset(context.Background(), plan, store)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"ADS_B": 2, "FM_broadcast": 2}, summary.Saved)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "broken", summary.Failures[0].Target.Name)
	assert.Equal(t, []string{"ADS_B", "FM_broadcast"}, summary.Report.Labels())
	assert.True(t, summary.Report["ADS_B"].Flags["has_bursts"])

	paths, err := store.List("ADS_B")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	report, err := store.LoadReport()
	require.NoError(t, err)
	assert.Len(t, report, 2)
	require.Len(t, sink.reports, 1)
}

type failingStore struct{}

func (failingStore) Save(context.Context, *dataset.Record) (string, error) {
	return "", errors.New("disk full")
}

func (failingStore) SaveReport(context.Context, radio.ValidationReport) error {
	return errors.New("disk full")
}

func TestCaptureDatasetSaveFailures(t *testing.T) {
	s := New(&fakeSource{}, nil, fastOptions())

	summary, err := s.CaptureDataset(context.Background(), []models.Target{{Name: "noise", Frequency: 145e6}}, failingStore{})
	assert.Error(t, err)
	assert.Len(t, summary.Failures, 2)
	assert.Equal(t, StageSave, summary.Failures[0].Stage)
	assert.Empty(t, summary.Saved)
}
