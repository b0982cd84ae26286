package capture

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"rtl-ml/dataset"
	"rtl-ml/radio"
)

// RecordSource replays stored dataset records as if they were live. Tuning
// selects the records whose centre frequency is nearest the requested one;
// reads cycle through them.
type RecordSource struct {
	mu      sync.Mutex
	rate    float64
	records []dataset.Record
	current []dataset.Record
	next    int
}

// NewRecordSource builds a replay source. All records must share one sample rate.
func NewRecordSource(records []dataset.Record) (*RecordSource, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records to replay", ErrCapture)
	}
	rate := records[0].SampleRate
	for _, rec := range records[1:] {
		if rec.SampleRate != rate {
			return nil, fmt.Errorf("%w: mixed sample rates %.0f and %.0f", ErrCapture, rate, rec.SampleRate)
		}
	}
	sorted := append([]dataset.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	return &RecordSource{rate: rate, records: sorted}, nil
}

// LoadRecordSource replays every record in a dataset store.
func LoadRecordSource(ctx context.Context, store *dataset.FileStore) (*RecordSource, error) {
	var records []dataset.Record
	err := store.Walk(ctx, func(_ string, rec dataset.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewRecordSource(records)
}

func (s *RecordSource) SampleRate() float64 {
	return s.rate
}

func (s *RecordSource) SetFrequency(ctx context.Context, hz float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	best := math.Inf(1)
	var matched []dataset.Record
	for _, rec := range s.records {
		d := math.Abs(rec.CenterFreq - hz)
		switch {
		case d < best:
			best = d
			matched = []dataset.Record{rec}
		case d == best:
			matched = append(matched, rec)
		}
	}
	s.current = matched
	s.next = 0
	return nil
}

// Read returns the leading duration of the next record at the tuned
// frequency, or the whole record when it is shorter.
func (s *RecordSource) Read(ctx context.Context, duration time.Duration) (radio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return radio.Buffer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.current) == 0 {
		return radio.Buffer{}, fmt.Errorf("%w: source is not tuned", ErrCapture)
	}
	rec := s.current[s.next%len(s.current)]
	s.next++

	samples := rec.Samples
	if n := SampleCount(s.rate, duration); n < len(samples) {
		samples = samples[:n]
	}
	buf, err := radio.NewBuffer(append([]complex128(nil), samples...), s.rate)
	if err != nil {
		return radio.Buffer{}, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return buf, nil
}

func (s *RecordSource) Close() error {
	return nil
}
