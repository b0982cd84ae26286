package radio

import (
	"fmt"
	"math"
)

// MinSamples is the shortest buffer the extractor accepts; phase differencing
// needs at least two samples.
const MinSamples = 2

// Buffer is a contiguous block of complex baseband samples captured at a fixed
// tuner frequency. The pipeline never mutates Samples.
type Buffer struct {
	Samples    []complex128
	SampleRate float64
}

// NewBuffer validates and wraps samples captured at sampleRate.
func NewBuffer(samples []complex128, sampleRate float64) (Buffer, error) {
	if len(samples) < MinSamples {
		return Buffer{}, fmt.Errorf("%w: got %d, need at least %d", ErrInsufficientSamples, len(samples), MinSamples)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return Buffer{}, fmt.Errorf("invalid sample rate: %v", sampleRate)
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// BufferFromCU8 converts interleaved unsigned 8-bit IQ pairs, the native
// rtl_sdr/rtl_tcp wire format, into a Buffer. A trailing odd byte is dropped.
func BufferFromCU8(raw []byte, sampleRate float64) (Buffer, error) {
	samples := make([]complex128, len(raw)/2)
	for i := range samples {
		re := (float64(raw[2*i]) - 127.5) / 127.5
		im := (float64(raw[2*i+1]) - 127.5) / 127.5
		samples[i] = complex(re, im)
	}
	return NewBuffer(samples, sampleRate)
}

// Len returns the number of complex samples.
func (b Buffer) Len() int {
	return len(b.Samples)
}

// Duration returns the capture length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / b.SampleRate
}
