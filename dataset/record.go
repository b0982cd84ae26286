package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"

	"rtl-ml/radio"
)

// SampleEncoding names the on-disk payload format: interleaved little-endian
// float32 I/Q pairs compressed with zstd.
const SampleEncoding = "cf32le+zstd"

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Record is one labelled capture kept for training.
type Record struct {
	ID         string       `json:"id"`
	Label      string       `json:"label"`
	CenterFreq float64      `json:"center_freq"`
	SampleRate float64      `json:"sample_rate"`
	Timestamp  time.Time    `json:"timestamp"`
	Duration   float64      `json:"duration"`
	Samples    []complex128 `json:"-"`
}

// Buffer wraps the record's samples for the extractor and validator.
func (r Record) Buffer() (radio.Buffer, error) {
	return radio.NewBuffer(r.Samples, r.SampleRate)
}

// EncodeSamples packs samples as float32 pairs and compresses them.
func EncodeSamples(samples []complex128) []byte {
	raw := make([]byte, 8*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[8*i:], math.Float32bits(float32(real(s))))
		binary.LittleEndian.PutUint32(raw[8*i+4:], math.Float32bits(float32(imag(s))))
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

// DecodeSamples reverses EncodeSamples.
func DecodeSamples(payload []byte) ([]complex128, error) {
	raw, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress samples: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, errors.New("sample payload is not a whole number of IQ pairs")
	}
	samples := make([]complex128, len(raw)/8)
	for i := range samples {
		re := math.Float32frombits(binary.LittleEndian.Uint32(raw[8*i:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(raw[8*i+4:]))
		samples[i] = complex(float64(re), float64(im))
	}
	return samples, nil
}
