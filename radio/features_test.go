package radio

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtl-ml/synth"
)

func TestExtractFeatureVectorLayout(t *testing.T) {
	t.Parallel()

	buf := mustBuffer(t, synth.Noise(2048, 0.3, 7), 1.024e6)
	features, err := ExtractFeatureVector(buf)
	require.NoError(t, err)
	require.Len(t, features, FeatureCount)
	require.Len(t, FeatureNames(), FeatureCount)

	for i, v := range features {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "feature %s is not finite: %v", featureNames[i], v)
	}
	assert.GreaterOrEqual(t, features[FeatureFFTPeakIdx], 0.0)
	assert.Less(t, features[FeatureFFTPeakIdx], 1.0)
	assert.Contains(t, features.Named(), "spectral_centroid")
}

func TestExtractFeatureVectorIsDeterministicAndPure(t *testing.T) {
	t.Parallel()

	samples := synth.FM(4096, 1.024e6, 75e3, 0.05, 3)
	original := append([]complex128(nil), samples...)
	buf := mustBuffer(t, samples, 1.024e6)

	first, err := ExtractFeatureVector(buf)
	require.NoError(t, err)
	second, err := ExtractFeatureVector(buf)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, original, samples, "extraction must not modify the buffer")
}

func TestExtractFeatureVectorPureTone(t *testing.T) {
	t.Parallel()

	const (
		n    = 1024
		rate = 1024.0
		bin  = 64
	)
	buf := mustBuffer(t, synth.Tone(n, rate, bin, 1, 0, 1), rate)
	features, err := ExtractFeatureVector(buf)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, features[FeaturePowerMean], 1e-9)
	assert.InDelta(t, 0.0, features[FeaturePowerStd], 1e-9)
	assert.InDelta(t, float64(bin)/n, features[FeatureFFTPeakIdx], 1e-12)
	assert.InDelta(t, 2*math.Pi*bin/n, features[FeaturePhaseDiffMean], 1e-9)
	assert.InDelta(t, 0.0, features[FeaturePhaseDiffStd], 1e-9)
	assert.InDelta(t, 1.0/n, features[FeatureBandwidthRatio], 1e-12)
	assert.InDelta(t, float64(bin)/n, features[FeatureSpectralCentroid], 1e-6)
}

func TestExtractFeatureVectorNegativeFrequencyTone(t *testing.T) {
	t.Parallel()

	buf := mustBuffer(t, synth.Tone(1024, 1024, -64, 1, 0, 1), 1024)
	features, err := ExtractFeatureVector(buf)
	require.NoError(t, err)

	assert.InDelta(t, 960.0/1024, features[FeatureFFTPeakIdx], 1e-12)
	assert.InDelta(t, -64.0/1024, features[FeatureSpectralCentroid], 1e-6)
	assert.InDelta(t, -2*math.Pi*64/1024, features[FeaturePhaseDiffMean], 1e-9)
}

func TestExtractFeatureVectorSilentBuffer(t *testing.T) {
	t.Parallel()

	buf := mustBuffer(t, make([]complex128, 512), 1.024e6)
	features, err := ExtractFeatureVector(buf)
	require.NoError(t, err)

	for i, v := range features {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "feature %s is not finite", featureNames[i])
	}
	assert.Zero(t, features[FeaturePowerMax])
	assert.Zero(t, features[FeatureBandwidthRatio])
	assert.Zero(t, features[FeatureSpectralCentroid])
}

func TestExtractFeatureVectorInsufficientSamples(t *testing.T) {
	t.Parallel()

	_, err := ExtractFeatureVector(Buffer{Samples: []complex128{1}, SampleRate: 1e6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientSamples))

	_, err = NewBuffer(nil, 1e6)
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestUnwrapPhaseRemovesJumps(t *testing.T) {
	t.Parallel()

	unwrapped := unwrapPhase([]float64{0, 3, -3, 3})
	for i := 1; i < len(unwrapped); i++ {
		assert.Less(t, math.Abs(unwrapped[i]-unwrapped[i-1]), math.Pi, "jump at %d", i)
	}
	assert.InDelta(t, 2*math.Pi-3, unwrapped[2], 1e-12)
}

func TestBufferFromCU8(t *testing.T) {
	t.Parallel()

	buf, err := BufferFromCU8([]byte{255, 0, 127, 128, 9}, 2.4e6)
	require.NoError(t, err)
	require.Equal(t, 2, buf.Len())
	assert.InDelta(t, 1.0, real(buf.Samples[0]), 1e-12)
	assert.InDelta(t, -1.0, imag(buf.Samples[0]), 1e-12)
	assert.InDelta(t, 2/2.4e6, buf.Duration(), 1e-15)
}

func mustBuffer(t *testing.T, samples []complex128, rate float64) Buffer {
	t.Helper()
	buf, err := NewBuffer(samples, rate)
	require.NoError(t, err)
	return buf
}
