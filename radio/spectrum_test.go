package radio

import (
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtl-ml/synth"
)

func naiveDFT(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for j, v := range x {
			angle := -2 * math.Pi * float64((k*j)%n) / float64(n)
			sum += v * complex(math.Cos(angle), math.Sin(angle))
		}
		out[k] = sum
	}
	return out
}

func TestSpectrumMatchesDFTForAnyLength(t *testing.T) {
	// 1009 and 2*509 take the chirp-z path, 1000 and 59 the direct one
	for _, n := range []int{59, 1000, 1009, 1018} {
		x := synth.FM(n, 1.024e6, 75e3, 0.1, uint64(n))
		got := spectrum(x)
		want := naiveDFT(x)
		require.Len(t, got, n)
		for k := range want {
			require.InDelta(t, 0, cmplx.Abs(got[k]-want[k]), 1e-8*(1+cmplx.Abs(want[k])), "n=%d bin %d", n, k)
		}
	}
}

func TestLargestPrimeFactor(t *testing.T) {
	assert.Equal(t, 2, largestPrimeFactor(65536))
	assert.Equal(t, 65537, largestPrimeFactor(65537))
	assert.Equal(t, 7, largestPrimeFactor(2*3*5*7*7))
	assert.Equal(t, 509, largestPrimeFactor(1018))
}

func TestExtractFeatureVectorPrimeLengthIsFast(t *testing.T) {
	for _, n := range []int{65537, 262147} {
		buf := mustBuffer(t, synth.Noise(n, 0.1, 3), 1.024e6)
		started := time.Now()
		features, err := ExtractFeatureVector(buf)
		elapsed := time.Since(started)
		require.NoError(t, err)
		require.Len(t, features, FeatureCount)
		assert.Less(t, elapsed, 5*time.Second, "n=%d took %s", n, elapsed)
	}
}

func TestPrimeLengthToneLandsInItsBin(t *testing.T) {
	const n = 4099 // prime
	const bin = 37
	samples := make([]complex128, n)
	for i := range samples {
		samples[i] = cmplx.Exp(complex(0, 2*math.Pi*bin*float64(i)/n))
	}
	features, err := ExtractFeatureVector(mustBuffer(t, samples, 1.024e6))
	require.NoError(t, err)
	assert.InDelta(t, float64(bin)/n, features[FeatureFFTPeakIdx], 1e-12)
	assert.InDelta(t, 1.0/n, features[FeatureBandwidthRatio], 1e-12)
}
