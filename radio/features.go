package radio

// Feature Extraction Pipeline
//
// A capture of complex baseband samples is reduced to an 18-dimensional
// descriptor. The layout is fixed; models record it and refuse to load when
// it differs.
//
// Instantaneous Power (|s|^2):
//   - power_mean, power_std, power_max, power_min
//
// Spectrum (full-length DFT, power per bin):
//   - fft_mean, fft_std, fft_max
//   - fft_peak_idx: index of the strongest bin divided by N
//
// In-phase / Quadrature components:
//   - i_mean, i_std, q_mean, q_std
//
// Phase:
//   - phase_mean, phase_std: statistics of atan2(Q, I)
//   - phase_diff_mean, phase_diff_std: statistics of the first difference of
//     the unwrapped phase (instantaneous frequency in radians per sample)
//
// Spectral Shape:
//   - bandwidth_ratio: fraction of bins whose power exceeds 10% of the peak
//   - spectral_centroid: power-weighted mean of the normalised bin frequencies
//     (cycles per sample, in [-0.5, 0.5))
//
// All standard deviations are population statistics. Every ratio is guarded
// with Epsilon so silent or degenerate captures still yield finite values.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// FeatureCount is the length of every FeatureVector.
	FeatureCount = 18
	// Epsilon guards divisions against silent captures.
	Epsilon = 1e-10

	bandwidthPeakFraction = 0.1
)

// Canonical feature positions.
const (
	FeaturePowerMean = iota
	FeaturePowerStd
	FeaturePowerMax
	FeaturePowerMin
	FeatureFFTMean
	FeatureFFTStd
	FeatureFFTMax
	FeatureFFTPeakIdx
	FeatureIMean
	FeatureIStd
	FeatureQMean
	FeatureQStd
	FeaturePhaseMean
	FeaturePhaseStd
	FeaturePhaseDiffMean
	FeaturePhaseDiffStd
	FeatureBandwidthRatio
	FeatureSpectralCentroid
)

var featureNames = [FeatureCount]string{
	"power_mean",
	"power_std",
	"power_max",
	"power_min",
	"fft_mean",
	"fft_std",
	"fft_max",
	"fft_peak_idx",
	"i_mean",
	"i_std",
	"q_mean",
	"q_std",
	"phase_mean",
	"phase_std",
	"phase_diff_mean",
	"phase_diff_std",
	"bandwidth_ratio",
	"spectral_centroid",
}

// FeatureNames returns the canonical feature names in vector order.
func FeatureNames() []string {
	names := make([]string, FeatureCount)
	copy(names, featureNames[:])
	return names
}

// FeatureVector is a fixed-layout descriptor of one capture.
type FeatureVector []float64

// Named pairs every value with its feature name.
func (v FeatureVector) Named() map[string]float64 {
	named := make(map[string]float64, len(v))
	for i, value := range v {
		if i < FeatureCount {
			named[featureNames[i]] = value
		}
	}
	return named
}

// ExtractFeatureVector derives the 18-field descriptor for a capture. It is
// deterministic and does not modify buf.
func ExtractFeatureVector(buf Buffer) (FeatureVector, error) {
	n := len(buf.Samples)
	if n < MinSamples {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ErrInsufficientSamples, n, MinSamples)
	}

	features := make(FeatureVector, FeatureCount)

	power := instantaneousPower(buf.Samples)
	features[FeaturePowerMean], features[FeaturePowerStd] = stat.PopMeanStdDev(power, nil)
	features[FeaturePowerMax] = floats.Max(power)
	features[FeaturePowerMin] = floats.Min(power)

	spec := powerSpectrum(buf.Samples)
	features[FeatureFFTMean], features[FeatureFFTStd] = stat.PopMeanStdDev(spec, nil)
	features[FeatureFFTMax] = floats.Max(spec)
	features[FeatureFFTPeakIdx] = float64(floats.MaxIdx(spec)) / float64(n)

	inPhase := make([]float64, n)
	quadrature := make([]float64, n)
	phase := make([]float64, n)
	for i, s := range buf.Samples {
		inPhase[i] = real(s)
		quadrature[i] = imag(s)
		phase[i] = math.Atan2(imag(s), real(s))
	}
	features[FeatureIMean], features[FeatureIStd] = stat.PopMeanStdDev(inPhase, nil)
	features[FeatureQMean], features[FeatureQStd] = stat.PopMeanStdDev(quadrature, nil)
	features[FeaturePhaseMean], features[FeaturePhaseStd] = stat.PopMeanStdDev(phase, nil)

	unwrapped := unwrapPhase(phase)
	phaseDiff := make([]float64, n-1)
	for i := range phaseDiff {
		phaseDiff[i] = unwrapped[i+1] - unwrapped[i]
	}
	features[FeaturePhaseDiffMean], features[FeaturePhaseDiffStd] = stat.PopMeanStdDev(phaseDiff, nil)

	features[FeatureBandwidthRatio] = bandwidthRatio(spec)
	features[FeatureSpectralCentroid] = spectralCentroid(spec)

	return features, nil
}

// FeatureExtractor is the stateless extractor handed to sessions and tools.
type FeatureExtractor struct{}

func (FeatureExtractor) Extract(buf Buffer) (FeatureVector, error) {
	return ExtractFeatureVector(buf)
}

// Names returns the layout the extractor produces.
func (FeatureExtractor) Names() []string {
	return FeatureNames()
}

// bandwidthRatio counts bins strictly above a fraction of the peak power.
// A silent spectrum has no such bins and yields zero.
func bandwidthRatio(spec []float64) float64 {
	if len(spec) == 0 {
		return 0
	}
	threshold := bandwidthPeakFraction * floats.Max(spec)
	count := 0
	for _, p := range spec {
		if p > threshold {
			count++
		}
	}
	return float64(count) / float64(len(spec))
}

func spectralCentroid(spec []float64) float64 {
	freqs := fftFreq(len(spec), 1)
	return floats.Dot(freqs, spec) / (floats.Sum(spec) + Epsilon)
}
