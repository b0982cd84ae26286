// Package synth generates deterministic baseband IQ captures that resemble
// the signal classes the classifier is trained on. The generators feed tests,
// the synthetic dataset tool and offline demos; they are not models of the
// real modulations beyond the features the extractor and validator look at.
package synth

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
)

// Generator produces n samples at sampleRate from a seed.
type Generator func(n int, sampleRate float64, seed uint64) []complex128

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}

func addNoise(samples []complex128, sigma float64, rng *rand.Rand) {
	for i := range samples {
		samples[i] += complex(sigma*rng.NormFloat64(), sigma*rng.NormFloat64())
	}
}

// Noise is complex white Gaussian noise with per-component deviation sigma.
func Noise(n int, sigma float64, seed uint64) []complex128 {
	samples := make([]complex128, n)
	addNoise(samples, sigma, newRand(seed))
	return samples
}

// Tone is a complex exponential at freqHz with additive noise.
func Tone(n int, sampleRate, freqHz, amplitude, noise float64, seed uint64) []complex128 {
	samples := make([]complex128, n)
	for i := range samples {
		phase := 2 * math.Pi * freqHz * float64(i) / sampleRate
		samples[i] = complex(amplitude, 0) * cmplx.Exp(complex(0, phase))
	}
	addNoise(samples, noise, newRand(seed))
	return samples
}

// Bursts is a noise floor with short high-power pulses every period samples.
func Bursts(n, pulseLen, period int, amplitude, noise float64, seed uint64) []complex128 {
	rng := newRand(seed)
	samples := make([]complex128, n)
	offset := rng.IntN(max(1, period))
	for start := offset; start < n; start += period {
		for i := start; i < start+pulseLen && i < n; i++ {
			samples[i] = complex(amplitude, 0)
		}
	}
	addNoise(samples, noise, rng)
	return samples
}

// FM is a frequency-modulated carrier with peak deviation deviationHz driven
// by a sum of audio tones, which spreads energy over a wide band.
func FM(n int, sampleRate, deviationHz, noise float64, seed uint64) []complex128 {
	rng := newRand(seed)
	tones := []float64{400 + 200*rng.Float64(), 1900 + 300*rng.Float64(), 15000 + 4000*rng.Float64()}
	samples := make([]complex128, n)
	var phase float64
	for i := range samples {
		t := float64(i) / sampleRate
		var audio float64
		for _, f := range tones {
			audio += math.Sin(2 * math.Pi * f * t)
		}
		audio /= float64(len(tones))
		phase += 2 * math.Pi * deviationHz * audio / sampleRate
		samples[i] = cmplx.Exp(complex(0, phase))
	}
	addNoise(samples, noise, rng)
	return samples
}

// APT carries the two APT sync tones at +2080 Hz and +2400 Hz over noise.
func APT(n int, sampleRate, noise float64, seed uint64) []complex128 {
	a := Tone(n, sampleRate, 2080, 1, 0, seed)
	b := Tone(n, sampleRate, 2400, 1, 0, seed)
	samples := make([]complex128, n)
	for i := range samples {
		samples[i] = a[i] + b[i]
	}
	addNoise(samples, noise, newRand(seed))
	return samples
}

// ForLabel returns a generator shaped like the named class. Unknown labels
// produce a narrowband tone at a label-dependent offset.
func ForLabel(label string) Generator {
	switch label {
	case "ADS_B":
		return func(n int, rate float64, seed uint64) []complex128 {
			return Bursts(n, 8, max(16, n/4), 1.0, 0.01, seed)
		}
	case "NOAA_APT":
		return func(n int, rate float64, seed uint64) []complex128 {
			return APT(n, rate, 0.05, seed)
		}
	case "ISM_sensors":
		return func(n int, rate float64, seed uint64) []complex128 {
			return Bursts(n, max(1, n/50), max(2, n/3), 0.6, 0.05, seed)
		}
	case "FM_broadcast":
		return func(n int, rate float64, seed uint64) []complex128 {
			return FM(n, rate, 75e3, 0.05, seed)
		}
	case "noise":
		return func(n int, rate float64, seed uint64) []complex128 {
			return Noise(n, 0.1, seed)
		}
	default:
		var offset float64
		for _, r := range label {
			offset += float64(r)
		}
		return func(n int, rate float64, seed uint64) []complex128 {
			freq := math.Mod(offset*137, rate/4)
			return Tone(n, rate, freq, 0.5, 0.05, seed)
		}
	}
}
