package radio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// maxDirectFactor is the largest prime factor handed to gonum's mixed-radix
// FFT. Its generic radix costs O(n*p), so lengths with a larger prime factor
// go through bluestein instead.
const maxDirectFactor = 61

// spectrum computes the unnormalised full-length DFT of samples. No zero
// padding or windowing is applied to the result; any length is exact.
func spectrum(samples []complex128) []complex128 {
	n := len(samples)
	if n <= maxDirectFactor || largestPrimeFactor(n) <= maxDirectFactor {
		fft := fourier.NewCmplxFFT(n)
		return fft.Coefficients(nil, samples)
	}
	return bluestein(samples)
}

// bluestein evaluates the length-n DFT as a chirp-z convolution on a
// power-of-two FFT of length m >= 2n-1, which keeps the cost O(m log m)
// whatever the factors of n.
func bluestein(samples []complex128) []complex128 {
	n := len(samples)
	m := 1
	for m < 2*n-1 {
		m <<= 1
	}

	// chirp[k] = exp(-i*pi*k^2/n); k^2 is reduced mod 2n to keep the angle exact
	chirp := make([]complex128, n)
	twoN := int64(2 * n)
	for k := 0; k < n; k++ {
		kk := int64(k) * int64(k) % twoN
		angle := -math.Pi * float64(kk) / float64(n)
		chirp[k] = complex(math.Cos(angle), math.Sin(angle))
	}

	a := make([]complex128, m)
	for k, x := range samples {
		a[k] = x * chirp[k]
	}
	b := make([]complex128, m)
	b[0] = cmplx.Conj(chirp[0])
	for k := 1; k < n; k++ {
		c := cmplx.Conj(chirp[k])
		b[k] = c
		b[m-k] = c
	}

	fft := fourier.NewCmplxFFT(m)
	fa := fft.Coefficients(nil, a)
	fb := fft.Coefficients(nil, b)
	for i := range fa {
		fa[i] *= fb[i]
	}
	conv := fft.Sequence(nil, fa)

	out := make([]complex128, n)
	scale := complex(1/float64(m), 0)
	for k := range out {
		out[k] = conv[k] * scale * chirp[k]
	}
	return out
}

func largestPrimeFactor(n int) int {
	largest := 1
	for p := 2; p*p <= n; p++ {
		for n%p == 0 {
			largest = p
			n /= p
		}
	}
	if n > 1 {
		largest = n
	}
	return largest
}

// powerSpectrum returns |X_k|^2 for every DFT bin.
func powerSpectrum(samples []complex128) []float64 {
	coeffs := spectrum(samples)
	power := make([]float64, len(coeffs))
	for k, c := range coeffs {
		re, im := real(c), imag(c)
		power[k] = re*re + im*im
	}
	return power
}

// magnitudeSpectrum returns |X_k| for every DFT bin.
func magnitudeSpectrum(samples []complex128) []float64 {
	coeffs := spectrum(samples)
	mag := make([]float64, len(coeffs))
	for k, c := range coeffs {
		mag[k] = cmplx.Abs(c)
	}
	return mag
}

// fftFreq mirrors numpy.fft.fftfreq: bin k maps to k/(n*d) for the first half
// and to (k-n)/(n*d) for the negative-frequency half.
func fftFreq(n int, d float64) []float64 {
	freqs := make([]float64, n)
	scale := 1.0 / (float64(n) * d)
	half := (n - 1) / 2
	for k := 0; k < n; k++ {
		if k <= half {
			freqs[k] = float64(k) * scale
		} else {
			freqs[k] = float64(k-n) * scale
		}
	}
	return freqs
}

// nearestBin returns the index of the frequency closest to target.
func nearestBin(freqs []float64, target float64) int {
	best := 0
	bestDist := math.Inf(1)
	for k, f := range freqs {
		if d := math.Abs(f - target); d < bestDist {
			best = k
			bestDist = d
		}
	}
	return best
}

// instantaneousPower returns |s|^2 for each sample.
func instantaneousPower(samples []complex128) []float64 {
	power := make([]float64, len(samples))
	for i, s := range samples {
		re, im := real(s), imag(s)
		power[i] = re*re + im*im
	}
	return power
}

// unwrapPhase removes 2*pi discontinuities from a phase sequence the same way
// numpy.unwrap does with the default discontinuity of pi.
func unwrapPhase(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}
	out[0] = phase[0]
	var correction float64
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		if math.Abs(d) >= math.Pi {
			wrapped := floorMod(d+math.Pi, 2*math.Pi) - math.Pi
			if wrapped == -math.Pi && d > 0 {
				wrapped = math.Pi
			}
			correction += wrapped - d
		}
		out[i] = phase[i] + correction
	}
	return out
}

func floorMod(x, m float64) float64 {
	return x - m*math.Floor(x/m)
}
