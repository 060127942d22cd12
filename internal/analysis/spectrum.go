package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrTooShort   = errors.New("analysis: series too short")
	ErrNonUniform = errors.New("analysis: samples are not uniformly spaced")
)

// Spectrum returns the frequencies and the power |X_k|^2 of the mean-free
// series for k = 0 .. n/2.
func Spectrum(times, values []float64) (freqs, power []float64, err error) {
	n := len(values)
	if n < 4 || len(times) != n {
		return nil, nil, ErrTooShort
	}

	dt := (times[n-1] - times[0]) / float64(n-1)
	for i := 1; i < n; i++ {
		if math.Abs(times[i]-times[i-1]-dt) > 1e-6*dt {
			return nil, nil, ErrNonUniform
		}
	}

	mean := stat.Mean(values, nil)
	centered := make([]float64, n)
	for i, v := range values {
		centered[i] = v - mean
	}

	x := fft.FFTReal(centered)
	half := n/2 + 1
	freqs = make([]float64, half)
	power = make([]float64, half)
	for k := 0; k < half; k++ {
		freqs[k] = float64(k) / (float64(n) * dt)
		a := cmplx.Abs(x[k])
		power[k] = a * a
	}
	return freqs, power, nil
}

// DominantFrequency is the frequency of the largest non-zero spectral peak.
func DominantFrequency(times, values []float64) (float64, error) {
	freqs, power, err := Spectrum(times, values)
	if err != nil {
		return 0, err
	}
	best := 1
	for k := 2; k < len(power); k++ {
		if power[k] > power[best] {
			best = k
		}
	}
	return freqs[best], nil
}
