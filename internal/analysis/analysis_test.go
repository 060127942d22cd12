package analysis

import (
	"errors"
	"math"
	"testing"
)

func sampled(n int, dt float64, f func(t float64) float64) (times, values []float64) {
	times = make([]float64, n)
	values = make([]float64, n)
	for i := range times {
		times[i] = float64(i) * dt
		values[i] = f(times[i])
	}
	return times, values
}

func TestDominantFrequency(t *testing.T) {
	tests := []struct {
		name string
		n    int
		freq float64
	}{
		{"power of two", 256, 5},
		{"odd length", 201, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 2 time units sampled at n points, an integer number of periods
			dt := 2.0 / float64(tt.n)
			times, values := sampled(tt.n, dt, func(x float64) float64 {
				return 3 + math.Sin(2*math.Pi*tt.freq*x)
			})

			got, err := DominantFrequency(times, values)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.freq) > 1/(float64(tt.n)*dt) {
				t.Errorf("dominant frequency = %v, want %v", got, tt.freq)
			}
		})
	}
}

func TestSpectrum_RemovesMean(t *testing.T) {
	times, values := sampled(64, 0.1, func(float64) float64 { return 7 })
	freqs, power, err := Spectrum(times, values)
	if err != nil {
		t.Fatal(err)
	}
	if len(freqs) != 33 || math.Abs(freqs[1]-1/6.4) > 1e-12 {
		t.Errorf("unexpected frequency axis: %d values, df=%v", len(freqs), freqs[1])
	}
	for k, p := range power {
		if p > 1e-20 {
			t.Errorf("power[%d] = %v, want 0 for a constant series", k, p)
		}
	}
}

func TestSpectrum_Errors(t *testing.T) {
	if _, _, err := Spectrum([]float64{0, 1}, []float64{1, 2}); !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
	times := []float64{0, 0.1, 0.2, 0.5, 0.6}
	if _, _, err := Spectrum(times, make([]float64, 5)); !errors.Is(err, ErrNonUniform) {
		t.Errorf("expected ErrNonUniform, got %v", err)
	}
}

func TestDecayRate(t *testing.T) {
	times, values := sampled(50, 0.1, func(x float64) float64 { return 1000 * math.Exp(-0.4*x) })
	values[3] = 0

	rate, n0, err := DecayRate(times, values)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(rate-0.4) > 1e-9 || math.Abs(n0-1000) > 1e-6 {
		t.Errorf("rate = %v, n0 = %v, want 0.4, 1000", rate, n0)
	}

	if _, _, err := DecayRate([]float64{0}, []float64{1}); !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
}
