// Package spectral transforms wavefunction blocks between real and Fourier
// space, one spatial axis at a time.
package spectral

import (
	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/becsim/internal/bec"
)

// Transform is a multidimensional FFT over row-major blocks of a fixed shape.
// The inverse is normalized, so Inverse(Forward(x)) == x.
type Transform struct {
	shape   []int
	strides []int
	points  int
	maxAxis int
}

func New(shape []int) *Transform {
	t := &Transform{
		shape:   append([]int(nil), shape...),
		strides: make([]int, len(shape)),
		points:  1,
	}
	for d := len(shape) - 1; d >= 0; d-- {
		t.strides[d] = t.points
		t.points *= shape[d]
		if shape[d] > t.maxAxis {
			t.maxAxis = shape[d]
		}
	}
	return t
}

func (t *Transform) Points() int { return t.points }

// Forward transforms one spatial block in place.
func (t *Transform) Forward(block []complex128) { t.apply(block, fft.FFT) }

// Inverse transforms one spatial block in place.
func (t *Transform) Inverse(block []complex128) { t.apply(block, fft.IFFT) }

// ForwardState transforms every (component, trajectory) block of s.
func (t *Transform) ForwardState(s *bec.State) { t.applyState(s, fft.FFT) }

// InverseState transforms every (component, trajectory) block of s.
func (t *Transform) InverseState(s *bec.State) { t.applyState(s, fft.IFFT) }

func (t *Transform) applyState(s *bec.State, f func([]complex128) []complex128) {
	blocks := s.Components * s.Trajectories
	bec.ParallelFor(blocks, 1, func(start, end int) {
		for b := start; b < end; b++ {
			t.apply(s.Data[b*t.points:(b+1)*t.points], f)
		}
	})
}

func (t *Transform) apply(block []complex128, f func([]complex128) []complex128) {
	line := make([]complex128, t.maxAxis)

	for d, n := range t.shape {
		if n == 1 {
			continue
		}
		stride := t.strides[d]
		span := n * stride

		for outer := 0; outer < t.points; outer += span {
			for inner := 0; inner < stride; inner++ {
				base := outer + inner
				for i := 0; i < n; i++ {
					line[i] = block[base+i*stride]
				}
				out := f(line[:n])
				for i := 0; i < n; i++ {
					block[base+i*stride] = out[i]
				}
			}
		}
	}
}
