// Package grid describes the uniform periodic lattice a wavefunction lives on.
package grid

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/becsim/internal/bec"
)

// Uniform is a rectangular lattice with periodic boundaries. Coordinates are
// cell centers of a box centered at the origin.
type Uniform struct {
	Shape []int
	Box   []float64
	Dxs   []float64
	Xs    [][]float64

	// DV is the volume element, V the box volume.
	DV float64
	V  float64

	ksquared []float64
	strides  []int
}

func New(shape []int, box []float64) (*Uniform, error) {
	if len(shape) == 0 || len(shape) != len(box) {
		return nil, fmt.Errorf("%w: shape %v does not match box %v", bec.ErrConfiguration, shape, box)
	}

	g := &Uniform{
		Shape: slices.Clone(shape),
		Box:   slices.Clone(box),
		Dxs:   make([]float64, len(shape)),
		Xs:    make([][]float64, len(shape)),
		DV:    1,
		V:     1,
	}

	for d, n := range shape {
		if n < 1 || box[d] <= 0 {
			return nil, fmt.Errorf("%w: invalid axis %d (size %d, length %g)", bec.ErrConfiguration, d, n, box[d])
		}
		dx := box[d] / float64(n)
		g.Dxs[d] = dx
		g.DV *= dx
		g.V *= box[d]

		xs := make([]float64, n)
		if n > 1 {
			floats.Span(xs, -box[d]/2+dx/2, box[d]/2-dx/2)
		}
		g.Xs[d] = xs
	}

	g.strides = make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		g.strides[d] = stride
		stride *= shape[d]
	}

	g.ksquared = g.buildKSquared()
	return g, nil
}

func (g *Uniform) Dimensions() int { return len(g.Shape) }

// Points is the number of lattice points (and plane-wave modes).
func (g *Uniform) Points() int {
	n := 1
	for _, s := range g.Shape {
		n *= s
	}
	return n
}

// Modes is the number of plane-wave modes resolved by the lattice.
func (g *Uniform) Modes() int { return g.Points() }

// Strides returns the row-major stride of each axis.
func (g *Uniform) Strides() []int { return g.strides }

// KSquared returns |k|^2 per mode in FFT order, flattened row-major.
func (g *Uniform) KSquared() []float64 { return g.ksquared }

// Coordinates writes the position of lattice point idx into x.
func (g *Uniform) Coordinates(x []float64, idx int) {
	for d, stride := range g.strides {
		i := (idx / stride) % g.Shape[d]
		x[d] = g.Xs[d][i]
	}
}

// Layout returns the state layout for the given component and trajectory counts.
func (g *Uniform) Layout(components, trajectories int) bec.Layout {
	return bec.Layout{Components: components, Trajectories: trajectories, Shape: slices.Clone(g.Shape)}
}

// Wavenumbers returns 2*pi*fftfreq(n, dx) for axis d.
func (g *Uniform) Wavenumbers(d int) []float64 {
	n := g.Shape[d]
	ks := make([]float64, n)
	scale := 2 * math.Pi / (float64(n) * g.Dxs[d])
	for i := range ks {
		f := i
		if i >= (n+1)/2 {
			f = i - n
		}
		ks[i] = float64(f) * scale
	}
	return ks
}

func (g *Uniform) buildKSquared() []float64 {
	axes := make([][]float64, len(g.Shape))
	for d := range g.Shape {
		axes[d] = g.Wavenumbers(d)
	}

	ks := make([]float64, g.Points())
	for idx := range ks {
		sum := 0.0
		for d, stride := range g.strides {
			k := axes[d][(idx/stride)%g.Shape[d]]
			sum += k * k
		}
		ks[idx] = sum
	}
	return ks
}
