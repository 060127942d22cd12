package samplers

import (
	"math"
	"math/cmplx"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/filters"
	"github.com/san-kum/becsim/internal/grid"
)

// Visibility is the interferometric contrast 2|<psi_0|psi_1>| / (N_0 + N_1)
// of the first two components.
type Visibility struct {
	modifier float64
}

func NewVisibility(g *grid.Uniform, wigner bool) *Visibility {
	v := &Visibility{}
	if wigner {
		v.modifier = WignerModifier(g)
	}
	return v
}

func (v *Visibility) Sample(psi *bec.State, _ float64) [][]float64 {
	rows := make([][]float64, psi.Trajectories)
	for r := range rows {
		if psi.Components < 2 {
			rows[r] = []float64{0}
			continue
		}
		a, b := psi.Block(0, r), psi.Block(1, r)
		var overlap complex128
		n := 2 * float64(len(a)) * v.modifier
		for p := range a {
			overlap += cmplx.Conj(a[p]) * b[p]
			n += real(a[p])*real(a[p]) + imag(a[p])*imag(a[p]) + real(b[p])*real(b[p]) + imag(b[p])*imag(b[p])
		}
		if n <= 0 {
			rows[r] = []float64{0}
			continue
		}
		rows[r] = []float64{math.Min(2*cmplx.Abs(overlap)/n, 1)}
	}
	return rows
}

// AfterPulse samples a copy of the state after a beam splitter pulse,
// leaving the integrated state untouched.
type AfterPulse struct {
	inner    bec.Sampler
	splitter filters.BeamSplitter
	theta    float64
}

func NewAfterPulse(inner bec.Sampler, splitter filters.BeamSplitter, theta float64) *AfterPulse {
	return &AfterPulse{inner: inner, splitter: splitter, theta: theta}
}

func (a *AfterPulse) Sample(psi *bec.State, t float64) [][]float64 {
	c := psi.Clone()
	if err := a.splitter.Rotate(c, t, a.theta); err != nil {
		return a.inner.Sample(psi, t)
	}
	return a.inner.Sample(c, t)
}
