package sim

import (
	"math"

	"github.com/san-kum/becsim/internal/bec"
)

func pointLayout(trajectories int) bec.Layout {
	return bec.Layout{Components: 1, Trajectories: trajectories, Shape: []int{1}}
}

// eulerDecay takes explicit Euler steps of dpsi/dt = -rate*psi, so its
// step-doubling error is rate^2*dt^2/4.
type eulerDecay struct {
	layout bec.Layout
	rate   float64
	// NaN is produced for steps starting at or after blowUp when set.
	blowUp float64
}

func newEulerDecay(rate float64) *eulerDecay {
	return &eulerDecay{layout: pointLayout(1), rate: rate}
}

func (e *eulerDecay) Layout() bec.Layout { return e.layout }
func (e *eulerDecay) NoiseSources() int  { return 0 }
func (e *eulerDecay) RealNoise() bool    { return false }

func (e *eulerDecay) Step(dst, src, _ *bec.State, t, dt float64) {
	f := complex(1-e.rate*dt, 0)
	if e.blowUp > 0 && t >= e.blowUp {
		f = complex(math.NaN(), 0)
	}
	for i, v := range src.Data {
		dst.Data[i] = v * f
	}
}

// relaxation is the exact flow of dpsi/dt = 1 - psi.
type relaxation struct{ layout bec.Layout }

func (r relaxation) Layout() bec.Layout { return r.layout }
func (r relaxation) NoiseSources() int  { return 0 }
func (r relaxation) RealNoise() bool    { return false }

func (r relaxation) Step(dst, src, _ *bec.State, _, dt float64) {
	decay := complex(math.Exp(-dt), 0)
	for i, v := range src.Data {
		dst.Data[i] = 1 + (v-1)*decay
	}
}

// perturbed follows relaxation but adds offset to steps with lo < dt < hi.
type perturbed struct {
	layout bec.Layout
	lo, hi float64
	offset complex128
}

func (p perturbed) Layout() bec.Layout { return p.layout }
func (p perturbed) NoiseSources() int  { return 0 }
func (p perturbed) RealNoise() bool    { return false }

func (p perturbed) Step(dst, src, dW *bec.State, t, dt float64) {
	relaxation{p.layout}.Step(dst, src, dW, t, dt)
	if dt > p.lo && dt < p.hi {
		for i := range dst.Data {
			dst.Data[i] += p.offset
		}
	}
}

// brownian adds the increment to the state.
type brownian struct{ layout bec.Layout }

func (b brownian) Layout() bec.Layout { return b.layout }
func (b brownian) NoiseSources() int  { return 1 }
func (b brownian) RealNoise() bool    { return true }

func (b brownian) Step(dst, src, dW *bec.State, _, _ float64) {
	for i, v := range src.Data {
		dst.Data[i] = v + dW.Data[i]
	}
}

// value samples the real part of every trajectory at the single point.
var value = bec.SamplerFunc(func(psi *bec.State, _ float64) [][]float64 {
	rows := make([][]float64, psi.Trajectories)
	for r := range rows {
		rows[r] = []float64{real(psi.Block(0, r)[0])}
	}
	return rows
})

type countingSampler struct{ calls int }

func (c *countingSampler) Sample(psi *bec.State, t float64) [][]float64 {
	c.calls++
	return value(psi, t)
}

type countingFilter struct{ calls int }

func (c *countingFilter) Apply(*bec.State, float64) { c.calls++ }

func initial(l bec.Layout, v complex128) *bec.State {
	s := bec.NewState(l)
	for i := range s.Data {
		s.Data[i] = v
	}
	return s
}
