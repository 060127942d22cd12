package integrators

import (
	"fmt"
	"math/cmplx"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/spectral"
)

const (
	DefaultIterations = 3

	// minimum lattice points handed to one worker
	parallelChunk = 256

	// kinetic factors are kept for this many distinct step sizes
	factorCacheSize = 4
)

// SSCD is a split-step central-difference stepper. The kinetic term is
// applied exactly in Fourier space for half a step on either side of an
// implicit midpoint step of the local drift and diffusion, which is solved
// by fixed-point iteration.
//
// A SSCD keeps scratch buffers and must not be stepped concurrently.
type SSCD struct {
	layout     bec.Layout
	transform  *spectral.Transform
	ksquared   []float64
	drift      bec.Drift
	diffusion  bec.Diffusion
	coeff      complex128
	iterations int

	// post-kinetic and post-nonlinear temporaries
	psiK, psiN *bec.State
	factors    map[float64][]complex128
}

type Option func(*SSCD)

// WithDiffusion adds a noise term. A nil diffusion leaves the stepper
// deterministic.
func WithDiffusion(d bec.Diffusion) Option {
	return func(s *SSCD) { s.diffusion = d }
}

func WithTrajectories(n int) Option {
	return func(s *SSCD) { s.layout.Trajectories = n }
}

func WithIterations(n int) Option {
	return func(s *SSCD) { s.iterations = n }
}

// WithKineticCoefficient sets c in exp(-c*k^2*dt). The default i/2 is
// real-time evolution in units where hbar = m = 1.
func WithKineticCoefficient(c complex128) Option {
	return func(s *SSCD) { s.coeff = c }
}

func NewSSCD(g *grid.Uniform, drift bec.Drift, opts ...Option) (*SSCD, error) {
	if g == nil || drift == nil {
		return nil, fmt.Errorf("%w: stepper needs a grid and a drift", bec.ErrConfiguration)
	}

	s := &SSCD{
		drift:      drift,
		coeff:      complex(0, 0.5),
		iterations: DefaultIterations,
		ksquared:   g.KSquared(),
		transform:  spectral.New(g.Shape),
		factors:    make(map[float64][]complex128),
	}
	s.layout = g.Layout(drift.Components(), 1)

	for _, opt := range opts {
		opt(s)
	}

	if err := s.layout.Validate(); err != nil {
		return nil, err
	}
	if s.iterations < 1 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", bec.ErrConfiguration, s.iterations)
	}
	if s.diffusion != nil {
		if s.diffusion.Components() != drift.Components() {
			return nil, fmt.Errorf("%w: diffusion has %d components, drift has %d",
				bec.ErrConfiguration, s.diffusion.Components(), drift.Components())
		}
		if s.diffusion.NoiseSources() < 1 {
			s.diffusion = nil
		}
	}

	s.psiK = bec.NewState(s.layout)
	s.psiN = bec.NewState(s.layout)
	return s, nil
}

func (s *SSCD) Layout() bec.Layout { return s.layout }

// NoiseLayout is the shape of the increments Step expects.
func (s *SSCD) NoiseLayout() bec.Layout {
	return bec.Layout{Components: s.NoiseSources(), Trajectories: s.layout.Trajectories, Shape: s.layout.Shape}
}

func (s *SSCD) Iterations() int { return s.iterations }

func (s *SSCD) NoiseSources() int {
	if s.diffusion == nil {
		return 0
	}
	return s.diffusion.NoiseSources()
}

func (s *SSCD) RealNoise() bool {
	return s.diffusion != nil && s.diffusion.RealNoise()
}

func (s *SSCD) Step(dst, src, dW *bec.State, t, dt float64) {
	factor := s.kineticFactor(dt)

	copy(s.psiK.Data, src.Data)
	s.kinetic(s.psiK, factor)

	s.nonlinear(s.psiN, s.psiK, dW, t+dt/2, dt)
	s.kinetic(s.psiN, factor)

	copy(dst.Data, s.psiN.Data)
}

// kinetic multiplies every mode of psi by factor.
func (s *SSCD) kinetic(psi *bec.State, factor []complex128) {
	s.transform.ForwardState(psi)
	points := s.layout.Points()
	bec.ParallelFor(len(psi.Data), parallelChunk, func(start, end int) {
		for i := start; i < end; i++ {
			psi.Data[i] *= factor[i%points]
		}
	})
	s.transform.InverseState(psi)
}

// nonlinear solves out = in + 2*dpsi with
// dpsi = (a(mid)*dt + sum_n b_n(mid)*dW_n) / 2 and mid = in + dpsi.
// The drift is local, so every lattice point iterates independently.
func (s *SSCD) nonlinear(out, in, dW *bec.State, tMid, dt float64) {
	comps := s.layout.Components
	span := s.layout.Trajectories * s.layout.Points()
	points := s.layout.Points()
	sources := s.NoiseSources()
	halfDt := complex(dt/2, 0)

	bec.ParallelFor(span, parallelChunk, func(start, end int) {
		mid := make([]complex128, comps)
		a := make([]complex128, comps)
		b := make([]complex128, comps)
		dpsi := make([]complex128, comps)

		for q := start; q < end; q++ {
			p := q % points

			for c := 0; c < comps; c++ {
				mid[c] = in.Data[c*span+q]
			}

			for it := 0; it < s.iterations; it++ {
				s.drift.Evaluate(a, p, mid, tMid)
				for c := 0; c < comps; c++ {
					dpsi[c] = halfDt * a[c]
				}

				for n := 0; n < sources; n++ {
					s.diffusion.Evaluate(b, p, mid, tMid, n)
					w := dW.Data[n*span+q] / 2
					for c := 0; c < comps; c++ {
						dpsi[c] += b[c] * w
					}
				}

				for c := 0; c < comps; c++ {
					mid[c] = in.Data[c*span+q] + dpsi[c]
				}
			}

			for c := 0; c < comps; c++ {
				out.Data[c*span+q] = mid[c] + dpsi[c]
			}
		}
	})
}

// kineticFactor returns exp(-c*k^2*dt/2) per mode.
func (s *SSCD) kineticFactor(dt float64) []complex128 {
	if f, ok := s.factors[dt]; ok {
		return f
	}
	if len(s.factors) >= factorCacheSize {
		clear(s.factors)
	}

	f := make([]complex128, len(s.ksquared))
	for i, k2 := range s.ksquared {
		f[i] = cmplx.Exp(-s.coeff * complex(k2*dt/2, 0))
	}
	s.factors[dt] = f
	return f
}
