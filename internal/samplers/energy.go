package samplers

import (
	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/physics"
	"github.com/san-kum/becsim/internal/spectral"
)

// Energy is the Gross-Pitaevskii energy per particle of each trajectory:
// kinetic (through the Fourier-space Laplacian), trap and mean-field
// interaction. It assumes normally ordered fields and applies no Wigner
// corrections.
type Energy struct {
	grid      *grid.Uniform
	system    *physics.System
	potential [][]float64
	transform *spectral.Transform
}

func NewEnergy(g *grid.Uniform, sys *physics.System) (*Energy, error) {
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	potential, err := sys.PotentialValues(g)
	if err != nil {
		return nil, err
	}
	return &Energy{
		grid:      g,
		system:    sys,
		potential: potential,
		transform: spectral.New(g.Shape),
	}, nil
}

func (e *Energy) Sample(psi *bec.State, _ float64) [][]float64 {
	rows := make([][]float64, psi.Trajectories)
	bec.ParallelFor(psi.Trajectories, 1, func(start, end int) {
		scratch := make([]complex128, psi.Points())
		for r := start; r < end; r++ {
			rows[r] = []float64{e.perParticle(psi, r, scratch)}
		}
	})
	return rows
}

func (e *Energy) perParticle(psi *bec.State, r int, scratch []complex128) float64 {
	comps := psi.Components
	points := psi.Points()
	ksquared := e.grid.KSquared()
	hbar := e.system.HBar

	total, particles := 0.0, 0.0
	for c := 0; c < comps; c++ {
		block := psi.Block(c, r)

		// Parseval: sum |x|^2 = sum |X|^2 / P for the unnormalized forward FFT
		copy(scratch, block)
		e.transform.Forward(scratch)
		kinetic := 0.0
		for i, v := range scratch {
			kinetic += ksquared[i] * (real(v)*real(v) + imag(v)*imag(v))
		}
		mass := e.system.Components[c].Mass
		total += hbar * hbar / (2 * mass) * kinetic / float64(points) * e.grid.DV

		for p, v := range block {
			n := real(v)*real(v) + imag(v)*imag(v)
			particles += n * e.grid.DV

			local := 0.0
			if e.potential != nil {
				local += e.potential[c][p]
			}
			for k := 0; k < comps; k++ {
				w := psi.Block(k, r)[p]
				local += e.system.Interactions.At(c, k) / 2 * (real(w)*real(w) + imag(w)*imag(w))
			}
			total += local * n * e.grid.DV
		}
	}

	if particles == 0 {
		return 0
	}
	return total / particles
}
