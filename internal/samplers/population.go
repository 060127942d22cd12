// Package samplers implements observables of a wavefunction ensemble. Every
// sampler returns one row per trajectory.
package samplers

import (
	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
)

// WignerModifier is the density offset -modes/(2V) that turns the symmetric
// ordering of Wigner trajectories back into normal ordering.
func WignerModifier(g *grid.Uniform) float64 {
	return -float64(g.Modes()) / (2 * g.V)
}

// Population integrates |psi|^2 over the lattice for every component. The
// rows have one column per component.
type Population struct {
	grid     *grid.Uniform
	modifier float64
}

func NewPopulation(g *grid.Uniform, wigner bool) *Population {
	p := &Population{grid: g}
	if wigner {
		p.modifier = WignerModifier(g)
	}
	return p
}

func (p *Population) Sample(psi *bec.State, _ float64) [][]float64 {
	rows := make([][]float64, psi.Trajectories)
	for r := range rows {
		row := make([]float64, psi.Components)
		for c := range row {
			row[c] = p.integrate(psi.Block(c, r))
		}
		rows[r] = row
	}
	return rows
}

func (p *Population) integrate(block []complex128) float64 {
	sum := 0.0
	for _, v := range block {
		sum += real(v)*real(v) + imag(v)*imag(v) + p.modifier
	}
	return sum * p.grid.DV
}

// Total sums the population over components.
type Total struct {
	pop *Population
}

func NewTotal(g *grid.Uniform, wigner bool) *Total {
	return &Total{pop: NewPopulation(g, wigner)}
}

func (t *Total) Sample(psi *bec.State, tm float64) [][]float64 {
	rows := t.pop.Sample(psi, tm)
	for r, row := range rows {
		sum := 0.0
		for _, n := range row {
			sum += n
		}
		rows[r] = []float64{sum}
	}
	return rows
}
