package samplers

import (
	"fmt"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
)

// DensityProjection integrates the density over every axis but one. Each row
// holds Shape[axis] values per component, component-major.
type DensityProjection struct {
	grid     *grid.Uniform
	axis     int
	modifier float64
}

func NewDensityProjection(g *grid.Uniform, axis int, wigner bool) (*DensityProjection, error) {
	if axis < 0 || axis >= g.Dimensions() {
		return nil, fmt.Errorf("%w: axis %d out of range for a %d-dimensional grid",
			bec.ErrConfiguration, axis, g.Dimensions())
	}
	d := &DensityProjection{grid: g, axis: axis}
	if wigner {
		d.modifier = WignerModifier(g)
	}
	return d, nil
}

func (d *DensityProjection) Sample(psi *bec.State, _ float64) [][]float64 {
	n := d.grid.Shape[d.axis]
	stride := d.grid.Strides()[d.axis]
	// volume element of the integrated axes
	dA := d.grid.DV / d.grid.Dxs[d.axis]

	rows := make([][]float64, psi.Trajectories)
	for r := range rows {
		row := make([]float64, psi.Components*n)
		for c := 0; c < psi.Components; c++ {
			for p, v := range psi.Block(c, r) {
				i := (p / stride) % n
				row[c*n+i] += (real(v)*real(v) + imag(v)*imag(v) + d.modifier) * dA
			}
		}
		rows[r] = row
	}
	return rows
}
