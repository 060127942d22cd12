// Package filters holds in-place corrections applied to accepted states.
package filters

import (
	"fmt"
	"math"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
)

// Normalization rescales every component of every trajectory to a target
// population. Applying it twice is the same as applying it once.
type Normalization struct {
	grid    *grid.Uniform
	targets []float64
}

func NewNormalization(g *grid.Uniform, targets []float64) (*Normalization, error) {
	for i, n := range targets {
		if n < 0 {
			return nil, fmt.Errorf("%w: negative target population %g for component %d", bec.ErrConfiguration, n, i)
		}
	}
	return &Normalization{grid: g, targets: targets}, nil
}

func (n *Normalization) Apply(psi *bec.State, _ float64) {
	for c := 0; c < psi.Components && c < len(n.targets); c++ {
		for r := 0; r < psi.Trajectories; r++ {
			block := psi.Block(c, r)
			sum := 0.0
			for _, v := range block {
				sum += real(v)*real(v) + imag(v)*imag(v)
			}
			if sum == 0 {
				continue
			}
			scale := complex(math.Sqrt(n.targets[c]/(sum*n.grid.DV)), 0)
			for p := range block {
				block[p] *= scale
			}
		}
	}
}
