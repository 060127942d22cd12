package groundstate

import (
	"fmt"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
)

// VacuumNoise fills its argument with complex increments.
type VacuumNoise interface {
	Generate(dW *bec.State, dt float64)
}

// WignerCoherent replicates a single-trajectory state into trajectories
// Wigner samples of the corresponding coherent state by adding vacuum noise
// of half a particle per mode. The generator must produce complex
// increments of variance 1/dV per unit dt.
func WignerCoherent(g *grid.Uniform, psi *bec.State, trajectories int, vacuum VacuumNoise) (*bec.State, error) {
	if psi.Trajectories != 1 {
		return nil, fmt.Errorf("%w: expected a single trajectory, got %d", bec.ErrDimensionMismatch, psi.Trajectories)
	}
	if trajectories < 1 {
		return nil, fmt.Errorf("%w: trajectories must be positive, got %d", bec.ErrConfiguration, trajectories)
	}

	out := bec.NewState(g.Layout(psi.Components, trajectories))
	vacuum.Generate(out, 0.5)
	for c := 0; c < psi.Components; c++ {
		src := psi.Block(c, 0)
		for r := 0; r < trajectories; r++ {
			dst := out.Block(c, r)
			for p, v := range src {
				dst[p] += v
			}
		}
	}
	return out, nil
}
