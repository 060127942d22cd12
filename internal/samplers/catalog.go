package samplers

import (
	"fmt"
	"strings"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/physics"
)

// Names lists the samplers ByName understands.
var Names = []string{"N", "N_total", "E", "V", "density_x", "density_y", "density_z"}

// ByName builds a sampler from its short name.
func ByName(name string, g *grid.Uniform, sys *physics.System, wigner bool) (bec.Sampler, error) {
	switch name {
	case "N":
		return NewPopulation(g, wigner), nil
	case "N_total":
		return NewTotal(g, wigner), nil
	case "E":
		return NewEnergy(g, sys)
	case "V":
		return NewVisibility(g, wigner), nil
	}

	if axis, ok := strings.CutPrefix(name, "density_"); ok {
		if idx := strings.Index("xyz", axis); len(axis) == 1 && idx >= 0 {
			return NewDensityProjection(g, idx, wigner)
		}
	}
	return nil, fmt.Errorf("%w: unknown sampler %q (known: %s)", bec.ErrConfiguration, name, strings.Join(Names, ", "))
}
