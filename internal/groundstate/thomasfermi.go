// Package groundstate builds initial wavefunctions: Thomas-Fermi profiles,
// imaginary-time ground states and their Wigner representation.
package groundstate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/physics"
)

const bisectionSteps = 200

// ThomasFermi returns a single-trajectory state holding the Thomas-Fermi
// profile sqrt(max(mu - V, 0) / g_jj) of every component. The chemical
// potential is solved on the lattice itself, so the profile integrates to the
// requested population on any grid.
func ThomasFermi(g *grid.Uniform, sys *physics.System, populations []float64) (*bec.State, error) {
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	if len(populations) != len(sys.Components) {
		return nil, fmt.Errorf("%w: %d populations for %d components",
			bec.ErrConfiguration, len(populations), len(sys.Components))
	}
	potential, err := sys.PotentialValues(g)
	if err != nil {
		return nil, err
	}
	if potential == nil {
		return nil, fmt.Errorf("%w: Thomas-Fermi profile needs a trapping potential", bec.ErrConfiguration)
	}

	psi := bec.NewState(g.Layout(len(sys.Components), 1))
	for c, n := range populations {
		if n < 0 {
			return nil, fmt.Errorf("%w: negative population for component %d", bec.ErrConfiguration, c)
		}
		if n == 0 {
			continue
		}
		coupling := sys.Interactions.At(c, c)
		if coupling <= 0 {
			return nil, fmt.Errorf("%w: component %d needs a repulsive self-interaction", bec.ErrConfiguration, c)
		}

		v := potential[c]
		mu := chemicalPotential(v, coupling, n, g.DV, g.V)

		block := psi.Block(c, 0)
		for p := range block {
			block[p] = complex(math.Sqrt(math.Max(mu-v[p], 0)/coupling), 0)
		}

		// bisection leaves a small residue
		sum := 0.0
		for _, z := range block {
			sum += real(z) * real(z)
		}
		scale := complex(math.Sqrt(n/(sum*g.DV)), 0)
		for p := range block {
			block[p] *= scale
		}
	}
	return psi, nil
}

// chemicalPotential bisects for mu with sum max(mu - V, 0) / g * dV = n.
func chemicalPotential(v []float64, coupling, n, dV, volume float64) float64 {
	lo := floats.Min(v)
	hi := floats.Max(v) + coupling*n/volume

	population := func(mu float64) float64 {
		sum := 0.0
		for _, x := range v {
			sum += math.Max(mu-x, 0)
		}
		return sum / coupling * dV
	}

	for i := 0; i < bisectionSteps && hi-lo > 1e-14*math.Max(1, math.Abs(hi)); i++ {
		mid := (lo + hi) / 2
		if population(mid) < n {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// ChemicalPotential3D is the analytic Thomas-Fermi chemical potential of n
// atoms of mass m with coupling g in a 3D harmonic trap with the given
// frequencies (in cycles per unit time).
func ChemicalPotential3D(frequencies []float64, n, mass, coupling float64) (float64, error) {
	if len(frequencies) != 3 {
		return 0, fmt.Errorf("%w: analytic chemical potential needs 3 trap frequencies, got %d",
			bec.ErrConfiguration, len(frequencies))
	}
	w3 := 1.0
	for _, f := range frequencies {
		w3 *= 2 * math.Pi * f
	}
	return math.Pow(15*n*coupling*w3*math.Pow(mass, 1.5)/(16*math.Sqrt2*math.Pi), 0.4), nil
}

// BoxForThomasFermi returns a box that holds the Thomas-Fermi cloud of one
// component with the given padding factor along every axis.
func BoxForThomasFermi(sys *physics.System, component int, n, pad float64) ([]float64, error) {
	if sys.Potential == nil {
		return nil, fmt.Errorf("%w: box estimate needs a trapping potential", bec.ErrConfiguration)
	}
	if component < 0 || component >= len(sys.Components) {
		return nil, fmt.Errorf("%w: no component %d", bec.ErrConfiguration, component)
	}

	mass := sys.Components[component].Mass
	mu, err := ChemicalPotential3D(sys.Potential.Frequencies, n, mass, sys.Interactions.At(component, component))
	if err != nil {
		return nil, err
	}

	box := make([]float64, len(sys.Potential.Frequencies))
	for d, f := range sys.Potential.Frequencies {
		w := 2 * math.Pi * f
		box[d] = 2 * pad * math.Sqrt(2*mu/(mass*w*w))
	}
	return box, nil
}
