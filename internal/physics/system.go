package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
)

type Component struct {
	Name string  `yaml:"name"`
	Mass float64 `yaml:"mass"`
}

// Displacement shifts the trap of one component along one axis.
type Displacement struct {
	Component int     `yaml:"component"`
	Axis      int     `yaml:"axis"`
	Value     float64 `yaml:"value"`
}

// HarmonicPotential is m (2 pi f_d)^2 x_d^2 / 2 summed over axes.
// Frequencies are in cycles per unit time.
type HarmonicPotential struct {
	Frequencies   []float64      `yaml:"frequencies"`
	Displacements []Displacement `yaml:"displacements,omitempty"`
}

// Values returns the potential per component per lattice point.
func (h *HarmonicPotential) Values(g *grid.Uniform, components []Component) ([][]float64, error) {
	if len(h.Frequencies) != g.Dimensions() {
		return nil, fmt.Errorf("%w: %d trap frequencies for a %d-dimensional grid",
			bec.ErrConfiguration, len(h.Frequencies), g.Dimensions())
	}

	x := make([]float64, g.Dimensions())
	values := make([][]float64, len(components))
	for j, comp := range components {
		shift := make([]float64, g.Dimensions())
		for _, d := range h.Displacements {
			if d.Component == j && d.Axis >= 0 && d.Axis < len(shift) {
				shift[d.Axis] += d.Value
			}
		}

		v := make([]float64, g.Points())
		for idx := range v {
			g.Coordinates(x, idx)
			for d, f := range h.Frequencies {
				w := 2 * math.Pi * f
				xd := x[d] + shift[d]
				v[idx] += comp.Mass * w * w / 2 * xd * xd
			}
		}
		values[j] = v
	}
	return values, nil
}

// System is the physical configuration of a condensate: species, couplings,
// trap and losses.
type System struct {
	HBar         float64
	Components   []Component
	Interactions *mat.SymDense
	Potential    *HarmonicPotential
	Losses       []Loss
}

// NewInteractionMatrix validates a square, symmetric, nonnegative coupling
// matrix.
func NewInteractionMatrix(rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty interaction matrix", bec.ErrConfiguration)
	}
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: interaction row %d has %d entries, expected %d",
				bec.ErrConfiguration, i, len(row), n)
		}
	}

	data := make([]float64, 0, n*n)
	for i, row := range rows {
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("%w: negative coupling g[%d][%d] = %g", bec.ErrConfiguration, i, j, v)
			}
			if v != rows[j][i] {
				return nil, fmt.Errorf("%w: interaction matrix is not symmetric at (%d, %d)", bec.ErrConfiguration, i, j)
			}
		}
		data = append(data, row...)
	}
	return mat.NewSymDense(n, data), nil
}

func (s *System) Validate() error {
	if s.HBar <= 0 {
		return fmt.Errorf("%w: hbar must be positive", bec.ErrConfiguration)
	}
	if len(s.Components) == 0 {
		return fmt.Errorf("%w: system has no components", bec.ErrConfiguration)
	}
	for i, c := range s.Components {
		if c.Mass <= 0 {
			return fmt.Errorf("%w: component %d has mass %g", bec.ErrConfiguration, i, c.Mass)
		}
	}
	if s.Interactions == nil || s.Interactions.SymmetricDim() != len(s.Components) {
		return fmt.Errorf("%w: interaction matrix must be %dx%d", bec.ErrConfiguration, len(s.Components), len(s.Components))
	}
	for i, l := range s.Losses {
		if len(l.Counts) != len(s.Components) {
			return fmt.Errorf("%w: loss %d has %d counts, expected %d",
				bec.ErrConfiguration, i, len(l.Counts), len(s.Components))
		}
		if l.Rate < 0 {
			return fmt.Errorf("%w: loss %d has negative rate", bec.ErrConfiguration, i)
		}
	}
	return nil
}

// KineticCoefficient uses the mass of the first component.
func (s *System) KineticCoefficient(e Evolution) complex128 {
	return KineticCoefficient(e, s.HBar, s.Components[0].Mass)
}

// PotentialValues returns nil when the system has no trap.
func (s *System) PotentialValues(g *grid.Uniform) ([][]float64, error) {
	if s.Potential == nil {
		return nil, nil
	}
	return s.Potential.Values(g, s.Components)
}

// Drift assembles the right-hand side. Losses only act in real time; wigner
// adds the ordering corrections to the interaction term.
func (s *System) Drift(g *grid.Uniform, e Evolution, wigner bool) (*Drift, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	unitary := UnitaryCoefficient(e, s.HBar)
	terms := make([]Term, 0, 2+len(s.Losses))

	values, err := s.PotentialValues(g)
	if err != nil {
		return nil, err
	}
	if values != nil {
		terms = append(terms, NewPotentialTerm(values, unitary))
	}

	var corrections [][]float64
	if wigner {
		corrections = WignerCorrections(len(s.Components), g.Modes(), g.V)
	}
	terms = append(terms, NewInteractionTerm(s.Interactions, corrections, unitary))

	if e == RealTime {
		for _, l := range s.Losses {
			terms = append(terms, NewLossTerm(l))
		}
	}

	return NewDrift(len(s.Components), terms...)
}

// Diffusion returns nil when the run is not a Wigner run or has no losses.
func (s *System) Diffusion(wigner bool) (*LossDiffusion, error) {
	if !wigner || len(s.Losses) == 0 {
		return nil, nil
	}
	return NewLossDiffusion(len(s.Components), s.Losses)
}
