package filters

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/san-kum/becsim/internal/bec"
)

// BeamSplitter couples the first two components with an instantaneous
// resonant pulse of area theta. The coupling phase advances with the
// detuning (in cycles per unit time) of the drive from the transition.
type BeamSplitter struct {
	Detuning float64
}

func (b BeamSplitter) Rotate(psi *bec.State, t, theta float64) error {
	if psi.Components < 2 {
		return fmt.Errorf("%w: beam splitter needs two components, state has %d", bec.ErrDimensionMismatch, psi.Components)
	}

	phase := cmplx.Exp(complex(0, 2*math.Pi*b.Detuning*t))
	c := complex(math.Cos(theta/2), 0)
	s := complex(0, -math.Sin(theta/2))

	for r := 0; r < psi.Trajectories; r++ {
		a, d := psi.Block(0, r), psi.Block(1, r)
		for p := range a {
			a0, d0 := a[p], d[p]
			a[p] = c*a0 + s*cmplx.Conj(phase)*d0
			d[p] = s*phase*a0 + c*d0
		}
	}
	return nil
}
