package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/becsim/internal/bec"
)

// LossDiffusion is the Wigner noise of loss processes: one complex noise
// source per process, with b_j = sqrt(rate) * dO*/dpsi_j*.
type LossDiffusion struct {
	components int
	losses     []Loss
}

func NewLossDiffusion(components int, losses []Loss) (*LossDiffusion, error) {
	if len(losses) == 0 {
		return nil, fmt.Errorf("%w: diffusion needs at least one loss process", bec.ErrConfiguration)
	}
	for i, l := range losses {
		if len(l.Counts) != components {
			return nil, fmt.Errorf("%w: loss %d has %d counts, expected %d",
				bec.ErrConfiguration, i, len(l.Counts), components)
		}
	}
	return &LossDiffusion{components: components, losses: losses}, nil
}

func (d *LossDiffusion) Components() int   { return d.components }
func (d *LossDiffusion) NoiseSources() int { return len(d.losses) }
func (d *LossDiffusion) RealNoise() bool   { return false }

func (d *LossDiffusion) Evaluate(out []complex128, _ int, psi []complex128, _ float64, source int) {
	l := d.losses[source]
	amp := complex(math.Sqrt(l.Rate), 0)
	for j, count := range l.Counts {
		if count == 0 {
			out[j] = 0
			continue
		}
		out[j] = amp * conjGradient(l.Counts, psi, j)
	}
}
