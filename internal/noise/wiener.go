// Package noise generates Wiener increments for stochastic steppers.
package noise

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/becsim/internal/bec"
)

// Wiener draws Gaussian increments with variance dt*scale per element. For
// complex noise the real and imaginary parts each carry half of it.
type Wiener struct {
	src       rand.Source
	scale     float64
	realNoise bool
}

// New returns a generator whose sequence is fully determined by seed.
func New(seed uint64, scale float64, realNoise bool) *Wiener {
	return &Wiener{
		src:       rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		scale:     scale,
		realNoise: realNoise,
	}
}

// NewUnseeded seeds from the clock. Runs using it are not reproducible.
func NewUnseeded(scale float64, realNoise bool) *Wiener {
	return New(uint64(time.Now().UnixNano()), scale, realNoise)
}

func (w *Wiener) RealNoise() bool { return w.realNoise }

func (w *Wiener) Scale() float64 { return w.scale }

// quadrature is the distribution of one real part for a step of length dt.
func (w *Wiener) quadrature(dt float64) distuv.Normal {
	variance := dt * w.scale
	if !w.realNoise {
		variance /= 2
	}
	return distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance), Src: w.src}
}

// Generate overwrites dW with fresh increments for a step of length dt.
func (w *Wiener) Generate(dW *bec.State, dt float64) {
	dist := w.quadrature(dt)
	if w.realNoise {
		for i := range dW.Data {
			dW.Data[i] = complex(dist.Rand(), 0)
		}
		return
	}

	for i := range dW.Data {
		dW.Data[i] = complex(dist.Rand(), dist.Rand())
	}
}
