package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/becsim/internal/bec"
)

// Term is one physical contribution to the drift.
type Term interface {
	// AddTo accumulates the contribution at lattice point idx into drift[0..C).
	AddTo(drift []complex128, idx int, psi []complex128, t float64)
}

// TermFunc adapts a plain function to the Term interface.
type TermFunc func(drift []complex128, idx int, psi []complex128, t float64)

func (f TermFunc) AddTo(drift []complex128, idx int, psi []complex128, t float64) {
	f(drift, idx, psi, t)
}

type sized interface {
	Components() int
}

// Drift is the sum of its terms. It is immutable and safe for concurrent
// evaluation.
type Drift struct {
	components int
	terms      []Term
}

// NewDrift composes terms by addition. Terms that declare a component count
// must agree with components.
func NewDrift(components int, terms ...Term) (*Drift, error) {
	if components < 1 {
		return nil, fmt.Errorf("%w: drift needs at least one component", bec.ErrConfiguration)
	}
	for i, term := range terms {
		if s, ok := term.(sized); ok && s.Components() != components {
			return nil, fmt.Errorf("%w: term %d has %d components, drift has %d",
				bec.ErrConfiguration, i, s.Components(), components)
		}
	}
	return &Drift{components: components, terms: terms}, nil
}

func (d *Drift) Components() int { return d.components }

func (d *Drift) Evaluate(drift []complex128, idx int, psi []complex128, t float64) {
	clear(drift[:d.components])
	for _, term := range d.terms {
		term.AddTo(drift, idx, psi, t)
	}
}

// PotentialTerm adds unitary * V_j(x) * psi_j.
type PotentialTerm struct {
	values  [][]float64
	unitary complex128
}

// NewPotentialTerm takes one value per lattice point for each component.
func NewPotentialTerm(values [][]float64, unitary complex128) *PotentialTerm {
	return &PotentialTerm{values: values, unitary: unitary}
}

func (p *PotentialTerm) Components() int { return len(p.values) }

func (p *PotentialTerm) AddTo(drift []complex128, idx int, psi []complex128, _ float64) {
	for j, v := range p.values {
		drift[j] += p.unitary * complex(v[idx], 0) * psi[j]
	}
}

// InteractionTerm adds unitary * sum_k g_jk (|psi_k|^2 + c_jk) * psi_j.
type InteractionTerm struct {
	g           *mat.SymDense
	corrections [][]float64
	unitary     complex128
}

// NewInteractionTerm builds the contact interaction. corrections may be nil.
func NewInteractionTerm(g *mat.SymDense, corrections [][]float64, unitary complex128) *InteractionTerm {
	return &InteractionTerm{g: g, corrections: corrections, unitary: unitary}
}

// WignerCorrections returns -(1 + delta_jk)/2 * modes/V, the ordering
// correction of the truncated Wigner representation.
func WignerCorrections(components, modes int, volume float64) [][]float64 {
	c := make([][]float64, components)
	for j := range c {
		c[j] = make([]float64, components)
		for k := range c[j] {
			delta := 0.0
			if j == k {
				delta = 1
			}
			c[j][k] = -(1 + delta) / 2 * float64(modes) / volume
		}
	}
	return c
}

func (it *InteractionTerm) Components() int { return it.g.SymmetricDim() }

func (it *InteractionTerm) AddTo(drift []complex128, _ int, psi []complex128, _ float64) {
	n := it.g.SymmetricDim()
	for j := 0; j < n; j++ {
		e := 0.0
		for k := 0; k < n; k++ {
			density := real(psi[k])*real(psi[k]) + imag(psi[k])*imag(psi[k])
			if it.corrections != nil {
				density += it.corrections[j][k]
			}
			e += it.g.At(j, k) * density
		}
		drift[j] += it.unitary * complex(e, 0) * psi[j]
	}
}

// Loss is an n-body loss process: Counts[j] atoms of component j are removed
// at Rate per event.
type Loss struct {
	Rate   float64 `yaml:"rate"`
	Counts []int   `yaml:"counts"`
}

// LossTerm adds -(rate/2) * dO*/dpsi_j* * O with O = prod_k psi_k^l_k.
type LossTerm struct {
	loss Loss
}

func NewLossTerm(l Loss) *LossTerm {
	return &LossTerm{loss: l}
}

func (lt *LossTerm) Components() int { return len(lt.loss.Counts) }

func (lt *LossTerm) AddTo(drift []complex128, _ int, psi []complex128, _ float64) {
	o := complex(1, 0)
	for k, l := range lt.loss.Counts {
		o *= ipow(psi[k], l)
	}
	for j, l := range lt.loss.Counts {
		if l == 0 {
			continue
		}
		drift[j] -= complex(lt.loss.Rate/2, 0) * conjGradient(lt.loss.Counts, psi, j) * o
	}
}

// conjGradient returns dO*/dpsi_j* = l_j psi_j*^(l_j-1) prod_{k!=j} psi_k*^l_k.
func conjGradient(counts []int, psi []complex128, j int) complex128 {
	g := complex(float64(counts[j]), 0)
	for k, l := range counts {
		c := complex(real(psi[k]), -imag(psi[k]))
		if k == j {
			g *= ipow(c, l-1)
		} else {
			g *= ipow(c, l)
		}
	}
	return g
}

func ipow(z complex128, n int) complex128 {
	r := complex(1, 0)
	for ; n > 0; n-- {
		r *= z
	}
	return r
}
