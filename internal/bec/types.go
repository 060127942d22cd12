package bec

import (
	"fmt"
	"math"
	"math/cmplx"
	"slices"
)

// Layout describes the shape of a state array: components, trajectories and
// the spatial lattice.
type Layout struct {
	Components   int
	Trajectories int
	Shape        []int
}

// Points is the number of lattice points.
func (l Layout) Points() int {
	n := 1
	for _, s := range l.Shape {
		n *= s
	}
	return n
}

// Len is the total number of amplitudes.
func (l Layout) Len() int {
	return l.Components * l.Trajectories * l.Points()
}

func (l Layout) Equal(o Layout) bool {
	return l.Components == o.Components && l.Trajectories == o.Trajectories && slices.Equal(l.Shape, o.Shape)
}

func (l Layout) Validate() error {
	if l.Components < 1 {
		return fmt.Errorf("%w: components must be positive, got %d", ErrConfiguration, l.Components)
	}
	if l.Trajectories < 1 {
		return fmt.Errorf("%w: trajectories must be positive, got %d", ErrConfiguration, l.Trajectories)
	}
	if len(l.Shape) == 0 {
		return fmt.Errorf("%w: empty lattice shape", ErrConfiguration)
	}
	for i, s := range l.Shape {
		if s < 1 {
			return fmt.Errorf("%w: lattice axis %d has size %d", ErrConfiguration, i, s)
		}
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("(%d, %d, %v)", l.Components, l.Trajectories, l.Shape)
}

// State is a dense array of complex amplitudes. Data is indexed as
// ((c*Trajectories + r)*Points + p).
type State struct {
	Layout
	Data []complex128
}

func NewState(l Layout) *State {
	return &State{
		Layout: Layout{Components: l.Components, Trajectories: l.Trajectories, Shape: slices.Clone(l.Shape)},
		Data:   make([]complex128, l.Len()),
	}
}

func (s *State) Clone() *State {
	c := NewState(s.Layout)
	copy(c.Data, s.Data)
	return c
}

// CopyFrom overwrites s with the contents of src.
func (s *State) CopyFrom(src *State) error {
	if !s.Layout.Equal(src.Layout) {
		return fmt.Errorf("%w: %v vs %v", ErrDimensionMismatch, s.Layout, src.Layout)
	}
	copy(s.Data, src.Data)
	return nil
}

// Block returns the spatial slice of component c, trajectory r. The slice
// aliases s.Data.
func (s *State) Block(c, r int) []complex128 {
	p := s.Points()
	off := (c*s.Trajectories + r) * p
	return s.Data[off : off+p]
}

// Index returns the flat offset of (c, r, p).
func (s *State) Index(c, r, p int) int {
	return (c*s.Trajectories+r)*s.Points() + p
}

func (s *State) IsFinite() bool {
	for _, v := range s.Data {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			return false
		}
	}
	return true
}

func (s *State) Norm() float64 {
	sum := 0.0
	for _, v := range s.Data {
		re, im := real(v), imag(v)
		sum += re*re + im*im
	}
	return math.Sqrt(sum)
}

// DistanceRel returns ||s - other|| / ||other||. A zero reference falls back
// to the absolute distance.
func (s *State) DistanceRel(other *State) float64 {
	diff, ref := 0.0, 0.0
	for i, v := range other.Data {
		d := s.Data[i] - v
		diff += real(d)*real(d) + imag(d)*imag(d)
		ref += real(v)*real(v) + imag(v)*imag(v)
	}
	if ref == 0 {
		return math.Sqrt(diff)
	}
	return math.Sqrt(diff / ref)
}

func (s *State) Zero() {
	clear(s.Data)
}
