package filters_test

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/filters"
	"github.com/san-kum/becsim/internal/grid"
)

func TestBeamSplitter(t *testing.T) {
	g, _ := grid.New([]int{4}, []float64{4})

	tests := []struct {
		name     string
		detuning float64
		t        float64
		theta    float64
		want0    complex128
		want1    complex128
	}{
		{"pi pulse", 0, 0, math.Pi, 0, complex(0, -1)},
		{"half pulse", 0, 0, math.Pi / 2, complex(1/math.Sqrt2, 0), complex(0, -1/math.Sqrt2)},
		// a quarter cycle of detuning rotates the coupling phase by i
		{"detuned", 1, 0.25, math.Pi, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			psi := bec.NewState(g.Layout(2, 2))
			for r := 0; r < 2; r++ {
				for p := range psi.Block(0, r) {
					psi.Block(0, r)[p] = 1
				}
			}

			b := filters.BeamSplitter{Detuning: tt.detuning}
			if err := b.Rotate(psi, tt.t, tt.theta); err != nil {
				t.Fatal(err)
			}
			for r := 0; r < 2; r++ {
				if cmplx.Abs(psi.Block(0, r)[1]-tt.want0) > 1e-12 || cmplx.Abs(psi.Block(1, r)[1]-tt.want1) > 1e-12 {
					t.Errorf("trajectory %d = (%v, %v), want (%v, %v)",
						r, psi.Block(0, r)[1], psi.Block(1, r)[1], tt.want0, tt.want1)
				}
			}
		})
	}
}

func TestBeamSplitter_Unitary(t *testing.T) {
	g, _ := grid.New([]int{8}, []float64{1})
	psi := bec.NewState(g.Layout(2, 1))
	for i := range psi.Data {
		psi.Data[i] = complex(float64(i%3), float64(i%5)-2)
	}
	n0 := psi.Norm()

	if err := (filters.BeamSplitter{Detuning: 0.3}).Rotate(psi, 1.7, 0.9); err != nil {
		t.Fatal(err)
	}
	if math.Abs(psi.Norm()-n0) > 1e-9*n0 {
		t.Errorf("norm changed from %v to %v", n0, psi.Norm())
	}
}

func TestBeamSplitter_OneComponent(t *testing.T) {
	g, _ := grid.New([]int{4}, []float64{1})
	psi := bec.NewState(g.Layout(1, 1))
	if err := (filters.BeamSplitter{}).Rotate(psi, 0, math.Pi); !errors.Is(err, bec.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
