package samplers

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/filters"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/physics"
)

func uniformState(g *grid.Uniform, components int, values ...complex128) *bec.State {
	s := bec.NewState(g.Layout(components, len(values)))
	for c := 0; c < components; c++ {
		for r, v := range values {
			block := s.Block(c, r)
			for p := range block {
				block[p] = v
			}
		}
	}
	return s
}

func TestPopulation(t *testing.T) {
	g, _ := grid.New([]int{4}, []float64{4})
	psi := uniformState(g, 2, 1, 2)

	tests := []struct {
		name   string
		wigner bool
		want   [][]float64
	}{
		{"plain", false, [][]float64{{4, 4}, {16, 16}}},
		// modifier -modes/(2V) = -0.5 per point
		{"wigner", true, [][]float64{{2, 2}, {14, 14}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPopulation(g, tt.wigner).Sample(psi, 0)
			for r := range tt.want {
				for c := range tt.want[r] {
					if math.Abs(got[r][c]-tt.want[r][c]) > 1e-12 {
						t.Errorf("trajectory %d component %d = %v, want %v", r, c, got[r][c], tt.want[r][c])
					}
				}
			}
		})
	}

	total := NewTotal(g, false).Sample(psi, 0)
	if total[0][0] != 8 || total[1][0] != 32 {
		t.Errorf("total = %v, want [[8] [32]]", total)
	}
}

func TestDensityProjection(t *testing.T) {
	g, _ := grid.New([]int{2, 3}, []float64{2, 3})
	psi := uniformState(g, 1, 1)

	tests := []struct {
		axis int
		want []float64
	}{
		{0, []float64{3, 3}},
		{1, []float64{2, 2, 2}},
	}
	for _, tt := range tests {
		d, err := NewDensityProjection(g, tt.axis, false)
		if err != nil {
			t.Fatal(err)
		}
		row := d.Sample(psi, 0)[0]
		if len(row) != len(tt.want) {
			t.Fatalf("axis %d: got %d values, want %d", tt.axis, len(row), len(tt.want))
		}
		for i := range row {
			if math.Abs(row[i]-tt.want[i]) > 1e-12 {
				t.Errorf("axis %d: row[%d] = %v, want %v", tt.axis, i, row[i], tt.want[i])
			}
		}
	}

	if _, err := NewDensityProjection(g, 2, false); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for a bad axis, got %v", err)
	}
}

func system(t *testing.T, g float64) *physics.System {
	t.Helper()
	m, err := physics.NewInteractionMatrix([][]float64{{g}})
	if err != nil {
		t.Fatal(err)
	}
	return &physics.System{HBar: 1, Components: []physics.Component{{Mass: 1}}, Interactions: m}
}

func TestEnergy_PlaneWave(t *testing.T) {
	g, _ := grid.New([]int{16}, []float64{2 * math.Pi})
	e, err := NewEnergy(g, system(t, 0))
	if err != nil {
		t.Fatal(err)
	}

	psi := bec.NewState(g.Layout(1, 1))
	for p, x := range g.Xs[0] {
		psi.Data[p] = cmplx.Exp(complex(0, 3*x))
	}

	if got := e.Sample(psi, 0)[0][0]; math.Abs(got-4.5) > 1e-10 {
		t.Errorf("energy per particle = %v, want k^2/2 = 4.5", got)
	}
}

func TestEnergy_MeanField(t *testing.T) {
	g, _ := grid.New([]int{8}, []float64{4})
	e, err := NewEnergy(g, system(t, 2))
	if err != nil {
		t.Fatal(err)
	}

	// uniform density n: kinetic energy vanishes, E/N = g n / 2
	psi := uniformState(g, 1, 1, 2)
	rows := e.Sample(psi, 0)
	if math.Abs(rows[0][0]-1) > 1e-12 {
		t.Errorf("trajectory 0: E/N = %v, want 1", rows[0][0])
	}
	if math.Abs(rows[1][0]-4) > 1e-12 {
		t.Errorf("trajectory 1: E/N = %v, want 4", rows[1][0])
	}
}

func TestEnergy_Trap(t *testing.T) {
	g, _ := grid.New([]int{4}, []float64{4})
	sys := system(t, 0)
	sys.Potential = &physics.HarmonicPotential{Frequencies: []float64{1 / (2 * math.Pi)}}
	e, err := NewEnergy(g, sys)
	if err != nil {
		t.Fatal(err)
	}

	// x = +-0.5, +-1.5: mean of x^2/2 is (0.25 + 2.25)/4
	psi := uniformState(g, 1, 1)
	if got := e.Sample(psi, 0)[0][0]; math.Abs(got-0.625) > 1e-12 {
		t.Errorf("E/N = %v, want 0.625", got)
	}
}

func TestVisibility(t *testing.T) {
	g, _ := grid.New([]int{4}, []float64{4})
	psi := bec.NewState(g.Layout(2, 1))
	for p := range psi.Block(0, 0) {
		psi.Block(0, 0)[p] = 1
	}

	v := NewVisibility(g, false)
	if got := v.Sample(psi, 0)[0][0]; got != 0 {
		t.Errorf("single-component visibility = %v, want 0", got)
	}

	half := NewAfterPulse(v, filters.BeamSplitter{}, math.Pi/2)
	if got := half.Sample(psi, 0)[0][0]; math.Abs(got-1) > 1e-12 {
		t.Errorf("visibility after pi/2 pulse = %v, want 1", got)
	}
	// the pulse acts on a copy
	if psi.Block(1, 0)[0] != 0 {
		t.Errorf("AfterPulse modified the state: %v", psi.Block(1, 0))
	}
}

func TestByName(t *testing.T) {
	g, _ := grid.New([]int{4, 4, 8}, []float64{1, 1, 2})
	sys := &physics.System{HBar: 1, Components: []physics.Component{{Mass: 1}}}
	sys.Interactions, _ = physics.NewInteractionMatrix([][]float64{{1}})

	for _, name := range Names {
		t.Run(name, func(t *testing.T) {
			s, err := ByName(name, g, sys, false)
			if err != nil || s == nil {
				t.Fatalf("ByName(%q) = %v, %v", name, s, err)
			}
		})
	}

	psi := bec.NewState(g.Layout(1, 1))
	s, _ := ByName("density_z", g, sys, false)
	if got := len(s.Sample(psi, 0)[0]); got != 8 {
		t.Errorf("density_z has %d values, want 8", got)
	}

	if _, err := ByName("phase", g, sys, false); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	flat, _ := grid.New([]int{8}, []float64{1})
	if _, err := ByName("density_y", flat, sys, false); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for a missing axis, got %v", err)
	}
}
