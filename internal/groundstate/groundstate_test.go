package groundstate

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/noise"
	"github.com/san-kum/becsim/internal/physics"
	"github.com/san-kum/becsim/internal/samplers"
	"github.com/san-kum/becsim/internal/sim"
)

// trapped is a 1D condensate in a trap of angular frequency 1 with hbar = m = 1.
func trapped(t *testing.T, couplings [][]float64) *physics.System {
	t.Helper()
	m, err := physics.NewInteractionMatrix(couplings)
	if err != nil {
		t.Fatal(err)
	}
	comps := make([]physics.Component, len(couplings))
	for i := range comps {
		comps[i] = physics.Component{Mass: 1}
	}
	return &physics.System{
		HBar:         1,
		Components:   comps,
		Interactions: m,
		Potential:    &physics.HarmonicPotential{Frequencies: []float64{1 / (2 * math.Pi)}},
	}
}

func TestThomasFermi(t *testing.T) {
	g, _ := grid.New([]int{128}, []float64{20})
	sys := trapped(t, [][]float64{{1, 0}, {0, 1}})

	psi, err := ThomasFermi(g, sys, []float64{50, 0})
	if err != nil {
		t.Fatal(err)
	}

	pop := samplers.NewPopulation(g, false).Sample(psi, 0)[0]
	if math.Abs(pop[0]-50) > 1e-9 {
		t.Errorf("population = %v, want 50", pop[0])
	}
	if pop[1] != 0 {
		t.Errorf("empty component has population %v", pop[1])
	}

	// 1D: N = (4 sqrt(2) / 3) mu^(3/2) / g, edges at x = +-sqrt(2 mu)
	mu := math.Pow(50*3/(4*math.Sqrt2), 2.0/3)
	radius := math.Sqrt(2 * mu)
	for p, x := range g.Xs[0] {
		v := real(psi.Data[p])
		if math.Abs(x) > radius+g.Dxs[0] && v != 0 {
			t.Errorf("x = %v outside the cloud has amplitude %v", x, v)
		}
	}
	if center := real(psi.Data[64]); math.Abs(center*center-mu)/mu > 0.02 {
		t.Errorf("central density %v, want about mu/g = %v", center*center, mu)
	}
}

func TestThomasFermi_Errors(t *testing.T) {
	g, _ := grid.New([]int{16}, []float64{10})

	noTrap := trapped(t, [][]float64{{1}})
	noTrap.Potential = nil
	attractive := trapped(t, [][]float64{{0}})

	tests := []struct {
		name        string
		sys         *physics.System
		populations []float64
	}{
		{"no trap", noTrap, []float64{1}},
		{"no self interaction", attractive, []float64{1}},
		{"population count", trapped(t, [][]float64{{1}}), []float64{1, 1}},
		{"negative population", trapped(t, [][]float64{{1}}), []float64{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ThomasFermi(g, tt.sys, tt.populations); !errors.Is(err, bec.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestChemicalPotential3D(t *testing.T) {
	f := 1 / (2 * math.Pi)
	mu, err := ChemicalPotential3D([]float64{f, f, f}, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := math.Pow(15/(16*math.Sqrt2*math.Pi), 0.4)
	if math.Abs(mu-want) > 1e-12 {
		t.Errorf("mu = %v, want %v", mu, want)
	}

	if _, err := ChemicalPotential3D([]float64{f}, 1, 1, 1); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for a 1D trap, got %v", err)
	}
}

func TestBoxForThomasFermi(t *testing.T) {
	m, _ := physics.NewInteractionMatrix([][]float64{{1}})
	sys := &physics.System{
		HBar:         1,
		Components:   []physics.Component{{Mass: 1}},
		Interactions: m,
		Potential:    &physics.HarmonicPotential{Frequencies: []float64{1, 1, 2}},
	}

	box, err := BoxForThomasFermi(sys, 0, 1000, 1.2)
	if err != nil {
		t.Fatal(err)
	}
	if len(box) != 3 || box[0] != box[1] {
		t.Fatalf("box = %v", box)
	}
	if math.Abs(box[0]/box[2]-2) > 1e-12 {
		t.Errorf("box aspect = %v, want 2", box[0]/box[2])
	}
}

func TestWignerCoherent(t *testing.T) {
	g, _ := grid.New([]int{32}, []float64{4})
	psi := bec.NewState(g.Layout(1, 1))
	for p := range psi.Data {
		psi.Data[p] = 3
	}

	const trajectories = 2000
	w, err := WignerCoherent(g, psi, trajectories, noise.New(5, 1/g.DV, false))
	if err != nil {
		t.Fatal(err)
	}
	if w.Trajectories != trajectories {
		t.Fatalf("got %d trajectories", w.Trajectories)
	}

	// the Wigner-corrected population recovers the coherent one
	rows := samplers.NewPopulation(g, true).Sample(w, 0)
	col := make([]float64, len(rows))
	for r, row := range rows {
		col[r] = row[0]
	}
	mean, sd := stat.MeanStdDev(col, nil)
	want := 9 * g.V
	if se := stat.StdErr(sd, trajectories); math.Abs(mean-want) > 5*se {
		t.Errorf("mean population %v, want %v (stderr %v)", mean, want, se)
	}

	if _, err := WignerCoherent(g, w, 2, noise.New(5, 1, false)); !errors.Is(err, bec.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestImaginaryTime(t *testing.T) {
	g, _ := grid.New([]int{64}, []float64{16})
	sys := trapped(t, [][]float64{{0.1}})

	var updates int
	gs := NewImaginaryTime(g, sys, sim.WithObserver(sim.ObserverFunc(func(sim.Progress) { updates++ })))
	psi, res, err := gs.Run(context.Background(), ImaginaryTimeConfig{
		Populations:     []float64{1},
		EnergyTolerance: 1e-7,
		SampleTime:      0.05,
		Tolerance:       1e-3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != sim.Converged {
		t.Fatalf("status = %v, want converged", res.Status)
	}
	if _, ok := res.Samples["E_conv"]; ok {
		t.Error("stopping sampler should not be reported")
	}
	if updates != len(res.Times) {
		t.Errorf("observer saw %d samples, result has %d", updates, len(res.Times))
	}

	energy := res.Samples["E"].Last()[0]
	if energy < 0.5 || energy > 0.55 {
		t.Errorf("ground state energy per particle %v, want slightly above 0.5", energy)
	}

	pop := samplers.NewPopulation(g, false).Sample(psi, 0)[0][0]
	if math.Abs(pop-1) > 1e-9 {
		t.Errorf("population = %v, want 1", pop)
	}
}
