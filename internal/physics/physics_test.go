package physics

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
)

func mustMatrix(t *testing.T, rows [][]float64) *System {
	t.Helper()
	g, err := NewInteractionMatrix(rows)
	if err != nil {
		t.Fatalf("NewInteractionMatrix: %v", err)
	}
	comps := make([]Component, len(rows))
	for i := range comps {
		comps[i] = Component{Mass: 1}
	}
	return &System{HBar: 1, Components: comps, Interactions: g}
}

func TestCoefficients(t *testing.T) {
	if c := KineticCoefficient(RealTime, 1, 1); c != complex(0, 0.5) {
		t.Errorf("real-time kinetic = %v, want 0.5i", c)
	}
	if c := KineticCoefficient(ImaginaryTime, 2, 1); c != complex(1, 0) {
		t.Errorf("imaginary-time kinetic = %v, want 1", c)
	}
	if u := UnitaryCoefficient(RealTime, 2); u != complex(0, -0.5) {
		t.Errorf("real-time unitary = %v, want -0.5i", u)
	}
	if u := UnitaryCoefficient(ImaginaryTime, 1); u != complex(-1, 0) {
		t.Errorf("imaginary-time unitary = %v, want -1", u)
	}
}

func TestParseEvolution(t *testing.T) {
	tests := []struct {
		in   string
		want Evolution
		ok   bool
	}{
		{"real", RealTime, true},
		{"", RealTime, true},
		{"imaginary", ImaginaryTime, true},
		{"sideways", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseEvolution(tt.in)
		if (err == nil) != tt.ok || (tt.ok && got != tt.want) {
			t.Errorf("ParseEvolution(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewInteractionMatrix_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float64
	}{
		{"empty", nil},
		{"ragged", [][]float64{{1, 2}, {2}}},
		{"asymmetric", [][]float64{{1, 2}, {3, 1}}},
		{"negative", [][]float64{{-1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInteractionMatrix(tt.rows)
			if !errors.Is(err, bec.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestInteractionTerm(t *testing.T) {
	sys := mustMatrix(t, [][]float64{{2, 1}, {1, 3}})
	term := NewInteractionTerm(sys.Interactions, nil, complex(-1, 0))

	psi := []complex128{1, 2i}
	drift := make([]complex128, 2)
	term.AddTo(drift, 0, psi, 0)

	// component 0: -(2*1 + 1*4) * 1 = -6
	// component 1: -(1*1 + 3*4) * 2i = -26i
	if cmplx.Abs(drift[0]-(-6)) > 1e-12 {
		t.Errorf("drift[0] = %v, want -6", drift[0])
	}
	if cmplx.Abs(drift[1]-complex(0, -26)) > 1e-12 {
		t.Errorf("drift[1] = %v, want -26i", drift[1])
	}
}

func TestWignerCorrections(t *testing.T) {
	c := WignerCorrections(2, 10, 5)
	if c[0][0] != -2 || c[1][1] != -2 {
		t.Errorf("diagonal corrections = %v, want -2", c)
	}
	if c[0][1] != -1 || c[1][0] != -1 {
		t.Errorf("off-diagonal corrections = %v, want -1", c)
	}
}

func TestLossTerm_OneBodyDecay(t *testing.T) {
	term := NewLossTerm(Loss{Rate: 0.4, Counts: []int{1, 0}})
	psi := []complex128{2 + 1i, 3}
	drift := make([]complex128, 2)
	term.AddTo(drift, 0, psi, 0)

	if cmplx.Abs(drift[0]-(-0.2*(2+1i))) > 1e-12 {
		t.Errorf("drift[0] = %v, want -0.2 psi", drift[0])
	}
	if drift[1] != 0 {
		t.Errorf("drift[1] = %v, want 0", drift[1])
	}
}

func TestLossTerm_TwoBodyCross(t *testing.T) {
	term := NewLossTerm(Loss{Rate: 2, Counts: []int{1, 1}})
	psi := []complex128{1i, 2}
	drift := make([]complex128, 2)
	term.AddTo(drift, 0, psi, 0)

	// drift_0 = -(k/2) |psi_1|^2 psi_0, drift_1 = -(k/2) |psi_0|^2 psi_1
	if cmplx.Abs(drift[0]-complex(0, -4)) > 1e-12 {
		t.Errorf("drift[0] = %v, want -4i", drift[0])
	}
	if cmplx.Abs(drift[1]-(-2)) > 1e-12 {
		t.Errorf("drift[1] = %v, want -2", drift[1])
	}
}

func TestLossDiffusion(t *testing.T) {
	d, err := NewLossDiffusion(2, []Loss{{Rate: 4, Counts: []int{1, 0}}, {Rate: 1, Counts: []int{0, 2}}})
	if err != nil {
		t.Fatalf("NewLossDiffusion: %v", err)
	}
	if d.NoiseSources() != 2 || d.RealNoise() {
		t.Fatalf("unexpected noise declaration: %d sources, real=%v", d.NoiseSources(), d.RealNoise())
	}

	out := make([]complex128, 2)
	psi := []complex128{1, 1i}

	d.Evaluate(out, 0, psi, 0, 0)
	if cmplx.Abs(out[0]-2) > 1e-12 || out[1] != 0 {
		t.Errorf("source 0 = %v, want [2 0]", out)
	}

	// two-body: b_1 = sqrt(1) * 2 * conj(psi_1)
	d.Evaluate(out, 0, psi, 0, 1)
	if out[0] != 0 || cmplx.Abs(out[1]-complex(0, -2)) > 1e-12 {
		t.Errorf("source 1 = %v, want [0 -2i]", out)
	}

	if _, err := NewLossDiffusion(2, nil); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for no losses, got %v", err)
	}
}

func TestNewDrift_ComponentMismatch(t *testing.T) {
	_, err := NewDrift(2, NewPotentialTerm([][]float64{{0}}, -1))
	if !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestDrift_SumsTerms(t *testing.T) {
	a := TermFunc(func(drift []complex128, _ int, _ []complex128, _ float64) { drift[0] += 1 })
	b := TermFunc(func(drift []complex128, _ int, _ []complex128, tm float64) { drift[0] += complex(tm, 0) })
	d, err := NewDrift(1, a, b)
	if err != nil {
		t.Fatalf("NewDrift: %v", err)
	}

	out := []complex128{99}
	d.Evaluate(out, 0, []complex128{0}, 2)
	if out[0] != 3 {
		t.Errorf("Evaluate = %v, want 3", out[0])
	}
}

func TestHarmonicPotential(t *testing.T) {
	g, _ := grid.New([]int{4}, []float64{4})
	h := &HarmonicPotential{
		Frequencies:   []float64{1 / (2 * math.Pi)},
		Displacements: []Displacement{{Component: 1, Axis: 0, Value: 0.5}},
	}

	values, err := h.Values(g, []Component{{Mass: 1}, {Mass: 2}})
	if err != nil {
		t.Fatalf("Values: %v", err)
	}

	// x = -1.5: V = x^2/2
	if math.Abs(values[0][0]-1.125) > 1e-12 {
		t.Errorf("V_0(-1.5) = %v, want 1.125", values[0][0])
	}
	// component 1: m=2, x + 0.5 = -1: V = 2 * 1 / 2 = 1
	if math.Abs(values[1][0]-1) > 1e-12 {
		t.Errorf("V_1(-1.5) = %v, want 1", values[1][0])
	}

	bad := &HarmonicPotential{Frequencies: []float64{1, 1}}
	if _, err := bad.Values(g, []Component{{Mass: 1}}); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestSystem_Drift(t *testing.T) {
	g, _ := grid.New([]int{4}, []float64{4})
	sys := mustMatrix(t, [][]float64{{1}})
	sys.Losses = []Loss{{Rate: 1, Counts: []int{1}}}

	realDrift, err := sys.Drift(g, RealTime, false)
	if err != nil {
		t.Fatalf("Drift: %v", err)
	}
	out := make([]complex128, 1)
	realDrift.Evaluate(out, 0, []complex128{1}, 0)
	// -i * 1 * 1 - 0.5
	if cmplx.Abs(out[0]-complex(-0.5, -1)) > 1e-12 {
		t.Errorf("real-time drift = %v, want -0.5-1i", out[0])
	}

	imagDrift, err := sys.Drift(g, ImaginaryTime, false)
	if err != nil {
		t.Fatalf("Drift: %v", err)
	}
	imagDrift.Evaluate(out, 0, []complex128{1}, 0)
	if cmplx.Abs(out[0]-(-1)) > 1e-12 {
		t.Errorf("imaginary-time drift = %v, want -1 (no losses)", out[0])
	}

	diff, err := sys.Diffusion(true)
	if err != nil || diff == nil || diff.NoiseSources() != 1 {
		t.Errorf("Diffusion(true) = %v, %v", diff, err)
	}
	if diff, _ := sys.Diffusion(false); diff != nil {
		t.Error("Diffusion(false) should be nil")
	}
}

func TestSystem_Validate(t *testing.T) {
	sys := mustMatrix(t, [][]float64{{1}})
	if err := sys.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sys.Losses = []Loss{{Rate: 1, Counts: []int{1, 0}}}
	if err := sys.Validate(); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for bad loss, got %v", err)
	}

	sys.Losses = nil
	sys.HBar = 0
	if err := sys.Validate(); !errors.Is(err, bec.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for hbar, got %v", err)
	}
}
