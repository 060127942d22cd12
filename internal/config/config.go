package config

import (
	"fmt"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/groundstate"
	"github.com/san-kum/becsim/internal/physics"
	"github.com/san-kum/becsim/internal/samplers"
)

const (
	DefaultHBar         = 1.0
	DefaultPadding      = 1.2
	DefaultTrajectories = 1
	DefaultInterval     = 1.0
	DefaultSteps        = 1000
	DefaultSamples      = 100
	DefaultTolerance    = 1e-5

	// SI values for presets that work in physical units.
	HBarSI     = 1.054571817e-34
	BohrRadius = 5.29177210903e-11
	MassRb87   = 1.443160648e-25
)

const (
	GroundThomasFermi   = "thomas-fermi"
	GroundImaginaryTime = "imaginary-time"

	IntegrationAdaptive = "adaptive"
	IntegrationFixed    = "fixed"
)

type Config struct {
	Name      string          `yaml:"name,omitempty"`
	Seed      uint64          `yaml:"seed"`
	Grid      GridConfig      `yaml:"grid"`
	System    SystemConfig    `yaml:"system"`
	Ground    GroundConfig    `yaml:"ground"`
	Pulse     *PulseConfig    `yaml:"pulse,omitempty"`
	Evolution EvolutionConfig `yaml:"evolution"`
}

type GridConfig struct {
	Shape []int `yaml:"shape"`
	// Box of zero length is sized to the Thomas-Fermi cloud of the first
	// component, scaled by Padding.
	Box     []float64 `yaml:"box,omitempty"`
	Padding float64   `yaml:"padding,omitempty"`
}

type SystemConfig struct {
	HBar       float64             `yaml:"hbar"`
	Components []physics.Component `yaml:"components"`

	// ScatteringLengths (in Bohr radii) take precedence over the couplings
	// in Interactions when set.
	Interactions      [][]float64 `yaml:"interactions,omitempty"`
	ScatteringLengths [][]float64 `yaml:"scattering_lengths,omitempty"`

	Trap   *physics.HarmonicPotential `yaml:"trap,omitempty"`
	Losses []physics.Loss             `yaml:"losses,omitempty"`
}

type GroundConfig struct {
	Method          string    `yaml:"method"`
	Populations     []float64 `yaml:"populations"`
	EnergyTolerance float64   `yaml:"energy_tolerance,omitempty"`
	SampleTime      float64   `yaml:"sample_time,omitempty"`
	Tolerance       float64   `yaml:"tolerance,omitempty"`
}

// PulseConfig couples the first two components with a beam splitter before
// the evolution starts. Samplers named in ReadoutSamplers observe a copy of
// the state after a second pulse of area ReadoutTheta.
type PulseConfig struct {
	Theta           float64  `yaml:"theta"`
	Detuning        float64  `yaml:"detuning"`
	ReadoutTheta    float64  `yaml:"readout_theta,omitempty"`
	ReadoutSamplers []string `yaml:"readout_samplers,omitempty"`
}

type EvolutionConfig struct {
	Integration  string   `yaml:"integration"`
	Wigner       bool     `yaml:"wigner"`
	Trajectories int      `yaml:"trajectories"`
	Iterations   int      `yaml:"iterations,omitempty"`
	Interval     float64  `yaml:"interval"`
	Samplers     []string `yaml:"samplers"`
	Display      []string `yaml:"display,omitempty"`

	// fixed step
	Steps       int      `yaml:"steps,omitempty"`
	Samples     int      `yaml:"samples,omitempty"`
	Convergence []string `yaml:"convergence,omitempty"`

	// adaptive step
	Dt              float64            `yaml:"dt,omitempty"`
	SampleTime      float64            `yaml:"sample_time,omitempty"`
	Tolerance       float64            `yaml:"tolerance,omitempty"`
	MinDt           float64            `yaml:"min_dt,omitempty"`
	MaxDt           float64            `yaml:"max_dt,omitempty"`
	MaxHalvings     int                `yaml:"max_halvings,omitempty"`
	WeakConvergence map[string]float64 `yaml:"weak_convergence,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{
			Shape:   []int{128},
			Box:     []float64{20},
			Padding: DefaultPadding,
		},
		System: SystemConfig{
			HBar:         DefaultHBar,
			Components:   []physics.Component{{Name: "a", Mass: 1}},
			Interactions: [][]float64{{0.1}},
			Trap:         &physics.HarmonicPotential{Frequencies: []float64{1 / (2 * math.Pi)}},
		},
		Ground: GroundConfig{
			Method:      GroundThomasFermi,
			Populations: []float64{50},
		},
		Evolution: EvolutionConfig{
			Integration:  IntegrationFixed,
			Trajectories: DefaultTrajectories,
			Interval:     DefaultInterval,
			Steps:        DefaultSteps,
			Samples:      DefaultSamples,
			Samplers:     []string{"N", "E"},
			Display:      []string{"N"},
			Tolerance:    DefaultTolerance,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	sys := c.System
	comps := len(sys.Components)
	if comps == 0 {
		return configErr("at least one component is required")
	}
	if sys.Interactions == nil && sys.ScatteringLengths == nil {
		return configErr("set interactions or scattering_lengths")
	}
	if len(c.Grid.Shape) == 0 {
		return configErr("grid shape is empty")
	}
	if len(c.Grid.Box) != 0 && len(c.Grid.Box) != len(c.Grid.Shape) {
		return configErr("grid box has %d sizes for %d axes", len(c.Grid.Box), len(c.Grid.Shape))
	}
	if len(c.Grid.Box) == 0 && sys.Trap == nil {
		return configErr("an automatic grid box needs a trap")
	}

	switch c.Ground.Method {
	case GroundThomasFermi, GroundImaginaryTime:
	default:
		return configErr("unknown ground state method %q", c.Ground.Method)
	}
	if len(c.Ground.Populations) != comps {
		return configErr("%d ground state populations for %d components", len(c.Ground.Populations), comps)
	}

	if p := c.Pulse; p != nil {
		if comps < 2 {
			return configErr("a beam splitter needs two components")
		}
		for _, name := range p.ReadoutSamplers {
			if !slices.Contains(c.Evolution.Samplers, name) {
				return configErr("readout sampler %q is not in the sampler list", name)
			}
		}
	}

	return c.Evolution.validate()
}

func (e *EvolutionConfig) validate() error {
	if e.Trajectories < 1 {
		return configErr("trajectories must be positive, got %d", e.Trajectories)
	}
	if len(e.Samplers) == 0 {
		return configErr("no samplers requested")
	}
	for _, name := range e.Samplers {
		if !slices.Contains(samplers.Names, name) {
			return configErr("unknown sampler %q", name)
		}
	}
	for _, names := range [][]string{e.Display, e.Convergence} {
		for _, name := range names {
			if !slices.Contains(e.Samplers, name) {
				return configErr("sampler %q is not in the sampler list", name)
			}
		}
	}
	for name, tol := range e.WeakConvergence {
		if !slices.Contains(e.Samplers, name) {
			return configErr("weak convergence sampler %q is not in the sampler list", name)
		}
		if tol <= 0 {
			return configErr("weak convergence tolerance for %q must be positive", name)
		}
	}

	switch e.Integration {
	case IntegrationFixed:
		if e.Interval <= 0 || e.Steps < 1 || e.Samples < 1 {
			return configErr("fixed-step integration needs a positive interval, steps and samples")
		}
		if e.Steps%e.Samples != 0 {
			return configErr("steps (%d) must be a multiple of samples (%d)", e.Steps, e.Samples)
		}
	case IntegrationAdaptive:
		if e.Interval <= 0 && len(e.WeakConvergence) == 0 {
			return configErr("adaptive integration needs an interval or weak convergence criteria")
		}
	default:
		return configErr("unknown integration %q", e.Integration)
	}
	return nil
}

// BuildSystem converts the system section into a validated physics.System.
func (c *Config) BuildSystem() (*physics.System, error) {
	s := c.System
	rows := s.Interactions
	if s.ScatteringLengths != nil {
		rows = couplings(s.HBar, s.Components, s.ScatteringLengths)
	}
	g, err := physics.NewInteractionMatrix(rows)
	if err != nil {
		return nil, err
	}

	sys := &physics.System{
		HBar:         s.HBar,
		Components:   s.Components,
		Interactions: g,
		Potential:    s.Trap,
		Losses:       s.Losses,
	}
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	return sys, nil
}

// couplings is 2 pi hbar^2 a_jk (1/m_j + 1/m_k) with a in Bohr radii.
func couplings(hbar float64, comps []physics.Component, lengths [][]float64) [][]float64 {
	rows := make([][]float64, len(lengths))
	for j, row := range lengths {
		rows[j] = make([]float64, len(row))
		for k, a := range row {
			if j >= len(comps) || k >= len(comps) {
				continue
			}
			rows[j][k] = 2 * math.Pi * hbar * hbar * a * BohrRadius * (1/comps[j].Mass + 1/comps[k].Mass)
		}
	}
	return rows
}

func (c *Config) BuildGrid(sys *physics.System) (*grid.Uniform, error) {
	box := c.Grid.Box
	if len(box) == 0 {
		pad := c.Grid.Padding
		if pad <= 0 {
			pad = DefaultPadding
		}
		var err error
		box, err = groundstate.BoxForThomasFermi(sys, 0, c.Ground.Populations[0], pad)
		if err != nil {
			return nil, err
		}
	}
	return grid.New(c.Grid.Shape, box)
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", bec.ErrConfiguration, fmt.Sprintf(format, args...))
}
