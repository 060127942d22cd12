package config

import (
	"maps"
	"math"
	"slices"

	"github.com/san-kum/becsim/internal/physics"
)

// Presets builds a fresh Config per call so callers may override fields.
var Presets = map[string]map[string]func() *Config{
	"harmonic-1d": {
		"ground": func() *Config {
			cfg := harmonic1D()
			cfg.Ground.Method = GroundImaginaryTime
			cfg.Ground.EnergyTolerance = 1e-8
			cfg.Ground.SampleTime = 0.05
			return cfg
		},
		"decay": func() *Config {
			cfg := harmonic1D()
			cfg.System.Losses = []physics.Loss{{Rate: 0.5, Counts: []int{1}}}
			cfg.Evolution = EvolutionConfig{
				Integration:  IntegrationAdaptive,
				Wigner:       true,
				Trajectories: 32,
				Interval:     2,
				Dt:           0.01,
				SampleTime:   0.05,
				Tolerance:    1e-4,
				Samplers:     []string{"N", "E", "density_x"},
				Display:      []string{"N"},
			}
			return cfg
		},
		"interferometer": func() *Config {
			cfg := harmonic1D()
			cfg.System.Components = []physics.Component{{Name: "a", Mass: 1}, {Name: "b", Mass: 1}}
			cfg.System.Interactions = [][]float64{{0.1, 0.095}, {0.095, 0.098}}
			cfg.Ground.Populations = []float64{50, 0}
			cfg.Pulse = &PulseConfig{
				Theta:           math.Pi / 2,
				Detuning:        0.1,
				ReadoutTheta:    math.Pi / 2,
				ReadoutSamplers: []string{"N"},
			}
			cfg.Evolution.Interval = 10
			cfg.Evolution.Steps = 5000
			cfg.Evolution.Samples = 100
			cfg.Evolution.Samplers = []string{"N", "V", "density_x"}
			cfg.Evolution.Display = []string{"V"}
			cfg.Evolution.Convergence = []string{"V"}
			return cfg
		},
	},
	"rb87": {
		"ground": func() *Config {
			cfg := rb87()
			cfg.Ground.Populations = []float64{55000}
			cfg.System.Components = cfg.System.Components[:1]
			cfg.System.ScatteringLengths = [][]float64{{100.4}}
			cfg.System.Losses = nil
			cfg.Pulse = nil
			cfg.Evolution.Samplers = []string{"N", "E", "density_z"}
			cfg.Evolution.Display = []string{"E"}
			cfg.Evolution.Convergence = nil
			return cfg
		},
		"visibility": rb87,
		"visibility-adaptive": func() *Config {
			cfg := rb87()
			ev := &cfg.Evolution
			ev.Integration = IntegrationAdaptive
			ev.Dt = ev.Interval / float64(ev.Samples)
			ev.SampleTime = ev.Dt
			ev.Tolerance = 1e-5
			ev.Steps, ev.Samples, ev.Convergence = 0, 0, nil
			ev.WeakConvergence = map[string]float64{"N": 1e-4}
			return cfg
		},
	},
}

func harmonic1D() *Config {
	cfg := DefaultConfig()
	cfg.Seed = 1234
	cfg.Evolution.Samplers = []string{"N", "E", "density_x"}
	return cfg
}

// rb87 is a two-state Ramsey sequence in a cigar-shaped trap with one-body
// losses, in SI units.
func rb87() *Config {
	return &Config{
		Seed: 1234,
		Grid: GridConfig{Shape: []int{8, 8, 64}, Padding: DefaultPadding},
		System: SystemConfig{
			HBar: HBarSI,
			Components: []physics.Component{
				{Name: "|1,-1>", Mass: MassRb87},
				{Name: "|2,+1>", Mass: MassRb87},
			},
			ScatteringLengths: [][]float64{{100.4, 97.66}, {97.66, 95.44}},
			Trap:              &physics.HarmonicPotential{Frequencies: []float64{97.6, 97.6, 11.96}},
			Losses: []physics.Loss{
				{Rate: 0.2, Counts: []int{1, 0}},
				{Rate: 0.2, Counts: []int{0, 1}},
			},
		},
		Ground: GroundConfig{
			Method:          GroundImaginaryTime,
			Populations:     []float64{55000, 0},
			EnergyTolerance: 1e-9,
			SampleTime:      1e-5,
			Tolerance:       1e-7,
		},
		Pulse: &PulseConfig{
			Theta:           math.Pi / 2,
			Detuning:        37,
			ReadoutTheta:    math.Pi / 2,
			ReadoutSamplers: []string{"N", "density_z"},
		},
		Evolution: EvolutionConfig{
			Integration:  IntegrationFixed,
			Wigner:       true,
			Trajectories: 16,
			Interval:     0.12,
			Steps:        20000,
			Samples:      200,
			Samplers:     []string{"N", "density_z", "V"},
			Display:      []string{"N", "V"},
			Convergence:  []string{"N"},
		},
	}
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	build, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(modelPresets))
}

func ListModels() []string {
	return slices.Sorted(maps.Keys(Presets))
}
