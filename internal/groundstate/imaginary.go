package groundstate

import (
	"context"
	"fmt"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/filters"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/integrators"
	"github.com/san-kum/becsim/internal/physics"
	"github.com/san-kum/becsim/internal/samplers"
	"github.com/san-kum/becsim/internal/sim"
)

const (
	DefaultEnergyTolerance = 1e-9
	DefaultSampleTime      = 1e-3
	DefaultStepTolerance   = 1e-6
)

type ImaginaryTimeConfig struct {
	Populations []float64

	// EnergyTolerance stops the relaxation once the energy per particle
	// changes by less than this between sample points.
	EnergyTolerance float64
	SampleTime      float64
	Dt              float64
	Tolerance       float64

	// Samplers are recorded in addition to the energy "E".
	Samplers []sim.NamedSampler
}

// ImaginaryTime relaxes a Thomas-Fermi seed towards the ground state by
// integrating in imaginary time and renormalizing after every step.
type ImaginaryTime struct {
	grid   *grid.Uniform
	system *physics.System
	opts   []sim.Option
}

// NewImaginaryTime accepts integrator options such as a logger, metrics or
// progress observers.
func NewImaginaryTime(g *grid.Uniform, sys *physics.System, opts ...sim.Option) *ImaginaryTime {
	return &ImaginaryTime{grid: g, system: sys, opts: opts}
}

func (it *ImaginaryTime) Run(ctx context.Context, cfg ImaginaryTimeConfig) (*bec.State, *sim.Result, error) {
	cfg = withImaginaryDefaults(cfg)

	psi, err := ThomasFermi(it.grid, it.system, cfg.Populations)
	if err != nil {
		return nil, nil, err
	}

	drift, err := it.system.Drift(it.grid, physics.ImaginaryTime, false)
	if err != nil {
		return nil, nil, err
	}
	stepper, err := integrators.NewSSCD(it.grid, drift,
		integrators.WithKineticCoefficient(it.system.KineticCoefficient(physics.ImaginaryTime)))
	if err != nil {
		return nil, nil, err
	}

	energy, err := samplers.NewEnergy(it.grid, it.system)
	if err != nil {
		return nil, nil, err
	}
	norm, err := filters.NewNormalization(it.grid, cfg.Populations)
	if err != nil {
		return nil, nil, err
	}

	integrator, err := sim.New(stepper, it.opts...)
	if err != nil {
		return nil, nil, err
	}

	named := append([]sim.NamedSampler{
		{Name: "E_conv", Sampler: energy},
		{Name: "E", Sampler: energy},
	}, cfg.Samplers...)

	res, err := integrator.AdaptiveStep(ctx, psi, 0, sim.AdaptiveConfig{
		Dt:              cfg.Dt,
		SampleTime:      cfg.SampleTime,
		MaxDt:           cfg.SampleTime,
		Tolerance:       cfg.Tolerance,
		Samplers:        named,
		Filters:         []bec.Filter{norm},
		WeakConvergence: map[string]float64{"E_conv": cfg.EnergyTolerance},
		Display:         []string{"E"},
	})
	if res != nil {
		delete(res.Samples, "E_conv")
	}
	if err != nil {
		return psi, res, fmt.Errorf("imaginary time relaxation: %w", err)
	}
	return psi, res, nil
}

func withImaginaryDefaults(cfg ImaginaryTimeConfig) ImaginaryTimeConfig {
	if cfg.EnergyTolerance == 0 {
		cfg.EnergyTolerance = DefaultEnergyTolerance
	}
	if cfg.SampleTime == 0 {
		cfg.SampleTime = DefaultSampleTime
	}
	if cfg.Dt == 0 {
		cfg.Dt = cfg.SampleTime / 10
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = DefaultStepTolerance
	}
	return cfg
}
