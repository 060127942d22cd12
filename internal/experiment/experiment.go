// Package experiment assembles a configured simulation: the ground state,
// the optional beam splitter pulse, Wigner sampling of the initial state and
// the real-time evolution.
package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/config"
	"github.com/san-kum/becsim/internal/filters"
	"github.com/san-kum/becsim/internal/grid"
	"github.com/san-kum/becsim/internal/groundstate"
	"github.com/san-kum/becsim/internal/integrators"
	"github.com/san-kum/becsim/internal/noise"
	"github.com/san-kum/becsim/internal/physics"
	"github.com/san-kum/becsim/internal/samplers"
	"github.com/san-kum/becsim/internal/sim"
)

type Experiment struct {
	cfg    *config.Config
	grid   *grid.Uniform
	system *physics.System
	logger log.Logger
	opts   []sim.Option

	// seeds the vacuum and the integration noise
	seeds *rand.Rand
}

type Option func(*Experiment)

func WithLogger(l log.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

// WithIntegratorOptions are passed to every integrator the experiment
// creates.
func WithIntegratorOptions(opts ...sim.Option) Option {
	return func(e *Experiment) { e.opts = append(e.opts, opts...) }
}

func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sys, err := cfg.BuildSystem()
	if err != nil {
		return nil, err
	}
	g, err := cfg.BuildGrid(sys)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		cfg:    cfg,
		grid:   g,
		system: sys,
		logger: log.NewNopLogger(),
		seeds:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.With(e.logger, "subsys", "experiment")
	return e, nil
}

func (e *Experiment) Grid() *grid.Uniform     { return e.grid }
func (e *Experiment) System() *physics.System { return e.system }

// GroundState prepares the single-trajectory initial state. The result is
// nil for a Thomas-Fermi state.
func (e *Experiment) GroundState(ctx context.Context, opts ...sim.Option) (*bec.State, *sim.Result, error) {
	gc := e.cfg.Ground
	level.Info(e.logger).Log("msg", "preparing ground state", "method", gc.Method, "populations", fmt.Sprint(gc.Populations))

	if gc.Method == config.GroundThomasFermi {
		psi, err := groundstate.ThomasFermi(e.grid, e.system, gc.Populations)
		return psi, nil, err
	}

	extra, err := e.namedSamplers(false, false, func(name string) bool { return name != "E" })
	if err != nil {
		return nil, nil, err
	}
	it := groundstate.NewImaginaryTime(e.grid, e.system, append(slices.Clone(e.opts), opts...)...)
	return it.Run(ctx, groundstate.ImaginaryTimeConfig{
		Populations:     gc.Populations,
		EnergyTolerance: gc.EnergyTolerance,
		SampleTime:      gc.SampleTime,
		Tolerance:       gc.Tolerance,
		Samplers:        extra,
	})
}

// Prepare applies the initial pulse to the ground state and, for Wigner
// runs, replaces it with an ensemble of coherent-state samples.
func (e *Experiment) Prepare(ground *bec.State) (*bec.State, error) {
	ev := e.cfg.Evolution
	psi := ground

	if p := e.cfg.Pulse; p != nil {
		psi = psi.Clone()
		if err := (filters.BeamSplitter{Detuning: p.Detuning}).Rotate(psi, 0, p.Theta); err != nil {
			return nil, err
		}
	}

	if ev.Wigner {
		vacuum := noise.New(e.seeds.Uint64(), 1/e.grid.DV, false)
		return groundstate.WignerCoherent(e.grid, psi, ev.Trajectories, vacuum)
	}

	out := bec.NewState(e.grid.Layout(psi.Components, ev.Trajectories))
	for c := 0; c < psi.Components; c++ {
		for r := 0; r < ev.Trajectories; r++ {
			copy(out.Block(c, r), psi.Block(c, 0))
		}
	}
	return out, nil
}

// Evolve integrates psi in real time from t = 0 as configured. psi is
// advanced in place.
func (e *Experiment) Evolve(ctx context.Context, psi *bec.State, opts ...sim.Option) (*sim.Result, error) {
	ev := e.cfg.Evolution

	drift, err := e.system.Drift(e.grid, physics.RealTime, ev.Wigner)
	if err != nil {
		return nil, err
	}
	stepOpts := []integrators.Option{
		integrators.WithTrajectories(ev.Trajectories),
		integrators.WithKineticCoefficient(e.system.KineticCoefficient(physics.RealTime)),
	}
	if ev.Iterations > 0 {
		stepOpts = append(stepOpts, integrators.WithIterations(ev.Iterations))
	}
	diffusion, err := e.system.Diffusion(ev.Wigner)
	if err != nil {
		return nil, err
	}
	if diffusion != nil {
		stepOpts = append(stepOpts, integrators.WithDiffusion(diffusion))
	}
	stepper, err := integrators.NewSSCD(e.grid, drift, stepOpts...)
	if err != nil {
		return nil, err
	}

	simOpts := append(slices.Clone(e.opts), opts...)
	if stepper.NoiseSources() > 0 {
		simOpts = append(simOpts, sim.WithNoise(noise.New(e.seeds.Uint64(), 1/e.grid.DV, stepper.RealNoise())))
	}
	integrator, err := sim.New(stepper, simOpts...)
	if err != nil {
		return nil, err
	}

	named, err := e.namedSamplers(ev.Wigner, true, nil)
	if err != nil {
		return nil, err
	}

	level.Info(e.logger).Log(
		"msg", "starting evolution",
		"integration", ev.Integration,
		"wigner", ev.Wigner,
		"trajectories", ev.Trajectories,
		"noise_sources", stepper.NoiseSources(),
	)

	if ev.Integration == config.IntegrationFixed {
		return integrator.FixedStep(ctx, psi, 0, sim.FixedConfig{
			Interval:    ev.Interval,
			Steps:       ev.Steps,
			Samples:     ev.Samples,
			Samplers:    named,
			Convergence: ev.Convergence,
			Display:     ev.Display,
		})
	}

	dt := ev.Dt
	if dt <= 0 {
		dt = config.DefaultInterval / config.DefaultSteps
	}
	tol := ev.Tolerance
	if tol <= 0 {
		tol = config.DefaultTolerance
	}
	// a zero end time runs until weak convergence
	return integrator.AdaptiveStep(ctx, psi, 0, sim.AdaptiveConfig{
		Dt:              dt,
		TEnd:            math.Max(ev.Interval, 0),
		SampleTime:      ev.SampleTime,
		Tolerance:       tol,
		MinDt:           ev.MinDt,
		MaxDt:           ev.MaxDt,
		MaxHalvings:     ev.MaxHalvings,
		Samplers:        named,
		WeakConvergence: ev.WeakConvergence,
		Display:         ev.Display,
	})
}

// Run prepares the ground state and evolves it.
func (e *Experiment) Run(ctx context.Context, opts ...sim.Option) (*sim.Result, error) {
	ground, _, err := e.GroundState(ctx)
	if err != nil {
		return nil, err
	}
	psi, err := e.Prepare(ground)
	if err != nil {
		return nil, err
	}
	return e.Evolve(ctx, psi, opts...)
}

// namedSamplers builds the configured samplers accepted by keep (all when
// keep is nil). With readout set, the pulse readout samplers observe the
// state after the second pulse.
func (e *Experiment) namedSamplers(wigner, readout bool, keep func(string) bool) ([]sim.NamedSampler, error) {
	var pulsed []string
	var splitter filters.BeamSplitter
	var theta float64
	if p := e.cfg.Pulse; p != nil && readout {
		pulsed = p.ReadoutSamplers
		splitter = filters.BeamSplitter{Detuning: p.Detuning}
		theta = p.ReadoutTheta
	}

	var named []sim.NamedSampler
	for _, name := range e.cfg.Evolution.Samplers {
		if keep != nil && !keep(name) {
			continue
		}
		s, err := samplers.ByName(name, e.grid, e.system, wigner)
		if err != nil {
			return nil, err
		}
		if slices.Contains(pulsed, name) {
			s = samplers.NewAfterPulse(s, splitter, theta)
		}
		named = append(named, sim.NamedSampler{Name: name, Sampler: s})
	}
	return named, nil
}
