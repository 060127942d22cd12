// Package sim drives a stepper through time: fixed-step runs with optional
// discretization error estimates, and adaptive runs with step-doubling error
// control, sampling, filtering and convergence-based stopping.
package sim

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/telemetry"
)

// Integrator runs one integration at a time.
type Integrator struct {
	stepper   bec.Stepper
	noise     Noise
	logger    log.Logger
	metrics   *telemetry.Metrics
	observers []Observer
	pool      *BufferPool

	status atomic.Int32
}

type Option func(*Integrator)

func WithNoise(n Noise) Option {
	return func(in *Integrator) { in.noise = n }
}

func WithLogger(l log.Logger) Option {
	return func(in *Integrator) { in.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(in *Integrator) { in.metrics = m }
}

func WithObserver(o Observer) Option {
	return func(in *Integrator) { in.observers = append(in.observers, o) }
}

func WithPool(p *BufferPool) Option {
	return func(in *Integrator) { in.pool = p }
}

func New(stepper bec.Stepper, opts ...Option) (*Integrator, error) {
	if stepper == nil {
		return nil, fmt.Errorf("%w: integrator needs a stepper", bec.ErrConfiguration)
	}

	in := &Integrator{
		stepper: stepper,
		logger:  log.NewNopLogger(),
		pool:    NewBufferPool(),
	}
	for _, opt := range opts {
		opt(in)
	}

	if n := stepper.NoiseSources(); n > 0 {
		if in.noise == nil {
			return nil, fmt.Errorf("%w: stepper has %d noise sources but no noise generator", bec.ErrConfiguration, n)
		}
		if in.noise.RealNoise() != stepper.RealNoise() {
			return nil, fmt.Errorf("%w: noise generator and stepper disagree on real noise", bec.ErrConfiguration)
		}
	}

	in.logger = log.With(in.logger, "subsys", "integrator")
	in.status.Store(int32(Idle))
	return in, nil
}

func (in *Integrator) Status() Status {
	return Status(in.status.Load())
}

func (in *Integrator) noiseLayout() bec.Layout {
	l := in.stepper.Layout()
	return bec.Layout{Components: in.stepper.NoiseSources(), Trajectories: l.Trajectories, Shape: l.Shape}
}

func (in *Integrator) stochastic() bool {
	return in.stepper.NoiseSources() > 0
}

func (in *Integrator) checkState(psi *bec.State) error {
	if psi == nil {
		return fmt.Errorf("%w: nil state", bec.ErrDimensionMismatch)
	}
	if want := in.stepper.Layout(); !psi.Layout.Equal(want) {
		return fmt.Errorf("%w: state %v, stepper %v", bec.ErrDimensionMismatch, psi.Layout, want)
	}
	return nil
}

func (in *Integrator) applyFilters(filters []bec.Filter, psi *bec.State, t float64) {
	for _, f := range filters {
		f.Apply(psi, t)
	}
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w", bec.ErrCanceled, err)
}

// FixedStep integrates over cfg.Interval with a constant step, sampling
// cfg.Samples times after the initial sample. psi is advanced in place.
//
// When cfg.Convergence is set, a second copy of the state is integrated in
// lockstep with half the step on the same Brownian path, and the largest
// relative difference between the two sampled means of each named sampler
// is reported in Result.Errors.
func (in *Integrator) FixedStep(ctx context.Context, psi *bec.State, t0 float64, cfg FixedConfig) (*Result, error) {
	if err := in.checkState(psi); err != nil {
		return nil, err
	}
	if err := validateFixed(cfg); err != nil {
		return nil, err
	}

	in.status.Store(int32(Running))
	dt := cfg.Interval / float64(cfg.Steps)
	every := cfg.Steps / cfg.Samples
	checkConvergence := len(cfg.Convergence) > 0

	level.Debug(in.logger).Log("msg", "fixed-step integration", "t0", t0, "dt", dt, "steps", cfg.Steps, "samples", cfg.Samples)

	r := in.newRun(cfg.Samplers, cfg.Display, t0)
	res := r.result
	res.Time = t0

	next := in.pool.Get(psi.Layout)
	defer in.pool.Put(next)

	var fine, fineHalf, fineNext *bec.State
	if checkConvergence {
		fine = in.pool.GetAndCopy(psi)
		fineHalf = in.pool.Get(psi.Layout)
		fineNext = in.pool.Get(psi.Layout)
		defer in.pool.Put(fine)
		defer in.pool.Put(fineHalf)
		defer in.pool.Put(fineNext)
		for _, name := range cfg.Convergence {
			res.Errors[name] = 0
		}
	}

	var dW, dW1, dW2 *bec.State
	if in.stochastic() {
		dW = in.pool.Get(in.noiseLayout())
		defer in.pool.Put(dW)
		if checkConvergence {
			dW1 = in.pool.Get(in.noiseLayout())
			dW2 = in.pool.Get(in.noiseLayout())
			defer in.pool.Put(dW1)
			defer in.pool.Put(dW2)
		}
	}

	convSamplers := make(map[string]bec.Sampler, len(cfg.Convergence))
	for _, s := range cfg.Samplers {
		if slices.Contains(cfg.Convergence, s.Name) {
			convSamplers[s.Name] = s.Sampler
		}
	}

	r.sample(psi, t0, dt)

	for seg := 0; seg < cfg.Samples; seg++ {
		if err := ctx.Err(); err != nil {
			return r.fail(canceled(err))
		}

		for i := 0; i < every; i++ {
			start := time.Now()
			step := seg*every + i
			t := t0 + float64(step)*dt
			tNext := t0 + float64(step+1)*dt

			if dW != nil {
				if checkConvergence {
					in.noise.Generate(dW1, dt/2)
					in.noise.Generate(dW2, dt/2)
					for k := range dW.Data {
						dW.Data[k] = dW1.Data[k] + dW2.Data[k]
					}
				} else {
					in.noise.Generate(dW, dt)
				}
			}

			in.stepper.Step(next, psi, dW, t, dt)
			in.applyFilters(cfg.Filters, next, tNext)
			if !next.IsFinite() {
				return r.fail(&bec.IntegrationError{Step: step + 1, Time: t, Wrapped: bec.ErrDivergence})
			}

			// fine and psi are committed together once both runs are finite,
			// so a failure leaves them at the previous step
			if checkConvergence {
				in.stepper.Step(fineHalf, fine, dW1, t, dt/2)
				in.applyFilters(cfg.Filters, fineHalf, t+dt/2)
				if !fineHalf.IsFinite() {
					return r.fail(&bec.IntegrationError{Step: step + 1, Time: t, Wrapped: bec.ErrDivergence})
				}
				in.stepper.Step(fineNext, fineHalf, dW2, t+dt/2, dt/2)
				in.applyFilters(cfg.Filters, fineNext, tNext)
				if !fineNext.IsFinite() {
					return r.fail(&bec.IntegrationError{Step: step + 1, Time: t, Wrapped: bec.ErrDivergence})
				}
				copy(fine.Data, fineNext.Data)
			}
			copy(psi.Data, next.Data)

			res.Accepted++
			res.Time = tNext
			r.segSteps++
			in.metrics.Accepted(tNext, dt, time.Since(start))
		}

		r.closeSegment(res.Time)
		r.sample(psi, res.Time, dt)

		for name, s := range convSamplers {
			ref, _ := ensembleStats(s.Sample(fine, res.Time))
			e := relativeChange(res.Samples[name].Last(), ref)
			res.Errors[name] = math.Max(res.Errors[name], e)
		}
	}

	return r.finish(TimeLimitReached), nil
}

func validateFixed(cfg FixedConfig) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %g", bec.ErrConfiguration, cfg.Interval)
	}
	if cfg.Steps < 1 || cfg.Samples < 1 {
		return fmt.Errorf("%w: steps and samples must be positive", bec.ErrConfiguration)
	}
	if cfg.Steps%cfg.Samples != 0 {
		return fmt.Errorf("%w: %d steps do not divide into %d samples", bec.ErrConfiguration, cfg.Steps, cfg.Samples)
	}
	if err := validateSamplers(cfg.Samplers); err != nil {
		return err
	}
	if err := requireSamplers(cfg.Samplers, cfg.Convergence, "convergence"); err != nil {
		return err
	}
	return requireSamplers(cfg.Samplers, cfg.Display, "display")
}

// AdaptiveStep integrates from t0 with step-doubling error control until a
// stopping criterion holds or cfg.TEnd is reached. psi is advanced in place
// and always holds the last accepted state.
//
// Each attempt compares one step of dt against two of dt/2; the two half
// steps are kept when the relative distance is within cfg.Tolerance.
// Rejected attempts halve dt and are never seen by filters, samplers or
// observers.
func (in *Integrator) AdaptiveStep(ctx context.Context, psi *bec.State, t0 float64, cfg AdaptiveConfig) (*Result, error) {
	if err := in.checkState(psi); err != nil {
		return nil, err
	}
	cfg, err := withAdaptiveDefaults(cfg, t0)
	if err != nil {
		return nil, err
	}

	in.status.Store(int32(Running))
	level.Debug(in.logger).Log("msg", "adaptive integration", "t0", t0, "dt", cfg.Dt, "t_end", cfg.TEnd, "tolerance", cfg.Tolerance)

	r := in.newRun(cfg.Samplers, cfg.Display, t0)
	res := r.result
	res.Time = t0

	full := in.pool.Get(psi.Layout)
	half := in.pool.Get(psi.Layout)
	trial := in.pool.Get(psi.Layout)
	defer in.pool.Put(full)
	defer in.pool.Put(half)
	defer in.pool.Put(trial)

	var dW, dW1, dW2 *bec.State
	if in.stochastic() {
		dW = in.pool.Get(in.noiseLayout())
		dW1 = in.pool.Get(in.noiseLayout())
		dW2 = in.pool.Get(in.noiseLayout())
		defer in.pool.Put(dW)
		defer in.pool.Put(dW1)
		defer in.pool.Put(dW2)
	}

	conv := newWeakConvergence(cfg.WeakConvergence)

	end := math.Inf(1)
	if cfg.TEnd > 0 {
		end = cfg.TEnd
	}
	samplePoint := 1
	nextSample := math.Inf(1)
	if cfg.SampleTime > 0 {
		nextSample = t0 + cfg.SampleTime
	}

	t, dt := t0, cfg.Dt
	r.sample(psi, t, dt)
	conv.check(res)

	for {
		if r.segSteps == 0 {
			if err := ctx.Err(); err != nil {
				return r.fail(canceled(err))
			}
		}

		start := time.Now()
		target := math.Min(end, nextSample)
		h, clipped := dt, false
		if reached(t+h, target) {
			h, clipped = target-t, true
		}

		var estimate float64
		for halvings := 0; ; {
			// a step clipped to a boundary may be shorter than MinDt
			if halvings > 0 && h < cfg.MinDt {
				return r.fail(&bec.IntegrationError{
					Step:    res.Accepted + 1,
					Time:    t,
					Wrapped: fmt.Errorf("%w: step %g below minimum %g", bec.ErrConvergenceNotReached, h, cfg.MinDt),
				})
			}

			in.stepPair(full, half, trial, psi, dW, dW1, dW2, t, h)
			if !full.IsFinite() {
				return r.fail(&bec.IntegrationError{Step: res.Accepted + 1, Time: t, Wrapped: bec.ErrDivergence})
			}
			estimate = trial.DistanceRel(full)

			// NaN falls through to the divergence check
			if !(estimate > cfg.Tolerance) {
				break
			}

			res.Rejected++
			in.metrics.Rejected()
			level.Debug(in.logger).Log("msg", "step rejected", "t", t, "dt", h, "error", estimate)

			halvings++
			if halvings > cfg.MaxHalvings {
				return r.fail(&bec.IntegrationError{
					Step:    res.Accepted + 1,
					Time:    t,
					Wrapped: fmt.Errorf("%w: %d halvings at dt=%g", bec.ErrConvergenceNotReached, cfg.MaxHalvings, h),
				})
			}
			h /= 2
			dt /= 2
			clipped = false
		}

		tNext := t + h
		if clipped {
			tNext = target
		}

		in.applyFilters(cfg.Filters, trial, tNext)
		if !trial.IsFinite() {
			return r.fail(&bec.IntegrationError{Step: res.Accepted + 1, Time: t, Wrapped: bec.ErrDivergence})
		}
		copy(psi.Data, trial.Data)

		t = tNext
		res.Accepted++
		res.Time = t
		r.segSteps++
		in.metrics.Accepted(t, h, time.Since(start))

		if estimate < cfg.Tolerance/10 && !clipped && dt < cfg.MaxDt {
			dt = math.Min(dt*cfg.Growth, cfg.MaxDt)
			level.Debug(in.logger).Log("msg", "step grown", "t", t, "dt", dt, "error", estimate)
		}

		atEnd := reached(t, end)
		atSample := cfg.SampleTime == 0 || reached(t, nextSample)
		if atSample && cfg.SampleTime > 0 {
			for reached(t, nextSample) {
				samplePoint++
				nextSample = t0 + float64(samplePoint)*cfg.SampleTime
			}
		}

		if atSample || atEnd {
			r.closeSegment(t)
			r.sample(psi, t, dt)
			if conv.check(res) {
				return r.finish(Converged), nil
			}
			if atEnd {
				return r.finish(TimeLimitReached), nil
			}
		}

		if cfg.MaxSteps > 0 && res.Accepted >= cfg.MaxSteps {
			return r.fail(&bec.IntegrationError{
				Step:    res.Accepted,
				Time:    t,
				Wrapped: fmt.Errorf("%w: %d steps taken", bec.ErrConvergenceNotReached, res.Accepted),
			})
		}
	}
}

// stepPair writes one step of h into full and two steps of h/2 into trial.
// Both paths see the same Brownian increments.
func (in *Integrator) stepPair(full, half, trial, psi, dW, dW1, dW2 *bec.State, t, h float64) {
	if dW != nil {
		in.noise.Generate(dW1, h/2)
		in.noise.Generate(dW2, h/2)
		for i := range dW.Data {
			dW.Data[i] = dW1.Data[i] + dW2.Data[i]
		}
	}

	in.stepper.Step(full, psi, dW, t, h)
	in.stepper.Step(half, psi, dW1, t, h/2)
	in.stepper.Step(trial, half, dW2, t+h/2, h/2)
}

// reached reports whether t is at or past target up to rounding.
func reached(t, target float64) bool {
	if math.IsInf(target, 1) {
		return false
	}
	return t >= target-1e-12*math.Max(1, math.Abs(target))
}

func withAdaptiveDefaults(cfg AdaptiveConfig, t0 float64) (AdaptiveConfig, error) {
	if cfg.Dt <= 0 {
		return cfg, fmt.Errorf("%w: initial dt must be positive, got %g", bec.ErrConfiguration, cfg.Dt)
	}
	if cfg.Tolerance <= 0 {
		return cfg, fmt.Errorf("%w: tolerance must be positive for adaptive stepping", bec.ErrConfiguration)
	}
	if cfg.TEnd < 0 || (cfg.TEnd > 0 && cfg.TEnd <= t0) {
		return cfg, fmt.Errorf("%w: end time %g must be after start time %g", bec.ErrConfiguration, cfg.TEnd, t0)
	}
	if cfg.TEnd == 0 && len(cfg.WeakConvergence) == 0 {
		return cfg, fmt.Errorf("%w: no end time and no convergence criterion", bec.ErrConfiguration)
	}
	if cfg.SampleTime < 0 || cfg.MinDt < 0 || cfg.MaxDt < 0 || cfg.MaxSteps < 0 || cfg.MaxHalvings < 0 {
		return cfg, fmt.Errorf("%w: negative step control parameter", bec.ErrConfiguration)
	}
	if cfg.Growth != 0 && cfg.Growth < 1 {
		return cfg, fmt.Errorf("%w: growth factor %g below 1", bec.ErrConfiguration, cfg.Growth)
	}

	if err := validateSamplers(cfg.Samplers); err != nil {
		return cfg, err
	}
	names := slices.Sorted(maps.Keys(cfg.WeakConvergence))
	if err := requireSamplers(cfg.Samplers, names, "convergence"); err != nil {
		return cfg, err
	}
	for _, name := range names {
		if cfg.WeakConvergence[name] <= 0 {
			return cfg, fmt.Errorf("%w: convergence tolerance for %q must be positive", bec.ErrConfiguration, name)
		}
	}
	if err := requireSamplers(cfg.Samplers, cfg.Display, "display"); err != nil {
		return cfg, err
	}

	if cfg.MaxHalvings == 0 {
		cfg.MaxHalvings = DefaultMaxHalvings
	}
	if cfg.Growth == 0 {
		cfg.Growth = DefaultGrowth
	}
	if cfg.MaxDt == 0 {
		cfg.MaxDt = math.Inf(1)
	}
	if cfg.Dt > cfg.MaxDt {
		cfg.Dt = cfg.MaxDt
	}
	return cfg, nil
}
