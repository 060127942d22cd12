package sim

import (
	"fmt"

	"github.com/san-kum/becsim/internal/bec"
)

// Status is the lifecycle state of an integration.
type Status int

const (
	Idle Status = iota
	Running
	Converged
	TimeLimitReached
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Converged:
		return "converged"
	case TimeLimitReached:
		return "time-limit-reached"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) Terminal() bool {
	return s == Converged || s == TimeLimitReached || s == Failed
}

// NamedSampler registers a sampler under the name its series is reported as.
type NamedSampler struct {
	Name    string
	Sampler bec.Sampler
}

// Noise produces Wiener increments for a stochastic stepper.
type Noise interface {
	Generate(dW *bec.State, dt float64)
	RealNoise() bool
}

// Observer is notified at every sample point with the ensemble means of the
// display samplers.
type Observer interface {
	OnSample(p Progress)
}

type ObserverFunc func(p Progress)

func (f ObserverFunc) OnSample(p Progress) { f(p) }

type Progress struct {
	Time    float64
	Dt      float64
	Step    int
	Display map[string][]float64
}

type FixedConfig struct {
	Interval float64
	Steps    int
	Samples  int

	Samplers []NamedSampler
	Filters  []bec.Filter

	// Convergence names samplers whose discretization error is estimated
	// against a run with twice as many steps.
	Convergence []string
	Display     []string
}

type AdaptiveConfig struct {
	Dt   float64
	TEnd float64

	// SampleTime of zero samples after every accepted step.
	SampleTime float64

	Tolerance   float64
	MinDt       float64
	MaxDt       float64
	MaxHalvings int
	Growth      float64

	// MaxSteps of zero is unlimited.
	MaxSteps int

	Samplers []NamedSampler
	Filters  []bec.Filter

	// WeakConvergence stops the run once the ensemble mean of every named
	// sampler changes by less than its tolerance between sample points.
	WeakConvergence map[string]float64
	Display         []string
}

const (
	DefaultMaxHalvings = 20
	DefaultGrowth      = 2.0
)

// Series holds the samples of one observable. Values is indexed
// [sample][trajectory][value]; Mean and StdErr are [sample][value].
type Series struct {
	Values [][][]float64
	Mean   [][]float64
	// StdErr is nil for single-trajectory runs.
	StdErr [][]float64
}

// StepRecord counts the accepted steps between two sample points.
type StepRecord struct {
	Start float64
	End   float64
	Steps int
}

type Result struct {
	Status  Status
	Times   []float64
	Samples map[string]*Series
	Steps   []StepRecord

	// Errors holds the estimated discretization error per sampler of a
	// fixed-step run with convergence checks.
	Errors map[string]float64

	// Time is the simulated time of the last committed state.
	Time     float64
	Accepted int
	Rejected int
}

func newResult(samplers []NamedSampler) *Result {
	r := &Result{
		Status:  Running,
		Samples: make(map[string]*Series, len(samplers)),
		Errors:  make(map[string]float64),
	}
	for _, s := range samplers {
		r.Samples[s.Name] = &Series{}
	}
	return r
}
