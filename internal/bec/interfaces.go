package bec

// Drift is the deterministic right-hand side of the equation of motion,
// evaluated at a single lattice point for all components at once.
type Drift interface {
	Components() int
	// Evaluate overwrites drift[0..C) with the drift at lattice point idx.
	Evaluate(drift []complex128, idx int, psi []complex128, t float64)
}

// Diffusion is the stochastic right-hand side: one term per component for
// each noise source.
type Diffusion interface {
	Components() int
	NoiseSources() int
	RealNoise() bool
	// Evaluate overwrites out[0..C) with the diffusion term of one noise source.
	Evaluate(out []complex128, idx int, psi []complex128, t float64, source int)
}

// Stepper advances a state by one time step. Implementations are pure
// given their noise input.
type Stepper interface {
	Layout() Layout
	// NoiseSources is zero for deterministic steppers.
	NoiseSources() int
	RealNoise() bool
	// Step writes the state at t+dt into dst. dW is ignored when the stepper
	// has no noise sources.
	Step(dst, src, dW *State, t, dt float64)
}

// Sampler is a read-only observable. It returns one row of values per
// trajectory.
type Sampler interface {
	Sample(psi *State, t float64) [][]float64
}

type SamplerFunc func(psi *State, t float64) [][]float64

func (f SamplerFunc) Sample(psi *State, t float64) [][]float64 { return f(psi, t) }

// Filter corrects a state in place after an accepted step.
type Filter interface {
	Apply(psi *State, t float64)
}

type FilterFunc func(psi *State, t float64)

func (f FilterFunc) Apply(psi *State, t float64) { f(psi, t) }
