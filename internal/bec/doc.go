// Package bec provides core primitives for integrating multi-component
// Bose-Einstein condensate wavefunctions.
//
// The package defines the types shared by every stage of an integration run:
//
//   - [Layout], [State]: dense complex amplitudes indexed by
//     (component, trajectory, lattice point)
//   - [Drift], [Diffusion]: the right-hand side of the equation of motion
//   - [Stepper]: advances a state by one time step
//   - [Sampler], [Filter]: read-only observers and in-place state correctors
//
// # Example
//
//	drift, _ := sys.Drift(g, physics.RealTime, false)
//	stepper, _ := integrators.NewSSCD(g, drift)
//	in, _ := sim.New(stepper)
//	result, err := in.AdaptiveStep(ctx, psi, 0, cfg)
//
// # Thread Safety
//
// A State has exactly one mutator at a time. Steppers and integrators are
// NOT safe for concurrent use; their internal array work is parallelized
// with [ParallelFor].
package bec
