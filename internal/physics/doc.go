// Package physics builds the right-hand side of the coupled Gross-Pitaevskii
// equations for multi-component condensates.
//
// Each physical contribution implements [Term]; a [Drift] adds them up at
// every lattice point:
//
//   - [PotentialTerm]: external trapping potential
//   - [InteractionTerm]: contact interactions, with optional Wigner corrections
//   - [LossTerm]: n-body loss processes
//
// Loss processes also produce noise in the Wigner representation; see
// [LossDiffusion].
//
// # Units
//
// The same code path serves real-time and imaginary-time evolution. Only
// the coefficients differ:
//
//	kinetic := physics.KineticCoefficient(physics.ImaginaryTime, hbar, m)
//	unitary := physics.UnitaryCoefficient(physics.ImaginaryTime, hbar)
package physics
