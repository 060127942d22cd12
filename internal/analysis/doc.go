// Package analysis extracts physical quantities from sampled series.
//
//   - [Spectrum]: one-sided power spectrum of a uniformly sampled series
//   - [DominantFrequency]: strongest non-zero frequency, such as a breathing
//     mode or a Ramsey fringe
//   - [DecayRate]: exponential loss rate from a population series
package analysis
