package physics

import "fmt"

// Evolution selects between physical (real-time) dynamics and imaginary-time
// relaxation towards the ground state.
type Evolution int

const (
	RealTime Evolution = iota
	ImaginaryTime
)

func (e Evolution) String() string {
	switch e {
	case RealTime:
		return "real"
	case ImaginaryTime:
		return "imaginary"
	default:
		return fmt.Sprintf("Evolution(%d)", int(e))
	}
}

func ParseEvolution(s string) (Evolution, error) {
	switch s {
	case "real", "real-time", "":
		return RealTime, nil
	case "imaginary", "imaginary-time":
		return ImaginaryTime, nil
	}
	return 0, fmt.Errorf("unknown evolution: %s", s)
}

// KineticCoefficient returns c such that a kinetic step of length h multiplies
// mode k by exp(-c*k^2*h): i*hbar/2m in real time, hbar/2m in imaginary time.
func KineticCoefficient(e Evolution, hbar, mass float64) complex128 {
	c := hbar / (2 * mass)
	if e == ImaginaryTime {
		return complex(c, 0)
	}
	return complex(0, c)
}

// UnitaryCoefficient multiplies the Hamiltonian part of the drift: -i/hbar in
// real time, -1/hbar in imaginary time.
func UnitaryCoefficient(e Evolution, hbar float64) complex128 {
	if e == ImaginaryTime {
		return complex(-1/hbar, 0)
	}
	return complex(0, -1/hbar)
}
