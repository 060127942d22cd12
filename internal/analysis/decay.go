package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DecayRate fits N(t) = N0 exp(-rate t) by linear regression of log N on t.
// Non-positive samples are skipped.
func DecayRate(times, populations []float64) (rate, n0 float64, err error) {
	var ts, logs []float64
	for i, n := range populations {
		if n > 0 {
			ts = append(ts, times[i])
			logs = append(logs, math.Log(n))
		}
	}
	if len(ts) < 2 {
		return 0, 0, ErrTooShort
	}

	alpha, beta := stat.LinearRegression(ts, logs, nil, false)
	return -beta, math.Exp(alpha), nil
}
