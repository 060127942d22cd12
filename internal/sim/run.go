package sim

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-kit/log/level"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/becsim/internal/bec"
)

// run carries the bookkeeping of one integration.
type run struct {
	in       *Integrator
	result   *Result
	samplers []NamedSampler
	display  []string

	segStart float64
	segSteps int
}

func (in *Integrator) newRun(samplers []NamedSampler, display []string, t0 float64) *run {
	return &run{
		in:       in,
		result:   newResult(samplers),
		samplers: samplers,
		display:  display,
		segStart: t0,
	}
}

// sample evaluates every registered sampler on psi and notifies observers.
func (r *run) sample(psi *bec.State, t, dt float64) {
	res := r.result
	res.Times = append(res.Times, t)
	for _, s := range r.samplers {
		res.Samples[s.Name].add(s.Sampler.Sample(psi, t))
	}

	if len(r.in.observers) == 0 && len(r.display) == 0 {
		return
	}

	p := Progress{Time: t, Dt: dt, Step: res.Accepted, Display: make(map[string][]float64, len(r.display))}
	kv := []any{"msg", "sample", "t", t, "dt", dt, "steps", res.Accepted}
	for _, name := range r.display {
		mean := res.Samples[name].Last()
		p.Display[name] = mean
		kv = append(kv, name, formatValues(mean))
	}
	level.Debug(r.in.logger).Log(kv...)

	for _, o := range r.in.observers {
		o.OnSample(p)
	}
}

// closeSegment appends the steps taken since the previous sample point.
func (r *run) closeSegment(t float64) {
	r.result.Steps = append(r.result.Steps, StepRecord{Start: r.segStart, End: t, Steps: r.segSteps})
	r.segStart = t
	r.segSteps = 0
}

func (r *run) finish(s Status) *Result {
	r.result.Status = s
	r.in.status.Store(int32(s))
	r.in.metrics.Finished(s.String())
	level.Info(r.in.logger).Log(
		"msg", "integration finished",
		"status", s.String(),
		"t", r.result.Time,
		"accepted", r.result.Accepted,
		"rejected", r.result.Rejected,
	)
	return r.result
}

func (r *run) fail(err error) (*Result, error) {
	r.result.Status = Failed
	r.in.status.Store(int32(Failed))
	r.in.metrics.Finished(Failed.String())
	level.Error(r.in.logger).Log("msg", "integration failed", "t", r.result.Time, "err", err)
	return r.result, err
}

func (s *Series) add(rows [][]float64) {
	s.Values = append(s.Values, rows)
	mean, stderr := ensembleStats(rows)
	s.Mean = append(s.Mean, mean)
	if stderr != nil {
		s.StdErr = append(s.StdErr, stderr)
	}
}

// Last returns the most recent ensemble mean, or nil before the first sample.
func (s *Series) Last() []float64 {
	if len(s.Mean) == 0 {
		return nil
	}
	return s.Mean[len(s.Mean)-1]
}

// ensembleStats reduces one row per trajectory to the column means and, for
// more than one trajectory, their standard errors.
func ensembleStats(rows [][]float64) (mean, stderr []float64) {
	n := len(rows)
	if n == 0 {
		return nil, nil
	}
	if n == 1 {
		return slices.Clone(rows[0]), nil
	}

	width := len(rows[0])
	mean = make([]float64, width)
	stderr = make([]float64, width)
	col := make([]float64, n)
	for j := 0; j < width; j++ {
		for r, row := range rows {
			col[r] = row[j]
		}
		m, sd := stat.MeanStdDev(col, nil)
		mean[j] = m
		stderr[j] = stat.StdErr(sd, float64(n))
	}
	return mean, stderr
}

// relativeChange is max|cur-ref| / max|ref|, or the absolute change when ref
// is zero.
func relativeChange(cur, ref []float64) float64 {
	diff, scale := 0.0, 0.0
	for i := range ref {
		diff = math.Max(diff, math.Abs(cur[i]-ref[i]))
		scale = math.Max(scale, math.Abs(ref[i]))
	}
	if scale == 0 {
		return diff
	}
	return diff / scale
}

// weakConvergence tracks the previous sampled mean of each stopping sampler.
type weakConvergence struct {
	tolerances map[string]float64
	previous   map[string][]float64
}

func newWeakConvergence(tolerances map[string]float64) *weakConvergence {
	return &weakConvergence{tolerances: tolerances, previous: make(map[string][]float64, len(tolerances))}
}

// check reports whether every stopping sampler changed by less than its
// tolerance since the previous sample point.
func (w *weakConvergence) check(res *Result) bool {
	if len(w.tolerances) == 0 {
		return false
	}

	converged := true
	for name, tol := range w.tolerances {
		cur := res.Samples[name].Last()
		prev, ok := w.previous[name]
		if !ok || relativeChange(cur, prev) >= tol {
			converged = false
		}
		w.previous[name] = cur
	}
	return converged
}

func validateSamplers(samplers []NamedSampler) error {
	seen := make(map[string]bool, len(samplers))
	for i, s := range samplers {
		if s.Name == "" || s.Sampler == nil {
			return fmt.Errorf("%w: sampler %d needs a name and an implementation", bec.ErrConfiguration, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate sampler %q", bec.ErrConfiguration, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func requireSamplers(samplers []NamedSampler, names []string, role string) error {
	for _, name := range names {
		if !slices.ContainsFunc(samplers, func(s NamedSampler) bool { return s.Name == name }) {
			return fmt.Errorf("%w: %s sampler %q is not registered", bec.ErrConfiguration, role, name)
		}
	}
	return nil
}

func formatValues(v []float64) string {
	if len(v) == 1 {
		return fmt.Sprintf("%.6g", v[0])
	}
	return fmt.Sprintf("%.6g", v)
}
