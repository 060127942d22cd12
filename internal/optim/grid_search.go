// Package optim scans configuration parameters and scores each run.
package optim

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/config"
	"github.com/san-kum/becsim/internal/sim"
)

// Setter applies one parameter value to a configuration.
type Setter func(cfg *config.Config, v float64)

// Setters are the parameters a scan can vary.
var Setters = map[string]Setter{
	"detuning": func(cfg *config.Config, v float64) {
		if cfg.Pulse != nil {
			cfg.Pulse.Detuning = v
		}
	},
	"theta": func(cfg *config.Config, v float64) {
		if cfg.Pulse != nil {
			cfg.Pulse.Theta = v
		}
	},
	"interval": func(cfg *config.Config, v float64) { cfg.Evolution.Interval = v },
	"population": func(cfg *config.Config, v float64) {
		if len(cfg.Ground.Populations) > 0 {
			cfg.Ground.Populations[0] = v
		}
	},
	"loss_rate": func(cfg *config.Config, v float64) {
		for i := range cfg.System.Losses {
			cfg.System.Losses[i].Rate = v
		}
	},
	"trap_scale": func(cfg *config.Config, v float64) {
		if cfg.System.Trap == nil {
			return
		}
		for i := range cfg.System.Trap.Frequencies {
			cfg.System.Trap.Frequencies[i] *= v
		}
	},
}

type Param struct {
	Name   string
	Values []float64
}

// ParseParam reads "name=start:stop:count" or "name=v1,v2,...".
func ParseParam(s string) (Param, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok {
		return Param{}, fmt.Errorf("%w: parameter %q is not name=values", bec.ErrConfiguration, s)
	}
	if _, ok := Setters[name]; !ok {
		return Param{}, fmt.Errorf("%w: unknown scan parameter %q", bec.ErrConfiguration, name)
	}

	if parts := strings.Split(list, ":"); len(parts) == 3 {
		start, err1 := strconv.ParseFloat(parts[0], 64)
		stop, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || n < 1 {
			return Param{}, fmt.Errorf("%w: bad range %q", bec.ErrConfiguration, list)
		}
		values := make([]float64, n)
		for i := range values {
			if n == 1 {
				values[i] = start
				continue
			}
			values[i] = start + (stop-start)*float64(i)/float64(n-1)
		}
		return Param{Name: name, Values: values}, nil
	}

	var values []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Param{}, fmt.Errorf("%w: bad value %q", bec.ErrConfiguration, f)
		}
		values = append(values, v)
	}
	return Param{Name: name, Values: values}, nil
}

// Objective scores a finished run; lower is better.
type Objective func(res *sim.Result) (float64, error)

// FinalMean scores a run by the last ensemble mean of one column of a
// series, negated when maximize is set.
func FinalMean(series string, column int, maximize bool) Objective {
	return func(res *sim.Result) (float64, error) {
		s, ok := res.Samples[series]
		if !ok {
			return 0, fmt.Errorf("%w: no series %q", bec.ErrConfiguration, series)
		}
		last := s.Last()
		if column < 0 || column >= len(last) {
			return 0, fmt.Errorf("%w: series %q has no column %d", bec.ErrConfiguration, series, column)
		}
		if maximize {
			return -last[column], nil
		}
		return last[column], nil
	}
}

type Point struct {
	Values map[string]float64
	Score  float64
	Err    error
}

// Runner integrates one configuration.
type Runner func(ctx context.Context, cfg *config.Config) (*sim.Result, error)

type GridSearch struct {
	params []Param
}

func NewGridSearch(params []Param) *GridSearch {
	return &GridSearch{params: params}
}

// Search runs every combination of parameter values on a fresh base
// configuration. Failed runs are recorded with their error and never win.
func (g *GridSearch) Search(ctx context.Context, base func() *config.Config, run Runner, objective Objective) ([]Point, *Point, error) {
	var points []Point
	var best *Point

	var walk func(depth int, current map[string]float64) error
	walk = func(depth int, current map[string]float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth == len(g.params) {
			p := Point{Values: make(map[string]float64, len(current)), Score: math.Inf(1)}
			cfg := base()
			for name, v := range current {
				p.Values[name] = v
				Setters[name](cfg, v)
			}

			res, err := run(ctx, cfg)
			if err == nil {
				p.Score, err = objective(res)
			}
			p.Err = err
			points = append(points, p)
			if err == nil && (best == nil || p.Score < best.Score) {
				best = &points[len(points)-1]
			}
			return nil
		}

		param := g.params[depth]
		for _, v := range param.Values {
			current[param.Name] = v
			if err := walk(depth+1, current); err != nil {
				return err
			}
		}
		delete(current, param.Name)
		return nil
	}

	if err := walk(0, make(map[string]float64)); err != nil {
		return points, nil, err
	}
	if best != nil {
		b := *best
		best = &b
	}
	return points, best, nil
}
