// Package export renders stored series as images.
package export

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/becsim/internal/storage"
)

const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

var errorBand = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// Series plots every column of a stored series against time. Columns with a
// standard error get dashed mean +/- stderr bands.
func Series(s *storage.Series) (*plot.Plot, error) {
	if len(s.Times) == 0 {
		return nil, fmt.Errorf("export: series %q is empty", s.Name)
	}

	p := plot.New()
	p.Title.Text = s.Name
	p.X.Label.Text = "t"
	p.Y.Label.Text = s.Name
	p.Add(plotter.NewGrid())

	width := len(s.Mean[0])
	for col := 0; col < width; col++ {
		mean := make(plotter.XYs, len(s.Times))
		for i, t := range s.Times {
			mean[i] = plotter.XY{X: t, Y: s.Mean[i][col]}
		}
		line, err := plotter.NewLine(mean)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(col)
		p.Add(line)
		if width > 1 {
			p.Legend.Add(fmt.Sprintf("%s[%d]", s.Name, col), line)
		}

		if len(s.StdErr) == 0 {
			continue
		}
		for _, sign := range []float64{-1, 1} {
			band := make(plotter.XYs, len(s.Times))
			for i, t := range s.Times {
				band[i] = plotter.XY{X: t, Y: s.Mean[i][col] + sign*s.StdErr[i][col]}
			}
			l, err := plotter.NewLine(band)
			if err != nil {
				return nil, err
			}
			l.Color = errorBand
			l.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
			p.Add(l)
		}
	}
	return p, nil
}

// Profile plots one sample of a vector series, such as a projected density,
// against the lattice index. Multi-component series are split into
// components of equal length.
func Profile(s *storage.Series, sample, components int) (*plot.Plot, error) {
	if sample < 0 || sample >= len(s.Mean) {
		return nil, fmt.Errorf("export: sample %d out of range [0, %d)", sample, len(s.Mean))
	}
	if components < 1 || len(s.Mean[sample])%components != 0 {
		return nil, fmt.Errorf("export: %d values do not split into %d components", len(s.Mean[sample]), components)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s at t=%.4g", s.Name, s.Times[sample])
	p.X.Label.Text = "index"
	p.Add(plotter.NewGrid())

	row := s.Mean[sample]
	n := len(row) / components
	for c := 0; c < components; c++ {
		xys := make(plotter.XYs, n)
		for i := range xys {
			xys[i] = plotter.XY{X: float64(i), Y: row[c*n+i]}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(c)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("component %d", c), line)
	}
	return p, nil
}

// Save writes the plot in the format named by the file extension.
func Save(p *plot.Plot, path string) error {
	return p.Save(Width, Height, path)
}

// Write renders the plot as png, svg or pdf.
func Write(w io.Writer, p *plot.Plot, format string) error {
	wt, err := p.WriterTo(Width, Height, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Format guesses the image format from a file name.
func Format(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
