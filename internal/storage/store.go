package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/becsim/internal/config"
	"github.com/san-kum/becsim/internal/sim"
)

var (
	ErrRunNotFound  = errors.New("storage: run not found")
	ErrAmbiguousRun = errors.New("storage: run id prefix is ambiguous")
	ErrNoSeries     = errors.New("storage: no such series")
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      uint64             `json:"seed"`
	Status    string             `json:"status"`
	Time      float64            `json:"time"`
	Accepted  int                `json:"accepted"`
	Rejected  int                `json:"rejected"`
	Samples   int                `json:"samples"`
	Series    []string           `json:"series"`
	Errors    map[string]float64 `json:"errors,omitempty"`
}

// Save writes the run metadata, the configuration it ran with, the sampled
// ensemble means and the step record into a fresh run directory.
func (s *Store) Save(name, kind string, cfg *config.Config, result *sim.Result) (string, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Name:      name,
		Kind:      kind,
		Timestamp: time.Now(),
		Seed:      cfg.Seed,
		Status:    result.Status.String(),
		Time:      result.Time,
		Accepted:  result.Accepted,
		Rejected:  result.Rejected,
		Samples:   len(result.Times),
		Series:    slices.Sorted(maps.Keys(result.Samples)),
		Errors:    result.Errors,
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := cfg.Save(filepath.Join(runDir, "config.yaml")); err != nil {
		return "", err
	}
	if err := writeSamples(filepath.Join(runDir, "samples.csv"), meta.Series, result); err != nil {
		return "", err
	}
	if err := writeSteps(filepath.Join(runDir, "steps.csv"), result.Steps); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSamples lays the ensemble means out one sample per row. Scalar series
// get one column named after the sampler, vector series one column per
// element ("N[0]", "N[1]"). Standard errors follow as "N_err" columns.
func writeSamples(path string, names []string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"time"}
	for _, name := range names {
		series := result.Samples[name]
		width := 0
		if len(series.Mean) > 0 {
			width = len(series.Mean[0])
		}
		header = append(header, columns(name, width)...)
		if len(series.StdErr) > 0 {
			header = append(header, columns(name+"_err", width)...)
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i, t := range result.Times {
		row := []string{formatFloat(t)}
		for _, name := range names {
			series := result.Samples[name]
			row = appendFloats(row, series.Mean[i])
			if len(series.StdErr) > 0 {
				row = appendFloats(row, series.StdErr[i])
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func writeSteps(path string, steps []sim.StepRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"start", "end", "steps"}); err != nil {
		return err
	}
	for _, s := range steps {
		if err := w.Write([]string{formatFloat(s.Start), formatFloat(s.End), strconv.Itoa(s.Steps)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func columns(name string, width int) []string {
	if width == 1 {
		return []string{name}
	}
	cols := make([]string, width)
	for i := range cols {
		cols[i] = fmt.Sprintf("%s[%d]", name, i)
	}
	return cols
}

func appendFloats(row []string, values []float64) []string {
	for _, v := range values {
		row = append(row, formatFloat(v))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.readMetadata(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	slices.SortFunc(runs, func(a, b RunMetadata) int { return a.Timestamp.Compare(b.Timestamp) })
	return runs, nil
}

// Resolve expands a unique run id prefix to the full id.
func (s *Store) Resolve(prefix string) (string, error) {
	if _, err := os.Stat(filepath.Join(s.baseDir, prefix, "metadata.json")); err == nil {
		return prefix, nil
	}

	runs, err := s.List()
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range runs {
		if !strings.HasPrefix(r.ID, prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %q", ErrAmbiguousRun, prefix)
		}
		match = r.ID
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", ErrRunNotFound, prefix)
	}
	return match, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}
	return s.readMetadata(id)
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}
	return config.Load(filepath.Join(s.baseDir, id, "config.yaml"))
}

func (s *Store) readMetadata(id string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Series is one stored sampler: the sample times and the ensemble means and
// standard errors at each, [sample][value].
type Series struct {
	Name   string
	Times  []float64
	Mean   [][]float64
	StdErr [][]float64
}

func (s *Store) LoadSeries(runID, name string) (*Series, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.baseDir, id, "samples.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSeries, name)
	}

	header := records[0]
	mean := matchColumns(header, name)
	if len(mean) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSeries, name)
	}
	stderr := matchColumns(header, name+"_err")

	out := &Series{Name: name}
	for _, rec := range records[1:] {
		t, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("storage: bad time %q: %w", rec[0], err)
		}
		m, err := parseColumns(rec, mean)
		if err != nil {
			return nil, err
		}
		out.Times = append(out.Times, t)
		out.Mean = append(out.Mean, m)

		if len(stderr) > 0 {
			e, err := parseColumns(rec, stderr)
			if err != nil {
				return nil, err
			}
			out.StdErr = append(out.StdErr, e)
		}
	}
	return out, nil
}

func matchColumns(header []string, name string) []int {
	var idx []int
	for i, col := range header {
		if col == name || (strings.HasPrefix(col, name+"[") && strings.HasSuffix(col, "]")) {
			idx = append(idx, i)
		}
	}
	return idx
}

func parseColumns(rec []string, idx []int) ([]float64, error) {
	out := make([]float64, len(idx))
	for j, i := range idx {
		v, err := strconv.ParseFloat(rec[i], 64)
		if err != nil {
			return nil, fmt.Errorf("storage: bad value %q: %w", rec[i], err)
		}
		out[j] = v
	}
	return out, nil
}

func (s *Store) LoadSteps(runID string) ([]sim.StepRecord, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.baseDir, id, "steps.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	steps := make([]sim.StepRecord, 0, len(records))
	for _, rec := range records[min(1, len(records)):] {
		start, err1 := strconv.ParseFloat(rec[0], 64)
		end, err2 := strconv.ParseFloat(rec[1], 64)
		n, err3 := strconv.Atoi(rec[2])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("storage: bad step record %v: %w", rec, err)
		}
		steps = append(steps, sim.StepRecord{Start: start, End: end, Steps: n})
	}
	return steps, nil
}
