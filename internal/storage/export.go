package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/becsim/internal/sim"
)

type ExportData struct {
	Run    RunMetadata        `json:"run"`
	Series map[string]*Series `json:"series"`
	Steps  []sim.StepRecord   `json:"steps"`
}

// Export writes a stored run with every series as indented JSON.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}

	data := ExportData{Run: *meta, Series: make(map[string]*Series, len(meta.Series))}
	for _, name := range meta.Series {
		series, err := s.LoadSeries(meta.ID, name)
		if err != nil {
			return err
		}
		data.Series[name] = series
	}
	if data.Steps, err = s.LoadSteps(meta.ID); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
