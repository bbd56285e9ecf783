// Package tracetable implements the TraceTable CSV artifact: a
// tidy, per-(fov, cell, frame) time series with a fixed column prefix
// and an extensible, ordered set of feature columns.
package tracetable

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/pyama-io/pyama/pyamaerr"
)

// Row is one (cell, frame) record. Features holds the feature column
// values keyed by feature name; position_x/position_y are not in it,
// they are the PositionX/PositionY fields written as fixed columns.
// A feature name missing from Features is written as NaN, as are NaN
// values (the usual case when Exist is false).
type Row struct {
	FOV                  int
	Time                 float64
	Cell                 int
	Good                 bool
	Exist                bool
	PositionX, PositionY float64
	Features             map[string]float64
}

// Table is a TraceTable: a fixed, ordered set of feature column names
// plus the rows themselves.
type Table struct {
	FeatureNames []string
	Rows         []Row
}

// Sort orders rows by (cell ascending, time ascending), the row order
// of the CSV on disk.
func (t *Table) Sort() {
	sort.Slice(t.Rows, func(i, j int) bool {
		if t.Rows[i].Cell != t.Rows[j].Cell {
			return t.Rows[i].Cell < t.Rows[j].Cell
		}
		return t.Rows[i].Time < t.Rows[j].Time
	})
}

func header(featureNames []string) []string {
	h := []string{"fov", "time", "cell", "good", "exist", "position_x", "position_y"}
	return append(h, featureNames...)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Write serializes t to path using the CSV schema, sorted by
// (cell, time). Rows are written even when Exist is false (padded
// rows), with NaN feature values.
func Write(path string, t *Table) error {
	t.Sort()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tracetable: create %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header(t.FeatureNames)); err != nil {
		return fmt.Errorf("tracetable: write header %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}

	for _, r := range t.Rows {
		rec := []string{
			strconv.Itoa(r.FOV),
			formatFloat(r.Time),
			strconv.Itoa(r.Cell),
			formatBool(r.Good),
			formatBool(r.Exist),
			formatFloat(r.PositionX),
			formatFloat(r.PositionY),
		}
		for _, name := range t.FeatureNames {
			v, ok := r.Features[name]
			if !ok {
				v = math.NaN()
			}
			rec = append(rec, formatFloat(v))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("tracetable: write row %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("tracetable: flush %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	return nil
}

// Read parses a TraceTable previously written by Write.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tracetable: open %s: %w: %v", path, pyamaerr.ErrNotFound, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tracetable: parse %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("tracetable: %s: %w: empty file", path, pyamaerr.ErrIOFailure)
	}

	head := records[0]
	fixed := 7
	featureNames := append([]string(nil), head[fixed:]...)

	t := &Table{FeatureNames: featureNames}
	for _, rec := range records[1:] {
		row, err := parseRow(rec, featureNames)
		if err != nil {
			return nil, fmt.Errorf("tracetable: parse %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func parseFloat(s string) (float64, error) {
	if s == "NaN" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseRow(rec []string, featureNames []string) (Row, error) {
	fov, err := strconv.Atoi(rec[0])
	if err != nil {
		return Row{}, err
	}
	tm, err := parseFloat(rec[1])
	if err != nil {
		return Row{}, err
	}
	cell, err := strconv.Atoi(rec[2])
	if err != nil {
		return Row{}, err
	}
	good := rec[3] == "true" || rec[3] == "1"
	exist := rec[4] == "true" || rec[4] == "1"
	px, err := parseFloat(rec[5])
	if err != nil {
		return Row{}, err
	}
	py, err := parseFloat(rec[6])
	if err != nil {
		return Row{}, err
	}

	features := map[string]float64{}
	for i, name := range featureNames {
		v, err := parseFloat(rec[7+i])
		if err != nil {
			return Row{}, err
		}
		features[name] = v
	}

	return Row{FOV: fov, Time: tm, Cell: cell, Good: good, Exist: exist, PositionX: px, PositionY: py, Features: features}, nil
}
