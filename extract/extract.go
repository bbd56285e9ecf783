// Package extract turns a tracked labels stack and
// its corresponding corrected-fluorescence stack into a dense
// TraceTable, one row per (cell, frame).
package extract

import (
	"fmt"
	"math"
	"sort"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
	"github.com/pyama-io/pyama/track"
	"github.com/pyama-io/pyama/tracetable"
)

// cellObs is one cell's per-frame raw measurements, before reshaping
// into the dense grid.
type cellObs struct {
	area              int
	sumX, sumY        float64
	intensityTotal    float64
	pixels            []int
	extra             map[string]float64
}

// Extract implements extract(corrected_fluor_stack, labels_stack,
// times) -> TraceTable. fov is recorded in every row; traces supplies
// each cell's good flag (trace index i -> cell id i+1). extraFeatures
// names registered supplemental features (registry.go) to compute in
// addition to the always-present area/intensity_total/position_x/y.
func Extract(fov int, fluor *frame.CorrectedFluor, labels *frame.Labels, traces []track.Trace, times []float64, extraFeatures []string, tok cancel.Token, rep progress.Reporter) (*tracetable.Table, error) {
	nFrames, h, w := labels.Shape()
	if !fluor.SameShape(nFrames, h, w) {
		return nil, fmt.Errorf("extract: %w: fluor shape does not match labels shape", pyamaerr.ErrShapeMismatch)
	}
	if len(times) != nFrames {
		return nil, fmt.Errorf("extract: %w: got %d times, want %d", pyamaerr.ErrInvalidArgument, len(times), nFrames)
	}

	featureFns := make(map[string]FeatureFunc, len(extraFeatures))
	for _, name := range extraFeatures {
		fn, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("extract: %w: unknown feature %q", pyamaerr.ErrInvalidArgument, name)
		}
		featureFns[name] = fn
	}

	// obs[t][cellID] holds that cell's measurements in frame t, only
	// for cells actually present in the frame.
	obs := make([]map[int]*cellObs, nFrames)
	maxCell := 0
	report := progress.Coarse(rep, 30)

	for t := 0; t < nFrames; t++ {
		if cancel.Fired(tok) {
			return nil, pyamaerr.ErrCancelled
		}
		labelFrame := labels.Frame(t)
		fluorFrame := fluor.Frame(t)
		frameObs := map[int]*cellObs{}

		for p, lbl := range labelFrame {
			if lbl == 0 {
				continue
			}
			cell := int(lbl)
			if cell > maxCell {
				maxCell = cell
			}
			y, x := p/w, p%w
			o, ok := frameObs[cell]
			if !ok {
				o = &cellObs{extra: map[string]float64{}}
				frameObs[cell] = o
			}
			o.area++
			o.sumX += float64(x)
			o.sumY += float64(y)
			o.intensityTotal += float64(fluorFrame[p])
			o.pixels = append(o.pixels, p)
		}

		for _, name := range extraFeatures {
			fn := featureFns[name]
			for _, o := range frameObs {
				o.extra[name] = fn(o.pixels, fluorFrame)
			}
		}

		obs[t] = frameObs
		report.Report(progress.Event{Stage: "extract", T: t, NFrames: nFrames, Message: "extracting features"})
	}

	goodByCell := map[int]bool{}
	for i, tr := range traces {
		goodByCell[i+1] = tr.Good
	}
	if maxCell > len(traces) {
		// Defensive: a labels stack not produced by this module's
		// tracker might carry more distinct ids than traces describes.
		for c := len(traces) + 1; c <= maxCell; c++ {
			goodByCell[c] = true
		}
	}

	cells := make([]int, 0, maxCell)
	for c := 1; c <= maxCell; c++ {
		cells = append(cells, c)
	}
	sort.Ints(cells)

	table := &tracetable.Table{FeatureNames: append([]string{"area", "intensity_total"}, extraFeatures...)}
	for _, cell := range cells {
		for t := 0; t < nFrames; t++ {
			row := tracetable.Row{FOV: fov, Time: times[t], Cell: cell, Good: goodByCell[cell]}
			o, ok := obs[t][cell]
			if !ok {
				row.Exist = false
				row.PositionX, row.PositionY = math.NaN(), math.NaN()
				row.Features = map[string]float64{}
				for _, name := range extraFeatures {
					row.Features[name] = math.NaN()
				}
			} else {
				row.Exist = true
				row.PositionX = o.sumX / float64(o.area)
				row.PositionY = o.sumY / float64(o.area)
				row.Features = map[string]float64{
					"area":            float64(o.area),
					"intensity_total": o.intensityTotal,
				}
				for _, name := range extraFeatures {
					row.Features[name] = o.extra[name]
				}
			}
			table.Rows = append(table.Rows, row)
		}
	}

	return table, nil
}
