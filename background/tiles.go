package background

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pyama-io/pyama/pyamaerr"
)

// tile is one overlapping support-grid cell along a single axis: a
// half-open pixel range [Lo,Hi) and the coordinate, the midpoint of
// the range two borders over, used as its spline knot.
type tile struct {
	Center float64
	Lo, Hi int
}

// makeTiles builds the overlapping tile grid for an axis of length n.
// Borders are 2*div-1 evenly spaced points over [0,n], rounded to the
// nearest pixel; each tile spans two border steps, so consecutive
// tiles overlap by one step and the axis gets 2*div-3 tiles.
func makeTiles(n, div int) ([]tile, error) {
	if div < 2 {
		return nil, fmt.Errorf("background: %w: div must be >= 2, got %d", pyamaerr.ErrInvalidArgument, div)
	}
	nBorders := 2*div - 1
	borders := make([]int, nBorders)
	for i := range borders {
		v := float64(i) * float64(n) / float64(nBorders-1)
		borders[i] = int(math.Round(v))
	}

	tiles := make([]tile, nBorders-2)
	for i := range tiles {
		lo, hi := borders[i], borders[i+2]
		tiles[i] = tile{Center: float64(lo+hi) / 2, Lo: lo, Hi: hi}
	}

	for i, tl := range tiles {
		if tl.Lo >= tl.Hi {
			return nil, fmt.Errorf("background: %w: frame too small for %d tiles along this axis", pyamaerr.ErrInvalidShape, div)
		}
		if i > 0 && tl.Center <= tiles[i-1].Center {
			return nil, fmt.Errorf("background: %w: frame too small for %d tiles along this axis", pyamaerr.ErrInvalidShape, div)
		}
	}
	return tiles, nil
}

// regionMedian returns the median of the pixels in fluor within rows
// [rowLo,rowHi) and columns [colLo,colHi) for which mask is false
// (background, not foreground). It returns ErrNumericFailure if the
// tile is entirely foreground, matching the "degenerate spline
// support" failure mode.
func regionMedian(fluor []float64, mask []bool, w, rowLo, rowHi, colLo, colHi int) (float64, error) {
	var vals []float64
	for y := rowLo; y < rowHi; y++ {
		base := y * w
		for x := colLo; x < colHi; x++ {
			if !mask[base+x] {
				vals = append(vals, fluor[base+x])
			}
		}
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("background: %w: tile rows [%d,%d) cols [%d,%d) is entirely foreground", pyamaerr.ErrNumericFailure, rowLo, rowHi, colLo, colHi)
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.LinInterp, vals, nil), nil
}
