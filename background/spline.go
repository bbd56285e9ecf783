package background

import (
	"fmt"

	"gonum.org/v1/gonum/interp"

	"github.com/pyama-io/pyama/pyamaerr"
)

// fitPatch reconstructs a dense h x w background surface from the
// sparse tilesVert x tilesHoriz support grid, via a separable
// tensor-product bicubic spline: first interpolate each support row
// across the horizontal tile centers onto every pixel column, then
// interpolate each resulting pixel column across the vertical tile
// centers onto every pixel row. This mirrors how
// scipy.interpolate.RectBivariateSpline itself builds a 2-D spline
// from two 1-D B-spline bases over a rectangular knot grid.
func fitPatch(supp [][]float64, tilesVert, tilesHoriz []tile, h, w int) ([]float64, error) {
	horizX := centers(tilesHoriz)
	vertX := centers(tilesVert)

	// Step 1: interpolate each tile-row across x onto every column.
	rowAtCol := make([][]float64, len(tilesVert))
	for iy := range tilesVert {
		var sp interp.NaturalCubic
		if err := sp.Fit(horizX, supp[iy]); err != nil {
			return nil, fmt.Errorf("background: %w: horizontal spline fit: %v", pyamaerr.ErrNumericFailure, err)
		}
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			row[x] = sp.Predict(clamp(float64(x), horizX))
		}
		rowAtCol[iy] = row
	}

	// Step 2: interpolate each column across y onto every row.
	patch := make([]float64, h*w)
	col := make([]float64, len(tilesVert))
	for x := 0; x < w; x++ {
		for iy := range tilesVert {
			col[iy] = rowAtCol[iy][x]
		}
		var sp interp.NaturalCubic
		if err := sp.Fit(vertX, col); err != nil {
			return nil, fmt.Errorf("background: %w: vertical spline fit: %v", pyamaerr.ErrNumericFailure, err)
		}
		for y := 0; y < h; y++ {
			patch[y*w+x] = sp.Predict(clamp(float64(y), vertX))
		}
	}
	return patch, nil
}

func centers(tiles []tile) []float64 {
	out := make([]float64, len(tiles))
	for i, t := range tiles {
		out[i] = t.Center
	}
	return out
}

// clamp keeps evaluation points inside the knot range: pixels outside
// the first/last tile center (possible near the image border, where
// the tile grid's overlap falls short of the edge) are evaluated at
// the nearest knot instead of extrapolated.
func clamp(x float64, knots []float64) float64 {
	if x < knots[0] {
		return knots[0]
	}
	if x > knots[len(knots)-1] {
		return knots[len(knots)-1]
	}
	return x
}
