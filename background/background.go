// Package background estimates and subtracts the
// fluorescence background from a raw fluorescence stack, using the
// segmentation mask to exclude foreground pixels from the background
// estimate.
package background

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/internal/float16"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
)

// Algorithm corrects a raw fluorescence stack against the
// corresponding segmentation mask. Unlike binarize.Algorithm, this
// operates on the whole (T,H,W) stack at once: the Schwarzfischer
// method's gain term is a per-pixel median taken across every frame,
// so no implementation here can work one frame at a time.
type Algorithm interface {
	Name() string
	Correct(fluor *frame.Raw, mask *frame.Mask, tok cancel.Token, rep progress.Reporter) (*frame.CorrectedFluor, error)
}

// Schwarzfischer is the reference algorithm: an overlapping-tile
// median support grid, a bicubic spline surface reconstructed from
// it, and a pixel-wise time-median gain correction.
type Schwarzfischer struct {
	// DivHoriz and DivVert set the tile grid along x and y: an axis
	// with div d gets 2*d-3 overlapping tiles (support columns/rows),
	// see makeTiles. Zero selects the reference defaults of 7 and 5.
	DivHoriz, DivVert int
}

func (s Schwarzfischer) Name() string { return "schwarzfischer" }

func (s Schwarzfischer) Correct(fluor *frame.Raw, mask *frame.Mask, tok cancel.Token, rep progress.Reporter) (*frame.CorrectedFluor, error) {
	nFrames, h, w := fluor.Shape()
	if !mask.SameShape(nFrames, h, w) {
		return nil, fmt.Errorf("background: %w: mask shape does not match fluorescence stack", pyamaerr.ErrShapeMismatch)
	}

	divHoriz, divVert := s.DivHoriz, s.DivVert
	if divHoriz == 0 {
		divHoriz = 7
	}
	if divVert == 0 {
		divVert = 5
	}
	tilesHoriz, err := makeTiles(w, divHoriz)
	if err != nil {
		return nil, err
	}
	tilesVert, err := makeTiles(h, divVert)
	if err != nil {
		return nil, err
	}

	bgInterp := make([][]float64, nFrames)
	bgMean := make([]float64, nFrames)
	report := progress.Coarse(rep, 30)

	for t := 0; t < nFrames; t++ {
		if cancel.Fired(tok) {
			return nil, pyamaerr.ErrCancelled
		}
		fluorFrame := frame.ToFloat64(fluor, t)
		maskFrame := mask.Frame(t)

		supp := make([][]float64, len(tilesVert))
		for iy, vt := range tilesVert {
			supp[iy] = make([]float64, len(tilesHoriz))
			for ix, ht := range tilesHoriz {
				m, err := regionMedian(fluorFrame, maskFrame, w, vt.Lo, vt.Hi, ht.Lo, ht.Hi)
				if err != nil {
					return nil, pyamaerr.Wrap("background", 0, err)
				}
				supp[iy][ix] = m
			}
		}

		patch, err := fitPatch(supp, tilesVert, tilesHoriz, h, w)
		if err != nil {
			return nil, pyamaerr.Wrap("background", 0, err)
		}
		bgInterp[t] = quantizeToStorageWidth(patch)
		bgMean[t] = mean(bgInterp[t])

		report.Report(progress.Event{Stage: "background", T: t, NFrames: nFrames, Message: "interpolating background"})
	}

	gain, err := timeMedianGain(bgInterp, bgMean, h*w)
	if err != nil {
		return nil, err
	}

	out := frame.New[float32](nFrames, h, w)
	for t := 0; t < nFrames; t++ {
		fluorFrame := frame.ToFloat64(fluor, t)
		dst := out.Frame(t)
		patch := bgInterp[t]
		for p := range dst {
			dst[p] = float32((fluorFrame[p] - patch[p]) / gain[p])
		}
	}

	return out, nil
}

// timeMedianGain computes, for every pixel, the median across frames
// of bgInterp[t][p] / bgMean[t] (the "gain").
func timeMedianGain(bgInterp [][]float64, bgMean []float64, nPixels int) ([]float64, error) {
	nFrames := len(bgInterp)
	gain := make([]float64, nPixels)
	col := make([]float64, nFrames)
	for p := 0; p < nPixels; p++ {
		for t := 0; t < nFrames; t++ {
			if bgMean[t] == 0 {
				return nil, fmt.Errorf("background: %w: frame %d has zero mean background", pyamaerr.ErrNumericFailure, t)
			}
			col[t] = bgInterp[t][p] / bgMean[t]
		}
		sort.Float64s(col)
		gain[p] = stat.Quantile(0.5, stat.LinInterp, col, nil)
	}
	return gain, nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// quantizeToStorageWidth applies the intermediate dtype policy to one
// frame's background support patch: if every value in the patch
// survives a round trip through float16 losslessly, every value is
// truncated to float16 precision (the smallest safe storage width);
// otherwise the patch is left at float32 precision. This mirrors what
// a disk-backed, memory-constrained deployment would store between
// stages, without requiring a hardware float16 type.
func quantizeToStorageWidth(patch []float64) []float64 {
	lossless := true
	for _, v := range patch {
		if !float16.Lossless(float32(v)) {
			lossless = false
			break
		}
	}
	out := make([]float64, len(patch))
	for i, v := range patch {
		f32 := float32(v)
		if lossless {
			f32 = float16.ToFloat32(float16.FromFloat32(f32))
		}
		out[i] = float64(f32)
	}
	return out
}
