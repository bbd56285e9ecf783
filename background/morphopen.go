package background

import (
	"fmt"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
)

// MorphOpen is a supplemental, mask-free background estimator: a
// greyscale morphological opening (erosion then dilation with a
// square footprint) over the raw fluorescence gives a smooth
// background estimate without needing a segmentation mask at all,
// useful when no binarization has run yet for this channel.
type MorphOpen struct {
	// FootprintSize is the square structuring element's side length.
	// Zero selects the reference default of 25.
	FootprintSize int
}

func (a MorphOpen) Name() string { return "morph-open" }

func (a MorphOpen) Correct(fluor *frame.Raw, mask *frame.Mask, tok cancel.Token, rep progress.Reporter) (*frame.CorrectedFluor, error) {
	nFrames, h, w := fluor.Shape()
	if mask != nil && !mask.SameShape(nFrames, h, w) {
		return nil, fmt.Errorf("background: %w: mask shape does not match fluorescence stack", pyamaerr.ErrShapeMismatch)
	}

	k := a.FootprintSize
	if k == 0 {
		k = 25
	}

	out := frame.New[float32](nFrames, h, w)
	report := progress.Coarse(rep, 30)
	for t := 0; t < nFrames; t++ {
		if cancel.Fired(tok) {
			return nil, pyamaerr.ErrCancelled
		}
		img := frame.ToFloat64(fluor, t)
		bg := greyOpen(img, h, w, k)
		dst := out.Frame(t)
		for p := range dst {
			v := img[p] - bg[p]
			if v < 0 {
				v = 0
			}
			dst[p] = float32(v)
		}
		report.Report(progress.Event{Stage: "background", T: t, NFrames: nFrames, Message: "estimating background (morph open)"})
	}
	return out, nil
}

// greyOpen applies a k x k greyscale erosion followed by a k x k
// greyscale dilation (min filter then max filter), border pixels
// clamped to the nearest in-image value.
func greyOpen(img []float64, h, w, k int) []float64 {
	return greyDilate(greyErode(img, h, w, k), h, w, k)
}

func greyErode(img []float64, h, w, k int) []float64 {
	return greyFilter(img, h, w, k, func(a, b float64) float64 {
		if a < b {
			return a
		}
		return b
	})
}

func greyDilate(img []float64, h, w, k int) []float64 {
	return greyFilter(img, h, w, k, func(a, b float64) float64 {
		if a > b {
			return a
		}
		return b
	})
}

func greyFilter(img []float64, h, w, k int, combine func(a, b float64) float64) []float64 {
	r := k / 2
	out := make([]float64, len(img))
	clampIdx := func(i, n int) int {
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := img[clampIdx(y-r, h)*w+clampIdx(x-r, w)]
			for dy := -r; dy <= r; dy++ {
				sy := clampIdx(y+dy, h)
				for dx := -r; dx <= r; dx++ {
					sx := clampIdx(x+dx, w)
					best = combine(best, img[sy*w+sx])
				}
			}
			out[y*w+x] = best
		}
	}
	return out
}
