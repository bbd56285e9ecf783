package binarize

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// reflectIndex maps an out-of-range index onto [0,n) by reflecting
// about the edge sample itself (numpy's default, non-symmetric
// "reflect" padding): index -1 maps to 1, index n maps to n-2, and so
// on. This is the "mirror axis lies on the first/last pixel, not
// between pixels" padding the binarizer calls for.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

// windowSSD computes, for every pixel of an h x w image, the sum of
// squared deviations from the local mean over a size x size
// reflect-padded window. size must be odd.
func windowSSD(img []float64, h, w, size int) []float64 {
	r := size / 2
	out := make([]float64, h*w)
	window := make([]float64, size*size)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			sum := 0.0
			for dy := -r; dy <= r; dy++ {
				sy := reflectIndex(y+dy, h)
				for dx := -r; dx <= r; dx++ {
					sx := reflectIndex(x+dx, w)
					v := img[sy*w+sx]
					window[n] = v
					sum += v
					n++
				}
			}
			mean := sum / float64(n)
			ssd := 0.0
			for _, v := range window[:n] {
				d := v - mean
				ssd += d * d
			}
			out[y*w+x] = ssd
		}
	}
	return out
}

// logTransform maps the SSD so that positions where it is
// strictly positive are replaced by (ln(s) - ln(size*size-1)) / 2; all
// other positions are left at zero.
func logTransform(ssd []float64, size int) []float64 {
	norm := math.Log(float64(size*size - 1))
	out := make([]float64, len(ssd))
	for i, s := range ssd {
		if s > 0 {
			out[i] = (math.Log(s) - norm) / 2
		}
	}
	return out
}

// histogramMode computes a 200-bin histogram of the
// transformed image restricted to strictly-positive pixels, and
// returns the center of its most populous bin. ok is false when there
// are no strictly-positive pixels (the all-zero-SSD edge case).
func histogramMode(transformed []float64, nBins int) (mode float64, positive []float64, ok bool) {
	for _, v := range transformed {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return 0, nil, false
	}
	sorted := append([]float64(nil), positive...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return lo, sorted, true
	}
	dividers := make([]float64, nBins+1)
	floats.Span(dividers, lo, hi)
	dividers[len(dividers)-1] = math.Nextafter(hi, math.Inf(1))

	counts := make([]float64, nBins)
	stat.Histogram(counts, dividers, sorted, nil)

	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	mode = (dividers[best] + dividers[best+1]) / 2
	return mode, sorted, true
}

// threshold computes the cutoff: sigma is the standard deviation
// of every transformed-image value at or below m, and tau = m + 3*sigma.
// When no value qualifies, sigma falls back to the 75th percentile of
// the strictly-positive values.
func threshold(transformed []float64, m float64, sortedPositive []float64) float64 {
	var below []float64
	for _, v := range transformed {
		if v <= m {
			below = append(below, v)
		}
	}

	var sigma float64
	if len(below) > 0 {
		_, sigma = stat.MeanStdDev(below, nil)
	} else if len(sortedPositive) > 0 {
		sigma = stat.Quantile(0.75, stat.Empirical, sortedPositive, nil)
	}
	return m + 3*sigma
}

// logStdMask runs the full log-std algorithm over one frame and
// returns the pre-morphology candidate mask.
func logStdMask(img []float64, h, w, windowSize int) []bool {
	ssd := windowSSD(img, h, w, windowSize)
	transformed := logTransform(ssd, windowSize)

	out := make([]bool, h*w)
	m, sortedPositive, ok := histogramMode(transformed, 200)
	if !ok {
		return out // all-zero SSD: empty mask
	}
	tau := threshold(transformed, m, sortedPositive)
	for i, v := range transformed {
		out[i] = v >= tau
	}
	return out
}
