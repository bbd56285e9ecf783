package binarize

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Otsu is a supplemental binarizer not present in the distilled
// algorithm description: global Otsu thresholding of raw intensity,
// followed by the same morphology pass. It gives the
// registry a second, much cheaper option for frames where the
// log-std statistic is unnecessary (e.g. already-clean fluorescence
// masks).
type Otsu struct {
	// Bins is the number of histogram bins used to search for the
	// threshold. Zero selects the default of 256.
	Bins int
}

func (a Otsu) Name() string { return "otsu" }

func (a Otsu) BinarizeFrame(img []float64, h, w int) ([]bool, error) {
	nBins := a.Bins
	if nBins <= 0 {
		nBins = 256
	}

	lo, hi := floats.Min(img), floats.Max(img)
	out := make([]bool, len(img))
	if lo == hi {
		return out, nil
	}

	dividers := make([]float64, nBins+1)
	floats.Span(dividers, lo, hi)
	dividers[len(dividers)-1] = hi + 1e-9

	sorted := append([]float64(nil), img...)
	floats.Sort(sorted)
	counts := make([]float64, nBins)
	stat.Histogram(counts, dividers, sorted, nil)

	total := floats.Sum(counts)
	var sumAll float64
	centers := make([]float64, nBins)
	for i := range centers {
		centers[i] = (dividers[i] + dividers[i+1]) / 2
		sumAll += centers[i] * counts[i]
	}

	var wB, sumB, bestVar float64
	bestT := dividers[0]
	for i := 0; i < nBins; i++ {
		wB += counts[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += centers[i] * counts[i]
		meanB := sumB / wB
		meanF := (sumAll - sumB) / wF
		between := wB * wF * (meanB - meanF) * (meanB - meanF)
		if between > bestVar {
			bestVar = between
			bestT = dividers[i+1]
		}
	}

	for i, v := range img {
		out[i] = v >= bestT
	}
	return postProcessMask(out, h, w), nil
}
