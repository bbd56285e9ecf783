package extract

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FeatureFunc computes one supplemental per-cell, per-frame feature
// value from that cell's flat pixel offsets (row-major y*w+x) and the
// frame's corrected-fluorescence values.
type FeatureFunc func(pixels []int, fluorFrame []float32) float64

var registry = map[string]FeatureFunc{}

func register(name string, fn FeatureFunc) { registry[name] = fn }

// Lookup returns the registered feature function for name.
func Lookup(name string) (FeatureFunc, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Names returns every registered supplemental feature name.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func init() {
	register("intensity_mean", intensityMean)
	register("intensity_median", intensityMedian)
}

// intensityMean is intensity_total / area, excluded from the default
// feature set so the default CSV schema is unchanged.
func intensityMean(pixels []int, fluorFrame []float32) float64 {
	if len(pixels) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pixels {
		sum += float64(fluorFrame[p])
	}
	return sum / float64(len(pixels))
}

// intensityMedian is the median corrected-fluor value over the
// labeled pixels.
func intensityMedian(pixels []int, fluorFrame []float32) float64 {
	if len(pixels) == 0 {
		return 0
	}
	vals := make([]float64, len(pixels))
	for i, p := range pixels {
		vals[i] = float64(fluorFrame[p])
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.LinInterp, vals, nil)
}
