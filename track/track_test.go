package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
)

// buildLabeled constructs a Labels stack from one frame's worth of
// label grids repeated/varied per frame via the given builder func.
func buildLabeled(nFrames, h, w int, fill func(t int, set func(y, x int, lbl uint16))) *frame.Labels {
	out := frame.New[uint16](nFrames, h, w)
	for t := 0; t < nFrames; t++ {
		fill(t, func(y, x int, lbl uint16) { out.Set(t, y, x, lbl) })
	}
	return out
}

func square(set func(y, x int, lbl uint16), y0, x0, size int, lbl uint16) {
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			set(y, x, lbl)
		}
	}
}

func TestTrackFollowsStationaryCellAcrossFrames(t *testing.T) {
	h, w, n := 20, 20, 4
	labeled := buildLabeled(n, h, w, func(t int, set func(int, int, uint16)) {
		square(set, 8, 8, 6, 1) // 36 pixels, centered, never touches border
	})

	opts := Options{IgnoreSize: 2, MinSize: 10, MaxSize: 1000}
	algo, ok := Lookup("bbox-overlap")
	require.True(t, ok)

	out, traces, err := algo.Track(labeled, opts, cancel.None, nil)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Len(t, traces[0].FrameLabels, n)
	assert.True(t, traces[0].Good)

	for ti := 0; ti < n; ti++ {
		assert.Equal(t, uint16(1), out.At(ti, 10, 10))
	}
}

func TestTrackMarksEdgeTouchingTraceAsNotGood(t *testing.T) {
	h, w, n := 10, 10, 3
	labeled := buildLabeled(n, h, w, func(t int, set func(int, int, uint16)) {
		square(set, 0, 0, 5, 1) // touches top and left border
	})

	opts := Options{IgnoreSize: 1, MinSize: 5, MaxSize: 1000}
	algo, _ := Lookup("bbox-overlap")
	_, traces, err := algo.Track(labeled, opts, cancel.None, nil)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.False(t, traces[0].Good)
}

func TestTrackDropsTraceWithMultipleNonIgnoredParents(t *testing.T) {
	h, w, n := 20, 20, 2
	labeled := buildLabeled(n, h, w, func(t int, set func(int, int, uint16)) {
		if t == 0 {
			square(set, 2, 2, 6, 1)  // parent A, far from border
			square(set, 12, 2, 6, 2) // parent B, far from border
		} else {
			// A single large child overlapping both parents' bboxes
			// and pixel coordinates.
			square(set, 2, 2, 16, 1)
		}
	})

	opts := Options{IgnoreSize: 2, MinSize: 10, MaxSize: 10000}
	algo, _ := Lookup("bbox-overlap")
	_, traces, err := algo.Track(labeled, opts, cancel.None, nil)
	require.NoError(t, err)
	assert.Empty(t, traces, "ambiguous multi-parent merge must not survive to a length-T trace")
}

func TestTrackDropsSiblingSplitTraces(t *testing.T) {
	h, w, n := 20, 20, 3
	labeled := buildLabeled(n, h, w, func(t int, set func(int, int, uint16)) {
		switch t {
		case 0:
			square(set, 4, 4, 10, 1) // single parent blob
		default:
			// Splits into two children, both overlapping the parent's
			// bbox and coordinates.
			square(set, 4, 4, 5, 1)
			square(set, 9, 9, 5, 2)
		}
	})

	opts := Options{IgnoreSize: 2, MinSize: 10, MaxSize: 10000}
	algo, _ := Lookup("bbox-overlap")
	_, traces, err := algo.Track(labeled, opts, cancel.None, nil)
	require.NoError(t, err)
	assert.Empty(t, traces, "a mitotic split must poison the parent trace")
}

func TestTrackHandlesEmptyFrameWithoutPanicking(t *testing.T) {
	h, w, n := 8, 8, 2
	labeled := frame.New[uint16](n, h, w)

	algo, _ := Lookup("bbox-overlap")
	out, traces, err := algo.Track(labeled, DefaultOptions(), cancel.None, nil)
	require.NoError(t, err)
	assert.Empty(t, traces)
	for _, v := range out.Frame(0) {
		assert.Zero(t, v)
	}
}

func TestTracesFromLabeledMatchesTrackOnSameLabels(t *testing.T) {
	h, w, n := 20, 20, 4
	labeled := buildLabeled(n, h, w, func(t int, set func(int, int, uint16)) {
		square(set, 8, 8, 6, 1) // stationary, well inside thresholds
	})

	opts := Options{IgnoreSize: 2, MinSize: 10, MaxSize: 1000}
	algo, ok := Lookup("bbox-overlap")
	require.True(t, ok)
	_, wantTraces, err := algo.Track(labeled, opts, cancel.None, nil)
	require.NoError(t, err)
	require.Len(t, wantTraces, 1)

	// TracesFromLabeled recomputes Good purely from the already-labeled
	// stack, without the original per-frame regions Track saw.
	gotTraces := TracesFromLabeled(labeled, opts)
	require.Len(t, gotTraces, 1)
	assert.Equal(t, wantTraces[0].Good, gotTraces[0].Good)
}

func TestTracesFromLabeledReturnsNilForEmptyStack(t *testing.T) {
	labeled := frame.New[uint16](2, 8, 8)
	assert.Nil(t, TracesFromLabeled(labeled, DefaultOptions()))
}

func TestIntercalateOrderVisitsEveryIndex(t *testing.T) {
	for n := 0; n < 8; n++ {
		order := intercalateOrder(n)
		assert.Len(t, order, n)
		seen := map[int]bool{}
		for _, i := range order {
			seen[i] = true
		}
		assert.Len(t, seen, n)
	}
}
