package background

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/pyamaerr"
)

func buildFlatStack(nFrames, h, w int, baseline, slope float64) (*frame.Raw, *frame.Mask) {
	fluor := frame.New[uint16](nFrames, h, w)
	mask := frame.New[bool](nFrames, h, w)
	for t := 0; t < nFrames; t++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := baseline + slope*float64(x+y)
				fluor.Set(t, y, x, uint16(v))
			}
		}
	}
	return fluor, mask
}

func TestSchwarzfischerRecoversFlatBackground(t *testing.T) {
	h, w := 60, 84
	fluor, mask := buildFlatStack(3, h, w, 500, 0)

	algo, ok := Lookup("schwarzfischer")
	require.True(t, ok)

	corrected, err := algo.Correct(fluor, mask, cancel.None, nil)
	require.NoError(t, err)

	nFrames, ch, cw := corrected.Shape()
	assert.Equal(t, 3, nFrames)
	assert.Equal(t, h, ch)
	assert.Equal(t, w, cw)

	for ti := 0; ti < nFrames; ti++ {
		for _, v := range corrected.Frame(ti) {
			assert.InDelta(t, float64(0), float64(v), 0.05)
		}
	}
}

func TestSchwarzfischerRejectsShapeMismatch(t *testing.T) {
	fluor := frame.New[uint16](2, 60, 84)
	mask := frame.New[bool](2, 40, 40)
	algo, _ := Lookup("schwarzfischer")

	_, err := algo.Correct(fluor, mask, cancel.None, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pyamaerr.ErrShapeMismatch))
}

func TestSchwarzfischerFailsOnFullyMaskedFrame(t *testing.T) {
	h, w := 60, 84
	fluor, mask := buildFlatStack(1, h, w, 500, 0)
	for i := range mask.Frame(0) {
		mask.Frame(0)[i] = true
	}

	algo, _ := Lookup("schwarzfischer")
	_, err := algo.Correct(fluor, mask, cancel.None, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pyamaerr.ErrNumericFailure))
}

func TestMorphOpenClipsNegativeResiduals(t *testing.T) {
	h, w := 40, 40
	fluor, _ := buildFlatStack(1, h, w, 100, 0)

	algo, ok := Lookup("morph-open")
	require.True(t, ok)

	corrected, err := algo.Correct(fluor, nil, cancel.None, nil)
	require.NoError(t, err)
	for _, v := range corrected.Frame(0) {
		assert.GreaterOrEqual(t, v, float32(0))
	}
}

func TestQuantizeToStorageWidthRoundTripsLosslessValues(t *testing.T) {
	patch := []float64{0, 1, 2, 100, 1000}
	out := quantizeToStorageWidth(patch)
	require.Len(t, out, len(patch))
	for i, v := range patch {
		assert.Equal(t, v, out[i], "integral value %v should survive float16 storage exactly", v)
	}
}

func TestQuantizeToStorageWidthPreservesFloat32PrecisionWhenNotLossless(t *testing.T) {
	// 100000 overflows binary16's representable range (max ~65504),
	// so the patch must fall back to float32 precision rather than
	// being truncated to float16.
	patch := []float64{100000.125}
	out := quantizeToStorageWidth(patch)
	assert.Equal(t, float64(float32(100000.125)), out[0])
}

func TestRegistryListsBothAlgorithms(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "schwarzfischer")
	assert.Contains(t, names, "morph-open")
}
