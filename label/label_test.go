package label

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
)

func TestFrameLabelsTwoDisjointBlobsDistinctly(t *testing.T) {
	h, w := 10, 10
	mask := make([]bool, h*w)
	mask[1*w+1] = true
	mask[8*w+8] = true
	mask[8*w+9] = true

	labels := Frame(mask, h, w)

	assert.NotZero(t, labels[1*w+1])
	assert.NotZero(t, labels[8*w+8])
	assert.Equal(t, labels[8*w+8], labels[8*w+9], "4-connected neighbors share a label")
	assert.NotEqual(t, labels[1*w+1], labels[8*w+8], "disjoint blobs get distinct labels")
}

func TestFrameDoesNotConnectDiagonalNeighbors(t *testing.T) {
	h, w := 4, 4
	mask := make([]bool, h*w)
	mask[1*w+1] = true
	mask[2*w+2] = true

	labels := Frame(mask, h, w)
	assert.NotEqual(t, labels[1*w+1], labels[2*w+2], "diagonal-only contact must not connect under 4-connectivity")
}

func TestFrameBackgroundStaysZero(t *testing.T) {
	h, w := 5, 5
	mask := make([]bool, h*w)
	labels := Frame(mask, h, w)
	for _, v := range labels {
		assert.Zero(t, v)
	}
}

func TestStackLabelsEachFrameIndependently(t *testing.T) {
	mask := frame.New[bool](2, 6, 6)
	mask.Set(0, 1, 1, true)
	mask.Set(1, 4, 4, true)
	mask.Set(1, 4, 5, true)

	labels, err := Stack(mask, cancel.None, nil)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), labels.At(0, 1, 1))
	assert.Equal(t, uint16(1), labels.At(1, 4, 4))
	assert.Equal(t, labels.At(1, 4, 4), labels.At(1, 4, 5))
}
