package framestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyama-io/pyama/frame"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pfs")

	st, err := Create[uint16](path, 2, 3, 3)
	require.NoError(t, err)
	require.NoError(t, st.WriteFrame(0, []uint16{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	require.NoError(t, st.WriteFrame(1, []uint16{9, 8, 7, 6, 5, 4, 3, 2, 1}))
	require.NoError(t, st.Close())

	ro, err := OpenRO[uint16](path)
	require.NoError(t, err)
	defer ro.Close()

	n, h, w := ro.Shape()
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, h)
	assert.Equal(t, 3, w)

	px, err := ro.ReadFrame(0)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3, 4, 5, 6, 7, 8, 9}, px)

	px, err = ro.ReadFrame(1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{9, 8, 7, 6, 5, 4, 3, 2, 1}, px)
}

func TestReadFrameOutOfRangeErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pfs")
	st, err := Create[uint8](path, 1, 2, 2)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.ReadFrame(5)
	assert.Error(t, err)
}

func TestWriteFrameRejectsWrongLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pfs")
	st, err := Create[uint8](path, 1, 2, 2)
	require.NoError(t, err)
	defer st.Close()

	err = st.WriteFrame(0, []uint8{1, 2})
	assert.Error(t, err)
}

func TestOpenROCannotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pfs")
	st, err := Create[uint8](path, 1, 2, 2)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	ro, err := OpenRO[uint8](path)
	require.NoError(t, err)
	defer ro.Close()

	err = ro.WriteFrame(0, []uint8{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestOpenWithWrongDTypeErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pfs")
	st, err := Create[uint16](path, 1, 2, 2)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = OpenRO[float32](path)
	assert.Error(t, err)
}

func TestOpenMissingFileErrors(t *testing.T) {
	_, err := OpenRO[uint8](filepath.Join(t.TempDir(), "missing.pfs"))
	assert.Error(t, err)
}

func TestExistsReflectsFilePresence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pfs")
	assert.False(t, Exists(path))

	st, err := Create[uint8](path, 1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	assert.True(t, Exists(path))
}

func TestWriteStackAndReadStackRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pfs")
	src := frame.New[float32](2, 2, 2)
	src.Set(0, 0, 0, 1.5)
	src.Set(1, 1, 1, -2.5)

	st, err := Create[float32](path, 2, 2, 2)
	require.NoError(t, err)
	require.NoError(t, WriteStack(st, src))
	require.NoError(t, st.Close())

	ro, err := OpenRO[float32](path)
	require.NoError(t, err)
	defer ro.Close()

	got, err := ReadStack(ro)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), got.At(0, 0, 0))
	assert.Equal(t, float32(-2.5), got.At(1, 1, 1))
}
