package tracetable

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traces.csv")

	table := &Table{
		FeatureNames: []string{"area", "intensity_total"},
		Rows: []Row{
			{FOV: 0, Time: 1, Cell: 2, Good: true, Exist: true, PositionX: 1.5, PositionY: 2.5, Features: map[string]float64{"area": 10, "intensity_total": 100.123456}},
			{FOV: 0, Time: 0, Cell: 2, Good: true, Exist: true, PositionX: 1.0, PositionY: 2.0, Features: map[string]float64{"area": 9, "intensity_total": 90}},
			{FOV: 0, Time: 0, Cell: 1, Good: false, Exist: false, PositionX: math.NaN(), PositionY: math.NaN(), Features: map[string]float64{}},
		},
	}

	require.NoError(t, Write(path, table))
	loaded, err := Read(path)
	require.NoError(t, err)

	require.Len(t, loaded.Rows, 3)
	assert.Equal(t, []string{"area", "intensity_total"}, loaded.FeatureNames)

	// sorted by (cell, time): cell1@t0, cell2@t0, cell2@t1
	assert.Equal(t, 1, loaded.Rows[0].Cell)
	assert.False(t, loaded.Rows[0].Exist)
	assert.True(t, math.IsNaN(loaded.Rows[0].PositionX))

	assert.Equal(t, 2, loaded.Rows[1].Cell)
	assert.Equal(t, float64(0), loaded.Rows[1].Time)
	assert.InDelta(t, 9.0, loaded.Rows[1].Features["area"], 1e-9)

	assert.Equal(t, 2, loaded.Rows[2].Cell)
	assert.Equal(t, float64(1), loaded.Rows[2].Time)
	assert.InDelta(t, 100.123456, loaded.Rows[2].Features["intensity_total"], 1e-6)
}

func TestWriteFormatsSixDecimalDigits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traces.csv")
	table := &Table{Rows: []Row{{Cell: 1, PositionX: 1.0 / 3.0, PositionY: 0}}}
	require.NoError(t, Write(path, table))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.333333, loaded.Rows[0].PositionX, 1e-9)
}
