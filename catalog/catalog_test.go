package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMergeUnionsFLPaths(t *testing.T) {
	parent := New("/out")
	parent.AddFL(0, 0, "/a.bin")

	child := New("/out")
	child.AddFL(0, 0, "/a.bin")
	child.AddFL(0, 1, "/b.bin")

	parent.Merge(child)

	entry := parent.Entry(0)
	require.NotNil(t, entry)
	assert.ElementsMatch(t, []PathRef{{0, "/a.bin"}, {1, "/b.bin"}}, entry.FL)
}

func TestMergeIsIdempotent(t *testing.T) {
	c := New("/out")
	c.AddFL(0, 0, "/a.bin")
	c.SetSeg(0, 0, "/seg.bin")

	other := New("/out")
	other.AddFL(0, 1, "/b.bin")

	once := c.Clone()
	once.Merge(other)

	twice := c.Clone()
	twice.Merge(other)
	twice.Merge(other)

	assert.Equal(t, once.Entry(0).FL, twice.Entry(0).FL)
	assert.Equal(t, *once.Entry(0).Seg, *twice.Entry(0).Seg)
}

func TestMergeScalarIsFirstWriterWins(t *testing.T) {
	parent := New("/out")
	parent.SetSeg(0, 0, "/first.bin")

	child := New("/out")
	child.SetSeg(0, 0, "/second.bin")

	parent.Merge(child)

	assert.Equal(t, "/first.bin", parent.Entry(0).Seg.Path)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	c.TimeUnits = "min"
	c.SetPC(0, 0, "/pc.bin")
	c.AddFL(0, 1, "/fl.bin")
	c.SetTraces(0, "/traces.csv")

	path := filepath.Join(dir, "processing_results.yaml")
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, c.TimeUnits, loaded.TimeUnits)
	assert.Equal(t, c.Entry(0).PC.Path, loaded.Entry(0).PC.Path)
	assert.ElementsMatch(t, c.Entry(0).FL, loaded.Entry(0).FL)
	assert.Equal(t, *c.Entry(0).Traces, *loaded.Entry(0).Traces)
}

func TestPathRefSerializesAsTwoElementSequence(t *testing.T) {
	c := New("/out")
	c.SetPC(0, 2, "/pc.bin")

	data, err := yaml.Marshal(c)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))

	results := raw["results"].(map[string]any)
	entry := results["0"].(map[string]any)
	pc, ok := entry["pc"].([]any)
	require.True(t, ok, "pc must decode as a sequence, not a mapping")
	require.Len(t, pc, 2)
	assert.Equal(t, 2, pc[0])
	assert.Equal(t, "/pc.bin", pc[1])
}

func TestFOVsSortedAscending(t *testing.T) {
	c := New("/out")
	c.EnsureFOV(3)
	c.EnsureFOV(0)
	c.EnsureFOV(1)

	assert.Equal(t, []int{0, 1, 3}, c.FOVs())
}
