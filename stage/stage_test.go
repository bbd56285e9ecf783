package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/catalog"
	"github.com/pyama-io/pyama/channelsel"
	"github.com/pyama-io/pyama/reader"
	"github.com/pyama-io/pyama/tracetable"
)

const (
	testH, testW, testFrames = 20, 20, 2
	pcChannel                = 0
	flChannel                = 1
)

type fakeSource struct {
	pc []uint16 // H*W, a stationary blob replicated across frames
	fl []uint16
}

func newFakeSource() *fakeSource {
	pc := make([]uint16, testH*testW)
	fl := make([]uint16, testH*testW)
	for y := 8; y < 12; y++ {
		for x := 8; x < 12; x++ {
			pc[y*testW+x] = 4000
			fl[y*testW+x] = 500
		}
	}
	for i := range pc {
		if pc[i] == 0 {
			pc[i] = 100
		}
	}
	return &fakeSource{pc: pc, fl: fl}
}

func (s *fakeSource) Metadata() reader.Metadata {
	return reader.Metadata{
		NFOVs:        1,
		NChannels:    2,
		NFrames:      testFrames,
		Height:       testH,
		Width:        testW,
		ChannelNames: []string{"pc", "gfp"},
		Timepoints:   []float64{0, 1},
		BaseName:     "exp",
	}
}

func (s *fakeSource) ReadFrame(fov, channel, t int) ([]uint16, error) {
	switch channel {
	case pcChannel:
		return s.pc, nil
	case flChannel:
		return s.fl, nil
	default:
		return nil, os.ErrNotExist
	}
}

func testServices(src reader.Source) Services {
	return Services{
		Source: src,
		Selection: channelsel.Selection{
			PC: pcChannel,
			FL: []int{flChannel},
		},
	}
}

func TestFullPipelineOneFOV(t *testing.T) {
	dir := t.TempDir()
	src := newFakeSource()
	svc := testServices(src)
	cat := catalog.New(dir)

	require.NoError(t, svc.Copy(cat, dir, 0, cancel.None, nil))
	require.NoError(t, svc.Segment(cat, dir, 0, cancel.None, nil))
	require.NoError(t, svc.BackgroundCorrect(cat, dir, 0, cancel.None, nil))
	require.NoError(t, svc.Track(cat, dir, 0, cancel.None, nil))
	require.NoError(t, svc.Extract(cat, dir, 0, cancel.None, nil))

	entry := cat.Entry(0)
	require.NotNil(t, entry.PC)
	require.NotNil(t, entry.Seg)
	require.NotNil(t, entry.SegLabeled)
	require.Len(t, entry.FLBackground, 1)
	require.NotNil(t, entry.Traces)

	assert.FileExists(t, entry.PC.Path)
	assert.FileExists(t, entry.Seg.Path)
	assert.FileExists(t, entry.SegLabeled.Path)
	assert.FileExists(t, entry.FLBackground[0].Path)
	assert.FileExists(t, *entry.Traces)

	table, err := tracetable.Read(*entry.Traces)
	require.NoError(t, err)
	assert.NotEmpty(t, table.Rows, "the tracked blob should yield at least one cell row")
}

func TestCopyIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := newFakeSource()
	svc := testServices(src)
	cat := catalog.New(dir)

	require.NoError(t, svc.Copy(cat, dir, 0, cancel.None, nil))
	path := cat.Entry(0).PC.Path
	info1, err := os.Stat(path)
	require.NoError(t, err)

	// A second Copy over a catalog that lost its record should not
	// re-fetch frames, only re-discover the artifact already on disk.
	cat2 := catalog.New(dir)
	require.NoError(t, svc.Copy(cat2, dir, 0, cancel.None, nil))
	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
	assert.Equal(t, path, cat2.Entry(0).PC.Path)
}

func TestSegmentFailsWithoutPCArtifact(t *testing.T) {
	dir := t.TempDir()
	svc := testServices(newFakeSource())
	cat := catalog.New(dir)
	err := svc.Segment(cat, dir, 0, cancel.None, nil)
	require.Error(t, err)
}

func TestProcessAllFOVsStopsOnCancellation(t *testing.T) {
	dir := t.TempDir()
	svc := testServices(newFakeSource())
	cat := catalog.New(dir)

	src := cancel.New()
	src.Cancel()
	err := svc.CopyAllFOVs(cat, dir, 0, 2, src.Token(), nil)
	require.Error(t, err)
}

func TestExtractAllFOVsRunsFullRangeSequentially(t *testing.T) {
	dir := t.TempDir()
	svc := testServices(newFakeSource())
	cat := catalog.New(dir)

	require.NoError(t, svc.CopyAllFOVs(cat, dir, 0, 0, cancel.None, nil))
	require.NoError(t, svc.SegmentAllFOVs(cat, dir, 0, 0, cancel.None, nil))
	require.NoError(t, svc.BackgroundCorrectAllFOVs(cat, dir, 0, 0, cancel.None, nil))
	require.NoError(t, svc.TrackAllFOVs(cat, dir, 0, 0, cancel.None, nil))
	require.NoError(t, svc.ExtractAllFOVs(cat, dir, 0, 0, cancel.None, nil))

	assert.NotNil(t, cat.Entry(0).Traces)
}

func TestFOVDirIsZeroPadded(t *testing.T) {
	dir := t.TempDir()
	got := fovDir(dir, 7)
	assert.Equal(t, filepath.Join(dir, "fov_007"), got)
}

