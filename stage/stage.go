// Package stage implements the five per-FOV
// drivers (Copy, Segment, BackgroundCorrect, Track, Extract) that read
// and write the catalog's artifact paths, skip recomputation when the
// target artifact already exists on disk, and report coarse progress.
package stage

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/pyama-io/pyama/background"
	"github.com/pyama-io/pyama/binarize"
	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/catalog"
	"github.com/pyama-io/pyama/channelsel"
	"github.com/pyama-io/pyama/extract"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/framestore"
	"github.com/pyama-io/pyama/label"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
	"github.com/pyama-io/pyama/reader"
	"github.com/pyama-io/pyama/track"
	"github.com/pyama-io/pyama/tracetable"
)

// Services bundles the configuration and algorithm choices shared by
// every stage driver for one run: the frame source, the channel
// selection, and the pluggable per-stage algorithms (an open
// question: algorithms are selected once per run, not per FOV).
type Services struct {
	Source    reader.Source
	Selection channelsel.Selection

	Binarizer  binarize.Algorithm
	Background background.Algorithm
	Tracker    track.Algorithm
	TrackOpts  track.Options

	// ExtraFeatures names registered extract.FeatureFunc features
	// (registry.go) to compute in addition to the always-present set.
	ExtraFeatures []string
}

// withDefaults fills in the reference algorithms when unset, mirroring
// each package's own registry defaults.
func (s Services) withDefaults() Services {
	if s.Binarizer == nil {
		s.Binarizer = binarize.LogStd{WindowSize: 3}
	}
	if s.Background == nil {
		s.Background = background.Schwarzfischer{}
	}
	if s.Tracker == nil {
		s.Tracker = track.BBoxOverlap{}
	}
	return s
}

func ensureDir(outputDir string, fov int) error {
	if err := os.MkdirAll(fovDir(outputDir, fov), 0o755); err != nil {
		return fmt.Errorf("stage: mkdir %s: %w: %v", fovDir(outputDir, fov), pyamaerr.ErrIOFailure, err)
	}
	return nil
}

// processAllFOVs iterates fovStart..fovEnd inclusive, polling tok
// between FOVs.
func processAllFOVs(fovStart, fovEnd int, tok cancel.Token, fn func(fov int) error) error {
	for f := fovStart; f <= fovEnd; f++ {
		if cancel.Fired(tok) {
			return pyamaerr.ErrCancelled
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Copy implements the Copy stage for one FOV: it reads raw pixel data
// from the external reader and writes it into .pfs stacks, one for
// the PC channel (if selected) and one per selected FL channel.
// Idempotent: an artifact already present on disk is not
// re-downloaded, only re-recorded into the catalog.
func (s Services) Copy(cat *catalog.Catalog, outputDir string, fov int, tok cancel.Token, rep progress.Reporter) error {
	s = s.withDefaults()
	meta := s.Source.Metadata()
	log.Info("stage start", "stage", "copy", "fov", fov)
	if err := ensureDir(outputDir, fov); err != nil {
		return pyamaerr.Wrap("copy", fov, err)
	}
	report := progress.Coarse(rep, 30)

	copyChannel := func(ch int, path string) error {
		if framestore.Exists(path) {
			log.Debug("artifact exists, skipping recompute", "stage", "copy", "fov", fov, "channel", ch, "path", path)
			return nil
		}
		st, err := framestore.Create[uint16](path, meta.NFrames, meta.Height, meta.Width)
		if err != nil {
			return err
		}
		defer st.Close()
		for t := 0; t < meta.NFrames; t++ {
			if cancel.Fired(tok) {
				return pyamaerr.ErrCancelled
			}
			px, err := s.Source.ReadFrame(fov, ch, t)
			if err != nil {
				return fmt.Errorf("copy: read fov %d channel %d frame %d: %w: %v", fov, ch, t, pyamaerr.ErrIOFailure, err)
			}
			if err := st.WriteFrame(t, px); err != nil {
				return err
			}
			report.Report(progress.Event{Stage: "copy", FOV: fov, T: t, NFrames: meta.NFrames, Message: "copying frames"})
		}
		return nil
	}

	if s.Selection.HasPC() {
		path := pcRawPath(outputDir, meta.BaseName, fov)
		if err := copyChannel(s.Selection.PC, path); err != nil {
			return pyamaerr.Wrap("copy", fov, err)
		}
		cat.SetPC(fov, s.Selection.PC, path)
	}
	for _, ch := range s.Selection.FL {
		path := flRawPath(outputDir, meta.BaseName, fov, ch)
		if err := copyChannel(ch, path); err != nil {
			return pyamaerr.Wrap("copy", fov, err)
		}
		cat.AddFL(fov, ch, path)
	}
	return nil
}

// CopyAllFOVs runs Copy over the inclusive FOV range.
func (s Services) CopyAllFOVs(cat *catalog.Catalog, outputDir string, fovStart, fovEnd int, tok cancel.Token, rep progress.Reporter) error {
	return processAllFOVs(fovStart, fovEnd, tok, func(fov int) error {
		return s.Copy(cat, outputDir, fov, tok, rep)
	})
}

// Segment implements the Segment stage: binarizes the PC stack
// recorded in the catalog into a boolean mask.
func (s Services) Segment(cat *catalog.Catalog, outputDir string, fov int, tok cancel.Token, rep progress.Reporter) error {
	s = s.withDefaults()
	meta := s.Source.Metadata()
	log.Info("stage start", "stage", "segment", "fov", fov)
	entry := cat.Entry(fov)
	if entry == nil || entry.PC == nil {
		return pyamaerr.Wrap("segment", fov, fmt.Errorf("%w: no pc artifact recorded for fov %d", pyamaerr.ErrNotFound, fov))
	}
	path := segPath(outputDir, meta.BaseName, fov, entry.PC.Channel)
	if framestore.Exists(path) {
		log.Debug("artifact exists, skipping recompute", "stage", "segment", "fov", fov, "path", path)
		cat.SetSeg(fov, entry.PC.Channel, path)
		return nil
	}

	pcStore, err := framestore.OpenRO[uint16](entry.PC.Path)
	if err != nil {
		return pyamaerr.Wrap("segment", fov, err)
	}
	defer pcStore.Close()
	pcStack, err := framestore.ReadStack(pcStore)
	if err != nil {
		return pyamaerr.Wrap("segment", fov, err)
	}

	mask, err := binarize.Stack(s.Binarizer, pcStack, tok, progress.Coarse(rep, 30))
	if err != nil {
		return pyamaerr.Wrap("segment", fov, err)
	}

	if err := ensureDir(outputDir, fov); err != nil {
		return pyamaerr.Wrap("segment", fov, err)
	}
	out, err := framestore.Create[bool](path, mask.NFrames, mask.Height, mask.Width)
	if err != nil {
		return pyamaerr.Wrap("segment", fov, err)
	}
	defer out.Close()
	if err := framestore.WriteStack(out, mask); err != nil {
		return pyamaerr.Wrap("segment", fov, err)
	}
	cat.SetSeg(fov, entry.PC.Channel, path)
	return nil
}

func (s Services) SegmentAllFOVs(cat *catalog.Catalog, outputDir string, fovStart, fovEnd int, tok cancel.Token, rep progress.Reporter) error {
	return processAllFOVs(fovStart, fovEnd, tok, func(fov int) error {
		return s.Segment(cat, outputDir, fov, tok, rep)
	})
}

// BackgroundCorrect implements the BackgroundCorrect stage: corrects
// every selected fluorescence channel against the FOV's mask.
func (s Services) BackgroundCorrect(cat *catalog.Catalog, outputDir string, fov int, tok cancel.Token, rep progress.Reporter) error {
	s = s.withDefaults()
	meta := s.Source.Metadata()
	log.Info("stage start", "stage", "background_correct", "fov", fov)
	entry := cat.Entry(fov)
	if entry == nil || entry.Seg == nil {
		return pyamaerr.Wrap("background_correct", fov, fmt.Errorf("%w: no seg artifact recorded for fov %d", pyamaerr.ErrNotFound, fov))
	}
	if len(entry.FL) == 0 {
		return nil
	}

	maskStore, err := framestore.OpenRO[bool](entry.Seg.Path)
	if err != nil {
		return pyamaerr.Wrap("background_correct", fov, err)
	}
	defer maskStore.Close()
	mask, err := framestore.ReadStack(maskStore)
	if err != nil {
		return pyamaerr.Wrap("background_correct", fov, err)
	}

	for _, ref := range entry.FL {
		path := flCorrectedPath(outputDir, meta.BaseName, fov, ref.Channel)
		if framestore.Exists(path) {
			log.Debug("artifact exists, skipping recompute", "stage", "background_correct", "fov", fov, "channel", ref.Channel, "path", path)
			cat.AddFLBackground(fov, ref.Channel, path)
			continue
		}

		flStore, err := framestore.OpenRO[uint16](ref.Path)
		if err != nil {
			return pyamaerr.Wrap("background_correct", fov, err)
		}
		fluor, err := framestore.ReadStack(flStore)
		flStore.Close()
		if err != nil {
			return pyamaerr.Wrap("background_correct", fov, err)
		}

		corrected, err := s.Background.Correct(fluor, mask, tok, progress.Coarse(rep, 30))
		if err != nil {
			return pyamaerr.Wrap("background_correct", fov, err)
		}

		if err := ensureDir(outputDir, fov); err != nil {
			return pyamaerr.Wrap("background_correct", fov, err)
		}
		out, err := framestore.Create[float32](path, corrected.NFrames, corrected.Height, corrected.Width)
		if err != nil {
			return pyamaerr.Wrap("background_correct", fov, err)
		}
		writeErr := framestore.WriteStack(out, corrected)
		closeErr := out.Close()
		if writeErr != nil {
			return pyamaerr.Wrap("background_correct", fov, writeErr)
		}
		if closeErr != nil {
			return pyamaerr.Wrap("background_correct", fov, closeErr)
		}
		cat.AddFLBackground(fov, ref.Channel, path)
	}
	return nil
}

func (s Services) BackgroundCorrectAllFOVs(cat *catalog.Catalog, outputDir string, fovStart, fovEnd int, tok cancel.Token, rep progress.Reporter) error {
	return processAllFOVs(fovStart, fovEnd, tok, func(fov int) error {
		return s.BackgroundCorrect(cat, outputDir, fov, tok, rep)
	})
}

// Track implements the Track stage: connected-component labels the
// mask, then links components across frames into persistent cell
// traces.
func (s Services) Track(cat *catalog.Catalog, outputDir string, fov int, tok cancel.Token, rep progress.Reporter) error {
	s = s.withDefaults()
	meta := s.Source.Metadata()
	log.Info("stage start", "stage", "track", "fov", fov)
	entry := cat.Entry(fov)
	if entry == nil || entry.Seg == nil {
		return pyamaerr.Wrap("track", fov, fmt.Errorf("%w: no seg artifact recorded for fov %d", pyamaerr.ErrNotFound, fov))
	}
	path := segLabeledPath(outputDir, meta.BaseName, fov, entry.Seg.Channel)
	if framestore.Exists(path) {
		log.Debug("artifact exists, skipping recompute", "stage", "track", "fov", fov, "path", path)
		cat.SetSegLabeled(fov, entry.Seg.Channel, path)
		return nil
	}

	maskStore, err := framestore.OpenRO[bool](entry.Seg.Path)
	if err != nil {
		return pyamaerr.Wrap("track", fov, err)
	}
	defer maskStore.Close()
	mask, err := framestore.ReadStack(maskStore)
	if err != nil {
		return pyamaerr.Wrap("track", fov, err)
	}

	labeled, err := label.Stack(mask, tok, progress.Coarse(rep, 30))
	if err != nil {
		return pyamaerr.Wrap("track", fov, err)
	}

	out, _, err := s.Tracker.Track(labeled, s.TrackOpts, tok, progress.Coarse(rep, 30))
	if err != nil {
		return pyamaerr.Wrap("track", fov, err)
	}

	if err := ensureDir(outputDir, fov); err != nil {
		return pyamaerr.Wrap("track", fov, err)
	}
	store, err := framestore.Create[uint16](path, out.NFrames, out.Height, out.Width)
	if err != nil {
		return pyamaerr.Wrap("track", fov, err)
	}
	writeErr := framestore.WriteStack(store, out)
	closeErr := store.Close()
	if writeErr != nil {
		return pyamaerr.Wrap("track", fov, writeErr)
	}
	if closeErr != nil {
		return pyamaerr.Wrap("track", fov, closeErr)
	}
	cat.SetSegLabeled(fov, entry.Seg.Channel, path)
	return nil
}

func (s Services) TrackAllFOVs(cat *catalog.Catalog, outputDir string, fovStart, fovEnd int, tok cancel.Token, rep progress.Reporter) error {
	return processAllFOVs(fovStart, fovEnd, tok, func(fov int) error {
		return s.Track(cat, outputDir, fov, tok, rep)
	})
}

// Extract implements the Extract stage: turns the tracked labels
// stack and the primary fluorescence channel (background-corrected if
// available, raw otherwise) into a per-FOV
// TraceTable CSV. Traces (and each cell's good flag) are rederived
// directly from the persisted labels stack via
// track.TracesFromLabeled, so Extract can run as a standalone resume
// step without the in-memory Track result that produced it.
func (s Services) Extract(cat *catalog.Catalog, outputDir string, fov int, tok cancel.Token, rep progress.Reporter) error {
	s = s.withDefaults()
	meta := s.Source.Metadata()
	log.Info("stage start", "stage", "extract", "fov", fov)
	entry := cat.Entry(fov)
	if entry == nil || entry.SegLabeled == nil {
		return pyamaerr.Wrap("extract", fov, fmt.Errorf("%w: no seg_labeled artifact recorded for fov %d", pyamaerr.ErrNotFound, fov))
	}
	path := tracesPath(outputDir, meta.BaseName, fov)
	if framestore.Exists(path) {
		log.Debug("artifact exists, skipping recompute", "stage", "extract", "fov", fov, "path", path)
		cat.SetTraces(fov, path)
		return nil
	}

	labelStore, err := framestore.OpenRO[uint16](entry.SegLabeled.Path)
	if err != nil {
		return pyamaerr.Wrap("extract", fov, err)
	}
	defer labelStore.Close()
	labels, err := framestore.ReadStack(labelStore)
	if err != nil {
		return pyamaerr.Wrap("extract", fov, err)
	}

	fluor, err := s.loadPrimaryFluor(entry)
	if err != nil {
		return pyamaerr.Wrap("extract", fov, err)
	}

	traces := track.TracesFromLabeled(labels, s.TrackOpts)

	table, err := extract.Extract(fov, fluor, labels, traces, meta.Timepoints, s.ExtraFeatures, tok, progress.Coarse(rep, 30))
	if err != nil {
		return pyamaerr.Wrap("extract", fov, err)
	}
	table.Sort()

	if err := ensureDir(outputDir, fov); err != nil {
		return pyamaerr.Wrap("extract", fov, err)
	}
	if err := tracetable.Write(path, table); err != nil {
		return pyamaerr.Wrap("extract", fov, err)
	}
	cat.SetTraces(fov, path)
	return nil
}

// loadPrimaryFluor opens the first fluorescence channel recorded for
// this FOV, preferring its background-corrected artifact and falling
// back to the raw stack cast to float32 when no correction was run.
func (s Services) loadPrimaryFluor(entry *catalog.FOVEntry) (*frame.CorrectedFluor, error) {
	if len(entry.FLBackground) > 0 {
		ref := entry.FLBackground[0]
		store, err := framestore.OpenRO[float32](ref.Path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return framestore.ReadStack(store)
	}
	if len(entry.FL) == 0 {
		return nil, fmt.Errorf("%w: no fluorescence channel recorded", pyamaerr.ErrNotFound)
	}
	ref := entry.FL[0]
	store, err := framestore.OpenRO[uint16](ref.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	raw, err := framestore.ReadStack(store)
	if err != nil {
		return nil, err
	}
	n, h, w := raw.Shape()
	out := frame.New[float32](n, h, w)
	for i, v := range raw.Data {
		out.Data[i] = float32(v)
	}
	return out, nil
}

func (s Services) ExtractAllFOVs(cat *catalog.Catalog, outputDir string, fovStart, fovEnd int, tok cancel.Token, rep progress.Reporter) error {
	return processAllFOVs(fovStart, fovEnd, tok, func(fov int) error {
		return s.Extract(cat, outputDir, fov, tok, rep)
	})
}
