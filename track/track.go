// Package track links per-frame connected
// components into persistent cell traces, filtering by size and
// border policy along the way.
package track

import (
	"sort"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
)

// Options configures the region-classification thresholds. Zero
// values select the reference defaults.
type Options struct {
	IgnoreSize int // default 300
	MinSize    int // default 1000
	MaxSize    int // default 10000
}

// DefaultOptions returns the reference thresholds.
func DefaultOptions() Options {
	return Options{IgnoreSize: 300, MinSize: 1000, MaxSize: 10000}
}

func (o Options) withDefaults() Options {
	if o.IgnoreSize == 0 {
		o.IgnoreSize = 300
	}
	if o.MinSize == 0 {
		o.MinSize = 1000
	}
	if o.MaxSize == 0 {
		o.MaxSize = 10000
	}
	return o
}

// checks is one region's classification.
type checks struct {
	Area                              int
	Good, Edge, Ignore, Small, Large  bool
}

func classify(r *regionProps, h, w int, opts Options) checks {
	edge := r.YMin == 0 || r.XMin == 0 || r.YMax == h || r.XMax == w
	small := opts.MinSize > 0 && r.Area < opts.MinSize
	large := opts.MaxSize > 0 && r.Area > opts.MaxSize
	ignore := small && opts.IgnoreSize > 0 && r.Area <= opts.IgnoreSize
	good := !edge && !small && !large
	return checks{Area: r.Area, Good: good, Edge: edge, Ignore: ignore, Small: small, Large: large}
}

// Trace is one retained cell lineage: its per-frame original region
// label and its overall good flag (conjunction of per-frame good
// across the trace). Traces returned by Track have one FrameLabels
// entry per frame; TracesFromLabeled lists only the frames in which
// the label is present.
type Trace struct {
	FrameLabels []int
	Good        bool
}

type traceState struct {
	frameLabels []int
	goodAccum   bool
	untrackable bool
}

// Algorithm links a labeled stack into persistent traces. It is
// pluggable so alternative linking strategies
// (e.g. centroid-distance matching) can be registered alongside the
// reference bounding-box-then-coordinate-overlap tracker.
type Algorithm interface {
	Name() string
	Track(labeled *frame.Labels, opts Options, tok cancel.Token, rep progress.Reporter) (*frame.Labels, []Trace, error)
}

// BBoxOverlap is the reference tracker: bounding-box candidate
// filtering, exact pixel-coordinate confirmation, and area-sorted
// parent disambiguation.
type BBoxOverlap struct{}

func (BBoxOverlap) Name() string { return "bbox-overlap" }

func (BBoxOverlap) Track(labeled *frame.Labels, opts Options, tok cancel.Token, rep progress.Reporter) (*frame.Labels, []Trace, error) {
	opts = opts.withDefaults()
	nFrames, h, w := labeled.Shape()
	if h <= 0 || w <= 0 {
		return nil, nil, pyamaerr.ErrInvalidShape
	}

	var traces []*traceState
	prevIdx := map[int]int{}   // label (previous frame) -> trace index
	prevChecks := map[int]checks{}
	var prevRegions map[int]*regionProps

	report := progress.Coarse(rep, 30)

	for t := 0; t < nFrames; t++ {
		if cancel.Fired(tok) {
			return nil, nil, pyamaerr.ErrCancelled
		}
		regions := buildRegions(labeled.Frame(t), h, w)
		newIdx := map[int]int{}
		newChecks := map[int]checks{}

		if t == 0 {
			for _, lbl := range sortedLabels(regions) {
				ck := classify(regions[lbl], h, w, opts)
				if ck.Ignore {
					continue
				}
				idx := len(traces)
				traces = append(traces, &traceState{frameLabels: []int{lbl}, goodAccum: ck.Good})
				prevIdx[lbl] = idx
				prevChecks[lbl] = ck
			}
		} else {
			// Restrict candidate parents to labels still tracked
			// from the previous frame.
			candidates := make([]*regionProps, 0, len(prevIdx))
			for lbl := range prevIdx {
				if r, ok := prevRegions[lbl]; ok {
					candidates = append(candidates, r)
				}
			}

			for _, lbl := range sortedLabels(regions) {
				region := regions[lbl]
				ck := classify(region, h, w, opts)
				if ck.Ignore {
					continue
				}

				var bboxHits []*regionProps
				for _, c := range candidates {
					if bboxOverlap(region, c) {
						bboxHits = append(bboxHits, c)
					}
				}
				if len(bboxHits) == 0 {
					continue
				}

				var confirmed []*regionProps
				for _, c := range bboxHits {
					if checkCoordinateOverlap(region, c) {
						confirmed = append(confirmed, c)
					}
				}
				if len(confirmed) == 0 {
					continue
				}

				sort.Slice(confirmed, func(i, j int) bool {
					return prevChecks[confirmed[i].Label].Area < prevChecks[confirmed[j].Label].Area
				})

				poisonAll := func() {
					for _, c := range confirmed {
						if idx, ok := prevIdx[c.Label]; ok {
							traces[idx].untrackable = true
						}
					}
				}

				smallest := prevChecks[confirmed[0].Label]
				if smallest.Ignore {
					poisonAll()
					continue
				}
				if len(confirmed) > 1 && !prevChecks[confirmed[1].Label].Ignore {
					poisonAll()
					continue
				}

				parentLabel := confirmed[0].Label
				traceIdx, ok := prevIdx[parentLabel]
				if !ok {
					continue
				}
				if traces[traceIdx].untrackable {
					continue
				}

				if siblingAlready(newIdx, traceIdx) {
					traces[traceIdx].untrackable = true
				}

				newIdx[lbl] = traceIdx
				newChecks[lbl] = ck
				traces[traceIdx].frameLabels = append(traces[traceIdx].frameLabels, lbl)
				traces[traceIdx].goodAccum = traces[traceIdx].goodAccum && ck.Good
			}
		}

		prevIdx = newIdx
		prevChecks = newChecks
		prevRegions = regions
		report.Report(progress.Event{Stage: "track", T: t, NFrames: nFrames, Message: "tracking cells"})
	}

	var retained []Trace
	for _, tr := range traces {
		if tr.untrackable || len(tr.frameLabels) != nFrames {
			continue
		}
		retained = append(retained, Trace{FrameLabels: tr.frameLabels, Good: tr.goodAccum})
	}

	out := renderLabels(labeled, retained)
	return out, retained, nil
}

// TracesFromLabeled recomputes each persistent cell's Trace directly
// from an already-tracked labels stack (the renderLabels output, or
// one reloaded from a .pfs artifact): each positive label id is
// reclassified per frame and its Good flags are conjoined. It is used
// by the Extract stage to resume from a persisted seg_labeled
// artifact without needing the in-memory Track result that produced
// it.
func TracesFromLabeled(labeled *frame.Labels, opts Options) []Trace {
	opts = opts.withDefaults()
	nFrames, h, w := labeled.Shape()

	maxID := 0
	for _, v := range labeled.Data {
		if int(v) > maxID {
			maxID = int(v)
		}
	}
	if maxID == 0 {
		return nil
	}

	goodAccum := make([]bool, maxID+1)
	frameLabels := make([][]int, maxID+1)
	for i := range goodAccum {
		goodAccum[i] = true
	}

	for t := 0; t < nFrames; t++ {
		for id, r := range buildRegions(labeled.Frame(t), h, w) {
			ck := classify(r, h, w, opts)
			goodAccum[id] = goodAccum[id] && ck.Good
			frameLabels[id] = append(frameLabels[id], id)
		}
	}

	out := make([]Trace, maxID)
	for id := 1; id <= maxID; id++ {
		out[id-1] = Trace{FrameLabels: frameLabels[id], Good: goodAccum[id]}
	}
	return out
}

func siblingAlready(newIdx map[int]int, traceIdx int) bool {
	for _, v := range newIdx {
		if v == traceIdx {
			return true
		}
	}
	return false
}

// renderLabels emits the output labels stack: for each frame, pixels
// belonging to a retained trace's region carry the trace's 1-based
// index; everything else is 0.
func renderLabels(labeled *frame.Labels, traces []Trace) *frame.Labels {
	nFrames, h, w := labeled.Shape()
	out := frame.New[uint16](nFrames, h, w)
	for traceIdx, tr := range traces {
		id := uint16(traceIdx + 1)
		for t, lbl := range tr.FrameLabels {
			src := labeled.Frame(t)
			dst := out.Frame(t)
			for p, v := range src {
				if int(v) == lbl {
					dst[p] = id
				}
			}
		}
	}
	return out
}
