// Package label implements 4-connectivity connected-component
// labeling of a segmentation mask: each frame's foreground pixels are
// assigned dense positive labels starting at 1, background stays 0.
package label

import (
	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
)

// Frame labels one h x w mask into dense connected-component labels,
// using 4-connectivity (a component is a maximal set of foreground
// pixels connected via shared edges, not corners).
func Frame(mask []bool, h, w int) []uint16 {
	labels := make([]uint16, h*w)
	var next uint16 = 1
	stack := make([]int, 0, h*w/4)

	for start := 0; start < h*w; start++ {
		if !mask[start] || labels[start] != 0 {
			continue
		}
		stack = append(stack[:0], start)
		labels[start] = next

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			y, x := p/w, p%w

			tryPush := func(ny, nx int) {
				if ny < 0 || ny >= h || nx < 0 || nx >= w {
					return
				}
				q := ny*w + nx
				if mask[q] && labels[q] == 0 {
					labels[q] = next
					stack = append(stack, q)
				}
			}
			tryPush(y-1, x)
			tryPush(y+1, x)
			tryPush(y, x-1)
			tryPush(y, x+1)
		}
		next++
	}
	return labels
}

// Stack labels every frame of mask independently, returning a
// uint16 Labels stack of identical shape.
func Stack(mask *frame.Mask, tok cancel.Token, rep progress.Reporter) (*frame.Labels, error) {
	nFrames, h, w := mask.Shape()
	if h <= 0 || w <= 0 {
		return nil, pyamaerr.ErrInvalidShape
	}

	out := frame.New[uint16](nFrames, h, w)
	report := progress.Coarse(rep, 30)
	for t := 0; t < nFrames; t++ {
		if cancel.Fired(tok) {
			return nil, pyamaerr.ErrCancelled
		}
		copy(out.Frame(t), Frame(mask.Frame(t), h, w))
		report.Report(progress.Event{Stage: "label", T: t, NFrames: nFrames, Message: "labeling components"})
	}
	return out, nil
}
