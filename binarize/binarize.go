// Package binarize turns a raw phase-contrast (or
// fluorescence) stack into a foreground/background segmentation mask,
// one frame at a time, via a pluggable Algorithm.
package binarize

import (
	"fmt"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
)

// Algorithm binarizes a single float64 frame already extracted from a
// Stack. Implementations are registered by name in the package
// registry (registry.go) so the stage layer can select one by
// configuration string.
type Algorithm interface {
	// Name identifies this algorithm in the registry and in catalog
	// parameter records.
	Name() string
	// BinarizeFrame returns the foreground mask for one h x w frame.
	BinarizeFrame(img []float64, h, w int) ([]bool, error)
}

// Stack runs algo over every frame of phase, reporting coarse progress
// and polling tok between frames. It fails fast with ErrCancelled if
// tok fires mid-stack.
func Stack[T frame.Pixel](algo Algorithm, phase *frame.Stack[T], tok cancel.Token, rep progress.Reporter) (*frame.Mask, error) {
	if algo == nil {
		return nil, fmt.Errorf("binarize: %w: nil algorithm", pyamaerr.ErrInvalidArgument)
	}
	nFrames, h, w := phase.Shape()
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("binarize: %w: empty frame shape", pyamaerr.ErrInvalidShape)
	}

	out := frame.New[bool](nFrames, h, w)
	report := progress.Coarse(rep, 30)
	for t := 0; t < nFrames; t++ {
		if cancel.Fired(tok) {
			return nil, pyamaerr.ErrCancelled
		}
		img := frame.ToFloat64(phase, t)
		mask, err := algo.BinarizeFrame(img, h, w)
		if err != nil {
			return nil, fmt.Errorf("binarize: frame %d: %w", t, err)
		}
		if len(mask) != h*w {
			return nil, fmt.Errorf("binarize: frame %d: %w: algorithm %s returned %d pixels, want %d", t, pyamaerr.ErrInvalidShape, algo.Name(), len(mask), h*w)
		}
		copy(out.Frame(t), mask)
		report.Report(progress.Event{Stage: "binarize", T: t, NFrames: nFrames, Message: "binarizing"})
	}
	return out, nil
}
