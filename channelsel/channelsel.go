// Package channelsel models which microscopy channels feed the
// pipeline, and which registered features each channel should produce.
package channelsel

import (
	"fmt"

	"github.com/pyama-io/pyama/pyamaerr"
)

// Selection is { pc, fl, features_for_pc, features_for_fl }.
// PC, if set, must be disjoint from FL.
type Selection struct {
	// PC is the phase-contrast channel index, or -1 if none is
	// selected.
	PC int

	// FL is the ordered list of fluorescence channel indices.
	FL []int

	// FeaturesForPC names extra registered features (beyond the
	// always-computed position/area/intensity_total) for the PC
	// channel. The stage drivers do not read it; Extract computes the
	// features listed in stage.Services.ExtraFeatures.
	FeaturesForPC map[string]struct{}

	// FeaturesForFL names, per fluorescence channel index, extra
	// registered features. The stage drivers do not read it either.
	FeaturesForFL map[int]map[string]struct{}
}

// None is the "pc unset" sentinel.
const None = -1

// Validate checks the disjointness invariant and that every channel
// index is valid for the given metadata channel count.
func (s Selection) Validate(nChannels int) error {
	inRange := func(ch int) bool { return ch >= 0 && ch < nChannels }

	if s.PC != None {
		if !inRange(s.PC) {
			return fmt.Errorf("%w: pc channel %d out of range [0,%d)", pyamaerr.ErrInvalidArgument, s.PC, nChannels)
		}
		for _, fl := range s.FL {
			if fl == s.PC {
				return fmt.Errorf("%w: pc channel %d also selected as fl", pyamaerr.ErrInvalidArgument, s.PC)
			}
		}
	}
	for _, fl := range s.FL {
		if !inRange(fl) {
			return fmt.Errorf("%w: fl channel %d out of range [0,%d)", pyamaerr.ErrInvalidArgument, fl, nChannels)
		}
	}
	return nil
}

// HasPC reports whether a phase-contrast channel is selected.
func (s Selection) HasPC() bool { return s.PC != None }
