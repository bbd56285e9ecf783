// Package reader names the external microscopy-file reader's
// interface. The reader itself (ND2 parsing and friends) is out of
// scope for this module; only the shapes it must expose to the
// pipeline are declared here, so the pipeline and its tests can depend
// on an interface rather than a concrete file format.
package reader

// Metadata is the immutable record the external reader produces for a
// microscopy file. All derived stacks for a FOV must match Height,
// Width, and NFrames.
type Metadata struct {
	NFOVs        int
	NChannels    int
	NFrames      int
	Height       int
	Width        int
	ChannelNames []string
	Timepoints   []float64 // ordered, real-valued acquisition times, len == NFrames
	BaseName     string
}

// Source is the frame-access surface the pipeline needs from the
// external reader: raw uint16 pixel data addressed by (fov, channel,
// frame). ReadFrame need not be safe for concurrent use: only the Copy
// stage calls it, and the orchestrator runs Copy on a single goroutine.
// Metadata is called concurrently by the worker goroutines.
type Source interface {
	Metadata() Metadata

	// ReadFrame returns the raw pixel data for one frame of one
	// channel of one FOV, as a flat row-major Height*Width uint16
	// slice. Implementations may return a freshly allocated slice or
	// a reused internal buffer valid until the next call.
	ReadFrame(fov, channel, t int) ([]uint16, error)
}
