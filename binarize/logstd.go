package binarize

import (
	"fmt"

	"github.com/pyama-io/pyama/pyamaerr"
)

// LogStd is the default algorithm: a log-transformed local
// sum-of-squared-deviations statistic, thresholded by its own
// histogram mode plus three standard deviations, followed by the
// dilate/fill/open/erode morphology pass.
type LogStd struct {
	// WindowSize is the side length of the local SSD window. It must
	// be odd; the reference implementation uses 3.
	WindowSize int
}

func (a LogStd) Name() string { return "logstd" }

func (a LogStd) BinarizeFrame(img []float64, h, w int) ([]bool, error) {
	size := a.WindowSize
	if size <= 0 {
		size = 3
	}
	if size%2 == 0 {
		return nil, fmt.Errorf("binarize: logstd: %w: window size %d must be odd", pyamaerr.ErrInvalidArgument, size)
	}
	candidate := logStdMask(img, h, w, size)
	return postProcessMask(candidate, h, w), nil
}
