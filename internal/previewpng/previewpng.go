// Package previewpng renders a single frame of a Mask or Labels stack
// as a PNG, for operators eyeballing a segmentation or tracking result
// without pulling the .pfs artifact into other tooling. It is a debug
// aid, not part of the pipeline's artifact contract: nothing downstream
// reads these images back in.
package previewpng

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/pyama-io/pyama/frame"
)

// palette assigns a stable, visually distinct color to small label
// ids; ids beyond the palette wrap around rather than error, since a
// preview is a best-effort aid, not a faithful rendering of every
// persistent cell id.
var palette = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
}

// WriteMask renders frame t of a binary Mask as a black/white PNG.
func WriteMask(w io.Writer, mask *frame.Mask, t int) error {
	_, h, width := mask.Shape()
	if t < 0 || t >= mask.NFrames {
		return fmt.Errorf("previewpng: frame %d out of range", t)
	}
	img := image.NewGray(image.Rect(0, 0, width, h))
	row := mask.Frame(t)
	for y := 0; y < h; y++ {
		for x := 0; x < width; x++ {
			if row[y*width+x] {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return png.Encode(w, img)
}

// WriteLabels renders frame t of a Labels stack, coloring each label
// id from a fixed palette and leaving background (label 0) black.
func WriteLabels(w io.Writer, labels *frame.Labels, t int) error {
	_, h, width := labels.Shape()
	if t < 0 || t >= labels.NFrames {
		return fmt.Errorf("previewpng: frame %d out of range", t)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, h))
	row := labels.Frame(t)
	for y := 0; y < h; y++ {
		for x := 0; x < width; x++ {
			id := row[y*width+x]
			if id == 0 {
				continue
			}
			img.SetRGBA(x, y, palette[int(id)%len(palette)])
		}
	}
	return png.Encode(w, img)
}

// WriteLabelsScaled is WriteLabels followed by a nearest-neighbor
// resize to (outW, outH), for previews of small FOVs that would
// otherwise render as a few dozen pixels.
func WriteLabelsScaled(w io.Writer, labels *frame.Labels, t, outW, outH int) error {
	_, h, width := labels.Shape()
	if t < 0 || t >= labels.NFrames {
		return fmt.Errorf("previewpng: frame %d out of range", t)
	}
	src := image.NewRGBA(image.Rect(0, 0, width, h))
	row := labels.Frame(t)
	for y := 0; y < h; y++ {
		for x := 0; x < width; x++ {
			id := row[y*width+x]
			if id == 0 {
				continue
			}
			src.SetRGBA(x, y, palette[int(id)%len(palette)])
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return png.Encode(w, dst)
}
