// Package frame defines the pipeline's core array value types: a
// single 2-D Frame is just a flat slice view into a Stack, and a Stack
// is an immutable-shape, fixed-dtype, frame-indexed 3-D array (T,Y,X)
// in C order (row-major, frame-major). Every pipeline stage reads and
// writes Stacks of one Pixel type or another; FrameStore persists them.
package frame

import "fmt"

// Pixel is the closed set of dtypes a Stack may hold, matching the
// "numeric type (unsigned 8/16, float32, or boolean)".
type Pixel interface {
	~uint8 | ~uint16 | ~float32 | ~bool
}

// Stack is an ordered sequence of NFrames frames of identical shape,
// stored as one contiguous, frame-major slice.
type Stack[T Pixel] struct {
	NFrames int
	Height  int
	Width   int
	Data    []T
}

// New allocates a zero-valued Stack of the given shape.
func New[T Pixel](nFrames, height, width int) *Stack[T] {
	return &Stack[T]{
		NFrames: nFrames,
		Height:  height,
		Width:   width,
		Data:    make([]T, nFrames*height*width),
	}
}

// FromData wraps an existing flat frame-major buffer, e.g. one
// obtained from a memory-mapped file. It panics if the buffer length
// does not match the declared shape, since that would indicate a
// caller bug rather than recoverable bad input.
func FromData[T Pixel](nFrames, height, width int, data []T) *Stack[T] {
	want := nFrames * height * width
	if len(data) != want {
		panic(fmt.Sprintf("frame: data has %d elements, want %d for shape (%d,%d,%d)", len(data), want, nFrames, height, width))
	}
	return &Stack[T]{NFrames: nFrames, Height: height, Width: width, Data: data}
}

// Shape returns (T, H, W).
func (s *Stack[T]) Shape() (int, int, int) { return s.NFrames, s.Height, s.Width }

// SameShape reports whether s and other have identical (T,H,W).
func (s *Stack[T]) SameShape(nFrames, height, width int) bool {
	return s.NFrames == nFrames && s.Height == height && s.Width == width
}

// Frame returns the flat H*W slice for frame index t. The returned
// slice aliases the Stack's backing array; mutating it mutates s.
func (s *Stack[T]) Frame(t int) []T {
	n := s.Height * s.Width
	return s.Data[t*n : (t+1)*n]
}

// At returns the pixel at (t,y,x).
func (s *Stack[T]) At(t, y, x int) T {
	return s.Data[(t*s.Height+y)*s.Width+x]
}

// Set assigns the pixel at (t,y,x).
func (s *Stack[T]) Set(t, y, x int, v T) {
	s.Data[(t*s.Height+y)*s.Width+x] = v
}

// Mask is a boolean Stack: a segmentation mask, True where foreground.
type Mask = Stack[bool]

// Labels is a uint16 Stack: 0 is background, positive values identify
// connected components (and, once tracked, cells).
type Labels = Stack[uint16]

// Raw is a uint16 Stack: raw phase-contrast or fluorescence data as
// acquired by the microscope.
type Raw = Stack[uint16]

// CorrectedFluor is a float32 Stack: background-subtracted,
// gain-normalized fluorescence. Values may be negative.
type CorrectedFluor = Stack[float32]

// DType tags a Stack's element type for contexts (FrameStore headers,
// the result catalog) that need to name a dtype without being generic
// over it.
type DType uint8

const (
	DTypeUint8 DType = iota
	DTypeUint16
	DTypeFloat32
	DTypeBool
)

// String renders the dtype the way the catalog / CLI refer to it.
func (d DType) String() string {
	switch d {
	case DTypeUint8:
		return "uint8"
	case DTypeUint16:
		return "uint16"
	case DTypeFloat32:
		return "float32"
	case DTypeBool:
		return "bool"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Size returns the on-disk width in bytes of one pixel of this dtype.
func (d DType) Size() int {
	switch d {
	case DTypeUint8, DTypeBool:
		return 1
	case DTypeUint16:
		return 2
	case DTypeFloat32:
		return 4
	default:
		return 0
	}
}

// ToFloat64 copies frame t of s into a freshly allocated float64
// buffer, the first step of most numeric kernels.
func ToFloat64[T Pixel](s *Stack[T], t int) []float64 {
	src := s.Frame(t)
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = toFloat64(v)
	}
	return out
}

func toFloat64[T Pixel](v T) float64 {
	switch x := any(v).(type) {
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}
