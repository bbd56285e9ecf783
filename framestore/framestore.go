// Package framestore persists Stacks as memory-mapped ".pfs" files: a
// small fixed-size header (magic, dtype, shape) followed by the raw
// pixel data in C order (row-major, frame-major). It is a dense,
// memory-mappable, fixed-shape storage format.
//
// A Store gives O(Height*Width) random-access reads of a single frame
// without loading the rest of the file: the backing file is
// memory-mapped, so unreferenced frames are never faulted into
// physical memory, and pixel conversion touches only the requested
// frame's bytes.
package framestore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/pyama-io/pyama/frame"
	"github.com/pyama-io/pyama/pyamaerr"
)

func float32FromBits(b uint32) float32 { return math.Float32frombits(b) }
func float32Bits(f float32) uint32     { return math.Float32bits(f) }

const (
	magic      = "PFS1"
	headerSize = 32 // magic(4) + dtype(1) + version(1) + reserved(2) + nFrames(8) + height(8) + width(8)
	version    = 1
)

// Store is an open handle to a .pfs file backing a Stack[T].
type Store[T frame.Pixel] struct {
	f       *os.File
	mm      mmap.MMap
	nFrames int
	height  int
	width   int
	dtype   frame.DType
	ro      bool
}

func dtypeFor[T frame.Pixel]() frame.DType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return frame.DTypeUint8
	case uint16:
		return frame.DTypeUint16
	case float32:
		return frame.DTypeFloat32
	case bool:
		return frame.DTypeBool
	default:
		panic("framestore: unsupported pixel type")
	}
}

// Create allocates a new .pfs file of the given shape and opens it for
// read-write access. The file is pre-sized to its final length so that
// every subsequent frame write is an in-place update.
func Create[T frame.Pixel](path string, nFrames, height, width int) (*Store[T], error) {
	dtype := dtypeFor[T]()
	size := int64(headerSize) + int64(nFrames)*int64(height)*int64(width)*int64(dtype.Size())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("framestore: create %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("framestore: truncate %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	hdr[4] = byte(dtype)
	hdr[5] = version
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(nFrames))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(height))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(width))
	if _, err := f.WriteAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("framestore: write header %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("framestore: mmap %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	return &Store[T]{f: f, mm: m, nFrames: nFrames, height: height, width: width, dtype: dtype}, nil
}

func open[T frame.Pixel](path string, ro bool) (*Store[T], error) {
	flag := os.O_RDWR
	mmapFlag := mmap.RDWR
	if ro {
		flag = os.O_RDONLY
		mmapFlag = mmap.RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("framestore: open %s: %w: %v", path, pyamaerr.ErrNotFound, err)
	}

	var hdr [headerSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("framestore: read header %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	if string(hdr[:4]) != magic {
		f.Close()
		return nil, fmt.Errorf("framestore: %s: %w: bad magic", path, pyamaerr.ErrInvalidArgument)
	}
	dtype := frame.DType(hdr[4])
	want := dtypeFor[T]()
	if dtype != want {
		f.Close()
		return nil, fmt.Errorf("framestore: %s: %w: stored dtype %s, want %s", path, pyamaerr.ErrShapeMismatch, dtype, want)
	}
	nFrames := int(binary.LittleEndian.Uint64(hdr[8:16]))
	height := int(binary.LittleEndian.Uint64(hdr[16:24]))
	width := int(binary.LittleEndian.Uint64(hdr[24:32]))

	m, err := mmap.Map(f, mmapFlag, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("framestore: mmap %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	return &Store[T]{f: f, mm: m, nFrames: nFrames, height: height, width: width, dtype: dtype, ro: ro}, nil
}

// OpenRW opens an existing .pfs file for read-write frame access.
func OpenRW[T frame.Pixel](path string) (*Store[T], error) { return open[T](path, false) }

// OpenRO opens an existing .pfs file for read-only frame access.
func OpenRO[T frame.Pixel](path string) (*Store[T], error) { return open[T](path, true) }

// Shape returns (T,H,W) as recorded in the file header.
func (s *Store[T]) Shape() (int, int, int) { return s.nFrames, s.height, s.width }

func (s *Store[T]) frameByteRange(t int) (int, int) {
	n := s.height * s.width * s.dtype.Size()
	start := headerSize + t*n
	return start, start + n
}

// ReadFrame decodes and returns frame t as a freshly allocated []T.
// Only that frame's bytes are touched; the rest of the mapping is
// never faulted in.
func (s *Store[T]) ReadFrame(t int) ([]T, error) {
	if t < 0 || t >= s.nFrames {
		return nil, fmt.Errorf("framestore: frame %d: %w", t, pyamaerr.ErrInvalidArgument)
	}
	start, end := s.frameByteRange(t)
	raw := s.mm[start:end]
	out := make([]T, s.height*s.width)
	decode(raw, out)
	return out, nil
}

// WriteFrame encodes px into frame t of the file. It returns
// ErrInvalidArgument if the store was opened read-only or px has the
// wrong length.
func (s *Store[T]) WriteFrame(t int, px []T) error {
	if s.ro {
		return fmt.Errorf("framestore: write frame %d: %w: store is read-only", t, pyamaerr.ErrInvalidArgument)
	}
	if t < 0 || t >= s.nFrames {
		return fmt.Errorf("framestore: frame %d: %w", t, pyamaerr.ErrInvalidArgument)
	}
	if len(px) != s.height*s.width {
		return fmt.Errorf("framestore: frame %d: %w: got %d pixels, want %d", t, pyamaerr.ErrInvalidShape, len(px), s.height*s.width)
	}
	start, end := s.frameByteRange(t)
	encode(px, s.mm[start:end])
	return nil
}

// WriteStack writes every frame of st into the store, in order.
func WriteStack[T frame.Pixel](s *Store[T], st *frame.Stack[T]) error {
	for t := 0; t < st.NFrames; t++ {
		if err := s.WriteFrame(t, st.Frame(t)); err != nil {
			return err
		}
	}
	return nil
}

// ReadStack loads the whole store into one in-memory Stack. Callers
// processing large stacks should prefer ReadFrame in a loop instead.
func ReadStack[T frame.Pixel](s *Store[T]) (*frame.Stack[T], error) {
	out := frame.New[T](s.nFrames, s.height, s.width)
	for t := 0; t < s.nFrames; t++ {
		px, err := s.ReadFrame(t)
		if err != nil {
			return nil, err
		}
		copy(out.Frame(t), px)
	}
	return out, nil
}

// Flush ensures all writes are durable on disk.
func (s *Store[T]) Flush() error {
	if s.ro {
		return nil
	}
	if err := s.mm.Flush(); err != nil {
		return fmt.Errorf("framestore: flush: %w: %v", pyamaerr.ErrIOFailure, err)
	}
	return nil
}

// Close flushes (if writable) and releases the mapping and file
// handle. Writes are durable once Close returns without error.
func (s *Store[T]) Close() error {
	if err := s.Flush(); err != nil {
		s.mm.Unmap()
		s.f.Close()
		return err
	}
	if err := s.mm.Unmap(); err != nil {
		s.f.Close()
		return fmt.Errorf("framestore: unmap: %w: %v", pyamaerr.ErrIOFailure, err)
	}
	return s.f.Close()
}

// Exists reports whether a .pfs file is present at path, the check
// stages use for idempotent re-runs.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func decode[T frame.Pixel](raw []byte, out []T) {
	switch o := any(out).(type) {
	case []uint8:
		copy(o, raw)
	case []bool:
		for i, b := range raw {
			o[i] = b != 0
		}
	case []uint16:
		for i := range o {
			o[i] = binary.LittleEndian.Uint16(raw[i*2:])
		}
	case []float32:
		for i := range o {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			o[i] = float32FromBits(bits)
		}
	}
}

func encode[T frame.Pixel](in []T, raw []byte) {
	switch v := any(in).(type) {
	case []uint8:
		copy(raw, v)
	case []bool:
		for i, b := range v {
			if b {
				raw[i] = 1
			} else {
				raw[i] = 0
			}
		}
	case []uint16:
		for i, x := range v {
			binary.LittleEndian.PutUint16(raw[i*2:], x)
		}
	case []float32:
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[i*4:], float32Bits(x))
		}
	}
}
