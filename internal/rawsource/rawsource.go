// Package rawsource is a concrete reader.Source implementation over a
// directory of pre-extracted ".pfs" stacks, one file per (fov,
// channel), plus a YAML sidecar describing the acquisition metadata.
// It exists so cmd/pyama-run has something real to point at: the
// microscopy-file reader itself (ND2 parsing and friends) is out of
// scope, but the orchestrator still needs a working reader.Source to
// run end to end against data that has already been exported to raw
// frames.
package rawsource

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pyama-io/pyama/framestore"
	"github.com/pyama-io/pyama/pyamaerr"
	"github.com/pyama-io/pyama/reader"
)

// manifest is the YAML sidecar, "metadata.yaml" in the source
// directory.
type manifest struct {
	NFOVs        int       `yaml:"n_fovs"`
	NChannels    int       `yaml:"n_channels"`
	NFrames      int       `yaml:"n_frames"`
	Height       int       `yaml:"height"`
	Width        int       `yaml:"width"`
	ChannelNames []string  `yaml:"channel_names"`
	Timepoints   []float64 `yaml:"timepoints"`
	BaseName     string    `yaml:"base_name"`
}

// Source reads raw uint16 frames from "<dir>/fov_<fff>_ch_<c>.pfs"
// files, addressed by the manifest's declared shape.
type Source struct {
	dir string
	md  reader.Metadata
}

// Open reads "<dir>/metadata.yaml" and returns a Source ready to serve
// ReadFrame calls against the .pfs files alongside it.
func Open(dir string) (*Source, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "metadata.yaml"))
	if err != nil {
		return nil, fmt.Errorf("rawsource: read metadata: %w: %v", pyamaerr.ErrIOFailure, err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("rawsource: parse metadata: %w: %v", pyamaerr.ErrInvalidArgument, err)
	}
	if m.NFOVs <= 0 || m.NChannels <= 0 || m.NFrames <= 0 || m.Height <= 0 || m.Width <= 0 {
		return nil, fmt.Errorf("rawsource: metadata: %w: shape fields must be positive", pyamaerr.ErrInvalidShape)
	}
	if len(m.Timepoints) != m.NFrames {
		return nil, fmt.Errorf("rawsource: metadata: %w: %d timepoints, want %d", pyamaerr.ErrShapeMismatch, len(m.Timepoints), m.NFrames)
	}

	return &Source{
		dir: dir,
		md: reader.Metadata{
			NFOVs:        m.NFOVs,
			NChannels:    m.NChannels,
			NFrames:      m.NFrames,
			Height:       m.Height,
			Width:        m.Width,
			ChannelNames: m.ChannelNames,
			Timepoints:   m.Timepoints,
			BaseName:     m.BaseName,
		},
	}, nil
}

func (s *Source) Metadata() reader.Metadata { return s.md }

func (s *Source) stackPath(fov, channel int) string {
	return filepath.Join(s.dir, fmt.Sprintf("fov_%03d_ch_%d.pfs", fov, channel))
}

// ReadFrame opens the (fov, channel) stack read-only, decodes frame t,
// and closes it. Callers making many ReadFrame calls against the same
// (fov, channel) pay repeated mmap/munmap overhead; the orchestrator's
// Copy stage visits each (fov, channel) exactly once per frame in a
// single pass, so this is not a hot path.
func (s *Source) ReadFrame(fov, channel, t int) ([]uint16, error) {
	st, err := framestore.OpenRO[uint16](s.stackPath(fov, channel))
	if err != nil {
		return nil, fmt.Errorf("rawsource: fov %d channel %d: %w", fov, channel, err)
	}
	defer st.Close()
	return st.ReadFrame(t)
}
