// Package catalog implements the ResultCatalog: an in-memory manifest
// mapping FOV index to the artifact paths produced for it, with
// idempotent, order-independent merge semantics and YAML persistence.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pyama-io/pyama/pyamaerr"
)

// PathRef is a (channel_index, path) pair, the unit the catalog tracks
// for per-channel artifacts. It serializes as a 2-element YAML
// sequence ([channel, path]), not a mapping, to match the on-disk
// catalog's external wire format.
type PathRef struct {
	Channel int
	Path    string
}

// MarshalYAML encodes p as a [channel, path] sequence.
func (p PathRef) MarshalYAML() (interface{}, error) {
	return []interface{}{p.Channel, p.Path}, nil
}

// UnmarshalYAML decodes a [channel, path] sequence into p.
func (p *PathRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode || len(value.Content) != 2 {
		return fmt.Errorf("catalog: %w: path_ref must be a 2-element sequence, got %v", pyamaerr.ErrIOFailure, value.Tag)
	}
	if err := value.Content[0].Decode(&p.Channel); err != nil {
		return fmt.Errorf("catalog: decode path_ref channel: %w: %v", pyamaerr.ErrIOFailure, err)
	}
	if err := value.Content[1].Decode(&p.Path); err != nil {
		return fmt.Errorf("catalog: decode path_ref path: %w: %v", pyamaerr.ErrIOFailure, err)
	}
	return nil
}

// FOVEntry is the per-artifact paths recorded
// for one FOV. Scalar fields (PC, Seg, SegLabeled, Traces) are
// first-writer-wins; list fields (FL, FLBackground) are idempotent
// set-unions keyed by (channel, canonical path).
type FOVEntry struct {
	PC           *PathRef  `yaml:"pc"`
	FL           []PathRef `yaml:"fl"`
	Seg          *PathRef  `yaml:"seg"`
	SegLabeled   *PathRef  `yaml:"seg_labeled"`
	FLBackground []PathRef `yaml:"fl_background"`
	Traces       *string   `yaml:"traces"`
}

func newFOVEntry() *FOVEntry { return &FOVEntry{} }

// Channels is the catalog-level channel selection record.
type Channels struct {
	PC *int  `yaml:"pc"`
	FL []int `yaml:"fl"`
}

// Catalog is the ResultCatalog: FOV-index -> FOVEntry, plus the
// run-level metadata it carries.
type Catalog struct {
	OutputDir  string                `yaml:"output_dir"`
	Channels   Channels              `yaml:"channels"`
	Params     map[string]any        `yaml:"params"`
	TimeUnits  string                `yaml:"time_units"`
	Results    map[string]*FOVEntry  `yaml:"results"`
}

// New returns an empty catalog for the given output directory.
func New(outputDir string) *Catalog {
	return &Catalog{
		OutputDir: outputDir,
		Params:    map[string]any{},
		Results:   map[string]*FOVEntry{},
	}
}

func key(fov int) string { return fmt.Sprintf("%d", fov) }

// EnsureFOV returns the entry for fov, creating it if necessary.
func (c *Catalog) EnsureFOV(fov int) *FOVEntry {
	k := key(fov)
	e, ok := c.Results[k]
	if !ok {
		e = newFOVEntry()
		c.Results[k] = e
	}
	return e
}

// SetPC records the pc path for fov, first-writer-wins.
func (c *Catalog) SetPC(fov, channel int, path string) {
	e := c.EnsureFOV(fov)
	if e.PC == nil {
		e.PC = &PathRef{Channel: channel, Path: path}
	}
}

// AddFL idempotently inserts (channel, path) into fov's fl set.
func (c *Catalog) AddFL(fov, channel int, path string) {
	e := c.EnsureFOV(fov)
	e.FL = addUnique(e.FL, PathRef{Channel: channel, Path: path})
}

// SetSeg records the mask path for fov, first-writer-wins.
func (c *Catalog) SetSeg(fov, channel int, path string) {
	e := c.EnsureFOV(fov)
	if e.Seg == nil {
		e.Seg = &PathRef{Channel: channel, Path: path}
	}
}

// SetSegLabeled records the labels path for fov, first-writer-wins.
func (c *Catalog) SetSegLabeled(fov, channel int, path string) {
	e := c.EnsureFOV(fov)
	if e.SegLabeled == nil {
		e.SegLabeled = &PathRef{Channel: channel, Path: path}
	}
}

// AddFLBackground idempotently inserts (channel, path) into fov's
// corrected-fluorescence set.
func (c *Catalog) AddFLBackground(fov, channel int, path string) {
	e := c.EnsureFOV(fov)
	e.FLBackground = addUnique(e.FLBackground, PathRef{Channel: channel, Path: path})
}

// SetTraces records the traces CSV path for fov, first-writer-wins.
func (c *Catalog) SetTraces(fov int, path string) {
	e := c.EnsureFOV(fov)
	if e.Traces == nil {
		e.Traces = &path
	}
}

func addUnique(list []PathRef, ref PathRef) []PathRef {
	for _, r := range list {
		if r.Channel == ref.Channel && r.Path == ref.Path {
			return list
		}
	}
	return append(list, ref)
}

// Merge folds other into c in place, following these merge rules:
// idempotent set-union on list fields keyed by (channel, path), and
// first-writer-wins on scalar fields. Merge is commutative and
// associative as long as no two sources ever write the same (fov,
// channel, artifact) slot — the invariant the orchestrator's
// FOV-disjoint partitioning guarantees.
func (c *Catalog) Merge(other *Catalog) {
	if c.OutputDir == "" {
		c.OutputDir = other.OutputDir
	}
	if c.Channels.PC == nil && other.Channels.PC != nil {
		v := *other.Channels.PC
		c.Channels.PC = &v
	}
	for _, ch := range other.Channels.FL {
		c.Channels.FL = addUniqueInt(c.Channels.FL, ch)
	}
	if c.TimeUnits == "" {
		c.TimeUnits = other.TimeUnits
	}
	for k, v := range other.Params {
		if _, ok := c.Params[k]; !ok {
			c.Params[k] = v
		}
	}

	for fovKey, oe := range other.Results {
		ce, ok := c.Results[fovKey]
		if !ok {
			ce = newFOVEntry()
			c.Results[fovKey] = ce
		}
		if ce.PC == nil && oe.PC != nil {
			v := *oe.PC
			ce.PC = &v
		}
		if ce.Seg == nil && oe.Seg != nil {
			v := *oe.Seg
			ce.Seg = &v
		}
		if ce.SegLabeled == nil && oe.SegLabeled != nil {
			v := *oe.SegLabeled
			ce.SegLabeled = &v
		}
		if ce.Traces == nil && oe.Traces != nil {
			v := *oe.Traces
			ce.Traces = &v
		}
		for _, ref := range oe.FL {
			ce.FL = addUnique(ce.FL, ref)
		}
		for _, ref := range oe.FLBackground {
			ce.FLBackground = addUnique(ce.FLBackground, ref)
		}
	}
}

func addUniqueInt(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// FOVs returns the sorted FOV indices present in the catalog.
func (c *Catalog) FOVs() []int {
	out := make([]int, 0, len(c.Results))
	for k := range c.Results {
		var fov int
		fmt.Sscanf(k, "%d", &fov)
		out = append(out, fov)
	}
	sort.Ints(out)
	return out
}

// Entry returns the FOVEntry for fov, or nil if absent.
func (c *Catalog) Entry(fov int) *FOVEntry {
	return c.Results[key(fov)]
}

// Clone returns a deep copy of c, used by the orchestrator to hand
// each worker its own mutable catalog: each worker mutates its own
// copy and returns it for the caller to merge back.
func (c *Catalog) Clone() *Catalog {
	out := New(c.OutputDir)
	out.TimeUnits = c.TimeUnits
	if c.Channels.PC != nil {
		v := *c.Channels.PC
		out.Channels.PC = &v
	}
	out.Channels.FL = append([]int(nil), c.Channels.FL...)
	for k, v := range c.Params {
		out.Params[k] = v
	}
	for k, e := range c.Results {
		ne := newFOVEntry()
		if e.PC != nil {
			v := *e.PC
			ne.PC = &v
		}
		if e.Seg != nil {
			v := *e.Seg
			ne.Seg = &v
		}
		if e.SegLabeled != nil {
			v := *e.SegLabeled
			ne.SegLabeled = &v
		}
		if e.Traces != nil {
			v := *e.Traces
			ne.Traces = &v
		}
		ne.FL = append([]PathRef(nil), e.FL...)
		ne.FLBackground = append([]PathRef(nil), e.FLBackground...)
		out.Results[k] = ne
	}
	return out
}

// Save writes c as YAML to path (typically
// "<output_dir>/processing_results.yaml").
func (c *Catalog) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("catalog: marshal: %w: %v", pyamaerr.ErrIOFailure, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	return nil
}

// Load reads a catalog previously written by Save.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w: %v", path, pyamaerr.ErrNotFound, err)
	}
	c := New("")
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal %s: %w: %v", path, pyamaerr.ErrIOFailure, err)
	}
	if c.Results == nil {
		c.Results = map[string]*FOVEntry{}
	}
	if c.Params == nil {
		c.Params = map[string]any{}
	}
	return c, nil
}
