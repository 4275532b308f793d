// Package topology loads a processing graph description from YAML and
// builds it: buffers from the heap, components from the driver registry,
// and the connections between them.
package topology

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/memory"
)

// ComponentTopology is the error component name for this package.
const ComponentTopology = "topology"

// Document is a parsed topology file.
type Document struct {
	Name        string          `yaml:"name"`
	Buffers     []BufferSpec    `yaml:"buffers"`
	Components  []ComponentSpec `yaml:"components"`
	Connections []Connection    `yaml:"connections"`
}

// BufferSpec describes one buffer. When MinSize is set the buffer is
// allocated with the largest size between MinSize and Size the heap can
// serve.
type BufferSpec struct {
	ID                uint32      `yaml:"id"`
	Size              uint32      `yaml:"size"`
	MinSize           uint32      `yaml:"min_size"`
	Caps              []string    `yaml:"caps"`
	Align             uint32      `yaml:"align"`
	Shared            bool        `yaml:"shared"`
	UnderrunPermitted bool        `yaml:"underrun_permitted"`
	OverrunPermitted  bool        `yaml:"overrun_permitted"`
	Params            *ParamsSpec `yaml:"params"`
}

// ParamsSpec is a stream format in topology form.
type ParamsSpec struct {
	Format      string  `yaml:"format"`
	ValidFormat string  `yaml:"valid_format"`
	Rate        uint32  `yaml:"rate"`
	Channels    uint32  `yaml:"channels"`
	ChannelMap  []uint8 `yaml:"channel_map"`
}

// ComponentSpec describes one component. Driver is either a registered
// driver name or its UUID.
type ComponentSpec struct {
	ID       uint32            `yaml:"id"`
	Driver   string            `yaml:"driver"`
	Core     int               `yaml:"core"`
	Pipeline uint32            `yaml:"pipeline"`
	Domain   string            `yaml:"domain"`
	Options  map[string]string `yaml:"options"`
}

// Connection wires component From to buffer Buffer to component To.
// Either component may be 0 for a buffer that is fed or drained from
// outside the graph.
type Connection struct {
	From   uint32 `yaml:"from"`
	Buffer uint32 `yaml:"buffer"`
	To     uint32 `yaml:"to"`
}

// Load reads and parses a topology file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentTopology).
			Category(errors.CategoryFileIO).
			Context("file_path", path).
			Build()
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = path
	}
	return doc, nil
}

// Parse decodes a topology. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.New(err).
			Component(ComponentTopology).
			Category(errors.CategoryFileParsing).
			Build()
	}
	return &doc, nil
}

// Params converts the spec to stream params.
func (p *ParamsSpec) Params() (*audiostream.Params, error) {
	ff, err := audiostream.ParseFrameFormat(p.Format)
	if err != nil {
		return nil, err
	}
	valid := ff
	if p.ValidFormat != "" {
		if valid, err = audiostream.ParseFrameFormat(p.ValidFormat); err != nil {
			return nil, err
		}
	}

	params := &audiostream.Params{
		FrameFmt:       ff,
		ValidSampleFmt: valid,
		Rate:           p.Rate,
		Channels:       p.Channels,
	}
	if len(p.ChannelMap) > audiostream.MaxChannels {
		return nil, errors.Newf("channel map has %d entries, at most %d allowed", len(p.ChannelMap), audiostream.MaxChannels).
			Component(ComponentTopology).
			Category(errors.CategoryInvalidParams).
			Build()
	}
	if len(p.ChannelMap) == 0 {
		for i := range min(p.Channels, audiostream.MaxChannels) {
			params.ChMap[i] = uint8(i)
		}
	} else {
		copy(params.ChMap[:], p.ChannelMap)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

var capNames = map[string]memory.Caps{
	"ram":   memory.CapRAM,
	"dma":   memory.CapDMA,
	"cache": memory.CapCache,
	"hp":    memory.CapHP,
}

// parseCaps ORs the named capabilities; no names means plain RAM.
func parseCaps(names []string) (memory.Caps, error) {
	if len(names) == 0 {
		return memory.CapRAM, nil
	}
	var caps memory.Caps
	for _, n := range names {
		c, ok := capNames[strings.ToLower(n)]
		if !ok {
			return 0, fmt.Errorf("unknown memory capability %q", n)
		}
		caps |= c
	}
	return caps, nil
}

// DriverID resolves the Driver field against reg.
func (c *ComponentSpec) DriverID(reg *component.Registry) (uuid.UUID, error) {
	if id, err := uuid.Parse(c.Driver); err == nil {
		if _, err := reg.Lookup(id); err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}
	info, err := reg.LookupName(c.Driver)
	if err != nil {
		return uuid.Nil, err
	}
	return info.UUID, nil
}

// ValidationError collects every problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("topology validation errors: %v", ve.Errors)
}

func (ve *ValidationError) add(format string, args ...any) {
	ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
}

// Validate checks the document for consistency against a runtime with
// cores cores and the drivers in reg. reg may be nil to skip driver
// resolution.
func (d *Document) Validate(cores int, reg *component.Registry) error {
	ve := ValidationError{}

	buffers := make(map[uint32]*BufferSpec, len(d.Buffers))
	for i := range d.Buffers {
		b := &d.Buffers[i]
		switch {
		case b.ID == 0:
			ve.add("buffer %d: id must be positive", i)
		case buffers[b.ID] != nil:
			ve.add("buffer %d: duplicate id", b.ID)
		default:
			buffers[b.ID] = b
		}
		if b.Size == 0 {
			ve.add("buffer %d: size must be positive", b.ID)
		}
		if b.MinSize > b.Size {
			ve.add("buffer %d: min_size %d exceeds size %d", b.ID, b.MinSize, b.Size)
		}
		if b.Align != 0 && b.Align&(b.Align-1) != 0 {
			ve.add("buffer %d: align %d is not a power of two", b.ID, b.Align)
		}
		if _, err := parseCaps(b.Caps); err != nil {
			ve.add("buffer %d: %v", b.ID, err)
		}
		if b.Params != nil {
			if _, err := b.Params.Params(); err != nil {
				ve.add("buffer %d: %v", b.ID, err)
			}
		}
	}

	comps := make(map[uint32]*ComponentSpec, len(d.Components))
	for i := range d.Components {
		c := &d.Components[i]
		switch {
		case c.ID == 0:
			ve.add("component %d: id must be positive", i)
		case comps[c.ID] != nil:
			ve.add("component %d: duplicate id", c.ID)
		default:
			comps[c.ID] = c
		}
		if c.Core < 0 || c.Core >= cores {
			ve.add("component %d: core %d out of range [0,%d)", c.ID, c.Core, cores)
		}
		if _, err := component.ParseDomain(c.Domain); err != nil {
			ve.add("component %d: %v", c.ID, err)
		}
		if c.Driver == "" {
			ve.add("component %d: driver is required", c.ID)
		} else if reg != nil {
			if _, err := c.DriverID(reg); err != nil {
				ve.add("component %d: driver %q: %v", c.ID, c.Driver, err)
			}
		}
	}

	fed := make(map[uint32]bool)
	drained := make(map[uint32]bool)
	for i, c := range d.Connections {
		if buffers[c.Buffer] == nil {
			ve.add("connection %d: unknown buffer %d", i, c.Buffer)
		}
		if c.From == 0 && c.To == 0 {
			ve.add("connection %d: needs from or to", i)
		}
		if c.From != 0 {
			if comps[c.From] == nil {
				ve.add("connection %d: unknown component %d", i, c.From)
			}
			if fed[c.Buffer] {
				ve.add("connection %d: buffer %d already has a producer", i, c.Buffer)
			}
			fed[c.Buffer] = true
		}
		if c.To != 0 {
			if comps[c.To] == nil {
				ve.add("connection %d: unknown component %d", i, c.To)
			}
			if drained[c.Buffer] {
				ve.add("connection %d: buffer %d already has a consumer", i, c.Buffer)
			}
			drained[c.Buffer] = true
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component(ComponentTopology).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
