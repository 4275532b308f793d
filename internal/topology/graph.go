package topology

import (
	"slices"

	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/irq"
	"github.com/tphakala/dspcore/internal/logger"
)

// Deps is what a graph is built from.
type Deps struct {
	Registry     *component.Registry
	BufferEnv    *buffer.Env
	ComponentEnv *component.Env
	Guard        *irq.Guard
	Log          logger.Logger
}

// Graph is a built topology. Buffers and components are owned by the
// graph and released by Teardown.
type Graph struct {
	name  string
	table *component.Table
	guard *irq.Guard

	buffers   map[uint32]*buffer.Buffer
	bufOrder  []uint32
	pipelines map[uint32]*Pipeline

	log logger.Logger
}

// Pipeline is the components sharing a pipeline ID, in topology order,
// and the buffers they produce into.
type Pipeline struct {
	ID         uint32
	Components []*component.Device
	Buffers    []*buffer.Buffer
}

// Build validates doc and creates everything it describes. On error,
// whatever was already created is released.
func Build(doc *Document, deps Deps) (g *Graph, err error) {
	log := deps.Log
	if log == nil {
		log = logger.Global().Module(ComponentTopology)
	}
	if err := doc.Validate(deps.Guard.Cores(), deps.Registry); err != nil {
		return nil, err
	}

	g = &Graph{
		name:      doc.Name,
		table:     component.NewTable(),
		guard:     deps.Guard,
		buffers:   make(map[uint32]*buffer.Buffer, len(doc.Buffers)),
		pipelines: make(map[uint32]*Pipeline),
		log:       log.With(logger.String("topology", doc.Name)),
	}
	defer func() {
		if err != nil {
			g.Teardown()
			g = nil
		}
	}()

	if err := g.createComponents(doc, deps); err != nil {
		return g, err
	}
	if err := g.createBuffers(doc, deps); err != nil {
		return g, err
	}
	if err := g.connect(doc); err != nil {
		return g, err
	}

	g.log.Info("topology built",
		logger.Int("components", g.table.Len()),
		logger.Int("buffers", len(g.buffers)),
		logger.Int("pipelines", len(g.pipelines)))
	return g, nil
}

func (g *Graph) createComponents(doc *Document, deps Deps) error {
	for i := range doc.Components {
		spec := &doc.Components[i]
		id, err := spec.DriverID(deps.Registry)
		if err != nil {
			return err
		}
		domain, err := component.ParseDomain(spec.Domain)
		if err != nil {
			return err
		}

		dev, err := deps.Registry.Create(id, component.Config{
			ID:         spec.ID,
			Core:       spec.Core,
			PipelineID: spec.Pipeline,
			Domain:     domain,
			Options:    spec.Options,
		}, deps.ComponentEnv)
		if err != nil {
			return err
		}
		if _, err := g.table.Add(dev); err != nil {
			dev.Free()
			return err
		}

		p := g.pipelines[spec.Pipeline]
		if p == nil {
			p = &Pipeline{ID: spec.Pipeline}
			g.pipelines[spec.Pipeline] = p
		}
		p.Components = append(p.Components, dev)
	}
	return nil
}

// crossCore reports buffers whose two ends run on different cores.
func crossCore(doc *Document) map[uint32]bool {
	core := make(map[uint32]int, len(doc.Components))
	for _, c := range doc.Components {
		core[c.ID] = c.Core
	}
	out := make(map[uint32]bool)
	for _, c := range doc.Connections {
		if c.From != 0 && c.To != 0 && core[c.From] != core[c.To] {
			out[c.Buffer] = true
		}
	}
	return out
}

func (g *Graph) createBuffers(doc *Document, deps Deps) error {
	cross := crossCore(doc)
	for i := range doc.Buffers {
		spec := &doc.Buffers[i]
		caps, err := parseCaps(spec.Caps)
		if err != nil {
			return errors.New(err).
				Component(ComponentTopology).
				Category(errors.CategoryValidation).
				Context("buffer_id", spec.ID).
				Build()
		}

		var flags uint32
		if spec.UnderrunPermitted {
			flags |= buffer.UnderrunPermitted
		}
		if spec.OverrunPermitted {
			flags |= buffer.OverrunPermitted
		}
		shared := spec.Shared || cross[spec.ID]

		var b *buffer.Buffer
		if spec.MinSize > 0 {
			b, err = buffer.AllocRange(deps.BufferEnv, spec.Size, spec.MinSize, caps, flags, spec.Align, shared)
		} else {
			b, err = buffer.Alloc(deps.BufferEnv, spec.Size, caps, flags, spec.Align, shared)
		}
		if err != nil {
			return err
		}
		b.SetID(spec.ID)
		g.buffers[spec.ID] = b
		g.bufOrder = append(g.bufOrder, spec.ID)

		if spec.Params != nil {
			p, err := spec.Params.Params()
			if err != nil {
				return err
			}
			if err := b.SetParams(p, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) connect(doc *Document) error {
	cross := crossCore(doc)
	for _, c := range doc.Connections {
		b := g.buffers[c.Buffer]

		if cross[c.Buffer] {
			for _, id := range []uint32{c.From, c.To} {
				if dev, ok := g.table.ByID(id); ok {
					dev.MakeShared()
				}
			}
		}

		if c.From != 0 {
			dev, _ := g.table.ByID(c.From)
			if err := g.bind(dev, b, buffer.CompToBuffer); err != nil {
				return err
			}
			p := g.pipelines[dev.PipelineID()]
			p.Buffers = append(p.Buffers, b)
		}
		if c.To != 0 {
			dev, _ := g.table.ByID(c.To)
			if err := g.bind(dev, b, buffer.BufferToComp); err != nil {
				return err
			}
			if c.From == 0 {
				p := g.pipelines[dev.PipelineID()]
				p.Buffers = append(p.Buffers, b)
			}
		}
	}
	return nil
}

func (g *Graph) bind(dev *component.Device, b *buffer.Buffer, dir buffer.Direction) error {
	held := g.guard.Disable(dev.Core())
	defer held.Enable()
	return dev.BindBuffer(held, b, dir)
}

// Name is the topology name.
func (g *Graph) Name() string { return g.name }

// Components returns every component in topology order.
func (g *Graph) Components() []*component.Device { return g.table.Devices() }

// Component finds a component by ID.
func (g *Graph) Component(id uint32) (*component.Device, bool) { return g.table.ByID(id) }

// Buffer finds a buffer by ID.
func (g *Graph) Buffer(id uint32) (*buffer.Buffer, bool) {
	b, ok := g.buffers[id]
	return b, ok
}

// Buffers returns every buffer in topology order.
func (g *Graph) Buffers() []*buffer.Buffer {
	out := make([]*buffer.Buffer, 0, len(g.bufOrder))
	for _, id := range g.bufOrder {
		out = append(out, g.buffers[id])
	}
	return out
}

// Pipelines returns the pipelines ordered by ID.
func (g *Graph) Pipelines() []*Pipeline {
	ids := make([]uint32, 0, len(g.pipelines))
	for id := range g.pipelines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*Pipeline, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.pipelines[id])
	}
	return out
}

// Pipeline finds a pipeline by ID.
func (g *Graph) Pipeline(id uint32) (*Pipeline, error) {
	p, ok := g.pipelines[id]
	if !ok {
		return nil, errors.Newf("pipeline %d not found", id).
			Component(ComponentTopology).
			Category(errors.CategoryNotFound).
			Build()
	}
	return p, nil
}

// Teardown frees every component, then every buffer. Components hold no
// references that outlive them, so no counting is needed.
func (g *Graph) Teardown() {
	if g == nil {
		return
	}
	g.table.Clear()
	for _, id := range g.bufOrder {
		g.buffers[id].Free()
	}
	clear(g.buffers)
	g.bufOrder = nil
	g.pipelines = make(map[uint32]*Pipeline)
	g.log.Info("topology torn down")
}
