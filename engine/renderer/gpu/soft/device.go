// Package soft is a CPU reference implementation of gpu.Device. Compute
// programs are Go kernels run once per workgroup; raster programs are only
// recorded. The device tracks writes that have not been made visible by a
// MemoryBarrier and reports any command that reads them as a Hazard.
package soft

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type Options struct {
	// Workers bounds the goroutines running the workgroups of one dispatch.
	// Zero uses GOMAXPROCS.
	Workers int
	// QueryLatency is the number of EndFrame calls after which a recorded
	// timestamp becomes available. Zero resolves immediately.
	QueryLatency int
}

// Hazard is a read of a resource whose last write was not followed by a
// matching memory barrier.
type Hazard struct {
	Frame    uint64
	Program  string
	Resource string
}

func (h Hazard) String() string {
	return fmt.Sprintf("frame %d: %s reads %s before a barrier", h.Frame, h.Program, h.Resource)
}

type Stats struct {
	Dispatches map[string]int
	Draws      map[string]int
	Instances  int
	Triangles  int
	Barriers   int
	Blits      int
}

func (s Stats) TotalDraws() int {
	n := 0
	for _, c := range s.Draws {
		n += c
	}
	return n
}

type Device struct {
	opts    Options
	shaders *ShaderCache
	nextID  uint32
	frame   uint64

	// resource id -> barrier classes that make its pending write visible
	pending    map[uint32]gpu.BarrierType
	hazards    []Hazard
	stats      Stats
	unresolved []*Query
}

func NewDevice(opts Options) *Device {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	d := &Device{
		opts:    opts,
		shaders: newShaderCache(),
		pending: make(map[uint32]gpu.BarrierType),
	}
	d.ResetStats()
	return d
}

func (d *Device) id() uint32 {
	d.nextID++
	return d.nextID
}

func unnamed(kind string) string {
	return fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
}

func (d *Device) NewTexture(desc gpu.TextureDesc) gpu.Texture {
	if desc.Label == "" {
		desc.Label = unnamed("texture")
	}
	return newTexture(d.id(), desc)
}

func (d *Device) NewBuffer(label string, size int) gpu.Buffer {
	if label == "" {
		label = unnamed("buffer")
	}
	return newBuffer(d.id(), label, size)
}

func (d *Device) NewFramebuffer(label string, width, height int, attachments ...gpu.AttachmentSpec) gpu.Framebuffer {
	if label == "" {
		label = unnamed("framebuffer")
	}
	fb := &Framebuffer{
		id:          d.id(),
		label:       label,
		width:       width,
		height:      height,
		attachments: make(map[gpu.Attachment]*Texture, len(attachments)),
	}
	for _, a := range attachments {
		kind := gpu.Texture2D
		if a.Layers > 1 {
			kind = gpu.Texture2DArray
		}
		fb.attachments[a.Attachment] = newTexture(d.id(), gpu.TextureDesc{
			Label:  attachmentLabel(label, a.Attachment),
			Kind:   kind,
			Format: a.Format,
			Width:  width,
			Height: height,
			Depth:  a.Layers,
		})
	}
	return fb
}

func (d *Device) NewQuery() gpu.Query {
	return &Query{dev: d}
}

func (d *Device) Destroy(r gpu.Resource) {
	if r == nil {
		return
	}
	delete(d.pending, r.ID())
	if fb, ok := r.(*Framebuffer); ok {
		for _, t := range fb.attachments {
			delete(d.pending, t.id)
		}
	}
}

func (d *Device) Shaders() gpu.ShaderCache {
	return d.shaders
}

// ShaderCache gives access to registration, which gpu.ShaderCache hides.
func (d *Device) ShaderCache() *ShaderCache {
	return d.shaders
}

func visibility(r gpu.Resource) gpu.BarrierType {
	switch r.(type) {
	case *Buffer:
		return gpu.BarrierStorageBuffer | gpu.BarrierUniform
	default:
		return gpu.BarrierImageAccess | gpu.BarrierTextureFetch
	}
}

func (d *Device) checkReads(program string, bindings []gpu.Binding) {
	for _, b := range bindings {
		if b.Resource == nil || !b.Reads() {
			continue
		}
		if _, ok := d.pending[b.Resource.ID()]; ok {
			h := Hazard{Frame: d.frame, Program: program, Resource: b.Resource.Label()}
			d.hazards = append(d.hazards, h)
			core.LogWarn("gpu hazard: %s", h)
		}
	}
}

func (d *Device) Dispatch(program gpu.Program, x, y, z int, bindings ...gpu.Binding) {
	p, ok := program.(*Program)
	if !ok || p.kind != gpu.ProgramCompute || p.kernel == nil {
		core.LogError("dispatch of non-compute program %v", program)
		return
	}
	d.checkReads(p.name, bindings)
	d.stats.Dispatches[p.name]++

	if x > 0 && y > 0 && z > 0 {
		var g errgroup.Group
		g.SetLimit(d.opts.Workers)
		groups := [3]int{x, y, z}
		for gz := 0; gz < z; gz++ {
			for gy := 0; gy < y; gy++ {
				for gx := 0; gx < x; gx++ {
					inv := &Invocation{GroupID: [3]int{gx, gy, gz}, NumGroups: groups, bindings: bindings}
					g.Go(func() error {
						p.kernel(inv)
						return nil
					})
				}
			}
		}
		_ = g.Wait()
	}

	for _, b := range bindings {
		if b.Resource != nil && b.Writes() {
			d.pending[b.Resource.ID()] = visibility(b.Resource)
		}
	}
}

func (d *Device) MemoryBarrier(barrier gpu.BarrierType) {
	d.stats.Barriers++
	for id, need := range d.pending {
		if need&barrier != 0 {
			delete(d.pending, id)
		}
	}
}

func (d *Device) Draw(call gpu.DrawCall) {
	name := "<nil>"
	if call.Program != nil {
		name = call.Program.Name()
	}
	d.checkReads(name, call.Bindings)
	d.stats.Draws[name]++
	instances := max(call.InstanceCount, 1)
	d.stats.Instances += instances
	d.stats.Triangles += call.IndexCount / 3 * instances
}

func (d *Device) Blit(src gpu.Texture, dst gpu.Framebuffer) {
	s, ok := src.(*Texture)
	if !ok {
		return
	}
	fb, ok := dst.(*Framebuffer)
	if !ok {
		return
	}
	t, ok := fb.attachments[gpu.AttachmentColour0]
	if !ok {
		return
	}
	d.checkReads("blit", []gpu.Binding{gpu.Sampler(0, src)})
	d.stats.Blits++
	draw.ApproxBiLinear.Scale(t, t.Bounds(), s, s.Bounds(), draw.Src, nil)
}

func (d *Device) EndFrame() {
	d.frame++
	kept := d.unresolved[:0]
	for _, q := range d.unresolved {
		if d.frame-q.frame >= uint64(d.opts.QueryLatency) {
			q.available = true
			continue
		}
		kept = append(kept, q)
	}
	clear(d.unresolved[len(kept):])
	d.unresolved = kept
}

func (d *Device) Frame() uint64 {
	return d.frame
}

// Hazards returns every hazard recorded since the last ResetHazards.
func (d *Device) Hazards() []Hazard {
	return append([]Hazard(nil), d.hazards...)
}

func (d *Device) ResetHazards() {
	d.hazards = d.hazards[:0]
}

// Stats returns a copy of the counters accumulated since ResetStats.
func (d *Device) Stats() Stats {
	s := d.stats
	s.Dispatches = make(map[string]int, len(d.stats.Dispatches))
	for k, v := range d.stats.Dispatches {
		s.Dispatches[k] = v
	}
	s.Draws = make(map[string]int, len(d.stats.Draws))
	for k, v := range d.stats.Draws {
		s.Draws[k] = v
	}
	return s
}

func (d *Device) ResetStats() {
	d.stats = Stats{
		Dispatches: make(map[string]int),
		Draws:      make(map[string]int),
	}
}
