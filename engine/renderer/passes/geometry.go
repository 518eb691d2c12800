package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const MaxGeometryInstances = 65536

type GeometryDataBlock struct {
	PassStats

	/**
	 * @brief Colour 0 albedo and ambient occlusion, colour 1 normal and
	 * roughness, colour 2 emission and metallic, plus depth.
	 */
	GBuffer gpu.Framebuffer
	/** @brief Selection flag and entity id per pixel. */
	EntityMask gpu.Framebuffer

	NumInstances       int
	NumDrawCalls       int
	TrianglesSubmitted int
	TrianglesDrawn     int
}

type batchKey struct {
	mesh     *metadata.Mesh
	material *metadata.Material
}

type instanceBatch struct {
	key       batchKey
	instances []metadata.InstanceData
	bounds    []math.Extents3D
}

type skinnedRenderable struct {
	mesh     *metadata.Mesh
	instance metadata.InstanceData
	bounds   math.Extents3D
	bones    []math.Mat4
}

// renderQueue batches static submissions by (mesh, material) in first
// submit order and keeps skinned submissions individually. The geometry and
// shadow passes both use it.
type renderQueue struct {
	batches []*instanceBatch
	index   map[batchKey]int
	skinned []skinnedRenderable
	count   int
	limit   int
	dropped bool
}

func newRenderQueue(limit int) *renderQueue {
	return &renderQueue{index: make(map[batchKey]int), limit: limit}
}

func (q *renderQueue) reset() {
	for _, b := range q.batches {
		b.instances = b.instances[:0]
		b.bounds = b.bounds[:0]
	}
	q.batches = q.batches[:0]
	clear(q.index)
	q.skinned = q.skinned[:0]
	q.count = 0
	q.dropped = false
}

func (q *renderQueue) full() bool {
	if q.count < q.limit {
		return false
	}
	if !q.dropped {
		q.dropped = true
		core.LogDebug("render queue full at %d instances, dropping submissions", q.limit)
	}
	return true
}

func (q *renderQueue) add(mesh *metadata.Mesh, material *metadata.Material, inst metadata.InstanceData) {
	if mesh == nil || q.full() {
		return
	}
	key := batchKey{mesh: mesh, material: material}
	i, ok := q.index[key]
	if !ok {
		i = len(q.batches)
		q.index[key] = i
		q.batches = append(q.batches, &instanceBatch{key: key})
	}
	b := q.batches[i]
	b.instances = append(b.instances, inst)
	b.bounds = append(b.bounds, mesh.Extents.Transform(inst.Transform))
	q.count++
}

func (q *renderQueue) addSkinned(mesh *metadata.Mesh, inst metadata.InstanceData, bones []math.Mat4) {
	if mesh == nil || q.full() {
		return
	}
	if len(bones) > metadata.MaxBones {
		bones = bones[:metadata.MaxBones]
	}
	q.skinned = append(q.skinned, skinnedRenderable{
		mesh:     mesh,
		instance: inst,
		bounds:   mesh.Extents.Transform(inst.Transform),
		bones:    bones,
	})
	q.count++
}

// bounds returns the world box around every queued renderable.
func (q *renderQueue) bounds() math.Extents3D {
	e := math.EmptyExtents()
	for _, b := range q.batches {
		for _, bb := range b.bounds {
			e = e.Union(bb)
		}
	}
	for _, s := range q.skinned {
		e = e.Union(s.bounds)
	}
	return e
}

// skinnedStride is the size of one packed skinned entry in the bone
// buffer: its instance data followed by a full palette.
var skinnedStride = gpu.SizeOf[metadata.InstanceData]() + metadata.MaxBones*gpu.SizeOf[math.Mat4]()

// drawStats counts the instances and triangles one culled submission of the
// queue produced.
type drawStats struct {
	instances          int
	drawCalls          int
	trianglesSubmitted int
	trianglesDrawn     int
	ranges             []batchRange
	skinned            []skinnedDraw
}

// batchRange is the slice of the uploaded instance buffer holding the
// visible instances of one batch.
type batchRange struct {
	mesh     *metadata.Mesh
	material *metadata.Material
	first    int
	count    int
}

// skinnedDraw is a visible skinned renderable and the byte offset of its
// entry in the bone buffer.
type skinnedDraw struct {
	mesh   *metadata.Mesh
	offset int
}

// drawQueue culls every renderable against frustum, packs the visible
// static instances into instances and the visible skinned entries into
// bones, then issues one instanced draw per batch and one draw per skinned
// renderable. Every buffer write happens before the first draw.
func drawQueue(dev gpu.Device, q *renderQueue, frustum *math.Frustum, instances, bones gpu.Buffer, static, skinned gpu.Program, target gpu.Framebuffer, layer int, extra ...gpu.Binding) drawStats {
	var st drawStats
	visible := make([]metadata.InstanceData, 0, q.count)
	for _, b := range q.batches {
		first := len(visible)
		for i, inst := range b.instances {
			st.trianglesSubmitted += b.key.mesh.Triangles()
			if frustum.IntersectsExtents(b.bounds[i]) {
				visible = append(visible, inst)
			}
		}
		if n := len(visible) - first; n > 0 {
			st.ranges = append(st.ranges, batchRange{mesh: b.key.mesh, material: b.key.material, first: first, count: n})
		}
	}
	gpu.WriteSlice(instances, 0, visible)

	for _, s := range q.skinned {
		st.trianglesSubmitted += s.mesh.Triangles()
		if !frustum.IntersectsExtents(s.bounds) {
			continue
		}
		offset := len(st.skinned) * skinnedStride
		gpu.EnsureSize(bones, offset+skinnedStride)
		gpu.WriteStruct(bones, offset, &s.instance)
		gpu.WriteSlice(bones, offset+gpu.SizeOf[metadata.InstanceData](), s.bones)
		st.skinned = append(st.skinned, skinnedDraw{mesh: s.mesh, offset: offset})
	}

	for _, r := range st.ranges {
		st.instances += r.count
		st.drawCalls++
		st.trianglesDrawn += r.count * r.mesh.Triangles()
		bindings := append([]gpu.Binding{gpu.StorageRead(1, instances)}, extra...)
		if r.material != nil && r.material.AlbedoMap != nil {
			bindings = append(bindings, gpu.Sampler(0, r.material.AlbedoMap))
		}
		dev.Draw(gpu.DrawCall{
			Program:       static,
			Target:        target,
			Layer:         layer,
			VertexBuffer:  r.mesh.Vertices,
			IndexBuffer:   r.mesh.Indices,
			IndexCount:    r.mesh.IndexCount,
			InstanceCount: r.count,
			BaseInstance:  r.first,
			Bindings:      bindings,
		})
	}

	for _, d := range st.skinned {
		st.instances++
		st.drawCalls++
		st.trianglesDrawn += d.mesh.Triangles()
		dev.Draw(gpu.DrawCall{
			Program:       skinned,
			Target:        target,
			Layer:         layer,
			VertexBuffer:  d.mesh.Vertices,
			IndexBuffer:   d.mesh.Indices,
			IndexCount:    d.mesh.IndexCount,
			InstanceCount: 1,
			Bindings:      append([]gpu.Binding{gpu.StorageReadAt(2, bones, d.offset)}, extra...),
		})
	}
	return st
}

type GeometryPass struct {
	metadata.NoRendererData

	data     GeometryDataBlock
	settings *config.Settings
	timer    *timers.AsyncTimer

	staticProgram  gpu.Program
	skinnedProgram gpu.Program
	maskProgram    gpu.Program

	queue     *renderQueue
	instances gpu.Buffer
	bones     gpu.Buffer
}

func NewGeometryPass(settings *config.Settings) *GeometryPass {
	return &GeometryPass{
		settings: settingsOrDefault(settings),
		queue:    newRenderQueue(MaxGeometryInstances),
	}
}

func (p *GeometryPass) Name() string                        { return "GeometryPass" }
func (p *GeometryPass) Dependencies() []metadata.RenderPass { return nil }
func (p *GeometryPass) DataBlock() any                      { return &p.data }
func (p *GeometryPass) Data() *GeometryDataBlock            { return &p.data }

func (p *GeometryPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.staticProgram = ps.get("geometry_pass_shader")
	p.skinnedProgram = ps.get("geometry_pass_skinned_shader")
	p.maskProgram = ps.get("entity_mask_shader")
	if ps.err != nil {
		return ps.err
	}

	w, h := int(p.settings.Window.Width), int(p.settings.Window.Height)
	p.data.GBuffer = ctx.Device.NewFramebuffer("gbuffer", w, h,
		gpu.AttachmentSpec{Attachment: gpu.AttachmentColour0, Format: gpu.FormatRGBA16F},
		gpu.AttachmentSpec{Attachment: gpu.AttachmentColour1, Format: gpu.FormatRGBA16F},
		gpu.AttachmentSpec{Attachment: gpu.AttachmentColour2, Format: gpu.FormatRGBA16F},
		gpu.AttachmentSpec{Attachment: gpu.AttachmentDepth, Format: gpu.FormatDepth32F},
	)
	p.data.EntityMask = ctx.Device.NewFramebuffer("entity_mask", w, h,
		gpu.AttachmentSpec{Attachment: gpu.AttachmentColour0, Format: gpu.FormatRG16F},
	)
	p.instances = ctx.Device.NewBuffer("geometry.instances", 0)
	p.bones = ctx.Device.NewBuffer("geometry.bones", 0)
	p.timer = newTimer(ctx.Device, p.settings)
	return nil
}

func (p *GeometryPass) UpdatePassData() {}

func (p *GeometryPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.queue.reset()
	p.data.GBuffer.Resize(int(width), int(height))
	p.data.EntityMask.Resize(int(width), int(height))
}

// Submit queues a static mesh for this frame.
func (p *GeometryPass) Submit(mesh *metadata.Mesh, material *metadata.Material, transform math.Mat4, entityID uint32, selected bool) {
	if material == nil {
		material = metadata.DefaultMaterial()
	}
	p.queue.add(mesh, material, metadata.NewInstanceData(transform, material, entityID, selected))
}

// SubmitSkinned queues a skinned mesh with its bone palette.
func (p *GeometryPass) SubmitSkinned(mesh *metadata.Mesh, material *metadata.Material, transform math.Mat4, bones []math.Mat4, entityID uint32, selected bool) {
	if material == nil {
		material = metadata.DefaultMaterial()
	}
	p.queue.addSkinned(mesh, metadata.NewInstanceData(transform, material, entityID, selected), bones)
}

func (p *GeometryPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	defer p.timer.Scoped()()

	p.data.GBuffer.Clear()
	p.data.EntityMask.Clear()

	frustum := math.FrustumFromMatrix(ctx.Global.ViewProjection)
	camera := gpu.Uniform(0, ctx.Global.CameraBuffer)
	st := drawQueue(ctx.Device, p.queue, &frustum, p.instances, p.bones,
		p.staticProgram, p.skinnedProgram, p.data.GBuffer, 0, camera)

	// The mask reuses the culled instance data and palettes uploaded above.
	for _, r := range st.ranges {
		ctx.Device.Draw(gpu.DrawCall{
			Program:       p.maskProgram,
			Target:        p.data.EntityMask,
			VertexBuffer:  r.mesh.Vertices,
			IndexBuffer:   r.mesh.Indices,
			IndexCount:    r.mesh.IndexCount,
			InstanceCount: r.count,
			BaseInstance:  r.first,
			Bindings:      []gpu.Binding{camera, gpu.StorageRead(1, p.instances)},
		})
	}
	for _, d := range st.skinned {
		ctx.Device.Draw(gpu.DrawCall{
			Program:       p.maskProgram,
			Target:        p.data.EntityMask,
			VertexBuffer:  d.mesh.Vertices,
			IndexBuffer:   d.mesh.Indices,
			IndexCount:    d.mesh.IndexCount,
			InstanceCount: 1,
			Bindings:      []gpu.Binding{camera, gpu.StorageReadAt(2, p.bones, d.offset)},
		})
	}

	p.data.NumInstances = st.instances
	p.data.NumDrawCalls = st.drawCalls
	p.data.TrianglesSubmitted = st.trianglesSubmitted
	p.data.TrianglesDrawn = st.trianglesDrawn
}

func (p *GeometryPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *GeometryPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.data.GBuffer)
	ctx.Device.Destroy(p.data.EntityMask)
	ctx.Device.Destroy(p.instances)
	ctx.Device.Destroy(p.bones)
}
