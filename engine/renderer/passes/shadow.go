package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const MaxShadowCasters = 65536

type ShadowDataBlock struct {
	PassStats

	/** @brief Depth array with one layer per cascade. */
	Target    gpu.Framebuffer
	ShadowMap gpu.Texture
	Cascades  []Cascade
	/**
	 * @brief Cascade matrices, splits and biases. NumLights and
	 * ShadowedLight are left for the directional pass to fill.
	 */
	Uniforms      metadata.DirectionalUniforms
	UniformBuffer gpu.Buffer

	HasPrimaryLight bool
	PrimaryLight    metadata.DirectionalLight
	Resolution      uint32

	NumInstances       int
	NumDrawCalls       int
	TrianglesSubmitted int
	TrianglesDrawn     int
}

type ShadowPass struct {
	metadata.NoRendererData

	data     ShadowDataBlock
	settings config.ShadowSettings
	pending  settingsQueue[config.ShadowSettings]
	timer    *timers.AsyncTimer

	staticProgram  gpu.Program
	skinnedProgram gpu.Program

	queue     *renderQueue
	instances [MaxCascades]gpu.Buffer
	bones     [MaxCascades]gpu.Buffer
	capacity  int
	// lit is set while UniformBuffer holds cascades of a primary light.
	lit bool
}

func NewShadowPass(settings *config.Settings) *ShadowPass {
	s := settingsOrDefault(settings)
	return &ShadowPass{
		settings: s.Shadows,
		capacity: timerCapacity(s),
		queue:    newRenderQueue(MaxShadowCasters),
	}
}

func (p *ShadowPass) Name() string                        { return "ShadowPass" }
func (p *ShadowPass) Dependencies() []metadata.RenderPass { return nil }
func (p *ShadowPass) DataBlock() any                      { return &p.data }
func (p *ShadowPass) Data() *ShadowDataBlock              { return &p.data }

func (p *ShadowPass) QueueSettings(s *config.Settings) {
	p.pending.push(s.Shadows)
}

func (p *ShadowPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.staticProgram = ps.get("static_shadow_shader")
	p.skinnedProgram = ps.get("dynamic_shadow_shader")
	if ps.err != nil {
		return ps.err
	}

	res := p.settings.ShadowMapSize()
	p.data.Resolution = res
	p.data.Target = ctx.Device.NewFramebuffer("shadow.cascades", int(res), int(res),
		gpu.AttachmentSpec{Attachment: gpu.AttachmentDepth, Format: gpu.FormatDepth32F, Layers: MaxCascades},
	)
	p.data.ShadowMap = p.data.Target.Attachment(gpu.AttachmentDepth)
	p.data.UniformBuffer = ctx.Device.NewBuffer("shadow.cascades.uniforms", gpu.SizeOf[metadata.DirectionalUniforms]())
	p.data.Uniforms = metadata.DirectionalUniforms{ShadowedLight: -1}
	gpu.WriteStruct(p.data.UniformBuffer, 0, &p.data.Uniforms)
	for i := range p.instances {
		p.instances[i] = ctx.Device.NewBuffer("", 0)
		p.bones[i] = ctx.Device.NewBuffer("", 0)
	}
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	core.LogDebug("shadow map %dx%d, %d cascades", res, res, p.settings.Cascades)
	return nil
}

func (p *ShadowPass) UpdatePassData() {
	s, ok := p.pending.pop()
	if !ok {
		return
	}
	p.settings = s
	if res := s.ShadowMapSize(); res != p.data.Resolution {
		p.data.Resolution = res
		p.data.Target.Resize(int(res), int(res))
		core.LogInfo("shadow map resized to %dx%d", res, res)
	}
}

func (p *ShadowPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.queue.reset()
	p.data.HasPrimaryLight = false
}

// SubmitPrimaryLight selects the light whose shadows are rendered this frame.
func (p *ShadowPass) SubmitPrimaryLight(light metadata.DirectionalLight) {
	p.data.PrimaryLight = light
	p.data.HasPrimaryLight = true
}

// Submit queues a static shadow caster.
func (p *ShadowPass) Submit(mesh *metadata.Mesh, transform math.Mat4) {
	p.queue.add(mesh, nil, metadata.InstanceData{Transform: transform})
}

// SubmitSkinned queues a skinned shadow caster.
func (p *ShadowPass) SubmitSkinned(mesh *metadata.Mesh, transform math.Mat4, bones []math.Mat4) {
	p.queue.addSkinned(mesh, metadata.InstanceData{Transform: transform}, bones)
}

func (p *ShadowPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	p.data.NumInstances, p.data.NumDrawCalls = 0, 0
	p.data.TrianglesSubmitted, p.data.TrianglesDrawn = 0, 0

	if !p.data.HasPrimaryLight {
		p.data.Cascades = p.data.Cascades[:0]
		if p.lit {
			p.lit = false
			p.data.Uniforms = metadata.DirectionalUniforms{ShadowedLight: -1}
			gpu.WriteStruct(p.data.UniformBuffer, 0, &p.data.Uniforms)
		}
		return
	}
	defer p.timer.Scoped()()

	g := ctx.Global
	p.data.Cascades = ComputeCascades(CascadeParams{
		InvViewProjection: g.InvViewProjection,
		Near:              g.Near,
		Far:               g.Far,
		Lambda:            p.settings.Lambda,
		Count:             p.settings.Cascades,
		Resolution:        p.data.Resolution,
		ToLight:           p.data.PrimaryLight.Direction(),
		SceneBounds:       p.queue.bounds(),
	})

	u := metadata.DirectionalUniforms{
		ShadowedLight: -1,
		NumCascades:   uint32(len(p.data.Cascades)),
		PCFRadius:     int32(p.settings.PCFRadius),
		MinMaxBias:    math.Vec4{p.settings.MinBias, p.settings.MaxBias, p.settings.NormalBias, 0},
	}
	for i, c := range p.data.Cascades {
		u.CascadeSplits[i] = c.Split
		u.CascadeVP[i] = c.ViewProjection
	}
	p.data.Uniforms = u
	p.lit = true
	gpu.WriteStruct(p.data.UniformBuffer, 0, &u)

	p.data.Target.Clear()
	cascades := gpu.Uniform(0, p.data.UniformBuffer)
	for i := range p.data.Cascades {
		st := drawQueue(ctx.Device, p.queue, &p.data.Cascades[i].Frustum, p.instances[i], p.bones[i],
			p.staticProgram, p.skinnedProgram, p.data.Target, i, cascades)
		p.data.NumInstances += st.instances
		p.data.NumDrawCalls += st.drawCalls
		p.data.TrianglesSubmitted += st.trianglesSubmitted
		p.data.TrianglesDrawn += st.trianglesDrawn
	}
}

func (p *ShadowPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *ShadowPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.data.Target)
	ctx.Device.Destroy(p.data.UniformBuffer)
	for i := range p.instances {
		ctx.Device.Destroy(p.instances[i])
		ctx.Device.Destroy(p.bones[i])
	}
}
