package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const MaxDirectionalLights = 8

// gbufferBindings binds the geometry buffer at samplers 0-3.
func gbufferBindings(g *GeometryPass) []gpu.Binding {
	fb := g.Data().GBuffer
	return []gpu.Binding{
		gpu.Sampler(0, fb.Attachment(gpu.AttachmentColour0)),
		gpu.Sampler(1, fb.Attachment(gpu.AttachmentColour1)),
		gpu.Sampler(2, fb.Attachment(gpu.AttachmentColour2)),
		gpu.Sampler(3, fb.Attachment(gpu.AttachmentDepth)),
	}
}

// screenGroups is the dispatch size covering the viewport in 8x8 blocks.
func screenGroups(g *metadata.GlobalRendererData) (int, int) {
	return groups(g.Width, shaders.GroupSize), groups(g.Height, shaders.GroupSize)
}

// lightDirection returns the direction toward a light whose emission
// travels down the transform's -Y axis.
func lightDirection(transform math.Mat4) math.Vec3 {
	dir := math.InverseTranspose(transform).Mul3x1(math.Vec3{0, -1, 0}).Mul(-1)
	if dir.Len() == 0 {
		return math.Vec3{0, 1, 0}
	}
	return dir.Normalize()
}

type DirectionalDataBlock struct {
	PassStats

	Lights []metadata.DirectionalLight
	/** @brief Index of the primary light in Lights, or -1. */
	PrimaryLight int
	CastShadows  bool

	Uniforms      metadata.DirectionalUniforms
	UniformBuffer gpu.Buffer
	LightBuffer   gpu.Buffer
}

type DirectionalLightPass struct {
	metadata.NoRendererData

	data     DirectionalDataBlock
	timer    *timers.AsyncTimer
	capacity int
	program  gpu.Program
	dropped  bool

	geometry *GeometryPass
	shadow   *ShadowPass
}

func NewDirectionalLightPass(settings *config.Settings, geometry *GeometryPass, shadow *ShadowPass) *DirectionalLightPass {
	return &DirectionalLightPass{
		capacity: timerCapacity(settings),
		geometry: geometry,
		shadow:   shadow,
	}
}

func (p *DirectionalLightPass) Name() string { return "DirectionalLightPass" }

func (p *DirectionalLightPass) Dependencies() []metadata.RenderPass {
	return []metadata.RenderPass{p.geometry, p.shadow}
}

func (p *DirectionalLightPass) DataBlock() any              { return &p.data }
func (p *DirectionalLightPass) Data() *DirectionalDataBlock { return &p.data }

func (p *DirectionalLightPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.program = ps.get("directional_evaluation")
	if ps.err != nil {
		return ps.err
	}
	p.data.UniformBuffer = ctx.Device.NewBuffer("directional.uniforms", gpu.SizeOf[metadata.DirectionalUniforms]())
	p.data.LightBuffer = ctx.Device.NewBuffer("directional.lights", MaxDirectionalLights*gpu.SizeOf[metadata.DirectionalLight]())
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *DirectionalLightPass) UpdatePassData() {}

func (p *DirectionalLightPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Lights = p.data.Lights[:0]
	p.data.PrimaryLight = -1
	p.data.CastShadows = false
	p.dropped = false
}

func (p *DirectionalLightPass) push(light metadata.DirectionalLight, transform math.Mat4) int {
	if len(p.data.Lights) >= MaxDirectionalLights {
		if !p.dropped {
			p.dropped = true
			core.LogDebug("directional light capacity %d reached, dropping submissions", MaxDirectionalLights)
		}
		return -1
	}
	light.DirectionSize = lightDirection(transform).Vec4(light.DirectionSize[3])
	p.data.Lights = append(p.data.Lights, light)
	return len(p.data.Lights) - 1
}

// Submit adds a directional light oriented by transform.
func (p *DirectionalLightPass) Submit(light metadata.DirectionalLight, transform math.Mat4) {
	p.push(light, transform)
}

// SubmitPrimary adds the frame's primary light. When castShadows is set and
// the shadow pass received the same light, it is evaluated against the
// shadow cascades. It returns the light with its world direction.
func (p *DirectionalLightPass) SubmitPrimary(light metadata.DirectionalLight, castShadows bool, transform math.Mat4) metadata.DirectionalLight {
	i := p.push(light, transform)
	if i < 0 {
		return light
	}
	p.data.PrimaryLight = i
	p.data.CastShadows = castShadows
	return p.data.Lights[i]
}

func (p *DirectionalLightPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	if len(p.data.Lights) == 0 {
		return
	}
	defer p.timer.Scoped()()

	u := metadata.DirectionalUniforms{ShadowedLight: -1}
	shadowed := p.data.CastShadows && p.data.PrimaryLight >= 0 && p.shadow != nil && p.shadow.Data().HasPrimaryLight
	if shadowed {
		u = p.shadow.Data().Uniforms
		u.ShadowedLight = int32(p.data.PrimaryLight)
	}
	u.NumLights = uint32(len(p.data.Lights))
	p.data.Uniforms = u
	gpu.WriteStruct(p.data.UniformBuffer, 0, &u)
	gpu.WriteSlice(p.data.LightBuffer, 0, p.data.Lights)

	bindings := []gpu.Binding{
		gpu.Uniform(0, ctx.Global.CameraBuffer),
		gpu.Uniform(1, p.data.UniformBuffer),
		gpu.StorageRead(0, p.data.LightBuffer),
		gpu.ImageReadWrite(0, ctx.Global.LightingBuffer, 0),
	}
	bindings = append(bindings, gbufferBindings(p.geometry)...)
	if shadowed {
		bindings = append(bindings, gpu.Sampler(4, p.shadow.Data().ShadowMap))
	}
	gx, gy := screenGroups(ctx.Global)
	ctx.Device.Dispatch(p.program, gx, gy, 1, bindings...)
	ctx.Device.MemoryBarrier(gpu.BarrierImageAccess)
}

func (p *DirectionalLightPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *DirectionalLightPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.data.UniformBuffer)
	ctx.Device.Destroy(p.data.LightBuffer)
}
