package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

type SkyboxDataBlock struct {
	PassStats
	Drawn bool
}

// SkyboxPass writes the active atmosphere into the pixels no geometry
// covered.
type SkyboxPass struct {
	metadata.NoRendererData

	data     SkyboxDataBlock
	timer    *timers.AsyncTimer
	capacity int
	program  gpu.Program
	uniforms gpu.Buffer

	atmosphere *SkyAtmospherePass
	geometry   *GeometryPass
	previous   metadata.RenderPass
}

func NewSkyboxPass(settings *config.Settings, atmosphere *SkyAtmospherePass, geometry *GeometryPass, previous metadata.RenderPass) *SkyboxPass {
	return &SkyboxPass{
		capacity:   timerCapacity(settings),
		atmosphere: atmosphere,
		geometry:   geometry,
		previous:   previous,
	}
}

func (p *SkyboxPass) Name() string { return "SkyboxPass" }

func (p *SkyboxPass) Dependencies() []metadata.RenderPass {
	deps := []metadata.RenderPass{p.atmosphere, p.geometry}
	if p.previous != nil {
		deps = append(deps, p.previous)
	}
	return deps
}

func (p *SkyboxPass) DataBlock() any         { return &p.data }
func (p *SkyboxPass) Data() *SkyboxDataBlock { return &p.data }

func (p *SkyboxPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.program = ps.get("sky_apply")
	if ps.err != nil {
		return ps.err
	}
	p.uniforms = ctx.Device.NewBuffer("skybox.uniforms", gpu.SizeOf[metadata.AtmosphereUniforms]())
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *SkyboxPass) UpdatePassData() {}

func (p *SkyboxPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Drawn = false
}

func (p *SkyboxPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	sky := p.atmosphere.Data()
	if !sky.Active.Valid() {
		return
	}
	if _, ok := p.atmosphere.Params(sky.Active); !ok {
		return
	}
	defer p.timer.Scoped()()

	u := metadata.AtmosphereUniforms{Count: 1}
	for i := range u.Slots {
		u.Slots[i] = -1
	}
	u.Slots[0] = int32(sky.Active)
	if sky.FastMode {
		u.Fast = 1
	}
	gpu.WriteStruct(p.uniforms, 0, &u)

	gx, gy := screenGroups(ctx.Global)
	ctx.Device.Dispatch(p.program, gx, gy, 1,
		gpu.Uniform(0, ctx.Global.CameraBuffer),
		gpu.Uniform(1, p.uniforms),
		gpu.StorageRead(0, sky.ParamsBuffer),
		gpu.Sampler(0, sky.SkyView),
		gpu.Sampler(1, sky.Transmittance),
		gpu.Sampler(2, sky.MultiScat),
		gpu.Sampler(3, p.geometry.Data().GBuffer.Attachment(gpu.AttachmentDepth)),
		gpu.ImageReadWrite(0, ctx.Global.LightingBuffer, 0),
	)
	ctx.Device.MemoryBarrier(gpu.BarrierImageAccess)
	p.data.Drawn = true
}

func (p *SkyboxPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *SkyboxPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.uniforms)
}
