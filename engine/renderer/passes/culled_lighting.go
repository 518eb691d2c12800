package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

type CulledLightingDataBlock struct {
	PassStats
	NumPointLights int
	NumSpotLights  int
}

// CulledLightingPass shades the point and spot lights listed per tile by
// the light culling pass.
type CulledLightingPass struct {
	metadata.NoRendererData

	data     CulledLightingDataBlock
	timer    *timers.AsyncTimer
	capacity int

	pointProgram gpu.Program
	spotProgram  gpu.Program

	geometry    *GeometryPass
	culling     *LightCullingPass
	directional *DirectionalLightPass
}

func NewCulledLightingPass(settings *config.Settings, geometry *GeometryPass, culling *LightCullingPass, directional *DirectionalLightPass) *CulledLightingPass {
	return &CulledLightingPass{
		capacity:    timerCapacity(settings),
		geometry:    geometry,
		culling:     culling,
		directional: directional,
	}
}

func (p *CulledLightingPass) Name() string { return "CulledLightingPass" }

func (p *CulledLightingPass) Dependencies() []metadata.RenderPass {
	deps := []metadata.RenderPass{p.geometry, p.culling}
	if p.directional != nil {
		deps = append(deps, p.directional)
	}
	return deps
}

func (p *CulledLightingPass) DataBlock() any                 { return &p.data }
func (p *CulledLightingPass) Data() *CulledLightingDataBlock { return &p.data }

func (p *CulledLightingPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.pointProgram = ps.get("deferred_point_light")
	p.spotProgram = ps.get("deferred_spot_light")
	if ps.err != nil {
		return ps.err
	}
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *CulledLightingPass) UpdatePassData() {}

func (p *CulledLightingPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {}

// dispatchTiled shades one light type over its tile lists into the
// lighting buffer.
func dispatchTiled(ctx *metadata.RendererContext, program gpu.Program, geometry *GeometryPass, culling *LightCullingDataBlock, kind LightKind) {
	lights, lists := culling.Buffers(kind)
	bindings := []gpu.Binding{
		gpu.Uniform(0, ctx.Global.CameraBuffer),
		gpu.Uniform(1, culling.UniformBuffer),
		gpu.StorageRead(0, lights),
		gpu.StorageRead(1, lists),
		gpu.ImageReadWrite(0, ctx.Global.LightingBuffer, 0),
	}
	bindings = append(bindings, gbufferBindings(geometry)...)
	gx, gy := screenGroups(ctx.Global)
	ctx.Device.Dispatch(program, gx, gy, 1, bindings...)
	ctx.Device.MemoryBarrier(gpu.BarrierImageAccess)
}

func (p *CulledLightingPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	culled := p.culling.Data()
	p.data.NumPointLights = int(culled.Uniforms.NumPointLights)
	p.data.NumSpotLights = int(culled.Uniforms.NumSpotLights)
	if p.data.NumPointLights == 0 && p.data.NumSpotLights == 0 {
		return
	}
	defer p.timer.Scoped()()

	if p.data.NumPointLights > 0 {
		dispatchTiled(ctx, p.pointProgram, p.geometry, culled, PointLights)
	}
	if p.data.NumSpotLights > 0 {
		dispatchTiled(ctx, p.spotProgram, p.geometry, culled, SpotLights)
	}
}

func (p *CulledLightingPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *CulledLightingPass) OnShutdown(ctx *metadata.RendererContext) {}
