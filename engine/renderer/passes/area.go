package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

type AreaLightDataBlock struct {
	PassStats
	NumRectLights int
}

type AreaLightPass struct {
	metadata.NoRendererData

	data     AreaLightDataBlock
	timer    *timers.AsyncTimer
	capacity int
	program  gpu.Program

	geometry *GeometryPass
	culling  *LightCullingPass
	previous metadata.RenderPass
}

// NewAreaLightPass shades rect lights after previous, the pass that last
// wrote the lighting buffer.
func NewAreaLightPass(settings *config.Settings, geometry *GeometryPass, culling *LightCullingPass, previous metadata.RenderPass) *AreaLightPass {
	return &AreaLightPass{
		capacity: timerCapacity(settings),
		geometry: geometry,
		culling:  culling,
		previous: previous,
	}
}

func (p *AreaLightPass) Name() string { return "AreaLightPass" }

func (p *AreaLightPass) Dependencies() []metadata.RenderPass {
	deps := []metadata.RenderPass{p.geometry, p.culling}
	if p.previous != nil {
		deps = append(deps, p.previous)
	}
	return deps
}

func (p *AreaLightPass) DataBlock() any            { return &p.data }
func (p *AreaLightPass) Data() *AreaLightDataBlock { return &p.data }

func (p *AreaLightPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.program = ps.get("rect_area_light")
	if ps.err != nil {
		return ps.err
	}
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *AreaLightPass) UpdatePassData() {}

func (p *AreaLightPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {}

func (p *AreaLightPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	culled := p.culling.Data()
	p.data.NumRectLights = int(culled.Uniforms.NumRectLights)
	if p.data.NumRectLights == 0 {
		return
	}
	defer p.timer.Scoped()()
	dispatchTiled(ctx, p.program, p.geometry, culled, RectLights)
}

func (p *AreaLightPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *AreaLightPass) OnShutdown(ctx *metadata.RendererContext) {}
