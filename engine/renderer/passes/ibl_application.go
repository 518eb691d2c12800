package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

type IBLApplicationDataBlock struct {
	PassStats
	Applied bool
	// Occluded is set when the ambient term was scaled by the HBAO result.
	Occluded bool
}

// IBLApplicationPass adds the ambient light of the active probe to the
// lighting buffer.
type IBLApplicationPass struct {
	metadata.NoRendererData

	data     IBLApplicationDataBlock
	timer    *timers.AsyncTimer
	capacity int
	program  gpu.Program
	uniforms gpu.Buffer

	ibl      *DynamicSkyIBLPass
	geometry *GeometryPass
	hbao     *HBAOPass
	previous metadata.RenderPass
}

// NewIBLApplicationPass builds the pass. hbao may be nil, in which case the
// ambient term is never occluded.
func NewIBLApplicationPass(settings *config.Settings, ibl *DynamicSkyIBLPass, geometry *GeometryPass, hbao *HBAOPass, previous metadata.RenderPass) *IBLApplicationPass {
	return &IBLApplicationPass{
		capacity: timerCapacity(settings),
		ibl:      ibl,
		geometry: geometry,
		hbao:     hbao,
		previous: previous,
	}
}

func (p *IBLApplicationPass) Name() string { return "IBLApplicationPass" }

func (p *IBLApplicationPass) Dependencies() []metadata.RenderPass {
	deps := []metadata.RenderPass{p.ibl, p.geometry}
	if p.hbao != nil {
		deps = append(deps, p.hbao)
	}
	if p.previous != nil {
		deps = append(deps, p.previous)
	}
	return deps
}

func (p *IBLApplicationPass) DataBlock() any                 { return &p.data }
func (p *IBLApplicationPass) Data() *IBLApplicationDataBlock { return &p.data }

func (p *IBLApplicationPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.program = ps.get("ibl_application")
	if ps.err != nil {
		return ps.err
	}
	p.uniforms = ctx.Device.NewBuffer("ibl_application.uniforms", gpu.SizeOf[metadata.IBLUniforms]())
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *IBLApplicationPass) UpdatePassData() {}

func (p *IBLApplicationPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Applied = false
	p.data.Occluded = false
}

func (p *IBLApplicationPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	probes := p.ibl.Data()
	if !probes.ActiveProbe.Valid() || p.ibl.slots[probes.ActiveProbe].dirty || !p.ibl.slots[probes.ActiveProbe].submitted {
		return
	}
	defer p.timer.Scoped()()

	u := metadata.IBLUniforms{
		ActiveProbe: int32(probes.ActiveProbe),
		Intensity:   probes.Intensity * p.ibl.slots[probes.ActiveProbe].params.Intensity,
	}
	bindings := []gpu.Binding{
		gpu.Uniform(0, ctx.Global.CameraBuffer),
		gpu.Uniform(1, p.uniforms),
		gpu.StorageRead(0, probes.IrradianceSH),
		gpu.Sampler(4, probes.Radiance),
		gpu.ImageReadWrite(0, ctx.Global.LightingBuffer, 0),
	}
	if p.hbao != nil && p.hbao.Data().Ran {
		u.AOEnabled = 1
		bindings = append(bindings, gpu.Sampler(7, p.hbao.Data().DownsampleAO))
	}
	gpu.WriteStruct(p.uniforms, 0, &u)
	bindings = append(bindings, gbufferBindings(p.geometry)...)
	gx, gy := screenGroups(ctx.Global)
	ctx.Device.Dispatch(p.program, gx, gy, 1, bindings...)
	ctx.Device.MemoryBarrier(gpu.BarrierImageAccess)
	p.data.Applied = true
	p.data.Occluded = u.AOEnabled != 0
}

func (p *IBLApplicationPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *IBLApplicationPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.uniforms)
}
