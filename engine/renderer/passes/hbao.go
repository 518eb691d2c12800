package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

type HBAODataBlock struct {
	PassStats

	/** @brief Blurred half resolution occlusion (r) and view depth (g). */
	DownsampleAO gpu.Texture
	/** @brief Occlusion radius in half resolution pixels at unit depth. */
	RadiusToScreen float32
	/** @brief Set when DownsampleAO holds this frame's occlusion. */
	Ran bool
}

// AORadiusToScreen converts a world radius into half resolution pixels at
// unit view depth for a viewport height and projection.
func AORadiusToScreen(radius float32, height uint32, projection math.Mat4) float32 {
	// projection[5] is 1 / tan(fov / 2).
	return 0.5 * radius * float32(height) * projection[5] / 2
}

// HBAOPass computes horizon based ambient occlusion from the depth pyramid
// and blurs it in two separable passes.
type HBAOPass struct {
	metadata.NoRendererData

	data     HBAODataBlock
	settings config.AOSettings
	pending  settingsQueue[config.AOSettings]
	timer    *timers.AsyncTimer
	capacity int

	aoProgram   gpu.Program
	blurProgram gpu.Program

	raw  gpu.Texture
	blur gpu.Texture
	// One parameter buffer per dispatch: occlusion, horizontal blur, vertical blur.
	uniforms [3]gpu.Buffer

	width, height int

	geometry *GeometryPass
	hiz      *HiZPass
}

func NewHBAOPass(settings *config.Settings, geometry *GeometryPass, hiz *HiZPass) *HBAOPass {
	s := settingsOrDefault(settings)
	return &HBAOPass{
		settings: s.AO,
		capacity: timerCapacity(s),
		geometry: geometry,
		hiz:      hiz,
	}
}

func (p *HBAOPass) Name() string { return "HBAOPass" }

func (p *HBAOPass) Dependencies() []metadata.RenderPass {
	return []metadata.RenderPass{p.geometry, p.hiz}
}

func (p *HBAOPass) DataBlock() any                   { return &p.data }
func (p *HBAOPass) Data() *HBAODataBlock             { return &p.data }
func (p *HBAOPass) Enabled() bool                    { return p.settings.Enabled }
func (p *HBAOPass) QueueSettings(s *config.Settings) { p.pending.push(s.AO) }

func (p *HBAOPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.aoProgram = ps.get("screen_space_hbao")
	p.blurProgram = ps.get("screen_space_hbao_blur")
	if ps.err != nil {
		return ps.err
	}
	for i := range p.uniforms {
		p.uniforms[i] = ctx.Device.NewBuffer("hbao.uniforms", gpu.SizeOf[metadata.AOUniforms]())
	}
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	w, h := p.geometry.Data().GBuffer.Size()
	p.allocate(ctx.Device, w, h)
	return nil
}

func (p *HBAOPass) allocate(dev gpu.Device, width, height int) {
	hw, hh := max(1, width/2), max(1, height/2)
	desc := gpu.TextureDesc{Kind: gpu.Texture2D, Format: gpu.FormatRG16F, Width: hw, Height: hh, Depth: 1, Mips: 1}
	if p.raw == nil {
		desc.Label = "hbao.raw"
		p.raw = dev.NewTexture(desc)
		desc.Label = "hbao.blur"
		p.blur = dev.NewTexture(desc)
		desc.Label = "hbao.ao"
		p.data.DownsampleAO = dev.NewTexture(desc)
	} else {
		p.raw.Resize(hw, hh, 1)
		p.blur.Resize(hw, hh, 1)
		p.data.DownsampleAO.Resize(hw, hh, 1)
	}
	p.width, p.height = width, height
}

func (p *HBAOPass) UpdatePassData() {
	if s, ok := p.pending.pop(); ok {
		p.settings = s
	}
}

func (p *HBAOPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Ran = false
	if int(width) != p.width || int(height) != p.height {
		p.allocate(ctx.Device, int(width), int(height))
	}
	p.data.RadiusToScreen = AORadiusToScreen(p.settings.Radius, height, ctx.Global.Projection)
}

func (p *HBAOPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	if !p.settings.Enabled {
		return
	}
	defer p.timer.Scoped()()

	params := math.Vec4{p.data.RadiusToScreen, p.settings.Multiplier, p.settings.Exponent, p.settings.Radius}
	directions := [3]math.Vec4{{}, {1, 0, 0, 0}, {0, 1, 0, 0}}
	for i, b := range p.uniforms {
		u := metadata.AOUniforms{Params: params, BlurDirection: directions[i]}
		gpu.WriteStruct(b, 0, &u)
	}

	dev := ctx.Device
	w, h := p.raw.Desc().MipSize(0)
	gx, gy := groups(uint32(w), shaders.GroupSize), groups(uint32(h), shaders.GroupSize)

	dev.Dispatch(p.aoProgram, gx, gy, 1,
		gpu.Uniform(0, ctx.Global.CameraBuffer),
		gpu.Uniform(1, p.uniforms[0]),
		gpu.Sampler(0, p.hiz.Data().HierarchicalDepth),
		gpu.Sampler(1, p.geometry.Data().GBuffer.Attachment(gpu.AttachmentColour1)),
		gpu.ImageWrite(0, p.raw, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	dev.Dispatch(p.blurProgram, gx, gy, 1,
		gpu.Uniform(1, p.uniforms[1]),
		gpu.ImageRead(0, p.raw, 0),
		gpu.ImageWrite(1, p.blur, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	dev.Dispatch(p.blurProgram, gx, gy, 1,
		gpu.Uniform(1, p.uniforms[2]),
		gpu.ImageRead(0, p.blur, 0),
		gpu.ImageWrite(1, p.data.DownsampleAO, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)
	p.data.Ran = true
}

func (p *HBAOPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *HBAOPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.raw)
	ctx.Device.Destroy(p.blur)
	ctx.Device.Destroy(p.data.DownsampleAO)
	for _, b := range p.uniforms {
		ctx.Device.Destroy(b)
	}
}
