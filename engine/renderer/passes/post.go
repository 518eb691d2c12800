package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

type PostProcessingDataBlock struct {
	PassStats

	/** @brief Display-referred LDR image of the frame. */
	Output   gpu.Framebuffer
	Uniforms metadata.PostUniforms
}

// PostProcessingPass tone maps the lighting buffer with bloom, grid and
// selection outline into the output framebuffer and copies it to the
// frame target.
type PostProcessingPass struct {
	metadata.NoRendererData

	data     PostProcessingDataBlock
	settings config.PostSettings
	pending  settingsQueue[config.PostSettings]
	timer    *timers.AsyncTimer
	capacity int
	program  gpu.Program
	uniforms gpu.Buffer

	geometry *GeometryPass
	bloom    *BloomPass
	previous metadata.RenderPass
}

func NewPostProcessingPass(settings *config.Settings, geometry *GeometryPass, bloom *BloomPass, previous metadata.RenderPass) *PostProcessingPass {
	s := settingsOrDefault(settings)
	return &PostProcessingPass{
		settings: s.Post,
		capacity: timerCapacity(s),
		geometry: geometry,
		bloom:    bloom,
		previous: previous,
	}
}

func (p *PostProcessingPass) Name() string { return "PostProcessingPass" }

func (p *PostProcessingPass) Dependencies() []metadata.RenderPass {
	deps := []metadata.RenderPass{p.geometry}
	if p.bloom != nil {
		deps = append(deps, p.bloom)
	}
	if p.previous != nil {
		deps = append(deps, p.previous)
	}
	return deps
}

func (p *PostProcessingPass) DataBlock() any                 { return &p.data }
func (p *PostProcessingPass) Data() *PostProcessingDataBlock { return &p.data }

func (p *PostProcessingPass) QueueSettings(s *config.Settings) {
	p.pending.push(s.Post)
}

func (p *PostProcessingPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.program = ps.get("post_processing")
	if ps.err != nil {
		return ps.err
	}
	p.data.Output = ctx.Device.NewFramebuffer("post.output", 1, 1,
		gpu.AttachmentSpec{Attachment: gpu.AttachmentColour0, Format: gpu.FormatRGBA8},
	)
	p.uniforms = ctx.Device.NewBuffer("post.uniforms", gpu.SizeOf[metadata.PostUniforms]())
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *PostProcessingPass) UpdatePassData() {
	if s, ok := p.pending.pop(); ok {
		p.settings = s
	}
}

func (p *PostProcessingPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	if w, h := p.data.Output.Size(); w != int(width) || h != int(height) {
		p.data.Output.Resize(int(width), int(height))
	}
}

func (p *PostProcessingPass) uniformsFor(bloom *BloomDataBlock, intensity float32) metadata.PostUniforms {
	s := &p.settings
	u := metadata.PostUniforms{
		ToneMapOp:     s.ToneMap,
		Exposure:      s.Exposure,
		Gamma:         s.Gamma,
		Params:        math.Vec4{intensity, s.GridSize, float32(s.OutlineWidth), 0},
		OutlineColour: math.Vec4(s.OutlineColour),
	}
	if s.FXAA {
		u.Flags |= metadata.PostFXAA
	}
	if bloom != nil && bloom.Ran {
		u.Flags |= metadata.PostBloom
	}
	if s.Grid {
		u.Flags |= metadata.PostGrid
	}
	if s.Outline {
		u.Flags |= metadata.PostOutline
	}
	return u
}

func (p *PostProcessingPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	defer p.timer.Scoped()()

	var bloom *BloomDataBlock
	var bloomTexture gpu.Texture
	var intensity float32
	if p.bloom != nil {
		bloom = p.bloom.Data()
		bloomTexture = bloom.Result
		intensity = p.bloom.settings.Intensity
	}
	p.data.Uniforms = p.uniformsFor(bloom, intensity)
	gpu.WriteStruct(p.uniforms, 0, &p.data.Uniforms)

	g := p.geometry.Data()
	bindings := []gpu.Binding{
		gpu.Uniform(0, ctx.Global.CameraBuffer),
		gpu.Uniform(1, p.uniforms),
		gpu.Sampler(0, ctx.Global.LightingBuffer),
		gpu.Sampler(2, g.EntityMask.Attachment(gpu.AttachmentColour0)),
		gpu.Sampler(3, g.GBuffer.Attachment(gpu.AttachmentDepth)),
		gpu.ImageWrite(0, p.data.Output.Attachment(gpu.AttachmentColour0), 0),
	}
	if p.data.Uniforms.Flags&metadata.PostBloom != 0 {
		bindings = append(bindings, gpu.Sampler(1, bloomTexture))
	}
	gx, gy := screenGroups(ctx.Global)
	ctx.Device.Dispatch(p.program, gx, gy, 1, bindings...)
	ctx.Device.MemoryBarrier(gpu.BarrierImageAccess)
}

func (p *PostProcessingPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {
	if target == nil {
		return
	}
	ctx.Device.Blit(p.data.Output.Attachment(gpu.AttachmentColour0), target)
}

func (p *PostProcessingPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.data.Output)
	ctx.Device.Destroy(p.uniforms)
}
