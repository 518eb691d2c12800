package passes

import (
	"math/bits"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const MaxBloomMips = 7

type BloomDataBlock struct {
	PassStats

	/** @brief Half resolution chain, level 0 holds the thresholded image. */
	Downsample gpu.Texture
	Upsample   [2]gpu.Texture
	/** @brief The upsample texture holding the final blur at level 0. */
	Result gpu.Texture
	Mips   int
	Ran    bool
}

// BloomMipCount returns the chain length for a half resolution base of
// width by height.
func BloomMipCount(width, height int) int {
	m := min(width, height)
	if m < 1 {
		return 1
	}
	return min(MaxBloomMips, bits.Len(uint(m)))
}

// BloomCurve packs the soft-knee threshold parameters.
func BloomCurve(threshold, knee float32) math.Vec4 {
	knee = max(knee, 1e-4)
	return math.Vec4{threshold, threshold - knee, 2 * knee, 0.25 / knee}
}

type BloomPass struct {
	metadata.NoRendererData

	data     BloomDataBlock
	settings config.BloomSettings
	pending  settingsQueue[config.BloomSettings]
	timer    *timers.AsyncTimer
	capacity int

	karis    gpu.Program
	down     gpu.Program
	blit     gpu.Program
	upsample gpu.Program

	// One parameter buffer per chain level.
	uniforms []gpu.Buffer
	width    int
	height   int

	previous metadata.RenderPass
}

func NewBloomPass(settings *config.Settings, previous metadata.RenderPass) *BloomPass {
	s := settingsOrDefault(settings)
	return &BloomPass{
		settings: s.Bloom,
		capacity: timerCapacity(s),
		previous: previous,
	}
}

func (p *BloomPass) Name() string { return "BloomPass" }

func (p *BloomPass) Dependencies() []metadata.RenderPass {
	if p.previous == nil {
		return nil
	}
	return []metadata.RenderPass{p.previous}
}

func (p *BloomPass) DataBlock() any        { return &p.data }
func (p *BloomPass) Data() *BloomDataBlock { return &p.data }

func (p *BloomPass) QueueSettings(s *config.Settings) {
	p.pending.push(s.Bloom)
}

func (p *BloomPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.karis = ps.get("bloom_downsample_karis")
	p.down = ps.get("bloom_downsample")
	p.blit = ps.get("bloom_copy")
	p.upsample = ps.get("bloom_upsample_blend")
	if ps.err != nil {
		return ps.err
	}
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	p.allocate(ctx.Device, 2, 2)
	return nil
}

func (p *BloomPass) UpdatePassData() {
	if s, ok := p.pending.pop(); ok {
		p.settings = s
	}
}

func (p *BloomPass) release(dev gpu.Device) {
	dev.Destroy(p.data.Downsample)
	dev.Destroy(p.data.Upsample[0])
	dev.Destroy(p.data.Upsample[1])
	for _, b := range p.uniforms {
		dev.Destroy(b)
	}
	p.uniforms = p.uniforms[:0]
}

// allocate creates the chain for a full resolution viewport. Mip counts
// are fixed at creation, so a resize recreates every texture.
func (p *BloomPass) allocate(dev gpu.Device, width, height int) {
	if p.data.Downsample != nil {
		p.release(dev)
	}
	hw, hh := max(1, width/2), max(1, height/2)
	mips := BloomMipCount(hw, hh)
	desc := gpu.TextureDesc{Kind: gpu.Texture2D, Format: gpu.FormatRGBA16F, Width: hw, Height: hh, Depth: 1, Mips: mips}

	desc.Label = "bloom.downsample"
	p.data.Downsample = dev.NewTexture(desc)
	desc.Label = "bloom.upsample0"
	p.data.Upsample[0] = dev.NewTexture(desc)
	desc.Label = "bloom.upsample1"
	p.data.Upsample[1] = dev.NewTexture(desc)
	for i := 0; i < mips; i++ {
		p.uniforms = append(p.uniforms, dev.NewBuffer("bloom.uniforms", gpu.SizeOf[metadata.BloomUniforms]()))
	}
	p.data.Mips = mips
	p.width, p.height = width, height
	core.LogDebug("bloom chain %dx%d with %d levels", hw, hh, mips)
}

func (p *BloomPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Ran = false
	if int(width) != p.width || int(height) != p.height {
		p.allocate(ctx.Device, int(width), int(height))
	}
}

func (p *BloomPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	if !p.settings.Enabled {
		return
	}
	defer p.timer.Scoped()()

	dev := ctx.Device
	d := &p.data
	for i, b := range p.uniforms {
		u := metadata.BloomUniforms{
			Curve:     BloomCurve(p.settings.Threshold, p.settings.Knee),
			Radius:    p.settings.Radius,
			Intensity: p.settings.Intensity,
			Mip:       uint32(i + 1),
		}
		gpu.WriteStruct(b, 0, &u)
	}

	level := func(mip int) (int, int) {
		w, h := d.Downsample.Desc().MipSize(mip)
		return groups(uint32(w), shaders.GroupSize), groups(uint32(h), shaders.GroupSize)
	}

	gx, gy := level(0)
	dev.Dispatch(p.karis, gx, gy, 1,
		gpu.Uniform(0, p.uniforms[0]),
		gpu.ImageRead(0, ctx.Global.LightingBuffer, 0),
		gpu.ImageWrite(1, d.Downsample, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	for mip := 1; mip < d.Mips; mip++ {
		gx, gy := level(mip)
		dev.Dispatch(p.down, gx, gy, 1,
			gpu.Uniform(0, p.uniforms[mip]),
			gpu.ImageRead(0, d.Downsample, mip-1),
			gpu.ImageWrite(1, d.Downsample, mip),
		)
		dev.MemoryBarrier(gpu.BarrierImageAccess)
	}

	last := d.Mips - 1
	gx, gy = level(last)
	dev.Dispatch(p.blit, gx, gy, 1,
		gpu.ImageRead(0, d.Downsample, last),
		gpu.ImageWrite(1, d.Upsample[0], last),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	// Each level blends the downsample with the coarser result, alternating
	// between the two upsample textures.
	src := 0
	for mip := last - 1; mip >= 0; mip-- {
		dst := 1 - src
		gx, gy := level(mip)
		dev.Dispatch(p.upsample, gx, gy, 1,
			gpu.Uniform(0, p.uniforms[mip]),
			gpu.Sampler(0, d.Upsample[src]),
			gpu.ImageRead(0, d.Downsample, mip),
			gpu.ImageWrite(1, d.Upsample[dst], mip),
		)
		dev.MemoryBarrier(gpu.BarrierImageAccess)
		src = dst
	}
	d.Result = d.Upsample[src]
	d.Ran = true
}

func (p *BloomPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *BloomPass) OnShutdown(ctx *metadata.RendererContext) {
	p.release(ctx.Device)
}
