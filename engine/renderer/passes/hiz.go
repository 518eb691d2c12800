package passes

import (
	"math/bits"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

type HiZDataBlock struct {
	PassStats

	/** @brief Full resolution depth with a max-reduced mip chain down to 1x1. */
	HierarchicalDepth gpu.Texture
	Mips              int
}

// HiZMipCount returns the length of a mip chain ending at one texel.
func HiZMipCount(width, height int) int {
	return max(1, bits.Len(uint(max(width, height))))
}

// HiZPass builds a depth pyramid from the geometry buffer.
type HiZPass struct {
	metadata.NoRendererData

	data     HiZDataBlock
	timer    *timers.AsyncTimer
	capacity int

	copyProgram   gpu.Program
	reduceProgram gpu.Program

	width, height int

	geometry *GeometryPass
}

func NewHiZPass(settings *config.Settings, geometry *GeometryPass) *HiZPass {
	return &HiZPass{
		capacity: timerCapacity(settings),
		geometry: geometry,
	}
}

func (p *HiZPass) Name() string                        { return "HiZPass" }
func (p *HiZPass) Dependencies() []metadata.RenderPass { return []metadata.RenderPass{p.geometry} }
func (p *HiZPass) DataBlock() any                      { return &p.data }
func (p *HiZPass) Data() *HiZDataBlock                 { return &p.data }

func (p *HiZPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.copyProgram = ps.get("copy_depth_hi_z")
	p.reduceProgram = ps.get("generate_hi_z")
	if ps.err != nil {
		return ps.err
	}
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	w, h := p.geometry.Data().GBuffer.Size()
	p.allocate(ctx.Device, w, h)
	return nil
}

// allocate recreates the pyramid, since its mip count follows the size.
func (p *HiZPass) allocate(dev gpu.Device, width, height int) {
	if p.data.HierarchicalDepth != nil {
		dev.Destroy(p.data.HierarchicalDepth)
	}
	p.data.Mips = HiZMipCount(width, height)
	p.data.HierarchicalDepth = dev.NewTexture(gpu.TextureDesc{
		Label:  "hi_z",
		Kind:   gpu.Texture2D,
		Format: gpu.FormatR32F,
		Width:  width,
		Height: height,
		Depth:  1,
		Mips:   p.data.Mips,
	})
	p.width, p.height = width, height
	core.LogDebug("hi-z pyramid %dx%d with %d levels", width, height, p.data.Mips)
}

func (p *HiZPass) UpdatePassData() {}

func (p *HiZPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	if int(width) != p.width || int(height) != p.height {
		p.allocate(ctx.Device, int(width), int(height))
	}
}

func (p *HiZPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	defer p.timer.Scoped()()

	dev := ctx.Device
	hiz := p.data.HierarchicalDepth
	level := func(mip int) (int, int) {
		w, h := hiz.Desc().MipSize(mip)
		return groups(uint32(w), shaders.GroupSize), groups(uint32(h), shaders.GroupSize)
	}

	gx, gy := level(0)
	dev.Dispatch(p.copyProgram, gx, gy, 1,
		gpu.Sampler(0, p.geometry.Data().GBuffer.Attachment(gpu.AttachmentDepth)),
		gpu.ImageWrite(0, hiz, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	for mip := 1; mip < p.data.Mips; mip++ {
		gx, gy := level(mip)
		dev.Dispatch(p.reduceProgram, gx, gy, 1,
			gpu.ImageWrite(0, hiz, mip),
			gpu.ImageRead(1, hiz, mip-1),
		)
		dev.MemoryBarrier(gpu.BarrierImageAccess)
	}
}

func (p *HiZPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *HiZPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.data.HierarchicalDepth)
}
