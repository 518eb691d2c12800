package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const MaxAtmospheres = 8

type atmosphereSlot struct {
	params    metadata.Atmosphere
	submitted bool
	dirty     bool
}

type SkyAtmosphereDataBlock struct {
	PassStats

	/** @brief Parameters of every slot, indexed by handle. */
	ParamsBuffer gpu.Buffer
	/** @brief Look-up tables with one array layer per slot. */
	Transmittance gpu.Texture
	MultiScat     gpu.Texture
	SkyView       gpu.Texture

	/** @brief Handles whose look-up tables were recomputed this frame. */
	Updated []metadata.RendererDataHandle
	/** @brief The atmosphere drawn behind the scene, or InvalidHandle. */
	Active   metadata.RendererDataHandle
	FastMode bool
}

// WasUpdated reports whether the handle's tables were recomputed this frame.
func (d *SkyAtmosphereDataBlock) WasUpdated(handle metadata.RendererDataHandle) bool {
	for _, h := range d.Updated {
		if h == handle {
			return true
		}
	}
	return false
}

// SkyAtmospherePass owns up to MaxAtmospheres atmospheres and recomputes
// their look-up tables only when their parameters change.
type SkyAtmospherePass struct {
	data     SkyAtmosphereDataBlock
	settings config.AtmosphereSettings
	pending  settingsQueue[config.AtmosphereSettings]
	timer    *timers.AsyncTimer
	capacity int

	pool  *containers.HandlePool[metadata.RendererDataHandle]
	slots [MaxAtmospheres]atmosphereSlot

	uniforms      gpu.Buffer
	transmittance gpu.Program
	multiScat     gpu.Program
	skyView       gpu.Program
	// Image based lighting samples the sky view table, so it is kept up to
	// date even when the sky itself is ray marched.
	skyViewRequired bool
}

func NewSkyAtmospherePass(settings *config.Settings) *SkyAtmospherePass {
	s := settingsOrDefault(settings)
	return &SkyAtmospherePass{
		settings: s.Atmosphere,
		capacity: timerCapacity(s),
		pool:     containers.NewHandlePool[metadata.RendererDataHandle](MaxAtmospheres),
		data:     SkyAtmosphereDataBlock{Active: metadata.InvalidHandle},
	}
}

func (p *SkyAtmospherePass) Name() string                        { return "SkyAtmospherePass" }
func (p *SkyAtmospherePass) Dependencies() []metadata.RenderPass { return nil }
func (p *SkyAtmospherePass) DataBlock() any                      { return &p.data }
func (p *SkyAtmospherePass) Data() *SkyAtmosphereDataBlock       { return &p.data }

func (p *SkyAtmospherePass) QueueSettings(s *config.Settings) {
	p.pending.push(s.Atmosphere)
}

func (p *SkyAtmospherePass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.transmittance = ps.get("hillaire_transmittance")
	p.multiScat = ps.get("hillaire_multiscat")
	p.skyView = ps.get("hillaire_skyview")
	if ps.err != nil {
		return ps.err
	}
	lut := func(label string, w, h int) gpu.Texture {
		return ctx.Device.NewTexture(gpu.TextureDesc{
			Label:  label,
			Kind:   gpu.Texture2DArray,
			Format: gpu.FormatRGBA16F,
			Width:  w,
			Height: h,
			Depth:  MaxAtmospheres,
		})
	}
	p.data.Transmittance = lut("atmosphere.transmittance", shaders.TransmittanceWidth, shaders.TransmittanceHeight)
	p.data.MultiScat = lut("atmosphere.multiscat", shaders.MultiScatSize, shaders.MultiScatSize)
	p.data.SkyView = lut("atmosphere.skyview", shaders.SkyViewWidth, shaders.SkyViewHeight)
	p.data.ParamsBuffer = ctx.Device.NewBuffer("atmosphere.params", MaxAtmospheres*gpu.SizeOf[metadata.Atmosphere]())
	p.uniforms = ctx.Device.NewBuffer("atmosphere.uniforms", gpu.SizeOf[metadata.AtmosphereUniforms]())
	p.data.FastMode = p.settings.FastMode
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *SkyAtmospherePass) UpdatePassData() {
	s, ok := p.pending.pop()
	if !ok {
		return
	}
	p.settings = s
	if s.FastMode != p.data.FastMode {
		p.data.FastMode = s.FastMode
		// Switching to fast mode needs sky view tables for every atmosphere.
		for _, h := range p.pool.Active() {
			p.slots[h].dirty = p.slots[h].submitted
		}
	}
}

func (p *SkyAtmospherePass) RequestRendererData() metadata.RendererDataHandle {
	h := p.pool.Request()
	if !h.Valid() {
		core.LogWarn("no free atmosphere slot, %d in use", MaxAtmospheres)
		return h
	}
	p.slots[h] = atmosphereSlot{}
	return h
}

func (p *SkyAtmospherePass) DeleteRendererData(handle *metadata.RendererDataHandle) {
	h := *handle
	if p.pool.IsActive(h) {
		p.pool.Release(h)
		p.slots[h] = atmosphereSlot{}
		if p.data.Active == h {
			p.data.Active = metadata.InvalidHandle
		}
	}
	*handle = metadata.InvalidHandle
}

// SetActive selects the atmosphere drawn behind the scene.
func (p *SkyAtmospherePass) SetActive(handle metadata.RendererDataHandle) {
	if !p.pool.IsActive(handle) {
		handle = metadata.InvalidHandle
	}
	p.data.Active = handle
}

// Submit stores params for handle. The slot is marked dirty only when the
// parameters differ from the stored ones; the tables are recomputed in
// OnRender.
func (p *SkyAtmospherePass) Submit(params metadata.Atmosphere, handle metadata.RendererDataHandle) {
	if !p.pool.IsActive(handle) {
		return
	}
	s := &p.slots[handle]
	if s.submitted && s.params == params {
		return
	}
	s.params = params
	s.submitted = true
	s.dirty = true
}

// IsDirty reports whether handle will be recomputed by the next OnRender.
func (p *SkyAtmospherePass) IsDirty(handle metadata.RendererDataHandle) bool {
	return p.pool.IsActive(handle) && p.slots[handle].dirty
}

// Params returns the parameters last submitted for handle.
func (p *SkyAtmospherePass) Params(handle metadata.RendererDataHandle) (metadata.Atmosphere, bool) {
	if !p.pool.IsActive(handle) || !p.slots[handle].submitted {
		return metadata.Atmosphere{}, false
	}
	return p.slots[handle].params, true
}

func (p *SkyAtmospherePass) requireSkyView() {
	p.skyViewRequired = true
}

func (p *SkyAtmospherePass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Updated = p.data.Updated[:0]
}

func (p *SkyAtmospherePass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)

	u := metadata.AtmosphereUniforms{}
	for i := range u.Slots {
		u.Slots[i] = -1
	}
	for _, h := range p.pool.Active() {
		if !p.slots[h].dirty {
			continue
		}
		u.Slots[u.Count] = int32(h)
		u.Count++
		p.slots[h].dirty = false
		p.data.Updated = append(p.data.Updated, h)
	}
	if u.Count == 0 {
		return
	}
	defer p.timer.Scoped()()

	params := make([]metadata.Atmosphere, MaxAtmospheres)
	for i := range p.slots {
		params[i] = p.slots[i].params
	}
	gpu.WriteSlice(p.data.ParamsBuffer, 0, params)
	if p.data.FastMode {
		u.Fast = 1
	}
	gpu.WriteStruct(p.uniforms, 0, &u)

	dev := ctx.Device
	n := int(u.Count)
	common := []gpu.Binding{gpu.Uniform(1, p.uniforms), gpu.StorageRead(0, p.data.ParamsBuffer)}
	with := func(extra ...gpu.Binding) []gpu.Binding {
		return append(append([]gpu.Binding(nil), common...), extra...)
	}

	dev.Dispatch(p.transmittance,
		groups(shaders.TransmittanceWidth, shaders.GroupSize), groups(shaders.TransmittanceHeight, shaders.GroupSize), n,
		with(gpu.ImageWrite(0, p.data.Transmittance, 0))...)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	dev.Dispatch(p.multiScat,
		groups(shaders.MultiScatSize, shaders.GroupSize), groups(shaders.MultiScatSize, shaders.GroupSize), n,
		with(gpu.Sampler(0, p.data.Transmittance), gpu.ImageWrite(0, p.data.MultiScat, 0))...)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	if p.data.FastMode || p.skyViewRequired {
		dev.Dispatch(p.skyView,
			groups(shaders.SkyViewWidth, shaders.GroupSize), groups(shaders.SkyViewHeight, shaders.GroupSize), n,
			with(gpu.Sampler(0, p.data.Transmittance), gpu.Sampler(1, p.data.MultiScat), gpu.ImageWrite(0, p.data.SkyView, 0))...)
		dev.MemoryBarrier(gpu.BarrierImageAccess)
	}
}

func (p *SkyAtmospherePass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *SkyAtmospherePass) OnShutdown(ctx *metadata.RendererContext) {
	for _, r := range []gpu.Resource{
		p.data.Transmittance, p.data.MultiScat, p.data.SkyView,
		p.data.ParamsBuffer, p.uniforms,
	} {
		ctx.Device.Destroy(r)
	}
}
