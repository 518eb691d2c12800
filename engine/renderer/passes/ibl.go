package passes

import (
	stdmath "math"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const MaxIBLProbes = 8

type iblSlot struct {
	params    metadata.DynamicIBL
	submitted bool
	dirty     bool
}

type DynamicSkyIBLDataBlock struct {
	PassStats

	/** @brief SH9 irradiance, shaders.SHCoefficients vectors per probe. */
	IrradianceSH gpu.Buffer
	/** @brief Prefiltered radiance, six faces per probe, roughness by mip. */
	Radiance gpu.Texture

	Updated     []metadata.RendererDataHandle
	ActiveProbe metadata.RendererDataHandle
	Intensity   float32
}

// DynamicSkyIBLPass keeps diffuse and specular image based lighting of up
// to MaxIBLProbes probes in sync with the atmospheres they are attached to.
type DynamicSkyIBLPass struct {
	data     DynamicSkyIBLDataBlock
	settings config.IBLSettings
	pending  settingsQueue[config.IBLSettings]
	timer    *timers.AsyncTimer
	capacity int

	pool  *containers.HandlePool[metadata.RendererDataHandle]
	slots [MaxIBLProbes]iblSlot

	uniforms gpu.Buffer
	diffuse  gpu.Program
	specular gpu.Program

	atmosphere *SkyAtmospherePass
}

func NewDynamicSkyIBLPass(settings *config.Settings, atmosphere *SkyAtmospherePass) *DynamicSkyIBLPass {
	s := settingsOrDefault(settings)
	atmosphere.requireSkyView()
	return &DynamicSkyIBLPass{
		settings:   s.IBL,
		capacity:   timerCapacity(s),
		pool:       containers.NewHandlePool[metadata.RendererDataHandle](MaxIBLProbes),
		atmosphere: atmosphere,
		data:       DynamicSkyIBLDataBlock{ActiveProbe: metadata.InvalidHandle},
	}
}

func (p *DynamicSkyIBLPass) Name() string { return "DynamicSkyIBLPass" }

func (p *DynamicSkyIBLPass) Dependencies() []metadata.RenderPass {
	return []metadata.RenderPass{p.atmosphere}
}

func (p *DynamicSkyIBLPass) DataBlock() any                { return &p.data }
func (p *DynamicSkyIBLPass) Data() *DynamicSkyIBLDataBlock { return &p.data }

func (p *DynamicSkyIBLPass) QueueSettings(s *config.Settings) {
	p.pending.push(s.IBL)
}

func radianceMips(size uint32) int {
	return int(stdmath.Log2(float64(max(size, 1)))) + 1
}

func (p *DynamicSkyIBLPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.diffuse = ps.get("sky_lut_diffuse")
	p.specular = ps.get("sky_lut_specular")
	if ps.err != nil {
		return ps.err
	}
	size := max(p.settings.RadianceSize, 1)
	p.data.Radiance = ctx.Device.NewTexture(gpu.TextureDesc{
		Label:  "ibl.radiance",
		Kind:   gpu.TextureCubeArray,
		Format: gpu.FormatRGBA16F,
		Width:  int(size),
		Height: int(size),
		Depth:  6 * MaxIBLProbes,
		Mips:   radianceMips(size),
	})
	p.data.IrradianceSH = ctx.Device.NewBuffer("ibl.irradiance_sh", MaxIBLProbes*shaders.SHCoefficients*gpu.SizeOf[[4]float32]())
	p.uniforms = ctx.Device.NewBuffer("ibl.uniforms", gpu.SizeOf[metadata.IBLUniforms]())
	p.data.Intensity = p.settings.Intensity
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *DynamicSkyIBLPass) UpdatePassData() {
	s, ok := p.pending.pop()
	if !ok {
		return
	}
	resample := s.RadianceSamples != p.settings.RadianceSamples
	p.settings = s
	p.data.Intensity = s.Intensity
	if resample {
		for _, h := range p.pool.Active() {
			p.slots[h].dirty = p.slots[h].submitted
		}
	}
}

func (p *DynamicSkyIBLPass) RequestRendererData() metadata.RendererDataHandle {
	h := p.pool.Request()
	if !h.Valid() {
		core.LogWarn("no free IBL probe, %d in use", MaxIBLProbes)
		return h
	}
	p.slots[h] = iblSlot{}
	return h
}

func (p *DynamicSkyIBLPass) DeleteRendererData(handle *metadata.RendererDataHandle) {
	h := *handle
	if p.pool.IsActive(h) {
		p.pool.Release(h)
		p.slots[h] = iblSlot{}
		if p.data.ActiveProbe == h {
			p.data.ActiveProbe = metadata.InvalidHandle
		}
	}
	*handle = metadata.InvalidHandle
}

// SetActive selects the probe that lights the scene.
func (p *DynamicSkyIBLPass) SetActive(handle metadata.RendererDataHandle) {
	if !p.pool.IsActive(handle) {
		handle = metadata.InvalidHandle
	}
	p.data.ActiveProbe = handle
}

// Submit stores params for handle and marks it dirty when they changed or
// when skyUpdated reports that the attached atmosphere changed.
func (p *DynamicSkyIBLPass) Submit(params metadata.DynamicIBL, handle metadata.RendererDataHandle, skyUpdated bool) {
	if !p.pool.IsActive(handle) {
		return
	}
	s := &p.slots[handle]
	if s.submitted && s.params == params && !skyUpdated {
		return
	}
	s.params = params
	s.submitted = true
	s.dirty = true
}

func (p *DynamicSkyIBLPass) IsDirty(handle metadata.RendererDataHandle) bool {
	return p.pool.IsActive(handle) && p.slots[handle].dirty
}

func (p *DynamicSkyIBLPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Updated = p.data.Updated[:0]
}

func (p *DynamicSkyIBLPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	sky := p.atmosphere.Data()

	u := metadata.IBLUniforms{
		NumSamples:  p.settings.RadianceSamples,
		ActiveProbe: int32(p.data.ActiveProbe),
		Intensity:   p.data.Intensity,
	}
	for i := range u.Slots {
		u.Slots[i], u.AttachedSkys[i] = -1, -1
	}
	for _, h := range p.pool.Active() {
		s := &p.slots[h]
		if !s.submitted {
			continue
		}
		attached := s.params.AttachedSkyAtmoHandle
		if _, ok := p.atmosphere.Params(attached); !ok {
			continue
		}
		// A probe follows its sky: recomputed tables invalidate it.
		if !s.dirty && !sky.WasUpdated(attached) {
			continue
		}
		u.Slots[u.Count] = int32(h)
		u.AttachedSkys[u.Count] = int32(attached)
		u.Count++
		s.dirty = false
		p.data.Updated = append(p.data.Updated, h)
	}
	if u.Count == 0 {
		return
	}
	defer p.timer.Scoped()()
	gpu.WriteStruct(p.uniforms, 0, &u)

	dev := ctx.Device
	n := int(u.Count)
	dev.Dispatch(p.diffuse, 1, 1, n,
		gpu.Uniform(1, p.uniforms),
		gpu.StorageRead(0, sky.ParamsBuffer),
		gpu.Sampler(0, sky.SkyView),
		gpu.StorageWrite(1, p.data.IrradianceSH),
	)
	dev.MemoryBarrier(gpu.BarrierStorageBuffer)

	desc := p.data.Radiance.Desc()
	for mip := 0; mip < desc.Mips; mip++ {
		w, h := desc.MipSize(mip)
		dev.Dispatch(p.specular, groups(uint32(w), shaders.GroupSize), groups(uint32(h), shaders.GroupSize), 6*n,
			gpu.Uniform(1, p.uniforms),
			gpu.StorageRead(0, sky.ParamsBuffer),
			gpu.Sampler(0, sky.SkyView),
			gpu.ImageWrite(0, p.data.Radiance, mip),
		)
	}
	dev.MemoryBarrier(gpu.BarrierImageAccess)
}

func (p *DynamicSkyIBLPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *DynamicSkyIBLPass) OnShutdown(ctx *metadata.RendererContext) {
	ctx.Device.Destroy(p.data.Radiance)
	ctx.Device.Destroy(p.data.IrradianceSH)
	ctx.Device.Destroy(p.uniforms)
}
