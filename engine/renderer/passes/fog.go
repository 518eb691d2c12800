package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const MaxFogVolumes = 128

// FogVolumeDesc describes the medium of an oriented fog box. The box spans
// [-1, 1] on every axis of its transform.
type FogVolumeDesc struct {
	Phase         float32
	Density       float32
	Absorption    float32
	MieScattering math.Vec3
	Emission      math.Vec3
}

type VolumetricFogDataBlock struct {
	PassStats

	GridSize [3]uint32

	ScatteringExtinction gpu.Texture
	EmissionPhase        gpu.Texture
	LightExtinction      gpu.Texture
	/** @brief Resolved froxels. Each frame reads one and writes the other. */
	History     [2]gpu.Texture
	FinalGather gpu.Texture

	/** @brief Index of the history written by the next resolve. */
	Current int
	/** @brief History indices read and written by the last resolve, or -1. */
	LastRead    int
	LastWritten int
	/** @brief Number of resolves performed so far. */
	Resolves uint32

	Volumes []metadata.OBBFogVolume
	Ran     bool
}

type VolumetricFogPass struct {
	metadata.NoRendererData

	data     VolumetricFogDataBlock
	settings config.FogSettings
	pending  settingsQueue[config.FogSettings]
	timer    *timers.AsyncTimer
	capacity int
	dropped  bool

	populate gpu.Program
	light    gpu.Program
	resolve  gpu.Program
	gather   gpu.Program
	apply    gpu.Program

	uniforms gpu.Buffer
	volumes  gpu.Buffer

	geometry *GeometryPass
	shadow   *ShadowPass
	previous metadata.RenderPass
}

func NewVolumetricFogPass(settings *config.Settings, geometry *GeometryPass, shadow *ShadowPass, previous metadata.RenderPass) *VolumetricFogPass {
	s := settingsOrDefault(settings)
	return &VolumetricFogPass{
		settings: s.Fog,
		capacity: timerCapacity(s),
		geometry: geometry,
		shadow:   shadow,
		previous: previous,
		data:     VolumetricFogDataBlock{LastRead: -1, LastWritten: -1},
	}
}

func (p *VolumetricFogPass) Name() string { return "VolumetricFogPass" }

func (p *VolumetricFogPass) Dependencies() []metadata.RenderPass {
	deps := []metadata.RenderPass{p.geometry, p.shadow}
	if p.previous != nil {
		deps = append(deps, p.previous)
	}
	return deps
}

func (p *VolumetricFogPass) DataBlock() any                { return &p.data }
func (p *VolumetricFogPass) Data() *VolumetricFogDataBlock { return &p.data }

func (p *VolumetricFogPass) QueueSettings(s *config.Settings) {
	p.pending.push(s.Fog)
}

func (p *VolumetricFogPass) froxelTexture(dev gpu.Device, label string) gpu.Texture {
	return dev.NewTexture(gpu.TextureDesc{
		Label:  label,
		Kind:   gpu.Texture3D,
		Format: gpu.FormatRGBA16F,
		Width:  int(p.data.GridSize[0]),
		Height: int(p.data.GridSize[1]),
		Depth:  int(p.data.GridSize[2]),
	})
}

func (p *VolumetricFogPass) textures() []gpu.Texture {
	return []gpu.Texture{
		p.data.ScatteringExtinction, p.data.EmissionPhase, p.data.LightExtinction,
		p.data.History[0], p.data.History[1], p.data.FinalGather,
	}
}

func (p *VolumetricFogPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.populate = ps.get("populate_froxels")
	p.light = ps.get("light_froxels")
	p.resolve = ps.get("temporal_resolve_froxels")
	p.gather = ps.get("gather_froxels")
	p.apply = ps.get("apply_froxels")
	if ps.err != nil {
		return ps.err
	}
	p.data.GridSize = [3]uint32{1, 1, max(p.settings.Slices, 1)}
	dev := ctx.Device
	p.data.ScatteringExtinction = p.froxelTexture(dev, "fog.scattering_extinction")
	p.data.EmissionPhase = p.froxelTexture(dev, "fog.emission_phase")
	p.data.LightExtinction = p.froxelTexture(dev, "fog.light_extinction")
	p.data.History[0] = p.froxelTexture(dev, "fog.history0")
	p.data.History[1] = p.froxelTexture(dev, "fog.history1")
	p.data.FinalGather = p.froxelTexture(dev, "fog.final_gather")
	p.uniforms = dev.NewBuffer("fog.uniforms", gpu.SizeOf[metadata.FogUniforms]())
	p.volumes = dev.NewBuffer("fog.volumes", MaxFogVolumes*gpu.SizeOf[metadata.OBBFogVolume]())
	p.timer = timers.NewAsyncTimer(dev, p.capacity)
	return nil
}

func (p *VolumetricFogPass) UpdatePassData() {
	if s, ok := p.pending.pop(); ok && s.Slices > 0 {
		p.settings = s
	}
}

// resize matches the froxel grid to the viewport. The history is discarded
// when the grid changes.
func (p *VolumetricFogPass) resize(width, height uint32) {
	grid := [3]uint32{
		math.CeilDiv(width, shaders.FroxelSize),
		math.CeilDiv(height, shaders.FroxelSize),
		max(p.settings.Slices, 1),
	}
	if grid == p.data.GridSize {
		return
	}
	p.data.GridSize = grid
	for _, t := range p.textures() {
		t.Resize(int(grid[0]), int(grid[1]), int(grid[2]))
	}
	p.data.Resolves = 0
	core.LogDebug("froxel grid %dx%dx%d", grid[0], grid[1], grid[2])
}

func (p *VolumetricFogPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.data.Volumes = p.data.Volumes[:0]
	p.data.Ran = false
	p.dropped = false
	p.resize(width, height)
}

// Submit adds a fog box placed by transform.
func (p *VolumetricFogPass) Submit(desc FogVolumeDesc, transform math.Mat4) {
	if len(p.data.Volumes) >= MaxFogVolumes {
		if !p.dropped {
			p.dropped = true
			core.LogDebug("fog volume capacity %d reached, dropping submissions", MaxFogVolumes)
		}
		return
	}
	p.data.Volumes = append(p.data.Volumes, metadata.NewOBBFogVolume(
		desc.Phase, desc.Density, desc.Absorption, desc.MieScattering, desc.Emission, transform,
	))
}

func (p *VolumetricFogPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	shadow := p.shadow.Data()
	if !p.settings.Enabled || !shadow.HasPrimaryLight || len(p.data.Volumes) == 0 {
		return
	}
	defer p.timer.Scoped()()

	d := &p.data
	light := shadow.PrimaryLight
	u := metadata.FogUniforms{
		NumVolumes:     uint32(len(d.Volumes)),
		Slices:         d.GridSize[2],
		Steps:          p.settings.Steps,
		Frame:          d.Resolves,
		MiePhase:       p.settings.MiePhase,
		TemporalBlend:  p.settings.TemporalBlend,
		GridSize:       [4]uint32{d.GridSize[0], d.GridSize[1], d.GridSize[2], 0},
		LightDirection: light.DirectionSize.Vec3().Vec4(0),
		LightColour:    light.ColourIntensity,
	}
	gpu.WriteStruct(p.uniforms, 0, &u)
	gpu.WriteSlice(p.volumes, 0, d.Volumes)

	dev := ctx.Device
	camera := gpu.Uniform(0, ctx.Global.CameraBuffer)
	params := gpu.Uniform(1, p.uniforms)
	gx, gy := groups(d.GridSize[0], shaders.GroupSize), groups(d.GridSize[1], shaders.GroupSize)
	slices := int(d.GridSize[2])

	dev.Dispatch(p.populate, gx, gy, slices, camera, params,
		gpu.StorageRead(0, p.volumes),
		gpu.ImageWrite(0, d.ScatteringExtinction, 0),
		gpu.ImageWrite(1, d.EmissionPhase, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	dev.Dispatch(p.light, gx, gy, slices, camera, params,
		gpu.Uniform(2, shadow.UniformBuffer),
		gpu.Sampler(4, shadow.ShadowMap),
		gpu.ImageRead(0, d.ScatteringExtinction, 0),
		gpu.ImageRead(1, d.EmissionPhase, 0),
		gpu.ImageWrite(2, d.LightExtinction, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	write, read := d.Current, 1-d.Current
	dev.Dispatch(p.resolve, gx, gy, slices, camera, params,
		gpu.ImageRead(2, d.LightExtinction, 0),
		gpu.Sampler(0, d.History[read]),
		gpu.ImageWrite(3, d.History[write], 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)
	d.LastRead, d.LastWritten = read, write

	dev.Dispatch(p.gather, gx, gy, 1, camera, params,
		gpu.ImageRead(3, d.History[write], 0),
		gpu.ImageWrite(4, d.FinalGather, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	sx, sy := screenGroups(ctx.Global)
	dev.Dispatch(p.apply, sx, sy, 1, camera, params,
		gpu.Sampler(0, d.FinalGather),
		gpu.Sampler(3, p.geometry.Data().GBuffer.Attachment(gpu.AttachmentDepth)),
		gpu.ImageReadWrite(0, ctx.Global.LightingBuffer, 0),
	)
	dev.MemoryBarrier(gpu.BarrierImageAccess)

	d.Current = read
	d.Resolves++
	d.Ran = true
}

func (p *VolumetricFogPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *VolumetricFogPass) OnShutdown(ctx *metadata.RendererContext) {
	for _, t := range p.textures() {
		ctx.Device.Destroy(t)
	}
	ctx.Device.Destroy(p.uniforms)
	ctx.Device.Destroy(p.volumes)
}
