package passes

import (
	stdmath "math"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

const (
	MaxPointLights = 1024
	MaxSpotLights  = 1024
	MaxRectLights  = 64

	MaxPointLightsPerTile = 256
	MaxSpotLightsPerTile  = 256
	MaxRectLightsPerTile  = 64
)

type LightKind int

const (
	PointLights LightKind = iota
	SpotLights
	RectLights
)

func (k LightKind) String() string {
	switch k {
	case PointLights:
		return "point"
	case SpotLights:
		return "spot"
	case RectLights:
		return "rect"
	default:
		return "unknown"
	}
}

// perTile is the compacted list capacity of one tile.
func (k LightKind) perTile() int {
	switch k {
	case SpotLights:
		return MaxSpotLightsPerTile
	case RectLights:
		return MaxRectLightsPerTile
	default:
		return MaxPointLightsPerTile
	}
}

// lightList is the submitted lights of one type and the buffers they are
// uploaded to and culled into.
type lightList[T any] struct {
	kind    LightKind
	limit   int
	lights  []T
	buffer  gpu.Buffer
	lists   gpu.Buffer
	program gpu.Program
	dropped bool
}

func (l *lightList[T]) reset() {
	l.lights = l.lights[:0]
	l.dropped = false
}

func (l *lightList[T]) push(light T) {
	if len(l.lights) >= l.limit {
		if !l.dropped {
			l.dropped = true
			core.LogDebug("%s light capacity %d reached, dropping submissions", l.kind, l.limit)
		}
		return
	}
	l.lights = append(l.lights, light)
}

func (l *lightList[T]) allocate(dev gpu.Device) {
	l.buffer = dev.NewBuffer(l.kind.String()+"_lights", l.limit*gpu.SizeOf[T]())
	l.lists = dev.NewBuffer(l.kind.String()+"_light_lists", 0)
}

type LightCullingDataBlock struct {
	PassStats

	TileSize uint32
	TilesX   uint32
	TilesY   uint32

	/** @brief Tile frustums written by the first dispatch of the pass. */
	Tiles         gpu.Buffer
	Uniforms      metadata.CullingUniforms
	UniformBuffer gpu.Buffer

	PointLights []metadata.PointLight
	SpotLights  []metadata.SpotLight
	RectLights  []metadata.RectAreaLight

	PointLightBuffer gpu.Buffer
	SpotLightBuffer  gpu.Buffer
	RectLightBuffer  gpu.Buffer

	/** @brief Per-tile lists laid out as [count, indices...] with a stride of capacity + 1. */
	PointLightLists gpu.Buffer
	SpotLightLists  gpu.Buffer
	RectLightLists  gpu.Buffer
}

func (d *LightCullingDataBlock) TotalLights() int {
	return len(d.PointLights) + len(d.SpotLights) + len(d.RectLights)
}

// Buffers returns the lights and tile lists of one light type.
func (d *LightCullingDataBlock) Buffers(kind LightKind) (lights, lists gpu.Buffer) {
	switch kind {
	case SpotLights:
		return d.SpotLightBuffer, d.SpotLightLists
	case RectLights:
		return d.RectLightBuffer, d.RectLightLists
	default:
		return d.PointLightBuffer, d.PointLightLists
	}
}

type LightCullingPass struct {
	metadata.NoRendererData

	data     LightCullingDataBlock
	settings config.CullingSettings
	pending  settingsQueue[config.CullingSettings]
	timer    *timers.AsyncTimer
	capacity int
	geometry *GeometryPass

	frustums gpu.Program
	point    lightList[metadata.PointLight]
	spot     lightList[metadata.SpotLight]
	rect     lightList[metadata.RectAreaLight]
}

func NewLightCullingPass(settings *config.Settings, geometry *GeometryPass) *LightCullingPass {
	s := settingsOrDefault(settings)
	return &LightCullingPass{
		settings: s.Culling,
		capacity: timerCapacity(s),
		geometry: geometry,
		point:    lightList[metadata.PointLight]{kind: PointLights, limit: MaxPointLights},
		spot:     lightList[metadata.SpotLight]{kind: SpotLights, limit: MaxSpotLights},
		rect:     lightList[metadata.RectAreaLight]{kind: RectLights, limit: MaxRectLights},
	}
}

func (p *LightCullingPass) Name() string { return "LightCullingPass" }

func (p *LightCullingPass) Dependencies() []metadata.RenderPass {
	if p.geometry == nil {
		return nil
	}
	return []metadata.RenderPass{p.geometry}
}

func (p *LightCullingPass) DataBlock() any               { return &p.data }
func (p *LightCullingPass) Data() *LightCullingDataBlock { return &p.data }

func (p *LightCullingPass) QueueSettings(s *config.Settings) {
	p.pending.push(s.Culling)
}

func (p *LightCullingPass) OnInit(ctx *metadata.RendererContext) error {
	ps := programSet{cache: ctx.Shaders}
	p.frustums = ps.get("tiled_frustums_aabbs")
	p.point.program = ps.get("tiled_point_light_culling")
	p.spot.program = ps.get("tiled_spot_light_culling")
	p.rect.program = ps.get("tiled_rect_light_culling")
	if ps.err != nil {
		return ps.err
	}
	p.point.allocate(ctx.Device)
	p.spot.allocate(ctx.Device)
	p.rect.allocate(ctx.Device)
	p.data.PointLightBuffer, p.data.PointLightLists = p.point.buffer, p.point.lists
	p.data.SpotLightBuffer, p.data.SpotLightLists = p.spot.buffer, p.spot.lists
	p.data.RectLightBuffer, p.data.RectLightLists = p.rect.buffer, p.rect.lists
	p.data.Tiles = ctx.Device.NewBuffer("light_tiles", 0)
	p.data.UniformBuffer = ctx.Device.NewBuffer("light_culling.uniforms", gpu.SizeOf[metadata.CullingUniforms]())
	p.data.TileSize = p.settings.TileSize
	p.timer = timers.NewAsyncTimer(ctx.Device, p.capacity)
	return nil
}

func (p *LightCullingPass) UpdatePassData() {
	if s, ok := p.pending.pop(); ok && s.TileSize > 0 {
		p.settings = s
	}
}

func (p *LightCullingPass) OnRendererBegin(ctx *metadata.RendererContext, width, height uint32) {
	p.point.reset()
	p.spot.reset()
	p.rect.reset()

	p.data.TileSize = p.settings.TileSize
	p.data.TilesX = math.CeilDiv(width, p.data.TileSize)
	p.data.TilesY = math.CeilDiv(height, p.data.TileSize)
	tiles := int(p.data.TilesX * p.data.TilesY)
	gpu.EnsureSize(p.data.Tiles, tiles*gpu.SizeOf[metadata.TileFrustum]())
	gpu.EnsureSize(p.point.lists, tiles*(MaxPointLightsPerTile+1)*4)
	gpu.EnsureSize(p.spot.lists, tiles*(MaxSpotLightsPerTile+1)*4)
	gpu.EnsureSize(p.rect.lists, tiles*(MaxRectLightsPerTile+1)*4)
}

// SubmitPointLight places a point light at the transform's origin.
func (p *LightCullingPass) SubmitPointLight(light metadata.PointLight, transform math.Mat4) {
	pos := math.TransformPoint(transform, math.Vec3{})
	light.PositionRadius = pos.Vec4(light.PositionRadius[3])
	p.point.push(light)
}

// SubmitSpotLight places a spot light at the transform's origin, pointing
// down the transformed -Y axis.
func (p *LightCullingPass) SubmitSpotLight(light metadata.SpotLight, transform math.Mat4) {
	pos := math.TransformPoint(transform, math.Vec3{})
	dir := math.InverseTranspose(transform).Mul3x1(math.Vec3{0, -1, 0})
	if dir.Len() > 0 {
		dir = dir.Normalize()
	}
	rangeDistance := light.PositionRange[3]
	light.PositionRange = pos.Vec4(rangeDistance)
	light.Direction = dir.Vec4(0)
	center, radius := SpotLightBoundingSphere(pos, dir, rangeDistance, light.CutOffs[1])
	light.CullingSphere = center.Vec4(radius)
	p.spot.push(light)
}

// SubmitRectLight transforms the corners to world space. A rect light
// submitted with cull false is added to every tile.
func (p *LightCullingPass) SubmitRectLight(light metadata.RectAreaLight, transform math.Mat4, twoSided bool, radius float32, cull bool) {
	for i := range light.Points {
		light.Points[i] = math.TransformPoint(transform, light.Points[i].Vec3()).Vec4(0)
	}
	if twoSided {
		light.Points[0][3] = 1
	}
	light.Points[1][3] = radius
	if cull {
		light.Points[3][3] = 1
	}
	p.rect.push(light)
}

// SpotLightBoundingSphere bounds a spot light cone. Wide cones (half-angle
// above 45 degrees) are bounded by the sphere through the cap rim centered
// on the cap plane; narrow cones by the sphere through the apex and the rim.
// Both give a radius of range/sqrt(2) at 45 degrees.
func SpotLightBoundingSphere(position, direction math.Vec3, rangeDistance, cosOuter float32) (math.Vec3, float32) {
	angle := stdmath.Acos(float64(math.Clamp(cosOuter, -1, 1)))
	if angle > stdmath.Pi/4 {
		center := position.Add(direction.Mul(cosOuter * rangeDistance))
		return center, float32(stdmath.Sin(angle)) * rangeDistance
	}
	r := rangeDistance / (2 * cosOuter)
	return position.Add(direction.Mul(r)), r
}

func (p *LightCullingPass) OnRender(ctx *metadata.RendererContext) {
	p.timer.MsRecordTime(&p.data.FrameTimeMs)
	p.data.PointLights = p.point.lights
	p.data.SpotLights = p.spot.lights
	p.data.RectLights = p.rect.lights
	if p.data.TotalLights() == 0 {
		p.data.Uniforms = metadata.CullingUniforms{}
		return
	}
	defer p.timer.Scoped()()

	p.data.Uniforms = metadata.CullingUniforms{
		TileSize:       p.data.TileSize,
		TilesX:         p.data.TilesX,
		TilesY:         p.data.TilesY,
		NumPointLights: uint32(len(p.point.lights)),
		NumSpotLights:  uint32(len(p.spot.lights)),
		NumRectLights:  uint32(len(p.rect.lights)),
		MaxPerTile:     [3]uint32{MaxPointLightsPerTile, MaxSpotLightsPerTile, MaxRectLightsPerTile},
	}
	gpu.WriteStruct(p.data.UniformBuffer, 0, &p.data.Uniforms)
	gpu.WriteSlice(p.point.buffer, 0, p.point.lights)
	gpu.WriteSlice(p.spot.buffer, 0, p.spot.lights)
	gpu.WriteSlice(p.rect.buffer, 0, p.rect.lights)

	dev := ctx.Device
	camera := gpu.Uniform(0, ctx.Global.CameraBuffer)
	params := gpu.Uniform(1, p.data.UniformBuffer)
	tx, ty := int(p.data.TilesX), int(p.data.TilesY)

	bindings := []gpu.Binding{camera, params, gpu.StorageWrite(0, p.data.Tiles)}
	if p.geometry != nil {
		bindings = append(bindings, gpu.Sampler(0, p.geometry.Data().GBuffer.Attachment(gpu.AttachmentDepth)))
	}
	dev.Dispatch(p.frustums, tx, ty, 1, bindings...)
	dev.MemoryBarrier(gpu.BarrierStorageBuffer)

	tiles := gpu.StorageRead(0, p.data.Tiles)
	cull := func(count int, program gpu.Program, lights, lists gpu.Buffer) {
		if count == 0 {
			return
		}
		dev.Dispatch(program, tx, ty, 1, camera, params, tiles,
			gpu.StorageRead(1, lights), gpu.StorageWrite(2, lists))
		dev.MemoryBarrier(gpu.BarrierStorageBuffer)
	}
	cull(len(p.point.lights), p.point.program, p.point.buffer, p.point.lists)
	cull(len(p.spot.lights), p.spot.program, p.spot.buffer, p.spot.lists)
	cull(len(p.rect.lights), p.rect.program, p.rect.buffer, p.rect.lists)
}

// TileLights reads back the light indices culled into tile (x, y) this
// frame.
func (p *LightCullingPass) TileLights(kind LightKind, x, y int) []int32 {
	if x < 0 || y < 0 || x >= int(p.data.TilesX) || y >= int(p.data.TilesY) {
		return nil
	}
	counts := [3]int{len(p.point.lights), len(p.spot.lights), len(p.rect.lights)}
	if counts[kind] == 0 {
		return nil
	}
	_, lists := p.data.Buffers(kind)
	stride := kind.perTile() + 1
	all := gpu.View[int32](lists.Bytes())
	idx := y*int(p.data.TilesX) + x
	list := all[idx*stride : (idx+1)*stride]
	n := min(int(list[0]), kind.perTile())
	return append([]int32(nil), list[1:1+n]...)
}

func (p *LightCullingPass) OnRendererEnd(ctx *metadata.RendererContext, target gpu.Framebuffer) {}

func (p *LightCullingPass) OnShutdown(ctx *metadata.RendererContext) {
	for _, b := range []gpu.Buffer{
		p.point.buffer, p.point.lists,
		p.spot.buffer, p.spot.lists,
		p.rect.buffer, p.rect.lists,
		p.data.Tiles, p.data.UniformBuffer,
	} {
		ctx.Device.Destroy(b)
	}
}
