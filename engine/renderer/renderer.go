package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// PassTiming is the last resolved GPU time of one pass.
type PassTiming struct {
	Name string
	Ms   float32
}

/** @brief Statistics gathered after the last rendered frame. */
type RendererStats struct {
	FrameNumber uint64
	Passes      []PassTiming
	TotalMs     float32

	Instances          int
	DrawCalls          int
	TrianglesSubmitted int
	TrianglesDrawn     int
	ShadowDrawCalls    int
}

/**
 * @brief Front end of the deferred pipeline. It owns the passes, drives
 * them through the render pass system and forwards scene submissions to
 * the pass that consumes them. Every call must come from the render thread
 * except ApplySettings.
 */
type Renderer struct {
	device   gpu.Device
	ctx      *metadata.RendererContext
	graph    *systems.RenderPassSystem
	settings *config.Settings

	Geometry    *passes.GeometryPass
	HiZ         *passes.HiZPass
	HBAO        *passes.HBAOPass
	Shadow      *passes.ShadowPass
	Culling     *passes.LightCullingPass
	Directional *passes.DirectionalLightPass
	Culled      *passes.CulledLightingPass
	Area        *passes.AreaLightPass
	Atmosphere  *passes.SkyAtmospherePass
	Skybox      *passes.SkyboxPass
	IBL         *passes.DynamicSkyIBLPass
	IBLApply    *passes.IBLApplicationPass
	Fog         *passes.VolumetricFogPass
	Bloom       *passes.BloomPass
	Post        *passes.PostProcessingPass

	stats RendererStats
}

func New(settings *config.Settings, dev gpu.Device) (*Renderer, error) {
	if settings == nil {
		settings = config.Default()
	}
	r := &Renderer{
		device:   dev,
		ctx:      metadata.NewRendererContext(dev),
		settings: settings,
	}
	r.ctx.Global.Resize(dev, settings.Window.Width, settings.Window.Height)

	r.Geometry = passes.NewGeometryPass(settings)
	r.HiZ = passes.NewHiZPass(settings, r.Geometry)
	r.HBAO = passes.NewHBAOPass(settings, r.Geometry, r.HiZ)
	r.Shadow = passes.NewShadowPass(settings)
	r.Culling = passes.NewLightCullingPass(settings, r.Geometry)
	r.Directional = passes.NewDirectionalLightPass(settings, r.Geometry, r.Shadow)
	r.Culled = passes.NewCulledLightingPass(settings, r.Geometry, r.Culling, r.Directional)
	r.Area = passes.NewAreaLightPass(settings, r.Geometry, r.Culling, r.Culled)
	r.Atmosphere = passes.NewSkyAtmospherePass(settings)
	r.Skybox = passes.NewSkyboxPass(settings, r.Atmosphere, r.Geometry, r.Area)
	r.IBL = passes.NewDynamicSkyIBLPass(settings, r.Atmosphere)
	r.IBLApply = passes.NewIBLApplicationPass(settings, r.IBL, r.Geometry, r.HBAO, r.Skybox)
	r.Fog = passes.NewVolumetricFogPass(settings, r.Geometry, r.Shadow, r.IBLApply)
	r.Bloom = passes.NewBloomPass(settings, r.Fog)
	r.Post = passes.NewPostProcessingPass(settings, r.Geometry, r.Bloom, r.Bloom)

	r.graph = systems.NewRenderPassSystem(r.ctx)
	if err := r.graph.Register(
		r.Geometry, r.HiZ, r.HBAO, r.Shadow, r.Culling, r.Directional, r.Culled, r.Area,
		r.Atmosphere, r.Skybox, r.IBL, r.IBLApply, r.Fog, r.Bloom, r.Post,
	); err != nil {
		return nil, fmt.Errorf("func New - %w", err)
	}
	if err := r.graph.Initialize(); err != nil {
		return nil, fmt.Errorf("func New - %w", err)
	}
	return r, nil
}

func (r *Renderer) Device() gpu.Device                 { return r.device }
func (r *Renderer) Context() *metadata.RendererContext { return r.ctx }
func (r *Renderer) Passes() *systems.RenderPassSystem  { return r.graph }
func (r *Renderer) Settings() *config.Settings         { return r.settings }
func (r *Renderer) Stats() RendererStats               { return r.stats }

// Output returns the tone mapped image of the last frame.
func (r *Renderer) Output() gpu.Framebuffer {
	return r.Post.Data().Output
}

/**
 * @brief Starts a frame seen through camera at width x height. Scene
 * submissions are accepted between Begin and End.
 */
func (r *Renderer) Begin(camera *components.Camera, width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("func Begin - empty viewport %dx%d", width, height)
	}
	g := r.ctx.Global
	if g.Width != width || g.Height != height {
		core.LogDebug("renderer resize %dx%d -> %dx%d", g.Width, g.Height, width, height)
		g.Resize(r.device, width, height)
	}
	camera.Aspect = float32(width) / float32(height)
	g.SetCamera(camera.GetView(), camera.GetProjection(), camera.GetPosition(), camera.Near, camera.Far)
	g.UploadCamera()
	g.LightingTarget.Clear()
	g.FrameNumber++
	return r.graph.RendererBegin(width, height)
}

/**
 * @brief Renders every pass and copies the result into target. A nil
 * target only produces Output.
 */
func (r *Renderer) End(target gpu.Framebuffer) error {
	if err := r.graph.Render(); err != nil {
		return err
	}
	if err := r.graph.RendererEnd(target); err != nil {
		return err
	}
	r.collectStats()
	return nil
}

// EndFrame retires the frame on the device so pending timer queries can
// resolve.
func (r *Renderer) EndFrame() {
	r.device.EndFrame()
}

func (r *Renderer) collectStats() {
	st := RendererStats{FrameNumber: r.ctx.Global.FrameNumber}
	for _, p := range r.graph.Order() {
		if t, ok := p.DataBlock().(passes.FrameTimer); ok {
			ms := t.FrameTime()
			st.Passes = append(st.Passes, PassTiming{Name: p.Name(), Ms: ms})
			st.TotalMs += ms
		}
	}
	geo := r.Geometry.Data()
	st.Instances = geo.NumInstances
	st.DrawCalls = geo.NumDrawCalls
	st.TrianglesSubmitted = geo.TrianglesSubmitted
	st.TrianglesDrawn = geo.TrianglesDrawn
	st.ShadowDrawCalls = r.Shadow.Data().NumDrawCalls
	r.stats = st
}

/**
 * @brief Queues new settings for every configurable pass. Safe to call
 * from the config watcher goroutine; the passes pick them up in the next
 * Begin.
 */
func (r *Renderer) ApplySettings(s *config.Settings) {
	if s == nil {
		return
	}
	for _, p := range r.graph.Passes() {
		if recv, ok := p.(passes.SettingsReceiver); ok {
			recv.QueueSettings(s)
		}
	}
	core.SetLogLevel(core.ParseLogLevel(s.Log.Level))
}

// SubmitMesh draws mesh with material and, when castShadows is set, into
// the shadow cascades.
func (r *Renderer) SubmitMesh(mesh *metadata.Mesh, material *metadata.Material, transform math.Mat4, entityID uint32, selected, castShadows bool) {
	r.Geometry.Submit(mesh, material, transform, entityID, selected)
	if castShadows {
		r.Shadow.Submit(mesh, transform)
	}
}

func (r *Renderer) SubmitSkinnedMesh(mesh *metadata.Mesh, material *metadata.Material, transform math.Mat4, bones []math.Mat4, entityID uint32, selected, castShadows bool) {
	r.Geometry.SubmitSkinned(mesh, material, transform, bones, entityID, selected)
	if castShadows {
		r.Shadow.SubmitSkinned(mesh, transform, bones)
	}
}

// SubmitPrimaryLight sets the sun of the frame. Only the primary light
// casts cascaded shadows and drives the volumetric fog.
func (r *Renderer) SubmitPrimaryLight(light metadata.DirectionalLight, castShadows bool, transform math.Mat4) {
	oriented := r.Directional.SubmitPrimary(light, castShadows, transform)
	if castShadows {
		r.Shadow.SubmitPrimaryLight(oriented)
	}
}

func (r *Renderer) SubmitDirectionalLight(light metadata.DirectionalLight, transform math.Mat4) {
	r.Directional.Submit(light, transform)
}

func (r *Renderer) SubmitPointLight(light metadata.PointLight, transform math.Mat4) {
	r.Culling.SubmitPointLight(light, transform)
}

func (r *Renderer) SubmitSpotLight(light metadata.SpotLight, transform math.Mat4) {
	r.Culling.SubmitSpotLight(light, transform)
}

func (r *Renderer) SubmitRectLight(light metadata.RectAreaLight, transform math.Mat4, twoSided bool, radius float32, cull bool) {
	r.Culling.SubmitRectLight(light, transform, twoSided, radius, cull)
}

// SubmitSky stores the atmosphere of handle and makes it the visible sky.
func (r *Renderer) SubmitSky(params metadata.Atmosphere, handle metadata.RendererDataHandle) {
	r.Atmosphere.Submit(params, handle)
	r.Atmosphere.SetActive(handle)
}

// SubmitIBL stores the probe of handle and makes it the active one. The
// probe is recomputed when its attached sky is recomputed this frame.
func (r *Renderer) SubmitIBL(params metadata.DynamicIBL, handle metadata.RendererDataHandle) {
	skyUpdated := r.Atmosphere.IsDirty(params.AttachedSkyAtmoHandle)
	r.IBL.Submit(params, handle, skyUpdated)
	r.IBL.SetActive(handle)
}

func (r *Renderer) SubmitFogVolume(desc passes.FogVolumeDesc, transform math.Mat4) {
	r.Fog.Submit(desc, transform)
}

func (r *Renderer) Shutdown() error {
	if err := r.graph.Shutdown(); err != nil {
		return err
	}
	g := r.ctx.Global
	if g.LightingTarget != nil {
		r.device.Destroy(g.LightingTarget)
	}
	r.device.Destroy(g.CameraBuffer)
	return nil
}
