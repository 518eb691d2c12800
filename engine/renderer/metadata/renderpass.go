package metadata

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

/**
 * @brief One stage of the render graph. The driver calls the lifecycle
 * methods in a fixed topological order: OnInit once, then every frame
 * UpdatePassData and OnRendererBegin for all passes, OnRender for all passes
 * and OnRendererEnd for all passes, and finally OnShutdown once.
 */
type RenderPass interface {
	Name() string
	/** @brief The passes whose data blocks this pass reads during OnRender. */
	Dependencies() []RenderPass

	OnInit(ctx *RendererContext) error
	/** @brief Applies configuration queued since the previous frame. */
	UpdatePassData()
	/** @brief Allocates a slot for a dynamic effect. Returns InvalidHandle when none is free. */
	RequestRendererData() RendererDataHandle
	/** @brief Frees the slot and resets the caller's handle to InvalidHandle. */
	DeleteRendererData(handle *RendererDataHandle)
	OnRendererBegin(ctx *RendererContext, width, height uint32)
	OnRender(ctx *RendererContext)
	OnRendererEnd(ctx *RendererContext, target gpu.Framebuffer)
	OnShutdown(ctx *RendererContext)

	/** @brief The pass's published per-frame state. */
	DataBlock() any
}

// NoRendererData can be embedded by passes that own no dynamic slots.
type NoRendererData struct{}

func (NoRendererData) RequestRendererData() RendererDataHandle { return InvalidHandle }

func (NoRendererData) DeleteRendererData(handle *RendererDataHandle) {
	*handle = InvalidHandle
}

/**
 * @brief State shared by every pass for the current frame. The renderer
 * writes it before the passes begin; passes only read it, except for the
 * lighting buffer which lighting passes accumulate into.
 */
type GlobalRendererData struct {
	View              math.Mat4
	Projection        math.Mat4
	ViewProjection    math.Mat4
	InvView           math.Mat4
	InvProjection     math.Mat4
	InvViewProjection math.Mat4
	CameraPosition    math.Vec3
	Near              float32
	Far               float32

	Width       uint32
	Height      uint32
	FrameNumber uint64

	/** @brief Camera uniforms uploaded once per frame. */
	CameraBuffer gpu.Buffer
	/** @brief HDR target the lighting passes add their radiance into. */
	LightingBuffer gpu.Texture
	LightingTarget gpu.Framebuffer
}

// Resize sets the viewport and (re)allocates the lighting target to match.
func (g *GlobalRendererData) Resize(dev gpu.Device, width, height uint32) {
	g.Width, g.Height = width, height
	if g.LightingTarget == nil {
		g.LightingTarget = dev.NewFramebuffer("lighting", int(width), int(height),
			gpu.AttachmentSpec{Attachment: gpu.AttachmentColour0, Format: gpu.FormatRGBA16F},
		)
	} else {
		g.LightingTarget.Resize(int(width), int(height))
	}
	g.LightingBuffer = g.LightingTarget.Attachment(gpu.AttachmentColour0)
}

// UploadCamera writes the camera matrices into CameraBuffer.
func (g *GlobalRendererData) UploadCamera() {
	u := CameraUniforms{
		View:              g.View,
		Projection:        g.Projection,
		ViewProjection:    g.ViewProjection,
		InvView:           g.InvView,
		InvProjection:     g.InvProjection,
		InvViewProjection: g.InvViewProjection,
		Position:          g.CameraPosition.Vec4(1),
		NearFarSize:       math.Vec4{g.Near, g.Far, float32(g.Width), float32(g.Height)},
	}
	gpu.WriteStruct(g.CameraBuffer, 0, &u)
}

// SetCamera derives every camera matrix from a view and a projection.
func (g *GlobalRendererData) SetCamera(view, projection math.Mat4, position math.Vec3, near, far float32) {
	g.View = view
	g.Projection = projection
	g.ViewProjection = projection.Mul4(view)
	g.InvView = view.Inv()
	g.InvProjection = projection.Inv()
	g.InvViewProjection = g.ViewProjection.Inv()
	g.CameraPosition = position
	g.Near = near
	g.Far = far
}

/**
 * @brief Passed to every lifecycle call in place of global singletons.
 */
type RendererContext struct {
	Device  gpu.Device
	Shaders gpu.ShaderCache
	Global  *GlobalRendererData
}

func NewRendererContext(dev gpu.Device) *RendererContext {
	return &RendererContext{
		Device:  dev,
		Shaders: dev.Shaders(),
		Global: &GlobalRendererData{
			CameraBuffer: dev.NewBuffer("camera", gpu.SizeOf[CameraUniforms]()),
		},
	}
}
