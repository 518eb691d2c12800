package metadata

import "github.com/spaghettifunk/lumen/engine/math"

// Uniform and storage layouts shared by the passes and the compute programs.

type CameraUniforms struct {
	View              math.Mat4
	Projection        math.Mat4
	ViewProjection    math.Mat4
	InvView           math.Mat4
	InvProjection     math.Mat4
	InvViewProjection math.Mat4
	Position          math.Vec4
	/** @brief Near (x), far (y), width (z), height (w). */
	NearFarSize math.Vec4
}

type CullingUniforms struct {
	TileSize       uint32
	TilesX         uint32
	TilesY         uint32
	NumPointLights uint32
	NumSpotLights  uint32
	NumRectLights  uint32
	MaxPerTile     [3]uint32
	_              [3]uint32
}

/**
 * @brief View-space culling volume of one screen tile. The side planes pass
 * through the eye and point inward.
 */
type TileFrustum struct {
	Planes  [4]math.Vec4
	AABBMin math.Vec4
	AABBMax math.Vec4
	/** @brief Nearest (x) and farthest (y) view distance covered by the tile. */
	DepthRange math.Vec4
	_          math.Vec4
}

type DirectionalUniforms struct {
	NumLights uint32
	/** @brief Index of the shadowed light, or -1. */
	ShadowedLight int32
	NumCascades   uint32
	PCFRadius     int32
	MinMaxBias    math.Vec4
	CascadeSplits math.Vec4
	CascadeVP     [4]math.Mat4
}

type AtmosphereUniforms struct {
	/** @brief Number of slots in Slots. */
	Count uint32
	/** @brief Non-zero when the sky view LUT is used instead of ray marching. */
	Fast  uint32
	_     [2]uint32
	Slots [8]int32
}

type IBLUniforms struct {
	Count        uint32
	NumSamples   uint32
	ActiveProbe  int32
	Intensity    float32
	Slots        [8]int32
	AttachedSkys [8]int32
	/** @brief Non-zero when the ambient occlusion texture is bound. */
	AOEnabled uint32
	_         [3]uint32
}

type AOUniforms struct {
	/**
	 * @brief Radius in half resolution pixels at unit depth (x), multiplier
	 * (y), exponent (z) and world radius (w).
	 */
	Params math.Vec4
	/** @brief Blur step in texels (x, y). */
	BlurDirection math.Vec4
}

type FogUniforms struct {
	NumVolumes     uint32
	Slices         uint32
	Steps          uint32
	Frame          uint32
	MiePhase       float32
	TemporalBlend  float32
	_              [2]float32
	GridSize       [4]uint32
	LightDirection math.Vec4
	LightColour    math.Vec4
}

type BloomUniforms struct {
	/** @brief Threshold (x), threshold - knee (y), 2 * knee (z), 0.25 / knee (w). */
	Curve     math.Vec4
	Radius    float32
	Intensity float32
	Mip       uint32
	_         uint32
}

// Post-processing feature bits.
const (
	PostFXAA uint32 = 1 << iota
	PostBloom
	PostGrid
	PostOutline
)

type PostUniforms struct {
	ToneMapOp uint32
	Flags     uint32
	Exposure  float32
	Gamma     float32

	// Bloom intensity (x), grid cell size (y), outline width in texels (z).
	Params        math.Vec4
	OutlineColour math.Vec4
}
