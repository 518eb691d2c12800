package shaders

import "github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"

var computePrograms = map[string]soft.Kernel{
	"tiled_frustums_aabbs":      tiledFrustumsAABBs,
	"tiled_point_light_culling": tiledPointLightCulling,
	"tiled_spot_light_culling":  tiledSpotLightCulling,
	"tiled_rect_light_culling":  tiledRectLightCulling,

	"directional_evaluation": directionalEvaluation,
	"deferred_point_light":   deferredPointLight,
	"deferred_spot_light":    deferredSpotLight,
	"rect_area_light":        rectAreaLight,

	"hillaire_transmittance": hillaireTransmittance,
	"hillaire_multiscat":     hillaireMultiscat,
	"hillaire_skyview":       hillaireSkyview,
	"sky_apply":              skyApply,
	"sky_lut_diffuse":        skyLutDiffuse,
	"sky_lut_specular":       skyLutSpecular,
	"ibl_application":        iblApplication,

	"copy_depth_hi_z":        copyDepthHiZ,
	"generate_hi_z":          generateHiZ,
	"screen_space_hbao":      screenSpaceHBAO,
	"screen_space_hbao_blur": screenSpaceHBAOBlur,

	"populate_froxels":         populateFroxels,
	"light_froxels":            lightFroxels,
	"temporal_resolve_froxels": temporalResolveFroxels,
	"gather_froxels":           gatherFroxels,
	"apply_froxels":            applyFroxels,

	"bloom_downsample_karis": bloomDownsampleKaris,
	"bloom_downsample":       bloomDownsample,
	"bloom_copy":             bloomCopy,
	"bloom_upsample_blend":   bloomUpsampleBlend,
	"post_processing":        postProcessing,
}

var rasterPrograms = []string{
	"geometry_pass_shader",
	"geometry_pass_skinned_shader",
	"static_shadow_shader",
	"dynamic_shadow_shader",
	"entity_mask_shader",
}

// Register adds every program of the pipeline to the device's shader cache.
func Register(dev *soft.Device) {
	cache := dev.ShaderCache()
	for name, kernel := range computePrograms {
		cache.RegisterCompute(name, kernel)
	}
	for _, name := range rasterPrograms {
		cache.RegisterRaster(name)
	}
}

// NewDevice returns a reference device with every program registered.
func NewDevice(opts soft.Options) *soft.Device {
	dev := soft.NewDevice(opts)
	Register(dev)
	return dev
}
