package systems

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type TextureSystemConfig struct {
	/** @brief The maximum number of textures that can be loaded at once. */
	MaxTextureCount uint32
}

type textureReference struct {
	texture        gpu.Texture
	referenceCount uint64
	autoRelease    bool
	loaded         bool
	failed         bool
}

/**
 * @brief Reference counted registry of image textures. Acquire hands out
 * the texture immediately as a one texel placeholder; the image is decoded
 * on the job system and uploaded into the same texture when the asset loads
 * are drained, so materials can keep the handle they were given.
 */
type TextureSystem struct {
	Config *TextureSystemConfig
	// A checkerboard that always exists as a fallback.
	DefaultTexture gpu.Texture

	device     gpu.Device
	loads      *AssetLoadSystem
	registered map[string]*textureReference
}

const defaultTextureSize = 16

func NewTextureSystem(config *TextureSystemConfig, dev gpu.Device, loads *AssetLoadSystem) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		err := fmt.Errorf("func NewTextureSystem - config.MaxTextureCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}

	ts := &TextureSystem{
		Config:     config,
		device:     dev,
		loads:      loads,
		registered: make(map[string]*textureReference),
	}
	ts.DefaultTexture = dev.NewTexture(gpu.TextureDesc{
		Label:  "texture.default",
		Kind:   gpu.Texture2D,
		Format: gpu.FormatRGBA8,
		Width:  defaultTextureSize,
		Height: defaultTextureSize,
	})
	ts.DefaultTexture.Upload(checkerboard(defaultTextureSize))
	return ts, nil
}

// checkerboard returns size*size RGBA pixels alternating white and
// magenta every texel.
func checkerboard(size int) []uint8 {
	pixels := make([]uint8, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := pixels[(y*size+x)*4:]
			p[0], p[1], p[2], p[3] = 255, 255, 255, 255
			if (x+y)%2 == 1 {
				p[1] = 0
			}
		}
	}
	return pixels
}

/**
 * @brief Acquires a texture by asset name, starting its load on first use.
 * Internal reference counter is incremented.
 * @param name The image asset name relative to the asset directory.
 * @param autoRelease Destroys the texture when the last reference is released.
 */
func (ts *TextureSystem) Acquire(name string, autoRelease bool) (gpu.Texture, error) {
	if ref, ok := ts.registered[name]; ok {
		ref.referenceCount++
		return ref.texture, nil
	}
	if uint32(len(ts.registered)) >= ts.Config.MaxTextureCount {
		err := fmt.Errorf("func Acquire - texture system is full (%d), cannot load %s", ts.Config.MaxTextureCount, name)
		core.LogError(err.Error())
		return nil, err
	}

	ref := &textureReference{
		texture: ts.device.NewTexture(gpu.TextureDesc{
			Label:  "texture." + name,
			Kind:   gpu.Texture2D,
			Format: gpu.FormatRGBA8,
			Width:  1,
			Height: 1,
		}),
		referenceCount: 1,
		autoRelease:    autoRelease,
	}
	ref.texture.Upload([]uint8{255, 255, 255, 255})
	ts.registered[name] = ref

	params := &metadata.ImageResourceParams{FlipY: false}
	if _, err := ts.loads.Load(name, params, ts.onTextureLoaded(ref)); err != nil {
		delete(ts.registered, name)
		ts.device.Destroy(ref.texture)
		return nil, err
	}
	return ref.texture, nil
}

func (ts *TextureSystem) onTextureLoaded(ref *textureReference) FnOnAssetLoaded {
	return func(result AssetLoadResult) {
		if result.Err != nil {
			ref.failed = true
			return
		}
		img, ok := result.Resource.Data.(*metadata.ImageResourceData)
		if !ok {
			core.LogError("func onTextureLoaded - %s is not an image", result.Name)
			ref.failed = true
			return
		}
		ref.texture.Resize(int(img.Width), int(img.Height), 1)
		ref.texture.Upload(img.Pixels)
		ref.loaded = true
		core.LogDebug("texture %s loaded (%dx%d %s)", result.Name, img.Width, img.Height, img.Format)
	}
}

// Reload decodes the image of an acquired texture again. The new pixels
// replace the old ones in the same texture on the next drain.
func (ts *TextureSystem) Reload(name string) bool {
	ref, ok := ts.registered[name]
	if !ok {
		return false
	}
	if _, err := ts.loads.Load(name, &metadata.ImageResourceParams{}, ts.onTextureLoaded(ref)); err != nil {
		core.LogWarn("func Reload - %s: %s", name, err)
		return false
	}
	return true
}

// IsLoaded reports whether the image of an acquired texture was uploaded.
func (ts *TextureSystem) IsLoaded(name string) bool {
	ref, ok := ts.registered[name]
	return ok && ref.loaded
}

/**
 * @brief Releases a texture with the given name. Internal reference
 * counter is decremented; auto released textures are destroyed when it
 * reaches 0.
 */
func (ts *TextureSystem) Release(name string) {
	ref, ok := ts.registered[name]
	if !ok {
		core.LogWarn("func Release - unknown texture %s, nothing was done", name)
		return
	}
	if ref.referenceCount > 0 {
		ref.referenceCount--
	}
	if ref.referenceCount == 0 && ref.autoRelease {
		ts.device.Destroy(ref.texture)
		delete(ts.registered, name)
	}
}

func (ts *TextureSystem) Shutdown() error {
	for name, ref := range ts.registered {
		ts.device.Destroy(ref.texture)
		delete(ts.registered, name)
	}
	ts.device.Destroy(ts.DefaultTexture)
	return nil
}
