package systems

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
)

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/**
	 * @brief NOTE: The maximum number of cameras that can be managed by
	 * the system.
	 */
	MaxCameraCount uint16
}

type cameraReference struct {
	camera         *components.Camera
	referenceCount uint16
}

type CameraSystem struct {
	Config *CameraSystemConfig
	// A default, non-registered camera that always exists as a fallback.
	DefaultCamera *components.Camera

	lookup map[string]*cameraReference
}

/**
 * @brief Initializes the camera system.
 * @param config The configuration for this system.
 */
func NewCameraSystem(config *CameraSystemConfig) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &CameraSystem{
		Config:        config,
		DefaultCamera: components.NewCamera(),
		lookup:        make(map[string]*cameraReference, config.MaxCameraCount),
	}, nil
}

func (cs *CameraSystem) Shutdown() error {
	clear(cs.lookup)
	return nil
}

/**
 * @brief Acquires a pointer to a camera by name.
 * If one is not found, a new one is created and returned.
 * Internal reference counter is incremented.
 *
 * @param name The name of the camera to acquire.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	if name == components.DEFAULT_CAMERA_NAME {
		return cs.DefaultCamera, nil
	}
	ref, ok := cs.lookup[name]
	if !ok {
		if len(cs.lookup) >= int(cs.Config.MaxCameraCount) {
			err := fmt.Errorf("func Acquire - failed to acquire new slot for camera %s. Adjust camera system config to allow more", name)
			core.LogError(err.Error())
			return nil, err
		}
		core.LogDebug("Creating new camera named '%s'...", name)
		ref = &cameraReference{camera: components.NewCamera()}
		cs.lookup[name] = ref
	}
	ref.referenceCount++
	return ref.camera, nil
}

/**
 * @brief Releases a camera with the given name. Internal reference
 * counter is decremented. If this reaches 0, the camera is forgotten and
 * the name is usable by a new camera.
 *
 * @param name The name of the camera to release.
 */
func (cs *CameraSystem) Release(name string) {
	if name == components.DEFAULT_CAMERA_NAME {
		core.LogDebug("Cannot release default camera. Nothing was done.")
		return
	}
	ref, ok := cs.lookup[name]
	if !ok {
		core.LogWarn("func Release - failed lookup of camera %s. Nothing was done.", name)
		return
	}
	ref.referenceCount--
	if ref.referenceCount < 1 {
		delete(cs.lookup, name)
	}
}

/**
 * @brief Gets a pointer to the default camera.
 */
func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.DefaultCamera
}
