package systems

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// SystemManager owns the engine systems that live outside the render graph.
type SystemManager struct {
	CameraSystem    *CameraSystem
	GeometrySystem  *GeometrySystem
	TextureSystem   *TextureSystem
	JobSystem       *JobSystem
	AssetManager    *assets.AssetManager
	AssetLoadSystem *AssetLoadSystem
}

func NewSystemManager(settings *config.Settings, dev gpu.Device) (*SystemManager, error) {
	js, err := NewJobSystem(&JobSystemConfig{
		Workers:   settings.Jobs.Workers,
		QueueSize: settings.Jobs.QueueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("func NewSystemManager - %w", err)
	}
	sm := &SystemManager{JobSystem: js}

	am, err := assets.NewAssetManager(settings.Assets.Directory, settings.Assets.Watch)
	if err != nil {
		sm.Shutdown()
		return nil, fmt.Errorf("func NewSystemManager - %w", err)
	}
	sm.AssetManager = am

	maxInFlight := settings.Assets.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	als, err := NewAssetLoadSystem(&AssetLoadSystemConfig{MaxInFlight: maxInFlight}, js, am)
	if err != nil {
		sm.Shutdown()
		return nil, fmt.Errorf("func NewSystemManager - %w", err)
	}
	sm.AssetLoadSystem = als

	cs, err := NewCameraSystem(&CameraSystemConfig{
		MaxCameraCount: 100,
	})
	if err != nil {
		sm.Shutdown()
		return nil, err
	}
	sm.CameraSystem = cs

	gs, err := NewGeometrySystem(&GeometrySystemConfig{
		MaxGeometryCount: 4096,
	}, dev)
	if err != nil {
		sm.Shutdown()
		return nil, err
	}
	sm.GeometrySystem = gs

	ts, err := NewTextureSystem(&TextureSystemConfig{
		MaxTextureCount: 65536,
	}, dev, als)
	if err != nil {
		sm.Shutdown()
		return nil, err
	}
	sm.TextureSystem = ts

	return sm, nil
}

// Drain hands every finished asset load to its system. It must run on the
// render thread after the frame was rendered.
func (sm *SystemManager) Drain() int {
	if sm.AssetLoadSystem == nil {
		return 0
	}
	return sm.AssetLoadSystem.Drain()
}

// Shutdown stops the workers first so no load completes into a destroyed
// texture, then releases the GPU resources.
func (sm *SystemManager) Shutdown() error {
	var errs []error
	if sm.AssetLoadSystem != nil {
		errs = append(errs, sm.AssetLoadSystem.Shutdown())
	}
	if sm.JobSystem != nil {
		errs = append(errs, sm.JobSystem.Shutdown())
	}
	if sm.AssetManager != nil {
		errs = append(errs, sm.AssetManager.Close())
	}
	if sm.TextureSystem != nil {
		errs = append(errs, sm.TextureSystem.Shutdown())
	}
	if sm.GeometrySystem != nil {
		errs = append(errs, sm.GeometrySystem.Shutdown())
	}
	if sm.CameraSystem != nil {
		errs = append(errs, sm.CameraSystem.Shutdown())
	}
	if err := errors.Join(errs...); err != nil {
		core.LogError("system shutdown: %s", err)
		return err
	}
	return nil
}
