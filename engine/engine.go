package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Engine hosts a game: it owns the settings, the renderer and the systems
// and runs the frame loop on the calling goroutine.
type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	isSuspended   atomic.Bool
	settings      *config.Settings
	watcher       *config.Watcher
	renderer      *renderer.Renderer
	systemManager *systems.SystemManager
	width         atomic.Uint32
	height        atomic.Uint32
	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      float64
	frameCount    uint64

	// Asset names written while a frame was running, reloaded after it.
	changedMutex sync.Mutex
	changed      []string
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("func New - game and application config are required")
	}
	appConfig := g.ApplicationConfig

	settings := config.Default()
	if appConfig.ConfigPath != "" {
		s, err := config.LoadOrDefault(appConfig.ConfigPath)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		settings = s
	}
	if appConfig.LogLevel != "" {
		settings.Log.Level = appConfig.LogLevel
	}
	core.SetLogLevel(core.ParseLogLevel(settings.Log.Level))
	if appConfig.StartWidth > 0 && appConfig.StartHeight > 0 {
		settings.Window.Width = appConfig.StartWidth
		settings.Window.Height = appConfig.StartHeight
	}

	dev, err := renderer.NewBackend(appConfig.Backend)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	r, err := renderer.New(settings, dev)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	sm, err := systems.NewSystemManager(settings, dev)
	if err != nil {
		core.LogError(err.Error())
		r.Shutdown()
		return nil, err
	}

	e := &Engine{
		currentStage:  EngineStageBootComplete,
		gameInstance:  g,
		settings:      settings,
		renderer:      r,
		systemManager: sm,
		clock:         core.NewClock(),
		metrics:       core.NewMetrics(),
	}
	e.width.Store(settings.Window.Width)
	e.height.Store(settings.Window.Height)
	e.isRunning.Store(true)

	g.SystemManager = sm
	g.Renderer = r
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_SETTINGS_RELOADED, e, e.onSettingsReloaded)
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, e, e.onAssetChanged)

	appConfig := e.gameInstance.ApplicationConfig
	if appConfig.WatchConfig && appConfig.ConfigPath != "" {
		// The watcher fires EVENT_CODE_SETTINGS_RELOADED on every reload.
		w, err := config.NewWatcher(appConfig.ConfigPath, e.settings, nil)
		if err != nil {
			return err
		}
		e.watcher = w
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.GetFramebufferSize()); err != nil {
			return err
		}
	}

	core.LogInfo("%s initialized at %dx%d with passes %v", appConfig.Name, e.width.Load(), e.height.Load(), passNames(e.renderer))
	e.currentStage = EngineStageInitialized
	return nil
}

func passNames(r *renderer.Renderer) []string {
	order := r.Passes().Order()
	names := make([]string, len(order))
	for i, p := range order {
		names[i] = p.Name()
	}
	return names
}

/**
 * @brief Runs the frame loop until ctx is done, the application quits or
 * frames frames were rendered. A zero frames runs without limit.
 */
func (e *Engine) Run(ctx context.Context, frames uint64) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("func Run - engine not initialized: %w", core.ErrFrameState)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if err := ctx.Err(); err != nil {
			core.LogInfo("context done, shutting down: %s", err)
			break
		}
		if frames > 0 && e.frameCount >= frames {
			break
		}
		if e.isSuspended.Load() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := time.Now()

		if err := e.frame(delta); err != nil {
			core.LogError("frame %d failed, shutting down: %s", e.frameCount, err)
			e.isRunning.Store(false)
			return err
		}

		e.metrics.Update(time.Since(frameStartTime).Seconds())
		e.frameCount++
		if e.frameCount%60 == 0 {
			fps, ms := e.metrics.Frame()
			stats := e.renderer.Stats()
			core.LogDebug("frame %d: %.1f fps, %.3f ms, %d draws, %d triangles, gpu %.3f ms",
				e.frameCount, fps, ms, stats.DrawCalls, stats.TrianglesDrawn, stats.TotalMs)
		}

		// Update last time
		e.lastTime = currentTime
	}
	return nil
}

// frame runs one update and renders it. Finished asset loads are drained
// after the graph completed so uploads never race a pass reading them.
func (e *Engine) frame(delta float64) error {
	g := e.gameInstance
	if g.FnUpdate != nil {
		if err := g.FnUpdate(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}
	}

	camera := e.systemManager.CameraSystem.GetDefault()
	width, height := e.GetFramebufferSize()
	if err := e.renderer.Begin(camera, width, height); err != nil {
		return err
	}
	if g.FnRender != nil {
		if err := g.FnRender(e.renderer, delta); err != nil {
			return fmt.Errorf("game render: %w", err)
		}
	}
	if err := e.renderer.End(nil); err != nil {
		return err
	}

	e.reloadChangedAssets()
	e.systemManager.Drain()
	e.renderer.EndFrame()
	return nil
}

func (e *Engine) reloadChangedAssets() {
	e.changedMutex.Lock()
	changed := e.changed
	e.changed = nil
	e.changedMutex.Unlock()

	for _, name := range changed {
		if e.systemManager.TextureSystem.Reload(name) {
			core.LogInfo("reloading texture %s", name)
		}
	}
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	for _, code := range []core.SystemEventCode{
		core.EVENT_CODE_APPLICATION_QUIT,
		core.EVENT_CODE_RESIZED,
		core.EVENT_CODE_SETTINGS_RELOADED,
		core.EVENT_CODE_ASSET_CHANGED,
	} {
		core.EventUnregister(code, e)
	}
	errs = append(errs, e.systemManager.Shutdown())
	errs = append(errs, e.renderer.Shutdown())
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the frame
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width.Load(), e.height.Load()
}

func (e *Engine) Renderer() *renderer.Renderer          { return e.renderer }
func (e *Engine) SystemManager() *systems.SystemManager { return e.systemManager }
func (e *Engine) Settings() *config.Settings            { return e.settings }
func (e *Engine) Metrics() *core.Metrics                { return e.metrics }
func (e *Engine) FrameCount() uint64                    { return e.frameCount }
func (e *Engine) Stage() Stage                          { return e.currentStage }

// Output returns the tone mapped image of the last rendered frame.
func (e *Engine) Output() gpu.Framebuffer {
	return e.renderer.Output()
}

func (e *Engine) onEvent(ev core.EventContext) bool {
	switch ev.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onSettingsReloaded(ev core.EventContext) bool {
	s, ok := ev.Data.(*config.Settings)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", ev.Type)
		return false
	}
	e.renderer.ApplySettings(s)
	core.LogInfo("settings reloaded")
	return false
}

func (e *Engine) onAssetChanged(ev core.EventContext) bool {
	name, ok := ev.Data.(string)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", ev.Type)
		return false
	}
	e.changedMutex.Lock()
	e.changed = append(e.changed, name)
	e.changedMutex.Unlock()
	return false
}

func (e *Engine) onResized(ev core.EventContext) bool {
	re, ok := ev.Data.(*core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", ev.Type)
		return false
	}
	width, height := re.Width, re.Height

	// Check if different. If so, trigger a resize event.
	if width == e.width.Load() && height == e.height.Load() {
		return false
	}
	e.width.Store(width)
	e.height.Store(height)
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended.Store(true)
		return false
	}
	if e.isSuspended.Load() {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended.Store(false)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}
