package engine_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/testbed"
)

const testConfig = `
[log]
level = "error"

[window]
width = 64
height = 36

[shadows]
resolution = 128

[fog]
slices = 16
steps = 16

[ibl]
radiance_size = 16
radiance_samples = 8

[assets]
directory = %q
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	data := fmt.Sprintf(testConfig, filepath.ToSlash(filepath.Join(dir, "assets")))
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(t *testing.T) (*engine.Engine, *testbed.TestGame) {
	t.Helper()
	tb, err := testbed.NewTestGame(&engine.ApplicationConfig{
		ConfigPath: writeTestConfig(t),
		Backend:    renderer.BackendConfig{Type: renderer.BackendSoft, Workers: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(tb.Game)
	if err != nil {
		t.Fatal(err)
	}
	return e, tb
}

func TestEngineRunsFrames(t *testing.T) {
	e, tb := newTestEngine(t)
	if err := e.Initialize(); err != nil {
		e.Shutdown()
		t.Fatal(err)
	}
	if tb.Renderer == nil || tb.SystemManager == nil {
		t.Fatalf("game was not wired to the engine")
	}

	if err := e.Run(context.Background(), 3); err != nil {
		e.Shutdown()
		t.Fatal(err)
	}
	if have := e.FrameCount(); have != 3 {
		t.Fatalf("frames:\nhave %d\nwant 3", have)
	}
	stats := e.Renderer().Stats()
	if stats.FrameNumber != 3 || stats.DrawCalls == 0 {
		t.Fatalf("renderer stats:\nhave frame %d, %d draws\nwant frame 3, some draws", stats.FrameNumber, stats.DrawCalls)
	}
	if w, h := e.GetFramebufferSize(); w != 64 || h != 36 {
		t.Fatalf("framebuffer:\nhave %dx%d\nwant 64x36", w, h)
	}
	out := e.Output()
	if out == nil || out.Attachment(gpu.AttachmentColour0) == nil {
		t.Fatalf("no output image")
	}
	// The checker texture is decoded on the workers and uploaded by a drain.
	sm := e.SystemManager()
	sm.AssetLoadSystem.Wait()
	sm.Drain()
	if !sm.TextureSystem.IsLoaded("textures/testbed_checker.png") {
		t.Fatalf("checker texture not loaded")
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if have := e.Stage(); have != engine.EngineStageShuttingDown {
		t.Fatalf("stage:\nhave %d\nwant %d", have, engine.EngineStageShuttingDown)
	}
}

func TestEngineRunRequiresInitialize(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Shutdown()
	if err := e.Run(context.Background(), 1); !errors.Is(err, core.ErrFrameState) {
		t.Fatalf("run before initialize:\nhave %v\nwant %v", err, core.ErrFrameState)
	}
}

func TestEngineStopsOnCancel(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Initialize(); err != nil {
		e.Shutdown()
		t.Fatal(err)
	}
	defer e.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if have := e.FrameCount(); have != 0 {
		t.Fatalf("frames after cancel:\nhave %d\nwant 0", have)
	}
}

func TestEngineResizeEvent(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Initialize(); err != nil {
		e.Shutdown()
		t.Fatal(err)
	}
	defer e.Shutdown()

	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.ResizeEvent{Width: 32, Height: 18},
	})
	if err := e.Run(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if w, h := e.GetFramebufferSize(); w != 32 || h != 18 {
		t.Fatalf("framebuffer:\nhave %dx%d\nwant 32x18", w, h)
	}
	if w, h := e.Output().Size(); w != 32 || h != 18 {
		t.Fatalf("output size:\nhave %dx%d\nwant 32x18", w, h)
	}
}
