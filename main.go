/*
Headless host for the testbed scene. It renders frames on the reference
device until interrupted or the frame limit is reached and can write the
last frame to a PNG file.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/testbed"
)

func main() {
	configPath := flag.String("config", "lumen.toml", "TOML settings file")
	watch := flag.Bool("watch", false, "reload the settings file when it changes")
	frames := flag.Uint64("frames", 0, "number of frames to render, 0 renders until interrupted")
	width := flag.Uint("width", 0, "frame width, 0 uses the settings file")
	height := flag.Uint("height", 0, "frame height, 0 uses the settings file")
	logLevel := flag.String("log", "", "log level override (debug, info, warn, error)")
	backend := flag.String("backend", "soft", "renderer backend")
	workers := flag.Int("workers", 0, "goroutines per compute dispatch, 0 uses GOMAXPROCS")
	out := flag.String("out", "", "write the last frame to this PNG file")
	flag.Parse()

	if err := run(*configPath, *watch, *frames, uint32(*width), uint32(*height), *logLevel, *backend, *workers, *out); err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}
}

func run(configPath string, watch bool, frames uint64, width, height uint32, logLevel, backend string, workers int, out string) error {
	backendType, err := renderer.ParseBackendType(backend)
	if err != nil {
		return err
	}
	tb, err := testbed.NewTestGame(&engine.ApplicationConfig{
		StartWidth:  width,
		StartHeight: height,
		ConfigPath:  configPath,
		WatchConfig: watch,
		LogLevel:    logLevel,
		Backend: renderer.BackendConfig{
			Type:    backendType,
			Workers: workers,
		},
	})
	if err != nil {
		return err
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		e.Shutdown()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			core.LogInfo("received %s, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := e.Run(ctx, frames)
	if runErr == nil && out != "" {
		if err := writeFrame(out, e.Output()); err != nil {
			runErr = err
		} else {
			core.LogInfo("wrote frame %d to %s", e.FrameCount(), out)
		}
	}
	if err := e.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func writeFrame(path string, fb gpu.Framebuffer) error {
	img, ok := fb.Attachment(gpu.AttachmentColour0).(image.Image)
	if !ok {
		return fmt.Errorf("backend output %s cannot be read back", fb.Label())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
