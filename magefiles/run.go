//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Builds the engine and renders the testbed until interrupted.
func (Run) Engine() error {
	mg.Deps(Build.Engine)
	fmt.Println("Run engine...")
	if _, err := executeCmd("bin/lumen", withArgs("-config", "lumen.toml", "-watch"), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders a fixed number of frames and writes the last one to frame.png.
func (Run) Frame() error {
	mg.Deps(Build.Engine)
	if _, err := executeCmd("bin/lumen", withArgs("-frames", "8", "-width", "320", "-height", "180", "-out", "frame.png"), withStream()); err != nil {
		return err
	}
	return nil
}
