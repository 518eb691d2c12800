//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) All() error {
	return goCmd(withArgs("test", "./..."))
}

// Runs every package test with the race detector. The job system, the
// asset loader and the compute dispatch all run on several goroutines.
func (Test) Race() error {
	return goCmd(withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"))
}

// Runs the tests of one package directory, e.g. mage test:pkg engine/renderer/passes
func (Test) Pkg(dir string) error {
	return goCmd(withArgs("test", "-v", "."), withDir(dir))
}
