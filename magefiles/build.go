//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Runs go mod download and then builds the headless host into bin/lumen.
// The host needs no cgo.
func (Build) Engine() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	return goCmd(withArgs("build", "-o", "bin/lumen", "."), withEnv("CGO_ENABLED=0"))
}

// Runs go vet over every package.
func (Build) Vet() error {
	return goCmd(withArgs("vet", "./..."))
}
