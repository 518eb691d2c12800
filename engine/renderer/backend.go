package renderer

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

type BackendType uint8

const (
	// Reference CPU device with every pipeline program registered.
	BackendSoft BackendType = iota
)

func (b BackendType) String() string {
	switch b {
	case BackendSoft:
		return "soft"
	default:
		return fmt.Sprintf("BackendType(%d)", uint8(b))
	}
}

func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(s) {
	case "", "soft":
		return BackendSoft, nil
	}
	return 0, fmt.Errorf("unknown renderer backend %q", s)
}

type BackendConfig struct {
	Type BackendType
	// Workers bounds the goroutines of one compute dispatch. Zero uses GOMAXPROCS.
	Workers int
	// QueryLatency delays timer queries by this many frames.
	QueryLatency int
}

// NewBackend creates the device the passes record their work on.
func NewBackend(config BackendConfig) (gpu.Device, error) {
	switch config.Type {
	case BackendSoft:
		return shaders.NewDevice(soft.Options{
			Workers:      config.Workers,
			QueryLatency: config.QueryLatency,
		}), nil
	}
	return nil, fmt.Errorf("func NewBackend - unsupported backend %s", config.Type)
}
