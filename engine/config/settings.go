// Package config holds the renderer settings persisted as TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/lumen/engine/core"
)

type LogSettings struct {
	Level string `toml:"level"`
}

type WindowSettings struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Title  string `toml:"title"`
}

type ShadowSettings struct {
	// Quality 0..3 selects a 1024, 2048, 4096 or 8192 shadow map. A
	// non-zero Resolution overrides it.
	Quality    int     `toml:"quality"`
	Resolution uint32  `toml:"resolution"`
	Lambda     float32 `toml:"lambda"`
	Cascades   int     `toml:"cascades"`
	MinBias    float32 `toml:"min_bias"`
	MaxBias    float32 `toml:"max_bias"`
	NormalBias float32 `toml:"normal_bias"`
	PCFRadius  int     `toml:"pcf_radius"`
}

// ShadowMapSize returns the shadow map edge for the settings.
func (s ShadowSettings) ShadowMapSize() uint32 {
	if s.Resolution > 0 {
		return s.Resolution
	}
	q := min(max(s.Quality, 0), 3)
	return 1024 << q
}

type CullingSettings struct {
	TileSize uint32 `toml:"tile_size"`
}

type BloomSettings struct {
	Enabled   bool    `toml:"enabled"`
	Threshold float32 `toml:"threshold"`
	Knee      float32 `toml:"knee"`
	Radius    float32 `toml:"radius"`
	Intensity float32 `toml:"intensity"`
}

type AtmosphereSettings struct {
	FastMode bool `toml:"fast_mode"`
}

type IBLSettings struct {
	RadianceSamples uint32  `toml:"radiance_samples"`
	RadianceSize    uint32  `toml:"radiance_size"`
	Intensity       float32 `toml:"intensity"`
}

// AOSettings configures the screen-space horizon based ambient occlusion.
// Radius is in world units.
type AOSettings struct {
	Enabled    bool    `toml:"enabled"`
	Radius     float32 `toml:"radius"`
	Multiplier float32 `toml:"multiplier"`
	Exponent   float32 `toml:"exponent"`
}

type FogSettings struct {
	Enabled       bool    `toml:"enabled"`
	Steps         uint32  `toml:"steps"`
	Slices        uint32  `toml:"slices"`
	MiePhase      float32 `toml:"mie_phase"`
	TemporalBlend float32 `toml:"temporal_blend"`
}

type PostSettings struct {
	FXAA          bool       `toml:"fxaa"`
	ToneMap       uint32     `toml:"tone_map"`
	Exposure      float32    `toml:"exposure"`
	Gamma         float32    `toml:"gamma"`
	Grid          bool       `toml:"grid"`
	GridSize      float32    `toml:"grid_size"`
	Outline       bool       `toml:"outline"`
	OutlineWidth  int        `toml:"outline_width"`
	OutlineColour [4]float32 `toml:"outline_colour"`
}

type TimerSettings struct {
	RingCapacity int `toml:"ring_capacity"`
}

type JobSettings struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

type AssetSettings struct {
	Directory   string `toml:"directory"`
	Watch       bool   `toml:"watch"`
	MaxInFlight int64  `toml:"max_in_flight"`
}

type Settings struct {
	Log        LogSettings        `toml:"log"`
	Window     WindowSettings     `toml:"window"`
	Shadows    ShadowSettings     `toml:"shadows"`
	Culling    CullingSettings    `toml:"culling"`
	Bloom      BloomSettings      `toml:"bloom"`
	Atmosphere AtmosphereSettings `toml:"atmosphere"`
	IBL        IBLSettings        `toml:"ibl"`
	AO         AOSettings         `toml:"ao"`
	Fog        FogSettings        `toml:"fog"`
	Post       PostSettings       `toml:"post"`
	Timers     TimerSettings      `toml:"timers"`
	Jobs       JobSettings        `toml:"jobs"`
	Assets     AssetSettings      `toml:"assets"`
}

func Default() *Settings {
	return &Settings{
		Log:    LogSettings{Level: "info"},
		Window: WindowSettings{Width: 1600, Height: 900, Title: "lumen"},
		Shadows: ShadowSettings{
			Quality:    1,
			Lambda:     0.5,
			Cascades:   4,
			MinBias:    0.0005,
			MaxBias:    0.005,
			NormalBias: 0.02,
			PCFRadius:  1,
		},
		Culling: CullingSettings{TileSize: 16},
		Bloom: BloomSettings{
			Enabled:   true,
			Threshold: 1,
			Knee:      1,
			Radius:    1,
			Intensity: 1,
		},
		Atmosphere: AtmosphereSettings{FastMode: true},
		IBL:        IBLSettings{RadianceSamples: 64, RadianceSize: 32, Intensity: 1},
		AO:         AOSettings{Enabled: true, Radius: 0.5, Multiplier: 1, Exponent: 1},
		Fog: FogSettings{
			Enabled:       true,
			Steps:         64,
			Slices:        128,
			MiePhase:      0.8,
			TemporalBlend: 0.9,
		},
		Post: PostSettings{
			FXAA:          true,
			ToneMap:       5,
			Exposure:      1,
			Gamma:         2.2,
			GridSize:      1,
			OutlineWidth:  2,
			OutlineColour: [4]float32{1, 0.5, 0, 1},
		},
		Timers: TimerSettings{RingCapacity: 5},
		Jobs:   JobSettings{Workers: 4, QueueSize: 64},
		Assets: AssetSettings{Directory: "assets", MaxInFlight: 2},
	}
}

var ErrInvalidSettings = errors.New("invalid settings")

// Validate rejects values no pass can run with.
func (s *Settings) Validate() error {
	switch {
	case s.Window.Width == 0 || s.Window.Height == 0:
		return fmt.Errorf("window %dx%d: %w", s.Window.Width, s.Window.Height, ErrInvalidSettings)
	case s.Shadows.Cascades < 1 || s.Shadows.Cascades > 4:
		return fmt.Errorf("shadow cascades %d not in [1, 4]: %w", s.Shadows.Cascades, ErrInvalidSettings)
	case s.Shadows.Lambda < 0 || s.Shadows.Lambda > 1:
		return fmt.Errorf("shadow lambda %v not in [0, 1]: %w", s.Shadows.Lambda, ErrInvalidSettings)
	case s.Culling.TileSize == 0:
		return fmt.Errorf("tile size 0: %w", ErrInvalidSettings)
	case s.Bloom.Knee <= 0:
		return fmt.Errorf("bloom knee %v: %w", s.Bloom.Knee, ErrInvalidSettings)
	case s.AO.Radius <= 0:
		return fmt.Errorf("ao radius %v: %w", s.AO.Radius, ErrInvalidSettings)
	case s.Fog.Slices == 0:
		return fmt.Errorf("fog slices 0: %w", ErrInvalidSettings)
	case s.Post.ToneMap > 5:
		return fmt.Errorf("tone map operator %d: %w", s.Post.ToneMap, ErrInvalidSettings)
	case s.Timers.RingCapacity < 1:
		return fmt.Errorf("timer ring capacity %d: %w", s.Timers.RingCapacity, ErrInvalidSettings)
	case s.Jobs.Workers < 1:
		return fmt.Errorf("job workers %d: %w", s.Jobs.Workers, ErrInvalidSettings)
	}
	return nil
}

// Decode reads TOML over the defaults. Keys missing from data keep their
// default; unknown keys are an error.
func Decode(data []byte) (*Settings, error) {
	s := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("func Decode - unknown keys:\n%s: %w", strict.String(), ErrInvalidSettings)
		}
		return nil, fmt.Errorf("func Decode - %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("func Decode - %w", err)
	}
	return s, nil
}

func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("func Load - failed to read %s: %w", path, err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loaded settings from %s", path)
	return s, nil
}

// LoadOrDefault returns the defaults when path does not exist.
func LoadOrDefault(path string) (*Settings, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		core.LogInfo("no settings at %s, using defaults", path)
		return Default(), nil
	}
	return Load(path)
}

func Save(path string, s *Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("func Save - %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("func Save - failed to write %s: %w", path, err)
	}
	return nil
}
