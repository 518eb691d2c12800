package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	if have, want := s.Shadows.ShadowMapSize(), uint32(2048); have != want {
		t.Fatalf("shadow map size:\nhave %d\nwant %d", have, want)
	}
}

func TestShadowMapSize(t *testing.T) {
	tests := []struct {
		name string
		in   ShadowSettings
		want uint32
	}{
		{"low", ShadowSettings{Quality: 0}, 1024},
		{"medium", ShadowSettings{Quality: 1}, 2048},
		{"high", ShadowSettings{Quality: 2}, 4096},
		{"ultra", ShadowSettings{Quality: 3}, 8192},
		{"clamped", ShadowSettings{Quality: 9}, 8192},
		{"explicit", ShadowSettings{Quality: 3, Resolution: 512}, 512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if have := tt.in.ShadowMapSize(); have != tt.want {
				t.Fatalf("have %d\nwant %d", have, tt.want)
			}
		})
	}
}

func TestDecodeOverridesDefaults(t *testing.T) {
	s, err := Decode([]byte(`
[shadows]
lambda = 0.75
cascades = 3

[bloom]
enabled = false

[ao]
enabled = false
radius = 1.5

[fog]
slices = 64
`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Shadows.Lambda != 0.75 || s.Shadows.Cascades != 3 {
		t.Fatalf("shadows:\nhave %+v", s.Shadows)
	}
	if s.Bloom.Enabled {
		t.Fatalf("bloom should be disabled")
	}
	if have, want := s.Fog.Slices, uint32(64); have != want {
		t.Fatalf("fog slices:\nhave %d\nwant %d", have, want)
	}
	if s.AO.Enabled || s.AO.Radius != 1.5 || s.AO.Multiplier != 1 {
		t.Fatalf("ao:\nhave %+v\nwant disabled, radius 1.5, multiplier 1", s.AO)
	}
	// Untouched sections keep their defaults.
	if have, want := s.Culling.TileSize, uint32(16); have != want {
		t.Fatalf("tile size:\nhave %d\nwant %d", have, want)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "[shadows]\nsoftness = 2\n"},
		{"too many cascades", "[shadows]\ncascades = 5\n"},
		{"zero tile", "[culling]\ntile_size = 0\n"},
		{"bad tone map", "[post]\ntone_map = 9\n"},
		{"zero ao radius", "[ao]\nradius = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.doc)); !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("have %v\nwant %v", err, ErrInvalidSettings)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	s := Default()
	s.Post.Exposure = 1.5
	s.Window.Title = "roundtrip"
	if err := Save(path, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *loaded != *s {
		t.Fatalf("loaded settings:\nhave %+v\nwant %+v", loaded, s)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	s, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *s != *Default() {
		t.Fatalf("missing file should yield defaults")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := make(chan *Settings, 16)
	w, err := NewWatcher(path, Default(), func(s *Settings) {
		select {
		case reloaded <- s:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[bloom]\nintensity = 3.0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A truncate may surface as its own write event, so wait for the
	// reload that carries the new value.
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case s := <-reloaded:
			done = s.Bloom.Intensity == 3
		case <-timeout:
			t.Fatal("no reload within 5s")
		}
	}
	if w.Current().Bloom.Intensity != 3 {
		t.Fatalf("current settings not updated")
	}
}
