package assets

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestDetermineAssetType(t *testing.T) {
	tests := []struct {
		path string
		want metadata.ResourceType
	}{
		{"textures/albedo.png", metadata.ResourceTypeImage},
		{"textures/albedo.JPG", metadata.ResourceTypeImage},
		{"sky.webp", metadata.ResourceTypeImage},
		{"lumen.toml", metadata.ResourceTypeConfig},
		{"notes.txt", metadata.ResourceTypeText},
		{"mesh.bin", metadata.ResourceTypeBinary},
		{"README", metadata.ResourceTypeNone},
		{"model.fbx", metadata.ResourceTypeNone},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if have := determineAssetType(tt.path); have != tt.want {
				t.Fatalf("have %v\nwant %v", have, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T) (*AssetManager, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config", "lumen.toml"), []byte("[bloom]\nenabled = false\n"))
	writeFile(t, filepath.Join(dir, "shaders", "notes.txt"), []byte("hello"))
	writeFile(t, filepath.Join(dir, "ignored.fbx"), []byte{0})

	f, err := os.Create(filepath.Join(dir, "white.png"))
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 3, 5))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	am, err := NewAssetManager(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { am.Close() })
	return am, dir
}

func TestAssetManagerIndex(t *testing.T) {
	am, _ := newTestManager(t)

	var have []string
	for _, a := range am.Assets() {
		have = append(have, a.Name)
	}
	want := []string{"config/lumen.toml", "shaders/notes.txt", "white.png"}
	if len(have) != len(want) {
		t.Fatalf("indexed assets:\nhave %v\nwant %v", have, want)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("indexed assets:\nhave %v\nwant %v", have, want)
		}
	}

	info, ok := am.Lookup("white.png")
	if !ok || info.Type != metadata.ResourceTypeImage || info.Modified.IsZero() {
		t.Fatalf("lookup white.png:\nhave %+v %v", info, ok)
	}
}

func TestAssetManagerLoadAsset(t *testing.T) {
	am, _ := newTestManager(t)

	res, err := am.LoadAsset("white.png", &metadata.ImageResourceParams{FlipY: true})
	if err != nil {
		t.Fatal(err)
	}
	img, ok := res.Data.(*metadata.ImageResourceData)
	if !ok || img.Width != 3 || img.Height != 5 || len(img.Pixels) != 3*5*4 {
		t.Fatalf("image:\nhave %T %+v", res.Data, res.Data)
	}
	if res.Name != "white.png" {
		t.Fatalf("resource name:\nhave %s\nwant white.png", res.Name)
	}

	res, err = am.LoadAsset("config/lumen.toml", nil)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := res.Data.(*config.Settings)
	if !ok || s.Bloom.Enabled {
		t.Fatalf("settings:\nhave %+v\nwant bloom disabled", res.Data)
	}

	res, err = am.LoadAsset("shaders/notes.txt", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.DataSize != 5 {
		t.Fatalf("text size:\nhave %d\nwant 5", res.DataSize)
	}

	if _, err := am.LoadAsset("ignored.fbx", nil); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("unindexed asset:\nhave %v\nwant %v", err, ErrAssetNotFound)
	}
}

func TestAssetManagerIndexLateFile(t *testing.T) {
	am, dir := newTestManager(t)
	if _, ok := am.Lookup("late.txt"); ok {
		t.Fatalf("late.txt indexed before it was written")
	}
	writeFile(t, filepath.Join(dir, "late.txt"), []byte("late"))
	if !am.Index("late.txt") {
		t.Fatalf("index of late.txt failed")
	}
	if _, ok := am.Lookup("late.txt"); !ok {
		t.Fatalf("late.txt missing after Index")
	}
	if am.Index("late.fbx") {
		t.Fatalf("index accepted an unknown type")
	}
}
