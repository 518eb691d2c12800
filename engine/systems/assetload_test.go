package systems

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

type loadFixture struct {
	dir    string
	jobs   *JobSystem
	assets *assets.AssetManager
	loads  *AssetLoadSystem
}

func newLoadFixture(t *testing.T) *loadFixture {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "textures", "red.png"), 4, 2, color.RGBA{R: 255, A: 255})
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	js, err := NewJobSystem(&JobSystemConfig{Workers: 2, QueueSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	am, err := assets.NewAssetManager(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	als, err := NewAssetLoadSystem(&AssetLoadSystemConfig{MaxInFlight: 1}, js, am)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		als.Shutdown()
		js.Shutdown()
		am.Close()
	})
	return &loadFixture{dir: dir, jobs: js, assets: am, loads: als}
}

func TestAssetLoadSystemDrain(t *testing.T) {
	f := newLoadFixture(t)

	var results []AssetLoadResult
	onLoaded := func(r AssetLoadResult) { results = append(results, r) }
	id, err := f.loads.Load("textures/red.png", &metadata.ImageResourceParams{}, onLoaded)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.loads.Load("broken.png", nil, onLoaded); err != nil {
		t.Fatal(err)
	}
	if _, err := f.loads.Load("missing.png", nil, onLoaded); err != nil {
		t.Fatal(err)
	}

	f.loads.Wait()
	if len(results) != 0 {
		t.Fatalf("callbacks ran before drain: %d", len(results))
	}
	if have := f.loads.Pending(); have != 3 {
		t.Fatalf("pending:\nhave %d\nwant 3", have)
	}
	if have := f.loads.Drain(); have != 3 {
		t.Fatalf("drained:\nhave %d\nwant 3", have)
	}
	if have := f.loads.Pending(); have != 0 {
		t.Fatalf("pending after drain:\nhave %d\nwant 0", have)
	}

	byName := make(map[string]AssetLoadResult)
	for _, r := range results {
		byName[r.Name] = r
	}
	red := byName["textures/red.png"]
	if red.Err != nil || red.ID != id {
		t.Fatalf("red result:\nhave %v %v\nwant nil %v", red.Err, red.ID, id)
	}
	img, ok := red.Resource.Data.(*metadata.ImageResourceData)
	if !ok {
		t.Fatalf("red data:\nhave %T\nwant *metadata.ImageResourceData", red.Resource.Data)
	}
	if img.Width != 4 || img.Height != 2 || img.Pixels[0] != 255 || img.Pixels[1] != 0 {
		t.Fatalf("red image:\nhave %dx%d %v\nwant 4x2 red", img.Width, img.Height, img.Pixels[:4])
	}
	if byName["broken.png"].Err == nil {
		t.Fatalf("broken image loaded without error")
	}
	if err := byName["missing.png"].Err; !errors.Is(err, assets.ErrAssetNotFound) {
		t.Fatalf("missing asset:\nhave %v\nwant %v", err, assets.ErrAssetNotFound)
	}
	if have := f.loads.Drain(); have != 0 {
		t.Fatalf("second drain:\nhave %d\nwant 0", have)
	}
}

func TestTextureSystemUploadsOnDrain(t *testing.T) {
	f := newLoadFixture(t)
	dev := soft.NewDevice(soft.Options{Workers: 1})
	ts, err := NewTextureSystem(&TextureSystemConfig{MaxTextureCount: 2}, dev, f.loads)
	if err != nil {
		t.Fatal(err)
	}
	defer ts.Shutdown()

	tex, err := ts.Acquire("textures/red.png", true)
	if err != nil {
		t.Fatal(err)
	}
	if d := tex.Desc(); d.Width != 1 || d.Height != 1 {
		t.Fatalf("placeholder size:\nhave %dx%d\nwant 1x1", d.Width, d.Height)
	}
	if ts.IsLoaded("textures/red.png") {
		t.Fatalf("texture loaded before drain")
	}

	f.loads.Wait()
	f.loads.Drain()
	if d := tex.Desc(); d.Width != 4 || d.Height != 2 {
		t.Fatalf("loaded size:\nhave %dx%d\nwant 4x2", d.Width, d.Height)
	}
	if !ts.IsLoaded("textures/red.png") {
		t.Fatalf("texture not loaded after drain")
	}

	// A second acquire shares the texture.
	again, err := ts.Acquire("textures/red.png", true)
	if err != nil {
		t.Fatal(err)
	}
	if again != tex {
		t.Fatalf("second acquire returned a new texture")
	}

	writePNG(t, filepath.Join(f.dir, "textures", "red.png"), 8, 8, color.RGBA{G: 255, A: 255})
	if !ts.Reload("textures/red.png") {
		t.Fatalf("reload of an acquired texture failed")
	}
	f.loads.Wait()
	f.loads.Drain()
	if d := tex.Desc(); d.Width != 8 || d.Height != 8 {
		t.Fatalf("reloaded size:\nhave %dx%d\nwant 8x8", d.Width, d.Height)
	}
	if ts.Reload("textures/unknown.png") {
		t.Fatalf("reload of an unknown texture succeeded")
	}
}

func TestTextureSystemFull(t *testing.T) {
	f := newLoadFixture(t)
	writePNG(t, filepath.Join(f.dir, "blue.png"), 1, 1, color.RGBA{B: 255, A: 255})
	f.assets.Index("blue.png")

	dev := soft.NewDevice(soft.Options{Workers: 1})
	ts, err := NewTextureSystem(&TextureSystemConfig{MaxTextureCount: 1}, dev, f.loads)
	if err != nil {
		t.Fatal(err)
	}
	defer ts.Shutdown()

	if _, err := ts.Acquire("textures/red.png", true); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.Acquire("blue.png", true); err == nil {
		t.Fatalf("acquire past capacity succeeded")
	}
	ts.Release("textures/red.png")
	if _, err := ts.Acquire("blue.png", true); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	f.loads.Wait()
	f.loads.Drain()
}
