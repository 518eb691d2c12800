package soft

import (
	"image"
	"image/color"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Texture stores every mip level as a flat float32 slice laid out
// ((z*height + y)*width + x)*channels. Row zero is the bottom row.
type Texture struct {
	id     uint32
	desc   gpu.TextureDesc
	levels [][]float32
}

func newTexture(id uint32, desc gpu.TextureDesc) *Texture {
	if desc.Mips < 1 {
		desc.Mips = 1
	}
	if desc.Depth < 1 {
		desc.Depth = 1
	}
	t := &Texture{id: id, desc: desc}
	t.allocate()
	return t
}

func (t *Texture) allocate() {
	ch := t.desc.Format.Channels()
	t.levels = make([][]float32, t.desc.Mips)
	for m := range t.levels {
		w, h := t.desc.MipSize(m)
		t.levels[m] = make([]float32, w*h*t.desc.Depth*ch)
	}
	if t.desc.Format == gpu.FormatDepth32F {
		t.Fill([4]float32{1})
	}
}

func (t *Texture) ID() uint32              { return t.id }
func (t *Texture) Label() string           { return t.desc.Label }
func (t *Texture) Desc() gpu.TextureDesc   { return t.desc }
func (t *Texture) Level(mip int) []float32 { return t.levels[mip] }

func (t *Texture) Resize(width, height, depth int) {
	if depth < 1 {
		depth = t.desc.Depth
	}
	if width == t.desc.Width && height == t.desc.Height && depth == t.desc.Depth {
		return
	}
	t.desc.Width, t.desc.Height, t.desc.Depth = width, height, depth
	t.allocate()
}

// Size returns the dimensions of a mip level.
func (t *Texture) Size(mip int) (int, int) {
	return t.desc.MipSize(mip)
}

func (t *Texture) offset(x, y, z, mip int) int {
	w, h := t.desc.MipSize(mip)
	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	z = clampInt(z, 0, t.desc.Depth-1)
	return ((z*h+y)*w + x) * t.desc.Format.Channels()
}

// Load returns the texel at integer coordinates, clamped to the edge.
// Channels the format does not store read as zero.
func (t *Texture) Load(x, y, z, mip int) [4]float32 {
	var out [4]float32
	o := t.offset(x, y, z, mip)
	copy(out[:], t.levels[mip][o:o+t.desc.Format.Channels()])
	return out
}

func (t *Texture) Store(x, y, z, mip int, v [4]float32) {
	w, h := t.desc.MipSize(mip)
	if x < 0 || y < 0 || x >= w || y >= h || z < 0 || z >= t.desc.Depth {
		return
	}
	o := t.offset(x, y, z, mip)
	copy(t.levels[mip][o:o+t.desc.Format.Channels()], v[:])
}

// Sample reads with bilinear filtering at normalized (u, v), clamped to edge.
func (t *Texture) Sample(u, v float32, z, mip int) [4]float32 {
	w, h := t.desc.MipSize(mip)
	fx := u*float32(w) - 0.5
	fy := v*float32(h) - 0.5
	x0 := int(floor(fx))
	y0 := int(floor(fy))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	a := t.Load(x0, y0, z, mip)
	b := t.Load(x0+1, y0, z, mip)
	c := t.Load(x0, y0+1, z, mip)
	d := t.Load(x0+1, y0+1, z, mip)
	var out [4]float32
	for i := range out {
		top := a[i] + (b[i]-a[i])*tx
		bot := c[i] + (d[i]-c[i])*tx
		out[i] = top + (bot-top)*ty
	}
	return out
}

func (t *Texture) Upload(pixels []uint8) {
	w, h := t.desc.MipSize(0)
	n := min(len(pixels)/4, w*h)
	for i := 0; i < n; i++ {
		x, y := i%w, h-1-i/w
		p := pixels[i*4 : i*4+4]
		t.Store(x, y, 0, 0, [4]float32{
			float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255,
		})
	}
}

// Fill writes v into every texel of every level.
func (t *Texture) Fill(v [4]float32) {
	ch := t.desc.Format.Channels()
	for _, lvl := range t.levels {
		for i := 0; i < len(lvl); i += ch {
			copy(lvl[i:i+ch], v[:ch])
		}
	}
}

// The image.Image and draw.Image views expose layer zero of the base level,
// top row first, clamped to [0, 1].

func (t *Texture) ColorModel() color.Model { return color.RGBA64Model }

func (t *Texture) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.desc.Width, t.desc.Height)
}

func (t *Texture) At(x, y int) color.Color {
	v := t.Load(x, t.desc.Height-1-y, 0, 0)
	if t.desc.Format.Channels() < 4 {
		v[3] = 1
	}
	return color.RGBA64{
		R: toUnorm16(v[0]),
		G: toUnorm16(v[1]),
		B: toUnorm16(v[2]),
		A: toUnorm16(v[3]),
	}
}

func (t *Texture) Set(x, y int, c color.Color) {
	r, g, b, a := c.RGBA()
	t.Store(x, t.desc.Height-1-y, 0, 0, [4]float32{
		float32(r) / 0xffff,
		float32(g) / 0xffff,
		float32(b) / 0xffff,
		float32(a) / 0xffff,
	})
}

func toUnorm16(f float32) uint16 {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 0xffff
	}
	return uint16(f*0xffff + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floor(f float32) float32 {
	i := float32(int(f))
	if f < i {
		return i - 1
	}
	return i
}
