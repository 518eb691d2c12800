// Package gpu declares the boundary between the render passes and the
// graphics device. Passes only see these interfaces; the device behind them
// owns allocation, binding and command submission.
package gpu

// BarrierType selects which classes of incoherent writes a MemoryBarrier
// makes visible to later commands.
type BarrierType uint32

const (
	BarrierImageAccess BarrierType = 1 << iota
	BarrierTextureFetch
	BarrierStorageBuffer
	BarrierUniform

	BarrierNone BarrierType = 0
	BarrierAll  BarrierType = BarrierImageAccess | BarrierTextureFetch | BarrierStorageBuffer | BarrierUniform
)

type TextureFormat uint8

const (
	FormatRGBA8 TextureFormat = iota
	FormatRGBA16F
	FormatRGBA32F
	FormatRG16F
	FormatR32F
	FormatR32I
	FormatDepth32F
)

// Channels returns the number of components stored per texel.
func (f TextureFormat) Channels() int {
	switch f {
	case FormatRG16F:
		return 2
	case FormatR32F, FormatR32I, FormatDepth32F:
		return 1
	default:
		return 4
	}
}

type TextureKind uint8

const (
	Texture2D TextureKind = iota
	Texture2DArray
	Texture3D
	// TextureCubeArray stores six faces per layer; Depth counts faces.
	TextureCubeArray
)

type TextureDesc struct {
	Label  string
	Kind   TextureKind
	Format TextureFormat
	Width  int
	Height int
	// Layers for arrays, slices for 3D textures, faces for cube arrays.
	Depth int
	Mips  int
}

// MipSize returns the dimensions of a mip level, never below one texel.
func (d TextureDesc) MipSize(mip int) (int, int) {
	return max(1, d.Width>>mip), max(1, d.Height>>mip)
}

type Resource interface {
	ID() uint32
	Label() string
}

type Texture interface {
	Resource
	Desc() TextureDesc
	// Resize reallocates the storage. Contents are undefined afterwards.
	Resize(width, height, depth int)
	// Upload writes 8-bit RGBA pixels, top row first, into the base level
	// of layer zero.
	Upload(pixels []uint8)
}

type Buffer interface {
	Resource
	Size() int
	Resize(size int)
	SetData(offset int, data []byte)
	// Bytes exposes the buffer contents for readback.
	Bytes() []byte
}

type Attachment uint8

const (
	AttachmentColour0 Attachment = iota
	AttachmentColour1
	AttachmentColour2
	AttachmentColour3
	AttachmentDepth
)

type AttachmentSpec struct {
	Attachment Attachment
	Format     TextureFormat
	// Layers above one make the attachment a 2D array; draws pick the
	// layer through DrawCall.Layer.
	Layers int
}

type Framebuffer interface {
	Resource
	Size() (int, int)
	Resize(width, height int)
	Attachment(a Attachment) Texture
	// Clear resets colour attachments to zero and depth to one.
	Clear()
}

type ProgramKind uint8

const (
	ProgramCompute ProgramKind = iota
	ProgramRaster
)

type Program interface {
	Name() string
	Kind() ProgramKind
}

// ShaderCache looks programs up by a stable string key.
type ShaderCache interface {
	Program(name string) (Program, error)
}

// Query is a GPU timestamp. Result is only meaningful once Available.
type Query interface {
	Record()
	Available() bool
	Result() uint64
}

// DrawCall is one (possibly instanced) indexed draw into Target.
type DrawCall struct {
	Program       Program
	Target        Framebuffer
	Layer         int
	VertexBuffer  Buffer
	IndexBuffer   Buffer
	IndexCount    int
	InstanceCount int
	BaseInstance  int
	Bindings      []Binding
}

type Device interface {
	NewTexture(desc TextureDesc) Texture
	NewBuffer(label string, size int) Buffer
	NewFramebuffer(label string, width, height int, attachments ...AttachmentSpec) Framebuffer
	NewQuery() Query
	Destroy(r Resource)

	Shaders() ShaderCache

	// Dispatch runs a compute program over x*y*z workgroups.
	Dispatch(program Program, x, y, z int, bindings ...Binding)
	MemoryBarrier(barrier BarrierType)
	Draw(call DrawCall)
	// Blit scales the first colour level of src into dst's first colour attachment.
	Blit(src Texture, dst Framebuffer)

	// EndFrame marks the end of the frame's command stream.
	EndFrame()
}
