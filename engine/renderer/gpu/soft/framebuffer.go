package soft

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type Framebuffer struct {
	id          uint32
	label       string
	width       int
	height      int
	attachments map[gpu.Attachment]*Texture
}

func (f *Framebuffer) ID() uint32       { return f.id }
func (f *Framebuffer) Label() string    { return f.label }
func (f *Framebuffer) Size() (int, int) { return f.width, f.height }

func (f *Framebuffer) Resize(width, height int) {
	if width == f.width && height == f.height {
		return
	}
	f.width, f.height = width, height
	for _, t := range f.attachments {
		t.Resize(width, height, t.desc.Depth)
	}
}

func (f *Framebuffer) Attachment(a gpu.Attachment) gpu.Texture {
	t, ok := f.attachments[a]
	if !ok {
		return nil
	}
	return t
}

func (f *Framebuffer) Clear() {
	for a, t := range f.attachments {
		if a == gpu.AttachmentDepth {
			t.Fill([4]float32{1})
			continue
		}
		t.Fill([4]float32{})
	}
}

func attachmentLabel(fb string, a gpu.Attachment) string {
	if a == gpu.AttachmentDepth {
		return fmt.Sprintf("%s.depth", fb)
	}
	return fmt.Sprintf("%s.colour%d", fb, a)
}
