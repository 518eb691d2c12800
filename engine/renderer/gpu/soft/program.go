package soft

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Kernel runs one compute workgroup. Kernels must only write texels or
// buffer elements owned by their workgroup; workgroups run concurrently.
type Kernel func(inv *Invocation)

type Program struct {
	name   string
	kind   gpu.ProgramKind
	kernel Kernel
}

func (p *Program) Name() string          { return p.name }
func (p *Program) Kind() gpu.ProgramKind { return p.kind }

// ShaderCache maps stable program keys to registered programs.
type ShaderCache struct {
	mu       sync.RWMutex
	programs map[string]*Program
}

func newShaderCache() *ShaderCache {
	return &ShaderCache{programs: make(map[string]*Program)}
}

func (sc *ShaderCache) Program(name string) (gpu.Program, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	p, ok := sc.programs[name]
	if !ok {
		return nil, fmt.Errorf("shader cache - %q: %w", name, core.ErrUnknownProgram)
	}
	return p, nil
}

// RegisterCompute adds or replaces a compute program.
func (sc *ShaderCache) RegisterCompute(name string, k Kernel) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.programs[name] = &Program{name: name, kind: gpu.ProgramCompute, kernel: k}
}

// RegisterRaster adds a raster program. Draws with it are recorded but not
// rasterized.
func (sc *ShaderCache) RegisterRaster(name string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.programs[name] = &Program{name: name, kind: gpu.ProgramRaster}
}

func (sc *ShaderCache) Names() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	names := make([]string, 0, len(sc.programs))
	for n := range sc.programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invocation is the view a kernel has of one workgroup.
type Invocation struct {
	GroupID   [3]int
	NumGroups [3]int
	bindings  []gpu.Binding
}

func (inv *Invocation) find(kind gpu.BindingKind, slot int) (gpu.Binding, bool) {
	for _, b := range inv.bindings {
		if b.Kind == kind && b.Slot == slot {
			return b, true
		}
	}
	return gpu.Binding{}, false
}

// Image returns the texture bound to an image slot and its mip level.
func (inv *Invocation) Image(slot int) (*Texture, int) {
	b, ok := inv.find(gpu.BindImage, slot)
	if !ok {
		return nil, 0
	}
	t, _ := b.Resource.(*Texture)
	return t, b.Mip
}

func (inv *Invocation) Sampler(slot int) *Texture {
	b, ok := inv.find(gpu.BindSampler, slot)
	if !ok {
		return nil
	}
	t, _ := b.Resource.(*Texture)
	return t
}

func (inv *Invocation) Storage(slot int) *Buffer {
	b, ok := inv.find(gpu.BindStorage, slot)
	if !ok {
		return nil
	}
	buf, _ := b.Resource.(*Buffer)
	return buf
}

// StorageRange returns the contents of the buffer bound to a storage slot
// from the binding's offset on.
func (inv *Invocation) StorageRange(slot int) []byte {
	b, ok := inv.find(gpu.BindStorage, slot)
	if !ok {
		return nil
	}
	buf, _ := b.Resource.(*Buffer)
	if buf == nil || b.Offset >= buf.Size() {
		return nil
	}
	return buf.Bytes()[b.Offset:]
}

func (inv *Invocation) Uniform(slot int) *Buffer {
	b, ok := inv.find(gpu.BindUniform, slot)
	if !ok {
		return nil
	}
	buf, _ := b.Resource.(*Buffer)
	return buf
}
