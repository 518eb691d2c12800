package systems

import (
	"fmt"
	"reflect"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type frameState int

const (
	frameIdle frameState = iota
	frameBegun
	frameRendered
)

func (s frameState) String() string {
	switch s {
	case frameIdle:
		return "idle"
	case frameBegun:
		return "begun"
	case frameRendered:
		return "rendered"
	}
	return "unknown"
}

/**
 * @brief Owns the render passes and drives their lifecycle in dependency
 * order. Passes are registered once, sorted by Initialize and then stepped
 * through RendererBegin, Render and RendererEnd every frame.
 */
type RenderPassSystem struct {
	ctx         *metadata.RendererContext
	registered  []metadata.RenderPass
	order       []metadata.RenderPass
	types       map[reflect.Type]metadata.RenderPass
	initialized bool
	state       frameState
}

func NewRenderPassSystem(ctx *metadata.RendererContext) *RenderPassSystem {
	return &RenderPassSystem{
		ctx:   ctx,
		types: make(map[reflect.Type]metadata.RenderPass),
	}
}

/**
 * @brief Adds passes to the graph. Each concrete pass type may be registered
 * once. Must be called before Initialize.
 */
func (rps *RenderPassSystem) Register(passes ...metadata.RenderPass) error {
	if rps.initialized {
		return fmt.Errorf("func Register - graph already initialized: %w", core.ErrFrameState)
	}
	for _, p := range passes {
		t := reflect.TypeOf(p)
		if _, ok := rps.types[t]; ok {
			return fmt.Errorf("func Register - %s: %w", p.Name(), core.ErrDuplicatePass)
		}
		rps.types[t] = p
		rps.registered = append(rps.registered, p)
	}
	return nil
}

// sortPasses orders the registered passes so that every pass follows its
// dependencies. Ties keep registration order.
func sortPasses(passes []metadata.RenderPass) ([]metadata.RenderPass, error) {
	index := make(map[metadata.RenderPass]int, len(passes))
	for i, p := range passes {
		index[p] = i
	}

	indegree := make([]int, len(passes))
	dependents := make([][]int, len(passes))
	for i, p := range passes {
		seen := make(map[int]bool)
		for _, dep := range p.Dependencies() {
			if dep == nil {
				continue
			}
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("func sortPasses - %s depends on %s: %w", p.Name(), dep.Name(), core.ErrUnknownDependency)
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]metadata.RenderPass, 0, len(passes))
	done := make([]bool, len(passes))
	for len(order) < len(passes) {
		// Lowest registration index among the ready passes.
		next := -1
		for i := range passes {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, p := range passes {
				if !done[i] {
					stuck = append(stuck, p.Name())
				}
			}
			return nil, fmt.Errorf("func sortPasses - %v: %w", stuck, core.ErrPassCycle)
		}
		done[next] = true
		order = append(order, passes[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return order, nil
}

/**
 * @brief Sorts the graph and calls OnInit on every pass in order.
 * @return An error wrapping ErrPassCycle, ErrUnknownDependency or the first
 * OnInit failure.
 */
func (rps *RenderPassSystem) Initialize() error {
	if rps.initialized {
		return nil
	}
	order, err := sortPasses(rps.registered)
	if err != nil {
		return err
	}
	for _, p := range order {
		if err := p.OnInit(rps.ctx); err != nil {
			return fmt.Errorf("func Initialize - failed to initialize %s: %w", p.Name(), err)
		}
	}
	rps.order = order
	rps.initialized = true

	names := make([]string, len(order))
	for i, p := range order {
		names[i] = p.Name()
	}
	core.LogInfo("render graph initialized: %v", names)
	return nil
}

func (rps *RenderPassSystem) expect(fn string, want frameState) error {
	if !rps.initialized {
		return fmt.Errorf("func %s - graph not initialized: %w", fn, core.ErrFrameState)
	}
	if rps.state != want {
		return fmt.Errorf("func %s - frame is %s, want %s: %w", fn, rps.state, want, core.ErrFrameState)
	}
	return nil
}

/**
 * @brief Applies queued settings and begins the frame on every pass.
 */
func (rps *RenderPassSystem) RendererBegin(width, height uint32) error {
	if err := rps.expect("RendererBegin", frameIdle); err != nil {
		return err
	}
	for _, p := range rps.order {
		p.UpdatePassData()
	}
	for _, p := range rps.order {
		p.OnRendererBegin(rps.ctx, width, height)
	}
	rps.state = frameBegun
	return nil
}

func (rps *RenderPassSystem) Render() error {
	if err := rps.expect("Render", frameBegun); err != nil {
		return err
	}
	for _, p := range rps.order {
		p.OnRender(rps.ctx)
	}
	rps.state = frameRendered
	return nil
}

/**
 * @brief Ends the frame on every pass. target may be nil when the frame is
 * not presented.
 */
func (rps *RenderPassSystem) RendererEnd(target gpu.Framebuffer) error {
	if err := rps.expect("RendererEnd", frameRendered); err != nil {
		return err
	}
	for _, p := range rps.order {
		p.OnRendererEnd(rps.ctx, target)
	}
	rps.state = frameIdle
	return nil
}

// Order returns the execution order. It is empty until Initialize succeeds.
func (rps *RenderPassSystem) Order() []metadata.RenderPass {
	return append([]metadata.RenderPass(nil), rps.order...)
}

// Passes returns the passes in registration order.
func (rps *RenderPassSystem) Passes() []metadata.RenderPass {
	return append([]metadata.RenderPass(nil), rps.registered...)
}

func (rps *RenderPassSystem) Context() *metadata.RendererContext {
	return rps.ctx
}

func (rps *RenderPassSystem) Shutdown() error {
	for i := len(rps.order) - 1; i >= 0; i-- {
		rps.order[i].OnShutdown(rps.ctx)
	}
	rps.order = nil
	rps.initialized = false
	rps.state = frameIdle
	return nil
}

// GetPass returns the registered pass of type T.
func GetPass[T metadata.RenderPass](rps *RenderPassSystem) (T, bool) {
	for _, p := range rps.registered {
		if t, ok := p.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// GetDataBlock returns the first data block of type *T published by a
// registered pass.
func GetDataBlock[T any](rps *RenderPassSystem) (*T, bool) {
	for _, p := range rps.registered {
		if d, ok := p.DataBlock().(*T); ok {
			return d, true
		}
	}
	return nil, false
}
