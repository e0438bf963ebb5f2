// Package gputest provides an in-memory implementation of the
// gpu interfaces.
//
// Memory regions are plain byte slices, copy commands are
// executed on the host when submitted and every command buffer
// keeps a log of what was recorded into it. Failures can be
// injected per operation.
package gputest

import (
	"fmt"
	"sync"

	"github.com/celer/dcrender/gpu"
)

// Operation names accepted by FailAt.
const (
	OpNewBuffer   = "NewBuffer"
	OpNewImage    = "NewImage"
	OpNewMemory   = "NewMemory"
	OpBind        = "Bind"
	OpMap         = "Map"
	OpNewFence    = "NewFence"
	OpNewCmdPool  = "NewCmdPool"
	OpNewPipeline = "NewPipeline"
	OpNewCmdBuf   = "NewCmdBuffer"
	OpSubmit      = "Submit"
	OpPresent     = "Present"
	OpNext        = "Next"
)

type failRule struct {
	nth int
	err error
}

// GPU is a fake gpu.GPU.
// The zero value is not usable; call New.
type GPU struct {
	DeviceName string
	Lim        gpu.Limits

	// BufferAlign is the alignment reported for buffers.
	BufferAlign uint64
	// ImageAlign is the alignment reported for optimal images.
	ImageAlign uint64
	// LinearAlign is the alignment reported for linear images.
	LinearAlign uint64
	// RowAlign is the row pitch alignment of linear images.
	RowAlign uint64

	mu       sync.Mutex
	live     map[any]string
	counts   map[string]int
	rules    map[string]failRule
	memories []*Memory
	queue    *Queue
}

// New creates a fake device with common desktop limits.
func New() *GPU {
	g := &GPU{
		DeviceName:  "gputest",
		Lim:         gpu.Limits{MinConstantAlignment: 256, MaxImage2D: 16384},
		BufferAlign: 256,
		ImageAlign:  4096,
		LinearAlign: 512,
		RowAlign:    64,
		live:        make(map[any]string),
		counts:      make(map[string]int),
		rules:       make(map[string]failRule),
	}
	g.queue = &Queue{g: g}
	return g
}

// FailAt makes the nth (0-based) call of op fail with err.
func (g *GPU) FailAt(op string, nth int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules[op] = failRule{nth, err}
}

func (g *GPU) check(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.counts[op]
	g.counts[op] = n + 1
	if r, ok := g.rules[op]; ok && r.nth == n {
		return r.err
	}
	return nil
}

// Count returns how many times op was called.
func (g *GPU) Count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[op]
}

func (g *GPU) track(obj any, kind string) {
	g.mu.Lock()
	g.live[obj] = kind
	g.mu.Unlock()
}

func (g *GPU) untrack(obj any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.live[obj]; !ok {
		panic(fmt.Sprintf("gputest: %T destroyed twice", obj))
	}
	delete(g.live, obj)
}

// Live returns the number of objects not yet destroyed,
// keyed by kind ("buffer", "image", "memory", ...).
func (g *GPU) Live() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := make(map[string]int)
	for _, k := range g.live {
		m[k]++
	}
	return m
}

// Memories returns every memory region ever allocated, in
// allocation order.
func (g *GPU) Memories() []*Memory {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Memory(nil), g.memories...)
}

// FakeQueue returns the fake queue.
func (g *GPU) FakeQueue() *Queue { return g.queue }

func (g *GPU) Name() string      { return g.DeviceName }
func (g *GPU) Limits() gpu.Limits { return g.Lim }
func (g *GPU) Queue() gpu.Queue   { return g.queue }
func (g *GPU) WaitIdle() error    { return nil }

func (g *GPU) NewBuffer(size uint64, usg gpu.BufferUsage) (gpu.Buffer, error) {
	if err := g.check(OpNewBuffer); err != nil {
		return nil, err
	}
	b := &Buffer{g: g, size: size, usage: usg}
	g.track(b, "buffer")
	return b, nil
}

func (g *GPU) NewImage(spec gpu.ImageSpec) (gpu.Image, error) {
	if err := g.check(OpNewImage); err != nil {
		return nil, err
	}
	if spec.Layers < 1 {
		return nil, fmt.Errorf("gputest: image with %d layers", spec.Layers)
	}
	// Vulkan only guarantees one array layer for linear tiling.
	if spec.Tiling == gpu.Linear && spec.Layers > 1 {
		return nil, fmt.Errorf("gputest: linear image with %d layers", spec.Layers)
	}
	img := &Image{g: g, spec: spec}
	if spec.Tiling == gpu.Linear {
		img.layout = gpu.LPreinitialized
	}
	g.track(img, "image")
	return img, nil
}

func (g *GPU) NewMemory(size uint64, typeBits uint32, kind gpu.MemoryKind) (gpu.Memory, error) {
	if err := g.check(OpNewMemory); err != nil {
		return nil, err
	}
	if typeBits == 0 {
		return nil, gpu.ErrNoMemoryType
	}
	m := &Memory{g: g, kind: kind, data: make([]byte, size)}
	g.track(m, "memory")
	g.mu.Lock()
	g.memories = append(g.memories, m)
	g.mu.Unlock()
	return m, nil
}

func (g *GPU) NewFence() (gpu.Fence, error) {
	if err := g.check(OpNewFence); err != nil {
		return nil, err
	}
	f := &Fence{g: g}
	g.track(f, "fence")
	return f, nil
}

func (g *GPU) NewCmdPool(transient bool) (gpu.CmdPool, error) {
	if err := g.check(OpNewCmdPool); err != nil {
		return nil, err
	}
	p := &CmdPool{g: g, transient: transient}
	g.track(p, "cmdpool")
	return p, nil
}

func (g *GPU) NewRenderPass(pf gpu.PixelFmt, clear bool) (gpu.RenderPass, error) {
	p := &RenderPass{g: g, pf: pf, clear: clear}
	g.track(p, "renderpass")
	return p, nil
}

func (g *GPU) NewPipeline(spec gpu.PipelineSpec) (gpu.Pipeline, error) {
	if err := g.check(OpNewPipeline); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{g: g, Spec: spec}
	g.track(p, "pipeline")
	return p, nil
}

func alignUp(n, a uint64) uint64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// Buffer is a fake gpu.Buffer.
type Buffer struct {
	g     *GPU
	size  uint64
	usage gpu.BufferUsage
	Mem   *Memory
	Off   uint64
}

func (b *Buffer) Size() uint64           { return b.size }
func (b *Buffer) Usage() gpu.BufferUsage { return b.usage }

func (b *Buffer) Requirements() gpu.MemoryRequirements {
	return gpu.MemoryRequirements{
		Size:      alignUp(b.size, b.g.BufferAlign),
		Alignment: b.g.BufferAlign,
		TypeBits:  0b11,
	}
}

func (b *Buffer) Bind(mem gpu.Memory, off uint64) error {
	if err := b.g.check(OpBind); err != nil {
		return err
	}
	m := mem.(*Memory)
	if off%b.g.BufferAlign != 0 || off+b.Requirements().Size > uint64(len(m.data)) {
		return fmt.Errorf("gputest: invalid buffer bind at %d", off)
	}
	b.Mem, b.Off = m, off
	m.bind(b, off)
	return nil
}

func (b *Buffer) Destroy() { b.g.untrack(b) }

// Image is a fake gpu.Image.
// Optimal images are laid out tightly packed.
type Image struct {
	g      *GPU
	spec   gpu.ImageSpec
	layout gpu.Layout
	Mem    *Memory
	Off    uint64
}

func (i *Image) Spec() gpu.ImageSpec { return i.spec }

// CurrentLayout returns the layout the image was last
// transitioned to by an executed command buffer.
func (i *Image) CurrentLayout() gpu.Layout {
	i.g.mu.Lock()
	defer i.g.mu.Unlock()
	return i.layout
}

func (i *Image) rowPitch() uint64 {
	if i.spec.Tiling == gpu.Linear {
		return alignUp(i.spec.RowSize(), i.g.RowAlign)
	}
	return i.spec.RowSize()
}

func (i *Image) layerSize() uint64 {
	return i.rowPitch() * uint64(i.spec.Size.Height)
}

func (i *Image) alignment() uint64 {
	if i.spec.Tiling == gpu.Linear {
		return i.g.LinearAlign
	}
	return i.g.ImageAlign
}

func (i *Image) Requirements() gpu.MemoryRequirements {
	a := i.alignment()
	return gpu.MemoryRequirements{
		Size:      alignUp(i.layerSize()*uint64(i.spec.Layers), a),
		Alignment: a,
		TypeBits:  0b11,
	}
}

func (i *Image) Subresource(layer int) gpu.SubresourceLayout {
	return gpu.SubresourceLayout{
		Offset:   uint64(layer) * i.layerSize(),
		Size:     i.layerSize(),
		RowPitch: i.rowPitch(),
	}
}

func (i *Image) Bind(mem gpu.Memory, off uint64) error {
	if err := i.g.check(OpBind); err != nil {
		return err
	}
	m := mem.(*Memory)
	if off%i.alignment() != 0 || off+i.Requirements().Size > uint64(len(m.data)) {
		return fmt.Errorf("gputest: invalid image bind at %d", off)
	}
	i.Mem, i.Off = m, off
	m.bind(i, off)
	return nil
}

func (i *Image) Destroy() { i.g.untrack(i) }

// Bound is an object bound to a Memory.
type Bound struct {
	Object any
	Offset uint64
}

// Memory is a fake gpu.Memory.
type Memory struct {
	g      *GPU
	kind   gpu.MemoryKind
	data   []byte
	mapped bool
	Binds  []Bound
}

func (m *Memory) bind(obj any, off uint64) {
	m.g.mu.Lock()
	m.Binds = append(m.Binds, Bound{obj, off})
	m.g.mu.Unlock()
}

// Images returns the images bound to m, in bind order.
func (m *Memory) Images() []*Image {
	var imgs []*Image
	for _, b := range m.Binds {
		if img, ok := b.Object.(*Image); ok {
			imgs = append(imgs, img)
		}
	}
	return imgs
}

// Bytes returns the backing storage regardless of kind.
func (m *Memory) Bytes() []byte { return m.data }

// Destroyed reports whether m was destroyed.
func (m *Memory) Destroyed() bool {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	_, ok := m.g.live[m]
	return !ok
}

func (m *Memory) Size() uint64         { return uint64(len(m.data)) }
func (m *Memory) Kind() gpu.MemoryKind { return m.kind }

func (m *Memory) Map() ([]byte, error) {
	if err := m.g.check(OpMap); err != nil {
		return nil, err
	}
	if m.kind != gpu.HostVisible {
		return nil, fmt.Errorf("gputest: mapping %v memory", m.kind)
	}
	if m.mapped {
		return nil, fmt.Errorf("gputest: memory already mapped")
	}
	m.mapped = true
	return m.data, nil
}

func (m *Memory) Unmap() { m.mapped = false }

func (m *Memory) Destroy() { m.g.untrack(m) }

// Fence is a fake gpu.Fence. Fences are signaled
// synchronously by Queue.Submit and Swapchain.Next.
type Fence struct {
	g        *GPU
	signaled bool
	waits    int
}

func (f *Fence) signal() {
	f.g.mu.Lock()
	f.signaled = true
	f.g.mu.Unlock()
}

// Waits returns how many times Wait was called.
func (f *Fence) Waits() int {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	return f.waits
}

func (f *Fence) Wait() error {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	f.waits++
	if !f.signaled {
		return fmt.Errorf("gputest: waiting on a fence that will never be signaled")
	}
	return nil
}

func (f *Fence) Reset() error {
	f.g.mu.Lock()
	f.signaled = false
	f.g.mu.Unlock()
	return nil
}

func (f *Fence) Destroy() { f.g.untrack(f) }

// RenderPass is a fake gpu.RenderPass.
type RenderPass struct {
	g     *GPU
	pf    gpu.PixelFmt
	clear bool
}

func (p *RenderPass) Format() gpu.PixelFmt { return p.pf }
func (p *RenderPass) Clears() bool         { return p.clear }

func (p *RenderPass) NewFB(img gpu.Image, size gpu.Extent) (gpu.Framebuf, error) {
	fb := &Framebuf{g: p.g, Image: img, size: size}
	p.g.track(fb, "framebuf")
	return fb, nil
}

func (p *RenderPass) Destroy() { p.g.untrack(p) }

// Framebuf is a fake gpu.Framebuf.
type Framebuf struct {
	g     *GPU
	Image gpu.Image
	size  gpu.Extent
}

func (f *Framebuf) Size() gpu.Extent { return f.size }
func (f *Framebuf) Destroy()         { f.g.untrack(f) }

// Pipeline is a fake gpu.Pipeline.
type Pipeline struct {
	g    *GPU
	Spec gpu.PipelineSpec
}

func (p *Pipeline) Pass() gpu.RenderPass { return p.Spec.Pass }
func (p *Pipeline) Destroy()             { p.g.untrack(p) }
