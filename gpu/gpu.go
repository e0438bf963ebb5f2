// Package gpu defines the device contract the renderer is
// written against.
// A backend (see package vulkan) implements these interfaces
// on top of a real graphics API; gputest implements them in
// host memory for tests.
package gpu

import (
	"errors"

	"github.com/mokiat/gog/opt"
)

// ErrNoDeviceMemory means that device memory could not
// be allocated.
var ErrNoDeviceMemory = errors.New("gpu: out of device memory")

// ErrNoHostMemory means that host memory could not be
// allocated.
var ErrNoHostMemory = errors.New("gpu: out of host memory")

// ErrNoMemoryType means that no memory type satisfies both
// the objects' requirements and the requested MemoryKind.
var ErrNoMemoryType = errors.New("gpu: no suitable memory type")

// ErrFatal means that the device is in an unrecoverable
// state.
var ErrFatal = errors.New("gpu: fatal error")

// Destroyer is the interface that wraps the Destroy method.
type Destroyer interface {
	Destroy()
}

// GPU is the graphics device handle.
// It is not safe for concurrent use unless stated otherwise.
type GPU interface {
	// Name returns the device name as reported by the
	// driver.
	Name() string

	// Limits returns the device limits.
	Limits() Limits

	// NewBuffer creates a buffer object. The buffer has no
	// memory bound to it.
	NewBuffer(size uint64, usg BufferUsage) (Buffer, error)

	// NewImage creates an image object. The image has no
	// memory bound to it. Optimal images start in the
	// LUndefined layout, linear images in LPreinitialized.
	NewImage(spec ImageSpec) (Image, error)

	// NewMemory allocates a memory region of the given kind
	// from a type allowed by typeBits.
	NewMemory(size uint64, typeBits uint32, kind MemoryKind) (Memory, error)

	// NewFence creates an unsignaled fence.
	NewFence() (Fence, error)

	// NewCmdPool creates a command pool. transient pools are
	// meant for short-lived one-shot command buffers.
	NewCmdPool(transient bool) (CmdPool, error)

	// NewRenderPass creates a single color attachment render
	// pass. The attachment is expected in LColorTarget both
	// before and after the pass. If clear is set the pass
	// clears the attachment on load.
	NewRenderPass(pf PixelFmt, clear bool) (RenderPass, error)

	// NewPipeline creates a graphics pipeline usable in
	// passes compatible with spec.Pass.
	NewPipeline(spec PipelineSpec) (Pipeline, error)

	// Queue returns the queue used for graphics, transfer and
	// presentation.
	Queue() Queue

	// WaitIdle blocks until the device has no pending work.
	WaitIdle() error
}

// Limits describes device limits the renderer depends on.
type Limits struct {
	// MinConstantAlignment is the minimum offset alignment
	// of constant (uniform) buffer ranges.
	MinConstantAlignment uint64
	// MaxImage2D is the maximum width/height of 2D images.
	MaxImage2D uint32
}

// MemoryRequirements describes what an object needs from
// the memory it is bound to.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

// MemoryKind selects a memory heap.
type MemoryKind int

const (
	// DeviceLocal memory is fast for the GPU and not
	// mappable.
	DeviceLocal MemoryKind = iota
	// HostVisible memory is mappable and coherent.
	HostVisible
)

func (k MemoryKind) String() string {
	switch k {
	case DeviceLocal:
		return "device-local"
	case HostVisible:
		return "host-visible"
	}
	return "unknown"
}

// Buffer is the interface that defines a GPU buffer.
type Buffer interface {
	Destroyer
	Size() uint64
	Usage() BufferUsage
	Requirements() MemoryRequirements
	Bind(mem Memory, off uint64) error
}

// Image is the interface that defines a GPU image.
type Image interface {
	Destroyer
	Spec() ImageSpec
	Requirements() MemoryRequirements
	Bind(mem Memory, off uint64) error

	// Subresource returns the host layout of one layer.
	// Only meaningful for linear images.
	Subresource(layer int) SubresourceLayout
}

// SubresourceLayout is the memory layout of one image layer,
// relative to the image's bind offset.
type SubresourceLayout struct {
	Offset   uint64
	Size     uint64
	RowPitch uint64
}

// Memory is the interface that defines a memory region.
type Memory interface {
	Destroyer
	Size() uint64
	Kind() MemoryKind

	// Map maps the whole region. Only valid for HostVisible
	// memory. The slice is invalid after Unmap.
	Map() ([]byte, error)
	Unmap()
}

// Fence is a GPU to CPU synchronization object.
type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled.
	Wait() error
	// Reset unsignals the fence.
	Reset() error
}

// Queue is the interface that defines a device queue.
type Queue interface {
	// Submit submits cbs for execution. If f is not nil it
	// is signaled when execution completes.
	Submit(cbs []CmdBuffer, f Fence) error

	// Present submits cbs and then presents the swapchain
	// image identified by index once they finish.
	Present(sc Swapchain, index int, cbs []CmdBuffer) error
}

// CmdPool allocates command buffers.
type CmdPool interface {
	Destroyer
	New(count int, secondary bool) ([]CmdBuffer, error)
	Free(cbs []CmdBuffer)
}

// RenderPass is the interface that defines a render pass.
type RenderPass interface {
	Destroyer
	Format() PixelFmt
	Clears() bool

	// NewFB creates a framebuffer targeting layer 0 of img.
	NewFB(img Image, size Extent) (Framebuf, error)
}

// Pipeline is the interface that defines a graphics pipeline.
type Pipeline interface {
	Destroyer
	// Pass returns the render pass the pipeline was created
	// for. The pipeline may be used in any pass of the same
	// format.
	Pass() RenderPass
}

// Framebuf is the interface that defines a framebuffer.
type Framebuf interface {
	Destroyer
	Size() Extent
}

// Swapchain is the interface that defines an n-buffered
// swapchain for presentation.
type Swapchain interface {
	Destroyer
	Images() []Image
	Format() PixelFmt
	Size() Extent

	// Next starts acquisition of the next writable image
	// and returns its index. f is signaled once the image
	// is no longer in use by the presentation engine.
	Next(f Fence) (int, error)
}

// ClearColor is a RGBA clear value.
type ClearColor [4]float32

// CmdBuffer is the interface that defines a command buffer.
type CmdBuffer interface {
	// Begin starts recording a primary command buffer.
	Begin(oneTime bool) error
	// BeginSecondary starts recording a secondary command
	// buffer that continues inside pass/fb.
	BeginSecondary(pass RenderPass, fb Framebuf) error
	End() error
	Reset() error

	Transition(t []Transition)
	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	// CopyImage copies srcLayer of src (in LCopySrc) to
	// dstLayer of dst (in LCopyDst).
	CopyImage(src, dst Image, size Extent, srcLayer, dstLayer int)

	// BeginPass begins a render pass. If secondary is set
	// the pass contents come from Execute.
	BeginPass(pass RenderPass, fb Framebuf, clear opt.T[ClearColor], secondary bool)
	EndPass()
	Execute(cbs []CmdBuffer)

	// SetPipeline binds p for the draws that follow. It is
	// valid only inside a pass, and the viewport covers the
	// whole framebuffer.
	SetPipeline(p Pipeline)
	SetVertexBuf(buf Buffer, off uint64)
	SetIndexBuf(format IndexFmt, buf Buffer, off uint64)
	Draw(vertCount, instCount uint32)
	DrawIndexed(idxCount, instCount uint32)
}

// Transition is an image layout transition.
type Transition struct {
	Image  Image
	Before Layout
	After  Layout
}

// BufferCopy is a buffer to buffer copy region.
type BufferCopy struct {
	SrcOff uint64
	DstOff uint64
	Size   uint64
}
