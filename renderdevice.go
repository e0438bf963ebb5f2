package dcrender

import (
	"fmt"

	"github.com/mokiat/gog/opt"

	"github.com/celer/dcrender/gpu"
)

// Options configures a RenderDevice.
type Options struct {
	// ClearColor, if specified, is the color the backbuffers
	// are cleared to when set as render target.
	ClearColor opt.T[gpu.ClearColor]
}

type passKey struct {
	pf    gpu.PixelFmt
	clear bool
}

// RenderDevice is the rendering context of one device and its
// swapchain. It owns the command pools, the backbuffer render
// targets and the RenderControl pacing them.
//
// Methods must be called from a single goroutine.
type RenderDevice struct {
	gpu    gpu.GPU
	sc     gpu.Swapchain
	agent  string
	limits gpu.Limits

	uploadPool gpu.CmdPool
	renderPool gpu.CmdPool
	fence      gpu.Fence
	control    *RenderControl
	passes     map[passKey]gpu.RenderPass
	primary    []*RenderTarget
	closed     bool
}

// NewRenderDevice creates a render device over g and sc and
// acquires the first backbuffer. opts may be nil.
// g and sc remain owned by the caller.
func NewRenderDevice(g gpu.GPU, sc gpu.Swapchain, opts *Options) (dev *RenderDevice, err error) {
	if opts == nil {
		opts = &Options{}
	}
	d := &RenderDevice{
		gpu:    g,
		sc:     sc,
		agent:  fmt.Sprintf("Vulkan %s", g.Name()),
		limits: g.Limits(),
		passes: make(map[passKey]gpu.RenderPass),
	}
	registerDevice(g)
	defer func() {
		if err != nil {
			d.release()
		}
	}()

	if d.uploadPool, err = g.NewCmdPool(true); err != nil {
		return nil, fmt.Errorf("create upload command pool: %w", err)
	}
	if d.renderPool, err = g.NewCmdPool(false); err != nil {
		return nil, fmt.Errorf("create render command pool: %w", err)
	}
	if d.fence, err = g.NewFence(); err != nil {
		return nil, fmt.Errorf("create acquisition fence: %w", err)
	}

	pass, err := d.renderPass(sc.Format(), opts.ClearColor.Specified)
	if err != nil {
		return nil, err
	}
	for i, img := range sc.Images() {
		fb, err := pass.NewFB(img, sc.Size())
		if err != nil {
			return nil, fmt.Errorf("create framebuffer for backbuffer %d: %w", i, err)
		}
		d.primary = append(d.primary, &RenderTarget{
			image:   img,
			pass:    pass,
			fb:      fb,
			clear:   opts.ClearColor,
			idle:    gpu.LPresent,
			discard: true,
		})
	}

	if d.control, err = NewRenderControl(sc, d.fence); err != nil {
		return nil, err
	}
	Logger().Info("render device ready", "agent", d.agent, "backbuffers", len(d.primary))
	return d, nil
}

func (d *RenderDevice) renderPass(pf gpu.PixelFmt, clear bool) (gpu.RenderPass, error) {
	k := passKey{pf, clear}
	if p, ok := d.passes[k]; ok {
		return p, nil
	}
	p, err := d.gpu.NewRenderPass(pf, clear)
	if err != nil {
		return nil, fmt.Errorf("create render pass: %w", err)
	}
	d.passes[k] = p
	return p, nil
}

// Agent returns a description of the rendering backend,
// such as "Vulkan GeForce GTX 1080".
func (d *RenderDevice) Agent() string { return d.agent }

func (d *RenderDevice) Limits() gpu.Limits       { return d.limits }
func (d *RenderDevice) GPU() gpu.GPU             { return d.gpu }
func (d *RenderDevice) Swapchain() gpu.Swapchain { return d.sc }

// PrimaryRenderTargetCount returns the number of backbuffers.
func (d *RenderDevice) PrimaryRenderTargetCount() int { return len(d.primary) }

// PrimaryRenderTarget returns the render target of the ith
// backbuffer.
func (d *RenderDevice) PrimaryRenderTarget(i int) *RenderTarget { return d.primary[i] }

// BeginAcquireNext starts acquiring the next backbuffer.
// See RenderControl.BeginAcquireNext.
func (d *RenderDevice) BeginAcquireNext() { d.control.BeginAcquireNext() }

// CheckReadyNext returns the next backbuffer index if it is
// ready. It never blocks.
func (d *RenderDevice) CheckReadyNext() opt.T[int] { return d.control.CheckReadyNext() }

// WaitLastRenderCompletion blocks until the next backbuffer
// index is ready.
func (d *RenderDevice) WaitLastRenderCompletion() int { return d.control.WaitLastRenderCompletion() }

// NewRenderCommandBuffer allocates count primary command
// buffers, usually one per backbuffer.
func (d *RenderDevice) NewRenderCommandBuffer(count int) (*RenderCommands, error) {
	return newRenderCommands(d.renderPool, count, false)
}

// NewRenderSubcommandBuffer allocates count secondary command
// buffers.
func (d *RenderDevice) NewRenderSubcommandBuffer(count int) (*RenderCommands, error) {
	return newRenderCommands(d.renderPool, count, true)
}

// NewTextureRenderTarget creates a render target over the ith
// texture of block, which must have RenderTargetUsage.
// The caller destroys the target before the block.
func (d *RenderDevice) NewTextureRenderTarget(block *ResourceBlock, i int, clear opt.T[gpu.ClearColor]) (*RenderTarget, error) {
	if block.Usage(i) != RenderTargetUsage {
		return nil, fmt.Errorf("%w: texture %d is %v", ErrInvalidDescriptor, i, block.Usage(i))
	}
	img := block.Texture(i)
	spec := img.Spec()
	pass, err := d.renderPass(spec.Format, clear.Specified)
	if err != nil {
		return nil, err
	}
	fb, err := pass.NewFB(img, spec.Size)
	if err != nil {
		return nil, fmt.Errorf("create framebuffer for texture %d: %w", i, err)
	}
	return &RenderTarget{
		image: img,
		pass:  pass,
		fb:    fb,
		clear: clear,
		idle:  gpu.LShaderRead,
	}, nil
}

// NewPipeline creates a pipeline for spec that draws into t
// and into every target of the same format. spec.Pass is
// ignored. The caller destroys the pipeline.
func (d *RenderDevice) NewPipeline(t *RenderTarget, spec gpu.PipelineSpec) (gpu.Pipeline, error) {
	spec.Pass = t.pass
	p, err := d.gpu.NewPipeline(spec)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return p, nil
}

// Render submits the ith command buffer of cmds and presents
// backbuffer index once it completes.
func (d *RenderDevice) Render(index int, cmds *RenderCommands) error {
	if err := d.gpu.Queue().Present(d.sc, index, []gpu.CmdBuffer{cmds.bufs[index]}); err != nil {
		return fmt.Errorf("render backbuffer %d: %w", index, err)
	}
	return nil
}

// Close stops the render control, waits for the device to go
// idle and destroys everything the device created.
// Blocks created with CreateResources and command buffers must
// be destroyed by the caller beforehand.
func (d *RenderDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.control != nil {
		d.control.Close()
	}
	err := d.gpu.WaitIdle()
	d.release()
	Logger().Info("render device closed", "agent", d.agent)
	return err
}

func (d *RenderDevice) release() {
	for _, t := range d.primary {
		t.Destroy()
	}
	d.primary = nil
	for k, p := range d.passes {
		p.Destroy()
		delete(d.passes, k)
	}
	if d.fence != nil {
		d.fence.Destroy()
		d.fence = nil
	}
	if d.renderPool != nil {
		d.renderPool.Destroy()
		d.renderPool = nil
	}
	if d.uploadPool != nil {
		d.uploadPool.Destroy()
		d.uploadPool = nil
	}
	unregisterDevice(d.gpu)
}
