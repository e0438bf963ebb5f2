package dcrender

import (
	"fmt"
	"slices"

	"github.com/mokiat/gog/opt"

	"github.com/celer/dcrender/gpu"
)

// RenderTarget is an image that can be rendered into, together
// with the render pass and framebuffer that target it.
type RenderTarget struct {
	image gpu.Image
	pass  gpu.RenderPass
	fb    gpu.Framebuf
	clear opt.T[gpu.ClearColor]

	// idle is the layout the image rests in between frames.
	idle gpu.Layout
	// discard is set for swapchain images, whose contents
	// need not survive from one frame to the next.
	discard bool
}

func (t *RenderTarget) Image() gpu.Image                 { return t.image }
func (t *RenderTarget) Size() gpu.Extent                 { return t.fb.Size() }
func (t *RenderTarget) ClearColor() opt.T[gpu.ClearColor] { return t.clear }

// Pass returns the render pass of the target. Pipelines that
// draw into the target are created for it.
func (t *RenderTarget) Pass() gpu.RenderPass { return t.pass }

// Destroy destroys the framebuffer. The image and render pass
// are owned elsewhere.
func (t *RenderTarget) Destroy() {
	if t.fb != nil {
		t.fb.Destroy()
		t.fb = nil
	}
}

// BufferSlice is a range of elements in a buffer.
type BufferSlice struct {
	Buffer gpu.Buffer
	Offset uint64
	Count  uint32
}

// VertexArray is the input of a draw call. If Indices is
// specified the draw is indexed.
type VertexArray struct {
	Vertices BufferSlice
	Indices  opt.T[BufferSlice]
	IndexFmt gpu.IndexFmt
}

func setPipeline(cb gpu.CmdBuffer, pass gpu.RenderPass, p gpu.Pipeline) {
	if p.Pass().Format() != pass.Format() {
		panic(fmt.Sprintf("dcrender: pipeline for %v used in a %v pass", p.Pass().Format(), pass.Format()))
	}
	cb.SetPipeline(p)
}

func draw(cb gpu.CmdBuffer, va VertexArray, instances uint32) {
	cb.SetVertexBuf(va.Vertices.Buffer, va.Vertices.Offset)
	if va.Indices.Specified {
		idx := va.Indices.Value
		cb.SetIndexBuf(va.IndexFmt, idx.Buffer, idx.Offset)
		cb.DrawIndexed(idx.Count, instances)
		return
	}
	cb.Draw(va.Vertices.Count, instances)
}

// RenderCommands is a set of pooled command buffers, one per
// frame slot.
type RenderCommands struct {
	pool      gpu.CmdPool
	bufs      []gpu.CmdBuffer
	secondary bool
}

func newRenderCommands(pool gpu.CmdPool, count int, secondary bool) (*RenderCommands, error) {
	bufs, err := pool.New(count, secondary)
	if err != nil {
		return nil, fmt.Errorf("allocate command buffers: %w", err)
	}
	return &RenderCommands{pool: pool, bufs: bufs, secondary: secondary}, nil
}

// Len returns the number of command buffers.
func (c *RenderCommands) Len() int { return len(c.bufs) }

// CmdBuffer returns the ith command buffer.
func (c *RenderCommands) CmdBuffer(i int) gpu.CmdBuffer { return c.bufs[i] }

// Destroy returns the command buffers to their pool.
func (c *RenderCommands) Destroy() {
	if c.bufs != nil {
		c.pool.Free(c.bufs)
		c.bufs = nil
	}
}

// UpdateRenderCommands re-records every primary command buffer
// with fn. After fn returns, any open pass is closed, prepared
// targets go back to their idle layout and the buffer is ended,
// whether fn failed or not.
func (c *RenderCommands) UpdateRenderCommands(fn func(r *Recorder, index int) error) error {
	if c.secondary {
		panic("dcrender: UpdateRenderCommands on secondary command buffers")
	}
	for i, cb := range c.bufs {
		if err := recordPrimary(cb, i, fn); err != nil {
			return fmt.Errorf("record render commands %d: %w", i, err)
		}
	}
	return nil
}

func recordPrimary(cb gpu.CmdBuffer, index int, fn func(*Recorder, int) error) (err error) {
	if err := cb.Reset(); err != nil {
		return err
	}
	if err := cb.Begin(false); err != nil {
		return err
	}
	r := &Recorder{cb: cb, index: index}
	defer func() {
		if e := r.finish(); err == nil {
			err = e
		}
	}()
	return fn(r, index)
}

// UpdateRenderSubcommands re-records every secondary command
// buffer with fn. The ith buffer continues the pass of
// target(i).
func (c *RenderCommands) UpdateRenderSubcommands(target func(index int) *RenderTarget, fn func(r *PassRecorder, index int) error) error {
	if !c.secondary {
		panic("dcrender: UpdateRenderSubcommands on primary command buffers")
	}
	for i, cb := range c.bufs {
		if err := recordSecondary(cb, target(i), i, fn); err != nil {
			return fmt.Errorf("record render subcommands %d: %w", i, err)
		}
	}
	return nil
}

func recordSecondary(cb gpu.CmdBuffer, t *RenderTarget, index int, fn func(*PassRecorder, int) error) (err error) {
	if err := cb.Reset(); err != nil {
		return err
	}
	if err := cb.BeginSecondary(t.pass, t.fb); err != nil {
		return err
	}
	defer func() {
		if e := cb.End(); err == nil {
			err = e
		}
	}()
	return fn(&PassRecorder{cb: cb, pass: t.pass}, index)
}

// Recorder records a primary command buffer.
// It tracks whether a render pass is open and which pipeline
// is bound in it.
type Recorder struct {
	cb       gpu.CmdBuffer
	index    int
	inPass   bool
	pass     gpu.RenderPass
	pipeline gpu.Pipeline
	prepared []*RenderTarget
}

// Index returns the frame slot being recorded.
func (r *Recorder) Index() int { return r.index }

// InPass reports whether a render pass is open.
func (r *Recorder) InPass() bool { return r.inPass }

// PrepareRenderTargets makes targets writable as color
// targets in one barrier batch. It must be called outside of
// a pass, before the targets are first used in the frame.
// Targets already prepared in this recording are skipped.
func (r *Recorder) PrepareRenderTargets(targets ...*RenderTarget) {
	if r.inPass {
		panic("dcrender: PrepareRenderTargets inside a render pass")
	}
	var ts []gpu.Transition
	for _, t := range targets {
		if slices.Contains(r.prepared, t) {
			continue
		}
		before := t.idle
		if t.discard {
			before = gpu.LUndefined
		}
		ts = append(ts, gpu.Transition{Image: t.image, Before: before, After: gpu.LColorTarget})
		r.prepared = append(r.prepared, t)
	}
	if len(ts) > 0 {
		r.cb.Transition(ts)
	}
}

// SetRenderTarget closes the open pass, if any, and opens a
// pass on t. The pass clears t if t has a clear color.
// A pipeline must be set before drawing into it.
func (r *Recorder) SetRenderTarget(t *RenderTarget) {
	r.endPass()
	r.cb.BeginPass(t.pass, t.fb, t.clear, false)
	r.inPass, r.pass = true, t.pass
}

// SetPipeline binds p for the draws that follow in the open
// pass. It panics if no pass is open or if p was created for
// a pass of another format.
func (r *Recorder) SetPipeline(p gpu.Pipeline) {
	if !r.inPass {
		panic("dcrender: SetPipeline outside of a render pass")
	}
	setPipeline(r.cb, r.pass, p)
	r.pipeline = p
}

// UploadStaging copies the staging images of the ith texture
// of blk into the texture. The texture is in LShaderRead
// before and after, its staging images in LGeneral. It must
// be called outside of a pass.
func (r *Recorder) UploadStaging(blk *ResourceBlock, i int) {
	if r.inPass {
		panic("dcrender: UploadStaging inside a render pass")
	}
	if blk.staging == nil || blk.staging[i] == nil {
		panic(fmt.Sprintf("dcrender: texture %d has no staging images", i))
	}
	tex, layers := blk.textures[i], blk.staging[i]
	pre := []gpu.Transition{{Image: tex, Before: gpu.LShaderRead, After: gpu.LCopyDst}}
	post := []gpu.Transition{{Image: tex, Before: gpu.LCopyDst, After: gpu.LShaderRead}}
	for _, st := range layers {
		pre = append(pre, gpu.Transition{Image: st, Before: gpu.LGeneral, After: gpu.LCopySrc})
		post = append(post, gpu.Transition{Image: st, Before: gpu.LCopySrc, After: gpu.LGeneral})
	}
	r.cb.Transition(pre)
	for l, st := range layers {
		r.cb.CopyImage(st, tex, st.Spec().Size, 0, l)
	}
	r.cb.Transition(post)
}

// ExecuteSubcommandsInto closes the open pass, if any, opens a
// pass on t and executes the current frame slot of subs in it.
// The pass is closed before returning.
func (r *Recorder) ExecuteSubcommandsInto(t *RenderTarget, subs ...*RenderCommands) {
	cbs := make([]gpu.CmdBuffer, len(subs))
	for i, s := range subs {
		if !s.secondary {
			panic("dcrender: executing primary command buffers as subcommands")
		}
		cbs[i] = s.bufs[r.index]
	}
	r.endPass()
	r.cb.BeginPass(t.pass, t.fb, t.clear, true)
	r.cb.Execute(cbs)
	r.cb.EndPass()
}

// Draw draws va. It panics if no pass is open or no pipeline
// was set in it.
func (r *Recorder) Draw(va VertexArray, instances uint32) {
	if !r.inPass {
		panic("dcrender: Draw outside of a render pass")
	}
	if r.pipeline == nil {
		panic("dcrender: Draw with no pipeline set")
	}
	draw(r.cb, va, instances)
}

func (r *Recorder) endPass() {
	if r.inPass {
		r.cb.EndPass()
		r.inPass, r.pass, r.pipeline = false, nil, nil
	}
}

func (r *Recorder) finish() error {
	r.endPass()
	if len(r.prepared) > 0 {
		ts := make([]gpu.Transition, len(r.prepared))
		for i, t := range r.prepared {
			ts[i] = gpu.Transition{Image: t.image, Before: gpu.LColorTarget, After: t.idle}
		}
		r.cb.Transition(ts)
		r.prepared = nil
	}
	return r.cb.End()
}

// PassRecorder records a secondary command buffer that runs
// inside a pass opened by the primary. Secondary command
// buffers inherit no pipeline from the primary.
type PassRecorder struct {
	cb       gpu.CmdBuffer
	pass     gpu.RenderPass
	pipeline gpu.Pipeline
}

// SetPipeline binds p for the draws that follow.
func (r *PassRecorder) SetPipeline(p gpu.Pipeline) {
	setPipeline(r.cb, r.pass, p)
	r.pipeline = p
}

// Draw draws va. It panics if no pipeline was set.
func (r *PassRecorder) Draw(va VertexArray, instances uint32) {
	if r.pipeline == nil {
		panic("dcrender: Draw with no pipeline set")
	}
	draw(r.cb, va, instances)
}
