package gputest

import (
	"fmt"
	"sync/atomic"

	"github.com/mokiat/gog/opt"

	"github.com/celer/dcrender/gpu"
)

// Kinds of recorded commands.
const (
	CmdTransition   = "Transition"
	CmdCopyBuffer   = "CopyBuffer"
	CmdCopyImage    = "CopyImage"
	CmdBeginPass    = "BeginPass"
	CmdEndPass      = "EndPass"
	CmdExecute      = "Execute"
	CmdSetPipeline  = "SetPipeline"
	CmdSetVertexBuf = "SetVertexBuf"
	CmdSetIndexBuf  = "SetIndexBuf"
	CmdDraw         = "Draw"
	CmdDrawIndexed  = "DrawIndexed"
)

// Op is a recorded command.
// Only the fields relevant to Kind are set.
type Op struct {
	Kind        string
	Transitions []gpu.Transition
	SrcBuf      gpu.Buffer
	DstBuf      gpu.Buffer
	Regions     []gpu.BufferCopy
	SrcImg      gpu.Image
	DstImg      gpu.Image
	Size        gpu.Extent
	SrcLayer    int
	DstLayer    int
	Pass        gpu.RenderPass
	FB          gpu.Framebuf
	Clear       opt.T[gpu.ClearColor]
	Secondary   bool
	Cmds        []gpu.CmdBuffer
	Pipeline    gpu.Pipeline
	Buffer      gpu.Buffer
	Offset      uint64
	IndexFmt    gpu.IndexFmt
	Count       uint32
	Instances   uint32
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
)

// CmdPool is a fake gpu.CmdPool.
type CmdPool struct {
	g         *GPU
	transient bool
}

func (p *CmdPool) New(count int, secondary bool) ([]gpu.CmdBuffer, error) {
	if err := p.g.check(OpNewCmdBuf); err != nil {
		return nil, err
	}
	cbs := make([]gpu.CmdBuffer, count)
	for i := range cbs {
		cb := &CmdBuffer{g: p.g, secondary: secondary}
		p.g.track(cb, "cmdbuffer")
		cbs[i] = cb
	}
	return cbs, nil
}

func (p *CmdPool) Free(cbs []gpu.CmdBuffer) {
	for _, cb := range cbs {
		p.g.untrack(cb)
	}
}

func (p *CmdPool) Destroy() { p.g.untrack(p) }

// CmdBuffer is a fake gpu.CmdBuffer.
// Protocol violations do not panic; they are collected
// in Errs.
type CmdBuffer struct {
	g         *GPU
	secondary bool
	state     cbState
	inPass    bool
	passSec   bool
	pass      gpu.RenderPass
	pipeline  gpu.Pipeline
	OneTime   bool
	Ops       []Op
	Errs      []string
}

func (c *CmdBuffer) violation(format string, args ...any) {
	c.Errs = append(c.Errs, fmt.Sprintf(format, args...))
}

func (c *CmdBuffer) record(op Op) {
	if c.state != cbRecording {
		c.violation("%s outside of recording", op.Kind)
	}
	c.Ops = append(c.Ops, op)
}

// Kinds returns the kinds of the recorded commands.
func (c *CmdBuffer) Kinds() []string {
	ks := make([]string, len(c.Ops))
	for i, op := range c.Ops {
		ks[i] = op.Kind
	}
	return ks
}

func (c *CmdBuffer) Begin(oneTime bool) error {
	if c.secondary {
		c.violation("Begin on a secondary command buffer")
	}
	if c.state == cbRecording {
		c.violation("Begin while recording")
	}
	c.state = cbRecording
	c.OneTime = oneTime
	c.pass, c.pipeline = nil, nil
	c.Ops = nil
	return nil
}

func (c *CmdBuffer) BeginSecondary(pass gpu.RenderPass, fb gpu.Framebuf) error {
	if !c.secondary {
		c.violation("BeginSecondary on a primary command buffer")
	}
	if c.state == cbRecording {
		c.violation("BeginSecondary while recording")
	}
	c.state = cbRecording
	c.pass, c.pipeline = pass, nil
	c.Ops = nil
	return nil
}

func (c *CmdBuffer) End() error {
	if c.state != cbRecording {
		c.violation("End outside of recording")
	}
	if c.inPass {
		c.violation("End inside a render pass")
	}
	c.state = cbExecutable
	return nil
}

func (c *CmdBuffer) Reset() error {
	c.state = cbInitial
	c.inPass = false
	c.pass, c.pipeline = nil, nil
	c.Ops = nil
	c.Errs = nil
	return nil
}

func (c *CmdBuffer) Transition(t []gpu.Transition) {
	if c.inPass {
		c.violation("Transition inside a render pass")
	}
	c.record(Op{Kind: CmdTransition, Transitions: append([]gpu.Transition(nil), t...)})
}

func (c *CmdBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	c.record(Op{Kind: CmdCopyBuffer, SrcBuf: src, DstBuf: dst, Regions: append([]gpu.BufferCopy(nil), regions...)})
}

func (c *CmdBuffer) CopyImage(src, dst gpu.Image, size gpu.Extent, srcLayer, dstLayer int) {
	if c.inPass {
		c.violation("CopyImage inside a render pass")
	}
	if srcLayer >= src.Spec().Layers || dstLayer >= dst.Spec().Layers {
		c.violation("CopyImage of layer %d into layer %d out of range", srcLayer, dstLayer)
	}
	c.record(Op{Kind: CmdCopyImage, SrcImg: src, DstImg: dst, Size: size, SrcLayer: srcLayer, DstLayer: dstLayer})
}

func (c *CmdBuffer) BeginPass(pass gpu.RenderPass, fb gpu.Framebuf, clear opt.T[gpu.ClearColor], secondary bool) {
	if c.inPass {
		c.violation("BeginPass inside a render pass")
	}
	c.inPass, c.passSec = true, secondary
	c.pass = pass
	c.record(Op{Kind: CmdBeginPass, Pass: pass, FB: fb, Clear: clear, Secondary: secondary})
}

func (c *CmdBuffer) EndPass() {
	if !c.inPass {
		c.violation("EndPass outside of a render pass")
	}
	c.inPass = false
	c.record(Op{Kind: CmdEndPass})
}

func (c *CmdBuffer) Execute(cbs []gpu.CmdBuffer) {
	if !c.inPass || !c.passSec {
		c.violation("Execute outside of a secondary-contents render pass")
	}
	c.record(Op{Kind: CmdExecute, Cmds: append([]gpu.CmdBuffer(nil), cbs...)})
}

func (c *CmdBuffer) drawable(kind string) {
	c.inlinePass(kind)
	if c.pipeline == nil {
		c.violation("%s with no pipeline bound", kind)
	}
}

// SetPipeline binds p. Like Vulkan, the binding survives the
// end of the pass within the same command buffer.
func (c *CmdBuffer) SetPipeline(p gpu.Pipeline) {
	c.inlinePass(CmdSetPipeline)
	if c.pass != nil && p.Pass().Format() != c.pass.Format() {
		c.violation("pipeline for %v bound in a %v pass", p.Pass().Format(), c.pass.Format())
	}
	c.pipeline = p
	c.record(Op{Kind: CmdSetPipeline, Pipeline: p})
}

func (c *CmdBuffer) inlinePass(kind string) {
	if !c.secondary && (!c.inPass || c.passSec) {
		c.violation("%s outside of an inline render pass", kind)
	}
}

func (c *CmdBuffer) SetVertexBuf(buf gpu.Buffer, off uint64) {
	c.record(Op{Kind: CmdSetVertexBuf, Buffer: buf, Offset: off})
}

func (c *CmdBuffer) SetIndexBuf(format gpu.IndexFmt, buf gpu.Buffer, off uint64) {
	c.record(Op{Kind: CmdSetIndexBuf, IndexFmt: format, Buffer: buf, Offset: off})
}

func (c *CmdBuffer) Draw(vertCount, instCount uint32) {
	c.drawable(CmdDraw)
	c.record(Op{Kind: CmdDraw, Count: vertCount, Instances: instCount})
}

func (c *CmdBuffer) DrawIndexed(idxCount, instCount uint32) {
	c.drawable(CmdDrawIndexed)
	c.record(Op{Kind: CmdDrawIndexed, Count: idxCount, Instances: instCount})
}

// Submission is a recorded queue submission.
type Submission struct {
	Cmds    []gpu.CmdBuffer
	Fence   gpu.Fence
	Present opt.T[int]
}

// Queue is a fake gpu.Queue. Submitted command buffers are
// executed immediately.
type Queue struct {
	g           *GPU
	Submissions []Submission
	Errs        []string
}

func (q *Queue) violation(format string, args ...any) {
	q.Errs = append(q.Errs, fmt.Sprintf(format, args...))
}

func (q *Queue) Submit(cbs []gpu.CmdBuffer, f gpu.Fence) error {
	if err := q.g.check(OpSubmit); err != nil {
		return err
	}
	q.run(cbs)
	q.Submissions = append(q.Submissions, Submission{Cmds: cbs, Fence: f})
	if f != nil {
		f.(*Fence).signal()
	}
	return nil
}

func (q *Queue) Present(sc gpu.Swapchain, index int, cbs []gpu.CmdBuffer) error {
	if err := q.g.check(OpPresent); err != nil {
		return err
	}
	q.run(cbs)
	img := sc.Images()[index].(*Image)
	if l := img.CurrentLayout(); l != gpu.LPresent {
		q.violation("presenting image %d in layout %v", index, l)
	}
	q.Submissions = append(q.Submissions, Submission{Cmds: cbs, Present: opt.V(index)})
	return nil
}

func (q *Queue) run(cbs []gpu.CmdBuffer) {
	for _, cb := range cbs {
		c := cb.(*CmdBuffer)
		if c.state != cbExecutable {
			q.violation("submitting a command buffer that is not executable")
		}
		if c.secondary {
			q.violation("submitting a secondary command buffer")
		}
		q.exec(c)
	}
}

func (q *Queue) exec(c *CmdBuffer) {
	for _, op := range c.Ops {
		switch op.Kind {
		case CmdTransition:
			for _, t := range op.Transitions {
				q.transition(t)
			}
		case CmdCopyBuffer:
			src, dst := op.SrcBuf.(*Buffer), op.DstBuf.(*Buffer)
			for _, r := range op.Regions {
				copy(dst.Mem.data[dst.Off+r.DstOff:dst.Off+r.DstOff+r.Size],
					src.Mem.data[src.Off+r.SrcOff:src.Off+r.SrcOff+r.Size])
			}
		case CmdCopyImage:
			q.copyImage(op.SrcImg.(*Image), op.DstImg.(*Image), op.Size, op.SrcLayer, op.DstLayer)
		case CmdExecute:
			for _, sub := range op.Cmds {
				q.exec(sub.(*CmdBuffer))
			}
		}
	}
}

func (q *Queue) transition(t gpu.Transition) {
	img := t.Image.(*Image)
	q.g.mu.Lock()
	defer q.g.mu.Unlock()
	if t.Before != gpu.LUndefined && t.Before != img.layout {
		q.violation("transition from %v but image is in %v", t.Before, img.layout)
	}
	img.layout = t.After
}

func (q *Queue) copyImage(src, dst *Image, size gpu.Extent, srcLayer, dstLayer int) {
	if l := src.CurrentLayout(); l != gpu.LCopySrc {
		q.violation("copy source in layout %v", l)
	}
	if l := dst.CurrentLayout(); l != gpu.LCopyDst {
		q.violation("copy destination in layout %v", l)
	}
	row := uint64(size.Width) * uint64(src.spec.Format.Size())
	s, d := src.Subresource(srcLayer), dst.Subresource(dstLayer)
	for y := uint64(0); y < uint64(size.Height); y++ {
		so := src.Off + s.Offset + y*s.RowPitch
		do := dst.Off + d.Offset + y*d.RowPitch
		copy(dst.Mem.data[do:do+row], src.Mem.data[so:so+row])
	}
}

// Swapchain is a fake gpu.Swapchain. Images are handed out
// round-robin unless NextFunc is set.
type Swapchain struct {
	g      *GPU
	images []gpu.Image
	pf     gpu.PixelFmt
	size   gpu.Extent
	next   atomic.Int64

	// NextFunc, if set, replaces the round-robin choice.
	// It is called from the acquiring goroutine.
	NextFunc func() (int, error)
}

// NewSwapchain creates a fake swapchain with n images.
func (g *GPU) NewSwapchain(n int, pf gpu.PixelFmt, size gpu.Extent) *Swapchain {
	sc := &Swapchain{g: g, pf: pf, size: size}
	for i := 0; i < n; i++ {
		img := &Image{g: g, spec: gpu.ImageSpec{
			Format: pf,
			Size:   size,
			Layers: 1,
			Usage:  gpu.URenderTarget,
		}}
		sc.images = append(sc.images, img)
	}
	g.track(sc, "swapchain")
	return sc
}

// Acquired returns how many images were acquired.
func (s *Swapchain) Acquired() int { return int(s.next.Load()) }

func (s *Swapchain) Images() []gpu.Image  { return s.images }
func (s *Swapchain) Format() gpu.PixelFmt { return s.pf }
func (s *Swapchain) Size() gpu.Extent     { return s.size }

func (s *Swapchain) Next(f gpu.Fence) (int, error) {
	if err := s.g.check(OpNext); err != nil {
		return -1, err
	}
	n := s.next.Add(1) - 1
	i := int(n % int64(len(s.images)))
	if s.NextFunc != nil {
		var err error
		if i, err = s.NextFunc(); err != nil {
			return -1, err
		}
	}
	f.(*Fence).signal()
	return i, nil
}

func (s *Swapchain) Destroy() { s.g.untrack(s) }
