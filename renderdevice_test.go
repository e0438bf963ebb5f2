package dcrender

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mokiat/gog/opt"

	"github.com/celer/dcrender/gpu"
	"github.com/celer/dcrender/gpu/gputest"
)

func newTestDevice(t *testing.T, opts *Options) (*gputest.GPU, *gputest.Swapchain, *RenderDevice) {
	t.Helper()
	g := gputest.New()
	sc := g.NewSwapchain(2, gpu.BGRA8Unorm, gpu.Extent{Width: 960, Height: 540})
	d, err := NewRenderDevice(g, sc, opts)
	if err != nil {
		t.Fatalf("NewRenderDevice() = %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
	return g, sc, d
}

func TestRenderDevice(t *testing.T) {
	g, sc, d := newTestDevice(t, nil)
	if got := d.Agent(); got != "Vulkan gputest" {
		t.Errorf("Agent() = %q, want %q", got, "Vulkan gputest")
	}
	if diff := cmp.Diff(g.Lim, d.Limits()); diff != "" {
		t.Errorf("Limits() mismatch (-want +got):\n%s", diff)
	}
	if got := d.PrimaryRenderTargetCount(); got != 2 {
		t.Fatalf("PrimaryRenderTargetCount() = %d, want 2", got)
	}
	for i := 0; i < 2; i++ {
		rt := d.PrimaryRenderTarget(i)
		if rt.Image() != sc.Images()[i] {
			t.Errorf("PrimaryRenderTarget(%d) does not target backbuffer %d", i, i)
		}
		if rt.Size() != sc.Size() {
			t.Errorf("PrimaryRenderTarget(%d).Size() = %v, want %v", i, rt.Size(), sc.Size())
		}
		if rt.ClearColor().Specified {
			t.Errorf("PrimaryRenderTarget(%d) clears without a clear color", i)
		}
	}
	if got := d.CheckReadyNext(); !got.Specified || got.Value != 0 {
		t.Errorf("CheckReadyNext() = %+v, want 0", got)
	}
}

func TestRenderDeviceFrames(t *testing.T) {
	g, _, d := newTestDevice(t, &Options{ClearColor: opt.V(gpu.ClearColor{0.1, 0.2, 0.3, 1})})
	cmds, err := d.NewRenderCommandBuffer(d.PrimaryRenderTargetCount())
	if err != nil {
		t.Fatalf("NewRenderCommandBuffer() = %v", err)
	}
	defer cmds.Destroy()
	err = cmds.UpdateRenderCommands(func(r *Recorder, i int) error {
		rt := d.PrimaryRenderTarget(i)
		r.PrepareRenderTargets(rt)
		r.SetRenderTarget(rt)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateRenderCommands() = %v", err)
	}

	var presented []int
	for frame := 0; frame < 6; frame++ {
		idx := d.WaitLastRenderCompletion()
		if err := d.Render(idx, cmds); err != nil {
			t.Fatalf("Render(%d) = %v", idx, err)
		}
		presented = append(presented, idx)
		d.BeginAcquireNext()
	}
	if diff := cmp.Diff([]int{0, 1, 0, 1, 0, 1}, presented); diff != "" {
		t.Errorf("presented indices mismatch (-want +got):\n%s", diff)
	}
	q := g.FakeQueue()
	if len(q.Errs) != 0 {
		t.Errorf("queue errors: %v", q.Errs)
	}
	for i, s := range q.Submissions {
		if !s.Present.Specified || s.Present.Value != presented[i] {
			t.Errorf("submission %d presents %+v, want %d", i, s.Present, presented[i])
		}
		if s.Cmds[0] != cmds.CmdBuffer(presented[i]) {
			t.Errorf("submission %d does not submit the commands of backbuffer %d", i, presented[i])
		}
	}
}

func TestRenderDeviceClose(t *testing.T) {
	g := gputest.New()
	sc := g.NewSwapchain(3, gpu.BGRA8Unorm, gpu.Extent{Width: 16, Height: 16})
	d, err := NewRenderDevice(g, sc, &Options{ClearColor: opt.V(gpu.ClearColor{})})
	if err != nil {
		t.Fatalf("NewRenderDevice() = %v", err)
	}
	blk, err := d.CreateResources(nil, []TextureDescriptor{{Width: 8, Height: 8, Usage: RenderTargetUsage}})
	if err != nil {
		t.Fatalf("CreateResources() = %v", err)
	}
	rt, err := d.NewTextureRenderTarget(blk, 0, opt.V(gpu.ClearColor{1, 1, 1, 1}))
	if err != nil {
		t.Fatalf("NewTextureRenderTarget() = %v", err)
	}
	rt.Destroy()
	blk.Destroy()
	if err := d.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
	if diff := cmp.Diff(map[string]int{"swapchain": 1}, g.Live()); diff != "" {
		t.Errorf("live objects after Close mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderDeviceInitFailure(t *testing.T) {
	for _, op := range []string{gputest.OpNewCmdPool, gputest.OpNewFence, gputest.OpNext} {
		t.Run(op, func(t *testing.T) {
			g := gputest.New()
			sc := g.NewSwapchain(2, gpu.BGRA8Unorm, gpu.Extent{Width: 16, Height: 16})
			g.FailAt(op, 0, gpu.ErrFatal)
			d, err := NewRenderDevice(g, sc, nil)
			if !errors.Is(err, gpu.ErrFatal) {
				t.Errorf("NewRenderDevice() = %v, want ErrFatal", err)
			}
			if d != nil {
				t.Error("NewRenderDevice() returned a device on failure")
			}
			if diff := cmp.Diff(map[string]int{"swapchain": 1}, g.Live()); diff != "" {
				t.Errorf("live objects after failure mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewTextureRenderTargetUsage(t *testing.T) {
	_, _, d := newTestDevice(t, nil)
	blk, err := d.CreateResources(nil, []TextureDescriptor{
		{Width: 2, Height: 2, Color: Grayscale, Usage: Immutable, Pixels: make([]byte, 4)},
	})
	if err != nil {
		t.Fatalf("CreateResources() = %v", err)
	}
	defer blk.Destroy()
	if _, err := d.NewTextureRenderTarget(blk, 0, opt.Unspecified[gpu.ClearColor]()); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("NewTextureRenderTarget(immutable) = %v, want ErrInvalidDescriptor", err)
	}
}

type loggingGPU struct {
	*gputest.GPU
	logger *slog.Logger
}

func (g *loggingGPU) SetLogger(l *slog.Logger) { g.logger = l }

func TestRenderDevicePropagatesLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	g := &loggingGPU{GPU: gputest.New()}
	sc := g.NewSwapchain(2, gpu.BGRA8Unorm, gpu.Extent{Width: 16, Height: 16})
	d, err := NewRenderDevice(g, sc, nil)
	if err != nil {
		t.Fatalf("NewRenderDevice() = %v", err)
	}
	defer d.Close()
	if g.logger != orig {
		t.Error("NewRenderDevice did not propagate the current logger")
	}
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	SetLogger(custom)
	if g.logger != custom {
		t.Error("SetLogger did not propagate to the backend")
	}
}
