package dcrender

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/celer/dcrender/gpu"
	"github.com/celer/dcrender/gpu/gputest"
)

func newUploader(t *testing.T) (*gputest.GPU, gpu.CmdPool) {
	t.Helper()
	g := gputest.New()
	pool, err := g.NewCmdPool(true)
	if err != nil {
		t.Fatalf("NewCmdPool() = %v", err)
	}
	return g, pool
}

func pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i*7)
	}
	return p
}

func submittedKinds(t *testing.T, g *gputest.GPU) []string {
	t.Helper()
	q := g.FakeQueue()
	if len(q.Errs) != 0 {
		t.Errorf("queue errors: %v", q.Errs)
	}
	if len(q.Submissions) != 1 {
		t.Fatalf("submissions = %d, want 1", len(q.Submissions))
	}
	s := q.Submissions[0]
	if len(s.Cmds) != 1 {
		t.Fatalf("submitted command buffers = %d, want 1", len(s.Cmds))
	}
	cb := s.Cmds[0].(*gputest.CmdBuffer)
	if len(cb.Errs) != 0 {
		t.Errorf("command buffer errors: %v", cb.Errs)
	}
	if !cb.OneTime {
		t.Error("upload command buffer is not one-time")
	}
	return cb.Kinds()
}

func assertOnlyPoolLive(t *testing.T, g *gputest.GPU) {
	t.Helper()
	if diff := cmp.Diff(map[string]int{"cmdpool": 1}, g.Live()); diff != "" {
		t.Errorf("live objects mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateResourcesBuffersOnly(t *testing.T) {
	g, pool := newUploader(t)
	blk, err := createResources(g, pool, g.Lim, []BufferDescriptor{
		{Kind: VertexBuffer, Size: 256},
		{Kind: ConstantBuffer, Size: 40},
	}, nil)
	if err != nil {
		t.Fatalf("createResources() = %v", err)
	}
	if got := blk.BufferSize(); got != 296 {
		t.Errorf("BufferSize() = %d, want 296", got)
	}
	if got := []uint64{blk.BufferOffset(0), blk.BufferOffset(1)}; !cmp.Equal(got, []uint64{0, 256}) {
		t.Errorf("buffer offsets = %v, want [0 256]", got)
	}
	if got := blk.Buffer().Usage(); got != gpu.UVertex|gpu.UConstant {
		t.Errorf("buffer usage = %#x", got)
	}
	if got := blk.DeviceMemory().Size(); got != 512 {
		t.Errorf("device memory size = %d, want 512", got)
	}
	if blk.HostMemory() != nil {
		t.Error("HostMemory() != nil without frequently updated textures")
	}
	if n := len(g.FakeQueue().Submissions); n != 0 {
		t.Errorf("submissions = %d, want 0", n)
	}
	s := blk.Slice(1, 10)
	if s.Buffer != blk.Buffer() || s.Offset != 256 || s.Count != 10 {
		t.Errorf("Slice(1, 10) = %+v", s)
	}
	blk.Destroy()
	blk.Destroy()
	assertOnlyPoolLive(t, g)
}

func TestCreateResourcesNothing(t *testing.T) {
	g, pool := newUploader(t)
	blk, err := createResources(g, pool, g.Lim, nil, nil)
	if err != nil {
		t.Fatalf("createResources() = %v", err)
	}
	if blk.Buffer() != nil || blk.DeviceMemory() != nil || blk.TextureCount() != 0 {
		t.Errorf("empty block has objects: %+v", blk)
	}
	if n := g.Count(gputest.OpNewBuffer) + g.Count(gputest.OpNewMemory); n != 0 {
		t.Errorf("objects created for an empty call: %d", n)
	}
	blk.Destroy()
	assertOnlyPoolLive(t, g)
}

func TestCreateResourcesFrequentlyUpdated(t *testing.T) {
	g, pool := newUploader(t)
	tex := TextureDescriptor{Width: 64, Height: 64, Color: RGBA, Usage: FrequentlyUpdated}
	blk, err := createResources(g, pool, g.Lim, nil, []TextureDescriptor{tex, tex})
	if err != nil {
		t.Fatalf("createResources() = %v", err)
	}
	defer blk.Destroy()

	if got := []uint64{blk.TextureOffset(0), blk.TextureOffset(1)}; !cmp.Equal(got, []uint64{0, 16384}) {
		t.Errorf("texture offsets = %v, want [0 16384]", got)
	}
	dev := blk.DeviceMemory().(*gputest.Memory)
	if got := len(dev.Images()); got != 2 {
		t.Errorf("images bound to device memory = %d, want 2", got)
	}
	host, ok := blk.HostMemory().(*gputest.Memory)
	if !ok {
		t.Fatal("HostMemory() is not retained")
	}
	if got := len(host.Images()); got != 2 {
		t.Errorf("images bound to host memory = %d, want 2", got)
	}
	for i := 0; i < 2; i++ {
		st := blk.Staging(i, 0)
		if !st.Specified {
			t.Fatalf("Staging(%d, 0) is not specified", i)
		}
		spec := st.Value.Spec()
		if spec.Tiling != gpu.Linear || spec.Usage != gpu.UImageCopySrc || spec.Layers != 1 {
			t.Errorf("Staging(%d, 0) spec = %+v", i, spec)
		}
		if got := st.Value.(*gputest.Image).CurrentLayout(); got != gpu.LGeneral {
			t.Errorf("Staging(%d, 0) layout = %v, want General", i, got)
		}
		if got := blk.Texture(i).Spec().Usage; got != gpu.USampled|gpu.UImageCopyDst {
			t.Errorf("Texture(%d) usage = %#x", i, got)
		}
		if got := blk.Texture(i).(*gputest.Image).CurrentLayout(); got != gpu.LShaderRead {
			t.Errorf("Texture(%d) layout = %v, want ShaderRead", i, got)
		}
	}
	if got := []uint64{blk.StagingOffset(0, 0), blk.StagingOffset(1, 0)}; !cmp.Equal(got, []uint64{0, 16384}) {
		t.Errorf("staging offsets = %v, want [0 16384]", got)
	}
	if diff := cmp.Diff([]string{gputest.CmdTransition, gputest.CmdTransition}, submittedKinds(t, g)); diff != "" {
		t.Errorf("recorded commands mismatch (-want +got):\n%s", diff)
	}
	if got := g.Live()["memory"]; got != 2 {
		t.Errorf("live memory regions = %d, want 2", got)
	}
}

func TestCreateResourcesImmutable(t *testing.T) {
	g, pool := newUploader(t)
	pixels := pattern(3*2*2, 1)
	blk, err := createResources(g, pool, g.Lim, nil, []TextureDescriptor{
		{Width: 3, Height: 2, Layers: 2, Color: Grayscale, Usage: Immutable, Pixels: pixels},
	})
	if err != nil {
		t.Fatalf("createResources() = %v", err)
	}
	tex := blk.Texture(0).(*gputest.Image)
	if got := tex.CurrentLayout(); got != gpu.LShaderRead {
		t.Errorf("texture layout = %v, want ShaderRead", got)
	}
	got := tex.Mem.Bytes()[tex.Off : tex.Off+uint64(len(pixels))]
	if !bytes.Equal(got, pixels) {
		t.Errorf("texture contents = %v, want %v", got, pixels)
	}
	if blk.HostMemory() != nil || blk.Staging(0, 0).Specified {
		t.Error("immutable staging was retained")
	}
	mems := g.Memories()
	if len(mems) != 2 {
		t.Fatalf("memory regions = %d, want 2", len(mems))
	}
	if !mems[1].Destroyed() {
		t.Error("transient staging memory was not destroyed")
	}
	want := []string{gputest.CmdTransition, gputest.CmdCopyImage, gputest.CmdCopyImage, gputest.CmdTransition}
	if diff := cmp.Diff(want, submittedKinds(t, g)); diff != "" {
		t.Errorf("recorded commands mismatch (-want +got):\n%s", diff)
	}
	cb := g.FakeQueue().Submissions[0].Cmds[0].(*gputest.CmdBuffer)
	pre := cb.Ops[0].Transitions
	if len(pre) != 3 ||
		pre[0].Image != blk.Texture(0) || pre[0].Before != gpu.LUndefined || pre[0].After != gpu.LCopyDst ||
		pre[1].Before != gpu.LPreinitialized || pre[1].After != gpu.LCopySrc ||
		pre[2].Before != gpu.LPreinitialized || pre[2].After != gpu.LCopySrc {
		t.Errorf("first barrier batch = %+v", pre)
	}
	for l, op := range cb.Ops[1:3] {
		if op.SrcImg.Spec().Layers != 1 || op.SrcLayer != 0 || op.DstLayer != l || op.DstImg != blk.Texture(0) {
			t.Errorf("copy of layer %d = %+v", l, op)
		}
	}
	if n := g.FakeQueue().Submissions[0].Fence.(*gputest.Fence).Waits(); n != 1 {
		t.Errorf("upload fence waits = %d, want 1", n)
	}
	blk.Destroy()
	assertOnlyPoolLive(t, g)
}

func TestCreateResourcesMixed(t *testing.T) {
	g, pool := newUploader(t)
	vertices := pattern(24, 3)
	constants := pattern(40, 9)
	blk, err := createResources(g, pool, g.Lim, []BufferDescriptor{
		{Kind: VertexBuffer, Size: 256, Data: vertices},
		{Kind: ConstantBuffer, Size: 40, Data: constants},
	}, []TextureDescriptor{
		{Width: 64, Height: 64, Color: RGBA, Usage: Immutable, Pixels: pattern(64*64*4, 5)},
		{Width: 32, Height: 32, Color: RGBA, Usage: RenderTargetUsage},
	})
	if err != nil {
		t.Fatalf("createResources() = %v", err)
	}
	defer blk.Destroy()

	if got := []uint64{blk.TextureOffset(0), blk.TextureOffset(1)}; !cmp.Equal(got, []uint64{4096, 20480}) {
		t.Errorf("texture offsets = %v, want [4096 20480]", got)
	}
	if got := blk.DeviceMemory().Size(); got != 20480+4096 {
		t.Errorf("device memory size = %d, want %d", got, 20480+4096)
	}
	if got := blk.Buffer().Usage(); got&gpu.UCopyDst == 0 {
		t.Error("buffer with initial data lacks copy destination usage")
	}
	buf := blk.Buffer().(*gputest.Buffer)
	data := buf.Mem.Bytes()
	if !bytes.Equal(data[buf.Off:buf.Off+24], vertices) {
		t.Error("vertex data was not uploaded")
	}
	if !bytes.Equal(data[buf.Off+256:buf.Off+296], constants) {
		t.Error("constant data was not uploaded")
	}
	if got := blk.Texture(1).(*gputest.Image).CurrentLayout(); got != gpu.LShaderRead {
		t.Errorf("render target texture layout = %v, want ShaderRead", got)
	}
	if got := blk.Texture(1).Spec().Usage; got != gpu.USampled|gpu.URenderTarget {
		t.Errorf("render target texture usage = %#x", got)
	}
	want := []string{gputest.CmdTransition, gputest.CmdCopyImage, gputest.CmdCopyBuffer, gputest.CmdTransition}
	if diff := cmp.Diff(want, submittedKinds(t, g)); diff != "" {
		t.Errorf("recorded commands mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteStaging(t *testing.T) {
	g, pool := newUploader(t)
	blk, err := createResources(g, pool, g.Lim, nil, []TextureDescriptor{
		{Width: 4, Height: 4, Color: Grayscale, Usage: Immutable, Pixels: pattern(16, 0)},
		{Width: 2, Height: 2, Color: RGBA, Usage: FrequentlyUpdated},
	})
	if err != nil {
		t.Fatalf("createResources() = %v", err)
	}
	defer blk.Destroy()

	if err := blk.WriteStaging(0, pattern(16, 0)); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("WriteStaging(immutable) = %v, want ErrInvalidDescriptor", err)
	}
	if err := blk.WriteStaging(1, pattern(3, 0)); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("WriteStaging(short) = %v, want ErrInvalidDescriptor", err)
	}
	pixels := pattern(16, 42)
	if err := blk.WriteStaging(1, pixels); err != nil {
		t.Fatalf("WriteStaging() = %v", err)
	}
	host := blk.HostMemory().(*gputest.Memory).Bytes()
	off := blk.StagingOffset(1, 0)
	pitch := g.RowAlign
	for y := uint64(0); y < 2; y++ {
		row := host[off+y*pitch : off+y*pitch+8]
		if !bytes.Equal(row, pixels[y*8:(y+1)*8]) {
			t.Errorf("staging row %d = %v, want %v", y, row, pixels[y*8:(y+1)*8])
		}
	}
}

func TestWriteStagingLayers(t *testing.T) {
	g, pool := newUploader(t)
	blk, err := createResources(g, pool, g.Lim, nil, []TextureDescriptor{
		{Width: 2, Height: 2, Layers: 3, Color: Grayscale, Usage: FrequentlyUpdated},
	})
	if err != nil {
		t.Fatalf("createResources() = %v", err)
	}
	defer blk.Destroy()

	host := blk.HostMemory().(*gputest.Memory)
	if got := len(host.Images()); got != 3 {
		t.Fatalf("staging images = %d, want one per layer", got)
	}
	pixels := pattern(2*2*3, 11)
	if err := blk.WriteStaging(0, pixels); err != nil {
		t.Fatalf("WriteStaging() = %v", err)
	}
	for l := 0; l < 3; l++ {
		if blk.Staging(0, l).Value.Spec().Layers != 1 {
			t.Errorf("Staging(0, %d) has more than one layer", l)
		}
		off := blk.StagingOffset(0, l)
		for y := uint64(0); y < 2; y++ {
			row := host.Bytes()[off+y*g.RowAlign : off+y*g.RowAlign+2]
			want := pixels[uint64(l)*4+y*2 : uint64(l)*4+y*2+2]
			if !bytes.Equal(row, want) {
				t.Errorf("layer %d row %d = %v, want %v", l, y, row, want)
			}
		}
	}
}

func TestCreateResourcesInvalid(t *testing.T) {
	tests := []struct {
		name     string
		buffers  []BufferDescriptor
		textures []TextureDescriptor
	}{
		{"zero size buffer", []BufferDescriptor{{Kind: VertexBuffer}}, nil},
		{"data overflow", []BufferDescriptor{{Kind: IndexBuffer, Size: 2, Data: []byte{1, 2, 3}}}, nil},
		{"unknown kind", []BufferDescriptor{{Kind: BufferKind(7), Size: 4}}, nil},
		{"zero width", nil, []TextureDescriptor{{Height: 4, Usage: RenderTargetUsage}}},
		{"too large", nil, []TextureDescriptor{{Width: 1 << 20, Height: 4, Usage: RenderTargetUsage}}},
		{"short pixels", nil, []TextureDescriptor{{Width: 4, Height: 4, Color: RGB, Usage: Immutable, Pixels: make([]byte, 47)}}},
		{"pixels for render target", nil, []TextureDescriptor{{Width: 1, Height: 1, Usage: RenderTargetUsage, Pixels: []byte{1}}}},
		{"unknown usage", nil, []TextureDescriptor{{Width: 1, Height: 1, Usage: TextureUsage(9)}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, pool := newUploader(t)
			blk, err := createResources(g, pool, g.Lim, tc.buffers, tc.textures)
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("createResources() = %v, want ErrInvalidDescriptor", err)
			}
			if blk != nil {
				t.Error("createResources() returned a block on failure")
			}
			assertOnlyPoolLive(t, g)
		})
	}
}

func TestCreateResourcesFailure(t *testing.T) {
	injected := errors.New("injected")
	tests := []struct {
		op  string
		nth int
		err error
	}{
		{gputest.OpNewBuffer, 0, gpu.ErrNoDeviceMemory},
		{gputest.OpNewImage, 1, injected},
		{gputest.OpNewImage, 2, injected},
		{gputest.OpNewMemory, 0, gpu.ErrNoDeviceMemory},
		{gputest.OpNewMemory, 1, gpu.ErrNoHostMemory},
		{gputest.OpNewMemory, 2, gpu.ErrNoHostMemory},
		{gputest.OpBind, 0, injected},
		{gputest.OpBind, 3, injected},
		{gputest.OpMap, 0, injected},
		{gputest.OpNewCmdBuf, 0, injected},
		{gputest.OpNewFence, 0, injected},
		{gputest.OpSubmit, 0, gpu.ErrFatal},
	}
	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			g, pool := newUploader(t)
			g.FailAt(tc.op, tc.nth, tc.err)
			blk, err := createResources(g, pool, g.Lim, []BufferDescriptor{
				{Kind: VertexBuffer, Size: 64, Data: pattern(64, 0)},
			}, []TextureDescriptor{
				{Width: 8, Height: 8, Color: RGBA, Usage: FrequentlyUpdated},
				{Width: 8, Height: 8, Color: RGB, Usage: Immutable, Pixels: pattern(8*8*3, 1)},
			})
			if !errors.Is(err, ErrResourceExhausted) {
				t.Errorf("createResources() = %v, want ErrResourceExhausted", err)
			}
			if !errors.Is(err, tc.err) {
				t.Errorf("createResources() = %v, want it to wrap %v", err, tc.err)
			}
			if blk != nil {
				t.Error("createResources() returned a partial block")
			}
			assertOnlyPoolLive(t, g)
		})
	}
}
