package dcrender

import (
	"fmt"

	"github.com/mokiat/gog/opt"

	"github.com/celer/dcrender/gpu"
)

// BufferKind is the role of a buffer region.
type BufferKind int

const (
	VertexBuffer BufferKind = iota
	IndexBuffer
	ConstantBuffer
)

func (k BufferKind) String() string {
	switch k {
	case VertexBuffer:
		return "vertex"
	case IndexBuffer:
		return "index"
	case ConstantBuffer:
		return "constant"
	}
	return fmt.Sprintf("BufferKind(%d)", int(k))
}

// BufferDescriptor describes one region of the combined buffer.
// Data, if not empty, is uploaded into the region before
// CreateResources returns.
type BufferDescriptor struct {
	Kind BufferKind
	Size uint64
	Data []byte
}

// ColorFormat is the texel format of a texture.
type ColorFormat int

const (
	Grayscale ColorFormat = iota
	RGB
	RGBA
)

func (c ColorFormat) pixelFmt() gpu.PixelFmt {
	switch c {
	case Grayscale:
		return gpu.R8Unorm
	case RGB:
		return gpu.RGB8Unorm
	case RGBA:
		return gpu.RGBA8Unorm
	}
	panic(fmt.Sprintf("dcrender: unknown ColorFormat %d", int(c)))
}

// BytesPerPixel returns the size of one texel.
func (c ColorFormat) BytesPerPixel() int {
	return c.pixelFmt().Size()
}

// TextureUsage decides the access flags of a texture and
// whether it gets a staging image.
type TextureUsage int

const (
	// RenderTargetUsage textures are drawn into and sampled.
	RenderTargetUsage TextureUsage = iota
	// FrequentlyUpdated textures keep a host-visible staging
	// image that the caller rewrites every frame.
	FrequentlyUpdated
	// Immutable textures are filled once from Pixels.
	Immutable
)

func (u TextureUsage) String() string {
	switch u {
	case RenderTargetUsage:
		return "render-target"
	case FrequentlyUpdated:
		return "frequently-updated"
	case Immutable:
		return "immutable"
	}
	return fmt.Sprintf("TextureUsage(%d)", int(u))
}

func (u TextureUsage) imageUsage() gpu.ImageUsage {
	if u == RenderTargetUsage {
		return gpu.USampled | gpu.URenderTarget
	}
	return gpu.USampled | gpu.UImageCopyDst
}

// TextureDescriptor describes a 2D texture.
// Pixels holds the initial data of Immutable textures, tightly
// packed, one layer after another.
type TextureDescriptor struct {
	Width  uint32
	Height uint32
	Layers int
	Color  ColorFormat
	Usage  TextureUsage
	Pixels []byte
}

func (t *TextureDescriptor) layers() int {
	if t.Layers == 0 {
		return 1
	}
	return t.Layers
}

func (t *TextureDescriptor) spec(tiling gpu.Tiling, usg gpu.ImageUsage) gpu.ImageSpec {
	return gpu.ImageSpec{
		Format: t.Color.pixelFmt(),
		Size:   gpu.Extent{Width: t.Width, Height: t.Height},
		Layers: t.layers(),
		Tiling: tiling,
		Usage:  usg,
	}
}

func validate(buffers []BufferDescriptor, textures []TextureDescriptor, maxDim uint32) error {
	for i := range buffers {
		b := &buffers[i]
		if b.Kind < VertexBuffer || b.Kind > ConstantBuffer {
			return fmt.Errorf("%w: buffer %d: unknown kind %d", ErrInvalidDescriptor, i, int(b.Kind))
		}
		if b.Size == 0 {
			return fmt.Errorf("%w: buffer %d: zero size", ErrInvalidDescriptor, i)
		}
		if uint64(len(b.Data)) > b.Size {
			return fmt.Errorf("%w: buffer %d: %d bytes of data for %d bytes", ErrInvalidDescriptor, i, len(b.Data), b.Size)
		}
	}
	for i := range textures {
		t := &textures[i]
		if t.Width == 0 || t.Height == 0 || t.Layers < 0 {
			return fmt.Errorf("%w: texture %d: size %dx%dx%d", ErrInvalidDescriptor, i, t.Width, t.Height, t.Layers)
		}
		if maxDim != 0 && (t.Width > maxDim || t.Height > maxDim) {
			return fmt.Errorf("%w: texture %d: %dx%d exceeds device limit %d", ErrInvalidDescriptor, i, t.Width, t.Height, maxDim)
		}
		if t.Color < Grayscale || t.Color > RGBA {
			return fmt.Errorf("%w: texture %d: unknown color format %d", ErrInvalidDescriptor, i, int(t.Color))
		}
		switch t.Usage {
		case Immutable:
			want := t.spec(gpu.Optimal, 0).LayerSize() * uint64(t.layers())
			if uint64(len(t.Pixels)) != want {
				return fmt.Errorf("%w: texture %d: %d bytes of pixels, want %d", ErrInvalidDescriptor, i, len(t.Pixels), want)
			}
		case RenderTargetUsage, FrequentlyUpdated:
			if len(t.Pixels) != 0 {
				return fmt.Errorf("%w: texture %d: pixels for %v texture", ErrInvalidDescriptor, i, t.Usage)
			}
		default:
			return fmt.Errorf("%w: texture %d: unknown usage %d", ErrInvalidDescriptor, i, int(t.Usage))
		}
	}
	return nil
}

// ResourceBlock owns the objects created by one CreateResources
// call and the memory they are bound to.
//
// Every texture leaves CreateResources in the LShaderRead
// layout. The staging images of FrequentlyUpdated textures are
// left in LGeneral, ready for WriteStaging.
type ResourceBlock struct {
	buffer     gpu.Buffer
	bufAllocs  []Allocation
	textures   []gpu.Image
	texUsages  []TextureUsage
	texOffsets []uint64
	staging    [][]gpu.Image
	stagingOff [][]uint64
	devMem     gpu.Memory
	hostMem    gpu.Memory
	destroyed  bool
}

// Buffer returns the combined buffer, or nil if the block was
// created without buffer descriptors.
func (b *ResourceBlock) Buffer() gpu.Buffer { return b.buffer }

// BufferOffset returns the offset of the ith buffer region
// within the combined buffer.
func (b *ResourceBlock) BufferOffset(i int) uint64 { return b.bufAllocs[i].Offset }

// BufferRegion returns the ith buffer region.
func (b *ResourceBlock) BufferRegion(i int) Allocation { return b.bufAllocs[i] }

// BufferSize returns the size of the combined buffer.
func (b *ResourceBlock) BufferSize() uint64 {
	if b.buffer == nil {
		return 0
	}
	return b.buffer.Size()
}

// Slice returns a slice over the ith buffer region holding
// count elements.
func (b *ResourceBlock) Slice(i int, count uint32) BufferSlice {
	return BufferSlice{Buffer: b.buffer, Offset: b.bufAllocs[i].Offset, Count: count}
}

func (b *ResourceBlock) TextureCount() int          { return len(b.textures) }
func (b *ResourceBlock) Texture(i int) gpu.Image    { return b.textures[i] }
func (b *ResourceBlock) TextureOffset(i int) uint64 { return b.texOffsets[i] }
func (b *ResourceBlock) Usage(i int) TextureUsage   { return b.texUsages[i] }

// Staging returns the retained staging image of the given
// layer of the ith texture. Only FrequentlyUpdated textures
// have one. Staging images are linear and single layered, so
// a texture has one per layer.
func (b *ResourceBlock) Staging(i, layer int) opt.T[gpu.Image] {
	if b.staging == nil || b.staging[i] == nil {
		return opt.Unspecified[gpu.Image]()
	}
	return opt.V(b.staging[i][layer])
}

// StagingOffset returns the offset of a staging image within
// HostMemory.
func (b *ResourceBlock) StagingOffset(i, layer int) uint64 { return b.stagingOff[i][layer] }

func (b *ResourceBlock) DeviceMemory() gpu.Memory { return b.devMem }

// HostMemory returns the retained host-visible memory, or nil
// if no texture is FrequentlyUpdated.
func (b *ResourceBlock) HostMemory() gpu.Memory { return b.hostMem }

// WriteStaging copies pixels into the staging images of the
// ith texture, which must be FrequentlyUpdated. pixels is
// tightly packed, one layer after another. The texture sees
// the new contents once a command buffer recorded with
// Recorder.UploadStaging executes. Writing while such a
// command buffer is in flight races with the copy.
func (b *ResourceBlock) WriteStaging(i int, pixels []byte) error {
	if b.staging == nil || b.staging[i] == nil {
		return fmt.Errorf("%w: texture %d has no staging image", ErrInvalidDescriptor, i)
	}
	spec := b.textures[i].Spec()
	if want := spec.LayerSize() * uint64(spec.Layers); uint64(len(pixels)) != want {
		return fmt.Errorf("%w: texture %d: %d bytes of pixels, want %d", ErrInvalidDescriptor, i, len(pixels), want)
	}
	p, err := b.hostMem.Map()
	if err != nil {
		return fmt.Errorf("map staging memory: %w", err)
	}
	defer b.hostMem.Unmap()
	for l, img := range b.staging[i] {
		writeRows(p[b.stagingOff[i][l]:], img, pixels[uint64(l)*spec.LayerSize():])
	}
	return nil
}

// Destroy destroys every object of the block and frees its
// memory. Calling Destroy more than once does nothing.
func (b *ResourceBlock) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	if b.buffer != nil {
		b.buffer.Destroy()
	}
	for _, t := range b.textures {
		t.Destroy()
	}
	for _, layers := range b.staging {
		for _, s := range layers {
			s.Destroy()
		}
	}
	if b.devMem != nil {
		b.devMem.Destroy()
	}
	if b.hostMem != nil {
		b.hostMem.Destroy()
	}
}

// writeRows copies one tightly packed layer into the host
// mapping of a single layer linear image, honoring its row
// pitch. dst starts at the image's bind offset.
func writeRows(dst []byte, img gpu.Image, pixels []byte) {
	spec := img.Spec()
	row := spec.RowSize()
	sub := img.Subresource(0)
	for y := uint64(0); y < uint64(spec.Size.Height); y++ {
		d := sub.Offset + y*sub.RowPitch
		copy(dst[d:d+row], pixels[y*row:(y+1)*row])
	}
}

// creation tracks the objects of a CreateResources call.
// owned objects are destroyed only if the call fails,
// temporary ones always.
type creation struct {
	g     gpu.GPU
	owned []gpu.Destroyer
	temp  []gpu.Destroyer
}

func (c *creation) own(d gpu.Destroyer)  { c.owned = append(c.owned, d) }
func (c *creation) keep(d gpu.Destroyer) { c.temp = append(c.temp, d) }

func destroyAll(ds []gpu.Destroyer) {
	for i := len(ds) - 1; i >= 0; i-- {
		ds[i].Destroy()
	}
}

// stagingSet is a set of linear staging images, one per layer
// of each staged texture, and optionally a staging buffer,
// packed into one host-visible region.
type stagingSet struct {
	images  [][]gpu.Image
	offsets [][]uint64
	buffer  gpu.Buffer
	bufOff  uint64
	mem     gpu.Memory
}

// layers calls fn for every staging image.
func (s *stagingSet) layers(fn func(i, layer int, img gpu.Image)) {
	for i, imgs := range s.images {
		for l, img := range imgs {
			fn(i, l, img)
		}
	}
}

// newStagingSet creates staging images for the textures whose
// usage is want, plus a staging buffer of bufSize bytes if
// bufSize is not zero. It returns nil if there is nothing to
// stage. temp selects whether the objects outlive the call.
func (c *creation) newStagingSet(textures []TextureDescriptor, want TextureUsage, bufSize uint64, temp bool) (*stagingSet, error) {
	track := c.own
	if temp {
		track = c.keep
	}
	s := &stagingSet{
		images:  make([][]gpu.Image, len(textures)),
		offsets: make([][]uint64, len(textures)),
	}
	var p placer
	typeBits := ^uint32(0)
	n := 0
	for i := range textures {
		t := &textures[i]
		if t.Usage != want {
			continue
		}
		spec := t.spec(gpu.Linear, gpu.UImageCopySrc)
		spec.Layers = 1
		for l := 0; l < t.layers(); l++ {
			img, err := c.g.NewImage(spec)
			if err != nil {
				return nil, exhausted(fmt.Sprintf("create %v staging image %d layer %d", want, i, l), err)
			}
			track(img)
			req := img.Requirements()
			s.images[i] = append(s.images[i], img)
			s.offsets[i] = append(s.offsets[i], p.place(req.Size, req.Alignment).Offset)
			typeBits &= req.TypeBits
			n++
		}
	}
	if bufSize != 0 {
		buf, err := c.g.NewBuffer(bufSize, gpu.UCopySrc)
		if err != nil {
			return nil, exhausted("create staging buffer", err)
		}
		track(buf)
		req := buf.Requirements()
		s.buffer = buf
		s.bufOff = p.place(req.Size, req.Alignment).Offset
		typeBits &= req.TypeBits
		n++
	}
	if n == 0 {
		return nil, nil
	}
	if typeBits == 0 {
		return nil, exhausted("allocate staging memory", gpu.ErrNoMemoryType)
	}
	mem, err := c.g.NewMemory(p.cursor, typeBits, gpu.HostVisible)
	if err != nil {
		return nil, exhausted("allocate staging memory", err)
	}
	track(mem)
	s.mem = mem
	for i, imgs := range s.images {
		for l, img := range imgs {
			if err := img.Bind(mem, s.offsets[i][l]); err != nil {
				return nil, exhausted(fmt.Sprintf("bind staging image %d layer %d", i, l), err)
			}
		}
	}
	if s.buffer != nil {
		if err := s.buffer.Bind(mem, s.bufOff); err != nil {
			return nil, exhausted("bind staging buffer", err)
		}
	}
	Logger().Debug("placed staging", "usage", want, "objects", n, "size", p.cursor)
	return s, nil
}

// CreateResources creates one combined buffer and one texture
// per descriptor, all bound into a single device-local memory
// region, and uploads the initial contents of Immutable
// textures and of buffers that carry Data.
//
// Buffers are packed in order, Constant buffers aligned to the
// device's minimum constant alignment. Textures follow the
// buffer, each aligned as its image requires.
//
// On failure everything created so far is destroyed and the
// returned error wraps ErrResourceExhausted and the cause.
// CreateResources must not be called concurrently.
func (d *RenderDevice) CreateResources(buffers []BufferDescriptor, textures []TextureDescriptor) (*ResourceBlock, error) {
	return createResources(d.gpu, d.uploadPool, d.limits, buffers, textures)
}

func createResources(g gpu.GPU, pool gpu.CmdPool, lim gpu.Limits, buffers []BufferDescriptor, textures []TextureDescriptor) (blk *ResourceBlock, err error) {
	if err := validate(buffers, textures, lim.MaxImage2D); err != nil {
		return nil, err
	}
	c := &creation{g: g}
	defer func() {
		destroyAll(c.temp)
		if err != nil {
			destroyAll(c.owned)
			blk = nil
		}
	}()
	blk = &ResourceBlock{
		textures:   make([]gpu.Image, len(textures)),
		texUsages:  make([]TextureUsage, len(textures)),
		texOffsets: make([]uint64, len(textures)),
	}

	var dev placer
	typeBits := ^uint32(0)
	bufAlign := uint64(1)
	upload := uint64(0)
	if len(buffers) > 0 {
		allocs, size, usg := PlaceBuffers(buffers, lim.MinConstantAlignment)
		for _, b := range buffers {
			if len(b.Data) > 0 {
				usg |= gpu.UCopyDst
				upload = size
				break
			}
		}
		buf, err := g.NewBuffer(size, usg)
		if err != nil {
			return nil, exhausted("create buffer", err)
		}
		c.own(buf)
		req := buf.Requirements()
		dev.place(req.Size, req.Alignment)
		typeBits &= req.TypeBits
		bufAlign = req.Alignment
		blk.buffer, blk.bufAllocs = buf, allocs
		Logger().Debug("placed buffers", "regions", allocs, "size", size)
	}

	for i := range textures {
		t := &textures[i]
		img, err := g.NewImage(t.spec(gpu.Optimal, t.Usage.imageUsage()))
		if err != nil {
			return nil, exhausted(fmt.Sprintf("create texture %d", i), err)
		}
		c.own(img)
		req := img.Requirements()
		a := dev.place(req.Size, req.Alignment)
		typeBits &= req.TypeBits
		blk.textures[i] = img
		blk.texUsages[i] = t.Usage
		blk.texOffsets[i] = a.Offset
		Logger().Debug("placed texture", "index", i, "usage", t.Usage, "region", a)
	}

	if dev.cursor > 0 {
		if typeBits == 0 {
			return nil, exhausted("allocate device memory", gpu.ErrNoMemoryType)
		}
		mem, err := g.NewMemory(alignUp(dev.cursor, bufAlign), typeBits, gpu.DeviceLocal)
		if err != nil {
			return nil, exhausted("allocate device memory", err)
		}
		c.own(mem)
		blk.devMem = mem
		if blk.buffer != nil {
			if err := blk.buffer.Bind(mem, 0); err != nil {
				return nil, exhausted("bind buffer", err)
			}
		}
		for i, img := range blk.textures {
			if err := img.Bind(mem, blk.texOffsets[i]); err != nil {
				return nil, exhausted(fmt.Sprintf("bind texture %d", i), err)
			}
		}
	}

	freq, err := c.newStagingSet(textures, FrequentlyUpdated, 0, false)
	if err != nil {
		return nil, err
	}
	if freq != nil {
		blk.staging, blk.stagingOff, blk.hostMem = freq.images, freq.offsets, freq.mem
	}

	imm, err := c.newStagingSet(textures, Immutable, upload, true)
	if err != nil {
		return nil, err
	}
	if imm != nil {
		if err := fillStaging(imm, buffers, blk.bufAllocs, textures); err != nil {
			return nil, err
		}
	}

	if len(textures) > 0 || imm != nil {
		if err := c.transfer(pool, blk, freq, imm, buffers, textures); err != nil {
			return nil, err
		}
	}
	return blk, nil
}

func fillStaging(s *stagingSet, buffers []BufferDescriptor, allocs []Allocation, textures []TextureDescriptor) error {
	p, err := s.mem.Map()
	if err != nil {
		return exhausted("map staging memory", err)
	}
	defer s.mem.Unmap()
	s.layers(func(i, l int, img gpu.Image) {
		layerSize := img.Spec().LayerSize()
		writeRows(p[s.offsets[i][l]:], img, textures[i].Pixels[uint64(l)*layerSize:])
	})
	if s.buffer != nil {
		for i, b := range buffers {
			off := s.bufOff + allocs[i].Offset
			copy(p[off:off+uint64(len(b.Data))], b.Data)
		}
	}
	return nil
}

// transfer records, submits and waits for the one-shot command
// buffer that moves new textures out of the undefined layout,
// copies staged contents into place and leaves every texture
// readable by shaders.
func (c *creation) transfer(pool gpu.CmdPool, blk *ResourceBlock, freq, imm *stagingSet, buffers []BufferDescriptor, textures []TextureDescriptor) error {
	cbs, err := pool.New(1, false)
	if err != nil {
		return exhausted("allocate upload command buffer", err)
	}
	defer pool.Free(cbs)
	cb := cbs[0]
	if err := cb.Begin(true); err != nil {
		return exhausted("begin upload command buffer", err)
	}

	var pre, post []gpu.Transition
	for i, img := range blk.textures {
		if textures[i].Usage == RenderTargetUsage {
			pre = append(pre, gpu.Transition{Image: img, Before: gpu.LUndefined, After: gpu.LShaderRead})
			continue
		}
		pre = append(pre, gpu.Transition{Image: img, Before: gpu.LUndefined, After: gpu.LCopyDst})
		post = append(post, gpu.Transition{Image: img, Before: gpu.LCopyDst, After: gpu.LShaderRead})
	}
	if freq != nil {
		freq.layers(func(_, _ int, st gpu.Image) {
			pre = append(pre, gpu.Transition{Image: st, Before: gpu.LPreinitialized, After: gpu.LGeneral})
		})
	}
	if imm != nil {
		imm.layers(func(_, _ int, st gpu.Image) {
			pre = append(pre, gpu.Transition{Image: st, Before: gpu.LPreinitialized, After: gpu.LCopySrc})
		})
	}
	if len(pre) > 0 {
		cb.Transition(pre)
	}
	if imm != nil {
		imm.layers(func(i, l int, st gpu.Image) {
			cb.CopyImage(st, blk.textures[i], st.Spec().Size, 0, l)
		})
		if imm.buffer != nil {
			var regions []gpu.BufferCopy
			for i, b := range buffers {
				if len(b.Data) == 0 {
					continue
				}
				off := blk.bufAllocs[i].Offset
				regions = append(regions, gpu.BufferCopy{SrcOff: off, DstOff: off, Size: uint64(len(b.Data))})
			}
			cb.CopyBuffer(imm.buffer, blk.buffer, regions)
		}
	}
	if len(post) > 0 {
		cb.Transition(post)
	}
	if err := cb.End(); err != nil {
		return exhausted("end upload command buffer", err)
	}

	f, err := c.g.NewFence()
	if err != nil {
		return exhausted("create upload fence", err)
	}
	c.keep(f)
	if err := c.g.Queue().Submit(cbs, f); err != nil {
		return exhausted("submit upload", err)
	}
	if err := f.Wait(); err != nil {
		return exhausted("wait for upload", err)
	}
	return nil
}
