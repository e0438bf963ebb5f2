package gpu

import "fmt"

// BufferUsage is a mask of buffer usages.
type BufferUsage uint32

const (
	UVertex BufferUsage = 1 << iota
	UIndex
	UConstant
	UCopySrc
	UCopyDst
)

// ImageUsage is a mask of image usages.
type ImageUsage uint32

const (
	USampled ImageUsage = 1 << iota
	URenderTarget
	UImageCopySrc
	UImageCopyDst
)

// PixelFmt is the format of image texels.
type PixelFmt int

const (
	R8Unorm PixelFmt = iota
	RGB8Unorm
	RGBA8Unorm
	BGRA8Unorm
)

// Size returns the size of one texel in bytes.
func (f PixelFmt) Size() int {
	switch f {
	case R8Unorm:
		return 1
	case RGB8Unorm:
		return 3
	case RGBA8Unorm, BGRA8Unorm:
		return 4
	}
	panic(fmt.Sprintf("gpu: unknown PixelFmt %d", int(f)))
}

func (f PixelFmt) String() string {
	switch f {
	case R8Unorm:
		return "R8Unorm"
	case RGB8Unorm:
		return "RGB8Unorm"
	case RGBA8Unorm:
		return "RGBA8Unorm"
	case BGRA8Unorm:
		return "BGRA8Unorm"
	}
	return fmt.Sprintf("PixelFmt(%d)", int(f))
}

// Tiling is the texel arrangement of an image.
type Tiling int

const (
	// Optimal tiling is opaque and device friendly.
	Optimal Tiling = iota
	// Linear tiling is row-major and host accessible.
	Linear
)

// Layout is an image layout.
type Layout int

const (
	LUndefined Layout = iota
	LPreinitialized
	// LGeneral is the layout of linear images the host
	// writes to after their first upload.
	LGeneral
	LCopySrc
	LCopyDst
	LShaderRead
	LColorTarget
	LPresent
)

func (l Layout) String() string {
	switch l {
	case LUndefined:
		return "Undefined"
	case LPreinitialized:
		return "Preinitialized"
	case LGeneral:
		return "General"
	case LCopySrc:
		return "CopySrc"
	case LCopyDst:
		return "CopyDst"
	case LShaderRead:
		return "ShaderRead"
	case LColorTarget:
		return "ColorTarget"
	case LPresent:
		return "Present"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// IndexFmt is the format of index buffer elements.
type IndexFmt int

const (
	Index16 IndexFmt = iota
	Index32
)

// Size returns the size of one index in bytes.
func (f IndexFmt) Size() int {
	if f == Index32 {
		return 4
	}
	return 2
}

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// ImageSpec describes an image to create.
type ImageSpec struct {
	Format PixelFmt
	Size   Extent
	Layers int
	Tiling Tiling
	Usage  ImageUsage
}

// RowSize returns the tightly packed size of one texel row.
func (s ImageSpec) RowSize() uint64 {
	return uint64(s.Size.Width) * uint64(s.Format.Size())
}

// LayerSize returns the tightly packed size of one layer.
func (s ImageSpec) LayerSize() uint64 {
	return s.RowSize() * uint64(s.Size.Height)
}

// VertexFmt is the format of a vertex attribute.
type VertexFmt int

const (
	Float32x2 VertexFmt = iota
	Float32x3
	Float32x4
	Unorm8x4
)

// Size returns the size of one attribute in bytes.
func (f VertexFmt) Size() int {
	switch f {
	case Float32x2:
		return 8
	case Float32x3:
		return 12
	case Float32x4:
		return 16
	case Unorm8x4:
		return 4
	}
	panic(fmt.Sprintf("gpu: unknown VertexFmt %d", int(f)))
}

// VertexAttr is a vertex attribute. Its shader location is
// its index in VertexLayout.Attrs.
type VertexAttr struct {
	Format VertexFmt
	Offset uint32
}

// VertexLayout describes the interleaved vertices of the
// single vertex buffer binding.
type VertexLayout struct {
	Stride uint32
	Attrs  []VertexAttr
}

// Topology is the primitive topology of a pipeline.
type Topology int

const (
	TTriangleList Topology = iota
	TTriangleStrip
	TLineList
)

// ShaderCode is a SPIR-V module and its entry point.
// An empty Entry means "main".
type ShaderCode struct {
	Code  []byte
	Entry string
}

// PipelineSpec describes a graphics pipeline to create.
// There are no descriptor sets, depth or culling.
type PipelineSpec struct {
	Pass     RenderPass
	Vertex   ShaderCode
	Fragment ShaderCode
	Input    VertexLayout
	Topology Topology
	// Blend enables alpha blending into the attachment.
	Blend bool
}

// Validate reports whether the spec can be turned into a
// pipeline.
func (s *PipelineSpec) Validate() error {
	if s.Pass == nil {
		return fmt.Errorf("gpu: pipeline without a render pass")
	}
	for _, sh := range []ShaderCode{s.Vertex, s.Fragment} {
		if len(sh.Code) == 0 || len(sh.Code)%4 != 0 {
			return fmt.Errorf("gpu: %d bytes of SPIR-V is not a whole number of words", len(sh.Code))
		}
	}
	for i, a := range s.Input.Attrs {
		if a.Offset+uint32(a.Format.Size()) > s.Input.Stride {
			return fmt.Errorf("gpu: vertex attribute %d ends past the stride %d", i, s.Input.Stride)
		}
	}
	return nil
}
