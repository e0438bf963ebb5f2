package dcrender

import (
	"fmt"

	"github.com/celer/dcrender/gpu"
)

// Allocation is a region of a memory block.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// End returns the first offset past a.
func (a Allocation) End() uint64 { return a.Offset + a.Size }

func alignUp(a, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

// placer is a bump allocator over a memory block that does
// not exist yet. Regions are never freed; the block is sized
// to the final cursor.
type placer struct {
	cursor uint64
	allocs []Allocation
}

func (p *placer) place(size, align uint64) Allocation {
	a := Allocation{Offset: alignUp(p.cursor, align), Size: size}
	p.cursor = a.End()
	p.allocs = append(p.allocs, a)
	return a
}

func (k BufferKind) usage() gpu.BufferUsage {
	switch k {
	case VertexBuffer:
		return gpu.UVertex
	case IndexBuffer:
		return gpu.UIndex
	case ConstantBuffer:
		return gpu.UConstant
	}
	panic(fmt.Sprintf("dcrender: unknown BufferKind %d", int(k)))
}

// PlaceBuffers lays out descs one after another in a single
// buffer. Constant buffers start at a multiple of constAlign.
// It returns the region of each descriptor, the size of the
// combined buffer and the union of the usages.
func PlaceBuffers(descs []BufferDescriptor, constAlign uint64) ([]Allocation, uint64, gpu.BufferUsage) {
	var p placer
	var usg gpu.BufferUsage
	for _, d := range descs {
		align := uint64(1)
		if d.Kind == ConstantBuffer {
			align = constAlign
		}
		p.place(d.Size, align)
		usg |= d.Kind.usage()
	}
	return p.allocs, p.cursor, usg
}
