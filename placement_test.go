package dcrender

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/celer/dcrender/gpu"
)

func TestAlign(t *testing.T) {
	for _, tc := range []struct{ a, align, want uint64 }{
		{12, 3, 12},
		{10, 3, 12},
		{0, 256, 0},
		{1, 256, 256},
		{257, 256, 512},
		{7, 1, 7},
		{7, 0, 7},
	} {
		if got := alignUp(tc.a, tc.align); got != tc.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tc.a, tc.align, got, tc.want)
		}
	}
}

func TestPlaceBuffers(t *testing.T) {
	tests := []struct {
		name      string
		descs     []BufferDescriptor
		align     uint64
		want      []Allocation
		wantTotal uint64
		wantUsage gpu.BufferUsage
	}{
		{
			name: "vertex then constant",
			descs: []BufferDescriptor{
				{Kind: VertexBuffer, Size: 256},
				{Kind: ConstantBuffer, Size: 40},
			},
			align:     256,
			want:      []Allocation{{0, 256}, {256, 40}},
			wantTotal: 296,
			wantUsage: gpu.UVertex | gpu.UConstant,
		},
		{
			name: "unaligned vertex before constant",
			descs: []BufferDescriptor{
				{Kind: VertexBuffer, Size: 100},
				{Kind: IndexBuffer, Size: 12},
				{Kind: ConstantBuffer, Size: 64},
				{Kind: VertexBuffer, Size: 8},
			},
			align:     256,
			want:      []Allocation{{0, 100}, {100, 12}, {256, 64}, {320, 8}},
			wantTotal: 328,
			wantUsage: gpu.UVertex | gpu.UIndex | gpu.UConstant,
		},
		{
			name: "constant first",
			descs: []BufferDescriptor{
				{Kind: ConstantBuffer, Size: 16},
				{Kind: ConstantBuffer, Size: 16},
			},
			align:     64,
			want:      []Allocation{{0, 16}, {64, 16}},
			wantTotal: 80,
			wantUsage: gpu.UConstant,
		},
		{
			name: "none",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, total, usg := PlaceBuffers(tc.descs, tc.align)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("PlaceBuffers() allocations mismatch (-want +got):\n%s", diff)
			}
			if total != tc.wantTotal {
				t.Errorf("PlaceBuffers() total = %d, want %d", total, tc.wantTotal)
			}
			if usg != tc.wantUsage {
				t.Errorf("PlaceBuffers() usage = %#x, want %#x", usg, tc.wantUsage)
			}
		})
	}
}

func TestPlaceBuffersRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	kinds := []BufferKind{VertexBuffer, IndexBuffer, ConstantBuffer}
	for n := 0; n < 500; n++ {
		align := uint64(1) << rng.Intn(9)
		descs := make([]BufferDescriptor, 1+rng.Intn(12))
		for i := range descs {
			descs[i] = BufferDescriptor{
				Kind: kinds[rng.Intn(len(kinds))],
				Size: 1 + uint64(rng.Intn(1000)),
			}
		}
		allocs, total, _ := PlaceBuffers(descs, align)
		var prevEnd uint64
		for i, a := range allocs {
			if a.Size != descs[i].Size {
				t.Fatalf("allocation %d: size %d, want %d", i, a.Size, descs[i].Size)
			}
			if a.Offset < prevEnd {
				t.Fatalf("allocation %d at %d overlaps previous ending at %d", i, a.Offset, prevEnd)
			}
			if descs[i].Kind == ConstantBuffer && a.Offset%align != 0 {
				t.Fatalf("constant allocation %d at %d not aligned to %d", i, a.Offset, align)
			}
			if descs[i].Kind != ConstantBuffer && a.Offset != prevEnd {
				t.Fatalf("allocation %d at %d, want packed at %d", i, a.Offset, prevEnd)
			}
			prevEnd = a.End()
		}
		if total != prevEnd {
			t.Fatalf("total = %d, want %d", total, prevEnd)
		}
	}
}

func TestPlacer(t *testing.T) {
	var p placer
	p.place(296, 256)
	a := p.place(4096, 4096)
	b := p.place(100, 512)
	want := []Allocation{{0, 296}, {4096, 4096}, {8192, 100}}
	if diff := cmp.Diff(want, p.allocs); diff != "" {
		t.Errorf("placer allocations mismatch (-want +got):\n%s", diff)
	}
	if a.String() != "[4096 4096]" {
		t.Errorf("Allocation.String() = %q", a.String())
	}
	if p.cursor != b.End() {
		t.Errorf("placer cursor = %d, want %d", p.cursor, b.End())
	}
}
