package vulkan

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

func TestVertexInput(t *testing.T) {
	bindings, attrs := vertexInput(gpu.VertexLayout{
		Stride: 24,
		Attrs: []gpu.VertexAttr{
			{Format: gpu.Float32x2},
			{Format: gpu.Float32x3, Offset: 8},
			{Format: gpu.Unorm8x4, Offset: 20},
		},
	})
	if len(bindings) != 1 || bindings[0].Stride != 24 || bindings[0].InputRate != vk.VertexInputRateVertex {
		t.Errorf("bindings = %+v", bindings)
	}
	want := []struct {
		format vk.Format
		offset uint32
	}{
		{vk.FormatR32g32Sfloat, 0},
		{vk.FormatR32g32b32Sfloat, 8},
		{vk.FormatR8g8b8a8Unorm, 20},
	}
	if len(attrs) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(attrs), len(want))
	}
	for i, a := range attrs {
		if a.Location != uint32(i) || a.Binding != 0 || a.Format != want[i].format || a.Offset != want[i].offset {
			t.Errorf("attribute %d = location %d format %d offset %d, want location %d format %d offset %d",
				i, a.Location, a.Format, a.Offset, i, want[i].format, want[i].offset)
		}
	}

	if b, a := vertexInput(gpu.VertexLayout{}); b != nil || a != nil {
		t.Errorf("vertexInput(empty) = %v, %v", b, a)
	}
}

func TestTopology(t *testing.T) {
	for _, tc := range []struct {
		in   gpu.Topology
		want vk.PrimitiveTopology
	}{
		{gpu.TTriangleList, vk.PrimitiveTopologyTriangleList},
		{gpu.TTriangleStrip, vk.PrimitiveTopologyTriangleStrip},
		{gpu.TLineList, vk.PrimitiveTopologyLineList},
	} {
		if got := topology(tc.in); got != tc.want {
			t.Errorf("topology(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBlendAttachment(t *testing.T) {
	if s := blendAttachment(false); s.BlendEnable != vk.False {
		t.Errorf("blendAttachment(false) enables blending")
	}
	s := blendAttachment(true)
	if s.BlendEnable != vk.True || s.SrcColorBlendFactor != vk.BlendFactorSrcAlpha || s.DstColorBlendFactor != vk.BlendFactorOneMinusSrcAlpha {
		t.Errorf("blendAttachment(true) = %+v", s)
	}
	if s.ColorWriteMask == 0 {
		t.Error("blendAttachment(true) writes no channels")
	}
}

func TestSliceUint32(t *testing.T) {
	// SPIR-V magic number, from an odd offset to skip alignment.
	buf := []byte{0, 0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}
	words := sliceUint32(buf[1:])
	if len(words) != 2 || words[0] != 0x07230203 {
		t.Errorf("sliceUint32() = %#x", words)
	}
}
