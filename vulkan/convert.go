package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// check converts a result into an error, classifying the results
// the renderer reacts to into the gpu sentinels.
func check(res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("%w: %v", gpu.ErrNoDeviceMemory, vk.Error(res))
	case vk.ErrorOutOfHostMemory:
		return fmt.Errorf("%w: %v", gpu.ErrNoHostMemory, vk.Error(res))
	case vk.ErrorDeviceLost, vk.ErrorSurfaceLost, vk.ErrorOutOfDate:
		return fmt.Errorf("%w: %v", gpu.ErrFatal, vk.Error(res))
	}
	return vk.Error(res)
}

func format(pf gpu.PixelFmt) vk.Format {
	switch pf {
	case gpu.R8Unorm:
		return vk.FormatR8Unorm
	case gpu.RGB8Unorm:
		return vk.FormatR8g8b8Unorm
	case gpu.RGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.BGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	}
	panic(fmt.Sprintf("vulkan: unknown PixelFmt %d", int(pf)))
}

// chooseSurfaceFormat prefers BGRA8 then RGBA8. A single undefined
// format means the surface takes anything.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, gpu.PixelFmt, bool) {
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		f := formats[0]
		f.Format = vk.FormatB8g8r8a8Unorm
		return f, gpu.BGRA8Unorm, true
	}
	for _, want := range []gpu.PixelFmt{gpu.BGRA8Unorm, gpu.RGBA8Unorm} {
		for _, f := range formats {
			if f.Format == format(want) {
				return f, want, true
			}
		}
	}
	return vk.SurfaceFormat{}, 0, false
}

func imageLayout(l gpu.Layout) vk.ImageLayout {
	switch l {
	case gpu.LUndefined:
		return vk.ImageLayoutUndefined
	case gpu.LPreinitialized:
		return vk.ImageLayoutPreinitialized
	case gpu.LGeneral:
		return vk.ImageLayoutGeneral
	case gpu.LCopySrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.LCopyDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.LShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.LColorTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.LPresent:
		return vk.ImageLayoutPresentSrc
	}
	panic(fmt.Sprintf("vulkan: unknown Layout %d", int(l)))
}

// layoutSync returns the accesses and stages an image in layout l
// is used with.
func layoutSync(l gpu.Layout) (vk.AccessFlags, vk.PipelineStageFlags) {
	var access vk.AccessFlagBits
	var stage vk.PipelineStageFlagBits
	switch l {
	case gpu.LUndefined:
		stage = vk.PipelineStageTopOfPipeBit
	case gpu.LPreinitialized, gpu.LGeneral:
		access, stage = vk.AccessHostWriteBit, vk.PipelineStageHostBit
	case gpu.LCopySrc:
		access, stage = vk.AccessTransferReadBit, vk.PipelineStageTransferBit
	case gpu.LCopyDst:
		access, stage = vk.AccessTransferWriteBit, vk.PipelineStageTransferBit
	case gpu.LShaderRead:
		access, stage = vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit
	case gpu.LColorTarget:
		access = vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit
		stage = vk.PipelineStageColorAttachmentOutputBit
	case gpu.LPresent:
		stage = vk.PipelineStageBottomOfPipeBit
	default:
		panic(fmt.Sprintf("vulkan: unknown Layout %d", int(l)))
	}
	return vk.AccessFlags(access), vk.PipelineStageFlags(stage)
}

func vertexFormat(f gpu.VertexFmt) vk.Format {
	switch f {
	case gpu.Float32x2:
		return vk.FormatR32g32Sfloat
	case gpu.Float32x3:
		return vk.FormatR32g32b32Sfloat
	case gpu.Float32x4:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.Unorm8x4:
		return vk.FormatR8g8b8a8Unorm
	}
	panic(fmt.Sprintf("vulkan: unknown VertexFmt %d", int(f)))
}

func topology(t gpu.Topology) vk.PrimitiveTopology {
	switch t {
	case gpu.TTriangleList:
		return vk.PrimitiveTopologyTriangleList
	case gpu.TTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.TLineList:
		return vk.PrimitiveTopologyLineList
	}
	panic(fmt.Sprintf("vulkan: unknown Topology %d", int(t)))
}

func bufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var f vk.BufferUsageFlagBits
	if u&gpu.UVertex != 0 {
		f |= vk.BufferUsageVertexBufferBit
	}
	if u&gpu.UIndex != 0 {
		f |= vk.BufferUsageIndexBufferBit
	}
	if u&gpu.UConstant != 0 {
		f |= vk.BufferUsageUniformBufferBit
	}
	if u&gpu.UCopySrc != 0 {
		f |= vk.BufferUsageTransferSrcBit
	}
	if u&gpu.UCopyDst != 0 {
		f |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(f)
}

func imageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var f vk.ImageUsageFlagBits
	if u&gpu.USampled != 0 {
		f |= vk.ImageUsageSampledBit
	}
	if u&gpu.URenderTarget != 0 {
		f |= vk.ImageUsageColorAttachmentBit
	}
	if u&gpu.UImageCopySrc != 0 {
		f |= vk.ImageUsageTransferSrcBit
	}
	if u&gpu.UImageCopyDst != 0 {
		f |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(f)
}

func indexType(f gpu.IndexFmt) vk.IndexType {
	if f == gpu.Index32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

func memoryProperties(k gpu.MemoryKind) vk.MemoryPropertyFlagBits {
	if k == gpu.HostVisible {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}

// choosePresentMode prefers the lowest latency mode: immediate,
// then mailbox. FIFO is always available.
func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, want := range []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeMailbox} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

func presentModeName(m vk.PresentMode) string {
	switch m {
	case vk.PresentModeImmediate:
		return "immediate"
	case vk.PresentModeMailbox:
		return "mailbox"
	case vk.PresentModeFifo:
		return "fifo"
	case vk.PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", int(m))
}

// swapchainImageCount returns max(want, minCount) with want
// defaulting to 2, capped by maxCount unless it is 0 (no limit).
func swapchainImageCount(want int, minCount, maxCount uint32) uint32 {
	if want <= 0 {
		want = 2
	}
	n := max(uint32(want), minCount)
	if maxCount != 0 && n > maxCount {
		n = maxCount
	}
	return n
}

func clampExtent(want gpu.Extent, lo, hi vk.Extent2D) vk.Extent2D {
	return vk.Extent2D{
		Width:  min(max(want.Width, lo.Width), hi.Width),
		Height: min(max(want.Height, lo.Height), hi.Height),
	}
}
