package vulkan

import (
	"github.com/mokiat/gog/opt"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// CommandBuffer describes a sequence of commands that will be executed
// upon being submitted to the device queue.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer

	// extent of the framebuffer of the current pass.
	extent vk.Extent2D
}

// VK is a utility function for accessing the native vulkan command buffer
func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

// Reset this command buffer
func (c *CommandBuffer) Reset() error {
	return check(vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

// Begin capturing work for this command buffer. A one time buffer
// is submitted once and then reset or freed.
func (c *CommandBuffer) Begin(oneTime bool) error {
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTime {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// BeginSecondary begins a secondary buffer that continues the
// pass over fb.
func (c *CommandBuffer) BeginSecondary(pass gpu.RenderPass, fb gpu.Framebuf) error {
	c.extent = vkExtent(fb.Size())
	inheritInfo := vk.CommandBufferInheritanceInfo{
		SType:       vk.StructureTypeCommandBufferInheritanceInfo,
		RenderPass:  pass.(*RenderPass).VKRenderPass,
		Framebuffer: fb.(*Framebuffer).VKFramebuffer,
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType:            vk.StructureTypeCommandBufferBeginInfo,
		Flags:            vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit),
		PInheritanceInfo: []vk.CommandBufferInheritanceInfo{inheritInfo},
	}
	return check(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	return check(vk.EndCommandBuffer(c.VKCommandBuffer))
}

var colorLayers = vk.ImageSubresourceLayers{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LayerCount: 1,
}

// Transition records all of t as a single pipeline barrier.
func (c *CommandBuffer) Transition(t []gpu.Transition) {
	if len(t) == 0 {
		return
	}
	barriers := make([]vk.ImageMemoryBarrier, len(t))
	var srcStage, dstStage vk.PipelineStageFlags
	for i, tr := range t {
		srcAccess, src := layoutSync(tr.Before)
		dstAccess, dst := layoutSync(tr.After)
		srcStage |= src
		dstStage |= dst
		img := tr.Image.(*Image)
		barriers[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           imageLayout(tr.Before),
			NewLayout:           imageLayout(tr.After),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.VKImage,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: uint32(img.spec.Layers),
			},
		}
	}
	vk.CmdPipelineBarrier(c.VKCommandBuffer, srcStage, dstStage, 0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	r := make([]vk.BufferCopy, len(regions))
	for i, reg := range regions {
		r[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(reg.SrcOff),
			DstOffset: vk.DeviceSize(reg.DstOff),
			Size:      vk.DeviceSize(reg.Size),
		}
	}
	vk.CmdCopyBuffer(c.VKCommandBuffer, src.(*Buffer).VKBuffer, dst.(*Buffer).VKBuffer, uint32(len(r)), r)
}

// CopyImage copies layer srcLayer of src (in LCopySrc) to layer
// dstLayer of dst (in LCopyDst).
func (c *CommandBuffer) CopyImage(src, dst gpu.Image, size gpu.Extent, srcLayer, dstLayer int) {
	srcSub, dstSub := colorLayers, colorLayers
	srcSub.BaseArrayLayer = uint32(srcLayer)
	dstSub.BaseArrayLayer = uint32(dstLayer)
	region := []vk.ImageCopy{{
		SrcSubresource: srcSub,
		DstSubresource: dstSub,
		Extent:         vk.Extent3D{Width: size.Width, Height: size.Height, Depth: 1},
	}}
	vk.CmdCopyImage(c.VKCommandBuffer,
		src.(*Image).VKImage, vk.ImageLayoutTransferSrcOptimal,
		dst.(*Image).VKImage, vk.ImageLayoutTransferDstOptimal,
		1, region)
}

func (c *CommandBuffer) BeginPass(pass gpu.RenderPass, fb gpu.Framebuf, clear opt.T[gpu.ClearColor], secondary bool) {
	f := fb.(*Framebuffer)
	c.extent = vkExtent(f.size)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.(*RenderPass).VKRenderPass,
		Framebuffer: f.VKFramebuffer,
		RenderArea:  vk.Rect2D{Extent: c.extent},
	}
	if clear.Specified {
		col := clear.Value
		beginInfo.ClearValueCount = 1
		beginInfo.PClearValues = []vk.ClearValue{vk.NewClearValue(col[:])}
	}
	contents := vk.SubpassContentsInline
	if secondary {
		contents = vk.SubpassContentsSecondaryCommandBuffers
	}
	vk.CmdBeginRenderPass(c.VKCommandBuffer, &beginInfo, contents)
}

func (c *CommandBuffer) EndPass() {
	vk.CmdEndRenderPass(c.VKCommandBuffer)
}

func (c *CommandBuffer) Execute(cbs []gpu.CmdBuffer) {
	if len(cbs) == 0 {
		return
	}
	vk.CmdExecuteCommands(c.VKCommandBuffer, uint32(len(cbs)), vkCmdBuffers(cbs))
}

// SetPipeline binds p with a viewport and scissor covering the
// framebuffer of the current pass.
func (c *CommandBuffer) SetPipeline(p gpu.Pipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, vk.PipelineBindPointGraphics, p.(*Pipeline).VKPipeline)
	viewport := vk.Viewport{
		Width:    float32(c.extent.Width),
		Height:   float32(c.extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(c.VKCommandBuffer, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(c.VKCommandBuffer, 0, 1, []vk.Rect2D{{Extent: c.extent}})
}

func (c *CommandBuffer) SetVertexBuf(buf gpu.Buffer, off uint64) {
	vk.CmdBindVertexBuffers(c.VKCommandBuffer, 0, 1, []vk.Buffer{buf.(*Buffer).VKBuffer}, []vk.DeviceSize{vk.DeviceSize(off)})
}

func (c *CommandBuffer) SetIndexBuf(format gpu.IndexFmt, buf gpu.Buffer, off uint64) {
	vk.CmdBindIndexBuffer(c.VKCommandBuffer, buf.(*Buffer).VKBuffer, vk.DeviceSize(off), indexType(format))
}

func (c *CommandBuffer) Draw(vertCount, instCount uint32) {
	vk.CmdDraw(c.VKCommandBuffer, vertCount, instCount, 0, 0)
}

func (c *CommandBuffer) DrawIndexed(idxCount, instCount uint32) {
	vk.CmdDrawIndexed(c.VKCommandBuffer, idxCount, instCount, 0, 0, 0)
}

func vkExtent(e gpu.Extent) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}
