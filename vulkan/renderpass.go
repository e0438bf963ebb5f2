package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// RenderPass is a single subpass, single color attachment pass.
type RenderPass struct {
	Device       *Device
	VKRenderPass vk.RenderPass

	pf    gpu.PixelFmt
	clear bool
}

func (d *Device) NewRenderPass(pf gpu.PixelFmt, clear bool) (gpu.RenderPass, error) {
	loadOp := vk.AttachmentLoadOpLoad
	if clear {
		loadOp = vk.AttachmentLoadOpClear
	}
	attachmentDescriptions := []vk.AttachmentDescription{{
		Format:         format(pf),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}

	colorAttachments := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpassDescriptions := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachments,
	}}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	renderPassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      subpassDescriptions,
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := check(vk.CreateRenderPass(d.VKDevice, &renderPassCreateInfo, nil, &renderPass)); err != nil {
		return nil, err
	}
	return &RenderPass{Device: d, VKRenderPass: renderPass, pf: pf, clear: clear}, nil
}

func (p *RenderPass) Format() gpu.PixelFmt { return p.pf }
func (p *RenderPass) Clears() bool         { return p.clear }

func (p *RenderPass) NewFB(img gpu.Image, size gpu.Extent) (gpu.Framebuf, error) {
	view, err := img.(*Image).CreateImageView()
	if err != nil {
		return nil, err
	}
	fbCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      p.VKRenderPass,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{view.VKImageView},
		Width:           size.Width,
		Height:          size.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := check(vk.CreateFramebuffer(p.Device.VKDevice, &fbCreateInfo, nil, &fb)); err != nil {
		view.Destroy()
		return nil, err
	}
	return &Framebuffer{Device: p.Device, VKFramebuffer: fb, view: view, size: size}, nil
}

func (p *RenderPass) Destroy() {
	vk.DestroyRenderPass(p.Device.VKDevice, p.VKRenderPass, nil)
}

// Framebuffer owns the image view it renders to.
type Framebuffer struct {
	Device        *Device
	VKFramebuffer vk.Framebuffer

	view *ImageView
	size gpu.Extent
}

func (f *Framebuffer) Size() gpu.Extent { return f.size }

func (f *Framebuffer) Destroy() {
	vk.DestroyFramebuffer(f.Device.VKDevice, f.VKFramebuffer, nil)
	f.view.Destroy()
}
