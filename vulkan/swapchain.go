package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// Swapchain is a gpu.Swapchain over the device surface.
type Swapchain struct {
	Device      *Device
	VKSwapchain vk.Swapchain
	VKFormat    vk.Format
	PresentMode vk.PresentMode

	size     gpu.Extent
	pf       gpu.PixelFmt
	images   []gpu.Image
	rendered []vk.Semaphore
}

type CreateSwapchainOptions struct {
	// ActualSize is used when the surface leaves the extent to
	// the application, as window systems with scaling do.
	ActualSize gpu.Extent
	// DesiredNumSwapchainImages is raised to the surface minimum
	// when lower. 0 means 2.
	DesiredNumSwapchainImages int
}

// CreateSwapchain creates a swapchain over the device surface.
func (d *Device) CreateSwapchain(options *CreateSwapchainOptions) (sc *Swapchain, err error) {
	if options == nil {
		options = &CreateSwapchainOptions{}
	}
	if d.VKSurface == vk.NullSurface {
		return nil, errors.New("vulkan: device has no surface")
	}
	p := d.PhysicalDevice

	modes, err := p.GetSurfacePresentModes(d.VKSurface)
	if err != nil {
		return nil, err
	}
	presentMode := choosePresentMode(modes)

	formats, err := p.GetSurfaceFormats(d.VKSurface)
	if err != nil {
		return nil, err
	}
	surfaceFormat, pf, ok := chooseSurfaceFormat(formats)
	if !ok {
		return nil, fmt.Errorf("vulkan: no supported surface format among %d", len(formats))
	}

	caps, err := p.GetSurfaceCapabilities(d.VKSurface)
	if err != nil {
		return nil, err
	}

	var size vk.Extent2D
	if caps.CurrentExtent.Width == vk.MaxUint32 {
		size = clampExtent(options.ActualSize, caps.MinImageExtent, caps.MaxImageExtent)
	} else {
		size = caps.CurrentExtent
	}

	count := swapchainImageCount(options.DesiredNumSwapchainImages, caps.MinImageCount, caps.MaxImageCount)

	createInfo := &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.VKSurface,
		MinImageCount:    count,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      size,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	var swapchain vk.Swapchain
	if err := check(vk.CreateSwapchain(d.VKDevice, createInfo, nil, &swapchain)); err != nil {
		return nil, err
	}

	ret := &Swapchain{
		Device:      d,
		VKSwapchain: swapchain,
		VKFormat:    surfaceFormat.Format,
		PresentMode: presentMode,
		size:        gpu.Extent{Width: size.Width, Height: size.Height},
		pf:          pf,
	}
	defer func() {
		if err != nil {
			ret.Destroy()
		}
	}()

	if err := ret.getImages(); err != nil {
		return nil, err
	}
	for range ret.images {
		s, err := d.VKCreateSemaphore()
		if err != nil {
			return nil, err
		}
		ret.rendered = append(ret.rendered, s)
	}

	d.log().Debug("created swapchain",
		"images", len(ret.images), "format", pf, "size", fmt.Sprintf("%dx%d", size.Width, size.Height),
		"presentMode", presentModeName(presentMode))
	return ret, nil
}

func (s *Swapchain) getImages() error {
	var n uint32
	if err := check(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &n, nil)); err != nil {
		return err
	}
	images := make([]vk.Image, n)
	if err := check(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &n, images)); err != nil {
		return err
	}
	spec := gpu.ImageSpec{
		Format: s.pf,
		Size:   s.size,
		Layers: 1,
		Usage:  gpu.URenderTarget,
	}
	s.images = make([]gpu.Image, n)
	for i, img := range images {
		s.images[i] = &Image{Device: s.Device, VKImage: img, VKFormat: s.VKFormat, spec: spec}
	}
	return nil
}

func (s *Swapchain) Images() []gpu.Image   { return s.images }
func (s *Swapchain) Format() gpu.PixelFmt { return s.pf }
func (s *Swapchain) Size() gpu.Extent     { return s.size }

// Next starts acquisition of the next image. f is signaled once
// the presentation engine releases it. A suboptimal swapchain is
// still usable and is not reported.
func (s *Swapchain) Next(f gpu.Fence) (int, error) {
	var index uint32
	res := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, vk.MaxUint64, vk.NullSemaphore, vkFence(f), &index)
	if res == vk.Suboptimal {
		return int(index), nil
	}
	if err := check(res); err != nil {
		return -1, err
	}
	return int(index), nil
}

func (s *Swapchain) Destroy() {
	for _, sema := range s.rendered {
		s.Device.VKDestroySemaphore(sema)
	}
	s.rendered = nil
	vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
}
