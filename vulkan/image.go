package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// Image is a gpu.Image. Swapchain images are not owned and
// Destroy is a no-op on them.
type Image struct {
	Device   *Device
	VKImage  vk.Image
	VKFormat vk.Format

	spec  gpu.ImageSpec
	owned bool
}

func (d *Device) NewImage(spec gpu.ImageSpec) (gpu.Image, error) {
	if spec.Layers < 1 {
		spec.Layers = 1
	}
	if spec.Tiling == gpu.Linear && spec.Layers > 1 {
		return nil, fmt.Errorf("vulkan: linear image with %d layers", spec.Layers)
	}
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format(spec.Format),
		Extent: vk.Extent3D{
			Width:  spec.Size.Width,
			Height: spec.Size.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   uint32(spec.Layers),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(spec.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if spec.Tiling == gpu.Linear {
		imageInfo.Tiling = vk.ImageTilingLinear
		imageInfo.InitialLayout = vk.ImageLayoutPreinitialized
	}

	var image vk.Image
	if err := check(vk.CreateImage(d.VKDevice, &imageInfo, nil, &image)); err != nil {
		return nil, err
	}
	return &Image{Device: d, VKImage: image, VKFormat: imageInfo.Format, spec: spec, owned: true}, nil
}

func (i *Image) Spec() gpu.ImageSpec { return i.spec }

func (i *Image) Requirements() gpu.MemoryRequirements {
	var mr vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.Device.VKDevice, i.VKImage, &mr)
	mr.Deref()
	return gpu.MemoryRequirements{
		Size:      uint64(mr.Size),
		Alignment: uint64(mr.Alignment),
		TypeBits:  mr.MemoryTypeBits,
	}
}

func (i *Image) Bind(mem gpu.Memory, off uint64) error {
	m := mem.(*DeviceMemory)
	return check(vk.BindImageMemory(i.Device.VKDevice, i.VKImage, m.VKDeviceMemory, vk.DeviceSize(off)))
}

func (i *Image) Subresource(layer int) gpu.SubresourceLayout {
	sub := vk.ImageSubresource{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ArrayLayer: uint32(layer),
	}
	var l vk.SubresourceLayout
	vk.GetImageSubresourceLayout(i.Device.VKDevice, i.VKImage, &sub, &l)
	l.Deref()
	return gpu.SubresourceLayout{
		Offset:   uint64(l.Offset),
		Size:     uint64(l.Size),
		RowPitch: uint64(l.RowPitch),
	}
}

func (i *Image) Destroy() {
	if i.owned {
		vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
	}
}

type ImageView struct {
	Device      *Device
	VKImageView vk.ImageView
}

// CreateImageView creates a 2D color view of the first layer.
func (i *Image) CreateImageView() (*ImageView, error) {
	createInfo := &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.VKImage,
		ViewType: vk.ImageViewType2d,
		Format:   i.VKFormat,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if err := check(vk.CreateImageView(i.Device.VKDevice, createInfo, nil, &view)); err != nil {
		return nil, err
	}
	return &ImageView{Device: i.Device, VKImageView: view}, nil
}

func (i *ImageView) Destroy() {
	vk.DestroyImageView(i.Device.VKDevice, i.VKImageView, nil)
}
