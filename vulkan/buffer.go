package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// Buffer is a gpu.Buffer. Memory is bound separately with Bind.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer

	size  uint64
	usage gpu.BufferUsage
}

func (d *Device) NewBuffer(size uint64, usg gpu.BufferUsage) (gpu.Buffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       bufferUsage(usg),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(d.VKDevice, &bufferCreateInfo, nil, &buffer)); err != nil {
		return nil, err
	}
	return &Buffer{Device: d, VKBuffer: buffer, size: size, usage: usg}, nil
}

func (b *Buffer) Size() uint64          { return b.size }
func (b *Buffer) Usage() gpu.BufferUsage { return b.usage }

func (b *Buffer) Requirements() gpu.MemoryRequirements {
	var mr vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, b.VKBuffer, &mr)
	mr.Deref()
	return gpu.MemoryRequirements{
		Size:      uint64(mr.Size),
		Alignment: uint64(mr.Alignment),
		TypeBits:  mr.MemoryTypeBits,
	}
}

func (b *Buffer) Bind(mem gpu.Memory, off uint64) error {
	m := mem.(*DeviceMemory)
	return check(vk.BindBufferMemory(b.Device.VKDevice, b.VKBuffer, m.VKDeviceMemory, vk.DeviceSize(off)))
}

func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
}
