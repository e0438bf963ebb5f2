package vulkan

import (
	"errors"
	"sync/atomic"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// DeviceMemory maps to Vulkan DeviceMemory and can either be memory on the host or on the device
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	MapCount       int32

	size uint64
	kind gpu.MemoryKind
}

func (d *DeviceMemory) Size() uint64         { return d.size }
func (d *DeviceMemory) Kind() gpu.MemoryKind { return d.kind }

// IsMapped returns true if the device memory is currently mapped
func (d *DeviceMemory) IsMapped() bool {
	return atomic.LoadInt32(&d.MapCount) > 0
}

// Map will map the entirety of this memory
func (d *DeviceMemory) Map() ([]byte, error) {
	if d.kind != gpu.HostVisible {
		return nil, errors.New("vulkan: mapping device-local memory")
	}
	if !atomic.CompareAndSwapInt32(&d.MapCount, 0, 1) {
		return nil, errors.New("vulkan: memory is already mapped")
	}
	var ptr unsafe.Pointer
	err := check(vk.MapMemory(d.Device.VKDevice, d.VKDeviceMemory, 0, vk.DeviceSize(d.size), 0, &ptr))
	if err != nil {
		atomic.StoreInt32(&d.MapCount, 0)
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), d.size), nil
}

// Unmap this memory
func (d *DeviceMemory) Unmap() {
	if atomic.CompareAndSwapInt32(&d.MapCount, 1, 0) {
		vk.UnmapMemory(d.Device.VKDevice, d.VKDeviceMemory)
	}
}

// Destroy frees this memory
func (d *DeviceMemory) Destroy() {
	d.Unmap()
	vk.FreeMemory(d.Device.VKDevice, d.VKDeviceMemory, nil)
}
