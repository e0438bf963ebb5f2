package vulkan

import (
	"fmt"
	"log/slog"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// Device implements gpu.GPU with a single queue that supports
// graphics, transfer and presentation.
type Device struct {
	Instance       *Instance
	PhysicalDevice *PhysicalDevice
	QueueFamily    *QueueFamily
	VKDevice       vk.Device
	VKSurface      vk.Surface

	queue  *Queue
	limits gpu.Limits
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s QueueFamily: %s }", d.PhysicalDevice, d.QueueFamily)
}

func (d *Device) Name() string       { return d.PhysicalDevice.DeviceName }
func (d *Device) Limits() gpu.Limits { return d.limits }
func (d *Device) Queue() gpu.Queue   { return d.queue }

// SetLogger sets the logger used for validation and lifecycle
// messages.
func (d *Device) SetLogger(l *slog.Logger) { d.Instance.SetLogger(l) }

func (d *Device) log() *slog.Logger { return d.Instance.Logger() }

func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.VKDevice))
}

func (d *Device) NewMemory(size uint64, typeBits uint32, kind gpu.MemoryKind) (gpu.Memory, error) {
	index, err := d.PhysicalDevice.FindMemoryType(typeBits, memoryProperties(kind))
	if err != nil {
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: index,
	}
	var mem vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.VKDevice, &allocateInfo, nil, &mem)); err != nil {
		return nil, fmt.Errorf("allocate %d bytes of %v memory: %w", size, kind, err)
	}
	return &DeviceMemory{Device: d, VKDeviceMemory: mem, size: size, kind: kind}, nil
}

// Close destroys the device, the surface and the instance. Objects
// created from the device must have been destroyed.
func (d *Device) Close() {
	vk.DeviceWaitIdle(d.VKDevice)
	vk.DestroyDevice(d.VKDevice, nil)
	if d.VKSurface != vk.NullSurface {
		vk.DestroySurface(d.Instance.VKInstance, d.VKSurface, nil)
	}
	d.Instance.Destroy()
	d.log().Info("vulkan device closed")
}
