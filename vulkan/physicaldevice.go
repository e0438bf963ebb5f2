package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

type PhysicalDevice struct {
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

// Limits returns the subset of the device limits the renderer uses.
func (p *PhysicalDevice) Limits() gpu.Limits {
	l := p.VKPhysicalDeviceProperties.Limits
	return gpu.Limits{
		MinConstantAlignment: uint64(l.MinUniformBufferOffsetAlignment),
		MaxImage2D:           l.MaxImageDimension2D,
	}
}

func (p *PhysicalDevice) GetSurfacePresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, modes)); err != nil {
		return nil, err
	}
	return modes, nil
}

func (p *PhysicalDevice) GetSurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, formats)); err != nil {
		return nil, err
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func (p *PhysicalDevice) GetSurfaceCapabilities(surface vk.Surface) (*vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return &caps, nil
}

func (p *PhysicalDevice) QueueFamilies() QueueFamilySlice {
	var n uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &n, nil)
	if n == 0 {
		return nil
	}
	props := make([]vk.QueueFamilyProperties, n)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &n, props)

	ret := make(QueueFamilySlice, n)
	for i, q := range props {
		q.Deref()
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, VKQueueFamilyProperties: q}
	}
	return ret
}

// CreateLogicalDevice creates a device with one queue from qf and
// the given device extensions enabled.
func (p *PhysicalDevice) CreateLogicalDevice(qf *QueueFamily, extensions []string) (vk.Device, error) {
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(qf.Index),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	ext := safeStrings(append([]string(nil), extensions...))
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(ext)),
		PpEnabledExtensionNames: ext,
	}

	var ldevice vk.Device
	if err := check(vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &ldevice)); err != nil {
		return nil, err
	}
	return ldevice, nil
}

func (p *PhysicalDevice) VKPhysicalDeviceMemoryProperties() vk.PhysicalDeviceMemoryProperties {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(p.VKPhysicalDevice, &memoryProperties)
	memoryProperties.Deref()
	return memoryProperties
}

// FindMemoryType returns the first memory type allowed by
// memoryTypeBits that has all of properties.
// See VkPhysicalDeviceMemoryProperties for how the search works.
func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	mp := p.VKPhysicalDeviceMemoryProperties()
	types := make([]vk.MemoryPropertyFlagBits, mp.MemoryTypeCount)
	for i := range types {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		types[i] = vk.MemoryPropertyFlagBits(mt.PropertyFlags)
	}
	i, ok := findMemoryType(types, memoryTypeBits, properties)
	if !ok {
		return 0, fmt.Errorf("%w: type bits %#x, properties %#x", gpu.ErrNoMemoryType, memoryTypeBits, uint32(properties))
	}
	return i, nil
}

func findMemoryType(types []vk.MemoryPropertyFlagBits, typeBits uint32, want vk.MemoryPropertyFlagBits) (uint32, bool) {
	for i, flags := range types {
		if typeBits&(1<<uint(i)) != 0 && flags&want == want {
			return uint32(i), true
		}
	}
	return 0, false
}
