package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

type CommandPool struct {
	Device        *Device
	VKCommandPool vk.CommandPool
}

// NewCmdPool creates a pool on the device queue family. Buffers can
// be reset individually; transient pools hint short lived buffers.
func (d *Device) NewCmdPool(transient bool) (gpu.CmdPool, error) {
	flags := vk.CommandPoolCreateResetCommandBufferBit
	if transient {
		flags |= vk.CommandPoolCreateTransientBit
	}
	commandPoolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: uint32(d.QueueFamily.Index),
	}

	var commandPool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.VKDevice, &commandPoolCreateInfo, nil, &commandPool)); err != nil {
		return nil, err
	}
	return &CommandPool{Device: d, VKCommandPool: commandPool}, nil
}

func (c *CommandPool) New(count int, secondary bool) ([]gpu.CmdBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if secondary {
		level = vk.CommandBufferLevelSecondary
	}
	commandBufferAllocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.VKCommandPool,
		Level:              level,
		CommandBufferCount: uint32(count),
	}

	cmdBuffers := make([]vk.CommandBuffer, count)
	if err := check(vk.AllocateCommandBuffers(c.Device.VKDevice, &commandBufferAllocateInfo, cmdBuffers)); err != nil {
		return nil, err
	}

	ret := make([]gpu.CmdBuffer, count)
	for i := range ret {
		ret[i] = &CommandBuffer{VKCommandBuffer: cmdBuffers[i]}
	}
	return ret, nil
}

func (c *CommandPool) Free(cbs []gpu.CmdBuffer) {
	if len(cbs) == 0 {
		return
	}
	vk.FreeCommandBuffers(c.Device.VKDevice, c.VKCommandPool, uint32(len(cbs)), vkCmdBuffers(cbs))
}

func (c *CommandPool) Destroy() {
	vk.DestroyCommandPool(c.Device.VKDevice, c.VKCommandPool, nil)
}
