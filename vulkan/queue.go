package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue
}

func (d *Device) getQueue(qf *QueueFamily) *Queue {
	var vkq vk.Queue
	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), 0, &vkq)
	return &Queue{Device: d, QueueFamily: qf, VKQueue: vkq}
}

func (q *Queue) WaitIdle() error {
	return check(vk.QueueWaitIdle(q.VKQueue))
}

func vkCmdBuffers(cbs []gpu.CmdBuffer) []vk.CommandBuffer {
	b := make([]vk.CommandBuffer, len(cbs))
	for i := range cbs {
		b[i] = cbs[i].(*CommandBuffer).VKCommandBuffer
	}
	return b
}

func (q *Queue) Submit(cbs []gpu.CmdBuffer, f gpu.Fence) error {
	submitInfo := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(cbs)),
		PCommandBuffers:    vkCmdBuffers(cbs),
	}}
	return check(vk.QueueSubmit(q.VKQueue, 1, submitInfo, vkFence(f)))
}

// Present submits cbs signaling the image's render-complete
// semaphore, and queues the image for presentation behind it.
// The image must have been acquired and its fence waited on.
func (q *Queue) Present(sc gpu.Swapchain, index int, cbs []gpu.CmdBuffer) error {
	s := sc.(*Swapchain)
	rendered := []vk.Semaphore{s.rendered[index]}

	submitInfo := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      vkCmdBuffers(cbs),
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    rendered,
	}}
	if err := check(vk.QueueSubmit(q.VKQueue, 1, submitInfo, vk.NullFence)); err != nil {
		return fmt.Errorf("submit backbuffer %d: %w", index, err)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    rendered,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.VKSwapchain},
		PImageIndices:      []uint32{uint32(index)},
	}
	res := vk.QueuePresent(q.VKQueue, &presentInfo)
	if res == vk.Suboptimal {
		return nil
	}
	if err := check(res); err != nil {
		return fmt.Errorf("present backbuffer %d: %w", index, err)
	}
	return nil
}

func (q *Queue) String() string {
	return fmt.Sprintf("{QueueFamily: %s}", q.QueueFamily)
}
