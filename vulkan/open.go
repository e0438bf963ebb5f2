package vulkan

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Config configures Open.
type Config struct {
	App App
	// Debug enables the validation layer when it is installed.
	Debug bool
	// Logger receives validation and lifecycle messages.
	// nil means slog.Default.
	Logger *slog.Logger
}

// Init loads the Vulkan loader through GLFW. glfw.Init must have
// been called.
func Init() error {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	return vk.Init()
}

// Open creates an instance with the extensions window needs, a
// surface for window and a device on the first physical device
// with a queue family that can both render and present to it.
func Open(window *glfw.Window, cfg Config) (dev *Device, err error) {
	app := cfg.App
	for _, ext := range window.GetRequiredInstanceExtensions() {
		app.EnableExtension(ext)
	}
	if cfg.Debug {
		app.EnableDebugging(cfg.Logger)
	}

	instance, err := app.CreateInstance()
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	if cfg.Logger != nil {
		instance.SetLogger(cfg.Logger)
	}
	d := &Device{Instance: instance, VKSurface: vk.NullSurface}
	defer func() {
		if err != nil {
			if d.VKDevice != nil {
				vk.DestroyDevice(d.VKDevice, nil)
			}
			if d.VKSurface != vk.NullSurface {
				vk.DestroySurface(instance.VKInstance, d.VKSurface, nil)
			}
			instance.Destroy()
		}
	}()

	surface, err := window.CreateWindowSurface(instance.VKInstance, nil)
	if err != nil {
		return nil, fmt.Errorf("create window surface: %w", err)
	}
	d.VKSurface = vk.SurfaceFromPointer(surface)

	physicalDevices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, fmt.Errorf("error getting devices: %w", err)
	}
	for _, p := range physicalDevices {
		if qf := p.QueueFamilies().FilterGraphicsAndPresent(d.VKSurface); len(qf) > 0 {
			d.PhysicalDevice, d.QueueFamily = p, qf[0]
			break
		}
	}
	if d.PhysicalDevice == nil {
		return nil, errors.New("vulkan: no device can render and present to the window")
	}

	if d.VKDevice, err = d.PhysicalDevice.CreateLogicalDevice(d.QueueFamily, []string{"VK_KHR_swapchain"}); err != nil {
		return nil, fmt.Errorf("unable to create device: %w", err)
	}
	d.queue = d.getQueue(d.QueueFamily)
	d.limits = d.PhysicalDevice.Limits()

	d.log().Info("vulkan device opened",
		"device", d.PhysicalDevice.DeviceName, "queueFamily", d.QueueFamily.Index,
		"layers", app.EnabledLayers)
	return d, nil
}
