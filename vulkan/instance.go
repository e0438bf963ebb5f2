package vulkan

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns a Vulkan compatible version representation
func (v Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// App is used to provide information about this specific application to Vulkan
type App struct {
	// Name the name of the application
	Name string
	// Engine the name of the engine associated with the application
	EngineName string
	// Version the version of the application
	Version Version
	// APIVersion the expected minimum version of the Vulkan API (i.e. 1.0.0)
	APIVersion Version

	// EnabledLayers the enabled layers
	EnabledLayers []string

	// EnabledExtensions the enabled extensions
	EnabledExtensions []string
}

// SupportedLayers returns a list of supported layers for use by Vulkan.
// vk.Init must have been called.
func SupportedLayers() ([]string, error) {
	var n uint32
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, n)
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&n, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns a list of supported instance extensions.
// vk.Init must have been called.
func SupportedExtensions() ([]string, error) {
	var n uint32
	if err := vk.Error(vk.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := vk.Error(vk.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}

// EnableDebugging enables the Khronos validation layer and the
// debug report extension. A missing layer is logged to logger and
// is not an error. A nil logger means slog.Default.
func (a *App) EnableDebugging(logger *slog.Logger) {
	a.enableDebugging(logger, SupportedLayers)
}

func (a *App) enableDebugging(logger *slog.Logger, supported func() ([]string, error)) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := a.enableLayer("VK_LAYER_KHRONOS_validation", supported); err != nil {
		logger.Warn("validation disabled", "err", err)
		return
	}
	a.EnableExtension("VK_EXT_debug_report")
}

// EnableLayer enables a specific layer if the loader supports it.
func (a *App) EnableLayer(layer string) error {
	return a.enableLayer(layer, SupportedLayers)
}

func (a *App) enableLayer(layer string, supported func() ([]string, error)) error {
	layers, err := supported()
	if err != nil {
		return fmt.Errorf("error getting supported layers: %w", err)
	}
	for _, l := range layers {
		if l == layer {
			a.EnabledLayers = append(a.EnabledLayers, layer)
			return nil
		}
	}
	return fmt.Errorf("validation layer '%s' not found", layer)
}

// EnableExtension enables an extension for use by the application
func (a *App) EnableExtension(extension string) *App {
	for _, e := range a.EnabledExtensions {
		if e == extension {
			return a
		}
	}
	a.EnabledExtensions = append(a.EnabledExtensions, extension)
	return a
}

func (a *App) debugging() bool {
	for _, e := range a.EnabledExtensions {
		if e == "VK_EXT_debug_report" {
			return true
		}
	}
	return false
}

// VKApplicationInfo creates a structure representing this application in a Vulkan friendly format
func (a *App) VKApplicationInfo() vk.ApplicationInfo {
	api := a.APIVersion
	if api.Major < 1 {
		api = Version{Major: 1}
	}
	return vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         api.VKVersion(),
		ApplicationVersion: a.Version.VKVersion(),
		PApplicationName:   safeString(a.Name),
		PEngineName:        safeString(a.EngineName),
	}
}

// Instance is an instance of the Vulkan subsystem
type Instance struct {
	// VKInstance is the native Vulkan instance object
	VKInstance vk.Instance

	debug    vk.DebugReportCallback
	hasDebug bool
	logger   atomic.Pointer[slog.Logger]
}

// CreateInstance creates the Vulkan instance. When debugging is
// enabled validation messages are routed to the instance logger.
func (a *App) CreateInstance() (*Instance, error) {
	appInfo := a.VKApplicationInfo()

	extensions := safeStrings(append([]string(nil), a.EnabledExtensions...))
	layers := safeStrings(append([]string(nil), a.EnabledLayers...))

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	instance := &Instance{}
	if err := check(vk.CreateInstance(&createInfo, nil, &instance.VKInstance)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance.VKInstance); err != nil {
		vk.DestroyInstance(instance.VKInstance, nil)
		return nil, err
	}

	if a.debugging() {
		if err := instance.setDebugCallback(instance.debugCallback); err != nil {
			instance.Logger().Warn("debug report unavailable", "err", err)
		}
	}
	return instance, nil
}

// SetLogger sets the logger validation messages go to.
// nil restores slog.Default.
func (i *Instance) SetLogger(l *slog.Logger) {
	i.logger.Store(l)
}

// Logger returns the instance logger.
func (i *Instance) Logger() *slog.Logger {
	if l := i.logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// PhysicalDevices returns a list of physical devices known to Vulkan
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var n uint32
	if err := check(vk.EnumeratePhysicalDevices(i.VKInstance, &n, nil)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	devices := make([]vk.PhysicalDevice, n)
	if err := check(vk.EnumeratePhysicalDevices(i.VKInstance, &n, devices)); err != nil {
		return nil, err
	}

	ret := make([]*PhysicalDevice, n)
	for j, device := range devices {
		p := &PhysicalDevice{VKPhysicalDevice: device}
		vk.GetPhysicalDeviceProperties(device, &p.VKPhysicalDeviceProperties)
		p.VKPhysicalDeviceProperties.Deref()
		p.VKPhysicalDeviceProperties.Limits.Deref()
		p.DeviceName = vk.ToString(p.VKPhysicalDeviceProperties.DeviceName[:])
		ret[j] = p
	}
	return ret, nil
}

func (i *Instance) setDebugCallback(callback vk.DebugReportCallbackFunc) error {
	flags := vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit
	err := check(vk.CreateDebugReportCallback(i.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(flags),
		PfnCallback: callback,
	}, nil, &i.debug))
	i.hasDebug = err == nil
	return err
}

func (i *Instance) debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	l := i.Logger().With("layer", pLayerPrefix, "code", messageCode)
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		l.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		l.Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		l.Warn(pMessage, "performance", true)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		l.Debug(pMessage)
	default:
		l.Info(pMessage)
	}
	return vk.Bool32(vk.False)
}

// Destroy destroys the debug callback, if any, and the instance.
func (i *Instance) Destroy() {
	if i.hasDebug {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debug, nil)
	}
	vk.DestroyInstance(i.VKInstance, nil)
}
