// Command dc2017 opens the DigitalCampus 2017 window and runs the
// welcome scene on the Vulkan backend.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	_ "image/jpeg"
	_ "image/png"

	"github.com/mokiat/gog/opt"
	"github.com/vulkan-go/glfw/v3.3/glfw"

	"github.com/celer/dcrender"
	"github.com/celer/dcrender/gpu"
	"github.com/celer/dcrender/vulkan"
)

func init() {
	runtime.LockOSThread()
}

var (
	logoPath = flag.String("logo", "assets/logo_ColoredLogo.sdf.png", "path of the university logo")
	width    = flag.Int("width", 960, "initial window width")
	height   = flag.Int("height", 960*9/16, "initial window height")
	buffers  = flag.Int("buffers", 2, "number of backbuffers")
	debug    = flag.Bool("debug", false, "enable the Vulkan validation layer")
	verbose  = flag.Bool("v", false, "log debug messages")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose || *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	dcrender.SetLogger(logger)

	if err := run(logger); err != nil {
		logger.Error("dc2017 failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()
	if err := vulkan.Init(); err != nil {
		return fmt.Errorf("load vulkan: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	window, err := glfw.CreateWindow(*width, *height, "DigitalCampus 2017", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	dev, err := vulkan.Open(window, vulkan.Config{
		App: vulkan.App{
			Name:       "DigitalCampus 2017",
			EngineName: "dcrender",
			Version:    vulkan.Version{Major: 2017},
		},
		Debug:  *debug,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer dev.Close()

	fbw, fbh := window.GetFramebufferSize()
	sc, err := dev.CreateSwapchain(&vulkan.CreateSwapchainOptions{
		ActualSize:                gpu.Extent{Width: uint32(fbw), Height: uint32(fbh)},
		DesiredNumSwapchainImages: *buffers,
	})
	if err != nil {
		return fmt.Errorf("create swapchain: %w", err)
	}
	defer sc.Destroy()

	rd, err := dcrender.NewRenderDevice(dev, sc, &dcrender.Options{
		ClearColor: opt.V(gpu.ClearColor{0, 0, 0, 1}),
	})
	if err != nil {
		return err
	}
	defer rd.Close()

	fmt.Println("=== DIGITAL CAMPUS 2017 ===")
	fmt.Printf("RenderAgent: %s\n", rd.Agent())

	scene, err := newWelcomeScene(rd, *logoPath)
	if err != nil {
		return err
	}
	defer func() {
		dev.WaitIdle()
		scene.Destroy()
	}()

	for !window.ShouldClose() {
		glfw.PollEvents()
		if index := rd.CheckReadyNext(); index.Specified {
			if err := rd.Render(index.Value, scene.cmds); err != nil {
				return err
			}
			rd.BeginAcquireNext()
		} else {
			glfw.WaitEventsTimeout(0.001)
		}
	}
	return nil
}

type welcomeScene struct {
	res  *dcrender.ResourceBlock
	cmds *dcrender.RenderCommands
}

func newWelcomeScene(rd *dcrender.RenderDevice, logo string) (*welcomeScene, error) {
	f, err := os.Open(logo)
	if err != nil {
		return nil, fmt.Errorf("failed to load the university logo: %w", err)
	}
	defer f.Close()
	tex, err := dcrender.DecodeTexture(f, dcrender.Grayscale, rd.Limits().MaxImage2D)
	if err != nil {
		return nil, fmt.Errorf("failed to load the university logo: %w", err)
	}
	fmt.Printf("The university logo loaded: size = %dx%d estimatedSize = %d bytes\n",
		tex.Width, tex.Height, tex.Width*tex.Height)

	s := &welcomeScene{}
	if s.res, err = rd.CreateResources(nil, []dcrender.TextureDescriptor{tex}); err != nil {
		return nil, fmt.Errorf("failed to create some resources: %w", err)
	}
	if s.cmds, err = rd.NewRenderCommandBuffer(rd.PrimaryRenderTargetCount()); err != nil {
		s.Destroy()
		return nil, err
	}
	err = s.cmds.UpdateRenderCommands(func(r *dcrender.Recorder, i int) error {
		rt := rd.PrimaryRenderTarget(i)
		r.PrepareRenderTargets(rt)
		r.SetRenderTarget(rt)
		return nil
	})
	if err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *welcomeScene) Destroy() {
	if s.cmds != nil {
		s.cmds.Destroy()
	}
	if s.res != nil {
		s.res.Destroy()
	}
}
