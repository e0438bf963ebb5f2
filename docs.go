/*
Package dcrender implements the rendering backend of the DigitalCampus 2017 presentation.
It sits atop the device contract of package gpu, which a backend (package vulkan) implements
on a real graphics API.

Modern graphics APIs leave most of the bookkeeping OpenGL used to do up to the application:
where resources live in memory, which layout an image is in at any point of a frame, and when
a swapchain image may be rendered into. This package takes care of those parts for a small,
fixed scene.

Overview

A frame of the presentation goes through the following steps:

	1. Create a RenderDevice over a device and its swapchain
	2. Create the resources of the scene
		2a. Describe buffers and textures with BufferDescriptor and TextureDescriptor
		2b. CreateResources packs them into one device-local memory region and uploads
		    the initial contents of immutable textures
	3. Record the frame once per backbuffer with UpdateRenderCommands
	4. Start drawing frames:
		5. Ask CheckReadyNext for the backbuffer that is safe to render into
		6. Render submits the commands of that backbuffer and presents it
		7. BeginAcquireNext has the render control fetch the next backbuffer in the background

Terms
	ResourceBlock	buffers, textures and staging images created together and destroyed as a unit
	RenderControl	the frame pacer, acquiring backbuffers on a worker goroutine
	RenderTarget	an image with the render pass and framebuffer that draw into it
	RenderCommands	a set of pooled command buffers, one per backbuffer
	Recorder	records one primary command buffer, tracking the open render pass

Resource placement

Buffers are laid out one after another in a single buffer object; constant buffers start at the
device's minimum constant buffer alignment. Textures follow, each at the alignment its image
reports. Textures that are frequently updated also get a linear staging image in host-visible
memory that stays alive with the block, so the application can rewrite it every frame.

Logging

Nothing is logged by default. SetLogger installs a log/slog logger that is shared with the
backend of every open RenderDevice.

*/
package dcrender
