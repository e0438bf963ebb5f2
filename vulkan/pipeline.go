package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/dcrender/gpu"
)

// ShaderModule is SPIR-V code loaded into the device. It is only
// needed until the pipelines using it are created.
type ShaderModule struct {
	Device         *Device
	VKShaderModule vk.ShaderModule
}

func (d *Device) NewShaderModule(code []byte) (*ShaderModule, error) {
	var module vk.ShaderModule
	err := check(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module))
	if err != nil {
		return nil, err
	}
	return &ShaderModule{Device: d, VKShaderModule: module}, nil
}

func (s *ShaderModule) VKPipelineShaderStageCreateInfo(stage vk.ShaderStageFlagBits, entryPoint string) vk.PipelineShaderStageCreateInfo {
	if entryPoint == "" {
		entryPoint = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.VKShaderModule,
		PName:  safeString(entryPoint),
	}
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}

// sliceUint32 copies SPIR-V bytes into words, so the code need not
// be 4-byte aligned.
func sliceUint32(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.NativeEndian.Uint32(data[4*i:])
	}
	return words
}

// Pipeline is a gpu.Pipeline. Its layout is empty and the
// viewport and scissor are dynamic.
type Pipeline struct {
	Device           *Device
	VKPipeline       vk.Pipeline
	VKPipelineLayout vk.PipelineLayout

	pass gpu.RenderPass
}

func (d *Device) NewPipeline(spec gpu.PipelineSpec) (gpu.Pipeline, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	vs, err := d.NewShaderModule(spec.Vertex.Code)
	if err != nil {
		return nil, fmt.Errorf("vertex shader: %w", err)
	}
	defer vs.Destroy()
	fs, err := d.NewShaderModule(spec.Fragment.Code)
	if err != nil {
		return nil, fmt.Errorf("fragment shader: %w", err)
	}
	defer fs.Destroy()

	var layout vk.PipelineLayout
	err = check(vk.CreatePipelineLayout(d.VKDevice, &vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}, nil, &layout))
	if err != nil {
		return nil, err
	}

	cfg := graphicsPipelineConfig{
		stages: []vk.PipelineShaderStageCreateInfo{
			vs.VKPipelineShaderStageCreateInfo(vk.ShaderStageVertexBit, spec.Vertex.Entry),
			fs.VKPipelineShaderStageCreateInfo(vk.ShaderStageFragmentBit, spec.Fragment.Entry),
		},
		input:    spec.Input,
		topology: topology(spec.Topology),
		blend:    spec.Blend,
		layout:   layout,
		pass:     spec.Pass.(*RenderPass).VKRenderPass,
	}
	var cache vk.PipelineCache
	pipelines := make([]vk.Pipeline, 1)
	err = check(vk.CreateGraphicsPipelines(d.VKDevice, cache, 1,
		[]vk.GraphicsPipelineCreateInfo{cfg.VKGraphicsPipelineCreateInfo()}, nil, pipelines))
	if err != nil {
		vk.DestroyPipelineLayout(d.VKDevice, layout, nil)
		return nil, err
	}
	return &Pipeline{Device: d, VKPipeline: pipelines[0], VKPipelineLayout: layout, pass: spec.Pass}, nil
}

func (p *Pipeline) Pass() gpu.RenderPass { return p.pass }

func (p *Pipeline) Destroy() {
	vk.DestroyPipeline(p.Device.VKDevice, p.VKPipeline, nil)
	vk.DestroyPipelineLayout(p.Device.VKDevice, p.VKPipelineLayout, nil)
}

type graphicsPipelineConfig struct {
	stages   []vk.PipelineShaderStageCreateInfo
	input    gpu.VertexLayout
	topology vk.PrimitiveTopology
	blend    bool
	layout   vk.PipelineLayout
	pass     vk.RenderPass
}

// vertexInput describes the single vertex buffer binding. Attribute
// locations follow their order in l.Attrs.
func vertexInput(l gpu.VertexLayout) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	if len(l.Attrs) == 0 {
		return nil, nil
	}
	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    l.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}
	attrs := make([]vk.VertexInputAttributeDescription, len(l.Attrs))
	for i, a := range l.Attrs {
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   vertexFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	return bindings, attrs
}

func blendAttachment(blend bool) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable:    vk.False,
	}
	if blend {
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}

func (g *graphicsPipelineConfig) VKGraphicsPipelineCreateInfo() vk.GraphicsPipelineCreateInfo {
	bindings, attrs := vertexInput(g.input)
	vertexInputState := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	inputAssemblyState := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               g.topology,
		PrimitiveRestartEnable: vk.False,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterState := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}
	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	blendAttachments := []vk.PipelineColorBlendAttachmentState{blendAttachment(g.blend)}
	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}
	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamic)),
		PDynamicStates:    dynamic,
	}
	return vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(g.stages)),
		PStages:             g.stages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssemblyState,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterState,
		PMultisampleState:   &multisampleState,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              g.layout,
		RenderPass:          g.pass,
		Subpass:             0,
	}
}
