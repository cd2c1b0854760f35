package dx12

import (
	"fmt"
	"io"
	"strings"

	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

func stageLabel(stage metadata.ShaderStage) string {
	if stage == metadata.ShaderStageCompute {
		return "Every    shader stage"
	}
	name := stage.String()
	return fmt.Sprintf("%-8s shader stage", strings.ToUpper(name[:1])+name[1:])
}

func (l *PipelineLayout) bindingName(stage metadata.ShaderStage, viewType DescriptorRangeType, slot uint8) string {
	names := l.Names[stage]
	if names == nil {
		return ""
	}
	var class ResourceClass
	switch viewType {
	case DescriptorRangeTypeCBV:
		class = ResourceClassConstantBuffer
	case DescriptorRangeTypeSRV:
		class = ResourceClassInput
	case DescriptorRangeTypeUAV:
		class = ResourceClassOutput
	default:
		class = ResourceClassSampler
	}
	if n, ok := names[BindingKey{Class: class, Register: slot}]; ok {
		return " " + n
	}
	return ""
}

// Describe writes a human readable dump of the layout: root parameters, then
// the table backed bindings of each heap with register -> descriptor offset.
func (l *PipelineLayout) Describe(w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Root parameters (%d, %d DWORDs, flags 0x%02x):\n", len(l.RootParameters), l.Desc().DWORDCost(), uint32(l.Flags()))
	for i, p := range l.RootParameters {
		switch p.ParameterType {
		case RootParameterTypeDescriptorTable:
			fmt.Fprintf(&sb, " [%2d] table    %-8s", i, p.ShaderVisibility)
			for _, r := range l.DescriptorRanges[p.Table.FirstRange : p.Table.FirstRange+p.Table.NumRanges] {
				fmt.Fprintf(&sb, " %s%d..%d@+%d", r.RangeType.Letter(), r.BaseShaderRegister, r.BaseShaderRegister+r.NumDescriptors-1, r.OffsetInDescriptorsFromTableStart)
			}
			sb.WriteString("\n")
		default:
			fmt.Fprintf(&sb, " [%2d] root %-4s %-8s register %d\n", i, p.ParameterType, p.ShaderVisibility, p.Descriptor.ShaderRegister)
		}
	}

	sb.WriteString("Root constant buffers:\n")
	for _, cb := range l.ConstantViews {
		fmt.Fprintf(&sb, " %s: C %2d -> root %2d%s\n", stageLabel(cb.Stage), cb.ShaderSlot, cb.RootParameterIndex, l.bindingName(cb.Stage, DescriptorRangeTypeCBV, cb.ShaderSlot))
	}

	fmt.Fprintf(&sb, "Resource Heap Descriptor Tables (%d descriptors):\n", l.NumDescriptors)
	for _, rb := range l.TableResources {
		fmt.Fprintf(&sb, " %s: %s %2d -> %2d%s\n", stageLabel(rb.Stage), rb.ViewType.Letter(), rb.ShaderSlot, rb.DescriptorOffset, l.bindingName(rb.Stage, rb.ViewType, rb.ShaderSlot))
	}

	fmt.Fprintf(&sb, "Sampler Heap Descriptor Tables (%d descriptors):\n", l.NumDynamicSamplers)
	for _, smp := range l.Samplers {
		fmt.Fprintf(&sb, " %s: S %2d -> %2d%s\n", stageLabel(smp.Stage), smp.ShaderSlot, smp.DescriptorOffset, l.bindingName(smp.Stage, smp.ViewType, smp.ShaderSlot))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
