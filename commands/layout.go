package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/dx12"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
	"github.com/spaghettifunk/rootsig/engine/systems"
)

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(opts *Options) *cobra.Command {
	var stages map[string]string

	cmd := &cobra.Command{
		Use:   "layout [pipeline...]",
		Short: "Print pipeline layouts",
		Long: "Build the root signature of each named pipeline, or of every configured pipeline, " +
			"and print its root parameters and binding offsets. With --stage an ad hoc shader " +
			"combination is described instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd.OutOrStdout(), opts, stages, args)
		},
	}

	cmd.Flags().StringToStringVar(&stages, "stage", nil, "Shader per stage, e.g. vs=forward.vs_main,ps=forward.fs_main")

	return cmd
}

func runLayout(w io.Writer, opts *Options, stages map[string]string, names []string) error {
	e, _, err := opts.Engine(false)
	if err != nil {
		return err
	}
	defer e.Shutdown()
	ps := e.Systems().Pipelines

	if len(stages) > 0 {
		rs, err := acquireStages(ps, stages)
		if err != nil {
			return err
		}
		defer rs.Release()
		return describe(w, "(stages)", rs)
	}

	if len(names) == 0 {
		names = pipelineNames(e.Config().Pipelines)
	}
	for _, name := range names {
		rs, err := ps.AcquirePipeline(name)
		if err != nil {
			return err
		}
		err = describe(w, name, rs)
		rs.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func acquireStages(ps *systems.PipelineSystem, stages map[string]string) (*dx12.RootSignature, error) {
	byStage := make(map[metadata.ShaderStage]string, len(stages))
	for k, v := range stages {
		stage, err := metadata.ShaderStageFromString(k)
		if err != nil {
			return nil, err
		}
		byStage[stage] = v
	}
	if cs, ok := byStage[metadata.ShaderStageCompute]; ok {
		if len(byStage) > 1 {
			return nil, fmt.Errorf("a compute shader cannot be combined with graphics stages")
		}
		return ps.AcquireCompute(cs)
	}
	return ps.AcquireGraphics(byStage)
}

func describe(w io.Writer, name string, rs *dx12.RootSignature) error {
	layout := rs.GetPipelineLayout()
	kind := "graphics"
	if rs.IsCompute() {
		kind = "compute"
	}
	fmt.Fprintf(w, "%s (%s) hash=%016x dwords=%d flags=%#x\n",
		name, kind, rs.GetHash(), layout.Desc().DWORDCost(), uint32(layout.Flags()))
	if err := layout.Describe(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func pipelineNames(pipelines []core.PipelineConfig) []string {
	names := make([]string, 0, len(pipelines))
	for _, p := range pipelines {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
