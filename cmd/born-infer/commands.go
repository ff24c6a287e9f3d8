package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/born-ml/composite/engine"
	"github.com/born-ml/composite/internal/backend/cpu"
	"github.com/born-ml/composite/internal/backend/generic"
	"github.com/born-ml/composite/internal/backend/webgpu"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "born-infer",
		Short:        "Compile and run computation graphs over a prioritized backend list",
		SilenceUsage: true,
	}
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(newVersionCommand(), newBackendsCommand(), newRunCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "born-infer %s\n", version)
		},
	}
}

func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List backends and the operators each one registers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, t := range []struct {
				name string
				ops  []string
			}{
				{cpu.Name, cpu.New(parallel.Sequential()).OpTypes()},
				{generic.Name, generic.New().OpTypes()},
			} {
				fmt.Fprintf(out, "%s (%d operators): %s\n", t.name, len(t.ops), strings.Join(t.ops, " "))
			}
			if gpu, err := webgpu.New(); err != nil {
				fmt.Fprintf(out, "%s: unavailable (%v)\n", webgpu.Name, err)
			} else {
				ops := gpu.Table().OpTypes()
				gpu.Release()
				fmt.Fprintf(out, "%s (%d operators): %s\n", webgpu.Name, len(ops), strings.Join(ops, " "))
			}
		},
	}
}

type runOptions struct {
	backends   []string
	inputs     []string
	configPath string
	noFuse     bool
	explain    bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run GRAPH.yaml",
		Short: "Compile a graph, feed its inputs and print its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.backends, "backends", nil, "backend list, most specialized first (default from config)")
	f.StringArrayVar(&opts.inputs, "input", nil, "graph input as name=v1,v2,... (repeatable)")
	f.StringVar(&opts.configPath, "config", "", "YAML engine configuration file")
	f.BoolVar(&opts.noFuse, "no-fuse", false, "disable activation fusion")
	f.BoolVar(&opts.explain, "explain", false, "print the backend chosen for every node and its run time")
	return cmd
}

func runGraph(cmd *cobra.Command, path string, opts runOptions) error {
	cfg := engine.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = engine.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if len(opts.backends) > 0 {
		cfg.Backends = opts.backends
	}
	if opts.noFuse {
		cfg.FuseActivations = false
	}

	g, err := engine.LoadGraphFile(path)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	model, err := eng.Load(g)
	if err != nil {
		return err
	}

	provided := make(map[string]bool, len(opts.inputs))
	for _, spec := range opts.inputs {
		name, values, err := parseInput(spec)
		if err != nil {
			return err
		}
		if err := model.SetInput(name, values); err != nil {
			return errors.Wrapf(err, "input %s", name)
		}
		provided[name] = true
	}
	for _, name := range g.Inputs {
		if !provided[name] {
			return errors.Errorf("missing --input for graph input %q", name)
		}
	}

	var durations []time.Duration
	if opts.explain {
		durations = model.RunTimed()
	} else {
		model.Run()
	}

	out := cmd.OutOrStdout()
	for _, name := range g.Outputs {
		values, err := model.Output(name)
		if err != nil {
			return err
		}
		arr, _ := model.Array(name)
		fmt.Fprintf(out, "%s %s = %v\n", name, arr, values)
	}
	if opts.explain {
		explain(cmd, model, durations)
	}
	return nil
}

// explain prints one line per plan step followed by a summary.
func explain(cmd *cobra.Command, model *engine.Model, durations []time.Duration) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNODE\tOP\tBACKEND\tTIME")
	var total time.Duration
	for i, step := range model.Plan().Steps() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n", step.NodeIndex, step.NodeName, step.OpType, step.Backend, durations[i])
		total += durations[i]
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "%d nodes, %s arena, %v total\n",
		model.Plan().Len(), humanize.IBytes(uint64(model.ArenaSize())), total)
}

// parseInput splits "name=v1,v2,...".
func parseInput(spec string) (string, []float32, error) {
	name, list, ok := strings.Cut(spec, "=")
	if !ok || name == "" {
		return "", nil, errors.Errorf("input %q: expected name=v1,v2,...", spec)
	}
	var values []float32
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return "", nil, errors.Wrapf(err, "input %s", name)
		}
		values = append(values, float32(v))
	}
	return name, values, nil
}
