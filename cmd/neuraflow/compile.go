package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"text/tabwriter"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/ssa"

	"neuraflow/internal/config"
	"neuraflow/internal/diag"
	"neuraflow/internal/frontend"
	"neuraflow/internal/ir"
	"neuraflow/internal/mlir"
	"neuraflow/internal/passes"
	"neuraflow/internal/validate"
)

type compileOptions struct {
	emit        string
	output      string
	passes      string
	configFile  string
	noPasses    bool
	strictEdges bool
	statistics  bool
	diagFormat  string
	logLevel    string
	jobs        int
}

func newCompileCommand(stdout, stderr io.Writer) *cobra.Command {
	var opts compileOptions
	cmd := &cobra.Command{
		Use:   "compile [OPTIONS] FILE.go...",
		Short: "Compile Go kernels to SSA, control-flow IR or dataflow MLIR",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}
			return runCompile(cmd.Context(), cfg, opts, args, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.emit, "emit", "mlir", "output format (ssa|ir|mlir)")
	flags.StringVarP(&opts.output, "output", "o", "", "output file path (stdout when omitted)")
	flags.StringVar(&opts.passes, "passes", "", "comma-separated pass pipeline, overrides the config file")
	flags.StringVar(&opts.configFile, "config", "", "TOML configuration file")
	flags.BoolVar(&opts.noPasses, "no-passes", false, "emit the control-flow IR without running any pass")
	flags.BoolVar(&opts.strictEdges, "strict-edges", false, "fail on predecessor edges that cannot be resolved")
	flags.BoolVar(&opts.statistics, "pass-statistics", false, "print pass statistics to stderr")
	flags.StringVar(&opts.diagFormat, "diag-format", "text", "diagnostic output format (text|json)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (trace|debug|info|warn|error)")
	flags.IntVarP(&opts.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of inputs compiled concurrently")
	return cmd
}

// resolveConfig loads the config file, if any, and applies the flags the
// user set explicitly on top of it.
func resolveConfig(cmd *cobra.Command, opts *compileOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.Load(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("passes") {
		cfg.Passes = splitPipeline(opts.passes)
	}
	if flags.Changed("strict-edges") {
		cfg.StrictEdges = opts.strictEdges
	}
	if flags.Changed("pass-statistics") {
		cfg.Statistics = opts.statistics
	}
	if flags.Changed("diag-format") {
		cfg.DiagFormat = opts.diagFormat
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	if _, err := passes.ParsePipeline(cfg.Pipeline(), passes.Options{}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unit is one input file compiled as an independent program.
type unit struct {
	source string
	diags  bytes.Buffer
	out    bytes.Buffer
	stats  *passes.Statistics
}

func runCompile(ctx context.Context, cfg *config.Config, opts compileOptions, inputs []string, stdout, stderr io.Writer) error {
	switch opts.emit {
	case "ssa", "ir", "mlir":
	default:
		return errors.Errorf("unknown emit format: %s", opts.emit)
	}

	units := make([]*unit, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if opts.jobs > 0 {
		g.SetLimit(opts.jobs)
	}
	for i, input := range inputs {
		u := &unit{source: input}
		units[i] = u
		g.Go(func() error {
			if err := u.compile(gctx, cfg, opts); err != nil {
				return errors.Wrap(err, u.source)
			}
			return nil
		})
	}
	err := g.Wait()
	for _, u := range units {
		stderr.Write(u.diags.Bytes())
	}
	if err != nil {
		return err
	}

	if cfg.Statistics && !opts.noPasses && opts.emit != "ssa" {
		if err := printStatistics(stderr, units); err != nil {
			return err
		}
	}
	return withOutputWriter(opts.output, stdout, func(w io.Writer) error {
		for _, u := range units {
			if _, err := w.Write(u.out.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *unit) compile(ctx context.Context, cfg *config.Config, opts compileOptions) error {
	reporter := diag.NewReporter(&u.diags, cfg.DiagFormat)
	prog, ssaPkgs, err := loadProgram(u.source, reporter)
	if err != nil {
		return err
	}
	if opts.emit == "ssa" {
		return writeSSAPackages(&u.out, ssaPkgs)
	}
	if err := validate.CheckProgram(prog, ssaPkgs, reporter); err != nil {
		return err
	}

	irctx, module, err := frontend.Lower(frontend.MainPackage(ssaPkgs), reporter)
	if err != nil {
		return err
	}
	if !opts.noPasses {
		u.stats = passes.NewStatistics()
		m, err := passes.ParsePipeline(cfg.Pipeline(), passes.Options{
			Reporter:      reporter,
			Stats:         u.stats,
			StrictEdges:   cfg.StrictEdges,
			MaxIterations: cfg.MaxIterations,
			Verify:        cfg.Verify,
		})
		if err != nil {
			return err
		}
		if err := m.Run(ctx, irctx, module); err != nil {
			return err
		}
	}
	log.G(ctx).WithField("source", u.source).Debug("compiled")

	switch opts.emit {
	case "ir":
		ir.Dump(module, &u.out)
		return nil
	default:
		return mlir.Write(&u.out, module)
	}
}

func loadProgram(source string, reporter *diag.Reporter) (*ssa.Program, []*ssa.Package, error) {
	pkgs, _, err := frontend.LoadPackages(frontend.LoadConfig{Sources: []string{source}}, reporter)
	if err != nil {
		return nil, nil, err
	}
	return frontend.BuildSSA(pkgs, reporter)
}

func writeSSAPackages(w *bytes.Buffer, ssaPkgs []*ssa.Package) error {
	pkgs := make([]*ssa.Package, 0, len(ssaPkgs))
	for _, pkg := range ssaPkgs {
		if pkg != nil {
			pkgs = append(pkgs, pkg)
		}
	}
	if len(pkgs) == 0 {
		return errors.New("no SSA packages available to emit")
	}
	sort.Slice(pkgs, func(i, j int) bool {
		return pkgs[i].Pkg.Path() < pkgs[j].Pkg.Path()
	})
	for i, pkg := range pkgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if _, err := pkg.WriteTo(w); err != nil {
			return err
		}
		for _, fn := range frontend.Kernels(pkg) {
			fmt.Fprintln(w)
			ssa.WriteFunction(w, fn)
		}
	}
	return nil
}

func printStatistics(w io.Writer, units []*unit) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, u := range units {
		stats, err := u.stats.Snapshot()
		if err != nil {
			return errors.Wrapf(err, "gathering statistics for %s", u.source)
		}
		fmt.Fprintf(tw, "statistics for %s:\n", u.source)
		for _, st := range stats {
			fmt.Fprintf(tw, "  %s\t%s\t%g\n", st.Pass, st.Name, st.Value)
		}
	}
	return tw.Flush()
}
