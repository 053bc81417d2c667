package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"neuraflow/internal/diag"
	"neuraflow/internal/validate"
)

func newLintCommand(stderr io.Writer) *cobra.Command {
	var diagFormat string
	cmd := &cobra.Command{
		Use:   "lint [OPTIONS] FILE.go...",
		Short: "Check that kernels only use constructs the dataflow lowering supports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, source := range args {
				reporter := diag.NewReporter(stderr, diagFormat)
				prog, ssaPkgs, err := loadProgram(source, reporter)
				if err != nil {
					return errors.Wrap(err, source)
				}
				if err := validate.CheckProgram(prog, ssaPkgs, reporter); err != nil {
					failed++
				}
			}
			if failed > 0 {
				return errors.Errorf("lint failed for %d of %d input(s)", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&diagFormat, "diag-format", "text", "diagnostic output format (text|json)")
	return cmd
}
