package main

import (
	"fmt"

	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/verify"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newVerifyCmd(a *app) *cobra.Command {
	var reference string
	cmd := &cobra.Command{
		Use:   "verify [DIR]",
		Short: "check an exported bundle (default: the output directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.OutputDir
			if len(args) == 1 {
				dir = args[0]
			}
			opts := verify.Options{Level: a.cfg.Level()}
			if reference != "" {
				net, err := model.Load(a.fs, reference)
				if err != nil {
					return err
				}
				opts.Reference = net.StateDict(a.cfg.IncludeBuffers)
				klog.V(1).Infof("comparing against %d tensors (%d values) from %s",
					len(opts.Reference), nn.NumElements(opts.Reference), reference)
			}
			report, err := verify.Run(a.fs, dir, opts)
			if err != nil {
				return err
			}
			return printReport(a, report)
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "",
		"checkpoint to compare values with; its buffers are included per --include-buffers")
	return cmd
}

// printReport renders the checks and returns errMismatch if any failed.
func printReport(a *app, r *verify.Report) error {
	t := newTable([]string{"check", "result", "detail"}, lipgloss.Left)
	for _, c := range r.Checks {
		result := "ok"
		if !c.Passed {
			result = "FAILED"
		}
		t.row(!c.Passed, c.Name, result, c.Detail)
	}
	printTable(a.out, fmt.Sprintf("Verification of %s (%s): %d records, %s values, %s",
		r.Dir, r.Level, r.Layers, humanize.Comma(int64(r.Count)), humanize.IBytes(uint64(r.FileSize))), t)
	if !r.Passed {
		return errors.Wrapf(errMismatch, "%d of %d checks", len(r.Failures()), len(r.Checks))
	}
	return nil
}
