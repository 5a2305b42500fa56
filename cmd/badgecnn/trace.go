package main

import (
	"github.com/badgecnn/bridge/internal/trace"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newTraceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trace [IMAGE]",
		Short: "dump the input and every stage output of one forward pass",
		Long: "trace runs the checkpoint on IMAGE (default --test-image) and writes " +
			"<label>_<stage>.bin files to the output directory. If the image cannot be " +
			"read a seeded random input is used instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			net, err := a.loadModel()
			if err != nil {
				return err
			}
			image := a.cfg.TestImage
			if len(args) == 1 {
				image = args[0]
			}
			tr := &trace.Exporter{
				Net:         net,
				Fs:          a.fs,
				Dir:         a.cfg.OutputDir,
				Label:       a.cfg.RunLabel,
				IncludeHead: a.cfg.IncludeHead,
			}
			dumps, err := tr.Run(trace.LoadInput(a.fs, image, a.cfg.Seed))
			if err != nil {
				return err
			}
			printDumps(a, dumps)
			return nil
		},
	}
}

func printDumps(a *app, dumps []trace.Dump) {
	t := newTable([]string{"stage", "shape", "values", "file"},
		lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	for _, d := range dumps {
		t.row(d.Synthetic, d.Stage, shapeString(d.Shape), humanize.Comma(int64(d.NumElements())), d.Path)
	}
	title := "Activation trace"
	if len(dumps) > 0 && dumps[0].Synthetic {
		title += " (synthetic input)"
	}
	printTable(a.out, title, t)
}
