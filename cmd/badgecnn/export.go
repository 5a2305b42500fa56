package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/badgecnn/bridge/internal/export"
	"github.com/badgecnn/bridge/internal/trace"
	"github.com/badgecnn/bridge/internal/verify"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newExportCmd(a *app) *cobra.Command {
	var noTrace, noVerify bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "write model.json, weights.bin, hotspots.json and the activation trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			net, err := a.loadModel()
			if err != nil {
				return err
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}

			s := export.NewSerializer(net.Architecture(), reg, export.Options{Lenient: a.cfg.Lenient})
			w := &export.Writer{Fs: a.fs, Dir: a.cfg.OutputDir}
			bundle, paths, err := export.Export(s, w, net.StateDict(a.cfg.IncludeBuffers))
			if err != nil {
				return err
			}
			printExportSummary(a, bundle, paths)

			if !noTrace {
				tr := &trace.Exporter{
					Net:         net,
					Fs:          a.fs,
					Dir:         a.cfg.OutputDir,
					Label:       a.cfg.RunLabel,
					IncludeHead: a.cfg.IncludeHead,
				}
				dumps, err := tr.Run(trace.LoadInput(a.fs, a.cfg.TestImage, a.cfg.Seed))
				if err != nil {
					return err
				}
				printDumps(a, dumps)
			}

			if noVerify {
				return nil
			}
			report, err := verify.Run(a.fs, a.cfg.OutputDir, verify.Options{
				Level:     a.cfg.Level(),
				Reference: net.StateDict(a.cfg.IncludeBuffers),
			})
			if err != nil {
				return err
			}
			return printReport(a, report)
		},
	}
	cmd.Flags().BoolVar(&noTrace, "no-trace", false, "skip the activation trace")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip verification of the written bundle")
	return cmd
}

func printExportSummary(a *app, b *export.Bundle, paths export.Paths) {
	t := newTable([]string{"parameter", "shape", "type", "offset", "size", "hotspot"},
		lipgloss.Left, lipgloss.Right, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	for _, r := range b.Metadata.Layers {
		key := r.HotspotKey()
		if r.Hotspot == nil {
			key = "-"
		}
		t.row(false, r.Name, shapeString(r.Shape), r.Category.String(),
			humanize.Comma(r.Offset), humanize.IBytes(uint64(r.SizeBytes)), key)
	}
	printTable(a.out, "Parameters", t)

	files := newTable([]string{"artifact", "contents"}, lipgloss.Left)
	files.row(false, paths.Metadata, fmt.Sprintf("%d records, %d hotspots", len(b.Metadata.Layers), len(b.Hotspots)))
	files.row(false, paths.Weights, fmt.Sprintf("%s values, %s",
		humanize.Comma(int64(b.Weights.Count())), humanize.IBytes(uint64(b.Weights.Size()))))
	files.row(false, paths.Hotspots, strings.Join(slices.Sorted(maps.Keys(b.Hotspots)), " "))
	printTable(a.out, "Artifacts", files)
	klog.Infof("exported %d parameters to %s", len(b.Metadata.Layers), a.cfg.OutputDir)
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, "×") + "]"
}
