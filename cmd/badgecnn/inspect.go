package main

import (
	"fmt"
	"path/filepath"

	"github.com/badgecnn/bridge/internal/arch"
	"github.com/badgecnn/bridge/internal/bundle"
	"github.com/badgecnn/bridge/internal/export"
	"github.com/badgecnn/bridge/internal/loader"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [CHECKPOINT|BUNDLE_DIR]",
		Short: "describe a checkpoint or an exported bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Checkpoint
			if len(args) == 1 {
				path = args[0]
			}
			isBundle, err := afero.Exists(a.fs, filepath.Join(path, export.MetadataFile))
			if err != nil {
				return err
			}
			if isBundle {
				return inspectBundle(a, path)
			}
			return inspectCheckpoint(a, path)
		},
	}
}

func inspectCheckpoint(a *app, path string) error {
	format, err := loader.DetectFormat(a.fs, path)
	if err != nil {
		return err
	}
	tensors, err := loader.OpenCheckpoint(a.fs, path)
	if err != nil {
		return err
	}

	architecture := model.Architecture()
	shapes, err := architecture.StageShapes()
	if err != nil {
		return err
	}
	stages := newTable([]string{"stage", "layers", "output"}, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for _, s := range shapes {
		var layers string
		for i, d := range architecture.StageDescriptors(s.Stage) {
			if i > 0 {
				layers += "\n"
			}
			layers += d.String()
		}
		stages.row(false, s.Stage, layers, shapeString(s.Shape))
	}
	printTable(a.out, fmt.Sprintf("%s: %s", architecture.Name, architecture.Description), stages)

	t := newTable([]string{"tensor", "shape", "values"}, lipgloss.Left, lipgloss.Right, lipgloss.Right)
	for _, nt := range tensors {
		layer, _, ok := arch.SplitParameterName(nt.Name)
		_, _, known := architecture.Lookup(layer)
		known = known && ok
		t.row(!known, nt.Name, shapeString(nt.Tensor.Shape()), humanize.Comma(int64(nt.Tensor.NumElements())))
	}
	printTable(a.out, fmt.Sprintf("%s (%s): %d tensors, %s values", path, format,
		len(tensors), humanize.Comma(int64(nn.NumElements(tensors)))), t)
	return nil
}

func inspectBundle(a *app, dir string) error {
	b, err := bundle.Load(a.fs, dir)
	if err != nil {
		return err
	}
	t := newTable([]string{"parameter", "shape", "type", "bytes", "hotspot"},
		lipgloss.Left, lipgloss.Right, lipgloss.Left, lipgloss.Right, lipgloss.Left)
	for _, r := range b.Layers() {
		key, ok := b.HotspotKey(r.Name)
		if !ok {
			key = "-"
		}
		t.row(false, r.Name, shapeString(r.Shape), r.Category.String(),
			fmt.Sprintf("%d..%d", r.Offset, r.End()), key)
	}
	info := b.Metadata.ModelInfo
	printTable(a.out, fmt.Sprintf("%s: %s, input %v, %d classes, %s values (%d conv, %d fc, %d bias records)",
		dir, info.Description, info.InputSize, info.NumClasses, humanize.Comma(int64(b.Count())),
		len(b.ConvLayers()), len(b.FCLayers()), len(b.BiasLayers())), t)
	return nil
}
