package main

import (
	"fmt"
	"math/rand"

	"github.com/badgecnn/bridge/internal/backend/cpu"
	"github.com/badgecnn/bridge/internal/bundle"
	"github.com/badgecnn/bridge/internal/infer"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newInferCmd(a *app) *cobra.Command {
	var (
		topK      int
		bundleDir string
	)
	cmd := &cobra.Command{
		Use:   "infer IMAGE|DIR",
		Short: "classify a badge image or every image in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			net, err := a.inferenceModel(bundleDir)
			if err != nil {
				return err
			}
			c := infer.New(net)

			target := args[0]
			isDir, err := afero.IsDir(a.fs, target)
			if err != nil {
				return err
			}
			if !isDir {
				top, err := c.ClassifyFile(a.fs, target, topK)
				if err != nil {
					return err
				}
				t := newTable([]string{"rank", "class", "confidence"}, lipgloss.Right, lipgloss.Left, lipgloss.Right)
				for i, p := range top {
					t.row(false, fmt.Sprint(i+1), p.Class, percent(p.Confidence))
				}
				printTable(a.out, target, t)
				return nil
			}

			results, err := c.ClassifyDir(a.fs, target, topK, a.errOut)
			if err != nil {
				return err
			}
			t := newTable([]string{"image", "prediction", "confidence"}, lipgloss.Left, lipgloss.Left, lipgloss.Right)
			for _, r := range results {
				if r.Err != nil {
					t.row(true, r.Path, "error", r.Err.Error())
					continue
				}
				t.row(false, r.Path, r.Top[0].Class, percent(r.Top[0].Confidence))
			}
			printTable(a.out, target, t)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "number of classes to report")
	cmd.Flags().StringVar(&bundleDir, "bundle", "",
		"load weights from an exported bundle instead of the checkpoint (needs --include-buffers at export)")
	return cmd
}

// inferenceModel loads the checkpoint, or the exported bundle in dir if set.
func (a *app) inferenceModel(dir string) (*model.Network, error) {
	if dir == "" {
		return a.loadModel()
	}
	b, err := bundle.Load(a.fs, dir)
	if err != nil {
		return nil, err
	}
	state, err := b.StateDict()
	if err != nil {
		return nil, err
	}
	net, err := model.New(model.Architecture(), cpu.New(), rand.New(rand.NewSource(a.cfg.Seed)))
	if err != nil {
		return nil, err
	}
	if err := net.LoadStateDict(state); err != nil {
		return nil, &model.LoadError{Path: dir, Err: err}
	}
	return net, nil
}

func percent(p float32) string {
	return fmt.Sprintf("%.2f%%", 100*p)
}
