package main

import (
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/badgecnn/bridge/internal/backend/cpu"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/serialization"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		half        bool
		writeConfig string
	)
	cmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "write a freshly initialized checkpoint (default: --checkpoint)",
		Long: "init builds BadgeCNN with seeded random weights and saves it, so the " +
			"export pipeline can run without a trained model. A .safetensors path " +
			"is written in SafeTensors format, anything else as .born.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Checkpoint
			if len(args) == 1 {
				path = args[0]
			}
			net, err := model.New(model.Architecture(), cpu.New(), rand.New(rand.NewSource(a.cfg.Seed)))
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := a.fs.MkdirAll(dir, 0o755); err != nil {
					return errors.Wrapf(err, "failed to create %s", dir)
				}
			}

			if strings.EqualFold(filepath.Ext(path), ".safetensors") {
				dtype := tensor.Float32
				if half {
					dtype = tensor.Float16
				}
				metadata := map[string]string{"format": "pt", "model_type": model.Name}
				if err := serialization.WriteSafeTensors(a.fs, path, net.StateDict(true), dtype, metadata); err != nil {
					return errors.Wrapf(err, "failed to save checkpoint %s", path)
				}
			} else {
				if half {
					return errors.New("--half is only supported for .safetensors checkpoints")
				}
				if err := model.SaveCheckpoint(a.fs, net, path); err != nil {
					return err
				}
			}
			klog.Infof("wrote %s with %d parameters (seed %d)", path, net.NumParameters(), a.cfg.Seed)

			if writeConfig != "" {
				cfg := *a.cfg
				cfg.Checkpoint = path
				if err := cfg.Save(a.fs, writeConfig); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&half, "half", false, "store SafeTensors values as float16")
	cmd.Flags().StringVar(&writeConfig, "write-config", "", "also write the effective configuration to this YAML file")
	return cmd
}
