package main

import (
	goflag "flag"
	"io"

	"github.com/badgecnn/bridge/internal/config"
	"github.com/badgecnn/bridge/internal/hotspot"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// app is the state shared by all subcommands.
type app struct {
	fs     afero.Fs
	out    io.Writer
	errOut io.Writer

	configPath string
	flags      *config.Config // flag-bound values, applied over cfg when set
	cfg        *config.Config
}

func newRootCmd(fs afero.Fs, out, errOut io.Writer) *cobra.Command {
	a := &app{fs: fs, out: out, errOut: errOut, flags: config.Default()}

	root := &cobra.Command{
		Use:           "badgecnn",
		Short:         "export a BadgeCNN checkpoint for the visualization client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd.Flags())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.flags.Checkpoint, "checkpoint", a.flags.Checkpoint, "trained checkpoint (.born or .safetensors)")
	pf.StringVarP(&a.flags.OutputDir, "output-dir", "o", a.flags.OutputDir, "directory for exported artifacts")
	pf.StringVar(&a.flags.TestImage, "test-image", a.flags.TestImage, "image used for the activation trace")
	pf.StringVar(&a.flags.RunLabel, "label", a.flags.RunLabel, "prefix of activation dump files")
	pf.StringVar(&a.flags.HotspotsFile, "hotspots", "", "hotspot registry YAML (default: built in)")
	pf.BoolVar(&a.flags.IncludeHead, "include-head", false, "also dump pooled features and logits")
	pf.BoolVar(&a.flags.IncludeBuffers, "include-buffers", false, "export batch-norm running statistics")
	pf.BoolVar(&a.flags.Lenient, "lenient", false, "warn instead of failing on unmapped or reordered parameters")
	pf.Int64Var(&a.flags.Seed, "seed", a.flags.Seed, "seed for synthetic input and fresh weights")
	pf.StringVar(&a.flags.VerifyLevel, "verify-level", a.flags.VerifyLevel, "basic or full")

	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	pf.AddGoFlagSet(klogFlags)

	root.AddCommand(
		newExportCmd(a),
		newTraceCmd(a),
		newVerifyCmd(a),
		newInferCmd(a),
		newInitCmd(a),
		newInspectCmd(a),
		newVersionCmd(a),
	)
	return root
}

// loadConfig reads --config over the defaults, then applies every flag the
// user set explicitly.
func (a *app) loadConfig(flags *pflag.FlagSet) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.fs, a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "checkpoint":
			cfg.Checkpoint = a.flags.Checkpoint
		case "output-dir":
			cfg.OutputDir = a.flags.OutputDir
		case "test-image":
			cfg.TestImage = a.flags.TestImage
		case "label":
			cfg.RunLabel = a.flags.RunLabel
		case "hotspots":
			cfg.HotspotsFile = a.flags.HotspotsFile
		case "include-head":
			cfg.IncludeHead = a.flags.IncludeHead
		case "include-buffers":
			cfg.IncludeBuffers = a.flags.IncludeBuffers
		case "lenient":
			cfg.Lenient = a.flags.Lenient
		case "seed":
			cfg.Seed = a.flags.Seed
		case "verify-level":
			cfg.VerifyLevel = a.flags.VerifyLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) registry() (*hotspot.Registry, error) {
	if a.cfg.HotspotsFile == "" {
		return hotspot.Default(), nil
	}
	return hotspot.Load(a.fs, a.cfg.HotspotsFile)
}

func (a *app) loadModel() (*model.Network, error) {
	return model.Load(a.fs, a.cfg.Checkpoint)
}
