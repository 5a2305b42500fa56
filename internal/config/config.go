// Package config holds the settings shared by the badgecnn commands. Values
// come from an optional YAML file and are then overridden by flags.
package config

import (
	"bytes"
	"io"
	"strings"

	"github.com/badgecnn/bridge/internal/verify"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultCheckpoint = "badge_cnn.born"
	DefaultOutputDir  = "output"
	DefaultTestImage  = "data/mol_ustc_test/ustc.jpg"
	DefaultRunLabel   = "m_ustc"
	DefaultSeed       = 42
)

// Config is the pipeline configuration.
type Config struct {
	Checkpoint     string `yaml:"checkpoint"`
	OutputDir      string `yaml:"output_dir"`
	TestImage      string `yaml:"test_image"`
	RunLabel       string `yaml:"run_label"`
	HotspotsFile   string `yaml:"hotspots_file,omitempty"`
	IncludeHead    bool   `yaml:"include_head"`
	IncludeBuffers bool   `yaml:"include_buffers"`
	Lenient        bool   `yaml:"lenient"`
	Seed           int64  `yaml:"seed"`
	VerifyLevel    string `yaml:"verify_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Checkpoint:  DefaultCheckpoint,
		OutputDir:   DefaultOutputDir,
		TestImage:   DefaultTestImage,
		RunLabel:    DefaultRunLabel,
		Seed:        DefaultSeed,
		VerifyLevel: verify.LevelFull.String(),
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default; unknown keys are an error.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Checkpoint) == "" {
		problems = append(problems, "checkpoint is empty")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		problems = append(problems, "output_dir is empty")
	}
	if strings.TrimSpace(c.RunLabel) == "" {
		problems = append(problems, "run_label is empty")
	} else if strings.ContainsAny(c.RunLabel, `/\`) {
		problems = append(problems, "run_label must not contain path separators")
	}
	if _, err := verify.ParseLevel(c.VerifyLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Level returns the parsed verification level.
func (c *Config) Level() verify.Level {
	level, _ := verify.ParseLevel(c.VerifyLevel)
	return level
}

// Save writes the configuration as YAML.
func (c *Config) Save(fs afero.Fs, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config %s", path)
	}
	return nil
}
