package main

import (
	"bytes"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/badgecnn/bridge/internal/config"
	"github.com/badgecnn/bridge/internal/export"
	"github.com/disintegration/imaging"
	"github.com/janpfeifer/must"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(fs, &out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func initCheckpoint(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	_, err := run(t, fs, "init", path)
	require.NoError(t, err)
}

func TestInitExportVerify(t *testing.T) {
	fs := afero.NewMemMapFs()
	initCheckpoint(t, fs, "ckpt/badge.born")

	out, err := run(t, fs, "export", "--checkpoint", "ckpt/badge.born", "-o", "out")
	require.NoError(t, err)
	assert.Contains(t, out, "conv1.weight")
	assert.Contains(t, out, "Verification of out")
	for _, name := range []string{
		export.MetadataFile, export.WeightsFile, export.HotspotsFile,
		"m_ustc_input.bin", "m_ustc_conv1_output.bin", "m_ustc_conv4_output.bin",
	} {
		assert.True(t, must.M1(afero.Exists(fs, filepath.Join("out", name))), name)
	}
	assert.False(t, must.M1(afero.Exists(fs, filepath.Join("out", "m_ustc_classifier_output.bin"))))

	_, err = run(t, fs, "verify", "out", "--reference", "ckpt/badge.born")
	assert.NoError(t, err)
}

func TestVerifyMismatchExitCode(t *testing.T) {
	fs := afero.NewMemMapFs()
	initCheckpoint(t, fs, "badge.born")
	_, err := run(t, fs, "export", "--checkpoint", "badge.born", "--no-trace", "--no-verify")
	require.NoError(t, err)

	path := filepath.Join(config.DefaultOutputDir, export.WeightsFile)
	data := must.M1(afero.ReadFile(fs, path))
	require.NoError(t, afero.WriteFile(fs, path, append(data, 1, 2, 3, 4), 0o644))

	out, err := run(t, fs, "verify")
	require.Error(t, err)
	assert.Equal(t, exitMismatch, exitCode(err))
	assert.Contains(t, out, "FAILED")

	// Basic verification tolerates trailing bytes.
	_, err = run(t, fs, "verify", "--verify-level", "basic")
	assert.NoError(t, err)

	_, err = run(t, fs, "verify", "nowhere")
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestExportMissingCheckpoint(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := run(t, fs, "export", "--checkpoint", "missing.born")
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
	assert.False(t, must.M1(afero.Exists(fs, filepath.Join("output", export.MetadataFile))))
}

func TestConfigAndFlagPrecedence(t *testing.T) {
	fs := afero.NewMemMapFs()
	initCheckpoint(t, fs, "badge.born")
	require.NoError(t, afero.WriteFile(fs, "badgecnn.yaml", []byte(
		"checkpoint: badge.born\noutput_dir: traces\nrun_label: m_cfg\ninclude_head: true\n"), 0o644))

	_, err := run(t, fs, "trace", "--config", "badgecnn.yaml")
	require.NoError(t, err)
	assert.True(t, must.M1(afero.Exists(fs, "traces/m_cfg_input.bin")))
	assert.True(t, must.M1(afero.Exists(fs, "traces/m_cfg_classifier_output.bin")))

	_, err = run(t, fs, "trace", "--config", "badgecnn.yaml", "--label", "m_flag")
	require.NoError(t, err)
	assert.True(t, must.M1(afero.Exists(fs, "traces/m_flag_input.bin")))

	_, err = run(t, fs, "trace", "--label", "a/b")
	assert.Error(t, err)
}

func TestSafeTensorsInitAndInspect(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := run(t, fs, "init", "badge.safetensors", "--half", "--write-config", "cfg.yaml")
	require.NoError(t, err)
	cfg := must.M1(config.Load(fs, "cfg.yaml"))
	assert.Equal(t, "badge.safetensors", cfg.Checkpoint)

	out, err := run(t, fs, "inspect", "badge.safetensors")
	require.NoError(t, err)
	assert.Contains(t, out, "SafeTensors")
	assert.Contains(t, out, "batchnorm4.running_var")

	_, err = run(t, fs, "export", "--config", "cfg.yaml", "--no-trace")
	require.NoError(t, err)
	out, err = run(t, fs, "inspect", "output")
	require.NoError(t, err)
	assert.Contains(t, out, "classifier.bias")
	assert.Contains(t, out, "conv2")

	_, err = run(t, fs, "init", "badge2.born", "--half")
	assert.Error(t, err)
}

func TestInferFromBundle(t *testing.T) {
	fs := afero.NewMemMapFs()
	initCheckpoint(t, fs, "badge.born")
	_, err := run(t, fs, "export", "--checkpoint", "badge.born", "--include-buffers", "--no-trace")
	require.NoError(t, err)

	var buf bytes.Buffer
	img := imaging.New(64, 64, color.NRGBA{R: 90, G: 90, B: 90, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	require.NoError(t, afero.WriteFile(fs, "images/ustc.png", buf.Bytes(), 0o644))

	fromCheckpoint, err := run(t, fs, "infer", "images/ustc.png", "--checkpoint", "badge.born", "-k", "2")
	require.NoError(t, err)
	fromBundle, err := run(t, fs, "infer", "images/ustc.png", "--bundle", "output", "-k", "2")
	require.NoError(t, err)
	assert.Equal(t, fromCheckpoint, fromBundle)

	out, err := run(t, fs, "infer", "images", "--checkpoint", "badge.born")
	require.NoError(t, err)
	assert.Contains(t, out, "ustc.png")
}

func TestVersion(t *testing.T) {
	out, err := run(t, afero.NewMemMapFs(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
	assert.Contains(t, out, "BadgeCNN")
}
