// Package trace dumps the input and every macro-stage output of one forward
// pass as raw float32 files, for cross-checking a consumer's implementation
// of the exported network.
//
// Files are named <label>_<stage>.bin: little-endian float32, row-major,
// no header, batch dimension dropped.
package trace

import (
	"bufio"
	"math/rand"
	"path/filepath"

	"github.com/badgecnn/bridge/internal/arch"
	"github.com/badgecnn/bridge/internal/imageio"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// DefaultLabel is the run label of the reference trace.
const DefaultLabel = "m_ustc"

// InputStage names the dump of the network input.
const InputStage = "input"

// Dump describes one written activation file.
type Dump struct {
	Stage     string
	Shape     tensor.Shape // per sample, batch dimension dropped
	Path      string
	Synthetic bool
}

// NumElements returns the number of float32 values in the file.
func (d Dump) NumElements() int {
	return d.Shape.NumElements()
}

// Input is a preprocessed [1, C, H, W] network input.
type Input struct {
	Tensor    *tensor.RawTensor
	Synthetic bool
	Source    string
}

// LoadInput preprocesses the image at path. If it cannot be read it logs a
// warning and returns seeded standard-normal values of the network input
// shape instead.
func LoadInput(fs afero.Fs, path string, seed int64) Input {
	if path != "" {
		x, err := imageio.Load(fs, path, imageio.TraceOptions)
		if err == nil {
			return Input{Tensor: x, Source: path}
		}
		klog.Warningf("trace: test input unavailable, using synthetic input (seed %d): %v", seed, err)
	} else {
		klog.Warningf("trace: no test input configured, using synthetic input (seed %d)", seed)
	}
	shape := tensor.Shape{1, model.InputChannels, model.InputSize, model.InputSize}
	return Input{
		Tensor:    tensor.Randn(shape, rand.New(rand.NewSource(seed))),
		Synthetic: true,
		Source:    "synthetic",
	}
}

// Exporter runs the network stage by stage and writes the dumps.
type Exporter struct {
	Net   *model.Network
	Fs    afero.Fs
	Dir   string
	Label string

	// IncludeHead also dumps the pooled features ("gap_output") and the
	// logits ("classifier_output"). No softmax is applied.
	IncludeHead bool
}

// Run writes the input dump followed by one dump per stage, in stage order.
// Without IncludeHead the pass stops after the last convolution stage.
func (e *Exporter) Run(input Input) ([]Dump, error) {
	if e.Label == "" {
		return nil, errors.New("trace: empty run label")
	}
	x := input.Tensor
	if x.Shape()[0] != 1 {
		return nil, errors.Errorf("trace: expected a single input, got batch of %d", x.Shape()[0])
	}
	if err := e.Fs.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %s", e.Dir)
	}

	var dumps []Dump
	write := func(stage string, t *tensor.RawTensor) error {
		d, err := e.write(stage, t.Squeeze0(), input.Synthetic)
		if err != nil {
			return err
		}
		dumps = append(dumps, d)
		return nil
	}

	if err := write(InputStage, x); err != nil {
		return nil, err
	}
	for _, stage := range e.Net.Stages() {
		if !e.IncludeHead && !e.isConvStage(stage.Name()) {
			break
		}
		x = stage.Forward(x)
		if err := write(stage.Name()+"_output", x); err != nil {
			return dumps, err
		}
	}
	if input.Synthetic {
		klog.Warningf("trace: %d dumps in %s are from synthetic input", len(dumps), e.Dir)
	}
	return dumps, nil
}

// isConvStage reports whether the stage contains a convolution.
func (e *Exporter) isConvStage(stage string) bool {
	for _, d := range e.Net.Architecture().StageDescriptors(stage) {
		if d.Kind == arch.KindConv2D {
			return true
		}
	}
	return false
}

func (e *Exporter) write(stage string, t *tensor.RawTensor, synthetic bool) (Dump, error) {
	path := filepath.Join(e.Dir, e.Label+"_"+stage+".bin")
	f, err := e.Fs.Create(path)
	if err != nil {
		return Dump{}, errors.Wrapf(err, "failed to create %s", path)
	}
	bw := bufio.NewWriter(f)
	if _, err := bw.Write(t.Bytes()); err != nil {
		_ = f.Close()
		return Dump{}, errors.Wrapf(err, "failed to write %s", path)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return Dump{}, errors.Wrapf(err, "failed to write %s", path)
	}
	if err := f.Close(); err != nil {
		return Dump{}, errors.Wrapf(err, "failed to close %s", path)
	}
	klog.V(1).Infof("trace: %s shape=%v", path, t.Shape())
	return Dump{Stage: stage, Shape: t.Shape().Clone(), Path: path, Synthetic: synthetic}, nil
}

// ReadDump reads a dump file back as float32 values.
func ReadDump(fs afero.Fs, path string) ([]float32, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	values, err := tensor.DecodeFloat32(data, tensor.Float32)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return values, nil
}
