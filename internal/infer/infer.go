// Package infer classifies badge images with a loaded network.
package infer

import (
	"io"
	"path/filepath"
	"sort"

	"github.com/badgecnn/bridge/internal/backend/cpu"
	"github.com/badgecnn/bridge/internal/imageio"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// Prediction is one ranked class.
type Prediction struct {
	Index      int
	Class      string
	Confidence float32
}

// Result is the outcome for one file of a directory run. Err is set when the
// image could not be decoded; Top is empty in that case.
type Result struct {
	Path string
	Top  []Prediction
	Err  error
}

// Classifier runs the network and ranks the softmax of its logits.
type Classifier struct {
	Net     *model.Network
	Classes []string
	Image   imageio.Options

	backend *cpu.CPUBackend
}

// New returns a classifier using the BadgeCNN class names and the
// normalized inference preprocessing.
func New(net *model.Network) *Classifier {
	return &Classifier{
		Net:     net,
		Classes: model.ClassNames,
		Image:   imageio.InferenceOptions,
		backend: cpu.New(),
	}
}

// Classify returns the topK most probable classes for a single
// [1, channels, size, size] input, most probable first. topK is clamped to
// [1, number of classes].
func (c *Classifier) Classify(input *tensor.RawTensor, topK int) ([]Prediction, error) {
	want := tensor.Shape(append([]int{1}, c.Net.Architecture().InputShape...))
	if !input.Shape().Equal(want) {
		return nil, errors.Errorf("input shape %v, expected %v", input.Shape(), want)
	}
	probs := c.backend.Softmax(c.Net.Forward(input)).Data()
	if len(probs) != len(c.Classes) {
		return nil, errors.Errorf("network produced %d scores for %d classes", len(probs), len(c.Classes))
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	topK = max(1, min(topK, len(order)))
	out := make([]Prediction, topK)
	for i := range out {
		idx := order[i]
		out[i] = Prediction{Index: idx, Class: c.Classes[idx], Confidence: probs[idx]}
	}
	return out, nil
}

// ClassifyFile decodes the image at path and classifies it.
func (c *Classifier) ClassifyFile(fs afero.Fs, path string, topK int) ([]Prediction, error) {
	input, err := imageio.Load(fs, path, c.Image)
	if err != nil {
		return nil, err
	}
	return c.Classify(input, topK)
}

// ClassifyDir classifies every image file directly inside dir, in name
// order. Undecodable files are reported in their Result and do not stop the
// run. Progress is drawn on progress if it is not nil.
func (c *Classifier) ClassifyDir(fs afero.Fs, dir string, topK int, progress io.Writer) ([]Result, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && imageio.IsImageFile(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, errors.Errorf("no images (%v) in %s", imageio.Extensions, dir)
	}

	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Classifying"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)

	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		top, err := c.ClassifyFile(fs, path, topK)
		if err != nil {
			klog.Warningf("skipping %s: %v", path, err)
		}
		results = append(results, Result{Path: path, Top: top, Err: err})
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return results, nil
}
