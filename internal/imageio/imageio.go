// Package imageio turns image files into the network's input tensor:
// grayscale, resized to Size×Size, values in [0, 1] or, with Normalize, [-1, 1].
package imageio

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Options controls preprocessing.
type Options struct {
	// Size is the output height and width.
	Size int

	// Normalize maps [0, 1] to [-1, 1] (mean 0.5, std 0.5), as the
	// classifier was trained with.
	Normalize bool
}

// TraceOptions is the preprocessing of the activation trace input.
var TraceOptions = Options{Size: 64}

// InferenceOptions is the preprocessing used for classification.
var InferenceOptions = Options{Size: 64, Normalize: true}

// Extensions lists the file types Load accepts, lower case.
var Extensions = []string{".png", ".jpg", ".jpeg"}

// IsImageFile reports whether name has one of Extensions.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load decodes the image at path and returns a [1, 1, Size, Size] tensor.
func Load(fs afero.Fs, path string, opts Options) (*tensor.RawTensor, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %s", path)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %s", path)
	}
	return FromImage(img, opts)
}

// FromImage converts an already decoded image.
func FromImage(img image.Image, opts Options) (*tensor.RawTensor, error) {
	if opts.Size <= 0 {
		return nil, errors.Errorf("invalid image size %d", opts.Size)
	}
	if img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}

	gray := imaging.Grayscale(img)
	resized := imaging.Resize(gray, opts.Size, opts.Size, imaging.Linear)

	out := tensor.MustRaw(tensor.Shape{1, 1, opts.Size, opts.Size})
	data := out.Data()
	for y := 0; y < opts.Size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < opts.Size; x++ {
			// Grayscale sets R = G = B.
			v := float32(row[4*x]) / 255
			if opts.Normalize {
				v = (v - 0.5) / 0.5
			}
			data[y*opts.Size+x] = v
		}
	}
	return out, nil
}
