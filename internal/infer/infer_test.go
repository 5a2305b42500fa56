package infer

import (
	"bytes"
	"image/color"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/badgecnn/bridge/internal/backend/cpu"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/disintegration/imaging"
	"github.com/janpfeifer/must"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	net := must.M1(model.New(model.Architecture(), cpu.New(), rand.New(rand.NewSource(21))))
	return New(net)
}

func writePNG(t *testing.T, fs afero.Fs, path string, shade uint8) {
	t.Helper()
	img := imaging.New(80, 60, color.NRGBA{R: shade, G: shade / 2, B: 255 - shade, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func TestClassifyRanksAllClasses(t *testing.T) {
	c := newClassifier(t)
	input := tensor.Randn(tensor.Shape{1, 1, 64, 64}, rand.New(rand.NewSource(1)))

	all := must.M1(c.Classify(input, 100))
	require.Len(t, all, len(model.ClassNames))
	var sum float32
	seen := map[int]bool{}
	for i, p := range all {
		sum += p.Confidence
		seen[p.Index] = true
		assert.Equal(t, model.ClassNames[p.Index], p.Class)
		if i > 0 {
			assert.GreaterOrEqual(t, all[i-1].Confidence, p.Confidence)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Len(t, seen, len(model.ClassNames))

	top3 := must.M1(c.Classify(input, 3))
	assert.Equal(t, all[:3], top3)
	top1 := must.M1(c.Classify(input, 0))
	assert.Equal(t, all[:1], top1)
}

func TestClassifyRejectsShape(t *testing.T) {
	c := newClassifier(t)
	_, err := c.Classify(tensor.MustRaw(tensor.Shape{2, 1, 64, 64}), 1)
	assert.Error(t, err)
	_, err = c.Classify(tensor.MustRaw(tensor.Shape{1, 1, 32, 32}), 1)
	assert.Error(t, err)
}

func TestClassifyDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "badges/b.png", 200)
	writePNG(t, fs, "badges/a.png", 20)
	require.NoError(t, afero.WriteFile(fs, "badges/broken.jpg", []byte("not a jpeg"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "badges/notes.txt", []byte("ignored"), 0o644))
	require.NoError(t, fs.MkdirAll("badges/nested.png", 0o755))

	c := newClassifier(t)
	var progress bytes.Buffer
	results, err := c.ClassifyDir(fs, "badges", 2, &progress)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, filepath.Join("badges", "a.png"), results[0].Path)
	assert.Equal(t, filepath.Join("badges", "b.png"), results[1].Path)
	assert.Equal(t, filepath.Join("badges", "broken.jpg"), results[2].Path)
	for _, r := range results[:2] {
		require.NoError(t, r.Err)
		assert.Len(t, r.Top, 2)
	}
	assert.Error(t, results[2].Err)
	assert.Empty(t, results[2].Top)
	assert.NotZero(t, progress.Len())

	single := must.M1(c.ClassifyFile(fs, "badges/a.png", 2))
	assert.Equal(t, results[0].Top, single)
}

func TestClassifyDirFailures(t *testing.T) {
	c := newClassifier(t)
	fs := afero.NewMemMapFs()
	_, err := c.ClassifyDir(fs, "missing", 1, nil)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "empty/readme.md", nil, 0o644))
	_, err = c.ClassifyDir(fs, "empty", 1, nil)
	assert.ErrorContains(t, err, "no images")
}
