package export

import (
	"bufio"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/badgecnn/bridge/internal/nn"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// Writer writes bundles into Dir on Fs.
type Writer struct {
	Fs  afero.Fs
	Dir string
}

// Paths lists the files a Write produced, in write order.
type Paths struct {
	Metadata string
	Weights  string
	Hotspots string
}

// Write emits model.json, weights.bin and hotspots.json, in that order.
//
// Each file is written to a temporary sibling and renamed into place, so no
// single artifact is ever seen half-written. Files written before a failure
// are not rolled back.
func (w *Writer) Write(b *Bundle) (Paths, error) {
	exists, err := afero.DirExists(w.Fs, w.Dir)
	if err != nil {
		return Paths{}, errors.Wrapf(err, "failed to stat output directory %s", w.Dir)
	}
	if !exists {
		if err := w.Fs.MkdirAll(w.Dir, 0o755); err != nil {
			return Paths{}, errors.Wrapf(err, "failed to create output directory %s", w.Dir)
		}
	}
	paths := Paths{
		Metadata: filepath.Join(w.Dir, MetadataFile),
		Weights:  filepath.Join(w.Dir, WeightsFile),
		Hotspots: filepath.Join(w.Dir, HotspotsFile),
	}

	if err := w.writeFile(paths.Metadata, func(out io.Writer) error {
		return encodeJSON(out, b.Metadata)
	}); err != nil {
		return paths, err
	}
	klog.Infof("export: wrote %s (%d layers)", paths.Metadata, len(b.Metadata.Layers))

	if err := w.writeFile(paths.Weights, func(out io.Writer) error {
		_, err := b.Weights.WriteTo(out)
		return err
	}); err != nil {
		return paths, err
	}
	klog.Infof("export: wrote %s (%d values, %d bytes)", paths.Weights, b.Weights.Count(), b.Weights.Size())

	if err := w.writeFile(paths.Hotspots, func(out io.Writer) error {
		return encodeJSON(out, b.Hotspots)
	}); err != nil {
		return paths, err
	}
	klog.Infof("export: wrote %s (%d regions)", paths.Hotspots, len(b.Hotspots))
	return paths, nil
}

// artifactMode is the permission of every written artifact. Temporary files
// start out owner-only.
const artifactMode = 0o644

// writeFile streams fill into a temporary file next to path, then renames it.
func (w *Writer) writeFile(path string, fill func(io.Writer) error) (err error) {
	tmp, err := afero.TempFile(w.Fs, filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = w.Fs.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err := fill(buf); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := buf.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	if err := w.Fs.Chmod(tmp.Name(), artifactMode); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", path)
	}
	if err := w.Fs.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move %s into place", path)
	}
	return nil
}

// encodeJSON writes v indented by two spaces, without HTML escaping, plus a
// trailing newline. Map keys come out sorted, so the output is deterministic.
func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Export builds the bundle for params and writes it with w.
func Export(s *Serializer, w *Writer, params []nn.NamedTensor) (*Bundle, Paths, error) {
	bundle, err := s.Build(params)
	if err != nil {
		return nil, Paths{}, err
	}
	paths, err := w.Write(bundle)
	if err != nil {
		return bundle, paths, err
	}
	return bundle, paths, nil
}
