// Package verify reads an exported bundle back and checks it against its own
// declarations: record offsets, sizes and hotspot references against the
// actual weight buffer and hotspot documents.
//
// Mismatches are reported, never fatal. Run returns an error only when an
// artifact cannot be read at all.
package verify

import (
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/badgecnn/bridge/internal/export"
	"github.com/badgecnn/bridge/internal/hotspot"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/xeipuuv/gojsonschema"
	"k8s.io/klog/v2"
)

//go:embed schema.json
var metadataSchema []byte

// Level selects how much is checked.
type Level int

// Verification levels.
const (
	// LevelFull is the default: structure, offsets, sizes and hotspots.
	LevelFull Level = iota
	// LevelBasic only checks that both artifacts parse and that the buffer
	// holds as many values as its header declares.
	LevelBasic
)

func (l Level) String() string {
	if l == LevelBasic {
		return "basic"
	}
	return "full"
}

// ParseLevel converts "basic" or "full".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "", "full":
		return LevelFull, nil
	case "basic":
		return LevelBasic, nil
	default:
		return LevelFull, errors.Errorf("unknown verification level %q (want basic or full)", s)
	}
}

// Options configures Run.
type Options struct {
	Level Level

	// Reference, if set, is compared value by value with the buffer.
	Reference []nn.NamedTensor
}

// Check is the outcome of one verification step.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Report summarizes a verification run.
type Report struct {
	Dir      string
	Level    Level
	Layers   int
	Count    uint32
	FileSize int64
	Checks   []Check
	Passed   bool
}

// Failures returns the failed checks.
func (r *Report) Failures() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

func (r *Report) add(name string, passed bool, format string, args ...any) bool {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: fmt.Sprintf(format, args...)})
	if !passed {
		r.Passed = false
		klog.Warningf("verify: %s failed: %s", name, r.Checks[len(r.Checks)-1].Detail)
	}
	return passed
}

// Run verifies the bundle in dir.
func Run(fs afero.Fs, dir string, opts Options) (*Report, error) {
	report := &Report{Dir: dir, Level: opts.Level, Passed: true}

	metaPath := filepath.Join(dir, export.MetadataFile)
	metaBytes, err := afero.ReadFile(fs, metaPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", metaPath)
	}
	weightsPath := filepath.Join(dir, export.WeightsFile)
	weights, err := afero.ReadFile(fs, weightsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", weightsPath)
	}
	report.FileSize = int64(len(weights))

	var meta export.Metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		report.add("metadata parses", false, "%s: %v", export.MetadataFile, err)
		return report, nil
	}
	report.add("metadata parses", true, "%s", export.MetadataFile)
	report.Layers = len(meta.Layers)
	if !report.add("layers present", len(meta.Layers) > 0, "%d layer records", len(meta.Layers)) {
		return report, nil
	}
	if !report.add("count header", len(weights) >= export.HeaderSize, "%d bytes", len(weights)) {
		return report, nil
	}
	report.Count = binary.LittleEndian.Uint32(weights)
	payload := weights[export.HeaderSize:]
	if !report.add("values readable", int64(len(payload)) >= 4*int64(report.Count),
		"header declares %d values, %d bytes follow", report.Count, len(payload)) {
		return report, nil
	}
	if opts.Level == LevelBasic {
		return report, nil
	}

	checkSchema(report, metaBytes)
	checkLayout(report, &meta, int64(len(payload)))
	checkHotspots(report, fs, dir, &meta)
	if opts.Reference != nil {
		checkReference(report, &meta, payload, opts.Reference)
	}
	klog.V(1).Infof("verify: %s: %d checks, passed=%v", dir, len(report.Checks), report.Passed)
	return report, nil
}

func checkSchema(report *Report, metaBytes []byte) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(metadataSchema))
	if err != nil {
		report.add("schema", false, "invalid embedded schema: %v", err)
		return
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(metaBytes))
	if err != nil {
		report.add("schema", false, "%v", err)
		return
	}
	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	report.add("schema", result.Valid(), "%s", strings.Join(problems, "; "))
}

func checkLayout(report *Report, meta *export.Metadata, payloadSize int64) {
	declared := 4 * int64(report.Count)
	report.add("file size", payloadSize == declared,
		"file is %d bytes, header implies %d", export.HeaderSize+payloadSize, export.HeaderSize+declared)

	total := meta.TotalBytes()
	report.add("total size", total == declared, "records cover %d bytes, header declares %d", total, declared)

	var cursor int64
	offsetDetail := ""
	for _, r := range meta.Layers {
		if r.Offset != cursor {
			offsetDetail = fmt.Sprintf("%s: offset %d, expected %d", r.Name, r.Offset, cursor)
			break
		}
		cursor += r.SizeBytes
	}
	report.add("offsets", offsetDetail == "", "%s", offsetDetail)

	sizeDetail := ""
	for _, r := range meta.Layers {
		numel := int64(tensor.Shape(r.Shape).NumElements())
		if r.SizeBytes != 4*numel || r.DType != export.DTypeFloat32 {
			sizeDetail = fmt.Sprintf("%s: %s %v declares %d bytes", r.Name, r.DType, r.Shape, r.SizeBytes)
			break
		}
	}
	report.add("record sizes", sizeDetail == "", "%s", sizeDetail)
}

func checkHotspots(report *Report, fs afero.Fs, dir string, meta *export.Metadata) {
	refDetail := ""
	for _, r := range meta.Layers {
		if r.Hotspot == nil {
			continue
		}
		if _, ok := findRegion(meta.Hotspots, *r.Hotspot); !ok {
			refDetail = fmt.Sprintf("%s: region not in embedded hotspots", r.Name)
			break
		}
	}
	report.add("hotspot refs", refDetail == "", "%s", refDetail)

	path := filepath.Join(dir, export.HotspotsFile)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		report.add("hotspot document", false, "%v", err)
		return
	}
	var standalone map[string]hotspot.Region
	if err := json.Unmarshal(data, &standalone); err != nil {
		report.add("hotspot document", false, "%s: %v", export.HotspotsFile, err)
		return
	}
	docDetail := ""
	if len(standalone) != len(meta.Hotspots) {
		docDetail = fmt.Sprintf("%d regions, model.json embeds %d", len(standalone), len(meta.Hotspots))
	}
	for key, region := range meta.Hotspots {
		if other, ok := standalone[key]; !ok || !other.Equal(region) {
			docDetail = fmt.Sprintf("region %q differs from model.json", key)
			break
		}
	}
	report.add("hotspot document", docDetail == "", "%s", docDetail)
}

func findRegion(regions map[string]hotspot.Region, region hotspot.Region) (string, bool) {
	for key, r := range regions {
		if r.Equal(region) {
			return key, true
		}
	}
	return "", false
}

// checkReference decodes each record's byte range and compares it bit for
// bit with the reference tensor of the same name.
func checkReference(report *Report, meta *export.Metadata, payload []byte, reference []nn.NamedTensor) {
	records := make(map[string]export.ParameterRecord, len(meta.Layers))
	for _, r := range meta.Layers {
		records[r.Name] = r
	}
	detail := ""
	if len(reference) != len(meta.Layers) {
		detail = fmt.Sprintf("%d reference tensors, %d records", len(reference), len(meta.Layers))
	}
	for _, ref := range reference {
		if detail != "" {
			break
		}
		r, ok := records[ref.Name]
		switch {
		case !ok:
			detail = fmt.Sprintf("%s: no record", ref.Name)
		case !tensor.Shape(r.Shape).Equal(ref.Tensor.Shape()):
			detail = fmt.Sprintf("%s: shape %v, reference %v", ref.Name, r.Shape, ref.Tensor.Shape())
		case r.Offset < 0 || r.Offset%4 != 0 || r.SizeBytes != 4*int64(len(ref.Tensor.Data())):
			detail = fmt.Sprintf("%s: range [%d, +%d) does not hold %d values", ref.Name, r.Offset, r.SizeBytes, len(ref.Tensor.Data()))
		case r.End() > int64(len(payload)):
			detail = fmt.Sprintf("%s: range ends past the buffer", ref.Name)
		default:
			chunk := payload[r.Offset:r.End()]
			for i, v := range ref.Tensor.Data() {
				if binary.LittleEndian.Uint32(chunk[4*i:]) != math.Float32bits(v) {
					detail = fmt.Sprintf("%s: value %d differs", ref.Name, i)
					break
				}
			}
		}
	}
	report.add("round trip", detail == "", "%s", detail)
}
