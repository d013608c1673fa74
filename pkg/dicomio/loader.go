// Package dicomio loads labeled segmentation volumes from DICOM series
// directories. It is the image-loading collaborator of the evaluation
// pipeline: everything downstream operates on the decoded LabeledVolume
// and never touches files.
package dicomio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dscagg/internal/models"
)

// sliceStepTolerance bounds the allowed deviation between consecutive
// slice positions; series with a non-uniform step cannot be stacked into
// a regular grid.
const sliceStepTolerance = 1e-3

// seriesGeometry holds the in-plane geometry shared by every slice of a
// series.
type seriesGeometry struct {
	rows, cols int
	// rowSpacing/colSpacing are PixelSpacing in DICOM order: distance
	// between rows (y) first, between columns (x) second.
	rowSpacing, colSpacing float64
	// xCos/yCos are the ImageOrientationPatient direction cosines of
	// increasing column index and increasing row index respectively.
	xCos, yCos [3]float64
}

// sliceFrame is one decoded slice: its patient-space position plus the
// row-major label data.
type sliceFrame struct {
	position [3]float64
	instance int
	data     []uint8
}

// SeriesLoader reads a directory of single-frame DICOM files and stacks
// them into one LabeledVolume.
type SeriesLoader struct{}

// Load parses every .dcm file under dir, orders the slices along the
// series normal and assembles the volume. The slice step must be uniform
// and the in-plane geometry identical across slices.
func (SeriesLoader) Load(dir string) (*models.LabeledVolume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading series directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".dcm") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no DICOM files in %s", dir)
	}

	var geom seriesGeometry
	frames := make([]sliceFrame, 0, len(paths))
	for i, path := range paths {
		g, f, err := parseSlice(path)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if i == 0 {
			geom = g
		} else if !sameSeriesGeometry(geom, g) {
			return nil, fmt.Errorf("%s: in-plane geometry differs from the first slice", path)
		}
		frames = append(frames, f)
	}

	return stackSlices(frames, geom)
}

// parseSlice decodes one DICOM file into its geometry and label data.
func parseSlice(path string) (seriesGeometry, sliceFrame, error) {
	var g seriesGeometry
	var f sliceFrame

	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return g, f, err
	}

	if g.rows, err = firstInt(ds, tag.Rows); err != nil {
		return g, f, err
	}
	if g.cols, err = firstInt(ds, tag.Columns); err != nil {
		return g, f, err
	}

	spacing, err := floatValues(ds, tag.PixelSpacing, 2)
	if err != nil {
		return g, f, err
	}
	g.rowSpacing, g.colSpacing = spacing[0], spacing[1]

	orient, err := floatValues(ds, tag.ImageOrientationPatient, 6)
	if err != nil {
		return g, f, err
	}
	copy(g.xCos[:], orient[0:3])
	copy(g.yCos[:], orient[3:6])

	pos, err := floatValues(ds, tag.ImagePositionPatient, 3)
	if err != nil {
		return g, f, err
	}
	copy(f.position[:], pos)

	// InstanceNumber is optional; it only breaks ties between slices at
	// the same position.
	f.instance, _ = firstInt(ds, tag.InstanceNumber)

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return g, f, fmt.Errorf("no pixel data: %w", err)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) != 1 {
		return g, f, fmt.Errorf("expected a single frame, got %d", len(info.Frames))
	}
	native, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return g, f, fmt.Errorf("decoding pixel data: %w", err)
	}
	if len(native.Data) != g.rows*g.cols {
		return g, f, fmt.Errorf("pixel count %d does not match %dx%d", len(native.Data), g.rows, g.cols)
	}

	f.data = make([]uint8, len(native.Data))
	for i, sample := range native.Data {
		v := sample[0]
		if v < 0 || v > 255 {
			return g, f, fmt.Errorf("pixel value %d is not an 8-bit label", v)
		}
		f.data[i] = uint8(v)
	}

	return g, f, nil
}

// stackSlices orders the frames along the series normal and assembles the
// final volume. Separated from file parsing so it can be exercised with
// synthetic frames.
func stackSlices(frames []sliceFrame, geom seriesGeometry) (*models.LabeledVolume, error) {
	normal := cross(geom.xCos, geom.yCos)

	sort.Slice(frames, func(i, j int) bool {
		pi, pj := dot(frames[i].position, normal), dot(frames[j].position, normal)
		if pi != pj {
			return pi < pj
		}
		return frames[i].instance < frames[j].instance
	})

	// Slice step from consecutive positions projected onto the normal;
	// a single-slice series falls back to unit step.
	step := 1.0
	if len(frames) > 1 {
		step = dot(frames[1].position, normal) - dot(frames[0].position, normal)
		if step <= 0 {
			return nil, fmt.Errorf("duplicate slice position in series")
		}
		for i := 2; i < len(frames); i++ {
			d := dot(frames[i].position, normal) - dot(frames[i-1].position, normal)
			if math.Abs(d-step) > sliceStepTolerance {
				return nil, fmt.Errorf("non-uniform slice step: %g vs %g", d, step)
			}
		}
	}

	var direction [3][3]float64
	for r := 0; r < 3; r++ {
		direction[r][0] = geom.xCos[r]
		direction[r][1] = geom.yCos[r]
		direction[r][2] = normal[r]
	}

	vol := models.NewLabeledVolume(models.Geometry{
		Spacing:   [3]float64{geom.colSpacing, geom.rowSpacing, step},
		Origin:    frames[0].position,
		Direction: direction,
		Extent:    [3]int{geom.cols, geom.rows, len(frames)},
	})

	sliceSize := geom.rows * geom.cols
	for z, f := range frames {
		copy(vol.Data[z*sliceSize:(z+1)*sliceSize], f.data)
	}

	return vol, nil
}

func sameSeriesGeometry(a, b seriesGeometry) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	if math.Abs(a.rowSpacing-b.rowSpacing) > 1e-6 || math.Abs(a.colSpacing-b.colSpacing) > 1e-6 {
		return false
	}
	for i := 0; i < 3; i++ {
		if math.Abs(a.xCos[i]-b.xCos[i]) > 1e-6 || math.Abs(a.yCos[i]-b.yCos[i]) > 1e-6 {
			return false
		}
	}
	return true
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// firstInt extracts the first value of an integer-valued element,
// tolerating the string encodings used by IS-typed tags.
func firstInt(ds dicom.Dataset, t tag.Tag) (int, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("missing tag %v", t)
	}
	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], nil
		}
	case []string:
		if len(v) > 0 {
			return strconv.Atoi(strings.TrimSpace(v[0]))
		}
	}
	return 0, fmt.Errorf("tag %v has no integer value", t)
}

// floatValues extracts exactly n decimal values from a DS-typed element.
func floatValues(ds dicom.Dataset, t tag.Tag, n int) ([]float64, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, fmt.Errorf("missing tag %v", t)
	}
	var out []float64
	switch v := el.Value.GetValue().(type) {
	case []float64:
		out = append(out, v...)
	case []string:
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("tag %v: %w", t, err)
			}
			out = append(out, f)
		}
	default:
		return nil, fmt.Errorf("tag %v has unexpected type %T", t, v)
	}
	if len(out) != n {
		return nil, fmt.Errorf("tag %v: expected %d values, got %d", t, n, len(out))
	}
	return out, nil
}
