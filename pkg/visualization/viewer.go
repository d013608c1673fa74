// Package visualization exports per-slice QC overlays of a ground-truth/
// prediction pair so gross misalignment or label swaps can be spotted by
// eye before trusting the numbers.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"dscagg/internal/models"
)

// Overlay colors: prediction structures are filled, ground-truth
// boundaries are drawn on top.
var (
	fillGTVp  = color.RGBA{R: 180, G: 40, B: 40, A: 255}
	fillGTVn  = color.RGBA{R: 40, G: 60, B: 180, A: 255}
	outlineGT = color.RGBA{R: 60, G: 220, B: 60, A: 255}
)

// Viewer renders axial overlay slices of one case. Both volumes must be
// on the same grid, i.e. the pair as it enters metric extraction.
type Viewer struct {
	gt   *models.LabeledVolume
	pred *models.LabeledVolume
}

// NewViewer creates a viewer for a geometry-aligned volume pair.
func NewViewer(gt, pred *models.LabeledVolume) (*Viewer, error) {
	if gt.Geometry.Extent != pred.Geometry.Extent {
		return nil, fmt.Errorf("ground truth extent %v does not match prediction extent %v",
			gt.Geometry.Extent, pred.Geometry.Extent)
	}
	return &Viewer{gt: gt, pred: pred}, nil
}

// OverlaySlice renders the axial slice at index z: prediction labels as
// filled color, ground-truth structure boundaries as outline pixels.
func (v *Viewer) OverlaySlice(z int) (image.Image, error) {
	ext := v.gt.Geometry.Extent
	if z < 0 || z >= ext[2] {
		return nil, fmt.Errorf("slice %d exceeds depth %d", z, ext[2])
	}

	img := image.NewRGBA(image.Rect(0, 0, ext[0], ext[1]))
	for y := 0; y < ext[1]; y++ {
		for x := 0; x < ext[0]; x++ {
			switch v.pred.At(x, y, z) {
			case models.LabelGTVp:
				img.SetRGBA(x, y, fillGTVp)
			case models.LabelGTVn:
				img.SetRGBA(x, y, fillGTVn)
			default:
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
			if v.isGTBoundary(x, y, z) {
				img.SetRGBA(x, y, outlineGT)
			}
		}
	}

	return img, nil
}

// isGTBoundary reports whether a foreground ground-truth voxel has a
// 4-neighbor in the slice plane with a different label.
func (v *Viewer) isGTBoundary(x, y, z int) bool {
	label := v.gt.At(x, y, z)
	if label == models.LabelBackground {
		return false
	}

	ext := v.gt.Geometry.Extent
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || nx >= ext[0] || ny < 0 || ny >= ext[1] {
			return true // structure touches the slice edge
		}
		if v.gt.At(nx, ny, z) != label {
			return true
		}
	}
	return false
}

// SaveOverlay writes one rendered slice as a JPEG file.
func (v *Viewer) SaveOverlay(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveOverlaySequence renders and saves every axial slice of the pair
// into outputDir.
func (v *Viewer) SaveOverlaySequence(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for z := 0; z < v.gt.Geometry.Extent[2]; z++ {
		img, err := v.OverlaySlice(z)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z))
		if err := v.SaveOverlay(img, filename); err != nil {
			return err
		}
	}

	return nil
}
