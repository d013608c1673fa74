package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dscagg/internal/models"
)

func pairVolume(extent [3]int) *models.LabeledVolume {
	return models.NewLabeledVolume(models.Geometry{
		Spacing:   [3]float64{1, 1, 1},
		Direction: models.IdentityDirection(),
		Extent:    extent,
	})
}

// TestNewViewerExtentMismatch verifies that mismatched grids are rejected.
func TestNewViewerExtentMismatch(t *testing.T) {
	gt := pairVolume([3]int{4, 4, 4})
	pred := pairVolume([3]int{4, 4, 5})

	_, err := NewViewer(gt, pred)
	require.Error(t, err)
}

// TestOverlaySlice verifies fill and outline placement on a known slice.
func TestOverlaySlice(t *testing.T) {
	gt := pairVolume([3]int{8, 8, 1})
	pred := pairVolume([3]int{8, 8, 1})

	// GT: 3x3 block of label 1 at (2..4, 2..4); its center (3,3) is
	// interior, everything else boundary.
	for y := 2; y <= 4; y++ {
		for x := 2; x <= 4; x++ {
			gt.Set(x, y, 0, models.LabelGTVp)
		}
	}
	// Prediction: single label-2 voxel away from the GT block.
	pred.Set(6, 6, 0, models.LabelGTVn)

	viewer, err := NewViewer(gt, pred)
	require.NoError(t, err)

	img, err := viewer.OverlaySlice(0)
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, 8, bounds.Dx())
	assert.Equal(t, 8, bounds.Dy())

	assert.Equal(t, outlineGT, img.At(2, 2))          // GT boundary voxel
	assert.NotEqual(t, outlineGT, img.At(3, 3))       // interior, no outline
	assert.Equal(t, fillGTVn, img.At(6, 6))           // prediction fill
	assert.Equal(t, color.RGBA{A: 255}, img.At(0, 0)) // background
}

// TestOverlaySliceOutOfRange verifies the depth bound check.
func TestOverlaySliceOutOfRange(t *testing.T) {
	gt := pairVolume([3]int{2, 2, 2})
	pred := pairVolume([3]int{2, 2, 2})
	viewer, err := NewViewer(gt, pred)
	require.NoError(t, err)

	_, err = viewer.OverlaySlice(2)
	assert.Error(t, err)
	_, err = viewer.OverlaySlice(-1)
	assert.Error(t, err)
}

// TestSaveOverlaySequence verifies that one JPEG per axial slice lands in
// the output directory.
func TestSaveOverlaySequence(t *testing.T) {
	gt := pairVolume([3]int{4, 4, 3})
	pred := pairVolume([3]int{4, 4, 3})
	pred.Set(1, 1, 1, models.LabelGTVp)

	viewer, err := NewViewer(gt, pred)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "overlays")
	require.NoError(t, viewer.SaveOverlaySequence(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "slice_z_000.jpg", entries[0].Name())
	assert.Equal(t, "slice_z_002.jpg", entries[2].Name())
}
