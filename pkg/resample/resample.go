// Package resample maps a prediction volume onto its ground truth's voxel
// grid. Only nearest-neighbor lookup is used so that every output voxel
// carries a label value present in the input; no interpolation scheme that
// could synthesize new label values is permitted here.
package resample

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"dscagg/internal/models"
)

// ToGrid produces a new volume holding the prediction's labels resampled
// onto the ground truth's grid. The result matches the ground truth's
// extent, spacing, direction and origin exactly. Output voxels whose
// physical position falls outside the prediction volume are background.
// Neither input is modified.
func ToGrid(gt, pred *models.LabeledVolume) (*models.LabeledVolume, error) {
	inv, err := invertIndexMap(pred.Geometry)
	if err != nil {
		return nil, fmt.Errorf("prediction geometry is not invertible: %w", err)
	}

	out := models.NewLabeledVolume(gt.Geometry)
	nx, ny, nz := gt.Geometry.Extent[0], gt.Geometry.Extent[1], gt.Geometry.Extent[2]
	pnx, pny, pnz := pred.Geometry.Extent[0], pred.Geometry.Extent[1], pred.Geometry.Extent[2]

	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				p := gt.Geometry.IndexToPhysical(float64(i), float64(j), float64(k))

				// Continuous index into the prediction grid.
				var d [3]float64
				for a := 0; a < 3; a++ {
					d[a] = p[a] - pred.Geometry.Origin[a]
				}
				ci := inv[0][0]*d[0] + inv[0][1]*d[1] + inv[0][2]*d[2]
				cj := inv[1][0]*d[0] + inv[1][1]*d[1] + inv[1][2]*d[2]
				ck := inv[2][0]*d[0] + inv[2][1]*d[1] + inv[2][2]*d[2]

				si := int(math.Round(ci))
				sj := int(math.Round(cj))
				sk := int(math.Round(ck))
				if si < 0 || si >= pnx || sj < 0 || sj >= pny || sk < 0 || sk >= pnz {
					continue // background
				}

				out.Set(i, j, k, pred.At(si, sj, sk))
			}
		}
	}

	return out, nil
}

// NormalizeSpacing returns a copy of the prediction whose spacing is set
// to exactly the ground truth's. Used on the no-resample path to remove
// sub-tolerance floating-point drift that would otherwise break the
// equal-grid assumption downstream. Voxel data is copied untouched.
func NormalizeSpacing(gt, pred *models.LabeledVolume) *models.LabeledVolume {
	out := pred.Clone()
	out.Geometry.Spacing = gt.Geometry.Spacing
	return out
}

// invertIndexMap inverts the 3x3 index-to-physical matrix
// Direction * diag(Spacing) of the given geometry.
func invertIndexMap(g models.Geometry) ([3][3]float64, error) {
	m := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, g.Direction[r][c]*g.Spacing[c])
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return [3][3]float64{}, err
	}

	var out [3][3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = inv.At(r, c)
		}
	}
	return out, nil
}
