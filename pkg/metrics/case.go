// Package metrics computes per-case Dice statistics for a volume pair and
// pools them into the cohort-level aggregated Dice (DSCagg).
//
// Per-label arrays throughout the package are indexed by foreground label
// minus one: index 0 is label 1 (GTVp), index 1 is label 2 (GTVn).
package metrics

import (
	"dscagg/internal/models"
)

// CaseMetrics holds the overlap and volume statistics of one patient
// case. Records are created once by Extract and never modified; the
// aggregation step only reads them.
type CaseMetrics struct {
	// PatientID is the opaque case identifier, kept for diagnostics only.
	PatientID string

	// DSC is the per-label Dice coefficient. When a label is absent from
	// both volumes the coefficient is 0 by definition, not NaN.
	DSC [models.NumForegroundLabels]float64

	// VolGT and VolPred are the per-label physical volumes in mm³ of the
	// ground truth and prediction.
	VolGT   [models.NumForegroundLabels]float64
	VolPred [models.NumForegroundLabels]float64

	// VolSum is VolGT + VolPred per label.
	VolSum [models.NumForegroundLabels]float64

	// TP is the implied true-positive volume, DSC * VolSum / 2. It equals
	// the physical volume of the voxel-wise intersection and satisfies
	// TP <= VolSum/2, with TP = 0 whenever VolSum = 0.
	TP [models.NumForegroundLabels]float64
}

// Extract computes the per-label overlap and volume statistics for a
// ground-truth/prediction pair that is already on the same voxel grid.
// Voxel counts are converted to physical volume via the ground truth's
// voxel volume (spacing_x * spacing_y * spacing_z).
func Extract(patientID string, gt, pred *models.LabeledVolume) CaseMetrics {
	var gtCount, predCount, interCount [models.NumForegroundLabels]int

	for i, g := range gt.Data {
		p := pred.Data[i]
		if g >= models.LabelGTVp && g <= models.LabelGTVn {
			gtCount[g-1]++
			if p == g {
				interCount[g-1]++
			}
		}
		if p >= models.LabelGTVp && p <= models.LabelGTVn {
			predCount[p-1]++
		}
	}

	voxelVol := gt.Geometry.VoxelVolume()
	m := CaseMetrics{PatientID: patientID}

	for l := 0; l < models.NumForegroundLabels; l++ {
		m.VolGT[l] = float64(gtCount[l]) * voxelVol
		m.VolPred[l] = float64(predCount[l]) * voxelVol
		m.VolSum[l] = m.VolGT[l] + m.VolPred[l]

		// DSC is undefined when both sides are empty; define it as 0 so
		// the case contributes nothing to either TP or VolSum and cannot
		// bias the pooled score.
		if total := gtCount[l] + predCount[l]; total > 0 {
			m.DSC[l] = 2 * float64(interCount[l]) / float64(total)
		}

		m.TP[l] = m.DSC[l] * m.VolSum[l] / 2
	}

	return m
}
