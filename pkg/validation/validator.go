// Package validation performs the per-case pre-flight checks that must
// pass before a ground-truth/prediction pair can be compared: label
// legality and voxel-grid compatibility.
package validation

import (
	"fmt"

	"dscagg/internal/models"
)

// Tolerance is the absolute per-component tolerance used for all geometric
// comparisons (spacing, origin, direction).
const Tolerance = 1e-6

// InvalidLabelError reports a prediction voxel whose value lies outside
// the legal label set {0,1,2}. It aborts the case, not the cohort; the
// caller chooses whether one bad case fails the whole batch.
type InvalidLabelError struct {
	PatientID string
	Label     uint8
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("patient %s: prediction contains illegal label value %d (legal values are 0, 1, 2)",
		e.PatientID, e.Label)
}

// SpacingMismatchError reports ground-truth and prediction volumes whose
// voxel spacings differ beyond Tolerance. A spacing mismatch cannot be
// reconciled by resampling, so the case is unrecoverable.
type SpacingMismatchError struct {
	PatientID   string
	GroundTruth [3]float64
	Prediction  [3]float64
}

func (e *SpacingMismatchError) Error() string {
	return fmt.Sprintf("patient %s: voxel spacing mismatch, ground truth %v vs prediction %v",
		e.PatientID, e.GroundTruth, e.Prediction)
}

// Validator checks a volume pair for label legality and grid
// compatibility and decides whether the prediction needs resampling onto
// the ground-truth grid.
type Validator struct {
	// Logf receives informational notices, e.g. whether resampling will
	// run for a case. A nil Logf keeps the validator silent.
	Logf func(format string, args ...any)
}

// NewValidator returns a silent validator. Assign Logf to receive
// diagnostic notices.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the pair for the given patient. It returns
// needsResampling=true when the prediction grid (extent, direction or
// origin) differs from the ground truth's. Spacing is checked separately
// and unconditionally: any spacing difference beyond Tolerance is a
// SpacingMismatchError regardless of the grids otherwise matching.
// Neither input volume is modified.
func (v *Validator) Validate(patientID string, gt, pred *models.LabeledVolume) (needsResampling bool, err error) {
	for _, label := range pred.Data {
		if label > models.LabelGTVn {
			return false, &InvalidLabelError{PatientID: patientID, Label: label}
		}
	}

	if !gt.Geometry.SpacingEquals(pred.Geometry, Tolerance) {
		return false, &SpacingMismatchError{
			PatientID:   patientID,
			GroundTruth: gt.Geometry.Spacing,
			Prediction:  pred.Geometry.Spacing,
		}
	}

	needsResampling = !gt.Geometry.SameGrid(pred.Geometry, Tolerance)
	if needsResampling {
		v.logf("patient %s: prediction grid differs from ground truth, resampling", patientID)
	} else {
		v.logf("patient %s: grids match, no resampling needed", patientID)
	}

	return needsResampling, nil
}

func (v *Validator) logf(format string, args ...any) {
	if v.Logf != nil {
		v.Logf(format, args...)
	}
}
