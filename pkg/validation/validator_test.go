package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dscagg/internal/models"
)

func testVolume(extent [3]int, spacing [3]float64) *models.LabeledVolume {
	return models.NewLabeledVolume(models.Geometry{
		Spacing:   spacing,
		Direction: models.IdentityDirection(),
		Extent:    extent,
	})
}

// TestValidateMatchingGrids verifies that identical grids pass validation
// without requiring resampling.
func TestValidateMatchingGrids(t *testing.T) {
	gt := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	pred := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})

	needsResampling, err := NewValidator().Validate("CHUM-001", gt, pred)
	require.NoError(t, err)
	assert.False(t, needsResampling)
}

// TestValidateIllegalLabel verifies that a prediction containing a label
// outside {0,1,2} yields an InvalidLabelError naming patient and value.
func TestValidateIllegalLabel(t *testing.T) {
	gt := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	pred := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	pred.Set(1, 2, 3, 3)

	_, err := NewValidator().Validate("CHUM-002", gt, pred)
	require.Error(t, err)

	var labelErr *InvalidLabelError
	require.True(t, errors.As(err, &labelErr))
	assert.Equal(t, "CHUM-002", labelErr.PatientID)
	assert.Equal(t, uint8(3), labelErr.Label)
	assert.Contains(t, err.Error(), "CHUM-002")
	assert.Contains(t, err.Error(), "3")
}

// TestValidateSpacingMismatch verifies that differing voxel spacings are a
// fatal, case-scoped error even when the grids otherwise line up.
func TestValidateSpacingMismatch(t *testing.T) {
	gt := testVolume([3]int{4, 4, 4}, [3]float64{1.0, 1.0, 1.5})
	pred := testVolume([3]int{4, 4, 4}, [3]float64{1.0, 1.0, 1.0})

	_, err := NewValidator().Validate("CHUM-003", gt, pred)
	require.Error(t, err)

	var spacingErr *SpacingMismatchError
	require.True(t, errors.As(err, &spacingErr))
	assert.Equal(t, "CHUM-003", spacingErr.PatientID)
	assert.Equal(t, [3]float64{1.0, 1.0, 1.5}, spacingErr.GroundTruth)
	assert.Equal(t, [3]float64{1.0, 1.0, 1.0}, spacingErr.Prediction)
}

// TestValidateSpacingTolerance verifies that spacing differences within the
// 1e-6 tolerance are accepted.
func TestValidateSpacingTolerance(t *testing.T) {
	gt := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	pred := testVolume([3]int{4, 4, 4}, [3]float64{1 + 1e-9, 1, 1})

	needsResampling, err := NewValidator().Validate("CHUM-004", gt, pred)
	require.NoError(t, err)
	assert.False(t, needsResampling)
}

// TestValidateNeedsResampling verifies the resampling decision for each of
// the three grid properties that can differ.
func TestValidateNeedsResampling(t *testing.T) {
	makeGT := func() *models.LabeledVolume {
		return testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	}

	t.Run("extent mismatch", func(t *testing.T) {
		pred := testVolume([3]int{5, 4, 4}, [3]float64{1, 1, 1})
		needsResampling, err := NewValidator().Validate("p", makeGT(), pred)
		require.NoError(t, err)
		assert.True(t, needsResampling)
	})

	t.Run("origin mismatch", func(t *testing.T) {
		pred := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
		pred.Geometry.Origin = [3]float64{0.5, 0, 0}
		needsResampling, err := NewValidator().Validate("p", makeGT(), pred)
		require.NoError(t, err)
		assert.True(t, needsResampling)
	})

	t.Run("direction mismatch", func(t *testing.T) {
		pred := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
		pred.Geometry.Direction = [3][3]float64{
			{0, -1, 0},
			{1, 0, 0},
			{0, 0, 1},
		}
		needsResampling, err := NewValidator().Validate("p", makeGT(), pred)
		require.NoError(t, err)
		assert.True(t, needsResampling)
	})
}

// TestValidateNotice verifies the informational notice side channel.
func TestValidateNotice(t *testing.T) {
	var notices []string
	v := NewValidator()
	v.Logf = func(format string, args ...any) {
		notices = append(notices, fmt.Sprintf(format, args...))
	}

	gt := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	pred := testVolume([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	_, err := v.Validate("CHUM-005", gt, pred)
	require.NoError(t, err)

	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "no resampling")
	assert.Contains(t, notices[0], "CHUM-005")
}
