package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"dscagg/internal/models"
)

// DegenerateAggregationError reports a foreground label whose volume sum
// is zero across the entire cohort: the label never appears in any ground
// truth or prediction, so its pooled Dice is undefined.
type DegenerateAggregationError struct {
	Label uint8
}

func (e *DegenerateAggregationError) Error() string {
	return fmt.Sprintf("label %d has zero volume sum across the whole cohort, aggregated Dice is undefined", e.Label)
}

// AggregateResult is the cohort-level outcome. DSCagg pools true-positive
// and volume sums over all cases before dividing, which is what makes it
// well defined for cases with empty ground truth or prediction.
type AggregateResult struct {
	// DSCagg is the aggregated Dice per label:
	// 2 * sum(TP) / sum(VolSum) over the whole cohort.
	DSCagg [models.NumForegroundLabels]float64

	// Mean is the arithmetic mean of the two per-label DSCagg values.
	// This is the headline score.
	Mean float64

	// ConventionalMean is the per-label mean of the per-case Dice
	// coefficients over all cases, for comparison with DSCagg.
	ConventionalMean [models.NumForegroundLabels]float64

	// MeanExcludingEmptyGT is the per-label mean of per-case Dice over
	// the cases whose ground-truth volume for that label is non-zero.
	// Zero when every case was excluded.
	MeanExcludingEmptyGT [models.NumForegroundLabels]float64

	// ExcludedPatients lists, per label, the patient IDs left out of
	// MeanExcludingEmptyGT because their ground truth was empty.
	ExcludedPatients [models.NumForegroundLabels][]string

	// NumCases is the number of records that entered the aggregation.
	NumCases int
}

// Aggregate reduces a full cohort of per-case records into the pooled
// DSCagg scores. The input sequence must be complete: DSCagg is a
// function of cohort-wide sums, so partial aggregation of a still-running
// cohort is meaningless. Summation order does not affect the result
// beyond float64 rounding.
func Aggregate(cases []CaseMetrics) (AggregateResult, error) {
	res := AggregateResult{NumCases: len(cases)}

	var sumTP, sumVolSum [models.NumForegroundLabels]float64
	dsc := make([][]float64, models.NumForegroundLabels)
	dscNonEmptyGT := make([][]float64, models.NumForegroundLabels)

	for _, c := range cases {
		for l := 0; l < models.NumForegroundLabels; l++ {
			sumTP[l] += c.TP[l]
			sumVolSum[l] += c.VolSum[l]
			dsc[l] = append(dsc[l], c.DSC[l])
			if c.VolGT[l] > 0 {
				dscNonEmptyGT[l] = append(dscNonEmptyGT[l], c.DSC[l])
			} else {
				res.ExcludedPatients[l] = append(res.ExcludedPatients[l], c.PatientID)
			}
		}
	}

	for l := 0; l < models.NumForegroundLabels; l++ {
		if sumVolSum[l] == 0 {
			return AggregateResult{}, &DegenerateAggregationError{Label: models.ForegroundLabels[l]}
		}
		res.DSCagg[l] = 2 * sumTP[l] / sumVolSum[l]

		res.ConventionalMean[l] = stat.Mean(dsc[l], nil)
		if len(dscNonEmptyGT[l]) > 0 {
			res.MeanExcludingEmptyGT[l] = stat.Mean(dscNonEmptyGT[l], nil)
		}
	}

	res.Mean = stat.Mean(res.DSCagg[:], nil)

	return res, nil
}
