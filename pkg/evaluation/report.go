package evaluation

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"dscagg/internal/models"
)

// WriteCSV writes the per-case metric records to path, one row per case,
// followed by the aggregate row. Values are written at full float64
// precision; any rounding is left to whoever reads the file.
func WriteCSV(path string, res *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"patient"}
	for _, label := range models.ForegroundLabels {
		l := strconv.Itoa(int(label))
		header = append(header,
			"dsc_"+l, "vol_gt_"+l, "vol_pred_"+l, "vol_sum_"+l, "tp_"+l)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, c := range res.Cases {
		row := []string{c.PatientID}
		for l := 0; l < models.NumForegroundLabels; l++ {
			row = append(row,
				formatFloat(c.DSC[l]),
				formatFloat(c.VolGT[l]),
				formatFloat(c.VolPred[l]),
				formatFloat(c.VolSum[l]),
				formatFloat(c.TP[l]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	aggRow := []string{"AGGREGATE"}
	for l := 0; l < models.NumForegroundLabels; l++ {
		aggRow = append(aggRow, formatFloat(res.Aggregate.DSCagg[l]), "", "", "", "")
	}
	if err := w.Write(aggRow); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
