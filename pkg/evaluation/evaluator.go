// Package evaluation orchestrates the cohort run: it pairs ground-truth
// and prediction volumes per patient, pushes each case through
// validation, resampling and metric extraction in parallel, and reduces
// the per-case records into the aggregated Dice scores.
package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"dscagg/internal/models"
	"dscagg/pkg/metrics"
	"dscagg/pkg/resample"
	"dscagg/pkg/validation"
	"dscagg/pkg/visualization"
)

// VolumeLoader decodes a labeled volume from a filesystem path. The
// standard implementation is dicomio.SeriesLoader; tests substitute an
// in-memory one.
type VolumeLoader interface {
	Load(path string) (*models.LabeledVolume, error)
}

// Case is one resolved patient pairing.
type Case struct {
	PatientID       string
	GroundTruthPath string
	PredictionPath  string
}

// CaseFailure records a case that could not be evaluated, with the error
// carrying the patient context.
type CaseFailure struct {
	PatientID string
	Err       error
}

// Result is the outcome of a cohort run: the pooled aggregate, the full
// ordered sequence of per-case records, and the cases that failed and
// were skipped (always empty when FailFast is set, since the first
// failure aborts the run).
type Result struct {
	Aggregate metrics.AggregateResult
	Cases     []metrics.CaseMetrics
	Failures  []CaseFailure
}

// Params configures an Evaluator.
type Params struct {
	// Loader supplies decoded volumes for each case's paths.
	Loader VolumeLoader

	// NumCores bounds how many cases are evaluated concurrently.
	// Values below 1 mean a single worker.
	NumCores int

	// FailFast aborts the run on the first case error instead of
	// recording it and continuing with the remaining cases.
	FailFast bool

	// SaveOverlays enables per-slice QC overlay export for every
	// evaluated case, written under OverlayDir/<patientID>/.
	SaveOverlays bool

	// OverlayDir is the root directory for QC overlays. Only used when
	// SaveOverlays is true.
	OverlayDir string

	// Logf receives progress and diagnostic lines; nil disables logging.
	Logf func(format string, args ...any)
}

// Evaluator runs the per-case pipeline and the final aggregation.
type Evaluator struct {
	params    *Params
	validator *validation.Validator
}

// NewEvaluator creates an evaluator with the provided parameters.
func NewEvaluator(params *Params) *Evaluator {
	v := validation.NewValidator()
	v.Logf = params.Logf
	return &Evaluator{params: params, validator: v}
}

// DiscoverCases scans the ground-truth directory for entries ending in
// gtSuffix; each defines a patient ID, whose prediction must exist at
// predDir/<id><predSuffix>. A missing counterpart is reported as an
// error naming the patient. Cases are returned sorted by patient ID.
func (e *Evaluator) DiscoverCases(gtDir, predDir, gtSuffix, predSuffix string) ([]Case, error) {
	entries, err := os.ReadDir(gtDir)
	if err != nil {
		return nil, fmt.Errorf("reading ground-truth directory: %w", err)
	}

	var cases []Case
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, gtSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, gtSuffix)

		predPath := filepath.Join(predDir, id+predSuffix)
		if _, err := os.Stat(predPath); err != nil {
			return nil, fmt.Errorf("patient %s: no prediction at %s: %w", id, predPath, err)
		}

		cases = append(cases, Case{
			PatientID:       id,
			GroundTruthPath: filepath.Join(gtDir, name),
			PredictionPath:  predPath,
		})
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("no ground-truth entries with suffix %q in %s", gtSuffix, gtDir)
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].PatientID < cases[j].PatientID })
	return cases, nil
}

// Run evaluates every case and aggregates the results. Cases run
// concurrently up to NumCores workers; the aggregation waits for all of
// them, since DSCagg needs the complete cohort. Case order in the result
// follows the input order regardless of completion order.
func (e *Evaluator) Run(ctx context.Context, cases []Case) (*Result, error) {
	records := make([]*metrics.CaseMetrics, len(cases))
	failures := make([]*CaseFailure, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	workers := e.params.NumCores
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			m, err := e.evaluateCase(c)
			if err != nil {
				if e.params.FailFast {
					return err
				}
				e.logf("patient %s: skipped: %v", c.PatientID, err)
				failures[i] = &CaseFailure{PatientID: c.PatientID, Err: err}
				return nil
			}

			records[i] = &m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for i := range cases {
		if records[i] != nil {
			res.Cases = append(res.Cases, *records[i])
		}
		if failures[i] != nil {
			res.Failures = append(res.Failures, *failures[i])
		}
	}

	agg, err := metrics.Aggregate(res.Cases)
	if err != nil {
		return nil, err
	}
	res.Aggregate = agg

	e.logf("evaluated %d cases (%d failed), DSCagg mean %.4f",
		len(res.Cases), len(res.Failures), agg.Mean)
	return res, nil
}

// EvaluateCase runs the per-case pipeline for an already-decoded pair.
// Exposed for callers that supply volumes directly instead of through a
// loader.
func (e *Evaluator) EvaluateCase(patientID string, gt, pred *models.LabeledVolume) (metrics.CaseMetrics, error) {
	needsResampling, err := e.validator.Validate(patientID, gt, pred)
	if err != nil {
		return metrics.CaseMetrics{}, err
	}

	if needsResampling {
		pred, err = resample.ToGrid(gt, pred)
		if err != nil {
			return metrics.CaseMetrics{}, fmt.Errorf("patient %s: %w", patientID, err)
		}
	} else {
		pred = resample.NormalizeSpacing(gt, pred)
	}

	if e.params.SaveOverlays {
		// Overlay failures are reported but never fail the case.
		if err := e.saveOverlays(patientID, gt, pred); err != nil {
			e.logf("patient %s: saving QC overlays: %v", patientID, err)
		}
	}

	return metrics.Extract(patientID, gt, pred), nil
}

func (e *Evaluator) saveOverlays(patientID string, gt, pred *models.LabeledVolume) error {
	viewer, err := visualization.NewViewer(gt, pred)
	if err != nil {
		return err
	}
	return viewer.SaveOverlaySequence(filepath.Join(e.params.OverlayDir, patientID))
}

func (e *Evaluator) evaluateCase(c Case) (metrics.CaseMetrics, error) {
	gt, err := e.params.Loader.Load(c.GroundTruthPath)
	if err != nil {
		return metrics.CaseMetrics{}, fmt.Errorf("patient %s: loading ground truth: %w", c.PatientID, err)
	}
	pred, err := e.params.Loader.Load(c.PredictionPath)
	if err != nil {
		return metrics.CaseMetrics{}, fmt.Errorf("patient %s: loading prediction: %w", c.PatientID, err)
	}

	return e.EvaluateCase(c.PatientID, gt, pred)
}

func (e *Evaluator) logf(format string, args ...any) {
	if e.params.Logf != nil {
		e.params.Logf(format, args...)
	}
}
