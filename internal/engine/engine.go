// Package engine ties the model store and the scoring rules together into
// single-record and batch predictions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"scoutout/internal/common"
	"scoutout/internal/dataset"
	"scoutout/internal/ml"
	"scoutout/internal/property"
	"scoutout/internal/scoring"
)

// MetricsInterface defines metrics methods needed by the engine
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	PredictionScoresObserve(float64)
	BatchRowsInc()
	BatchFailuresInc()
}

// ModelSource hands out the fitted model and scaler.
type ModelSource interface {
	EnsureModel(ctx context.Context) (*ml.Forest, *ml.Scaler, error)
}

// MissingColumnsError reports required batch columns absent from the input.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing columns: " + strings.Join(e.Columns, ", ")
}

// ProgressFunc is called after each batch row with the rows done so far.
type ProgressFunc func(done, total int)

// BatchResult holds one scored row per input row, in input order.
type BatchResult struct {
	Columns []string
	Rows    []property.BatchRow
}

// Engine prices, scores and projects properties using the current model.
type Engine struct {
	models  ModelSource
	metrics MetricsInterface
	now     func() time.Time
}

// New creates an engine. metrics may be nil.
func New(models ModelSource, metrics MetricsInterface) *Engine {
	return &Engine{models: models, metrics: metrics, now: time.Now}
}

// Predict prices a single record, scores it and projects its price over years.
func (e *Engine) Predict(ctx context.Context, f property.FeatureVector, years int) (result *property.PredictionResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("prediction panicked: %v", r)
		}
		e.record(start, result, err)
	}()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	if years < 0 || years > common.MaxTimelineYears {
		return nil, fmt.Errorf("projection years must be between 0 and %d, got %d", common.MaxTimelineYears, years)
	}

	model, scaler, err := e.models.EnsureModel(ctx)
	if err != nil {
		return nil, err
	}

	price, confidence, err := ml.PredictWithConfidence(f, model, scaler)
	if err != nil {
		return nil, err
	}

	return &property.PredictionResult{
		PredictedPrice:        price,
		Confidence:            confidence,
		InvestmentScore:       scoring.InvestmentScore(f, price),
		AppreciationPotential: scoring.AppreciationPotential(f, price),
		RiskScore:             scoring.RiskScore(f, price),
		PriceProjections:      scoring.ProjectTimeline(f, price, years, e.now()),
	}, nil
}

// PredictWithScoring is Predict for callers that only need a result or
// nothing. Failures are logged and nil is returned.
func (e *Engine) PredictWithScoring(ctx context.Context, f property.FeatureVector, years int) *property.PredictionResult {
	result, err := e.Predict(ctx, f, years)
	if err != nil {
		log.Error().Err(err).Interface("features", f).Msg("Error in prediction")
		return nil
	}
	return result
}

// BatchPredict scores every row of table. Rows are scaled and predicted
// together; any bad cell aborts the whole batch.
func (e *Engine) BatchPredict(ctx context.Context, table *dataset.Table, progress ProgressFunc) (result *BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("batch prediction panicked: %v", r)
		}
		if err != nil && e.metrics != nil {
			e.metrics.BatchFailuresInc()
		}
	}()

	if missing := table.Missing(property.FeatureColumns...); len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	result = &BatchResult{
		Columns: append(append([]string{}, table.Columns...), property.ComputedColumns...),
		Rows:    make([]property.BatchRow, 0, table.Len()),
	}
	if table.Len() == 0 {
		return result, nil
	}

	model, scaler, err := e.models.EnsureModel(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := table.Matrix(property.FeatureColumns)
	if err != nil {
		return nil, fmt.Errorf("batch features: %w", err)
	}
	scaled, err := scaler.Transform(raw)
	if err != nil {
		return nil, err
	}

	total := table.Len()
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := property.FromSlice(raw.RawRowView(i))
		if err != nil {
			return nil, err
		}
		price, confidence := ml.PredictRow(model, scaled.RawRowView(i))

		result.Rows = append(result.Rows, property.BatchRow{
			Columns:               table.Columns,
			Values:                table.Rows[i],
			PredictedPrice:        price,
			Confidence:            confidence,
			InvestmentScore:       scoring.InvestmentScore(f, price),
			AppreciationPotential: scoring.AppreciationPotential(f, price),
			RiskScore:             scoring.RiskScore(f, price),
		})

		if e.metrics != nil {
			e.metrics.BatchRowsInc()
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	log.Info().Int("rows", total).Msg("Batch prediction complete")
	return result, nil
}

// IsMissingColumns reports whether err is a MissingColumnsError and returns it.
func IsMissingColumns(err error) (*MissingColumnsError, bool) {
	var mce *MissingColumnsError
	ok := errors.As(err, &mce)
	return mce, ok
}

func (e *Engine) record(start time.Time, result *property.PredictionResult, err error) {
	if e.metrics == nil {
		return
	}
	if err != nil {
		e.metrics.PredictionFailuresInc()
		return
	}
	e.metrics.PredictionsInc()
	e.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
	e.metrics.PredictionScoresObserve(result.Confidence)
}
