package ml

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"scoutout/internal/property"
)

// PredictWithConfidence scales f, predicts its price and derives a confidence
// from how much the ensemble members disagree.
func PredictWithConfidence(f property.FeatureVector, model Ensemble, scaler Transformer) (float64, float64, error) {
	if model == nil || scaler == nil {
		return 0, 0, fmt.Errorf("predict: model %w", ErrNotFitted)
	}

	scaled, err := scaler.TransformRow(f.Slice())
	if err != nil {
		return 0, 0, err
	}

	price, confidence := PredictRow(model, scaled)
	return price, confidence, nil
}

// PredictRow returns the ensemble prediction and confidence for an already
// scaled row.
func PredictRow(model Ensemble, row []float64) (float64, float64) {
	estimators := model.Estimators()
	sub := make(stats.Float64Data, len(estimators))
	for i, e := range estimators {
		sub[i] = e.Predict(row)
	}
	return model.Predict(row), Confidence(sub)
}

// Confidence is 1 - std/mean over per-estimator predictions, clamped to
// [0, 1]. A zero or undefined mean yields 0.
func Confidence(predictions []float64) float64 {
	mean, err := stats.Mean(predictions)
	if err != nil || mean == 0 || math.IsNaN(mean) {
		return 0
	}

	std, err := stats.StandardDeviationPopulation(predictions)
	if err != nil || math.IsNaN(std) {
		return 0
	}

	c := 1 - std/mean
	return math.Max(0, math.Min(1, c))
}
