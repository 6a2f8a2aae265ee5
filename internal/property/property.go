// Package property defines the real-estate record types shared by the model,
// scoring, orchestration and storage layers.
package property

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Column names of the reference housing dataset.
const (
	ColIncome     = "Avg. Area Income"
	ColHouseAge   = "Avg. Area House Age"
	ColRooms      = "Avg. Area Number of Rooms"
	ColBedrooms   = "Avg. Area Number of Bedrooms"
	ColPopulation = "Area Population"
	ColPrice      = "Price"
)

// FeatureColumns is the schema order used for fitting and inference.
// Reordering it silently invalidates persisted models.
var FeatureColumns = []string{ColIncome, ColHouseAge, ColRooms, ColBedrooms, ColPopulation}

// FeatureVector holds the five raw area/house features.
type FeatureVector struct {
	Income     float64 `json:"income" yaml:"income"`
	HouseAge   float64 `json:"house_age" yaml:"house_age"`
	Rooms      float64 `json:"rooms" yaml:"rooms"`
	Bedrooms   float64 `json:"bedrooms" yaml:"bedrooms"`
	Population float64 `json:"population" yaml:"population"`
}

// FromSlice builds a FeatureVector from values in FeatureColumns order.
func FromSlice(v []float64) (FeatureVector, error) {
	if len(v) != len(FeatureColumns) {
		return FeatureVector{}, fmt.Errorf("expected %d features, got %d", len(FeatureColumns), len(v))
	}
	return FeatureVector{
		Income:     v[0],
		HouseAge:   v[1],
		Rooms:      v[2],
		Bedrooms:   v[3],
		Population: v[4],
	}, nil
}

// Slice returns the features in FeatureColumns order.
func (f FeatureVector) Slice() []float64 {
	return []float64{f.Income, f.HouseAge, f.Rooms, f.Bedrooms, f.Population}
}

// Validate rejects NaN and infinite feature values.
func (f FeatureVector) Validate() error {
	for i, v := range f.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %q is not finite: %v", FeatureColumns[i], v)
		}
	}
	return nil
}

// ProjectionPoint is one year of a price projection timeline.
type ProjectionPoint struct {
	Year            int                `json:"year" yaml:"year"`
	ProjectedPrice  float64            `json:"projected_price" yaml:"projected_price"`
	ConfidenceLevel float64            `json:"confidence_level" yaml:"confidence_level"`
	MarketFactors   map[string]float64 `json:"market_factors" yaml:"market_factors"`
}

// PredictionResult is the full answer for a single record.
type PredictionResult struct {
	PredictedPrice        float64           `json:"predicted_price" yaml:"predicted_price"`
	Confidence            float64           `json:"confidence" yaml:"confidence"`
	InvestmentScore       float64           `json:"investment_score" yaml:"investment_score"`
	AppreciationPotential float64           `json:"appreciation_potential" yaml:"appreciation_potential"`
	RiskScore             float64           `json:"risk_score" yaml:"risk_score"`
	PriceProjections      []ProjectionPoint `json:"price_projections" yaml:"price_projections"`
}

// Computed batch columns appended to every input row.
const (
	ColPredictedPrice        = "Predicted_Price"
	ColConfidence            = "Confidence"
	ColInvestmentScore       = "Investment_Score"
	ColAppreciationPotential = "Appreciation_Potential"
	ColRiskScore             = "Risk_Score"
)

// ComputedColumns lists the batch output columns in emission order.
var ComputedColumns = []string{
	ColPredictedPrice,
	ColConfidence,
	ColInvestmentScore,
	ColAppreciationPotential,
	ColRiskScore,
}

// BatchRow is an input row augmented with the computed prediction fields.
type BatchRow struct {
	Columns               []string
	Values                []string
	PredictedPrice        float64
	Confidence            float64
	InvestmentScore       float64
	AppreciationPotential float64
	RiskScore             float64
}

// Computed returns the computed fields in ComputedColumns order.
func (r BatchRow) Computed() []float64 {
	return []float64{r.PredictedPrice, r.Confidence, r.InvestmentScore, r.AppreciationPotential, r.RiskScore}
}

// Map returns the row as a flat column->value map. Numeric input cells are
// returned as float64, everything else as the original string.
func (r BatchRow) Map() map[string]any {
	out := make(map[string]any, len(r.Columns)+len(ComputedColumns))
	for i, col := range r.Columns {
		if i >= len(r.Values) {
			out[col] = nil
			continue
		}
		if v, err := strconv.ParseFloat(r.Values[i], 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[col] = v
		} else {
			out[col] = r.Values[i]
		}
	}
	for i, v := range r.Computed() {
		out[ComputedColumns[i]] = v
	}
	return out
}

// MarshalJSON emits the row as a single flat object.
func (r BatchRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// MarshalYAML emits the row as a single flat mapping.
func (r BatchRow) MarshalYAML() (any, error) {
	return r.Map(), nil
}
