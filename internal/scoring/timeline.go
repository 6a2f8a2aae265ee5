package scoring

import (
	"math"
	"time"

	"scoutout/internal/property"
)

// Market factor keys reported on every projection point, as percentages.
const (
	FactorBaseRate      = "base_rate"
	FactorIncomeBoost   = "income_boost"
	FactorAgePenalty    = "age_penalty"
	FactorLocationBoost = "location_boost"
	FactorMarketCycle   = "market_cycle"
)

const (
	baseAppreciation = 0.03
	minAnnualRate    = 0.01
	maxAnnualRate    = 0.08
	maxConfidence    = 0.95
	minConfidence    = 0.5
	confidenceDecay  = 0.05
	cycleAmplitude   = 0.01
	cycleFrequency   = 0.5
)

// AnnualRate holds the feature-driven components of the yearly appreciation rate.
type AnnualRate struct {
	Rate          float64
	IncomeBoost   float64
	AgePenalty    float64
	LocationBoost float64
}

// BaseRate computes the clamped annual appreciation rate for f.
func BaseRate(f property.FeatureVector) AnnualRate {
	income := math.Min(f.Income/50000, 1.5) * 0.02
	age := math.Max(0, (f.HouseAge-20)/100) * 0.01
	location := math.Min(f.Population/100000, 1.0) * 0.015

	return AnnualRate{
		Rate:          clamp(baseAppreciation+income-age+location, minAnnualRate, maxAnnualRate),
		IncomeBoost:   income,
		AgePenalty:    age,
		LocationBoost: location,
	}
}

// ProjectTimeline compounds basePrice forward one point per year for the
// given horizon, starting the calendar at now.Year()+1.
func ProjectTimeline(f property.FeatureVector, basePrice float64, years int, now time.Time) []property.ProjectionPoint {
	if years <= 0 {
		return []property.ProjectionPoint{}
	}

	rate := BaseRate(f)
	projections := make([]property.ProjectionPoint, 0, years)

	for t := 1; t <= years; t++ {
		cycle := cycleAmplitude * math.Sin(float64(t)*cycleFrequency)
		yearRate := rate.Rate + cycle

		projections = append(projections, property.ProjectionPoint{
			Year:            now.Year() + t,
			ProjectedPrice:  round(basePrice*math.Pow(1+yearRate, float64(t)), 2),
			ConfidenceLevel: round(math.Max(minConfidence, maxConfidence-float64(t)*confidenceDecay), 3),
			MarketFactors: map[string]float64{
				FactorBaseRate:      round(rate.Rate*100, 2),
				FactorIncomeBoost:   round(rate.IncomeBoost*100, 2),
				FactorAgePenalty:    round(rate.AgePenalty*100, 2),
				FactorLocationBoost: round(rate.LocationBoost*100, 2),
				FactorMarketCycle:   round(cycle*100, 2),
			},
		})
	}

	return projections
}
