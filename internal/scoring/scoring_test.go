package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoutout/internal/property"
)

var sample = property.FeatureVector{Income: 65000, HouseAge: 5, Rooms: 7, Bedrooms: 4, Population: 36000}

func TestInvestmentScore_Sample(t *testing.T) {
	// 24 income + 25 age + 8.75 density + 15 population
	assert.InDelta(t, 72.75, InvestmentScore(sample, 1_000_000), 1e-9)
}

func TestInvestmentScore_ZeroBedroomsUsesRooms(t *testing.T) {
	f := property.FeatureVector{Income: 50000, HouseAge: 10, Rooms: 3, Bedrooms: 0, Population: 100000}

	// 15 income + 25 age + 15 density (rooms*5) + 20 population
	score := InvestmentScore(f, 0)
	assert.False(t, math.IsNaN(score))
	assert.InDelta(t, 75.0, score, 1e-9)
}

func TestInvestmentScore_AgeBrackets(t *testing.T) {
	tests := []struct {
		age  float64
		want float64
	}{
		{0, 15},
		{4.99, 15},
		{5, 25},
		{14.99, 25},
		{15, 20},
		{29.99, 20},
		{30, 10},
		{80, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, investmentAge.score(tt.age), "age %v", tt.age)
	}
}

func TestInvestmentScore_PopulationBrackets(t *testing.T) {
	tests := []struct {
		population float64
		want       float64
	}{
		{9999, 5},
		{10000, 15},
		{49999, 15},
		{50000, 20},
		{199999, 20},
		{200000, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, investmentPopulation.score(tt.population), "population %v", tt.population)
	}
}

func TestAppreciationPotential_Sample(t *testing.T) {
	// 30 demand (capped) + 22.5 age + 25 space (capped) + 7.2 population
	assert.InDelta(t, 84.7, AppreciationPotential(sample, 0), 1e-9)
}

func TestAppreciationPotential_OldHouseHasNoAgeFactor(t *testing.T) {
	f := property.FeatureVector{Income: 0, HouseAge: 90, Rooms: 0, Bedrooms: 0, Population: 0}
	assert.Equal(t, 0.0, AppreciationPotential(f, 0))
}

func TestRiskScore_Sample(t *testing.T) {
	// 20 income + 10 age + 10 population + 11/36*10 density
	assert.InDelta(t, 40+110.0/36, RiskScore(sample, 0), 1e-9)
}

func TestRiskScore_Brackets(t *testing.T) {
	tests := []struct {
		name string
		f    property.FeatureVector
		want float64
	}{
		{
			name: "low income, new house, tiny area",
			f:    property.FeatureVector{Income: 20000, HouseAge: 2, Population: 1000},
			want: 30 + 15 + 25,
		},
		{
			name: "high income, old house, large area",
			f:    property.FeatureVector{Income: 150000, HouseAge: 60, Population: 600000},
			want: 10 + 25 + 20,
		},
		{
			name: "boundaries fall into the middle bracket",
			f:    property.FeatureVector{Income: 30000, HouseAge: 5, Population: 5000},
			want: 20 + 10 + 10,
		},
		{
			name: "upper boundaries fall into the middle bracket",
			f:    property.FeatureVector{Income: 100000, HouseAge: 50, Rooms: 10, Bedrooms: 5, Population: 500000},
			want: 20 + 10 + 10 + 15.0/500*10,
		},
		{
			name: "population below 1000 uses divisor of one",
			f:    property.FeatureVector{Income: 50000, HouseAge: 10, Rooms: 4, Bedrooms: 2, Population: 500},
			want: 20 + 10 + 25 + 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RiskScore(tt.f, 0), 1e-9)
		})
	}
}

func TestScores_StayWithinBounds(t *testing.T) {
	inputs := []property.FeatureVector{
		{},
		{Income: 10_000_000, HouseAge: 5, Rooms: 7, Bedrooms: 4, Population: 36000},
		{Income: 10_000_000, HouseAge: 1000, Rooms: 1e6, Bedrooms: 1e6, Population: 1e9},
		{Income: 1, HouseAge: 0, Rooms: 1e6, Bedrooms: 0, Population: 1},
		{Income: 500000, HouseAge: 100, Rooms: 20, Bedrooms: 10, Population: 1_000_000},
	}

	for _, f := range inputs {
		for name, fn := range map[string]func(property.FeatureVector, float64) float64{
			"investment":   InvestmentScore,
			"appreciation": AppreciationPotential,
			"risk":         RiskScore,
		} {
			got := fn(f, 0)
			assert.GreaterOrEqual(t, got, 0.0, "%s %+v", name, f)
			assert.LessOrEqual(t, got, 100.0, "%s %+v", name, f)
		}
	}
}

func TestScores_IgnorePredictedPrice(t *testing.T) {
	assert.Equal(t, InvestmentScore(sample, 1), InvestmentScore(sample, 9e9))
	assert.Equal(t, AppreciationPotential(sample, 1), AppreciationPotential(sample, 9e9))
	assert.Equal(t, RiskScore(sample, 1), RiskScore(sample, 9e9))
}

func TestBaseRate_Clamped(t *testing.T) {
	low := BaseRate(property.FeatureVector{Income: 0, HouseAge: 1000, Population: 0})
	assert.Equal(t, minAnnualRate, low.Rate)

	high := BaseRate(property.FeatureVector{Income: 1e7, HouseAge: 0, Population: 1e7})
	assert.InDelta(t, 0.075, high.Rate, 1e-12)

	s := BaseRate(sample)
	assert.InDelta(t, 0.03+0.026+0.0054, s.Rate, 1e-12)
	assert.InDelta(t, 0.026, s.IncomeBoost, 1e-12)
	assert.Equal(t, 0.0, s.AgePenalty)
}

func TestProjectTimeline_Sample(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	points := ProjectTimeline(sample, 1_200_000, 3, now)

	require.Len(t, points, 3)
	assert.Equal(t, []int{2027, 2028, 2029}, []int{points[0].Year, points[1].Year, points[2].Year})
	assert.Equal(t, []float64{0.9, 0.85, 0.8}, []float64{
		points[0].ConfidenceLevel, points[1].ConfidenceLevel, points[2].ConfidenceLevel,
	})

	rate := 0.0614 + 0.01*math.Sin(0.5)
	assert.InDelta(t, 1_200_000*(1+rate), points[0].ProjectedPrice, 0.01)

	factors := points[0].MarketFactors
	assert.Equal(t, 6.14, factors[FactorBaseRate])
	assert.Equal(t, 2.6, factors[FactorIncomeBoost])
	assert.Equal(t, 0.0, factors[FactorAgePenalty])
	assert.Equal(t, 0.54, factors[FactorLocationBoost])
	assert.Equal(t, 0.48, factors[FactorMarketCycle])
}

func TestProjectTimeline_Invariants(t *testing.T) {
	now := time.Now()
	for _, years := range []int{1, 5, 10, 25} {
		points := ProjectTimeline(sample, 500_000, years, now)
		require.Len(t, points, years)

		for i, p := range points {
			assert.GreaterOrEqual(t, p.ConfidenceLevel, 0.5)
			assert.LessOrEqual(t, p.ConfidenceLevel, 0.95)
			assert.Len(t, p.MarketFactors, 5)
			if i == 0 {
				assert.Equal(t, now.Year()+1, p.Year)
				continue
			}
			assert.Equal(t, points[i-1].Year+1, p.Year)
			assert.LessOrEqual(t, p.ConfidenceLevel, points[i-1].ConfidenceLevel)
		}
	}
}

func TestProjectTimeline_NoYears(t *testing.T) {
	assert.Empty(t, ProjectTimeline(sample, 500_000, 0, time.Now()))
	assert.Empty(t, ProjectTimeline(sample, 500_000, -3, time.Now()))
}
