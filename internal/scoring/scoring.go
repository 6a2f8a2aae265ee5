// Package scoring implements the rule-based investment metrics and the price
// projection timeline. Every function is pure and works on raw, unscaled
// features. The predicted price is accepted by the score functions but is not
// part of their current weighting.
package scoring

import (
	"math"

	"scoutout/internal/property"
)

type comparison int

const (
	lessThan comparison = iota
	greaterThan
)

// bracket awards score when the input compares to limit; brackets are
// evaluated in order and the first match wins.
type bracket struct {
	cmp   comparison
	limit float64
	score float64
}

type bracketTable struct {
	brackets  []bracket
	otherwise float64
}

func (t bracketTable) score(v float64) float64 {
	for _, b := range t.brackets {
		switch b.cmp {
		case lessThan:
			if v < b.limit {
				return b.score
			}
		case greaterThan:
			if v > b.limit {
				return b.score
			}
		}
	}
	return t.otherwise
}

var (
	investmentAge = bracketTable{
		brackets: []bracket{
			{lessThan, 5, 15},
			{lessThan, 15, 25},
			{lessThan, 30, 20},
		},
		otherwise: 10,
	}
	investmentPopulation = bracketTable{
		brackets: []bracket{
			{lessThan, 10000, 5},
			{lessThan, 50000, 15},
			{lessThan, 200000, 20},
		},
		otherwise: 10,
	}

	riskIncome = bracketTable{
		brackets: []bracket{
			{lessThan, 30000, 30},
			{greaterThan, 100000, 10},
		},
		otherwise: 20,
	}
	riskAge = bracketTable{
		brackets: []bracket{
			{greaterThan, 50, 25},
			{lessThan, 5, 15},
		},
		otherwise: 10,
	}
	riskPopulation = bracketTable{
		brackets: []bracket{
			{lessThan, 5000, 25},
			{greaterThan, 500000, 20},
		},
		otherwise: 10,
	}
)

// InvestmentScore rates investment potential on a 0-100 scale.
func InvestmentScore(f property.FeatureVector, _ float64) float64 {
	incomeRatio := math.Min(f.Income/50000, 2.0)
	income := (incomeRatio - 0.5) * 30

	density := f.Rooms
	if f.Bedrooms > 0 {
		density = f.Rooms / f.Bedrooms
	}
	densityScore := math.Min(density*5, 20)

	total := income + investmentAge.score(f.HouseAge) + densityScore + investmentPopulation.score(f.Population)
	return clamp(total, 0, 100)
}

// AppreciationPotential rates expected price appreciation on a 0-100 scale.
func AppreciationPotential(f property.FeatureVector, _ float64) float64 {
	demand := math.Min(f.Income/40000*20, 30)
	ageFactor := math.Max((50-f.HouseAge)/50*25, 0)
	space := math.Min((f.Rooms+f.Bedrooms)*3, 25)
	popGrowth := math.Min(f.Population/100000*20, 20)

	return clamp(demand+ageFactor+space+popGrowth, 0, 100)
}

// RiskScore rates investment risk on a 0-100 scale; lower is better.
func RiskScore(f property.FeatureVector, _ float64) float64 {
	density := (f.Rooms + f.Bedrooms) / math.Max(f.Population/1000, 1)
	densityRisk := math.Min(density*10, 15)

	total := riskIncome.score(f.Income) + riskAge.score(f.HouseAge) + riskPopulation.score(f.Population) + densityRisk
	return clamp(total, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
