package geo

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"scoutout/internal/dataset"
)

const (
	earthRadiusMiles = 3959.0
	nearbyRadius     = 100.0
	nearbyLimit      = 10
)

// City is one row of the cities reference table. Distance is only set on
// results of Nearby.
type City struct {
	City       string  `json:"City"`
	State      string  `json:"State"`
	Population int     `json:"Population"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Distance   float64 `json:"distance"`
}

// LoadCities reads a cities CSV or XLSX file with City, State, Population,
// lat and lon columns (lower-case name/state/population are accepted).
// Rows with unparseable coordinates are skipped.
func LoadCities(path string) ([]City, error) {
	t, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if missing := t.Missing("lat", "lon"); len(missing) > 0 {
		return nil, fmt.Errorf("cities file %s: missing columns %v", path, missing)
	}

	cities := make([]City, 0, t.Len())
	skipped := 0
	for i := 0; i < t.Len(); i++ {
		coords, err := t.Float64s(i, []string{"lat", "lon"})
		if err != nil {
			skipped++
			continue
		}

		c := City{
			City:  firstCell(t, i, "City", "name"),
			State: firstCell(t, i, "State", "state"),
			Lat:   coords[0],
			Lon:   coords[1],
		}
		if pop, err := strconv.ParseFloat(firstCell(t, i, "Population", "population"), 64); err == nil {
			c.Population = int(pop)
		}
		cities = append(cities, c)
	}

	log.Info().Str("file", path).Int("cities", len(cities)).Int("skipped", skipped).Msg("Cities loaded")
	return cities, nil
}

func firstCell(t *dataset.Table, row int, cols ...string) string {
	for _, col := range cols {
		if v, ok := t.Cell(row, col); ok {
			return v
		}
	}
	return ""
}

// Haversine returns the great-circle distance in miles.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Nearby returns up to 10 cities within 100 miles of (lat, lon), closest
// first, with Distance rounded to 0.1 mile.
func Nearby(lat, lon float64, cities []City) []City {
	out := []City{}
	for _, c := range cities {
		d := math.Round(Haversine(lat, lon, c.Lat, c.Lon)*10) / 10
		if d > nearbyRadius {
			continue
		}
		c.Distance = d
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	if len(out) > nearbyLimit {
		out = out[:nearbyLimit]
	}
	return out
}
