package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scoutout/internal/property"
)

var streets = []string{"Oak", "Maple", "Cedar", "Pine", "Elm", "Lake", "Hill", "Park", "Main", "River"}

var suffixes = []string{"St", "Ave", "Rd", "Blvd", "Ln", "Dr"}

func main() {
	var (
		output = flag.String("output", "data/USA_Housing.csv", "Output CSV path")
		rows   = flag.Int("rows", 5000, "Number of rows to generate")
		seed   = flag.Int64("seed", 42, "Random seed")
		noise  = flag.Float64("noise", 100000, "Standard deviation of the price noise")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *rows < 1 {
		log.Fatal().Int("rows", *rows).Msg("rows must be positive")
	}

	fmt.Printf("Generating housing data...\n")
	fmt.Printf("  Rows: %d\n", *rows)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *output)

	if err := generate(*output, *rows, *seed, *noise); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate data")
	}

	fmt.Printf("✓ Generated %d rows in %s\n", *rows, *output)
}

func generate(path string, rows int, seed int64, noise float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := append(append([]string{}, property.FeatureColumns...), property.ColPrice, "Address")
	if err := writer.Write(header); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < rows; i++ {
		income := positive(rng.NormFloat64()*10650 + 68580)
		age := positive(rng.NormFloat64()*0.99 + 5.98)
		rooms := math.Max(1, rng.NormFloat64()*1.0+6.99)
		bedrooms := 2 + rng.Float64()*4.5
		population := positive(rng.NormFloat64()*9925 + 36160)

		// linear market model with gaussian noise
		price := -2_640_000 + 21.6*income + 165_600*age + 121_600*rooms + 2_200*bedrooms + 15.2*population
		price = math.Max(15_000, price+rng.NormFloat64()*noise)

		record := []string{
			format(income),
			format(age),
			format(rooms),
			format(bedrooms),
			format(population),
			format(price),
			fmt.Sprintf("%d %s %s", 100+rng.Intn(9900), streets[rng.Intn(len(streets))], suffixes[rng.Intn(len(suffixes))]),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func positive(v float64) float64 {
	return math.Max(v, 1)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
