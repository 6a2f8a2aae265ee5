package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"scoutout/internal/common"
	"scoutout/internal/dataset"
	"scoutout/internal/geo"
	"scoutout/internal/ml"
	"scoutout/internal/property"
	"scoutout/internal/report"
)

var (
	outputFlag = &cli.StringFlag{
		Name:  "output",
		Usage: "Write scored rows to a .csv, .json or .xlsx file instead of stdout",
	}

	summaryFlag = &cli.BoolFlag{
		Name:  "summary",
		Usage: "Print batch statistics instead of the scored rows",
	}

	topFlag = &cli.IntFlag{
		Name:  "top",
		Usage: "Only list the N most important features (0 lists all)",
	}

	predictCmd = &cli.Command{
		Name:      "predict",
		Usage:     "Predict the price, scores and projections of one property",
		ArgsUsage: "<income> <house_age> <rooms> <bedrooms> <population> [years]",
		Action:    cmdPredict,
	}

	batchCmd = &cli.Command{
		Name:      "batch",
		Usage:     "Score every row of a CSV or XLSX file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			outputFlag,
			summaryFlag,
		},
		Action: cmdBatch,
	}

	trainCmd = &cli.Command{
		Name:  "train",
		Usage: "Load or train the model and print its metadata",
		Flags: []cli.Flag{
			topFlag,
		},
		Action: cmdTrain,
	}

	geocodeCmd = &cli.Command{
		Name:      "geocode",
		Usage:     "Resolve an address to coordinates",
		ArgsUsage: "<address>",
		Action:    cmdGeocode,
	}
)

// errorOutput is printed in place of a result when a command fails after
// its arguments were accepted.
type errorOutput struct {
	Error string `json:"error" yaml:"error"`
}

func cmdPredict(ctx context.Context, cmd *cli.Command) error {
	a := getApp(ctx)

	args := cmd.Args().Slice()
	if len(args) < 5 || len(args) > 6 {
		return fmt.Errorf("predict expects 5 features and optional years, got %d arguments", len(args))
	}

	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q", property.FeatureColumns[i], args[i])
		}
		values[i] = v
	}
	features, err := property.FromSlice(values)
	if err != nil {
		return err
	}

	years := a.settings.TimelineYears
	if len(args) == 6 {
		years, err = strconv.Atoi(args[5])
		if err != nil || years < 0 || years > common.MaxTimelineYears {
			return fmt.Errorf("invalid years %q", args[5])
		}
	}

	result := a.engine.PredictWithScoring(ctx, features, years)
	if result == nil {
		return a.encode(errorOutput{Error: common.ErrMsgPredictionFailed})
	}
	return a.encode(result)
}

func cmdBatch(ctx context.Context, cmd *cli.Command) error {
	a := getApp(ctx)

	if cmd.Args().Len() != 1 {
		return fmt.Errorf("batch expects exactly one file path")
	}
	path := cmd.Args().First()

	table, err := dataset.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to read batch file")
		return a.encode(errorOutput{Error: err.Error()})
	}

	start := time.Now()
	result, err := a.engine.BatchPredict(ctx, table, func(done, total int) {
		if done%1000 == 0 || done == total {
			log.Debug().Int("done", done).Int("total", total).Msg("Batch progress")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Batch prediction failed")
		return a.encode(errorOutput{Error: err.Error()})
	}
	log.Info().Str("file", path).Int("rows", len(result.Rows)).Dur("duration", time.Since(start)).Msg("Batch scored")

	if out := cmd.String(outputFlag.Name); out != "" {
		if err := report.WriteBatch(out, result); err != nil {
			return err
		}
	}

	if cmd.Bool(summaryFlag.Name) {
		return a.encode(report.Summarize(result))
	}
	if cmd.String(outputFlag.Name) != "" {
		return nil
	}
	rows := result.Rows
	if rows == nil {
		rows = []property.BatchRow{}
	}
	return a.encode(rows)
}

func cmdTrain(ctx context.Context, cmd *cli.Command) error {
	a := getApp(ctx)

	if _, _, err := a.models.EnsureModel(ctx); err != nil {
		return err
	}
	meta := a.models.Metadata()
	if meta == nil {
		log.Warn().Str("model_path", a.settings.ModelPath).Msg("Model loaded without metadata")
		return a.encode(map[string]string{"model_path": a.settings.ModelPath})
	}

	top := cmd.Int(topFlag.Name)
	if top < 0 {
		return fmt.Errorf("invalid top %d", top)
	}
	if top > 0 {
		trimmed := *meta
		trimmed.FeatureImportance = ml.TopFeatures(meta.FeatureImportance, top)
		meta = &trimmed
	}
	return a.encode(meta)
}

func cmdGeocode(ctx context.Context, cmd *cli.Command) error {
	a := getApp(ctx)

	address := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if address == "" {
		return fmt.Errorf("address is required")
	}

	g := geo.NewGeocoder(a.settings.GeocoderURL, a.settings.GeocoderUserAgent, a.settings.GeocoderTimeout, a.mw)
	return a.encode(g.Geocode(ctx, address))
}
