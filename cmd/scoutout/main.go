package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"scoutout/internal/cfg"
	"scoutout/internal/common"
	"scoutout/internal/engine"
	"scoutout/internal/metrics"
	"scoutout/internal/ml"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.1.0-default"
	commit  = ""

	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a YAML config file (overrides " + common.EnvConfigFile + ")",
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// stdout receives command results; logs go to stderr.
var stdout io.Writer = os.Stdout

type appKey struct{}

// app holds the components shared by every command.
type app struct {
	settings cfg.Settings
	registry *prometheus.Registry
	mw       *metrics.MetricsWrapper
	models   *ml.ModelStore
	engine   *engine.Engine
	format   string
	out      io.Writer
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("fatal error")
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:            "scoutout",
		Version:         fmt.Sprintf("%s (commit: %s)", version, commit),
		Usage:           "Real-estate price prediction and investment scoring",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			configFlag,
			debugFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			predictCmd,
			batchCmd,
			trainCmd,
			serveCmd,
			geocodeCmd,
		},
		Before: setup,
	}
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String(configFlag.Name); path != "" {
		os.Setenv(common.EnvConfigFile, path)
	}

	settings, err := cfg.Load()
	if err != nil {
		return ctx, err
	}

	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cmd.Bool(debugFlag.Name) {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	format := cmd.String(formatFlag.Name)
	switch format {
	case formatJSON:
	case formatYAML, "yml":
		format = formatYAML
	default:
		return ctx, fmt.Errorf("unsupported output format %q", format)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewWithRegistry(registry)
	mw := metrics.NewWrapper(m)
	models := ml.NewModelStore(storeConfig(settings), mw)

	a := &app{
		settings: settings,
		registry: registry,
		mw:       mw,
		models:   models,
		engine:   engine.New(models, mw),
		format:   format,
		out:      stdout,
	}
	return context.WithValue(ctx, appKey{}, a), nil
}

func getApp(ctx context.Context) *app {
	return ctx.Value(appKey{}).(*app)
}

func storeConfig(s cfg.Settings) ml.StoreConfig {
	return ml.StoreConfig{
		ModelPath:        s.ModelPath,
		ScalerPath:       s.ScalerPath,
		TrainingDataPath: s.TrainingDataPath,
		TestSize:         s.ForestTestSize,
		Forest: ml.ForestParams{
			Trees:    s.ForestTrees,
			MaxDepth: s.ForestMaxDepth,
			Seed:     s.ForestSeed,
			Workers:  s.ForestWorkers,
		},
	}
}

func (a *app) encode(v any) error {
	if a.format == formatYAML {
		return yaml.NewEncoder(a.out).Encode(v)
	}
	e := json.NewEncoder(a.out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
