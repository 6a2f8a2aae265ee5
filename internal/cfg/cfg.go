package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"scoutout/internal/common"
)

type Settings struct {
	ModelPath        string
	ScalerPath       string
	TrainingDataPath string

	ForestTrees    int
	ForestMaxDepth int
	ForestSeed     int64
	ForestTestSize float64
	ForestWorkers  int

	TimelineYears int

	HistoryDriver string
	DataPath      string
	PostgresDSN   string

	ServerPort int

	GeocoderURL       string
	GeocoderTimeout   time.Duration
	GeocoderUserAgent string
	CitiesPath        string

	LogLevel string
}

type ConfigFile struct {
	Model struct {
		ModelPath        string `yaml:"modelPath"`
		ScalerPath       string `yaml:"scalerPath"`
		TrainingDataPath string `yaml:"trainingDataPath"`
	} `yaml:"model"`

	Forest struct {
		Trees    int     `yaml:"trees"`
		MaxDepth int     `yaml:"maxDepth"`
		Seed     int64   `yaml:"seed"`
		TestSize float64 `yaml:"testSize"`
		Workers  int     `yaml:"workers"`
	} `yaml:"forest"`

	Scoring struct {
		TimelineYears int `yaml:"timelineYears"`
	} `yaml:"scoring"`

	History struct {
		Driver      string `yaml:"driver"`
		DataPath    string `yaml:"dataPath"`
		PostgresDSN string `yaml:"postgresDSN"`
	} `yaml:"history"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Geocoder struct {
		URL        string `yaml:"url"`
		Timeout    string `yaml:"timeout"`
		UserAgent  string `yaml:"userAgent"`
		CitiesPath string `yaml:"citiesPath"`
	} `yaml:"geocoder"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads settings from the YAML file named by CONFIG_FILE, or from the
// environment alone. A .env file in the working directory is applied first.
func Load() (Settings, error) {
	_ = godotenv.Load()

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return LoadFile(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// LoadFile reads settings from a YAML file. Environment variables override
// file values; unset values fall back to defaults.
func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Geocoder.Timeout)
	if err != nil {
		timeout = common.DefaultGeocoderTimeout
	}

	settings := Settings{
		ModelPath:         getStringFromEnvOrConfig(common.EnvModelPath, config.Model.ModelPath, common.DefaultModelPath),
		ScalerPath:        getStringFromEnvOrConfig(common.EnvScalerPath, config.Model.ScalerPath, common.DefaultScalerPath),
		TrainingDataPath:  getStringFromEnvOrConfig(common.EnvTrainingDataPath, config.Model.TrainingDataPath, common.DefaultTrainingDataPath),
		ForestTrees:       getIntFromEnvOrConfig(common.EnvForestTrees, config.Forest.Trees, common.DefaultForestTrees),
		ForestMaxDepth:    getIntFromEnvOrConfig(common.EnvForestMaxDepth, config.Forest.MaxDepth, common.DefaultForestMaxDepth),
		ForestSeed:        getInt64FromEnvOrConfig(common.EnvForestSeed, config.Forest.Seed, common.DefaultForestSeed),
		ForestTestSize:    getFloatFromEnvOrConfig(common.EnvForestTestSize, config.Forest.TestSize, common.DefaultForestTestSize),
		ForestWorkers:     getIntFromEnvOrConfig(common.EnvForestWorkers, config.Forest.Workers, 0),
		TimelineYears:     getIntFromEnvOrConfig(common.EnvTimelineYears, config.Scoring.TimelineYears, common.DefaultTimelineYears),
		HistoryDriver:     getStringFromEnvOrConfig(common.EnvHistoryDriver, config.History.Driver, common.DefaultHistoryDriver),
		DataPath:          getStringFromEnvOrConfig(common.EnvDataPath, config.History.DataPath, common.DefaultDataPath),
		PostgresDSN:       getStringFromEnvOrConfig(common.EnvPostgresDSN, config.History.PostgresDSN, ""),
		ServerPort:        getIntFromEnvOrConfig(common.EnvServerPort, config.Server.Port, common.DefaultServerPort),
		GeocoderURL:       getStringFromEnvOrConfig(common.EnvGeocoderURL, config.Geocoder.URL, common.DefaultGeocoderURL),
		GeocoderTimeout:   getDurationOrDefault(common.EnvGeocoderTimeout, timeout),
		GeocoderUserAgent: getStringFromEnvOrConfig(common.EnvGeocoderAgent, config.Geocoder.UserAgent, common.DefaultGeocoderAgent),
		CitiesPath:        getStringFromEnvOrConfig(common.EnvCitiesPath, config.Geocoder.CitiesPath, common.DefaultCitiesPath),
		LogLevel:          getStringFromEnvOrConfig(common.EnvLogLevel, config.Log.Level, common.DefaultLogLevel),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:         getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ScalerPath:        getEnvOrDefault(common.EnvScalerPath, common.DefaultScalerPath),
		TrainingDataPath:  getEnvOrDefault(common.EnvTrainingDataPath, common.DefaultTrainingDataPath),
		ForestTrees:       getIntOrDefault(common.EnvForestTrees, common.DefaultForestTrees),
		ForestMaxDepth:    getIntOrDefault(common.EnvForestMaxDepth, common.DefaultForestMaxDepth),
		ForestSeed:        int64(getIntOrDefault(common.EnvForestSeed, common.DefaultForestSeed)),
		ForestTestSize:    getFloatOrDefault(common.EnvForestTestSize, common.DefaultForestTestSize),
		ForestWorkers:     getIntOrDefault(common.EnvForestWorkers, 0), // 0 = GOMAXPROCS
		TimelineYears:     getIntOrDefault(common.EnvTimelineYears, common.DefaultTimelineYears),
		HistoryDriver:     getEnvOrDefault(common.EnvHistoryDriver, common.DefaultHistoryDriver),
		DataPath:          getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		PostgresDSN:       os.Getenv(common.EnvPostgresDSN), // only for the postgres driver
		ServerPort:        getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		GeocoderURL:       getEnvOrDefault(common.EnvGeocoderURL, common.DefaultGeocoderURL),
		GeocoderTimeout:   getDurationOrDefault(common.EnvGeocoderTimeout, common.DefaultGeocoderTimeout),
		GeocoderUserAgent: getEnvOrDefault(common.EnvGeocoderAgent, common.DefaultGeocoderAgent),
		CitiesPath:        getEnvOrDefault(common.EnvCitiesPath, common.DefaultCitiesPath),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getStringFromEnvOrConfig(key, configValue, defaultValue string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate artifact locations
	if settings.ModelPath == "" || settings.ScalerPath == "" {
		return fmt.Errorf("model and scaler paths are required")
	}
	if settings.ModelPath == settings.ScalerPath {
		return fmt.Errorf("model and scaler paths must differ, both are %s", settings.ModelPath)
	}
	if settings.TrainingDataPath == "" {
		return fmt.Errorf("training data path cannot be empty")
	}

	// Validate forest parameters
	if settings.ForestTrees < common.MinForestTrees || settings.ForestTrees > common.MaxForestTrees {
		return fmt.Errorf("forest trees must be between %d and %d, got %d", common.MinForestTrees, common.MaxForestTrees, settings.ForestTrees)
	}
	if settings.ForestMaxDepth < common.MinForestMaxDepth || settings.ForestMaxDepth > common.MaxForestMaxDepth {
		return fmt.Errorf("forest max depth must be between %d and %d, got %d", common.MinForestMaxDepth, common.MaxForestMaxDepth, settings.ForestMaxDepth)
	}
	if settings.ForestTestSize <= 0 || settings.ForestTestSize > common.MaxForestTestSize {
		return fmt.Errorf("forest test size must be in (0, %.1f], got %f", common.MaxForestTestSize, settings.ForestTestSize)
	}
	if settings.ForestWorkers < 0 {
		return fmt.Errorf("forest workers cannot be negative, got %d", settings.ForestWorkers)
	}

	// Validate scoring
	if settings.TimelineYears < common.MinTimelineYears || settings.TimelineYears > common.MaxTimelineYears {
		return fmt.Errorf("timeline years must be between %d and %d, got %d", common.MinTimelineYears, common.MaxTimelineYears, settings.TimelineYears)
	}

	// Validate history storage
	switch settings.HistoryDriver {
	case common.HistoryDriverBolt:
		if settings.DataPath == "" {
			return fmt.Errorf("bolt history driver requires a data path")
		}
	case common.HistoryDriverPostgres:
		if settings.PostgresDSN == "" {
			return fmt.Errorf(common.ErrMsgPostgresDSNRequired)
		}
	case common.HistoryDriverNone:
	default:
		return fmt.Errorf("unknown history driver %q", settings.HistoryDriver)
	}

	// Validate server and geocoder
	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d", common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}
	if settings.GeocoderURL == "" {
		return fmt.Errorf("geocoder URL cannot be empty")
	}
	if settings.GeocoderTimeout < common.MinGeocoderTimeout || settings.GeocoderTimeout > common.MaxGeocoderTimeout {
		return fmt.Errorf("geocoder timeout must be between 1s and 1m, got %v", settings.GeocoderTimeout)
	}

	return nil
}
