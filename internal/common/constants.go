package common

import "time"

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvModelPath        = "MODEL_PATH"
	EnvScalerPath       = "SCALER_PATH"
	EnvTrainingDataPath = "TRAINING_DATA_PATH"
	EnvForestTrees      = "FOREST_TREES"
	EnvForestMaxDepth   = "FOREST_MAX_DEPTH"
	EnvForestSeed       = "FOREST_SEED"
	EnvForestTestSize   = "FOREST_TEST_SIZE"
	EnvForestWorkers    = "FOREST_WORKERS"
	EnvTimelineYears    = "TIMELINE_YEARS"
	EnvHistoryDriver    = "HISTORY_DRIVER"
	EnvDataPath         = "DATA_PATH"
	EnvPostgresDSN      = "POSTGRES_DSN"
	EnvServerPort       = "SERVER_PORT"
	EnvGeocoderURL      = "GEOCODER_URL"
	EnvGeocoderTimeout  = "GEOCODER_TIMEOUT"
	EnvGeocoderAgent    = "GEOCODER_USER_AGENT"
	EnvCitiesPath       = "CITIES_PATH"
	EnvLogLevel         = "LOG_LEVEL"
)

// History storage drivers
const (
	HistoryDriverBolt     = "bolt"
	HistoryDriverPostgres = "postgres"
	HistoryDriverNone     = "none"
)

// Configuration defaults
const (
	DefaultModelPath        = "models/model.gob"
	DefaultScalerPath       = "models/scaler.gob"
	DefaultTrainingDataPath = "data/USA_Housing.csv"
	DefaultForestTrees      = 100
	DefaultForestMaxDepth   = 10
	DefaultForestSeed       = 42
	DefaultForestTestSize   = 0.2
	DefaultTimelineYears    = 10
	DefaultHistoryDriver    = HistoryDriverBolt
	DefaultDataPath         = "data"
	DefaultServerPort       = 8080
	DefaultGeocoderURL      = "https://nominatim.openstreetmap.org"
	DefaultGeocoderAgent    = "ScoutOut-AI-Property-Platform/1.0"
	DefaultGeocoderTimeout  = 10 * time.Second
	DefaultCitiesPath       = "data/us-cities-top-1k.csv"
	DefaultLogLevel         = "info"
)

// Validation constants
const (
	MinForestTrees     = 1
	MaxForestTrees     = 1000
	MinForestMaxDepth  = 1
	MaxForestMaxDepth  = 64
	MaxForestTestSize  = 0.9
	MinTimelineYears   = 1
	MaxTimelineYears   = 50
	MinServerPort      = 1024
	MaxServerPort      = 65535
	MinGeocoderTimeout = time.Second
	MaxGeocoderTimeout = time.Minute
)

// Prediction form ranges
const (
	MinAreaIncome     = 1000.0
	MaxAreaIncome     = 500000.0
	MinHouseAge       = 0.0
	MaxHouseAge       = 100.0
	MinRooms          = 1.0
	MaxRooms          = 20.0
	MinBedrooms       = 1.0
	MaxBedrooms       = 10.0
	MinAreaPopulation = 100.0
	MaxAreaPopulation = 1000000.0
)

// API defaults
const (
	DefaultListLimit      = 100
	BatchProgressInterval = 10
	MaxUploadBytes        = 32 << 20
)

// Common error messages
const (
	ErrMsgPostgresDSNRequired = "postgres history driver requires POSTGRES_DSN"
	ErrMsgPredictionFailed    = "Prediction failed"
)
