// Package ml trains and serves the price model: a standard scaler in front of
// a random forest of regression trees, persisted to disk and retrained from
// the housing dataset when the artifacts are missing.
package ml

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"scoutout/internal/dataset"
	"scoutout/internal/property"
)

// ErrTrainingDataNotFound means neither artifacts nor training data exist.
var ErrTrainingDataNotFound = errors.New("training data not found")

// TrainingMetrics receives training outcomes.
type TrainingMetrics interface {
	TrainingRunsInc()
	TrainingDurationObserve(float64)
	ModelMAESet(float64)
	ModelR2Set(float64)
}

// ModelMetadata describes a trained model and its holdout performance.
type ModelMetadata struct {
	TrainedAt    time.Time `json:"trained_at"`
	Features     []string  `json:"features"`
	Trees        int       `json:"trees"`
	MaxDepth     int       `json:"max_depth"`
	Seed         int64     `json:"seed"`
	TrainingRows int       `json:"training_rows"`
	TestRows     int       `json:"test_rows"`
	MAE          float64   `json:"mae"`
	R2           float64   `json:"r2"`

	FeatureImportance []FeatureImportance `json:"feature_importance,omitempty"`
}

// StoreConfig locates the persisted artifacts and the training dataset.
type StoreConfig struct {
	ModelPath        string
	ScalerPath       string
	TrainingDataPath string
	TestSize         float64
	Forest           ForestParams
}

// ModelStore loads the model and scaler from disk, training and persisting
// them on first use when they are absent. The loaded pair is cached.
type ModelStore struct {
	cfg     StoreConfig
	metrics TrainingMetrics

	mu     sync.Mutex
	model  *Forest
	scaler *Scaler
	meta   *ModelMetadata
}

// NewModelStore creates a store. metrics may be nil.
func NewModelStore(cfg StoreConfig, metrics TrainingMetrics) *ModelStore {
	return &ModelStore{cfg: cfg, metrics: metrics}
}

// EnsureModel returns the cached model and scaler, loading them from disk or
// training them if the artifacts do not exist yet.
func (s *ModelStore) EnsureModel(ctx context.Context) (*Forest, *Scaler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model != nil && s.scaler != nil {
		return s.model, s.scaler, nil
	}

	if fileExists(s.cfg.ModelPath) && fileExists(s.cfg.ScalerPath) {
		if err := s.load(); err != nil {
			return nil, nil, err
		}
		return s.model, s.scaler, nil
	}

	if !fileExists(s.cfg.TrainingDataPath) {
		return nil, nil, fmt.Errorf("%w: %s", ErrTrainingDataNotFound, s.cfg.TrainingDataPath)
	}

	log.Info().
		Str("model_path", s.cfg.ModelPath).
		Str("training_data", s.cfg.TrainingDataPath).
		Msg("Model artifacts not found, training new model")

	if err := s.train(ctx); err != nil {
		return nil, nil, err
	}
	return s.model, s.scaler, nil
}

// Metadata returns the metadata of the loaded model, or nil when no sidecar
// was found.
func (s *ModelStore) Metadata() *ModelMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return nil
	}
	meta := *s.meta
	return &meta
}

func (s *ModelStore) load() error {
	var model Forest
	if err := readGob(s.cfg.ModelPath, &model); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	var scaler Scaler
	if err := readGob(s.cfg.ScalerPath, &scaler); err != nil {
		return fmt.Errorf("load scaler: %w", err)
	}
	if len(scaler.Mean) != len(property.FeatureColumns) {
		return fmt.Errorf("load scaler: expected %d features, got %d", len(property.FeatureColumns), len(scaler.Mean))
	}

	s.model = &model
	s.scaler = &scaler
	s.meta = nil

	data, err := os.ReadFile(metadataPath(s.cfg.ModelPath))
	switch {
	case err == nil:
		var meta ModelMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			log.Warn().Err(err).Msg("Failed to parse model metadata, ignoring")
		} else {
			s.meta = &meta
		}
	case !os.IsNotExist(err):
		log.Warn().Err(err).Msg("Failed to read model metadata")
	}

	log.Info().
		Str("model_path", s.cfg.ModelPath).
		Int("trees", len(model.Trees)).
		Msg("Model loaded")
	return nil
}

func (s *ModelStore) train(ctx context.Context) error {
	start := time.Now()

	table, err := dataset.ReadFile(s.cfg.TrainingDataPath)
	if err != nil {
		return fmt.Errorf("read training data: %w", err)
	}
	required := append(append([]string{}, property.FeatureColumns...), property.ColPrice)
	if missing := table.Missing(required...); len(missing) > 0 {
		return fmt.Errorf("training data missing columns: %s", strings.Join(missing, ", "))
	}

	X, err := table.Matrix(property.FeatureColumns)
	if err != nil {
		return fmt.Errorf("training features: %w", err)
	}
	y, err := table.Column(property.ColPrice)
	if err != nil {
		return fmt.Errorf("training target: %w", err)
	}

	trainIdx, testIdx := dataset.Split(table.Len(), s.cfg.TestSize, s.cfg.Forest.Seed)

	scaler := &Scaler{}
	if err := scaler.Fit(dataset.Rows(X, trainIdx)); err != nil {
		return err
	}
	xTrain, err := scaler.Transform(dataset.Rows(X, trainIdx))
	if err != nil {
		return err
	}

	model, err := FitForest(ctx, xTrain, pick(y, trainIdx), s.cfg.Forest)
	if err != nil {
		return err
	}

	meta := &ModelMetadata{
		TrainedAt:    time.Now().UTC(),
		Features:     property.FeatureColumns,
		Trees:        len(model.Trees),
		MaxDepth:     model.MaxDepth,
		Seed:         model.Seed,
		TrainingRows: len(trainIdx),
		TestRows:     len(testIdx),
	}

	if len(testIdx) > 0 {
		xTest, err := scaler.Transform(dataset.Rows(X, testIdx))
		if err != nil {
			return err
		}
		yTest := pick(y, testIdx)
		meta.MAE, meta.R2 = evaluate(model.PredictMatrix(xTest), yTest)
		meta.FeatureImportance, err = PermutationImportance(model, xTest, yTest, property.FeatureColumns, s.cfg.Forest.Seed)
		if err != nil {
			return err
		}
	} else {
		log.Warn().Int("rows", table.Len()).Msg("Training set too small for a holdout split, skipping evaluation")
	}

	if err := writeGob(s.cfg.ModelPath, model); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := writeGob(s.cfg.ScalerPath, scaler); err != nil {
		return fmt.Errorf("save scaler: %w", err)
	}
	if err := writeJSON(metadataPath(s.cfg.ModelPath), meta); err != nil {
		log.Warn().Err(err).Msg("Failed to save model metadata")
	}

	took := time.Since(start)
	if s.metrics != nil {
		s.metrics.TrainingRunsInc()
		s.metrics.TrainingDurationObserve(took.Seconds())
		s.metrics.ModelMAESet(meta.MAE)
		s.metrics.ModelR2Set(meta.R2)
	}

	log.Info().
		Int("train_rows", meta.TrainingRows).
		Int("test_rows", meta.TestRows).
		Float64("mae", meta.MAE).
		Float64("r2", meta.R2).
		Dur("took", took).
		Msg("Model trained and saved")

	s.model, s.scaler, s.meta = model, scaler, meta
	return nil
}

func evaluate(predicted, actual []float64) (mae, r2 float64) {
	errs := make(stats.Float64Data, len(actual))
	for i := range actual {
		errs[i] = math.Abs(predicted[i] - actual[i])
	}
	mae, _ = stats.Mean(errs)
	r2 = stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	return mae, r2
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

func metadataPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".meta.json"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

func writeGob(path string, v any) error {
	return writeAtomic(path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(v)
	})
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
