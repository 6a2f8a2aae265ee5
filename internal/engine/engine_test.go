package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"scoutout/internal/common"
	"scoutout/internal/dataset"
	"scoutout/internal/ml"
	"scoutout/internal/property"
	"scoutout/internal/scoring"
)

var sample = property.FeatureVector{Income: 65000, HouseAge: 5, Rooms: 7, Bedrooms: 4, Population: 36000}

type staticSource struct {
	model  *ml.Forest
	scaler *ml.Scaler
	err    error
}

func (s *staticSource) EnsureModel(context.Context) (*ml.Forest, *ml.Scaler, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.model, s.scaler, nil
}

type panicSource struct{}

func (panicSource) EnsureModel(context.Context) (*ml.Forest, *ml.Scaler, error) {
	panic("corrupt model")
}

func leafTree(v float64) *ml.Tree {
	return &ml.Tree{Nodes: []ml.Node{{Feature: -1, Left: -1, Right: -1, Value: v}}}
}

func identityScaler() *ml.Scaler {
	return &ml.Scaler{Mean: make([]float64, 5), Scale: []float64{1, 1, 1, 1, 1}}
}

func fixedEngine(metrics MetricsInterface) *Engine {
	e := New(&staticSource{
		model:  &ml.Forest{Trees: []*ml.Tree{leafTree(900000), leafTree(1100000)}},
		scaler: identityScaler(),
	}, metrics)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestPredict_Sample(t *testing.T) {
	metrics := &MockMetrics{}
	e := fixedEngine(metrics)

	result, err := e.Predict(context.Background(), sample, 3)
	require.NoError(t, err)

	assert.Equal(t, 1_000_000.0, result.PredictedPrice)
	assert.InDelta(t, 0.9, result.Confidence, 1e-12)
	assert.Equal(t, scoring.InvestmentScore(sample, 0), result.InvestmentScore)
	assert.Equal(t, scoring.AppreciationPotential(sample, 0), result.AppreciationPotential)
	assert.Equal(t, scoring.RiskScore(sample, 0), result.RiskScore)

	for _, v := range []float64{result.InvestmentScore, result.AppreciationPotential, result.RiskScore} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}

	require.Len(t, result.PriceProjections, 3)
	assert.Equal(t, 2027, result.PriceProjections[0].Year)
	assert.Equal(t, 2029, result.PriceProjections[2].Year)
	assert.Greater(t, result.PriceProjections[0].ProjectedPrice, result.PredictedPrice)

	predictions, failures, _, _ := metrics.counts()
	assert.Equal(t, 1, predictions)
	assert.Equal(t, 0, failures)
}

func TestPredict_RejectsNonFinite(t *testing.T) {
	metrics := &MockMetrics{}
	e := fixedEngine(metrics)

	for _, f := range []property.FeatureVector{
		{Income: math.NaN(), HouseAge: 5, Rooms: 7, Bedrooms: 4, Population: 36000},
		{Income: 65000, HouseAge: 5, Rooms: 7, Bedrooms: 4, Population: math.Inf(1)},
	} {
		_, err := e.Predict(context.Background(), f, 3)
		assert.ErrorContains(t, err, "not finite")
		assert.Nil(t, e.PredictWithScoring(context.Background(), f, 3))
	}

	_, failures, _, _ := metrics.counts()
	assert.Equal(t, 4, failures)
}

func TestPredictWithScoring_NilOnFailure(t *testing.T) {
	t.Run("missing artifacts", func(t *testing.T) {
		e := New(&staticSource{err: fmt.Errorf("%w: data/USA_Housing.csv", ml.ErrTrainingDataNotFound)}, nil)
		assert.Nil(t, e.PredictWithScoring(context.Background(), sample, 10))

		_, err := e.Predict(context.Background(), sample, 10)
		assert.ErrorIs(t, err, ml.ErrTrainingDataNotFound)
	})

	t.Run("panic in model source", func(t *testing.T) {
		metrics := &MockMetrics{}
		e := New(panicSource{}, metrics)
		assert.Nil(t, e.PredictWithScoring(context.Background(), sample, 10))

		_, err := e.Predict(context.Background(), sample, 10)
		assert.ErrorContains(t, err, "corrupt model")

		_, failures, _, _ := metrics.counts()
		assert.Equal(t, 2, failures)
	})

	t.Run("scaler schema mismatch", func(t *testing.T) {
		e := New(&staticSource{
			model:  &ml.Forest{Trees: []*ml.Tree{leafTree(1)}},
			scaler: &ml.Scaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}},
		}, nil)
		assert.Nil(t, e.PredictWithScoring(context.Background(), sample, 10))
	})
}

func TestPredict_ZeroYears(t *testing.T) {
	result, err := fixedEngine(nil).Predict(context.Background(), sample, 0)
	require.NoError(t, err)
	assert.Empty(t, result.PriceProjections)
}

func TestPredict_YearsOutOfRange(t *testing.T) {
	metrics := &MockMetrics{}
	e := fixedEngine(metrics)

	for _, years := range []int{-1, common.MaxTimelineYears + 1, 2_000_000_000} {
		_, err := e.Predict(context.Background(), sample, years)
		assert.ErrorContains(t, err, "projection years")
		assert.Nil(t, e.PredictWithScoring(context.Background(), sample, years))
	}

	result, err := e.Predict(context.Background(), sample, common.MaxTimelineYears)
	require.NoError(t, err)
	assert.Len(t, result.PriceProjections, common.MaxTimelineYears)
}

const batchCSV = `Address,Avg. Area Income,Avg. Area House Age,Avg. Area Number of Rooms,Avg. Area Number of Bedrooms,Area Population
"1 Elm St, Austin",65000,5,7,4,36000
"2 Oak Ave, Denver",80000,12,6,3,120000
"3 Pine Rd, Boise",45000,35,5,0,8000
`

func TestBatchPredict(t *testing.T) {
	table, err := dataset.ReadCSV(strings.NewReader(batchCSV))
	require.NoError(t, err)

	metrics := &MockMetrics{}
	var progress [][2]int
	result, err := fixedEngine(metrics).BatchPredict(context.Background(), table, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)

	require.Len(t, result.Rows, 3)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Equal(t, append(append([]string{}, table.Columns...), property.ComputedColumns...), result.Columns)

	first := result.Rows[0].Map()
	assert.Equal(t, "1 Elm St, Austin", first["Address"])
	assert.Equal(t, 65000.0, first[property.ColIncome])
	assert.Equal(t, 1_000_000.0, first[property.ColPredictedPrice])
	assert.InDelta(t, 0.9, first[property.ColConfidence], 1e-12)
	assert.Equal(t, scoring.InvestmentScore(sample, 0), first[property.ColInvestmentScore])

	third := result.Rows[2]
	assert.False(t, math.IsNaN(third.InvestmentScore), "zero bedrooms must not produce NaN")

	_, _, batchRows, batchFails := metrics.counts()
	assert.Equal(t, 3, batchRows)
	assert.Equal(t, 0, batchFails)
}

func TestBatchPredict_MissingColumns(t *testing.T) {
	cols := []string{property.ColIncome, property.ColHouseAge, property.ColRooms, property.ColBedrooms}
	table := dataset.New(cols, [][]string{{"65000", "5", "7", "4"}})

	metrics := &MockMetrics{}
	result, err := fixedEngine(metrics).BatchPredict(context.Background(), table, nil)
	require.Error(t, err)
	assert.Nil(t, result)

	mce, ok := IsMissingColumns(err)
	require.True(t, ok)
	assert.Equal(t, []string{property.ColPopulation}, mce.Columns)
	assert.Equal(t, "missing columns: Area Population", err.Error())

	_, _, _, batchFails := metrics.counts()
	assert.Equal(t, 1, batchFails)
}

func TestBatchPredict_AbortsOnBadCell(t *testing.T) {
	table := dataset.New(property.FeatureColumns, [][]string{
		{"65000", "5", "7", "4", "36000"},
		{"65000", "five", "7", "4", "36000"},
	})

	result, err := fixedEngine(nil).BatchPredict(context.Background(), table, nil)
	assert.Nil(t, result)
	assert.ErrorContains(t, err, `invalid number "five"`)
}

func TestBatchPredict_EmptyTable(t *testing.T) {
	table := dataset.New(property.FeatureColumns, nil)

	result, err := New(&staticSource{err: ml.ErrTrainingDataNotFound}, nil).BatchPredict(context.Background(), table, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestBatchPredict_MatchesSinglePredictions(t *testing.T) {
	model, scaler := trainedModel(t)
	e := New(&staticSource{model: model, scaler: scaler}, nil)

	table, err := dataset.ReadCSV(strings.NewReader(batchCSV))
	require.NoError(t, err)

	result, err := e.BatchPredict(context.Background(), table, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, table.Len())

	for i, row := range result.Rows {
		values, err := table.Float64s(i, property.FeatureColumns)
		require.NoError(t, err)
		f, err := property.FromSlice(values)
		require.NoError(t, err)

		single, err := e.Predict(context.Background(), f, 1)
		require.NoError(t, err)
		assert.InDelta(t, single.PredictedPrice, row.PredictedPrice, 1e-6)
		assert.InDelta(t, single.Confidence, row.Confidence, 1e-9)
		assert.Equal(t, single.RiskScore, row.RiskScore)
	}
}

func TestBatchPredict_Cancelled(t *testing.T) {
	table, err := dataset.ReadCSV(strings.NewReader(batchCSV))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fixedEngine(nil).BatchPredict(ctx, table, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_WithModelStore(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "USA_Housing.csv")
	writeHousing(t, dataPath, 100)

	store := ml.NewModelStore(ml.StoreConfig{
		ModelPath:        filepath.Join(dir, "model.gob"),
		ScalerPath:       filepath.Join(dir, "scaler.gob"),
		TrainingDataPath: dataPath,
		TestSize:         0.2,
		Forest:           ml.ForestParams{Trees: 10, MaxDepth: 6, Seed: 42},
	}, nil)

	result := New(store, nil).PredictWithScoring(context.Background(), sample, 3)
	require.NotNil(t, result)
	assert.Positive(t, result.PredictedPrice)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
	assert.Len(t, result.PriceProjections, 3)
}

func housingRows(n int) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(42))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = []float64{
			40000 + rng.Float64()*60000,
			1 + rng.Float64()*30,
			3 + rng.Float64()*7,
			rng.Float64() * 5,
			5000 + rng.Float64()*150000,
		}
		y[i] = 21*x[i][0] + 165000*x[i][1]/10 + 120000*x[i][2] + 15*x[i][4] + rng.NormFloat64()*50000
	}
	return x, y
}

func trainedModel(t *testing.T) (*ml.Forest, *ml.Scaler) {
	t.Helper()

	x, y := housingRows(150)
	X := mat.NewDense(len(x), 5, nil)
	for i, row := range x {
		X.SetRow(i, row)
	}

	scaler := &ml.Scaler{}
	require.NoError(t, scaler.Fit(X))
	scaled, err := scaler.Transform(X)
	require.NoError(t, err)

	model, err := ml.FitForest(context.Background(), scaled, y, ml.ForestParams{Trees: 15, MaxDepth: 6, Seed: 42})
	require.NoError(t, err)
	return model, scaler
}

func writeHousing(t *testing.T, path string, n int) {
	t.Helper()

	x, y := housingRows(n)
	var b strings.Builder
	b.WriteString(strings.Join(property.FeatureColumns, ",") + ",Price\n")
	for i := range x {
		for _, v := range x[i] {
			fmt.Fprintf(&b, "%.3f,", v)
		}
		fmt.Fprintf(&b, "%.2f\n", y[i])
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}
