package ml

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Ensemble is a model whose point prediction aggregates sub-estimators.
type Ensemble interface {
	Estimator
	Estimators() []Estimator
}

// ForestParams controls forest training.
type ForestParams struct {
	Trees    int
	MaxDepth int
	Seed     int64
	Workers  int
}

// Forest is a bagged ensemble of regression trees. The prediction is the
// mean of the tree predictions.
type Forest struct {
	Trees    []*Tree
	MaxDepth int
	Seed     int64
}

// FitForest trains a forest on the rows of X against y. Each tree draws its
// bootstrap sample from its own RNG seeded from params.Seed, so the result does
// not depend on Workers.
func FitForest(ctx context.Context, X mat.Matrix, y []float64, params ForestParams) (*Forest, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, fmt.Errorf("fit forest: empty matrix %dx%d", r, c)
	}
	if len(y) != r {
		return nil, fmt.Errorf("fit forest: %d rows but %d targets", r, len(y))
	}
	if params.Trees < 1 {
		return nil, fmt.Errorf("fit forest: trees must be positive, got %d", params.Trees)
	}
	if params.MaxDepth < 1 {
		return nil, fmt.Errorf("fit forest: max depth must be positive, got %d", params.MaxDepth)
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}

	seeds := make([]int64, params.Trees)
	master := rand.New(rand.NewSource(params.Seed))
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	start := time.Now()
	trees := make([]*Tree, params.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trees[i] = fitTree(rows, y, params.MaxDepth, rand.New(rand.NewSource(seeds[i])))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	deepest := 0
	for _, t := range trees {
		deepest = max(deepest, t.depth())
	}

	log.Debug().
		Int("trees", params.Trees).
		Int("max_depth", params.MaxDepth).
		Int("deepest", deepest).
		Int("rows", r).
		Int("workers", workers).
		Dur("took", time.Since(start)).
		Msg("Forest fitted")

	return &Forest{Trees: trees, MaxDepth: params.MaxDepth, Seed: params.Seed}, nil
}

// Predict returns the mean tree prediction for a scaled row.
func (f *Forest) Predict(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.Predict(row)
	}
	return sum / float64(len(f.Trees))
}

// PredictMatrix predicts every row of a scaled matrix.
func (f *Forest) PredictMatrix(X mat.Matrix) []float64 {
	r, _ := X.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = f.Predict(mat.Row(nil, i, X))
	}
	return out
}

// Estimators exposes the individual trees.
func (f *Forest) Estimators() []Estimator {
	out := make([]Estimator, len(f.Trees))
	for i, t := range f.Trees {
		out[i] = t
	}
	return out
}
