package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// FeatureImportance is the holdout error increase observed when a single
// feature column is shuffled.
type FeatureImportance struct {
	Name       string  `json:"name" yaml:"name"`
	Importance float64 `json:"importance" yaml:"importance"`
	// Share is Importance normalised over the positive scores.
	Share float64 `json:"share" yaml:"share"`
}

// PermutationImportance scores each column of the scaled matrix X by how much
// the mean absolute error grows when that column is shuffled. The result is
// sorted by descending importance. Scores can be negative when shuffling a
// column happens to help.
func PermutationImportance(model Estimator, X mat.Matrix, y []float64, names []string, seed int64) ([]FeatureImportance, error) {
	rows, cols := X.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("permutation importance: %d rows but %d targets", rows, len(y))
	}
	if cols != len(names) {
		return nil, fmt.Errorf("permutation importance: %d columns but %d names", cols, len(names))
	}
	if rows == 0 {
		return nil, nil
	}

	work := mat.DenseCopyOf(X)
	baseline := meanAbsError(model, work, y)
	rng := rand.New(rand.NewSource(seed))

	out := make([]FeatureImportance, cols)
	original := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(original, j, work)
		shuffled := append([]float64(nil), original...)
		rng.Shuffle(rows, func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		work.SetCol(j, shuffled)

		out[j] = FeatureImportance{Name: names[j], Importance: meanAbsError(model, work, y) - baseline}
		work.SetCol(j, original)
	}

	var total float64
	for _, fi := range out {
		total += math.Max(fi.Importance, 0)
	}
	if total > 0 {
		for i := range out {
			out[i].Share = math.Max(out[i].Importance, 0) / total
		}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	return out, nil
}

// TopFeatures returns at most n leading entries.
func TopFeatures(importance []FeatureImportance, n int) []FeatureImportance {
	if n < 0 || n >= len(importance) {
		return importance
	}
	return importance[:n]
}

func meanAbsError(model Estimator, X *mat.Dense, y []float64) float64 {
	var sum float64
	for i := range y {
		sum += math.Abs(model.Predict(X.RawRowView(i)) - y[i])
	}
	return sum / float64(len(y))
}
