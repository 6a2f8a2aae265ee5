package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned when a transformer or model is used before Fit.
var ErrNotFitted = errors.New("not fitted")

// Transformer is a fit-once feature transformation.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (*mat.Dense, error)
	TransformRow(row []float64) ([]float64, error)
}

// Scaler standardises each column to zero mean and unit variance using the
// population standard deviation. Columns with zero variance are only centred.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// Fit learns per-column mean and scale from X.
func (s *Scaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return fmt.Errorf("fit scaler: empty matrix %dx%d", r, c)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

// Transform returns a standardised copy of X.
func (s *Scaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("transform: scaler %w", ErrNotFitted)
	}

	r, c := X.Dims()
	if c != len(s.Mean) {
		return nil, fmt.Errorf("transform: expected %d columns, got %d", len(s.Mean), c)
	}
	if r == 0 {
		return nil, fmt.Errorf("transform: empty matrix")
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return out, nil
}

// TransformRow standardises a single feature row.
func (s *Scaler) TransformRow(row []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("transform: scaler %w", ErrNotFitted)
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("transform: expected %d columns, got %d", len(s.Mean), len(row))
	}
	out, err := s.Transform(mat.NewDense(1, len(row), append([]float64(nil), row...)))
	if err != nil {
		return nil, err
	}
	return out.RawRowView(0), nil
}
