package ml

import (
	"errors"
	"math"
)

// StandardScaler centers each column to zero mean and unit variance.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func (s *StandardScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	columns := len(features[0])
	s.Mean = make([]float64, columns)
	s.Std = make([]float64, columns)

	for _, row := range features {
		if len(row) != columns {
			return errors.New("ragged feature matrix")
		}
		for col, value := range row {
			s.Mean[col] += value
		}
	}
	for col := range s.Mean {
		s.Mean[col] /= float64(len(features))
	}

	for _, row := range features {
		for col, value := range row {
			diff := value - s.Mean[col]
			s.Std[col] += diff * diff
		}
	}
	for col := range s.Std {
		s.Std[col] = math.Sqrt(s.Std[col] / float64(len(features)))
		// constant columns pass through unscaled
		if s.Std[col] == 0 {
			s.Std[col] = 1
		}
	}
	return nil
}

func (s *StandardScaler) Transform(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, row := range features {
		scaled, err := s.TransformVector(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

func (s *StandardScaler) TransformVector(features []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, errors.New("scaler not fitted")
	}
	if len(features) != len(s.Mean) {
		return nil, errors.New("feature count mismatch")
	}
	out := make([]float64, len(features))
	for col, value := range features {
		out[col] = (value - s.Mean[col]) / s.Std[col]
	}
	return out, nil
}
