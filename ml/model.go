package ml

// Classifier is the prediction surface the HTTP layer depends on.
type Classifier interface {
	Predict(features []float64) (int, float64, error)
	PredictProba(features []float64) ([]float64, error)
}

type MLModel interface {
	Classifier
	Train(features [][]float64, labels []int) error
	Save(path string) error
	Load(path string) error
}
