package ml

import (
	"math/rand"
	"path/filepath"
	"testing"
)

func blobDataset(perClass int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	centers := [][]float64{{0, 0}, {4, 4}, {0, 6}}
	var features [][]float64
	var labels []int
	for class, center := range centers {
		for i := 0; i < perClass; i++ {
			features = append(features, []float64{
				center[0] + rnd.NormFloat64()*0.5,
				center[1] + rnd.NormFloat64()*0.5,
			})
			labels = append(labels, class)
		}
	}
	return features, labels
}

func TestRandomForestTrainPredict(t *testing.T) {
	features, labels := blobDataset(30, 1)

	model := NewRandomForest(25, 6, 1)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	correct := 0
	for i, feature := range features {
		label, confidence, err := model.Predict(feature)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if confidence <= 0 || confidence > 1 {
			t.Fatalf("confidence out of range: %f", confidence)
		}
		if label == labels[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(labels))
	if accuracy < 0.9 {
		t.Fatalf("expected training accuracy >= 0.9, got %.2f", accuracy)
	}
}

func TestRandomForestPredictProba(t *testing.T) {
	features, labels := blobDataset(20, 2)

	model := NewRandomForest(15, 5, 2)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	proba, err := model.PredictProba([]float64{4, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proba) != 3 {
		t.Fatalf("expected 3 classes, got %d", len(proba))
	}
	sum := 0.0
	for _, p := range proba {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("probabilities do not sum to 1: %v", proba)
	}
	if proba[1] < proba[0] || proba[1] < proba[2] {
		t.Fatalf("expected class 1 to dominate at its center: %v", proba)
	}
}

func TestRandomForestSaveLoad(t *testing.T) {
	features, labels := blobDataset(15, 3)

	model := NewRandomForest(10, 5, 3)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "forest.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	restored := &RandomForest{}
	if err := restored.Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, feature := range features {
		want, _, _ := model.Predict(feature)
		got, _, err := restored.Predict(feature)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("row %d: restored forest disagrees: got %d want %d", i, got, want)
		}
	}
}

func TestRandomForestDeterministicSeed(t *testing.T) {
	features, labels := blobDataset(15, 4)

	a := NewRandomForest(10, 5, 9)
	b := NewRandomForest(10, 5, 9)
	if err := a.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, feature := range features {
		la, _, _ := a.Predict(feature)
		lb, _, _ := b.Predict(feature)
		if la != lb {
			t.Fatal("same seed produced different forests")
		}
	}
}
