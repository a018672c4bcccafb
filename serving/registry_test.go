package serving

import (
	"math/rand"
	"path/filepath"
	"testing"

	"winecast/ml"
)

func writeArtifacts(t *testing.T, dir string) (modelPath, featuresPath string) {
	t.Helper()

	rnd := rand.New(rand.NewSource(1))
	var features [][]float64
	var labels []int
	for class, center := range []float64{0, 5} {
		for i := 0; i < 20; i++ {
			features = append(features, []float64{center + rnd.NormFloat64()*0.3, center + rnd.NormFloat64()*0.3})
			labels = append(labels, class)
		}
	}

	pipe := ml.NewPipeline(5, 4, 1, []string{"class_0", "class_1"})
	if err := pipe.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	modelPath = filepath.Join(dir, "model.json")
	featuresPath = filepath.Join(dir, "features.json")
	if err := pipe.Save(modelPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	schema := ml.NewFeatureSchema([]string{"x", "y"})
	if err := schema.Save(featuresPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return modelPath, featuresPath
}

func TestRegistryLoadCurrent(t *testing.T) {
	dir := t.TempDir()
	modelPath, featuresPath := writeArtifacts(t, dir)

	registry := NewRegistry("random_forest", modelPath, featuresPath, nil)
	if _, _, _, ok := registry.Current(); ok {
		t.Fatal("registry should be empty before Load")
	}

	if err := registry.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model, schema, generation, ok := registry.Current()
	if !ok {
		t.Fatal("expected model after Load")
	}
	if generation != 1 {
		t.Fatalf("expected generation 1, got %d", generation)
	}
	if len(schema.FeatureOrder) != 2 {
		t.Fatalf("unexpected schema: %v", schema.FeatureOrder)
	}
	label, _, err := model.Predict([]float64{5, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 1 {
		t.Fatalf("expected label 1, got %d", label)
	}
}

func TestRegistryReloadBumpsGeneration(t *testing.T) {
	dir := t.TempDir()
	modelPath, featuresPath := writeArtifacts(t, dir)

	registry := NewRegistry("random_forest", modelPath, featuresPath, nil)
	if err := registry.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, generation, _ := registry.Current()
	if generation != 2 {
		t.Fatalf("expected generation 2, got %d", generation)
	}
}

func TestRegistryLoadMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry("random_forest",
		filepath.Join(dir, "missing.json"),
		filepath.Join(dir, "features.json"), nil)
	if err := registry.Load(); err == nil {
		t.Fatal("expected error for missing artifacts")
	}
	if _, _, _, ok := registry.Current(); ok {
		t.Fatal("failed load must not install a model")
	}
}

func TestRegistryKeepsOldModelOnBadReload(t *testing.T) {
	dir := t.TempDir()
	modelPath, featuresPath := writeArtifacts(t, dir)

	registry := NewRegistry("random_forest", modelPath, featuresPath, nil)
	if err := registry.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// corrupt the artifact, reload must fail and keep generation 1
	if err := writeCorrupt(modelPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.Load(); err == nil {
		t.Fatal("expected error for corrupt artifact")
	}
	_, _, generation, ok := registry.Current()
	if !ok || generation != 1 {
		t.Fatalf("old model lost: ok=%v generation=%d", ok, generation)
	}
}
