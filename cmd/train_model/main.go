package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"winecast/dataset"
	"winecast/db"
	"winecast/ml"
)

func main() {
	dataPath := flag.String("data", "", "CSV dataset path (bundled wine dataset when empty)")
	modelPath := flag.String("model_path", "./models/wine_rf.json", "model output path")
	featuresPath := flag.String("features_path", "./models/features.json", "feature schema output path")
	trees := flag.Int("trees", 200, "number of trees in the forest")
	maxDepth := flag.Int("max_depth", 10, "max tree depth")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")
	seed := flag.Int64("seed", 42, "random seed")
	dbPath := flag.String("db", "", "sqlite path to record the training run (skipped when empty)")
	flag.Parse()

	data, err := loadDataset(*dataPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	log.Printf("loaded %d rows, %d features, %d classes",
		len(data.Features), len(data.FeatureNames), len(data.ClassNames))

	trainX, trainY, testX, testY := data.Split(*testRatio, *seed)

	model := ml.NewPipeline(*trees, *maxDepth, *seed, data.ClassNames)
	start := time.Now()
	if err := model.Train(trainX, trainY); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}
	log.Printf("trained in %s", time.Since(start).Round(time.Millisecond))

	eval, err := ml.Evaluate(model, testX, testY)
	if err != nil {
		log.Fatalf("failed to evaluate model: %v", err)
	}
	fmt.Print(eval.Report(data.ClassNames))

	for _, path := range []string{*modelPath, *featuresPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Fatalf("failed to create output dir: %v", err)
		}
	}
	if err := model.Save(*modelPath); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}
	schema := ml.NewFeatureSchema(data.FeatureNames)
	if err := schema.Save(*featuresPath); err != nil {
		log.Fatalf("failed to save feature schema: %v", err)
	}

	if *dbPath != "" {
		if err := recordRun(*dbPath, eval, len(trainX)); err != nil {
			log.Printf("failed to record training run: %v", err)
		}
	}

	fmt.Printf("model saved to %s\n", *modelPath)
	fmt.Printf("feature schema saved to %s\n", *featuresPath)
}

func loadDataset(path string) (*dataset.Dataset, error) {
	if path == "" {
		return dataset.Load()
	}
	return dataset.LoadFile(path)
}

func recordRun(path string, eval *ml.Evaluation, dataPoints int) error {
	if err := db.InitDB(path); err != nil {
		return err
	}
	defer db.Close()

	precision, recall := eval.MacroPrecisionRecall()
	return db.SaveTrainingLog(db.TrainingLog{
		ModelName:  "wine_rf",
		Accuracy:   eval.Accuracy,
		Precision:  precision,
		Recall:     recall,
		TrainedAt:  time.Now().UTC(),
		DataPoints: dataPoints,
	})
}
