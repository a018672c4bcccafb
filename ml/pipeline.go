package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Pipeline chains a StandardScaler with a RandomForest and is the
// artifact the service loads at startup.
type Pipeline struct {
	scaler       *StandardScaler
	forest       *RandomForest
	classNames   []string
	featureCount int
	trainedAt    time.Time
}

type pipelineArtifact struct {
	ModelType    string          `json:"model_type"`
	TrainedAt    time.Time       `json:"trained_at"`
	ClassNames   []string        `json:"class_names"`
	FeatureCount int             `json:"feature_count"`
	Scaler       *StandardScaler `json:"scaler"`
	Forest       *RandomForest   `json:"forest"`
}

func NewPipeline(numTrees, maxDepth int, seed int64, classNames []string) *Pipeline {
	return &Pipeline{
		scaler:     &StandardScaler{},
		forest:     NewRandomForest(numTrees, maxDepth, seed),
		classNames: classNames,
	}
}

func (p *Pipeline) Train(features [][]float64, labels []int) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	if p.scaler == nil || p.forest == nil {
		return errors.New("pipeline not initialized")
	}
	if err := p.scaler.Fit(features); err != nil {
		return err
	}
	scaled, err := p.scaler.Transform(features)
	if err != nil {
		return err
	}
	if err := p.forest.Train(scaled, labels); err != nil {
		return err
	}
	p.featureCount = len(features[0])
	p.trainedAt = time.Now().UTC()
	if len(p.classNames) == 0 {
		p.classNames = make([]string, p.forest.NumClasses())
		for i := range p.classNames {
			p.classNames[i] = fmt.Sprintf("class_%d", i)
		}
	}
	return nil
}

func (p *Pipeline) Predict(features []float64) (int, float64, error) {
	scaled, err := p.scaler.TransformVector(features)
	if err != nil {
		return 0, 0, err
	}
	return p.forest.Predict(scaled)
}

func (p *Pipeline) PredictProba(features []float64) ([]float64, error) {
	scaled, err := p.scaler.TransformVector(features)
	if err != nil {
		return nil, err
	}
	return p.forest.PredictProba(scaled)
}

func (p *Pipeline) ClassNames() []string { return p.classNames }
func (p *Pipeline) NumFeatures() int     { return p.featureCount }
func (p *Pipeline) NumClasses() int {
	if p.forest == nil {
		return 0
	}
	return p.forest.NumClasses()
}
func (p *Pipeline) TrainedAt() time.Time { return p.trainedAt }

// Save writes the artifact via a temp file and rename so a concurrent
// reader (or the reload watcher) never sees a partial file.
func (p *Pipeline) Save(path string) error {
	if p.forest == nil || len(p.forest.trees) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(pipelineArtifact{
		ModelType:    "random_forest",
		TrainedAt:    p.trainedAt,
		ClassNames:   p.classNames,
		FeatureCount: p.featureCount,
		Scaler:       p.scaler,
		Forest:       p.forest,
	})
	if err != nil {
		return err
	}
	return writeFileAtomic(path, payload)
}

func (p *Pipeline) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact pipelineArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("parse model artifact: %w", err)
	}
	if artifact.Scaler == nil || artifact.Forest == nil {
		return errors.New("model artifact missing scaler or forest")
	}
	p.scaler = artifact.Scaler
	p.forest = artifact.Forest
	p.classNames = artifact.ClassNames
	p.featureCount = artifact.FeatureCount
	p.trainedAt = artifact.TrainedAt
	return nil
}

func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
