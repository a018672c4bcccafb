package ml

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
)

// RandomForest is a bagged ensemble of decision trees. Each tree is
// trained on a bootstrap sample and restricted to sqrt(n) random
// feature candidates per split.
type RandomForest struct {
	trees      []*DecisionTree
	numTrees   int
	maxDepth   int
	numClasses int
	seed       int64
}

type forestPayload struct {
	NumTrees   int             `json:"num_trees"`
	MaxDepth   int             `json:"max_depth"`
	NumClasses int             `json:"num_classes"`
	Seed       int64           `json:"seed"`
	Trees      []*DecisionTree `json:"trees"`
}

func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	if numTrees <= 0 {
		numTrees = 200
	}
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &RandomForest{numTrees: numTrees, maxDepth: maxDepth, seed: seed}
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}

	rf.numClasses = 0
	for _, label := range labels {
		if label < 0 {
			return errors.New("labels must be non-negative")
		}
		if label+1 > rf.numClasses {
			rf.numClasses = label + 1
		}
	}

	featureCount := len(features[0])
	featuresPerSplit := int(math.Sqrt(float64(featureCount)))
	if featuresPerSplit < 1 {
		featuresPerSplit = 1
	}

	rnd := rand.New(rand.NewSource(rf.seed))
	rf.trees = make([]*DecisionTree, 0, rf.numTrees)
	for i := 0; i < rf.numTrees; i++ {
		sampleX, sampleY := bootstrapSample(features, labels, rnd)
		tree := NewDecisionTree(rf.maxDepth)
		if err := tree.trainWith(sampleX, sampleY, featuresPerSplit, rnd); err != nil {
			return err
		}
		// a bootstrap sample can miss the rarest class entirely
		if tree.numClasses < rf.numClasses {
			tree.numClasses = rf.numClasses
		}
		rf.trees = append(rf.trees, tree)
	}
	return nil
}

func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := 0
	for class, p := range proba {
		if p > proba[label] {
			label = class
		}
	}
	return label, proba[label], nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	sum := make([]float64, rf.numClasses)
	for _, tree := range rf.trees {
		proba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for class, p := range proba {
			if class < len(sum) {
				sum[class] += p
			}
		}
	}
	for class := range sum {
		sum[class] /= float64(len(rf.trees))
	}
	return sum, nil
}

func (rf *RandomForest) NumClasses() int { return rf.numClasses }

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestPayload{
		NumTrees:   rf.numTrees,
		MaxDepth:   rf.maxDepth,
		NumClasses: rf.numClasses,
		Seed:       rf.seed,
		Trees:      rf.trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var payload forestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	rf.numTrees = payload.NumTrees
	rf.maxDepth = payload.MaxDepth
	rf.numClasses = payload.NumClasses
	rf.seed = payload.Seed
	rf.trees = payload.Trees
	return nil
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(rf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (rf *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, rf)
}

func bootstrapSample(features [][]float64, labels []int, rnd *rand.Rand) ([][]float64, []int) {
	n := len(features)
	sampleX := make([][]float64, n)
	sampleY := make([]int, n)
	for i := 0; i < n; i++ {
		idx := rnd.Intn(n)
		sampleX[i] = features[idx]
		sampleY[i] = labels[idx]
	}
	return sampleX, sampleY
}
