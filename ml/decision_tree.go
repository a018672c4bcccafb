package ml

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
)

type DecisionTree struct {
	nodes      []TreeNode
	numClasses int
	maxDepth   int
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	ClassCounts []int   `json:"class_counts,omitempty"`
	IsLeaf      bool    `json:"is_leaf"`
}

type treePayload struct {
	NumClasses int        `json:"num_classes"`
	MaxDepth   int        `json:"max_depth"`
	Nodes      []TreeNode `json:"nodes"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &DecisionTree{maxDepth: maxDepth}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	return dt.trainWith(features, labels, 0, nil)
}

// trainWith is the forest entry point: featuresPerSplit > 0 restricts
// each split to a random subset of feature columns.
func (dt *DecisionTree) trainWith(features [][]float64, labels []int, featuresPerSplit int, rnd *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if dt.maxDepth <= 0 {
		dt.maxDepth = 3
	}

	dt.numClasses = 0
	for _, label := range labels {
		if label < 0 {
			return errors.New("labels must be non-negative")
		}
		if label+1 > dt.numClasses {
			dt.numClasses = label + 1
		}
	}

	dt.nodes = dt.buildNode(features, labels, 0, featuresPerSplit, rnd)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	counts, err := dt.leafCounts(features)
	if err != nil {
		return 0, 0, err
	}
	label, total, best := 0, 0, -1
	for class, count := range counts {
		total += count
		if count > best {
			best = count
			label = class
		}
	}
	if total == 0 {
		return 0, 0, errors.New("empty leaf")
	}
	return label, float64(best) / float64(total), nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	counts, err := dt.leafCounts(features)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, count := range counts {
		total += count
	}
	if total == 0 {
		return nil, errors.New("empty leaf")
	}
	proba := make([]float64, len(counts))
	for class, count := range counts {
		proba[class] = float64(count) / float64(total)
	}
	return proba, nil
}

func (dt *DecisionTree) leafCounts(features []float64) ([]int, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassCounts, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) NumClasses() int { return dt.numClasses }

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(treePayload{
		NumClasses: dt.numClasses,
		MaxDepth:   dt.maxDepth,
		Nodes:      dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var payload treePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	dt.numClasses = payload.NumClasses
	dt.maxDepth = payload.MaxDepth
	dt.nodes = payload.Nodes
	return nil
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dt)
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth, featuresPerSplit int, rnd *rand.Rand) []TreeNode {
	leaf := func() []TreeNode {
		return []TreeNode{{
			FeatureIdx:  -1,
			LeftChild:   -1,
			RightChild:  -1,
			ClassCounts: classCounts(labels, dt.numClasses),
			IsLeaf:      true,
		}}
	}

	if depth >= dt.maxDepth || isPure(labels) {
		return leaf()
	}

	candidates := dt.candidateFeatures(len(features[0]), featuresPerSplit, rnd)
	bestFeature, threshold, ok := findBestSplit(features, labels, candidates)
	if !ok {
		return leaf()
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return leaf()
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1, featuresPerSplit, rnd)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1, featuresPerSplit, rnd)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

func (dt *DecisionTree) candidateFeatures(featureCount, featuresPerSplit int, rnd *rand.Rand) []int {
	if featuresPerSplit <= 0 || featuresPerSplit >= featureCount || rnd == nil {
		candidates := make([]int, featureCount)
		for i := range candidates {
			candidates[i] = i
		}
		return candidates
	}
	return rnd.Perm(featureCount)[:featuresPerSplit]
}

func findBestSplit(features [][]float64, labels []int, candidates []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for _, featureIdx := range candidates {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sortFloats(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func sortFloats(values []float64) {
	for i := 1; i < len(values); i++ {
		j := i
		for j > 0 && values[j-1] > values[j] {
			values[j-1], values[j] = values[j], values[j-1]
			j--
		}
	}
}

func classCounts(labels []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, label := range labels {
		if label >= 0 && label < numClasses {
			counts[label]++
		}
	}
	return counts
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
