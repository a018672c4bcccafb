package ml

import (
	"errors"
	"fmt"
	"strings"
)

type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

type Evaluation struct {
	Accuracy  float64        `json:"accuracy"`
	Classes   []ClassMetrics `json:"classes"`
	Confusion [][]int        `json:"confusion"`
}

// Evaluate scores a trained classifier against a labeled test set.
func Evaluate(model Classifier, features [][]float64, labels []int) (*Evaluation, error) {
	if len(features) == 0 {
		return nil, errors.New("test set is empty")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}

	numClasses := 0
	for _, label := range labels {
		if label+1 > numClasses {
			numClasses = label + 1
		}
	}

	predicted := make([]int, len(features))
	for i, feature := range features {
		label, _, err := model.Predict(feature)
		if err != nil {
			return nil, fmt.Errorf("predict test row %d: %w", i, err)
		}
		if label+1 > numClasses {
			numClasses = label + 1
		}
		predicted[i] = label
	}

	confusion := make([][]int, numClasses)
	for i := range confusion {
		confusion[i] = make([]int, numClasses)
	}
	correct := 0
	for i, label := range labels {
		confusion[label][predicted[i]]++
		if predicted[i] == label {
			correct++
		}
	}

	eval := &Evaluation{
		Accuracy:  float64(correct) / float64(len(labels)),
		Confusion: confusion,
		Classes:   make([]ClassMetrics, numClasses),
	}
	for class := 0; class < numClasses; class++ {
		var truePositive, predictedPositive, actualPositive int
		for other := 0; other < numClasses; other++ {
			predictedPositive += confusion[other][class]
			actualPositive += confusion[class][other]
		}
		truePositive = confusion[class][class]

		metrics := ClassMetrics{Support: actualPositive}
		if predictedPositive > 0 {
			metrics.Precision = float64(truePositive) / float64(predictedPositive)
		}
		if actualPositive > 0 {
			metrics.Recall = float64(truePositive) / float64(actualPositive)
		}
		if metrics.Precision+metrics.Recall > 0 {
			metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
		}
		eval.Classes[class] = metrics
	}
	return eval, nil
}

// Report renders a per-class summary for the trainer log.
func (e *Evaluation) Report(classNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "accuracy=%.4f\n", e.Accuracy)
	for class, metrics := range e.Classes {
		name := fmt.Sprintf("class_%d", class)
		if class < len(classNames) {
			name = classNames[class]
		}
		fmt.Fprintf(&b, "%-12s precision=%.2f recall=%.2f f1=%.2f support=%d\n",
			name, metrics.Precision, metrics.Recall, metrics.F1, metrics.Support)
	}
	return b.String()
}

// MacroPrecisionRecall averages per-class precision and recall, the
// pair recorded in the training log.
func (e *Evaluation) MacroPrecisionRecall() (precision, recall float64) {
	if len(e.Classes) == 0 {
		return 0, 0
	}
	for _, metrics := range e.Classes {
		precision += metrics.Precision
		recall += metrics.Recall
	}
	n := float64(len(e.Classes))
	return precision / n, recall / n
}
