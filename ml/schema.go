package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// FeatureSchema pins the column order the model was trained with.
// Incoming records are validated against it and reordered into a flat
// matrix before prediction.
type FeatureSchema struct {
	FeatureOrder []string `json:"feature_order"`
}

func NewFeatureSchema(featureOrder []string) *FeatureSchema {
	return &FeatureSchema{FeatureOrder: append([]string(nil), featureOrder...)}
}

func LoadSchema(path string) (*FeatureSchema, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schema FeatureSchema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, fmt.Errorf("parse feature schema: %w", err)
	}
	if len(schema.FeatureOrder) == 0 {
		return nil, errors.New("feature schema has no feature_order")
	}
	return &schema, nil
}

func (s *FeatureSchema) Save(path string) error {
	if len(s.FeatureOrder) == 0 {
		return errors.New("feature schema has no feature_order")
	}
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(payload, '\n'))
}

// BuildMatrix validates a list of name->value records and builds the
// feature matrix in schema order. Every schema feature must be present
// with a numeric value; extra keys are ignored.
func (s *FeatureSchema) BuildMatrix(instances []map[string]interface{}) ([][]float64, error) {
	if len(instances) == 0 {
		return nil, errors.New("the 'instances' field must be a non-empty list")
	}
	matrix := make([][]float64, len(instances))
	for idx, instance := range instances {
		vector, err := s.BuildVector(instance, idx)
		if err != nil {
			return nil, err
		}
		matrix[idx] = vector
	}
	return matrix, nil
}

func (s *FeatureSchema) BuildVector(instance map[string]interface{}, idx int) ([]float64, error) {
	if instance == nil {
		return nil, fmt.Errorf("instance at position %d is not a valid JSON object", idx)
	}

	var missing []string
	for _, name := range s.FeatureOrder {
		if _, ok := instance[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing features in instance %d: %v", idx, missing)
	}

	vector := make([]float64, len(s.FeatureOrder))
	for i, name := range s.FeatureOrder {
		value, ok := instance[name].(float64)
		if !ok {
			return nil, fmt.Errorf("value of %q in instance %d is not numeric", name, idx)
		}
		vector[i] = value
	}
	return vector, nil
}
