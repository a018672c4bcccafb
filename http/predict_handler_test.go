package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"winecast/db"
	"winecast/ml"
)

type fakeModel struct {
	label      int
	confidence float64
	proba      []float64
	names      []string
	err        error
}

func (f *fakeModel) Predict(features []float64) (int, float64, error) {
	return f.label, f.confidence, f.err
}

func (f *fakeModel) PredictProba(features []float64) ([]float64, error) {
	return f.proba, f.err
}

func (f *fakeModel) ClassNames() []string {
	return f.names
}

type fakeSource struct {
	model      ml.Classifier
	schema     *ml.FeatureSchema
	generation uint64
	loaded     bool
}

func (f *fakeSource) Current() (ml.Classifier, *ml.FeatureSchema, uint64, bool) {
	return f.model, f.schema, f.generation, f.loaded
}

func (f *fakeSource) LoadedAt() time.Time { return time.Unix(1700000000, 0) }
func (f *fakeSource) ModelType() string   { return "random_forest" }

func wineSource() *fakeSource {
	return &fakeSource{
		model: &fakeModel{
			label:      1,
			confidence: 0.8,
			proba:      []float64{0.1, 0.8, 0.1},
			names:      []string{"barolo", "grignolino", "barbera"},
		},
		schema:     ml.NewFeatureSchema([]string{"alcohol", "malic_acid"}),
		generation: 1,
		loaded:     true,
	}
}

func TestHandlePredict(t *testing.T) {
	mux := http.NewServeMux()
	RegisterPredictHandlers(mux)
	SetModelSource(wineSource())

	var mu sync.Mutex
	var saved []db.PredictionRecord
	savePredictions = func(records []db.PredictionRecord) error {
		mu.Lock()
		saved = append(saved, records...)
		mu.Unlock()
		return nil
	}
	defer func() {
		savePredictions = db.SavePredictions
		SetModelSource(nil)
	}()

	body := `{"instances":[{"alcohol":13.2,"malic_acid":1.78},{"alcohol":12.3,"malic_acid":2.1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload predictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload.Predictions) != 2 || payload.Predictions[0] != 1 {
		t.Fatalf("unexpected predictions: %v", payload.Predictions)
	}
	if payload.Classes[0] != "grignolino" {
		t.Fatalf("unexpected class: %v", payload.Classes)
	}
	if len(payload.Probas) != 2 || payload.Probas[0][1] != 0.8 {
		t.Fatalf("unexpected probas: %v", payload.Probas)
	}
	if len(payload.ClassNames) != 3 {
		t.Fatalf("unexpected class names: %v", payload.ClassNames)
	}

	// persistence runs async
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(saved)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 persisted records, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlePredictMissingInstancesKey(t *testing.T) {
	mux := http.NewServeMux()
	RegisterPredictHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"rows":[]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "'instances' key") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestHandlePredictEmptyInstances(t *testing.T) {
	mux := http.NewServeMux()
	RegisterPredictHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"instances":[]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "non-empty list") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestHandlePredictMissingFeature(t *testing.T) {
	mux := http.NewServeMux()
	RegisterPredictHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"instances":[{"alcohol":13.2}]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "missing features in instance 0") ||
		!strings.Contains(w.Body.String(), "malic_acid") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestHandlePredictNonNumericValue(t *testing.T) {
	mux := http.NewServeMux()
	RegisterPredictHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"instances":[{"alcohol":"13.2","malic_acid":1.78}]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"alcohol"`) {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestHandlePredictInstanceNotObject(t *testing.T) {
	mux := http.NewServeMux()
	RegisterPredictHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"instances":[[13.2,1.78]]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not a valid JSON object") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestHandlePredictModelNotLoaded(t *testing.T) {
	mux := http.NewServeMux()
	RegisterPredictHandlers(mux)
	SetModelSource(&fakeSource{})
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"instances":[{"alcohol":13.2,"malic_acid":1.78}]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
