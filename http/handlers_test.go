package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleIndex(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["predict_endpoint"] != "/api/predict" {
		t.Fatalf("unexpected predict endpoint: %v", payload["predict_endpoint"])
	}
	features, ok := payload["expected_features"].([]interface{})
	if !ok || len(features) != 2 {
		t.Fatalf("unexpected expected_features: %v", payload["expected_features"])
	}
	if features[0] != "alcohol" {
		t.Fatalf("unexpected first feature: %v", features[0])
	}
}

func TestHandleHealth(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["status"] != "ok" || payload["model_loaded"] != true {
		t.Fatalf("unexpected health payload: %v", payload)
	}
}

func TestHandleHealthDegradedWithoutModel(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	SetModelSource(&fakeSource{})
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["status"] != "degraded" || payload["model_loaded"] != false {
		t.Fatalf("unexpected health payload: %v", payload)
	}
}

func TestHandleModelInfo(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	SetModelSource(wineSource())
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/model/info", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["model_type"] != "random_forest" {
		t.Fatalf("unexpected model type: %v", payload["model_type"])
	}
	if payload["generation"].(float64) != 1 {
		t.Fatalf("unexpected generation: %v", payload["generation"])
	}
	names, ok := payload["class_names"].([]interface{})
	if !ok || len(names) != 3 {
		t.Fatalf("unexpected class names: %v", payload["class_names"])
	}
}

func TestHandleModelInfoNotLoaded(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	SetModelSource(&fakeSource{})
	defer SetModelSource(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/model/info", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
