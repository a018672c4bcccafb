// Package http 提供API处理器
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"winecast/logging"
	"winecast/ml"
)

// ModelSource 提供当前服务中的模型
type ModelSource interface {
	Current() (ml.Classifier, *ml.FeatureSchema, uint64, bool)
	LoadedAt() time.Time
	ModelType() string
}

var modelSource ModelSource

// SetModelSource 设置模型来源
func SetModelSource(source ModelSource) {
	modelSource = source
}

// RegisterHandlers 注册基础处理器
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", handleIndex)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/model/info", handleModelInfo)
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	var expected []string
	if modelSource != nil {
		if _, schema, _, ok := modelSource.Current(); ok {
			expected = schema.FeatureOrder
		}
	}

	respondJSON(w, map[string]interface{}{
		"message":           "Wine classifier API. POST feature vectors to the predict endpoint.",
		"expected_features": expected,
		"predict_endpoint":  "/api/predict",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	modelLoaded := false
	if modelSource != nil {
		_, _, _, modelLoaded = modelSource.Current()
	}
	if !modelLoaded {
		status = "degraded"
	}

	payload := map[string]interface{}{
		"status":       status,
		"model_loaded": modelLoaded,
		"timestamp":    time.Now().UTC(),
	}
	if monitor != nil {
		payload["websocket"] = monitor.GetStats()
	}

	respondJSON(w, payload)
}

func handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if modelSource == nil {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	model, schema, generation, ok := modelSource.Current()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}

	info := map[string]interface{}{
		"model_type": modelSource.ModelType(),
		"generation": generation,
		"loaded_at":  modelSource.LoadedAt(),
		"features":   schema.FeatureOrder,
	}
	if named, ok := model.(interface{ ClassNames() []string }); ok {
		info["class_names"] = named.ClassNames()
	}

	respondJSON(w, info)
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.L().Error("failed to encode JSON", zap.Error(err))
	}
}

// respondJSONStatus 带状态码的JSON响应，头必须在WriteHeader之前设置
func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.L().Error("failed to encode JSON", zap.Error(err))
	}
}

// respondError 统一错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
