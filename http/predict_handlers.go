// Package http 提供预测处理器
package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"winecast/db"
	"winecast/logging"
	"winecast/ml"
	"winecast/monitoring"
	"winecast/serving"
)

var (
	predictionCache *serving.Cache
	monitor         *monitoring.Monitor

	// 可替换以便测试
	savePredictions = db.SavePredictions
)

// SetPredictionCache 设置预测缓存
func SetPredictionCache(cache *serving.Cache) {
	predictionCache = cache
}

// SetMonitor 设置实时监控器
func SetMonitor(m *monitoring.Monitor) {
	monitor = m
}

// RegisterPredictHandlers 注册预测处理器
func RegisterPredictHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/predict", handlePredict)
}

// predictRequest 预测请求体
type predictRequest struct {
	Instances *[]interface{} `json:"instances"`
}

// predictResponse 预测响应体
type predictResponse struct {
	Predictions []int       `json:"predictions"`
	Classes     []string    `json:"classes"`
	Probas      [][]float64 `json:"probas"`
	ClassNames  []string    `json:"class_names"`
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		monitoring.PredictErrors.WithLabelValues("validation").Inc()
		respondError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if req.Instances == nil {
		monitoring.PredictErrors.WithLabelValues("validation").Inc()
		respondError(w, http.StatusBadRequest, "JSON body must include the 'instances' key")
		return
	}

	if modelSource == nil {
		monitoring.PredictErrors.WithLabelValues("model_unavailable").Inc()
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	model, schema, generation, ok := modelSource.Current()
	if !ok {
		monitoring.PredictErrors.WithLabelValues("model_unavailable").Inc()
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}

	matrix, err := buildMatrix(schema, *req.Instances)
	if err != nil {
		monitoring.PredictErrors.WithLabelValues("validation").Inc()
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	monitoring.PredictInstances.Observe(float64(len(matrix)))

	classNames := resolveClassNames(model)

	resp := predictResponse{
		Predictions: make([]int, len(matrix)),
		Classes:     make([]string, len(matrix)),
		Probas:      make([][]float64, len(matrix)),
		ClassNames:  classNames,
	}

	records := make([]db.PredictionRecord, 0, len(matrix))
	requestID := GetRequestID(r.Context())

	for idx, vector := range matrix {
		label, confidence, proba, err := predictOne(model, generation, vector)
		if err != nil {
			monitoring.PredictErrors.WithLabelValues("internal").Inc()
			logging.L().Error("prediction failed",
				zap.String("request_id", requestID),
				zap.Int("instance", idx),
				zap.Error(err))
			respondError(w, http.StatusInternalServerError, "prediction failed")
			return
		}

		if len(classNames) == 0 {
			// 模型未携带类别名时按类别数生成
			classNames = defaultClassNames(len(proba))
			resp.ClassNames = classNames
		}

		resp.Predictions[idx] = label
		resp.Classes[idx] = className(classNames, label)
		resp.Probas[idx] = proba

		records = append(records, db.PredictionRecord{
			RequestID:      requestID,
			InstanceIdx:    idx,
			PredictedLabel: label,
			ClassName:      resp.Classes[idx],
			Confidence:     confidence,
		})
	}

	// 审计与推送不阻塞响应
	go persistPredictions(records)

	respondJSON(w, resp)
}

// buildMatrix 将原始JSON实例转换为按schema排序的特征矩阵
func buildMatrix(schema *ml.FeatureSchema, instances []interface{}) ([][]float64, error) {
	maps := make([]map[string]interface{}, len(instances))
	for idx, instance := range instances {
		obj, ok := instance.(map[string]interface{})
		if !ok {
			// BuildVector 产生统一的错误文案
			if _, err := schema.BuildVector(nil, idx); err != nil {
				return nil, err
			}
		}
		maps[idx] = obj
	}
	return schema.BuildMatrix(maps)
}

func predictOne(model ml.Classifier, generation uint64, vector []float64) (int, float64, []float64, error) {
	key := serving.Key(generation, vector)
	if predictionCache != nil {
		if cached, ok := predictionCache.Get(key); ok {
			monitoring.CacheHits.WithLabelValues("hit").Inc()
			return cached.Label, cached.Confidence, cached.Proba, nil
		}
		monitoring.CacheHits.WithLabelValues("miss").Inc()
	}

	label, confidence, err := model.Predict(vector)
	if err != nil {
		return 0, 0, nil, err
	}
	proba, err := model.PredictProba(vector)
	if err != nil {
		return 0, 0, nil, err
	}

	if predictionCache != nil {
		predictionCache.Add(key, serving.CachedPrediction{
			Label:      label,
			Confidence: confidence,
			Proba:      proba,
		})
	}
	return label, confidence, proba, nil
}

func resolveClassNames(model ml.Classifier) []string {
	if named, ok := model.(interface{ ClassNames() []string }); ok {
		return named.ClassNames()
	}
	return nil
}

func defaultClassNames(numClasses int) []string {
	names := make([]string, numClasses)
	for i := range names {
		names[i] = fmt.Sprintf("class_%d", i)
	}
	return names
}

func className(classNames []string, label int) string {
	if label >= 0 && label < len(classNames) {
		return classNames[label]
	}
	return fmt.Sprintf("class_%d", label)
}

func persistPredictions(records []db.PredictionRecord) {
	if err := savePredictions(records); err != nil {
		logging.L().Warn("failed to persist predictions", zap.Error(err))
	}
	if monitor == nil {
		return
	}
	for _, record := range records {
		event := monitoring.PredictionMessage{
			RequestID:   record.RequestID,
			InstanceIdx: record.InstanceIdx,
			Label:       record.PredictedLabel,
			ClassName:   record.ClassName,
			Confidence:  record.Confidence,
			Timestamp:   time.Now().UTC(),
		}
		if err := monitor.SendPrediction(event); err != nil {
			logging.L().Warn("failed to broadcast prediction", zap.Error(err))
		}
	}
}
