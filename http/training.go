// Package http 提供模型训练处理器
package http

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"winecast/dataset"
	"winecast/db"
	"winecast/logging"
	"winecast/ml"
	"winecast/monitoring"
)

// TrainingConfig 训练配置
type TrainingConfig struct {
	ModelName    string
	Trees        int
	MaxDepth     int
	TestRatio    float64
	Seed         int64
	ModelPath    string
	FeaturesPath string
}

var (
	trainingConfig *TrainingConfig
	trainingActive atomic.Bool

	// 可替换以便测试
	saveTrainingLog = db.SaveTrainingLog
)

// SetTrainingConfig 设置训练配置
func SetTrainingConfig(config TrainingConfig) {
	trainingConfig = &config
}

// RegisterTrainingHandlers 注册训练处理器
func RegisterTrainingHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/model/retrain", handleRetrain)
}

// retrainRequest 可选的超参数覆盖
type retrainRequest struct {
	Trees     int     `json:"trees"`
	MaxDepth  int     `json:"max_depth"`
	TestRatio float64 `json:"test_ratio"`
	Seed      int64   `json:"seed"`
}

func handleRetrain(w http.ResponseWriter, r *http.Request) {
	if trainingConfig == nil {
		respondError(w, http.StatusServiceUnavailable, "training is not configured")
		return
	}

	var req retrainRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "request body must be valid JSON")
			return
		}
	}

	config := *trainingConfig
	if req.Trees > 0 {
		config.Trees = req.Trees
	}
	if req.MaxDepth > 0 {
		config.MaxDepth = req.MaxDepth
	}
	if req.TestRatio > 0 && req.TestRatio < 1 {
		config.TestRatio = req.TestRatio
	}
	if req.Seed != 0 {
		config.Seed = req.Seed
	}

	if !trainingActive.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "a training run is already in progress")
		return
	}

	go func() {
		defer trainingActive.Store(false)
		if err := runTraining(config); err != nil {
			monitoring.TrainingRuns.WithLabelValues("error").Inc()
			logging.L().Error("training run failed", zap.Error(err))
			notifyTrainingStatus("error", err.Error())
			return
		}
		monitoring.TrainingRuns.WithLabelValues("success").Inc()
		notifyTrainingStatus("ok", "model retrained")
	}()

	respondJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"status":     "training started",
		"model_name": config.ModelName,
		"trees":      config.Trees,
		"max_depth":  config.MaxDepth,
	})
}

func notifyTrainingStatus(status, message string) {
	if monitor == nil {
		return
	}
	event := monitoring.SystemStatusMessage{
		Component: "training",
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := monitor.SendSystemStatus(event); err != nil {
		logging.L().Warn("failed to broadcast training status", zap.Error(err))
	}
}

// runTraining 加载数据集、训练流水线并原子替换模型文件。
// 文件监视器会在写入后自动热加载新模型。
func runTraining(config TrainingConfig) error {
	data, err := dataset.Load()
	if err != nil {
		return err
	}
	trainX, trainY, testX, testY := data.Split(config.TestRatio, config.Seed)

	pipe := ml.NewPipeline(config.Trees, config.MaxDepth, config.Seed, data.ClassNames)
	start := time.Now()
	if err := pipe.Train(trainX, trainY); err != nil {
		return err
	}

	eval, err := ml.Evaluate(pipe, testX, testY)
	if err != nil {
		return err
	}
	precision, recall := eval.MacroPrecisionRecall()

	if err := pipe.Save(config.ModelPath); err != nil {
		return err
	}
	schema := ml.NewFeatureSchema(data.FeatureNames)
	if err := schema.Save(config.FeaturesPath); err != nil {
		return err
	}

	logging.L().Info("training run finished",
		zap.String("model", config.ModelName),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("precision", precision),
		zap.Float64("recall", recall),
		zap.Int("train_points", len(trainX)),
		zap.Duration("elapsed", time.Since(start)))

	entry := db.TrainingLog{
		ModelName:  config.ModelName,
		Accuracy:   eval.Accuracy,
		Precision:  precision,
		Recall:     recall,
		TrainedAt:  time.Now().UTC(),
		DataPoints: len(trainX),
	}
	if err := saveTrainingLog(entry); err != nil {
		logging.L().Warn("failed to record training log", zap.Error(err))
	}
	return nil
}
