package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"winecast/db"
	whttp "winecast/http"
	"winecast/logging"
	"winecast/monitoring"
	"winecast/serving"
)

type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log logging.Config `yaml:"log"`
	ML  struct {
		ModelType    string  `yaml:"model_type"`
		ModelPath    string  `yaml:"model_path"`
		FeaturesPath string  `yaml:"features_path"`
		Trees        int     `yaml:"trees"`
		MaxDepth     int     `yaml:"max_depth"`
		TestRatio    float64 `yaml:"test_ratio"`
		Seed         int64   `yaml:"seed"`
		CacheSize    int     `yaml:"cache_size"`
	} `yaml:"ml"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logging and metrics
	if _, err := logging.Init(config.Log); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()
	monitoring.RegisterMetrics()

	// 3. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		logging.L().Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	logging.L().Info("database initialized", zap.String("path", config.Database.Path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Model registry: serve degraded until the first artifacts show up
	registry := serving.NewRegistry(config.ML.ModelType, config.ML.ModelPath, config.ML.FeaturesPath, logging.L())
	if err := registry.Load(); err != nil {
		logging.L().Warn("model artifacts not loaded yet, serving degraded", zap.Error(err))
	}
	if err := registry.Watch(ctx); err != nil {
		logging.L().Warn("artifact watcher unavailable", zap.Error(err))
	}

	cacheSize := config.ML.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := serving.NewCache(cacheSize)
	if err != nil {
		logging.L().Fatal("failed to create prediction cache", zap.Error(err))
	}

	// 5. Realtime prediction feed
	monitor := monitoring.NewMonitor(logging.L())
	if err := monitor.Start(); err != nil {
		logging.L().Fatal("failed to start monitor", zap.Error(err))
	}
	defer monitor.Stop()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := monitor.SendHeartbeat(); err != nil {
					logging.L().Debug("heartbeat skipped", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// 6. Wire handlers and start the HTTP server
	whttp.SetModelSource(registry)
	whttp.SetPredictionCache(cache)
	whttp.SetMonitor(monitor)
	whttp.SetTrainingConfig(whttp.TrainingConfig{
		ModelName:    "wine_rf",
		Trees:        config.ML.Trees,
		MaxDepth:     config.ML.MaxDepth,
		TestRatio:    config.ML.TestRatio,
		Seed:         config.ML.Seed,
		ModelPath:    config.ML.ModelPath,
		FeaturesPath: config.ML.FeaturesPath,
	})

	serverConfig := whttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	server := whttp.NewServer(serverConfig, monitor)
	go func() {
		if err := server.Start(); err != nil {
			logging.L().Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.L().Info("shutting down")

	cancel()
	if err := server.Stop(); err != nil {
		logging.L().Warn("server forced to shutdown", zap.Error(err))
	}
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
