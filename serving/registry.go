// Package serving owns the live model: loading artifacts, hot reload,
// and the prediction cache.
package serving

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"winecast/ml"
	"winecast/monitoring"
)

const reloadDebounce = 250 * time.Millisecond

// Registry holds the model and feature schema currently serving
// traffic. Reloads swap both atomically and bump the generation
// counter, which keys the prediction cache.
type Registry struct {
	mu         sync.RWMutex
	model      ml.MLModel
	schema     *ml.FeatureSchema
	generation uint64
	loadedAt   time.Time

	modelType    string
	modelPath    string
	featuresPath string
	logger       *zap.Logger
}

func NewRegistry(modelType, modelPath, featuresPath string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		modelType:    modelType,
		modelPath:    modelPath,
		featuresPath: featuresPath,
		logger:       logger,
	}
}

// Load reads both artifacts from disk and swaps them in. The old model
// keeps serving until both reads succeed.
func (r *Registry) Load() error {
	model, err := ml.LoadModel(r.modelType, r.modelPath)
	if err != nil {
		return fmt.Errorf("load model %s: %w", r.modelPath, err)
	}
	schema, err := ml.LoadSchema(r.featuresPath)
	if err != nil {
		return fmt.Errorf("load feature schema %s: %w", r.featuresPath, err)
	}

	r.mu.Lock()
	r.model = model
	r.schema = schema
	r.generation++
	r.loadedAt = time.Now().UTC()
	generation := r.generation
	r.mu.Unlock()

	monitoring.ModelReloads.Inc()
	monitoring.ModelGeneration.Set(float64(generation))
	r.logger.Info("model loaded",
		zap.String("type", r.modelType),
		zap.String("path", r.modelPath),
		zap.Uint64("generation", generation),
		zap.Int("features", len(schema.FeatureOrder)))
	return nil
}

// Current returns the serving model, schema and generation. ok is
// false until the first successful Load.
func (r *Registry) Current() (ml.Classifier, *ml.FeatureSchema, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.model == nil || r.schema == nil {
		return nil, nil, 0, false
	}
	return r.model, r.schema, r.generation, true
}

func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

func (r *Registry) ModelType() string { return r.modelType }

// Watch reloads the artifacts whenever the trainer rewrites them. The
// trainer saves via rename, so create/rename/write events on the
// artifact names all count; reloads are debounced because one save
// produces several events.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]bool{
		filepath.Dir(r.modelPath):    true,
		filepath.Dir(r.featuresPath): true,
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go func() {
		defer watcher.Close()

		timer := time.NewTimer(reloadDebounce)
		if !timer.Stop() {
			<-timer.C
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !r.isArtifact(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(reloadDebounce)

			case <-timer.C:
				if err := r.Load(); err != nil {
					r.logger.Warn("model reload failed", zap.Error(err))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("artifact watcher error", zap.Error(err))

			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (r *Registry) isArtifact(path string) bool {
	base := filepath.Base(path)
	return base == filepath.Base(r.modelPath) || base == filepath.Base(r.featuresPath)
}
