// Package http 提供审计查询处理器
package http

import (
	"net/http"
	"strconv"

	"winecast/db"
)

const defaultRecentLimit = 50

// RegisterAuditHandlers 注册审计处理器
func RegisterAuditHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/predictions/recent", handleRecentPredictions)
	mux.HandleFunc("GET /api/training/log", handleTrainingLog)
}

func handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := db.LoadRecentPredictions(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load predictions")
		return
	}
	if records == nil {
		records = []db.PredictionRecord{}
	}

	respondJSON(w, map[string]interface{}{
		"predictions": records,
		"count":       len(records),
	})
}

func handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	entries, err := db.LoadTrainingLog()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load training log")
		return
	}
	if entries == nil {
		entries = []db.TrainingLog{}
	}

	respondJSON(w, map[string]interface{}{
		"runs":  entries,
		"count": len(entries),
	})
}
