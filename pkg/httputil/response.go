package httputil

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cwrk-planet/collab-service/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
)

type envelope map[string]any

func JSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(ctx).Error("write json response failed", "err", err)
	}
}

// OK: «успешный» ответ с обёрткой.
func OK(ctx context.Context, w http.ResponseWriter, data any) {
	JSON(ctx, w, http.StatusOK, envelope{"data": data})
}

// Error: унифицированная ошибка (message + request_id).
func Error(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	body := envelope{"message": msg}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		body["request_id"] = reqID
	}
	JSON(ctx, w, status, envelope{"error": body})
}
