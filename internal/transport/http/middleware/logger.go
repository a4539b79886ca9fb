package httpmw

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/collab-service/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// RequestLogger кладёт логгер запроса в контекст и пишет итоговую строку.
// Не подходит для /ws: statusWriter не умеет Hijack.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		l := logger.L().With(
			slog.String("req_id", middleware.GetReqID(ctx)),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
		)
		ctx = logger.WithContext(ctx, l)

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		level := slog.LevelInfo
		switch {
		case sw.status >= 500:
			level = slog.LevelError
		case sw.status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.Int("status", sw.status),
			slog.Int64("bytes", sw.bytes),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_ip", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
		}
		attrs = append(attrs, logger.AttrsFromCtx(ctx)...)
		l.LogAttrs(ctx, level, "http_request", attrs...)
	})
}
