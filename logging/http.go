package logging

import (
	"log/slog"
	"net/http"
	"time"
)

type loggingHandler struct {
	httpHandler http.Handler
	log         *slog.Logger
}

// NewHTTPHandler logs every request served by h at debug level.
func NewHTTPHandler(h http.Handler, logger *slog.Logger) http.Handler {
	return &loggingHandler{
		httpHandler: h,
		log:         logger,
	}
}

func (h *loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.httpHandler.ServeHTTP(w, r)
	h.log.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "duration", time.Since(start))
}
