package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
)

// errorResponse：通用错误体
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func sendJSON(w http.ResponseWriter, status int, object any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(object); err != nil {
		logger.For("api").Warn("response_encode_error", "err", err)
	}
}

func sendError(w http.ResponseWriter, status int, errMsg, msg string) {
	sendJSON(w, status, errorResponse{Error: errMsg, Message: msg})
}

// recorder：捕获状态码用于路由指标
type recorder struct {
	http.ResponseWriter
	status int
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument：按路由名记录请求数与耗时
func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(t0).Milliseconds()))
	}
}
