// 包 api：集中注册 HTTP API 路由以解耦主入口
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/yisiliu2005/masiv2025/internal/dataset"
	"github.com/yisiliu2005/masiv2025/internal/interpreter"
	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
	"github.com/yisiliu2005/masiv2025/internal/store"
)

const welcome = "Welcome to the Calgary 3D City Dashboard API!"

// maxQueryBody：查询请求体上限
const maxQueryBody = 64 << 10

// Deps：路由依赖；Store 可为 nil（未启用 PostgreSQL）
type Deps struct {
	Holder      *dataset.Holder
	Interpreter interpreter.Interpreter
	Store       *store.Store
	AdminToken  string
	// OnRefresh：手动刷新成功后的回调，可为 nil
	OnRefresh func(ctx context.Context, s *dataset.Snapshot)
	// RefreshTimeout：手动刷新的超时，<=0 时为 defaultRefreshTimeout
	RefreshTimeout time.Duration
}

const defaultRefreshTimeout = 5 * time.Minute

type queryRequest struct {
	Query  string `json:"query"`
	APIKey string `json:"api_key"`
}

type buildingsResponse struct {
	Data    []dataset.Building `json:"data"`
	Error   *string            `json:"error"`
	Message string             `json:"message"`
}

type statsResponse struct {
	Snapshot *dataset.Snapshot `json:"snapshot"`
	Queries  *store.Totals     `json:"queries"`
}

// 文档注释：构建路由
// 背景：根路径提供欢迎语与健康检查，业务接口挂在 base（默认 /api）下。
// 约束：base 末尾的斜杠会被去掉；指标接口为 {base}/metrics。
func BuildRoutes(base string, d Deps) *mux.Router {
	base = strings.TrimRight(base, "/")
	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(welcome))
	}).Methods(http.MethodGet)
	r.HandleFunc("/health", instrument("health", func(w http.ResponseWriter, r *http.Request) {
		s := d.Holder.Load()
		sendJSON(w, http.StatusOK, map[string]any{"status": "ok", "buildings": len(s.Buildings), "version": s.Version})
	})).Methods(http.MethodGet)

	sub := r.PathPrefix(base).Subrouter()
	sub.HandleFunc("/buildings", instrument("buildings", d.buildings)).Methods(http.MethodGet)
	sub.HandleFunc("/query", instrument("query", d.query)).Methods(http.MethodPost)
	sub.HandleFunc("/stats", instrument("stats", d.stats)).Methods(http.MethodGet)
	sub.HandleFunc("/queries", instrument("queries", d.queries)).Methods(http.MethodGet)
	sub.HandleFunc("/refresh", instrument("refresh", d.refresh)).Methods(http.MethodPost)
	sub.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (d Deps) buildings(w http.ResponseWriter, r *http.Request) {
	s := d.Holder.Load()
	sendJSON(w, http.StatusOK, buildingsResponse{
		Data:    s.Buildings,
		Message: fmt.Sprintf("Returned %d buildings", len(s.Buildings)),
	})
}

func (d Deps) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, emptyQuery("Invalid JSON body", "Request body must be a JSON object"))
		return
	}
	text := strings.TrimSpace(req.Query)
	if text == "" {
		sendJSON(w, http.StatusBadRequest, emptyQuery("Query cannot be empty", "Please provide a query"))
		return
	}
	ctx := interpreter.WithAPIKey(r.Context(), strings.TrimSpace(req.APIKey))
	sendJSON(w, http.StatusOK, RunQuery(ctx, d.Holder.Load(), d.Interpreter, d.Store, text))
}

func emptyQuery(errMsg, msg string) QueryResult {
	return QueryResult{MatchingIDs: []string{}, Error: &errMsg, Message: msg}
}

func (d Deps) stats(w http.ResponseWriter, r *http.Request) {
	t, err := d.Store.GetTotals(r.Context())
	if err != nil {
		logger.For("api").Warn("stats_totals_error", "err", err)
	}
	sendJSON(w, http.StatusOK, statsResponse{Snapshot: d.Holder.Load(), Queries: t})
}

func (d Deps) queries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := d.Store.RecentQueries(r.Context(), limit)
	if err != nil {
		logger.For("api").Warn("recent_queries_error", "err", err)
		sendError(w, http.StatusInternalServerError, err.Error(), "Failed to read query log")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"data": rows})
}

// refresh：管理员触发整体刷新；令牌未配置时接口关闭
// 约束：刷新脱离请求上下文，客户端断开不会中止拉取，只受 RefreshTimeout 限制
func (d Deps) refresh(w http.ResponseWriter, r *http.Request) {
	t := r.Header.Get("x-admin-token")
	if d.AdminToken == "" || subtle.ConstantTimeCompare([]byte(t), []byte(d.AdminToken)) != 1 {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	timeout := d.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()
	s, err := d.Holder.Refresh(ctx)
	if err != nil {
		logger.For("api").Error("refresh_error", "err", err)
		sendError(w, http.StatusServiceUnavailable, err.Error(), "Refresh did not complete")
		return
	}
	if d.OnRefresh != nil {
		d.OnRefresh(ctx, s)
	}
	w.WriteHeader(http.StatusNoContent)
}
