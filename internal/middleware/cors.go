// 包 middleware：HTTP 入口中间件（跨域、限流）
package middleware

import (
	"net/http"
	"strings"
)

// 文档注释：跨域中间件
// 背景：仪表盘前端与 API 分开部署，需要浏览器跨域访问。
// 约束：origins 含 "*" 时放行所有来源；预检请求（OPTIONS + Access-Control-Request-Method）直接返回 204。
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := false
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || allowed[origin]) {
				h := w.Header()
				if wildcard {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Token, X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
