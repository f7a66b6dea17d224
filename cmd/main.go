// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yisiliu2005/masiv2025/internal/api"
	"github.com/yisiliu2005/masiv2025/internal/dataset"
	"github.com/yisiliu2005/masiv2025/internal/ingest"
	"github.com/yisiliu2005/masiv2025/internal/interpreter"
	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/middleware"
	"github.com/yisiliu2005/masiv2025/internal/migrate"
	"github.com/yisiliu2005/masiv2025/internal/provider"
	"github.com/yisiliu2005/masiv2025/internal/spatial"
	"github.com/yisiliu2005/masiv2025/internal/store"
	"github.com/yisiliu2005/masiv2025/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiBase := utils.EnvString("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	// 可选 PostgreSQL：查询审计与统计
	db, err := utils.OpenPostgresFromEnv(ctx)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	st := store.AttachDB(db)
	defer st.Close()
	if db != nil {
		l.Info("db_open_ok")
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
	} else {
		l.Info("db_disabled")
	}

	rc := utils.OpenRedisFromEnv(ctx)
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
	}

	policy, err := spatial.ParsePolicy(utils.EnvString("MATCH_POLICY", ""))
	if err != nil {
		l.Error("config_match_policy_error", "err", err)
		os.Exit(1)
	}
	src := provider.New(provider.Config{
		BaseURL:  utils.EnvString("SODA_BASE_URL", provider.DefaultBaseURL),
		AppToken: utils.EnvString("SODA_APP_TOKEN", ""),
		Limit:    utils.EnvInt("SODA_LIMIT", provider.DefaultLimit),
		Timeout:  utils.EnvDuration("SODA_TIMEOUT_S", provider.DefaultTimeout),
	})
	holder := dataset.NewHolder(src, dataset.JoinOptions{
		Policy:          policy,
		ProximityMeters: utils.EnvFloat("MATCH_PROXIMITY_M", spatial.DefaultProximityMeters),
	})
	onRefresh := func(ctx context.Context, s *dataset.Snapshot) { st.RecordRefresh(ctx, s.Version, s.Stats) }

	// 启动时同步加载一次，服务就绪即可查询
	if s, err := holder.Refresh(ctx); err != nil {
		l.Error("dataset_initial_load_error", "err", err)
	} else {
		onRefresh(ctx, s)
		l.Info("server_ready", "buildings", s.Stats.Buildings, "matched", s.Stats.Matched,
			"unmatched", s.Stats.Unmatched, "with_address", s.Stats.WithAddress, "with_value", s.Stats.WithValue)
	}
	ingest.StartInterval(ctx, holder, utils.EnvDuration("REFRESH_INTERVAL", 0), onRefresh)
	ingest.StartDaily(ctx, holder, utils.EnvString("REFRESH_TZ", "America/Edmonton"), utils.EnvInt("REFRESH_HOUR", -1), onRefresh)

	// 解释器：LLM 优先，固定规则兜底，外层缓存
	llm := interpreter.NewLLM(interpreter.LLMConfig{
		BaseURL: utils.EnvString("LLM_BASE_URL", interpreter.DefaultLLMBaseURL),
		Model:   utils.EnvString("LLM_MODEL", interpreter.DefaultLLMModel),
		Token:   utils.EnvString("HF_TOKEN", ""),
		Timeout: utils.EnvDuration("LLM_TIMEOUT_S", 30*time.Second),
	})
	interp := interpreter.NewCached(interpreter.Chain{llm, interpreter.Rules{}}, rc,
		utils.EnvDuration("INTERP_CACHE_TTL_S", time.Hour), utils.EnvInt("INTERP_CACHE_SIZE", 1024))

	routes := api.BuildRoutes(apiBase, api.Deps{
		Holder:      holder,
		Interpreter: interp,
		Store:       st,
		AdminToken:  utils.EnvString("ADMIN_TOKEN", ""),
		OnRefresh:   onRefresh,
		// 手动刷新与请求上下文脱离，单独限时
		RefreshTimeout: utils.EnvDuration("REFRESH_TIMEOUT", 5*time.Minute),
	})
	handler := logger.AccessMiddleware(l)(routes)
	handler = middleware.RateLimit(utils.EnvBool("RATE_LIMIT_ENABLED", false), utils.EnvInt("RATE_LIMIT_QPS", 200))(handler)
	handler = middleware.CORS(utils.EnvList("CORS_ORIGINS", []string{"*"}))(handler)

	addr := utils.EnvString("ADDR", ":5000")
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("server_shutdown")
		_ = s.Shutdown(sctx)
	}()

	if utils.EnvBool("TLS_ENABLE", false) {
		certPath := utils.EnvString("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
		keyPath := utils.EnvString("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, utils.EnvList("TLS_HOSTS", nil)); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
}
