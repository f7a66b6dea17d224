// 包 utils：环境变量读取与外部连接（PostgreSQL、Redis、TLS 证书）工具
package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yisiliu2005/masiv2025/internal/logger"
)

// OpenRedis：使用地址与密码打开 Redis 客户端；地址为空返回 nil
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// OpenRedisFromEnv：REDIS_ENABLE=true 时打开客户端并探活
// 约束：未启用或探活失败时返回 nil，调用方退回进程内缓存
func OpenRedisFromEnv(ctx context.Context) *redis.Client {
	if !EnvBool("REDIS_ENABLE", false) {
		return nil
	}
	addr := EnvString("REDIS_HOST", "127.0.0.1") + ":" + EnvString("REDIS_PORT", "6379")
	db := EnvInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	c := OpenRedis(addr, EnvString("REDIS_PASS", ""), db)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		logger.L().Warn("redis_unavailable", "addr", addr, "err", err)
		_ = c.Close()
		return nil
	}
	logger.L().Info("redis_ok", "addr", addr, "db", db)
	return c
}
