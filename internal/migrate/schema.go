// 包 migrate：PostgreSQL 表结构初始化
package migrate

import (
	"context"
	"database/sql"

	"github.com/yisiliu2005/masiv2025/internal/logger"
)

// Statements：建表语句，按顺序执行
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS _query_log (
        id BIGSERIAL PRIMARY KEY,
        query TEXT NOT NULL,
        interpreter TEXT NOT NULL,
        filter JSONB,
        matches INT NOT NULL DEFAULT 0,
        error TEXT,
        duration_ms BIGINT NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_query_log_created ON _query_log(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS _query_stats_total (
        id INT PRIMARY KEY,
        total_queries BIGINT NOT NULL DEFAULT 0,
        failed_queries BIGINT NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS _query_stats_daily (
        day DATE PRIMARY KEY,
        queries BIGINT NOT NULL DEFAULT 0,
        failed BIGINT NOT NULL DEFAULT 0
    )`,
	`INSERT INTO _query_stats_total(id, total_queries, failed_queries)
     VALUES(1, 0, 0)
     ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS _refresh_runs (
        id BIGSERIAL PRIMARY KEY,
        version BIGINT NOT NULL,
        stats JSONB NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
}

// 背景：首次运行自动创建查询审计与统计表
// 约束：使用 IF NOT EXISTS，可重复执行
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	l := logger.For("migrate")
	for i, s := range Statements {
		l.Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	l.Debug("schema_done")
	return nil
}
