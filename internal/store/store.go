// 包 store: 提供与 PostgreSQL 的数据访问层，记录查询审计日志、查询统计与快照刷新历史
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/yisiliu2005/masiv2025/internal/logger"
)

// Store: 数据库访问入口；nil *Store 的所有方法均为空操作，便于未启用 PostgreSQL 时直接传递
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// Close: 关闭数据库连接
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// QueryRecord: 一次自然语言查询的审计记录
type QueryRecord struct {
	Query       string          `json:"query"`
	Interpreter string          `json:"interpreter"`
	Filter      json.RawMessage `json:"filter,omitempty"`
	Matches     int             `json:"matches"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
	At          time.Time       `json:"at"`
}

// 文档注释：记录一次查询并递增累计与当日计数
// 背景：用于 /api/stats 展示与事后分析 LLM 解析质量；写失败只记日志，不影响查询响应。
func (s *Store) RecordQuery(ctx context.Context, q QueryRecord) {
	if s == nil {
		return
	}
	l := logger.For("store")
	var filterArg any
	if len(q.Filter) > 0 {
		filterArg = string(q.Filter)
	}
	failed := 0
	if q.Error != "" {
		failed = 1
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO _query_log(query, interpreter, filter, matches, error, duration_ms)
        VALUES($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		q.Query, q.Interpreter, filterArg, q.Matches, q.Error, q.DurationMs); err != nil {
		l.Warn("query_log_insert_error", "err", err)
	}
	_, _ = s.db.ExecContext(ctx, "UPDATE _query_stats_total SET total_queries=total_queries+1, failed_queries=failed_queries+$1 WHERE id=1", failed)
	_, _ = s.db.ExecContext(ctx, `INSERT INTO _query_stats_daily(day, queries, failed) VALUES(current_date, 1, $1)
        ON CONFLICT (day) DO UPDATE SET queries=_query_stats_daily.queries+1, failed=_query_stats_daily.failed+EXCLUDED.failed`, failed)
	l.Debug("query_logged", "matches", q.Matches, "failed", failed)
}

// Totals: 统计返回结构，包含累计、失败与当日查询次数
type Totals struct {
	Total  int64 `json:"total"`
	Failed int64 `json:"failed"`
	Today  int64 `json:"today"`
}

// GetTotals: 读取统计；未启用数据库时返回 nil
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	if s == nil {
		return nil, nil
	}
	var t Totals
	if err := s.db.QueryRowContext(ctx, "SELECT total_queries, failed_queries FROM _query_stats_total WHERE id=1").Scan(&t.Total, &t.Failed); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	_ = s.db.QueryRowContext(ctx, "SELECT queries FROM _query_stats_daily WHERE day=current_date").Scan(&t.Today)
	logger.For("store").Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}

// RecentQueries: 最近的查询记录，按时间倒序
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QueryRecord, error) {
	if s == nil {
		return []QueryRecord{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT query, interpreter, COALESCE(filter::text, ''), matches, COALESCE(error, ''), duration_ms, created_at
        FROM _query_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []QueryRecord{}
	for rows.Next() {
		var r QueryRecord
		var f string
		if err := rows.Scan(&r.Query, &r.Interpreter, &f, &r.Matches, &r.Error, &r.DurationMs, &r.At); err != nil {
			return nil, err
		}
		if f != "" {
			r.Filter = json.RawMessage(f)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordRefresh: 保存一次快照刷新的连接统计（JSON）
func (s *Store) RecordRefresh(ctx context.Context, version uint64, stats any) {
	if s == nil {
		return
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO _refresh_runs(version, stats) VALUES($1, $2)", int64(version), string(b)); err != nil {
		logger.For("store").Warn("refresh_log_insert_error", "err", err)
	}
}
