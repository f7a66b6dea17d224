// 包 ingest：在服务进程内的后台协程中调度开放数据快照的定期刷新
package ingest

import (
	"context"
	"time"

	"github.com/yisiliu2005/masiv2025/internal/dataset"
	"github.com/yisiliu2005/masiv2025/internal/logger"
)

// Refresher：可整体刷新的数据源（*dataset.Holder）
type Refresher interface {
	Refresh(ctx context.Context) (*dataset.Snapshot, error)
}

// OnDone：每次成功刷新后的回调（写入刷新记录等），可为 nil
type OnDone func(ctx context.Context, s *dataset.Snapshot)

// nextDailyAt：计算下一次指定整点的时间点（严格晚于 now）
func nextDailyAt(now time.Time, loc *time.Location, hour int) time.Time {
	now = now.In(loc)
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func runOnce(ctx context.Context, r Refresher, done OnDone) {
	l := logger.For("ingest")
	l.Info("refresh_tick")
	s, err := r.Refresh(ctx)
	if err != nil {
		l.Error("refresh_error", "err", err)
		return
	}
	if done != nil {
		done(ctx, s)
	}
}

// 文档注释：按固定间隔刷新
// 背景：上游开放数据每日更新，长驻进程按 REFRESH_INTERVAL 重新拉取并原子替换快照。
// 约束：interval<=0 时不启动；ctx 取消后协程退出；错误仅记录日志，调度继续。
func StartInterval(ctx context.Context, r Refresher, interval time.Duration, done OnDone) {
	if interval <= 0 {
		return
	}
	logger.For("ingest").Info("refresh_schedule", "interval", interval.String())
	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				runOnce(ctx, r, done)
			}
		}
	}()
}

// 文档注释：每日指定整点刷新
// 背景：与上游凌晨发布节奏对齐（REFRESH_HOUR，时区 America/Edmonton）。
// 约束：hour 不在 [0,23] 时不启动；时区加载失败回退 UTC。
func StartDaily(ctx context.Context, r Refresher, tz string, hour int, done OnDone) {
	if hour < 0 || hour > 23 {
		return
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	go func() {
		for {
			next := nextDailyAt(time.Now(), loc, hour)
			logger.For("ingest").Info("refresh_schedule", "next", next)
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
				runOnce(ctx, r, done)
			}
		}
	}()
}
