package dataset

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
)

// 文档注释：只读数据快照
// 约束：发布后不再修改；并发读者共享同一个实例。
type Snapshot struct {
	Buildings []Building `json:"-"`
	Stats     JoinStats  `json:"stats"`
	BuiltAt   time.Time  `json:"built_at"`
	Version   uint64     `json:"version"`
}

// Source：两类开放数据的提供方；失败由提供方吸收并返回空切片
type Source interface {
	FetchFootprints(ctx context.Context) []RawFootprint
	FetchAssessments(ctx context.Context) []RawAssessment
}

// 文档注释：快照持有者
// 背景：用原子指针替换整份快照，读路径无锁；刷新期间的读者看到旧快照或新快照，不会看到中间状态。
// 约束：Refresh 之间由互斥锁串行化；Load 永不返回 nil（未刷新前为空快照）。
type Holder struct {
	src  Source
	opts JoinOptions
	mu   sync.Mutex
	cur  atomic.Pointer[Snapshot]
	ver  atomic.Uint64
}

// NewHolder：创建持有者，初始为空快照
func NewHolder(src Source, opts JoinOptions) *Holder {
	h := &Holder{src: src, opts: opts}
	h.cur.Store(&Snapshot{Buildings: []Building{}, Stats: JoinStats{Policy: string(opts.Policy)}})
	return h
}

// Load：当前快照
func (h *Holder) Load() *Snapshot { return h.cur.Load() }

// Set：直接发布由调用方构造的连接结果（测试与离线导入）
func (h *Holder) Set(res JoinResult) *Snapshot {
	bs := res.Buildings
	if bs == nil {
		bs = []Building{}
	}
	s := &Snapshot{Buildings: bs, Stats: res.Stats, BuiltAt: time.Now().UTC(), Version: h.ver.Add(1)}
	h.cur.Store(s)
	metrics.SnapshotBuildings.Set(float64(res.Stats.Buildings))
	metrics.SnapshotMatched.Set(float64(res.Stats.Matched))
	return s
}

// 文档注释：整体刷新
// 背景：并行拉取两类数据，类型化后连接，最后原子替换快照；提供方失败只会得到更小（或空）的数据集。
// 约束：ctx 取消时不发布新快照，返回 ctx.Err()。
func (h *Holder) Refresh(ctx context.Context) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := logger.For("dataset")
	start := time.Now()
	l.Info("dataset_refresh_start")

	var (
		wg   sync.WaitGroup
		rawF []RawFootprint
		rawA []RawAssessment
	)
	wg.Add(2)
	go func() { defer wg.Done(); rawF = h.src.FetchFootprints(ctx) }()
	go func() { defer wg.Done(); rawA = h.src.FetchAssessments(ctx) }()
	wg.Wait()
	if err := ctx.Err(); err != nil {
		metrics.RefreshTotal.WithLabelValues("canceled").Inc()
		l.Warn("dataset_refresh_canceled", "err", err)
		return h.Load(), err
	}

	fps := make([]Footprint, len(rawF))
	for i, r := range rawF {
		fps[i] = NewFootprint(r)
	}
	as := make([]Assessment, len(rawA))
	for i, r := range rawA {
		as[i] = NewAssessment(r)
	}
	s := h.Set(Join(fps, as, h.opts))
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	l.Info("dataset_refresh_done",
		"version", s.Version,
		"buildings", s.Stats.Buildings,
		"with_address", s.Stats.WithAddress,
		"with_value", s.Stats.WithValue,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return s, nil
}
