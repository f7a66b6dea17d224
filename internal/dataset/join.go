package dataset

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
	"github.com/yisiliu2005/masiv2025/internal/spatial"
)

// JoinOptions：连接参数；Policy 为空视为 exact
type JoinOptions struct {
	Policy          spatial.Policy
	ProximityMeters float64
}

// JoinStats：一次连接的统计，随快照对外暴露
type JoinStats struct {
	Footprints       int    `json:"footprints"`
	Assessments      int    `json:"assessments"`
	Buildings        int    `json:"buildings"`
	Matched          int    `json:"matched"`
	Unmatched        int    `json:"unmatched"`
	Dropped          int    `json:"dropped"`
	SkippedNoPolygon int    `json:"skipped_no_polygon"`
	Evaluated        int    `json:"pairs_evaluated"`
	Indeterminate    int    `json:"pairs_indeterminate"`
	WithAddress      int    `json:"with_address"`
	WithValue        int    `json:"with_value"`
	Policy           string `json:"policy"`
	FellBack         bool   `json:"fell_back"`
}

// JoinResult：连接输出，Buildings 按输入轮廓顺序排列
type JoinResult struct {
	Buildings []Building
	Stats     JoinStats
}

// 文档注释：空间连接
// 背景：为每个带轮廓的建筑找到至多一条评估记录并合并属性；候选地块经 R-Tree 预筛后按输入顺序扫描，首个命中者胜出。
// 约束：
//   - 无法判定的组合跳过并继续扫描，首个记 warn 日志，全部计数；
//   - 精确质心无法计算的轮廓整条丢弃；未匹配的轮廓仍输出，评估字段取默认值；
//   - auto 策略下若整批所有已评估组合均无法判定（几何库系统性失败），整批改用近邻匹配重跑，不逐条混用。
func Join(footprints []Footprint, assessments []Assessment, opts JoinOptions) JoinResult {
	start := time.Now()
	policy := opts.Policy
	if policy == "" {
		policy = spatial.PolicyExact
	}
	res := joinWith(spatial.NewMatcher(policy, opts.ProximityMeters), footprints, assessments)
	if policy == spatial.PolicyAuto && res.Stats.Evaluated > 0 && res.Stats.Indeterminate == res.Stats.Evaluated {
		logger.For("dataset").Warn("join_fallback_proximity",
			"pairs", res.Stats.Evaluated,
			"threshold_m", opts.ProximityMeters,
		)
		res = joinWith(spatial.NewMatcher(spatial.PolicyProximity, opts.ProximityMeters), footprints, assessments)
		res.Stats.FellBack = true
	}
	metrics.JoinRunsTotal.WithLabelValues(res.Stats.Policy).Inc()
	metrics.JoinDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	return res
}

func joinWith(m spatial.Matcher, footprints []Footprint, assessments []Assessment) JoinResult {
	l := logger.For("dataset")
	st := JoinStats{Footprints: len(footprints), Assessments: len(assessments), Policy: m.Name()}

	// 只有携带几何的评估记录参与匹配；eligible[k] 为其在输入中的下标，保持升序
	var eligible []int
	var parcels []orb.MultiPolygon
	for i := range assessments {
		if assessments[i].HasGeometry {
			eligible = append(eligible, i)
			parcels = append(parcels, assessments[i].MultiPolygon)
		}
	}
	ix := spatial.NewIndex(m, parcels)

	matched := 0
	out := make([]Building, 0, len(footprints))
	loggedIndeterminate := false
	for i := range footprints {
		fp := &footprints[i]
		if !fp.HasPolygon {
			st.SkippedNoPolygon++
			continue
		}
		c, ok := spatial.PreciseCentroid(fp.Polygon)
		if !ok {
			st.Dropped++
			l.Debug("join_footprint_dropped", "struct_id", IDOf(fp.StructID))
			continue
		}

		cands := ix.All()
		if env, ok := m.FootprintEnvelope(fp.Polygon); ok {
			cands = ix.Candidates(env)
		}
		var hit *Assessment
		for _, k := range cands {
			a := &assessments[eligible[k]]
			st.Evaluated++
			switch m.Match(fp.Polygon, a.MultiPolygon) {
			case spatial.Match:
				hit = a
			case spatial.Indeterminate:
				st.Indeterminate++
				if !loggedIndeterminate {
					loggedIndeterminate = true
					l.Warn("join_pair_indeterminate",
						"struct_id", IDOf(fp.StructID),
						"assessment", eligible[k],
						"policy", m.Name(),
					)
				}
			}
			if hit != nil {
				break
			}
		}

		b := Building{
			ID:        IDOf(fp.StructID),
			StructID:  fp.StructID,
			Latitude:  c.Lat,
			Longitude: c.Lon,
			Height:    fp.Height,
			Footprint: fp.Polygon,
		}
		if hit != nil {
			matched++
			b.Address = hit.Address
			b.LandUseDesignation = hit.LandUseDesignation
			b.AssessedValue = hit.AssessedValue
			b.YearOfConstruction = hit.YearOfConstruction
		}
		if b.Address != "" {
			st.WithAddress++
		}
		if b.AssessedValue > 0 {
			st.WithValue++
		}
		out = append(out, b)
	}

	st.Buildings = len(out)
	st.Matched = matched
	st.Unmatched = len(out) - matched
	metrics.JoinPairsTotal.WithLabelValues(spatial.Indeterminate.String()).Add(float64(st.Indeterminate))
	metrics.JoinPairsTotal.WithLabelValues("evaluated").Add(float64(st.Evaluated))
	metrics.JoinPairsTotal.WithLabelValues(spatial.Match.String()).Add(float64(matched))
	l.Info("join_done",
		"policy", st.Policy,
		"footprints", st.Footprints,
		"assessments", st.Assessments,
		"buildings", st.Buildings,
		"matched", st.Matched,
		"unmatched", st.Unmatched,
		"dropped", st.Dropped,
		"indeterminate", st.Indeterminate,
	)
	return JoinResult{Buildings: out, Stats: st}
}
