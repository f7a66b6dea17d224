package spatial

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// Outcome：单个 (建筑轮廓, 地块) 组合的匹配结果
type Outcome int

const (
	NoMatch Outcome = iota
	Match
	// Indeterminate：几何无法参与判定，调用方跳过该组合继续扫描
	Indeterminate
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case NoMatch:
		return "no_match"
	default:
		return "indeterminate"
	}
}

// 文档注释：匹配策略接口
// 约束：Envelope 返回的外包框用于索引预筛，必须覆盖所有可能返回 Match 的组合；返回 false 表示该几何无法建索引，
// 调用方需把它视为“总是候选”，以保证与线性扫描结果一致。
type Matcher interface {
	Name() string
	Match(footprint orb.Polygon, parcel orb.MultiPolygon) Outcome
	FootprintEnvelope(footprint orb.Polygon) (orb.Bound, bool)
	ParcelEnvelope(parcel orb.MultiPolygon) (orb.Bound, bool)
}

// ExactIntersection：真实几何相交
type ExactIntersection struct{}

func (ExactIntersection) Name() string { return string(PolicyExact) }

func (ExactIntersection) Match(footprint orb.Polygon, parcel orb.MultiPolygon) Outcome {
	ok, err := Intersects(footprint, parcel)
	if err != nil {
		return Indeterminate
	}
	if ok {
		return Match
	}
	return NoMatch
}

func (ExactIntersection) FootprintEnvelope(footprint orb.Polygon) (orb.Bound, bool) {
	if len(footprint) == 0 || len(footprint[0]) == 0 {
		return orb.Bound{}, false
	}
	return footprint.Bound(), true
}

func (ExactIntersection) ParcelEnvelope(parcel orb.MultiPolygon) (orb.Bound, bool) {
	if !hasPoints(parcel) {
		return orb.Bound{}, false
	}
	return parcel.Bound(), true
}

// 文档注释：质心近邻匹配
// 背景：几何库不可用时的替代策略；轮廓外环顶点均值与地块全部顶点均值的球面距离不超过阈值即视为匹配。
// 约束：任一质心无法计算时返回 Indeterminate。
type ProximityFallback struct {
	ThresholdMeters float64
}

func (ProximityFallback) Name() string { return string(PolicyProximity) }

func (m ProximityFallback) Match(footprint orb.Polygon, parcel orb.MultiPolygon) Outcome {
	a, ok := PolygonCentroid(footprint)
	if !ok {
		return Indeterminate
	}
	b, ok := MultiPolygonCentroid(parcel)
	if !ok {
		return Indeterminate
	}
	if HaversineMeters(a.Lat, a.Lon, b.Lat, b.Lon) <= m.ThresholdMeters {
		return Match
	}
	return NoMatch
}

func (m ProximityFallback) FootprintEnvelope(footprint orb.Polygon) (orb.Bound, bool) {
	c, ok := PolygonCentroid(footprint)
	if !ok {
		return orb.Bound{}, false
	}
	dLat, dLon := degreePad(c.Lat, m.ThresholdMeters)
	return orb.Bound{
		Min: orb.Point{c.Lon - dLon, c.Lat - dLat},
		Max: orb.Point{c.Lon + dLon, c.Lat + dLat},
	}, true
}

func (m ProximityFallback) ParcelEnvelope(parcel orb.MultiPolygon) (orb.Bound, bool) {
	c, ok := MultiPolygonCentroid(parcel)
	if !ok {
		return orb.Bound{}, false
	}
	p := orb.Point{c.Lon, c.Lat}
	return orb.Bound{Min: p, Max: p}, true
}

// degreePad：把米换算为经纬度半径，留 1.5 倍余量，只用于预筛
func degreePad(lat, meters float64) (float64, float64) {
	const metersPerDegree = 111000.0
	dLat := meters / metersPerDegree * 1.5
	cos := math.Cos((math.Abs(lat) + dLat) * math.Pi / 180)
	if cos < 0.01 {
		return dLat, 360
	}
	return dLat, dLat / cos
}

func hasPoints(mp orb.MultiPolygon) bool {
	for _, p := range mp {
		for _, r := range p {
			if len(r) > 0 {
				return true
			}
		}
	}
	return false
}

// Policy：匹配策略配置值
type Policy string

const (
	PolicyExact     Policy = "exact"
	PolicyProximity Policy = "proximity"
	// PolicyAuto：先按相交匹配，整批全部无法判定时整体改用近邻匹配
	PolicyAuto Policy = "auto"
)

// DefaultProximityMeters：近邻匹配默认阈值
const DefaultProximityMeters = 50.0

// ParsePolicy：解析配置值，空值视为 exact
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyExact:
		return PolicyExact, nil
	case PolicyProximity:
		return PolicyProximity, nil
	case PolicyAuto:
		return PolicyAuto, nil
	}
	return "", fmt.Errorf("unknown match policy %q", s)
}

// NewMatcher：按策略构造匹配器；auto 的首轮为 exact
func NewMatcher(p Policy, thresholdMeters float64) Matcher {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultProximityMeters
	}
	if p == PolicyProximity {
		return ProximityFallback{ThresholdMeters: thresholdMeters}
	}
	return ExactIntersection{}
}
