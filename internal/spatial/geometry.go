// 包 spatial：建筑轮廓与地块几何的基础运算（质心、距离、相交判定）以及匹配策略与候选索引
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/geojson/geometry"
	"github.com/umahmood/haversine"
)

// ErrMalformedGeometry 表示几何无法参与运算（点数不足、坐标非有限值、库内部异常）
var ErrMalformedGeometry = errors.New("malformed geometry")

// Point：输出坐标，按 (lat, lon) 存放；GeoJSON 原生顺序为 (lon, lat)，转换在本包内完成
type Point struct {
	Lat float64
	Lon float64
}

func (p Point) finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) && !math.IsInf(p.Lat, 0) && !math.IsInf(p.Lon, 0)
}

// 文档注释：外环顶点均值质心
// 约束：仅使用外环，少于 3 个顶点返回 false；不是面积加权质心，对不规则轮廓会偏向顶点密集的一侧，
// 只适合小尺度近似凸的建筑轮廓（用于近邻匹配，不用于输出坐标）。
func RingCentroid(ring orb.Ring) (Point, bool) {
	if len(ring) < 3 {
		return Point{}, false
	}
	var sumLat, sumLon float64
	for _, p := range ring {
		sumLon += p.Lon()
		sumLat += p.Lat()
	}
	n := float64(len(ring))
	c := Point{Lat: sumLat / n, Lon: sumLon / n}
	if !c.finite() {
		return Point{}, false
	}
	return c, true
}

// PolygonCentroid：多边形外环的顶点均值质心
func PolygonCentroid(poly orb.Polygon) (Point, bool) {
	if len(poly) == 0 {
		return Point{}, false
	}
	return RingCentroid(poly[0])
}

// 文档注释：多面顶点均值质心
// 约束：展开所有多边形的所有环后取顶点均值（含洞），与 RingCentroid 同样是近似值。
func MultiPolygonCentroid(mp orb.MultiPolygon) (Point, bool) {
	var sumLat, sumLon float64
	n := 0
	for _, poly := range mp {
		for _, ring := range poly {
			for _, p := range ring {
				sumLon += p.Lon()
				sumLat += p.Lat()
				n++
			}
		}
	}
	if n == 0 {
		return Point{}, false
	}
	c := Point{Lat: sumLat / float64(n), Lon: sumLon / float64(n)}
	if !c.finite() {
		return Point{}, false
	}
	return c, true
}

// HaversineMeters：球面距离（米），地球半径 6371 km
func HaversineMeters(latA, lonA, latB, lonB float64) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: latA, Lon: lonA},
		haversine.Coord{Lat: latB, Lon: lonB},
	)
	return km * 1000
}

// 文档注释：多边形与多面的平面相交判定
// 背景：委托 tidwall/geojson 的几何实现（包含、边界相交、洞）；输入为经纬度，按平面坐标处理。
// 约束：任一环点数不足或含非有限坐标时返回 ErrMalformedGeometry；库内部 panic 同样转换为错误，调用方据此判定为“无法确定”。
func Intersects(poly orb.Polygon, mp orb.MultiPolygon) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%w: %v", ErrMalformedGeometry, r)
		}
	}()
	a, err := toPoly(poly)
	if err != nil {
		return false, fmt.Errorf("footprint: %w", err)
	}
	if len(mp) == 0 {
		return false, fmt.Errorf("parcel: %w: empty multipolygon", ErrMalformedGeometry)
	}
	parts := make([]*geometry.Poly, 0, len(mp))
	for i, p := range mp {
		b, err := toPoly(p)
		if err != nil {
			return false, fmt.Errorf("parcel part %d: %w", i, err)
		}
		parts = append(parts, b)
	}
	for _, b := range parts {
		if a.IntersectsPoly(b) {
			return true, nil
		}
	}
	return false, nil
}

func toPoly(p orb.Polygon) (*geometry.Poly, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty polygon", ErrMalformedGeometry)
	}
	exterior, err := toRing(p[0])
	if err != nil {
		return nil, err
	}
	var holes [][]geometry.Point
	for _, r := range p[1:] {
		h, err := toRing(r)
		if err != nil {
			return nil, err
		}
		holes = append(holes, h)
	}
	return geometry.NewPoly(exterior, holes, geometry.DefaultIndexOptions), nil
}

func toRing(r orb.Ring) ([]geometry.Point, error) {
	if len(r) < 3 {
		return nil, fmt.Errorf("%w: ring has %d points", ErrMalformedGeometry, len(r))
	}
	out := make([]geometry.Point, len(r))
	for i, p := range r {
		if !finite(p) {
			return nil, fmt.Errorf("%w: non-finite coordinate at %d", ErrMalformedGeometry, i)
		}
		out[i] = geometry.Point{X: p.Lon(), Y: p.Lat()}
	}
	return out, nil
}

// 文档注释：面积加权质心（精确）
// 背景：用于建筑输出坐标；匹配阶段使用顶点均值即可。
// 约束：环不闭合时先补齐首点；面积为 0（共线）时取几何库给出的线段质心；
// 空多边形、少于 3 个点的环或含非有限坐标时返回 false。
func PreciseCentroid(poly orb.Polygon) (Point, bool) {
	if len(poly) == 0 || len(poly[0]) < 3 {
		return Point{}, false
	}
	closed := make(orb.Polygon, 0, len(poly))
	for _, r := range poly {
		if len(r) < 3 {
			return Point{}, false
		}
		for _, p := range r {
			if !finite(p) {
				return Point{}, false
			}
		}
		closed = append(closed, closeRing(r))
	}
	c, area := planar.CentroidArea(closed)
	if math.IsNaN(area) {
		return Point{}, false
	}
	out := Point{Lat: c.Lat(), Lon: c.Lon()}
	if !out.finite() {
		return Point{}, false
	}
	return out, true
}

func closeRing(r orb.Ring) orb.Ring {
	if r[0].Equal(r[len(r)-1]) {
		return r
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
