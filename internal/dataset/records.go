// 包 dataset：建筑轮廓与房产评估两类开放数据的类型化记录、空间连接与只读快照
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RawFootprint：建筑轮廓数据集（cchr-krqg）的一条原始记录
type RawFootprint struct {
	StructID     Scalar          `json:"struct_id"`
	Polygon      json.RawMessage `json:"polygon"`
	RooftopElevZ Scalar          `json:"rooftop_elev_z"`
	GrdElevMinZ  Scalar          `json:"grd_elev_min_z"`
}

// RawAssessment：房产评估数据集（4bsw-nn7w）的一条原始记录
type RawAssessment struct {
	MultiPolygon       json.RawMessage `json:"multipolygon"`
	Address            Scalar          `json:"address"`
	LandUseDesignation Scalar          `json:"land_use_designation"`
	AssessedValue      Scalar          `json:"assessed_value"`
	YearOfConstruction Scalar          `json:"year_of_construction"`
}

// 文档注释：类型化的建筑轮廓
// 约束：HasPolygon 表示原始记录携带了非空的 polygon 字段；Polygon 为 nil 表示字段存在但无法解码，
// 这类记录参与连接时所有组合均为“无法判定”，最终因无法计算坐标被丢弃。
type Footprint struct {
	StructID   Scalar
	Polygon    orb.Polygon
	HasPolygon bool
	Height     float64
}

// NewFootprint：由原始记录构造，高度 = 屋顶高程 - 地面最低高程；任一侧缺失、无法解析或结果非有限值时为 0
func NewFootprint(raw RawFootprint) Footprint {
	fp := Footprint{StructID: raw.StructID, HasPolygon: present(raw.Polygon)}
	if fp.HasPolygon {
		fp.Polygon, _ = decodePolygon(raw.Polygon)
	}
	top, okTop := raw.RooftopElevZ.Float()
	ground, okGround := raw.GrdElevMinZ.Float()
	if okTop && okGround {
		if h := top - ground; !math.IsNaN(h) && !math.IsInf(h, 0) {
			fp.Height = h
		}
	}
	return fp
}

// 文档注释：类型化的房产评估
// 约束：AssessedValue 取 int(float(x))，失败为 0；YearOfConstruction 缺失或无法解析时为 nil。
// HasGeometry 为 false 的记录不参与匹配；字段存在但无法解码时 MultiPolygon 为 nil，匹配结果为“无法判定”。
type Assessment struct {
	MultiPolygon       orb.MultiPolygon
	HasGeometry        bool
	Address            string
	LandUseDesignation string
	AssessedValue      int64
	YearOfConstruction *int
}

// NewAssessment：由原始记录构造
func NewAssessment(raw RawAssessment) Assessment {
	a := Assessment{
		Address:            raw.Address.Text(),
		LandUseDesignation: raw.LandUseDesignation.Text(),
		HasGeometry:        present(raw.MultiPolygon),
	}
	if a.HasGeometry {
		a.MultiPolygon, _ = decodeMultiPolygon(raw.MultiPolygon)
	}
	if v, ok := raw.AssessedValue.Float(); ok && math.Abs(v) < math.MaxInt64 {
		a.AssessedValue = int64(v)
	}
	if v, ok := raw.YearOfConstruction.Float(); ok && math.Abs(v) < math.MaxInt32 {
		y := int(v)
		a.YearOfConstruction = &y
	}
	return a
}

// 文档注释：连接后的建筑记录（所有查询的基本单位）
// 约束：ID 为 struct_id 的字符串形式；坐标为面积加权质心，(lat, lon) 顺序；Footprint 保留原始轮廓（经度在前）用于前端渲染。
// 未匹配到评估记录时地址、用地代码为空串，评估值为 0，建成年份为 null。快照发布后不得修改。
type Building struct {
	ID                 string      `json:"id"`
	StructID           Scalar      `json:"struct_id"`
	Address            string      `json:"address"`
	Latitude           float64     `json:"latitude"`
	Longitude          float64     `json:"longitude"`
	Height             float64     `json:"height"`
	LandUseDesignation string      `json:"land_use_designation"`
	AssessedValue      int64       `json:"assessed_value"`
	YearOfConstruction *int        `json:"year_of_construction"`
	Footprint          orb.Polygon `json:"footprint"`
}

// 可过滤字段名
const (
	FieldHeight             = "height"
	FieldLandUseDesignation = "land_use_designation"
	FieldAssessedValue      = "assessed_value"
	FieldAddress            = "address"
	FieldYearOfConstruction = "year_of_construction"
)

// RecordID：过滤结果中使用的标识
func (b *Building) RecordID() string { return b.ID }

// Field：按字段名取值；字段不存在（含建成年份为空）时返回 false
func (b *Building) Field(name string) (any, bool) {
	switch name {
	case FieldHeight:
		return b.Height, true
	case FieldLandUseDesignation:
		return b.LandUseDesignation, true
	case FieldAssessedValue:
		return b.AssessedValue, true
	case FieldAddress:
		return b.Address, true
	case FieldYearOfConstruction:
		if b.YearOfConstruction == nil {
			return nil, false
		}
		return *b.YearOfConstruction, true
	}
	return nil, false
}

func present(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null")) && !bytes.Equal(t, []byte("{}"))
}

// decodePolygon：GeoJSON Polygon；MultiPolygon 只取第一个多边形
func decodePolygon(raw json.RawMessage) (orb.Polygon, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("decode polygon: %w", err)
	}
	switch v := g.Geometry().(type) {
	case orb.Polygon:
		return v, nil
	case orb.MultiPolygon:
		if len(v) > 0 {
			return v[0], nil
		}
	}
	return nil, fmt.Errorf("decode polygon: unexpected geometry %q", g.Type)
}

// decodeMultiPolygon：GeoJSON MultiPolygon；单个 Polygon 视为只有一部分的多面
func decodeMultiPolygon(raw json.RawMessage) (orb.MultiPolygon, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("decode multipolygon: %w", err)
	}
	switch v := g.Geometry().(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	}
	return nil, fmt.Errorf("decode multipolygon: unexpected geometry %q", g.Type)
}

// IDOf：struct_id 的字符串形式（字符串内容或数字字面量）；缺省时为空串
func IDOf(s Scalar) string { return s.Text() }
