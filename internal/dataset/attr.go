package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// 文档注释：开放数据中的标量属性
// 背景：SODA 接口对同一字段可能返回字符串或数字（如 struct_id、assessed_value），也可能缺省或为 null。
// 约束：保留原始 JSON 片段用于回显；Text 为字符串内容或数字字面量；对象、数组、布尔值视为存在但不可转为数字。
type Scalar struct {
	raw  string
	kind gjson.Type
	set  bool
}

// UnmarshalJSON：按 JSON 值类型记录，null 视为缺省
func (s *Scalar) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	if r.Type == gjson.Null {
		*s = Scalar{}
		return nil
	}
	*s = Scalar{raw: r.Raw, kind: r.Type, set: true}
	return nil
}

// MarshalJSON：原样输出；缺省时输出 null
func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.set {
		return []byte("null"), nil
	}
	return []byte(s.raw), nil
}

// Present：字段存在且非 null
func (s Scalar) Present() bool { return s.set }

// Text：字符串内容或数字字面量；其他类型返回原始 JSON
func (s Scalar) Text() string {
	if !s.set {
		return ""
	}
	if s.kind == gjson.String {
		return gjson.Parse(s.raw).Str
	}
	return s.raw
}

// Float：数字或数字字符串转换为 float64；缺省、非数字或非有限值返回 false
func (s Scalar) Float() (float64, bool) {
	if !s.set || (s.kind != gjson.String && s.kind != gjson.Number) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s.Text()), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// StringScalar / NumberScalar：构造测试与内部默认值
func StringScalar(v string) Scalar {
	b, _ := json.Marshal(v)
	return Scalar{raw: string(b), kind: gjson.String, set: true}
}

func NumberScalar(v float64) Scalar {
	return Scalar{raw: strconv.FormatFloat(v, 'f', -1, 64), kind: gjson.Number, set: true}
}
