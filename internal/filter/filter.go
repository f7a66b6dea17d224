// 包 filter：单谓词过滤条件的校验、类型归一化与求值
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Attribute：可过滤的建筑字段（封闭集合）
type Attribute string

const (
	Height             Attribute = "height"
	LandUseDesignation Attribute = "land_use_designation"
	AssessedValue      Attribute = "assessed_value"
	Address            Attribute = "address"
	YearOfConstruction Attribute = "year_of_construction"
)

// Attributes：全部合法字段，顺序固定（用于提示词与错误信息）
var Attributes = []Attribute{Height, LandUseDesignation, AssessedValue, Address, YearOfConstruction}

// Numeric：数值型字段的过滤值需归一化为 float64
func (a Attribute) Numeric() bool {
	return a == Height || a == AssessedValue || a == YearOfConstruction
}

func (a Attribute) valid() bool {
	for _, x := range Attributes {
		if a == x {
			return true
		}
	}
	return false
}

// Operator：比较运算符（封闭集合）
type Operator string

const (
	Greater  Operator = ">"
	Less     Operator = "<"
	Equal    Operator = "=="
	Contains Operator = "contains"
)

var Operators = []Operator{Greater, Less, Equal, Contains}

func (o Operator) valid() bool {
	for _, x := range Operators {
		if o == x {
			return true
		}
	}
	return false
}

var (
	ErrMissingField     = errors.New("filter: missing field")
	ErrUnknownAttribute = errors.New("filter: unknown attribute")
	ErrUnknownOperator  = errors.New("filter: unknown operator")
	ErrInvalidValue     = errors.New("filter: invalid value")
)

// 文档注释：未经校验的候选过滤条件
// 背景：来自解释器（LLM 或规则）或调用方，不可信；Value 保持 JSON 解码后的原始类型。
// 约束：只能经 Parse 变为可求值的 Filter。
type Candidate struct {
	Attribute string `json:"attribute"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
}

// Value：归一化后的过滤值，数值或字符串
type Value struct {
	num     float64
	str     string
	numeric bool
}

// Number / Text：构造过滤值
func Number(v float64) Value { return Value{num: v, numeric: true} }
func Text(s string) Value    { return Value{str: s} }

// IsNumber：是否为数值
func (v Value) IsNumber() bool { return v.numeric }

// Float：数值形式；字符串值按数字解析，失败返回 false
func (v Value) Float() (float64, bool) {
	if v.numeric {
		return v.num, true
	}
	return parseNumber(v.str)
}

// String：字符串形式；数值使用最短十进制表示（500000 与 500000.0 均为 "500000"）
func (v Value) String() string {
	if v.numeric {
		return canonical(v.num)
	}
	return v.str
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

// Filter：已校验、已归一化的过滤条件，可直接求值
type Filter struct {
	Attribute Attribute `json:"attribute"`
	Operator  Operator  `json:"operator"`
	Value     Value     `json:"value"`
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %s", f.Attribute, f.Operator, f.Value)
}

// Check：逐项校验并返回具体原因
func Check(c Candidate) error {
	switch {
	case strings.TrimSpace(c.Attribute) == "":
		return fmt.Errorf("%w: attribute", ErrMissingField)
	case strings.TrimSpace(c.Operator) == "":
		return fmt.Errorf("%w: operator", ErrMissingField)
	case c.Value == nil:
		return fmt.Errorf("%w: value", ErrMissingField)
	}
	if !Attribute(c.Attribute).valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, c.Attribute)
	}
	if !Operator(c.Operator).valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	return nil
}

// Validate：三个字段齐全且字段名、运算符均属于封闭集合
func Validate(c Candidate) bool { return Check(c) == nil }

// 文档注释：类型归一化
// 约束：数值型字段把值转换为 float64（数字或数字字符串，非有限值与布尔值不接受）；字符串型字段保留值的字符串形式。
// 调用方须先 Validate；失败返回 ErrInvalidValue，不会 panic。
func Normalize(c Candidate) (Filter, error) {
	f := Filter{Attribute: Attribute(c.Attribute), Operator: Operator(c.Operator)}
	if f.Attribute.Numeric() {
		n, ok := toNumber(c.Value)
		if !ok {
			return Filter{}, fmt.Errorf("%w: %v is not a number for %s", ErrInvalidValue, c.Value, f.Attribute)
		}
		f.Value = Number(n)
		return f, nil
	}
	s, ok := toText(c.Value)
	if !ok {
		return Filter{}, fmt.Errorf("%w: %T for %s", ErrInvalidValue, c.Value, f.Attribute)
	}
	f.Value = Text(s)
	return f, nil
}

// Parse：Check + Normalize
func Parse(c Candidate) (Filter, error) {
	if err := Check(c); err != nil {
		return Filter{}, err
	}
	return Normalize(c)
}

func toNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case json.Number:
		return string(x), true
	}
	if n, ok := toNumber(v); ok {
		return canonical(n), true
	}
	return "", false
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func canonical(n float64) string { return strconv.FormatFloat(n, 'f', -1, 64) }
