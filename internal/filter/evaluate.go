package filter

import (
	"strconv"
	"strings"
)

// Record：可被过滤的记录；Field 返回 false 表示该记录缺少此字段
type Record interface {
	RecordID() string
	Field(name string) (any, bool)
}

// 文档注释：求值
// 背景：对每条记录取字段值，缺失则跳过；> 与 < 两侧按数值比较，== 比较两侧字符串形式（不区分大小写），
// contains 仅对字符串字段做不区分大小写的子串匹配。
// 约束：单条记录的类型不匹配视为不命中；结果按输入顺序返回，无命中时为空切片而非 nil。
func Evaluate[T any, P interface {
	*T
	Record
}](records []T, f Filter) []string {
	out := []string{}
	for i := range records {
		r := P(&records[i])
		v, ok := r.Field(string(f.Attribute))
		if !ok || v == nil {
			continue
		}
		if matches(v, f) {
			out = append(out, r.RecordID())
		}
	}
	return out
}

func matches(v any, f Filter) bool {
	switch f.Operator {
	case Greater, Less:
		a, ok := fieldNumber(v)
		if !ok {
			return false
		}
		b, ok := f.Value.Float()
		if !ok {
			return false
		}
		if f.Operator == Greater {
			return a > b
		}
		return a < b
	case Equal:
		s, ok := fieldText(v)
		return ok && strings.EqualFold(s, f.Value.String())
	case Contains:
		s, ok := v.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(f.Value.String()))
	}
	return false
}

func fieldNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return toNumber(v)
}

func fieldText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return canonical(x), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}
