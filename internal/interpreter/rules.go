package interpreter

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/yisiliu2005/masiv2025/internal/filter"
)

const feetToMeters = 0.3048

var (
	reYear   = regexp.MustCompile(`\b(after|since|before|in)\s+(\d{4})\b`)
	reMoney  = regexp.MustCompile(`\b(over|above|more than|greater than|at least|under|below|less than|at most|cheaper than)\s+\$?\s*(\d[\d,]*(?:\.\d+)?)\s*(million|mil|m|thousand|k|billion|b)?\b`)
	reHeight = regexp.MustCompile(`\b(over|above|more than|greater than|taller than|higher than|at least|under|below|less than|shorter than|lower than|at most)\s+(\d[\d,]*(?:\.\d+)?)\s*(feet|foot|ft|meters|meter|metres|metre|m)?\b`)
	reCode   = regexp.MustCompile(`\b(?:zoned|zoning|land use|designation)\s+([a-z]{1,3}-[a-z0-9]{1,4})\b`)
	reStreet = regexp.MustCompile(`\b(?:on|along|at)\s+([0-9a-z][0-9a-z ]*?\s(?:street|st|avenue|ave|av|road|rd|drive|dr|boulevard|blvd|trail|tr|way)(?:\s+(?:sw|se|nw|ne))?)\b`)
)

var streetAbbr = map[string]string{
	"street": "ST", "st": "ST",
	"avenue": "AV", "ave": "AV", "av": "AV",
	"road": "RD", "rd": "RD",
	"drive": "DR", "dr": "DR",
	"boulevard": "BV", "blvd": "BV",
	"trail": "TR", "tr": "TR",
	"way": "WY",
}

// 文档注释：固定规则解释器
// 背景：无 LLM 密钥或 LLM 失败时使用；覆盖常见句式（年份、金额、高度、用地代码与关键词、街道名）。
// 约束：规则按年份、金额、高度、显式用地代码、用地关键词、街道的顺序尝试，第一个命中即返回；都不命中返回 ErrNoRule。
type Rules struct{}

func (Rules) Name() string { return "rules" }

func (Rules) Interpret(_ context.Context, text string) (filter.Candidate, error) {
	q := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if q == "" {
		return filter.Candidate{}, ErrNoRule
	}
	if m := reYear.FindStringSubmatch(q); m != nil && mentionsYear(q) {
		y, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "after":
			return cand(filter.YearOfConstruction, filter.Greater, float64(y)), nil
		case "since":
			return cand(filter.YearOfConstruction, filter.Greater, float64(y-1)), nil
		case "before":
			return cand(filter.YearOfConstruction, filter.Less, float64(y)), nil
		default:
			return cand(filter.YearOfConstruction, filter.Equal, float64(y)), nil
		}
	}
	if mentionsMoney(q) {
		if m := reMoney.FindStringSubmatch(q); m != nil {
			if n, ok := number(m[2]); ok {
				return cand(filter.AssessedValue, comparison(m[1]), n*multiplier(m[3])), nil
			}
		}
	}
	if m := reHeight.FindStringSubmatch(q); m != nil && (m[3] != "" || mentionsHeight(q)) {
		if n, ok := number(m[2]); ok {
			switch m[3] {
			case "feet", "foot", "ft":
				n *= feetToMeters
			}
			return cand(filter.Height, comparison(m[1]), n), nil
		}
	}
	if m := reCode.FindStringSubmatch(q); m != nil {
		return cand(filter.LandUseDesignation, filter.Contains, strings.ToUpper(m[1])), nil
	}
	for _, z := range zoneHints {
		for _, w := range z.words {
			if containsWord(q, w) {
				return cand(filter.LandUseDesignation, filter.Contains, z.prefix), nil
			}
		}
	}
	if m := reStreet.FindStringSubmatch(q); m != nil {
		return cand(filter.Address, filter.Contains, streetValue(m[1])), nil
	}
	return filter.Candidate{}, ErrNoRule
}

func cand(a filter.Attribute, o filter.Operator, v any) filter.Candidate {
	return filter.Candidate{Attribute: string(a), Operator: string(o), Value: v}
}

func comparison(word string) filter.Operator {
	switch word {
	case "under", "below", "less than", "shorter than", "lower than", "cheaper than", "at most":
		return filter.Less
	}
	return filter.Greater
}

func number(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return n, err == nil
}

func multiplier(unit string) float64 {
	switch unit {
	case "million", "mil", "m":
		return 1e6
	case "thousand", "k":
		return 1e3
	case "billion", "b":
		return 1e9
	}
	return 1
}

func mentionsYear(q string) bool {
	return strings.Contains(q, "built") || strings.Contains(q, "constructed") || strings.Contains(q, "year") ||
		strings.Contains(q, "after") || strings.Contains(q, "before") || strings.Contains(q, "since")
}

func mentionsMoney(q string) bool {
	for _, w := range []string{"$", "worth", "value", "valued", "assessed", "dollar", "million", "cost", "price", "cheaper", "expensive"} {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

func mentionsHeight(q string) bool {
	for _, w := range []string{"tall", "high", "height", "short"} {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

func containsWord(q, w string) bool {
	for i := 0; ; {
		j := strings.Index(q[i:], w)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(w)
		if (start == 0 || !isWordByte(q[start-1])) && (end == len(q) || !isWordByte(q[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// streetValue："10 avenue sw" -> "10 AV SW"，与评估数据中的地址写法一致
func streetValue(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		if abbr, ok := streetAbbr[p]; ok && i > 0 {
			parts[i] = abbr
			continue
		}
		parts[i] = strings.ToUpper(p)
	}
	return strings.Join(parts, " ")
}
