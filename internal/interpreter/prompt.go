package interpreter

import (
	"strings"

	"github.com/yisiliu2005/masiv2025/internal/filter"
)

// zoneHints：用地关键词到卡尔加里用地代码前缀，前缀取足够长以避免互相覆盖（C-C 与 CC- 不同）
var zoneHints = []struct {
	words  []string
	prefix string
}{
	{[]string{"multi-residential", "multi residential", "apartment", "apartments", "condo", "condos"}, "M-"},
	{[]string{"mixed use", "mixed-use"}, "MU-"},
	{[]string{"downtown", "centre city", "center city"}, "CC-"},
	{[]string{"business park", "office", "offices"}, "C-O"},
	{[]string{"commercial", "retail", "shopping"}, "C-C"},
	{[]string{"industrial", "factory", "factories", "warehouse", "warehouses"}, "I-"},
	{[]string{"residential", "house", "houses", "homes"}, "R-"},
	{[]string{"park", "parks", "school", "schools", "special purpose"}, "S-"},
}

// BuildPrompt：生成发给 LLM 的单轮提示词；单位换算与用地代码映射全部由提示词约定
func BuildPrompt(query string) string {
	attrs := make([]string, len(filter.Attributes))
	for i, a := range filter.Attributes {
		attrs[i] = string(a)
	}
	ops := make([]string, len(filter.Operators))
	for i, o := range filter.Operators {
		ops[i] = "'" + string(o) + "'"
	}

	var b strings.Builder
	b.WriteString("You translate a question about buildings in Calgary into exactly one filter.\n")
	b.WriteString("Reply with a single JSON object and nothing else, with the keys:\n")
	b.WriteString("- attribute: one of [" + strings.Join(attrs, ", ") + "]\n")
	b.WriteString("- operator: one of [" + strings.Join(ops, ", ") + "]\n")
	b.WriteString("- value: a number for height, assessed_value and year_of_construction; a string otherwise\n\n")
	b.WriteString("Units:\n")
	b.WriteString("- height is in meters; convert feet with 1 ft = 0.3048 m\n")
	b.WriteString("- assessed_value is in dollars; \"$1 million\" is 1000000, \"500k\" is 500000\n")
	b.WriteString("- dates and ages map to year_of_construction\n\n")
	b.WriteString("Zoning words map to land_use_designation with the 'contains' operator and a code prefix:\n")
	for _, z := range zoneHints {
		b.WriteString("- " + strings.Join(z.words, ", ") + " -> \"" + z.prefix + "\"\n")
	}
	b.WriteString("\nExamples:\n")
	b.WriteString(`- "buildings over 100 feet" -> {"attribute": "height", "operator": ">", "value": 30.48}` + "\n")
	b.WriteString(`- "built after 2010" -> {"attribute": "year_of_construction", "operator": ">", "value": 2010}` + "\n")
	b.WriteString(`- "worth less than $2 million" -> {"attribute": "assessed_value", "operator": "<", "value": 2000000}` + "\n")
	b.WriteString(`- "commercial buildings" -> {"attribute": "land_use_designation", "operator": "contains", "value": "C-C"}` + "\n")
	b.WriteString(`- "buildings on 10 Avenue" -> {"attribute": "address", "operator": "contains", "value": "10 AV"}` + "\n\n")
	b.WriteString("Question: " + strings.TrimSpace(query) + "\n")
	b.WriteString("JSON:")
	return b.String()
}
