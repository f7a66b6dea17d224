package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yisiliu2005/masiv2025/internal/dataset"
	"github.com/yisiliu2005/masiv2025/internal/filter"
	"github.com/yisiliu2005/masiv2025/internal/interpreter"
	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
	"github.com/yisiliu2005/masiv2025/internal/store"
)

// ParseFailure：解释或校验失败时返回给客户端的错误文本
const ParseFailure = "Failed to parse query"

// QueryResult：查询接口响应体；Error 为 nil 时序列化为 null
type QueryResult struct {
	MatchingIDs  []string       `json:"matching_ids"`
	FilterParsed *filter.Filter `json:"filter_parsed"`
	Error        *string        `json:"error"`
	Message      string         `json:"message"`
	// InterpretedBy：实际作答的解释器（llm、rules，缓存命中带 +cache）
	InterpretedBy string `json:"interpreted_by,omitempty"`
}

// 文档注释：执行一次自然语言查询
// 背景：解释器输出不可信，必须经 filter.Parse 校验；校验通过后对当前快照求值。
// 约束：解释失败或校验失败都返回空 ID 列表与 ParseFailure，不视为服务端错误；
// 查询只读取调用时的快照，并发刷新不会影响本次结果。
func RunQuery(ctx context.Context, snap *dataset.Snapshot, in interpreter.Interpreter, st *store.Store, text string) QueryResult {
	l := logger.For("api")
	t0 := time.Now()
	rec := store.QueryRecord{Query: text, Interpreter: in.Name()}
	res := QueryResult{MatchingIDs: []string{}}

	ans, err := interpreter.Resolve(ctx, in, text)
	if ans.By != "" {
		rec.Interpreter = ans.Label()
		res.InterpretedBy = ans.Label()
	}
	var f filter.Filter
	if err == nil {
		f, err = filter.Parse(ans.Candidate)
	}
	if err != nil {
		l.Info("query_unparsed", "query", text, "err", err)
		msg := ParseFailure
		res.Error = &msg
		rec.Error = err.Error()
	} else {
		res.FilterParsed = &f
		res.MatchingIDs = filter.Evaluate(snap.Buildings, f)
		rec.Filter, _ = json.Marshal(f)
		l.Info("query_done", "query", text, "filter", f.String(), "matches", len(res.MatchingIDs))
	}
	metrics.FilterMatches.Observe(float64(len(res.MatchingIDs)))
	res.Message = fmt.Sprintf("Found %d matching buildings", len(res.MatchingIDs))

	rec.Matches = len(res.MatchingIDs)
	rec.DurationMs = time.Since(t0).Milliseconds()
	st.RecordQuery(ctx, rec)
	return res
}
