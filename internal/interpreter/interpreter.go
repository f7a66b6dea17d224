// 包 interpreter：把自然语言查询翻译为候选过滤条件（LLM、固定规则、缓存包装）
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yisiliu2005/masiv2025/internal/filter"
	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
)

var (
	// ErrNoCredentials：未配置且请求未携带 LLM 密钥
	ErrNoCredentials = errors.New("interpreter: no api key available")
	// ErrUnparseable：外部服务返回无法解析为过滤条件的内容
	ErrUnparseable = errors.New("interpreter: unparseable reply")
	// ErrNoRule：固定规则无法识别该查询
	ErrNoRule = errors.New("interpreter: no rule matched")
)

// 文档注释：解释器接口
// 约束：返回值是不可信的候选条件，调用方必须经 filter.Parse 校验后才能求值。
type Interpreter interface {
	Name() string
	Interpret(ctx context.Context, text string) (filter.Candidate, error)
}

type apiKeyCtx struct{}

// WithAPIKey：为单次请求覆盖 LLM 密钥；空串不生效
func WithAPIKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, apiKeyCtx{}, key)
}

// APIKeyFrom：读取请求级密钥
func APIKeyFrom(ctx context.Context) string {
	s, _ := ctx.Value(apiKeyCtx{}).(string)
	return s
}

// Answer：一次解释的结果与实际作答的解释器
type Answer struct {
	Candidate filter.Candidate `json:"candidate"`
	By        string           `json:"by"`
	Cached    bool             `json:"-"`
}

// Label：查询日志中的作答来源；缓存命中带 "+cache" 后缀
func (a Answer) Label() string {
	if a.Cached {
		return a.By + "+cache"
	}
	return a.By
}

// Resolver：能报告作答者的解释器（Chain、Cached）
type Resolver interface {
	Resolve(ctx context.Context, text string) (Answer, error)
}

// Resolve：in 实现 Resolver 时由其报告作答者，否则作答者即 in 本身
func Resolve(ctx context.Context, in Interpreter, text string) (Answer, error) {
	if r, ok := in.(Resolver); ok {
		return r.Resolve(ctx, text)
	}
	cand, err := in.Interpret(ctx, text)
	return Answer{Candidate: cand, By: in.Name()}, err
}

// 文档注释：按顺序尝试多个解释器
// 背景：LLM 不可用（无密钥、超时、回复无法解析）时由固定规则兜底，保证无外部依赖时仍可用。
// 约束：返回第一个成功结果；全部失败时返回合并后的错误，可用 errors.Is 判断各自原因。
type Chain []Interpreter

func (c Chain) Name() string { return "chain" }

// Primary：首选解释器名；空链返回空串
func (c Chain) Primary() string {
	if len(c) == 0 {
		return ""
	}
	return c[0].Name()
}

func (c Chain) Interpret(ctx context.Context, text string) (filter.Candidate, error) {
	a, err := c.Resolve(ctx, text)
	return a.Candidate, err
}

func (c Chain) Resolve(ctx context.Context, text string) (Answer, error) {
	var errs []error
	for _, in := range c {
		cand, err := observe(ctx, in, text)
		if err == nil {
			return Answer{Candidate: cand, By: in.Name()}, nil
		}
		logger.For("interpreter").Debug("interpret_fallthrough", "interpreter", in.Name(), "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", in.Name(), err))
	}
	if len(errs) == 0 {
		return Answer{}, ErrNoRule
	}
	return Answer{}, errors.Join(errs...)
}

// observe：调用解释器并记录耗时与结果指标
func observe(ctx context.Context, in Interpreter, text string) (filter.Candidate, error) {
	t0 := time.Now()
	cand, err := in.Interpret(ctx, text)
	metrics.InterpretDurationMs.WithLabelValues(in.Name()).Observe(float64(time.Since(t0).Milliseconds()))
	result := "ok"
	switch {
	case errors.Is(err, ErrNoCredentials):
		result = "no_credentials"
	case errors.Is(err, ErrNoRule):
		result = "no_rule"
	case errors.Is(err, ErrUnparseable):
		result = "unparseable"
	case err != nil:
		result = "error"
	}
	metrics.InterpretTotal.WithLabelValues(in.Name(), result).Inc()
	return cand, err
}
