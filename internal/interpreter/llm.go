package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/yisiliu2005/masiv2025/internal/filter"
	"github.com/yisiliu2005/masiv2025/internal/logger"
)

const (
	DefaultLLMBaseURL = "https://router.huggingface.co/v1"
	DefaultLLMModel   = "moonshotai/Kimi-K2-Instruct-0905"
	maxReplyBytes     = 1 << 20
)

// LLMConfig：OpenAI 兼容的对话补全接口配置
type LLMConfig struct {
	BaseURL string
	Model   string
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// LLM：通过对话补全接口解释查询
type LLM struct {
	cfg    LLMConfig
	client *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// NewLLM：补齐默认地址、模型与超时；Client 为空时使用带超时的独立客户端
func NewLLM(cfg LLMConfig) *LLM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLLMBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := cfg.Client
	if c == nil {
		c = &http.Client{Timeout: cfg.Timeout}
	}
	return &LLM{cfg: cfg, client: c}
}

func (l *LLM) Name() string { return "llm" }

// 文档注释：调用对话补全接口并解析回复
// 背景：请求级密钥（WithAPIKey）优先于配置密钥；两者都没有时返回 ErrNoCredentials，不发起请求。
// 约束：非 2xx、网络错误与超时原样返回错误；回复内容可包含代码块或前后说明文字，只取其中的第一个 JSON 对象。
func (l *LLM) Interpret(ctx context.Context, text string) (filter.Candidate, error) {
	key := APIKeyFrom(ctx)
	if key == "" {
		key = l.cfg.Token
	}
	if key == "" {
		return filter.Candidate{}, ErrNoCredentials
	}
	body, err := json.Marshal(chatRequest{
		Model:    l.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: BuildPrompt(text)}},
	})
	if err != nil {
		return filter.Candidate{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return filter.Candidate{}, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	t0 := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		logger.For("interpreter").Error("llm_http_error", "err", err)
		return filter.Candidate{}, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return filter.Candidate{}, fmt.Errorf("llm read: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		logger.For("interpreter").Error("llm_status_error", "status", resp.StatusCode, "body", truncate(string(raw), 300))
		return filter.Candidate{}, fmt.Errorf("llm status %d", resp.StatusCode)
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	logger.For("interpreter").Debug("llm_resp",
		"model", l.cfg.Model,
		"content", truncate(content.String(), 300),
		"duration_ms", time.Since(t0).Milliseconds(),
	)
	if !content.Exists() {
		return filter.Candidate{}, fmt.Errorf("%w: no message content", ErrUnparseable)
	}
	return ParseReply(content.String())
}

// 文档注释：从回复文本中提取候选条件
// 约束：去掉 ``` 代码块标记，取第一个 '{' 到最后一个 '}' 之间的文本；不是合法 JSON 对象时返回 ErrUnparseable。
// 字段缺失不在此处判定，由 filter.Parse 统一拒绝。
func ParseReply(s string) (filter.Candidate, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	i := strings.Index(s, "{")
	j := strings.LastIndex(s, "}")
	if i < 0 || j < i {
		return filter.Candidate{}, fmt.Errorf("%w: no json object in %q", ErrUnparseable, truncate(s, 80))
	}
	obj := s[i : j+1]
	if !gjson.Valid(obj) {
		return filter.Candidate{}, fmt.Errorf("%w: invalid json %q", ErrUnparseable, truncate(obj, 80))
	}
	r := gjson.Parse(obj)
	if !r.IsObject() {
		return filter.Candidate{}, fmt.Errorf("%w: not an object", ErrUnparseable)
	}
	return filter.Candidate{
		Attribute: r.Get("attribute").String(),
		Operator:  r.Get("operator").String(),
		Value:     r.Get("value").Value(),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
