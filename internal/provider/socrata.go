// 包 provider：卡尔加里开放数据（Socrata SODA）客户端，按固定外包框拉取建筑轮廓与房产评估
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yisiliu2005/masiv2025/internal/dataset"
	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
)

const (
	DefaultBaseURL = "https://data.calgary.ca/resource"
	// FootprintDataset：建筑轮廓与高程
	FootprintDataset = "cchr-krqg"
	// AssessmentDataset：房产评估（地址、用地代码、评估值、建成年份）
	AssessmentDataset = "4bsw-nn7w"
	DefaultLimit      = 50000
	DefaultTimeout    = 120 * time.Second
)

// BBox：经纬度外包框
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// CalgaryBeltline：服务覆盖的四个街区
var CalgaryBeltline = BBox{
	MinLat: 51.03893877415592,
	MaxLat: 51.03999458794443,
	MinLon: -114.07927447774654,
	MaxLon: -114.07429304853973,
}

// WithinBox：SODA within_box 条件，参数顺序为 (lat, lon)
func (b BBox) WithinBox(column string) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return fmt.Sprintf("within_box(%s, %s, %s, %s, %s)", column, f(b.MinLat), f(b.MinLon), f(b.MaxLat), f(b.MaxLon))
}

// Config：客户端配置；零值字段使用默认值
type Config struct {
	BaseURL  string
	AppToken string
	Limit    int
	Timeout  time.Duration
	Box      BBox
	Client   *http.Client
}

// Client：实现 dataset.Source
type Client struct {
	cfg    Config
	client *http.Client
}

var _ dataset.Source = (*Client)(nil)

// New：补齐默认值
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Box == (BBox{}) {
		cfg.Box = CalgaryBeltline
	}
	c := cfg.Client
	if c == nil {
		c = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, client: c}
}

// FetchFootprints：拉取外包框内的建筑轮廓；失败返回空切片
func (c *Client) FetchFootprints(ctx context.Context) []dataset.RawFootprint {
	return fetch[dataset.RawFootprint](ctx, c, FootprintDataset, "polygon")
}

// FetchAssessments：拉取外包框内的房产评估；失败返回空切片
func (c *Client) FetchAssessments(ctx context.Context) []dataset.RawAssessment {
	return fetch[dataset.RawAssessment](ctx, c, AssessmentDataset, "multipolygon")
}

// 文档注释：按数据集拉取并逐条解码
// 背景：外部数据不可控，整体失败（网络、超时、非 2xx、非 JSON 数组）被吸收为“空数据集”并计数；
// 单条记录解码失败只跳过该条。
// 约束：不向上返回错误，调用方据日志与指标判断数据完整性。
func fetch[T any](ctx context.Context, c *Client, ds, geomColumn string) []T {
	l := logger.For("provider")
	items, err := c.get(ctx, ds, geomColumn)
	if err != nil {
		metrics.SourceFailTotal.WithLabelValues(ds).Inc()
		l.Error("soda_fetch_error", "dataset", ds, "err", err)
		return []T{}
	}
	out := make([]T, 0, len(items))
	skipped := 0
	for _, it := range items {
		var v T
		if err := json.Unmarshal(it, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	if skipped > 0 {
		metrics.SourceRecordsSkipped.WithLabelValues(ds).Add(float64(skipped))
		l.Warn("soda_records_skipped", "dataset", ds, "skipped", skipped)
	}
	return out
}

func (c *Client) get(ctx context.Context, ds, geomColumn string) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("$limit", strconv.Itoa(c.cfg.Limit))
	q.Set("$where", c.cfg.Box.WithinBox(geomColumn))
	u := c.cfg.BaseURL + "/" + ds + ".json?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AppToken != "" {
		req.Header.Set("X-App-Token", c.cfg.AppToken)
	}

	t0 := time.Now()
	metrics.SourceRequestsTotal.WithLabelValues(ds).Inc()
	logger.For("provider").Debug("soda_req", "dataset", ds, "where", q.Get("$where"))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("soda %s: %w", ds, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("soda %s: status %d: %s", ds, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("soda %s: decode: %w", ds, err)
	}
	dur := time.Since(t0).Milliseconds()
	metrics.SourceDurationMs.WithLabelValues(ds).Observe(float64(dur))
	logger.For("provider").Info("soda_resp", "dataset", ds, "records", len(items), "duration_ms", dur)
	return items, nil
}
