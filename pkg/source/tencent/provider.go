// Package tencent 腾讯数据源适配器。
// K线走 ifzq 前复权K线接口，分笔明细走 gtimg detail 下载接口，
// 实时行情走 qt.gtimg 行情接口。
package tencent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"stockfetch/pkg/core"
	"stockfetch/pkg/logger"

	"github.com/sirupsen/logrus"
)

const (
	klineURL  = "https://proxy.finance.qq.com/ifzqgtimg/appstock/app/newfqkline/get"
	detailURL = "http://stock.gtimg.cn/data/index.php"
	quoteURL  = "http://qt.gtimg.cn/q="
)

// Provider 腾讯数据源
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
}

// NewProvider 创建腾讯数据源
func NewProvider() *Provider {
	return &Provider{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: 15 * time.Second,
		},
		userAgent: "StockFetch/1.0",
		log:       logger.WithComponent("TencentProvider"),
	}
}

// Name 返回数据源名称
func (p *Provider) Name() string {
	return "tencent"
}

// SetUserAgent 设置 HTTP 用户代理
func (p *Provider) SetUserAgent(ua string) {
	p.userAgent = ua
}

// FetchBars 获取K线数据
// 仅支持日/周/月周期，日内周期由其它数据源覆盖
func (p *Provider) FetchBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
	kind, ok := klineKindFor(period)
	if !ok {
		return nil, fmt.Errorf("tencent: unsupported period %q", period)
	}

	code := core.MarketFor(symbol) + symbol
	param := fmt.Sprintf("%s,%s,%s,%s,640,qfq", code, kind, start.Format("2006-01-02"), end.Format("2006-01-02"))

	body, err := p.get(ctx, klineURL+"?param="+param)
	if err != nil {
		return nil, err
	}

	return parseKlineResponse(body, code, kind)
}

// FetchTicks 获取单个交易日的分笔成交明细
func (p *Provider) FetchTicks(ctx context.Context, symbol string, tradeDate time.Time) (*core.RawTable, error) {
	return p.fetchTicksWithCode(ctx, core.MarketFor(symbol)+symbol, tradeDate)
}

// FetchQuotes 获取实时行情快照
func (p *Provider) FetchQuotes(ctx context.Context, symbols []string) ([]core.QuoteData, error) {
	if len(symbols) == 0 {
		return []core.QuoteData{}, nil
	}

	url := quoteURL
	for i, symbol := range symbols {
		if i > 0 {
			url += ","
		}
		url += core.MarketFor(symbol) + symbol
	}

	body, err := p.get(ctx, url)
	if err != nil {
		return nil, err
	}

	return parseQuoteResponse(body), nil
}

// fetchTicksWithCode 以带市场前缀的代码抓取分笔明细
func (p *Provider) fetchTicksWithCode(ctx context.Context, prefixedCode string, tradeDate time.Time) (*core.RawTable, error) {
	url := fmt.Sprintf("%s?appn=detail&action=download&c=%s&d=%s",
		detailURL, prefixedCode, tradeDate.Format("20060102"))

	body, err := p.get(ctx, url)
	if err != nil {
		return nil, err
	}

	return parseDetailResponse(body)
}

// get 执行一次 HTTP GET，返回响应体
func (p *Provider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	p.log.Debugf("GET %s completed in %v, body length: %d", rawURL, time.Since(start), len(body))
	return body, nil
}

// klineKindFor 把周期映射为 ifzq K线种类
func klineKindFor(period core.Period) (string, bool) {
	switch period {
	case core.PeriodDaily:
		return "day", true
	case core.PeriodWeek:
		return "week", true
	case core.PeriodMonth:
		return "month", true
	}
	return "", false
}

// PrefixedProvider 备用分笔数据源
// 与主数据源走同一明细接口，但使用简化的市场前缀推断：
// 6开头视为上证，其余一律视为深证
type PrefixedProvider struct {
	*Provider
}

// NewPrefixedProvider 创建备用分笔数据源
func NewPrefixedProvider() *PrefixedProvider {
	return &PrefixedProvider{Provider: NewProvider()}
}

// Name 返回数据源名称
func (p *PrefixedProvider) Name() string {
	return "tencent_prefixed"
}

// FetchTicks 获取分笔成交明细
func (p *PrefixedProvider) FetchTicks(ctx context.Context, symbol string, tradeDate time.Time) (*core.RawTable, error) {
	prefix := "sz"
	if len(symbol) > 0 && symbol[0] == '6' {
		prefix = "sh"
	}
	return p.fetchTicksWithCode(ctx, prefix+symbol, tradeDate)
}
