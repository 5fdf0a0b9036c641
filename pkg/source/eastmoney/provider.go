// Package eastmoney 东方财富数据源适配器。
// K线走 push2his 历史行情接口，基本信息走 push2 个股接口。
package eastmoney

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stockfetch/pkg/core"
	"stockfetch/pkg/logger"

	"github.com/sirupsen/logrus"
)

const (
	klineURL = "http://push2his.eastmoney.com/api/qt/stock/kline/get"
	infoURL  = "http://push2.eastmoney.com/api/qt/stock/get"
)

// Provider 东方财富数据源
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
}

// NewProvider 创建东方财富数据源
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
		log:       logger.WithComponent("EastmoneyProvider"),
	}
}

// Name 返回数据源名称
func (p *Provider) Name() string {
	return "eastmoney"
}

// SetUserAgent 设置 HTTP 用户代理
func (p *Provider) SetUserAgent(ua string) {
	p.userAgent = ua
}

// FetchBars 获取K线数据
// 返回 akshare 风格的中文列名原始表，由规范化器统一映射
func (p *Provider) FetchBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
	klt, ok := kltFor(period)
	if !ok {
		return nil, fmt.Errorf("eastmoney: unsupported period %q", period)
	}

	params := url.Values{}
	params.Set("secid", secidFor(symbol))
	params.Set("klt", klt)
	params.Set("fqt", "1") // 前复权
	params.Set("beg", start.Format("20060102"))
	params.Set("end", end.Format("20060102"))
	params.Set("fields1", "f1,f2,f3,f4,f5,f6")
	params.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")

	body, err := p.get(ctx, klineURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	return parseKlineResponse(body)
}

// FetchInfo 获取股票基本信息，返回单行表
func (p *Provider) FetchInfo(ctx context.Context, symbol string) (*core.RawTable, error) {
	params := url.Values{}
	params.Set("secid", secidFor(symbol))
	params.Set("fields", "f57,f58,f84,f85,f127,f189")

	body, err := p.get(ctx, infoURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	return parseInfoResponse(body)
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

// secidFor 构造东方财富证券ID，上证前缀1，其余0
func secidFor(symbol string) string {
	if core.MarketFor(symbol) == "sh" {
		return "1." + symbol
	}
	return "0." + symbol
}

// kltFor 把周期映射为东方财富 klt 参数
func kltFor(period core.Period) (string, bool) {
	switch period {
	case core.Period1Min:
		return "1", true
	case core.Period5Min:
		return "5", true
	case core.Period15Min:
		return "15", true
	case core.Period30Min:
		return "30", true
	case core.Period1Hour:
		return "60", true
	case core.PeriodDaily:
		return "101", true
	case core.PeriodWeek:
		return "102", true
	case core.PeriodMonth:
		return "103", true
	case core.PeriodQuarter:
		return "104", true
	case core.PeriodHalfYear:
		return "105", true
	case core.PeriodYear:
		return "106", true
	}
	return "", false
}
