// Package sina 新浪数据源适配器。
// K线走 CN_MarketDataService 接口，分笔降级走 hq.sinajs 实时行情接口，
// 由最新快照合成单条分笔记录。
package sina

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
	klineURL = "https://quotes.sina.cn/cn/api/json_v2.php/CN_MarketDataService.getKLineData"
	spotURL  = "https://hq.sinajs.cn/list="
)

// Provider 新浪数据源
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
}

// NewProvider 创建新浪数据源
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
		log:       logger.WithComponent("SinaProvider"),
	}
}

// Name 返回数据源名称
func (p *Provider) Name() string {
	return "sina"
}

// SetUserAgent 设置 HTTP 用户代理
func (p *Provider) SetUserAgent(ua string) {
	p.userAgent = ua
}

// FetchBars 获取K线数据
// 接口只按条数取最近N条，日期过滤交给规范化之后的调用方；
// 返回英文列名的原始表
func (p *Provider) FetchBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
	scale, ok := scaleFor(period)
	if !ok {
		return nil, fmt.Errorf("sina: unsupported period %q", period)
	}

	url := fmt.Sprintf("%s?symbol=%s%s&scale=%s&ma=no&datalen=1023",
		klineURL, core.MarketFor(symbol), symbol, scale)

	body, err := p.get(ctx, url)
	if err != nil {
		return nil, err
	}

	return parseKlineResponse(body)
}

// FetchInfo 获取股票基本信息
// 从实时行情快照提取代码和简称，作为基本信息的降级来源
func (p *Provider) FetchInfo(ctx context.Context, symbol string) (*core.RawTable, error) {
	body, err := p.get(ctx, spotURL+core.MarketFor(symbol)+symbol)
	if err != nil {
		return nil, err
	}

	return parseInfoResponse(body, symbol)
}

// get 执行一次 HTTP GET，返回响应体
func (p *Provider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	// hq.sinajs 校验来源站点
	req.Header.Set("Referer", "https://finance.sina.com.cn")

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

// scaleFor 把周期映射为新浪 scale 参数（分钟数）
func scaleFor(period core.Period) (string, bool) {
	switch period {
	case core.Period5Min:
		return "5", true
	case core.Period15Min:
		return "15", true
	case core.Period30Min:
		return "30", true
	case core.Period1Hour:
		return "60", true
	case core.PeriodDaily:
		return "240", true
	}
	return "", false
}

// SpotProvider 降级分笔数据源
// 上游没有历史分笔接口，仅在请求当日时用实时快照合成一条中性盘记录；
// 请求历史日期时返回空表
type SpotProvider struct {
	*Provider
	// now 便于测试注入当前时间
	now func() time.Time
}

// NewSpotProvider 创建降级分笔数据源
func NewSpotProvider() *SpotProvider {
	return &SpotProvider{Provider: NewProvider(), now: time.Now}
}

// Name 返回数据源名称
func (p *SpotProvider) Name() string {
	return "sina_spot"
}

// FetchTicks 获取分笔数据
func (p *SpotProvider) FetchTicks(ctx context.Context, symbol string, tradeDate time.Time) (*core.RawTable, error) {
	// 快照只反映当前交易日，历史日期无数据可合成
	if tradeDate.Format("2006-01-02") != p.now().Format("2006-01-02") {
		return core.NewRawTable(spotTickColumns...), nil
	}

	body, err := p.get(ctx, spotURL+core.MarketFor(symbol)+symbol)
	if err != nil {
		return nil, err
	}

	return parseSpotTickResponse(body)
}
