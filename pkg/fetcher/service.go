package fetcher

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"stockfetch/pkg/config"
	"stockfetch/pkg/core"
	"stockfetch/pkg/executor"
	"stockfetch/pkg/logger"
	"stockfetch/pkg/source"
	"stockfetch/pkg/source/decorators"
	"stockfetch/pkg/source/eastmoney"
	"stockfetch/pkg/source/sina"
	"stockfetch/pkg/source/tencent"
	"stockfetch/pkg/storage"
	"stockfetch/pkg/timing"

	"github.com/sirupsen/logrus"
)

// symbolPattern A股六位数字代码
var symbolPattern = regexp.MustCompile(`^\d{6}$`)

// PersistGateway 门面的持久化出口
// 抓取与落库解耦：落库失败不影响已返回的抓取结果
type PersistGateway interface {
	WriteBars(ctx context.Context, bars []core.BarData) *storage.PersistResult
	WriteTicks(ctx context.Context, ticks []core.TickData) *storage.PersistResult
	UpsertStockInfo(ctx context.Context, info *core.StockInfo) error
}

// Service 数据获取门面
// 每个领域一个方法：K线、分笔、基本信息、实时行情，
// 各自把对应的数据源列表接入故障切换编排器
type Service struct {
	cfg      config.FetcherConfig
	failover *Failover

	barSources   []source.BarSource
	tickSources  []source.TickSource
	infoSources  []source.InfoSource
	quoteSources []source.QuoteSource

	gateway PersistGateway
	market  *timing.MarketTime
	log     *logrus.Entry
}

// Option Service 可选配置
type Option func(*Service)

// WithBarSources 覆盖K线数据源列表
func WithBarSources(sources ...source.BarSource) Option {
	return func(s *Service) { s.barSources = sources }
}

// WithTickSources 覆盖分笔数据源列表
func WithTickSources(sources ...source.TickSource) Option {
	return func(s *Service) { s.tickSources = sources }
}

// WithInfoSources 覆盖基本信息数据源列表
func WithInfoSources(sources ...source.InfoSource) Option {
	return func(s *Service) { s.infoSources = sources }
}

// WithQuoteSources 覆盖实时行情数据源列表
func WithQuoteSources(sources ...source.QuoteSource) Option {
	return func(s *Service) { s.quoteSources = sources }
}

// WithGateway 启用持久化
func WithGateway(gateway PersistGateway) Option {
	return func(s *Service) { s.gateway = gateway }
}

// WithMarketTime 覆盖市场时间检测器
func WithMarketTime(market *timing.MarketTime) Option {
	return func(s *Service) { s.market = market }
}

// WithFailover 覆盖故障切换编排器
func WithFailover(failover *Failover) Option {
	return func(s *Service) { s.failover = failover }
}

// NewService 按配置创建数据获取门面
// 未覆盖的数据源列表按配置中的优先级顺序构建内置数据源
func NewService(cfg config.FetcherConfig, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		market: timing.DefaultMarketTime(),
		log:    logger.WithComponent("Fetcher"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.failover == nil {
		s.failover = NewFailover(
			executor.NewBounded(cfg.Timeout), cfg.MaxRetries, cfg.RetryDelay, cfg.BackoffDelay)
	}

	registry := newSourceRegistry(cfg.UserAgent)
	if s.barSources == nil {
		s.barSources = registry.barSources(cfg.BarSources)
		if cfg.CircuitBreaker {
			for i, src := range s.barSources {
				s.barSources[i] = decorators.NewBarSource(src, nil)
			}
		}
	}
	if s.tickSources == nil {
		s.tickSources = registry.tickSources(cfg.TickSources)
		if cfg.CircuitBreaker {
			for i, src := range s.tickSources {
				s.tickSources[i] = decorators.NewTickSource(src, nil)
			}
		}
	}
	if s.infoSources == nil {
		s.infoSources = registry.infoSources(cfg.InfoSources)
		if cfg.CircuitBreaker {
			for i, src := range s.infoSources {
				s.infoSources[i] = decorators.NewInfoSource(src, nil)
			}
		}
	}
	if s.quoteSources == nil {
		s.quoteSources = registry.quoteSources()
	}

	return s
}

// FetchBars 获取K线数据。
// 结束日期缺省为当天，起始日期缺省为结束日期向前回溯配置的天数。
// 依次尝试各K线数据源，返回第一个非空结果的规范化K线；
// 配置了持久化网关时按周期分片落库，落库失败只记日志不影响返回值
func (s *Service) FetchBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) ([]core.BarData, error) {
	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidSymbol, symbol)
	}
	if !period.IsValid() {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidPeriod, period)
	}

	if end.IsZero() {
		end = s.market.Now()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -s.cfg.DefaultRangeDays)
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s after %s",
			core.ErrInvalidDateRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	calls := make([]Call, 0, len(s.barSources))
	for _, src := range s.barSources {
		src := src
		calls = append(calls, Call{
			Source: src.Name(),
			Do: func(ctx context.Context) (*core.RawTable, error) {
				return src.FetchBars(ctx, symbol, period, start, end)
			},
		})
	}

	table, _, err := s.failover.Fetch(ctx, "fetch_bars", calls)
	if err != nil {
		return nil, err
	}

	bars, err := NormalizeBars(table, symbol, period)
	if err != nil {
		return nil, err
	}
	bars = filterBarRange(bars, start, end)

	if s.gateway != nil && len(bars) > 0 {
		if result := s.gateway.WriteBars(ctx, bars); !result.OK() {
			s.log.WithFields(logrus.Fields{
				"symbol": symbol,
				"period": period,
				"failed": result.FailureCount,
			}).Warn("bar persistence partially failed")
		}
	}

	return bars, nil
}

// FetchTicks 获取单个交易日的分笔数据。
// 交易日期缺省为最近一个已开盘交易日。所有数据源耗尽时默认返回
// 空结果而非错误（非交易日无分笔属正常情况），可通过配置改为报错
func (s *Service) FetchTicks(ctx context.Context, symbol string, tradeDate time.Time) ([]core.TickData, error) {
	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidSymbol, symbol)
	}

	if tradeDate.IsZero() {
		tradeDate = s.market.MostRecentSession()
	}

	calls := make([]Call, 0, len(s.tickSources))
	for _, src := range s.tickSources {
		src := src
		calls = append(calls, Call{
			Source: src.Name(),
			Do: func(ctx context.Context) (*core.RawTable, error) {
				return src.FetchTicks(ctx, symbol, tradeDate)
			},
		})
	}

	table, _, err := s.failover.Fetch(ctx, "fetch_ticks", calls)
	if err != nil {
		if IsExhausted(err) && !s.cfg.TickErrorOnExhausted {
			s.log.WithFields(logrus.Fields{
				"symbol": symbol,
				"date":   tradeDate.Format("2006-01-02"),
			}).Info("no tick data from any source, returning empty result")
			return []core.TickData{}, nil
		}
		return nil, err
	}

	ticks, err := NormalizeTicks(table, symbol, tradeDate)
	if err != nil {
		return nil, err
	}

	if s.gateway != nil && len(ticks) > 0 {
		if result := s.gateway.WriteTicks(ctx, ticks); !result.OK() {
			s.log.WithFields(logrus.Fields{
				"symbol": symbol,
				"date":   tradeDate.Format("2006-01-02"),
				"failed": result.FailureCount,
			}).Warn("tick persistence partially failed")
		}
	}

	return ticks, nil
}

// FetchInfo 获取股票基本信息
// 配置了持久化网关时按 (代码, 市场) 覆盖写入基本信息表
func (s *Service) FetchInfo(ctx context.Context, symbol string) (*core.StockInfo, error) {
	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidSymbol, symbol)
	}

	calls := make([]Call, 0, len(s.infoSources))
	for _, src := range s.infoSources {
		src := src
		calls = append(calls, Call{
			Source: src.Name(),
			Do: func(ctx context.Context) (*core.RawTable, error) {
				return src.FetchInfo(ctx, symbol)
			},
		})
	}

	table, _, err := s.failover.Fetch(ctx, "fetch_reference_info", calls)
	if err != nil {
		return nil, err
	}

	info, err := NormalizeInfo(table, symbol)
	if err != nil {
		return nil, err
	}

	if s.gateway != nil {
		if err := s.gateway.UpsertStockInfo(ctx, info); err != nil {
			s.log.WithFields(logrus.Fields{
				"symbol": symbol,
				"error":  err.Error(),
			}).Warn("stock info persistence failed")
		}
	}

	return info, nil
}

// FetchQuotes 获取实时行情快照，依次尝试各行情数据源。
// 行情讲究时效，单数据源失败不重试，直接切换下一数据源；
// 每次调用与其它门面一样受执行器时限约束
func (s *Service) FetchQuotes(ctx context.Context, symbols []string) ([]core.QuoteData, error) {
	var lastErr error
	for _, src := range s.quoteSources {
		src := src
		var quotes []core.QuoteData
		// 行情结果经闭包带出，执行器只承载时限语义。
		// 成功路径上 worker 先写 quotes 再发信号，读取是安全的；
		// 超时后被放弃的 worker 写的是本次迭代的局部变量，无人再读
		_, err := s.failover.exec.Run(ctx, func(qctx context.Context) (*core.RawTable, error) {
			q, err := src.FetchQuotes(qctx, symbols)
			if err != nil {
				return nil, err
			}
			quotes = q
			return core.NewRawTable(), nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			s.log.WithFields(logrus.Fields{
				"source": src.Name(),
				"error":  err.Error(),
			}).Warn("quote source failed")
			continue
		}
		return quotes, nil
	}
	return nil, &AllSourcesExhausted{Operation: "fetch_quotes", LastErr: lastErr}
}

// filterBarRange 按请求范围过滤K线
// 部分数据源忽略日期参数只按条数返回
func filterBarRange(bars []core.BarData, start, end time.Time) []core.BarData {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.Local)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.Local)

	filtered := bars[:0]
	for _, bar := range bars {
		if bar.TradeDate.Before(startDay) || bar.TradeDate.After(endDay) {
			continue
		}
		filtered = append(filtered, bar)
	}
	return filtered
}

// sourceRegistry 内置数据源注册表
type sourceRegistry struct {
	eastmoney       *eastmoney.Provider
	tencent         *tencent.Provider
	tencentPrefixed *tencent.PrefixedProvider
	sina            *sina.Provider
	sinaSpot        *sina.SpotProvider
}

func newSourceRegistry(userAgent string) *sourceRegistry {
	r := &sourceRegistry{
		eastmoney:       eastmoney.NewProvider(),
		tencent:         tencent.NewProvider(),
		tencentPrefixed: tencent.NewPrefixedProvider(),
		sina:            sina.NewProvider(),
		sinaSpot:        sina.NewSpotProvider(),
	}
	if userAgent != "" {
		r.eastmoney.SetUserAgent(userAgent)
		r.tencent.SetUserAgent(userAgent)
		r.tencentPrefixed.SetUserAgent(userAgent)
		r.sina.SetUserAgent(userAgent)
		r.sinaSpot.SetUserAgent(userAgent)
	}
	return r
}

// barSources 按名称列表组装K线数据源，未知名称被忽略
func (r *sourceRegistry) barSources(names []string) []source.BarSource {
	sources := make([]source.BarSource, 0, len(names))
	for _, name := range names {
		switch name {
		case "eastmoney":
			sources = append(sources, r.eastmoney)
		case "tencent":
			sources = append(sources, r.tencent)
		case "sina":
			sources = append(sources, r.sina)
		}
	}
	return sources
}

// tickSources 按名称列表组装分笔数据源
func (r *sourceRegistry) tickSources(names []string) []source.TickSource {
	sources := make([]source.TickSource, 0, len(names))
	for _, name := range names {
		switch name {
		case "tencent":
			sources = append(sources, r.tencent)
		case "tencent_prefixed":
			sources = append(sources, r.tencentPrefixed)
		case "sina_spot":
			sources = append(sources, r.sinaSpot)
		}
	}
	return sources
}

// infoSources 按名称列表组装基本信息数据源
func (r *sourceRegistry) infoSources(names []string) []source.InfoSource {
	sources := make([]source.InfoSource, 0, len(names))
	for _, name := range names {
		switch name {
		case "eastmoney":
			sources = append(sources, r.eastmoney)
		case "sina":
			sources = append(sources, r.sina)
		}
	}
	return sources
}

// quoteSources 实时行情数据源，目前仅腾讯提供
func (r *sourceRegistry) quoteSources() []source.QuoteSource {
	return []source.QuoteSource{r.tencent}
}
