package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockfetch/pkg/core"
	"stockfetch/pkg/logger"

	"github.com/sirupsen/logrus"
)

// PersistResult 一次批量写入的分片级结果。
// 写入按分片独立提交，单个分片失败不回滚其它分片
type PersistResult struct {
	SuccessCount int              `json:"success_count"` // 成功写入的行数
	FailureCount int              `json:"failure_count"` // 失败的行数
	Errors       map[string]error `json:"-"`             // 按表名记录的分片错误
}

// OK 判断是否全部写入成功
func (r *PersistResult) OK() bool {
	return r.FailureCount == 0
}

// merge 合并另一分片的结果
func (r *PersistResult) merge(other *PersistResult) {
	r.SuccessCount += other.SuccessCount
	r.FailureCount += other.FailureCount
	for table, err := range other.Errors {
		r.Errors[table] = err
	}
}

func newPersistResult() *PersistResult {
	return &PersistResult{Errors: make(map[string]error)}
}

// Gateway 分片持久化网关
// 表在首次写入时创建，建表结果按表名缓存；DDL 幂等，
// 并发首次写入同一分片时竞争建表是安全的
type Gateway struct {
	backend Backend

	mu      sync.Mutex
	created map[string]bool

	log *logrus.Entry
}

// NewGateway 创建分片持久化网关
func NewGateway(backend Backend) *Gateway {
	return &Gateway{
		backend: backend,
		created: make(map[string]bool),
		log:     logger.WithComponent("Gateway"),
	}
}

// EnsureTickTable 确保指定交易日的分笔分片表存在
func (g *Gateway) EnsureTickTable(ctx context.Context, date time.Time) (string, error) {
	table := TickTableName(date)
	if err := g.ensureTable(ctx, table, func() []string {
		return []string{tickTableDDL(table), tickTableIndexDDL(table)}
	}); err != nil {
		return "", err
	}
	return table, nil
}

// EnsureBarTable 确保指定周期的K线分片表存在
func (g *Gateway) EnsureBarTable(ctx context.Context, period core.Period) (string, error) {
	if !period.IsValid() {
		return "", fmt.Errorf("%w: %s", core.ErrInvalidPeriod, period)
	}
	table := BarTableName(period)
	if err := g.ensureTable(ctx, table, func() []string {
		return []string{barTableDDL(table, period)}
	}); err != nil {
		return "", err
	}
	return table, nil
}

// ensureTable 幂等建表，每个表名只执行一次DDL
func (g *Gateway) ensureTable(ctx context.Context, table string, ddl func() []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.created[table] {
		return nil
	}

	for _, stmt := range ddl() {
		if _, err := g.backend.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("ensure table %s failed: %w", table, err)
		}
	}

	g.created[table] = true
	g.log.WithField("table", table).Debug("table ensured")
	return nil
}

// WriteTicks 追加写入分笔数据，按交易日分片。
// 分笔数据允许重复，重新抓取同一日会产生重复行。
// 分片级错误记入返回结果，不中断其余分片的写入
func (g *Gateway) WriteTicks(ctx context.Context, ticks []core.TickData) *PersistResult {
	result := newPersistResult()

	for date, shard := range groupTicksByDate(ticks) {
		result.merge(g.writeTickShard(ctx, date, shard))
	}

	return result
}

func (g *Gateway) writeTickShard(ctx context.Context, date time.Time, ticks []core.TickData) *PersistResult {
	result := newPersistResult()

	table, err := g.EnsureTickTable(ctx, date)
	if err != nil {
		result.FailureCount = len(ticks)
		result.Errors[TickTableName(date)] = err
		return result
	}

	query := fmt.Sprintf(`INSERT INTO %s
	(stock_code, trade_date, trade_time, price, price_change, volume, amount, trade_type)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table)

	for _, tick := range ticks {
		_, err := g.backend.Execute(ctx, query,
			tick.Symbol,
			tick.TradeDate.Format("2006-01-02"),
			tick.TradeTime.Format("15:04:05"),
			tick.Price,
			tick.PriceChange,
			tick.Volume,
			tick.Amount,
			string(tick.Side),
		)
		if err != nil {
			result.FailureCount++
			if _, seen := result.Errors[table]; !seen {
				result.Errors[table] = err
			}
			continue
		}
		result.SuccessCount++
	}

	if err, failed := result.Errors[table]; failed {
		g.log.WithFields(logrus.Fields{
			"table":  table,
			"failed": result.FailureCount,
			"error":  err.Error(),
		}).Error("tick shard write failed")
	}

	return result
}

// WriteBars 写入K线数据，按周期分片，同一股票同一日期的记录覆盖更新。
// 分片级错误记入返回结果，不中断其余分片的写入
func (g *Gateway) WriteBars(ctx context.Context, bars []core.BarData) *PersistResult {
	result := newPersistResult()

	for period, shard := range groupBarsByPeriod(bars) {
		result.merge(g.writeBarShard(ctx, period, shard))
	}

	return result
}

func (g *Gateway) writeBarShard(ctx context.Context, period core.Period, bars []core.BarData) *PersistResult {
	result := newPersistResult()

	table, err := g.EnsureBarTable(ctx, period)
	if err != nil {
		result.FailureCount = len(bars)
		result.Errors[BarTableName(period)] = err
		return result
	}

	query := barUpsertQuery(table, period)

	for _, bar := range bars {
		args := []any{
			bar.Symbol,
			bar.TradeDate.Format("2006-01-02"),
		}
		if period.IsIntraday() {
			args = append(args, formatTradeTime(bar.TradeTime))
		}
		args = append(args,
			bar.Open, bar.High, bar.Low, bar.Close,
			bar.Volume, bar.Amount,
			nullableFloat(bar.ChangePrice),
			nullableFloat(bar.ChangePct),
			nullableFloat(bar.TurnoverRate),
		)

		if _, err := g.backend.Execute(ctx, query, args...); err != nil {
			result.FailureCount++
			if _, seen := result.Errors[table]; !seen {
				result.Errors[table] = err
			}
			continue
		}
		result.SuccessCount++
	}

	if err, failed := result.Errors[table]; failed {
		g.log.WithFields(logrus.Fields{
			"table":  table,
			"failed": result.FailureCount,
			"error":  err.Error(),
		}).Error("bar shard write failed")
	}

	return result
}

// barUpsertQuery 构造K线覆盖写入语句
func barUpsertQuery(table string, period core.Period) string {
	if period.IsIntraday() {
		return fmt.Sprintf(`INSERT INTO %s
	(stock_code, trade_date, trade_time, open_price, high_price, low_price, close_price,
	 volume, amount, change_price, change_pct, turnover_rate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (stock_code, trade_date, trade_time) DO UPDATE SET
	open_price = excluded.open_price,
	high_price = excluded.high_price,
	low_price = excluded.low_price,
	close_price = excluded.close_price,
	volume = excluded.volume,
	amount = excluded.amount,
	change_price = excluded.change_price,
	change_pct = excluded.change_pct,
	turnover_rate = excluded.turnover_rate`, table)
	}

	return fmt.Sprintf(`INSERT INTO %s
	(stock_code, trade_date, open_price, high_price, low_price, close_price,
	 volume, amount, change_price, change_pct, turnover_rate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (stock_code, trade_date) DO UPDATE SET
	open_price = excluded.open_price,
	high_price = excluded.high_price,
	low_price = excluded.low_price,
	close_price = excluded.close_price,
	volume = excluded.volume,
	amount = excluded.amount,
	change_price = excluded.change_price,
	change_pct = excluded.change_pct,
	turnover_rate = excluded.turnover_rate`, table)
}

// UpsertStockInfo 写入股票基本信息，按 (代码, 市场) 覆盖更新
func (g *Gateway) UpsertStockInfo(ctx context.Context, info *core.StockInfo) error {
	if err := g.ensureTable(ctx, stockInfoTable, func() []string {
		return []string{stockInfoDDL}
	}); err != nil {
		return err
	}

	query := `INSERT INTO stock_info
	(stock_code, stock_name, market, list_date, total_shares, float_shares, industry, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (stock_code, market) DO UPDATE SET
	stock_name = excluded.stock_name,
	list_date = excluded.list_date,
	total_shares = excluded.total_shares,
	float_shares = excluded.float_shares,
	industry = excluded.industry,
	updated_at = CURRENT_TIMESTAMP`

	var listDate any
	if info.ListDate != nil {
		listDate = info.ListDate.Format("2006-01-02")
	}

	_, err := g.backend.Execute(ctx, query,
		info.Symbol, info.Name, info.Market, listDate,
		info.TotalShares, info.FloatShares, info.Industry)
	if err != nil {
		return fmt.Errorf("upsert stock info failed: %w", err)
	}
	return nil
}

// groupTicksByDate 按交易日分组
func groupTicksByDate(ticks []core.TickData) map[time.Time][]core.TickData {
	groups := make(map[time.Time][]core.TickData)
	for _, tick := range ticks {
		day := time.Date(tick.TradeDate.Year(), tick.TradeDate.Month(), tick.TradeDate.Day(), 0, 0, 0, 0, time.Local)
		groups[day] = append(groups[day], tick)
	}
	return groups
}

// groupBarsByPeriod 按周期分组
func groupBarsByPeriod(bars []core.BarData) map[core.Period][]core.BarData {
	groups := make(map[core.Period][]core.BarData)
	for _, bar := range bars {
		groups[bar.Period] = append(groups[bar.Period], bar)
	}
	return groups
}

// formatTradeTime 格式化日内K线的交易时间，缺失时落空串
func formatTradeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("15:04:05")
}

// nullableFloat 可缺失浮点字段落库为 NULL
func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
