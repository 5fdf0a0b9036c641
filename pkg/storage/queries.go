package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockfetch/pkg/core"
)

// LoadBars 读取指定股票在日期范围内的K线数据，按交易日期升序返回。
// 分片表尚不存在时返回空结果
func (g *Gateway) LoadBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) ([]core.BarData, error) {
	if !period.IsValid() {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidPeriod, period)
	}

	table := BarTableName(period)
	exists, err := g.backend.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []core.BarData{}, nil
	}

	timeColumn := ""
	if period.IsIntraday() {
		timeColumn = "trade_time,"
	}

	query := fmt.Sprintf(`SELECT trade_date, %s open_price, high_price, low_price, close_price,
	volume, amount, change_price, change_pct, turnover_rate
	FROM %s WHERE stock_code = ? AND trade_date >= ? AND trade_date <= ?
	ORDER BY trade_date ASC`, timeColumn, table)

	rows, err := g.backend.Query(ctx, query,
		symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars := make([]core.BarData, 0)
	for rows.Next() {
		bar, err := scanBar(rows, symbol, period)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// LatestBar 读取指定股票在某周期下最新的一条K线
// 无数据时返回 core.ErrNoData
func (g *Gateway) LatestBar(ctx context.Context, symbol string, period core.Period) (*core.BarData, error) {
	table := BarTableName(period)
	exists, err := g.backend.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, core.ErrNoData
	}

	timeColumn := ""
	orderBy := "trade_date DESC"
	if period.IsIntraday() {
		timeColumn = "trade_time,"
		orderBy = "trade_date DESC, trade_time DESC"
	}

	query := fmt.Sprintf(`SELECT trade_date, %s open_price, high_price, low_price, close_price,
	volume, amount, change_price, change_pct, turnover_rate
	FROM %s WHERE stock_code = ? ORDER BY %s LIMIT 1`, timeColumn, table, orderBy)

	rows, err := g.backend.Query(ctx, query, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, core.ErrNoData
	}

	bar, err := scanBar(rows, symbol, period)
	if err != nil {
		return nil, err
	}
	return &bar, nil
}

// LoadTicks 读取指定股票在日期范围内的分笔数据，按日遍历分片表，
// 缺失的分片（非交易日或未抓取）直接跳过
func (g *Gateway) LoadTicks(ctx context.Context, symbol string, start, end time.Time) ([]core.TickData, error) {
	ticks := make([]core.TickData, 0)

	for day := dateOnly(start); !day.After(dateOnly(end)); day = day.AddDate(0, 0, 1) {
		table := TickTableName(day)
		exists, err := g.backend.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		query := fmt.Sprintf(`SELECT trade_date, trade_time, price, price_change, volume, amount, trade_type
	FROM %s WHERE stock_code = ? ORDER BY trade_time ASC, id ASC`, table)

		rows, err := g.backend.Query(ctx, query, symbol)
		if err != nil {
			return nil, err
		}

		dayTicks, err := scanTicks(rows, symbol)
		rows.Close()
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, dayTicks...)
	}

	return ticks, nil
}

// GetStockInfo 读取股票基本信息
// 无记录时返回 core.ErrNoData
func (g *Gateway) GetStockInfo(ctx context.Context, symbol string) (*core.StockInfo, error) {
	exists, err := g.backend.TableExists(ctx, stockInfoTable)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, core.ErrNoData
	}

	rows, err := g.backend.Query(ctx,
		`SELECT stock_code, stock_name, market, list_date, total_shares, float_shares, industry
	FROM stock_info WHERE stock_code = ? LIMIT 1`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, core.ErrNoData
	}

	var (
		info     core.StockInfo
		name     sql.NullString
		listDate sql.NullString
		industry sql.NullString
	)
	if err := rows.Scan(&info.Symbol, &name, &info.Market, &listDate,
		&info.TotalShares, &info.FloatShares, &industry); err != nil {
		return nil, err
	}
	info.Name = name.String
	info.Industry = industry.String
	if listDate.Valid && listDate.String != "" {
		if t, err := time.ParseInLocation("2006-01-02", listDate.String, time.Local); err == nil {
			info.ListDate = &t
		}
	}

	return &info, nil
}

// scanBar 从查询结果扫描一条K线，日内周期多一个时间列
func scanBar(rows *sql.Rows, symbol string, period core.Period) (core.BarData, error) {
	var (
		bar          core.BarData
		tradeDate    string
		tradeTime    sql.NullString
		changePrice  sql.NullFloat64
		changePct    sql.NullFloat64
		turnoverRate sql.NullFloat64
	)

	var err error
	if period.IsIntraday() {
		err = rows.Scan(&tradeDate, &tradeTime, &bar.Open, &bar.High, &bar.Low, &bar.Close,
			&bar.Volume, &bar.Amount, &changePrice, &changePct, &turnoverRate)
	} else {
		err = rows.Scan(&tradeDate, &bar.Open, &bar.High, &bar.Low, &bar.Close,
			&bar.Volume, &bar.Amount, &changePrice, &changePct, &turnoverRate)
	}
	if err != nil {
		return core.BarData{}, err
	}

	bar.Symbol = symbol
	bar.Period = period
	bar.TradeDate, err = time.ParseInLocation("2006-01-02", tradeDate, time.Local)
	if err != nil {
		return core.BarData{}, fmt.Errorf("invalid trade_date %q: %w", tradeDate, err)
	}

	if tradeTime.Valid && tradeTime.String != "" {
		if t, err := time.ParseInLocation("15:04:05", tradeTime.String, time.Local); err == nil {
			combined := time.Date(bar.TradeDate.Year(), bar.TradeDate.Month(), bar.TradeDate.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.Local)
			bar.TradeTime = &combined
		}
	}

	if changePrice.Valid {
		bar.ChangePrice = &changePrice.Float64
	}
	if changePct.Valid {
		bar.ChangePct = &changePct.Float64
	}
	if turnoverRate.Valid {
		bar.TurnoverRate = &turnoverRate.Float64
	}

	return bar, nil
}

// scanTicks 扫描一张分片表的分笔查询结果
func scanTicks(rows *sql.Rows, symbol string) ([]core.TickData, error) {
	ticks := make([]core.TickData, 0)

	for rows.Next() {
		var (
			tick      core.TickData
			tradeDate string
			tradeTime string
			side      sql.NullString
		)
		if err := rows.Scan(&tradeDate, &tradeTime, &tick.Price, &tick.PriceChange,
			&tick.Volume, &tick.Amount, &side); err != nil {
			return nil, err
		}

		date, err := time.ParseInLocation("2006-01-02", tradeDate, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid trade_date %q: %w", tradeDate, err)
		}
		tick.Symbol = symbol
		tick.TradeDate = date
		if t, err := time.ParseInLocation("15:04:05", tradeTime, time.Local); err == nil {
			tick.TradeTime = time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.Local)
		}
		tick.Side = core.TradeSide(side.String)

		ticks = append(ticks, tick)
	}

	return ticks, rows.Err()
}

// dateOnly 截断到日
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
