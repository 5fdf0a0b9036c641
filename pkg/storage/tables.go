package storage

import (
	"fmt"
	"strings"
	"time"

	"stockfetch/pkg/core"
)

// TickTableName 推导分笔数据分片表名：tick_data_YYYYMMDD
// 同一交易日的所有股票共享一张表
func TickTableName(date time.Time) string {
	return "tick_data_" + date.Format("20060102")
}

// BarTableName 推导K线数据分片表名：basic_data_<period>
// 周期中的 "-" 规范化为 "_"
func BarTableName(period core.Period) string {
	return "basic_data_" + strings.ReplaceAll(string(period), "-", "_")
}

// stockInfoTable 股票基本信息表名，不分片
const stockInfoTable = "stock_info"

// tickTableDDL 分笔分片表建表语句
// 同一时间戳可能有多笔成交，除自增主键外不设唯一约束
func tickTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	stock_code TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	trade_time TEXT NOT NULL,
	price REAL,
	price_change REAL,
	volume INTEGER,
	amount REAL,
	trade_type TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
)`, table)
}

// tickTableIndexDDL 分笔分片表索引
func tickTableIndexDDL(table string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_code_time ON %s (stock_code, trade_time)",
		table, table)
}

// barTableDDL K线分片表建表语句
// 日内周期的唯一键包含交易时间，日级及以上仅用交易日期
func barTableDDL(table string, period core.Period) string {
	if period.IsIntraday() {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	stock_code TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	trade_time TEXT NOT NULL,
	open_price REAL,
	high_price REAL,
	low_price REAL,
	close_price REAL,
	volume INTEGER,
	amount REAL,
	change_price REAL,
	change_pct REAL,
	turnover_rate REAL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (stock_code, trade_date, trade_time)
)`, table)
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	stock_code TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	open_price REAL,
	high_price REAL,
	low_price REAL,
	close_price REAL,
	volume INTEGER,
	amount REAL,
	change_price REAL,
	change_pct REAL,
	turnover_rate REAL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (stock_code, trade_date)
)`, table)
}

// stockInfoDDL 股票基本信息表建表语句
const stockInfoDDL = `CREATE TABLE IF NOT EXISTS stock_info (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	stock_code TEXT NOT NULL,
	stock_name TEXT,
	market TEXT NOT NULL,
	list_date TEXT,
	total_shares INTEGER,
	float_shares INTEGER,
	industry TEXT,
	updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (stock_code, market)
)`
