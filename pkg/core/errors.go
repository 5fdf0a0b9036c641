package core

import "errors"

// 定义核心错误
var (
	// ErrInvalidSymbol 无效的股票代码错误
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidPeriod 不支持的K线周期错误
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidDateRange 无效的日期范围错误
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrSourceNotFound 数据源未找到错误
	ErrSourceNotFound = errors.New("source not found")

	// ErrNoData 请求成功但没有数据
	ErrNoData = errors.New("no data available")

	// ErrBackendClosed 持久化后端已关闭错误
	ErrBackendClosed = errors.New("storage backend is closed")
)
