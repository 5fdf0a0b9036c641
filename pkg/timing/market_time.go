// Package timing 提供A股市场交易时间检测和交易日推算。
package timing

import (
	"time"
)

// TimeService 提供当前时间接口，用于mock测试
type TimeService interface {
	Now() time.Time
}

// SystemTimeService 使用系统实际时间
type SystemTimeService struct{}

func (s *SystemTimeService) Now() time.Time {
	return time.Now()
}

// MarketTime 提供市场交易时间检测功能
type MarketTime struct {
	timeService TimeService
}

// NewMarketTime 创建新的市场时间检测器
func NewMarketTime(timeService TimeService) *MarketTime {
	return &MarketTime{
		timeService: timeService,
	}
}

// DefaultMarketTime 使用系统时间的默认市场时间检测器
func DefaultMarketTime() *MarketTime {
	return NewMarketTime(&SystemTimeService{})
}

// Now 返回当前时间
func (m *MarketTime) Now() time.Time {
	return m.timeService.Now()
}

// IsTradingDay 判断是否是交易日（周一到周五，不含法定节假日）
func (m *MarketTime) IsTradingDay(t time.Time) bool {
	weekday := t.Weekday()
	return weekday >= time.Monday && weekday <= time.Friday
}

// IsTradingTime 判断当前是否在交易时段
func (m *MarketTime) IsTradingTime() bool {
	now := m.timeService.Now()

	if !m.IsTradingDay(now) {
		return false
	}

	// 上午交易时段: 09:30:00 - 11:30:00
	// 下午交易时段: 13:00:00 - 15:00:00
	currentTime := now.Format("15:04:05")

	return (currentTime >= "09:30:00" && currentTime <= "11:30:00") ||
		(currentTime >= "13:00:00" && currentTime <= "15:00:00")
}

// MostRecentSession 返回不晚于当前时间的最近一个已开盘交易日。
// 交易日开盘前（09:30之前）视为上一交易日，周末回退到周五
func (m *MarketTime) MostRecentSession() time.Time {
	now := m.timeService.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m.IsTradingDay(now) && now.Format("15:04:05") >= "09:30:00" {
		return day
	}

	for {
		day = day.AddDate(0, 0, -1)
		if m.IsTradingDay(day) {
			return day
		}
	}
}

// IsAfterTradingEnd 判断是否在收盘后
func (m *MarketTime) IsAfterTradingEnd() bool {
	now := m.timeService.Now()

	if !m.IsTradingDay(now) {
		return false
	}

	currentTime := now.Format("15:04:05")
	return currentTime >= "15:00:01"
}

// NextTradingDayStart 获取下一个交易日的开盘时间
func (m *MarketTime) NextTradingDayStart() time.Time {
	now := m.timeService.Now()
	todayOpen := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, now.Location())

	if !m.IsTradingDay(now) {
		daysUntilNext := 1
		if now.Weekday() == time.Saturday {
			daysUntilNext = 2
		}
		return todayOpen.AddDate(0, 0, daysUntilNext)
	}

	if now.Format("15:04:05") > "15:00:00" {
		if now.Weekday() == time.Friday {
			return todayOpen.AddDate(0, 0, 3)
		}
		return todayOpen.AddDate(0, 0, 1)
	}

	return todayOpen
}
