package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockTimeService 固定时间源
type mockTimeService struct {
	now time.Time
}

func (m *mockTimeService) Now() time.Time { return m.now }

func at(year int, month time.Month, day, hour, minute int) *MarketTime {
	return NewMarketTime(&mockTimeService{
		now: time.Date(year, month, day, hour, minute, 0, 0, time.Local),
	})
}

func TestIsTradingDay(t *testing.T) {
	m := DefaultMarketTime()

	// 2025-10-10 周五, 2025-10-11 周六, 2025-10-12 周日
	assert.True(t, m.IsTradingDay(time.Date(2025, 10, 10, 0, 0, 0, 0, time.Local)))
	assert.False(t, m.IsTradingDay(time.Date(2025, 10, 11, 0, 0, 0, 0, time.Local)))
	assert.False(t, m.IsTradingDay(time.Date(2025, 10, 12, 0, 0, 0, 0, time.Local)))
	assert.True(t, m.IsTradingDay(time.Date(2025, 10, 13, 0, 0, 0, 0, time.Local)))
}

func TestIsTradingTime(t *testing.T) {
	cases := []struct {
		name string
		m    *MarketTime
		want bool
	}{
		{"开盘前", at(2025, 10, 10, 9, 15), false},
		{"上午时段", at(2025, 10, 10, 10, 30), true},
		{"午间休市", at(2025, 10, 10, 12, 0), false},
		{"下午时段", at(2025, 10, 10, 14, 30), true},
		{"收盘后", at(2025, 10, 10, 15, 30), false},
		{"周六", at(2025, 10, 11, 10, 30), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.m.IsTradingTime())
		})
	}
}

func TestMostRecentSession(t *testing.T) {
	cases := []struct {
		name string
		m    *MarketTime
		want time.Time
	}{
		{
			"交易日开盘后为当天",
			at(2025, 10, 10, 10, 0),
			time.Date(2025, 10, 10, 0, 0, 0, 0, time.Local),
		},
		{
			"交易日开盘前回退到前一交易日",
			at(2025, 10, 10, 9, 0),
			time.Date(2025, 10, 9, 0, 0, 0, 0, time.Local),
		},
		{
			"周六回退到周五",
			at(2025, 10, 11, 10, 0),
			time.Date(2025, 10, 10, 0, 0, 0, 0, time.Local),
		},
		{
			"周日回退到周五",
			at(2025, 10, 12, 10, 0),
			time.Date(2025, 10, 10, 0, 0, 0, 0, time.Local),
		},
		{
			"周一开盘前回退到周五",
			at(2025, 10, 13, 9, 0),
			time.Date(2025, 10, 10, 0, 0, 0, 0, time.Local),
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.m.MostRecentSession())
		})
	}
}

func TestIsAfterTradingEnd(t *testing.T) {
	assert.False(t, at(2025, 10, 10, 14, 59).IsAfterTradingEnd())
	assert.True(t, at(2025, 10, 10, 15, 1).IsAfterTradingEnd())
	assert.False(t, at(2025, 10, 11, 16, 0).IsAfterTradingEnd())
}

func TestNextTradingDayStart(t *testing.T) {
	t.Run("交易日收盘前为当天开盘", func(t *testing.T) {
		next := at(2025, 10, 10, 10, 0).NextTradingDayStart()
		assert.Equal(t, time.Date(2025, 10, 10, 9, 30, 0, 0, time.Local), next)
	})

	t.Run("周五收盘后跳到下周一", func(t *testing.T) {
		next := at(2025, 10, 10, 15, 30).NextTradingDayStart()
		assert.Equal(t, time.Date(2025, 10, 13, 9, 30, 0, 0, time.Local), next)
	})

	t.Run("周六跳到下周一", func(t *testing.T) {
		next := at(2025, 10, 11, 10, 0).NextTradingDayStart()
		assert.Equal(t, time.Date(2025, 10, 13, 9, 30, 0, 0, time.Local), next)
	})
}
