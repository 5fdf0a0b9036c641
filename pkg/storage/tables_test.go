package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockfetch/pkg/core"
)

func TestTickTableName(t *testing.T) {
	cases := []struct {
		date time.Time
		want string
	}{
		{time.Date(2025, 10, 2, 0, 0, 0, 0, time.Local), "tick_data_20251002"},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), "tick_data_20250101"},
		{time.Date(2024, 12, 31, 15, 30, 0, 0, time.Local), "tick_data_20241231"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, TickTableName(c.date))
	}
}

func TestBarTableName(t *testing.T) {
	cases := []struct {
		period core.Period
		want   string
	}{
		{core.PeriodDaily, "basic_data_daily"},
		{core.Period5Min, "basic_data_5min"},
		{core.PeriodWeek, "basic_data_week"},
		// 周期中的连字符规范化为下划线
		{core.PeriodHalfYear, "basic_data_half_year"},
		{core.PeriodYear, "basic_data_year"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, BarTableName(c.period))
	}
}
