package sina

import (
	"io"
	"strings"
	"testing"

	"stockfetch/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// utf8ToGbk 测试辅助：构造GBK编码的响应体
func utf8ToGbk(t *testing.T, s string) []byte {
	t.Helper()
	reader := transform.NewReader(strings.NewReader(s), simplifiedchinese.GBK.NewEncoder())
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	return data
}

// spotBody 构造一条 hq.sinajs 风格的快照响应
func spotBody(t *testing.T, name string) []byte {
	t.Helper()
	fields := make([]string, 33)
	fields[0] = name
	fields[1] = "10.45" // 今开
	fields[2] = "10.40" // 昨收
	fields[3] = "10.50" // 现价
	fields[4] = "10.60"
	fields[5] = "10.30"
	fields[8] = "12345600"   // 成交量(股)
	fields[9] = "129628800"  // 成交额(元)
	fields[30] = "2025-01-02"
	fields[31] = "15:00:01"
	return utf8ToGbk(t, `var hq_str_sh600000="`+strings.Join(fields, ",")+`";`)
}

func TestParseKlineResponse(t *testing.T) {
	t.Run("正常K线数据", func(t *testing.T) {
		body := []byte(`[{"day":"2025-01-02","open":"10.000","high":"10.600","low":"9.950","close":"10.500","volume":"12345600"},` +
			`{"day":"2025-01-03","open":"10.500","high":"10.700","low":"10.300","close":"10.400","volume":"9876500"}]`)

		table, err := parseKlineResponse(body)
		require.NoError(t, err)
		assert.Equal(t, klineColumns, table.Columns)
		require.Equal(t, 2, table.Len())
		assert.Equal(t, "2025-01-02", table.Cell(0, "day"))
		assert.Equal(t, "10.000", table.Cell(0, "open"))
		assert.Equal(t, "10.500", table.Cell(0, "close"))
	})

	t.Run("null响应返回空表", func(t *testing.T) {
		table, err := parseKlineResponse([]byte("null"))
		require.NoError(t, err)
		assert.True(t, table.IsEmpty())
	})

	t.Run("非法JSON", func(t *testing.T) {
		_, err := parseKlineResponse([]byte("<html>error</html>"))
		assert.Error(t, err)
	})
}

func TestParseSpotTickResponse(t *testing.T) {
	t.Run("合成单条中性盘记录", func(t *testing.T) {
		table, err := parseSpotTickResponse(spotBody(t, "浦发银行"))
		require.NoError(t, err)
		require.Equal(t, 1, table.Len())
		assert.Equal(t, "15:00:01", table.Cell(0, "trade_time"))
		assert.Equal(t, "10.50", table.Cell(0, "price"))
		assert.Equal(t, "0.10", table.Cell(0, "price_change"))
		assert.Equal(t, "12345600", table.Cell(0, "volume"))
		assert.Equal(t, "129628800", table.Cell(0, "amount"))
		assert.Equal(t, "中性盘", table.Cell(0, "trade_type"))
	})

	t.Run("停牌空数据返回空表", func(t *testing.T) {
		body := []byte(`var hq_str_sh600000="";`)

		table, err := parseSpotTickResponse(body)
		require.NoError(t, err)
		assert.True(t, table.IsEmpty())
	})

	t.Run("字段不足报错", func(t *testing.T) {
		body := []byte(`var hq_str_sh600000="a,b,c";`)

		_, err := parseSpotTickResponse(body)
		assert.Error(t, err)
	})
}

func TestParseInfoResponse(t *testing.T) {
	t.Run("提取代码和简称", func(t *testing.T) {
		table, err := parseInfoResponse(spotBody(t, "浦发银行"), "600000")
		require.NoError(t, err)
		require.Equal(t, 1, table.Len())
		assert.Equal(t, "600000", table.Cell(0, "stock_code"))
		assert.Equal(t, "浦发银行", table.Cell(0, "stock_name"))
	})
}

func TestScaleFor(t *testing.T) {
	cases := []struct {
		period core.Period
		scale  string
		ok     bool
	}{
		{core.Period5Min, "5", true},
		{core.Period1Hour, "60", true},
		{core.PeriodDaily, "240", true},
		{core.PeriodWeek, "", false},
		{core.Period1Min, "", false},
	}
	for _, c := range cases {
		scale, ok := scaleFor(c.period)
		assert.Equal(t, c.ok, ok, string(c.period))
		assert.Equal(t, c.scale, scale, string(c.period))
	}
}
