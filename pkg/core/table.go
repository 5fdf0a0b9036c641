package core

// RawTable 数据源返回的原始表格数据
// 列名和单位由各数据源自行决定，由规范化器统一映射为标准字段；
// 空表表示数据源成功响应但没有数据，不是错误
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// NewRawTable 创建指定列的空表
func NewRawTable(columns ...string) *RawTable {
	return &RawTable{Columns: columns}
}

// Append 追加一行数据，列数不足时补空串，超出时截断
func (t *RawTable) Append(values ...string) {
	row := make([]string, len(t.Columns))
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		}
	}
	t.Rows = append(t.Rows, row)
}

// IsEmpty 判断表是否为空
func (t *RawTable) IsEmpty() bool {
	return t == nil || len(t.Rows) == 0
}

// Len 返回行数
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex 返回列名对应的下标，不存在时返回 -1
func (t *RawTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell 返回指定行列的单元格内容，越界时返回空串
func (t *RawTable) Cell(row int, column string) string {
	if t == nil || row < 0 || row >= len(t.Rows) {
		return ""
	}
	idx := t.ColumnIndex(column)
	if idx < 0 || idx >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][idx]
}
