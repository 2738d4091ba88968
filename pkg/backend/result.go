package backend

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// Row - одна строка результата: упорядоченное отображение имени колонки
// в приведенное значение. Колонки разделяются всеми строками одного
// ResultSet.
type Row struct {
	columns []string
	values  []any
}

// NewRow создает строку. len(values) должен совпадать с len(columns).
func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

// Columns возвращает имена колонок в порядке выборки
func (r Row) Columns() []string {
	return r.columns
}

// Values возвращает значения в порядке колонок
func (r Row) Values() []any {
	return r.values
}

// Value возвращает значение колонки по имени.
// Второй результат false, если колонки нет в выборке.
func (r Row) Value(name string) (any, bool) {
	for i, col := range r.columns {
		if col == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Int64 возвращает целое значение колонки. Дробные с целой величиной и
// числовые строки конвертируются; отсутствие колонки или NULL дает 0.
func (r Row) Int64(name string) int64 {
	v, ok := r.Value(name)
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

// Float64 возвращает дробное значение колонки. Целые и числовые строки
// конвертируются; отсутствие колонки или NULL дает 0.
func (r Row) Float64(name string) float64 {
	v, ok := r.Value(name)
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}

// String возвращает текстовое значение колонки. Нетекстовые значения
// рендерятся канонически; отсутствие колонки или NULL дает "".
func (r Row) String(name string) string {
	v, ok := r.Value(name)
	if !ok || v == nil {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	return renderValue(v)
}

// ResultSet - полностью материализованный результат чтения.
// Не зависит от драйвера и переживает закрытие backend'а.
type ResultSet struct {
	// Columns - имена колонок в порядке выборки
	Columns []string

	// Rows - строки результата
	Rows []Row

	// RowCount - количество строк (len(Rows), хранится для сериализации)
	RowCount int

	// Duration - время выполнения чтения
	Duration time.Duration

	// ColumnsInferred - true, если драйвер не дал метаданных колонок и
	// имена назначены позиционно (column_1, column_2, ...)
	ColumnsInferred bool
}

// NewResultSet собирает ResultSet из колонок и значений строк
func NewResultSet(columns []string, rows [][]any) *ResultSet {
	rs := &ResultSet{
		Columns: columns,
		Rows:    make([]Row, 0, len(rows)),
	}
	for _, values := range rows {
		rs.Rows = append(rs.Rows, NewRow(columns, values))
	}
	rs.RowCount = len(rs.Rows)
	return rs
}

// First возвращает первую строку результата
func (rs *ResultSet) First() (Row, bool) {
	if len(rs.Rows) == 0 {
		return Row{}, false
	}
	return rs.Rows[0], true
}

// Empty сообщает об отсутствии строк
func (rs *ResultSet) Empty() bool {
	return len(rs.Rows) == 0
}

// Fingerprint возвращает стабильный xxh3-дайджест результата: имена
// колонок, порядок строк и канонический рендер каждого значения.
// Два чтения с одинаковым содержимым дают одинаковый отпечаток
// независимо от Duration.
func (rs *ResultSet) Fingerprint() uint64 {
	h := xxh3.New()
	for _, col := range rs.Columns {
		h.WriteString(col)
		h.WriteString("\x1f")
	}
	h.WriteString("\x1e")
	for _, row := range rs.Rows {
		for _, v := range row.values {
			h.WriteString(renderTagged(v))
			h.WriteString("\x1f")
		}
		h.WriteString("\x1e")
	}
	return h.Sum64()
}

// InferredColumns возвращает позиционные имена column_1..column_n
// (fallback, когда драйвер не предоставил метаданные)
func InferredColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = "column_" + strconv.Itoa(i+1)
	}
	return cols
}

// renderValue - канонический текстовый рендер значения скалярного домена
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	}
	return fmt.Sprintf("%v", v)
}

// renderTagged - рендер с префиксом типа, чтобы отпечаток различал
// например NULL и пустую строку
func renderTagged(v any) string {
	switch t := v.(type) {
	case nil:
		return "n:"
	case bool:
		return "b:" + strconv.FormatBool(t)
	case int64:
		return "i:" + strconv.FormatInt(t, 10)
	case float64:
		return "f:" + strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return "s:" + t
	}
	return "x:" + fmt.Sprintf("%v", v)
}
