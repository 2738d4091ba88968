// Package pagequery строит парные запросы листинга: COUNT по фильтрам
// и страницу данных с теми же фильтрами, ORDER BY и LIMIT/OFFSET.
// Оба запроса разделяют один набор именованных параметров, поэтому
// счетчик и страница не могут разойтись по условиям отбора.
package pagequery

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// identPattern - допустимая форма имени колонки (включая префикс таблицы)
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Builder накапливает фильтры и параметры страницы.
// WHERE появляется только при наличии хотя бы одного фильтра,
// вакуумные условия вида WHERE 1=1 не генерируются.
type Builder struct {
	from    string
	selects []string
	where   []string
	args    map[string]any
	groupBy []string
	orderBy []string
	limit   int
	offset  int
	err     error
}

// New создает builder для FROM-выражения (таблица или JOIN) и списка
// выражений SELECT
func New(from string, selectList ...string) *Builder {
	return &Builder{
		from:    from,
		selects: selectList,
		args:    make(map[string]any),
		limit:   DefaultLimit,
	}
}

// fail запоминает первую ошибку построения
func (b *Builder) fail(format string, a ...any) *Builder {
	if b.err == nil {
		b.err = fmt.Errorf(format, a...)
	}
	return b
}

// paramName выбирает свободное имя параметра, производное от колонки
func (b *Builder) paramName(column string) string {
	name := strings.NewReplacer(".", "_", " ", "_").Replace(strings.ToLower(column))
	candidate := name
	for i := 2; ; i++ {
		if _, taken := b.args[candidate]; !taken {
			return candidate
		}
		candidate = name + "_" + strconv.Itoa(i)
	}
}

// condition добавляет условие column <op> @param
func (b *Builder) condition(column, op string, value any) *Builder {
	if !identPattern.MatchString(column) {
		return b.fail("invalid column name: %q", column)
	}
	name := b.paramName(column)
	b.where = append(b.where, fmt.Sprintf("%s %s @%s", column, op, name))
	b.args[name] = value
	return b
}

// Equals добавляет фильтр равенства
func (b *Builder) Equals(column string, value any) *Builder {
	return b.condition(column, "=", value)
}

// GreaterOrEqual добавляет фильтр нижней границы
func (b *Builder) GreaterOrEqual(column string, value any) *Builder {
	return b.condition(column, ">=", value)
}

// LessOrEqual добавляет фильтр верхней границы
func (b *Builder) LessOrEqual(column string, value any) *Builder {
	return b.condition(column, "<=", value)
}

// LessThan добавляет строгий фильтр верхней границы
func (b *Builder) LessThan(column string, value any) *Builder {
	return b.condition(column, "<", value)
}

// Contains добавляет регистронезависимый поиск подстроки
func (b *Builder) Contains(column, term string) *Builder {
	if !identPattern.MatchString(column) {
		return b.fail("invalid column name: %q", column)
	}
	name := b.paramName(column)
	b.where = append(b.where, fmt.Sprintf("LOWER(%s) LIKE @%s", column, name))
	b.args[name] = "%" + strings.ToLower(term) + "%"
	return b
}

// Raw добавляет произвольный фрагмент условия с его параметрами.
// Имена параметров фрагмента не должны пересекаться с уже занятыми.
func (b *Builder) Raw(fragment string, params map[string]any) *Builder {
	for name, value := range params {
		if _, taken := b.args[name]; taken {
			return b.fail("duplicate parameter name: %q", name)
		}
		b.args[name] = value
	}
	b.where = append(b.where, fragment)
	return b
}

// GroupBy добавляет группировку по колонкам. Счетчик из Build не
// учитывает группировку (считает исходные строки): страницы
// сгруппированных выборок выполняются напрямую через pageQ.
func (b *Builder) GroupBy(columns ...string) *Builder {
	for _, column := range columns {
		if !identPattern.MatchString(column) {
			return b.fail("invalid group column: %q", column)
		}
		b.groupBy = append(b.groupBy, column)
	}
	return b
}

// OrderBy добавляет сортировку по колонке
func (b *Builder) OrderBy(column string, descending bool) *Builder {
	if !identPattern.MatchString(column) {
		return b.fail("invalid order column: %q", column)
	}
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	b.orderBy = append(b.orderBy, column+" "+dir)
	return b
}

// Limit устанавливает размер страницы (ограничивается [1, MaxLimit])
func (b *Builder) Limit(n int) *Builder {
	b.limit = ClampLimit(n)
	return b
}

// Offset устанавливает смещение страницы (отрицательное дает 0)
func (b *Builder) Offset(n int) *Builder {
	b.offset = ClampOffset(n)
	return b
}

// whereClause собирает WHERE или пустую строку
func (b *Builder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// Build возвращает пару запросов: счетчик и страницу данных.
// LIMIT/OFFSET вставляются валидированными литералами, поэтому оба
// запроса используют в точности один набор параметров.
func (b *Builder) Build() (countQ, pageQ backend.Query, err error) {
	if err := b.err; err != nil {
		return backend.Query{}, backend.Query{}, err
	}
	if len(b.selects) == 0 {
		return backend.Query{}, backend.Query{}, fmt.Errorf("select list is empty")
	}

	where := b.whereClause()

	countText := "SELECT COUNT(*) AS total FROM " + b.from + where

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	sb.WriteString(where)
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	sb.WriteString(" LIMIT ")
	sb.WriteString(strconv.Itoa(b.limit))
	sb.WriteString(" OFFSET ")
	sb.WriteString(strconv.Itoa(b.offset))

	return backend.NamedQuery(countText, b.args), backend.NamedQuery(sb.String(), b.args), nil
}

// BuildCountOnly возвращает только счетчик по текущим фильтрам
// (пути статистики, где страница данных не нужна)
func (b *Builder) BuildCountOnly() (backend.Query, error) {
	if b.err != nil {
		return backend.Query{}, b.err
	}
	return backend.NamedQuery("SELECT COUNT(*) AS total FROM "+b.from+b.whereClause(), b.args), nil
}

// Run выполняет пару запросов: сначала COUNT, затем страницу.
// Возвращает материализованную страницу и метаданные пагинации.
func (b *Builder) Run(ctx context.Context, be backend.Backend) (*backend.ResultSet, Page, error) {
	countQ, pageQ, err := b.Build()
	if err != nil {
		return nil, Page{}, err
	}

	countRS, err := be.ExecuteQuery(ctx, countQ)
	if err != nil {
		return nil, Page{}, fmt.Errorf("failed to count rows: %w", err)
	}
	var total int64
	if row, ok := countRS.First(); ok {
		total = row.Int64("total")
	}

	rs, err := be.ExecuteQuery(ctx, pageQ)
	if err != nil {
		return nil, Page{}, fmt.Errorf("failed to fetch page: %w", err)
	}
	return rs, Compute(total, b.limit, b.offset), nil
}
