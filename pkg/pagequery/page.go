package pagequery

const (
	// DefaultLimit - размер страницы, если вызывающий код его не задал
	DefaultLimit = 50

	// MaxLimit - верхняя граница размера страницы
	MaxLimit = 500
)

// Page - метаданные пагинации листинга
type Page struct {
	// TotalCount - общее количество строк по фильтрам
	TotalCount int64 `json:"total_count"`
	// Limit - запрошенный размер страницы
	Limit int `json:"limit"`
	// Offset - смещение страницы
	Offset int `json:"offset"`
	// HasNext - существует ли следующая страница
	HasNext bool `json:"has_next"`
	// HasPrev - существует ли предыдущая страница
	HasPrev bool `json:"has_prev"`
}

// Compute вычисляет метаданные страницы из общего количества строк
func Compute(total int64, limit, offset int) Page {
	return Page{
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
		HasNext:    int64(offset+limit) < total,
		HasPrev:    offset > 0,
	}
}

// ClampLimit приводит размер страницы к диапазону [1, MaxLimit].
// Неположительное значение дает DefaultLimit.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ClampOffset обнуляет отрицательное смещение
func ClampOffset(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
