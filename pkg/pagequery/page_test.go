package pagequery

import "testing"

// TestCompute проверяет вычисление метаданных пагинации
func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		limit    int
		offset   int
		wantNext bool
		wantPrev bool
	}{
		{name: "empty result", total: 0, limit: 50, offset: 0, wantNext: false, wantPrev: false},
		{name: "first page of many", total: 120, limit: 50, offset: 0, wantNext: true, wantPrev: false},
		{name: "middle page", total: 120, limit: 50, offset: 50, wantNext: true, wantPrev: true},
		{name: "last partial page", total: 120, limit: 50, offset: 100, wantNext: false, wantPrev: true},
		{name: "exact boundary", total: 100, limit: 50, offset: 50, wantNext: false, wantPrev: true},
		{name: "single page", total: 10, limit: 50, offset: 0, wantNext: false, wantPrev: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := Compute(tt.total, tt.limit, tt.offset)
			if page.HasNext != tt.wantNext {
				t.Errorf("HasNext = %v, want %v", page.HasNext, tt.wantNext)
			}
			if page.HasPrev != tt.wantPrev {
				t.Errorf("HasPrev = %v, want %v", page.HasPrev, tt.wantPrev)
			}
			if page.TotalCount != tt.total || page.Limit != tt.limit || page.Offset != tt.offset {
				t.Errorf("Page = %+v, want echo of inputs", page)
			}
		})
	}
}

// TestClampLimit проверяет границы размера страницы
func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultLimit},
		{in: -1, want: DefaultLimit},
		{in: 1, want: 1},
		{in: 50, want: 50},
		{in: MaxLimit, want: MaxLimit},
		{in: MaxLimit + 1, want: MaxLimit},
		{in: 100000, want: MaxLimit},
	}

	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// TestClampOffset проверяет обнуление отрицательного смещения
func TestClampOffset(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -5, want: 0},
		{in: 0, want: 0},
		{in: 7, want: 7},
	}

	for _, tt := range tests {
		if got := ClampOffset(tt.in); got != tt.want {
			t.Errorf("ClampOffset(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
