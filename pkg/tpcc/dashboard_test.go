package tpcc

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptDashboard подготавливает счетчики всех таблиц схемы и метрики
// текущего дня
func scriptDashboard(f *fakeBackend) {
	counts := map[string]int64{
		"FROM warehouse":  3,
		"FROM district":   30,
		"FROM customer":   900,
		"FROM orders":     2500,
		"FROM new_order":  120,
		"FROM order_line": 25000,
		"FROM history":    1200,
		"FROM stock":      50000,
		"FROM item":       1000,
	}
	for key, n := range counts {
		f.script(key, []string{"total"}, []any{n})
	}
	// Специфичные ключи длиннее табличных и побеждают при выборе
	f.script("o_entry_d >= @since", []string{"total"}, []any{int64(30)})
	f.script("h_date >= @since", []string{"total", "amount"}, []any{int64(12), 3456.78})
}

// TestDashboardReport проверяет сборку сводного блока метрик
func TestDashboardReport(t *testing.T) {
	f := newFakeBackend()
	scriptDashboard(f)
	svc := NewService(f, nil, ServiceConfig{})

	d, err := svc.DashboardReport(context.Background())
	if err != nil {
		t.Fatalf("DashboardReport() failed: %v", err)
	}

	if len(d.Warnings) != 0 {
		t.Fatalf("Warnings = %v, want none", d.Warnings)
	}
	if len(d.TableCounts) != len(coreTables) {
		t.Errorf("TableCounts has %d tables, want %d", len(d.TableCounts), len(coreTables))
	}
	if d.TableCounts["customer"] != 900 || d.TableCounts["order_line"] != 25000 {
		t.Errorf("TableCounts = %v", d.TableCounts)
	}
	if d.PendingDeliveries != 120 {
		t.Errorf("PendingDeliveries = %d, want 120", d.PendingDeliveries)
	}
	if d.OrdersToday != 30 {
		t.Errorf("OrdersToday = %d, want 30", d.OrdersToday)
	}
	if d.PaymentsToday != 12 || d.PaymentsAmountToday != 3456.78 {
		t.Errorf("payments today = %d / %.2f", d.PaymentsToday, d.PaymentsAmountToday)
	}
	if d.GeneratedAt == "" {
		t.Error("GeneratedAt is empty")
	}

	// 9 счетчиков таблиц, ожидающие доставки и две метрики дня
	if len(f.queries) != len(coreTables)+3 {
		t.Errorf("queries = %d, want %d", len(f.queries), len(coreTables)+3)
	}

	// Граница дня - полночь UTC
	for _, q := range f.queries {
		if !strings.Contains(q.Text, "o_entry_d >=") {
			continue
		}
		args := queryArgs(t, q)
		since, _ := args["since"].(string)
		if !strings.HasSuffix(since, "T00:00:00") {
			t.Errorf("since = %q, want midnight boundary", since)
		}
	}
}

// TestDashboardDegradation проверяет деградацию при сбое отдельной
// метрики: dashboard возвращает собранное и предупреждение
func TestDashboardDegradation(t *testing.T) {
	f := newFakeBackend()
	scriptDashboard(f)
	f.queryErrs["FROM stock"] = errors.New("disk I/O error")
	svc := NewService(f, nil, ServiceConfig{})

	d, err := svc.DashboardReport(context.Background())
	if err != nil {
		t.Fatalf("DashboardReport() failed: %v", err)
	}

	if len(d.Warnings) != 1 || !strings.Contains(d.Warnings[0], "count stock") {
		t.Errorf("Warnings = %v, want single stock warning", d.Warnings)
	}
	if _, ok := d.TableCounts["stock"]; ok {
		t.Error("failed metric present in TableCounts")
	}
	// Остальные метрики собраны
	if d.TableCounts["customer"] != 900 || d.PendingDeliveries != 120 {
		t.Errorf("surviving metrics lost: %+v", d)
	}
}
