package tpcc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// TestOrders проверяет листинг заказов: фильтры, пагинация и разбор строк
func TestOrders(t *testing.T) {
	f := newFakeBackend()
	f.script("COUNT(*) AS total", []string{"total"}, []any{int64(120)})
	f.script("SELECT o_w_id",
		[]string{"o_w_id", "o_d_id", "o_id", "o_c_id", "o_entry_d", "o_carrier_id", "o_ol_cnt", "o_all_local"},
		[]any{int64(1), int64(1), int64(3001), int64(42), "2024-03-15T10:30:00Z", nil, int64(5), int64(1)},
		[]any{int64(1), int64(2), int64(2087), int64(7), "2024-03-14T09:00:00Z", int64(4), int64(7), int64(0)})
	svc := NewService(f, nil, ServiceConfig{})

	pending := false
	listing, err := svc.Orders(context.Background(), OrdersFilter{
		WarehouseID:     1,
		CarrierAssigned: &pending,
	})
	if err != nil {
		t.Fatalf("Orders() failed: %v", err)
	}

	if listing.Page.TotalCount != 120 {
		t.Errorf("TotalCount = %d, want 120", listing.Page.TotalCount)
	}
	if listing.Page.Limit != 50 || listing.Page.Offset != 0 {
		t.Errorf("page = limit %d offset %d, want 50/0", listing.Page.Limit, listing.Page.Offset)
	}
	if !listing.Page.HasNext || listing.Page.HasPrev {
		t.Errorf("page flags = next %v prev %v, want true/false", listing.Page.HasNext, listing.Page.HasPrev)
	}

	if len(listing.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(listing.Orders))
	}
	first := listing.Orders[0]
	if first.OrderID != 3001 || first.CustomerID != 42 || first.LineCount != 5 {
		t.Errorf("Orders[0] = %+v", first)
	}
	// NULL o_carrier_id разбирается в ноль: перевозчик не назначен
	if first.CarrierID != 0 {
		t.Errorf("Orders[0].CarrierID = %d, want 0", first.CarrierID)
	}
	if !first.AllLocal || listing.Orders[1].AllLocal {
		t.Error("AllLocal flags parsed incorrectly")
	}
	if listing.Orders[1].CarrierID != 4 {
		t.Errorf("Orders[1].CarrierID = %d, want 4", listing.Orders[1].CarrierID)
	}

	// Сначала count, затем страница; фильтры присутствуют в обоих
	if len(f.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(f.queries))
	}
	if !strings.Contains(f.queries[0].Text, "COUNT(*)") {
		t.Errorf("first query is not the count: %q", f.queries[0].Text)
	}
	for i, q := range f.queries {
		if !strings.Contains(q.Text, "o_carrier_id IS NULL") {
			t.Errorf("query %d lost the carrier filter: %q", i, q.Text)
		}
		args := queryArgs(t, q)
		if args["o_w_id"] != int64(1) {
			t.Errorf("query %d warehouse arg = %v, want 1", i, args["o_w_id"])
		}
	}
}

// TestOrderDetailsByID проверяет карточку заказа с позициями и суммой
func TestOrderDetailsByID(t *testing.T) {
	f := newFakeBackend()
	f.script("FROM orders",
		[]string{"o_w_id", "o_d_id", "o_id", "o_c_id", "o_entry_d", "o_carrier_id", "o_ol_cnt", "o_all_local"},
		[]any{int64(1), int64(3), int64(2101), int64(42), "2024-03-15T10:30:00Z", int64(5), int64(2), int64(1)})
	f.script("FROM order_line",
		[]string{"ol_number", "ol_i_id", "ol_supply_w_id", "ol_quantity", "ol_amount", "ol_delivery_d"},
		[]any{int64(1), int64(101), int64(1), int64(2), 10.50, "2024-03-16T08:00:00Z"},
		[]any{int64(2), int64(207), int64(1), int64(1), 20.25, "2024-03-16T08:00:00Z"})
	svc := NewService(f, nil, ServiceConfig{})

	details, err := svc.OrderDetailsByID(context.Background(), 1, 3, 2101)
	if err != nil {
		t.Fatalf("OrderDetailsByID() failed: %v", err)
	}

	if details.Order.OrderID != 2101 || details.Order.CarrierID != 5 {
		t.Errorf("Order = %+v", details.Order)
	}
	if len(details.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(details.Lines))
	}
	if details.LineTotal != 30.75 {
		t.Errorf("LineTotal = %.2f, want 30.75", details.LineTotal)
	}
}

// TestOrderDetailsNotFound проверяет типизированный отказ по
// несуществующему заказу
func TestOrderDetailsNotFound(t *testing.T) {
	f := newFakeBackend()
	f.scriptEmpty("FROM orders",
		"o_w_id", "o_d_id", "o_id", "o_c_id", "o_entry_d", "o_carrier_id", "o_ol_cnt", "o_all_local")
	svc := NewService(f, nil, ServiceConfig{})

	_, err := svc.OrderDetailsByID(context.Background(), 1, 1, 99999)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("error = %v, want ErrOrderNotFound", err)
	}
	if !backend.IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
	// Позиции не читаются без заказа
	if len(f.queries) != 1 {
		t.Errorf("queries = %d, want 1", len(f.queries))
	}
}

// TestRecentOrders проверяет список последних заказов и прижим лимита
func TestRecentOrders(t *testing.T) {
	f := newFakeBackend()
	f.script("JOIN customer c",
		[]string{"o_w_id", "o_d_id", "o_id", "o_c_id", "o_entry_d", "c_last"},
		[]any{int64(2), int64(4), int64(3010), int64(17), "2024-03-15T12:00:00Z", "BARBAROUGHT"})
	svc := NewService(f, nil, ServiceConfig{})

	orders, err := svc.RecentOrders(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentOrders() failed: %v", err)
	}

	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].CustomerLastName != "BARBAROUGHT" || orders[0].OrderID != 3010 {
		t.Errorf("orders[0] = %+v", orders[0])
	}
	// Нулевой лимит прижимается к значению по умолчанию
	if !strings.Contains(f.queries[0].Text, "LIMIT 50") {
		t.Errorf("query limit not clamped: %q", f.queries[0].Text)
	}
}

// TestOrderStats проверяет агрегаты по заказам
func TestOrderStats(t *testing.T) {
	f := newFakeBackend()
	f.script("total_orders",
		[]string{"total_orders", "delivered", "avg_lines"},
		[]any{int64(100), int64(70), 5.2})
	svc := NewService(f, nil, ServiceConfig{})

	stats, err := svc.OrderStats(context.Background(), StatsFilter{WarehouseID: 1})
	if err != nil {
		t.Fatalf("OrderStats() failed: %v", err)
	}

	if stats.TotalOrders != 100 || stats.DeliveredOrders != 70 {
		t.Errorf("stats = %+v", stats)
	}
	// Ожидающие выводятся из общего количества
	if stats.PendingOrders != 30 {
		t.Errorf("PendingOrders = %d, want 30", stats.PendingOrders)
	}
	if stats.AvgLinesPerOrder != 5.2 {
		t.Errorf("AvgLinesPerOrder = %v, want 5.2", stats.AvgLinesPerOrder)
	}
	if stats.GeneratedAt == "" {
		t.Error("GeneratedAt is empty")
	}

	args := queryArgs(t, f.queries[0])
	if args["o_w_id"] != int64(1) {
		t.Errorf("warehouse arg = %v, want 1", args["o_w_id"])
	}
}
