package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// coreTables - таблицы схемы в порядке отображения dashboard'а
var coreTables = []string{
	"warehouse", "district", "customer", "orders",
	"new_order", "order_line", "history", "stock", "item",
}

// Dashboard - сводный блок метрик workbench'а
type Dashboard struct {
	// TableCounts - количество строк по каждой таблице схемы
	TableCounts map[string]int64 `json:"table_counts"`

	// PendingDeliveries - заказы, ожидающие доставки (строки new_order)
	PendingDeliveries int64 `json:"pending_deliveries"`

	// OrdersToday - заказы, принятые с полуночи UTC
	OrdersToday int64 `json:"orders_today"`

	// PaymentsToday - платежи с полуночи UTC
	PaymentsToday int64 `json:"payments_today"`

	// PaymentsAmountToday - сумма платежей с полуночи UTC
	PaymentsAmountToday float64 `json:"payments_amount_today"`

	// Warnings - метрики, которые не удалось собрать
	Warnings []string `json:"warnings,omitempty"`

	// GeneratedAt - момент сборки, RFC 3339
	GeneratedAt string `json:"generated_at"`
}

// DashboardReport собирает сводный блок метрик одним вызовом. Сбой
// отдельной метрики деградирует до предупреждения: dashboard всегда
// возвращает то, что собрать удалось.
func (s *Service) DashboardReport(ctx context.Context) (*Dashboard, error) {
	start := time.Now()

	d := &Dashboard{
		TableCounts: make(map[string]int64, len(coreTables)),
		GeneratedAt: backend.FormatTimestamp(start),
	}

	warn := func(metric string, err error) {
		d.Warnings = append(d.Warnings, fmt.Sprintf("%s: %v", metric, err))
	}

	for _, table := range coreTables {
		n, err := s.countRows(ctx, "SELECT COUNT(*) AS total FROM "+table)
		if err != nil {
			warn("count "+table, err)
			continue
		}
		d.TableCounts[table] = n
	}

	if n, err := s.countRows(ctx, "SELECT COUNT(*) AS total FROM new_order"); err != nil {
		warn("pending deliveries", err)
	} else {
		d.PendingDeliveries = n
	}

	// Граница дня без суффикса Z: sqlite сравнивает RFC 3339 строки
	// лексикографически, и значения с дробными секундами должны
	// оставаться по нужную сторону границы
	midnight := start.UTC().Truncate(24 * time.Hour).Format("2006-01-02T15:04:05")

	ordersRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT COUNT(*) AS total FROM orders WHERE o_entry_d >= @since",
		map[string]any{"since": midnight},
	))
	if err != nil {
		warn("orders today", err)
	} else if row, ok := ordersRS.First(); ok {
		d.OrdersToday = row.Int64("total")
	}

	paymentsRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT COUNT(*) AS total, SUM(h_amount) AS amount FROM history WHERE h_date >= @since",
		map[string]any{"since": midnight},
	))
	if err != nil {
		warn("payments today", err)
	} else if row, ok := paymentsRS.First(); ok {
		d.PaymentsToday = row.Int64("total")
		d.PaymentsAmountToday = row.Float64("amount")
	}

	entry := audit.NewEntry(audit.OpListing, audit.StatusSuccess).
		WithDuration(time.Since(start)).
		WithDetail("metric", "dashboard")
	if len(d.Warnings) > 0 {
		entry.WithWarning(d.Warnings[0])
	}
	s.emit(ctx, entry)

	return d, nil
}

// countRows выполняет COUNT-запрос без параметров
func (s *Service) countRows(ctx context.Context, query string) (int64, error) {
	rs, err := s.be.ExecuteQuery(ctx, backend.PositionalQuery(query))
	if err != nil {
		return 0, err
	}
	row, ok := rs.First()
	if !ok {
		return 0, fmt.Errorf("count query returned no rows")
	}
	return row.Int64("total"), nil
}
