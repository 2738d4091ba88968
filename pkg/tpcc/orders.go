package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/pagequery"
)

// ========== Листинг заказов ==========

// OrdersFilter - фильтры листинга заказов. Нулевые значения означают
// отсутствие фильтра.
type OrdersFilter struct {
	WarehouseID int64
	DistrictID  int64
	CustomerID  int64
	// CarrierAssigned - nil: без фильтра; true: только доставленные;
	// false: только ожидающие доставки
	CarrierAssigned *bool
	Limit           int
	Offset          int
}

// OrderSummary - строка листинга заказов
type OrderSummary struct {
	WarehouseID int64  `json:"warehouse_id"`
	DistrictID  int64  `json:"district_id"`
	OrderID     int64  `json:"order_id"`
	CustomerID  int64  `json:"customer_id"`
	EntryDate   string `json:"entry_date"`
	CarrierID   int64  `json:"carrier_id,omitempty"`
	LineCount   int64  `json:"line_count"`
	AllLocal    bool   `json:"all_local"`
}

// OrderListing - страница листинга заказов
type OrderListing struct {
	Orders []OrderSummary `json:"orders"`
	Page   pagequery.Page `json:"page"`
}

// Orders возвращает страницу заказов по фильтрам
func (s *Service) Orders(ctx context.Context, filter OrdersFilter) (*OrderListing, error) {
	b := pagequery.New("orders",
		"o_w_id", "o_d_id", "o_id", "o_c_id", "o_entry_d", "o_carrier_id", "o_ol_cnt", "o_all_local")

	if filter.WarehouseID > 0 {
		b.Equals("o_w_id", filter.WarehouseID)
	}
	if filter.DistrictID > 0 {
		b.Equals("o_d_id", filter.DistrictID)
	}
	if filter.CustomerID > 0 {
		b.Equals("o_c_id", filter.CustomerID)
	}
	if filter.CarrierAssigned != nil {
		if *filter.CarrierAssigned {
			b.Raw("o_carrier_id IS NOT NULL", nil)
		} else {
			b.Raw("o_carrier_id IS NULL", nil)
		}
	}
	b.OrderBy("o_w_id", false).OrderBy("o_d_id", false).OrderBy("o_id", true)
	b.Limit(filter.Limit).Offset(filter.Offset)

	rs, page, err := b.Run(ctx, s.be)
	if err != nil {
		s.emit(ctx, audit.NewEntry(audit.OpListing, audit.StatusFailure).
			WithTable("orders").WithError(err))
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	listing := &OrderListing{
		Orders: make([]OrderSummary, 0, len(rs.Rows)),
		Page:   page,
	}
	for _, row := range rs.Rows {
		listing.Orders = append(listing.Orders, OrderSummary{
			WarehouseID: row.Int64("o_w_id"),
			DistrictID:  row.Int64("o_d_id"),
			OrderID:     row.Int64("o_id"),
			CustomerID:  row.Int64("o_c_id"),
			EntryDate:   row.String("o_entry_d"),
			CarrierID:   row.Int64("o_carrier_id"),
			LineCount:   row.Int64("o_ol_cnt"),
			AllLocal:    row.Int64("o_all_local") != 0,
		})
	}

	s.emit(ctx, audit.NewEntry(audit.OpListing, audit.StatusSuccess).
		WithTable("orders").WithRows(int64(len(listing.Orders))))

	return listing, nil
}

// ========== Детали заказа ==========

// OrderDetails - заказ с позициями и вычисленной суммой
type OrderDetails struct {
	Order     OrderSummary      `json:"order"`
	Lines     []OrderStatusLine `json:"lines"`
	LineTotal float64           `json:"line_total"`
}

// OrderDetailsByID возвращает заказ, его позиции и сумму позиций
func (s *Service) OrderDetailsByID(ctx context.Context, warehouseID, districtID, orderID int64) (*OrderDetails, error) {
	orderRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT o_w_id, o_d_id, o_id, o_c_id, o_entry_d, o_carrier_id, o_ol_cnt, o_all_local
		 FROM orders
		 WHERE o_w_id = @w AND o_d_id = @d AND o_id = @o`,
		map[string]any{"w": warehouseID, "d": districtID, "o": orderID},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read order: %w", err)
	}
	orderRow, ok := orderRS.First()
	if !ok {
		return nil, s.notFound("listing", ErrOrderNotFound)
	}

	linesRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT ol_number, ol_i_id, ol_supply_w_id, ol_quantity, ol_amount, ol_delivery_d
		 FROM order_line
		 WHERE ol_w_id = @w AND ol_d_id = @d AND ol_o_id = @o
		 ORDER BY ol_number`,
		map[string]any{"w": warehouseID, "d": districtID, "o": orderID},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read order lines: %w", err)
	}

	details := &OrderDetails{
		Order: OrderSummary{
			WarehouseID: orderRow.Int64("o_w_id"),
			DistrictID:  orderRow.Int64("o_d_id"),
			OrderID:     orderRow.Int64("o_id"),
			CustomerID:  orderRow.Int64("o_c_id"),
			EntryDate:   orderRow.String("o_entry_d"),
			CarrierID:   orderRow.Int64("o_carrier_id"),
			LineCount:   orderRow.Int64("o_ol_cnt"),
			AllLocal:    orderRow.Int64("o_all_local") != 0,
		},
		Lines: make([]OrderStatusLine, 0, len(linesRS.Rows)),
	}
	for _, row := range linesRS.Rows {
		line := OrderStatusLine{
			Number:            row.Int64("ol_number"),
			ItemID:            row.Int64("ol_i_id"),
			SupplyWarehouseID: row.Int64("ol_supply_w_id"),
			Quantity:          row.Int64("ol_quantity"),
			Amount:            row.Float64("ol_amount"),
			DeliveryDate:      row.String("ol_delivery_d"),
		}
		details.Lines = append(details.Lines, line)
		details.LineTotal += line.Amount
	}

	return details, nil
}

// ========== Последние заказы ==========

// RecentOrder - строка списка последних заказов
type RecentOrder struct {
	WarehouseID      int64  `json:"warehouse_id"`
	DistrictID       int64  `json:"district_id"`
	OrderID          int64  `json:"order_id"`
	CustomerID       int64  `json:"customer_id"`
	CustomerLastName string `json:"customer_last_name"`
	EntryDate        string `json:"entry_date"`
}

// RecentOrders возвращает новейшие N заказов с фамилиями клиентов
func (s *Service) RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error) {
	limit = pagequery.ClampLimit(limit)

	rs, err := s.be.ExecuteQuery(ctx, backend.PositionalQuery(fmt.Sprintf(
		`SELECT o.o_w_id, o.o_d_id, o.o_id, o.o_c_id, o.o_entry_d, c.c_last
		 FROM orders o
		 JOIN customer c ON c.c_w_id = o.o_w_id AND c.c_d_id = o.o_d_id AND c.c_id = o.o_c_id
		 ORDER BY o.o_entry_d DESC, o.o_id DESC
		 LIMIT %d`, limit),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}

	orders := make([]RecentOrder, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		orders = append(orders, RecentOrder{
			WarehouseID:      row.Int64("o_w_id"),
			DistrictID:       row.Int64("o_d_id"),
			OrderID:          row.Int64("o_id"),
			CustomerID:       row.Int64("o_c_id"),
			CustomerLastName: row.String("c_last"),
			EntryDate:        row.String("o_entry_d"),
		})
	}
	return orders, nil
}

// ========== Статистика заказов ==========

// StatsFilter - необязательное сужение статистики до склада или района
type StatsFilter struct {
	WarehouseID int64
	DistrictID  int64
}

// OrderStatistics - агрегаты по заказам
type OrderStatistics struct {
	TotalOrders      int64   `json:"total_orders"`
	DeliveredOrders  int64   `json:"delivered_orders"`
	PendingOrders    int64   `json:"pending_orders"`
	AvgLinesPerOrder float64 `json:"avg_lines_per_order"`
	GeneratedAt      string  `json:"generated_at"`
}

// OrderStats возвращает агрегаты по заказам с необязательным сужением
func (s *Service) OrderStats(ctx context.Context, filter StatsFilter) (*OrderStatistics, error) {
	b := pagequery.New("orders",
		"COUNT(*) AS total_orders",
		"SUM(CASE WHEN o_carrier_id IS NOT NULL THEN 1 ELSE 0 END) AS delivered",
		"AVG(o_ol_cnt) AS avg_lines")
	if filter.WarehouseID > 0 {
		b.Equals("o_w_id", filter.WarehouseID)
	}
	if filter.DistrictID > 0 {
		b.Equals("o_d_id", filter.DistrictID)
	}
	b.Limit(1)

	_, pageQ, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build order statistics query: %w", err)
	}
	rs, err := s.be.ExecuteQuery(ctx, pageQ)
	if err != nil {
		return nil, fmt.Errorf("failed to read order statistics: %w", err)
	}

	stats := &OrderStatistics{GeneratedAt: backend.FormatTimestamp(time.Now())}
	if row, ok := rs.First(); ok {
		stats.TotalOrders = row.Int64("total_orders")
		stats.DeliveredOrders = row.Int64("delivered")
		stats.PendingOrders = stats.TotalOrders - stats.DeliveredOrders
		stats.AvgLinesPerOrder = row.Float64("avg_lines")
	}
	return stats, nil
}
