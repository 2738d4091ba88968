package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// OrderStatusRequest - запрос протокола Order-Status
type OrderStatusRequest struct {
	WarehouseID int64
	DistrictID  int64
	CustomerID  int64
}

// OrderStatusLine - позиция заказа в статусе
type OrderStatusLine struct {
	Number            int64   `json:"number"`
	ItemID            int64   `json:"item_id"`
	SupplyWarehouseID int64   `json:"supply_warehouse_id"`
	Quantity          int64   `json:"quantity"`
	Amount            float64 `json:"amount"`
	DeliveryDate      string  `json:"delivery_date,omitempty"` // пусто = не доставлена
}

// OrderStatusOutcome - результат протокола Order-Status
type OrderStatusOutcome struct {
	CustomerID int64   `json:"customer_id"`
	FirstName  string  `json:"first_name"`
	MiddleName string  `json:"middle_name"`
	LastName   string  `json:"last_name"`
	Balance    float64 `json:"balance"`

	// OrderID - новейший заказ клиента
	OrderID   int64  `json:"order_id"`
	EntryDate string `json:"entry_date"`
	CarrierID int64  `json:"carrier_id,omitempty"` // 0 = перевозчик не назначен

	Lines []OrderStatusLine `json:"lines"`

	// LinesFingerprint - стабильный отпечаток набора позиций: два
	// чтения одного заказа дают одинаковое значение
	LinesFingerprint uint64 `json:"lines_fingerprint"`

	Duration time.Duration `json:"duration"`
}

// OrderStatus выполняет протокол Order-Status: новейший заказ клиента
// и его позиции. Только чтение, состояние не меняется. Отсутствие
// клиента и отсутствие заказов - разные типизированные отказы.
func (s *Service) OrderStatus(ctx context.Context, req OrderStatusRequest) (*OrderStatusOutcome, error) {
	start := time.Now()

	fail := func(err error) (*OrderStatusOutcome, error) {
		s.emit(ctx, audit.NewEntry(audit.OpOrderStatus, audit.StatusFailure).
			WithTable("orders").
			WithError(err).
			WithDuration(time.Since(start)))
		return nil, err
	}

	if req.WarehouseID <= 0 || req.DistrictID <= 0 || req.CustomerID <= 0 {
		return fail(fmt.Errorf("invalid order-status request: ids must be positive"))
	}

	custRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT c_first, c_middle, c_last, c_balance
		 FROM customer
		 WHERE c_w_id = @w AND c_d_id = @d AND c_id = @c`,
		map[string]any{"w": req.WarehouseID, "d": req.DistrictID, "c": req.CustomerID},
	))
	if err != nil {
		return fail(fmt.Errorf("failed to read customer: %w", err))
	}
	custRow, ok := custRS.First()
	if !ok {
		return fail(s.notFound("order_status", ErrCustomerNotFound))
	}

	orderRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT o_id, o_entry_d, o_carrier_id
		 FROM orders
		 WHERE o_w_id = @w AND o_d_id = @d AND o_c_id = @c
		 ORDER BY o_id DESC
		 LIMIT 1`,
		map[string]any{"w": req.WarehouseID, "d": req.DistrictID, "c": req.CustomerID},
	))
	if err != nil {
		return fail(fmt.Errorf("failed to read latest order: %w", err))
	}
	orderRow, ok := orderRS.First()
	if !ok {
		return fail(s.notFound("order_status", ErrNoOrders))
	}
	orderID := orderRow.Int64("o_id")

	linesRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT ol_number, ol_i_id, ol_supply_w_id, ol_quantity, ol_amount, ol_delivery_d
		 FROM order_line
		 WHERE ol_w_id = @w AND ol_d_id = @d AND ol_o_id = @o
		 ORDER BY ol_number`,
		map[string]any{"w": req.WarehouseID, "d": req.DistrictID, "o": orderID},
	))
	if err != nil {
		return fail(fmt.Errorf("failed to read order lines: %w", err))
	}

	outcome := &OrderStatusOutcome{
		CustomerID:       req.CustomerID,
		FirstName:        custRow.String("c_first"),
		MiddleName:       custRow.String("c_middle"),
		LastName:         custRow.String("c_last"),
		Balance:          custRow.Float64("c_balance"),
		OrderID:          orderID,
		EntryDate:        orderRow.String("o_entry_d"),
		CarrierID:        orderRow.Int64("o_carrier_id"),
		Lines:            make([]OrderStatusLine, 0, len(linesRS.Rows)),
		LinesFingerprint: linesRS.Fingerprint(),
	}
	for _, row := range linesRS.Rows {
		outcome.Lines = append(outcome.Lines, OrderStatusLine{
			Number:            row.Int64("ol_number"),
			ItemID:            row.Int64("ol_i_id"),
			SupplyWarehouseID: row.Int64("ol_supply_w_id"),
			Quantity:          row.Int64("ol_quantity"),
			Amount:            row.Float64("ol_amount"),
			DeliveryDate:      row.String("ol_delivery_d"),
		})
	}

	outcome.Duration = time.Since(start)

	s.emit(ctx, audit.NewEntry(audit.OpOrderStatus, audit.StatusSuccess).
		WithTable("orders").
		WithRows(int64(len(outcome.Lines))).
		WithDuration(outcome.Duration).
		WithDetail("order_id", orderID))

	return outcome, nil
}
