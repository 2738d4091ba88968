package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// DistrictsPerWarehouse - количество районов на склад по TPC-C
const DistrictsPerWarehouse = 10

// DeliveryRequest - запрос протокола Delivery
type DeliveryRequest struct {
	// WarehouseID - склад доставки
	WarehouseID int64
	// CarrierID - назначаемый перевозчик, > 0
	CarrierID int64
	// Districts - районы для обработки (пусто = все 1..10)
	Districts []int64
}

// DeliveredOrder - доставленный заказ одного района
type DeliveredOrder struct {
	DistrictID int64 `json:"district_id"`
	OrderID    int64 `json:"order_id"`
	CustomerID int64 `json:"customer_id"`
	// Amount - сумма позиций заказа, зачисленная на баланс клиента
	Amount float64 `json:"amount"`
}

// DeliveryOutcome - результат протокола Delivery
type DeliveryOutcome struct {
	WarehouseID int64 `json:"warehouse_id"`
	CarrierID   int64 `json:"carrier_id"`

	// Delivered - доставленные заказы в порядке районов
	Delivered []DeliveredOrder `json:"delivered"`

	// Skipped - районы без ожидающих заказов
	Skipped []int64 `json:"skipped,omitempty"`

	// DeliveredAt - момент доставки, RFC 3339 (общий для всех районов)
	DeliveredAt string `json:"delivered_at"`

	Duration time.Duration `json:"duration"`
}

// Delivery выполняет протокол Delivery: для каждого района находит
// старейший недоставленный заказ и одной атомарной группой удаляет его
// из new_order, назначает перевозчика, проставляет дату доставки на
// позициях и зачисляет сумму заказа на баланс клиента. Районы без
// ожидающих заказов пропускаются и перечисляются в Skipped.
func (s *Service) Delivery(ctx context.Context, req DeliveryRequest) (*DeliveryOutcome, error) {
	start := time.Now()

	fail := func(err error) (*DeliveryOutcome, error) {
		s.emit(ctx, audit.NewEntry(audit.OpDelivery, audit.StatusFailure).
			WithTable("new_order").
			WithError(err).
			WithDuration(time.Since(start)))
		return nil, err
	}

	if req.WarehouseID <= 0 {
		return fail(fmt.Errorf("invalid delivery request: warehouse_id must be positive"))
	}
	if req.CarrierID <= 0 {
		return fail(fmt.Errorf("invalid delivery request: carrier_id must be positive"))
	}

	districts := req.Districts
	if len(districts) == 0 {
		districts = make([]int64, 0, DistrictsPerWarehouse)
		for d := int64(1); d <= DistrictsPerWarehouse; d++ {
			districts = append(districts, d)
		}
	}

	deliveredAt := backend.FormatTimestamp(time.Now())
	outcome := &DeliveryOutcome{
		WarehouseID: req.WarehouseID,
		CarrierID:   req.CarrierID,
		DeliveredAt: deliveredAt,
	}

	for _, districtID := range districts {
		if districtID <= 0 || districtID > DistrictsPerWarehouse {
			return fail(fmt.Errorf("invalid district id %d", districtID))
		}

		order, found, err := s.resolveOldestPending(ctx, req.WarehouseID, districtID)
		if err != nil {
			return fail(err)
		}
		if !found {
			outcome.Skipped = append(outcome.Skipped, districtID)
			continue
		}

		plan := []backend.Query{
			backend.NamedQuery(
				"DELETE FROM new_order WHERE no_w_id = @w AND no_d_id = @d AND no_o_id = @o",
				map[string]any{"w": req.WarehouseID, "d": districtID, "o": order.OrderID},
			),
			backend.NamedQuery(
				"UPDATE orders SET o_carrier_id = @carrier WHERE o_w_id = @w AND o_d_id = @d AND o_id = @o",
				map[string]any{"carrier": req.CarrierID, "w": req.WarehouseID, "d": districtID, "o": order.OrderID},
			),
			backend.NamedQuery(
				"UPDATE order_line SET ol_delivery_d = @date WHERE ol_w_id = @w AND ol_d_id = @d AND ol_o_id = @o",
				map[string]any{"date": deliveredAt, "w": req.WarehouseID, "d": districtID, "o": order.OrderID},
			),
			backend.NamedQuery(
				`UPDATE customer
				 SET c_balance = c_balance + @amount, c_delivery_cnt = c_delivery_cnt + 1
				 WHERE c_w_id = @w AND c_d_id = @d AND c_id = @c`,
				map[string]any{"amount": order.Amount, "w": req.WarehouseID, "d": districtID, "c": order.CustomerID},
			),
		}
		if err := s.be.RunInTransaction(ctx, plan); err != nil {
			return fail(fmt.Errorf("delivery of order %d (district %d) failed: %w",
				order.OrderID, districtID, err))
		}

		outcome.Delivered = append(outcome.Delivered, order)
	}

	outcome.Duration = time.Since(start)

	s.emit(ctx, audit.NewEntry(audit.OpDelivery, audit.StatusSuccess).
		WithTable("new_order").
		WithRows(int64(len(outcome.Delivered))).
		WithDuration(outcome.Duration).
		WithDetail("delivered", len(outcome.Delivered)).
		WithDetail("skipped", len(outcome.Skipped)))

	return outcome, nil
}

// resolveOldestPending находит старейший недоставленный заказ района:
// MIN(no_o_id), его клиента и сумму позиций. found == false означает
// пустую очередь района.
func (s *Service) resolveOldestPending(ctx context.Context, warehouseID, districtID int64) (DeliveredOrder, bool, error) {
	order := DeliveredOrder{DistrictID: districtID}

	minRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT MIN(no_o_id) AS o_id FROM new_order WHERE no_w_id = @w AND no_d_id = @d",
		map[string]any{"w": warehouseID, "d": districtID},
	))
	if err != nil {
		return order, false, fmt.Errorf("failed to resolve pending order (district %d): %w", districtID, err)
	}
	minRow, ok := minRS.First()
	if !ok {
		return order, false, nil
	}
	// MIN по пустому набору дает строку с NULL
	if v, has := minRow.Value("o_id"); !has || v == nil {
		return order, false, nil
	}
	order.OrderID = minRow.Int64("o_id")

	custRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT o_c_id FROM orders WHERE o_w_id = @w AND o_d_id = @d AND o_id = @o",
		map[string]any{"w": warehouseID, "d": districtID, "o": order.OrderID},
	))
	if err != nil {
		return order, false, fmt.Errorf("failed to read order %d (district %d): %w", order.OrderID, districtID, err)
	}
	custRow, ok := custRS.First()
	if !ok {
		return order, false, fmt.Errorf("order %d (district %d): %w", order.OrderID, districtID, ErrOrderNotFound)
	}
	order.CustomerID = custRow.Int64("o_c_id")

	sumRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT SUM(ol_amount) AS total FROM order_line WHERE ol_w_id = @w AND ol_d_id = @d AND ol_o_id = @o",
		map[string]any{"w": warehouseID, "d": districtID, "o": order.OrderID},
	))
	if err != nil {
		return order, false, fmt.Errorf("failed to sum order lines (order %d): %w", order.OrderID, err)
	}
	if sumRow, ok := sumRS.First(); ok {
		order.Amount = sumRow.Float64("total")
	}

	return order, true, nil
}
