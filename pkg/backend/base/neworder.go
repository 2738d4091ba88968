package base

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// Execer - минимальный интерфейс выполнения внутри открытой транзакции.
// Реализуется поверх *sql.Tx (здесь) и поверх pgx.Tx (в пакете cockroach),
// поэтому скрипт New-Order существует в одном экземпляре для всех
// backend'ов.
type Execer interface {
	BackendType() string
	Exec(ctx context.Context, q backend.Query) error
	Query(ctx context.Context, q backend.Query) (*backend.ResultSet, error)
}

// notFound - типизированная ошибка отсутствия сущности внутри скрипта
func notFound(backendType, format string, args ...any) error {
	return backend.WrapError(backend.ClassNotFound, backendType, "new_order", fmt.Errorf(format, args...))
}

// queryOne выполняет чтение и требует ровно одну строку
func queryOne(ctx context.Context, ex Execer, q backend.Query, missing string, missingArgs ...any) (backend.Row, error) {
	rs, err := ex.Query(ctx, q)
	if err != nil {
		return backend.Row{}, err
	}
	row, ok := rs.First()
	if !ok {
		return backend.Row{}, notFound(ex.BackendType(), missing, missingArgs...)
	}
	return row, nil
}

// RunNewOrder выполняет бизнес-логику New-Order внутри уже открытой
// транзакции: выделение o_id через d_next_o_id, вставка orders/new_order,
// чтение и списание stock по каждой позиции, вставка order_line и расчет
// итоговой суммы со скидкой клиента и налогами склада и района.
// Отсутствующий товар дает ошибку not_found, транзакцию откатывает
// вызывающий код.
func RunNewOrder(ctx context.Context, ex Execer, req backend.NewOrderRequest) (*backend.NewOrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, backend.WrapError(backend.ClassTranslation, ex.BackendType(), "new_order", err)
	}

	// Налог склада
	wRow, err := queryOne(ctx, ex, backend.NamedQuery(
		"SELECT w_tax FROM warehouse WHERE w_id = @w_id",
		map[string]any{"w_id": req.WarehouseID},
	), "warehouse %d not found", req.WarehouseID)
	if err != nil {
		return nil, err
	}
	wTax := wRow.Float64("w_tax")

	// Налог района и следующий номер заказа
	dRow, err := queryOne(ctx, ex, backend.NamedQuery(
		"SELECT d_tax, d_next_o_id FROM district WHERE d_w_id = @w_id AND d_id = @d_id",
		map[string]any{"w_id": req.WarehouseID, "d_id": req.DistrictID},
	), "district %d/%d not found", req.WarehouseID, req.DistrictID)
	if err != nil {
		return nil, err
	}
	dTax := dRow.Float64("d_tax")
	orderID := dRow.Int64("d_next_o_id")

	// Скидка клиента
	cRow, err := queryOne(ctx, ex, backend.NamedQuery(
		"SELECT c_discount, c_last, c_credit FROM customer WHERE c_w_id = @w_id AND c_d_id = @d_id AND c_id = @c_id",
		map[string]any{"w_id": req.WarehouseID, "d_id": req.DistrictID, "c_id": req.CustomerID},
	), "customer %d/%d/%d not found", req.WarehouseID, req.DistrictID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	discount := cRow.Float64("c_discount")

	if err := ex.Exec(ctx, backend.NamedQuery(
		"UPDATE district SET d_next_o_id = d_next_o_id + 1 WHERE d_w_id = @w_id AND d_id = @d_id",
		map[string]any{"w_id": req.WarehouseID, "d_id": req.DistrictID},
	)); err != nil {
		return nil, err
	}

	allLocal := true
	for _, line := range req.Lines {
		if line.SupplyWarehouseID != 0 && line.SupplyWarehouseID != req.WarehouseID {
			allLocal = false
			break
		}
	}
	allLocalFlag := int64(0)
	if allLocal {
		allLocalFlag = 1
	}

	entryDate := backend.FormatTimestamp(time.Now())
	if err := ex.Exec(ctx, backend.NamedQuery(
		`INSERT INTO orders (o_id, o_d_id, o_w_id, o_c_id, o_entry_d, o_ol_cnt, o_all_local)
		 VALUES (@o_id, @d_id, @w_id, @c_id, @entry_d, @ol_cnt, @all_local)`,
		map[string]any{
			"o_id": orderID, "d_id": req.DistrictID, "w_id": req.WarehouseID,
			"c_id": req.CustomerID, "entry_d": entryDate,
			"ol_cnt": int64(len(req.Lines)), "all_local": allLocalFlag,
		},
	)); err != nil {
		return nil, err
	}

	if err := ex.Exec(ctx, backend.NamedQuery(
		"INSERT INTO new_order (no_o_id, no_d_id, no_w_id) VALUES (@o_id, @d_id, @w_id)",
		map[string]any{"o_id": orderID, "d_id": req.DistrictID, "w_id": req.WarehouseID},
	)); err != nil {
		return nil, err
	}

	distCol := fmt.Sprintf("s_dist_%02d", req.DistrictID)
	var (
		lineTotal float64
		lines     = make([]backend.NewOrderResultLine, 0, len(req.Lines))
	)

	for i, line := range req.Lines {
		supplyW := line.SupplyWarehouseID
		if supplyW == 0 {
			supplyW = req.WarehouseID
		}

		iRow, err := queryOne(ctx, ex, backend.NamedQuery(
			"SELECT i_price, i_name FROM item WHERE i_id = @i_id",
			map[string]any{"i_id": line.ItemID},
		), "item %d not found", line.ItemID)
		if err != nil {
			return nil, err
		}
		price := iRow.Float64("i_price")
		itemName := iRow.String("i_name")

		sRow, err := queryOne(ctx, ex, backend.NamedQuery(
			fmt.Sprintf("SELECT s_quantity, %s AS dist_info FROM stock WHERE s_i_id = @i_id AND s_w_id = @w_id", distCol),
			map[string]any{"i_id": line.ItemID, "w_id": supplyW},
		), "stock %d/%d not found", line.ItemID, supplyW)
		if err != nil {
			return nil, err
		}
		stockQty := sRow.Int64("s_quantity")
		distInfo := sRow.String("dist_info")

		// Пополнение при падении остатка ниже порога
		newQty := stockQty - line.Quantity
		if newQty < 10 {
			newQty += 91
		}

		remoteDelta := int64(0)
		if supplyW != req.WarehouseID {
			remoteDelta = 1
		}
		if err := ex.Exec(ctx, backend.NamedQuery(
			`UPDATE stock SET s_quantity = @qty, s_ytd = s_ytd + @sold,
			        s_order_cnt = s_order_cnt + 1, s_remote_cnt = s_remote_cnt + @remote
			 WHERE s_i_id = @i_id AND s_w_id = @w_id`,
			map[string]any{
				"qty": newQty, "sold": line.Quantity, "remote": remoteDelta,
				"i_id": line.ItemID, "w_id": supplyW,
			},
		)); err != nil {
			return nil, err
		}

		amount := float64(line.Quantity) * price
		lineTotal += amount

		if err := ex.Exec(ctx, backend.NamedQuery(
			`INSERT INTO order_line (ol_o_id, ol_d_id, ol_w_id, ol_number, ol_i_id,
			        ol_supply_w_id, ol_quantity, ol_amount, ol_dist_info)
			 VALUES (@o_id, @d_id, @w_id, @number, @i_id, @supply_w_id, @quantity, @amount, @dist_info)`,
			map[string]any{
				"o_id": orderID, "d_id": req.DistrictID, "w_id": req.WarehouseID,
				"number": int64(i + 1), "i_id": line.ItemID, "supply_w_id": supplyW,
				"quantity": line.Quantity, "amount": amount, "dist_info": distInfo,
			},
		)); err != nil {
			return nil, err
		}

		lines = append(lines, backend.NewOrderResultLine{
			ItemID:            line.ItemID,
			ItemName:          itemName,
			SupplyWarehouseID: supplyW,
			Quantity:          line.Quantity,
			Price:             price,
			Amount:            amount,
			StockRemaining:    newQty,
		})
	}

	return &backend.NewOrderResult{
		OrderID:     orderID,
		EntryDate:   entryDate,
		AllLocal:    allLocal,
		TotalAmount: lineTotal * (1 - discount) * (1 + wTax + dTax),
		Lines:       lines,
	}, nil
}
