package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// stockLevelOrderWindow - глубина окна протокола Stock-Level: последние
// 20 заказов района по TPC-C
const stockLevelOrderWindow = 20

// Способ подсчета в StockLevelOutcome.Method. Формы результата не
// взаимозаменяемы: упрощенный путь не возвращает список товаров
// и границы окна.
const (
	// StockLevelMethodWindow - точный подсчет по окну последних
	// заказов района
	StockLevelMethodWindow = "district_window"

	// StockLevelMethodWarehouse - упрощенный подсчет по всему складу,
	// применяется когда backend отверг оконный join
	StockLevelMethodWarehouse = "warehouse_wide"
)

// StockLevelRequest - запрос протокола Stock-Level
type StockLevelRequest struct {
	WarehouseID int64
	DistrictID  int64
	// Threshold - порог остатка, товары с s_quantity ниже попадают в отчет
	Threshold int64
}

// StockLevelItem - товар с остатком ниже порога
type StockLevelItem struct {
	ItemID   int64  `json:"item_id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// StockLevelOutcome - результат протокола Stock-Level
type StockLevelOutcome struct {
	WarehouseID int64 `json:"warehouse_id"`
	DistrictID  int64 `json:"district_id"`
	Threshold   int64 `json:"threshold"`

	// LowStockCount - количество различных товаров ниже порога
	LowStockCount int64 `json:"low_stock_count"`

	// Items - сами товары, по возрастанию id
	Items []StockLevelItem `json:"items,omitempty"`

	// OldestOrderID, NextOrderID - границы окна последних заказов
	// [OldestOrderID, NextOrderID). Нули на упрощенном пути.
	OldestOrderID int64 `json:"oldest_order_id"`
	NextOrderID   int64 `json:"next_order_id"`

	// Method - способ подсчета: StockLevelMethodWindow или
	// StockLevelMethodWarehouse
	Method string `json:"method"`

	// Warnings - причины деградации до упрощенного пути
	Warnings []string `json:"warnings,omitempty"`

	Duration time.Duration `json:"duration"`
}

// StockLevel выполняет протокол Stock-Level: различные товары последних
// 20 заказов района с остатком ниже порога. Имена берутся из item;
// для товаров без строки каталога подставляется метка item_<id>.
//
// Если backend отвергает чтение района или оконный join, протокол
// деградирует до подсчета по всему складу; Method в результате
// различает эти формы.
func (s *Service) StockLevel(ctx context.Context, req StockLevelRequest) (*StockLevelOutcome, error) {
	start := time.Now()

	fail := func(err error) (*StockLevelOutcome, error) {
		s.emit(ctx, audit.NewEntry(audit.OpStockLevel, audit.StatusFailure).
			WithTable("stock").
			WithError(err).
			WithDuration(time.Since(start)))
		return nil, err
	}

	if req.WarehouseID <= 0 || req.DistrictID <= 0 {
		return fail(fmt.Errorf("invalid stock-level request: ids must be positive"))
	}
	if req.Threshold <= 0 {
		return fail(fmt.Errorf("invalid stock-level request: threshold must be positive"))
	}

	distRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT d_next_o_id FROM district WHERE d_w_id = @w AND d_id = @d",
		map[string]any{"w": req.WarehouseID, "d": req.DistrictID},
	))
	if err != nil {
		// Сбой чтения (не отсутствие строки) переводит на упрощенный путь
		return s.stockLevelWarehouseWide(ctx, req, start, fmt.Errorf("failed to read district: %w", err))
	}
	distRow, ok := distRS.First()
	if !ok {
		return fail(s.notFound("stock_level", ErrDistrictNotFound))
	}
	nextOrderID := distRow.Int64("d_next_o_id")
	oldestOrderID := nextOrderID - stockLevelOrderWindow
	if oldestOrderID < 1 {
		oldestOrderID = 1
	}

	itemsRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT DISTINCT s.s_i_id AS item_id, i.i_name AS item_name, s.s_quantity AS quantity
		 FROM order_line ol
		 JOIN stock s ON s.s_w_id = ol.ol_w_id AND s.s_i_id = ol.ol_i_id
		 LEFT JOIN item i ON i.i_id = s.s_i_id
		 WHERE ol.ol_w_id = @w AND ol.ol_d_id = @d
		   AND ol.ol_o_id >= @lo AND ol.ol_o_id < @hi
		   AND s.s_quantity < @threshold
		 ORDER BY item_id`,
		map[string]any{
			"w": req.WarehouseID, "d": req.DistrictID,
			"lo": oldestOrderID, "hi": nextOrderID,
			"threshold": req.Threshold,
		},
	))
	if err != nil {
		return s.stockLevelWarehouseWide(ctx, req, start, fmt.Errorf("failed to read low stock items: %w", err))
	}

	outcome := &StockLevelOutcome{
		WarehouseID:   req.WarehouseID,
		DistrictID:    req.DistrictID,
		Threshold:     req.Threshold,
		LowStockCount: int64(len(itemsRS.Rows)),
		Items:         make([]StockLevelItem, 0, len(itemsRS.Rows)),
		OldestOrderID: oldestOrderID,
		NextOrderID:   nextOrderID,
		Method:        StockLevelMethodWindow,
	}
	for _, row := range itemsRS.Rows {
		item := StockLevelItem{
			ItemID:   row.Int64("item_id"),
			Name:     row.String("item_name"),
			Quantity: row.Int64("quantity"),
		}
		// Товар без строки каталога получает синтетическую метку
		if item.Name == "" {
			item.Name = fmt.Sprintf("item_%d", item.ItemID)
		}
		outcome.Items = append(outcome.Items, item)
	}

	outcome.Duration = time.Since(start)

	s.emit(ctx, audit.NewEntry(audit.OpStockLevel, audit.StatusSuccess).
		WithTable("stock").
		WithRows(outcome.LowStockCount).
		WithDuration(outcome.Duration).
		WithDetail("threshold", req.Threshold).
		WithDetail("low_stock_count", outcome.LowStockCount).
		WithDetail("method", outcome.Method))

	return outcome, nil
}

// stockLevelWarehouseWide считает товары ниже порога по всему складу.
// Запасной путь для backend'ов, отвергающих оконный join: одна строка
// stock на (s_w_id, s_i_id), так что COUNT уже считает различные товары.
func (s *Service) stockLevelWarehouseWide(ctx context.Context, req StockLevelRequest, start time.Time, cause error) (*StockLevelOutcome, error) {
	countRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT COUNT(*) AS low_stock FROM stock WHERE s_w_id = @w AND s_quantity < @threshold",
		map[string]any{"w": req.WarehouseID, "threshold": req.Threshold},
	))
	if err != nil {
		failErr := fmt.Errorf("failed to count low stock warehouse-wide (window path: %v): %w", cause, err)
		s.emit(ctx, audit.NewEntry(audit.OpStockLevel, audit.StatusFailure).
			WithTable("stock").
			WithError(failErr).
			WithDuration(time.Since(start)))
		return nil, failErr
	}
	row, ok := countRS.First()
	if !ok {
		failErr := fmt.Errorf("warehouse-wide low stock count returned no rows (window path: %v)", cause)
		s.emit(ctx, audit.NewEntry(audit.OpStockLevel, audit.StatusFailure).
			WithTable("stock").
			WithError(failErr).
			WithDuration(time.Since(start)))
		return nil, failErr
	}

	outcome := &StockLevelOutcome{
		WarehouseID:   req.WarehouseID,
		DistrictID:    req.DistrictID,
		Threshold:     req.Threshold,
		LowStockCount: row.Int64("low_stock"),
		Method:        StockLevelMethodWarehouse,
		Warnings:      []string{fmt.Sprintf("district window unavailable, counted warehouse-wide: %v", cause)},
		Duration:      time.Since(start),
	}

	s.emit(ctx, audit.NewEntry(audit.OpStockLevel, audit.StatusSuccess).
		WithTable("stock").
		WithRows(outcome.LowStockCount).
		WithDuration(outcome.Duration).
		WithDetail("threshold", req.Threshold).
		WithDetail("low_stock_count", outcome.LowStockCount).
		WithDetail("method", outcome.Method).
		WithWarning(outcome.Warnings[0]))

	return outcome, nil
}
