package tpcc

import (
	"context"
	"fmt"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/pagequery"
)

// ========== Листинг остатков ==========

// InventoryFilter - фильтры листинга остатков. Нулевые значения означают
// отсутствие фильтра.
type InventoryFilter struct {
	WarehouseID int64
	// BelowThreshold - только позиции с остатком ниже порога (0 = все)
	BelowThreshold int64
	// NameContains - подстрока имени товара (регистронезависимо)
	NameContains string
	Limit        int
	Offset       int
}

// InventoryRecord - строка листинга остатков
type InventoryRecord struct {
	WarehouseID int64   `json:"warehouse_id"`
	ItemID      int64   `json:"item_id"`
	ItemName    string  `json:"item_name"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	YTD         int64   `json:"ytd"`
	OrderCount  int64   `json:"order_count"`
}

// InventoryListing - страница листинга остатков
type InventoryListing struct {
	Records []InventoryRecord `json:"records"`
	Page    pagequery.Page    `json:"page"`
}

// Inventory возвращает страницу остатков stock с именами из item
func (s *Service) Inventory(ctx context.Context, filter InventoryFilter) (*InventoryListing, error) {
	b := pagequery.New("stock s JOIN item i ON i.i_id = s.s_i_id",
		"s.s_w_id", "s.s_i_id", "i.i_name", "i.i_price", "s.s_quantity", "s.s_ytd", "s.s_order_cnt")

	if filter.WarehouseID > 0 {
		b.Equals("s.s_w_id", filter.WarehouseID)
	}
	if filter.BelowThreshold > 0 {
		b.LessThan("s.s_quantity", filter.BelowThreshold)
	}
	if filter.NameContains != "" {
		b.Contains("i.i_name", filter.NameContains)
	}
	b.OrderBy("s.s_w_id", false).OrderBy("s.s_i_id", false)
	b.Limit(filter.Limit).Offset(filter.Offset)

	rs, page, err := b.Run(ctx, s.be)
	if err != nil {
		s.emit(ctx, audit.NewEntry(audit.OpListing, audit.StatusFailure).
			WithTable("stock").WithError(err))
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}

	listing := &InventoryListing{
		Records: make([]InventoryRecord, 0, len(rs.Rows)),
		Page:    page,
	}
	for _, row := range rs.Rows {
		listing.Records = append(listing.Records, InventoryRecord{
			WarehouseID: row.Int64("s_w_id"),
			ItemID:      row.Int64("s_i_id"),
			ItemName:    row.String("i_name"),
			Price:       row.Float64("i_price"),
			Quantity:    row.Int64("s_quantity"),
			YTD:         row.Int64("s_ytd"),
			OrderCount:  row.Int64("s_order_cnt"),
		})
	}

	s.emit(ctx, audit.NewEntry(audit.OpListing, audit.StatusSuccess).
		WithTable("stock").WithRows(int64(len(listing.Records))))

	return listing, nil
}

// ========== Худшие остатки ==========

// LowStock возвращает худшие N позиций склада по возрастанию остатка
func (s *Service) LowStock(ctx context.Context, warehouseID, threshold int64, limit int) ([]InventoryRecord, error) {
	if warehouseID <= 0 {
		return nil, fmt.Errorf("warehouse_id must be positive, got %d", warehouseID)
	}
	limit = pagequery.ClampLimit(limit)

	rs, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(fmt.Sprintf(
		`SELECT s.s_w_id, s.s_i_id, i.i_name, i.i_price, s.s_quantity, s.s_ytd, s.s_order_cnt
		 FROM stock s JOIN item i ON i.i_id = s.s_i_id
		 WHERE s.s_w_id = @w AND s.s_quantity < @threshold
		 ORDER BY s.s_quantity, s.s_i_id
		 LIMIT %d`, limit),
		map[string]any{"w": warehouseID, "threshold": threshold},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}

	records := make([]InventoryRecord, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		records = append(records, InventoryRecord{
			WarehouseID: row.Int64("s_w_id"),
			ItemID:      row.Int64("s_i_id"),
			ItemName:    row.String("i_name"),
			Price:       row.Float64("i_price"),
			Quantity:    row.Int64("s_quantity"),
			YTD:         row.Int64("s_ytd"),
			OrderCount:  row.Int64("s_order_cnt"),
		})
	}
	return records, nil
}

// ========== Карточка товара ==========

// ItemStock - остаток товара на одном складе
type ItemStock struct {
	WarehouseID int64 `json:"warehouse_id"`
	Quantity    int64 `json:"quantity"`
	YTD         int64 `json:"ytd"`
	OrderCount  int64 `json:"order_count"`
	RemoteCount int64 `json:"remote_count"`
}

// ItemDetails - карточка товара с остатками по складам
type ItemDetails struct {
	ItemID int64       `json:"item_id"`
	Name   string      `json:"name"`
	Price  float64     `json:"price"`
	Data   string      `json:"data"`
	Stock  []ItemStock `json:"stock"`
}

// ItemDetailsByID возвращает карточку товара и его остатки по складам
func (s *Service) ItemDetailsByID(ctx context.Context, itemID int64) (*ItemDetails, error) {
	itemRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT i_id, i_name, i_price, i_data FROM item WHERE i_id = @id",
		map[string]any{"id": itemID},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read item: %w", err)
	}
	itemRow, ok := itemRS.First()
	if !ok {
		return nil, s.notFound("listing", ErrItemNotFound)
	}

	stockRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT s_w_id, s_quantity, s_ytd, s_order_cnt, s_remote_cnt
		 FROM stock WHERE s_i_id = @id ORDER BY s_w_id`,
		map[string]any{"id": itemID},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read item stock: %w", err)
	}

	details := &ItemDetails{
		ItemID: itemRow.Int64("i_id"),
		Name:   itemRow.String("i_name"),
		Price:  itemRow.Float64("i_price"),
		Data:   itemRow.String("i_data"),
		Stock:  make([]ItemStock, 0, len(stockRS.Rows)),
	}
	for _, row := range stockRS.Rows {
		details.Stock = append(details.Stock, ItemStock{
			WarehouseID: row.Int64("s_w_id"),
			Quantity:    row.Int64("s_quantity"),
			YTD:         row.Int64("s_ytd"),
			OrderCount:  row.Int64("s_order_cnt"),
			RemoteCount: row.Int64("s_remote_cnt"),
		})
	}
	return details, nil
}

// ========== Сводка по складам ==========

// WarehouseStock - суммарные остатки одного склада
type WarehouseStock struct {
	WarehouseID   int64  `json:"warehouse_id"`
	Name          string `json:"name"`
	DistinctItems int64  `json:"distinct_items"`
	TotalQuantity int64  `json:"total_quantity"`
}

// WarehouseSummary возвращает суммарные остатки по каждому складу
func (s *Service) WarehouseSummary(ctx context.Context) ([]WarehouseStock, error) {
	b := pagequery.New("warehouse w JOIN stock s ON s.s_w_id = w.w_id",
		"w.w_id", "w.w_name",
		"COUNT(s.s_i_id) AS distinct_items",
		"SUM(s.s_quantity) AS total_quantity")
	b.GroupBy("w.w_id", "w.w_name")
	b.OrderBy("w.w_id", false)
	b.Limit(pagequery.MaxLimit)

	_, pageQ, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build warehouse summary query: %w", err)
	}
	rs, err := s.be.ExecuteQuery(ctx, pageQ)
	if err != nil {
		return nil, fmt.Errorf("failed to read warehouse summary: %w", err)
	}

	summary := make([]WarehouseStock, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		summary = append(summary, WarehouseStock{
			WarehouseID:   row.Int64("w_id"),
			Name:          row.String("w_name"),
			DistinctItems: row.Int64("distinct_items"),
			TotalQuantity: row.Int64("total_quantity"),
		})
	}
	return summary, nil
}
