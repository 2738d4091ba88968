package backend

import "fmt"

// MaxOrderLines - максимум позиций в одном заказе
const MaxOrderLines = 15

// NewOrderRequest - запрос протокола New-Order
type NewOrderRequest struct {
	// WarehouseID - домашний склад заказа
	WarehouseID int64
	// DistrictID - район внутри склада
	DistrictID int64
	// CustomerID - клиент района
	CustomerID int64
	// Lines - позиции заказа, от 1 до MaxOrderLines
	Lines []NewOrderLine
}

// NewOrderLine - одна позиция заказа
type NewOrderLine struct {
	// ItemID - идентификатор товара
	ItemID int64
	// SupplyWarehouseID - склад поставки. 0 = домашний склад заказа.
	SupplyWarehouseID int64
	// Quantity - количество, > 0
	Quantity int64
}

// Validate проверяет структурную корректность запроса до обращения
// к backend'у
func (r *NewOrderRequest) Validate() error {
	if r.WarehouseID <= 0 {
		return fmt.Errorf("warehouse_id must be positive, got %d", r.WarehouseID)
	}
	if r.DistrictID <= 0 {
		return fmt.Errorf("district_id must be positive, got %d", r.DistrictID)
	}
	if r.CustomerID <= 0 {
		return fmt.Errorf("customer_id must be positive, got %d", r.CustomerID)
	}
	if len(r.Lines) == 0 {
		return fmt.Errorf("order must contain at least one line")
	}
	if len(r.Lines) > MaxOrderLines {
		return fmt.Errorf("order has %d lines, maximum is %d", len(r.Lines), MaxOrderLines)
	}
	for i, line := range r.Lines {
		if line.ItemID <= 0 {
			return fmt.Errorf("line %d: item_id must be positive, got %d", i+1, line.ItemID)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: quantity must be positive, got %d", i+1, line.Quantity)
		}
		if line.SupplyWarehouseID < 0 {
			return fmt.Errorf("line %d: supply_warehouse_id must be >= 0, got %d", i+1, line.SupplyWarehouseID)
		}
	}
	return nil
}

// NewOrderResult - результат успешного New-Order
type NewOrderResult struct {
	// OrderID - выделенный идентификатор заказа (d_next_o_id до инкремента)
	OrderID int64 `json:"order_id"`
	// EntryDate - время приема заказа, RFC 3339
	EntryDate string `json:"entry_date"`
	// AllLocal - все позиции поставляются с домашнего склада
	AllLocal bool `json:"all_local"`
	// TotalAmount - сумма заказа с учетом скидки клиента и налогов
	TotalAmount float64 `json:"total_amount"`
	// Lines - детализация по позициям в порядке запроса
	Lines []NewOrderResultLine `json:"lines"`
}

// NewOrderResultLine - детализация одной позиции выполненного заказа
type NewOrderResultLine struct {
	ItemID            int64   `json:"item_id"`
	ItemName          string  `json:"item_name"`
	SupplyWarehouseID int64   `json:"supply_warehouse_id"`
	Quantity          int64   `json:"quantity"`
	Price             float64 `json:"price"`
	Amount            float64 `json:"amount"`
	StockRemaining    int64   `json:"stock_remaining"`
}
