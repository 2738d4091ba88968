package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/pagequery"
)

// ========== Листинг платежей ==========

// PaymentsFilter - фильтры листинга history. Нулевые значения означают
// отсутствие фильтра.
type PaymentsFilter struct {
	WarehouseID int64
	DistrictID  int64
	CustomerID  int64
	// MinAmount - нижняя граница суммы (0 = без границы)
	MinAmount float64
	Limit     int
	Offset    int
}

// PaymentRecord - строка history
type PaymentRecord struct {
	CustomerID          int64   `json:"customer_id"`
	CustomerDistrictID  int64   `json:"customer_district_id"`
	CustomerWarehouseID int64   `json:"customer_warehouse_id"`
	DistrictID          int64   `json:"district_id"`
	WarehouseID         int64   `json:"warehouse_id"`
	Date                string  `json:"date"`
	Amount              float64 `json:"amount"`
	Data                string  `json:"data"`
}

// PaymentListing - страница листинга платежей
type PaymentListing struct {
	Payments []PaymentRecord `json:"payments"`
	Page     pagequery.Page  `json:"page"`
}

// Payments возвращает страницу платежей по фильтрам
func (s *Service) Payments(ctx context.Context, filter PaymentsFilter) (*PaymentListing, error) {
	b := pagequery.New("history",
		"h_c_id", "h_c_d_id", "h_c_w_id", "h_d_id", "h_w_id", "h_date", "h_amount", "h_data")

	if filter.WarehouseID > 0 {
		b.Equals("h_w_id", filter.WarehouseID)
	}
	if filter.DistrictID > 0 {
		b.Equals("h_d_id", filter.DistrictID)
	}
	if filter.CustomerID > 0 {
		b.Equals("h_c_id", filter.CustomerID)
	}
	if filter.MinAmount > 0 {
		b.GreaterOrEqual("h_amount", filter.MinAmount)
	}
	b.OrderBy("h_date", true)
	b.Limit(filter.Limit).Offset(filter.Offset)

	rs, page, err := b.Run(ctx, s.be)
	if err != nil {
		s.emit(ctx, audit.NewEntry(audit.OpListing, audit.StatusFailure).
			WithTable("history").WithError(err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	listing := &PaymentListing{
		Payments: make([]PaymentRecord, 0, len(rs.Rows)),
		Page:     page,
	}
	for _, row := range rs.Rows {
		listing.Payments = append(listing.Payments, PaymentRecord{
			CustomerID:          row.Int64("h_c_id"),
			CustomerDistrictID:  row.Int64("h_c_d_id"),
			CustomerWarehouseID: row.Int64("h_c_w_id"),
			DistrictID:          row.Int64("h_d_id"),
			WarehouseID:         row.Int64("h_w_id"),
			Date:                row.String("h_date"),
			Amount:              row.Float64("h_amount"),
			Data:                row.String("h_data"),
		})
	}

	s.emit(ctx, audit.NewEntry(audit.OpListing, audit.StatusSuccess).
		WithTable("history").WithRows(int64(len(listing.Payments))))

	return listing, nil
}

// ========== Сводка платежей клиента ==========

// CustomerPaymentSummary - агрегаты платежей одного клиента
type CustomerPaymentSummary struct {
	CustomerID   int64   `json:"customer_id"`
	PaymentCount int64   `json:"payment_count"`
	TotalAmount  float64 `json:"total_amount"`
	MinAmount    float64 `json:"min_amount"`
	MaxAmount    float64 `json:"max_amount"`
	LastPayment  string  `json:"last_payment"`
	Balance      float64 `json:"balance"`
}

// CustomerPayments возвращает сводку платежей клиента
func (s *Service) CustomerPayments(ctx context.Context, warehouseID, districtID, customerID int64) (*CustomerPaymentSummary, error) {
	custRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT c_balance FROM customer WHERE c_w_id = @w AND c_d_id = @d AND c_id = @c",
		map[string]any{"w": warehouseID, "d": districtID, "c": customerID},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read customer: %w", err)
	}
	custRow, ok := custRS.First()
	if !ok {
		return nil, s.notFound("listing", ErrCustomerNotFound)
	}

	aggRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT COUNT(*) AS cnt, SUM(h_amount) AS total,
		        MIN(h_amount) AS min_amount, MAX(h_amount) AS max_amount,
		        MAX(h_date) AS last_payment
		 FROM history
		 WHERE h_c_w_id = @w AND h_c_d_id = @d AND h_c_id = @c`,
		map[string]any{"w": warehouseID, "d": districtID, "c": customerID},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read payment summary: %w", err)
	}

	summary := &CustomerPaymentSummary{
		CustomerID: customerID,
		Balance:    custRow.Float64("c_balance"),
	}
	if row, ok := aggRS.First(); ok {
		summary.PaymentCount = row.Int64("cnt")
		summary.TotalAmount = row.Float64("total")
		summary.MinAmount = row.Float64("min_amount")
		summary.MaxAmount = row.Float64("max_amount")
		summary.LastPayment = row.String("last_payment")
	}
	return summary, nil
}

// ========== Статистика платежей ==========

// DistrictPayments - платежи одного района в разбивке статистики
type DistrictPayments struct {
	WarehouseID int64   `json:"warehouse_id"`
	DistrictID  int64   `json:"district_id"`
	Count       int64   `json:"count"`
	Total       float64 `json:"total"`
}

// PaymentStatistics - агрегаты по платежам
type PaymentStatistics struct {
	TotalPayments int64              `json:"total_payments"`
	TotalAmount   float64            `json:"total_amount"`
	AvgAmount     float64            `json:"avg_amount"`
	ByDistrict    []DistrictPayments `json:"by_district"`
	GeneratedAt   string             `json:"generated_at"`
}

// PaymentStats возвращает агрегаты по платежам с разбивкой по районам
func (s *Service) PaymentStats(ctx context.Context, filter StatsFilter) (*PaymentStatistics, error) {
	b := pagequery.New("history",
		"COUNT(*) AS cnt", "SUM(h_amount) AS total", "AVG(h_amount) AS avg_amount")
	if filter.WarehouseID > 0 {
		b.Equals("h_w_id", filter.WarehouseID)
	}
	if filter.DistrictID > 0 {
		b.Equals("h_d_id", filter.DistrictID)
	}
	b.Limit(1)

	_, aggQ, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build payment statistics query: %w", err)
	}
	aggRS, err := s.be.ExecuteQuery(ctx, aggQ)
	if err != nil {
		return nil, fmt.Errorf("failed to read payment statistics: %w", err)
	}

	stats := &PaymentStatistics{GeneratedAt: backend.FormatTimestamp(time.Now())}
	if row, ok := aggRS.First(); ok {
		stats.TotalPayments = row.Int64("cnt")
		stats.TotalAmount = row.Float64("total")
		stats.AvgAmount = row.Float64("avg_amount")
	}

	db := pagequery.New("history",
		"h_w_id", "h_d_id", "COUNT(*) AS cnt", "SUM(h_amount) AS total")
	if filter.WarehouseID > 0 {
		db.Equals("h_w_id", filter.WarehouseID)
	}
	if filter.DistrictID > 0 {
		db.Equals("h_d_id", filter.DistrictID)
	}
	db.GroupBy("h_w_id", "h_d_id")
	db.OrderBy("h_w_id", false).OrderBy("h_d_id", false)
	db.Limit(pagequery.MaxLimit)

	_, distQ, err := db.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build district breakdown query: %w", err)
	}
	distRS, err := s.be.ExecuteQuery(ctx, distQ)
	if err != nil {
		return nil, fmt.Errorf("failed to read district breakdown: %w", err)
	}
	for _, row := range distRS.Rows {
		stats.ByDistrict = append(stats.ByDistrict, DistrictPayments{
			WarehouseID: row.Int64("h_w_id"),
			DistrictID:  row.Int64("h_d_id"),
			Count:       row.Int64("cnt"),
			Total:       row.Float64("total"),
		})
	}

	return stats, nil
}
