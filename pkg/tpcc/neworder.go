package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// rollbackItemID - гарантированно несуществующий товар: TPC-C размещает
// каталог в диапазоне 1..100000, преднамеренный откат использует id
// далеко за его пределами
const rollbackItemID int64 = 999_999_999

// NewOrderOutcome - результат протокола New-Order
type NewOrderOutcome struct {
	// Order - результат транзакции заказа
	Order *backend.NewOrderResult `json:"order"`

	// RegionTagged - best-effort тег региона записан
	RegionTagged bool `json:"region_tagged"`

	// SimulatedRollback - запрос был преднамеренно испорчен (режим
	// симуляции), ошибка ниже ожидаема
	SimulatedRollback bool `json:"simulated_rollback,omitempty"`

	// Warnings - нефатальные отклонения (сбой тега региона и т.п.)
	Warnings []string `json:"warnings,omitempty"`

	// Duration - полное время протокола
	Duration time.Duration `json:"duration"`
}

// NewOrder выполняет протокол New-Order: валидация запроса, транзакция
// заказа на backend'е, затем best-effort тег региона. Сбой тега не
// отменяет принятый заказ: он отражается в Warnings и статусе события.
func (s *Service) NewOrder(ctx context.Context, req backend.NewOrderRequest) (*NewOrderOutcome, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		s.emit(ctx, audit.NewEntry(audit.OpNewOrder, audit.StatusFailure).
			WithError(err).
			WithDuration(time.Since(start)))
		return nil, fmt.Errorf("invalid new-order request: %w", err)
	}

	outcome := &NewOrderOutcome{}

	// Режим симуляции: ~1% заказов получает несуществующий товар,
	// что заставляет backend откатить всю транзакцию
	if s.config.SimulateRollbacks && s.rollDice(100) {
		req.Lines[len(req.Lines)-1].ItemID = rollbackItemID
		outcome.SimulatedRollback = true
	}

	result, err := s.be.ExecuteNewOrder(ctx, req)
	if err != nil {
		entry := audit.NewEntry(audit.OpNewOrder, audit.StatusFailure).
			WithTable("orders").
			WithError(err).
			WithDuration(time.Since(start))
		if outcome.SimulatedRollback {
			entry.WithDetail("simulated_rollback", true)
		}
		s.emit(ctx, entry)
		return nil, err
	}
	outcome.Order = result

	// Best-effort тег региона: заказ уже принят, сбой тега деградирует
	// результат, но не отменяет его
	if s.config.Region != "" {
		tagQuery := backend.NamedQuery(
			"UPDATE orders SET region_created = @region WHERE o_w_id = @w AND o_d_id = @d AND o_id = @o",
			map[string]any{
				"region": s.config.Region,
				"w":      req.WarehouseID,
				"d":      req.DistrictID,
				"o":      result.OrderID,
			},
		)
		if tagErr := s.be.ExecuteDML(ctx, tagQuery); tagErr != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("region tag failed: %v", tagErr))
			s.deadLetter("region_tag", tagQuery, tagErr)
		} else {
			outcome.RegionTagged = true
		}
	}

	outcome.Duration = time.Since(start)

	entry := audit.NewEntry(audit.OpNewOrder, audit.StatusSuccess).
		WithTable("orders").
		WithRows(int64(len(result.Lines))).
		WithDuration(outcome.Duration).
		WithDetail("order_id", result.OrderID).
		WithDetail("total_amount", result.TotalAmount)
	if len(outcome.Warnings) > 0 {
		entry.WithWarning(outcome.Warnings[0])
	}
	s.emit(ctx, entry)

	return outcome, nil
}
