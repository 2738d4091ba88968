package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// MaxPaymentAmount - верхняя граница платежа по TPC-C
const MaxPaymentAmount = 10000.00

// PaymentRequest - запрос протокола Payment
type PaymentRequest struct {
	// WarehouseID - склад, принимающий платеж
	WarehouseID int64
	// DistrictID - район, принимающий платеж
	DistrictID int64
	// CustomerWarehouseID - домашний склад клиента (0 = WarehouseID)
	CustomerWarehouseID int64
	// CustomerDistrictID - домашний район клиента (0 = DistrictID)
	CustomerDistrictID int64
	// CustomerID - клиент, вносящий платеж
	CustomerID int64
	// Amount - сумма платежа, (0, MaxPaymentAmount]
	Amount float64
}

// Validate проверяет структурную корректность запроса
func (r *PaymentRequest) Validate() error {
	if r.WarehouseID <= 0 {
		return fmt.Errorf("warehouse_id must be positive, got %d", r.WarehouseID)
	}
	if r.DistrictID <= 0 {
		return fmt.Errorf("district_id must be positive, got %d", r.DistrictID)
	}
	if r.CustomerID <= 0 {
		return fmt.Errorf("customer_id must be positive, got %d", r.CustomerID)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", r.Amount)
	}
	if r.Amount > MaxPaymentAmount {
		return fmt.Errorf("amount %.2f exceeds maximum %.2f", r.Amount, MaxPaymentAmount)
	}
	return nil
}

// PaymentOutcome - результат протокола Payment
type PaymentOutcome struct {
	WarehouseID int64   `json:"warehouse_id"`
	DistrictID  int64   `json:"district_id"`
	CustomerID  int64   `json:"customer_id"`
	Amount      float64 `json:"amount"`

	// PrevBalance - баланс клиента до платежа
	PrevBalance float64 `json:"prev_balance"`
	// NewBalance - баланс клиента после платежа
	NewBalance float64 `json:"new_balance"`

	// HData - составная метка history: имена склада и района через
	// четыре пробела, каждое обрезано до 10 символов
	HData string `json:"h_data"`

	// HistoryWritten - best-effort запись history прошла
	HistoryWritten bool `json:"history_written"`

	// PaidAt - момент платежа, RFC 3339
	PaidAt string `json:"paid_at"`

	// Warnings - нефатальные отклонения (сбой history и т.п.)
	Warnings []string `json:"warnings,omitempty"`

	// Duration - полное время протокола
	Duration time.Duration `json:"duration"`
}

// clip10 обрезает имя до 10 символов для h_data
func clip10(name string) string {
	if len(name) > 10 {
		return name[:10]
	}
	return name
}

// Payment выполняет протокол Payment: читает клиента, склад и район,
// валидирует сумму против кредитного лимита, затем применяет три
// относительных обновления ОДНОЙ атомарной группой. Частичное
// применение платежа невозможно: либо все три записи, либо ни одной.
// Строка history пишется best-effort после фиксации группы.
func (s *Service) Payment(ctx context.Context, req PaymentRequest) (*PaymentOutcome, error) {
	start := time.Now()

	fail := func(err error) (*PaymentOutcome, error) {
		s.emit(ctx, audit.NewEntry(audit.OpPayment, audit.StatusFailure).
			WithTable("customer").
			WithError(err).
			WithDuration(time.Since(start)))
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return fail(fmt.Errorf("invalid payment request: %w", err))
	}

	// Домашние координаты клиента по умолчанию совпадают с платежными
	cw := req.CustomerWarehouseID
	if cw == 0 {
		cw = req.WarehouseID
	}
	cd := req.CustomerDistrictID
	if cd == 0 {
		cd = req.DistrictID
	}

	// Читаем клиента: баланс для относительного обновления считает
	// backend, здесь баланс нужен для кредитного лимита и результата
	custRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		`SELECT c_balance, c_ytd_payment, c_payment_cnt, c_credit_lim
		 FROM customer
		 WHERE c_w_id = @w AND c_d_id = @d AND c_id = @c`,
		map[string]any{"w": cw, "d": cd, "c": req.CustomerID},
	))
	if err != nil {
		return fail(fmt.Errorf("failed to read customer: %w", err))
	}
	custRow, ok := custRS.First()
	if !ok {
		return fail(s.notFound("payment", ErrCustomerNotFound))
	}
	prevBalance := custRow.Float64("c_balance")

	// Кредитный лимит проверяется только когда строка его несет
	if limit, has := custRow.Value("c_credit_lim"); has && limit != nil {
		creditLim := custRow.Float64("c_credit_lim")
		if prevBalance-req.Amount < -creditLim {
			return fail(fmt.Errorf(
				"payment %.2f would exceed credit limit %.2f (balance %.2f)",
				req.Amount, creditLim, prevBalance))
		}
	}

	whRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT w_name, w_ytd FROM warehouse WHERE w_id = @w",
		map[string]any{"w": req.WarehouseID},
	))
	if err != nil {
		return fail(fmt.Errorf("failed to read warehouse: %w", err))
	}
	whRow, ok := whRS.First()
	if !ok {
		return fail(s.notFound("payment", ErrWarehouseNotFound))
	}

	distRS, err := s.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT d_name, d_ytd FROM district WHERE d_w_id = @w AND d_id = @d",
		map[string]any{"w": req.WarehouseID, "d": req.DistrictID},
	))
	if err != nil {
		return fail(fmt.Errorf("failed to read district: %w", err))
	}
	distRow, ok := distRS.First()
	if !ok {
		return fail(s.notFound("payment", ErrDistrictNotFound))
	}

	// Три относительных обновления одной атомарной группой: окно
	// частичного применения между записями закрыто
	plan := []backend.Query{
		backend.NamedQuery(
			`UPDATE customer
			 SET c_balance = c_balance - @amount,
			     c_ytd_payment = c_ytd_payment + @amount,
			     c_payment_cnt = c_payment_cnt + 1
			 WHERE c_w_id = @w AND c_d_id = @d AND c_id = @c`,
			map[string]any{"amount": req.Amount, "w": cw, "d": cd, "c": req.CustomerID},
		),
		backend.NamedQuery(
			"UPDATE warehouse SET w_ytd = w_ytd + @amount WHERE w_id = @w",
			map[string]any{"amount": req.Amount, "w": req.WarehouseID},
		),
		backend.NamedQuery(
			"UPDATE district SET d_ytd = d_ytd + @amount WHERE d_w_id = @w AND d_id = @d",
			map[string]any{"amount": req.Amount, "w": req.WarehouseID, "d": req.DistrictID},
		),
	}
	if err := s.be.RunInTransaction(ctx, plan); err != nil {
		return fail(fmt.Errorf("payment transaction failed: %w", err))
	}

	paidAt := backend.FormatTimestamp(time.Now())
	hData := clip10(whRow.String("w_name")) + "    " + clip10(distRow.String("d_name"))

	outcome := &PaymentOutcome{
		WarehouseID: req.WarehouseID,
		DistrictID:  req.DistrictID,
		CustomerID:  req.CustomerID,
		Amount:      req.Amount,
		PrevBalance: prevBalance,
		NewBalance:  prevBalance - req.Amount,
		HData:       hData,
		PaidAt:      paidAt,
	}

	// History best-effort: платеж уже зафиксирован, сбой этой записи
	// деградирует результат, но не откатывает его
	historyQuery := backend.NamedQuery(
		`INSERT INTO history (h_c_id, h_c_d_id, h_c_w_id, h_d_id, h_w_id, h_date, h_amount, h_data)
		 VALUES (@c, @cd, @cw, @d, @w, @date, @amount, @data)`,
		map[string]any{
			"c": req.CustomerID, "cd": cd, "cw": cw,
			"d": req.DistrictID, "w": req.WarehouseID,
			"date": paidAt, "amount": req.Amount, "data": hData,
		},
	)
	if histErr := s.be.ExecuteDML(ctx, historyQuery); histErr != nil {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("history insert failed: %v", histErr))
		s.deadLetter("history_insert", historyQuery, histErr)
	} else {
		outcome.HistoryWritten = true
	}

	outcome.Duration = time.Since(start)

	entry := audit.NewEntry(audit.OpPayment, audit.StatusSuccess).
		WithTable("customer").
		WithDuration(outcome.Duration).
		WithDetail("amount", req.Amount).
		WithDetail("new_balance", outcome.NewBalance)
	if len(outcome.Warnings) > 0 {
		entry.WithWarning(outcome.Warnings[0])
	}
	s.emit(ctx, entry)

	return outcome, nil
}
