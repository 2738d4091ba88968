// Package acid реализует харнесс эмпирической проверки гарантий ACID:
// на живом backend'е создаются одноразовые таблицы с идентификатором
// сессии в имени, прогоняются четыре проверки (atomicity, consistency,
// isolation, durability) с преднамеренными сбоями, таблицы удаляются
// на любом пути выхода.
package acid

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// Начальные балансы счетов сессии
const (
	seedBalance1 = 1000.00
	seedBalance2 = 500.00
	seedBalance3 = 750.00
)

// Harness выполняет проверки ACID на одном backend'е
type Harness struct {
	be      backend.Backend
	events  audit.Logger
	dialect dialect

	// session - Unix-миллисекунды на момент Run, входят в имена таблиц
	session int64

	accountsTable  string
	transfersTable string
	auditTable     string
}

// NewHarness создает харнесс. events == nil дает NullLogger.
func NewHarness(be backend.Backend, events audit.Logger) *Harness {
	if events == nil {
		events = audit.NewNullLogger()
	}
	return &Harness{
		be:      be,
		events:  events,
		dialect: dialectFor(be.BackendType()),
	}
}

// SessionID возвращает идентификатор текущей сессии (0 до Run)
func (h *Harness) SessionID() int64 {
	return h.session
}

// Run выполняет полный сьют: setup, четыре проверки по порядку,
// teardown. Teardown выполняется на любом пути выхода, включая панику
// проверки. Ошибка возвращается только при сбое setup; упавшая
// проверка отражается в SuiteResult, а не в ошибке.
func (h *Harness) Run(ctx context.Context) (*SuiteResult, error) {
	result := &SuiteResult{
		Provider:  h.be.BackendType(),
		StartedAt: time.Now(),
	}

	if err := h.setup(ctx); err != nil {
		h.teardown(ctx)
		return nil, fmt.Errorf("failed to set up acid session: %w", err)
	}
	result.SessionID = h.session
	defer h.teardown(ctx)

	checks := []struct {
		name string
		fn   func(context.Context) Check
	}{
		{"atomicity", h.checkAtomicity},
		{"consistency", h.checkConsistency},
		{"isolation", h.checkIsolation},
		{"durability", h.checkDurability},
	}

	for _, c := range checks {
		start := time.Now()
		check := c.fn(ctx)
		check.Name = c.name
		check.Provider = h.be.BackendType()
		check.DurationMs = time.Since(start).Milliseconds()
		result.Checks = append(result.Checks, check)

		status := audit.StatusSuccess
		if !check.Passed() {
			status = audit.StatusFailure
		}
		entry := audit.NewEntry(audit.OpACIDCheck, status).
			WithBackend(h.be.BackendType()).
			WithTable(h.accountsTable).
			WithDuration(time.Since(start)).
			WithSessionID(fmt.Sprintf("%d", h.session)).
			WithDetail("check", c.name).
			WithDetail("description", check.Description)
		_ = h.events.Log(ctx, entry)
	}

	result.FinishedAt = time.Now()
	result.finalize()

	suiteStatus := audit.StatusSuccess
	if !result.Passed() {
		suiteStatus = audit.StatusFailure
	}
	_ = h.events.Log(ctx, audit.NewEntry(audit.OpACIDSuite, suiteStatus).
		WithBackend(h.be.BackendType()).
		WithDuration(result.FinishedAt.Sub(result.StartedAt)).
		WithSessionID(fmt.Sprintf("%d", h.session)).
		WithDetail("passed", result.Summary.Passed).
		WithDetail("failed", result.Summary.Failed))

	return result, nil
}

// setup создает таблицы сессии и сеет счета
func (h *Harness) setup(ctx context.Context) error {
	h.session = time.Now().UnixMilli()
	h.accountsTable = fmt.Sprintf("acid_accounts_%d", h.session)
	h.transfersTable = fmt.Sprintf("acid_transfers_%d", h.session)
	h.auditTable = fmt.Sprintf("acid_audit_%d", h.session)

	ddl := []string{
		h.dialect.createAccounts(h.accountsTable),
		h.dialect.createTransfers(h.transfersTable),
		h.dialect.createAudit(h.auditTable),
	}
	for _, stmt := range ddl {
		if err := h.be.ExecuteDDL(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create session table: %w", err)
		}
	}

	now := backend.FormatTimestamp(time.Now())
	seeds := []struct {
		id      int64
		balance float64
	}{
		{1, seedBalance1},
		{2, seedBalance2},
		{3, seedBalance3},
	}
	for _, seed := range seeds {
		err := h.be.ExecuteDML(ctx, backend.NamedQuery(
			"INSERT INTO "+h.accountsTable+" (account_id, balance, version, updated_at) VALUES (@id, @balance, 1, @now)",
			map[string]any{"id": seed.id, "balance": seed.balance, "now": now},
		))
		if err != nil {
			return fmt.Errorf("failed to seed account %d: %w", seed.id, err)
		}
	}
	return nil
}

// teardown удаляет таблицы сессии best-effort: ошибки удаления логируются
// и не поднимаются
func (h *Harness) teardown(ctx context.Context) {
	if h.session == 0 {
		return
	}
	for _, table := range []string{h.accountsTable, h.transfersTable, h.auditTable} {
		if err := h.be.ExecuteDDL(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			entry := audit.NewEntry(audit.OpDDL, audit.StatusFailure).
				WithBackend(h.be.BackendType()).
				WithTable(table).
				WithError(fmt.Errorf("failed to drop session table: %w", err))
			_ = h.events.Log(ctx, entry)
		}
	}
}

// readBalance читает баланс счета
func (h *Harness) readBalance(ctx context.Context, accountID int64) (float64, error) {
	rs, err := h.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT balance FROM "+h.accountsTable+" WHERE account_id = @id",
		map[string]any{"id": accountID},
	))
	if err != nil {
		return 0, err
	}
	row, ok := rs.First()
	if !ok {
		return 0, fmt.Errorf("account %d not found", accountID)
	}
	return row.Float64("balance"), nil
}

// readVersion читает версию счета
func (h *Harness) readVersion(ctx context.Context, accountID int64) (int64, error) {
	rs, err := h.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT version FROM "+h.accountsTable+" WHERE account_id = @id",
		map[string]any{"id": accountID},
	))
	if err != nil {
		return 0, err
	}
	row, ok := rs.First()
	if !ok {
		return 0, fmt.Errorf("account %d not found", accountID)
	}
	return row.Int64("version"), nil
}

// countAccounts считает строки таблицы счетов
func (h *Harness) countAccounts(ctx context.Context) (int64, error) {
	rs, err := h.be.ExecuteQuery(ctx, backend.PositionalQuery(
		"SELECT COUNT(*) AS total FROM " + h.accountsTable,
	))
	if err != nil {
		return 0, err
	}
	row, ok := rs.First()
	if !ok {
		return 0, fmt.Errorf("count query returned no rows")
	}
	return row.Int64("total"), nil
}

// sameCents сравнивает денежные суммы с точностью до цента:
// DECIMAL-арифметика backend'а точна, а float64-представление
// канонично, но сравнение на центах не зависит ни от того, ни от другого
func sameCents(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}
